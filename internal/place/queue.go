package place

import (
	"container/heap"
	"strings"

	"github.com/npmgo/npmgo/internal/tree"
)

// Depth returns a Node's depth in the tree: 0 for the root, 1 for its
// direct children, and so on — the count of "node_modules/" hops in its
// location.
func Depth(n *tree.Node) int {
	if n.Root || n.Location == "" {
		return 0
	}
	return strings.Count(n.Location, "node_modules/")
}

type queueEntry struct {
	depth int
	from  *tree.Node
	edge  *tree.Edge
}

func entryKey(from *tree.Node, e *tree.Edge) [3]string {
	return [3]string{from.Location, e.Name, e.RawSpec}
}

// queueHeap implements container/heap ordered by depth, ties broken
// lexicographically by edge name.
type queueHeap []*queueEntry

func (h queueHeap) Len() int { return len(h) }
func (h queueHeap) Less(i, j int) bool {
	if h[i].depth != h[j].depth {
		return h[i].depth < h[j].depth
	}
	return h[i].edge.Name < h[j].edge.Name
}
func (h queueHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *queueHeap) Push(x interface{}) { *h = append(*h, x.(*queueEntry)) }
func (h *queueHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// DepsQueue orders pending edges by depth (shallowest first), ties broken
// lexicographically by edge name. Pushing an already-seen
// (location, edge-name, edge-spec) key is a no-op.
type DepsQueue struct {
	h    queueHeap
	seen map[[3]string]bool
}

// NewDepsQueue returns an empty queue.
func NewDepsQueue() *DepsQueue {
	return &DepsQueue{seen: map[[3]string]bool{}}
}

// Push enqueues edge e, declared on node from, unless its key was already
// pushed.
func (q *DepsQueue) Push(from *tree.Node, e *tree.Edge) {
	key := entryKey(from, e)
	if q.seen[key] {
		return
	}
	q.seen[key] = true
	heap.Push(&q.h, &queueEntry{depth: Depth(from), from: from, edge: e})
}

// Pop removes and returns the lowest-depth, lexicographically-first entry.
// The second return is false when the queue is empty.
func (q *DepsQueue) Pop() (*tree.Node, *tree.Edge, bool) {
	if q.h.Len() == 0 {
		return nil, nil, false
	}
	item := heap.Pop(&q.h).(*queueEntry)
	return item.from, item.edge, true
}

// Len reports the number of pending entries.
func (q *DepsQueue) Len() int { return q.h.Len() }
