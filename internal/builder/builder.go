// Package builder orchestrates the ideal-tree construction: popping
// problem edges off a depth-ordered queue, resolving versions through the
// registry and version algebra, and driving the placement engine to
// decide where each resolved Node lives.
package builder

import (
	"context"
	"fmt"
	"log"

	"github.com/npmgo/npmgo/internal/dep"
	"github.com/npmgo/npmgo/internal/place"
	"github.com/npmgo/npmgo/internal/registry"
	"github.com/npmgo/npmgo/internal/semver"
	"github.com/npmgo/npmgo/internal/tree"
)

// ResolveError indicates that no version in a package's packument
// satisfies the requesting edge.
type ResolveError struct {
	Name  string
	Range string
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("no version of %s satisfies %q", e.Name, e.Range)
}

// Builder drives the ideal-tree construction algorithm (spec.md §4.6).
type Builder struct {
	Registry    *registry.Client
	Concurrency int
	Debug       bool
	Logger      *log.Logger
}

// New returns a Builder backed by client.
func New(client *registry.Client) *Builder {
	return &Builder{
		Registry:    client,
		Concurrency: registry.DefaultPackumentConcurrency,
	}
}

func (b *Builder) logf(format string, args ...interface{}) {
	if !b.Debug {
		return
	}
	if b.Logger != nil {
		b.Logger.Printf(format, args...)
	} else {
		log.Printf(format, args...)
	}
}

// BuildIdealTree runs the algorithm from root (whose direct edges must
// already be built from the project manifest) to completion: every
// missing/invalid edge reachable through placement decisions is resolved,
// placed, and the tree's flags are fixed up, except a missing peer edge,
// which is left unresolved rather than auto-installed (spec.md's
// peer-dependency Non-goal) — an invalid (wrong-version) peer edge is
// still surfaced so a later consumer can report it. It returns the
// Inventory of every Node in the resulting tree.
func (b *Builder) BuildIdealTree(ctx context.Context, root *tree.Node) (*tree.Inventory, error) {
	inv := tree.NewInventory()
	inv.Add(root)

	q := place.NewDepsQueue()
	for _, e := range root.EdgesOut {
		if (e.Problem() || (e.To == nil && e.Type.IsOptional())) && !(e.Type.IsPeer() && e.To == nil) {
			q.Push(root, e)
		}
	}

	for {
		from, edge, ok := q.Pop()
		if !ok {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		placed, isNew, err := b.resolveAndPlace(ctx, inv, from, edge)
		if err != nil {
			if edge.Type.IsOptional() {
				b.logf("skipping optional edge %s (%s): %v", edge.Name, edge.RawSpec, err)
				continue
			}
			return nil, fmt.Errorf("resolving %s@%s: %w", edge.Name, edge.RawSpec, err)
		}
		if placed == nil {
			// KEEP: nothing new to place or queue.
			edge.Reload()
			continue
		}

		if isNew {
			inv.Add(placed)
		}
		for _, e := range placed.EdgesOut {
			if (e.Problem() || (e.To == nil && e.Type.IsOptional())) && !(e.Type.IsPeer() && e.To == nil) {
				q.Push(placed, e)
			}
		}
		edge.Reload()
	}

	fixFlags(root, inv)
	return inv, nil
}

// resolveAndPlace resolves the package requested by edge, places it, and
// returns the resulting Node. A nil Node with a nil error means the
// existing tree already satisfies edge (decision KEEP) and nothing new
// was placed. On a REPLACE decision, the superseded Node is dropped from
// inv so it cannot linger in ByName/Query lookups after it's detached,
// and the replacement is added in its place.
func (b *Builder) resolveAndPlace(ctx context.Context, inv *tree.Inventory, from *tree.Node, edge *tree.Edge) (*tree.Node, bool, error) {
	registryName := edge.RegistryName
	if registryName == "" {
		registryName = edge.Name
	}

	packument, err := b.Registry.FetchPackument(ctx, registryName)
	if err != nil {
		return nil, false, err
	}

	version, ok := resolveVersion(packument, edge.RawSpec)
	if !ok {
		return nil, false, &ResolveError{Name: registryName, Range: edge.RawSpec}
	}

	info := packument.Versions[version]
	candidate := tree.NewFromPackument(edge.Name, version, info.Manifest(), info.Dist.Tarball, info.Dist.Integrity)
	if registryName != edge.Name {
		candidate.RegistryName = registryName
	}

	decision, target, err := place.FindPlacement(from, candidate, edge)
	if err != nil {
		return nil, false, err
	}

	placed, replaced, err := place.Place(decision, target, candidate)
	if err != nil {
		return nil, false, err
	}
	if replaced != nil {
		inv.Remove(replaced)
		inv.Add(placed)
	}
	if decision == place.Keep {
		return nil, false, nil
	}
	placed.BuildEdges()
	return placed, true, nil
}

// resolveVersion picks the version of packument to install for rawSpec:
// an exact version match first, then a dist-tag match (for bare tags like
// "latest"), then the greatest version satisfying rawSpec as a range.
func resolveVersion(p *registry.Packument, rawSpec string) (string, bool) {
	if _, ok := p.Versions[rawSpec]; ok {
		return rawSpec, true
	}
	if tagged, ok := p.DistTags[rawSpec]; ok {
		if _, exists := p.Versions[tagged]; exists {
			return tagged, true
		}
	}
	versions := make([]string, 0, len(p.Versions))
	for v := range p.Versions {
		versions = append(versions, v)
	}
	return semver.MaxSatisfying(versions, rawSpec)
}

// fixFlags implements spec.md §4.6 step 8: mark every non-root Node
// extraneous and clear its dev/optional/peer flags, then clear extraneous
// (and set dev/opt) for everything
// reachable from root along production/optional/peer edges, then again
// along root's dev edges with dev=true. A Node is peer iff any of its own
// outgoing edges is a peer edge.
func fixFlags(root *tree.Node, inv *tree.Inventory) {
	for _, n := range inv.All() {
		if n.Root {
			continue
		}
		n.Extraneous = true
		n.Dev = false
		n.Optional = false
		n.Peer = false
	}

	visited := map[*tree.Node]bool{}
	var markReachable func(n *tree.Node, isDev, isOpt bool)
	markReachable = func(n *tree.Node, isDev, isOpt bool) {
		if !n.Root {
			n.Extraneous = false
			if isDev {
				n.Dev = true
			}
			if isOpt {
				n.Optional = true
			}
		}
		for _, e := range n.EdgesOut {
			if e.Type == dep.Peer || e.Type == dep.PeerOptional {
				n.Peer = true
			}
		}
		if visited[n] {
			return
		}
		visited[n] = true
		for _, e := range n.EdgesOut {
			if e.To == nil || e.Type == dep.Development {
				continue
			}
			markReachable(e.To, isDev, isOpt || e.Type.IsOptional())
		}
	}
	markReachable(root, false, false)

	visited = map[*tree.Node]bool{}
	for _, e := range root.EdgesOut {
		if e.Type == dep.Development && e.To != nil {
			markReachable(e.To, true, false)
		}
	}
}
