package tree

import "fmt"

// Inventory is a flat index over every Node in a tree, with three lookup
// views: by canonical location, by declared name (multi-valued), and by
// "name@version".
type Inventory struct {
	byLocation    map[string]*Node
	byName        map[string]map[*Node]bool
	byNameVersion map[string]*Node
}

// NewInventory returns an empty Inventory.
func NewInventory() *Inventory {
	return &Inventory{
		byLocation:    map[string]*Node{},
		byName:        map[string]map[*Node]bool{},
		byNameVersion: map[string]*Node{},
	}
}

// key returns the lookup key for n's location view: its Location, or a
// stable synthetic identifier if n is not yet attached anywhere in the
// tree.
func key(n *Node) string {
	if n.Root || n.Location != "" {
		return n.Location
	}
	return fmt.Sprintf("detached:%p", n)
}

// Add inserts n into every view of the inventory.
func (inv *Inventory) Add(n *Node) {
	inv.byLocation[key(n)] = n
	if inv.byName[n.Name] == nil {
		inv.byName[n.Name] = map[*Node]bool{}
	}
	inv.byName[n.Name][n] = true
	inv.byNameVersion[n.Name+"@"+n.Version] = n
}

// Remove deletes n from every view of the inventory.
func (inv *Inventory) Remove(n *Node) {
	if inv.byLocation[key(n)] == n {
		delete(inv.byLocation, key(n))
	}
	delete(inv.byName[n.Name], n)
	if len(inv.byName[n.Name]) == 0 {
		delete(inv.byName, n.Name)
	}
	if inv.byNameVersion[n.Name+"@"+n.Version] == n {
		delete(inv.byNameVersion, n.Name+"@"+n.Version)
	}
}

// Get returns the Node at location, if any.
func (inv *Inventory) Get(location string) (*Node, bool) {
	n, ok := inv.byLocation[location]
	return n, ok
}

// ByName returns every Node declared under name, in no particular order.
func (inv *Inventory) ByName(name string) []*Node {
	set := inv.byName[name]
	nodes := make([]*Node, 0, len(set))
	for n := range set {
		nodes = append(nodes, n)
	}
	return nodes
}

// GetVersion returns the Node at name@version, if any.
func (inv *Inventory) GetVersion(name, version string) (*Node, bool) {
	n, ok := inv.byNameVersion[name+"@"+version]
	return n, ok
}

// Query returns every Node declared under name whose version satisfies
// rangeStr.
func (inv *Inventory) Query(name, rangeStr string) []*Node {
	var out []*Node
	for _, n := range inv.ByName(name) {
		if n.Satisfies(rangeStr) {
			out = append(out, n)
		}
	}
	return out
}

// All returns every Node in the inventory, in no particular order.
func (inv *Inventory) All() []*Node {
	nodes := make([]*Node, 0, len(inv.byLocation))
	for _, n := range inv.byLocation {
		nodes = append(nodes, n)
	}
	return nodes
}

// Len reports the number of Nodes tracked by location.
func (inv *Inventory) Len() int { return len(inv.byLocation) }
