package tree

import "github.com/npmgo/npmgo/internal/dep"

// Error codes an invalid Edge may carry.
const (
	ErrMissing = "MISSING"
	ErrInvalid = "INVALID"
)

// Edge is a directed dependency relation from one Node to an optional
// target Node.
type Edge struct {
	// From is an exclusive back-reference to the declaring Node; it never
	// owns From.
	From *Node
	// Name is the declared dependency name (the key under the from-Node's
	// dependency map, and the key this edge is stored under in
	// From.EdgesOut).
	Name string
	// RawSpec is the canonical range: the declared spec with any npm:
	// aliasing prefix stripped.
	RawSpec string
	Type    dep.Type
	// RegistryName is the package name to resolve against the registry;
	// it differs from Name only when this edge was declared with an npm:
	// alias.
	RegistryName string

	// To is a weak reference to the resolved target, or nil if unresolved.
	To *Node

	Valid bool
	// Error is one of ErrMissing/ErrInvalid when !Valid, else empty.
	Error string
}

// SatisfiedBy reports whether n is a legal resolution target for e: its
// declared name must match and its version must satisfy e.RawSpec.
func (e *Edge) SatisfiedBy(n *Node) bool {
	return n != nil && n.Name == e.Name && n.Satisfies(e.RawSpec)
}

// Reload recomputes e.To by walking up the tree from e.From, and updates
// Valid/Error accordingly. It is called after any tree-shape mutation that
// could change what this edge resolves to.
func (e *Edge) Reload() {
	if e.To != nil {
		delete(e.To.EdgesIn, e)
		e.To = nil
	}

	target := e.From.Resolve(e.Name)
	if target == nil {
		if e.Type.IsOptional() {
			e.Valid = true
			e.Error = ""
		} else {
			e.Valid = false
			e.Error = ErrMissing
		}
		return
	}

	e.To = target
	if target.EdgesIn == nil {
		target.EdgesIn = map[*Edge]bool{}
	}
	target.EdgesIn[e] = true

	if e.SatisfiedBy(target) {
		e.Valid = true
		e.Error = ""
	} else {
		e.Valid = false
		e.Error = ErrInvalid
	}
}

// Missing reports whether the edge is currently unresolved.
func (e *Edge) Missing() bool { return e.To == nil && e.Error == ErrMissing }

// Problem reports whether the edge needs the builder's attention: missing
// or invalid.
func (e *Edge) Problem() bool { return e.Error != "" }
