// Package place implements the placement engine: deciding where in the
// tree a resolved Node should live (hoisting with shadowing) and executing
// that decision.
package place

import (
	"fmt"

	"github.com/npmgo/npmgo/internal/semver"
	"github.com/npmgo/npmgo/internal/tree"
)

// Decision is the outcome of evaluating whether a candidate Node D can be
// placed at a target location T to satisfy an edge E.
type Decision int

const (
	// OK: T has no existing child under D's name, and placing D there
	// violates no already-declared constraint at T or below.
	OK Decision = iota
	// Keep: T already has a child under D's name with the same version,
	// or one that satisfies E where D is not a strictly newer version
	// that also satisfies E.
	Keep
	// Replace: T's existing child under D's name is older but still
	// satisfies E, D is strictly newer, and replacement breaks nothing.
	Replace
	// Conflict: placement at T is impossible.
	Conflict
)

func (d Decision) String() string {
	switch d {
	case OK:
		return "OK"
	case Keep:
		return "KEEP"
	case Replace:
		return "REPLACE"
	case Conflict:
		return "CONFLICT"
	default:
		return fmt.Sprintf("Decision(%d)", int(d))
	}
}

// ConflictError names the edge that made placement impossible.
type ConflictError struct {
	Edge *tree.Edge
}

func (e *ConflictError) Error() string {
	if e.Edge == nil {
		return "placement conflict"
	}
	return fmt.Sprintf("placement conflict: existing edge %q (%s) at %s", e.Edge.Name, e.Edge.RawSpec, e.Edge.From.Location)
}

// CanPlace evaluates whether candidate D, requested by edge E, can be
// placed at target T, and returns the Decision plus the conflicting edge
// when the decision is Conflict.
func CanPlace(t *tree.Node, d *tree.Node, e *tree.Edge) (Decision, *tree.Edge) {
	existing, hasChild := t.Children[d.Name]
	if hasChild {
		if existing.Version == d.Version {
			return Keep, nil
		}
		if existing.Satisfies(e.RawSpec) {
			if d.Satisfies(e.RawSpec) && versionGreater(d.Version, existing.Version) {
				if canReplace(existing, d) {
					return Replace, nil
				}
				return Conflict, t.EdgesOut[d.Name]
			}
			// Existing already satisfies E and is not superseded by a
			// strictly newer D: there is no structural reason to place D
			// here, so the existing Node is reused.
			return Keep, nil
		}
		// Existing child does not satisfy E and cannot be replaced (that
		// is only possible when the existing Node itself satisfies E).
		return Conflict, t.EdgesOut[d.Name]
	}

	if out, ok := t.EdgesOut[d.Name]; ok && out.RawSpec != "" {
		if !d.Satisfies(out.RawSpec) {
			return Conflict, out
		}
	}

	if conflict := checkDescendantConflicts(t, d); conflict != nil {
		return Conflict, conflict
	}

	return OK, nil
}

// versionGreater reports whether a is a strictly greater version than b. A
// malformed version on either side is treated as not-greater, never as an
// error: placement candidates are always concrete resolved versions by the
// time CanPlace sees them.
func versionGreater(a, b string) bool {
	av, aerr := semver.Parse(a)
	bv, berr := semver.Parse(b)
	if aerr != nil || berr != nil {
		return false
	}
	return semver.Gt(av, bv)
}

// canReplace reports whether existing can be swapped for d without
// breaking any of existing's own incoming edges (every edge pointed at
// existing must also be satisfied by d).
func canReplace(existing, d *tree.Node) bool {
	for in := range existing.EdgesIn {
		if !in.SatisfiedBy(d) {
			return false
		}
	}
	return true
}

// checkDescendantConflicts implements the no-conflict walk for the OK case:
// every transitive descendant of t that has an outgoing edge under d.Name
// and no own child shadowing it must have its edge satisfied by d.
func checkDescendantConflicts(t *tree.Node, d *tree.Node) *tree.Edge {
	for _, child := range t.Children {
		if out, ok := child.EdgesOut[d.Name]; ok {
			if _, shadowed := child.Children[d.Name]; !shadowed {
				if !d.Satisfies(out.RawSpec) {
					return out
				}
			}
		}
		if conflict := checkDescendantConflicts(child, d); conflict != nil {
			return conflict
		}
	}
	return nil
}

// FindPlacement walks from start up through ancestors, evaluating CanPlace
// at each candidate. It remembers the shallowest OK/Replace decision seen,
// stops immediately on Keep, and on Conflict stops only if a valid
// candidate was already recorded below it. If the root is reached with no
// decision, it returns the best candidate found so far (possibly none).
func FindPlacement(start *tree.Node, d *tree.Node, e *tree.Edge) (Decision, *tree.Node, error) {
	var bestDecision Decision
	var bestTarget *tree.Node
	haveBest := false

	for t := start; t != nil; t = t.Parent {
		decision, conflictEdge := CanPlace(t, d, e)
		switch decision {
		case Keep:
			return Keep, t, nil
		case OK, Replace:
			// Each ancestor visited is shallower than the last, so this
			// overwrites the previous best with the shallowest seen so far.
			bestDecision, bestTarget, haveBest = decision, t, true
			if t.Root {
				return bestDecision, bestTarget, nil
			}
		case Conflict:
			if haveBest {
				return bestDecision, bestTarget, nil
			}
			if t.Root {
				return Conflict, nil, &ConflictError{Edge: conflictEdge}
			}
		}
		if t.Root {
			break
		}
	}
	if haveBest {
		return bestDecision, bestTarget, nil
	}
	return Conflict, nil, &ConflictError{}
}

// Place executes decision, placing d at target per the decision computed
// by FindPlacement, and returns the Node now satisfying e (d itself for
// OK/Replace, the pre-existing Node for Keep) plus, for Replace only, the
// superseded Node the caller must drop from its own Inventory — Place
// itself has no Inventory to update.
func Place(decision Decision, target *tree.Node, d *tree.Node) (*tree.Node, *tree.Node, error) {
	switch decision {
	case Keep:
		return target.Children[d.Name], nil, nil
	case OK:
		d.SetParent(target)
		return d, nil, nil
	case Replace:
		old := target.Children[d.Name]
		for _, c := range childSlice(old) {
			c.SetParent(nil)
		}
		old.SetParent(nil)
		d.SetParent(target)
		for in := range old.EdgesIn {
			in.Reload()
		}
		return d, old, nil
	default:
		return nil, nil, &ConflictError{}
	}
}

func childSlice(n *tree.Node) []*tree.Node {
	out := make([]*tree.Node, 0, len(n.Children))
	for _, c := range n.Children {
		out = append(out, c)
	}
	return out
}
