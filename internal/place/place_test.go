package place

import (
	"testing"

	"github.com/npmgo/npmgo/internal/dep"
	"github.com/npmgo/npmgo/internal/manifest"
	"github.com/npmgo/npmgo/internal/tree"
)

func newEdge(from *tree.Node, name, rawSpec string, t dep.Type) *tree.Edge {
	e := &tree.Edge{From: from, Name: name, RawSpec: rawSpec, RegistryName: name, Type: t}
	from.EdgesOut[name] = e
	e.Reload()
	return e
}

func TestCanPlaceOK(t *testing.T) {
	root := tree.NewRoot("/project", &manifest.Manifest{})
	d := tree.New("lodash", "4.17.21", nil)
	e := newEdge(root, "lodash", "^4.0.0", dep.Production)

	decision, conflict := CanPlace(root, d, e)
	if decision != OK || conflict != nil {
		t.Errorf("CanPlace = %v, %v, want OK, nil", decision, conflict)
	}
}

func TestCanPlaceKeepSameVersion(t *testing.T) {
	root := tree.NewRoot("/project", &manifest.Manifest{})
	existing := tree.New("lodash", "4.17.21", nil)
	existing.SetParent(root)

	d := tree.New("lodash", "4.17.21", nil)
	e := newEdge(root, "lodash", "^4.0.0", dep.Production)

	decision, _ := CanPlace(root, d, e)
	if decision != Keep {
		t.Errorf("CanPlace = %v, want KEEP", decision)
	}
}

func TestCanPlaceReplaceNewerSatisfying(t *testing.T) {
	root := tree.NewRoot("/project", &manifest.Manifest{})
	existing := tree.New("lodash", "4.0.0", nil)
	existing.SetParent(root)

	d := tree.New("lodash", "4.17.21", nil)
	e := newEdge(root, "lodash", "^4.0.0", dep.Production)

	decision, conflict := CanPlace(root, d, e)
	if decision != Replace || conflict != nil {
		t.Errorf("CanPlace = %v, %v, want REPLACE, nil", decision, conflict)
	}
}

func TestCanPlaceConflictIncompatibleExisting(t *testing.T) {
	root := tree.NewRoot("/project", &manifest.Manifest{})
	existing := tree.New("lodash", "3.0.0", nil)
	existing.SetParent(root)

	d := tree.New("lodash", "4.17.21", nil)
	e := newEdge(root, "lodash", "^4.0.0", dep.Production)

	decision, conflict := CanPlace(root, d, e)
	if decision != Conflict || conflict == nil {
		t.Errorf("CanPlace = %v, %v, want CONFLICT, non-nil", decision, conflict)
	}
}

func TestCanPlaceConflictDescendantEdge(t *testing.T) {
	root := tree.NewRoot("/project", &manifest.Manifest{})
	child := tree.New("consumer", "1.0.0", nil)
	child.SetParent(root)
	newEdge(child, "lodash", "^3.0.0", dep.Production) // unresolved, but records the constraint

	d := tree.New("lodash", "4.17.21", nil)
	e := newEdge(root, "lodash", "^4.0.0", dep.Production)

	decision, conflict := CanPlace(root, d, e)
	if decision != Conflict || conflict == nil {
		t.Errorf("CanPlace = %v, %v, want CONFLICT (descendant edge violated)", decision, conflict)
	}
}

func TestFindPlacementShallowestOK(t *testing.T) {
	root := tree.NewRoot("/project", &manifest.Manifest{})
	mid := tree.New("mid", "1.0.0", nil)
	mid.SetParent(root)
	leaf := tree.New("leaf", "1.0.0", nil)
	leaf.SetParent(mid)

	d := tree.New("lodash", "4.17.21", nil)
	e := newEdge(leaf, "lodash", "^4.0.0", dep.Production)

	decision, target, err := FindPlacement(leaf, d, e)
	if err != nil {
		t.Fatalf("FindPlacement error: %v", err)
	}
	if decision != OK || target != root {
		t.Errorf("FindPlacement = %v, %v, want OK at root (no shallower constraint blocks hoisting)", decision, target)
	}
}

func TestFindPlacementStopsAtShadowingConflict(t *testing.T) {
	root := tree.NewRoot("/project", &manifest.Manifest{})
	// Root already has an incompatible lodash, so the requester must place
	// its own copy rather than hoist past the conflict.
	rootLodash := tree.New("lodash", "3.0.0", nil)
	rootLodash.SetParent(root)

	mid := tree.New("mid", "1.0.0", nil)
	mid.SetParent(root)

	d := tree.New("lodash", "4.17.21", nil)
	e := newEdge(mid, "lodash", "^4.0.0", dep.Production)

	decision, target, err := FindPlacement(mid, d, e)
	if err != nil {
		t.Fatalf("FindPlacement error: %v", err)
	}
	if decision != OK || target != mid {
		t.Errorf("FindPlacement = %v, %v, want OK at mid (root conflicts)", decision, target)
	}
}

func TestPlaceOK(t *testing.T) {
	root := tree.NewRoot("/project", &manifest.Manifest{})
	d := tree.New("lodash", "4.17.21", nil)
	placed, replaced, err := Place(OK, root, d)
	if err != nil {
		t.Fatalf("Place error: %v", err)
	}
	if placed != d || root.Children["lodash"] != d {
		t.Error("Place(OK) should install d under target")
	}
	if replaced != nil {
		t.Errorf("Place(OK) should not report a replaced Node, got %v", replaced)
	}
}

func TestPlaceReplaceReloadsEdgesIn(t *testing.T) {
	root := tree.NewRoot("/project", &manifest.Manifest{})
	existing := tree.New("lodash", "4.0.0", nil)
	existing.SetParent(root)

	consumer := tree.New("consumer", "1.0.0", nil)
	consumer.SetParent(root)
	consumerEdge := newEdge(consumer, "lodash", "^4.0.0", dep.Production)
	if consumerEdge.To != existing {
		t.Fatalf("setup: consumerEdge should resolve to existing, got %v", consumerEdge.To)
	}

	d := tree.New("lodash", "4.17.21", nil)
	placed, replaced, err := Place(Replace, root, d)
	if err != nil {
		t.Fatalf("Place error: %v", err)
	}
	if placed != d {
		t.Error("Place(Replace) should return the new Node")
	}
	if replaced != existing {
		t.Errorf("Place(Replace) replaced = %v, want the superseded Node %v", replaced, existing)
	}
	if consumerEdge.To != d {
		t.Errorf("consumer edge should re-resolve to the replacement, got %v", consumerEdge.To)
	}
}

func TestPlaceReplaceDetachesOldToSyntheticLocation(t *testing.T) {
	root := tree.NewRoot("/project", &manifest.Manifest{})
	existing := tree.New("lodash", "4.0.0", nil)
	existing.SetParent(root)
	if existing.Location == "" {
		t.Fatal("setup: existing should have a real location before being replaced")
	}

	d := tree.New("lodash", "4.17.21", nil)
	_, replaced, err := Place(Replace, root, d)
	if err != nil {
		t.Fatalf("Place error: %v", err)
	}
	if replaced.Parent != nil {
		t.Errorf("replaced.Parent = %v, want nil (detached)", replaced.Parent)
	}
	if replaced.Location != "" {
		t.Errorf("replaced.Location = %q, want empty string once detached", replaced.Location)
	}
}

func TestPlaceKeepReturnsExisting(t *testing.T) {
	root := tree.NewRoot("/project", &manifest.Manifest{})
	existing := tree.New("lodash", "4.17.21", nil)
	existing.SetParent(root)

	d := tree.New("lodash", "4.17.21", nil)
	placed, replaced, err := Place(Keep, root, d)
	if err != nil {
		t.Fatalf("Place error: %v", err)
	}
	if placed != existing {
		t.Errorf("Place(Keep) = %v, want existing %v", placed, existing)
	}
	if replaced != nil {
		t.Errorf("Place(Keep) should not report a replaced Node, got %v", replaced)
	}
}
