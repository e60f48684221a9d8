package lockfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/npmgo/npmgo/internal/manifest"
	"github.com/npmgo/npmgo/internal/tree"
)

func TestDiffAddRemoveUpdate(t *testing.T) {
	root := tree.NewRoot("/project", &manifest.Manifest{})
	keep := tree.New("keep-me", "1.0.0", nil)
	keep.SetParent(root)
	updated := tree.New("bumped", "2.0.0", nil)
	updated.SetParent(root)
	added := tree.New("brand-new", "1.0.0", nil)
	added.SetParent(root)

	inv := tree.NewInventory()
	inv.Add(root)
	inv.Add(keep)
	inv.Add(updated)
	inv.Add(added)

	lf := New("app", "1.0.0")
	lf.Packages["node_modules/keep-me"] = &Entry{Version: "1.0.0"}
	lf.Packages["node_modules/bumped"] = &Entry{Version: "1.5.0"}
	lf.Packages["node_modules/gone"] = &Entry{Version: "3.0.0"}

	diff := Diff(inv, lf)

	if len(diff.Remove) != 1 || diff.Remove[0] != "node_modules/gone" {
		t.Errorf("Remove = %v, want [node_modules/gone]", diff.Remove)
	}
	if len(diff.Add) != 1 || diff.Add[0].Name != "brand-new" {
		t.Errorf("Add = %v, want [brand-new]", diff.Add)
	}
	if len(diff.Update) != 1 || diff.Update[0].From != "1.5.0" || diff.Update[0].Node.Name != "bumped" {
		t.Errorf("Update = %v, want bumped from 1.5.0", diff.Update)
	}
}

func TestDiffNilLockfileTreatsEverythingAsAdd(t *testing.T) {
	root := tree.NewRoot("/project", &manifest.Manifest{})
	child := tree.New("fresh", "1.0.0", nil)
	child.SetParent(root)

	inv := tree.NewInventory()
	inv.Add(root)
	inv.Add(child)

	diff := Diff(inv, nil)
	if len(diff.Add) != 1 || diff.Add[0].Name != "fresh" {
		t.Errorf("Add = %v, want [fresh]", diff.Add)
	}
	if len(diff.Remove) != 0 {
		t.Errorf("Remove = %v, want none", diff.Remove)
	}
}

func TestVerifyReportsEachIssueKind(t *testing.T) {
	dir := t.TempDir()

	// present and correct
	okDir := filepath.Join(dir, "node_modules", "ok-pkg")
	os.MkdirAll(okDir, 0o755)
	os.WriteFile(filepath.Join(okDir, "package.json"), []byte(`{"name":"ok-pkg","version":"1.0.0"}`), 0o644)

	// version mismatch
	mismatchDir := filepath.Join(dir, "node_modules", "mismatch-pkg")
	os.MkdirAll(mismatchDir, 0o755)
	os.WriteFile(filepath.Join(mismatchDir, "package.json"), []byte(`{"name":"mismatch-pkg","version":"2.0.0"}`), 0o644)

	// missing manifest
	noManifestDir := filepath.Join(dir, "node_modules", "no-manifest")
	os.MkdirAll(noManifestDir, 0o755)

	// invalid manifest
	invalidDir := filepath.Join(dir, "node_modules", "invalid-pkg")
	os.MkdirAll(invalidDir, 0o755)
	os.WriteFile(filepath.Join(invalidDir, "package.json"), []byte(`not json`), 0o644)

	lf := New("app", "1.0.0")
	lf.Packages["node_modules/ok-pkg"] = &Entry{Version: "1.0.0"}
	lf.Packages["node_modules/mismatch-pkg"] = &Entry{Version: "1.0.0"}
	lf.Packages["node_modules/no-manifest"] = &Entry{Version: "1.0.0"}
	lf.Packages["node_modules/invalid-pkg"] = &Entry{Version: "1.0.0"}
	lf.Packages["node_modules/missing-pkg"] = &Entry{Version: "1.0.0"}

	issues := Verify(dir, lf)
	byLocation := map[string]VerifyIssueKind{}
	for _, issue := range issues {
		byLocation[issue.Location] = issue.Kind
	}

	if _, ok := byLocation["node_modules/ok-pkg"]; ok {
		t.Error("ok-pkg should have no issue")
	}
	if byLocation["node_modules/mismatch-pkg"] != VersionMismatch {
		t.Errorf("mismatch-pkg kind = %v, want VersionMismatch", byLocation["node_modules/mismatch-pkg"])
	}
	if byLocation["node_modules/no-manifest"] != MissingManifest {
		t.Errorf("no-manifest kind = %v, want MissingManifest", byLocation["node_modules/no-manifest"])
	}
	if byLocation["node_modules/invalid-pkg"] != InvalidManifest {
		t.Errorf("invalid-pkg kind = %v, want InvalidManifest", byLocation["node_modules/invalid-pkg"])
	}
	if byLocation["node_modules/missing-pkg"] != Missing {
		t.Errorf("missing-pkg kind = %v, want Missing", byLocation["node_modules/missing-pkg"])
	}
}
