package builder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/npmgo/npmgo/internal/dep"
	"github.com/npmgo/npmgo/internal/manifest"
	"github.com/npmgo/npmgo/internal/registry"
	"github.com/npmgo/npmgo/internal/tree"
)

func packumentServer(t *testing.T, packuments map[string]registry.Packument) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Path[1:]
		p, ok := packuments[name]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(p)
	})
	return httptest.NewServer(mux)
}

func versionInfo(name, version string, deps map[string]string) registry.VersionInfo {
	return registry.VersionInfo{
		Name:         name,
		Version:      version,
		Dist:         registry.Dist{Tarball: "https://example.com/" + name + "-" + version + ".tgz"},
		Dependencies: deps,
	}
}

func TestBuildIdealTreeBasicInstall(t *testing.T) {
	srv := packumentServer(t, map[string]registry.Packument{
		"a": {
			Name:     "a",
			DistTags: map[string]string{"latest": "2.0.0"},
			Versions: map[string]registry.VersionInfo{
				"1.0.0": versionInfo("a", "1.0.0", nil),
				"1.2.3": versionInfo("a", "1.2.3", nil),
				"2.0.0": versionInfo("a", "2.0.0", nil),
			},
		},
	})
	defer srv.Close()

	root := tree.NewRoot("/project", &manifest.Manifest{
		Name:         "app",
		Version:      "1.0.0",
		Dependencies: map[string]string{"a": "^1.0.0"},
	})
	root.BuildEdges()

	b := New(registry.NewClient(srv.URL))
	inv, err := b.BuildIdealTree(context.Background(), root)
	if err != nil {
		t.Fatalf("BuildIdealTree: %v", err)
	}

	a, ok := root.Children["a"]
	if !ok {
		t.Fatal("expected root to have child 'a'")
	}
	if a.Version != "1.2.3" {
		t.Errorf("a.Version = %q, want 1.2.3 (max satisfying ^1.0.0)", a.Version)
	}
	if a.Location != "node_modules/a" {
		t.Errorf("a.Location = %q, want node_modules/a", a.Location)
	}
	if inv.Len() != 2 { // root + a
		t.Errorf("inv.Len() = %d, want 2", inv.Len())
	}
}

func TestBuildIdealTreeHoisting(t *testing.T) {
	srv := packumentServer(t, map[string]registry.Packument{
		"b": {
			Versions: map[string]registry.VersionInfo{
				"1.0.0": versionInfo("b", "1.0.0", map[string]string{"c": "^1.0.0"}),
			},
		},
		"c": {
			Versions: map[string]registry.VersionInfo{
				"1.5.0": versionInfo("c", "1.5.0", nil),
			},
		},
	})
	defer srv.Close()

	root := tree.NewRoot("/project", &manifest.Manifest{
		Dependencies: map[string]string{"b": "1.x"},
	})
	root.BuildEdges()

	b := New(registry.NewClient(srv.URL))
	_, err := b.BuildIdealTree(context.Background(), root)
	if err != nil {
		t.Fatalf("BuildIdealTree: %v", err)
	}

	bNode, ok := root.Children["b"]
	if !ok {
		t.Fatal("expected root to have child 'b'")
	}
	cNode, ok := root.Children["c"]
	if !ok {
		t.Fatal("expected c to hoist to root")
	}
	if cNode.Version != "1.5.0" {
		t.Errorf("c.Version = %q, want 1.5.0", cNode.Version)
	}
	if got := bNode.Resolve("c"); got != cNode {
		t.Errorf("b.Resolve(c) = %v, want root-level c %v", got, cNode)
	}
}

func TestBuildIdealTreeNestingOnConflict(t *testing.T) {
	srv := packumentServer(t, map[string]registry.Packument{
		"a": {
			Versions: map[string]registry.VersionInfo{
				"1.0.0": versionInfo("a", "1.0.0", nil),
				"2.0.0": versionInfo("a", "2.0.0", nil),
			},
		},
		"b": {
			Versions: map[string]registry.VersionInfo{
				"1.0.0": versionInfo("b", "1.0.0", map[string]string{"a": "2.x"}),
			},
		},
	})
	defer srv.Close()

	root := tree.NewRoot("/project", &manifest.Manifest{
		Dependencies: map[string]string{"a": "1.x", "b": "1.x"},
	})
	root.BuildEdges()

	bd := New(registry.NewClient(srv.URL))
	_, err := bd.BuildIdealTree(context.Background(), root)
	if err != nil {
		t.Fatalf("BuildIdealTree: %v", err)
	}

	rootA, ok := root.Children["a"]
	if !ok || rootA.Version != "1.0.0" {
		t.Fatalf("root a = %v, want version 1.0.0", rootA)
	}
	bNode, ok := root.Children["b"]
	if !ok {
		t.Fatal("expected root to have child 'b'")
	}
	nestedA, ok := bNode.Children["a"]
	if !ok || nestedA.Version != "2.0.0" {
		t.Fatalf("b's nested a = %v, want version 2.0.0", nestedA)
	}
}

func TestBuildIdealTreeOptionalDependencyTolerated(t *testing.T) {
	srv := packumentServer(t, map[string]registry.Packument{})
	defer srv.Close()

	root := tree.NewRoot("/project", &manifest.Manifest{
		OptionalDependencies: map[string]string{"fsevents": "^2.0.0"},
	})
	root.BuildEdges()

	bd := New(registry.NewClient(srv.URL))
	_, err := bd.BuildIdealTree(context.Background(), root)
	if err != nil {
		t.Fatalf("BuildIdealTree should tolerate a missing optional dependency: %v", err)
	}
	if _, ok := root.Children["fsevents"]; ok {
		t.Error("unresolvable optional dependency should not be placed")
	}
}

func TestBuildIdealTreeMissingPeerDependencyNotAutoInstalled(t *testing.T) {
	srv := packumentServer(t, map[string]registry.Packument{})
	defer srv.Close()

	root := tree.NewRoot("/project", &manifest.Manifest{
		PeerDependencies: map[string]string{"react": "^18.0.0"},
	})
	root.BuildEdges()

	bd := New(registry.NewClient(srv.URL))
	_, err := bd.BuildIdealTree(context.Background(), root)
	if err != nil {
		t.Fatalf("BuildIdealTree should not try to resolve a missing peer dependency: %v", err)
	}
	if _, ok := root.Children["react"]; ok {
		t.Error("a missing peer dependency must not be auto-installed")
	}
}

func TestResolveAndPlaceReplaceRemovesOldFromInventory(t *testing.T) {
	srv := packumentServer(t, map[string]registry.Packument{
		"a": {
			Versions: map[string]registry.VersionInfo{
				"1.0.0": versionInfo("a", "1.0.0", nil),
				"2.0.0": versionInfo("a", "2.0.0", nil),
			},
		},
	})
	defer srv.Close()

	root := tree.NewRoot("/project", &manifest.Manifest{})
	existing := tree.New("a", "1.0.0", nil)
	existing.SetParent(root)

	inv := tree.NewInventory()
	inv.Add(root)
	inv.Add(existing)

	edge := &tree.Edge{From: root, Name: "a", RawSpec: ">=1.0.0", RegistryName: "a", Type: dep.Production}
	root.EdgesOut["a"] = edge

	bd := New(registry.NewClient(srv.URL))
	placed, isNew, err := bd.resolveAndPlace(context.Background(), inv, root, edge)
	if err != nil {
		t.Fatalf("resolveAndPlace: %v", err)
	}
	if !isNew || placed == nil || placed.Version != "2.0.0" {
		t.Fatalf("placed = %v, isNew = %v, want a new Node at version 2.0.0", placed, isNew)
	}

	byName := inv.ByName("a")
	if len(byName) != 1 || byName[0] != placed {
		t.Errorf("inv.ByName(\"a\") = %v, want only the replacement Node", byName)
	}
	if existing.Parent != nil {
		t.Errorf("existing.Parent = %v, want nil after being replaced", existing.Parent)
	}
	if existing.Location != "" {
		t.Errorf("existing.Location = %q, want empty string once detached", existing.Location)
	}
}

func TestBuildIdealTreeFlagFixing(t *testing.T) {
	srv := packumentServer(t, map[string]registry.Packument{
		"prod-dep": {
			Versions: map[string]registry.VersionInfo{
				"1.0.0": versionInfo("prod-dep", "1.0.0", nil),
			},
		},
	})
	defer srv.Close()

	root := tree.NewRoot("/project", &manifest.Manifest{
		Dependencies:    map[string]string{"prod-dep": "^1.0.0"},
		DevDependencies: map[string]string{"dev-tool": "^1.0.0"},
	})
	root.BuildEdges()

	// dev-tool is unresolvable (not in the packument server), but that is
	// tolerated only for optional deps; to keep this test focused on flag
	// fixing rather than error propagation, give dev-tool a satisfiable
	// packument too.
	srv.Close()
	srv = packumentServer(t, map[string]registry.Packument{
		"prod-dep": {
			Versions: map[string]registry.VersionInfo{"1.0.0": versionInfo("prod-dep", "1.0.0", nil)},
		},
		"dev-tool": {
			Versions: map[string]registry.VersionInfo{"1.0.0": versionInfo("dev-tool", "1.0.0", nil)},
		},
	})
	defer srv.Close()

	bd := New(registry.NewClient(srv.URL))
	_, err := bd.BuildIdealTree(context.Background(), root)
	if err != nil {
		t.Fatalf("BuildIdealTree: %v", err)
	}

	prod := root.Children["prod-dep"]
	if prod == nil || prod.Dev || prod.Extraneous {
		t.Errorf("prod-dep = %+v, want dev=false extraneous=false", prod)
	}
	devTool := root.Children["dev-tool"]
	if devTool == nil || !devTool.Dev {
		t.Errorf("dev-tool = %+v, want dev=true", devTool)
	}
}
