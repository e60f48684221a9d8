package registry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestServer(t *testing.T, packuments map[string]Packument) *httptest.Server {
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

func TestFetchPackument(t *testing.T) {
	srv := newTestServer(t, map[string]Packument{
		"lodash": {
			Name:     "lodash",
			DistTags: map[string]string{"latest": "4.17.21"},
			Versions: map[string]VersionInfo{
				"4.17.21": {Name: "lodash", Version: "4.17.21", Dist: Dist{Tarball: "https://example.com/lodash-4.17.21.tgz"}},
			},
		},
	})
	defer srv.Close()

	c := NewClient(srv.URL)
	p, err := c.FetchPackument(context.Background(), "lodash")
	if err != nil {
		t.Fatalf("FetchPackument: %v", err)
	}
	if p.DistTags["latest"] != "4.17.21" {
		t.Errorf("DistTags[latest] = %q, want 4.17.21", p.DistTags["latest"])
	}
}

func TestFetchPackumentNotFound(t *testing.T) {
	srv := newTestServer(t, map[string]Packument{})
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.FetchPackument(context.Background(), "nonexistent")
	if _, ok := err.(*PackageNotFoundError); !ok {
		t.Errorf("err = %v, want *PackageNotFoundError", err)
	}
}

func TestFetchPackumentCaches(t *testing.T) {
	var hits int
	mux := http.NewServeMux()
	mux.HandleFunc("/lodash", func(w http.ResponseWriter, r *http.Request) {
		hits++
		json.NewEncoder(w).Encode(Packument{Name: "lodash"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewClient(srv.URL)
	for i := 0; i < 3; i++ {
		if _, err := c.FetchPackument(context.Background(), "lodash"); err != nil {
			t.Fatalf("FetchPackument: %v", err)
		}
	}
	if hits != 1 {
		t.Errorf("hits = %d, want 1 (cached after first fetch)", hits)
	}
}

func TestFetchPackumentCacheExpiry(t *testing.T) {
	var hits int
	mux := http.NewServeMux()
	mux.HandleFunc("/lodash", func(w http.ResponseWriter, r *http.Request) {
		hits++
		json.NewEncoder(w).Encode(Packument{Name: "lodash"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewClient(srv.URL)
	c.CacheTTL = time.Millisecond
	c.FetchPackument(context.Background(), "lodash")
	time.Sleep(5 * time.Millisecond)
	c.FetchPackument(context.Background(), "lodash")
	if hits != 2 {
		t.Errorf("hits = %d, want 2 (cache entry expired)", hits)
	}
}

func TestFetchPackumentsParallelPartialFailure(t *testing.T) {
	srv := newTestServer(t, map[string]Packument{
		"lodash": {Name: "lodash"},
	})
	defer srv.Close()

	c := NewClient(srv.URL)
	results, errs := c.FetchPackumentsParallel(context.Background(), []string{"lodash", "missing"}, 2)
	if len(results) != 1 || results["lodash"] == nil {
		t.Errorf("results = %v, want lodash present", results)
	}
	if len(errs) != 1 || errs["missing"] == nil {
		t.Errorf("errs = %v, want missing present", errs)
	}
}

func TestFetchTarballsParallelAbortsOnAnyFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/good.tgz", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("data")) })
	mux.HandleFunc("/bad.tgz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusInternalServerError) })
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewClient(srv.URL)
	urls := map[string]string{
		"good": srv.URL + "/good.tgz",
		"bad":  srv.URL + "/bad.tgz",
	}
	_, err := c.FetchTarballsParallel(context.Background(), urls, 2)
	if err == nil {
		t.Error("expected aggregate error when any tarball fetch fails")
	}
}

func TestFetchTarballsParallelAllSucceed(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/a.tgz", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("aaa")) })
	mux.HandleFunc("/b.tgz", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("bbb")) })
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewClient(srv.URL)
	urls := map[string]string{"a": srv.URL + "/a.tgz", "b": srv.URL + "/b.tgz"}
	results, err := c.FetchTarballsParallel(context.Background(), urls, 2)
	if err != nil {
		t.Fatalf("FetchTarballsParallel: %v", err)
	}
	if string(results["a"]) != "aaa" || string(results["b"]) != "bbb" {
		t.Errorf("results = %v, want a=aaa b=bbb", results)
	}
}
