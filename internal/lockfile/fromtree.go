package lockfile

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/npmgo/npmgo/internal/manifest"
	"github.com/npmgo/npmgo/internal/tree"
)

// FromInventory builds the canonical lockfile that describes the
// resolved tree rooted at root: one Entry per non-root Node, keyed by
// its canonical location, plus a root Entry carrying the project's own
// declared dependency maps. This is what gets persisted to disk once
// the reifier has finished applying a DiffResult, so the lockfile on
// disk always reflects the tree that was actually (or is about to be)
// installed.
func FromInventory(root *tree.Node, inv *tree.Inventory) *Lockfile {
	lf := New(root.Name, root.Version)
	lf.Root().Dependencies = root.Manifest.Dependencies
	lf.Root().DevDependencies = root.Manifest.DevDependencies
	lf.Root().OptionalDependencies = root.Manifest.OptionalDependencies
	lf.Root().PeerDependencies = root.Manifest.PeerDependencies

	for _, n := range inv.All() {
		if n.Root {
			continue
		}
		e := &Entry{
			Version:   n.Version,
			Resolved:  n.Resolved,
			Integrity: n.Integrity,
			Dev:       n.Dev,
			Optional:  n.Optional,
			Peer:      n.Peer,
		}
		if n.RegistryName != n.Name {
			e.Name = n.RegistryName
		}
		if n.Manifest != nil {
			e.Dependencies = n.Manifest.Dependencies
			e.DevDependencies = n.Manifest.DevDependencies
			e.OptionalDependencies = n.Manifest.OptionalDependencies
			e.PeerDependencies = n.Manifest.PeerDependencies
			e.PeerDependenciesMeta = n.Manifest.PeerDependenciesMeta
			e.Engines = n.Manifest.Engines
			e.Bin = n.Manifest.BinEntries()
			e.License = n.Manifest.License
		}
		lf.Packages[n.Location] = e
	}
	return lf
}

// ApplyDiff patches prior (or a fresh Lockfile, if prior is nil) with
// only the locations diff names: added/updated locations get a fresh
// Entry built from their Node in inv, removed locations drop their
// Entry, and everything else is left exactly as prior recorded it.
// Used for partial operations (a targeted `update <name>`, `add`,
// `remove`) where most of the tree is intentionally left untouched.
func ApplyDiff(prior *Lockfile, root *tree.Node, inv *tree.Inventory, diff *DiffResult) *Lockfile {
	var lf *Lockfile
	if prior != nil {
		lf = &Lockfile{
			Name:            prior.Name,
			Version:         prior.Version,
			LockfileVersion: prior.LockfileVersion,
			Packages:        make(map[string]*Entry, len(prior.Packages)),
			Opaque:          prior.Opaque,
			SourceFormat:    prior.SourceFormat,
		}
		for loc, e := range prior.Packages {
			lf.Packages[loc] = e
		}
	} else {
		lf = New(root.Name, root.Version)
	}

	full := FromInventory(root, inv)

	for _, loc := range diff.Remove {
		delete(lf.Packages, loc)
	}
	for _, n := range diff.Add {
		if e, ok := full.Packages[n.Location]; ok {
			lf.Packages[n.Location] = e
		}
	}
	for _, u := range diff.Update {
		if e, ok := full.Packages[u.Node.Location]; ok {
			lf.Packages[u.Node.Location] = e
		}
	}
	lf.Root().Dependencies = root.Manifest.Dependencies
	lf.Root().DevDependencies = root.Manifest.DevDependencies
	lf.Root().OptionalDependencies = root.Manifest.OptionalDependencies
	lf.Root().PeerDependencies = root.Manifest.PeerDependencies
	return lf
}

// ParentLocation returns the canonical location of loc's parent: loc
// with its final "node_modules/<name>" segment stripped. The empty
// string (the root) is its own parent.
func ParentLocation(loc string) string {
	idx := strings.LastIndex(loc, "/node_modules/")
	if idx < 0 {
		return ""
	}
	return loc[:idx]
}

// BaseName returns the final path segment of a canonical location,
// which is always the package's own directory (and usually registry)
// name.
func BaseName(loc string) string {
	idx := strings.LastIndex(loc, "/node_modules/")
	if idx < 0 {
		return strings.TrimPrefix(loc, "node_modules/")
	}
	return loc[idx+len("/node_modules/"):]
}

// Tree reconstructs an in-memory Node tree directly from lf, without
// any registry resolution: used by `npm ci`-style strict installs,
// where the lockfile alone is authoritative and ranges are never
// re-resolved. root must already be the project's root Node.
func Tree(root *tree.Node, lf *Lockfile) *tree.Inventory {
	inv := tree.NewInventory()
	inv.Add(root)

	locs := make([]string, 0, len(lf.Packages))
	for loc := range lf.Packages {
		if loc != "" {
			locs = append(locs, loc)
		}
	}
	sort.Slice(locs, func(i, j int) bool {
		return strings.Count(locs[i], "/node_modules/") < strings.Count(locs[j], "/node_modules/")
	})

	nodes := map[string]*tree.Node{"": root}
	for _, loc := range locs {
		e := lf.Packages[loc]
		name := BaseName(loc)
		registryName := e.Name
		if registryName == "" {
			registryName = name
		}
		n := tree.NewFromLockEntry(name, e.Version, registryName)
		n.Resolved = e.Resolved
		n.Integrity = e.Integrity
		n.Dev = e.Dev
		n.Optional = e.Optional
		n.Peer = e.Peer
		n.Manifest = &manifest.Manifest{
			Name:                 name,
			Version:              e.Version,
			License:              e.License,
			Dependencies:         e.Dependencies,
			DevDependencies:      e.DevDependencies,
			OptionalDependencies: e.OptionalDependencies,
			PeerDependencies:     e.PeerDependencies,
			PeerDependenciesMeta: e.PeerDependenciesMeta,
			Engines:              e.Engines,
			Bin:                  binRawMessage(e.Bin),
		}
		parent, ok := nodes[ParentLocation(loc)]
		if !ok {
			parent = root
		}
		n.SetParent(parent)
		nodes[loc] = n
		inv.Add(n)
	}
	return inv
}

// binRawMessage re-encodes a lockfile entry's normalized bin map back
// into the raw object form manifest.Manifest.Bin expects, so a Node
// rebuilt from a lockfile (rather than a freshly fetched packument)
// still has a working BinEntries().
func binRawMessage(bin map[string]string) json.RawMessage {
	if len(bin) == 0 {
		return nil
	}
	b, err := json.Marshal(bin)
	if err != nil {
		return nil
	}
	return b
}
