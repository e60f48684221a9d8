// Package tree implements the in-memory dependency graph: Node, Edge and
// Inventory, with the parent/child/edge-in/edge-out indices and invariants
// that the placement engine and ideal-tree builder operate on.
package tree

import (
	"fmt"
	"sort"
	"strings"

	"github.com/npmgo/npmgo/internal/dep"
	"github.com/npmgo/npmgo/internal/manifest"
	"github.com/npmgo/npmgo/internal/semver"
)

// Node is a package in the dependency tree.
type Node struct {
	// Name is this Node's identity under its parent: the key its parent's
	// Children map stores it under, and the directory name it occupies.
	Name string
	// Version is the installed semantic version.
	Version string
	// RegistryName is the real package name to resolve against the
	// registry. It differs from Name only when the edge that produced
	// this Node was an npm: alias.
	RegistryName string

	Manifest  *manifest.Manifest
	Resolved  string // tarball URL
	Integrity string

	Dev         bool
	Optional    bool
	Peer        bool
	Extraneous  bool
	Link        bool
	Root        bool

	Location string
	// RootPath is the filesystem directory of the project; meaningful only
	// when Root is true.
	RootPath string

	Parent   *Node
	Children map[string]*Node
	EdgesOut map[string]*Edge
	EdgesIn  map[*Edge]bool
}

// New creates a detached Node for name@version carrying m. Its dependency
// edges are not built; call BuildEdges once the Node is placed.
func New(name, version string, m *manifest.Manifest) *Node {
	if m == nil {
		m = &manifest.Manifest{Name: name, Version: version}
	}
	return &Node{
		Name:         name,
		Version:      version,
		RegistryName: name,
		Manifest:     m,
		Children:     map[string]*Node{},
		EdgesOut:     map[string]*Edge{},
		EdgesIn:      map[*Edge]bool{},
	}
}

// NewRoot creates the root Node for the project at path, owning manifest m.
func NewRoot(path string, m *manifest.Manifest) *Node {
	if m == nil {
		m = &manifest.Manifest{}
	}
	n := New(m.Name, m.Version, m)
	n.Root = true
	n.Location = ""
	n.RootPath = path
	return n
}

// NewFromLockEntry creates a Node the way the lockfile loader does: from a
// persisted entry's declared name, version and (if present and different)
// registry-name alias.
func NewFromLockEntry(name, version, entryName string) *Node {
	n := New(name, version, nil)
	if entryName != "" && entryName != name {
		n.RegistryName = entryName
	}
	return n
}

// NewFromPackument creates a Node the way the ideal-tree builder does: from
// a resolved registry manifest, its tarball URL and integrity string.
func NewFromPackument(name, version string, m *manifest.Manifest, tarballURL, integrity string) *Node {
	n := New(name, version, m)
	n.Resolved = tarballURL
	n.Integrity = integrity
	return n
}

// childLocation computes the canonical location of a child named name
// living directly under a node whose own location is parentLocation. Scoped
// package names (e.g. "@scope/pkg") are a single path segment, same as any
// other name.
func childLocation(parentLocation, name string) string {
	if parentLocation == "" {
		return "node_modules/" + name
	}
	return parentLocation + "/node_modules/" + name
}

// SetParent atomically re-parents n under p: it is removed from any
// previous parent's child-map, installed under p keyed by n.Name, and n's
// location (and every transitive descendant's) is recomputed.
func (n *Node) SetParent(p *Node) {
	if n.Parent != nil && n.Parent.Children[n.Name] == n {
		delete(n.Parent.Children, n.Name)
	}
	n.Parent = p
	if p != nil {
		if p.Children == nil {
			p.Children = map[string]*Node{}
		}
		p.Children[n.Name] = n
	}
	n.recomputeLocation()
}

func (n *Node) recomputeLocation() {
	switch {
	case n.Root:
		n.Location = ""
	case n.Parent != nil:
		n.Location = childLocation(n.Parent.Location, n.Name)
	default:
		// Detached: no longer reachable from the root, so it holds no
		// canonical location. Without this, inventory.key would keep
		// returning its stale pre-detachment location instead of falling
		// back to the synthetic per-pointer key.
		n.Location = ""
	}
	for _, c := range n.Children {
		c.recomputeLocation()
	}
}

// Resolve returns n's own child named name if present, else recurses into
// the parent chain; the walk stops at the root.
func (n *Node) Resolve(name string) *Node {
	if c, ok := n.Children[name]; ok {
		return c
	}
	if n.Root || n.Parent == nil {
		return nil
	}
	return n.Parent.Resolve(name)
}

// Satisfies reports whether n's installed version satisfies rangeStr. A
// malformed installed version (which should not occur for a placed Node)
// is treated as not satisfying.
func (n *Node) Satisfies(rangeStr string) bool {
	ok, err := semver.Satisfies(n.Version, rangeStr)
	return err == nil && ok
}

// ParseAlias recognizes the npm: aliasing protocol on a declared spec: a
// spec of the form "npm:X@Y" (case-insensitive prefix) names the real
// registry package X and the version requirement Y. The scoped form
// "npm:@scope/name@Y" is handled by locating the separating '@' after the
// leading one. A spec with no version tail defaults the requirement to
// "*". Non-aliased specs are returned unchanged with aliased=false.
func ParseAlias(spec string) (registryName, rawSpec string, aliased bool) {
	lower := strings.ToLower(spec)
	if !strings.HasPrefix(lower, "npm:") {
		return "", spec, false
	}
	rest := spec[len("npm:"):]
	var at int
	if strings.HasPrefix(rest, "@") {
		sep := strings.IndexByte(rest[1:], '@')
		if sep < 0 {
			return rest, "*", true
		}
		at = sep + 1
	} else {
		at = strings.IndexByte(rest, '@')
		if at < 0 {
			return rest, "*", true
		}
	}
	name := rest[:at]
	raw := rest[at+1:]
	if raw == "" {
		raw = "*"
	}
	return name, raw, true
}

// BuildEdges clears EdgesOut and rebuilds it from n.Manifest's declared
// dependency maps: production deps first, then (root only) development
// deps not already declared, then optional deps, then peer deps (peer
// deps marked optional in peerDependenciesMeta become dep.PeerOptional).
// The first field to declare a given name wins; later fields skip it.
func (n *Node) BuildEdges() {
	n.EdgesOut = map[string]*Edge{}
	m := n.Manifest

	addAll := func(deps map[string]string, t dep.Type) {
		for _, name := range manifest.SortedNames(deps) {
			if _, exists := n.EdgesOut[name]; exists {
				continue
			}
			n.addEdge(name, deps[name], t)
		}
	}

	addAll(m.Dependencies, dep.Production)
	if n.Root {
		addAll(m.DevDependencies, dep.Development)
	}
	addAll(m.OptionalDependencies, dep.Optional)

	for _, name := range manifest.SortedNames(m.PeerDependencies) {
		if _, exists := n.EdgesOut[name]; exists {
			continue
		}
		t := dep.Peer
		if m.IsPeerOptional(name) {
			t = dep.PeerOptional
		}
		n.addEdge(name, m.PeerDependencies[name], t)
	}
}

// Walk visits n and every descendant, depth-first, in alphabetical order of
// child name at each level, calling visit with each Node's depth (the root
// is depth 0).
func (n *Node) Walk(visit func(node *Node, depth int)) {
	n.walk(0, visit)
}

func (n *Node) walk(depth int, visit func(node *Node, depth int)) {
	visit(n, depth)
	names := make([]string, 0, len(n.Children))
	for name := range n.Children {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		n.Children[name].walk(depth+1, visit)
	}
}

// String renders n's subtree as an indented listing, one package per line,
// in the style of a box-drawing dependency-graph dump: each depth level adds
// two spaces of indentation and every line names the package and its
// installed version.
func (n *Node) String() string {
	var b strings.Builder
	n.Walk(func(node *Node, depth int) {
		if node.Root {
			fmt.Fprintf(&b, "%s@%s\n", orRootName(node), node.Version)
			return
		}
		label := node.Name + "@" + node.Version
		if node.Dev {
			label += " (dev)"
		}
		if node.Optional {
			label += " (optional)"
		}
		if node.Peer {
			label += " (peer)"
		}
		if node.Extraneous {
			label += " (extraneous)"
		}
		fmt.Fprintf(&b, "%s%s\n", strings.Repeat("  ", depth), label)
	})
	return b.String()
}

func orRootName(n *Node) string {
	if n.Name == "" {
		return "."
	}
	return n.Name
}

func (n *Node) addEdge(name, spec string, t dep.Type) {
	registryName, rawSpec, aliased := ParseAlias(spec)
	e := &Edge{
		From: n,
		Name: name,
		Type: t,
	}
	if aliased {
		e.RegistryName = registryName
		e.RawSpec = rawSpec
	} else {
		e.RegistryName = name
		e.RawSpec = spec
	}
	n.EdgesOut[name] = e
	e.Reload()
}
