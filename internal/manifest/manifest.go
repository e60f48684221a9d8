// Package manifest reads and writes package.json-shaped project manifests:
// the root project's own manifest and the per-version manifests embedded in
// registry packuments and lockfile entries.
package manifest

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"
)

// PeerMeta is the peerDependenciesMeta entry for one peer dependency name.
type PeerMeta struct {
	Optional bool `json:"optional,omitempty"`
}

// Manifest is the subset of package.json this program reads and writes.
// Unknown fields are preserved in Extra so a round-tripped manifest does not
// lose data the program doesn't understand.
type Manifest struct {
	Name        string            `json:"name,omitempty"`
	Version     string            `json:"version,omitempty"`
	Description string            `json:"description,omitempty"`
	Main        string            `json:"main,omitempty"`
	License     string            `json:"license,omitempty"`

	Dependencies         map[string]string   `json:"dependencies,omitempty"`
	DevDependencies      map[string]string   `json:"devDependencies,omitempty"`
	OptionalDependencies map[string]string   `json:"optionalDependencies,omitempty"`
	PeerDependencies     map[string]string   `json:"peerDependencies,omitempty"`
	PeerDependenciesMeta map[string]PeerMeta `json:"peerDependenciesMeta,omitempty"`

	// Bin is kept raw because package.json allows either a single string
	// (the package's sole executable, named after the package) or an
	// object mapping command names to scripts; use BinEntries to get the
	// normalized map form.
	Bin     json.RawMessage   `json:"bin,omitempty"`
	Engines map[string]string `json:"engines,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// Parse decodes raw package.json bytes into a Manifest.
func Parse(raw []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	var extra map[string]json.RawMessage
	if err := json.Unmarshal(raw, &extra); err != nil {
		return nil, err
	}
	for _, known := range []string{
		"name", "version", "description", "main", "license",
		"dependencies", "devDependencies", "optionalDependencies",
		"peerDependencies", "peerDependenciesMeta", "bin", "engines",
	} {
		delete(extra, known)
	}
	m.Extra = extra
	return &m, nil
}

// DependencyMap returns a single map from dependency name to its declared
// spec string for the given field, where field is one of "dependencies",
// "devDependencies", "optionalDependencies", "peerDependencies".
func (m *Manifest) DependencyMap(field string) map[string]string {
	switch field {
	case "dependencies":
		return m.Dependencies
	case "devDependencies":
		return m.DevDependencies
	case "optionalDependencies":
		return m.OptionalDependencies
	case "peerDependencies":
		return m.PeerDependencies
	default:
		return nil
	}
}

// IsPeerOptional reports whether name is declared optional in
// peerDependenciesMeta.
func (m *Manifest) IsPeerOptional(name string) bool {
	if m.PeerDependenciesMeta == nil {
		return false
	}
	return m.PeerDependenciesMeta[name].Optional
}

// SetDependency records name at spec under the save target field ("dependencies",
// "devDependencies", "optionalDependencies", "peerDependencies"), creating the
// map if necessary and removing any prior declaration of name in the other
// three fields (a package is saved to exactly one dependency field).
func (m *Manifest) SetDependency(field, name, spec string) {
	m.RemoveDependency(name)
	switch field {
	case "dependencies":
		if m.Dependencies == nil {
			m.Dependencies = map[string]string{}
		}
		m.Dependencies[name] = spec
	case "devDependencies":
		if m.DevDependencies == nil {
			m.DevDependencies = map[string]string{}
		}
		m.DevDependencies[name] = spec
	case "optionalDependencies":
		if m.OptionalDependencies == nil {
			m.OptionalDependencies = map[string]string{}
		}
		m.OptionalDependencies[name] = spec
	case "peerDependencies":
		if m.PeerDependencies == nil {
			m.PeerDependencies = map[string]string{}
		}
		m.PeerDependencies[name] = spec
	}
}

// BinEntries normalizes the bin field to a command-name -> script-path
// map regardless of which package.json form (string or object) it was
// declared in. A bare string is keyed under the package's own
// (unscoped) name, matching npm's own behavior.
func (m *Manifest) BinEntries() map[string]string {
	if len(m.Bin) == 0 {
		return nil
	}
	var script string
	if err := json.Unmarshal(m.Bin, &script); err == nil {
		name := m.Name
		if idx := strings.LastIndexByte(name, '/'); idx >= 0 {
			name = name[idx+1:]
		}
		if name == "" {
			return nil
		}
		return map[string]string{name: script}
	}
	var obj map[string]string
	if err := json.Unmarshal(m.Bin, &obj); err == nil {
		return obj
	}
	return nil
}

// RemoveDependency deletes name from every dependency field it appears in.
func (m *Manifest) RemoveDependency(name string) {
	delete(m.Dependencies, name)
	delete(m.DevDependencies, name)
	delete(m.OptionalDependencies, name)
	delete(m.PeerDependencies, name)
	delete(m.PeerDependenciesMeta, name)
}

// Marshal serializes the manifest back to package.json, 2-space indented,
// with a trailing newline, matching npm's own manifest formatting. Extra
// fields are written after the known ones, in key order.
func (m *Manifest) Marshal() ([]byte, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(m.Extra))
	for k := range m.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		kb, _ := json.Marshal(k)
		if len(b) > 2 {
			kb = append([]byte{','}, kb...)
		}
		b = append(append(append(append(b[:len(b)-1], kb...), ':'), m.Extra[k]...), '}')
	}
	var out bytes.Buffer
	if err := json.Indent(&out, b, "", "  "); err != nil {
		return nil, err
	}
	return append(out.Bytes(), '\n'), nil
}

// SortedNames returns the names declared in deps, alphabetically, for
// deterministic iteration when building edges.
func SortedNames(deps map[string]string) []string {
	names := make([]string, 0, len(deps))
	for n := range deps {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
