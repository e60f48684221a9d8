package lockfile

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/npmgo/npmgo/internal/manifest"
)

// yarnRawEntry mirrors one value in a yarn-berry lockfile's top-level
// mapping: a resolved package plus its own declared dependencies.
type yarnRawEntry struct {
	Version          string            `yaml:"version"`
	Resolution       string            `yaml:"resolution"`
	Dependencies     map[string]string `yaml:"dependencies,omitempty"`
	PeerDependencies map[string]string `yaml:"peerDependencies,omitempty"`
	Checksum         string            `yaml:"checksum,omitempty"`
	LanguageName     string            `yaml:"languageName,omitempty"`
	LinkType         string            `yaml:"linkType,omitempty"`
}

// yarnDescriptor is a parsed "<name>@<protocol>:<range>" key.
type yarnDescriptor struct {
	name     string
	protocol string
	spec     string
}

func (d yarnDescriptor) String() string {
	return d.name + "@" + d.protocol + ":" + d.spec
}

// parseYarnDescriptor splits a descriptor string, keeping a scoped
// name's leading "@" out of the protocol separator search.
func parseYarnDescriptor(s string) (yarnDescriptor, error) {
	searchFrom := 0
	if strings.HasPrefix(s, "@") {
		searchFrom = 1
	}
	rest := s[searchFrom:]
	idx := strings.Index(rest, "@")
	if idx < 0 {
		return yarnDescriptor{}, fmt.Errorf("malformed yarn descriptor %q", s)
	}
	name := s[:searchFrom+idx]
	tail := s[searchFrom+idx+1:]
	colon := strings.Index(tail, ":")
	if colon < 0 {
		return yarnDescriptor{name: name, protocol: "npm", spec: tail}, nil
	}
	return yarnDescriptor{name: name, protocol: tail[:colon], spec: tail[colon+1:]}, nil
}

// descriptorFor builds the descriptor a root/transitive dependency
// range would use as a lookup key: an explicit protocol prefix in the
// range is honored verbatim, otherwise the npm protocol is assumed.
func descriptorFor(name, rangeSpec string) string {
	for _, proto := range []string{"npm:", "workspace:", "patch:", "portal:"} {
		if strings.HasPrefix(rangeSpec, proto) {
			return name + "@" + rangeSpec
		}
	}
	return name + "@npm:" + rangeSpec
}

// ParseYarnBerry parses a yarn-berry SYML lockfile into canonical
// form. root supplies the project's three declared dependency maps,
// which seed the BFS hoisting pass spec.md §4.7 describes.
func ParseYarnBerry(data []byte, root *manifest.Manifest) (*Lockfile, error) {
	var doc map[string]yarnRawEntry
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &LockfileError{Err: err}
	}

	index := map[string]yarnRawEntry{}
	descriptorsOf := map[string][]string{} // resolution -> all descriptor keys sharing it
	for key, entry := range doc {
		if key == "__metadata" {
			continue
		}
		for _, d := range strings.Split(key, ", ") {
			index[d] = entry
			descriptorsOf[entry.Resolution] = append(descriptorsOf[entry.Resolution], d)
		}
	}

	lf := &Lockfile{
		LockfileVersion: 3,
		SourceFormat:    FormatYarnBerry,
		Packages:        map[string]*Entry{"": {}},
		Opaque:          map[string]*Entry{},
	}
	if root != nil {
		lf.Name = root.Name
		lf.Version = root.Version
	}

	type frontierItem struct {
		descriptor string
		parentLoc  string
	}
	var queue []frontierItem
	seen := map[string]bool{}

	enqueueRootMap := func(deps map[string]string) {
		for name, rng := range deps {
			d := descriptorFor(name, rng)
			if !seen[d] {
				seen[d] = true
				queue = append(queue, frontierItem{descriptor: d, parentLoc: ""})
			}
		}
	}
	if root != nil {
		enqueueRootMap(root.Dependencies)
		enqueueRootMap(root.DevDependencies)
		enqueueRootMap(root.OptionalDependencies)
	}

	placed := map[string]string{} // descriptor -> location, for transitive lookups
	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]

		raw, ok := index[item.descriptor]
		if !ok {
			continue
		}
		desc, err := parseYarnDescriptor(item.descriptor)
		if err != nil {
			continue
		}

		if desc.protocol != "npm" {
			lf.Opaque[item.descriptor] = &Entry{
				Name:         desc.name,
				Version:      raw.Version,
				yarnProtocol: desc.protocol,
			}
			continue
		}

		loc := "node_modules/" + desc.name
		if _, occupied := lf.Packages[loc]; occupied {
			loc = item.parentLoc + "/node_modules/" + desc.name
		}
		placed[item.descriptor] = loc

		deps := map[string]string{}
		for depName, depRange := range raw.Dependencies {
			deps[depName] = strings.TrimPrefix(depRange, "npm:")
		}
		lf.Packages[loc] = &Entry{
			Name:                 desc.name,
			Version:              raw.Version,
			Integrity:            raw.Checksum,
			Dependencies:         deps,
			PeerDependencies:     raw.PeerDependencies,
			yarnDescriptors:      append([]string(nil), descriptorsOf[raw.Resolution]...),
		}

		for depName, depRange := range raw.Dependencies {
			childDescriptor := descriptorFor(depName, depRange)
			if seen[childDescriptor] {
				continue
			}
			seen[childDescriptor] = true
			queue = append(queue, frontierItem{descriptor: childDescriptor, parentLoc: loc})
		}
	}

	return lf, nil
}

// SerializeYarnBerry renders the canonical lockfile as a yarn-berry
// SYML document. An entry parsed from yarn.lock is keyed by the
// descriptor set it was read with, so fan-out across several ranges
// resolving to one version is written back as it was read; any other
// entry is keyed by a single name@npm:version descriptor. Preserving
// foreign checksums is best-effort (spec.md §9).
func SerializeYarnBerry(lf *Lockfile) []byte {
	var b strings.Builder
	b.WriteString("# This file is generated by npmgo. Manual edits may be lost.\n\n")
	b.WriteString("__metadata:\n  version: 8\n  cacheKey: 10\n\n")

	var entries []yarnNamedEntry
	for loc, e := range lf.Packages {
		if loc == "" {
			continue
		}
		entries = append(entries, yarnNamedEntry{loc: loc, entry: e})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entryName(entries[i]) < entryName(entries[j])
	})

	for _, ne := range entries {
		e := ne.entry
		name := e.Name
		if name == "" {
			parts := locationParts(ne.loc)
			name = parts[len(parts)-1]
		}
		descriptor := name + "@npm:" + e.Version
		if len(e.yarnDescriptors) > 0 {
			descriptor = strings.Join(e.yarnDescriptors, ", ")
		}
		fmt.Fprintf(&b, "%s:\n", yarnQuoteKey(descriptor))
		fmt.Fprintf(&b, "  version: %s\n", yarnQuoteValue(e.Version))
		fmt.Fprintf(&b, "  resolution: %s\n", yarnQuoteValue(name+"@npm:"+e.Version))
		if len(e.Dependencies) > 0 {
			b.WriteString("  dependencies:\n")
			for _, depName := range sortedKeys(e.Dependencies) {
				fmt.Fprintf(&b, "    %s: %s\n", yarnQuoteKey(depName), yarnQuoteValue("npm:"+e.Dependencies[depName]))
			}
		}
		if len(e.PeerDependencies) > 0 {
			b.WriteString("  peerDependencies:\n")
			for _, depName := range sortedKeys(e.PeerDependencies) {
				fmt.Fprintf(&b, "    %s: %s\n", yarnQuoteKey(depName), yarnQuoteValue(e.PeerDependencies[depName]))
			}
		}
		if e.Integrity != "" {
			fmt.Fprintf(&b, "  checksum: %s\n", yarnQuoteValue(e.Integrity))
		}
		b.WriteString("  languageName: node\n")
		b.WriteString("  linkType: hard\n\n")
	}
	return []byte(b.String())
}

type yarnNamedEntry struct {
	loc   string
	entry *Entry
}

func entryName(ne yarnNamedEntry) string {
	if ne.entry.Name != "" {
		return ne.entry.Name
	}
	parts := locationParts(ne.loc)
	return parts[len(parts)-1]
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// yarnNeedsQuoting reports whether s is empty, begins with '-', parses
// as a number, or contains any of the characters spec.md §4.7 names.
func yarnNeedsQuoting(s string) bool {
	if s == "" {
		return true
	}
	if s[0] == '-' {
		return true
	}
	if _, err := strconv.ParseFloat(s, 64); err == nil {
		return true
	}
	return strings.ContainsAny(s, `:@/#{}[]|>*&!%'"`)
}

func yarnQuote(s string) string {
	if !yarnNeedsQuoting(s) {
		return s
	}
	escaped := strings.ReplaceAll(s, `"`, `\"`)
	return `"` + escaped + `"`
}

func yarnQuoteKey(s string) string   { return yarnQuote(s) }
func yarnQuoteValue(s string) string { return yarnQuote(s) }
