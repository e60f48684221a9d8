package lockfile

import (
	"encoding/json"
	"strings"

	"github.com/npmgo/npmgo/internal/manifest"
)

// npmRawPackageEntry mirrors one value of a v2/v3 "packages" block, and
// also the output shape for v3 serialization. Field order matters: it
// is the key order spec.md §4.7 mandates for canonical→v3 output.
type npmRawPackageEntry struct {
	Name                 string                        `json:"name,omitempty"`
	Version              string                        `json:"version,omitempty"`
	Resolved             string                        `json:"resolved,omitempty"`
	Integrity            string                        `json:"integrity,omitempty"`
	Dev                  bool                          `json:"dev,omitempty"`
	Optional             bool                          `json:"optional,omitempty"`
	Peer                 bool                          `json:"peer,omitempty"`
	Dependencies         map[string]string             `json:"dependencies,omitempty"`
	DevDependencies      map[string]string             `json:"devDependencies,omitempty"`
	OptionalDependencies map[string]string             `json:"optionalDependencies,omitempty"`
	PeerDependencies     map[string]string             `json:"peerDependencies,omitempty"`
	PeerDependenciesMeta map[string]manifest.PeerMeta  `json:"peerDependenciesMeta,omitempty"`
	Engines              map[string]string             `json:"engines,omitempty"`
	Bin                  map[string]string             `json:"bin,omitempty"`
	License              string                        `json:"license,omitempty"`
	Funding              interface{}                   `json:"funding,omitempty"`
}

// npmRawDepEntry mirrors one value of a v1 nested "dependencies" tree.
type npmRawDepEntry struct {
	Version      string                    `json:"version,omitempty"`
	Resolved     string                    `json:"resolved,omitempty"`
	Integrity    string                    `json:"integrity,omitempty"`
	Dev          bool                      `json:"dev,omitempty"`
	Optional     bool                      `json:"optional,omitempty"`
	Requires     map[string]string         `json:"requires,omitempty"`
	Dependencies map[string]npmRawDepEntry `json:"dependencies,omitempty"`
}

type npmRawFile struct {
	Name            string                         `json:"name,omitempty"`
	Version         string                         `json:"version,omitempty"`
	LockfileVersion int                             `json:"lockfileVersion,omitempty"`
	Requires        bool                            `json:"requires,omitempty"`
	Packages        map[string]npmRawPackageEntry   `json:"packages,omitempty"`
	Dependencies    map[string]npmRawDepEntry       `json:"dependencies,omitempty"`
}

// detectNPMVersion implements spec.md §4.7's version-detection rules.
// presentKeys tells it which top-level keys the raw JSON actually
// contained, since a zero lockfileVersion is ambiguous with an absent
// one.
func detectNPMVersion(raw *npmRawFile, presentKeys map[string]bool) int {
	if presentKeys["lockfileVersion"] {
		return raw.LockfileVersion
	}
	hasPackages := presentKeys["packages"]
	hasDeps := presentKeys["dependencies"]
	switch {
	case hasPackages && !hasDeps:
		return 3
	case hasPackages && hasDeps:
		return 2
	case hasDeps:
		return 1
	default:
		return 3
	}
}

// ParseNPM parses an npm-schema lockfile (npm-shrinkwrap.json,
// package-lock.json, or any v1/v2/v3 document) into canonical form.
func ParseNPM(data []byte) (*Lockfile, error) {
	var presence map[string]json.RawMessage
	if err := json.Unmarshal(data, &presence); err != nil {
		return nil, &LockfileError{Err: err}
	}
	present := make(map[string]bool, len(presence))
	for k := range presence {
		present[k] = true
	}

	var raw npmRawFile
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &LockfileError{Err: err}
	}

	version := detectNPMVersion(&raw, present)
	lf := &Lockfile{
		Name:            raw.Name,
		Version:         raw.Version,
		LockfileVersion: version,
		Packages:        map[string]*Entry{},
	}
	switch version {
	case 1:
		lf.SourceFormat = FormatNPMv1
		walkV1Tree(lf, "", raw.Dependencies)
	default:
		if version == 2 {
			lf.SourceFormat = FormatNPMv2
		} else {
			lf.SourceFormat = FormatNPMv3
		}
		for loc, pe := range raw.Packages {
			lf.Packages[loc] = entryFromRawPackage(pe)
		}
	}
	if _, ok := lf.Packages[""]; !ok {
		lf.Packages[""] = &Entry{Version: raw.Version}
	}
	return lf, nil
}

func entryFromRawPackage(pe npmRawPackageEntry) *Entry {
	return &Entry{
		Name:                 pe.Name,
		Version:              pe.Version,
		Resolved:             pe.Resolved,
		Integrity:            pe.Integrity,
		Dev:                  pe.Dev,
		Optional:             pe.Optional,
		Peer:                 pe.Peer,
		Dependencies:         pe.Dependencies,
		DevDependencies:      pe.DevDependencies,
		OptionalDependencies: pe.OptionalDependencies,
		PeerDependencies:     pe.PeerDependencies,
		PeerDependenciesMeta: pe.PeerDependenciesMeta,
		Engines:              pe.Engines,
		Bin:                  pe.Bin,
		License:              pe.License,
		Funding:              pe.Funding,
	}
}

func (e *Entry) toRawPackage() npmRawPackageEntry {
	return npmRawPackageEntry{
		Name:                 e.Name,
		Version:              e.Version,
		Resolved:             e.Resolved,
		Integrity:            e.Integrity,
		Dev:                  e.Dev,
		Optional:             e.Optional,
		Peer:                 e.Peer,
		Dependencies:         e.Dependencies,
		DevDependencies:      e.DevDependencies,
		OptionalDependencies: e.OptionalDependencies,
		PeerDependencies:     e.PeerDependencies,
		PeerDependenciesMeta: e.PeerDependenciesMeta,
		Engines:              e.Engines,
		Bin:                  e.Bin,
		License:              e.License,
		Funding:              e.Funding,
	}
}

// walkV1Tree recurses npm v1's nested dependencies tree, emitting one
// flat canonical entry per node at its "node_modules/a/node_modules/b"
// location, and folding "requires" into canonical Dependencies.
func walkV1Tree(lf *Lockfile, parentLoc string, deps map[string]npmRawDepEntry) {
	for name, d := range deps {
		loc := childLockfileLocation(parentLoc, name)
		lf.Packages[loc] = &Entry{
			Version:      d.Version,
			Resolved:     d.Resolved,
			Integrity:    d.Integrity,
			Dev:          d.Dev,
			Optional:     d.Optional,
			Dependencies: d.Requires,
		}
		if len(d.Dependencies) > 0 {
			walkV1Tree(lf, loc, d.Dependencies)
		}
	}
}

func childLockfileLocation(parentLoc, name string) string {
	if parentLoc == "" {
		return "node_modules/" + name
	}
	return parentLoc + "/node_modules/" + name
}

// locationParts splits a canonical location into its chain of package
// names, e.g. "node_modules/a/node_modules/b" -> ["a", "b"].
func locationParts(loc string) []string {
	if loc == "" {
		return nil
	}
	segments := strings.Split(loc, "/node_modules/")
	segments[0] = strings.TrimPrefix(segments[0], "node_modules/")
	return segments
}

// SerializeV3 renders the canonical lockfile as a v3 package-lock.json
// document: a flat "packages" block only, pruned of zero-value fields,
// with the field order npmRawPackageEntry declares.
func SerializeV3(lf *Lockfile) ([]byte, error) {
	out := struct {
		Name            string                         `json:"name,omitempty"`
		Version         string                         `json:"version,omitempty"`
		LockfileVersion int                             `json:"lockfileVersion"`
		Requires        bool                            `json:"requires,omitempty"`
		Packages        map[string]npmRawPackageEntry   `json:"packages"`
	}{
		Name:            lf.Name,
		Version:         lf.Version,
		LockfileVersion: 3,
		Requires:        true,
		Packages:        map[string]npmRawPackageEntry{},
	}
	for loc, e := range lf.Packages {
		out.Packages[loc] = e.toRawPackage()
	}
	return marshalWithTrailingNewline(out)
}

// SerializeV2 emits the union of a v3 packages block and a v1 nested
// dependencies block, with lockfileVersion=2 and requires=true.
func SerializeV2(lf *Lockfile) ([]byte, error) {
	out := struct {
		Name            string                        `json:"name,omitempty"`
		Version         string                        `json:"version,omitempty"`
		LockfileVersion int                            `json:"lockfileVersion"`
		Requires        bool                           `json:"requires"`
		Packages        map[string]npmRawPackageEntry  `json:"packages"`
		Dependencies    map[string]npmRawDepEntry      `json:"dependencies,omitempty"`
	}{
		Name:            lf.Name,
		Version:         lf.Version,
		LockfileVersion: 2,
		Requires:        true,
		Packages:        map[string]npmRawPackageEntry{},
	}
	for loc, e := range lf.Packages {
		out.Packages[loc] = e.toRawPackage()
	}
	out.Dependencies = buildV1Tree(lf)
	return marshalWithTrailingNewline(out)
}

// SerializeV1 rebuilds the pre-v2 nested "dependencies" tree from
// canonical locations, splitting each on "/node_modules/" and emitting
// "requires" from canonical Dependencies.
func SerializeV1(lf *Lockfile) ([]byte, error) {
	out := struct {
		Name            string                    `json:"name,omitempty"`
		Version         string                    `json:"version,omitempty"`
		LockfileVersion int                        `json:"lockfileVersion"`
		Requires        bool                       `json:"requires"`
		Dependencies    map[string]npmRawDepEntry `json:"dependencies,omitempty"`
	}{
		Name:            lf.Name,
		Version:         lf.Version,
		LockfileVersion: 1,
		Requires:        true,
		Dependencies:    buildV1Tree(lf),
	}
	return marshalWithTrailingNewline(out)
}

// buildV1Tree reconstructs the nested dependency tree that SerializeV1
// and SerializeV2 both need, from the flat canonical packages map.
func buildV1Tree(lf *Lockfile) map[string]npmRawDepEntry {
	root := map[string]npmRawDepEntry{}
	for loc, e := range lf.Packages {
		if loc == "" {
			continue
		}
		parts := locationParts(loc)
		insertV1Node(root, parts, e)
	}
	return root
}

func insertV1Node(level map[string]npmRawDepEntry, parts []string, e *Entry) {
	name := parts[0]
	node, ok := level[name]
	if !ok {
		node = npmRawDepEntry{}
	}
	if len(parts) == 1 {
		node.Version = e.Version
		node.Resolved = e.Resolved
		node.Integrity = e.Integrity
		node.Dev = e.Dev
		node.Optional = e.Optional
		node.Requires = e.Dependencies
		level[name] = node
		return
	}
	if node.Dependencies == nil {
		node.Dependencies = map[string]npmRawDepEntry{}
	}
	insertV1Node(node.Dependencies, parts[1:], e)
	level[name] = node
}

func marshalWithTrailingNewline(v interface{}) ([]byte, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}
