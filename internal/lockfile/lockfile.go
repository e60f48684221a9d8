// Package lockfile normalizes npm's three historical lockfile schemas
// (v1/v2/v3) and yarn-berry's SYML schema into one canonical
// representation, and serializes that representation back to any of
// the four wire formats.
package lockfile

import (
	"fmt"

	"github.com/npmgo/npmgo/internal/manifest"
)

// Format identifies which on-disk schema a lockfile was read from or
// should be written as.
type Format int

const (
	FormatNPMv1 Format = iota + 1
	FormatNPMv2
	FormatNPMv3
	FormatYarnBerry
)

// Filenames in detection-priority order (spec.md §4.7): a shrinkwrap
// file, if present, always wins over package-lock.json, which in turn
// wins over yarn.lock.
var DetectionOrder = []string{"npm-shrinkwrap.json", "package-lock.json", "yarn.lock"}

// Entry is one package's canonical lockfile record, keyed by location
// in the owning Lockfile's Packages map.
type Entry struct {
	// Name is the package's declared name; when empty, the map key's
	// basename is used. The npm parsers keep the name the lockfile
	// records, and the yarn-berry parser sets it on every entry.
	Name                 string
	Version              string
	Resolved             string
	Integrity            string
	Dev                  bool
	Optional             bool
	Peer                 bool
	Dependencies         map[string]string
	DevDependencies      map[string]string
	OptionalDependencies map[string]string
	PeerDependencies     map[string]string
	PeerDependenciesMeta map[string]manifest.PeerMeta
	Engines              map[string]string
	Bin                  map[string]string
	License              string
	Funding              interface{}

	// yarnDescriptors preserves the original comma-separated set of
	// descriptor keys this entry was parsed from, so re-serializing to
	// yarn-berry reproduces fan-out across multiple ranges resolving to
	// the same version. Empty for lockfiles not read from yarn.lock.
	yarnDescriptors []string
	// yarnProtocol records a non-npm resolution protocol (workspace:,
	// patch:, portal:) for entries that must round-trip opaquely.
	yarnProtocol string
}

// Lockfile is the canonical, format-independent representation
// (spec.md §4.7): a flat map from install location to Entry, the
// empty string denoting the project root.
type Lockfile struct {
	Name            string
	Version         string
	LockfileVersion int
	Packages        map[string]*Entry

	// Opaque holds yarn-berry entries resolved through a non-npm
	// protocol (workspace:, patch:, portal:), keyed by their original
	// descriptor string. Per spec.md §4.7 these are preserved verbatim
	// but excluded from node_modules placement.
	Opaque map[string]*Entry

	// SourceFormat records which on-disk schema this value was parsed
	// from (zero value if constructed in memory), used by round-trip
	// helpers that prefer to serialize back to the same schema.
	SourceFormat Format
}

// New returns an empty canonical lockfile for the given project name
// and version, with only the root entry present.
func New(name, version string) *Lockfile {
	return &Lockfile{
		Name:            name,
		Version:         version,
		LockfileVersion: 3,
		Packages:        map[string]*Entry{"": {Version: version}},
		Opaque:          map[string]*Entry{},
	}
}

// Root returns the canonical root entry, creating an empty one if
// absent so callers can always dereference the result.
func (l *Lockfile) Root() *Entry {
	if e, ok := l.Packages[""]; ok {
		return e
	}
	e := &Entry{Version: l.Version}
	l.Packages[""] = e
	return e
}

// LockfileError reports a malformed lockfile that could not be parsed
// into the canonical form. Per spec.md's error taxonomy this aborts
// the calling operation before any disk mutation.
type LockfileError struct {
	Path string
	Err  error
}

func (e *LockfileError) Error() string {
	return fmt.Sprintf("malformed lockfile %s: %v", e.Path, e.Err)
}

func (e *LockfileError) Unwrap() error { return e.Err }
