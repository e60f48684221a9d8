package lockfile

import (
	"os"
	"path/filepath"

	"github.com/npmgo/npmgo/internal/manifest"
	"github.com/npmgo/npmgo/internal/tree"
)

// UpdateEntry is one location present in both the ideal tree and the
// prior lockfile, but at a different version.
type UpdateEntry struct {
	Node *tree.Node
	From string
}

// DiffResult is the set-difference between an ideal tree and a
// previously recorded lockfile, over install locations (spec.md
// §4.7/§4.8).
type DiffResult struct {
	Remove []string
	Add    []*tree.Node
	Update []UpdateEntry
}

// Diff compares inv (the ideal tree's inventory) against lf (the
// lockfile loaded from disk, or nil if none existed). Locations only
// in lf go to Remove; locations only in inv go to Add; locations in
// both at different versions go to Update.
func Diff(inv *tree.Inventory, lf *Lockfile) *DiffResult {
	result := &DiffResult{}

	treeByLoc := map[string]*tree.Node{}
	for _, n := range inv.All() {
		if n.Root {
			continue
		}
		treeByLoc[n.Location] = n
	}

	var lockPackages map[string]*Entry
	if lf != nil {
		lockPackages = lf.Packages
	}

	for loc := range lockPackages {
		if loc == "" {
			continue
		}
		if _, ok := treeByLoc[loc]; !ok {
			result.Remove = append(result.Remove, loc)
		}
	}
	for loc, n := range treeByLoc {
		entry, ok := lockPackages[loc]
		if !ok {
			result.Add = append(result.Add, n)
			continue
		}
		if entry.Version != n.Version {
			result.Update = append(result.Update, UpdateEntry{Node: n, From: entry.Version})
		}
	}
	return result
}

// VerifyIssueKind enumerates the problems Verify can find at a
// location, per spec.md §4.7.
type VerifyIssueKind int

const (
	Missing VerifyIssueKind = iota + 1
	MissingManifest
	VersionMismatch
	InvalidManifest
)

func (k VerifyIssueKind) String() string {
	switch k {
	case Missing:
		return "missing"
	case MissingManifest:
		return "missing_manifest"
	case VersionMismatch:
		return "version_mismatch"
	case InvalidManifest:
		return "invalid_manifest"
	default:
		return "unknown"
	}
}

// VerifyIssue reports one discrepancy between what a lockfile records
// and what is actually present on disk at a location.
type VerifyIssue struct {
	Location string
	Kind     VerifyIssueKind
	Detail   string
}

// Verify checks, for every non-root location lf records, that the
// corresponding directory exists under rootPath, contains a readable
// package.json, and that manifest agrees with the recorded version.
func Verify(rootPath string, lf *Lockfile) []VerifyIssue {
	var issues []VerifyIssue
	for loc, entry := range lf.Packages {
		if loc == "" {
			continue
		}
		dir := filepath.Join(rootPath, loc)
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			issues = append(issues, VerifyIssue{Location: loc, Kind: Missing})
			continue
		}

		manifestPath := filepath.Join(dir, "package.json")
		data, err := os.ReadFile(manifestPath)
		if err != nil {
			issues = append(issues, VerifyIssue{Location: loc, Kind: MissingManifest})
			continue
		}

		m, err := manifest.Parse(data)
		if err != nil {
			issues = append(issues, VerifyIssue{Location: loc, Kind: InvalidManifest, Detail: err.Error()})
			continue
		}
		if m.Version != entry.Version {
			issues = append(issues, VerifyIssue{
				Location: loc,
				Kind:     VersionMismatch,
				Detail:   m.Version + " != " + entry.Version,
			})
		}
	}
	return issues
}
