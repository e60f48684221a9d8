package main

import (
	"github.com/npmgo/npmgo/internal/lockfile"
	"github.com/spf13/cobra"
)

var updateCmd = &cobra.Command{
	Use:   "update [packages...]",
	Short: "Re-resolve dependency ranges to their newest satisfying version",
	Long: `update re-resolves every declared range to the newest version that still
satisfies it. With no arguments every installed package is eligible; given
one or more package names, only those are allowed to change version — the
rest of the tree is left exactly as the lockfile recorded it.`,
	RunE: runUpdate,
}

func runUpdate(cmd *cobra.Command, args []string) error {
	p, err := loadProject()
	if err != nil {
		return err
	}

	client := cfg.newRegistryClient()
	b := cfg.newBuilder(client)
	inv, err := b.BuildIdealTree(cmd.Context(), p.root)
	if err != nil {
		return err
	}

	diff := lockfile.Diff(inv, p.lockfile)
	if len(args) > 0 {
		names := make(map[string]bool, len(args))
		for _, a := range args {
			names[a] = true
		}
		diff = filterDiffByName(diff, names)
	}
	return p.reifyAndSave(cmd.Context(), client, inv, diff)
}

// filterDiffByName narrows a DiffResult down to only the entries whose
// Node name is in names, so a targeted `update <name>` leaves every
// other package exactly where it was.
func filterDiffByName(diff *lockfile.DiffResult, names map[string]bool) *lockfile.DiffResult {
	out := &lockfile.DiffResult{}
	for _, n := range diff.Add {
		if names[n.Name] {
			out.Add = append(out.Add, n)
		}
	}
	for _, u := range diff.Update {
		if names[u.Node.Name] {
			out.Update = append(out.Update, u)
		}
	}
	for _, loc := range diff.Remove {
		if names[lockfile.BaseName(loc)] {
			out.Remove = append(out.Remove, loc)
		}
	}
	return out
}
