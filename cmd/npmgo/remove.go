package main

import (
	"github.com/npmgo/npmgo/internal/lockfile"
	"github.com/spf13/cobra"
)

var removeCmd = &cobra.Command{
	Use:     "remove <name>...",
	Aliases: []string{"rm", "uninstall"},
	Short:   "Drop one or more dependencies from package.json and the tree",
	Args:    cobra.MinimumNArgs(1),
	RunE:    runRemove,
}

func runRemove(cmd *cobra.Command, args []string) error {
	p, err := loadProject()
	if err != nil {
		return err
	}

	for _, name := range args {
		p.manifest.RemoveDependency(name)
	}
	p.root.BuildEdges()

	client := cfg.newRegistryClient()
	b := cfg.newBuilder(client)
	inv, err := b.BuildIdealTree(cmd.Context(), p.root)
	if err != nil {
		return err
	}

	diff := lockfile.Diff(inv, p.lockfile)
	if err := p.reifyAndSave(cmd.Context(), client, inv, diff); err != nil {
		return err
	}
	return p.saveManifest()
}
