package main

import (
	"github.com/npmgo/npmgo/internal/lockfile"
	"github.com/spf13/cobra"
)

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Resolve package.json and bring node_modules up to date",
	RunE:  runInstall,
}

func runInstall(cmd *cobra.Command, args []string) error {
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
	return p.reifyAndSave(cmd.Context(), client, inv, diff)
}
