package main

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/npmgo/npmgo/internal/lockfile"
	"github.com/spf13/cobra"
)

var ciCmd = &cobra.Command{
	Use:   "ci",
	Short: "Install exactly what the lockfile records, without resolving ranges",
	RunE:  runCI,
}

func runCI(cmd *cobra.Command, args []string) error {
	p, err := loadProject()
	if err != nil {
		return err
	}
	if p.lockfile == nil {
		return errors.New("ci requires an existing lockfile (package-lock.json, npm-shrinkwrap.json or yarn.lock)")
	}

	// npm ci always starts from a clean slate: wipe any existing
	// node_modules rather than diffing against it, since the lockfile
	// alone dictates what the tree will become.
	if err := os.RemoveAll(filepath.Join(p.dir, "node_modules")); err != nil {
		return err
	}

	inv := lockfile.Tree(p.root, p.lockfile)
	diff := &lockfile.DiffResult{}
	for _, n := range inv.All() {
		if !n.Root {
			diff.Add = append(diff.Add, n)
		}
	}

	client := cfg.newRegistryClient()
	return p.reifyAndSave(cmd.Context(), client, inv, diff)
}
