package main

import (
	"errors"
	"fmt"

	"github.com/npmgo/npmgo/internal/lockfile"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "Print the resolved dependency tree",
	RunE:    runList,
}

func runList(cmd *cobra.Command, args []string) error {
	p, err := loadProject()
	if err != nil {
		return err
	}
	if p.lockfile == nil {
		return errors.New("list requires an existing lockfile; run install first")
	}

	// Tree's side effect is what we actually want here: it wires
	// p.root.Children from the lockfile so String() has something to walk.
	_ = lockfile.Tree(p.root, p.lockfile)
	fmt.Print(p.root.String())
	return nil
}
