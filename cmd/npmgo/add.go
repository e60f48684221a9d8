package main

import (
	"fmt"
	"strings"

	"github.com/npmgo/npmgo/internal/lockfile"
	"github.com/spf13/cobra"
)

var addCmd = &cobra.Command{
	Use:   "add <spec>...",
	Short: "Declare one or more new dependencies and install them",
	Long: `add accepts one or more package specs in the grammar "name",
"name@range", "@scope/name@range", "alias@npm:name@range" or
"alias@npm:@scope/name@range", records each under the save-target field
(dependencies by default; see --save-dev/--save-optional/--save-peer),
and resolves/installs the resulting tree.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAdd,
}

func init() {
	addCmd.Flags().BoolVar(&cfg.SaveDev, "save-dev", false, "save to devDependencies")
	addCmd.Flags().BoolVar(&cfg.SaveOptional, "save-optional", false, "save to optionalDependencies")
	addCmd.Flags().BoolVar(&cfg.SavePeer, "save-peer", false, "save to peerDependencies")
	addCmd.Flags().BoolVar(&cfg.NoSave, "no-save", false, "resolve and install without recording the dependency in package.json")
}

func runAdd(cmd *cobra.Command, args []string) error {
	p, err := loadProject()
	if err != nil {
		return err
	}

	field := cfg.saveField()
	for _, arg := range args {
		name, spec := parsePackageArg(arg)
		if name == "" {
			return fmt.Errorf("invalid package spec %q", arg)
		}
		p.manifest.SetDependency(field, name, spec)
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
	if cfg.NoSave {
		return nil
	}
	return p.saveManifest()
}

// parsePackageArg splits a CLI package spec into the dependency name
// npmgo records it under and the raw spec string stored alongside it
// (itself possibly an "npm:" alias target). A bare name with no
// version part is recorded against the "latest" dist-tag.
func parsePackageArg(arg string) (name, spec string) {
	rest := arg
	scoped := strings.HasPrefix(rest, "@")
	if scoped {
		rest = rest[1:]
	}
	idx := strings.IndexByte(rest, '@')
	if idx < 0 {
		if scoped {
			return "@" + rest, "latest"
		}
		return rest, "latest"
	}
	name = rest[:idx]
	spec = rest[idx+1:]
	if scoped {
		name = "@" + name
	}
	if spec == "" {
		spec = "latest"
	}
	return name, spec
}
