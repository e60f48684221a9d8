package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/npmgo/npmgo/internal/lockfile"
	"github.com/npmgo/npmgo/internal/manifest"
	"github.com/npmgo/npmgo/internal/registry"
	"github.com/npmgo/npmgo/internal/reify"
	"github.com/npmgo/npmgo/internal/tree"
)

// project bundles everything every subcommand needs about the working
// directory: its manifest, its root Node, and whatever lockfile (and
// under what filename/format) was already on disk.
type project struct {
	dir          string
	manifestPath string
	manifest     *manifest.Manifest
	root         *tree.Node
	lockfile     *lockfile.Lockfile
	lockFilename string
}

func loadProject() (*project, error) {
	dir, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	manifestPath := filepath.Join(dir, "package.json")
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("reading package.json: %w", err)
	}
	m, err := manifest.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing package.json: %w", err)
	}

	root := tree.NewRoot(dir, m)
	root.BuildEdges()

	lf, filename, err := lockfile.Load(dir, m)
	if err != nil {
		return nil, err
	}

	return &project{
		dir:          dir,
		manifestPath: manifestPath,
		manifest:     m,
		root:         root,
		lockfile:     lf,
		lockFilename: filename,
	}, nil
}

// reifyAndSave applies diff against p's tree and persists the resulting
// lockfile; it does not write the root manifest (see saveManifest). client is
// reused from whatever resolution step already ran, so the packument
// cache built up during resolution also serves the reifier's tarball
// URL lookups.
func (p *project) reifyAndSave(ctx context.Context, client *registry.Client, inv *tree.Inventory, diff *lockfile.DiffResult) error {
	r := reify.New(client, p.root)
	r.Concurrency = cfg.Concurrency
	r.Progress = newProgress(false)

	if err := r.Reify(ctx, diff, inv); err != nil {
		return err
	}

	newLF := lockfile.ApplyDiff(p.lockfile, p.root, inv, diff)
	newLF.SourceFormat = lockfileSourceFormat(p.lockfile)
	filename := lockfile.OutputFilename(p.lockFilename)
	if err := lockfile.Save(p.dir, filename, newLF); err != nil {
		return fmt.Errorf("writing %s: %w", filename, err)
	}
	return nil
}

func lockfileSourceFormat(prior *lockfile.Lockfile) lockfile.Format {
	if prior == nil {
		return lockfile.FormatNPMv3
	}
	return prior.SourceFormat
}

func (p *project) saveManifest() error {
	data, err := p.manifest.Marshal()
	if err != nil {
		return err
	}
	return os.WriteFile(p.manifestPath, data, 0o644)
}
