// Package fsys is the filesystem writer: it materializes a Node's
// files on disk from a downloaded tarball, removes a Node's files, and
// manages the shared node_modules/.bin executable shims (spec.md §4.9).
package fsys

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/npmgo/npmgo/internal/manifest"
	"github.com/npmgo/npmgo/internal/tree"
)

// RealPath returns n's absolute filesystem location under root's
// project directory.
func RealPath(root, n *tree.Node) string {
	if n.Root {
		return root.RootPath
	}
	return filepath.Join(root.RootPath, filepath.FromSlash(n.Location))
}

// WriteNode ensures n's parent directory exists, removes whatever
// previously occupied its destination, and extracts tarball (a gzipped
// tar, as npm registries serve) into it, stripping the single
// conventional top-level directory every npm tarball wraps its
// contents in (usually "package/").
func WriteNode(root, n *tree.Node, tarball []byte) error {
	dest := RealPath(root, n)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("fsys: creating parent of %s: %w", dest, err)
	}
	if err := os.RemoveAll(dest); err != nil {
		return fmt.Errorf("fsys: clearing %s: %w", dest, err)
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return fmt.Errorf("fsys: creating %s: %w", dest, err)
	}

	gz, err := gzip.NewReader(bytes.NewReader(tarball))
	if err != nil {
		return fmt.Errorf("fsys: opening tarball for %s: %w", n.Location, err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		h, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("fsys: reading tarball for %s: %w", n.Location, err)
		}
		rel := stripTopLevelDir(h.Name)
		if rel == "" {
			continue
		}
		target := filepath.Join(dest, filepath.FromSlash(rel))
		if !withinDir(dest, target) {
			return fmt.Errorf("fsys: tar entry %q escapes install directory", h.Name)
		}

		switch h.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			mode := h.FileInfo().Mode().Perm()
			if mode == 0 {
				mode = 0o644
			}
			f, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
			if err != nil {
				return err
			}
			if _, err := io.Copy(f, tr); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			os.Remove(target)
			if err := os.Symlink(h.Linkname, target); err != nil {
				return err
			}
		}
	}
	return nil
}

// stripTopLevelDir drops the first path segment of a tar header name
// (npm tarballs wrap every file under "package/"); an entry consisting
// of only that segment (the wrapper directory itself) is dropped.
func stripTopLevelDir(name string) string {
	name = strings.TrimPrefix(name, "./")
	idx := strings.IndexByte(name, '/')
	if idx < 0 {
		return ""
	}
	return name[idx+1:]
}

func withinDir(dir, target string) bool {
	rel, err := filepath.Rel(dir, target)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// RemoveNode deletes n's realpath and everything under it. Like
// os.RemoveAll, a symlink encountered along the way is unlinked, never
// followed into and recursed through.
func RemoveNode(root, n *tree.Node) error {
	return os.RemoveAll(RealPath(root, n))
}

// NodeExists reports whether n's realpath is a directory containing a
// package.json manifest.
func NodeExists(root, n *tree.Node) bool {
	dest := RealPath(root, n)
	info, err := os.Stat(dest)
	if err != nil || !info.IsDir() {
		return false
	}
	_, err = os.Stat(filepath.Join(dest, "package.json"))
	return err == nil
}

// InstalledVersion reads the version recorded in n's on-disk
// package.json, reporting ok=false if it is missing or unreadable.
func InstalledVersion(root, n *tree.Node) (version string, ok bool) {
	data, err := os.ReadFile(filepath.Join(RealPath(root, n), "package.json"))
	if err != nil {
		return "", false
	}
	m, err := manifest.Parse(data)
	if err != nil {
		return "", false
	}
	return m.Version, true
}

// CreateBinLinks creates one relative symlink per entry in n's
// manifest's bin field under root's shared node_modules/.bin
// directory, replacing any existing entry of the same name, and marks
// the link's target executable.
func CreateBinLinks(root, n *tree.Node) error {
	if n.Manifest == nil {
		return nil
	}
	entries := n.Manifest.BinEntries()
	if len(entries) == 0 {
		return nil
	}
	binDir := filepath.Join(root.RootPath, "node_modules", ".bin")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return err
	}
	nodeDir := RealPath(root, n)
	for cmdName, scriptPath := range entries {
		absTarget := filepath.Join(nodeDir, filepath.FromSlash(scriptPath))
		if err := os.Chmod(absTarget, 0o755); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("fsys: chmod +x %s: %w", absTarget, err)
		}
		linkPath := filepath.Join(binDir, cmdName)
		relTarget, err := filepath.Rel(binDir, absTarget)
		if err != nil {
			relTarget = absTarget
		}
		os.Remove(linkPath)
		if err := os.Symlink(relTarget, linkPath); err != nil {
			return fmt.Errorf("fsys: linking bin %s: %w", cmdName, err)
		}
	}
	return nil
}

// RemoveBinLinks removes every node_modules/.bin entry n's manifest
// declared, used when a Node is uninstalled.
func RemoveBinLinks(root, n *tree.Node) error {
	if n.Manifest == nil {
		return nil
	}
	binDir := filepath.Join(root.RootPath, "node_modules", ".bin")
	for cmdName := range n.Manifest.BinEntries() {
		if err := os.Remove(filepath.Join(binDir, cmdName)); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}
