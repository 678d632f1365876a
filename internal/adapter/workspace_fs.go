// Package adapter contains filesystem, process and logging infrastructure
// behind interfaces so the domain logic can be tested without touching the
// real workspace.
package adapter

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	m "github.com/halfmoth/graft/internal/model"
)

const copyWorkers = 8

// WorkspaceFS abstracts the filesystem operations the staging and promotion
// layers rely on. Hiding direct os access keeps the transactional logic
// testable and lets tests inject failures.
//
//nolint:interfacebloat // A richer interface keeps staging logic decoupled from os/fs.
type WorkspaceFS interface {
	ReadFile(path m.Path) ([]byte, error)
	WriteFile(path m.Path, content []byte, perm os.FileMode) error
	Remove(path m.Path) error
	RemoveAll(path m.Path) error
	MkdirAll(path m.Path, perm os.FileMode) error
	FileInfo(path m.Path) (os.FileInfo, error)

	// CopyFile copies a single regular file, creating parent directories.
	CopyFile(src, dst m.Path) error

	// CopyDir recursively copies a directory tree, skipping the excluded
	// directory names and never following symlinks.
	CopyDir(src, dst m.Path, exclude []string) error

	// HashFile returns the lowercase hex SHA-256 of the file at path.
	HashFile(path m.Path) (string, error)

	// ResolvesInside reports whether every existing prefix of rel resolves,
	// through symlinks, to a location inside root.
	ResolvesInside(root m.Path, rel m.Path) (bool, error)

	// Fingerprint digests the tree under root (path, size, mtime of every
	// regular file outside exclude) into a stable hex string.
	Fingerprint(root m.Path, exclude []string) (string, error)
}

// LocalWorkspaceFS is the concrete WorkspaceFS backed by the os package.
type LocalWorkspaceFS struct{}

// NewLocalWorkspaceFS constructs a LocalWorkspaceFS.
func NewLocalWorkspaceFS() *LocalWorkspaceFS {
	return &LocalWorkspaceFS{}
}

// ReadFile loads file contents from disk.
func (a *LocalWorkspaceFS) ReadFile(path m.Path) ([]byte, error) {
	return os.ReadFile(string(path))
}

// WriteFile writes content to a file, creating parent directories.
func (a *LocalWorkspaceFS) WriteFile(path m.Path, content []byte, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(string(path)), 0o750); err != nil {
		return err
	}

	return os.WriteFile(string(path), content, perm)
}

// Remove removes a single file.
func (a *LocalWorkspaceFS) Remove(path m.Path) error {
	return os.Remove(string(path))
}

// RemoveAll removes a directory and all its contents.
func (a *LocalWorkspaceFS) RemoveAll(path m.Path) error {
	return os.RemoveAll(string(path))
}

// MkdirAll creates a directory and any missing parents.
func (a *LocalWorkspaceFS) MkdirAll(path m.Path, perm os.FileMode) error {
	return os.MkdirAll(string(path), perm)
}

// FileInfo returns os.FileInfo metadata for the given path.
func (a *LocalWorkspaceFS) FileInfo(path m.Path) (os.FileInfo, error) {
	return os.Stat(string(path))
}

// CopyFile copies a single file preserving its mode.
func (a *LocalWorkspaceFS) CopyFile(src, dst m.Path) error {
	info, err := os.Stat(string(src))
	if err != nil {
		return err
	}

	return copyFile(string(src), string(dst), info.Mode())
}

// CopyDir recursively copies a directory tree. Directory entries whose base
// name appears in exclude are skipped wholesale; symlinks are never followed
// or reproduced, so a link cannot smuggle content across the root boundary.
// File copies run on a bounded worker group.
func (a *LocalWorkspaceFS) CopyDir(src, dst m.Path, exclude []string) error {
	excluded := make(map[string]struct{}, len(exclude))
	for _, name := range exclude {
		excluded[name] = struct{}{}
	}

	type job struct {
		src, dst string
		mode     os.FileMode
	}

	var jobs []job

	err := filepath.Walk(string(src), func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(string(src), path)
		if err != nil {
			return err
		}

		if _, skip := excluded[filepath.Base(path)]; skip && relPath != "." {
			if info.IsDir() {
				return filepath.SkipDir
			}

			return nil
		}

		targetPath := filepath.Join(string(dst), relPath)

		if info.Mode()&os.ModeSymlink != 0 {
			return nil
		}

		if info.IsDir() {
			return os.MkdirAll(targetPath, info.Mode())
		}

		if !info.Mode().IsRegular() {
			return nil
		}

		jobs = append(jobs, job{src: path, dst: targetPath, mode: info.Mode()})

		return nil
	})
	if err != nil {
		return err
	}

	var g errgroup.Group

	g.SetLimit(copyWorkers)

	for _, j := range jobs {
		g.Go(func() error {
			return copyFile(j.src, j.dst, j.mode)
		})
	}

	return g.Wait()
}

// copyFile copies a single file.
func copyFile(src, dst string, mode os.FileMode) error {
	// #nosec G304 - src is an internal workspace path, not raw user input
	sourceFile, err := os.Open(src)
	if err != nil {
		return err
	}

	defer func() { _ = sourceFile.Close() }()

	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return err
	}

	// #nosec G304 - dst is an internal destination path, not raw user input
	destFile, err := os.Create(dst)
	if err != nil {
		return err
	}

	defer func() { _ = destFile.Close() }()

	if _, err := io.Copy(destFile, sourceFile); err != nil {
		return err
	}

	return os.Chmod(dst, mode)
}

// HashFile returns the SHA-256 hash of the file at the provided path.
func (a *LocalWorkspaceFS) HashFile(path m.Path) (string, error) {
	f, err := os.Open(string(path))
	if err != nil {
		return "", err
	}

	defer func() {
		_ = f.Close()
	}()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// ResolvesInside walks every prefix of rel and checks that each existing one
// resolves, via the real filesystem, to a location inside root. Prefixes
// that do not exist yet cannot redirect a write and are accepted.
func (a *LocalWorkspaceFS) ResolvesInside(root m.Path, rel m.Path) (bool, error) {
	resolvedRoot, err := filepath.EvalSymlinks(string(root))
	if err != nil {
		if os.IsNotExist(err) {
			// The root itself is not there yet, so nothing can redirect
			// a write out of it.
			return true, nil
		}

		return false, fmt.Errorf("resolving root %q: %w", root, err)
	}

	segments := strings.Split(filepath.ToSlash(string(rel)), "/")

	prefix := string(root)
	for _, segment := range segments {
		prefix = filepath.Join(prefix, segment)

		if _, err := os.Lstat(prefix); err != nil {
			if os.IsNotExist(err) {
				return true, nil
			}

			return false, err
		}

		resolved, err := filepath.EvalSymlinks(prefix)
		if err != nil {
			return false, err
		}

		if resolved != resolvedRoot && !strings.HasPrefix(resolved, resolvedRoot+string(os.PathSeparator)) {
			return false, nil
		}
	}

	return true, nil
}

// Fingerprint digests the tree under root into a stable content fingerprint:
// sorted relpath/size/mtime lines hashed with SHA-256.
func (a *LocalWorkspaceFS) Fingerprint(root m.Path, exclude []string) (string, error) {
	excluded := make(map[string]struct{}, len(exclude))
	for _, name := range exclude {
		excluded[name] = struct{}{}
	}

	var entries []string

	err := filepath.Walk(string(root), func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(string(root), path)
		if err != nil {
			return err
		}

		if _, skip := excluded[filepath.Base(path)]; skip && relPath != "." {
			if info.IsDir() {
				return filepath.SkipDir
			}

			return nil
		}

		if !info.Mode().IsRegular() {
			return nil
		}

		entries = append(entries, fmt.Sprintf("%s\x00%d\x00%d", filepath.ToSlash(relPath), info.Size(), info.ModTime().UnixNano()))

		return nil
	})
	if err != nil {
		return "", err
	}

	sort.Strings(entries)

	h := sha256.New()
	for _, entry := range entries {
		_, _ = h.Write([]byte(entry))
		_, _ = h.Write([]byte{'\n'})
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
