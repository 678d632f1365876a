package adapter

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	m "github.com/halfmoth/graft/internal/model"
)

func TestLocalWorkspaceFS_CopyDir(t *testing.T) {
	fs := NewLocalWorkspaceFS()

	src := t.TempDir()
	dst := filepath.Join(t.TempDir(), "copy")

	writeTestFile(t, filepath.Join(src, "a.txt"), "hello\n")
	writeTestFile(t, filepath.Join(src, "nested", "b.txt"), "world\n")
	writeTestFile(t, filepath.Join(src, "node_modules", "dep.js"), "skip me\n")
	require.NoError(t, os.Symlink(filepath.Join(src, "a.txt"), filepath.Join(src, "a.link")))

	require.NoError(t, fs.CopyDir(m.Path(src), m.Path(dst), []string{"node_modules"}))

	data, err := os.ReadFile(filepath.Join(dst, "nested", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "world\n", string(data))

	_, err = os.Lstat(filepath.Join(dst, "node_modules"))
	assert.True(t, os.IsNotExist(err), "excluded directory must not be copied")

	_, err = os.Lstat(filepath.Join(dst, "a.link"))
	assert.True(t, os.IsNotExist(err), "symlinks must not be reproduced")
}

func TestLocalWorkspaceFS_CopyFilePreservesMode(t *testing.T) {
	fs := NewLocalWorkspaceFS()

	src := filepath.Join(t.TempDir(), "script.sh")
	dst := filepath.Join(t.TempDir(), "sub", "script.sh")

	require.NoError(t, os.WriteFile(src, []byte("#!/bin/sh\n"), 0o755))
	require.NoError(t, fs.CopyFile(m.Path(src), m.Path(dst)))

	info, err := os.Stat(dst)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())
}

func TestLocalWorkspaceFS_ResolvesInside(t *testing.T) {
	fs := NewLocalWorkspaceFS()

	root := t.TempDir()
	outside := t.TempDir()

	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub"), 0o750))
	require.NoError(t, os.Symlink(outside, filepath.Join(root, "escape")))
	require.NoError(t, os.Symlink(filepath.Join(root, "sub"), filepath.Join(root, "alias")))

	cases := []struct {
		name   string
		rel    m.Path
		inside bool
	}{
		{"existing nested path", "sub/file.txt", true},
		{"nonexistent prefix", "not/there/yet.txt", true},
		{"symlink escaping the root", "escape/file.txt", false},
		{"symlink staying inside", "alias/file.txt", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			inside, err := fs.ResolvesInside(m.Path(root), tc.rel)
			require.NoError(t, err)
			assert.Equal(t, tc.inside, inside)
		})
	}
}

func TestLocalWorkspaceFS_ResolvesInsideMissingRoot(t *testing.T) {
	fs := NewLocalWorkspaceFS()

	root := filepath.Join(t.TempDir(), "not-created-yet")

	inside, err := fs.ResolvesInside(m.Path(root), "a/b.txt")
	require.NoError(t, err)
	assert.True(t, inside)
}

func TestLocalWorkspaceFS_HashFile(t *testing.T) {
	fs := NewLocalWorkspaceFS()

	path := filepath.Join(t.TempDir(), "x.txt")
	content := []byte("hash me\n")
	require.NoError(t, os.WriteFile(path, content, 0o640))

	hash, err := fs.HashFile(m.Path(path))
	require.NoError(t, err)

	sum := sha256.Sum256(content)
	assert.Equal(t, hex.EncodeToString(sum[:]), hash)
}

func TestLocalWorkspaceFS_Fingerprint(t *testing.T) {
	fs := NewLocalWorkspaceFS()

	root := t.TempDir()
	writeTestFile(t, filepath.Join(root, "a.txt"), "one\n")
	writeTestFile(t, filepath.Join(root, ".git", "HEAD"), "ref\n")

	first, err := fs.Fingerprint(m.Path(root), []string{".git"})
	require.NoError(t, err)

	// Changes under an excluded directory are invisible.
	writeTestFile(t, filepath.Join(root, ".git", "HEAD"), "another ref entirely\n")

	second, err := fs.Fingerprint(m.Path(root), []string{".git"})
	require.NoError(t, err)
	assert.Equal(t, first, second)

	writeTestFile(t, filepath.Join(root, "b.txt"), "two\n")

	third, err := fs.Fingerprint(m.Path(root), []string{".git"})
	require.NoError(t, err)
	assert.NotEqual(t, first, third)
}

func TestLocalWorkspaceFS_WriteFileCreatesParents(t *testing.T) {
	fs := NewLocalWorkspaceFS()

	path := filepath.Join(t.TempDir(), "deep", "nested", "x.txt")

	require.NoError(t, fs.WriteFile(m.Path(path), []byte("made it\n"), 0o640))

	data, err := fs.ReadFile(m.Path(path))
	require.NoError(t, err)
	assert.Equal(t, "made it\n", string(data))
}
