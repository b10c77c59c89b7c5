package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasContentDetectsNestedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "a", "b"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a", "b", "f"), []byte("x"), 0o644))

	found, err := HasContent(dir)
	require.NoError(t, err)
	assert.True(t, found)
}

func TestHasContentEmptyTree(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "a", "b"), 0o755))

	found, err := HasContent(dir)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestHasContentMissingDir(t *testing.T) {
	found, err := HasContent(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestHasContentSymlinkCountsAsContent(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Symlink("/nonexistent-target", filepath.Join(dir, "link")))

	found, err := HasContent(dir)
	require.NoError(t, err)
	assert.True(t, found)
}

func TestIsDirFollowsSymlink(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "real")
	require.NoError(t, os.Mkdir(target, 0o755))
	link := filepath.Join(dir, "link")
	require.NoError(t, os.Symlink(target, link))

	assert.True(t, IsDir(link))
	assert.False(t, IsDir(filepath.Join(dir, "missing")))
}

func TestCopyTreePreservesSymlinksAndContent(t *testing.T) {
	src := filepath.Join(t.TempDir(), "src")
	require.NoError(t, os.MkdirAll(filepath.Join(src, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "sub", "f.txt"), []byte("hello"), 0o644))
	require.NoError(t, os.Symlink("f.txt", filepath.Join(src, "sub", "link")))

	dst := filepath.Join(t.TempDir(), "dst")
	require.NoError(t, CopyTree(src, dst))

	data, err := os.ReadFile(filepath.Join(dst, "sub", "f.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	target, err := os.Readlink(filepath.Join(dst, "sub", "link"))
	require.NoError(t, err)
	assert.Equal(t, "f.txt", target)
}

func TestXattrRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	if !ProbeXattrSupport(dir) {
		t.Skip("filesystem backing the test tmpdir does not support user xattrs")
	}

	require.NoError(t, SetXattr(path, "user.hymo_test", []byte("v1")))
	value, err := GetXattr(path, "user.hymo_test")
	require.NoError(t, err)
	assert.Equal(t, "v1", string(value))

	names, err := ListXattrs(path)
	require.NoError(t, err)
	assert.Contains(t, names, "user.hymo_test")
}
