package billyfs

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryFileSystem(t *testing.T) {
	fs := NewMemory()

	require.NoError(t, fs.MkdirAll("/work/nested/dir", 0o755))
	assert.True(t, fs.Exists("/work/nested/dir"))
	assert.False(t, fs.IsFile("/work/nested/dir"))

	// MkdirAll is idempotent
	require.NoError(t, fs.MkdirAll("/work/nested/dir", 0o755))

	n, err := fs.Write("/work/nested/dir/a.txt", strings.NewReader("hello"))
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
	assert.True(t, fs.IsFile("/work/nested/dir/a.txt"))

	data, err := util.ReadFile(fs.Unwrap(), "/work/nested/dir/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	// Write truncates
	_, err = fs.Write("/work/nested/dir/a.txt", strings.NewReader("hi"))
	require.NoError(t, err)
	data, err = util.ReadFile(fs.Unwrap(), "/work/nested/dir/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "hi", string(data))

	assert.True(t, fs.IsWritable("/work"))
	assert.False(t, fs.IsWritable("/work/nested/dir/a.txt"))
	assert.False(t, fs.IsWritable("/missing"))

	assert.True(t, fs.Remove("/work/nested/dir/a.txt"))
	assert.False(t, fs.Exists("/work/nested/dir/a.txt"))
	assert.False(t, fs.Remove("/work/nested/dir/a.txt"), "removing a missing file reports false")
}

func TestIsWritableLeavesNoProbe(t *testing.T) {
	fs := NewMemory()
	require.NoError(t, fs.MkdirAll("/dir", 0o755))
	require.True(t, fs.IsWritable("/dir"))

	entries, err := fs.Unwrap().ReadDir("/dir")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLocalFileSystem(t *testing.T) {
	dir := t.TempDir()
	fs := NewLocal()

	target := filepath.Join(dir, "out", "file.bin")
	require.NoError(t, fs.MkdirAll(filepath.Dir(target), 0o755))

	_, err := fs.Write(target, strings.NewReader("payload"))
	require.NoError(t, err)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	assert.True(t, fs.IsWritable(dir))
	assert.True(t, fs.Remove(target))
	assert.False(t, fs.Remove(target))
}

func TestDirMode(t *testing.T) {
	dir := t.TempDir()
	fs := NewLocal().WithDirMode(0o700)

	zeroMode := filepath.Join(dir, "zero")
	require.NoError(t, fs.MkdirAll(zeroMode, 0))
	info, err := os.Stat(zeroMode)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o700), info.Mode().Perm())

	// Write leaves parent directories to the caller
	_, err = fs.Write(filepath.Join(dir, "a", "b", "c.txt"), strings.NewReader("c"))
	assert.Error(t, err)
	_, err = os.Stat(filepath.Join(dir, "a"))
	assert.True(t, os.IsNotExist(err))
}
