// Package billyfs provides a filesystem adapter over go-billy.
package billyfs

import (
	"io"
	"os"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"

	"github.com/mcdonaldj/archiver/internal/ports"
)

// FileSystem implements ports.FileSystem on a billy.Filesystem.
type FileSystem struct {
	bfs     billy.Filesystem
	dirMode os.FileMode
}

// New wraps an existing billy filesystem.
func New(bfs billy.Filesystem) *FileSystem {
	return &FileSystem{bfs: bfs, dirMode: ports.DefaultDirMode}
}

// WithDirMode sets the mode used when MkdirAll gets a zero mode.
func (f *FileSystem) WithDirMode(mode os.FileMode) *FileSystem {
	f.dirMode = mode
	return f
}

// NewLocal creates an adapter rooted at "/" on the local disk.
func NewLocal() *FileSystem {
	return New(osfs.New("/"))
}

// NewMemory creates an adapter over an empty in-memory filesystem.
func NewMemory() *FileSystem {
	return New(memfs.New())
}

// Unwrap returns the underlying billy filesystem so repositories and the
// finder can share it.
func (f *FileSystem) Unwrap() billy.Filesystem {
	return f.bfs
}

// Exists reports whether anything exists at path.
func (f *FileSystem) Exists(path string) bool {
	_, err := f.bfs.Stat(path)
	return err == nil
}

// IsFile reports whether path is a regular file.
func (f *FileSystem) IsFile(path string) bool {
	info, err := f.bfs.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// IsWritable probes the directory at path by creating and removing a temp file.
func (f *FileSystem) IsWritable(path string) bool {
	info, err := f.bfs.Stat(path)
	if err != nil || !info.IsDir() {
		return false
	}
	tmp, err := f.bfs.TempFile(path, ".archiver-probe-")
	if err != nil {
		return false
	}
	name := tmp.Name()
	_ = tmp.Close()
	_ = f.bfs.Remove(name)
	return true
}

// MkdirAll creates a directory along with any necessary parents. A zero
// perm means the adapter's default mode.
func (f *FileSystem) MkdirAll(path string, perm os.FileMode) error {
	if perm == 0 {
		perm = f.dirMode
	}
	return f.bfs.MkdirAll(path, perm)
}

// Write creates or truncates the file at path and copies r into it.
// The parent directory must already exist.
func (f *FileSystem) Write(path string, r io.Reader) (int64, error) {
	out, err := f.bfs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, err
	}

	n, copyErr := io.Copy(out, r)
	closeErr := out.Close()
	if copyErr != nil {
		return n, copyErr
	}
	return n, closeErr
}

// Remove deletes a single file, reporting whether it was removed.
func (f *FileSystem) Remove(path string) bool {
	if !f.IsFile(path) {
		return false
	}
	return f.bfs.Remove(path) == nil
}

// Compile-time check that FileSystem implements ports.FileSystem.
var _ ports.FileSystem = (*FileSystem)(nil)
