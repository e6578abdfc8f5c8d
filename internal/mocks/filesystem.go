// Package mocks provides mock implementations for testing.
package mocks

import (
	"io"
	"os"
	"path/filepath"

	"github.com/mcdonaldj/archiver/internal/ports"
)

// MockFileSystem implements ports.FileSystem for testing.
type MockFileSystem struct {
	// Files maps paths to file contents
	Files map[string][]byte
	// Dirs maps existing directory paths to their mode
	Dirs map[string]os.FileMode
	// ReadOnly marks directories that IsWritable reports as not writable
	ReadOnly map[string]bool
	// Errors maps paths to errors returned by MkdirAll and Write
	Errors map[string]error
	// MkdirCalls records calls to MkdirAll
	MkdirCalls []MkdirCall
	// Removed records paths passed to Remove
	Removed []string
}

// MkdirCall records parameters of a MkdirAll call.
type MkdirCall struct {
	Path string
	Perm os.FileMode
}

// NewMockFileSystem creates a new mock filesystem.
func NewMockFileSystem() *MockFileSystem {
	return &MockFileSystem{
		Files:    make(map[string][]byte),
		Dirs:     make(map[string]os.FileMode),
		ReadOnly: make(map[string]bool),
		Errors:   make(map[string]error),
	}
}

// Exists reports whether a file or directory is known at path.
func (m *MockFileSystem) Exists(path string) bool {
	if _, ok := m.Files[path]; ok {
		return true
	}
	_, ok := m.Dirs[path]
	return ok
}

// IsFile reports whether path holds file content.
func (m *MockFileSystem) IsFile(path string) bool {
	_, ok := m.Files[path]
	return ok
}

// IsWritable reports whether path is a known directory not marked read-only.
func (m *MockFileSystem) IsWritable(path string) bool {
	_, ok := m.Dirs[path]
	return ok && !m.ReadOnly[path]
}

// MkdirAll marks path and all of its parents as directories.
func (m *MockFileSystem) MkdirAll(path string, perm os.FileMode) error {
	m.MkdirCalls = append(m.MkdirCalls, MkdirCall{Path: path, Perm: perm})
	if err, ok := m.Errors[path]; ok {
		return err
	}
	for p := path; ; p = filepath.Dir(p) {
		if _, ok := m.Dirs[p]; !ok {
			m.Dirs[p] = perm
		}
		if parent := filepath.Dir(p); parent == p {
			break
		}
	}
	return nil
}

// Write stores everything read from r as the content of path. The parent
// must be a known directory.
func (m *MockFileSystem) Write(path string, r io.Reader) (int64, error) {
	if err, ok := m.Errors[path]; ok {
		return 0, err
	}
	if _, ok := m.Dirs[filepath.Dir(path)]; !ok {
		return 0, &os.PathError{Op: "open", Path: path, Err: os.ErrNotExist}
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}
	m.Files[path] = data
	return int64(len(data)), nil
}

// Remove deletes a file, reporting whether it existed.
func (m *MockFileSystem) Remove(path string) bool {
	m.Removed = append(m.Removed, path)
	if _, ok := m.Files[path]; !ok {
		return false
	}
	delete(m.Files, path)
	return true
}

// Compile-time check that MockFileSystem implements ports.FileSystem.
var _ ports.FileSystem = (*MockFileSystem)(nil)
