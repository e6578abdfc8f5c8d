// Package ports defines interfaces (contracts) for external dependencies.
// These enable dependency injection and testability via mock implementations.
package ports

import (
	"io"
	"iter"
	"os"
)

// Default directory modes.
const (
	// DefaultDirMode is used by FileSystem.MkdirAll callers that have no mode of their own.
	DefaultDirMode os.FileMode = 0o777
	// DefaultArchiveDirMode is used for archive parents and extraction targets.
	DefaultArchiveDirMode os.FileMode = 0o755
)

// FileSystem abstracts the disk operations the archiver needs.
// Production code uses the billyfs adapter; tests use MockFileSystem or memfs.
type FileSystem interface {
	// Exists reports whether anything exists at path.
	Exists(path string) bool

	// IsFile reports whether path is a regular file.
	IsFile(path string) bool

	// IsWritable reports whether new files can be created in the directory at path.
	IsWritable(path string) bool

	// MkdirAll creates a directory along with any necessary parents.
	// It succeeds if the directory already exists. A zero perm selects the
	// implementation's default mode.
	MkdirAll(path string, perm os.FileMode) error

	// Write creates or truncates the file at path and copies r into it.
	// Missing parent directories are the caller's responsibility.
	Write(path string, r io.Reader) (int64, error)

	// Remove deletes a single file. It never fails: a missing path reports false.
	Remove(path string) bool
}

// FoundFile is a regular file discovered below a directory.
type FoundFile struct {
	// Path is the file path usable with the FileSystem.
	Path string
	// RelPath is the slash-separated path relative to the walked root.
	RelPath string
	// RelDir is the directory part of RelPath, empty for files at the root.
	RelDir string
}

// Finder enumerates regular files below a root directory.
// Hidden files and VCS metadata are never skipped.
type Finder interface {
	// Files returns a lazy, restartable sequence of every regular file under root.
	Files(root string) iter.Seq2[FoundFile, error]
}
