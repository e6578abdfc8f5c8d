package archiver

import (
	"log/slog"
	"os"

	"github.com/go-git/go-billy/v5"

	"github.com/mcdonaldj/archiver/internal/adapters/billyfs"
	"github.com/mcdonaldj/archiver/internal/adapters/finder"
	"github.com/mcdonaldj/archiver/internal/formats"
	"github.com/mcdonaldj/archiver/internal/ports"
)

// Option is a functional option for configuring an Archiver.
type Option func(*Archiver)

// WithStorage backs the filesystem port, the finder and the built-in
// repositories with the same billy filesystem.
func WithStorage(bfs billy.Filesystem) Option {
	return func(a *Archiver) {
		a.storage = bfs
		a.fs = billyfs.New(bfs)
		a.finder = finder.New(bfs)
	}
}

// WithFileSystem replaces the filesystem port.
func WithFileSystem(fs ports.FileSystem) Option {
	return func(a *Archiver) {
		a.fs = fs
	}
}

// WithFinder replaces the directory enumerator used by Add.
func WithFinder(f ports.Finder) Option {
	return func(a *Archiver) {
		a.finder = f
	}
}

// WithRegistry replaces the format registry used by Make.
func WithRegistry(r *formats.Registry) Option {
	return func(a *Archiver) {
		a.registry = r
	}
}

// WithLogger sets the logger for debug records. Defaults to discarding.
func WithLogger(l *slog.Logger) Option {
	return func(a *Archiver) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithArchiveDirMode sets the mode for parent directories created by Make.
func WithArchiveDirMode(mode os.FileMode) Option {
	return func(a *Archiver) {
		a.archiveDirMode = mode
	}
}

// WithExtractDirMode sets the mode for directories created by ExtractTo.
func WithExtractDirMode(mode os.FileMode) Option {
	return func(a *Archiver) {
		a.extractDirMode = mode
	}
}
