// Package archiver reads, writes and selectively extracts archives through
// a format-independent repository.
//
// An Archiver holds at most one open archive. Entries are added under the
// current folder pointer, and extraction can be confined to that folder and
// filtered by path prefixes:
//
//	a := archiver.New()
//	if err := a.Zip("build/site.zip"); err != nil {
//	    return err
//	}
//	defer a.Close()
//
//	a.Folder("assets")
//	if err := a.Add("public/"); err != nil {
//	    return err
//	}
package archiver

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"

	"github.com/mcdonaldj/archiver/internal/formats"
	"github.com/mcdonaldj/archiver/internal/pathfilter"
	"github.com/mcdonaldj/archiver/internal/ports"
)

// Archiver is the facade over one open archive. It is not safe for
// concurrent use.
type Archiver struct {
	fs       ports.FileSystem
	finder   ports.Finder
	registry *formats.Registry
	storage  billy.Filesystem
	logger   *slog.Logger

	archiveDirMode os.FileMode
	extractDirMode os.FileMode

	repo          ports.Repository
	archiveType   string
	filePath      string
	currentFolder string
	cleanup       *runtime.Cleanup
}

// New creates an Archiver. Without options it works on the local disk.
func New(opts ...Option) *Archiver {
	a := &Archiver{
		registry:       formats.NewRegistry(),
		logger:         slog.New(slog.DiscardHandler),
		archiveDirMode: ports.DefaultArchiveDirMode,
		extractDirMode: ports.DefaultArchiveDirMode,
	}
	WithStorage(osfs.New("/"))(a)
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// With opens or creates the archive at path, runs fn, and closes the
// archive on every return path.
func With(path, format string, fn func(a *Archiver) error, opts ...Option) (err error) {
	a := New(opts...)
	if err := a.Make(path, format); err != nil {
		return err
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return fn(a)
}

// Make opens the archive at path, creating it when missing. format is a
// registered tag such as "zip" or "phar"; empty means zip. Unknown tags are
// rejected before anything touches the disk.
func (a *Archiver) Make(path, format string) error {
	f, err := a.registry.Lookup(format)
	if err != nil {
		return err
	}
	repo, err := a.registry.New(f, a.storage)
	if err != nil {
		return err
	}
	return a.open(path, repo, string(f))
}

// MakeWith opens the archive at path through a caller-supplied repository.
func (a *Archiver) MakeWith(path string, repo ports.Repository) error {
	return a.open(path, repo, fmt.Sprintf("%T", repo))
}

// Zip opens or creates a zip archive.
func (a *Archiver) Zip(path string) error {
	return a.Make(path, string(formats.Zip))
}

// Phar opens or creates a phar archive.
func (a *Archiver) Phar(path string) error {
	return a.Make(path, string(formats.Phar))
}

func (a *Archiver) open(path string, repo ports.Repository, archiveType string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return ports.Wrap(ports.ErrArchiveOpen, err, "resolving %s", path)
	}

	if a.repo != nil {
		if err := a.Close(); err != nil {
			return err
		}
	}

	created, err := a.prepareArchiveFile(abs)
	if err != nil {
		return err
	}
	if err := repo.Open(abs, created); err != nil {
		return err
	}

	a.repo = repo
	a.archiveType = archiveType
	a.filePath = abs
	// Safety net for an Archiver dropped without Close.
	c := runtime.AddCleanup(a, func(r ports.Repository) { _ = r.Close() }, repo)
	a.cleanup = &c

	a.logger.Debug("archive opened", "path", abs, "type", archiveType, "created", created)
	return nil
}

// prepareArchiveFile reports whether path must be created, making sure its
// parent directory exists and is writable in that case.
func (a *Archiver) prepareArchiveFile(path string) (bool, error) {
	if a.fs.Exists(path) {
		return false, nil
	}

	dir := filepath.Dir(path)
	if !a.fs.Exists(dir) {
		if err := a.fs.MkdirAll(dir, a.archiveDirMode); err != nil {
			return false, ports.Wrap(ports.ErrDirectoryCreate, err, "creating %s", dir)
		}
	}
	if !a.fs.IsWritable(dir) {
		return false, ports.Wrap(ports.ErrNotWritable, nil, "the path %q is not writable", path)
	}
	return true, nil
}

// Close flushes and releases the open archive. Calling Close with nothing
// open is a no-op.
func (a *Archiver) Close() error {
	var err error
	if a.repo != nil {
		if a.cleanup != nil {
			a.cleanup.Stop()
			a.cleanup = nil
		}
		err = a.repo.Close()
		a.logger.Debug("archive closed", "path", a.filePath, "error", err)
		a.repo = nil
	}
	a.filePath = ""
	a.archiveType = ""
	return err
}

// Delete closes the archive and removes its file from disk.
func (a *Archiver) Delete() error {
	path := a.filePath
	err := a.Close()
	if path != "" {
		removed := a.fs.Remove(path)
		a.logger.Debug("archive deleted", "path", path, "removed", removed)
	}
	return err
}

// Add stores files and directories under the current folder. A file is
// stored by its base name. A directory is walked recursively and each file
// keeps its path relative to that directory; the folder pointer is restored
// afterwards.
func (a *Archiver) Add(paths ...string) error {
	if err := a.requireOpen("add"); err != nil {
		return err
	}

	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return ports.Wrap(ports.ErrSourceUnreadable, err, "resolving %s", p)
		}
		if a.fs.IsFile(abs) {
			err = a.addFile(abs)
		} else {
			err = a.addDir(abs)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (a *Archiver) addDir(dir string) error {
	start := a.currentFolder
	defer func() { a.currentFolder = start }()

	for f, err := range a.finder.Files(dir) {
		if err != nil {
			return ports.Wrap(ports.ErrSourceUnreadable, err, "walking %s", dir)
		}
		a.currentFolder = f.RelDir
		if err := a.addFile(f.Path); err != nil {
			return err
		}
	}
	return nil
}

// addFile stores source under the current folder. The base name is kept
// byte for byte so lookups with the same name find the entry.
func (a *Archiver) addFile(source string) error {
	name := pathfilter.Join(a.currentFolder, filepath.Base(source))
	if err := a.repo.AddFile(source, name); err != nil {
		return err
	}
	a.logger.Debug("entry added", "entry", name, "source", source)
	return nil
}

// FileContent returns the bytes of the entry at its full archive path.
func (a *Archiver) FileContent(name string) ([]byte, error) {
	if err := a.requireOpen("read"); err != nil {
		return nil, err
	}
	if !a.repo.FileExists(name) {
		return nil, ports.Wrap(ports.ErrEntryNotFound, nil, "the file %q cannot be found", name)
	}
	return a.repo.FileContent(name)
}

// EntrySize returns the uncompressed size of an entry. Repositories that
// implement ports.Sizer answer from metadata; others are streamed and counted.
func (a *Archiver) EntrySize(name string) (int64, error) {
	if err := a.requireOpen("read"); err != nil {
		return 0, err
	}
	if !a.repo.FileExists(name) {
		return 0, ports.Wrap(ports.ErrEntryNotFound, nil, "the file %q cannot be found", name)
	}
	if s, ok := a.repo.(ports.Sizer); ok {
		return s.FileSize(name)
	}

	rc, err := a.repo.FileStream(name)
	if err != nil {
		return 0, err
	}
	defer func() { _ = rc.Close() }()
	return io.Copy(io.Discard, rc)
}

// Contains reports whether the open archive holds the entry.
func (a *Archiver) Contains(name string) bool {
	return a.repo != nil && a.repo.FileExists(name)
}

// Remove deletes one entry. A missing entry is not an error.
func (a *Archiver) Remove(name string) error {
	if err := a.requireOpen("remove"); err != nil {
		return err
	}
	if err := a.repo.RemoveFile(name); err != nil {
		return err
	}
	a.logger.Debug("entry removed", "entry", name)
	return nil
}

// RemoveMatching deletes every entry whose path starts with one of the
// prefixes. Removing "docs/" removes everything below docs.
func (a *Archiver) RemoveMatching(prefixes []string) error {
	if err := a.requireOpen("remove"); err != nil {
		return err
	}
	return a.repo.Each(func(name string) error {
		if !pathfilter.StartsWith(name, prefixes) {
			return nil
		}
		return a.Remove(name)
	})
}

// Entries lists entry names in archive order, confined to the current folder.
func (a *Archiver) Entries() ([]string, error) {
	if err := a.requireOpen("list"); err != nil {
		return nil, err
	}
	var names []string
	err := a.repo.Each(func(name string) error {
		if a.inScope(name) {
			names = append(names, name)
		}
		return nil
	})
	return names, err
}

// Folder sets the current folder pointer.
func (a *Archiver) Folder(path string) *Archiver {
	a.currentFolder = pathfilter.Folder(path)
	return a
}

// Home resets the current folder pointer to the archive root.
func (a *Archiver) Home() *Archiver {
	a.currentFolder = ""
	return a
}

// CurrentFolder returns the folder pointer, empty at the root.
func (a *Archiver) CurrentFolder() string {
	return a.currentFolder
}

// InternalPath returns the prefix applied to added entries: the folder
// pointer plus "/", or empty at the root.
func (a *Archiver) InternalPath() string {
	if a.currentFolder == "" {
		return ""
	}
	return a.currentFolder + "/"
}

// Status reports the repository status, StatusClosed when nothing is open.
func (a *Archiver) Status() ports.Status {
	if a.repo == nil {
		return ports.StatusClosed
	}
	return a.repo.Status()
}

// IsOpen reports whether an archive is open.
func (a *Archiver) IsOpen() bool { return a.repo != nil }

// FilePath returns the absolute path of the open archive, empty when closed.
func (a *Archiver) FilePath() string { return a.filePath }

// ArchiveType returns the format tag of the open archive, or the Go type of
// a repository supplied to MakeWith.
func (a *Archiver) ArchiveType() string { return a.archiveType }

// Repository returns the open repository, nil when closed.
func (a *Archiver) Repository() ports.Repository { return a.repo }

// FileSystem returns the filesystem port.
func (a *Archiver) FileSystem() ports.FileSystem { return a.fs }

func (a *Archiver) inScope(name string) bool {
	return a.currentFolder == "" || strings.HasPrefix(name, a.currentFolder)
}

func (a *Archiver) requireOpen(op string) error {
	if a.repo == nil {
		return ports.Wrap(ports.ErrNotOpen, nil, "cannot %s", op)
	}
	return nil
}
