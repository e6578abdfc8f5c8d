// Package staged holds the entry table shared by the archive repositories.
//
// An Archive keeps the members of an open archive and the local files added
// since it was opened. Nothing is written until Close, when the format codec
// writes every entry to a temp file that replaces the archive.
package staged

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"

	"github.com/go-git/go-billy/v5"

	"github.com/mcdonaldj/archiver/internal/ports"
)

// Entry is either a member of the archive on disk (Stored) or a local file
// waiting to be written (Source).
type Entry[M any] struct {
	Name   string
	Stored M
	Source string
	Info   os.FileInfo
}

// IsStaged reports whether the entry comes from a local file.
func (e *Entry[M]) IsStaged() bool {
	return e.Source != ""
}

// Codec reads and writes one archive format. M is the format's handle on a
// stored member.
type Codec[M any] interface {
	// Reset prepares the codec for a new, empty archive.
	Reset()

	// Load reads the members of the archive in f, in archive order.
	Load(f billy.File, size int64) ([]Entry[M], error)

	// Check rejects a source the format cannot hold.
	Check(source string, info os.FileInfo) error

	// Open streams a stored member of the archive in f.
	Open(f billy.File, e *Entry[M]) (io.ReadCloser, error)

	// Size returns the uncompressed size recorded for a stored member.
	Size(e *Entry[M]) int64

	// Write writes entries to w in order. f is the archive being replaced,
	// nil for a new archive.
	Write(w io.Writer, f billy.File, entries []*Entry[M]) error
}

// Archive implements ports.Repository over a codec.
type Archive[M any] struct {
	bfs   billy.Filesystem
	codec Codec[M]

	path    string
	file    billy.File
	names   []string
	entries map[string]*Entry[M]
	dirty   bool
	open    bool
}

// New creates an Archive that reads and writes through bfs.
func New[M any](bfs billy.Filesystem, codec Codec[M]) *Archive[M] {
	return &Archive[M]{bfs: bfs, codec: codec}
}

// Open opens the archive at path, or starts an empty one when create is true.
func (a *Archive[M]) Open(path string, create bool) error {
	if a.open {
		if err := a.Close(); err != nil {
			return err
		}
	}

	a.path = path
	a.names = nil
	a.entries = make(map[string]*Entry[M])

	if create {
		a.codec.Reset()
		a.dirty = true
		a.open = true
		return nil
	}

	f, err := a.bfs.Open(path)
	if err != nil {
		return ports.Wrap(ports.ErrArchiveOpen, err, "opening %s", path)
	}
	info, err := a.bfs.Stat(path)
	if err != nil {
		_ = f.Close()
		return ports.Wrap(ports.ErrArchiveOpen, err, "stat %s", path)
	}

	members, err := a.codec.Load(f, info.Size())
	if err != nil {
		_ = f.Close()
		return ports.Wrap(ports.ErrArchiveOpen, err, "reading %s", path)
	}

	// A repeated name keeps its first position and its last member.
	for i := range members {
		e := &members[i]
		if _, seen := a.entries[e.Name]; !seen {
			a.names = append(a.names, e.Name)
		}
		a.entries[e.Name] = e
	}

	a.file = f
	a.dirty = false
	a.open = true
	return nil
}

// FileExists reports whether the archive holds an entry named name.
func (a *Archive[M]) FileExists(name string) bool {
	if !a.open {
		return false
	}
	_, ok := a.entries[name]
	return ok
}

// FileContent returns the bytes of an entry.
func (a *Archive[M]) FileContent(name string) ([]byte, error) {
	rc, err := a.FileStream(name)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	return io.ReadAll(rc)
}

// FileStream opens an entry for streaming reads. Staged entries are read
// from their source file.
func (a *Archive[M]) FileStream(name string) (io.ReadCloser, error) {
	if !a.open {
		return nil, ports.ErrNotOpen
	}
	e, ok := a.entries[name]
	if !ok {
		return nil, ports.Wrap(ports.ErrEntryNotFound, nil, "entry %q", name)
	}

	if e.IsStaged() {
		f, err := a.bfs.Open(e.Source)
		if err != nil {
			return nil, ports.Wrap(ports.ErrSourceUnreadable, err, "reading %s", e.Source)
		}
		return f, nil
	}
	return a.codec.Open(a.file, e)
}

// FileSize returns the uncompressed size of an entry from the archive
// metadata, or the source size recorded when a staged entry was added.
func (a *Archive[M]) FileSize(name string) (int64, error) {
	if !a.open {
		return 0, ports.ErrNotOpen
	}
	e, ok := a.entries[name]
	if !ok {
		return 0, ports.Wrap(ports.ErrEntryNotFound, nil, "entry %q", name)
	}
	if e.IsStaged() {
		return e.Info.Size(), nil
	}
	return a.codec.Size(e), nil
}

// AddFile stores the local file at source under name.
// The source is checked now and read when the archive is written.
func (a *Archive[M]) AddFile(source, name string) error {
	if !a.open {
		return ports.ErrNotOpen
	}

	f, err := a.bfs.Open(source)
	if err != nil {
		return ports.Wrap(ports.ErrSourceUnreadable, err, "opening %s", source)
	}
	_ = f.Close()

	info, err := a.bfs.Stat(source)
	if err != nil {
		return ports.Wrap(ports.ErrSourceUnreadable, err, "stat %s", source)
	}
	if !info.Mode().IsRegular() {
		return ports.Wrap(ports.ErrSourceUnreadable, nil, "%s is not a regular file", source)
	}
	if err := a.codec.Check(source, info); err != nil {
		return err
	}

	if _, exists := a.entries[name]; !exists {
		a.names = append(a.names, name)
	}
	a.entries[name] = &Entry[M]{Name: name, Source: source, Info: info}
	a.dirty = true
	return nil
}

// RemoveFile deletes an entry. Missing entries are ignored.
func (a *Archive[M]) RemoveFile(name string) error {
	if !a.open {
		return ports.ErrNotOpen
	}
	if _, ok := a.entries[name]; !ok {
		return nil
	}

	delete(a.entries, name)
	a.names = slices.DeleteFunc(a.names, func(n string) bool { return n == name })
	a.dirty = true
	return nil
}

// Each visits a snapshot of the entry names. Entries removed by an earlier
// visit are skipped.
func (a *Archive[M]) Each(visit func(name string) error) error {
	if !a.open {
		return ports.ErrNotOpen
	}

	for _, name := range slices.Clone(a.names) {
		if _, ok := a.entries[name]; !ok {
			continue
		}
		if err := visit(name); err != nil {
			return err
		}
	}
	return nil
}

// Status reports the diagnostic state of the archive.
func (a *Archive[M]) Status() ports.Status {
	switch {
	case !a.open:
		return ports.StatusClosed
	case a.dirty:
		return ports.StatusModified
	default:
		return ports.StatusOK
	}
}

// Close writes pending changes and releases the archive file.
func (a *Archive[M]) Close() error {
	if !a.open {
		return nil
	}

	var err error
	if a.dirty {
		err = a.flush()
	}

	if a.file != nil {
		if closeErr := a.file.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}

	a.file = nil
	a.names = nil
	a.entries = nil
	a.dirty = false
	a.open = false
	return err
}

// flush writes every entry to a temp file next to the archive and renames
// it over the original.
func (a *Archive[M]) flush() error {
	ordered := make([]*Entry[M], 0, len(a.names))
	for _, name := range a.names {
		ordered = append(ordered, a.entries[name])
	}

	tmp, err := a.bfs.TempFile(filepath.Dir(a.path), filepath.Base(a.path)+".tmp-")
	if err != nil {
		return fmt.Errorf("creating temp archive: %w", err)
	}
	tmpName := tmp.Name()

	writeErr := a.codec.Write(tmp, a.file, ordered)
	if closeErr := tmp.Close(); closeErr != nil && writeErr == nil {
		writeErr = fmt.Errorf("closing temp archive: %w", closeErr)
	}
	if writeErr != nil {
		_ = a.bfs.Remove(tmpName) // Best effort cleanup on error path
		return writeErr
	}

	// The original must be released before it is replaced.
	if a.file != nil {
		_ = a.file.Close()
		a.file = nil
	}
	if err := a.bfs.Rename(tmpName, a.path); err != nil {
		_ = a.bfs.Remove(tmpName)
		return fmt.Errorf("replacing %s: %w", a.path, err)
	}
	return nil
}
