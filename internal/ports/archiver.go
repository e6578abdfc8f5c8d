package ports

import "io"

// Status is a diagnostic code reported by a Repository.
type Status int

const (
	// StatusOK means the archive is open and has no pending writes.
	StatusOK Status = iota
	// StatusModified means the archive has changes that Close will flush.
	StatusModified
	// StatusClosed means no archive is open.
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusModified:
		return "modified"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Repository abstracts one concrete archive format.
// Production code uses the ziprepo and pharrepo adapters; tests use MockRepository.
type Repository interface {
	// Open opens the archive at path, or starts a new empty one when create is true.
	Open(path string, create bool) error

	// FileExists reports whether the archive holds an entry named name.
	FileExists(name string) bool

	// FileContent returns the bytes of an entry.
	FileContent(name string) ([]byte, error)

	// FileStream opens an entry for streaming reads.
	FileStream(name string) (io.ReadCloser, error)

	// AddFile stores the local file at source under name, replacing any existing entry.
	AddFile(source, name string) error

	// RemoveFile deletes an entry. Removing a missing entry is a no-op.
	RemoveFile(name string) error

	// Each calls visit for every entry in archive order. The names are
	// snapshotted first, so visit may add or remove entries. A non-nil
	// error from visit stops the iteration and is returned.
	Each(visit func(name string) error) error

	// Status reports the diagnostic state of the archive.
	Status() Status

	// Close flushes pending writes and releases the archive. Closing twice is a no-op.
	Close() error
}

// Sizer is implemented by repositories that know an entry's uncompressed
// size without reading it.
type Sizer interface {
	FileSize(name string) (int64, error)
}
