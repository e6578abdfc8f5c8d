// Package ziprepo provides a zip archive repository using the archive/zip package.
package ziprepo

import (
	"archive/zip"
	"fmt"
	"io"
	"os"

	"github.com/go-git/go-billy/v5"

	"github.com/mcdonaldj/archiver/internal/adapters/staged"
	"github.com/mcdonaldj/archiver/internal/ports"
)

// MaxEntrySize is the maximum allowed uncompressed entry size (10GB).
// This prevents decompression bomb attacks (G110).
const MaxEntrySize = 10 * 1024 * 1024 * 1024 // 10GB

// Repository implements ports.Repository for zip archives.
// Changes are kept in memory and written to a temp file that replaces the
// archive on Close.
type Repository struct {
	*staged.Archive[*zip.File]
}

// New creates a zip repository that reads and writes through bfs.
func New(bfs billy.Filesystem) *Repository {
	return &Repository{Archive: staged.New[*zip.File](bfs, &codec{bfs: bfs})}
}

type codec struct {
	bfs billy.Filesystem
}

func (c *codec) Reset() {}

func (c *codec) Load(f billy.File, size int64) ([]staged.Entry[*zip.File], error) {
	zr, err := zip.NewReader(f, size)
	if err != nil {
		return nil, fmt.Errorf("reading zip: %w", err)
	}
	members := make([]staged.Entry[*zip.File], 0, len(zr.File))
	for _, zf := range zr.File {
		members = append(members, staged.Entry[*zip.File]{Name: zf.Name, Stored: zf})
	}
	return members, nil
}

func (c *codec) Check(string, os.FileInfo) error { return nil }

func (c *codec) Open(_ billy.File, e *staged.Entry[*zip.File]) (io.ReadCloser, error) {
	// SECURITY: Limit decompression size to prevent zip bombs (G110)
	if e.Stored.UncompressedSize64 > MaxEntrySize {
		return nil, fmt.Errorf("entry %q too large: %d bytes exceeds limit of %d bytes",
			e.Name, e.Stored.UncompressedSize64, uint64(MaxEntrySize))
	}
	return e.Stored.Open()
}

func (c *codec) Size(e *staged.Entry[*zip.File]) int64 {
	return int64(e.Stored.UncompressedSize64)
}

// Write copies existing members without recompression and deflates new ones.
func (c *codec) Write(out io.Writer, _ billy.File, entries []*staged.Entry[*zip.File]) error {
	w := zip.NewWriter(out)
	writeErr := c.writeEntries(w, entries)

	// Close zip writer first to flush data
	if closeErr := w.Close(); closeErr != nil && writeErr == nil {
		writeErr = fmt.Errorf("closing zip writer: %w", closeErr)
	}
	return writeErr
}

func (c *codec) writeEntries(w *zip.Writer, entries []*staged.Entry[*zip.File]) error {
	for _, e := range entries {
		if !e.IsStaged() {
			if err := w.Copy(e.Stored); err != nil {
				return fmt.Errorf("copying %s: %w", e.Name, err)
			}
			continue
		}

		header, err := zip.FileInfoHeader(e.Info)
		if err != nil {
			return fmt.Errorf("header for %s: %w", e.Name, err)
		}
		header.Name = e.Name
		header.Method = zip.Deflate

		writer, err := w.CreateHeader(header)
		if err != nil {
			return fmt.Errorf("adding %s: %w", e.Name, err)
		}

		src, err := c.bfs.Open(e.Source)
		if err != nil {
			return ports.Wrap(ports.ErrSourceUnreadable, err, "reading %s", e.Source)
		}
		_, copyErr := io.Copy(writer, src)
		_ = src.Close() // Explicitly ignore close error - data already copied
		if copyErr != nil {
			return fmt.Errorf("writing %s: %w", e.Name, copyErr)
		}
	}
	return nil
}

// Compile-time checks that Repository implements the repository ports.
var (
	_ ports.Repository = (*Repository)(nil)
	_ ports.Sizer      = (*Repository)(nil)
)
