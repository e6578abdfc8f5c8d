// Package pharrepo provides a PHAR archive repository.
//
// Archives are read with their existing stub, alias and metadata preserved.
// Entries compressed with gzip (raw deflate) or bzip2 can be read; new
// entries are stored uncompressed. Every written archive carries a SHA1
// signature.
package pharrepo

import (
	"compress/bzip2"
	"compress/flate"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
	"math"
	"os"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"

	"github.com/mcdonaldj/archiver/internal/adapters/staged"
	"github.com/mcdonaldj/archiver/internal/ports"
)

// Repository implements ports.Repository for phar archives.
type Repository struct {
	*staged.Archive[*manifestEntry]
	codec *codec
}

// New creates a phar repository that reads and writes through bfs.
func New(bfs billy.Filesystem) *Repository {
	c := &codec{bfs: bfs}
	return &Repository{Archive: staged.New[*manifestEntry](bfs, c), codec: c}
}

// codec keeps the stub, alias and metadata of the open archive so they
// survive a rewrite.
type codec struct {
	bfs billy.Filesystem
	man *manifest
}

func (c *codec) Reset() {
	c.man = &manifest{stub: []byte(DefaultStub)}
}

func (c *codec) Load(f billy.File, size int64) ([]staged.Entry[*manifestEntry], error) {
	m, err := readManifest(f, size)
	if err != nil {
		return nil, fmt.Errorf("reading phar: %w", err)
	}
	members := make([]staged.Entry[*manifestEntry], 0, len(m.entries))
	for i := range m.entries {
		e := &m.entries[i]
		members = append(members, staged.Entry[*manifestEntry]{Name: e.name, Stored: e})
	}
	c.man = m
	return members, nil
}

func (c *codec) Check(source string, info os.FileInfo) error {
	if info.Size() > math.MaxUint32 {
		return fmt.Errorf("%s is too large for a phar entry: %d bytes", source, info.Size())
	}
	return nil
}

// Open decompresses a stored entry and checks it against its CRC32 as it
// is read.
func (c *codec) Open(f billy.File, e *staged.Entry[*manifestEntry]) (io.ReadCloser, error) {
	s := e.Stored
	raw := io.NewSectionReader(f, s.offset, int64(s.compressedSize))

	var rc io.ReadCloser
	switch {
	case s.flags&entryCompressGZ != 0:
		rc = flate.NewReader(raw)
	case s.flags&entryCompressBZ != 0:
		rc = io.NopCloser(bzip2.NewReader(raw))
	default:
		rc = io.NopCloser(raw)
	}
	return &crcReader{rc: rc, name: e.Name, want: s.crc, h: crc32.NewIEEE()}, nil
}

func (c *codec) Size(e *staged.Entry[*manifestEntry]) int64 {
	return int64(e.Stored.size)
}

// Write copies stored payloads as they are and stores new entries
// uncompressed.
func (c *codec) Write(w io.Writer, f billy.File, entries []*staged.Entry[*manifestEntry]) error {
	out := &manifest{
		stub:     c.man.stub,
		flags:    c.man.flags,
		alias:    c.man.alias,
		metadata: c.man.metadata,
	}
	payloads := make([][]byte, 0, len(entries))

	for _, e := range entries {
		if !e.IsStaged() {
			raw := make([]byte, e.Stored.compressedSize)
			if _, err := f.ReadAt(raw, e.Stored.offset); err != nil && err != io.EOF {
				return fmt.Errorf("copying %s: %w", e.Name, err)
			}
			out.entries = append(out.entries, *e.Stored)
			payloads = append(payloads, raw)
			continue
		}

		data, err := util.ReadFile(c.bfs, e.Source)
		if err != nil {
			return ports.Wrap(ports.ErrSourceUnreadable, err, "reading %s", e.Source)
		}
		if int64(len(data)) > math.MaxUint32 {
			return fmt.Errorf("%s is too large for a phar entry: %d bytes", e.Source, len(data))
		}
		out.entries = append(out.entries, manifestEntry{
			name:           e.Name,
			size:           uint32(len(data)),
			timestamp:      uint32(e.Info.ModTime().Unix()),
			compressedSize: uint32(len(data)),
			crc:            crc32.ChecksumIEEE(data),
			flags:          uint32(e.Info.Mode().Perm()) & entryPermMask,
		})
		payloads = append(payloads, data)
	}

	if err := writeArchive(w, out, payloads); err != nil {
		return fmt.Errorf("writing phar: %w", err)
	}
	return nil
}

// crcReader verifies the CRC32 of an entry once it has been read to the end.
type crcReader struct {
	rc   io.ReadCloser
	name string
	want uint32
	h    hash.Hash32
}

func (c *crcReader) Read(p []byte) (int, error) {
	n, err := c.rc.Read(p)
	c.h.Write(p[:n])
	if err == io.EOF && c.h.Sum32() != c.want {
		return n, fmt.Errorf("entry %q: crc mismatch", c.name)
	}
	return n, err
}

func (c *crcReader) Close() error {
	return c.rc.Close()
}

// Compile-time checks that Repository implements the repository ports.
var (
	_ ports.Repository = (*Repository)(nil)
	_ ports.Sizer      = (*Repository)(nil)
)
