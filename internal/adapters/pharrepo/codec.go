package pharrepo

import (
	"bytes"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"io"
)

// Manifest flags and signature constants of the PHAR format.
const (
	flagHasSignature uint32 = 0x00010000

	entryPermMask   uint32 = 0x000001FF
	entryCompressGZ uint32 = 0x00001000
	entryCompressBZ uint32 = 0x00002000

	sigMD5    uint32 = 0x0001
	sigSHA1   uint32 = 0x0002
	sigSHA256 uint32 = 0x0003
	sigSHA512 uint32 = 0x0004

	sigMagic = "GBMB"
)

// DefaultStub is written in front of new archives.
const DefaultStub = "<?php __HALT_COMPILER(); ?>\r\n"

// apiVersion is stored as two bytes, most significant first (1.1.1).
var apiVersion = [2]byte{0x11, 0x10}

var haltToken = []byte("__HALT_COMPILER();")

// Limits applied while parsing untrusted archives.
const (
	maxManifestLength = 100 * 1024 * 1024
	maxNameLength     = 64 * 1024
	maxMetadataLength = 16 * 1024 * 1024
	stubScanChunk     = 64 * 1024
)

var errMalformed = errors.New("malformed phar")

// manifest is the parsed header of a phar file.
type manifest struct {
	stub     []byte
	flags    uint32
	alias    []byte
	metadata []byte
	entries  []manifestEntry
}

// manifestEntry describes one stored file. offset is absolute in the archive.
type manifestEntry struct {
	name           string
	size           uint32
	timestamp      uint32
	compressedSize uint32
	crc            uint32
	flags          uint32
	metadata       []byte
	offset         int64
}

// readManifest parses the stub and manifest of the archive in r.
func readManifest(r io.ReaderAt, size int64) (*manifest, error) {
	stubEnd, err := findStubEnd(r, size)
	if err != nil {
		return nil, err
	}

	stub := make([]byte, stubEnd)
	if _, err := r.ReadAt(stub, 0); err != nil {
		return nil, err
	}

	sr := io.NewSectionReader(r, stubEnd, size-stubEnd)
	var manifestLen uint32
	if err := binary.Read(sr, binary.LittleEndian, &manifestLen); err != nil {
		return nil, fmt.Errorf("%w: manifest length: %w", errMalformed, err)
	}
	if manifestLen > maxManifestLength || int64(manifestLen) > size-stubEnd-4 {
		return nil, fmt.Errorf("%w: manifest length %d out of range", errMalformed, manifestLen)
	}

	raw := make([]byte, manifestLen)
	if _, err := io.ReadFull(sr, raw); err != nil {
		return nil, fmt.Errorf("%w: manifest: %w", errMalformed, err)
	}
	br := bytes.NewReader(raw)

	var fileCount uint32
	var version [2]byte
	m := &manifest{stub: stub}
	if err := readAll(br, &fileCount, &version, &m.flags); err != nil {
		return nil, err
	}
	if m.alias, err = readBlob(br, maxNameLength); err != nil {
		return nil, err
	}
	if m.metadata, err = readBlob(br, maxMetadataLength); err != nil {
		return nil, err
	}

	offset := stubEnd + 4 + int64(manifestLen)
	for i := uint32(0); i < fileCount; i++ {
		var e manifestEntry
		name, err := readBlob(br, maxNameLength)
		if err != nil {
			return nil, err
		}
		e.name = string(name)
		if err := readAll(br, &e.size, &e.timestamp, &e.compressedSize, &e.crc, &e.flags); err != nil {
			return nil, err
		}
		if e.metadata, err = readBlob(br, maxMetadataLength); err != nil {
			return nil, err
		}
		e.offset = offset
		offset += int64(e.compressedSize)
		if offset > size {
			return nil, fmt.Errorf("%w: entry %q extends past end of file", errMalformed, e.name)
		}
		m.entries = append(m.entries, e)
	}

	if m.flags&flagHasSignature != 0 {
		if err := verifySignature(r, size, offset); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// findStubEnd returns the offset just after "__HALT_COMPILER();" and an
// optional " ?>" plus line ending.
func findStubEnd(r io.ReaderAt, size int64) (int64, error) {
	var buf []byte
	chunk := make([]byte, stubScanChunk)
	for pos := int64(0); pos < size; {
		n, err := r.ReadAt(chunk, pos)
		buf = append(buf, chunk[:n]...)
		pos += int64(n)

		if idx := bytes.Index(buf, haltToken); idx >= 0 {
			end := idx + len(haltToken)
			// Make sure the optional suffix is in the buffer.
			for len(buf) < end+5 && pos < size {
				n, err := r.ReadAt(chunk, pos)
				buf = append(buf, chunk[:n]...)
				pos += int64(n)
				if err != nil && !errors.Is(err, io.EOF) {
					return 0, err
				}
			}
			rest := buf[end:]
			if bytes.HasPrefix(rest, []byte(" ?>")) {
				end += 3
				rest = rest[3:]
			}
			switch {
			case bytes.HasPrefix(rest, []byte("\r\n")):
				end += 2
			case bytes.HasPrefix(rest, []byte("\n")):
				end++
			}
			return int64(end), nil
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return 0, err
		}
		if n == 0 {
			break
		}
	}
	return 0, fmt.Errorf("%w: no __HALT_COMPILER(); in stub", errMalformed)
}

func verifySignature(r io.ReaderAt, size, dataEnd int64) error {
	var tail [8]byte
	if size < dataEnd+8 {
		return fmt.Errorf("%w: missing signature", errMalformed)
	}
	if _, err := r.ReadAt(tail[:], size-8); err != nil {
		return err
	}
	if string(tail[4:]) != sigMagic {
		return fmt.Errorf("%w: bad signature magic", errMalformed)
	}

	sigType := binary.LittleEndian.Uint32(tail[:4])
	h, err := signatureHash(sigType)
	if err != nil {
		return err
	}
	sigLen := int64(h.Size())
	sigStart := size - 8 - sigLen
	if sigStart < dataEnd {
		return fmt.Errorf("%w: signature overlaps data", errMalformed)
	}

	if _, err := io.Copy(h, io.NewSectionReader(r, 0, sigStart)); err != nil {
		return err
	}
	stored := make([]byte, sigLen)
	if _, err := r.ReadAt(stored, sigStart); err != nil {
		return err
	}
	if !bytes.Equal(h.Sum(nil), stored) {
		return fmt.Errorf("%w: signature mismatch", errMalformed)
	}
	return nil
}

func signatureHash(sigType uint32) (hash.Hash, error) {
	switch sigType {
	case sigMD5:
		return md5.New(), nil
	case sigSHA1:
		return sha1.New(), nil
	case sigSHA256:
		return sha256.New(), nil
	case sigSHA512:
		return sha512.New(), nil
	default:
		return nil, fmt.Errorf("%w: unsupported signature type %#x", errMalformed, sigType)
	}
}

// writeArchive encodes a complete phar with a SHA1 signature. payloads
// holds the stored bytes of each entry, in manifest order.
func writeArchive(w io.Writer, m *manifest, payloads [][]byte) error {
	var body bytes.Buffer
	body.Write(m.stub)

	var man bytes.Buffer
	writeAll(&man, uint32(len(m.entries)), apiVersion, m.flags|flagHasSignature)
	writeBlob(&man, m.alias)
	writeBlob(&man, m.metadata)
	for _, e := range m.entries {
		writeBlob(&man, []byte(e.name))
		writeAll(&man, e.size, e.timestamp, e.compressedSize, e.crc, e.flags)
		writeBlob(&man, e.metadata)
	}

	writeAll(&body, uint32(man.Len()))
	body.Write(man.Bytes())
	for _, p := range payloads {
		body.Write(p)
	}

	sum := sha1.Sum(body.Bytes())
	body.Write(sum[:])
	writeAll(&body, sigSHA1)
	body.WriteString(sigMagic)

	_, err := w.Write(body.Bytes())
	return err
}

func readAll(r io.Reader, fields ...any) error {
	for _, f := range fields {
		if err := binary.Read(r, binary.LittleEndian, f); err != nil {
			return fmt.Errorf("%w: %w", errMalformed, err)
		}
	}
	return nil
}

func readBlob(r io.Reader, limit uint32) ([]byte, error) {
	var n uint32
	if err := readAll(r, &n); err != nil {
		return nil, err
	}
	if n > limit {
		return nil, fmt.Errorf("%w: field length %d exceeds %d", errMalformed, n, limit)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, fmt.Errorf("%w: %w", errMalformed, err)
	}
	return b, nil
}

func writeAll(w *bytes.Buffer, fields ...any) {
	for _, f := range fields {
		// bytes.Buffer writes never fail
		_ = binary.Write(w, binary.LittleEndian, f)
	}
}

func writeBlob(w *bytes.Buffer, b []byte) {
	writeAll(w, uint32(len(b)))
	w.Write(b)
}
