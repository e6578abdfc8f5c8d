// Package finder enumerates regular files below a directory on a billy filesystem.
package finder

import (
	"errors"
	"iter"
	"os"
	"path"
	"path/filepath"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"

	"github.com/mcdonaldj/archiver/internal/ports"
)

// errStop ends a walk early when the consumer stops ranging.
var errStop = errors.New("stop walking")

// Finder implements ports.Finder. Nothing is ignored: dot files and
// VCS directories are listed like any other file.
type Finder struct {
	bfs billy.Filesystem
}

// New creates a Finder over bfs.
func New(bfs billy.Filesystem) *Finder {
	return &Finder{bfs: bfs}
}

// Files walks root depth-first in lexical order with util.Walk. Symbolic
// links are not followed. Each call starts a fresh walk.
func (f *Finder) Files(root string) iter.Seq2[ports.FoundFile, error] {
	root = filepath.Clean(root)
	return func(yield func(ports.FoundFile, error) bool) {
		info, err := f.bfs.Stat(root)
		if err != nil {
			yield(ports.FoundFile{}, err)
			return
		}
		if !info.IsDir() {
			yield(ports.FoundFile{}, &os.PathError{Op: "walk", Path: root, Err: errors.New("not a directory")})
			return
		}

		err = util.Walk(f.bfs, root, func(p string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if !info.Mode().IsRegular() {
				return nil
			}
			rel, err := filepath.Rel(root, p)
			if err != nil {
				return err
			}
			rel = filepath.ToSlash(rel)
			dir := path.Dir(rel)
			if dir == "." {
				dir = ""
			}
			if !yield(ports.FoundFile{Path: p, RelPath: rel, RelDir: dir}, nil) {
				return errStop
			}
			return nil
		})
		if err != nil && !errors.Is(err, errStop) {
			yield(ports.FoundFile{}, err)
		}
	}
}

// Compile-time check that Finder implements ports.Finder.
var _ ports.Finder = (*Finder)(nil)
