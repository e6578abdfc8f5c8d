// Package formats maps archive format tags to repository implementations.
package formats

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-git/go-billy/v5"

	"github.com/mcdonaldj/archiver/internal/adapters/pharrepo"
	"github.com/mcdonaldj/archiver/internal/adapters/ziprepo"
	"github.com/mcdonaldj/archiver/internal/ports"
)

// Format tags an archive implementation.
type Format string

const (
	Zip  Format = "zip"
	Phar Format = "phar"
)

// Factory builds a repository that stores archives on bfs.
type Factory func(bfs billy.Filesystem) ports.Repository

// Registry holds the known formats. The zero value is empty; use NewRegistry
// for one populated with the built-in formats.
type Registry struct {
	factories map[Format]Factory
}

// NewRegistry returns a registry with zip and phar registered.
func NewRegistry() *Registry {
	r := &Registry{}
	r.Register(Zip, func(bfs billy.Filesystem) ports.Repository { return ziprepo.New(bfs) })
	r.Register(Phar, func(bfs billy.Filesystem) ports.Repository { return pharrepo.New(bfs) })
	return r
}

// Register adds or replaces the factory for a format.
func (r *Registry) Register(f Format, factory Factory) {
	if r.factories == nil {
		r.factories = make(map[Format]Factory)
	}
	r.factories[Format(strings.ToLower(string(f)))] = factory
}

// Lookup resolves a tag case-insensitively.
func (r *Registry) Lookup(tag string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(tag)))
	if f == "" {
		f = Zip
	}
	if _, ok := r.factories[f]; !ok {
		return "", ports.Wrap(ports.ErrUnknownFormat, nil, "format %q (known: %s)", tag, strings.Join(r.Names(), ", "))
	}
	return f, nil
}

// New builds a repository for a registered format.
func (r *Registry) New(f Format, bfs billy.Filesystem) (ports.Repository, error) {
	f, err := r.Lookup(string(f))
	if err != nil {
		return nil, err
	}
	return r.factories[f](bfs), nil
}

// Names lists the registered tags in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for f := range r.factories {
		names = append(names, string(f))
	}
	sort.Strings(names)
	return names
}

// Detect picks a registered format from the archive's extension, falling
// back to def when the extension is not a known tag.
func (r *Registry) Detect(path string, def Format) Format {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if _, ok := r.factories[Format(ext)]; ok {
		return Format(ext)
	}
	return def
}
