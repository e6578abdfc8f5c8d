package mocks

import (
	"iter"

	"github.com/mcdonaldj/archiver/internal/ports"
)

// MockFinder implements ports.Finder for testing.
type MockFinder struct {
	// Trees maps root directories to the files Files yields
	Trees map[string][]ports.FoundFile
	// Errors maps root directories to an error yielded after the files
	Errors map[string]error
}

// NewMockFinder creates a new mock finder.
func NewMockFinder() *MockFinder {
	return &MockFinder{
		Trees:  make(map[string][]ports.FoundFile),
		Errors: make(map[string]error),
	}
}

// Files yields the configured tree for root, then its error if any.
func (m *MockFinder) Files(root string) iter.Seq2[ports.FoundFile, error] {
	return func(yield func(ports.FoundFile, error) bool) {
		for _, f := range m.Trees[root] {
			if !yield(f, nil) {
				return
			}
		}
		if err, ok := m.Errors[root]; ok {
			yield(ports.FoundFile{}, err)
		}
	}
}

// Compile-time check that MockFinder implements ports.Finder.
var _ ports.Finder = (*MockFinder)(nil)
