package mocks

import (
	"bytes"
	"io"
	"slices"

	"github.com/mcdonaldj/archiver/internal/ports"
)

// MockRepository implements ports.Repository in memory for testing.
type MockRepository struct {
	// Entries maps entry names to content
	Entries map[string][]byte
	// Order holds entry names in archive order
	Order []string
	// Sources maps local source paths to the content AddFile stores
	Sources map[string][]byte
	// Errors maps method names to errors
	Errors map[string]error

	// OpenCalls records calls to Open
	OpenCalls []OpenCall
	// AddCalls records calls to AddFile
	AddCalls []AddCall
	// RemoveCalls records names passed to RemoveFile
	RemoveCalls []string
	// CloseCalls counts calls to Close
	CloseCalls int

	open bool
}

// OpenCall records parameters of an Open call.
type OpenCall struct {
	Path   string
	Create bool
}

// AddCall records parameters of an AddFile call.
type AddCall struct {
	Source string
	Name   string
}

// NewMockRepository creates a new mock repository.
func NewMockRepository() *MockRepository {
	return &MockRepository{
		Entries: make(map[string][]byte),
		Sources: make(map[string][]byte),
		Errors:  make(map[string]error),
	}
}

// Put seeds an entry as if it were already stored in the archive.
func (m *MockRepository) Put(name, content string) {
	if _, ok := m.Entries[name]; !ok {
		m.Order = append(m.Order, name)
	}
	m.Entries[name] = []byte(content)
}

// Open marks the repository open.
func (m *MockRepository) Open(path string, create bool) error {
	m.OpenCalls = append(m.OpenCalls, OpenCall{Path: path, Create: create})
	if err, ok := m.Errors["Open"]; ok {
		return err
	}
	m.open = true
	return nil
}

// FileExists reports whether an entry is stored.
func (m *MockRepository) FileExists(name string) bool {
	_, ok := m.Entries[name]
	return ok
}

// FileContent returns the stored bytes of an entry.
func (m *MockRepository) FileContent(name string) ([]byte, error) {
	if err, ok := m.Errors["FileContent"]; ok {
		return nil, err
	}
	data, ok := m.Entries[name]
	if !ok {
		return nil, ports.ErrEntryNotFound
	}
	return data, nil
}

// FileStream returns a reader over the stored bytes of an entry.
func (m *MockRepository) FileStream(name string) (io.ReadCloser, error) {
	if err, ok := m.Errors["FileStream"]; ok {
		return nil, err
	}
	data, ok := m.Entries[name]
	if !ok {
		return nil, ports.ErrEntryNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// AddFile stores the content registered in Sources for source.
func (m *MockRepository) AddFile(source, name string) error {
	m.AddCalls = append(m.AddCalls, AddCall{Source: source, Name: name})
	if err, ok := m.Errors["AddFile"]; ok {
		return err
	}
	data, ok := m.Sources[source]
	if !ok {
		return ports.ErrSourceUnreadable
	}
	m.Put(name, string(data))
	return nil
}

// RemoveFile deletes an entry if present.
func (m *MockRepository) RemoveFile(name string) error {
	m.RemoveCalls = append(m.RemoveCalls, name)
	if err, ok := m.Errors["RemoveFile"]; ok {
		return err
	}
	if _, ok := m.Entries[name]; !ok {
		return nil
	}
	delete(m.Entries, name)
	m.Order = slices.DeleteFunc(m.Order, func(n string) bool { return n == name })
	return nil
}

// Each visits a snapshot of Order.
func (m *MockRepository) Each(visit func(name string) error) error {
	for _, name := range slices.Clone(m.Order) {
		if _, ok := m.Entries[name]; !ok {
			continue
		}
		if err := visit(name); err != nil {
			return err
		}
	}
	return nil
}

// Status reports StatusOK while open and StatusClosed otherwise.
func (m *MockRepository) Status() ports.Status {
	if m.open {
		return ports.StatusOK
	}
	return ports.StatusClosed
}

// Close marks the repository closed.
func (m *MockRepository) Close() error {
	m.CloseCalls++
	m.open = false
	if err, ok := m.Errors["Close"]; ok {
		return err
	}
	return nil
}

// Compile-time check that MockRepository implements ports.Repository.
var _ ports.Repository = (*MockRepository)(nil)
