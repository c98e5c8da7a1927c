package storage

import (
	"fmt"
	"maps"
	"slices"
	"sync"
)

// Backend persists raw collection bodies by name.
type Backend interface {
	// Read returns the stored body of a collection, or ErrNoCollection if it
	// has never been written.
	Read(name string) ([]byte, error)
	// Write replaces the body of a collection.
	Write(name string, data []byte) error
	// List returns the names of all stored collections in ascending order.
	List() ([]string, error)
}

// Backend kinds accepted by NewBackend.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// NewBackend opens the backend of the given kind rooted at dataDir.
func NewBackend(kind, dataDir string) (Backend, error) {
	switch kind {
	case "", BackendJSON:
		return NewFileBackend(dataDir)
	case BackendSQLite:
		return OpenSQLite(dataDir)
	case BackendMemory:
		return NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", kind)
	}
}

// MemoryBackend keeps collections in process memory.
type MemoryBackend struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{data: make(map[string][]byte)}
}

func (m *MemoryBackend) Read(name string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.data[name]
	if !ok {
		return nil, ErrNoCollection
	}
	return slices.Clone(data), nil
}

func (m *MemoryBackend) Write(name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[name] = slices.Clone(data)
	return nil
}

func (m *MemoryBackend) List() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Sorted(maps.Keys(m.data)), nil
}
