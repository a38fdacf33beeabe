// internal/store/memory.go
//
// In-memory implementation of the Store interface.
// Used for tests and when STORE=memory; values are lost when the process restarts.
//
// Characteristics:
//   - Values keyed by (profile, key).
//   - Concurrency-safe via RWMutex (concurrent reads allowed, writes exclusive).
//   - Get returns ErrNotFound for missing keys.

package store

import (
	"context"
	"errors"
	"sync"
)

// ErrNotFound is returned by Get when no value is stored for a key.
var ErrNotFound = errors.New("not found")

// Store persists per-profile preference values.
// Implementations: memory (this file) and SQLite.
type Store interface {
	// Get returns the stored value or ErrNotFound.
	Get(ctx context.Context, profile, key string) (string, error)

	// Set inserts or replaces a value.
	Set(ctx context.Context, profile, key, value string) error
}

type memKey struct{ profile, key string }

// memory is an in-memory map-based Store implementation.
type memory struct {
	mu   sync.RWMutex      // guards vals
	vals map[memKey]string // keyed by profile + key
}

// NewMemoryStore constructs a new in-memory Store.
func NewMemoryStore() Store {
	return &memory{vals: make(map[memKey]string)}
}

func (m *memory) Get(ctx context.Context, profile, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if v, ok := m.vals[memKey{profile, key}]; ok {
		return v, nil
	}
	return "", ErrNotFound
}

func (m *memory) Set(ctx context.Context, profile, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vals[memKey{profile, key}] = value
	return nil
}
