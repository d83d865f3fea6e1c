// Package settings provides the key-value settings store the component
// lifecycle manager persists enable/disable state to, and that component
// instances use for their own configuration. The interface is deliberately
// narrow: callers get raw bytes and handle their own serialization.
package settings

import (
	"maps"
	"sync"
)

// Store is the persistence boundary for component settings.
// Get reports ok=false when the key has never been written; implementations
// return an error only when the backing store itself is unreachable.
type Store interface {
	Get(key string) (value []byte, ok bool, err error)
	Put(key string, value []byte) error
	Delete(key string) error
}

// Memory is an in-process Store for tests and embedded single-binary use.
// The zero value is not usable; construct with NewMemory.
type Memory struct {
	mu     sync.RWMutex
	values map[string][]byte
}

// NewMemory creates an empty in-memory settings store
func NewMemory() *Memory {
	return &Memory{
		values: make(map[string][]byte),
	}
}

// Get returns the stored value for key, if any
func (m *Memory) Get(key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.values[key]
	if !ok {
		return nil, false, nil
	}

	// Copy so callers cannot mutate stored state
	out := make([]byte, len(value))
	copy(out, value)
	return out, true, nil
}

// Put stores value under key, replacing any previous value
func (m *Memory) Put(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := make([]byte, len(value))
	copy(stored, value)
	m.values[key] = stored
	return nil
}

// Delete removes key from the store; deleting an absent key is not an error
func (m *Memory) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.values, key)
	return nil
}

// Snapshot returns a copy of all stored values
func (m *Memory) Snapshot() map[string][]byte {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string][]byte, len(m.values))
	maps.Copy(result, m.values)
	return result
}
