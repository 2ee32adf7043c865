package securestore

import (
	"context"
	"sync"
)

// Memory is a thread-safe in-memory implementation of the Store interface.
// Nothing is encrypted; it exists for tests and ephemeral sessions.
type Memory struct {
	mu    sync.RWMutex
	items map[string][]byte
}

// NewMemory creates a new in-memory secure store
func NewMemory() *Memory {
	return &Memory{
		items: make(map[string][]byte),
	}
}

// GetItem retrieves a value by key
func (m *Memory) GetItem(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, exists := m.items[key]
	if !exists {
		return nil, ErrNotFound
	}

	// Return a copy to prevent external modifications
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

// SetItem stores or replaces a value
func (m *Memory) SetItem(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := make([]byte, len(value))
	copy(stored, value)
	m.items[key] = stored
	return nil
}

// RemoveItem deletes a value; removing a missing key is not an error
func (m *Memory) RemoveItem(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.items, key)
	return nil
}

// Close is a no-op for the in-memory store
func (m *Memory) Close() error {
	return nil
}

var _ Store = (*Memory)(nil)
