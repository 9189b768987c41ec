package store

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is a process-local KV backend.
// Nothing survives a restart; use it for tests and throwaway runs only.
type MemoryStore struct {
	mu     sync.RWMutex
	data   map[string]string
	closed bool
}

var _ KV = (*MemoryStore)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{data: make(map[string]string)}
}

func (m *MemoryStore) check(ctx context.Context, op, key string) error {
	if err := ctx.Err(); err != nil {
		return storeErr(op, key, err)
	}
	if m.closed {
		return storeErr(op, key, errClosed)
	}
	return nil
}

// Get returns the value stored under key.
func (m *MemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(ctx, "get", key); err != nil {
		return "", false, err
	}
	v, ok := m.data[key]
	return v, ok, nil
}

// Set stores value under key.
func (m *MemoryStore) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx, "set", key); err != nil {
		return err
	}
	m.data[key] = value
	return nil
}

// Remove deletes key.
func (m *MemoryStore) Remove(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx, "remove", key); err != nil {
		return err
	}
	delete(m.data, key)
	return nil
}

// Keys returns every key in byte order.
func (m *MemoryStore) Keys(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(ctx, "keys", ""); err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// MultiGet returns entries in request order.
func (m *MemoryStore) MultiGet(ctx context.Context, keys []string) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(ctx, "multi_get", ""); err != nil {
		return nil, err
	}
	out := make([]Entry, len(keys))
	for i, k := range keys {
		v, ok := m.data[k]
		out[i] = Entry{Key: k, Value: v, Found: ok}
	}
	return out, nil
}

// Close marks the store closed; later calls fail with STORE_ERROR.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
