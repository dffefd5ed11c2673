package tokenstore

import (
	"context"
	"sync"
)

// Memory is an in-process [Store]. Tokens do not survive a restart.
type Memory struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{values: make(map[string]string, 2)}
}

// Load implements [Store].
func (m *Memory) Load(_ context.Context) (Pair, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Pair{Access: m.values[AccessKey], Refresh: m.values[RefreshKey]}, nil
}

// Save implements [Store].
func (m *Memory) Save(_ context.Context, pair Pair) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.put(AccessKey, pair.Access)
	m.put(RefreshKey, pair.Refresh)
	return nil
}

// SetAccess implements [Store].
func (m *Memory) SetAccess(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.put(AccessKey, token)
	return nil
}

// Clear implements [Store].
func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, AccessKey)
	delete(m.values, RefreshKey)
	return nil
}

func (m *Memory) put(key, value string) {
	if value == "" {
		delete(m.values, key)
		return
	}
	m.values[key] = value
}
