package clientstore

import (
	"context"
	"sync"
)

// MemoryStore keeps values in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]map[string]string
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]map[string]string)}
}

func (m *MemoryStore) Get(_ context.Context, clientID, key string) (string, error) {
	if err := validate(clientID, key); err != nil {
		return "", err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[clientID][key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *MemoryStore) Set(_ context.Context, clientID, key, value string) error {
	if err := validate(clientID, key); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	bucket, ok := m.values[clientID]
	if !ok {
		bucket = make(map[string]string)
		m.values[clientID] = bucket
	}
	bucket[key] = value
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, clientID, key string) error {
	if err := validate(clientID, key); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values[clientID], key)
	return nil
}
