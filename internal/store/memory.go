package store

import (
	"sync"

	perrors "github.com/p-blackswan/synapse/internal/errors"
)

// MemoryStore is an in-memory Storage for tests and ephemeral sessions.
type MemoryStore struct {
	mu    sync.RWMutex
	data  map[string]string
	quota int
}

// NewMemoryStore creates an empty in-memory store with no quota.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]string)}
}

// SetQuota caps the total bytes (keys plus values) the store accepts.
// Writes that would exceed it fail with ErrQuotaExceeded. Zero disables the cap.
func (m *MemoryStore) SetQuota(bytes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quota = bytes
}

func (m *MemoryStore) Get(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *MemoryStore) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.quota > 0 {
		size := len(key) + len(value)
		for k, v := range m.data {
			if k != key {
				size += len(k) + len(v)
			}
		}
		if size > m.quota {
			return perrors.ErrQuotaExceeded
		}
	}
	m.data[key] = value
	return nil
}

func (m *MemoryStore) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// Len returns the number of stored keys.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

// Disabled is a Storage whose every operation fails, modelling a runtime where
// local storage is switched off.
type Disabled struct{}

func (Disabled) Get(string) (string, bool, error) { return "", false, perrors.ErrStorageUnavailable }
func (Disabled) Set(string, string) error         { return perrors.ErrStorageUnavailable }
func (Disabled) Remove(string) error              { return perrors.ErrStorageUnavailable }
