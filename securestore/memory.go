package securestore

import (
	"context"
	"sync"

	"github.com/attestify/keybox-provisioner/interfaces"
)

// MemoryStore is an in-process RecordStore for tests and dry runs. Records
// are copied on the way in and out, so callers cannot alias its state.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string][]byte
}

// NewMemoryStore creates an empty in-memory record store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string][]byte)}
}

func (m *MemoryStore) WriteRecord(_ context.Context, name string, data []byte) error {
	if err := validateRecordName(name); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[name] = append([]byte(nil), data...)
	return nil
}

func (m *MemoryStore) ReadRecord(_ context.Context, name string) ([]byte, error) {
	if err := validateRecordName(name); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.records[name]
	if !ok {
		return nil, interfaces.ErrRecordNotFound
	}
	return append([]byte(nil), data...), nil
}

func (m *MemoryStore) DeleteRecord(_ context.Context, name string) error {
	if err := validateRecordName(name); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, name)
	return nil
}

// Len reports the number of stored records.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}
