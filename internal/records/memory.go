package records

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory Store implementation suitable for tests and
// single-instance deployments. State does not survive a restart; production
// deployments should substitute a durable Store behind the same interface.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]PaymentRecord
	order   []string // insertion order, drives deterministic scans
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]PaymentRecord),
	}
}

// Put upserts the record at key. First insertion of a key fixes its position
// in the scan order; overwrites keep the original position.
func (m *MemoryStore) Put(_ context.Context, key string, record PaymentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.records[key]; !exists {
		m.order = append(m.order, key)
	}
	m.records[key] = record
	return nil
}

// Get retrieves the record at key.
func (m *MemoryStore) Get(_ context.Context, key string) (PaymentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	record, ok := m.records[key]
	if !ok {
		return PaymentRecord{}, ErrNotFound
	}
	return record, nil
}

// FindByExternalReference returns the first record (in insertion order) whose
// ExternalReference equals ref.
func (m *MemoryStore) FindByExternalReference(_ context.Context, ref string) (string, PaymentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, key := range m.order {
		record, ok := m.records[key]
		if !ok {
			continue
		}
		if record.ExternalReference == ref {
			return key, record, nil
		}
	}
	return "", PaymentRecord{}, ErrNotFound
}

// Len reports the number of stored records.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// Close implements the Store interface. MemoryStore holds no external resources.
func (m *MemoryStore) Close() error {
	return nil
}
