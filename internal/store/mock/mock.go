// Package mock provides in-memory implementations of the store interfaces
// for testing and for running the server without a database.
package mock

import (
	"context"
	"sync"

	"github.com/mhornych/presence/internal/gallery"
	"github.com/mhornych/presence/internal/ledger"
	"github.com/mhornych/presence/internal/store"
)

// MockStore is an in-memory store with error injection.
type MockStore struct {
	mu         sync.RWMutex
	identities map[string]gallery.Identity
	records    []ledger.PresenceRecord

	// Error injection
	AppendIdentityError    error
	RemoveIdentityError    error
	LoadAllIdentitiesError error
	AppendRecordError      error
	LoadAllRecordsError    error
	LoadRecordsByDayError  error
}

// NewMockStore creates an empty in-memory store.
func NewMockStore() *MockStore {
	return &MockStore{
		identities: make(map[string]gallery.Identity),
	}
}

// AppendIdentity inserts or replaces an identity.
func (m *MockStore) AppendIdentity(ctx context.Context, identity gallery.Identity) error {
	if m.AppendIdentityError != nil {
		return m.AppendIdentityError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.identities[identity.ID] = identity
	return nil
}

// RemoveIdentity deletes an identity.
func (m *MockStore) RemoveIdentity(ctx context.Context, id string) error {
	if m.RemoveIdentityError != nil {
		return m.RemoveIdentityError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.identities, id)
	return nil
}

// LoadAllIdentities returns every stored identity.
func (m *MockStore) LoadAllIdentities(ctx context.Context) ([]gallery.Identity, error) {
	if m.LoadAllIdentitiesError != nil {
		return nil, m.LoadAllIdentitiesError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]gallery.Identity, 0, len(m.identities))
	for _, identity := range m.identities {
		out = append(out, identity)
	}
	return out, nil
}

// AppendRecord inserts a presence record.
func (m *MockStore) AppendRecord(ctx context.Context, record ledger.PresenceRecord) error {
	if m.AppendRecordError != nil {
		return m.AppendRecordError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, record)
	return nil
}

// LoadAllRecords returns every stored record in append order.
func (m *MockStore) LoadAllRecords(ctx context.Context) ([]ledger.PresenceRecord, error) {
	if m.LoadAllRecordsError != nil {
		return nil, m.LoadAllRecordsError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ledger.PresenceRecord, len(m.records))
	copy(out, m.records)
	return out, nil
}

// LoadRecordsByDay returns records matching the day key.
func (m *MockStore) LoadRecordsByDay(ctx context.Context, dayKey string) ([]ledger.PresenceRecord, error) {
	if m.LoadRecordsByDayError != nil {
		return nil, m.LoadRecordsByDayError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ledger.PresenceRecord
	for _, r := range m.records {
		if r.DayKey == dayKey {
			out = append(out, r)
		}
	}
	return out, nil
}

// RecordCount returns the number of stored records.
func (m *MockStore) RecordCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// Close is a no-op for the in-memory store.
func (m *MockStore) Close() error {
	return nil
}

// Verify interface compliance
var _ store.Store = (*MockStore)(nil)
