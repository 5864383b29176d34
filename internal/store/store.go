// Package store defines the persistence interfaces for identities and
// presence records. The core keeps everything in memory and treats storage
// as a write-behind journal: appends happen asynchronously and reads happen
// once at startup to rebuild state.
package store

import (
	"context"

	"github.com/mhornych/presence/internal/gallery"
	"github.com/mhornych/presence/internal/ledger"
)

// IdentityStore persists enrolled identities with their embeddings.
type IdentityStore interface {
	// AppendIdentity inserts or replaces an identity.
	AppendIdentity(ctx context.Context, identity gallery.Identity) error
	// RemoveIdentity deletes an identity. Removing a missing ID is not an error.
	RemoveIdentity(ctx context.Context, id string) error
	// LoadAllIdentities returns every stored identity.
	LoadAllIdentities(ctx context.Context) ([]gallery.Identity, error)
}

// RecordStore persists presence records.
type RecordStore interface {
	// AppendRecord inserts a presence record.
	AppendRecord(ctx context.Context, record ledger.PresenceRecord) error
	// LoadAllRecords returns every stored record in observation order.
	LoadAllRecords(ctx context.Context) ([]ledger.PresenceRecord, error)
	// LoadRecordsByDay returns records for one day key in observation order.
	LoadRecordsByDay(ctx context.Context, dayKey string) ([]ledger.PresenceRecord, error)
}

// Store combines identity and record persistence.
type Store interface {
	IdentityStore
	RecordStore
	Close() error
}
