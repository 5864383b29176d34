// Package ledger is the deduplicating, append-only store of presence
// assertions. Its single most important property: for one (identity, session,
// day) key, concurrent record calls produce exactly one Created outcome.
package ledger

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mhornych/presence/internal/bus"
	"github.com/mhornych/presence/internal/session"
)

// Status of a presence record.
type Status string

// Record statuses. Only present and late count toward the dedup invariant.
const (
	StatusPresent Status = "present"
	StatusLate    Status = "late"
)

// Method describes how a record was produced.
type Method string

// Record methods.
const (
	MethodEmbeddingMatch Method = "embedding-match"
	MethodManual         Method = "manual"
)

// DefaultGracePeriod is how long after window start an arrival still counts
// as present rather than late. Matches the source system's late threshold.
const DefaultGracePeriod = 10 * time.Minute

// PresenceRecord is one timestamped presence assertion. Records are never
// mutated after creation; corrections create a new manual record whose
// Supersedes field references the original.
type PresenceRecord struct {
	ID          string    `json:"id"`
	IdentityID  string    `json:"identity_id"`
	DisplayName string    `json:"display_name"`
	SessionID   string    `json:"session_id"`
	Subject     string    `json:"subject"`
	DayKey      string    `json:"day_key"`
	ObservedAt  time.Time `json:"observed_at"`
	Confidence  float64   `json:"confidence"`
	Status      Status    `json:"status"`
	Method      Method    `json:"method"`
	Supersedes  string    `json:"supersedes,omitempty"`
}

// Outcome reports whether a record call created a new record or hit the
// dedup invariant. Duplicate is informational, not an error; Existing carries
// the record that already qualified so callers can explain why.
type Outcome struct {
	Created  bool
	Record   PresenceRecord
	Existing *PresenceRecord
}

// Appender persists records durably. Implemented by the store packages;
// invoked asynchronously after Created so a slow disk never stalls the next
// recognition.
type Appender interface {
	AppendRecord(ctx context.Context, record PresenceRecord) error
}

type dedupKey struct {
	identityID string
	sessionID  string
	dayKey     string
}

// Ledger holds all presence records and enforces the dedup invariant.
type Ledger struct {
	mu      sync.Mutex
	byKey   map[dedupKey]PresenceRecord // current qualifying record per key
	records []PresenceRecord            // append-only, insertion order

	grace time.Duration
	bus   *bus.Bus
	store Appender // may be nil (no durable store configured)
}

// New creates a ledger. bus and store may be nil; grace <= 0 falls back to
// DefaultGracePeriod.
func New(grace time.Duration, b *bus.Bus, store Appender) *Ledger {
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	return &Ledger{
		byKey: make(map[dedupKey]PresenceRecord),
		grace: grace,
		bus:   b,
		store: store,
	}
}

// Record registers presence of an identity in a session. Returns Created with
// the new record, or Duplicate with the pre-existing one. The uniqueness
// check and the write happen under one lock, so two concurrent recognitions
// of the same person yield exactly one Created.
func (l *Ledger) Record(identityID, displayName string, sess session.Session, confidence float64, now time.Time) (Outcome, error) {
	if identityID == "" {
		return Outcome{}, fmt.Errorf("identity ID is required")
	}
	if sess.ID == "" {
		return Outcome{}, fmt.Errorf("session ID is required")
	}

	dayKey := sess.DayKey
	if dayKey == "" {
		dayKey = session.DayKey(now)
	}

	status := StatusPresent
	if now.After(sess.WindowStart.Add(l.grace)) {
		status = StatusLate
	}

	record := PresenceRecord{
		ID:          uuid.NewString(),
		IdentityID:  identityID,
		DisplayName: displayName,
		SessionID:   sess.ID,
		Subject:     sess.Subject,
		DayKey:      dayKey,
		ObservedAt:  now,
		Confidence:  confidence,
		Status:      status,
		Method:      MethodEmbeddingMatch,
	}

	key := dedupKey{identityID: identityID, sessionID: sess.ID, dayKey: dayKey}

	l.mu.Lock()
	if existing, ok := l.byKey[key]; ok {
		l.mu.Unlock()
		return Outcome{Existing: &existing}, nil
	}
	l.records = append(l.records, record)
	l.byKey[key] = record
	l.mu.Unlock()

	// Duplicates emit nothing; a fresh record notifies and persists.
	l.emitRecorded(record, sess)
	l.persist(record)

	return Outcome{Created: true, Record: record}, nil
}

// RecordManual creates a manual correction record. If a qualifying record
// already exists for the key, the new record supersedes it: the original is
// kept in the append-only log, the manual record becomes the one the dedup
// invariant tracks.
func (l *Ledger) RecordManual(identityID, displayName string, sess session.Session, status Status, now time.Time) (PresenceRecord, error) {
	if identityID == "" {
		return PresenceRecord{}, fmt.Errorf("identity ID is required")
	}
	if sess.ID == "" {
		return PresenceRecord{}, fmt.Errorf("session ID is required")
	}
	if status != StatusPresent && status != StatusLate {
		return PresenceRecord{}, fmt.Errorf("invalid manual status %q", status)
	}

	dayKey := sess.DayKey
	if dayKey == "" {
		dayKey = session.DayKey(now)
	}
	key := dedupKey{identityID: identityID, sessionID: sess.ID, dayKey: dayKey}

	record := PresenceRecord{
		ID:          uuid.NewString(),
		IdentityID:  identityID,
		DisplayName: displayName,
		SessionID:   sess.ID,
		Subject:     sess.Subject,
		DayKey:      dayKey,
		ObservedAt:  now,
		Confidence:  1,
		Status:      status,
		Method:      MethodManual,
	}

	l.mu.Lock()
	if existing, ok := l.byKey[key]; ok {
		record.Supersedes = existing.ID
	}
	l.records = append(l.records, record)
	l.byKey[key] = record
	l.mu.Unlock()

	l.persist(record)
	return record, nil
}

// Seed loads records from durable storage at startup. Records must be in
// insertion order; later records for the same key supersede earlier ones.
func (l *Ledger) Seed(records []PresenceRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, r := range records {
		l.records = append(l.records, r)
		key := dedupKey{identityID: r.IdentityID, sessionID: r.SessionID, dayKey: r.DayKey}
		l.byKey[key] = r
	}
}

// ByDay returns all records for a calendar date, in insertion order.
func (l *Ledger) ByDay(dayKey string) []PresenceRecord {
	return l.filter(func(r *PresenceRecord) bool { return r.DayKey == dayKey })
}

// BySession returns all records attributed to a session, in insertion order.
func (l *Ledger) BySession(sessionID string) []PresenceRecord {
	return l.filter(func(r *PresenceRecord) bool { return r.SessionID == sessionID })
}

// ByIdentity returns all records for an identity, in insertion order.
func (l *Ledger) ByIdentity(identityID string) []PresenceRecord {
	return l.filter(func(r *PresenceRecord) bool { return r.IdentityID == identityID })
}

// All returns every record in insertion order.
func (l *Ledger) All() []PresenceRecord {
	return l.filter(func(*PresenceRecord) bool { return true })
}

func (l *Ledger) filter(keep func(*PresenceRecord) bool) []PresenceRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []PresenceRecord
	for i := range l.records {
		if keep(&l.records[i]) {
			out = append(out, l.records[i])
		}
	}
	return out
}

// emitRecorded publishes the presence event from a goroutine so slow
// observers never sit on the record path.
func (l *Ledger) emitRecorded(record PresenceRecord, sess session.Session) {
	if l.bus == nil {
		return
	}

	name := record.DisplayName
	if name == "" {
		name = record.IdentityID
	}

	go func() {
		if record.Status == StatusLate {
			minutesLate := int(record.ObservedAt.Sub(sess.WindowStart).Minutes())
			l.bus.Publish(bus.KindLateArrival, bus.SeverityMedium,
				"Late arrival",
				fmt.Sprintf("%s arrived %d minutes late to %s", name, minutesLate, sess.Subject),
				map[string]any{"record_id": record.ID, "identity_id": record.IdentityID, "session_id": sess.ID})
			return
		}
		l.bus.Publish(bus.KindPresenceRecorded, bus.SeverityLow,
			"Attendance marked",
			fmt.Sprintf("%s marked present in %s via face recognition", name, sess.Subject),
			map[string]any{"record_id": record.ID, "identity_id": record.IdentityID, "session_id": sess.ID})
	}()
}

// persist hands the record to the durable store asynchronously. The in-memory
// decision has already been returned to the caller; a failed write is logged
// and surfaced as a system event rather than failing recognition. Trades
// durability for hot-path latency.
func (l *Ledger) persist(record PresenceRecord) {
	if l.store == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := l.store.AppendRecord(ctx, record); err != nil {
			log.Printf("ledger: durable write failed for record %s: %v", record.ID, err)
			if l.bus != nil {
				l.bus.Publish(bus.KindSystemUpdate, bus.SeverityHigh,
					"Durable write failed",
					fmt.Sprintf("presence record %s could not be persisted: %v", record.ID, err),
					map[string]any{"record_id": record.ID})
			}
		}
	}()
}
