package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mhornych/presence/internal/ledger"
)

// AppendRecord stores a presence record. Records are immutable; a conflicting
// ID means a retried write and is ignored.
func (s *Store) AppendRecord(ctx context.Context, record ledger.PresenceRecord) error {
	query := `
		INSERT INTO presence_records
			(id, identity_id, display_name, session_id, subject, day_key,
			 observed_at, confidence, status, method, supersedes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING
	`

	_, err := s.pool.Exec(ctx, query,
		record.ID,
		record.IdentityID,
		record.DisplayName,
		record.SessionID,
		record.Subject,
		record.DayKey,
		record.ObservedAt,
		record.Confidence,
		string(record.Status),
		string(record.Method),
		record.Supersedes,
	)
	if err != nil {
		return fmt.Errorf("save presence record: %w", err)
	}
	return nil
}

// LoadAllRecords returns every stored record in append order.
func (s *Store) LoadAllRecords(ctx context.Context) ([]ledger.PresenceRecord, error) {
	rows, err := s.pool.Query(ctx, selectRecords+" ORDER BY seq")
	if err != nil {
		return nil, fmt.Errorf("query presence records: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// LoadRecordsByDay returns records for one day key in append order.
func (s *Store) LoadRecordsByDay(ctx context.Context, dayKey string) ([]ledger.PresenceRecord, error) {
	rows, err := s.pool.Query(ctx, selectRecords+" WHERE day_key = $1 ORDER BY seq", dayKey)
	if err != nil {
		return nil, fmt.Errorf("query presence records by day: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

const selectRecords = `
	SELECT id, identity_id, display_name, session_id, subject, day_key,
	       observed_at, confidence, status, method, supersedes
	FROM presence_records
`

func scanRecords(rows *sql.Rows) ([]ledger.PresenceRecord, error) {
	var records []ledger.PresenceRecord

	for rows.Next() {
		var r ledger.PresenceRecord
		var status, method string

		if err := rows.Scan(
			&r.ID,
			&r.IdentityID,
			&r.DisplayName,
			&r.SessionID,
			&r.Subject,
			&r.DayKey,
			&r.ObservedAt,
			&r.Confidence,
			&status,
			&method,
			&r.Supersedes,
		); err != nil {
			return nil, fmt.Errorf("scan presence record: %w", err)
		}

		r.Status = ledger.Status(status)
		r.Method = ledger.Method(method)
		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate presence records: %w", err)
	}
	return records, nil
}
