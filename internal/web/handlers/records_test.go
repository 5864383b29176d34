package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mhornych/presence/internal/ledger"
)

func TestListRecordsByDay(t *testing.T) {
	s := testService(t)
	sess := startSession(t, s, "room-a", "ses-1", time.Now())
	if _, err := s.Ledger.Record("s1", "Student One", sess, 0.9, time.Now()); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	handler := NewRecordsHandler(s.Ledger, s.Gallery, s.Registry)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/records?day="+sess.DayKey, nil)
	rec := httptest.NewRecorder()
	handler.List(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Day     string                  `json:"day"`
		Records []ledger.PresenceRecord `json:"records"`
		Count   int                     `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp.Count != 1 || len(resp.Records) != 1 {
		t.Fatalf("expected 1 record, got %+v", resp)
	}
	if resp.Records[0].IdentityID != "s1" {
		t.Errorf("identity = %s; want s1", resp.Records[0].IdentityID)
	}
}

func TestListRecordsBadDay(t *testing.T) {
	s := testService(t)
	handler := NewRecordsHandler(s.Ledger, s.Gallery, s.Registry)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/records?day=yesterday", nil)
	rec := httptest.NewRecorder()
	handler.List(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d; want 400", rec.Code)
	}
}

func TestRecordsBySessionAndIdentity(t *testing.T) {
	s := testService(t)
	sess := startSession(t, s, "room-a", "ses-1", time.Now())
	if _, err := s.Ledger.Record("s1", "Student One", sess, 0.9, time.Now()); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	handler := NewRecordsHandler(s.Ledger, s.Gallery, s.Registry)

	req := requestWithChiParams(
		httptest.NewRequest(http.MethodGet, "/api/v1/records/session/ses-1", nil),
		map[string]string{"id": "ses-1"},
	)
	rec := httptest.NewRecorder()
	handler.BySession(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("by-session status = %d", rec.Code)
	}

	req = requestWithChiParams(
		httptest.NewRequest(http.MethodGet, "/api/v1/records/identity/s1", nil),
		map[string]string{"id": "s1"},
	)
	rec = httptest.NewRecorder()
	handler.ByIdentity(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("by-identity status = %d", rec.Code)
	}
	var resp struct {
		Records []ledger.PresenceRecord `json:"records"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if len(resp.Records) != 1 {
		t.Errorf("expected 1 record, got %d", len(resp.Records))
	}
}

func TestManualRecord(t *testing.T) {
	s := testService(t)
	enroll(t, s, "s1", "Student One", unitVector(0))
	startSession(t, s, "room-a", "ses-1", time.Now())
	handler := NewRecordsHandler(s.Ledger, s.Gallery, s.Registry)

	body, _ := json.Marshal(map[string]any{
		"context":     "room-a",
		"identity_id": "s1",
		"status":      "present",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/records/manual", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.Manual(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var record ledger.PresenceRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &record); err != nil {
		t.Fatalf("failed to unmarshal record: %v", err)
	}
	if record.Method != ledger.MethodManual {
		t.Errorf("method = %s; want manual", record.Method)
	}
	if record.Status != ledger.StatusPresent {
		t.Errorf("status = %s; want present", record.Status)
	}
}

func TestManualRecordErrors(t *testing.T) {
	s := testService(t)
	enroll(t, s, "s1", "Student One", unitVector(0))
	handler := NewRecordsHandler(s.Ledger, s.Gallery, s.Registry)

	// No active session.
	body, _ := json.Marshal(map[string]any{
		"context":     "room-a",
		"identity_id": "s1",
		"status":      "present",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/records/manual", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.Manual(rec, req)
	if rec.Code != http.StatusConflict {
		t.Errorf("no-session status = %d; want 409", rec.Code)
	}

	startSession(t, s, "room-a", "ses-1", time.Now())

	// Unknown identity.
	body, _ = json.Marshal(map[string]any{
		"context":     "room-a",
		"identity_id": "ghost",
		"status":      "present",
	})
	req = httptest.NewRequest(http.MethodPost, "/api/v1/records/manual", bytes.NewReader(body))
	rec = httptest.NewRecorder()
	handler.Manual(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown-identity status = %d; want 404", rec.Code)
	}

	// Invalid status.
	body, _ = json.Marshal(map[string]any{
		"context":     "room-a",
		"identity_id": "s1",
		"status":      "kidnapped",
	})
	req = httptest.NewRequest(http.MethodPost, "/api/v1/records/manual", bytes.NewReader(body))
	rec = httptest.NewRecorder()
	handler.Manual(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid-status status = %d; want 400", rec.Code)
	}
}
