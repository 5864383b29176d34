package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mhornych/presence/internal/session"
)

func postJSON(t *testing.T, handler http.HandlerFunc, path string, body map[string]any) *httptest.ResponseRecorder {
	t.Helper()
	payload, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestStartStopSession(t *testing.T) {
	s := testService(t)
	handler := NewSessionsHandler(s.Registry, s.Bus)

	rec := postJSON(t, handler.Start, "/api/v1/sessions/start", map[string]any{
		"context": "room-a",
		"subject": "Math 101",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("start status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var started session.Session
	if err := json.Unmarshal(rec.Body.Bytes(), &started); err != nil {
		t.Fatalf("failed to unmarshal session: %v", err)
	}
	if started.ID == "" || started.DayKey == "" {
		t.Errorf("session should have generated ID and day key, got %+v", started)
	}

	// Starting a second session in the same context conflicts.
	rec = postJSON(t, handler.Start, "/api/v1/sessions/start", map[string]any{
		"context": "room-a",
		"subject": "Physics",
	})
	if rec.Code != http.StatusConflict {
		t.Errorf("second start status = %d; want 409", rec.Code)
	}

	rec = postJSON(t, handler.Stop, "/api/v1/sessions/stop", map[string]any{
		"context": "room-a",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("stop status = %d", rec.Code)
	}

	// Stopping again conflicts.
	rec = postJSON(t, handler.Stop, "/api/v1/sessions/stop", map[string]any{
		"context": "room-a",
	})
	if rec.Code != http.StatusConflict {
		t.Errorf("second stop status = %d; want 409", rec.Code)
	}
}

func TestStartSessionValidation(t *testing.T) {
	s := testService(t)
	handler := NewSessionsHandler(s.Registry, s.Bus)

	tests := []struct {
		name string
		body map[string]any
	}{
		{"missing context", map[string]any{"subject": "Math"}},
		{"missing subject", map[string]any{"context": "room-a"}},
		{"window ends before it starts", map[string]any{
			"context":      "room-a",
			"subject":      "Math",
			"window_start": time.Now().Format(time.RFC3339),
			"window_end":   time.Now().Add(-time.Hour).Format(time.RFC3339),
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := postJSON(t, handler.Start, "/api/v1/sessions/start", tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d; want 400", rec.Code)
			}
		})
	}
}

func TestCurrentSession(t *testing.T) {
	s := testService(t)
	startSession(t, s, "room-a", "ses-1", time.Now())
	handler := NewSessionsHandler(s.Registry, s.Bus)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/current?context=room-a", nil)
	rec := httptest.NewRecorder()
	handler.Current(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var sess session.Session
	if err := json.Unmarshal(rec.Body.Bytes(), &sess); err != nil {
		t.Fatalf("failed to unmarshal session: %v", err)
	}
	if sess.ID != "ses-1" {
		t.Errorf("session ID = %s; want ses-1", sess.ID)
	}

	// Idle context.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/sessions/current?context=room-b", nil)
	rec = httptest.NewRecorder()
	handler.Current(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("idle context status = %d; want 404", rec.Code)
	}

	// All contexts.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/sessions/current", nil)
	rec = httptest.NewRecorder()
	handler.Current(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("all-contexts status = %d", rec.Code)
	}
	var all struct {
		Sessions map[string]session.Session `json:"sessions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &all); err != nil {
		t.Fatalf("failed to unmarshal sessions: %v", err)
	}
	if len(all.Sessions) != 1 {
		t.Errorf("expected 1 active session, got %d", len(all.Sessions))
	}
}
