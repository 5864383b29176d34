package handlers

import (
	"context"
	"math"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mhornych/presence/internal/attendance"
	"github.com/mhornych/presence/internal/bus"
	"github.com/mhornych/presence/internal/embedding"
	"github.com/mhornych/presence/internal/gallery"
	"github.com/mhornych/presence/internal/ledger"
	"github.com/mhornych/presence/internal/matcher"
	"github.com/mhornych/presence/internal/provider"
	"github.com/mhornych/presence/internal/session"
)

// testService builds a fully in-memory attendance service.
func testService(t *testing.T) *attendance.Service {
	t.Helper()
	g := gallery.New(4)
	b := bus.New(bus.DefaultCapacity)
	return &attendance.Service{
		Gallery:  g,
		Matcher:  matcher.New(g, 0.75, 0.02),
		Registry: session.NewRegistry(),
		Ledger:   ledger.New(10*time.Minute, b, nil),
		Bus:      b,
		Provider: provider.NewSyntheticProvider(4),
	}
}

// unitVector returns a 2D unit vector at the given angle, padded to dim 4.
func unitVector(angle float64) embedding.Vector {
	return embedding.Vector{float32(math.Cos(angle)), float32(math.Sin(angle)), 0, 0}
}

// enroll adds an identity to the service gallery.
func enroll(t *testing.T, s *attendance.Service, id, name string, vec embedding.Vector) {
	t.Helper()
	if err := s.Gallery.Upsert(gallery.Identity{ID: id, DisplayName: name, Embedding: vec, EnrolledAt: time.Now()}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
}

// startSession activates a session in the given context.
func startSession(t *testing.T, s *attendance.Service, contextName, sessionID string, start time.Time) session.Session {
	t.Helper()
	sess := session.Session{
		ID:          sessionID,
		Subject:     "Math 101",
		DayKey:      session.DayKey(start),
		WindowStart: start,
		WindowEnd:   start.Add(45 * time.Minute),
	}
	if err := s.Registry.Start(contextName, sess); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	return sess
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}
