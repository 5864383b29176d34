package web

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mhornych/presence/internal/attendance"
	"github.com/mhornych/presence/internal/bus"
	"github.com/mhornych/presence/internal/gallery"
	"github.com/mhornych/presence/internal/ledger"
	"github.com/mhornych/presence/internal/matcher"
	"github.com/mhornych/presence/internal/provider"
	"github.com/mhornych/presence/internal/session"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	g := gallery.New(4)
	b := bus.New(bus.DefaultCapacity)
	service := &attendance.Service{
		Gallery:  g,
		Matcher:  matcher.New(g, 0.75, 0.02),
		Registry: session.NewRegistry(),
		Ledger:   ledger.New(10*time.Minute, b, nil),
		Bus:      b,
		Provider: provider.NewSyntheticProvider(4),
	}
	return NewServer(service, nil, ":0")
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; want 200", rec.Code)
	}
}

func TestRoutesAreWired(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/v1/identities"},
		{http.MethodGet, "/api/v1/sessions/current"},
		{http.MethodGet, "/api/v1/records"},
		{http.MethodGet, "/api/v1/notifications"},
	}

	for _, tc := range tests {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, nil)
			rec := httptest.NewRecorder()
			s.Router().ServeHTTP(rec, req)

			if rec.Code == http.StatusNotFound || rec.Code == http.StatusMethodNotAllowed {
				t.Errorf("route not wired, status = %d", rec.Code)
			}
		})
	}
}
