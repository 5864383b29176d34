package web

import (
	"github.com/go-chi/chi/v5"
	"github.com/mhornych/presence/internal/store"
	"github.com/mhornych/presence/internal/web/handlers"
)

func (s *Server) setupRoutes(st store.Store) {
	// Create handlers
	recognizeHandler := handlers.NewRecognizeHandler(s.service)
	identitiesHandler := handlers.NewIdentitiesHandler(s.service.Gallery, identityStore(st))
	sessionsHandler := handlers.NewSessionsHandler(s.service.Registry, s.service.Bus)
	recordsHandler := handlers.NewRecordsHandler(s.service.Ledger, s.service.Gallery, s.service.Registry)
	eventsHandler := handlers.NewEventsHandler(s.service.Bus)

	// Health check
	s.router.Get("/api/v1/health", handlers.HealthCheck)

	// API routes
	s.router.Route("/api/v1", func(r chi.Router) {
		// Recognition
		r.Post("/recognize", recognizeHandler.Recognize)

		// Identities
		r.Get("/identities", identitiesHandler.List)
		r.Post("/identities", identitiesHandler.Enroll)
		r.Get("/identities/{id}", identitiesHandler.Get)
		r.Delete("/identities/{id}", identitiesHandler.Delete)

		// Sessions
		r.Post("/sessions/start", sessionsHandler.Start)
		r.Post("/sessions/stop", sessionsHandler.Stop)
		r.Get("/sessions/current", sessionsHandler.Current)

		// Records
		r.Get("/records", recordsHandler.List)
		r.Get("/records/session/{id}", recordsHandler.BySession)
		r.Get("/records/identity/{id}", recordsHandler.ByIdentity)
		r.Post("/records/manual", recordsHandler.Manual)

		// Notifications
		r.Get("/events", eventsHandler.Stream)
		r.Get("/notifications", eventsHandler.List)
		r.Post("/notifications/{id}/read", eventsHandler.MarkRead)
		r.Post("/notifications/read-all", eventsHandler.MarkAllRead)
	})
}

// identityStore narrows a nilable store to the identity interface without
// producing a typed-nil interface value.
func identityStore(st store.Store) store.IdentityStore {
	if st == nil {
		return nil
	}
	return st
}
