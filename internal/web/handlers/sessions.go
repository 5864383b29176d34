package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/mhornych/presence/internal/bus"
	"github.com/mhornych/presence/internal/session"
)

// SessionsHandler handles operator session control.
type SessionsHandler struct {
	registry *session.Registry
	bus      *bus.Bus
}

// NewSessionsHandler creates a sessions handler.
func NewSessionsHandler(registry *session.Registry, b *bus.Bus) *SessionsHandler {
	return &SessionsHandler{registry: registry, bus: b}
}

type startSessionRequest struct {
	Context     string    `json:"context"`
	Subject     string    `json:"subject"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
}

// Start handles POST /sessions/start.
func (h *SessionsHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.Context == "" || req.Subject == "" {
		respondError(w, http.StatusBadRequest, "context and subject are required")
		return
	}
	if req.WindowStart.IsZero() {
		req.WindowStart = time.Now()
	}
	if req.WindowEnd.IsZero() {
		req.WindowEnd = req.WindowStart.Add(45 * time.Minute)
	}
	if !req.WindowEnd.After(req.WindowStart) {
		respondError(w, http.StatusBadRequest, "window_end must be after window_start")
		return
	}

	sess := session.Session{
		ID:          uuid.NewString(),
		Subject:     req.Subject,
		DayKey:      session.DayKey(req.WindowStart),
		WindowStart: req.WindowStart,
		WindowEnd:   req.WindowEnd,
	}

	if err := h.registry.Start(req.Context, sess); err != nil {
		if errors.Is(err, session.ErrAlreadyActive) {
			respondError(w, http.StatusConflict, err.Error())
			return
		}
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if h.bus != nil {
		h.bus.Publish(bus.KindSystemUpdate, bus.SeverityLow,
			"Session started",
			req.Subject+" is now taking attendance in "+req.Context+".",
			map[string]any{"session_id": sess.ID, "context": req.Context})
	}

	respondJSON(w, http.StatusCreated, sess)
}

type stopSessionRequest struct {
	Context string `json:"context"`
}

// Stop handles POST /sessions/stop.
func (h *SessionsHandler) Stop(w http.ResponseWriter, r *http.Request) {
	var req stopSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.Context == "" {
		respondError(w, http.StatusBadRequest, "context is required")
		return
	}

	stopped, err := h.registry.Stop(req.Context)
	if err != nil {
		if errors.Is(err, session.ErrNoActiveSession) {
			respondError(w, http.StatusConflict, err.Error())
			return
		}
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if h.bus != nil {
		h.bus.Publish(bus.KindSystemUpdate, bus.SeverityLow,
			"Session stopped",
			stopped.Subject+" stopped taking attendance in "+req.Context+".",
			map[string]any{"session_id": stopped.ID, "context": req.Context})
	}

	respondJSON(w, http.StatusOK, stopped)
}

// Current handles GET /sessions/current?context=. Without a context parameter
// it returns the active session of every context.
func (h *SessionsHandler) Current(w http.ResponseWriter, r *http.Request) {
	contextName := r.URL.Query().Get("context")
	if contextName != "" {
		sess := h.registry.Current(contextName)
		if sess == nil {
			respondError(w, http.StatusNotFound, "no active session in this context")
			return
		}
		respondJSON(w, http.StatusOK, sess)
		return
	}

	active := make(map[string]*session.Session)
	for _, name := range h.registry.Contexts() {
		if sess := h.registry.Current(name); sess != nil {
			active[name] = sess
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{"sessions": active})
}
