package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mhornych/presence/internal/gallery"
	"github.com/mhornych/presence/internal/ledger"
	"github.com/mhornych/presence/internal/session"
)

// RecordsHandler serves the attendance history and manual corrections.
type RecordsHandler struct {
	ledger   *ledger.Ledger
	gallery  *gallery.Gallery
	registry *session.Registry
}

// NewRecordsHandler creates a records handler.
func NewRecordsHandler(l *ledger.Ledger, g *gallery.Gallery, registry *session.Registry) *RecordsHandler {
	return &RecordsHandler{ledger: l, gallery: g, registry: registry}
}

// List handles GET /records?day=. Without a day parameter it returns today.
func (h *RecordsHandler) List(w http.ResponseWriter, r *http.Request) {
	dayKey := r.URL.Query().Get("day")
	if dayKey == "" {
		dayKey = session.DayKey(time.Now())
	}
	if _, err := time.Parse(session.DayKeyFormat, dayKey); err != nil {
		respondError(w, http.StatusBadRequest, "day must be formatted YYYY-MM-DD")
		return
	}

	records := h.ledger.ByDay(dayKey)
	respondJSON(w, http.StatusOK, map[string]any{
		"day":     dayKey,
		"records": records,
		"count":   len(records),
	})
}

// BySession handles GET /records/session/{id}.
func (h *RecordsHandler) BySession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	records := h.ledger.BySession(sessionID)
	respondJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"records":    records,
		"count":      len(records),
	})
}

// ByIdentity handles GET /records/identity/{id}.
func (h *RecordsHandler) ByIdentity(w http.ResponseWriter, r *http.Request) {
	identityID := chi.URLParam(r, "id")
	records := h.ledger.ByIdentity(identityID)
	respondJSON(w, http.StatusOK, map[string]any{
		"identity_id": identityID,
		"records":     records,
		"count":       len(records),
	})
}

type manualRecordRequest struct {
	Context    string `json:"context"`
	IdentityID string `json:"identity_id"`
	Status     string `json:"status"`
}

// Manual handles POST /records/manual. An operator marks someone present or
// late in the active session of a context, overriding whatever the camera saw.
func (h *RecordsHandler) Manual(w http.ResponseWriter, r *http.Request) {
	var req manualRecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.Context == "" || req.IdentityID == "" {
		respondError(w, http.StatusBadRequest, "context and identity_id are required")
		return
	}

	sess := h.registry.Current(req.Context)
	if sess == nil {
		respondError(w, http.StatusConflict, "no active session in this context")
		return
	}

	identity := h.gallery.Get(req.IdentityID)
	if identity == nil {
		respondError(w, http.StatusNotFound, "identity not found")
		return
	}

	record, err := h.ledger.RecordManual(identity.ID, identity.DisplayName, *sess, ledger.Status(req.Status), time.Now())
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	respondJSON(w, http.StatusCreated, record)
}
