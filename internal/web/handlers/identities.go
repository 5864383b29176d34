package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/mhornych/presence/internal/embedding"
	"github.com/mhornych/presence/internal/gallery"
	"github.com/mhornych/presence/internal/store"
)

// IdentitiesHandler handles enrollment CRUD. The gallery is the source of
// truth; the durable store (optional) mirrors every change.
type IdentitiesHandler struct {
	gallery *gallery.Gallery
	store   store.IdentityStore // may be nil
}

// NewIdentitiesHandler creates an identities handler.
func NewIdentitiesHandler(g *gallery.Gallery, st store.IdentityStore) *IdentitiesHandler {
	return &IdentitiesHandler{gallery: g, store: st}
}

type enrollRequest struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	Embedding   []float32 `json:"embedding"`
}

// List handles GET /identities. A name query parameter filters to identities
// whose display name matches after normalization (case and diacritics
// insensitive). Embeddings are omitted from the listing.
func (h *IdentitiesHandler) List(w http.ResponseWriter, r *http.Request) {
	var identities []gallery.Identity
	if name := r.URL.Query().Get("name"); name != "" {
		identities = h.gallery.FindByName(name)
	} else {
		identities = h.gallery.List()
	}

	type summary struct {
		ID          string    `json:"id"`
		DisplayName string    `json:"display_name"`
		EnrolledAt  time.Time `json:"enrolled_at"`
	}

	out := make([]summary, 0, len(identities))
	for _, identity := range identities {
		out = append(out, summary{
			ID:          identity.ID,
			DisplayName: identity.DisplayName,
			EnrolledAt:  identity.EnrolledAt,
		})
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"identities": out,
		"count":      len(out),
	})
}

// Enroll handles POST /identities.
func (h *IdentitiesHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	var req enrollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.DisplayName == "" {
		respondError(w, http.StatusBadRequest, "display_name is required")
		return
	}
	if len(req.Embedding) == 0 {
		respondError(w, http.StatusBadRequest, "embedding is required")
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	identity := gallery.Identity{
		ID:          req.ID,
		DisplayName: req.DisplayName,
		Embedding:   embedding.Vector(req.Embedding),
		EnrolledAt:  time.Now(),
	}

	if err := h.gallery.Upsert(identity); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.persistIdentity(r.Context(), identity)

	respondJSON(w, http.StatusCreated, map[string]string{
		"id":           identity.ID,
		"display_name": identity.DisplayName,
	})
}

// Get handles GET /identities/{id}.
func (h *IdentitiesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	identity := h.gallery.Get(id)
	if identity == nil {
		respondError(w, http.StatusNotFound, "identity not found")
		return
	}
	respondJSON(w, http.StatusOK, identity)
}

// Delete handles DELETE /identities/{id}. Deleting an unknown ID succeeds.
func (h *IdentitiesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.gallery.Remove(id)

	if h.store != nil {
		if err := h.store.RemoveIdentity(r.Context(), id); err != nil {
			log.Printf("Failed to remove identity %s from store: %v", sanitizeForLog(id), err)
		}
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func (h *IdentitiesHandler) persistIdentity(ctx context.Context, identity gallery.Identity) {
	if h.store == nil {
		return
	}
	if err := h.store.AppendIdentity(ctx, identity); err != nil {
		log.Printf("Failed to persist identity %s: %v", sanitizeForLog(identity.ID), err)
	}
}
