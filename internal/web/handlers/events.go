package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/mhornych/presence/internal/bus"
)

// EventsHandler exposes the notification feed: an SSE stream plus plain
// read/acknowledge endpoints.
type EventsHandler struct {
	bus *bus.Bus
}

// NewEventsHandler creates an events handler.
func NewEventsHandler(b *bus.Bus) *EventsHandler {
	return &EventsHandler{bus: b}
}

// Stream handles GET /events. Sends the current snapshot immediately, then a
// fresh snapshot whenever the feed changes, until the client disconnects.
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	// Bus delivery is synchronous; buffer one pending snapshot and coalesce
	// the rest so a slow client never blocks publishers.
	updates := make(chan []bus.Event, 1)
	unsubscribe := h.bus.Subscribe(func(events []bus.Event) {
		select {
		case updates <- events:
		default:
		}
	})
	defer unsubscribe()

	sendSSEEvent(w, flusher, "snapshot", h.bus.Snapshot())

	for {
		select {
		case <-r.Context().Done():
			return
		case events := <-updates:
			sendSSEEvent(w, flusher, "snapshot", events)
		}
	}
}

// sendSSEEvent writes one server-sent event and flushes it.
func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, payload)
	flusher.Flush()
}

// List handles GET /notifications.
func (h *EventsHandler) List(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"events": h.bus.Snapshot(),
		"unread": h.bus.UnreadCount(),
	})
}

// MarkRead handles POST /notifications/{id}/read.
func (h *EventsHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.bus.MarkRead(id) {
		respondError(w, http.StatusNotFound, "notification not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "read"})
}

// MarkAllRead handles POST /notifications/read-all.
func (h *EventsHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	h.bus.MarkAllRead()
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "read",
		"unread": h.bus.UnreadCount(),
	})
}
