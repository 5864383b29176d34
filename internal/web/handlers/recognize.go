package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/mhornych/presence/internal/attendance"
	"github.com/mhornych/presence/internal/embedding"
	"github.com/mhornych/presence/internal/ledger"
)

// maxImageUpload caps recognition image uploads at 20 MB.
const maxImageUpload = 20 << 20

// RecognizeHandler handles recognition requests.
type RecognizeHandler struct {
	service *attendance.Service
}

// NewRecognizeHandler creates a recognition handler.
func NewRecognizeHandler(service *attendance.Service) *RecognizeHandler {
	return &RecognizeHandler{service: service}
}

type recognizeRequest struct {
	Context    string      `json:"context"`
	Embeddings [][]float32 `json:"embeddings"`
}

// probeResponse is the wire form of one probe outcome.
type probeResponse struct {
	Recognized     bool                   `json:"recognized"`
	IdentityID     string                 `json:"identity_id,omitempty"`
	DisplayName    string                 `json:"display_name,omitempty"`
	Confidence     float64                `json:"confidence,omitempty"`
	Reason         string                 `json:"reason,omitempty"`
	BestSimilarity float64                `json:"best_similarity"`
	Created        bool                   `json:"created"`
	Record         *ledger.PresenceRecord `json:"record,omitempty"`
	Existing       *ledger.PresenceRecord `json:"existing,omitempty"`
	Error          string                 `json:"error,omitempty"`
}

// Recognize handles POST /recognize. Accepts either a JSON body with raw
// embeddings or a multipart image upload; the context identifies which
// session feed the probes belong to.
func (h *RecognizeHandler) Recognize(w http.ResponseWriter, r *http.Request) {
	now := time.Now()

	var results []attendance.ProbeResult
	var err error

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		results, err = h.recognizeImage(r, now)
	} else {
		results, err = h.recognizeEmbeddings(r, now)
	}

	if err != nil {
		if errors.Is(err, attendance.ErrNoActiveSession) {
			respondError(w, http.StatusConflict, "no active session in this context")
			return
		}
		log.Printf("Recognition failed: %v", err)
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"results": toProbeResponses(results),
	})
}

func (h *RecognizeHandler) recognizeEmbeddings(r *http.Request, now time.Time) ([]attendance.ProbeResult, error) {
	var req recognizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, errors.New(errInvalidRequestBody)
	}
	if req.Context == "" {
		return nil, errors.New("context is required")
	}

	probes := make([]embedding.Vector, 0, len(req.Embeddings))
	for _, e := range req.Embeddings {
		probes = append(probes, embedding.Vector(e))
	}
	return h.service.Recognize(r.Context(), probes, req.Context, now)
}

func (h *RecognizeHandler) recognizeImage(r *http.Request, now time.Time) ([]attendance.ProbeResult, error) {
	if err := r.ParseMultipartForm(maxImageUpload); err != nil {
		return nil, errors.New("invalid multipart form")
	}

	contextName := r.FormValue("context")
	if contextName == "" {
		return nil, errors.New("context is required")
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		return nil, errors.New("image file is required")
	}
	defer file.Close()

	imageData, err := io.ReadAll(io.LimitReader(file, maxImageUpload))
	if err != nil {
		return nil, errors.New("reading image upload")
	}

	return h.service.RecognizeImage(r.Context(), imageData, contextName, now)
}

func toProbeResponses(results []attendance.ProbeResult) []probeResponse {
	out := make([]probeResponse, 0, len(results))
	for _, r := range results {
		resp := probeResponse{
			Recognized:     r.Match.Recognized,
			IdentityID:     r.Match.IdentityID,
			DisplayName:    r.Match.DisplayName,
			Confidence:     r.Match.Confidence,
			Reason:         string(r.Match.Reason),
			BestSimilarity: r.Match.BestSimilarity,
		}
		if r.Outcome != nil {
			resp.Created = r.Outcome.Created
			if r.Outcome.Created {
				record := r.Outcome.Record
				resp.Record = &record
			} else {
				resp.Existing = r.Outcome.Existing
			}
		}
		if r.Err != nil {
			resp.Error = r.Err.Error()
		}
		out = append(out, resp)
	}
	return out
}
