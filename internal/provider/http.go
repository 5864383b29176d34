package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/mhornych/presence/internal/embedding"
)

const (
	defaultEmbedderURL = "http://localhost:8000"

	// maxUploadDimension caps the image size sent to the embedding service.
	// Face detectors gain nothing above this and large frames slow the call.
	maxUploadDimension = 1920
)

// HTTPProvider calls a face-embedding service over HTTP. The service accepts
// a multipart image upload and returns one embedding per detected face.
type HTTPProvider struct {
	baseURL string
	client  *http.Client
}

// NewHTTPProvider creates a provider for the given service URL.
func NewHTTPProvider(baseURL string) *HTTPProvider {
	if baseURL == "" {
		baseURL = defaultEmbedderURL
	}
	return &HTTPProvider{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{},
	}
}

// faceResponse is one detected face in the service response.
type faceResponse struct {
	Embedding []float32 `json:"embedding"`
	DetScore  float64   `json:"det_score"`
}

// embedResponse is the full service response.
type embedResponse struct {
	Faces []faceResponse `json:"faces"`
	Dim   int            `json:"dim"`
}

// Extract uploads the image and returns one embedding per detected face.
// Zero faces is a valid result, not an error.
func (p *HTTPProvider) Extract(ctx context.Context, imageData []byte) ([]embedding.Vector, error) {
	prepared, err := downscale(imageData, maxUploadDimension)
	if err != nil {
		// Not decodable locally; let the service try the original bytes.
		prepared = imageData
	}

	body, err := p.postMultipartImage(ctx, "/embed/faces", prepared)
	if err != nil {
		return nil, err
	}

	var resp embedResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing embedding response: %w", err)
	}

	vectors := make([]embedding.Vector, 0, len(resp.Faces))
	for _, face := range resp.Faces {
		if len(face.Embedding) == 0 {
			continue
		}
		vectors = append(vectors, embedding.Vector(face.Embedding))
	}
	return vectors, nil
}

// postMultipartImage posts the image as a multipart form with an explicit
// Content-Type part header based on magic byte detection.
func (p *HTTPProvider) postMultipartImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="frame.jpg"`)
	h.Set("Content-Type", detectMIMEType(imageData))
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("creating form part: %w", err)
	}
	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("writing image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("closing multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding service error (status %d): %s", resp.StatusCode, string(body))
	}
	return body, nil
}

// detectMIMEType detects the MIME type from image data.
func detectMIMEType(data []byte) string {
	if len(data) < 8 {
		return "application/octet-stream"
	}
	// JPEG: FF D8 FF
	if data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF {
		return "image/jpeg"
	}
	// PNG: 89 50 4E 47 0D 0A 1A 0A
	if data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47 {
		return "image/png"
	}
	// WebP: 52 49 46 46 ... 57 45 42 50
	if len(data) >= 12 && data[0] == 0x52 && data[1] == 0x49 && data[2] == 0x46 && data[3] == 0x46 &&
		data[8] == 0x57 && data[9] == 0x45 && data[10] == 0x42 && data[11] == 0x50 {
		return "image/webp"
	}
	return "application/octet-stream"
}
