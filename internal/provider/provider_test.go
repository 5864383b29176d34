package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mhornych/presence/internal/embedding"
)

func encodeTestJPEG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encoding test image: %v", err)
	}
	return buf.Bytes()
}

func TestHTTPProviderExtract(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embed/faces" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			t.Errorf("parsing multipart form: %v", err)
		}
		if _, _, err := r.FormFile("file"); err != nil {
			t.Errorf("missing file part: %v", err)
		}

		json.NewEncoder(w).Encode(map[string]any{
			"dim": 3,
			"faces": []map[string]any{
				{"embedding": []float32{1, 0, 0}, "det_score": 0.99},
				{"embedding": []float32{0, 1, 0}, "det_score": 0.97},
			},
		})
	}))
	defer server.Close()

	p := NewHTTPProvider(server.URL)
	vectors, err := p.Extract(context.Background(), encodeTestJPEG(t, 10, 10, color.White))
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(vectors) != 2 {
		t.Fatalf("expected 2 embeddings, got %d", len(vectors))
	}
	if vectors[0][0] != 1 || vectors[1][1] != 1 {
		t.Errorf("unexpected embeddings: %v", vectors)
	}
}

func TestHTTPProviderNoFaces(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"dim": 3, "faces": []any{}})
	}))
	defer server.Close()

	p := NewHTTPProvider(server.URL)
	vectors, err := p.Extract(context.Background(), encodeTestJPEG(t, 10, 10, color.White))
	if err != nil {
		t.Fatalf("no detected face must not be an error: %v", err)
	}
	if len(vectors) != 0 {
		t.Errorf("expected 0 embeddings, got %d", len(vectors))
	}
}

func TestHTTPProviderServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer server.Close()

	p := NewHTTPProvider(server.URL)
	if _, err := p.Extract(context.Background(), encodeTestJPEG(t, 10, 10, color.White)); err == nil {
		t.Error("expected error for 500 response")
	}
}

func TestSyntheticDeterministic(t *testing.T) {
	p := NewSyntheticProvider(128)

	img := []byte("frame-bytes")
	first, err := p.Extract(context.Background(), img)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	second, err := p.Extract(context.Background(), img)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	if len(first) != 1 || len(first[0]) != 128 {
		t.Fatalf("expected one 128-dim embedding, got %d x %d", len(first), len(first[0]))
	}

	sim, err := embedding.Cosine(first[0], second[0])
	if err != nil {
		t.Fatalf("Cosine failed: %v", err)
	}
	if sim < 0.9999 {
		t.Errorf("same image should yield the same embedding, similarity = %f", sim)
	}
}

func TestSyntheticDistinctImages(t *testing.T) {
	p := NewSyntheticProvider(128)

	a, _ := p.Extract(context.Background(), []byte("face-a"))
	b, _ := p.Extract(context.Background(), []byte("face-b"))

	sim, err := embedding.Cosine(a[0], b[0])
	if err != nil {
		t.Fatalf("Cosine failed: %v", err)
	}
	// Independent 128-dim random unit vectors are near-orthogonal.
	if sim > 0.5 {
		t.Errorf("different images should yield dissimilar embeddings, similarity = %f", sim)
	}
}

func TestSyntheticEmptyInput(t *testing.T) {
	p := NewSyntheticProvider(16)
	vectors, err := p.Extract(context.Background(), nil)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(vectors) != 0 {
		t.Error("empty input should yield no detections")
	}
}

func TestDownscale(t *testing.T) {
	big := encodeTestJPEG(t, 2400, 1200, color.White)
	out, err := downscale(big, 1920)
	if err != nil {
		t.Fatalf("downscale failed: %v", err)
	}

	img, _, err := image.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decoding downscaled image: %v", err)
	}
	if img.Bounds().Dx() != 1920 {
		t.Errorf("width = %d; want 1920", img.Bounds().Dx())
	}
	if img.Bounds().Dy() != 960 {
		t.Errorf("height = %d; want 960 (aspect preserved)", img.Bounds().Dy())
	}
}

func TestDownscaleSmallImagePassThrough(t *testing.T) {
	small := encodeTestJPEG(t, 100, 80, color.Black)
	out, err := downscale(small, 1920)
	if err != nil {
		t.Fatalf("downscale failed: %v", err)
	}
	img, _, err := image.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decoding image: %v", err)
	}
	if img.Bounds().Dx() != 100 || img.Bounds().Dy() != 80 {
		t.Errorf("small image dimensions changed: %v", img.Bounds())
	}
}

func TestDetectMIMEType(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected string
	}{
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0, 0, 0, 0, 0}, "image/jpeg"},
		{"png", []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, "image/png"},
		{"unknown", []byte{1, 2, 3, 4, 5, 6, 7, 8}, "application/octet-stream"},
		{"too short", []byte{1, 2}, "application/octet-stream"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := detectMIMEType(tc.data); got != tc.expected {
				t.Errorf("detectMIMEType = %s; want %s", got, tc.expected)
			}
		})
	}
}
