// Package provider abstracts face embedding extraction. The core never
// assumes anything about how the capability is implemented; the HTTP provider
// talks to a face-embedding service, the synthetic provider exists for
// demos and tests and is selected at construction time.
package provider

import (
	"context"

	"github.com/mhornych/presence/internal/embedding"
)

// Provider extracts face embeddings from an image. A frame may contain zero,
// one, or many faces; an empty slice means no face was detected and is not
// an error.
type Provider interface {
	Extract(ctx context.Context, imageData []byte) ([]embedding.Vector, error)
}
