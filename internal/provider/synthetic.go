package provider

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"

	"github.com/mhornych/presence/internal/embedding"
)

// SyntheticProvider derives a deterministic unit-length embedding from the
// image bytes. It stands in for the real embedding service in demos and
// tests: the same image always yields the same embedding, different images
// yield uncorrelated ones. Chosen at construction time, never by runtime
// feature detection.
type SyntheticProvider struct {
	dim int
}

// NewSyntheticProvider creates a provider emitting vectors of the given
// dimension.
func NewSyntheticProvider(dim int) *SyntheticProvider {
	if dim <= 0 {
		dim = embedding.DefaultDim
	}
	return &SyntheticProvider{dim: dim}
}

// Extract returns exactly one synthetic embedding per call, derived from a
// hash of the image bytes. Empty input simulates an undetected face.
func (p *SyntheticProvider) Extract(_ context.Context, imageData []byte) ([]embedding.Vector, error) {
	if len(imageData) == 0 {
		return nil, nil
	}

	vec := make(embedding.Vector, p.dim)
	seed := sha256.Sum256(imageData)

	// Stretch the 32-byte digest into dim components by re-hashing with a
	// counter, then normalize to unit length.
	var norm float64
	for i := 0; i < p.dim; i += 8 {
		block := sha256.Sum256(append(seed[:], byte(i), byte(i>>8)))
		for j := 0; j < 8 && i+j < p.dim; j++ {
			bits := binary.BigEndian.Uint32(block[j*4 : j*4+4])
			// Map to [-1, 1).
			v := float64(int32(bits)) / float64(math.MaxInt32)
			vec[i+j] = float32(v)
			norm += v * v
		}
	}

	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return []embedding.Vector{vec}, nil
}
