// Package embedding provides the vector type and similarity math used by the
// recognition pipeline. All embeddings in a deployment share one dimension;
// comparing vectors of different lengths is a programming error and fails loudly.
package embedding

import (
	"errors"
	"fmt"
	"math"
)

// DefaultDim is the embedding dimension of the reference face model.
const DefaultDim = 128

// ErrDimensionMismatch is returned when two vectors of different lengths are compared.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Vector is a fixed-length face embedding produced by an external model.
type Vector []float32

// Cosine computes the cosine similarity between two vectors.
// Returns a value in [-1, 1], clamped to handle floating point errors.
// A zero vector is never similar to anything, including another zero vector,
// so either operand having zero magnitude yields exactly 0.
func Cosine(a, b Vector) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0, nil
	}

	similarity := dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
	if similarity > 1 {
		similarity = 1
	}
	if similarity < -1 {
		similarity = -1
	}

	return similarity, nil
}

// IsZero reports whether the vector has zero magnitude.
func (v Vector) IsZero() bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// Clone returns an independent copy of the vector.
func (v Vector) Clone() Vector {
	if v == nil {
		return nil
	}
	out := make(Vector, len(v))
	copy(out, v)
	return out
}
