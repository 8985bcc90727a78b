// Package embedding implements the EmbeddingService adapter boundary:
// embedText and a cosine similarity utility, plus an optional Qdrant mirror
// used for future cross-session semantic search.
package embedding

import (
	"context"
	"math"
)

// Service is the EmbeddingService boundary the core calls through.
type Service interface {
	// EmbedText returns a fixed-length embedding vector for text.
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// Cosine returns the cosine similarity of a and b, in [-1, 1]. It is
// undefined (returns 0) for zero-length or zero-magnitude vectors or
// mismatched lengths; callers must treat that as "fall back to lexical
// score", matching the EmbeddingComputationError policy.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}
