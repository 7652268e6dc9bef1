// Package embed generates vector embeddings for text via an external
// embedding service. The service is a remote collaborator: callers must treat
// its unavailability as a first-class degraded mode, not a crash.
package embed

import (
	"context"
	"math"
	"time"
)

// Common embedding constants.
const (
	// DefaultTimeout is the hard per-request timeout for the embedding call.
	DefaultTimeout = 300 * time.Second

	// DefaultDimensions is the embedding dimension of the default model.
	DefaultDimensions = 768

	// DefaultMaxRetries is the default number of retry attempts.
	DefaultMaxRetries = 3

	// MaxBatchSize caps a single embedding request (prevents memory exhaustion).
	MaxBatchSize = 256
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts.
	// The result is parallel to texts; a non-nil error means no usable vectors.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// ModelName returns the model identifier.
	ModelName() string

	// Available checks if the embedder is ready.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// EmbedAll embeds texts of any length by slicing the request into
// MaxBatchSize batches. The result is parallel to texts; the first batch
// failure aborts and returns no vectors.
func EmbedAll(ctx context.Context, e Embedder, texts []string) ([][]float32, error) {
	if len(texts) <= MaxBatchSize {
		return e.EmbedBatch(ctx, texts)
	}
	vecs := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += MaxBatchSize {
		end := start + MaxBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := e.EmbedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		vecs = append(vecs, batch...)
	}
	return vecs, nil
}

// Normalize returns a unit-length copy of v. Zero vectors are returned as-is.
func Normalize(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}
	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}
