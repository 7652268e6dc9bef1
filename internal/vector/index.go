// Package vector maintains the per-notebook approximate vector index: a
// clustered, trainable index for chunk embeddings and a flat exact index for
// title embeddings, both mutable by explicit external id.
package vector

import (
	"math"
	"sort"
)

// Match is a single raw index hit.
type Match struct {
	ID    int64
	Score float32
}

// Index is a mutable-by-id similarity index over fixed-dimension vectors.
// Scores are inner products, which equal cosine similarity for unit vectors.
// Implementations are not goroutine-safe; the owning Store serializes access.
type Index interface {
	// Train fits internal structure on a training set. Re-entrant: calling
	// again retrains from scratch and drops all stored vectors.
	Train(vecs [][]float32) error

	// Trained reports whether Add may be called.
	Trained() bool

	// Add inserts vectors under the caller-assigned ids.
	// Precondition: the index is trained; ids and vecs are parallel.
	Add(ids []int64, vecs [][]float32) error

	// Remove deletes the given ids, returning how many were present.
	// Unknown ids are ignored; an untrained index is a no-op.
	Remove(ids []int64) int

	// Search returns up to k matches ordered by score descending.
	Search(query []float32, k int) []Match

	// Len returns the number of stored vectors.
	Len() int

	// Reset drops all stored vectors and training state.
	Reset()
}

// indexEntry is one stored vector. Fields are exported for gob.
type indexEntry struct {
	ID  int64
	Vec []float32
}

func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// normalizeInPlace scales v to unit length. Zero vectors are left alone.
func normalizeInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}

// topK sorts matches by score descending (id ascending on ties, so results
// are deterministic) and truncates to k.
func topK(matches []Match, k int) []Match {
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches
}
