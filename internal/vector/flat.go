package vector

import (
	"fmt"
)

// flatIndex is an exact index: every search scans all stored vectors.
// It needs no training; titles are few enough that brute force wins.
type flatIndex struct {
	dim     int
	entries []indexEntry
}

var _ Index = (*flatIndex)(nil)

func newFlatIndex(dim int) *flatIndex {
	return &flatIndex{dim: dim}
}

// Train is a no-op; a flat index has no structure to fit.
func (ix *flatIndex) Train(vecs [][]float32) error { return nil }

// Trained always reports true.
func (ix *flatIndex) Trained() bool { return true }

// Add appends vectors.
func (ix *flatIndex) Add(ids []int64, vecs [][]float32) error {
	if len(ids) != len(vecs) {
		return fmt.Errorf("ids and vectors length mismatch: %d vs %d", len(ids), len(vecs))
	}
	for _, v := range vecs {
		if len(v) != ix.dim {
			return fmt.Errorf("vector dimension %d, want %d", len(v), ix.dim)
		}
	}
	for i, id := range ids {
		ix.entries = append(ix.entries, indexEntry{ID: id, Vec: vecs[i]})
	}
	return nil
}

// Remove deletes the given ids.
func (ix *flatIndex) Remove(ids []int64) int {
	if len(ids) == 0 {
		return 0
	}
	drop := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	removed := 0
	kept := ix.entries[:0]
	for _, e := range ix.entries {
		if _, gone := drop[e.ID]; gone {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	ix.entries = kept
	return removed
}

// Search scans every entry and returns the best k matches by inner product.
func (ix *flatIndex) Search(query []float32, k int) []Match {
	if len(ix.entries) == 0 || k <= 0 {
		return nil
	}
	matches := make([]Match, 0, len(ix.entries))
	for _, e := range ix.entries {
		matches = append(matches, Match{ID: e.ID, Score: dot(query, e.Vec)})
	}
	return topK(matches, k)
}

// Len returns the number of stored vectors.
func (ix *flatIndex) Len() int { return len(ix.entries) }

// Reset drops all vectors.
func (ix *flatIndex) Reset() { ix.entries = nil }
