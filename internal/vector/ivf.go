package vector

import (
	"fmt"
)

// kmeansIterations bounds Lloyd's algorithm during training.
const kmeansIterations = 10

// ivfIndex is an inverted-file index: vectors are partitioned into nlist
// clusters around trained centroids, and a search probes only the nprobe
// most promising clusters. Training is mandatory before insertion.
type ivfIndex struct {
	dim       int
	nlist     int
	nprobe    int
	trained   bool
	centroids [][]float32
	lists     [][]indexEntry // parallel to centroids
	count     int
}

var _ Index = (*ivfIndex)(nil)

func newIVFIndex(dim, nlist, nprobe int) *ivfIndex {
	return &ivfIndex{dim: dim, nlist: nlist, nprobe: nprobe}
}

// Train runs k-means over the training set and resets all inverted lists.
// Deterministic: initial centroids are evenly spaced samples, so identical
// training sets always produce identical clusterings.
func (ix *ivfIndex) Train(vecs [][]float32) error {
	if len(vecs) < ix.nlist {
		return fmt.Errorf("training set too small: %d vectors for %d clusters", len(vecs), ix.nlist)
	}
	for _, v := range vecs {
		if len(v) != ix.dim {
			return fmt.Errorf("training vector dimension %d, want %d", len(v), ix.dim)
		}
	}

	centroids := make([][]float32, ix.nlist)
	for i := range centroids {
		src := vecs[i*len(vecs)/ix.nlist]
		c := make([]float32, ix.dim)
		copy(c, src)
		centroids[i] = c
	}

	assign := make([]int, len(vecs))
	for iter := 0; iter < kmeansIterations; iter++ {
		changed := false
		for i, v := range vecs {
			best := nearestCentroid(centroids, v)
			if assign[i] != best {
				assign[i] = best
				changed = true
			}
		}
		if iter > 0 && !changed {
			break
		}

		sums := make([][]float64, ix.nlist)
		counts := make([]int, ix.nlist)
		for i := range sums {
			sums[i] = make([]float64, ix.dim)
		}
		for i, v := range vecs {
			c := assign[i]
			counts[c]++
			for d, val := range v {
				sums[c][d] += float64(val)
			}
		}
		for c := range centroids {
			if counts[c] == 0 {
				// empty cluster keeps its previous centroid
				continue
			}
			for d := range centroids[c] {
				centroids[c][d] = float32(sums[c][d] / float64(counts[c]))
			}
		}
	}

	ix.centroids = centroids
	ix.lists = make([][]indexEntry, ix.nlist)
	ix.count = 0
	ix.trained = true
	return nil
}

// Trained reports whether the quantizer has been fit.
func (ix *ivfIndex) Trained() bool { return ix.trained }

// Add inserts vectors into the lists of their nearest centroids.
func (ix *ivfIndex) Add(ids []int64, vecs [][]float32) error {
	if !ix.trained {
		return fmt.Errorf("add on untrained index")
	}
	if len(ids) != len(vecs) {
		return fmt.Errorf("ids and vectors length mismatch: %d vs %d", len(ids), len(vecs))
	}
	for _, v := range vecs {
		if len(v) != ix.dim {
			return fmt.Errorf("vector dimension %d, want %d", len(v), ix.dim)
		}
	}
	for i, id := range ids {
		c := nearestCentroid(ix.centroids, vecs[i])
		ix.lists[c] = append(ix.lists[c], indexEntry{ID: id, Vec: vecs[i]})
	}
	ix.count += len(ids)
	return nil
}

// Remove deletes the given ids from whichever lists hold them.
func (ix *ivfIndex) Remove(ids []int64) int {
	if !ix.trained || len(ids) == 0 {
		return 0
	}
	drop := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	removed := 0
	for c, list := range ix.lists {
		kept := list[:0]
		for _, e := range list {
			if _, gone := drop[e.ID]; gone {
				removed++
				continue
			}
			kept = append(kept, e)
		}
		ix.lists[c] = kept
	}
	ix.count -= removed
	return removed
}

// Search probes the nprobe nearest clusters and returns the best k matches
// by inner product.
func (ix *ivfIndex) Search(query []float32, k int) []Match {
	if !ix.trained || ix.count == 0 || k <= 0 {
		return nil
	}

	probes := ix.nprobe
	if probes > len(ix.centroids) {
		probes = len(ix.centroids)
	}
	order := make([]Match, len(ix.centroids))
	for c, centroid := range ix.centroids {
		order[c] = Match{ID: int64(c), Score: dot(query, centroid)}
	}
	order = topK(order, probes)

	var matches []Match
	for _, probe := range order {
		for _, e := range ix.lists[probe.ID] {
			matches = append(matches, Match{ID: e.ID, Score: dot(query, e.Vec)})
		}
	}
	return topK(matches, k)
}

// Len returns the number of stored vectors.
func (ix *ivfIndex) Len() int { return ix.count }

// Reset drops all vectors and the trained quantizer.
func (ix *ivfIndex) Reset() {
	ix.trained = false
	ix.centroids = nil
	ix.lists = nil
	ix.count = 0
}

func nearestCentroid(centroids [][]float32, v []float32) int {
	best := 0
	bestScore := float32(-1 << 30)
	for c, centroid := range centroids {
		if s := dot(v, centroid); s > bestScore {
			bestScore = s
			best = c
		}
	}
	return best
}
