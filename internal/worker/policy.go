// Package worker runs the background pipelines: note chunking, index
// rebuild checks, and the periodic scanner feeding both queues.
package worker

import "time"

// Rebuild thresholds. An index accumulates fragmentation from add/remove
// churn; a full retrain is the only path that clears it, so the policy
// trades rebuild cost against staleness.
const (
	// MutationLimit forces a rebuild regardless of age.
	MutationLimit = 25

	// AgedMutationLimit forces a rebuild after AgedWindow.
	AgedMutationLimit = 10
	AgedWindow        = 24 * time.Hour

	// StaleWindow forces a rebuild of any mutated index.
	StaleWindow = 10 * 24 * time.Hour
)

// IndexState is the snapshot of a vector index the rebuild decision reads.
type IndexState struct {
	Trained        bool
	EmbeddingCount int
	Mutations      int
	LastRebuild    time.Time
}

// ShouldRebuild decides whether a notebook's vector index must be retrained.
//
// An untrained or empty index trains as soon as the durable, fully chunked
// notes hold more embeddings than the cluster count; training with fewer
// points than clusters is meaningless. A live index rebuilds on heavy churn,
// moderate churn that has aged a day, or any churn older than ten days.
func ShouldRebuild(state IndexState, available, nlist int, now time.Time) bool {
	if !state.Trained || state.EmbeddingCount == 0 {
		return available > nlist
	}

	gap := now.Sub(state.LastRebuild)
	switch {
	case state.Mutations > MutationLimit:
		return true
	case state.Mutations > AgedMutationLimit && gap > AgedWindow:
		return true
	case state.Mutations > 0 && gap > StaleWindow:
		return true
	}
	return false
}
