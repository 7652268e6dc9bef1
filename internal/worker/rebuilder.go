package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/calepin/calepin/internal/store"
	"github.com/calepin/calepin/internal/vector"
)

// Rebuilder drains the rebuild queue: for each notebook it applies the
// rebuild policy and, when it fires, retrains the vector index from the
// durably stored chunk embeddings.
type Rebuilder struct {
	db     *store.DB
	cache  *vector.Cache
	dim    int
	nlist  int
	logger *slog.Logger
}

// NewRebuilder wires a rebuild worker.
func NewRebuilder(db *store.DB, cache *vector.Cache, dim, nlist int, logger *slog.Logger) *Rebuilder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Rebuilder{db: db, cache: cache, dim: dim, nlist: nlist, logger: logger}
}

// Run drains the rebuild queue until the sentinel arrives or ctx is
// cancelled.
func (r *Rebuilder) Run(ctx context.Context, checks <-chan int64) error {
	r.logger.Info("rebuild_worker_started")
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("rebuild_worker_stopped", slog.String("reason", "cancelled"))
			return ctx.Err()
		case notebookID := <-checks:
			if notebookID == 0 {
				r.logger.Info("rebuild_worker_stopped", slog.String("reason", "drained"))
				return nil
			}
			if err := r.Check(ctx, notebookID); err != nil {
				r.logger.Error("rebuild_check_failed",
					slog.Int64("notebook_id", notebookID),
					slog.String("error", err.Error()))
			}
		}
	}
}

// Check applies the rebuild policy to one notebook and rebuilds its index
// when the policy fires.
func (r *Rebuilder) Check(ctx context.Context, notebookID int64) error {
	vs, err := r.cache.Get(ctx, notebookID)
	if err != nil {
		return err
	}

	state := IndexState{
		Trained:        vs.Trained(),
		EmbeddingCount: vs.EmbeddingCount(),
		Mutations:      vs.Mutations(),
		LastRebuild:    vs.LastRebuild(),
	}
	available := 0
	if !state.Trained || state.EmbeddingCount == 0 {
		available, err = r.db.AvailableEmbeddings(ctx, notebookID, r.dim)
		if err != nil {
			return err
		}
	}

	if !ShouldRebuild(state, available, r.nlist, time.Now().UTC()) {
		r.logger.Debug("rebuild_skipped", slog.Int64("notebook_id", notebookID))
		return nil
	}
	return r.Rebuild(ctx, notebookID)
}

// Rebuild retrains a notebook's index from scratch: it loads every clean
// note's stored embeddings, clears the index, trains on the full embedding
// set, and re-adds every note. This is the only path that clears
// fragmentation accumulated by add/remove churn. The notebook's mutation
// lock is held from the row read through the snapshot save, so a concurrent
// chunk add can neither be wiped unseen nor fail against a cleared index.
func (r *Rebuilder) Rebuild(ctx context.Context, notebookID int64) error {
	started := time.Now()
	vs, release, err := r.cache.Acquire(ctx, notebookID)
	if err != nil {
		return err
	}
	defer release()

	chunked, err := r.db.ChunkedNotes(ctx, notebookID, r.dim)
	if err != nil {
		return err
	}

	var allEmbs [][]float32
	for _, cn := range chunked {
		allEmbs = append(allEmbs, cn.ChunkEmbs...)
	}
	if len(allEmbs) < r.nlist {
		r.logger.Info("rebuild_deferred",
			slog.Int64("notebook_id", notebookID),
			slog.Int("embeddings", len(allEmbs)),
			slog.Int("nlist", r.nlist))
		return nil
	}

	vs.Clear()
	if err := vs.Train(allEmbs); err != nil {
		return err
	}
	for _, cn := range chunked {
		if _, _, err := vs.Add(cn.NoteID, cn.ChunkEmbs, cn.Spans, cn.TitleEmb); err != nil {
			return err
		}
	}
	vs.MarkRebuilt(time.Now().UTC())

	if err := r.cache.Save(ctx, notebookID); err != nil {
		return err
	}
	r.logger.Info("rebuild_complete",
		slog.Int64("notebook_id", notebookID),
		slog.Int("notes", len(chunked)),
		slog.Int("embeddings", len(allEmbs)),
		slog.Duration("elapsed", time.Since(started)))
	return nil
}
