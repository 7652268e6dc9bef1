package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/calepin/calepin/internal/store"
)

// Scanner periodically walks every notebook looking for work: notes whose
// embeddings are missing or stale go to the chunk queue, and notebooks with
// nothing left to chunk get a rebuild check.
type Scanner struct {
	db       *store.DB
	queues   *Queues
	dim      int
	interval time.Duration
	logger   *slog.Logger
}

// NewScanner wires the periodic scanner.
func NewScanner(db *store.DB, queues *Queues, dim int, interval time.Duration, logger *slog.Logger) *Scanner {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{db: db, queues: queues, dim: dim, interval: interval, logger: logger}
}

// Run scans immediately, then on every tick, until ctx is cancelled.
func (s *Scanner) Run(ctx context.Context) error {
	s.logger.Info("scanner_started", slog.Duration("interval", s.interval))
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if err := s.Scan(ctx); err != nil {
			s.logger.Error("scan_failed", slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			s.logger.Info("scanner_stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Scan runs one pass over all notebooks.
func (s *Scanner) Scan(ctx context.Context) error {
	notebooks, err := s.db.ListNotebooks(ctx)
	if err != nil {
		return err
	}

	for _, nb := range notebooks {
		dirty, err := s.db.DirtyNotes(ctx, nb.ID, s.dim)
		if err != nil {
			s.logger.Error("dirty_scan_failed",
				slog.Int64("notebook_id", nb.ID),
				slog.String("error", err.Error()))
			continue
		}
		if len(dirty) == 0 {
			// Fully chunked notebooks are candidates for a rebuild check.
			s.queues.RequestRebuild(nb.ID)
			continue
		}
		enqueued := 0
		for _, noteID := range dirty {
			if s.queues.EnqueueChunk(nb.ID, noteID) {
				enqueued++
			}
		}
		s.logger.Info("dirty_notes_enqueued",
			slog.Int64("notebook_id", nb.ID),
			slog.Int("dirty", len(dirty)),
			slog.Int("enqueued", enqueued))
	}
	return nil
}
