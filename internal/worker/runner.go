package worker

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Runner supervises the three background loops. Each queue has exactly one
// consumer, which serializes index mutation per pipeline.
type Runner struct {
	Scanner   *Scanner
	Chunker   *Chunker
	Rebuilder *Rebuilder
	Queues    *Queues
	Logger    *slog.Logger
}

// Run starts the scanner, chunk worker and rebuild worker, and blocks until
// ctx is cancelled. On cancellation the queues receive their shutdown
// sentinels so both workers drain pending jobs before exiting.
func (r *Runner) Run(ctx context.Context) error {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}

	g, gctx := errgroup.WithContext(ctx)

	// Workers run with their own context so they outlive cancellation long
	// enough to drain; the sentinels stop them.
	workerCtx := context.WithoutCancel(ctx)

	g.Go(func() error {
		err := r.Scanner.Run(gctx)
		if err == context.Canceled {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("workers_draining")
		r.Queues.Shutdown()
		return nil
	})
	g.Go(func() error {
		return r.Chunker.Run(workerCtx, r.Queues.Chunks)
	})
	g.Go(func() error {
		return r.Rebuilder.Run(workerCtx, r.Queues.Rebuilds)
	})

	return g.Wait()
}
