package cmd

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/calepin/calepin/internal/output"
	"github.com/calepin/calepin/internal/worker"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the background workers",
		Long: `Run the chunking and rebuild workers in the foreground.

The scanner periodically finds notes whose embeddings are missing or
stale and feeds them to the chunk worker; fully chunked notebooks get
periodic index rebuild checks. Stop with Ctrl-C; pending queue entries
are drained before exit.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd)
		},
	}
}

func runServe(cmd *cobra.Command) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	out := output.New(cmd.OutOrStdout())
	out.Header("calepin workers")
	out.Field("data dir", a.cfg.DataDir)
	out.Field("scan interval", a.cfg.Workers.ScanInterval)
	out.Field("embed model", a.embedder.ModelName())

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner := &worker.Runner{
		Scanner:   worker.NewScanner(a.db, a.queues, a.cfg.Embeddings.Dimensions, a.cfg.Workers.ScanInterval, a.logger),
		Chunker:   worker.NewChunker(a.db, a.cache, a.embedder, a.logger),
		Rebuilder: worker.NewRebuilder(a.db, a.cache, a.cfg.Embeddings.Dimensions, a.cfg.Index.NList, a.logger),
		Queues:    a.queues,
		Logger:    a.logger,
	}

	err = runner.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	// Flush every live index before exit.
	if err := a.cache.SaveAll(context.Background()); err != nil {
		out.Warning("failed to persist vector indexes: %v", err)
	}
	out.Success("workers stopped")
	return nil
}
