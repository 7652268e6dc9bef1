package cmd

import (
	"context"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/calepin/calepin/internal/output"
	"github.com/calepin/calepin/internal/worker"
)

func newRebuildCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "rebuild <notebook-id>",
		Short: "Rebuild a notebook's vector index",
		Long: `Check a notebook's vector index against the rebuild policy and retrain
it when the policy fires. With --force the policy is skipped and the
index is retrained unconditionally.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			notebookID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return err
			}
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			rebuilder := worker.NewRebuilder(a.db, a.cache, a.cfg.Embeddings.Dimensions, a.cfg.Index.NList, a.logger)
			ctx := context.WithoutCancel(cmd.Context())
			if force {
				err = rebuilder.Rebuild(ctx, notebookID)
			} else {
				err = rebuilder.Check(ctx, notebookID)
			}
			if err != nil {
				return err
			}
			output.New(cmd.OutOrStdout()).Success("rebuild check complete for notebook %d", notebookID)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Retrain regardless of the rebuild policy")
	return cmd
}
