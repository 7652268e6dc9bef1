package cmd

import (
	"github.com/spf13/cobra"

	"github.com/calepin/calepin/internal/output"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show storage and index status",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			out := output.New(cmd.OutOrStdout())

			out.Header("calepin status")
			out.Field("data dir", a.cfg.DataDir)
			out.Field("embed model", a.embedder.ModelName())
			out.Field("embed dim", a.cfg.Embeddings.Dimensions)
			if docs, err := a.lexical.DocCount(); err == nil {
				out.Field("indexed notes", docs)
			}
			out.Field("embedder up", a.embedder.Available(ctx))

			notebooks, err := a.db.ListNotebooks(ctx)
			if err != nil {
				return err
			}
			for _, nb := range notebooks {
				out.Plain("")
				out.Header(nb.Name)
				out.Field("notebook id", nb.ID)

				dirty, err := a.db.DirtyNotes(ctx, nb.ID, a.cfg.Embeddings.Dimensions)
				if err == nil {
					out.Field("unchunked notes", len(dirty))
				}
				available, err := a.db.AvailableEmbeddings(ctx, nb.ID, a.cfg.Embeddings.Dimensions)
				if err == nil {
					out.Field("stored embeddings", available)
				}

				vs, err := a.cache.Get(ctx, nb.ID)
				if err != nil {
					out.Warning("vector index unavailable: %v", err)
					continue
				}
				out.Field("index trained", vs.Trained())
				out.Field("live embeddings", vs.EmbeddingCount())
				out.Field("mutations", vs.Mutations())
				if !vs.LastRebuild().IsZero() {
					out.Field("last rebuild", vs.LastRebuild().Format("2006-01-02 15:04:05"))
				}
			}
			return nil
		},
	}
}
