package cmd

import (
	"encoding/json"
	"strings"

	"github.com/spf13/cobra"

	"github.com/calepin/calepin/internal/output"
	"github.com/calepin/calepin/internal/search"
)

type searchOptions struct {
	notebook int64
	limit    int
	quick    bool
	noTitle  bool
	format   string
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search a notebook",
		Long: `Search a notebook with hybrid ranking.

Keyword matches from the full-text index are merged with semantic
matches from the notebook's vector index. When the embedding service
is unreachable the search degrades to keyword-only.

Examples:
  calepin search -b 1 "garden plans"
  calepin search -b 1 --quick "beetroot"
  calepin search -b 1 --format json "compost"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().Int64VarP(&opts.notebook, "notebook", "b", 1, "Notebook id")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 10, "Maximum number of results")
	cmd.Flags().BoolVar(&opts.quick, "quick", false, "Keyword-only fast path (no embedding call)")
	cmd.Flags().BoolVar(&opts.noTitle, "no-title", false, "Skip the semantic title index")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runSearch(cmd *cobra.Command, query string, opts searchOptions) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	window := a.cfg.Search.SnippetWindow

	var result *search.Result
	if opts.quick {
		result, err = a.engine.QuickSearch(ctx, opts.notebook, query, opts.limit, window)
	} else {
		result, err = a.engine.Search(ctx, opts.notebook, query, search.Options{
			K:             opts.limit,
			SearchTitle:   !opts.noTitle,
			SnippetWindow: window,
		})
	}
	if err != nil {
		return err
	}

	out := output.New(cmd.OutOrStdout())
	if opts.format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	if result.Degraded {
		out.Warning("embedding service unreachable, keyword results only")
	}
	if len(result.Ranking) == 0 {
		out.Plain("no results for %q", result.Query)
		return nil
	}
	for _, r := range result.Ranking {
		out.Result(r.Rank, r.Title, r.Score, r.VectorScore, r.HasLexical, r.HasVector, r.Snippets)
	}
	return nil
}
