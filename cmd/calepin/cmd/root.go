// Package cmd provides the CLI commands for calepin.
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var (
	flagConfig  string
	flagDataDir string
	flagDebug   bool
	flagOffline bool
)

// NewRootCmd creates the root command for the calepin CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calepin",
		Short: "Hybrid keyword + semantic search over your notes",
		Long: `Calepin keeps notebooks of notes and serves hybrid search over them:
keyword matching through a full-text index, fused with semantic matching
through a per-notebook vector index built from chunk embeddings.

Background workers chunk edited notes and retrain vector indexes as
they accumulate changes.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file path (default <data-dir>/config.yaml)")
	cmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "Data directory (default ~/.calepin)")
	cmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	cmd.PersistentFlags().BoolVar(&flagOffline, "offline", false, "Use deterministic local embeddings (no embedding service)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newNotebookCmd())
	cmd.AddCommand(newAddCmd())
	cmd.AddCommand(newEditCmd())
	cmd.AddCommand(newRemoveCmd())
	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newRebuildCmd())
	cmd.AddCommand(newStatusCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	cmd := NewRootCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

// dataDir resolves the data directory from the flag or the home default.
func dataDir() (string, error) {
	if flagDataDir != "" {
		return flagDataDir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".calepin"), nil
}

// configPath resolves the config file location.
func configPath(dir string) string {
	if flagConfig != "" {
		return flagConfig
	}
	return filepath.Join(dir, "config.yaml")
}
