package cmd

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/calepin/calepin/internal/output"
)

func newNotebookCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notebook",
		Short: "Manage notebooks",
	}
	cmd.AddCommand(newNotebookCreateCmd())
	cmd.AddCommand(newNotebookListCmd())
	cmd.AddCommand(newNotebookRemoveCmd())
	return cmd
}

func newNotebookCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create <name>",
		Short: "Create a notebook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			id, err := a.db.CreateNotebook(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			output.New(cmd.OutOrStdout()).Success("created notebook %d (%s)", id, args[0])
			return nil
		},
	}
}

func newNotebookListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List notebooks",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			notebooks, err := a.db.ListNotebooks(cmd.Context())
			if err != nil {
				return err
			}
			out := output.New(cmd.OutOrStdout())
			if len(notebooks) == 0 {
				out.Plain("no notebooks")
				return nil
			}
			for _, nb := range notebooks {
				out.Plain("%4d  %s  (created %s)", nb.ID, nb.Name, nb.CreatedAt.Format("2006-01-02"))
			}
			return nil
		},
	}
}

func newNotebookRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id>",
		Short: "Remove a notebook and all of its notes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return err
			}
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			if err := a.lexical.DeleteNotebook(ctx, id); err != nil {
				return err
			}
			if err := a.cache.Drop(ctx, id); err != nil {
				return err
			}
			if err := a.db.DeleteNotebook(ctx, id); err != nil {
				return err
			}
			output.New(cmd.OutOrStdout()).Success("removed notebook %d", id)
			return nil
		},
	}
}
