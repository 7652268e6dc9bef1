package cmd

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/calepin/calepin/internal/output"
)

// readBody returns the note body from the flag, a file, or stdin.
func readBody(body, file string) (string, error) {
	switch {
	case body != "":
		return body, nil
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return "", err
		}
		return string(data), nil
	default:
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
}

func newAddCmd() *cobra.Command {
	var notebook int64
	var title, body, file string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a note",
		Long: `Add a note to a notebook. The body comes from --body, --file, or stdin.

The note is stored immediately and indexed for keyword search; its
embeddings are generated by the background chunk worker (see 'serve').`,
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := readBody(body, file)
			if err != nil {
				return err
			}
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			if _, err := a.db.GetNotebook(ctx, notebook); err != nil {
				return err
			}
			noteID, err := a.db.InsertNote(ctx, notebook, title, content)
			if err != nil {
				return err
			}
			if err := a.lexical.Index(notebook, noteID, title, content); err != nil {
				return err
			}
			a.queues.EnqueueChunk(notebook, noteID)

			output.New(cmd.OutOrStdout()).Success("added note %d to notebook %d", noteID, notebook)
			return nil
		},
	}

	cmd.Flags().Int64VarP(&notebook, "notebook", "b", 1, "Notebook id")
	cmd.Flags().StringVarP(&title, "title", "t", "", "Note title")
	cmd.Flags().StringVar(&body, "body", "", "Note body")
	cmd.Flags().StringVar(&file, "file", "", "Read note body from file")
	return cmd
}

func newEditCmd() *cobra.Command {
	var title, body, file string

	cmd := &cobra.Command{
		Use:   "edit <note-id>",
		Short: "Replace a note's title and body",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			noteID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid note id %q", args[0])
			}
			content, err := readBody(body, file)
			if err != nil {
				return err
			}
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			note, err := a.db.GetNote(ctx, noteID)
			if err != nil {
				return err
			}
			if title == "" {
				title = note.Title
			}
			if err := a.db.UpdateNote(ctx, noteID, title, content); err != nil {
				return err
			}
			if err := a.lexical.Index(note.NotebookID, noteID, title, content); err != nil {
				return err
			}
			a.queues.EnqueueChunk(note.NotebookID, noteID)

			output.New(cmd.OutOrStdout()).Success("updated note %d", noteID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&title, "title", "t", "", "New title (keeps current when empty)")
	cmd.Flags().StringVar(&body, "body", "", "New body")
	cmd.Flags().StringVar(&file, "file", "", "Read new body from file")
	return cmd
}

func newRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <note-id>",
		Short: "Remove a note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			noteID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid note id %q", args[0])
			}
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			note, err := a.db.GetNote(ctx, noteID)
			if err != nil {
				return err
			}
			if err := a.db.DeleteNote(ctx, noteID); err != nil {
				return err
			}
			if err := a.lexical.Delete(noteID); err != nil {
				return err
			}

			vs, release, err := a.cache.Acquire(ctx, note.NotebookID)
			if err != nil {
				return err
			}
			defer release()
			vs.Remove(noteID)
			if err := a.cache.Save(ctx, note.NotebookID); err != nil {
				return err
			}

			output.New(cmd.OutOrStdout()).Success("removed note %d", noteID)
			return nil
		},
	}
}

func newListCmd() *cobra.Command {
	var notebook int64

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List notes in a notebook",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			notes, err := a.db.ListNotes(cmd.Context(), notebook)
			if err != nil {
				return err
			}
			out := output.New(cmd.OutOrStdout())
			if len(notes) == 0 {
				out.Plain("no notes in notebook %d", notebook)
				return nil
			}
			for _, n := range notes {
				marker := " "
				if n.Dirty {
					marker = "*"
				}
				out.Plain("%4d %s %s  (edited %s)", n.ID, marker, n.Title, n.LastEdit.Format("2006-01-02 15:04"))
			}
			return nil
		},
	}

	cmd.Flags().Int64VarP(&notebook, "notebook", "b", 1, "Notebook id")
	return cmd
}
