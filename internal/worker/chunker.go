package worker

import (
	"context"
	"log/slog"

	"github.com/calepin/calepin/internal/chunk"
	"github.com/calepin/calepin/internal/embed"
	"github.com/calepin/calepin/internal/store"
	"github.com/calepin/calepin/internal/vector"
)

// Chunker drains the chunk queue: it segments a note, embeds its sentences,
// groups them into passages, embeds the passages, persists the results, and
// feeds the notebook's vector index.
type Chunker struct {
	db       *store.DB
	cache    *vector.Cache
	embedder embed.Embedder
	logger   *slog.Logger
}

// NewChunker wires a chunk worker.
func NewChunker(db *store.DB, cache *vector.Cache, embedder embed.Embedder, logger *slog.Logger) *Chunker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chunker{db: db, cache: cache, embedder: embedder, logger: logger}
}

// Run drains the chunk queue until the sentinel arrives or ctx is
// cancelled. A failed job leaves its note dirty; the scanner re-enqueues it
// on its next pass, which is how transient embedding outages retry.
func (c *Chunker) Run(ctx context.Context, jobs <-chan ChunkJob) error {
	c.logger.Info("chunk_worker_started")
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("chunk_worker_stopped", slog.String("reason", "cancelled"))
			return ctx.Err()
		case job := <-jobs:
			if job.sentinel() {
				c.logger.Info("chunk_worker_stopped", slog.String("reason", "drained"))
				return nil
			}
			if err := c.Process(ctx, job.NotebookID, job.NoteID); err != nil {
				c.logger.Warn("chunk_failed",
					slog.Int64("notebook_id", job.NotebookID),
					slog.Int64("note_id", job.NoteID),
					slog.String("error", err.Error()))
			}
		}
	}
}

// Process chunks one note end to end. The note stays dirty unless every
// stage, including persistence, succeeds.
func (c *Chunker) Process(ctx context.Context, notebookID, noteID int64) error {
	note, err := c.db.GetNote(ctx, noteID)
	if err != nil {
		return err
	}

	sentences, spans := chunk.SplitSentences(note.Content)
	if len(sentences) == 0 {
		// Body has no sentences; index the title alone so the note still
		// surfaces in semantic search.
		sentences = []string{note.Title}
		spans = []chunk.Span{{Start: 0, End: 0}}
	}

	sentEmbs, err := embed.EmbedAll(ctx, c.embedder, sentences)
	if err != nil {
		return err
	}
	chunks := chunk.MakeChunks(sentences, spans, sentEmbs)

	texts := make([]string, 0, len(chunks)+1)
	texts = append(texts, note.Title)
	for _, ch := range chunks {
		texts = append(texts, ch.Text)
	}
	embs, err := embed.EmbedAll(ctx, c.embedder, texts)
	if err != nil {
		return err
	}
	titleEmb := embs[0]
	chunkEmbs := embs[1:]
	chunkSpans := make([]chunk.Span, len(chunks))
	for i, ch := range chunks {
		chunkSpans[i] = ch.Span
	}

	// The lock spans the row write, the live-index add, and the snapshot
	// save, so a rebuild cannot interleave and wipe an add it never saw.
	vs, release, err := c.cache.Acquire(ctx, notebookID)
	if err != nil {
		return err
	}
	defer release()

	if err := c.db.StoreChunks(ctx, noteID, titleEmb, chunkEmbs, chunkSpans); err != nil {
		return err
	}
	if vs.Trained() {
		if _, _, err := vs.Add(noteID, chunkEmbs, chunkSpans, titleEmb); err != nil {
			c.redirty(ctx, noteID)
			return err
		}
		if err := c.cache.Save(ctx, notebookID); err != nil {
			c.redirty(ctx, noteID)
			return err
		}
	}

	c.logger.Info("chunk_complete",
		slog.Int64("notebook_id", notebookID),
		slog.Int64("note_id", noteID),
		slog.Int("chunks", len(chunks)))
	return nil
}

// redirty undoes the clean flag StoreChunks set when the live-index add
// fails, so the scanner picks the note up again.
func (c *Chunker) redirty(ctx context.Context, noteID int64) {
	if err := c.db.MarkNoteDirty(ctx, noteID); err != nil {
		c.logger.Error("redirty_failed",
			slog.Int64("note_id", noteID),
			slog.String("error", err.Error()))
	}
}
