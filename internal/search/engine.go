package search

import (
	"context"
	"log/slog"
	"strings"

	"github.com/calepin/calepin/internal/chunk"
	"github.com/calepin/calepin/internal/embed"
	cerrors "github.com/calepin/calepin/internal/errors"
	"github.com/calepin/calepin/internal/store"
	"github.com/calepin/calepin/internal/vector"
)

// queryPrefix steers the embedding model toward retrieval behavior; notes
// are embedded bare, queries with this instruction prefix.
const queryPrefix = "This is a query about: "

// DefaultSnippetWindow is the rune padding around a highlight cluster.
const DefaultSnippetWindow = 48

// Options tunes one search call.
type Options struct {
	// K is the maximum number of results.
	K int
	// SearchTitle enables the semantic title index.
	SearchTitle bool
	// SnippetWindow is the rune padding around highlight clusters; zero
	// uses DefaultSnippetWindow.
	SnippetWindow int
}

// Result is the outcome of one hybrid search.
type Result struct {
	Query   string
	Ranking []*RankedNote
	// Degraded is true when the embedding service was unreachable and the
	// ranking is lexical-only.
	Degraded bool
}

// RebuildNotifier receives rebuild-check requests when a search heals
// orphaned index ids.
type RebuildNotifier interface {
	RequestRebuild(notebookID int64)
}

// Engine runs hybrid searches over one database, one lexical index, and the
// vector index cache.
type Engine struct {
	db       *store.DB
	lexical  *store.LexicalIndex
	cache    *vector.Cache
	embedder embed.Embedder
	rebuilds RebuildNotifier
	logger   *slog.Logger
}

// NewEngine wires a search engine. rebuilds may be nil if no background
// rebuild worker is running.
func NewEngine(db *store.DB, lexical *store.LexicalIndex, cache *vector.Cache, embedder embed.Embedder, rebuilds RebuildNotifier, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		db:       db,
		lexical:  lexical,
		cache:    cache,
		embedder: embedder,
		rebuilds: rebuilds,
		logger:   logger,
	}
}

// Search runs the full hybrid pipeline: lexical matching, semantic content
// and title matching, orphan healing, merging, and context attachment.
// An unreachable embedding service degrades the call to lexical-only.
func (e *Engine) Search(ctx context.Context, notebookID int64, keyword string, opts Options) (*Result, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, cerrors.Newf(cerrors.ErrCodeQueryEmpty, "empty search query")
	}
	k := opts.K
	if k <= 0 {
		k = 10
	}
	window := opts.SnippetWindow
	if window <= 0 {
		window = DefaultSnippetWindow
	}

	lexHits, err := e.lexical.Search(ctx, notebookID, keyword, k)
	if err != nil {
		return nil, err
	}

	vs, err := e.cache.Get(ctx, notebookID)
	if err != nil {
		return nil, err
	}
	semantic := vs.Trained() && vs.EmbeddingCount() > 0

	var contentMatches []vector.ContentMatch
	var titleMatches []vector.TitleMatch
	degraded := false
	if semantic {
		queries := []string{queryPrefix + keyword + "."}
		if opts.SearchTitle {
			queries = append(queries, keyword)
		}
		embs, err := e.embedder.EmbedBatch(ctx, queries)
		if err != nil {
			e.logger.Warn("embedding_unavailable",
				slog.Int64("notebook_id", notebookID),
				slog.String("error", err.Error()))
			semantic = false
			degraded = true
		} else {
			healed := 0
			var h int
			contentMatches, h = vs.Search(embs[0], k)
			healed += h
			if opts.SearchTitle {
				titleMatches, h = vs.SearchTitle(embs[1], k)
				healed += h
			}
			if healed > 0 {
				e.logger.Warn("orphan_ids_healed",
					slog.Int64("notebook_id", notebookID),
					slog.Int("count", healed))
				if err := e.cache.Save(ctx, notebookID); err != nil {
					e.logger.Error("snapshot_save_failed",
						slog.Int64("notebook_id", notebookID),
						slog.String("error", err.Error()))
				}
				if e.rebuilds != nil {
					e.rebuilds.RequestRebuild(notebookID)
				}
			}
		}
	}

	// Fetch every note referenced by any source; matches whose note was
	// deleted out from under a stale index are dropped below.
	idSet := make(map[int64]struct{})
	for _, h := range lexHits {
		idSet[h.NoteID] = struct{}{}
	}
	for _, m := range contentMatches {
		idSet[m.NoteID] = struct{}{}
	}
	for _, m := range titleMatches {
		idSet[m.NoteID] = struct{}{}
	}
	ids := make([]int64, 0, len(idSet))
	for id := range idSet {
		ids = append(ids, id)
	}
	notes, err := e.db.GetNotes(ctx, notebookID, ids)
	if err != nil {
		return nil, err
	}

	lexical := make([]LexicalMatch, 0, len(lexHits))
	for _, h := range lexHits {
		note, ok := notes[h.NoteID]
		if !ok {
			continue
		}
		lexical = append(lexical, LexicalMatch{
			NoteID:   h.NoteID,
			Score:    h.Score,
			TitlePos: BytePosToRune(note.Title, h.TitlePos),
			BodyPos:  BytePosToRune(note.Content, h.BodyPos),
		})
	}
	contentMatches = filterContent(contentMatches, notes)
	titleMatches = filterTitles(titleMatches, notes)

	ranking := Merge(lexical, contentMatches, titleMatches, k, semantic)
	for _, r := range ranking {
		note := notes[r.NoteID]
		r.Title = note.Title
		r.Content = note.Content
		r.LastEdit = note.LastEdit
		r.Snippets = Snippets(note.Content, r.BodyPos, spansToPairs(r.ChunkSpans), window)
	}

	return &Result{Query: keyword, Ranking: ranking, Degraded: degraded}, nil
}

// QuickSearch is the lexical-only fast path: keyword matches with highlight
// positions and snippets, no embedding round-trip.
func (e *Engine) QuickSearch(ctx context.Context, notebookID int64, keyword string, k, window int) (*Result, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, cerrors.Newf(cerrors.ErrCodeQueryEmpty, "empty search query")
	}
	if k <= 0 {
		k = 5
	}
	if window <= 0 {
		window = DefaultSnippetWindow
	}

	lexHits, err := e.lexical.Search(ctx, notebookID, keyword, k)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(lexHits))
	for _, h := range lexHits {
		ids = append(ids, h.NoteID)
	}
	notes, err := e.db.GetNotes(ctx, notebookID, ids)
	if err != nil {
		return nil, err
	}

	var ranking []*RankedNote
	for _, h := range lexHits {
		note, ok := notes[h.NoteID]
		if !ok {
			continue
		}
		bodyPos := BytePosToRune(note.Content, h.BodyPos)
		r := &RankedNote{
			Rank:       len(ranking) + 1,
			NoteID:     h.NoteID,
			HasLexical: true,
			Score:      h.Score,
			TitlePos:   BytePosToRune(note.Title, h.TitlePos),
			BodyPos:    bodyPos,
			Title:      note.Title,
			Content:    note.Content,
			LastEdit:   note.LastEdit,
			Snippets:   Snippets(note.Content, bodyPos, nil, window),
		}
		ranking = append(ranking, r)
	}
	return &Result{Query: keyword, Ranking: ranking}, nil
}

func filterContent(matches []vector.ContentMatch, notes map[int64]*store.Note) []vector.ContentMatch {
	out := matches[:0]
	for _, m := range matches {
		if _, ok := notes[m.NoteID]; ok {
			out = append(out, m)
		}
	}
	return out
}

func filterTitles(matches []vector.TitleMatch, notes map[int64]*store.Note) []vector.TitleMatch {
	out := matches[:0]
	for _, m := range matches {
		if _, ok := notes[m.NoteID]; ok {
			out = append(out, m)
		}
	}
	return out
}

func spansToPairs(spans []chunk.Span) [][2]int {
	if len(spans) == 0 {
		return nil
	}
	out := make([][2]int, len(spans))
	for i, s := range spans {
		out[i] = [2]int{s.Start, s.End}
	}
	return out
}
