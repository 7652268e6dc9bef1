package search

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calepin/calepin/internal/embed"
	cerrors "github.com/calepin/calepin/internal/errors"
	"github.com/calepin/calepin/internal/store"
	"github.com/calepin/calepin/internal/vector"
	"github.com/calepin/calepin/internal/worker"
)

const engineDim = 16

type engineFixture struct {
	db       *store.DB
	lexical  *store.LexicalIndex
	cache    *vector.Cache
	embedder embed.Embedder
	chunker  *worker.Chunker
	nbID     int64
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	db, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	lexical, err := store.NewLexicalIndex("", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = lexical.Close() })

	params := vector.Params{Dim: engineDim, NList: 2, NProbe: 2, Normalize: true}
	cache, err := vector.NewCache(2, params, db)
	require.NoError(t, err)

	embedder := embed.NewStaticEmbedder(engineDim)
	nbID, err := db.CreateNotebook(context.Background(), "garden")
	require.NoError(t, err)

	return &engineFixture{
		db:       db,
		lexical:  lexical,
		cache:    cache,
		embedder: embedder,
		chunker:  worker.NewChunker(db, cache, embedder, nil),
		nbID:     nbID,
	}
}

func (f *engineFixture) addNote(t *testing.T, title, body string) int64 {
	t.Helper()
	ctx := context.Background()
	noteID, err := f.db.InsertNote(ctx, f.nbID, title, body)
	require.NoError(t, err)
	require.NoError(t, f.lexical.Index(f.nbID, noteID, title, body))
	require.NoError(t, f.chunker.Process(ctx, f.nbID, noteID))
	return noteID
}

func (f *engineFixture) train(t *testing.T) {
	t.Helper()
	rebuilder := worker.NewRebuilder(f.db, f.cache, engineDim, 2, nil)
	require.NoError(t, rebuilder.Check(context.Background(), f.nbID))
}

func TestEngineSearchHybrid(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	beets := f.addNote(t, "Beet progress", "Planted beets along the fence. The beets sprouted quickly.")
	f.addNote(t, "Compost", "Turned the compost heap and added leaves.")
	f.addNote(t, "Apples", "Pruned the apple trees before winter.")
	f.addNote(t, "Meetings", "Quarterly review scheduled for Thursday.")
	f.train(t)

	eng := NewEngine(f.db, f.lexical, f.cache, f.embedder, nil, nil)
	res, err := eng.Search(ctx, f.nbID, "beets", Options{K: 5, SearchTitle: true})
	require.NoError(t, err)
	assert.False(t, res.Degraded)
	require.NotEmpty(t, res.Ranking)

	top := res.Ranking[0]
	assert.Equal(t, beets, top.NoteID)
	assert.Equal(t, 1, top.Rank)
	assert.True(t, top.HasLexical)
	assert.Equal(t, "Beet progress", top.Title)
	assert.NotEmpty(t, top.Snippets)
}

func TestEngineSearchEmptyQuery(t *testing.T) {
	f := newEngineFixture(t)
	eng := NewEngine(f.db, f.lexical, f.cache, f.embedder, nil, nil)
	_, err := eng.Search(context.Background(), f.nbID, "   ", Options{K: 5})
	require.Error(t, err)
	assert.Equal(t, cerrors.ErrCodeQueryEmpty, cerrors.GetCode(err))
}

func TestEngineSearchUntrainedIsLexicalOnly(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	noteID := f.addNote(t, "Beets", "Planted beets today.")

	// no training pass: semantic path is skipped, not degraded
	eng := NewEngine(f.db, f.lexical, f.cache, f.embedder, nil, nil)
	res, err := eng.Search(ctx, f.nbID, "beets", Options{K: 5})
	require.NoError(t, err)
	assert.False(t, res.Degraded)
	require.Len(t, res.Ranking, 1)
	assert.Equal(t, noteID, res.Ranking[0].NoteID)
	assert.True(t, res.Ranking[0].HasLexical)
	assert.False(t, res.Ranking[0].HasVector)
}

type failingEmbedder struct {
	embed.Embedder
}

func (f *failingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, fmt.Errorf("service down")
}

func TestEngineSearchDegradedOnEmbedFailure(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	f.addNote(t, "Beets", "Planted beets today.")
	f.addNote(t, "Compost", "Turned the compost heap.")
	f.addNote(t, "Apples", "Pruned the apple trees.")
	f.train(t)

	eng := NewEngine(f.db, f.lexical, f.cache, &failingEmbedder{Embedder: f.embedder}, nil, nil)
	res, err := eng.Search(ctx, f.nbID, "beets", Options{K: 5})
	require.NoError(t, err)
	assert.True(t, res.Degraded)
	require.NotEmpty(t, res.Ranking)
	for _, r := range res.Ranking {
		assert.False(t, r.HasVector)
	}
}

func TestEngineSearchDropsDeletedNotes(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	keep := f.addNote(t, "Beets", "Planted beets in the garden bed.")
	gone := f.addNote(t, "More beets", "The beets need thinning soon.")
	f.addNote(t, "Compost", "Turned the compost heap.")
	f.train(t)

	// delete from the database only; lexical and vector indexes go stale
	require.NoError(t, f.db.DeleteNote(ctx, gone))

	eng := NewEngine(f.db, f.lexical, f.cache, f.embedder, nil, nil)
	res, err := eng.Search(ctx, f.nbID, "beets", Options{K: 5})
	require.NoError(t, err)
	for _, r := range res.Ranking {
		assert.NotEqual(t, gone, r.NoteID)
	}
	found := false
	for _, r := range res.Ranking {
		if r.NoteID == keep {
			found = true
		}
	}
	assert.True(t, found)
}

func TestEngineQuickSearch(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	noteID := f.addNote(t, "Beets", "Planted beets today. They sprouted fast.")
	f.addNote(t, "Compost", "Turned the compost heap.")

	eng := NewEngine(f.db, f.lexical, f.cache, f.embedder, nil, nil)
	res, err := eng.QuickSearch(ctx, f.nbID, "beets", 5, 0)
	require.NoError(t, err)
	require.Len(t, res.Ranking, 1)
	assert.Equal(t, noteID, res.Ranking[0].NoteID)
	assert.NotEmpty(t, res.Ranking[0].Snippets)

	_, err = eng.QuickSearch(ctx, f.nbID, "", 5, 0)
	assert.Error(t, err)
}
