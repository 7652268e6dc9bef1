package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calepin/calepin/internal/chunk"
	cerrors "github.com/calepin/calepin/internal/errors"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func storeTestChunks(t *testing.T, db *DB, noteID int64, dim int) {
	t.Helper()
	titleEmb := make([]float32, dim)
	titleEmb[0] = 1
	chunkEmb := make([]float32, dim)
	chunkEmb[1] = 1
	err := db.StoreChunks(context.Background(), noteID, titleEmb,
		[][]float32{chunkEmb}, []chunk.Span{{Start: 0, End: 10}})
	require.NoError(t, err)
}

func TestNotebookLifecycle(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	id, err := db.CreateNotebook(ctx, "garden")
	require.NoError(t, err)
	require.Positive(t, id)

	nb, err := db.GetNotebook(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "garden", nb.Name)
	assert.False(t, nb.CreatedAt.IsZero())

	notebooks, err := db.ListNotebooks(ctx)
	require.NoError(t, err)
	assert.Len(t, notebooks, 1)

	require.NoError(t, db.DeleteNotebook(ctx, id))
	_, err = db.GetNotebook(ctx, id)
	require.Error(t, err)
	assert.Equal(t, cerrors.ErrCodeNotebookNotFound, cerrors.GetCode(err))
}

func TestNoteLifecycle(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	nbID, err := db.CreateNotebook(ctx, "nb")
	require.NoError(t, err)

	noteID, err := db.InsertNote(ctx, nbID, "Beetroot", "Planted in April.")
	require.NoError(t, err)

	note, err := db.GetNote(ctx, noteID)
	require.NoError(t, err)
	assert.Equal(t, "Beetroot", note.Title)
	assert.True(t, note.Dirty, "new notes start dirty")

	require.NoError(t, db.UpdateNote(ctx, noteID, "Beets", "Harvested in July."))
	note, err = db.GetNote(ctx, noteID)
	require.NoError(t, err)
	assert.Equal(t, "Beets", note.Title)
	assert.True(t, note.Dirty, "edits mark notes dirty again")

	notes, err := db.ListNotes(ctx, nbID)
	require.NoError(t, err)
	require.Len(t, notes, 1)

	require.NoError(t, db.DeleteNote(ctx, noteID))
	_, err = db.GetNote(ctx, noteID)
	require.Error(t, err)
	assert.Equal(t, cerrors.ErrCodeNoteNotFound, cerrors.GetCode(err))

	// deleting again is a no-op
	require.NoError(t, db.DeleteNote(ctx, noteID))
}

func TestGetNotesFiltersByNotebook(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	nb1, _ := db.CreateNotebook(ctx, "one")
	nb2, _ := db.CreateNotebook(ctx, "two")
	n1, _ := db.InsertNote(ctx, nb1, "a", "body a")
	n2, _ := db.InsertNote(ctx, nb2, "b", "body b")

	notes, err := db.GetNotes(ctx, nb1, []int64{n1, n2, 999})
	require.NoError(t, err)
	assert.Len(t, notes, 1)
	assert.Contains(t, notes, n1)
}

func TestStoreChunksClearsDirty(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	nbID, _ := db.CreateNotebook(ctx, "nb")
	noteID, _ := db.InsertNote(ctx, nbID, "t", "some body text here")

	dirty, err := db.DirtyNotes(ctx, nbID, 4)
	require.NoError(t, err)
	assert.Equal(t, []int64{noteID}, dirty)

	storeTestChunks(t, db, noteID, 4)

	dirty, err = db.DirtyNotes(ctx, nbID, 4)
	require.NoError(t, err)
	assert.Empty(t, dirty)

	note, err := db.GetNote(ctx, noteID)
	require.NoError(t, err)
	assert.False(t, note.Dirty)
	assert.EqualValues(t, 1, note.Meta["n_chunk"])
	assert.EqualValues(t, 4, note.Meta["embed_d"])
}

func TestMarkNoteDirty(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	nbID, _ := db.CreateNotebook(ctx, "nb")
	noteID, _ := db.InsertNote(ctx, nbID, "t", "some body text here")
	storeTestChunks(t, db, noteID, 4)

	require.NoError(t, db.MarkNoteDirty(ctx, noteID))
	dirty, err := db.DirtyNotes(ctx, nbID, 4)
	require.NoError(t, err)
	assert.Equal(t, []int64{noteID}, dirty)

	// content untouched by the flag flip
	note, err := db.GetNote(ctx, noteID)
	require.NoError(t, err)
	assert.Equal(t, "some body text here", note.Content)

	err = db.MarkNoteDirty(ctx, 999)
	assert.Equal(t, cerrors.ErrCodeNoteNotFound, cerrors.GetCode(err))
}

func TestDirtyNotesDetectsDimensionMismatch(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	nbID, _ := db.CreateNotebook(ctx, "nb")
	noteID, _ := db.InsertNote(ctx, nbID, "t", "body")
	storeTestChunks(t, db, noteID, 4)

	// embeddings stored at dim 4 are stale when the configured dim is 8
	dirty, err := db.DirtyNotes(ctx, nbID, 8)
	require.NoError(t, err)
	assert.Equal(t, []int64{noteID}, dirty)
}

func TestAvailableEmbeddings(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	nbID, _ := db.CreateNotebook(ctx, "nb")
	for i := 0; i < 3; i++ {
		noteID, _ := db.InsertNote(ctx, nbID, "t", "body")
		storeTestChunks(t, db, noteID, 4)
	}
	// one dirty note does not count
	_, err := db.InsertNote(ctx, nbID, "t", "body")
	require.NoError(t, err)

	n, err := db.AvailableEmbeddings(ctx, nbID, 4)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestChunkedNotesRoundTrip(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	nbID, _ := db.CreateNotebook(ctx, "nb")
	noteID, _ := db.InsertNote(ctx, nbID, "t", "body")
	storeTestChunks(t, db, noteID, 4)

	chunked, err := db.ChunkedNotes(ctx, nbID, 4)
	require.NoError(t, err)
	require.Len(t, chunked, 1)
	assert.Equal(t, noteID, chunked[0].NoteID)
	require.Len(t, chunked[0].ChunkEmbs, 1)
	assert.Len(t, chunked[0].TitleEmb, 4)
	assert.Equal(t, []chunk.Span{{Start: 0, End: 10}}, chunked[0].Spans)
}

func TestSnapshotPersistence(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	nbID, _ := db.CreateNotebook(ctx, "nb")

	blob, err := db.LoadSnapshot(ctx, nbID)
	require.NoError(t, err)
	assert.Nil(t, blob, "no snapshot persisted yet")

	require.NoError(t, db.SaveSnapshot(ctx, nbID, []byte("opaque")))
	blob, err = db.LoadSnapshot(ctx, nbID)
	require.NoError(t, err)
	assert.Equal(t, []byte("opaque"), blob)

	// nil clears
	require.NoError(t, db.SaveSnapshot(ctx, nbID, nil))
	blob, err = db.LoadSnapshot(ctx, nbID)
	require.NoError(t, err)
	assert.Nil(t, blob)

	err = db.SaveSnapshot(ctx, 999, []byte("x"))
	require.Error(t, err)
	assert.Equal(t, cerrors.ErrCodeNotebookNotFound, cerrors.GetCode(err))
}

func TestDeleteNotebookCascadesToNotes(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	nbID, _ := db.CreateNotebook(ctx, "nb")
	noteID, _ := db.InsertNote(ctx, nbID, "t", "body")

	require.NoError(t, db.DeleteNotebook(ctx, nbID))
	_, err := db.GetNote(ctx, noteID)
	require.Error(t, err)
	assert.Equal(t, cerrors.ErrCodeNoteNotFound, cerrors.GetCode(err))
}
