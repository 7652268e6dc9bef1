package vector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calepin/calepin/internal/chunk"
	cerrors "github.com/calepin/calepin/internal/errors"
)

func TestSnapshotRoundTrip(t *testing.T) {
	s := trainedStore(t)
	ids, titleID, err := s.Add(9, [][]float32{unit(4, 0), unit(4, 2)},
		[]chunk.Span{{End: 3}, {Start: 4, End: 8}}, unit(4, 1))
	require.NoError(t, err)

	blob, err := s.Snapshot()
	require.NoError(t, err)

	restored, err := FromSnapshot(blob, 1, testParams())
	require.NoError(t, err)

	assert.True(t, restored.Trained())
	assert.Equal(t, s.EmbeddingCount(), restored.EmbeddingCount())
	assert.Equal(t, s.Mutations(), restored.Mutations())

	// search behaves identically after restore
	matches, healed := restored.Search(unit(4, 0), 1)
	require.Len(t, matches, 1)
	assert.Zero(t, healed)
	assert.Equal(t, int64(9), matches[0].NoteID)
	assert.Equal(t, chunk.Span{End: 3}, matches[0].Span)

	titleMatches, _ := restored.SearchTitle(unit(4, 1), 1)
	require.Len(t, titleMatches, 1)
	assert.Equal(t, int64(9), titleMatches[0].NoteID)

	// id sequences continue past the restored ids
	nextIDs, nextTitleID, err := restored.Add(10, [][]float32{unit(4, 2)}, []chunk.Span{{End: 1}}, unit(4, 3))
	require.NoError(t, err)
	assert.Greater(t, nextIDs[0], ids[len(ids)-1])
	assert.Greater(t, nextTitleID, titleID)
}

func TestFromSnapshotRejectsWrongNotebook(t *testing.T) {
	s := trainedStore(t)
	blob, err := s.Snapshot()
	require.NoError(t, err)

	_, err = FromSnapshot(blob, 2, testParams())
	require.Error(t, err)
	assert.Equal(t, cerrors.ErrCodeSnapshotCorrupt, cerrors.GetCode(err))
}

func TestFromSnapshotRejectsWrongDimension(t *testing.T) {
	s := trainedStore(t)
	blob, err := s.Snapshot()
	require.NoError(t, err)

	params := testParams()
	params.Dim = 8
	_, err = FromSnapshot(blob, 1, params)
	require.Error(t, err)
	assert.Equal(t, cerrors.ErrCodeSnapshotCorrupt, cerrors.GetCode(err))
}

func TestFromSnapshotRejectsGarbage(t *testing.T) {
	_, err := FromSnapshot([]byte("not a snapshot"), 1, testParams())
	require.Error(t, err)
	assert.Equal(t, cerrors.ErrCodeSnapshotCorrupt, cerrors.GetCode(err))
}

func TestSnapshotEmptyStore(t *testing.T) {
	s := NewStore(3, testParams())
	blob, err := s.Snapshot()
	require.NoError(t, err)

	restored, err := FromSnapshot(blob, 3, testParams())
	require.NoError(t, err)
	assert.False(t, restored.Trained())
	assert.Zero(t, restored.EmbeddingCount())
}
