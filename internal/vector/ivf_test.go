package vector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unit(dim, axis int) []float32 {
	v := make([]float32, dim)
	v[axis] = 1
	return v
}

func trainingSet(dim int) [][]float32 {
	// two tight clusters around opposite axes
	return [][]float32{
		{1, 0, 0, 0}, {0.9, 0.1, 0, 0}, {0.95, 0.05, 0, 0},
		{0, 0, 1, 0}, {0, 0.1, 0.9, 0}, {0, 0.05, 0.95, 0},
	}
}

func TestIVFTrainRequiresEnoughVectors(t *testing.T) {
	ix := newIVFIndex(4, 4, 2)
	err := ix.Train([][]float32{unit(4, 0), unit(4, 1)})
	require.Error(t, err)
	assert.False(t, ix.Trained())
}

func TestIVFAddBeforeTrainFails(t *testing.T) {
	ix := newIVFIndex(4, 2, 2)
	err := ix.Add([]int64{1}, [][]float32{unit(4, 0)})
	require.Error(t, err)
}

func TestIVFRoundTrip(t *testing.T) {
	ix := newIVFIndex(4, 2, 2)
	require.NoError(t, ix.Train(trainingSet(4)))

	require.NoError(t, ix.Add([]int64{10, 11}, [][]float32{unit(4, 0), unit(4, 2)}))
	assert.Equal(t, 2, ix.Len())

	matches := ix.Search(unit(4, 0), 1)
	require.Len(t, matches, 1)
	assert.Equal(t, int64(10), matches[0].ID)

	matches = ix.Search(unit(4, 2), 1)
	require.Len(t, matches, 1)
	assert.Equal(t, int64(11), matches[0].ID)
}

func TestIVFTrainDeterministic(t *testing.T) {
	a := newIVFIndex(4, 2, 2)
	b := newIVFIndex(4, 2, 2)
	require.NoError(t, a.Train(trainingSet(4)))
	require.NoError(t, b.Train(trainingSet(4)))
	assert.Equal(t, a.centroids, b.centroids)
}

func TestIVFRemove(t *testing.T) {
	ix := newIVFIndex(4, 2, 2)
	require.NoError(t, ix.Train(trainingSet(4)))
	require.NoError(t, ix.Add([]int64{1, 2, 3}, [][]float32{unit(4, 0), unit(4, 2), unit(4, 0)}))

	assert.Equal(t, 2, ix.Remove([]int64{1, 2}))
	assert.Equal(t, 1, ix.Len())

	// removing again is a no-op
	assert.Zero(t, ix.Remove([]int64{1, 2}))

	matches := ix.Search(unit(4, 0), 10)
	require.Len(t, matches, 1)
	assert.Equal(t, int64(3), matches[0].ID)
}

func TestIVFRetrainDropsVectors(t *testing.T) {
	ix := newIVFIndex(4, 2, 2)
	require.NoError(t, ix.Train(trainingSet(4)))
	require.NoError(t, ix.Add([]int64{1}, [][]float32{unit(4, 0)}))

	require.NoError(t, ix.Train(trainingSet(4)))
	assert.Zero(t, ix.Len())
	assert.Nil(t, ix.Search(unit(4, 0), 5))
}

func TestIVFSearchRespectsNProbe(t *testing.T) {
	// with nprobe=1 only the cluster nearest the query is scanned
	ix := newIVFIndex(4, 2, 1)
	require.NoError(t, ix.Train(trainingSet(4)))
	require.NoError(t, ix.Add([]int64{1, 2}, [][]float32{unit(4, 0), unit(4, 2)}))

	matches := ix.Search(unit(4, 0), 10)
	require.Len(t, matches, 1)
	assert.Equal(t, int64(1), matches[0].ID)
}

func TestFlatIndexRoundTrip(t *testing.T) {
	ix := newFlatIndex(4)
	assert.True(t, ix.Trained())

	require.NoError(t, ix.Add([]int64{5, 6}, [][]float32{unit(4, 1), unit(4, 3)}))
	matches := ix.Search(unit(4, 3), 1)
	require.Len(t, matches, 1)
	assert.Equal(t, int64(6), matches[0].ID)

	assert.Equal(t, 1, ix.Remove([]int64{6}))
	assert.Equal(t, 1, ix.Len())
}

func TestTopKDeterministicTieBreak(t *testing.T) {
	matches := []Match{{ID: 3, Score: 1}, {ID: 1, Score: 1}, {ID: 2, Score: 2}}
	got := topK(matches, 2)
	require.Len(t, got, 2)
	assert.Equal(t, int64(2), got[0].ID)
	assert.Equal(t, int64(1), got[1].ID)
}
