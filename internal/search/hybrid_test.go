package search

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calepin/calepin/internal/chunk"
	"github.com/calepin/calepin/internal/vector"
)

const (
	noteA int64 = 1
	noteB int64 = 2
	noteC int64 = 3
	noteD int64 = 4
)

func TestMergeLexicalQuotaThenSemanticFill(t *testing.T) {
	lexical := []LexicalMatch{
		{NoteID: noteA, Score: 9, BodyPos: [][2]int{{0, 4}}},
		{NoteID: noteB, Score: 7, BodyPos: [][2]int{{5, 9}}},
	}
	content := []vector.ContentMatch{
		{NoteID: noteB, Span: chunk.Span{Start: 10, End: 20}, Score: 0.8},
		{NoteID: noteC, Span: chunk.Span{Start: 0, End: 8}, Score: 0.6},
	}

	merged := Merge(lexical, content, nil, 4, true)
	require.Len(t, merged, 3)

	// lexical quota = ceil(3*4/5) = 3, both lexical entries fit
	assert.Equal(t, 1, merged[0].Rank)
	assert.Equal(t, noteA, merged[0].NoteID)
	assert.True(t, merged[0].HasLexical)
	assert.False(t, merged[0].HasVector)
	assert.Equal(t, 9.0, merged[0].Score)

	// B keeps its lexical score and absorbs the semantic fields
	assert.Equal(t, 2, merged[1].Rank)
	assert.Equal(t, noteB, merged[1].NoteID)
	assert.Equal(t, 7.0, merged[1].Score)
	assert.True(t, merged[1].HasVector)
	assert.InDelta(t, 0.8, merged[1].VectorScore, 1e-9)
	assert.Equal(t, []chunk.Span{{Start: 10, End: 20}}, merged[1].ChunkSpans)

	// C fills from the semantic ranking
	assert.Equal(t, 3, merged[2].Rank)
	assert.Equal(t, noteC, merged[2].NoteID)
	assert.False(t, merged[2].HasLexical)
	assert.InDelta(t, 0.6, merged[2].VectorScore, 1e-9)
}

func TestMergeSemanticDisabledTakesAllLexical(t *testing.T) {
	lexical := []LexicalMatch{
		{NoteID: noteA, Score: 3},
		{NoteID: noteB, Score: 2},
		{NoteID: noteC, Score: 1},
	}

	merged := Merge(lexical, nil, nil, 3, false)
	require.Len(t, merged, 3)
	for i, r := range merged {
		assert.Equal(t, i+1, r.Rank)
		assert.True(t, r.HasLexical)
		assert.False(t, r.HasVector)
	}
}

func TestMergeRespectsK(t *testing.T) {
	lexical := []LexicalMatch{
		{NoteID: noteA, Score: 5},
		{NoteID: noteB, Score: 4},
	}
	content := []vector.ContentMatch{
		{NoteID: noteC, Score: 0.9},
		{NoteID: noteD, Score: 0.8},
	}

	merged := Merge(lexical, content, nil, 2, true)
	require.Len(t, merged, 2)
	// quota = ceil(3*2/5) = 2: both slots go to lexical entries
	assert.Equal(t, noteA, merged[0].NoteID)
	assert.Equal(t, noteB, merged[1].NoteID)
}

func TestMergeSemanticFillAttachesLexicalFields(t *testing.T) {
	// three lexical entries but quota for k=4 is 3, so D is left over;
	// when D fills from the semantic ranking it picks its lexical score up
	lexical := []LexicalMatch{
		{NoteID: noteA, Score: 9},
		{NoteID: noteB, Score: 8},
		{NoteID: noteC, Score: 7},
		{NoteID: noteD, Score: 6, TitlePos: [][2]int{{0, 3}}},
	}
	content := []vector.ContentMatch{
		{NoteID: noteD, Span: chunk.Span{End: 5}, Score: 0.9},
	}

	merged := Merge(lexical, content, nil, 4, true)
	require.Len(t, merged, 4)

	last := merged[3]
	assert.Equal(t, noteD, last.NoteID)
	assert.True(t, last.HasVector)
	assert.InDelta(t, 0.9, last.VectorScore, 1e-9)
	assert.True(t, last.HasLexical)
	assert.Equal(t, 6.0, last.Score)
	assert.Equal(t, [][2]int{{0, 3}}, last.TitlePos)
}

func TestAggregateContentDiminishingReturns(t *testing.T) {
	matches := []vector.ContentMatch{
		{NoteID: noteA, Span: chunk.Span{End: 1}, Score: 0.9},
		{NoteID: noteA, Span: chunk.Span{Start: 2, End: 3}, Score: 0.6},
		{NoteID: noteB, Span: chunk.Span{End: 1}, Score: 1.0},
	}

	entries := aggregateContent(matches)
	require.Len(t, entries, 2)

	// B first: A's second chunk only contributes 0.6/sqrt(2)
	assert.Equal(t, noteB, entries[0].noteID)
	assert.Equal(t, noteA, entries[1].noteID)
	assert.InDelta(t, 0.9+0.6/math.Sqrt(2), entries[1].score, 1e-9)
	assert.Len(t, entries[1].chunkSpans, 2)
}

func TestFuseSemanticTitleWeighting(t *testing.T) {
	content := aggregateContent([]vector.ContentMatch{
		{NoteID: noteA, Span: chunk.Span{End: 1}, Score: 0.5},
	})
	titles := []vector.TitleMatch{
		{NoteID: noteA, Score: 0.8},
		{NoteID: noteB, Score: 0.9},
	}

	fused := fuseSemantic(content, titles)
	require.Len(t, fused, 2)

	// A: 0.5 + 0.8/2 = 0.9; B title-only: 0.9/2 = 0.45
	assert.Equal(t, noteA, fused[0].noteID)
	assert.InDelta(t, 0.9, fused[0].score, 1e-9)
	assert.True(t, fused[0].titleMatch)

	assert.Equal(t, noteB, fused[1].noteID)
	assert.InDelta(t, 0.45, fused[1].score, 1e-9)
	assert.True(t, fused[1].titleMatch)
	assert.Empty(t, fused[1].chunkSpans)
}

func TestMergeEmptyInputs(t *testing.T) {
	assert.Nil(t, Merge(nil, nil, nil, 0, true))
	assert.Empty(t, Merge(nil, nil, nil, 5, true))
}
