package chunk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// topicEmbedding builds a unit vector pointing mostly at one of four topic
// axes, so sentences of the same topic cohere strongly.
func topicEmbedding(topic int) []float32 {
	v := make([]float32, 8)
	v[topic%8] = 1
	return v
}

func TestMakeChunksSingleSentence(t *testing.T) {
	sentences := []string{"only one sentence"}
	spans := []Span{{Start: 0, End: 17}}

	chunks := MakeChunks(sentences, spans, [][]float32{topicEmbedding(0)})

	require.Len(t, chunks, 1)
	assert.Equal(t, "only one sentence", chunks[0].Text)
	assert.Equal(t, spans[0], chunks[0].Span)
}

func TestMakeChunksEmpty(t *testing.T) {
	assert.Nil(t, MakeChunks(nil, nil, nil))
}

func TestMakeChunksUniformTopicIsOneChunk(t *testing.T) {
	// identical embeddings leave no valley to cut at
	var sentences []string
	var spans []Span
	var embs [][]float32
	for i := 0; i < 6; i++ {
		sentences = append(sentences, "same topic sentence")
		spans = append(spans, Span{Start: i * 20, End: i*20 + 19})
		embs = append(embs, topicEmbedding(0))
	}

	chunks := MakeChunks(sentences, spans, embs)

	require.Len(t, chunks, 1)
	assert.Equal(t, Span{Start: 0, End: 119}, chunks[0].Span)
}

func TestMakeChunksCoversAllSentences(t *testing.T) {
	var sentences []string
	var spans []Span
	var embs [][]float32
	for i := 0; i < 12; i++ {
		sentences = append(sentences, "s")
		spans = append(spans, Span{Start: i * 2, End: i*2 + 1})
		embs = append(embs, topicEmbedding(i/4))
	}

	chunks := MakeChunks(sentences, spans, embs)
	require.NotEmpty(t, chunks)

	// chunks tile the sentence sequence: first starts at the first span,
	// last ends at the last span, and consecutive chunks do not overlap
	assert.Equal(t, spans[0].Start, chunks[0].Span.Start)
	assert.Equal(t, spans[len(spans)-1].End, chunks[len(chunks)-1].Span.End)
	for i := 1; i < len(chunks); i++ {
		assert.Greater(t, chunks[i].Span.Start, chunks[i-1].Span.End)
	}
}

func TestMakeChunksDeterministic(t *testing.T) {
	var sentences []string
	var spans []Span
	var embs [][]float32
	for i := 0; i < 16; i++ {
		sentences = append(sentences, "sentence")
		spans = append(spans, Span{Start: i * 10, End: i*10 + 8})
		embs = append(embs, topicEmbedding(i/5))
	}

	first := MakeChunks(sentences, spans, embs)
	second := MakeChunks(sentences, spans, embs)

	assert.Equal(t, first, second)
}

func TestSmoothShrinksAtEdges(t *testing.T) {
	scores := []float64{1, 0, 1, 0, 1}
	out := smooth(scores, 3)

	require.Len(t, out, len(scores))
	// center positions average their neighbors
	assert.InDelta(t, 2.0/3.0, out[1], 1e-9)
	// edge windows shrink instead of padding
	assert.InDelta(t, 0.5, out[0], 1e-9)
}

func TestDepthScoresFlatSequence(t *testing.T) {
	depths := depthScores([]float64{0.5, 0.5, 0.5})
	for _, d := range depths {
		assert.Zero(t, d)
	}
}

func TestDepthScoresValley(t *testing.T) {
	depths := depthScores([]float64{0.9, 0.1, 0.8})
	assert.InDelta(t, (0.9-0.1)+(0.8-0.1), depths[1], 1e-9)
	assert.Zero(t, depths[0])
	assert.Zero(t, depths[2])
}
