package chunk

import (
	"math"
	"strings"
)

// minSmoothingWindow keeps the moving average meaningful for short notes.
const minSmoothingWindow = 3

// MakeChunks groups consecutive sentences into topically coherent passages.
//
// The boundary detector is TextTiling adapted to embedding space: instead of
// raw token overlap, the cohesion signal between adjacent sentences is the
// cosine similarity of their embeddings. Deep valleys in the smoothed signal
// become chunk boundaries. The result is deterministic for identical inputs.
//
// sentEmbs must be parallel to sentences and spans. Chunk embeddings are not
// computed here; callers embed the returned chunk texts.
func MakeChunks(sentences []string, spans []Span, sentEmbs [][]float32) []Chunk {
	if len(sentences) == 0 {
		return nil
	}
	if len(sentences) == 1 {
		return []Chunk{{Text: sentences[0], Span: spans[0]}}
	}

	gaps := gapScores(sentEmbs)
	smoothed := smooth(gaps, smoothingWindow(len(sentences)))
	depths := depthScores(smoothed)
	boundaries := selectBoundaries(depths)

	// boundaries are gap positions; boundary after sentence i means a new
	// chunk starts at sentence i+1
	var chunks []Chunk
	start := 0
	for _, b := range boundaries {
		chunks = append(chunks, makeChunk(sentences, spans, start, b+1))
		start = b + 1
	}
	chunks = append(chunks, makeChunk(sentences, spans, start, len(sentences)))
	return chunks
}

func makeChunk(sentences []string, spans []Span, start, end int) Chunk {
	return Chunk{
		Text: strings.Join(sentences[start:end], "\n"),
		Span: Span{Start: spans[start].Start, End: spans[end-1].End},
	}
}

// gapScores computes the cosine similarity of each adjacent sentence pair.
// Length is len(embs)-1.
func gapScores(embs [][]float32) []float64 {
	scores := make([]float64, len(embs)-1)
	for i := 0; i < len(embs)-1; i++ {
		scores[i] = cosine(embs[i], embs[i+1])
	}
	return scores
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// smoothingWindow derives the moving-average width from sentence count.
func smoothingWindow(sentenceCount int) int {
	w := sentenceCount / 8
	if w < minSmoothingWindow {
		w = minSmoothingWindow
	}
	return w
}

// smooth applies a centered moving average of the given width.
// The window shrinks at the edges rather than padding.
func smooth(scores []float64, window int) []float64 {
	if window <= 1 || len(scores) <= 2 {
		out := make([]float64, len(scores))
		copy(out, scores)
		return out
	}
	half := window / 2
	out := make([]float64, len(scores))
	for i := range scores {
		lo := i - half
		if lo < 0 {
			lo = 0
		}
		hi := i + half
		if hi > len(scores)-1 {
			hi = len(scores) - 1
		}
		var sum float64
		for j := lo; j <= hi; j++ {
			sum += scores[j]
		}
		out[i] = sum / float64(hi-lo+1)
	}
	return out
}

// depthScores measures, for each position, how far it sits below the nearest
// higher score on each side: (left peak - valley) + (right peak - valley).
// Non-minimum positions score 0 because both climbs stop immediately.
func depthScores(scores []float64) []float64 {
	depths := make([]float64, len(scores))
	for i, s := range scores {
		lpeak := s
		for j := i - 1; j >= 0 && scores[j] >= lpeak; j-- {
			lpeak = scores[j]
		}
		rpeak := s
		for j := i + 1; j < len(scores) && scores[j] >= rpeak; j++ {
			rpeak = scores[j]
		}
		depths[i] = (lpeak - s) + (rpeak - s)
	}
	return depths
}

// selectBoundaries returns gap positions whose depth exceeds the liveness
// cutoff mean - stddev/2. An empty result means the whole note is one chunk.
func selectBoundaries(depths []float64) []int {
	if len(depths) == 0 {
		return nil
	}
	var sum float64
	for _, d := range depths {
		sum += d
	}
	mean := sum / float64(len(depths))

	var variance float64
	for _, d := range depths {
		variance += (d - mean) * (d - mean)
	}
	stddev := math.Sqrt(variance / float64(len(depths)))

	cutoff := mean - stddev/2

	var boundaries []int
	for i, d := range depths {
		if d > cutoff && d > 0 {
			boundaries = append(boundaries, i)
		}
	}
	return boundaries
}
