// Package chunk splits note text into sentences and groups them into
// semantically coherent passages using lexical-cohesion boundary detection
// over sentence embeddings.
package chunk

// Span is a half-open [Start, End) range of rune offsets into the note body.
type Span struct {
	Start int
	End   int
}

// Chunk is a passage of one or more consecutive sentences.
// Chunks are derived data: only their embeddings and spans are persisted.
type Chunk struct {
	Text      string
	Span      Span
	Embedding []float32
}
