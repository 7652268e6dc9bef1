package chunk

import (
	"unicode"
)

// sentence terminators, western and CJK.
func isTerminator(r rune) bool {
	switch r {
	case '.', '!', '?', '。', '！', '？', '…':
		return true
	}
	return false
}

// closers that belong to the sentence they follow.
func isCloser(r rune) bool {
	switch r {
	case '"', '\'', ')', ']', '”', '’', '」', '』', '）':
		return true
	}
	return false
}

// SplitSentences splits body text into sentences with exact rune offsets.
//
// A sentence ends at a run of terminator punctuation (plus any closing quotes
// or brackets) or at a line break. Embedded newlines always split, so no
// sentence spans multiple lines. Whitespace-only segments are dropped.
// Returned spans never overlap and cover the text monotonically left-to-right,
// so body[span.Start:span.End] (in runes) reconstructs each sentence for
// downstream highlighting.
func SplitSentences(body string) ([]string, []Span) {
	runes := []rune(body)
	var sentences []string
	var spans []Span

	emit := func(start, end int) {
		// trim whitespace from both ends, keeping offsets exact
		for start < end && unicode.IsSpace(runes[start]) {
			start++
		}
		for end > start && unicode.IsSpace(runes[end-1]) {
			end--
		}
		if start >= end {
			return
		}
		sentences = append(sentences, string(runes[start:end]))
		spans = append(spans, Span{Start: start, End: end})
	}

	segStart := 0
	i := 0
	for i < len(runes) {
		r := runes[i]
		switch {
		case r == '\n':
			emit(segStart, i)
			i++
			segStart = i
		case isTerminator(r):
			// consume the full terminator run and trailing closers
			j := i + 1
			for j < len(runes) && (isTerminator(runes[j]) || isCloser(runes[j])) {
				j++
			}
			emit(segStart, j)
			i = j
			segStart = i
		default:
			i++
		}
	}
	emit(segStart, len(runes))

	return sentences, spans
}
