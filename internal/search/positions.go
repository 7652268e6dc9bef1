// Package search merges lexical and semantic retrieval into one ranking.
package search

import (
	"sort"
	"unicode/utf8"
)

// BytePosToRune converts byte-offset ranges into rune-offset ranges within
// text. The lexical engine reports match locations in bytes, but highlight
// consumers count characters. Offsets beyond the text are clamped.
func BytePosToRune(text string, bytePos [][2]int) [][2]int {
	if len(bytePos) == 0 {
		return nil
	}

	// Collect the distinct byte offsets, walk the text once, then translate
	// each range through the resulting table.
	offsets := make([]int, 0, len(bytePos)*2)
	for _, p := range bytePos {
		offsets = append(offsets, p[0], p[1])
	}
	sort.Ints(offsets)

	runeAt := make(map[int]int, len(offsets))
	bytePrev, runePrev := 0, 0
	for _, b := range offsets {
		if b > len(text) {
			b = len(text)
		}
		if b < bytePrev {
			continue
		}
		runePrev += utf8.RuneCountInString(text[bytePrev:b])
		bytePrev = b
		runeAt[b] = runePrev
	}

	out := make([][2]int, 0, len(bytePos))
	for _, p := range bytePos {
		start, end := p[0], p[1]
		if start > len(text) {
			start = len(text)
		}
		if end > len(text) {
			end = len(text)
		}
		out = append(out, [2]int{runeAt[start], runeAt[end]})
	}
	return out
}
