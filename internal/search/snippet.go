package search

import (
	"sort"
	"strings"
)

// snippetTag marks one edge of a highlight region: an opening or closing
// marker at a rune offset.
type snippetTag struct {
	pos     int
	closing bool
	name    string
}

// Snippets extracts highlighted excerpts from text around the given match
// regions. boldSpans are keyword match positions (rendered <b>), highlight
// spans are semantic chunk regions (rendered <h>); both are rune offsets.
// Nearby regions are clustered into a single excerpt; window is the rune
// padding kept on each side of a cluster.
func Snippets(text string, boldSpans, highlightSpans [][2]int, window int) []string {
	all := make([][2]int, 0, len(boldSpans)+len(highlightSpans))
	all = append(all, boldSpans...)
	all = append(all, highlightSpans...)
	if len(all) == 0 {
		return nil
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i][0] != all[j][0] {
			return all[i][0] < all[j][0]
		}
		return all[i][1] < all[j][1]
	})

	runes := []rune(text)

	// Merge spans whose gap fits inside two windows into one cluster.
	var clusters [][2]int
	prev := all[0]
	for _, s := range all[1:] {
		if s[0] <= prev[1]+window*2 {
			if s[1] > prev[1] {
				prev[1] = s[1]
			}
		} else {
			clusters = append(clusters, prev)
			prev = s
		}
	}
	clusters = append(clusters, prev)

	var tags []snippetTag
	for _, s := range boldSpans {
		tags = append(tags, snippetTag{s[0], false, "b"}, snippetTag{s[1], true, "b"})
	}
	for _, s := range highlightSpans {
		tags = append(tags, snippetTag{s[0], false, "h"}, snippetTag{s[1], true, "h"})
	}
	sort.SliceStable(tags, func(i, j int) bool { return tags[i].pos < tags[j].pos })

	var snippets []string
	for _, c := range clusters {
		start := c[0] - window
		if start < 0 {
			start = 0
		}
		end := c[1] + window
		if end > len(runes) {
			end = len(runes)
		}
		excerpt := runes[start:end]

		var b strings.Builder
		pos := 0
		for _, tag := range tags {
			if tag.pos < start || tag.pos > end {
				continue
			}
			rel := tag.pos - start
			b.WriteString(string(excerpt[pos:rel]))
			if tag.closing {
				b.WriteString("</" + tag.name + ">")
			} else {
				b.WriteString("<" + tag.name + ">")
			}
			pos = rel
		}
		b.WriteString(string(excerpt[pos:]))
		snippets = append(snippets, b.String())
	}
	return snippets
}
