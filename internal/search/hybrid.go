package search

import (
	"math"
	"sort"
	"time"

	"github.com/calepin/calepin/internal/chunk"
	"github.com/calepin/calepin/internal/vector"
)

// LexicalMatch is one keyword hit after byte positions have been converted
// to rune offsets against the fetched note text.
type LexicalMatch struct {
	NoteID   int64
	Score    float64
	TitlePos [][2]int
	BodyPos  [][2]int
}

// RankedNote is one entry of the merged ranking. A note can carry a lexical
// score, a semantic score, or both; the two are kept in separate fields and
// never numerically fused across sources.
type RankedNote struct {
	Rank   int
	NoteID int64

	// Lexical fields, valid when HasLexical.
	HasLexical bool
	Score      float64
	TitlePos   [][2]int
	BodyPos    [][2]int

	// Semantic fields, valid when HasVector.
	HasVector        bool
	VectorScore      float64
	ChunkSpans       []chunk.Span
	TitleVectorMatch bool

	// Note context, attached after ranking.
	Title    string
	Content  string
	LastEdit time.Time
	Snippets []string
}

// semanticEntry is one doc in the fused semantic ranking.
type semanticEntry struct {
	noteID     int64
	score      float64
	chunkSpans []chunk.Span
	titleMatch bool
}

// aggregateContent groups chunk-level matches by note. Repeated hits in the
// same note add diminishing contributions: the n-th extra chunk adds
// score/sqrt(n+1), so a note with many mediocre chunks cannot outrank a note
// with one strong one. Result is sorted best first.
func aggregateContent(matches []vector.ContentMatch) []*semanticEntry {
	byNote := make(map[int64]*semanticEntry)
	var order []*semanticEntry
	for _, m := range matches {
		if e, ok := byNote[m.NoteID]; ok {
			e.chunkSpans = append(e.chunkSpans, m.Span)
			e.score += float64(m.Score) / math.Sqrt(float64(len(e.chunkSpans)))
			continue
		}
		e := &semanticEntry{
			noteID:     m.NoteID,
			score:      float64(m.Score),
			chunkSpans: []chunk.Span{m.Span},
		}
		byNote[m.NoteID] = e
		order = append(order, e)
	}
	sort.SliceStable(order, func(i, j int) bool {
		if order[i].score != order[j].score {
			return order[i].score > order[j].score
		}
		return order[i].noteID < order[j].noteID
	})
	return order
}

// fuseSemantic folds title matches into the content ranking. A doc matching
// on both gets half its title score added and is flagged; a doc matching on
// title only enters with its score halved.
func fuseSemantic(content []*semanticEntry, titles []vector.TitleMatch) []*semanticEntry {
	titleScore := make(map[int64]float64, len(titles))
	for _, t := range titles {
		if _, ok := titleScore[t.NoteID]; !ok {
			titleScore[t.NoteID] = float64(t.Score)
		}
	}

	fused := make([]*semanticEntry, 0, len(content)+len(titles))
	seen := make(map[int64]bool, len(content))
	for _, e := range content {
		if ts, ok := titleScore[e.noteID]; ok {
			e.score += ts / 2
			e.titleMatch = true
		}
		seen[e.noteID] = true
		fused = append(fused, e)
	}
	for _, t := range titles {
		if seen[t.NoteID] {
			continue
		}
		seen[t.NoteID] = true
		fused = append(fused, &semanticEntry{
			noteID:     t.NoteID,
			score:      float64(t.Score) / 2,
			titleMatch: true,
		})
	}

	sort.SliceStable(fused, func(i, j int) bool {
		if fused[i].score != fused[j].score {
			return fused[i].score > fused[j].score
		}
		return fused[i].noteID < fused[j].noteID
	})
	return fused
}

// Merge interleaves the lexical ranking with the fused semantic ranking.
//
// The first ceil(3k/5) slots belong to lexical matches in their native order
// (all k slots when semantic is false); a lexical entry that also matched
// semantically absorbs the semantic score and chunk spans. Remaining slots
// are filled from the semantic ranking, best fused score first; a filled
// entry that also had a not-yet-consumed lexical hit absorbs the lexical
// score and positions. Bounding the lexical quota keeps exact keyword hits
// from being crowded out while still surfacing lexically dissimilar docs.
func Merge(lexical []LexicalMatch, content []vector.ContentMatch, titles []vector.TitleMatch, k int, semantic bool) []*RankedNote {
	if k <= 0 {
		return nil
	}

	var fused []*semanticEntry
	if semantic {
		fused = fuseSemantic(aggregateContent(content), titles)
	}
	semanticByNote := make(map[int64]*semanticEntry, len(fused))
	for _, e := range fused {
		semanticByNote[e.noteID] = e
	}

	quota := k
	if semantic {
		quota = (3*k + 4) / 5
	}

	merged := make([]*RankedNote, 0, k)
	lexConsumed := make(map[int64]bool, quota)
	for _, lm := range lexical {
		if len(merged) >= quota {
			break
		}
		r := &RankedNote{
			NoteID:     lm.NoteID,
			HasLexical: true,
			Score:      lm.Score,
			TitlePos:   lm.TitlePos,
			BodyPos:    lm.BodyPos,
		}
		if e, ok := semanticByNote[lm.NoteID]; ok {
			r.HasVector = true
			r.VectorScore = e.score
			r.ChunkSpans = e.chunkSpans
			r.TitleVectorMatch = e.titleMatch
			delete(semanticByNote, lm.NoteID)
		}
		lexConsumed[lm.NoteID] = true
		merged = append(merged, r)
	}

	lexLeft := make(map[int64]*LexicalMatch, len(lexical))
	for i := range lexical {
		if !lexConsumed[lexical[i].NoteID] {
			lexLeft[lexical[i].NoteID] = &lexical[i]
		}
	}

	for _, e := range fused {
		if len(merged) >= k {
			break
		}
		if _, ok := semanticByNote[e.noteID]; !ok {
			continue // consumed by a lexical slot
		}
		r := &RankedNote{
			NoteID:           e.noteID,
			HasVector:        true,
			VectorScore:      e.score,
			ChunkSpans:       e.chunkSpans,
			TitleVectorMatch: e.titleMatch,
		}
		if lm, ok := lexLeft[e.noteID]; ok {
			r.HasLexical = true
			r.Score = lm.Score
			r.TitlePos = lm.TitlePos
			r.BodyPos = lm.BodyPos
			delete(lexLeft, e.noteID)
		}
		merged = append(merged, r)
	}

	for i, r := range merged {
		r.Rank = i + 1
	}
	return merged
}
