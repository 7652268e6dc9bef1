package vector

import (
	"log/slog"
	"sync"
	"time"

	"github.com/calepin/calepin/internal/chunk"
	cerrors "github.com/calepin/calepin/internal/errors"
)

// Params configures a notebook's vector store.
type Params struct {
	// Dim is the embedding dimension.
	Dim int
	// NList is the cluster count of the content index.
	NList int
	// NProbe is the number of clusters probed per content search.
	NProbe int
	// Normalize enables L2 normalization at insert and query time.
	Normalize bool
}

// ChunkRef resolves a content embedding id to its note and character span.
type ChunkRef struct {
	NoteID int64
	Span   chunk.Span
}

// ContentMatch is a resolved content search hit.
type ContentMatch struct {
	NoteID int64
	Span   chunk.Span
	Score  float32
}

// TitleMatch is a resolved title search hit.
type TitleMatch struct {
	NoteID int64
	Score  float32
}

// Store is the vector index of one notebook: a clustered content index over
// chunk embeddings, a flat title index, and the id maps binding embedding ids
// to notes. Embedding ids are monotonic and never reused, even after removal,
// so a stale persisted snapshot can never collide with live ids.
//
// All mutation is serialized by an exclusive lock; searches share a read lock
// and only upgrade when orphan ids need purging.
type Store struct {
	mu sync.RWMutex

	notebookID int64
	params     Params

	content Index
	title   Index

	nextID      int64
	nextTitleID int64

	// idMap/noteMap and titleIDMap/noteTitleMap are mutually consistent
	// inverses at all times.
	idMap        map[int64]ChunkRef
	noteMap      map[int64][]int64
	titleIDMap   map[int64]int64
	noteTitleMap map[int64]int64

	embCount    int
	modifies    int
	lastRebuild time.Time
}

// NewStore creates an empty vector store for a notebook.
func NewStore(notebookID int64, params Params) *Store {
	s := &Store{
		notebookID:  notebookID,
		params:      params,
		nextID:      1,
		nextTitleID: 1,
	}
	s.clearLocked()
	return s
}

// NotebookID returns the owning notebook.
func (s *Store) NotebookID() int64 { return s.notebookID }

// Params returns the store configuration.
func (s *Store) Params() Params { return s.params }

// Clear drops both indexes and all id maps. Id sequences are preserved:
// cleared ids must stay burned.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked()
}

func (s *Store) clearLocked() {
	s.content = newIVFIndex(s.params.Dim, s.params.NList, s.params.NProbe)
	s.title = newFlatIndex(s.params.Dim)
	s.idMap = make(map[int64]ChunkRef)
	s.noteMap = make(map[int64][]int64)
	s.titleIDMap = make(map[int64]int64)
	s.noteTitleMap = make(map[int64]int64)
	s.embCount = 0
}

// Train fits the content index quantizer on the full chunk embedding set.
// Re-entrant: training again restarts from scratch (used by rebuild).
func (s *Store) Train(embs [][]float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	vecs := s.prepare(embs)
	if err := s.content.Train(vecs); err != nil {
		return cerrors.Wrap(cerrors.ErrCodeInternal, err)
	}
	return nil
}

// Trained reports whether the content index accepts insertions.
func (s *Store) Trained() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.content.Trained()
}

// Add indexes a note's chunk embeddings and title embedding, replacing any
// previous entries for the note. Freshly assigned content ids and the title
// id are returned.
//
// Id maps are updated only after the index insert succeeds, so a failed
// insert never leaves partial mappings behind.
func (s *Store) Add(noteID int64, chunkEmbs [][]float32, spans []chunk.Span, titleEmb []float32) ([]int64, int64, error) {
	if noteID <= 0 {
		return nil, 0, cerrors.Newf(cerrors.ErrCodeInvalidInput, "invalid note id %d", noteID)
	}
	if len(chunkEmbs) != len(spans) {
		return nil, 0, cerrors.Newf(cerrors.ErrCodeInvalidInput, "chunk embeddings and spans length mismatch: %d vs %d", len(chunkEmbs), len(spans))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.content.Trained() {
		// insert before train is a programming error, not a runtime
		// condition to recover from
		return nil, 0, cerrors.Newf(cerrors.ErrCodeIndexUntrained, "add to untrained index for notebook %d", s.notebookID)
	}

	s.removeLocked(noteID)

	ids := s.genIDs(len(chunkEmbs))
	vecs := s.prepare(chunkEmbs)
	if err := s.content.Add(ids, vecs); err != nil {
		return nil, 0, cerrors.Wrap(cerrors.ErrCodeInternal, err)
	}

	titleID := s.nextTitleID
	s.nextTitleID++
	titleVec := s.prepare([][]float32{titleEmb})
	if err := s.title.Add([]int64{titleID}, titleVec); err != nil {
		// roll the content insert back so index and maps stay aligned
		s.content.Remove(ids)
		return nil, 0, cerrors.Wrap(cerrors.ErrCodeInternal, err)
	}

	for i, id := range ids {
		s.idMap[id] = ChunkRef{NoteID: noteID, Span: spans[i]}
	}
	s.noteMap[noteID] = ids
	s.titleIDMap[titleID] = noteID
	s.noteTitleMap[noteID] = titleID

	s.embCount += len(ids)
	s.modifies += len(ids)

	return ids, titleID, nil
}

// Remove deletes all embeddings owned by a note from both indexes and all
// maps. Unknown notes and untrained indexes are no-ops.
func (s *Store) Remove(noteID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(noteID)
}

func (s *Store) removeLocked(noteID int64) {
	if ids, ok := s.noteMap[noteID]; ok {
		removed := s.content.Remove(ids)
		s.modifies += removed
		s.embCount -= removed
		for _, id := range ids {
			delete(s.idMap, id)
		}
		delete(s.noteMap, noteID)
	}
	if titleID, ok := s.noteTitleMap[noteID]; ok {
		s.title.Remove([]int64{titleID})
		delete(s.titleIDMap, titleID)
		delete(s.noteTitleMap, noteID)
	}
}

// Search returns up to k content matches resolved to notes and spans,
// ordered by score descending. Ids returned by the index with no map entry
// are orphans from state drift: they are purged from the index immediately,
// counted as mutations and never surfaced. The healed count is returned so
// callers can schedule persistence and a rebuild check.
func (s *Store) Search(queryEmb []float32, k int) ([]ContentMatch, int) {
	s.mu.RLock()
	ix := s.content
	query := s.prepare([][]float32{queryEmb})[0]
	raw := ix.Search(query, k)

	matches := make([]ContentMatch, 0, len(raw))
	var orphans []int64
	for _, m := range raw {
		ref, ok := s.idMap[m.ID]
		if !ok {
			orphans = append(orphans, m.ID)
			continue
		}
		matches = append(matches, ContentMatch{NoteID: ref.NoteID, Span: ref.Span, Score: m.Score})
	}
	s.mu.RUnlock()

	if len(orphans) > 0 {
		s.purgeOrphans(ix, orphans)
	}
	return matches, len(orphans)
}

// SearchTitle returns up to k title matches resolved to notes, healing
// orphan ids the same way Search does.
func (s *Store) SearchTitle(queryEmb []float32, k int) ([]TitleMatch, int) {
	s.mu.RLock()
	ix := s.title
	query := s.prepare([][]float32{queryEmb})[0]
	raw := ix.Search(query, k)

	matches := make([]TitleMatch, 0, len(raw))
	var orphans []int64
	for _, m := range raw {
		noteID, ok := s.titleIDMap[m.ID]
		if !ok {
			orphans = append(orphans, m.ID)
			continue
		}
		matches = append(matches, TitleMatch{NoteID: noteID, Score: m.Score})
	}
	s.mu.RUnlock()

	if len(orphans) > 0 {
		s.purgeOrphans(ix, orphans)
	}
	return matches, len(orphans)
}

// purgeOrphans removes orphan ids from the index the search ran against.
// The write lock is taken after the search's read lock, so Clear may have
// swapped the indexes in between; orphans of a replaced index died with it
// and must not be removed from (or counted against) its successor.
func (s *Store) purgeOrphans(ix Index, orphans []int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ix != s.content && ix != s.title {
		return
	}
	slog.Warn("purging orphan embedding ids",
		slog.Int64("notebook", s.notebookID),
		slog.Int("count", len(orphans)))
	s.modifies += ix.Remove(orphans)
}

// EmbeddingCount returns the number of live content embeddings.
func (s *Store) EmbeddingCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.embCount
}

// Mutations returns the mutation count since the last rebuild.
func (s *Store) Mutations() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.modifies
}

// LastRebuild returns when the index was last rebuilt.
func (s *Store) LastRebuild() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRebuild
}

// MarkRebuilt resets the mutation counter and stamps the rebuild time.
func (s *Store) MarkRebuilt(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modifies = 0
	s.lastRebuild = now
}

// genIDs assigns n fresh monotonically increasing content embedding ids.
func (s *Store) genIDs(n int) []int64 {
	ids := make([]int64, n)
	for i := range ids {
		ids[i] = s.nextID
		s.nextID++
	}
	return ids
}

// prepare copies vectors and normalizes the copies when configured.
// Inputs are never mutated; callers may retain them.
func (s *Store) prepare(vecs [][]float32) [][]float32 {
	out := make([][]float32, len(vecs))
	for i, v := range vecs {
		c := make([]float32, len(v))
		copy(c, v)
		if s.params.Normalize {
			normalizeInPlace(c)
		}
		out[i] = c
	}
	return out
}
