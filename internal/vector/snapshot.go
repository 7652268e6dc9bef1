package vector

import (
	"bytes"
	"encoding/gob"
	"time"

	cerrors "github.com/calepin/calepin/internal/errors"
)

// snapshotVersion is the schema version of the serialized store.
// Bump on any incompatible layout change; old versions load as corrupt and
// the index is rebuilt from source notes.
const snapshotVersion = 1

// snapshot is the durable form of a Store: both indexes, all four id maps
// and the scalar state, serialized as one atomic blob.
type snapshot struct {
	Version    int
	NotebookID int64
	Params     Params

	NextID      int64
	NextTitleID int64
	EmbCount    int
	Modifies    int
	LastRebuild time.Time

	IDMap        map[int64]ChunkRef
	NoteMap      map[int64][]int64
	TitleIDMap   map[int64]int64
	NoteTitleMap map[int64]int64

	Content ivfState
	Title   flatState
}

// ivfState is the serializable form of ivfIndex.
type ivfState struct {
	Trained   bool
	Centroids [][]float32
	Lists     [][]indexEntry
	Count     int
}

// flatState is the serializable form of flatIndex.
type flatState struct {
	Entries []indexEntry
}

// Snapshot serializes the store into one blob.
func (s *Store) Snapshot() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	content := s.content.(*ivfIndex)
	title := s.title.(*flatIndex)

	snap := snapshot{
		Version:      snapshotVersion,
		NotebookID:   s.notebookID,
		Params:       s.params,
		NextID:       s.nextID,
		NextTitleID:  s.nextTitleID,
		EmbCount:     s.embCount,
		Modifies:     s.modifies,
		LastRebuild:  s.lastRebuild,
		IDMap:        s.idMap,
		NoteMap:      s.noteMap,
		TitleIDMap:   s.titleIDMap,
		NoteTitleMap: s.noteTitleMap,
		Content: ivfState{
			Trained:   content.trained,
			Centroids: content.centroids,
			Lists:     content.lists,
			Count:     content.count,
		},
		Title: flatState{Entries: title.entries},
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
		return nil, cerrors.Wrap(cerrors.ErrCodeInternal, err)
	}
	return buf.Bytes(), nil
}

// FromSnapshot restores a store from a serialized blob.
//
// The stored schema version, notebook id and embedding dimension must match
// expectations; any mismatch returns an ErrCodeSnapshotCorrupt error and the
// caller treats the snapshot as absent rather than trusting partial bytes.
func FromSnapshot(data []byte, notebookID int64, params Params) (*Store, error) {
	var snap snapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&snap); err != nil {
		return nil, cerrors.New(cerrors.ErrCodeSnapshotCorrupt, "undecodable snapshot", err)
	}
	if snap.Version != snapshotVersion {
		return nil, cerrors.Newf(cerrors.ErrCodeSnapshotCorrupt, "snapshot version %d, want %d", snap.Version, snapshotVersion)
	}
	if snap.NotebookID != notebookID {
		return nil, cerrors.Newf(cerrors.ErrCodeSnapshotCorrupt, "snapshot belongs to notebook %d, want %d", snap.NotebookID, notebookID)
	}
	if snap.Params.Dim != params.Dim {
		return nil, cerrors.Newf(cerrors.ErrCodeSnapshotCorrupt, "snapshot dimension %d, want %d", snap.Params.Dim, params.Dim)
	}

	content := newIVFIndex(snap.Params.Dim, snap.Params.NList, snap.Params.NProbe)
	content.trained = snap.Content.Trained
	content.centroids = snap.Content.Centroids
	content.lists = snap.Content.Lists
	content.count = snap.Content.Count
	if content.trained && content.lists == nil {
		content.lists = make([][]indexEntry, snap.Params.NList)
	}

	title := newFlatIndex(snap.Params.Dim)
	title.entries = snap.Title.Entries

	s := &Store{
		notebookID:   snap.NotebookID,
		params:       snap.Params,
		content:      content,
		title:        title,
		nextID:       snap.NextID,
		nextTitleID:  snap.NextTitleID,
		embCount:     snap.EmbCount,
		modifies:     snap.Modifies,
		lastRebuild:  snap.LastRebuild,
		idMap:        snap.IDMap,
		noteMap:      snap.NoteMap,
		titleIDMap:   snap.TitleIDMap,
		noteTitleMap: snap.NoteTitleMap,
	}
	if s.idMap == nil {
		s.idMap = make(map[int64]ChunkRef)
	}
	if s.noteMap == nil {
		s.noteMap = make(map[int64][]int64)
	}
	if s.titleIDMap == nil {
		s.titleIDMap = make(map[int64]int64)
	}
	if s.noteTitleMap == nil {
		s.noteTitleMap = make(map[int64]int64)
	}
	return s, nil
}
