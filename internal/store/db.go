// Package store is the persistence layer: notebooks and notes in SQLite,
// vector store snapshots as opaque blobs, and the bleve lexical index.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/calepin/calepin/internal/chunk"
	cerrors "github.com/calepin/calepin/internal/errors"
)

// Notebook is a collection of notes with one vector index.
type Notebook struct {
	ID        int64
	Name      string
	CreatedAt time.Time
}

// Note is a stored document. Embeddings and spans are derived data kept in
// the same row; Dirty stays true until chunking has produced current ones.
type Note struct {
	ID         int64
	NotebookID int64
	Title      string
	Content    string
	LastEdit   time.Time
	Meta       map[string]any
	Dirty      bool
}

// ChunkedNote carries a note's persisted chunk data for index rebuilds.
type ChunkedNote struct {
	NoteID    int64
	ChunkEmbs [][]float32
	Spans     []chunk.Span
	TitleEmb  []float32
}

const schema = `
CREATE TABLE IF NOT EXISTS notebooks (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	name        TEXT NOT NULL,
	created_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	vectorstore BLOB
);

CREATE TABLE IF NOT EXISTS notes (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	notebook_id INTEGER NOT NULL REFERENCES notebooks(id) ON DELETE CASCADE,
	title       TEXT NOT NULL DEFAULT '',
	content     TEXT NOT NULL DEFAULT '',
	lastedit    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	meta        TEXT NOT NULL DEFAULT '{}',
	dirty       INTEGER NOT NULL DEFAULT 1,
	chunk_embs  BLOB,
	title_emb   BLOB,
	chunk_spans TEXT
);

CREATE INDEX IF NOT EXISTS idx_notes_notebook ON notes(notebook_id);
CREATE INDEX IF NOT EXISTS idx_notes_dirty ON notes(notebook_id, dirty);
`

// DB wraps the SQLite database.
type DB struct {
	db *sql.DB
}

// Open opens (and if needed creates) the database at path.
// Use ":memory:" for an in-memory database in tests.
func Open(path string) (*DB, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	if path == ":memory:" {
		dsn = path + "?_pragma=foreign_keys(1)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if path == ":memory:" {
		// the pool must not hand out fresh connections, each of which would
		// see its own empty in-memory database
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &DB{db: db}, nil
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// CreateNotebook inserts a new notebook and returns its id.
func (d *DB) CreateNotebook(ctx context.Context, name string) (int64, error) {
	res, err := d.db.ExecContext(ctx, `INSERT INTO notebooks (name) VALUES (?)`, name)
	if err != nil {
		return 0, cerrors.Wrap(cerrors.ErrCodeStorageFailed, err)
	}
	return res.LastInsertId()
}

// GetNotebook fetches a notebook by id.
func (d *DB) GetNotebook(ctx context.Context, id int64) (*Notebook, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT id, name, CAST(strftime('%s', created_at) AS INTEGER)
		FROM notebooks WHERE id = ?`, id)
	var nb Notebook
	var created int64
	if err := row.Scan(&nb.ID, &nb.Name, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, cerrors.Newf(cerrors.ErrCodeNotebookNotFound, "notebook %d not found", id)
		}
		return nil, cerrors.Wrap(cerrors.ErrCodeStorageFailed, err)
	}
	nb.CreatedAt = time.Unix(created, 0).UTC()
	return &nb, nil
}

// ListNotebooks returns all notebooks.
func (d *DB) ListNotebooks(ctx context.Context) ([]*Notebook, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, name, CAST(strftime('%s', created_at) AS INTEGER)
		FROM notebooks ORDER BY id`)
	if err != nil {
		return nil, cerrors.Wrap(cerrors.ErrCodeStorageFailed, err)
	}
	defer func() { _ = rows.Close() }()

	var notebooks []*Notebook
	for rows.Next() {
		var nb Notebook
		var created int64
		if err := rows.Scan(&nb.ID, &nb.Name, &created); err != nil {
			return nil, cerrors.Wrap(cerrors.ErrCodeStorageFailed, err)
		}
		nb.CreatedAt = time.Unix(created, 0).UTC()
		notebooks = append(notebooks, &nb)
	}
	return notebooks, rows.Err()
}

// DeleteNotebook removes a notebook and, via cascade, its notes.
func (d *DB) DeleteNotebook(ctx context.Context, id int64) error {
	res, err := d.db.ExecContext(ctx, `DELETE FROM notebooks WHERE id = ?`, id)
	if err != nil {
		return cerrors.Wrap(cerrors.ErrCodeStorageFailed, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return cerrors.Newf(cerrors.ErrCodeNotebookNotFound, "notebook %d not found", id)
	}
	return nil
}

// SaveSnapshot stores a notebook's serialized vector store.
// A nil blob clears the persisted snapshot.
func (d *DB) SaveSnapshot(ctx context.Context, notebookID int64, blob []byte) error {
	res, err := d.db.ExecContext(ctx,
		`UPDATE notebooks SET vectorstore = ? WHERE id = ?`, blob, notebookID)
	if err != nil {
		return cerrors.Wrap(cerrors.ErrCodeStorageFailed, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return cerrors.Newf(cerrors.ErrCodeNotebookNotFound, "notebook %d not found", notebookID)
	}
	return nil
}

// LoadSnapshot fetches a notebook's serialized vector store.
// Returns nil when no snapshot has been persisted yet.
func (d *DB) LoadSnapshot(ctx context.Context, notebookID int64) ([]byte, error) {
	var blob []byte
	err := d.db.QueryRowContext(ctx,
		`SELECT vectorstore FROM notebooks WHERE id = ?`, notebookID).Scan(&blob)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, cerrors.Newf(cerrors.ErrCodeNotebookNotFound, "notebook %d not found", notebookID)
		}
		return nil, cerrors.Wrap(cerrors.ErrCodeStorageFailed, err)
	}
	return blob, nil
}

// InsertNote creates a note, marked dirty for the chunking pipeline.
func (d *DB) InsertNote(ctx context.Context, notebookID int64, title, content string) (int64, error) {
	res, err := d.db.ExecContext(ctx, `
		INSERT INTO notes (notebook_id, title, content, lastedit, dirty)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP, 1)`, notebookID, title, content)
	if err != nil {
		return 0, cerrors.Wrap(cerrors.ErrCodeStorageFailed, err)
	}
	return res.LastInsertId()
}

// UpdateNote replaces a note's title and content and marks it dirty so its
// stale embeddings are regenerated.
func (d *DB) UpdateNote(ctx context.Context, noteID int64, title, content string) error {
	res, err := d.db.ExecContext(ctx, `
		UPDATE notes SET title = ?, content = ?, lastedit = CURRENT_TIMESTAMP, dirty = 1
		WHERE id = ?`, title, content, noteID)
	if err != nil {
		return cerrors.Wrap(cerrors.ErrCodeStorageFailed, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return cerrors.Newf(cerrors.ErrCodeNoteNotFound, "note %d not found", noteID)
	}
	return nil
}

// MarkNoteDirty flags a note for re-chunking without touching its content.
// Used when a downstream indexing step fails after the chunk rows were
// already stored, so the scanner retries the note.
func (d *DB) MarkNoteDirty(ctx context.Context, noteID int64) error {
	res, err := d.db.ExecContext(ctx, `UPDATE notes SET dirty = 1 WHERE id = ?`, noteID)
	if err != nil {
		return cerrors.Wrap(cerrors.ErrCodeStorageFailed, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return cerrors.Newf(cerrors.ErrCodeNoteNotFound, "note %d not found", noteID)
	}
	return nil
}

// DeleteNote removes a note.
func (d *DB) DeleteNote(ctx context.Context, noteID int64) error {
	_, err := d.db.ExecContext(ctx, `DELETE FROM notes WHERE id = ?`, noteID)
	if err != nil {
		return cerrors.Wrap(cerrors.ErrCodeStorageFailed, err)
	}
	return nil
}

// GetNote fetches one note.
func (d *DB) GetNote(ctx context.Context, noteID int64) (*Note, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT id, notebook_id, title, content,
			CAST(strftime('%s', lastedit) AS INTEGER), meta, dirty
		FROM notes WHERE id = ?`, noteID)
	note, err := scanNote(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, cerrors.Newf(cerrors.ErrCodeNoteNotFound, "note %d not found", noteID)
		}
		return nil, cerrors.Wrap(cerrors.ErrCodeStorageFailed, err)
	}
	return note, nil
}

// GetNotes fetches the given notes of one notebook, keyed by id.
// Missing ids are simply absent from the result (e.g., deleted notes whose
// index entries have not caught up yet).
func (d *DB) GetNotes(ctx context.Context, notebookID int64, ids []int64) (map[int64]*Note, error) {
	if len(ids) == 0 {
		return map[int64]*Note{}, nil
	}
	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, 0, len(ids)+1)
	args = append(args, notebookID)
	for _, id := range ids {
		args = append(args, id)
	}

	rows, err := d.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, notebook_id, title, content,
			CAST(strftime('%%s', lastedit) AS INTEGER), meta, dirty
		FROM notes WHERE notebook_id = ? AND id IN (%s)`, placeholders), args...)
	if err != nil {
		return nil, cerrors.Wrap(cerrors.ErrCodeStorageFailed, err)
	}
	defer func() { _ = rows.Close() }()

	notes := make(map[int64]*Note, len(ids))
	for rows.Next() {
		note, err := scanNote(rows)
		if err != nil {
			return nil, cerrors.Wrap(cerrors.ErrCodeStorageFailed, err)
		}
		notes[note.ID] = note
	}
	return notes, rows.Err()
}

// ListNotes returns all notes of a notebook, newest edit first.
func (d *DB) ListNotes(ctx context.Context, notebookID int64) ([]*Note, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, notebook_id, title, content,
			CAST(strftime('%s', lastedit) AS INTEGER), meta, dirty
		FROM notes WHERE notebook_id = ? ORDER BY lastedit DESC, id DESC`, notebookID)
	if err != nil {
		return nil, cerrors.Wrap(cerrors.ErrCodeStorageFailed, err)
	}
	defer func() { _ = rows.Close() }()

	var notes []*Note
	for rows.Next() {
		note, err := scanNote(rows)
		if err != nil {
			return nil, cerrors.Wrap(cerrors.ErrCodeStorageFailed, err)
		}
		notes = append(notes, note)
	}
	return notes, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNote(row rowScanner) (*Note, error) {
	var note Note
	var lastedit int64
	var meta string
	var dirty int
	if err := row.Scan(&note.ID, &note.NotebookID, &note.Title, &note.Content, &lastedit, &meta, &dirty); err != nil {
		return nil, err
	}
	note.LastEdit = time.Unix(lastedit, 0).UTC()
	note.Dirty = dirty != 0
	if meta != "" {
		if err := json.Unmarshal([]byte(meta), &note.Meta); err != nil {
			note.Meta = map[string]any{}
		}
	}
	return &note, nil
}

// StoreChunks persists a note's derived chunk data and clears its dirty
// flag. The meta keys n_chunk and embed_d let later scans detect stale or
// incompatible embeddings without decoding the blobs.
func (d *DB) StoreChunks(ctx context.Context, noteID int64, titleEmb []float32, chunkEmbs [][]float32, spans []chunk.Span) error {
	if len(chunkEmbs) != len(spans) {
		return cerrors.Newf(cerrors.ErrCodeInvalidInput, "chunk embeddings and spans length mismatch: %d vs %d", len(chunkEmbs), len(spans))
	}
	embBlob, err := EncodeVectors(chunkEmbs)
	if err != nil {
		return cerrors.Wrap(cerrors.ErrCodeInternal, err)
	}
	titleBlob, err := EncodeVectors([][]float32{titleEmb})
	if err != nil {
		return cerrors.Wrap(cerrors.ErrCodeInternal, err)
	}
	spanJSON, err := json.Marshal(encodeSpans(spans))
	if err != nil {
		return cerrors.Wrap(cerrors.ErrCodeInternal, err)
	}

	res, err := d.db.ExecContext(ctx, `
		UPDATE notes SET
			chunk_embs = ?,
			title_emb = ?,
			chunk_spans = ?,
			dirty = 0,
			meta = json_set(meta, '$.n_chunk', ?, '$.embed_d', ?)
		WHERE id = ?`,
		embBlob, titleBlob, string(spanJSON), len(chunkEmbs), len(titleEmb), noteID)
	if err != nil {
		return cerrors.Wrap(cerrors.ErrCodeStorageFailed, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return cerrors.Newf(cerrors.ErrCodeNoteNotFound, "note %d not found", noteID)
	}
	return nil
}

// DirtyNotes returns ids of notes needing (re)chunking: explicitly dirty,
// missing embeddings, or embedded with a different dimension than dim.
func (d *DB) DirtyNotes(ctx context.Context, notebookID int64, dim int) ([]int64, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id FROM notes
		WHERE notebook_id = ?
			AND (dirty = 1
				OR chunk_embs IS NULL
				OR title_emb IS NULL
				OR chunk_spans IS NULL
				OR json_extract(meta, '$.n_chunk') IS NULL
				OR json_extract(meta, '$.embed_d') IS NOT ?)
		ORDER BY id`, notebookID, dim)
	if err != nil {
		return nil, cerrors.Wrap(cerrors.ErrCodeStorageFailed, err)
	}
	defer func() { _ = rows.Close() }()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, cerrors.Wrap(cerrors.ErrCodeStorageFailed, err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AvailableEmbeddings sums n_chunk over clean, fully chunked notes whose
// embeddings match dim. This is the training set size a rebuild would have.
func (d *DB) AvailableEmbeddings(ctx context.Context, notebookID int64, dim int) (int, error) {
	var total sql.NullInt64
	err := d.db.QueryRowContext(ctx, `
		SELECT SUM(json_extract(meta, '$.n_chunk')) FROM notes
		WHERE notebook_id = ?
			AND dirty = 0
			AND chunk_embs IS NOT NULL
			AND json_extract(meta, '$.embed_d') = ?`, notebookID, dim).Scan(&total)
	if err != nil {
		return 0, cerrors.Wrap(cerrors.ErrCodeStorageFailed, err)
	}
	return int(total.Int64), nil
}

// ChunkedNotes loads every clean, fully chunked note's stored embeddings and
// spans for an index rebuild. Rows with undecodable blobs are skipped; the
// scanner will re-chunk them later.
func (d *DB) ChunkedNotes(ctx context.Context, notebookID int64, dim int) ([]*ChunkedNote, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, chunk_embs, title_emb, chunk_spans FROM notes
		WHERE notebook_id = ?
			AND dirty = 0
			AND chunk_embs IS NOT NULL
			AND title_emb IS NOT NULL
			AND chunk_spans IS NOT NULL
			AND json_extract(meta, '$.embed_d') = ?
		ORDER BY id`, notebookID, dim)
	if err != nil {
		return nil, cerrors.Wrap(cerrors.ErrCodeStorageFailed, err)
	}
	defer func() { _ = rows.Close() }()

	var out []*ChunkedNote
	for rows.Next() {
		var noteID int64
		var embBlob, titleBlob []byte
		var spanJSON string
		if err := rows.Scan(&noteID, &embBlob, &titleBlob, &spanJSON); err != nil {
			return nil, cerrors.Wrap(cerrors.ErrCodeStorageFailed, err)
		}

		chunkEmbs, err := DecodeVectors(embBlob)
		if err != nil {
			continue
		}
		titleVecs, err := DecodeVectors(titleBlob)
		if err != nil {
			continue
		}
		var rawSpans [][2]int
		if err := json.Unmarshal([]byte(spanJSON), &rawSpans); err != nil {
			continue
		}
		if len(rawSpans) != len(chunkEmbs) {
			continue
		}

		out = append(out, &ChunkedNote{
			NoteID:    noteID,
			ChunkEmbs: chunkEmbs,
			Spans:     decodeSpans(rawSpans),
			TitleEmb:  titleVecs[0],
		})
	}
	return out, rows.Err()
}

func encodeSpans(spans []chunk.Span) [][2]int {
	out := make([][2]int, len(spans))
	for i, s := range spans {
		out[i] = [2]int{s.Start, s.End}
	}
	return out
}

func decodeSpans(raw [][2]int) []chunk.Span {
	out := make([]chunk.Span, len(raw))
	for i, r := range raw {
		out[i] = chunk.Span{Start: r[0], End: r[1]}
	}
	return out
}
