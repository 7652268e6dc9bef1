package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"

	cerrors "github.com/calepin/calepin/internal/errors"
)

// LexicalDoc is the document shape indexed per note. The bleve doc id is the
// note id in decimal.
type LexicalDoc struct {
	NotebookID string `json:"notebook_id"`
	Title      string `json:"title"`
	Body       string `json:"body"`
}

// LexicalHit is one full-text match. Positions are byte offsets into the
// indexed title and body text.
type LexicalHit struct {
	NoteID   int64
	Score    float64
	TitlePos [][2]int
	BodyPos  [][2]int
}

// LexicalIndex wraps bleve for keyword search over notes.
type LexicalIndex struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	closed bool
}

// NewLexicalIndex opens or creates the bleve index at path.
// An empty path creates an in-memory index for testing. A corrupted on-disk
// index is cleared and recreated; callers should schedule a reindex.
func NewLexicalIndex(path string, logger *slog.Logger) (*LexicalIndex, error) {
	indexMapping := createLexicalMapping()

	var idx bleve.Index
	var err error
	if path == "" {
		idx, err = bleve.NewMemOnly(indexMapping)
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}

		if validErr := validateIndexIntegrity(path); validErr != nil {
			logger.Warn("lexical_index_corrupted",
				slog.String("path", path),
				slog.String("error", validErr.Error()))
			if removeErr := os.RemoveAll(path); removeErr != nil {
				return nil, fmt.Errorf("lexical index corrupted at %s and cannot remove: %w (original error: %v)", path, removeErr, validErr)
			}
		}

		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, indexMapping)
		} else if err != nil && isCorruptionError(err) {
			logger.Warn("lexical_index_open_failed",
				slog.String("path", path),
				slog.String("error", err.Error()))
			if removeErr := os.RemoveAll(path); removeErr != nil {
				return nil, fmt.Errorf("lexical index corrupted, cannot clear: %w (original: %v)", removeErr, err)
			}
			idx, err = bleve.New(path, indexMapping)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create/open lexical index: %w", err)
	}

	return &LexicalIndex{index: idx, path: path}, nil
}

// validateIndexIntegrity checks a bleve index directory before opening so a
// truncated index_meta.json does not wedge startup.
func validateIndexIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	metaPath := filepath.Join(path, "index_meta.json")
	info, err := os.Stat(metaPath)
	if os.IsNotExist(err) {
		return fmt.Errorf("index_meta.json missing (corrupted index)")
	}
	if err != nil {
		return fmt.Errorf("cannot stat index_meta.json: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("index_meta.json is empty (corrupted)")
	}

	data, err := os.ReadFile(metaPath)
	if err != nil {
		return fmt.Errorf("cannot read index_meta.json: %w", err)
	}
	var meta map[string]interface{}
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}
	return nil
}

func isCorruptionError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "unexpected end of JSON") ||
		strings.Contains(errStr, "error parsing mapping JSON") ||
		strings.Contains(errStr, "failed to load segment") ||
		strings.Contains(errStr, "error opening bolt") ||
		err == bleve.ErrorIndexMetaCorrupt
}

func createLexicalMapping() *mapping.IndexMappingImpl {
	notebookField := bleve.NewTextFieldMapping()
	notebookField.Analyzer = keyword.Name
	notebookField.IncludeInAll = false

	titleField := bleve.NewTextFieldMapping()
	titleField.Analyzer = standard.Name

	bodyField := bleve.NewTextFieldMapping()
	bodyField.Analyzer = standard.Name

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("notebook_id", notebookField)
	docMapping.AddFieldMappingsAt("title", titleField)
	docMapping.AddFieldMappingsAt("body", bodyField)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = docMapping
	indexMapping.DefaultAnalyzer = standard.Name
	return indexMapping
}

// Index adds or replaces a note in the index.
func (l *LexicalIndex) Index(notebookID, noteID int64, title, body string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return fmt.Errorf("lexical index is closed")
	}

	doc := LexicalDoc{
		NotebookID: strconv.FormatInt(notebookID, 10),
		Title:      title,
		Body:       body,
	}
	if err := l.index.Index(strconv.FormatInt(noteID, 10), doc); err != nil {
		return cerrors.Wrap(cerrors.ErrCodeStorageFailed, err)
	}
	return nil
}

// Delete removes a note from the index. Deleting an absent note is a no-op.
func (l *LexicalIndex) Delete(noteID int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return fmt.Errorf("lexical index is closed")
	}
	if err := l.index.Delete(strconv.FormatInt(noteID, 10)); err != nil {
		return cerrors.Wrap(cerrors.ErrCodeStorageFailed, err)
	}
	return nil
}

// Search returns up to k notes of one notebook matching the keyword query,
// best score first, with matched term locations in title and body.
func (l *LexicalIndex) Search(ctx context.Context, notebookID int64, queryStr string, k int) ([]*LexicalHit, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		return nil, fmt.Errorf("lexical index is closed")
	}
	if strings.TrimSpace(queryStr) == "" {
		return []*LexicalHit{}, nil
	}

	notebookQuery := query.NewTermQuery(strconv.FormatInt(notebookID, 10))
	notebookQuery.SetField("notebook_id")

	titleQuery := bleve.NewMatchQuery(queryStr)
	titleQuery.SetField("title")
	bodyQuery := bleve.NewMatchQuery(queryStr)
	bodyQuery.SetField("body")
	textQuery := bleve.NewDisjunctionQuery(titleQuery, bodyQuery)

	searchRequest := bleve.NewSearchRequest(bleve.NewConjunctionQuery(notebookQuery, textQuery))
	searchRequest.Size = k
	searchRequest.IncludeLocations = true

	result, err := l.index.SearchInContext(ctx, searchRequest)
	if err != nil {
		return nil, cerrors.Wrap(cerrors.ErrCodeStorageFailed, err)
	}

	hits := make([]*LexicalHit, 0, len(result.Hits))
	for _, hit := range result.Hits {
		noteID, err := strconv.ParseInt(hit.ID, 10, 64)
		if err != nil {
			continue
		}
		lh := &LexicalHit{NoteID: noteID, Score: hit.Score}
		for field, terms := range hit.Locations {
			for _, locs := range terms {
				for _, loc := range locs {
					pos := [2]int{int(loc.Start), int(loc.End)}
					switch field {
					case "title":
						lh.TitlePos = append(lh.TitlePos, pos)
					case "body":
						lh.BodyPos = append(lh.BodyPos, pos)
					}
				}
			}
		}
		hits = append(hits, lh)
	}
	return hits, nil
}

// DeleteNotebook removes every note of a notebook from the index.
func (l *LexicalIndex) DeleteNotebook(ctx context.Context, notebookID int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return fmt.Errorf("lexical index is closed")
	}

	notebookQuery := query.NewTermQuery(strconv.FormatInt(notebookID, 10))
	notebookQuery.SetField("notebook_id")
	docCount, _ := l.index.DocCount()

	req := bleve.NewSearchRequest(notebookQuery)
	req.Size = int(docCount)
	result, err := l.index.SearchInContext(ctx, req)
	if err != nil {
		return cerrors.Wrap(cerrors.ErrCodeStorageFailed, err)
	}

	batch := l.index.NewBatch()
	for _, hit := range result.Hits {
		batch.Delete(hit.ID)
	}
	if err := l.index.Batch(batch); err != nil {
		return cerrors.Wrap(cerrors.ErrCodeStorageFailed, err)
	}
	return nil
}

// DocCount returns the number of indexed notes.
func (l *LexicalIndex) DocCount() (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.index.DocCount()
}

// Close closes the underlying bleve index.
func (l *LexicalIndex) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.index.Close()
}
