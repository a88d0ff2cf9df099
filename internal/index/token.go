package index

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"
)

const (
	// archiveTokenizerName is the name of our custom tokenizer.
	archiveTokenizerName = "archive_tokenizer"

	// archiveStopFilterName is the name of our custom stop word filter.
	archiveStopFilterName = "archive_stop"

	// archiveAnalyzerName is the name of our custom analyzer.
	archiveAnalyzerName = "archive_analyzer"
)

// archiveStopWords are dropped by the registered stop filter. Kept in line
// with the default analyzer configuration; the signature fingerprint, not
// this list, is what decides drift.
var archiveStopWords = []string{"a", "an", "and", "of", "or", "the"}

func init() {
	// Register custom tokenizer
	_ = registry.RegisterTokenizer(archiveTokenizerName, archiveTokenizerConstructor)

	// Register custom stop word filter
	_ = registry.RegisterTokenFilter(archiveStopFilterName, archiveStopFilterConstructor)
}

// TokenArtifact is the bleve-backed token index ("token.bleve").
type TokenArtifact struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	closed bool
}

var _ Artifact = (*TokenArtifact)(nil)

// tokenDocument is the document structure handed to bleve.
type tokenDocument struct {
	Title    string `json:"title"`
	Author   string `json:"author"`
	FileName string `json:"file_name"`
	Keywords string `json:"keywords"`
}

// validateTokenIntegrity checks if a bleve index directory is valid before
// opening. Returns nil if valid, error describing corruption if not.
func validateTokenIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil // Index doesn't exist, will be created
	}

	// index_meta.json must exist, be non-empty, and parse
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

// isTokenCorruptionError checks if an error indicates bleve index corruption.
func isTokenCorruptionError(err error) bool {
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

// NewTokenArtifact opens (or creates) the token index at path. An empty
// path creates an in-memory index for testing. A corrupted on-disk index is
// cleared and recreated empty — it is derived data, and the next audit run
// reports the whole population missing and queues the rebuild work.
func NewTokenArtifact(path string) (*TokenArtifact, error) {
	indexMapping, err := createTokenMapping()
	if err != nil {
		return nil, fmt.Errorf("create index mapping: %w", err)
	}

	var idx bleve.Index
	if path == "" {
		// In-memory index for testing
		idx, err = bleve.NewMemOnly(indexMapping)
	} else {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", dir, err)
		}

		if validErr := validateTokenIntegrity(path); validErr != nil {
			slog.Warn("token_index_corrupted",
				slog.String("path", path),
				slog.String("error", validErr.Error()))

			if removeErr := os.RemoveAll(path); removeErr != nil {
				return nil, fmt.Errorf("token index corrupted at %s and cannot remove: %w (original error: %v)", path, removeErr, validErr)
			}
			slog.Info("token_index_cleared",
				slog.String("path", path),
				slog.String("reason", "corruption detected, audit will reschedule"))
		}

		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, indexMapping)
		} else if err != nil && isTokenCorruptionError(err) {
			slog.Warn("token_index_open_failed",
				slog.String("path", path),
				slog.String("error", err.Error()))

			if removeErr := os.RemoveAll(path); removeErr != nil {
				return nil, fmt.Errorf("token index corrupted, cannot clear: %w (original: %v)", removeErr, err)
			}
			slog.Info("token_index_cleared",
				slog.String("path", path),
				slog.String("reason", "open failed with corruption, audit will reschedule"))

			idx, err = bleve.New(path, indexMapping)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("create/open token index: %w", err)
	}

	return &TokenArtifact{index: idx, path: path}, nil
}

// createTokenMapping creates the bleve index mapping with our analyzer.
func createTokenMapping() (*mapping.IndexMappingImpl, error) {
	indexMapping := bleve.NewIndexMapping()

	err := indexMapping.AddCustomAnalyzer(archiveAnalyzerName, map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": archiveTokenizerName,
		"token_filters": []string{
			lowercase.Name,
			archiveStopFilterName,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("add custom analyzer: %w", err)
	}

	indexMapping.DefaultAnalyzer = archiveAnalyzerName
	return indexMapping, nil
}

// Name implements Artifact.
func (t *TokenArtifact) Name() string { return "token" }

// Index adds or replaces the document's entry.
func (t *TokenArtifact) Index(ctx context.Context, rec Record) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return fmt.Errorf("token index is closed")
	}

	doc := tokenDocument{
		Title:    rec.Title,
		Author:   rec.Author,
		FileName: rec.FileName,
		Keywords: rec.Keywords,
	}
	if err := t.index.Index(rec.DocumentID, doc); err != nil {
		return fmt.Errorf("index document %s: %w", rec.DocumentID, err)
	}
	return nil
}

// Delete removes the document's entry. Deleting an absent id is a no-op.
func (t *TokenArtifact) Delete(ctx context.Context, documentID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return fmt.Errorf("token index is closed")
	}

	if err := t.index.Delete(documentID); err != nil {
		return fmt.Errorf("delete document %s: %w", documentID, err)
	}
	return nil
}

// AllIDs returns the id-set of every indexed document. Used by the audit to
// compute missing and orphaned entries.
func (t *TokenArtifact) AllIDs(ctx context.Context) (map[string]struct{}, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.closed {
		return nil, fmt.Errorf("token index is closed")
	}

	docCount, err := t.index.DocCount()
	if err != nil {
		return nil, fmt.Errorf("count documents: %w", err)
	}

	ids := make(map[string]struct{}, docCount)
	if docCount == 0 {
		return ids, nil
	}

	req := bleve.NewSearchRequest(bleve.NewMatchAllQuery())
	req.Size = int(docCount)
	req.Fields = []string{} // Only need IDs, not content

	result, err := t.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("enumerate ids: %w", err)
	}
	for _, hit := range result.Hits {
		ids[hit.ID] = struct{}{}
	}
	return ids, nil
}

// DocCount returns the number of indexed documents.
func (t *TokenArtifact) DocCount() (uint64, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.closed {
		return 0, fmt.Errorf("token index is closed")
	}
	return t.index.DocCount()
}

// Close closes the index.
func (t *TokenArtifact) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	return t.index.Close()
}

// archiveTokenizerConstructor creates the tokenizer for bleve's registry.
func archiveTokenizerConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.Tokenizer, error) {
	return &archiveTokenizer{}, nil
}

// archiveTokenizer splits text into letter/digit runs, matching the archive
// text conventions (titles, filenames, keyword lists).
type archiveTokenizer struct{}

// Tokenize implements analysis.Tokenizer.
func (t *archiveTokenizer) Tokenize(input []byte) analysis.TokenStream {
	text := string(input)

	var result analysis.TokenStream
	pos := 1
	start := -1
	for i, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			result = append(result, &analysis.Token{
				Term:     []byte(text[start:i]),
				Start:    start,
				End:      i,
				Position: pos,
				Type:     analysis.AlphaNumeric,
			})
			pos++
			start = -1
		}
	}
	if start >= 0 {
		result = append(result, &analysis.Token{
			Term:     []byte(text[start:]),
			Start:    start,
			End:      len(text),
			Position: pos,
			Type:     analysis.AlphaNumeric,
		})
	}
	return result
}

// archiveStopFilterConstructor creates the stop word filter for the registry.
func archiveStopFilterConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.TokenFilter, error) {
	stop := make(map[string]struct{}, len(archiveStopWords))
	for _, w := range archiveStopWords {
		stop[w] = struct{}{}
	}
	return &archiveStopFilter{stopWords: stop}, nil
}

// archiveStopFilter drops stop words from the token stream.
type archiveStopFilter struct {
	stopWords map[string]struct{}
}

// Filter implements analysis.TokenFilter.
func (f *archiveStopFilter) Filter(input analysis.TokenStream) analysis.TokenStream {
	result := make(analysis.TokenStream, 0, len(input))
	for _, token := range input {
		term := strings.ToLower(string(token.Term))
		if _, isStop := f.stopWords[term]; !isStop {
			result = append(result, token)
		}
	}
	return result
}
