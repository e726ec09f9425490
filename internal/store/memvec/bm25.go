package memvec

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/mapping"
	bleveRegistry "github.com/blevesearch/bleve/v2/registry"
	"github.com/blevesearch/bleve/v2/search"

	"github.com/corpusvault/corpusvault/internal/segment"
	"github.com/corpusvault/corpusvault/internal/store"
)

const (
	codeTokenizerName = "corpusvault_code_tokenizer"
	codeStopFilterName = "corpusvault_code_stop"
	codeAnalyzerName   = "corpusvault_code_analyzer"
)

var registerOnce sync.Once

func registerAnalyzer() {
	registerOnce.Do(func() {
		_ = bleveRegistry.RegisterTokenizer(codeTokenizerName, codeTokenizerConstructor)
		_ = bleveRegistry.RegisterTokenFilter(codeStopFilterName, codeStopFilterConstructor)
	})
}

// bleveIndex wraps bleve v2 for one vault's lexical index, satisfying
// store.BM25Index.
type bleveIndex struct {
	mu    sync.RWMutex
	index bleve.Index
	path  string
	closed bool
}

type bleveDocument struct {
	Content string `json:"content"`
}

// newBleveIndex opens (or creates) the bleve index at path for one vault.
// An empty path creates an in-memory index; Store always passes an empty
// path and refills the index from the base relation (see rehydrate).
func newBleveIndex(path string) (*bleveIndex, error) {
	registerAnalyzer()

	indexMapping, err := createIndexMapping()
	if err != nil {
		return nil, fmt.Errorf("creating index mapping: %w", err)
	}

	var idx bleve.Index
	if path == "" {
		idx, err = bleve.NewMemOnly(indexMapping)
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating index directory: %w", err)
		}

		if validErr := validateIndexIntegrity(path); validErr != nil {
			slog.Warn("memvec bm25 index corrupted, recreating", "path", path, "error", validErr)
			if removeErr := os.RemoveAll(path); removeErr != nil {
				return nil, fmt.Errorf("removing corrupted index at %s: %w", path, removeErr)
			}
		}

		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, indexMapping)
		} else if err != nil && isCorruptionError(err) {
			slog.Warn("memvec bm25 index open failed, recreating", "path", path, "error", err)
			if removeErr := os.RemoveAll(path); removeErr != nil {
				return nil, fmt.Errorf("removing corrupted index at %s: %w", path, removeErr)
			}
			idx, err = bleve.New(path, indexMapping)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("opening/creating bleve index: %w", err)
	}

	return &bleveIndex{index: idx, path: path}, nil
}

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
		return fmt.Errorf("statting index_meta.json: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("index_meta.json is empty (corrupted)")
	}
	data, err := os.ReadFile(metaPath)
	if err != nil {
		return fmt.Errorf("reading index_meta.json: %w", err)
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
	s := err.Error()
	return strings.Contains(s, "unexpected end of JSON") ||
		strings.Contains(s, "error parsing mapping JSON") ||
		strings.Contains(s, "failed to load segment") ||
		strings.Contains(s, "error opening bolt") ||
		err == bleve.ErrorIndexMetaCorrupt
}

func createIndexMapping() (*mapping.IndexMappingImpl, error) {
	indexMapping := bleve.NewIndexMapping()
	err := indexMapping.AddCustomAnalyzer(codeAnalyzerName, map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": codeTokenizerName,
		"token_filters": []string{
			lowercase.Name,
			codeStopFilterName,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("adding custom analyzer: %w", err)
	}
	indexMapping.DefaultAnalyzer = codeAnalyzerName
	return indexMapping, nil
}

func (b *bleveIndex) Index(ctx context.Context, docs []*store.Document) error {
	if len(docs) == 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("bleve index is closed")
	}

	batch := b.index.NewBatch()
	for _, doc := range docs {
		if err := batch.Index(doc.ID, bleveDocument{Content: doc.Content}); err != nil {
			return fmt.Errorf("indexing document %s: %w", doc.ID, err)
		}
	}
	return b.index.Batch(batch)
}

func (b *bleveIndex) Search(ctx context.Context, queryStr string, limit int) ([]*store.BM25Result, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, fmt.Errorf("bleve index is closed")
	}
	if strings.TrimSpace(queryStr) == "" {
		return []*store.BM25Result{}, nil
	}

	matchQuery := bleve.NewMatchQuery(queryStr)
	matchQuery.SetField("content")

	req := bleve.NewSearchRequest(matchQuery)
	req.Size = limit
	req.IncludeLocations = true

	result, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("bleve search: %w", err)
	}

	results := make([]*store.BM25Result, 0, len(result.Hits))
	for _, hit := range result.Hits {
		results = append(results, &store.BM25Result{
			DocID:        hit.ID,
			Score:        hit.Score,
			MatchedTerms: extractMatchedTerms(hit),
		})
	}

	// bleve only orders by score; break ties by ascending id so results
	// with identical scores come back in a deterministic order.
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return docIDLess(results[i].DocID, results[j].DocID)
	})

	return results, nil
}

// docIDLess orders two numeric chunk ids (stored as strings) ascending,
// falling back to a string comparison if either fails to parse.
func docIDLess(a, b string) bool {
	ai, aerr := strconv.ParseInt(a, 10, 64)
	bi, berr := strconv.ParseInt(b, 10, 64)
	if aerr == nil && berr == nil {
		return ai < bi
	}
	return a < b
}

func (b *bleveIndex) Delete(ctx context.Context, docIDs []string) error {
	if len(docIDs) == 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("bleve index is closed")
	}

	batch := b.index.NewBatch()
	for _, id := range docIDs {
		batch.Delete(id)
	}
	return b.index.Batch(batch)
}

func (b *bleveIndex) AllIDs() ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, fmt.Errorf("bleve index is closed")
	}

	docCount, _ := b.index.DocCount()
	req := bleve.NewSearchRequest(bleve.NewMatchAllQuery())
	req.Size = int(docCount)
	req.Fields = []string{}

	result, err := b.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("listing all ids: %w", err)
	}

	ids := make([]string, len(result.Hits))
	for i, hit := range result.Hits {
		ids[i] = hit.ID
	}
	return ids, nil
}

func (b *bleveIndex) Stats() *store.IndexStats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return &store.IndexStats{}
	}
	docCount, _ := b.index.DocCount()
	return &store.IndexStats{DocumentCount: int(docCount)}
}

func (b *bleveIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.index.Close()
}

var _ store.BM25Index = (*bleveIndex)(nil)

func extractMatchedTerms(hit *search.DocumentMatch) []string {
	terms := make(map[string]struct{})
	for field, locations := range hit.Locations {
		if field == "content" {
			for term := range locations {
				terms[term] = struct{}{}
			}
		}
	}
	result := make([]string, 0, len(terms))
	for term := range terms {
		result = append(result, term)
	}
	return result
}

func codeTokenizerConstructor(config map[string]interface{}, cache *bleveRegistry.Cache) (analysis.Tokenizer, error) {
	return &codeTokenizer{segmenter: segment.NewCode()}, nil
}

type codeTokenizer struct {
	segmenter segment.Segmenter
}

func (t *codeTokenizer) Tokenize(input []byte) analysis.TokenStream {
	text := string(input)
	tokens := t.segmenter.Segment(text)

	result := make(analysis.TokenStream, 0, len(tokens))
	pos := 1
	offset := 0

	for _, token := range tokens {
		start := strings.Index(strings.ToLower(text[offset:]), strings.ToLower(token))
		if start == -1 {
			start = offset
		} else {
			start += offset
		}
		end := start + len(token)

		result = append(result, &analysis.Token{
			Term:     []byte(token),
			Start:    start,
			End:      end,
			Position: pos,
			Type:     analysis.AlphaNumeric,
		})
		pos++
		if end <= len(text) {
			offset = end
		}
	}
	return result
}

func codeStopFilterConstructor(config map[string]interface{}, cache *bleveRegistry.Cache) (analysis.TokenFilter, error) {
	return &codeStopFilter{stopWords: segment.BuildStopWordMap(segment.DefaultStopWords)}, nil
}

type codeStopFilter struct {
	stopWords map[string]struct{}
}

func (f *codeStopFilter) Filter(input analysis.TokenStream) analysis.TokenStream {
	result := make(analysis.TokenStream, 0, len(input))
	for _, token := range input {
		if _, isStop := f.stopWords[strings.ToLower(string(token.Term))]; !isStop {
			result = append(result, token)
		}
	}
	return result
}
