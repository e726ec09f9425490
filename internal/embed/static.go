package embed

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"unicode"

	"github.com/corpusvault/corpusvault/internal/segment"
)

// StaticDimensions is the vector dimension produced by Static.
const StaticDimensions = 256

const (
	tokenWeight = 0.7
	ngramWeight = 0.3
	ngramSize   = 3
)

// Static is a deterministic, hash-based Embedder requiring no network
// access or model download. It trades semantic quality for zero
// configuration, and is the zero-config default plus the embedder used in
// tests.
type Static struct {
	mu       sync.RWMutex
	closed   bool
	segmenter segment.Segmenter
}

// NewStatic creates a Static embedder using segment.NewCode for
// tokenization.
func NewStatic() *Static {
	return &Static{segmenter: segment.NewCode()}
}

func (e *Static) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return nil, fmt.Errorf("embedder is closed")
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return make([]float32, StaticDimensions), nil
	}
	return normalizeVector(e.generateVector(trimmed)), nil
}

func (e *Static) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return nil, fmt.Errorf("embedder is closed")
	}
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := e.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embedding text %d: %w", i, err)
		}
		results[i] = v
	}
	return results, nil
}

func (e *Static) generateVector(text string) []float32 {
	vector := make([]float32, StaticDimensions)

	for _, token := range e.segmenter.Segment(text) {
		vector[hashToIndex(token, StaticDimensions)] += tokenWeight
	}

	normalized := normalizeForNgrams(text)
	for _, ngram := range extractNgrams(normalized, ngramSize) {
		vector[hashToIndex(ngram, StaticDimensions)] += ngramWeight
	}

	return vector
}

func normalizeForNgrams(text string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func extractNgrams(text string, n int) []string {
	if len(text) < n {
		return []string{}
	}
	ngrams := make([]string, 0, len(text)-n+1)
	for i := 0; i <= len(text)-n; i++ {
		ngrams = append(ngrams, text[i:i+n])
	}
	return ngrams
}

func hashToIndex(s string, size int) int {
	h := fnv.New64()
	_, _ = h.Write([]byte(s))
	return int(h.Sum64() % uint64(size))
}

func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}
	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}

func (e *Static) Dimensions() int { return StaticDimensions }

func (e *Static) ModelName() string { return "static" }

func (e *Static) Available(_ context.Context) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.closed
}

func (e *Static) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}
