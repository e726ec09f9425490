package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the default number of embeddings Cached keeps.
const DefaultCacheSize = 1000

// Cached wraps an Embedder with a bounded LRU cache, for collaborators that
// are themselves expensive per call (e.g. a network-backed embedder). This
// is distinct from the Search Facade's mandatory permanent, never-evicted
// embedding cache: Cached is an optional, evictable layer in front of a
// slow Embedder implementation, not a replacement for the Facade's cache.
type Cached struct {
	inner Embedder
	cache *lru.Cache[string, []float32]
}

// NewCached wraps inner with an LRU cache of the given size. A
// non-positive size uses DefaultCacheSize.
func NewCached(inner Embedder, cacheSize int) *Cached {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, _ := lru.New[string, []float32](cacheSize)
	return &Cached{inner: inner, cache: cache}
}

// cacheKey hashes text plus model name so two models never collide on the
// same text.
func (c *Cached) cacheKey(text string) string {
	combined := text + "\x00" + c.inner.ModelName()
	hash := sha256.Sum256([]byte(combined))
	return hex.EncodeToString(hash[:])
}

func (c *Cached) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.cacheKey(text)
	if vec, ok := c.cache.Get(key); ok {
		return vec, nil
	}

	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, vec)
	return vec, nil
}

func (c *Cached) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, len(texts))
	uncachedIdx := make([]int, 0, len(texts))
	uncachedTexts := make([]string, 0, len(texts))

	for i, text := range texts {
		if vec, ok := c.cache.Get(c.cacheKey(text)); ok {
			results[i] = vec
		} else {
			uncachedIdx = append(uncachedIdx, i)
			uncachedTexts = append(uncachedTexts, text)
		}
	}

	if len(uncachedTexts) == 0 {
		return results, nil
	}

	newEmbeddings, err := c.inner.EmbedBatch(ctx, uncachedTexts)
	if err != nil {
		return nil, err
	}

	for j, idx := range uncachedIdx {
		results[idx] = newEmbeddings[j]
		c.cache.Add(c.cacheKey(texts[idx]), newEmbeddings[j])
	}
	return results, nil
}

func (c *Cached) Dimensions() int { return c.inner.Dimensions() }

func (c *Cached) ModelName() string { return c.inner.ModelName() }

func (c *Cached) Available(ctx context.Context) bool { return c.inner.Available(ctx) }

func (c *Cached) Close() error { return c.inner.Close() }

// Inner returns the wrapped Embedder.
func (c *Cached) Inner() Embedder { return c.inner }
