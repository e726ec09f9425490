package corpusvault

import "sync"

// embeddingCache is the process-wide embedding cache the Facade owns and
// shares with the Index Manager (spec.md §3/§4.4). It is keyed by chunk
// content, grows without eviction for the Engine's lifetime, and is never
// cleared by Reset — only content identity determines a hit, so a vault
// reset cannot invalidate anything cached under it.
type embeddingCache struct {
	mu   sync.RWMutex
	vecs map[string][]float32
}

func newEmbeddingCache() *embeddingCache {
	return &embeddingCache{vecs: make(map[string][]float32)}
}

func (c *embeddingCache) Get(content string) ([]float32, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.vecs[content]
	return v, ok
}

func (c *embeddingCache) Set(content string, vec []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vecs[content] = vec
}
