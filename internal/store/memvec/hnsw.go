package memvec

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/coder/hnsw"

	"github.com/corpusvault/corpusvault/internal/store"
)

// hnswIndex implements store.VectorStore using coder/hnsw, a pure-Go HNSW
// implementation requiring no CGO.
type hnswIndex struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config store.VectorStoreConfig

	idMap   map[string]uint64
	keyMap  map[uint64]string
	nextKey uint64

	closed bool
}

func newHNSWIndex(cfg store.VectorStoreConfig) *hnswIndex {
	if cfg.Metric == "" {
		cfg.Metric = "l2"
	}
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 20
	}

	graph := hnsw.NewGraph[uint64]()
	switch cfg.Metric {
	case "cos":
		graph.Distance = hnsw.CosineDistance
	default:
		graph.Distance = hnsw.EuclideanDistance
	}
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25

	return &hnswIndex{
		graph:  graph,
		config: cfg,
		idMap:  make(map[string]uint64),
		keyMap: make(map[uint64]string),
	}
}

// Add inserts vectors with their IDs, replacing any existing entry for the
// same ID via lazy deletion: the old graph node is orphaned rather than
// removed, which sidesteps a coder/hnsw bug around deleting the last node
// in a graph.
func (s *hnswIndex) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("vector index is closed")
	}

	for _, v := range vectors {
		if len(v) != s.config.Dimensions {
			return store.ErrDimensionMismatch{Expected: s.config.Dimensions, Got: len(v)}
		}
	}

	for i, id := range ids {
		if existingKey, exists := s.idMap[id]; exists {
			delete(s.keyMap, existingKey)
			delete(s.idMap, id)
		}

		key := s.nextKey
		s.nextKey++

		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		if s.config.Metric == "cos" {
			normalizeInPlace(vec)
		}

		s.graph.Add(hnsw.MakeNode(key, vec))
		s.idMap[id] = key
		s.keyMap[key] = id
	}
	return nil
}

func (s *hnswIndex) Search(ctx context.Context, query []float32, k int) ([]*store.VectorResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("vector index is closed")
	}
	if len(query) != s.config.Dimensions {
		return nil, store.ErrDimensionMismatch{Expected: s.config.Dimensions, Got: len(query)}
	}
	if s.graph.Len() == 0 {
		return []*store.VectorResult{}, nil
	}

	q := make([]float32, len(query))
	copy(q, query)
	if s.config.Metric == "cos" {
		normalizeInPlace(q)
	}

	nodes := s.graph.Search(q, k)
	results := make([]*store.VectorResult, 0, len(nodes))
	for _, node := range nodes {
		id, exists := s.keyMap[node.Key]
		if !exists {
			continue
		}
		distance := s.graph.Distance(q, node.Value)
		results = append(results, &store.VectorResult{
			ID:       id,
			Distance: distance,
			Score:    distanceToScore(distance, s.config.Metric),
		})
	}

	// the hnsw graph only orders by distance; break ties by ascending id
	// so results equidistant from the query come back deterministically.
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return docIDLess(results[i].ID, results[j].ID)
	})

	return results, nil
}

func (s *hnswIndex) Delete(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("vector index is closed")
	}
	for _, id := range ids {
		if key, exists := s.idMap[id]; exists {
			delete(s.keyMap, key)
			delete(s.idMap, id)
		}
	}
	return nil
}

func (s *hnswIndex) AllIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil
	}
	ids := make([]string, 0, len(s.idMap))
	for id := range s.idMap {
		ids = append(ids, id)
	}
	return ids
}

func (s *hnswIndex) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	_, exists := s.idMap[id]
	return exists
}

func (s *hnswIndex) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0
	}
	return len(s.idMap)
}

func (s *hnswIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.graph = nil
	return nil
}

var _ store.VectorStore = (*hnswIndex)(nil)

func normalizeInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}

func distanceToScore(distance float32, metric string) float32 {
	switch metric {
	case "cos":
		return 1.0 - distance/2.0
	default:
		return 1.0 / (1.0 + distance)
	}
}
