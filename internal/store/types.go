// Package store defines the persistence contract shared by the two
// interchangeable backends (store/sqlitevec, store/memvec): a base chunk
// relation plus a lexical index and a vector index, kept in sync on every
// mutation.
package store

import (
	"context"
	"fmt"
	"time"
)

// Chunk is the persisted row shape: a chunk of content inside one source
// inside one vault.
type Chunk struct {
	ID        int64     // store-assigned, monotone within a vault
	Source    string    // groups chunks that came from the same document
	PartID    string    // unique within Source, assigned by the caller
	Content   string    // raw text
	CreatedAt time.Time
}

// InsertChunk is a Chunk not yet assigned an ID, plus its precomputed
// segmentation and embedding. store/memvec persists Vector and indexes
// Content with its own code analyzer; store/sqlitevec ignores both fields
// and recomputes them from Content in its triggers.
type InsertChunk struct {
	Source    string
	PartID    string
	Content   string
	Tokens    []string  // output of segment.Segmenter; not read by either backend
	Vector    []float32 // output of embed.Embedder, persisted into the vector index by store/memvec
	CreatedAt time.Time
}

// Result is a single hit from either SearchFTS or SearchVec: an id plus the
// content at that id, so the Query Engine can fuse by id without a second
// round trip to the Store.
type Result struct {
	ID      int64
	Content string
}

// Store is the persistence contract both backends satisfy. All methods are
// scoped to a single vault, named by the vault parameter.
type Store interface {
	// EnsureVault creates vault if absent, fixing its vector dimension to
	// dim. If vault exists, dim must match its existing dimension or
	// EnsureVault returns a StoreSchemaError. Rejects vault names ending
	// in the reserved suffixes "_fts"/"_vec".
	EnsureVault(ctx context.Context, vault string, dim int) error

	// Insert appends chunks and mirrors them into both indices. All chunks
	// in the call succeed or none do.
	Insert(ctx context.Context, vault string, chunks []InsertChunk) error

	// HasSource reports whether vault contains any chunk with the given
	// source. Returns (false, nil), not an error, if vault does not exist.
	HasSource(ctx context.Context, vault, source string) (bool, error)

	// DeleteSource removes every chunk with the given source from vault
	// and both indices.
	DeleteSource(ctx context.Context, vault, source string) error

	// RebuildFTS rebuilds the lexical index for vault from the base
	// relation, used for recovery after detected corruption.
	RebuildFTS(ctx context.Context, vault string) error

	// SearchFTS returns up to topN chunks matching queryTokens, ordered by
	// BM25 ascending distance (best first).
	SearchFTS(ctx context.Context, vault string, queryTokens []string, topN int) ([]Result, error)

	// SearchVec returns up to topN chunks nearest queryVec, ordered by
	// vector distance ascending (best first).
	SearchVec(ctx context.Context, vault string, queryVec []float32, topN int) ([]Result, error)

	// DropVault drops vault and both its indices entirely, leaving every
	// other vault untouched.
	DropVault(ctx context.Context, vault string) error

	// Reset destroys every vault the Store holds, matching spec.md §4.1's
	// reset (no vault parameter: it resets the whole Store, not one
	// vault).
	Reset(ctx context.Context) error

	// Close releases the Store's resources (file handles, locks, workers).
	Close() error
}

// ReservedSuffixes are vault-name suffixes forbidden because they collide
// with the backends' own auxiliary relation naming (V_fts, V_vec).
var ReservedSuffixes = []string{"_fts", "_vec"}

// Document is a (id, content) pair submitted to a BM25Index.
type Document struct {
	ID      string
	Content string
}

// BM25Result is a single BM25Index.Search hit.
type BM25Result struct {
	DocID        string
	Score        float64
	MatchedTerms []string
}

// IndexStats summarizes a BM25Index's contents.
type IndexStats struct {
	DocumentCount int
	TermCount     int
	AvgDocLength  float64
}

// BM25Index is the lexical-index building block the memvec backend
// composes into Store; the sqlitevec backend talks to FTS5 directly and
// does not need this indirection.
type BM25Index interface {
	Index(ctx context.Context, docs []*Document) error
	Search(ctx context.Context, query string, limit int) ([]*BM25Result, error)
	Delete(ctx context.Context, docIDs []string) error
	AllIDs() ([]string, error)
	Stats() *IndexStats
	Close() error
}

// BM25Config configures a BM25Index.
type BM25Config struct {
	K1             float64
	B              float64
	StopWords      []string
	MinTokenLength int
}

// DefaultBM25Config returns the teacher-calibrated BM25 parameters.
func DefaultBM25Config() BM25Config {
	return BM25Config{
		K1:             1.2,
		B:              0.75,
		StopWords:      DefaultCodeStopWords,
		MinTokenLength: 2,
	}
}

// DefaultCodeStopWords contains programming keywords to filter out.
var DefaultCodeStopWords = []string{
	"var", "let", "const", "func", "function", "def", "class",
	"return", "if", "else", "for", "while",
	"data", "result", "value", "item", "key", "err", "ctx", "tmp",
}

// VectorResult is a single VectorStore.Search hit.
type VectorResult struct {
	ID       string
	Distance float32
	Score    float32
}

// VectorStoreConfig configures a VectorStore.
type VectorStoreConfig struct {
	Dimensions     int
	Metric         string // "cos" or "l2"
	M              int
	EfConstruction int
	EfSearch       int
}

// DefaultVectorStoreConfig returns the teacher-calibrated HNSW parameters
// for the given dimension, using L2 (spec.md's distance metric for
// SearchVec ordering).
func DefaultVectorStoreConfig(dimensions int) VectorStoreConfig {
	return VectorStoreConfig{
		Dimensions:     dimensions,
		Metric:         "l2",
		M:              32,
		EfConstruction: 128,
		EfSearch:       64,
	}
}

// VectorStore is the vector-index building block the memvec backend
// composes into Store.
type VectorStore interface {
	Add(ctx context.Context, ids []string, vectors [][]float32) error
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)
	Delete(ctx context.Context, ids []string) error
	AllIDs() []string
	Contains(id string) bool
	Count() int
	Close() error
}

// ErrDimensionMismatch indicates a vault's fixed vector dimension does not
// match the dimension of a vector presented to it.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: vault expects %d, got %d", e.Expected, e.Got)
}
