// Package memvec implements the column-oriented Store backend: a
// modernc.org/sqlite metadata table for the base chunk relation, a
// github.com/blevesearch/bleve/v2 index per vault for lexical search, and a
// github.com/coder/hnsw graph per vault for vector search. Since these are
// three independent engines with no shared transaction, Insert, DeleteSource
// and RebuildFTS each run inside one Go-level critical section per vault,
// and Insert rolls back by compensating deletes on partial failure.
package memvec

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/corpusvault/corpusvault/internal/errkind"
	"github.com/corpusvault/corpusvault/internal/store"
)

// encodeVector/decodeVector give the base relation a durable encoding for
// chunk vectors, so a vault's vector index can be rebuilt from the sqlite
// relation alone after a process restart, without calling back into the
// Token Pipeline's embedder.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

type vault struct {
	mu   sync.Mutex // serializes writes to this vault's three relations
	bm25 *bleveIndex
	vec  *hnswIndex
	dim  int
}

// Store is the memvec backend, satisfying store.Store.
type Store struct {
	db *sql.DB

	mu     sync.Mutex // guards vaults map only; per-vault mu guards writes
	vaults map[string]*vault
}

// Open creates or attaches to a sqlite metadata database at path. An empty
// path opens an in-memory database, used for tests.
func Open(path string) (*Store, error) {
	dsn := path
	if dsn == "" {
		dsn = ":memory:"
	} else if dir := filepath.Dir(dsn); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errkind.Wrap(errkind.StoreIO, fmt.Errorf("creating database directory: %w", err))
		}
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errkind.Wrap(errkind.StoreIO, fmt.Errorf("opening metadata db: %w", err))
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite has no built-in connection pool locking

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS chunks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		vault TEXT NOT NULL,
		source TEXT NOT NULL,
		part_id TEXT NOT NULL,
		content TEXT NOT NULL,
		vector BLOB NOT NULL,
		created_at INTEGER NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, errkind.Wrap(errkind.StoreIO, fmt.Errorf("creating chunks table: %w", err))
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_chunks_vault_source ON chunks(vault, source)`); err != nil {
		_ = db.Close()
		return nil, errkind.Wrap(errkind.StoreIO, fmt.Errorf("creating source index: %w", err))
	}

	return &Store{db: db, vaults: make(map[string]*vault)}, nil
}

func validateVaultName(name string) error {
	for _, suffix := range store.ReservedSuffixes {
		if strings.HasSuffix(name, suffix) {
			return errkind.New(errkind.Usage, fmt.Sprintf("vault name %q uses reserved suffix %q", name, suffix), nil)
		}
	}
	if name == "" {
		return errkind.New(errkind.Usage, "vault name must not be empty", nil)
	}
	return nil
}

func (s *Store) getVault(name string) (*vault, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vaults[name]
	return v, ok
}

func (s *Store) EnsureVault(ctx context.Context, name string, dim int) error {
	if err := validateVaultName(name); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if v, ok := s.vaults[name]; ok {
		if v.dim != dim {
			return errkind.New(errkind.StoreSchema, fmt.Sprintf("vault %q has dimension %d, got %d", name, v.dim, dim), nil)
		}
		return nil
	}

	bm25, err := newBleveIndex("")
	if err != nil {
		return errkind.Wrap(errkind.StoreIO, fmt.Errorf("creating lexical index for vault %q: %w", name, err))
	}
	vec := newHNSWIndex(store.DefaultVectorStoreConfig(dim))
	v := &vault{bm25: bm25, vec: vec, dim: dim}

	if err := s.rehydrate(ctx, name, v); err != nil {
		_ = bm25.Close()
		_ = vec.Close()
		return err
	}

	s.vaults[name] = v
	return nil
}

// rehydrate repopulates v's lexical and vector indices from rows already
// present in the base relation, so reopening a Store against an existing
// database file does not silently lose a vault's searchability. bm25 and
// hnsw are in-process structures with no persistence of their own; the
// chunks table, including each chunk's vector, is the only durable state.
func (s *Store) rehydrate(ctx context.Context, name string, v *vault) error {
	rows, err := s.db.QueryContext(ctx, `SELECT id, content, vector FROM chunks WHERE vault = ?`, name)
	if err != nil {
		return errkind.Wrap(errkind.StoreIO, fmt.Errorf("listing chunks for vault %q: %w", name, err))
	}
	defer rows.Close()

	var docs []*store.Document
	var ids []string
	var vecs [][]float32
	for rows.Next() {
		var id int64
		var content string
		var vecBytes []byte
		if err := rows.Scan(&id, &content, &vecBytes); err != nil {
			return errkind.Wrap(errkind.StoreIO, fmt.Errorf("scanning chunk for vault %q: %w", name, err))
		}
		idStr := strconv.FormatInt(id, 10)
		docs = append(docs, &store.Document{ID: idStr, Content: content})
		ids = append(ids, idStr)
		vecs = append(vecs, decodeVector(vecBytes))
	}
	if len(docs) == 0 {
		return nil
	}

	if err := v.bm25.Index(ctx, docs); err != nil {
		return errkind.Wrap(errkind.StoreIO, fmt.Errorf("rehydrating lexical index for vault %q: %w", name, err))
	}
	if err := v.vec.Add(ctx, ids, vecs); err != nil {
		return errkind.Wrap(errkind.StoreIO, fmt.Errorf("rehydrating vector index for vault %q: %w", name, err))
	}
	return nil
}

func (s *Store) Insert(ctx context.Context, name string, chunks []store.InsertChunk) error {
	v, ok := s.getVault(name)
	if !ok {
		return errkind.New(errkind.Usage, fmt.Sprintf("vault %q does not exist", name), nil)
	}
	if len(chunks) == 0 {
		return nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	now := time.Now()
	var inserted []int64

	rollback := func() {
		if len(inserted) == 0 {
			return
		}
		ids := make([]string, len(inserted))
		placeholders := make([]string, len(inserted))
		args := make([]interface{}, len(inserted)+1)
		args[0] = name
		for i, id := range inserted {
			ids[i] = strconv.FormatInt(id, 10)
			placeholders[i] = "?"
			args[i+1] = id
		}
		_, _ = s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM chunks WHERE vault = ? AND id IN (%s)", strings.Join(placeholders, ",")), args...)
		_ = v.bm25.Delete(ctx, ids)
		_ = v.vec.Delete(ctx, ids)
	}

	for _, c := range chunks {
		if len(c.Vector) != v.dim {
			rollback()
			return errkind.Wrap(errkind.StoreSchema, store.ErrDimensionMismatch{Expected: v.dim, Got: len(c.Vector)})
		}

		createdAt := c.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}

		res, err := s.db.ExecContext(ctx, `INSERT INTO chunks (vault, source, part_id, content, vector, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			name, c.Source, c.PartID, c.Content, encodeVector(c.Vector), createdAt.UnixNano())
		if err != nil {
			rollback()
			return errkind.Wrap(errkind.StoreIO, fmt.Errorf("inserting chunk: %w", err))
		}
		id, err := res.LastInsertId()
		if err != nil {
			rollback()
			return errkind.Wrap(errkind.StoreIO, fmt.Errorf("reading inserted chunk id: %w", err))
		}
		inserted = append(inserted, id)
		idStr := strconv.FormatInt(id, 10)

		if err := v.bm25.Index(ctx, []*store.Document{{ID: idStr, Content: c.Content}}); err != nil {
			rollback()
			return errkind.Wrap(errkind.StoreIO, fmt.Errorf("indexing chunk %d into lexical index: %w", id, err))
		}
		if err := v.vec.Add(ctx, []string{idStr}, [][]float32{c.Vector}); err != nil {
			rollback()
			return errkind.Wrap(errkind.StoreIO, fmt.Errorf("indexing chunk %d into vector index: %w", id, err))
		}
	}

	return nil
}

func (s *Store) HasSource(ctx context.Context, name, source string) (bool, error) {
	if _, ok := s.getVault(name); !ok {
		return false, nil
	}
	var count int
	err := errkind.RetryOnce(func() error {
		return s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM chunks WHERE vault = ? AND source = ?`, name, source).Scan(&count)
	})
	if err != nil {
		return false, errkind.Wrap(errkind.StoreIO, fmt.Errorf("checking source %q in vault %q: %w", source, name, err))
	}
	return count > 0, nil
}

func (s *Store) DeleteSource(ctx context.Context, name, source string) error {
	v, ok := s.getVault(name)
	if !ok {
		return errkind.New(errkind.Usage, fmt.Sprintf("vault %q does not exist", name), nil)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `SELECT id FROM chunks WHERE vault = ? AND source = ?`, name, source)
	if err != nil {
		return errkind.Wrap(errkind.StoreIO, fmt.Errorf("listing chunks for source %q: %w", source, err))
	}
	var ids []string
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return errkind.Wrap(errkind.StoreIO, fmt.Errorf("scanning chunk id: %w", err))
		}
		ids = append(ids, strconv.FormatInt(id, 10))
	}
	_ = rows.Close()

	if len(ids) == 0 {
		return nil
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE vault = ? AND source = ?`, name, source); err != nil {
		return errkind.Wrap(errkind.StoreIO, fmt.Errorf("deleting chunks for source %q: %w", source, err))
	}
	if err := v.bm25.Delete(ctx, ids); err != nil {
		return errkind.Wrap(errkind.StoreIO, fmt.Errorf("deleting lexical entries for source %q: %w", source, err))
	}
	if err := v.vec.Delete(ctx, ids); err != nil {
		return errkind.Wrap(errkind.StoreIO, fmt.Errorf("deleting vector entries for source %q: %w", source, err))
	}
	return nil
}

// RebuildFTS rebuilds the lexical index for vault from the base relation.
// Used for recovery after detected corruption.
func (s *Store) RebuildFTS(ctx context.Context, name string) error {
	v, ok := s.getVault(name)
	if !ok {
		return errkind.New(errkind.Usage, fmt.Sprintf("vault %q does not exist", name), nil)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `SELECT id, content FROM chunks WHERE vault = ?`, name)
	if err != nil {
		return errkind.Wrap(errkind.StoreIO, fmt.Errorf("listing chunks for vault %q: %w", name, err))
	}
	defer rows.Close()

	fresh, err := newBleveIndex("")
	if err != nil {
		return errkind.Wrap(errkind.StoreIO, fmt.Errorf("creating fresh lexical index: %w", err))
	}

	var docs []*store.Document
	for rows.Next() {
		var id int64
		var content string
		if err := rows.Scan(&id, &content); err != nil {
			return errkind.Wrap(errkind.StoreIO, fmt.Errorf("scanning chunk: %w", err))
		}
		docs = append(docs, &store.Document{ID: strconv.FormatInt(id, 10), Content: content})
	}

	if err := fresh.Index(ctx, docs); err != nil {
		return errkind.Wrap(errkind.StoreIO, fmt.Errorf("rebuilding lexical index for vault %q: %w", name, err))
	}

	_ = v.bm25.Close()
	v.bm25 = fresh
	return nil
}

func (s *Store) SearchFTS(ctx context.Context, name string, queryTokens []string, topN int) ([]store.Result, error) {
	v, ok := s.getVault(name)
	if !ok {
		return nil, nil
	}
	query := strings.Join(queryTokens, " ")
	hits, err := v.bm25.Search(ctx, query, topN)
	if err != nil {
		return nil, errkind.Wrap(errkind.StoreIO, fmt.Errorf("lexical search in vault %q: %w", name, err))
	}
	return s.resolveContent(ctx, name, hits)
}

func (s *Store) SearchVec(ctx context.Context, name string, queryVec []float32, topN int) ([]store.Result, error) {
	v, ok := s.getVault(name)
	if !ok {
		return nil, nil
	}
	hits, err := v.vec.Search(ctx, queryVec, topN)
	if err != nil {
		return nil, errkind.Wrap(errkind.StoreIO, fmt.Errorf("vector search in vault %q: %w", name, err))
	}

	results := make([]store.Result, 0, len(hits))
	for _, h := range hits {
		id, err := strconv.ParseInt(h.ID, 10, 64)
		if err != nil {
			continue
		}
		content, ok := s.lookupContent(ctx, name, id)
		if !ok {
			continue
		}
		results = append(results, store.Result{ID: id, Content: content})
	}
	return results, nil
}

func (s *Store) resolveContent(ctx context.Context, name string, hits []*store.BM25Result) ([]store.Result, error) {
	results := make([]store.Result, 0, len(hits))
	for _, h := range hits {
		id, err := strconv.ParseInt(h.DocID, 10, 64)
		if err != nil {
			continue
		}
		content, ok := s.lookupContent(ctx, name, id)
		if !ok {
			continue
		}
		results = append(results, store.Result{ID: id, Content: content})
	}
	return results, nil
}

func (s *Store) lookupContent(ctx context.Context, name string, id int64) (string, bool) {
	var content string
	err := s.db.QueryRowContext(ctx, `SELECT content FROM chunks WHERE vault = ? AND id = ?`, name, id).Scan(&content)
	if err != nil {
		return "", false
	}
	return content, true
}

// DropVault drops name and both its indices, leaving every other vault
// untouched.
func (s *Store) DropVault(ctx context.Context, name string) error {
	s.mu.Lock()
	v, ok := s.vaults[name]
	if ok {
		delete(s.vaults, name)
	}
	s.mu.Unlock()

	if ok {
		_ = v.bm25.Close()
		_ = v.vec.Close()
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE vault = ?`, name); err != nil {
		return errkind.Wrap(errkind.StoreIO, fmt.Errorf("dropping vault %q: %w", name, err))
	}
	return nil
}

// Reset destroys every vault the Store holds (spec.md §4.1's reset: no
// vault parameter, the whole Store goes back to empty).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	names := make([]string, 0, len(s.vaults))
	for name := range s.vaults {
		names = append(names, name)
	}
	s.mu.Unlock()

	for _, name := range names {
		if err := s.DropVault(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.vaults {
		_ = v.bm25.Close()
		_ = v.vec.Close()
	}
	return s.db.Close()
}

var _ store.Store = (*Store)(nil)
