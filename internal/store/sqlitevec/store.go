// Package sqlitevec implements the row-oriented Store backend: one SQLite
// file holds, per vault V, a base table plus an FTS5 virtual table V_fts and
// a sqlite-vec vec0 virtual table V_vec, kept in sync by triggers that call
// back into Go through two registered SQL functions, segment() and
// embedding(). This is the mechanism spec.md §9 calls "trigger-maintained
// secondary indices", carried over unchanged from the system this module
// was distilled from.
package sqlitevec

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	vecext "github.com/asg017/sqlite-vec-go-bindings/cgo"
	"github.com/gofrs/flock"
	"github.com/mattn/go-sqlite3"

	"github.com/corpusvault/corpusvault/internal/embed"
	"github.com/corpusvault/corpusvault/internal/errkind"
	"github.com/corpusvault/corpusvault/internal/segment"
	"github.com/corpusvault/corpusvault/internal/store"
)

// registerDriver registers a sqlite3 driver variant that loads the
// sqlite-vec extension and exposes segmenter/embedder as SQL functions on
// every new connection. Open calls it once per Store under a fresh driver
// name, so each Store's connections close over that Store's own
// segmenter/embedder.
func registerDriver(name string, seg segment.Segmenter, emb embed.Embedder) {
	sql.Register(name, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			if err := vecext.Auto(); err != nil {
				return fmt.Errorf("loading sqlite-vec extension: %w", err)
			}
			if err := conn.RegisterFunc("segment", func(text string) string {
				return strings.Join(seg.Segment(text), " ")
			}, true); err != nil {
				return fmt.Errorf("registering segment() function: %w", err)
			}
			if err := conn.RegisterFunc("embedding", func(text string) ([]byte, error) {
				vec, err := emb.Embed(context.Background(), text)
				if err != nil {
					return nil, err
				}
				return vecext.SerializeFloat32(vec)
			}, true); err != nil {
				return fmt.Errorf("registering embedding() function: %w", err)
			}
			return nil
		},
	})
}

// Store is the row-oriented backend, satisfying store.Store.
type Store struct {
	db   *sql.DB
	lock *flock.Flock

	mu     sync.Mutex // serializes schema creation across vaults; SQLite serializes writes itself
	vaults map[string]int // vault name -> dimension, for EnsureVault idempotency
}

var driverCounter int
var driverCounterMu sync.Mutex

// Open opens (or creates) the SQLite database at path, loading sqlite-vec
// and registering the segment()/embedding() SQL functions used by the
// per-vault triggers. A flock on path+".lock" is held for the Store's
// lifetime, enforcing the single-writer discipline spec.md §5 requires at
// the OS level: a second process opening the same path fails fast with
// BackendUnavailable.
func Open(path string, seg segment.Segmenter, emb embed.Embedder) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errkind.Wrap(errkind.StoreIO, fmt.Errorf("creating database directory: %w", err))
		}
	}

	fl := flock.New(path + ".lock")
	locked, err := fl.TryLock()
	if err != nil {
		return nil, errkind.Wrap(errkind.BackendUnavailable, fmt.Errorf("acquiring store lock: %w", err))
	}
	if !locked {
		return nil, errkind.New(errkind.BackendUnavailable, fmt.Sprintf("store at %q is held by another process", path), nil)
	}

	driverCounterMu.Lock()
	driverCounter++
	driverName := fmt.Sprintf("sqlite3_corpusvault_%d", driverCounter)
	driverCounterMu.Unlock()
	registerDriver(driverName, seg, emb)

	db, err := sql.Open(driverName, path)
	if err != nil {
		_ = fl.Unlock()
		return nil, errkind.Wrap(errkind.StoreIO, fmt.Errorf("opening database: %w", err))
	}
	db.SetMaxOpenConns(1) // one writer; sqlite3 driver connections aren't safe to share the custom funcs across pools otherwise

	if _, err := db.Exec("PRAGMA journal_mode = WAL; PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		_ = fl.Unlock()
		return nil, errkind.Wrap(errkind.StoreIO, fmt.Errorf("configuring database: %w", err))
	}

	return &Store{db: db, lock: fl, vaults: make(map[string]int)}, nil
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

func (s *Store) EnsureVault(ctx context.Context, name string, dim int) error {
	if err := validateVaultName(name); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.vaults[name]; ok {
		if existing != dim {
			return errkind.New(errkind.StoreSchema, fmt.Sprintf("vault %q has dimension %d, got %d", name, existing, dim), nil)
		}
		return nil
	}

	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name=?`, name).Scan(&exists)
	if err != nil {
		return errkind.Wrap(errkind.StoreIO, fmt.Errorf("checking vault %q: %w", name, err))
	}

	if exists == 0 {
		if err := s.createVault(ctx, name, dim); err != nil {
			return err
		}
	}

	s.vaults[name] = dim
	return nil
}

func (s *Store) createVault(ctx context.Context, name string, dim int) error {
	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %q (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			content TEXT NOT NULL,
			part_id TEXT,
			source TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`, name),
		fmt.Sprintf(`CREATE VIRTUAL TABLE IF NOT EXISTS %q USING fts5(indexed_content)`, name+"_fts"),
		fmt.Sprintf(`CREATE VIRTUAL TABLE IF NOT EXISTS %q USING vec0(embedding FLOAT[%d])`, name+"_vec", dim),
		fmt.Sprintf(`CREATE TRIGGER IF NOT EXISTS %q AFTER INSERT ON %q BEGIN
			INSERT INTO %q(rowid, indexed_content) VALUES (new.id, segment(new.content));
			INSERT INTO %q(rowid, embedding) VALUES (new.id, embedding(new.content));
		END`, name+"_ai", name, name+"_fts", name+"_vec"),
		fmt.Sprintf(`CREATE TRIGGER IF NOT EXISTS %q AFTER DELETE ON %q BEGIN
			DELETE FROM %q WHERE rowid = old.id;
			DELETE FROM %q WHERE rowid = old.id;
		END`, name+"_ad", name, name+"_fts", name+"_vec"),
		fmt.Sprintf(`CREATE TRIGGER IF NOT EXISTS %q AFTER UPDATE ON %q BEGIN
			UPDATE %q SET indexed_content = segment(new.content) WHERE rowid = new.id;
			UPDATE %q SET embedding = embedding(new.content) WHERE rowid = new.id;
		END`, name+"_au", name, name+"_fts", name+"_vec"),
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return errkind.Wrap(errkind.StoreSchema, fmt.Errorf("creating vault %q: %w", name, err))
		}
	}
	return nil
}

func (s *Store) knownVault(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.vaults[name]
	return ok
}

// Insert appends rows to the base table; the V_ai trigger populates V_fts
// and V_vec from new.content by calling the registered segment()/embedding()
// functions, so InsertChunk's precomputed Tokens/Vector fields are not used
// by this backend (store/memvec stores Vector; neither backend reads
// Tokens).
func (s *Store) Insert(ctx context.Context, name string, chunks []store.InsertChunk) error {
	if !s.knownVault(name) {
		return errkind.New(errkind.Usage, fmt.Sprintf("vault %q does not exist", name), nil)
	}
	if len(chunks) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errkind.Wrap(errkind.StoreIO, fmt.Errorf("beginning insert transaction: %w", err))
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`INSERT INTO %q (source, part_id, content) VALUES (?, ?, ?)`, name))
	if err != nil {
		return errkind.Wrap(errkind.StoreIO, fmt.Errorf("preparing insert: %w", err))
	}
	defer stmt.Close()

	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx, c.Source, c.PartID, c.Content); err != nil {
			return errkind.Wrap(errkind.StoreIO, fmt.Errorf("inserting chunk into vault %q: %w", name, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return errkind.Wrap(errkind.StoreIO, fmt.Errorf("committing insert: %w", err))
	}
	return nil
}

func (s *Store) HasSource(ctx context.Context, name, source string) (bool, error) {
	if !s.knownVault(name) {
		return false, nil
	}
	var count int
	err := errkind.RetryOnce(func() error {
		return s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(1) FROM %q WHERE source = ?`, name), source).Scan(&count)
	})
	if err != nil {
		return false, errkind.Wrap(errkind.StoreIO, fmt.Errorf("checking source %q in vault %q: %w", source, name, err))
	}
	return count > 0, nil
}

func (s *Store) DeleteSource(ctx context.Context, name, source string) error {
	if !s.knownVault(name) {
		return errkind.New(errkind.Usage, fmt.Sprintf("vault %q does not exist", name), nil)
	}
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %q WHERE source = ?`, name), source); err != nil {
		return errkind.Wrap(errkind.StoreIO, fmt.Errorf("deleting source %q from vault %q: %w", source, name, err))
	}
	return nil
}

// RebuildFTS repopulates V_fts from V's current content, used for recovery
// after detected FTS5 corruption.
func (s *Store) RebuildFTS(ctx context.Context, name string) error {
	if !s.knownVault(name) {
		return errkind.New(errkind.Usage, fmt.Sprintf("vault %q does not exist", name), nil)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errkind.Wrap(errkind.StoreIO, fmt.Errorf("beginning rebuild transaction: %w", err))
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %q`, name+"_fts")); err != nil {
		return errkind.Wrap(errkind.StoreIO, fmt.Errorf("clearing fts index for vault %q: %w", name, err))
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(
		`INSERT INTO %q(rowid, indexed_content) SELECT id, segment(content) FROM %q`, name+"_fts", name,
	)); err != nil {
		return errkind.Wrap(errkind.StoreIO, fmt.Errorf("rebuilding fts index for vault %q: %w", name, err))
	}

	if err := tx.Commit(); err != nil {
		return errkind.Wrap(errkind.StoreIO, fmt.Errorf("committing fts rebuild: %w", err))
	}
	return nil
}

func (s *Store) SearchFTS(ctx context.Context, name string, queryTokens []string, topN int) ([]store.Result, error) {
	if !s.knownVault(name) {
		return nil, nil
	}
	if len(queryTokens) == 0 {
		return []store.Result{}, nil
	}

	query := strings.Join(queryTokens, " OR ")
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT %[1]q.id, %[1]q.content FROM %[2]q JOIN %[1]q ON %[2]q.rowid = %[1]q.id
		 WHERE %[2]q MATCH ? ORDER BY bm25(%[2]q), %[1]q.id ASC LIMIT ?`, name, name+"_fts"),
		query, topN)
	if err != nil {
		return nil, errkind.Wrap(errkind.StoreIO, fmt.Errorf("lexical search in vault %q: %w", name, err))
	}
	defer rows.Close()

	return scanResults(rows)
}

func (s *Store) SearchVec(ctx context.Context, name string, queryVec []float32, topN int) ([]store.Result, error) {
	if !s.knownVault(name) {
		return nil, nil
	}
	blob, err := vecext.SerializeFloat32(queryVec)
	if err != nil {
		return nil, errkind.Wrap(errkind.Usage, fmt.Errorf("serializing query vector: %w", err))
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT %[1]q.id, %[1]q.content FROM %[2]q JOIN %[1]q ON %[2]q.rowid = %[1]q.id
		 WHERE %[2]q.embedding MATCH ? AND k = ? ORDER BY %[2]q.distance, %[1]q.id ASC`, name, name+"_vec"),
		blob, topN)
	if err != nil {
		return nil, errkind.Wrap(errkind.StoreIO, fmt.Errorf("vector search in vault %q: %w", name, err))
	}
	defer rows.Close()

	return scanResults(rows)
}

func scanResults(rows *sql.Rows) ([]store.Result, error) {
	var results []store.Result
	for rows.Next() {
		var r store.Result
		if err := rows.Scan(&r.ID, &r.Content); err != nil {
			return nil, errkind.Wrap(errkind.StoreIO, fmt.Errorf("scanning search result: %w", err))
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errkind.Wrap(errkind.StoreIO, fmt.Errorf("reading search results: %w", err))
	}
	return results, nil
}

// DropVault drops name and both its indices, leaving every other vault
// untouched.
func (s *Store) DropVault(ctx context.Context, name string) error {
	s.mu.Lock()
	_, known := s.vaults[name]
	delete(s.vaults, name)
	s.mu.Unlock()

	if !known {
		return nil
	}

	for _, suffix := range []string{"", "_fts", "_vec"} {
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %q`, name+suffix)); err != nil {
			return errkind.Wrap(errkind.StoreIO, fmt.Errorf("dropping %s%s: %w", name, suffix, err))
		}
	}
	for _, suffix := range []string{"_ai", "_ad", "_au"} {
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`DROP TRIGGER IF EXISTS %q`, name+suffix)); err != nil {
			return errkind.Wrap(errkind.StoreIO, fmt.Errorf("dropping trigger %s%s: %w", name, suffix, err))
		}
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
	err := s.db.Close()
	if unlockErr := s.lock.Unlock(); unlockErr != nil && err == nil {
		err = unlockErr
	}
	return err
}

var _ store.Store = (*Store)(nil)
