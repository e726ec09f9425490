// Package corpusvault is the Search Facade (spec.md §4.4): the stable
// public API over the Store, Index Manager and Query Engine, holding the
// process-wide shared state spec.md §3/§5 assign to it — the embedding
// cache, the vault-existence cache, the configured weights, and the
// plug-in collaborators.
package corpusvault

import (
	"context"
	"sync"

	"github.com/corpusvault/corpusvault/internal/chunk"
	"github.com/corpusvault/corpusvault/internal/config"
	"github.com/corpusvault/corpusvault/internal/embed"
	"github.com/corpusvault/corpusvault/internal/errkind"
	"github.com/corpusvault/corpusvault/internal/execpool"
	"github.com/corpusvault/corpusvault/internal/indexmanager"
	"github.com/corpusvault/corpusvault/internal/query"
	"github.com/corpusvault/corpusvault/internal/registry"
	"github.com/corpusvault/corpusvault/internal/rerank"
	"github.com/corpusvault/corpusvault/internal/segment"
	"github.com/corpusvault/corpusvault/internal/store"
)

// Doc is a (source, text) document submitted to Build.
type Doc = indexmanager.Doc

// Result is a single ranked (id, content) pair returned by Search.
type Result = query.Result

// Engine is corpusvault's public entry point. Construct with New; safe for
// concurrent use by multiple goroutines.
type Engine struct {
	cfg *config.Config

	segmenter segment.Segmenter
	embedder  embed.Embedder
	reranker  rerank.Reranker
	splitter  chunk.Splitter

	embedCache *embeddingCache

	initOnce  sync.Once
	initErr   error
	store     store.Store
	pool      *execpool.Pool
	manager   *indexmanager.Manager
	queryEng  *query.Engine

	vaultMu     sync.Mutex
	vaultExists map[string]bool

	rerankerSet bool
}

// Option customizes an Engine's collaborators, overriding the
// registry-resolved defaults from cfg's module selectors.
type Option func(*Engine)

// WithSegmenter overrides the configured segmenter.
func WithSegmenter(s segment.Segmenter) Option { return func(e *Engine) { e.segmenter = s } }

// WithEmbedder overrides the configured embedder.
func WithEmbedder(em embed.Embedder) Option { return func(e *Engine) { e.embedder = em } }

// WithReranker overrides the configured reranker. Pass nil to force the
// Query Engine's RRF branch regardless of cfg.Reranker.
func WithReranker(r rerank.Reranker) Option { return func(e *Engine) { e.reranker = r; e.rerankerSet = true } }

// WithSplitter overrides the configured splitter.
func WithSplitter(s chunk.Splitter) Option { return func(e *Engine) { e.splitter = s } }

// New constructs an Engine from cfg, resolving unset collaborators through
// package registry. The underlying Store is not opened until the first
// Build/Search/RemoveSource/Reset call (spec.md §4.4 "instantiates the
// Store lazily").
func New(cfg config.Config, opts ...Option) (*Engine, error) {
	e := &Engine{
		cfg:         &cfg,
		embedCache:  newEmbeddingCache(),
		vaultExists: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.segmenter == nil {
		seg, err := registry.Segmenter(cfg.Segmenter)
		if err != nil {
			return nil, errkind.Wrap(errkind.Usage, err)
		}
		e.segmenter = seg
	}
	if e.embedder == nil {
		emb, err := registry.Embedder(cfg.Embedder)
		if err != nil {
			return nil, errkind.Wrap(errkind.Usage, err)
		}
		e.embedder = emb
	}
	if e.reranker == nil && !e.rerankerSet {
		rr, err := registry.Reranker(cfg.Reranker)
		if err != nil {
			return nil, errkind.Wrap(errkind.Usage, err)
		}
		e.reranker = rr
	}
	if e.splitter == nil {
		sp, err := registry.Splitter(cfg.Splitter)
		if err != nil {
			return nil, errkind.Wrap(errkind.Usage, err)
		}
		e.splitter = sp
	}

	return e, nil
}

// ensure lazily opens the Store and builds the Manager/Query Engine on top
// of it, once, on first use (spec.md §4.4 "singleton keyed by
// configuration; same instance serves all calls").
func (e *Engine) ensure() (store.Store, *indexmanager.Manager, *query.Engine, error) {
	e.initOnce.Do(func() {
		st, err := registry.Store(e.cfg, e.segmenter, e.embedder)
		if err != nil {
			e.initErr = errkind.Wrap(errkind.BackendUnavailable, err)
			return
		}
		e.store = st
		e.pool = execpool.New(1)
		e.manager = indexmanager.New(st, e.splitter, e.segmenter, e.embedder, e.embedCache)
		e.queryEng = query.New(st, e.pool, e.segmenter, e.embedder, e.reranker,
			query.Weights{FTS: e.cfg.WeightFTS, Vec: e.cfg.WeightVec}, e.cfg.K)
	})
	return e.store, e.manager, e.queryEng, e.initErr
}

func (e *Engine) vault(name string) string {
	if name == "" {
		return e.cfg.DefaultVault
	}
	return name
}

// ensureVaultExists consults the cached existence map, asking the Store
// and creating the vault only on a cache miss (spec.md §4.3 step 1 /
// §4.4's vault-existence cache).
func (e *Engine) ensureVaultExists(ctx context.Context, st store.Store, vault string) error {
	e.vaultMu.Lock()
	known := e.vaultExists[vault]
	e.vaultMu.Unlock()
	if known {
		return nil
	}

	if err := st.EnsureVault(ctx, vault, e.embedder.Dimensions()); err != nil {
		if _, ok := errkind.Of(err); ok {
			// Store backends already classify vault-name/schema errors
			// (e.g. Usage for a reserved suffix); preserve that kind
			// rather than collapsing every failure into StoreSchema.
			return err
		}
		return errkind.Wrap(errkind.StoreSchema, err)
	}

	e.vaultMu.Lock()
	e.vaultExists[vault] = true
	e.vaultMu.Unlock()
	return nil
}

// Build implements spec.md §4.2's build operation, creating vault on first
// use if it does not already exist.
func (e *Engine) Build(ctx context.Context, docs []Doc, vault string, updateExisting, resetDB bool) error {
	st, mgr, _, err := e.ensure()
	if err != nil {
		return err
	}
	vault = e.vault(vault)

	if err := e.ensureVaultExists(ctx, st, vault); err != nil {
		return err
	}
	return mgr.Build(ctx, docs, vault, updateExisting, resetDB)
}

// Search implements spec.md §4.3's search operation. A vault name never
// seen by this Engine is created empty on first search, the same as on
// first build, rather than rejected: the vault-existence cache only ever
// transitions unknown -> true, so there is no "does not exist" state to
// surface here.
func (e *Engine) Search(ctx context.Context, q, vault string, topN int) ([]Result, error) {
	st, _, qe, err := e.ensure()
	if err != nil {
		return nil, err
	}
	vault = e.vault(vault)

	if err := e.ensureVaultExists(ctx, st, vault); err != nil {
		return nil, err
	}

	return qe.Search(ctx, vault, q, topN)
}

// RemoveSource implements spec.md §4.2's remove_source operation.
func (e *Engine) RemoveSource(ctx context.Context, vault, source string) error {
	_, mgr, _, err := e.ensure()
	if err != nil {
		return err
	}
	return mgr.RemoveSource(ctx, e.vault(vault), source)
}

// DropVault drops vault entirely and invalidates its cached existence
// entry. The embedding cache is left intact: it is keyed by content, not
// by vault, so dropping one vault's chunks does not invalidate embeddings
// computed for that content elsewhere.
func (e *Engine) DropVault(ctx context.Context, vault string) error {
	st, _, _, err := e.ensure()
	if err != nil {
		return err
	}
	vault = e.vault(vault)

	if err := st.DropVault(ctx, vault); err != nil {
		return errkind.Wrap(errkind.StoreIO, err)
	}

	e.vaultMu.Lock()
	delete(e.vaultExists, vault)
	e.vaultMu.Unlock()
	return nil
}

// Reset implements spec.md §4.1's reset: it destroys every vault the
// Store holds, not just one. The embedding cache is left intact for the
// same reason DropVault leaves it intact.
func (e *Engine) Reset(ctx context.Context) error {
	st, _, _, err := e.ensure()
	if err != nil {
		return err
	}

	if err := st.Reset(ctx); err != nil {
		return errkind.Wrap(errkind.StoreIO, err)
	}

	e.vaultMu.Lock()
	e.vaultExists = make(map[string]bool)
	e.vaultMu.Unlock()
	return nil
}

// Close releases the Engine's Store and executor resources. Safe to call
// even if the Store was never lazily opened.
func (e *Engine) Close() error {
	if e.store == nil {
		return nil
	}
	if e.pool != nil {
		e.pool.Close()
	}
	return e.store.Close()
}
