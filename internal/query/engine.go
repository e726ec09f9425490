// Package query implements the Query Engine (spec.md §4.3): parallel
// lexical/vector retrieval against a Store, fused by Reciprocal Rank Fusion
// or, when configured, reranked instead of fused.
package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/corpusvault/corpusvault/internal/embed"
	"github.com/corpusvault/corpusvault/internal/errkind"
	"github.com/corpusvault/corpusvault/internal/execpool"
	"github.com/corpusvault/corpusvault/internal/rerank"
	"github.com/corpusvault/corpusvault/internal/segment"
	"github.com/corpusvault/corpusvault/internal/store"
)

// overfetch controls how many candidates each arm is asked for relative to
// top_n, giving fusion/reranking enough of a union to pick good ties from.
const overfetch = 2

// tokenCacheSize bounds the query-tokenization LRU. This is a small,
// evictable convenience cache, distinct from the Facade's unbounded,
// never-invalidated embedding cache (spec.md §3) — see DESIGN.md.
const tokenCacheSize = 256

// Engine runs Search against one Store, using the shared segmenter/embedder
// and an optional reranker.
type Engine struct {
	store     store.Store
	pool      *execpool.Pool
	segmenter segment.Segmenter
	embedder  embed.Embedder
	reranker  rerank.Reranker // nil means "use RRF fusion", per spec.md §4.3 step 3/4

	weights Weights
	k       int

	tokenCache *lru.Cache[string, []string]
}

// New constructs an Engine. reranker may be nil, in which case Search
// always runs RRF fusion (step 4); a non-nil reranker (including
// rerank.NoOp{}, which is a no-op by design, not "absent") makes Search
// always take the reranking branch (step 3), matching spec.md's either/or
// phrasing ("if a reranker is configured").
func New(st store.Store, pool *execpool.Pool, seg segment.Segmenter, emb embed.Embedder, rr rerank.Reranker, weights Weights, k int) *Engine {
	cache, _ := lru.New[string, []string](tokenCacheSize)
	return &Engine{
		store:      st,
		pool:       pool,
		segmenter:  seg,
		embedder:   emb,
		reranker:   rr,
		weights:    weights,
		k:          k,
		tokenCache: cache,
	}
}

func (e *Engine) tokenize(query string) []string {
	if tokens, ok := e.tokenCache.Get(query); ok {
		return tokens
	}
	tokens := e.segmenter.Segment(query)
	e.tokenCache.Add(query, tokens)
	return tokens
}

// Search runs query against vault and returns up to topN ranked results.
func (e *Engine) Search(ctx context.Context, vault, query string, topN int) ([]Result, error) {
	if topN <= 0 {
		return []Result{}, nil
	}
	fetchN := topN * overfetch

	lexical, vector, err := e.parallelSearch(ctx, vault, query, fetchN)
	if err != nil {
		return nil, err
	}

	if len(lexical) == 0 && len(vector) == 0 {
		return []Result{}, nil
	}

	if e.reranker != nil {
		return e.rerankBranch(ctx, query, lexical, vector, topN)
	}
	return e.fuseBranch(lexical, vector, topN), nil
}

// parallelSearch dispatches lexical and vector retrieval on the Store's
// executor and awaits both, per spec.md §4.3 step 2 / §5 "two tasks
// submitted to this executor and awaited together". A single-arm failure
// degrades to an empty list for that arm and is logged at warn, not
// raised; both arms failing surfaces a joined error.
func (e *Engine) parallelSearch(ctx context.Context, vault, query string, fetchN int) ([]store.Result, []store.Result, error) {
	var lexical, vector []store.Result
	var lexErr, vecErr error

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		tokens := e.tokenize(query)
		res, err := execpool.Submit(gctx, e.pool, func(ctx context.Context) ([]store.Result, error) {
			return e.store.SearchFTS(ctx, vault, tokens, fetchN)
		})
		if err != nil {
			lexErr = err
			return nil
		}
		lexical = res
		return nil
	})

	g.Go(func() error {
		vec, err := e.embedder.Embed(gctx, query)
		if err != nil {
			vecErr = errkind.Wrap(errkind.ExternalModule, fmt.Errorf("embedding query: %w", err))
			return nil
		}
		res, err := execpool.Submit(gctx, e.pool, func(ctx context.Context) ([]store.Result, error) {
			return e.store.SearchVec(ctx, vault, vec, fetchN)
		})
		if err != nil {
			vecErr = err
			return nil
		}
		vector = res
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	if lexErr != nil && vecErr != nil {
		return nil, nil, errors.Join(lexErr, vecErr)
	}
	if lexErr != nil {
		slog.Warn("lexical search failed, continuing with vector results only",
			slog.String("vault", vault), slog.String("error", lexErr.Error()))
	}
	if vecErr != nil {
		slog.Warn("vector search failed, continuing with lexical results only",
			slog.String("vault", vault), slog.String("error", vecErr.Error()))
	}
	return lexical, vector, nil
}

// fuseBranch implements spec.md §4.3 step 4.
func (e *Engine) fuseBranch(lexical, vector []store.Result, topN int) []Result {
	fused := RRFFuse(lexical, vector, e.weights, e.k)
	if len(fused) > topN {
		fused = fused[:topN]
	}
	return fused
}

// rerankBranch implements spec.md §4.3 step 3: union by id preserving
// first-seen content, score via the reranker, sort descending, keep topN.
func (e *Engine) rerankBranch(ctx context.Context, query string, lexical, vector []store.Result, topN int) ([]Result, error) {
	type entry struct {
		id      int64
		content string
	}
	seen := make(map[int64]struct{})
	var union []entry

	for _, lists := range [][]store.Result{lexical, vector} {
		for _, r := range lists {
			if _, ok := seen[r.ID]; ok {
				continue
			}
			seen[r.ID] = struct{}{}
			union = append(union, entry{id: r.ID, content: r.Content})
		}
	}

	contents := make([]string, len(union))
	for i, u := range union {
		contents[i] = u.content
	}

	scores, err := e.reranker.Rerank(ctx, query, contents)
	if err != nil {
		return nil, errkind.Wrap(errkind.ExternalModule, fmt.Errorf("reranking: %w", err))
	}
	if len(scores) != len(union) {
		return nil, errkind.New(errkind.ExternalModule, fmt.Sprintf("reranker returned %d scores for %d candidates", len(scores), len(union)), nil)
	}

	results := make([]Result, len(union))
	for i, u := range union {
		results[i] = Result{ID: u.id, Content: u.content, Score: scores[i], insertionOrder: i}
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].insertionOrder < results[j].insertionOrder
	})

	if len(results) > topN {
		results = results[:topN]
	}
	return results, nil
}
