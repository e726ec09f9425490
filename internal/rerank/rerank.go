// Package rerank provides the optional reranking collaborator: a
// cross-encoder style scorer over (query, candidate) pairs.
package rerank

import "context"

// Reranker scores a set of candidate chunk contents against a query.
// Scores are 1:1 with candidates, higher meaning more relevant; sorting and
// top-N selection are the Query Engine's job (spec.md §4.3 step 3), not the
// Reranker's, unlike the teacher's Rerank which also sorts and truncates —
// keeping Reranker to pure scoring lets the Query Engine apply top_n after
// the union of both retrieval arms, which the teacher's single-list design
// didn't need to do.
type Reranker interface {
	// Rerank returns one score per candidate, in the same order.
	Rerank(ctx context.Context, query string, candidates []string) ([]float64, error)

	// Available reports whether the reranker is ready to serve requests.
	Available(ctx context.Context) bool

	// Close releases any resources held by the reranker.
	Close() error
}

// NoOp is the default reranker: it assigns strictly decreasing scores that
// preserve the candidates' incoming order, so a Query Engine that always
// sorts by score after reranking is a no-op when no real reranker is
// configured. Adapted from the teacher's NoOpReranker.
type NoOp struct{}

// Rerank assigns scores 1.0, 1.0-epsilon, 1.0-2*epsilon, ... to preserve
// input order after the caller's descending sort.
func (NoOp) Rerank(_ context.Context, _ string, candidates []string) ([]float64, error) {
	const epsilon = 1.0 / 1e6
	scores := make([]float64, len(candidates))
	for i := range candidates {
		scores[i] = 1.0 - float64(i)*epsilon
	}
	return scores, nil
}

// Available always returns true for NoOp.
func (NoOp) Available(_ context.Context) bool { return true }

// Close is a no-op.
func (NoOp) Close() error { return nil }

var _ Reranker = NoOp{}

// CrossEncoder documents the contract a real cross-encoder reranker
// implements: it jointly encodes each (query, candidate) pair, typically by
// calling out to an external process or model server, rather than scoring
// query and candidate independently the way embed.Embedder does. No default
// implementation ships — wiring one up means implementing Reranker against
// a specific model/process, analogous to the teacher's mlx_reranker.go.
type CrossEncoder interface {
	Reranker
}
