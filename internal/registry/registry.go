// Package registry resolves configuration-selected module names into
// concrete collaborator implementations via small static factories,
// replacing the dynamic subclass/env-var lookup spec.md §9 flags for
// redesign ("Dynamic class lookup via subclass registry") with enumerated,
// compile-time-known variants.
package registry

import (
	"fmt"

	"github.com/corpusvault/corpusvault/internal/chunk"
	"github.com/corpusvault/corpusvault/internal/config"
	"github.com/corpusvault/corpusvault/internal/embed"
	"github.com/corpusvault/corpusvault/internal/rerank"
	"github.com/corpusvault/corpusvault/internal/segment"
	"github.com/corpusvault/corpusvault/internal/store"
	"github.com/corpusvault/corpusvault/internal/store/memvec"
	"github.com/corpusvault/corpusvault/internal/store/sqlitevec"
)

// Segmenter resolves a config.Config.Segmenter value into a
// segment.Segmenter.
func Segmenter(name string) (segment.Segmenter, error) {
	switch name {
	case "", "code":
		return segment.NewCode(), nil
	default:
		return nil, fmt.Errorf("unknown segmenter %q", name)
	}
}

// Embedder resolves a config.Config.Embedder value into an embed.Embedder.
func Embedder(name string) (embed.Embedder, error) {
	switch name {
	case "", "static":
		return embed.NewStatic(), nil
	default:
		return nil, fmt.Errorf("unknown embedder %q", name)
	}
}

// Reranker resolves a config.Config.Reranker value into a rerank.Reranker.
// nil is a valid return only in the sense that callers distinguish "noop"
// (always takes the reranking branch, order-preserving) from "none" — this
// registry never returns (nil, nil); Query Engine construction passes nil
// explicitly when it wants the RRF branch instead.
func Reranker(name string) (rerank.Reranker, error) {
	switch name {
	case "", "noop":
		return rerank.NoOp{}, nil
	default:
		return nil, fmt.Errorf("unknown reranker %q", name)
	}
}

// Splitter resolves a config.Config.Splitter value into a chunk.Splitter.
func Splitter(name string) (chunk.Splitter, error) {
	switch name {
	case "", "text":
		return chunk.NewTextSplitter(), nil
	default:
		return nil, fmt.Errorf("unknown splitter %q", name)
	}
}

// Store resolves cfg's db_type into a store.Store backend, matching
// spec.md §4.1's db_type selection. seg and emb are handed to the sqlite
// backend, whose triggers call them; the memory backend takes neither.
func Store(cfg *config.Config, seg segment.Segmenter, emb embed.Embedder) (store.Store, error) {
	switch cfg.DBType {
	case "sqlite":
		return sqlitevec.Open(cfg.DBPath(), seg, emb)
	case "memory":
		return memvec.Open(cfg.DBPath())
	default:
		return nil, fmt.Errorf("unknown db_type %q", cfg.DBType)
	}
}
