// Package indexmanager implements the Index Manager (spec.md §4.2): it
// turns (source, text) pairs into persisted, indexed chunks with minimal
// embedding work, owning the Store's write path.
package indexmanager

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/corpusvault/corpusvault/internal/chunk"
	"github.com/corpusvault/corpusvault/internal/embed"
	"github.com/corpusvault/corpusvault/internal/errkind"
	"github.com/corpusvault/corpusvault/internal/segment"
	"github.com/corpusvault/corpusvault/internal/store"
)

// Doc is a (source, text) pair submitted to Build.
type Doc struct {
	Source string
	Text   string
}

// EmbeddingCache is the embedding cache the Search Facade owns (spec.md
// §4.4) and shares with the Manager, so embeddings computed for one
// caller's Build are visible to every later Build or Search. It is keyed
// by content, not by vault, so the Manager never invalidates entries from
// it; dropping one vault's chunks does not invalidate embeddings computed
// for that content elsewhere.
type EmbeddingCache interface {
	Get(content string) ([]float32, bool)
	Set(content string, vec []float32)
}

// Manager coordinates chunking, embedding batching, deduplication of work,
// and writes to a Store. It owns the write lock implicitly by serializing
// each Build call's Store.Insert behind a single call.
type Manager struct {
	store     store.Store
	splitter  chunk.Splitter
	segmenter segment.Segmenter
	embedder  embed.Embedder
	cache     EmbeddingCache

	group singleflight.Group
}

// New constructs a Manager. cache is typically the Search Facade's shared
// embedding cache (spec.md §4.4), not a Manager-local one.
func New(st store.Store, splitter chunk.Splitter, seg segment.Segmenter, emb embed.Embedder, cache EmbeddingCache) *Manager {
	return &Manager{
		store:     st,
		splitter:  splitter,
		segmenter: seg,
		embedder:  emb,
		cache:     cache,
	}
}

type pendingChunk struct {
	source  string
	partID  string
	content string
}

// Build implements spec.md §4.2's build operation. An empty docs list is a
// silent no-op. A document whose splitter call fails is logged and
// skipped; the rest of the batch still proceeds. resetDB mirrors
// original_source's build_index(reset_db=True): it resets the whole
// Store, not just vault, before indexing proceeds.
func (m *Manager) Build(ctx context.Context, docs []Doc, vault string, updateExisting, resetDB bool) error {
	if resetDB {
		if err := m.store.Reset(ctx); err != nil {
			return errkind.Wrap(errkind.StoreIO, err)
		}
	}
	if len(docs) == 0 {
		return nil
	}

	var pending []pendingChunk
	for _, d := range docs {
		if d.Source == "" || d.Text == "" {
			continue
		}

		has, err := m.store.HasSource(ctx, vault, d.Source)
		if err != nil {
			return errkind.Wrap(errkind.StoreIO, err)
		}
		if has {
			if !updateExisting {
				continue
			}
			if err := m.store.DeleteSource(ctx, vault, d.Source); err != nil {
				return errkind.Wrap(errkind.StoreIO, err)
			}
		}

		parts, err := m.split(ctx, d)
		if err != nil {
			slog.Warn("skipping document: splitter failed",
				slog.String("source", d.Source),
				slog.String("error", err.Error()))
			continue
		}
		pending = append(pending, parts...)
	}

	if len(pending) == 0 {
		return nil
	}

	if err := m.ensureEmbeddings(ctx, pending); err != nil {
		return errkind.Wrap(errkind.ExternalModule, err)
	}

	now := time.Now()
	inserts := make([]store.InsertChunk, 0, len(pending))
	for _, p := range pending {
		vec, ok := m.cache.Get(p.content)
		if !ok {
			return errkind.New(errkind.ExternalModule, "embedding missing from cache after batch embed for source "+p.source, nil)
		}
		inserts = append(inserts, store.InsertChunk{
			Source:    p.source,
			PartID:    p.partID,
			Content:   p.content,
			Tokens:    m.segmenter.Segment(p.content),
			Vector:    vec,
			CreatedAt: now,
		})
	}

	if err := m.store.Insert(ctx, vault, inserts); err != nil {
		return errkind.Wrap(errkind.StoreIO, err)
	}
	if err := m.store.RebuildFTS(ctx, vault); err != nil {
		return errkind.Wrap(errkind.StoreIO, err)
	}
	return nil
}

// split turns one document's text into (part_id, content) pairs via the
// configured Splitter.
func (m *Manager) split(ctx context.Context, d Doc) ([]pendingChunk, error) {
	chunks, err := m.splitter.Split(ctx, &chunk.FileInput{Path: d.Source, Content: []byte(d.Text)})
	if err != nil {
		return nil, err
	}
	out := make([]pendingChunk, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, pendingChunk{source: d.Source, partID: c.ID, content: c.Content})
	}
	return out, nil
}

// ensureEmbeddings collects content not already in the cache, deduplicates
// it, and requests it in a single batch. Concurrent Build calls racing on
// an identical uncached set coalesce onto one in-flight EmbedBatch call via
// singleflight, matching SPEC_FULL.md §4.2's dedup-across-callers
// requirement; duplicate content within one call is deduplicated before
// the batch is ever formed, matching spec.md's literal "embedded once".
func (m *Manager) ensureEmbeddings(ctx context.Context, pending []pendingChunk) error {
	seen := make(map[string]struct{}, len(pending))
	var uncached []string
	for _, p := range pending {
		if _, ok := m.cache.Get(p.content); ok {
			continue
		}
		if _, dup := seen[p.content]; dup {
			continue
		}
		seen[p.content] = struct{}{}
		uncached = append(uncached, p.content)
	}
	if len(uncached) == 0 {
		return nil
	}

	key := batchKey(uncached)
	v, err, _ := m.group.Do(key, func() (any, error) {
		return m.embedder.EmbedBatch(ctx, uncached)
	})
	if err != nil {
		return err
	}

	vectors := v.([][]float32)
	for i, content := range uncached {
		m.cache.Set(content, vectors[i])
	}
	return nil
}

// batchKey derives a stable singleflight key from an unordered content set
// so two Build calls requesting the same uncached content (regardless of
// the order their callers happened to enumerate it in) collapse onto one
// in-flight call.
func batchKey(contents []string) string {
	sorted := append([]string(nil), contents...)
	sort.Strings(sorted)
	h := sha256.New()
	for _, c := range sorted {
		h.Write([]byte(c))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// RemoveSource implements spec.md §4.2's remove_source operation.
func (m *Manager) RemoveSource(ctx context.Context, vault, source string) error {
	if err := m.store.DeleteSource(ctx, vault, source); err != nil {
		return errkind.Wrap(errkind.StoreIO, err)
	}
	return nil
}
