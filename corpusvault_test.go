package corpusvault

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corpusvault/corpusvault/internal/chunk"
	"github.com/corpusvault/corpusvault/internal/config"
	"github.com/corpusvault/corpusvault/internal/errkind"
	"github.com/corpusvault/corpusvault/internal/execpool"
	"github.com/corpusvault/corpusvault/internal/indexmanager"
	"github.com/corpusvault/corpusvault/internal/query"
	"github.com/corpusvault/corpusvault/internal/store"
)

// fakeEmbedder is a deterministic stand-in used only to keep New/ensure
// from touching the registry's real static embedder.
type fakeEmbedder struct{ dim int }

func (f fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return make([]float32, f.dim), nil
}

func (f fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, f.dim)
	}
	return out, nil
}

func (f fakeEmbedder) Dimensions() int { return f.dim }

func (f fakeEmbedder) ModelName() string { return "fake" }

func (f fakeEmbedder) Available(context.Context) bool { return true }

func (f fakeEmbedder) Close() error { return nil }

type fakeSegmenter struct{}

func (fakeSegmenter) Segment(text string) []string { return []string{text} }

type lineSplitter struct{}

func (lineSplitter) Split(ctx context.Context, file *chunk.FileInput) ([]*chunk.Chunk, error) {
	return []*chunk.Chunk{{ID: "p1", Content: string(file.Content)}}, nil
}

func (lineSplitter) SupportedExtensions() []string { return []string{".txt"} }

type fakeStore struct {
	mu             sync.Mutex
	ensuredVaults  []string
	ensureErr      error
	dropVaultCalls []string
	resetAllCalls  int
	resetErr       error
	closeCalled    bool
	closeErr       error
	insertErr      error
	ftsResults     []store.Result
	ftsErr         error
	vecResults     []store.Result
	vecErr         error
}

func (s *fakeStore) EnsureVault(ctx context.Context, vault string, dim int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ensureErr != nil {
		return s.ensureErr
	}
	s.ensuredVaults = append(s.ensuredVaults, vault)
	return nil
}

func (s *fakeStore) Insert(ctx context.Context, vault string, chunks []store.InsertChunk) error {
	return s.insertErr
}

func (s *fakeStore) HasSource(ctx context.Context, vault, source string) (bool, error) {
	return false, nil
}

func (s *fakeStore) DeleteSource(ctx context.Context, vault, source string) error { return nil }

func (s *fakeStore) RebuildFTS(ctx context.Context, vault string) error { return nil }

func (s *fakeStore) SearchFTS(ctx context.Context, vault string, queryTokens []string, topN int) ([]store.Result, error) {
	return s.ftsResults, s.ftsErr
}

func (s *fakeStore) SearchVec(ctx context.Context, vault string, queryVec []float32, topN int) ([]store.Result, error) {
	return s.vecResults, s.vecErr
}

func (s *fakeStore) DropVault(ctx context.Context, vault string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resetErr != nil {
		return s.resetErr
	}
	s.dropVaultCalls = append(s.dropVaultCalls, vault)
	return nil
}

func (s *fakeStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resetErr != nil {
		return s.resetErr
	}
	s.resetAllCalls++
	return nil
}

func (s *fakeStore) Close() error {
	s.closeCalled = true
	return s.closeErr
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.New()
	cfg.DBType = "memory"
	cfg.DataDir = t.TempDir()
	cfg.DBName = "engine_test.ddb"
	return *cfg
}

func TestNew_ResolvesDefaultsThroughRegistry(t *testing.T) {
	e, err := New(testConfig(t))
	require.NoError(t, err)
	assert.NotNil(t, e.segmenter)
	assert.NotNil(t, e.embedder)
	assert.NotNil(t, e.reranker)
	assert.NotNil(t, e.splitter)
}

func TestNew_RejectsUnknownModuleSelector(t *testing.T) {
	cfg := testConfig(t)
	cfg.Segmenter = "bogus"
	_, err := New(cfg)
	require.Error(t, err)
	assert.True(t, errkind.Is(err, errkind.Usage))
}

func TestNew_OptionsOverrideRegistryDefaults(t *testing.T) {
	emb := fakeEmbedder{dim: 3}
	e, err := New(testConfig(t), WithEmbedder(emb), WithSegmenter(fakeSegmenter{}), WithSplitter(lineSplitter{}))
	require.NoError(t, err)
	assert.Equal(t, emb, e.embedder)
	assert.Equal(t, fakeSegmenter{}, e.segmenter)
	assert.Equal(t, lineSplitter{}, e.splitter)
}

func TestWithReranker_NilForcesRRFBranchEvenWithConfiguredReranker(t *testing.T) {
	e, err := New(testConfig(t), WithReranker(nil))
	require.NoError(t, err)
	assert.Nil(t, e.reranker)
	assert.True(t, e.rerankerSet)
}

// engineWithFakeStore builds an Engine wired directly to st, pre-consuming
// initOnce so ensure() never calls through to the registry.
func engineWithFakeStore(t *testing.T, st *fakeStore) *Engine {
	t.Helper()
	cfg := testConfig(t)
	e, err := New(cfg, WithEmbedder(fakeEmbedder{dim: 3}), WithSegmenter(fakeSegmenter{}), WithSplitter(lineSplitter{}))
	require.NoError(t, err)

	e.store = st
	e.pool = execpool.New(1)
	e.manager = indexmanager.New(st, e.splitter, e.segmenter, e.embedder, e.embedCache)
	e.queryEng = query.New(st, e.pool, e.segmenter, e.embedder, e.reranker,
		query.Weights{FTS: e.cfg.WeightFTS, Vec: e.cfg.WeightVec}, e.cfg.K)
	e.initOnce.Do(func() {})

	return e
}

func TestBuild_CreatesVaultOnFirstUse(t *testing.T) {
	st := &fakeStore{}
	e := engineWithFakeStore(t, st)

	err := e.Build(context.Background(), []Doc{{Source: "a.txt", Text: "hello"}}, "", false, false)
	require.NoError(t, err)
	assert.Contains(t, st.ensuredVaults, "Core")
}

func TestBuild_VaultExistenceCachedAfterFirstTouch(t *testing.T) {
	st := &fakeStore{}
	e := engineWithFakeStore(t, st)

	require.NoError(t, e.Build(context.Background(), []Doc{{Source: "a.txt", Text: "x"}}, "v1", false, false))
	require.NoError(t, e.Build(context.Background(), []Doc{{Source: "b.txt", Text: "y"}}, "v1", false, false))
	assert.Len(t, st.ensuredVaults, 1, "second Build on the same vault must not re-call EnsureVault")
}

func TestSearch_TouchesUnseenVaultRatherThanErroring(t *testing.T) {
	st := &fakeStore{}
	e := engineWithFakeStore(t, st)

	results, err := e.Search(context.Background(), "hello", "new-vault", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Contains(t, st.ensuredVaults, "new-vault")
}

func TestSearch_EmptyVaultNameUsesDefault(t *testing.T) {
	st := &fakeStore{}
	e := engineWithFakeStore(t, st)

	_, err := e.Search(context.Background(), "hello", "", 5)
	require.NoError(t, err)
	assert.Contains(t, st.ensuredVaults, "Core")
}

func TestDropVault_ForgetsVaultExistenceButKeepsEmbeddingCache(t *testing.T) {
	st := &fakeStore{}
	e := engineWithFakeStore(t, st)

	require.NoError(t, e.Build(context.Background(), []Doc{{Source: "a.txt", Text: "x"}}, "v1", false, false))
	e.embedCache.Set("x", []float32{1, 2, 3})

	require.NoError(t, e.DropVault(context.Background(), "v1"))
	assert.Contains(t, st.dropVaultCalls, "v1")

	e.vaultMu.Lock()
	_, known := e.vaultExists["v1"]
	e.vaultMu.Unlock()
	assert.False(t, known, "DropVault must clear the vault-existence cache entry")

	vec, ok := e.embedCache.Get("x")
	require.True(t, ok, "embedding cache must survive DropVault")
	assert.Equal(t, []float32{1, 2, 3}, vec)
}

func TestReset_DestroysAllVaultsButKeepsEmbeddingCache(t *testing.T) {
	st := &fakeStore{}
	e := engineWithFakeStore(t, st)

	require.NoError(t, e.Build(context.Background(), []Doc{{Source: "a.txt", Text: "x"}}, "v1", false, false))
	require.NoError(t, e.Build(context.Background(), []Doc{{Source: "b.txt", Text: "y"}}, "v2", false, false))
	e.embedCache.Set("x", []float32{1, 2, 3})

	require.NoError(t, e.Reset(context.Background()))
	assert.Equal(t, 1, st.resetAllCalls)

	e.vaultMu.Lock()
	n := len(e.vaultExists)
	e.vaultMu.Unlock()
	assert.Zero(t, n, "Reset must clear every cached vault-existence entry")

	vec, ok := e.embedCache.Get("x")
	require.True(t, ok, "embedding cache must survive Reset")
	assert.Equal(t, []float32{1, 2, 3}, vec)
}

func TestRemoveSource_Forwards(t *testing.T) {
	st := &fakeStore{}
	e := engineWithFakeStore(t, st)

	err := e.RemoveSource(context.Background(), "v1", "a.txt")
	assert.NoError(t, err)
}

func TestEnsureVaultExists_WrapsStoreSchemaError(t *testing.T) {
	st := &fakeStore{ensureErr: errors.New("dimension mismatch")}
	e := engineWithFakeStore(t, st)

	_, err := e.Search(context.Background(), "hello", "v1", 5)
	require.Error(t, err)
	assert.True(t, errkind.Is(err, errkind.StoreSchema))
}

func TestClose_IsSafeBeforeEnsure(t *testing.T) {
	e, err := New(testConfig(t))
	require.NoError(t, err)
	assert.NoError(t, e.Close())
}

func TestClose_ClosesUnderlyingStore(t *testing.T) {
	st := &fakeStore{}
	e := engineWithFakeStore(t, st)
	require.NoError(t, e.Close())
	assert.True(t, st.closeCalled)
}
