package query

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corpusvault/corpusvault/internal/execpool"
	"github.com/corpusvault/corpusvault/internal/store"
)

type fakeStore struct {
	ftsResults []store.Result
	ftsErr     error
	vecResults []store.Result
	vecErr     error
}

func (f *fakeStore) EnsureVault(context.Context, string, int) error { return nil }
func (f *fakeStore) Insert(context.Context, string, []store.InsertChunk) error { return nil }
func (f *fakeStore) HasSource(context.Context, string, string) (bool, error) { return false, nil }
func (f *fakeStore) DeleteSource(context.Context, string, string) error { return nil }
func (f *fakeStore) RebuildFTS(context.Context, string) error { return nil }
func (f *fakeStore) DropVault(context.Context, string) error { return nil }
func (f *fakeStore) Reset(context.Context) error { return nil }
func (f *fakeStore) Close() error { return nil }

func (f *fakeStore) SearchFTS(context.Context, string, []string, int) ([]store.Result, error) {
	return f.ftsResults, f.ftsErr
}

func (f *fakeStore) SearchVec(context.Context, string, []float32, int) ([]store.Result, error) {
	return f.vecResults, f.vecErr
}

var _ store.Store = (*fakeStore)(nil)

type fakeSegmenter struct{}

func (fakeSegmenter) Segment(text string) []string { return []string{text} }

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f fakeEmbedder) Embed(context.Context, string) ([]float32, error) { return f.vec, f.err }
func (f fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vec
	}
	return out, f.err
}
func (f fakeEmbedder) Dimensions() int           { return len(f.vec) }
func (f fakeEmbedder) ModelName() string         { return "fake" }
func (f fakeEmbedder) Available(context.Context) bool { return true }
func (f fakeEmbedder) Close() error              { return nil }

func TestEngine_Search_EmptyBothListsReturnsEmpty(t *testing.T) {
	pool := execpool.New(1)
	defer pool.Close()

	e := New(&fakeStore{}, pool, fakeSegmenter{}, fakeEmbedder{vec: []float32{1, 0}}, nil, Weights{FTS: 1, Vec: 1}, 60)
	results, err := e.Search(context.Background(), "notes", "fox", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestEngine_Search_FusesBothArms(t *testing.T) {
	pool := execpool.New(1)
	defer pool.Close()

	st := &fakeStore{
		ftsResults: []store.Result{{ID: 1, Content: "fox"}},
		vecResults: []store.Result{{ID: 1, Content: "fox"}, {ID: 2, Content: "dog"}},
	}
	e := New(st, pool, fakeSegmenter{}, fakeEmbedder{vec: []float32{1, 0}}, nil, Weights{FTS: 1, Vec: 1}, 60)

	results, err := e.Search(context.Background(), "notes", "fox", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, int64(1), results[0].ID, "id in both lists should rank first")
}

func TestEngine_Search_SingleArmFailureDegrades(t *testing.T) {
	pool := execpool.New(1)
	defer pool.Close()

	st := &fakeStore{
		ftsResults: []store.Result{{ID: 1, Content: "fox"}},
		vecErr:     errors.New("vector backend down"),
	}
	e := New(st, pool, fakeSegmenter{}, fakeEmbedder{vec: []float32{1, 0}}, nil, Weights{FTS: 1, Vec: 1}, 60)

	results, err := e.Search(context.Background(), "notes", "fox", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, int64(1), results[0].ID)
}

func TestEngine_Search_SingleArmFailureLogsWarning(t *testing.T) {
	pool := execpool.New(1)
	defer pool.Close()

	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn})))
	defer slog.SetDefault(prev)

	st := &fakeStore{
		ftsResults: []store.Result{{ID: 1, Content: "fox"}},
		vecErr:     errors.New("vector backend down"),
	}
	e := New(st, pool, fakeSegmenter{}, fakeEmbedder{vec: []float32{1, 0}}, nil, Weights{FTS: 1, Vec: 1}, 60)

	_, err := e.Search(context.Background(), "notes", "fox", 10)
	require.NoError(t, err)

	logged := buf.String()
	assert.Contains(t, logged, "vector search failed")
	assert.Contains(t, logged, "notes")
	assert.Contains(t, logged, "vector backend down")
}

func TestEngine_Search_BothArmsFailingSurfacesError(t *testing.T) {
	pool := execpool.New(1)
	defer pool.Close()

	st := &fakeStore{
		ftsErr: errors.New("lexical backend down"),
		vecErr: errors.New("vector backend down"),
	}
	e := New(st, pool, fakeSegmenter{}, fakeEmbedder{vec: []float32{1, 0}}, nil, Weights{FTS: 1, Vec: 1}, 60)

	_, err := e.Search(context.Background(), "notes", "fox", 10)
	require.Error(t, err)
}

type fakeReranker struct{}

func (fakeReranker) Rerank(_ context.Context, _ string, candidates []string) ([]float64, error) {
	scores := make([]float64, len(candidates))
	for i := range candidates {
		scores[i] = float64(len(candidates) - i) // reverse incoming order
	}
	return scores, nil
}
func (fakeReranker) Available(context.Context) bool { return true }
func (fakeReranker) Close() error                   { return nil }

func TestEngine_Search_RerankerBranchUsedWhenConfigured(t *testing.T) {
	pool := execpool.New(1)
	defer pool.Close()

	st := &fakeStore{
		ftsResults: []store.Result{{ID: 1, Content: "a"}, {ID: 2, Content: "b"}},
	}
	e := New(st, pool, fakeSegmenter{}, fakeEmbedder{vec: []float32{1, 0}}, fakeReranker{}, Weights{FTS: 1, Vec: 1}, 60)

	results, err := e.Search(context.Background(), "notes", "q", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	// fakeReranker reverses order: id 2 (second candidate) scores higher.
	assert.Equal(t, int64(2), results[0].ID)
}
