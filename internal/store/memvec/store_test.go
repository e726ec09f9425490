package memvec

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corpusvault/corpusvault/internal/store"
)

func vec(vals ...float32) []float32 { return vals }

func TestStore_EnsureVault_RejectsReservedSuffix(t *testing.T) {
	s, err := Open("")
	require.NoError(t, err)
	defer s.Close()

	err = s.EnsureVault(context.Background(), "notes_fts", 3)
	require.Error(t, err)
}

func TestStore_EnsureVault_RejectsDimensionChange(t *testing.T) {
	s, err := Open("")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.EnsureVault(context.Background(), "notes", 3))
	err = s.EnsureVault(context.Background(), "notes", 4)
	require.Error(t, err)
}

func TestStore_Insert_And_SearchFTS(t *testing.T) {
	ctx := context.Background()
	s, err := Open("")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.EnsureVault(ctx, "notes", 3))
	require.NoError(t, s.Insert(ctx, "notes", []store.InsertChunk{
		{Source: "doc1", PartID: "0", Content: "the quick brown fox", Vector: vec(1, 0, 0)},
		{Source: "doc2", PartID: "0", Content: "jumps over the lazy dog", Vector: vec(0, 1, 0)},
	}))

	results, err := s.SearchFTS(ctx, "notes", []string{"fox"}, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Contains(t, results[0].Content, "fox")
}

func TestStore_Insert_And_SearchVec(t *testing.T) {
	ctx := context.Background()
	s, err := Open("")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.EnsureVault(ctx, "notes", 3))
	require.NoError(t, s.Insert(ctx, "notes", []store.InsertChunk{
		{Source: "doc1", PartID: "0", Content: "alpha", Vector: vec(1, 0, 0)},
		{Source: "doc2", PartID: "0", Content: "beta", Vector: vec(0, 1, 0)},
	}))

	results, err := s.SearchVec(ctx, "notes", vec(0.9, 0.1, 0), 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "alpha", results[0].Content)
}

func TestStore_EnsureVault_RehydratesIndicesOnReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "store.ddb")

	s1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s1.EnsureVault(ctx, "notes", 3))
	require.NoError(t, s1.Insert(ctx, "notes", []store.InsertChunk{
		{Source: "doc1", PartID: "0", Content: "the quick brown fox", Vector: vec(1, 0, 0)},
		{Source: "doc2", PartID: "0", Content: "alpha beta", Vector: vec(0, 1, 0)},
	}))
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()
	require.NoError(t, s2.EnsureVault(ctx, "notes", 3))

	ftsResults, err := s2.SearchFTS(ctx, "notes", []string{"fox"}, 10)
	require.NoError(t, err)
	require.Len(t, ftsResults, 1)
	assert.Contains(t, ftsResults[0].Content, "fox")

	vecResults, err := s2.SearchVec(ctx, "notes", vec(0.9, 0.1, 0), 1)
	require.NoError(t, err)
	require.Len(t, vecResults, 1)
	assert.Contains(t, vecResults[0].Content, "fox")
}

func TestStore_Insert_RejectsDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	s, err := Open("")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.EnsureVault(ctx, "notes", 3))
	err = s.Insert(ctx, "notes", []store.InsertChunk{
		{Source: "doc1", PartID: "0", Content: "alpha", Vector: vec(1, 0)},
	})
	require.Error(t, err)

	has, err := s.HasSource(ctx, "notes", "doc1")
	require.NoError(t, err)
	assert.False(t, has, "partial insert must roll back")
}

func TestStore_HasSource_MissingVaultReturnsFalseNil(t *testing.T) {
	s, err := Open("")
	require.NoError(t, err)
	defer s.Close()

	has, err := s.HasSource(context.Background(), "ghost", "doc1")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestStore_DeleteSource_RemovesFromBothIndices(t *testing.T) {
	ctx := context.Background()
	s, err := Open("")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.EnsureVault(ctx, "notes", 3))
	require.NoError(t, s.Insert(ctx, "notes", []store.InsertChunk{
		{Source: "doc1", PartID: "0", Content: "fox", Vector: vec(1, 0, 0)},
	}))
	require.NoError(t, s.DeleteSource(ctx, "notes", "doc1"))

	has, err := s.HasSource(ctx, "notes", "doc1")
	require.NoError(t, err)
	assert.False(t, has)

	results, err := s.SearchFTS(ctx, "notes", []string{"fox"}, 10)
	require.NoError(t, err)
	assert.Empty(t, results)

	vresults, err := s.SearchVec(ctx, "notes", vec(1, 0, 0), 10)
	require.NoError(t, err)
	assert.Empty(t, vresults)
}

func TestStore_DropVault_DropsVaultEntirely(t *testing.T) {
	ctx := context.Background()
	s, err := Open("")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.EnsureVault(ctx, "notes", 3))
	require.NoError(t, s.Insert(ctx, "notes", []store.InsertChunk{
		{Source: "doc1", PartID: "0", Content: "fox", Vector: vec(1, 0, 0)},
	}))
	require.NoError(t, s.DropVault(ctx, "notes"))

	has, err := s.HasSource(ctx, "notes", "doc1")
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, s.EnsureVault(ctx, "notes", 3))
	results, err := s.SearchFTS(ctx, "notes", []string{"fox"}, 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestStore_Reset_DropsEveryVault(t *testing.T) {
	ctx := context.Background()
	s, err := Open("")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.EnsureVault(ctx, "notes", 3))
	require.NoError(t, s.Insert(ctx, "notes", []store.InsertChunk{
		{Source: "doc1", PartID: "0", Content: "fox", Vector: vec(1, 0, 0)},
	}))
	require.NoError(t, s.EnsureVault(ctx, "other", 3))
	require.NoError(t, s.Insert(ctx, "other", []store.InsertChunk{
		{Source: "doc2", PartID: "0", Content: "bear", Vector: vec(0, 1, 0)},
	}))

	require.NoError(t, s.Reset(ctx))

	has, err := s.HasSource(ctx, "notes", "doc1")
	require.NoError(t, err)
	assert.False(t, has)
	has, err = s.HasSource(ctx, "other", "doc2")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestStore_RebuildFTS_RestoresSearchability(t *testing.T) {
	ctx := context.Background()
	s, err := Open("")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.EnsureVault(ctx, "notes", 3))
	require.NoError(t, s.Insert(ctx, "notes", []store.InsertChunk{
		{Source: "doc1", PartID: "0", Content: "fox", Vector: vec(1, 0, 0)},
	}))
	require.NoError(t, s.RebuildFTS(ctx, "notes"))

	results, err := s.SearchFTS(ctx, "notes", []string{"fox"}, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
}
