package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corpusvault/corpusvault/internal/store"
)

func TestRRFFuse_EmptyBothReturnsEmptySlice(t *testing.T) {
	got := RRFFuse(nil, nil, Weights{FTS: 1, Vec: 1}, 60)
	require.NotNil(t, got)
	assert.Empty(t, got)
}

func TestRRFFuse_NoPaddingForPartialListIDs(t *testing.T) {
	lexical := []store.Result{{ID: 1, Content: "a"}}
	vector := []store.Result{{ID: 2, Content: "b"}}

	got := RRFFuse(lexical, vector, Weights{FTS: 1, Vec: 1}, 60)
	require.Len(t, got, 2)

	byID := map[int64]Result{}
	for _, r := range got {
		byID[r.ID] = r
	}

	// Each id appears in exactly one list, at rank 0: score = w/(k+0+1).
	want := 1.0 / 61.0
	assert.InDelta(t, want, byID[1].Score, 1e-9)
	assert.InDelta(t, want, byID[2].Score, 1e-9)
}

func TestRRFFuse_SumsContributionsWhenIDInBothLists(t *testing.T) {
	lexical := []store.Result{{ID: 1, Content: "a"}}
	vector := []store.Result{{ID: 1, Content: "a"}}

	got := RRFFuse(lexical, vector, Weights{FTS: 1, Vec: 1}, 60)
	require.Len(t, got, 1)
	want := 1.0/61.0 + 1.0/61.0
	assert.InDelta(t, want, got[0].Score, 1e-9)
}

func TestRRFFuse_OrdersByScoreDescending(t *testing.T) {
	lexical := []store.Result{{ID: 1, Content: "a"}, {ID: 2, Content: "b"}}
	vector := []store.Result{{ID: 2, Content: "b"}}

	got := RRFFuse(lexical, vector, Weights{FTS: 1, Vec: 1}, 60)
	require.Len(t, got, 2)
	assert.Equal(t, int64(2), got[0].ID, "id 2 appears in both lists, should outrank id 1")
}

func TestRRFFuse_SeedScenarioRanksByFusedScore(t *testing.T) {
	// FTS=[x,y,z], VEC=[y,z,w], k=60, w_fts=w_vec=1.
	lexical := []store.Result{{ID: 1, Content: "x"}, {ID: 2, Content: "y"}, {ID: 3, Content: "z"}}
	vector := []store.Result{{ID: 2, Content: "y"}, {ID: 3, Content: "z"}, {ID: 4, Content: "w"}}

	got := RRFFuse(lexical, vector, Weights{FTS: 1, Vec: 1}, 60)
	require.Len(t, got, 4)

	order := make([]int64, len(got))
	for i, r := range got {
		order[i] = r.ID
	}
	assert.Equal(t, []int64{2, 3, 1, 4}, order, "expected ranking [y, z, x, w]")

	byID := map[int64]Result{}
	for _, r := range got {
		byID[r.ID] = r
	}
	assert.InDelta(t, 1.0/61.0, byID[1].Score, 1e-9)          // x
	assert.InDelta(t, 1.0/62.0+1.0/61.0, byID[2].Score, 1e-9) // y
	assert.InDelta(t, 1.0/63.0+1.0/62.0, byID[3].Score, 1e-9) // z
	assert.InDelta(t, 1.0/63.0, byID[4].Score, 1e-9)          // w
}

func TestRRFFuse_RespectsWeights(t *testing.T) {
	lexical := []store.Result{{ID: 1, Content: "a"}}
	vector := []store.Result{{ID: 2, Content: "b"}}

	got := RRFFuse(lexical, vector, Weights{FTS: 2, Vec: 0.5}, 60)
	byID := map[int64]Result{}
	for _, r := range got {
		byID[r.ID] = r
	}
	assert.Greater(t, byID[1].Score, byID[2].Score)
}
