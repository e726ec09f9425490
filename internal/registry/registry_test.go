package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corpusvault/corpusvault/internal/config"
)

func TestSegmenter_DefaultAndNamed(t *testing.T) {
	for _, name := range []string{"", "code"} {
		s, err := Segmenter(name)
		require.NoError(t, err)
		assert.NotNil(t, s)
	}
}

func TestSegmenter_UnknownNameErrors(t *testing.T) {
	_, err := Segmenter("bogus")
	assert.Error(t, err)
}

func TestEmbedder_DefaultAndNamed(t *testing.T) {
	e, err := Embedder("static")
	require.NoError(t, err)
	assert.Greater(t, e.Dimensions(), 0)
}

func TestReranker_DefaultIsNoOp(t *testing.T) {
	r, err := Reranker("")
	require.NoError(t, err)
	scores, err := r.Rerank(context.Background(), "q", []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, scores, 2)
}

func TestSplitter_AllVariantsResolve(t *testing.T) {
	for _, name := range []string{"", "text"} {
		s, err := Splitter(name)
		require.NoError(t, err, name)
		assert.NotNil(t, s)
	}
}

func TestSplitter_UnknownNameErrors(t *testing.T) {
	_, err := Splitter("code")
	assert.Error(t, err)
}

func TestStore_UnknownDBTypeErrors(t *testing.T) {
	cfg := config.New()
	cfg.DBType = "postgres"
	seg, _ := Segmenter("")
	emb, _ := Embedder("")
	_, err := Store(cfg, seg, emb)
	assert.Error(t, err)
}

func TestStore_MemoryBackendOpens(t *testing.T) {
	cfg := config.New()
	cfg.DBType = "memory"
	cfg.DataDir = t.TempDir()
	cfg.DBName = "test.ddb"
	seg, _ := Segmenter("")
	emb, _ := Embedder("")

	st, err := Store(cfg, seg, emb)
	require.NoError(t, err)
	defer st.Close()
}
