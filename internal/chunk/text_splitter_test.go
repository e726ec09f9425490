package chunk

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextSplitter_Split_WindowsWithOverlap(t *testing.T) {
	s := &TextSplitter{MaxChars: 10, OverlapChars: 2}
	content := strings.Repeat("a", 25)

	chunks, err := s.Split(context.Background(), &FileInput{Path: "notes.txt", Content: []byte(content)})
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	for _, c := range chunks {
		assert.LessOrEqual(t, len([]rune(c.Content)), 10)
		assert.Equal(t, ContentTypeText, c.ContentType)
	}

	var rebuilt strings.Builder
	rebuilt.WriteString(chunks[0].Content)
	for _, c := range chunks[1:] {
		rebuilt.WriteString(c.Content[2:])
	}
	assert.Equal(t, content, rebuilt.String())
}

func TestTextSplitter_Split_EmptyContentReturnsNoChunks(t *testing.T) {
	s := NewTextSplitter()
	chunks, err := s.Split(context.Background(), &FileInput{Path: "empty.txt", Content: []byte("")})
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestTextSplitter_Split_ShortContentIsSingleChunk(t *testing.T) {
	s := NewTextSplitter()
	chunks, err := s.Split(context.Background(), &FileInput{Path: "short.txt", Content: []byte("hello world")})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "hello world", chunks[0].Content)
}
