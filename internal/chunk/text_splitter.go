package chunk

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// TextSplitter is a fixed-size overlapping window splitter over runes, used
// for plain-text documents that carry no code or markdown structure to
// split along. Grounded in the character-count windowing approach of
// UglyRAG's own REGEX split module, simplified to fixed windows since no
// code/markdown collaborator is involved.
type TextSplitter struct {
	// MaxChars is the window size in runes. Zero means
	// DefaultMaxChunkTokens*TokensPerChar.
	MaxChars int

	// OverlapChars is the overlap between consecutive windows, in runes.
	// Zero means no overlap; a negative value, or one not smaller than the
	// window size, means DefaultOverlapTokens*TokensPerChar.
	OverlapChars int
}

// NewTextSplitter builds a TextSplitter using the package's default chunk
// and overlap sizes.
func NewTextSplitter() *TextSplitter {
	return &TextSplitter{
		MaxChars:     DefaultMaxChunkTokens * TokensPerChar,
		OverlapChars: DefaultOverlapTokens * TokensPerChar,
	}
}

func (s *TextSplitter) SupportedExtensions() []string {
	return []string{".txt", ".rst", ".adoc", ".log"}
}

func (s *TextSplitter) Split(ctx context.Context, file *FileInput) ([]*Chunk, error) {
	maxChars := s.MaxChars
	if maxChars <= 0 {
		maxChars = DefaultMaxChunkTokens * TokensPerChar
	}
	overlap := s.OverlapChars
	if overlap < 0 || overlap >= maxChars {
		overlap = DefaultOverlapTokens * TokensPerChar
	}

	runes := []rune(strings.TrimRight(string(file.Content), "\n"))
	if len(runes) == 0 {
		return nil, nil
	}

	now := time.Now()
	step := maxChars - overlap
	var chunks []*Chunk

	for start := 0; start < len(runes); start += step {
		end := start + maxChars
		if end > len(runes) {
			end = len(runes)
		}
		content := string(runes[start:end])

		startLine := 1 + strings.Count(string(runes[:start]), "\n")
		endLine := startLine + strings.Count(content, "\n")

		chunks = append(chunks, &Chunk{
			ID:          textChunkID(file.Path, startLine, start),
			FilePath:    file.Path,
			Content:     content,
			RawContent:  content,
			ContentType: ContentTypeText,
			Language:    file.Language,
			StartLine:   startLine,
			EndLine:     endLine,
			CreatedAt:   now,
			UpdatedAt:   now,
		})

		if end == len(runes) {
			break
		}
	}

	return chunks, nil
}

// textChunkID includes the window's rune offset as well as its start line,
// so two windows that start on the same (long) line still get distinct IDs.
func textChunkID(filePath string, startLine, startRune int) string {
	h := sha256.Sum256([]byte(filePath + ":" + strconv.Itoa(startLine) + ":" + strconv.Itoa(startRune)))
	return hex.EncodeToString(h[:])[:16]
}
