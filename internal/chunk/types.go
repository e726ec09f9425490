package chunk

import (
	"context"
	"time"
)

// Chunk size defaults (based on 2025 RAG research)
const (
	DefaultMaxChunkTokens = 512 // Optimal for 85-90% recall
	DefaultOverlapTokens  = 64  // ~12.5% overlap
	MinChunkTokens        = 100 // Minimum viable chunk
	TokensPerChar         = 4   // Rough approximation: 4 chars = 1 token
)

// ContentType represents the type of content in a chunk
type ContentType string

const (
	ContentTypeCode     ContentType = "code"
	ContentTypeMarkdown ContentType = "markdown"
	ContentTypeText     ContentType = "text"
)

// Chunk is a retrievable unit of content
type Chunk struct {
	ID          string            // SHA256(file_path + start_line + start_rune)[:16]
	FilePath    string            // Relative to project root
	Content     string            // Full content with context
	RawContent  string            // Just the symbol, no context (code only)
	Context     string            // Imports, package decl (code only)
	ContentType ContentType       // code, markdown, text
	Language    string            // go, typescript, python, etc.
	StartLine   int               // 1-indexed
	EndLine     int               // Inclusive
	Metadata    map[string]string // Custom metadata
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// FileInput is input for the Splitter interface
type FileInput struct {
	Path     string // Relative path
	Content  []byte // File content
	Language string // go, typescript, python, etc.
}

// Splitter is the interface for splitting files into chunks
type Splitter interface {
	// Split splits a file into retrievable chunks
	Split(ctx context.Context, file *FileInput) ([]*Chunk, error)

	// SupportedExtensions returns file extensions this splitter handles
	SupportedExtensions() []string
}
