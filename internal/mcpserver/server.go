// Package mcpserver wraps a corpusvault.Engine with the Model Context
// Protocol, exposing build, search, remove_source, and reset as MCP tools
// so an AI client can drive the retrieval engine directly instead of
// shelling out to the CLI.
package mcpserver

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/corpusvault/corpusvault"
	"github.com/corpusvault/corpusvault/pkg/version"
)

// Server is the MCP server for corpusvault.
type Server struct {
	mcp    *mcp.Server
	engine *corpusvault.Engine
	logger *slog.Logger
}

// DocInput is one document to index, mirroring corpusvault.Doc.
type DocInput struct {
	Source string `json:"source" jsonschema:"identifier for this document, used to replace or remove its chunks later"`
	Text   string `json:"text" jsonschema:"the document's full text"`
}

// BuildInput is the input schema for the build tool.
type BuildInput struct {
	Docs           []DocInput `json:"docs" jsonschema:"documents to index"`
	Vault          string     `json:"vault,omitempty" jsonschema:"vault to index into, defaults to the configured default vault"`
	UpdateExisting bool       `json:"update_existing,omitempty" jsonschema:"replace a source's existing chunks instead of skipping it if it was already indexed"`
	ResetVault     bool       `json:"reset_vault,omitempty" jsonschema:"reset the whole store, dropping every vault, before indexing"`
}

// BuildOutput is the output schema for the build tool.
type BuildOutput struct {
	DocsIndexed int `json:"docs_indexed" jsonschema:"number of documents indexed"`
}

// SearchInput is the input schema for the search tool.
type SearchInput struct {
	Query string `json:"query" jsonschema:"the search query"`
	Vault string `json:"vault,omitempty" jsonschema:"vault to search, defaults to the configured default vault"`
	TopN  int    `json:"top_n,omitempty" jsonschema:"maximum number of results, default 10"`
}

// SearchResultOutput is one fused/reranked search result.
type SearchResultOutput struct {
	ID      int64   `json:"id" jsonschema:"chunk id"`
	Content string  `json:"content" jsonschema:"chunk content"`
	Score   float64 `json:"score" jsonschema:"fused or reranked relevance score"`
}

// SearchOutput is the output schema for the search tool.
type SearchOutput struct {
	Results []SearchResultOutput `json:"results" jsonschema:"ranked search results"`
}

// RemoveSourceInput is the input schema for the remove_source tool.
type RemoveSourceInput struct {
	Source string `json:"source" jsonschema:"source identifier to remove every chunk of"`
	Vault  string `json:"vault,omitempty" jsonschema:"vault to remove the source from, defaults to the configured default vault"`
}

// RemoveSourceOutput is the output schema for the remove_source tool.
type RemoveSourceOutput struct {
	Removed bool `json:"removed" jsonschema:"true once the source's chunks are removed"`
}

// ResetInput is the input schema for the reset tool. An empty Vault
// destroys every vault in the Store; a non-empty Vault drops only that
// one.
type ResetInput struct {
	Vault string `json:"vault,omitempty" jsonschema:"vault to drop; omit to destroy every vault in the store"`
}

// ResetOutput is the output schema for the reset tool.
type ResetOutput struct {
	Reset bool `json:"reset" jsonschema:"true once the reset completed"`
}

// NewServer creates a new MCP server wrapping engine.
func NewServer(engine *corpusvault.Engine) (*Server, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine is required")
	}

	s := &Server{
		engine: engine,
		logger: slog.Default(),
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "corpusvault",
			Version: version.Version,
		},
		nil,
	)

	s.registerTools()
	return s, nil
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "build",
		Description: "Index one or more text documents into a vault for both lexical and semantic retrieval.",
	}, s.handleBuild)
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search",
		Description: "Search a vault, fusing BM25 lexical and vector semantic retrieval.",
	}, s.handleSearch)
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "remove_source",
		Description: "Remove every chunk belonging to one source from a vault.",
	}, s.handleRemoveSource)
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "reset",
		Description: "Destroy every vault, or drop one vault if vault is given.",
	}, s.handleReset)

	s.logger.Debug("MCP tools registered", slog.Int("count", 4))
}

func (s *Server) handleBuild(ctx context.Context, _ *mcp.CallToolRequest, input BuildInput) (
	*mcp.CallToolResult, BuildOutput, error,
) {
	docs := make([]corpusvault.Doc, len(input.Docs))
	for i, d := range input.Docs {
		docs[i] = corpusvault.Doc{Source: d.Source, Text: d.Text}
	}

	if err := s.engine.Build(ctx, docs, input.Vault, input.UpdateExisting, input.ResetVault); err != nil {
		return nil, BuildOutput{}, MapError(err)
	}
	return nil, BuildOutput{DocsIndexed: len(docs)}, nil
}

func (s *Server) handleSearch(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (
	*mcp.CallToolResult, SearchOutput, error,
) {
	if input.Query == "" {
		return nil, SearchOutput{}, NewInvalidParamsError("query parameter is required")
	}
	topN := input.TopN
	if topN <= 0 {
		topN = 10
	}

	results, err := s.engine.Search(ctx, input.Query, input.Vault, topN)
	if err != nil {
		return nil, SearchOutput{}, MapError(err)
	}

	out := SearchOutput{Results: make([]SearchResultOutput, len(results))}
	for i, r := range results {
		out.Results[i] = SearchResultOutput{ID: r.ID, Content: r.Content, Score: r.Score}
	}
	return nil, out, nil
}

func (s *Server) handleRemoveSource(ctx context.Context, _ *mcp.CallToolRequest, input RemoveSourceInput) (
	*mcp.CallToolResult, RemoveSourceOutput, error,
) {
	if input.Source == "" {
		return nil, RemoveSourceOutput{}, NewInvalidParamsError("source parameter is required")
	}
	if err := s.engine.RemoveSource(ctx, input.Vault, input.Source); err != nil {
		return nil, RemoveSourceOutput{}, MapError(err)
	}
	return nil, RemoveSourceOutput{Removed: true}, nil
}

func (s *Server) handleReset(ctx context.Context, _ *mcp.CallToolRequest, input ResetInput) (
	*mcp.CallToolResult, ResetOutput, error,
) {
	if input.Vault == "" {
		if err := s.engine.Reset(ctx); err != nil {
			return nil, ResetOutput{}, MapError(err)
		}
		return nil, ResetOutput{Reset: true}, nil
	}

	if err := s.engine.DropVault(ctx, input.Vault); err != nil {
		return nil, ResetOutput{}, MapError(err)
	}
	return nil, ResetOutput{Reset: true}, nil
}

// Serve runs the MCP server over stdio until ctx is canceled.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("starting MCP server", slog.String("transport", "stdio"))
	err := s.mcp.Run(ctx, &mcp.StdioTransport{})
	if err != nil && err != context.Canceled {
		s.logger.Error("MCP server stopped with error", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("MCP server stopped gracefully")
	return nil
}

// Close releases server resources. The underlying Engine is owned by the
// caller and is not closed here.
func (s *Server) Close() error {
	return nil
}
