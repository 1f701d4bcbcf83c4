// Package mcpserver exposes retrieval to coding agents as an MCP tool
// served over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/CihadCengiz/prompt-generator/internal/ingest"
	"github.com/CihadCengiz/prompt-generator/internal/vector"
)

const (
	ServerName = "promptgen"
	// MaxTopK bounds the topK argument.
	MaxTopK = 50
)

// Searcher is the retrieval side of ingest.Pipeline.
type Searcher interface {
	Search(ctx context.Context, query string, topK int, scope vector.Scope) ([]vector.Match, error)
}

// Server wraps the MCP server with the retrieval pipeline.
type Server struct {
	mcp      *server.MCPServer
	searcher Searcher
	logger   *slog.Logger
}

// New creates an MCP server with its tools registered.
func New(searcher Searcher, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		mcp:      server.NewMCPServer(ServerName, version),
		searcher: searcher,
		logger:   logger,
	}
	s.mcp.AddTool(relevantChunksTool(), s.handleGetRelevantChunks)
	return s
}

// Serve runs the MCP protocol on stdin/stdout until the client disconnects.
func (s *Server) Serve(context.Context) error {
	return server.ServeStdio(s.mcp)
}

func relevantChunksTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_relevant_chunks",
		Description: "Return the repository chunks most similar to a natural language query, most similar first",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "What to look for in the indexed repository",
				},
				"topK": map[string]any{
					"type":        "integer",
					"description": "Maximum number of chunks to return",
					"default":     ingest.DefaultTopK,
					"minimum":     1,
					"maximum":     MaxTopK,
				},
				"repoTag": map[string]any{
					"type":        "string",
					"description": "Only search chunks stored under this repository tag",
				},
				"commitHash": map[string]any{
					"type":        "string",
					"description": "Only search chunks stored under this commit",
				},
			},
			Required: []string{"query"},
		},
	}
}

type chunkResult struct {
	Text       string  `json:"text"`
	FilePath   string  `json:"filePath"`
	CommitHash string  `json:"commitHash"`
	RepoTag    string  `json:"repoTag"`
	Score      float32 `json:"score"`
}

type relevantChunksResult struct {
	Chunks  []chunkResult `json:"chunks"`
	Context string        `json:"context"`
}

func (s *Server) handleGetRelevantChunks(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]any)
	if !ok {
		return mcp.NewToolResultError("invalid arguments"), nil
	}

	query, _ := args["query"].(string)
	if strings.TrimSpace(query) == "" {
		return mcp.NewToolResultError("query parameter is required and cannot be empty"), nil
	}
	topK := ingest.DefaultTopK
	if v, ok := args["topK"].(float64); ok {
		topK = int(v)
	}
	if topK < 1 || topK > MaxTopK {
		return mcp.NewToolResultError(fmt.Sprintf("topK must be between 1 and %d", MaxTopK)), nil
	}
	scope := vector.Scope{}
	scope.RepoTag, _ = args["repoTag"].(string)
	scope.CommitHash, _ = args["commitHash"].(string)

	matches, err := s.searcher.Search(ctx, query, topK, scope)
	if err != nil {
		s.logger.Error("mcp retrieval failed", "error", err)
		return mcp.NewToolResultError("retrieval failed: " + err.Error()), nil
	}

	result := relevantChunksResult{Chunks: make([]chunkResult, 0, len(matches))}
	texts := make([]string, 0, len(matches))
	for _, m := range matches {
		result.Chunks = append(result.Chunks, chunkResult{
			Text:       m.Metadata.Text,
			FilePath:   m.Metadata.FilePath,
			CommitHash: m.Metadata.CommitHash,
			RepoTag:    m.Metadata.RepoTag,
			Score:      m.Score,
		})
		texts = append(texts, m.Metadata.Text)
	}
	result.Context = strings.Join(texts, "\n\n")

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(data)), nil
}
