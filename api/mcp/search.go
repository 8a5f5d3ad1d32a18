package mcp

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/papercomputeco/engram/pkg/errkind"
	"github.com/papercomputeco/engram/pkg/search"
	"github.com/papercomputeco/engram/pkg/validate"
)

var (
	thinkToolName    = "think"
	thinkDescription = "Search stored memories by keywords. Returns ranked previews with relevance scores; use recall with the returned memory ids to fetch full content. Provide 1-10 keywords."

	statsToolName    = "performance_stats"
	statsDescription = "Report search engine performance counters: total searches, timing averages, parse cache hit rate, and the number of stored memory files."
)

// ThinkInput represents the input arguments for the MCP think tool.
type ThinkInput struct {
	Keywords []string `json:"keywords" jsonschema:"keywords to search memories for, 1 to 10 entries"`
}

// ThinkOutput represents the output of the think tool.
type ThinkOutput struct {
	Keywords []string        `json:"keywords"`
	Results  []search.Result `json:"results"`
	Count    int             `json:"count"`
}

// handleThink processes a memory search request.
func (s *Server) handleThink(ctx context.Context, _ *mcp.CallToolRequest, input ThinkInput) (*mcp.CallToolResult, ThinkOutput, error) {
	logger := s.config.Logger

	logger.Debug("MCP think request", zap.Strings("keywords", input.Keywords))

	keywords, verr := validate.Keywords(input.Keywords)
	if verr != nil {
		logger.Warn("think input rejected", zap.Error(verr))
		return errResult(verr, errkind.CategoryValidation, errkind.CodeInvalidKeywords,
			"Validation error"), ThinkOutput{}, nil
	}

	results, err := s.config.Searcher.Search(ctx, keywords)
	if err != nil {
		logger.Error("search failed", zap.Error(err))
		return errResult(err, errkind.CategoryMemoryOperation, errkind.CodeMemoryGeneral,
			"Search failed"), ThinkOutput{}, nil
	}

	if results == nil {
		results = []search.Result{}
	}

	output := ThinkOutput{
		Keywords: keywords,
		Results:  results,
		Count:    len(results),
	}

	// Serialize the structured output as JSON for the text field
	// Per MCP spec: tools returning structured content should also return
	// serialized JSON in a TextContent block for backwards compatibility
	jsonBytes, err := json.Marshal(output)
	if err != nil {
		logger.Error("failed to marshal think output", zap.Error(err))
		return errResult(err, errkind.CategorySystem, errkind.CodeMemoryEncodingError,
			"Failed to serialize results"), ThinkOutput{}, nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(jsonBytes)},
		},
	}, output, nil
}

// StatsInput represents the (empty) input of the performance_stats tool.
type StatsInput struct{}

// StatsOutput represents the output of the performance_stats tool.
type StatsOutput struct {
	Search      search.Stats `json:"search"`
	MemoryFiles int          `json:"memory_files"`
}

// handleStats reports search counters and the stored file count.
func (s *Server) handleStats(_ context.Context, _ *mcp.CallToolRequest, _ StatsInput) (*mcp.CallToolResult, StatsOutput, error) {
	output := StatsOutput{
		Search: s.config.Searcher.Stats(),
	}

	if paths, err := s.config.Store.List(); err == nil {
		output.MemoryFiles = len(paths)
	}

	jsonBytes, err := json.Marshal(output)
	if err != nil {
		return errResult(err, errkind.CategorySystem, errkind.CodeMemoryEncodingError,
			"Failed to serialize results"), StatsOutput{}, nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(jsonBytes)},
		},
	}, output, nil
}
