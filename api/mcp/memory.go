package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/papercomputeco/engram/pkg/errkind"
	"github.com/papercomputeco/engram/pkg/memory"
	"github.com/papercomputeco/engram/pkg/validate"
)

var (
	rememberToolName    = "remember"
	rememberDescription = "Store a memory for later recall. Provide the agent name, the user the memory belongs to, a list of topic tags, and the memory content. Returns the id of the stored memory."

	recallToolName    = "recall"
	recallDescription = "Recall full memories by id. Accepts a list of memory ids (8 hex characters each, as returned by remember or think) and returns the complete stored content for each. Unknown ids yield per-id errors without failing the rest."
)

// RememberInput represents the input arguments for the MCP remember tool.
type RememberInput struct {
	Agent   string   `json:"agent" jsonschema:"name of the agent storing the memory"`
	User    string   `json:"user" jsonschema:"user the memory belongs to"`
	Topics  []string `json:"topics" jsonschema:"topic tags for categorization and search boosting"`
	Content string   `json:"content" jsonschema:"the memory content to store"`
}

// RememberOutput represents the structured output of a stored memory.
type RememberOutput struct {
	MemoryID  string `json:"memory_id"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	Filename  string `json:"filename"`
}

// handleRemember processes a remember request via MCP.
func (s *Server) handleRemember(ctx context.Context, _ *mcp.CallToolRequest, input RememberInput) (*mcp.CallToolResult, RememberOutput, error) {
	logger := s.config.Logger

	logger.Debug("MCP remember request",
		zap.String("agent", input.Agent),
		zap.String("user", input.User),
		zap.Int("topics", len(input.Topics)),
		zap.Int("content_len", len(input.Content)),
	)

	saved, err := s.config.Store.Save(ctx, input.Agent, input.User, input.Topics, input.Content)
	if err != nil {
		logger.Error("remember failed", zap.Error(err))
		return errResult(err, errkind.CategoryMemoryOperation, errkind.CodeMemoryGeneral,
			"Memory storage failed"), RememberOutput{}, nil
	}

	output := RememberOutput{
		MemoryID:  saved.MemoryID,
		Message:   saved.Message,
		Timestamp: saved.Timestamp,
		Filename:  saved.Filename,
	}

	jsonBytes, err := json.Marshal(output)
	if err != nil {
		return errResult(err, errkind.CategorySystem, errkind.CodeMemoryEncodingError,
			"Failed to serialize result"), RememberOutput{}, nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(jsonBytes)},
		},
	}, output, nil
}

// RecallInput represents the input arguments for the MCP recall tool.
type RecallInput struct {
	MemoryIDs []string `json:"memory_ids" jsonschema:"ids of the memories to recall, 8 hex characters each"`
}

// RecalledMemory is one requested id's outcome: the full memory, or a
// structured error for that id.
type RecalledMemory struct {
	MemoryID  string         `json:"memory_id"`
	Agent     string         `json:"agent,omitempty"`
	User      string         `json:"user,omitempty"`
	Topics    []string       `json:"topics,omitempty"`
	Content   string         `json:"content,omitempty"`
	Timestamp string         `json:"timestamp,omitempty"`
	Error     *errkind.Error `json:"error,omitempty"`
}

// RecallOutput represents the structured output of a recall.
type RecallOutput struct {
	Memories []RecalledMemory `json:"memories"`
	Count    int              `json:"count"`
}

// handleRecall processes a recall request via MCP.
func (s *Server) handleRecall(ctx context.Context, _ *mcp.CallToolRequest, input RecallInput) (*mcp.CallToolResult, RecallOutput, error) {
	logger := s.config.Logger

	logger.Debug("MCP recall request", zap.Strings("memory_ids", input.MemoryIDs))

	ids, verr := validate.RecallIDs(input.MemoryIDs)
	if verr != nil {
		logger.Warn("recall input rejected", zap.Error(verr))
		return errResult(verr, errkind.CategoryValidation, errkind.CodeValidationGeneral,
			"Validation error"), RecallOutput{}, nil
	}

	results := s.config.Store.Recall(ctx, ids)

	memories := make([]RecalledMemory, 0, len(results))
	for i, result := range results {
		id := ""
		if i < len(ids) {
			id = ids[i]
		}
		memories = append(memories, buildRecalledMemory(id, result.Memory, result.Err))
	}

	output := RecallOutput{
		Memories: memories,
		Count:    len(memories),
	}

	jsonBytes, err := json.Marshal(output)
	if err != nil {
		return errResult(err, errkind.CategorySystem, errkind.CodeMemoryEncodingError,
			"Failed to serialize results"), RecallOutput{}, nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(jsonBytes)},
		},
	}, output, nil
}

func buildRecalledMemory(id string, mem *memory.Memory, recallErr *errkind.Error) RecalledMemory {
	if mem == nil {
		if recallErr == nil {
			recallErr = errkind.Memory(errkind.CodeMemoryNotFound,
				fmt.Sprintf("Memory file not found: %s", id))
		}
		return RecalledMemory{MemoryID: id, Error: recallErr}
	}

	timestamp := ""
	if !mem.Timestamp.IsZero() {
		timestamp = mem.Timestamp.Format(time.RFC3339Nano)
	}

	return RecalledMemory{
		MemoryID:  mem.ID,
		Agent:     mem.Agent,
		User:      mem.User,
		Topics:    mem.Topics,
		Content:   mem.Content,
		Timestamp: timestamp,
	}
}
