// Package mcp exposes the memory store over the Model Context Protocol.
//
// Four tools are registered: remember stores a memory, think runs a ranked
// keyword search, recall fetches full memories by id, and performance_stats
// reports search engine counters. Tool failures are returned as IsError
// results carrying a serialized structured error, never as protocol errors.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/papercomputeco/engram/pkg/errkind"
	"github.com/papercomputeco/engram/pkg/search"
	"github.com/papercomputeco/engram/pkg/store"
	"github.com/papercomputeco/engram/pkg/utils"
)

// Storer is the slice of the storage layer the tool surface needs.
type Storer interface {
	Save(ctx context.Context, agent, user string, topics []string, content string) (*store.SaveResult, error)
	Recall(ctx context.Context, ids []string) []store.RecallResult
	List() ([]string, error)
}

// Searcher ranks memories for keyword queries and reports its counters.
type Searcher interface {
	Search(ctx context.Context, keywords []string) ([]search.Result, error)
	Stats() search.Stats
}

type Config struct {
	// Store persists and recalls memories.
	Store Storer

	// Searcher ranks memories for the think tool.
	Searcher Searcher

	// Noop for empty MCP server
	Noop bool

	// Logger is the configured zap logger
	Logger *zap.Logger
}

type Server struct {
	config    Config
	mcpServer *mcp.Server
	handler   *mcp.StreamableHTTPHandler
}

// NewServer creates a new MCP server with the memory tools.
func NewServer(c Config) (*Server, error) {
	s := &Server{
		config: c,
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "engram",
			Version: utils.Version,
		},
		&mcp.ServerOptions{},
	)

	if c.Noop {
		// return the empty MCP server with no tools configured
		// if the noop flag is set (i.e., MCP capabilities are disabled)
		s.mcpServer = mcpServer
		return s, nil
	}

	if c.Store == nil {
		return nil, errors.New("store is required")
	}
	if c.Searcher == nil {
		return nil, errors.New("searcher is required")
	}
	if c.Logger == nil {
		return nil, errors.New("logger is required")
	}

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        rememberToolName,
		Description: rememberDescription,
	}, s.handleRemember)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        thinkToolName,
		Description: thinkDescription,
	}, s.handleThink)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        recallToolName,
		Description: recallDescription,
	}, s.handleRecall)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        statsToolName,
		Description: statsDescription,
	}, s.handleStats)

	s.mcpServer = mcpServer

	// Create a streamable HTTP net/http handler for stateless operations
	s.handler = mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server {
			return mcpServer
		},
		&mcp.StreamableHTTPOptions{
			Stateless: true,
		},
	)

	return s, nil
}

// Handler returns the HTTP handler for the MCP server.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves the MCP server over stdio until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcp.StdioTransport{})
}

// errResult wraps err in an IsError tool result whose text is the
// serialized structured error. Tool callers receive the stable error code
// rather than a free-form message.
func errResult(err error, category errkind.Category, code errkind.Code, summary string) *mcp.CallToolResult {
	structured := errkind.FromError(err, category, code, summary)

	text, marshalErr := json.Marshal(structured)
	if marshalErr != nil {
		text = []byte(structured.Error())
	}

	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(text)},
		},
	}
}
