package api

import (
	"net/http"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/papercomputeco/engram/api/mcp"
)

// Server is the HTTP server exposing the MCP handler and inspection routes.
type Server struct {
	config   Config
	storer   mcp.Storer
	searcher mcp.Searcher
	logger   *zap.Logger
	app      *fiber.App
}

// NewServer creates a new API server. The store and searcher are injected
// so they are shared with the stdio transport when both run.
func NewServer(config Config, mcpHandler http.Handler, storer mcp.Storer, searcher mcp.Searcher, logger *zap.Logger) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config:   config,
		storer:   storer,
		searcher: searcher,
		logger:   logger,
		app:      app,
	}

	app.Get("/ping", s.handlePing)
	app.Get("/stats", s.handleStats)
	app.All("/mcp", adaptor.HTTPHandler(mcpHandler))
	app.All("/mcp/*", adaptor.HTTPHandler(mcpHandler))

	return s
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server",
		zap.String("listen", s.config.ListenAddr),
	)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
