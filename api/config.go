// Package api provides the HTTP transport for the MCP server plus a couple
// of plain inspection routes.
package api

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8765")
	ListenAddr string
}
