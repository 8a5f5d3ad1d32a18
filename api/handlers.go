package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/engram/pkg/search"
)

// StatsResponse reports search counters alongside the stored file count.
type StatsResponse struct {
	Search      search.Stats `json:"search"`
	MemoryFiles int          `json:"memory_files"`
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// handleStats returns search engine counters and the memory file count.
func (s *Server) handleStats(c *fiber.Ctx) error {
	resp := StatsResponse{
		Search: s.searcher.Stats(),
	}

	paths, err := s.storer.List()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to list memory files",
		})
	}
	resp.MemoryFiles = len(paths)

	return c.JSON(resp)
}
