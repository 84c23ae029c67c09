package server

import (
	"github.com/gofiber/fiber/v2"

	"murmur/internal/middleware"
)

// GetFeatureFlags handles GET /api/flags
func (s *Server) GetFeatureFlags(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"raw":       s.featureFlags.Raw(),
		"evaluated": s.featureFlags.Snapshot(identity(c, middleware.Username(c))),
	})
}
