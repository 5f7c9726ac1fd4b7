package httpapi

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

// handleHealth godoc
// @Summary Health check
// @Tags Health
// @Produce json
// @Success 200 {object} ResponseData
// @Router /health [get]
func (s *Server) handleHealth(c *fiber.Ctx) error {
	report := s.gateway.Health(c.Context())
	return writeOK(c, fiber.StatusOK, "UP", map[string]any{
		"status":    "UP",
		"timestamp": time.Now().UTC(),
		"detail":    report,
	})
}
