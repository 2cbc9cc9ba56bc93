package httpapi

import (
	"github.com/gofiber/fiber/v2"
)

// refreshQuestions re-imports the question bank from the configured sheet.
func (s *server) refreshQuestions(c *fiber.Ctx) error {
	if s.importer == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "question import is not configured")
	}
	count, err := s.importer.Refresh(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "count": count})
}
