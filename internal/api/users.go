package api

import (
	"github.com/gofiber/fiber/v2"
)

// Me returns the caller's local record, created on first sight.
func (s *Server) Me(c *fiber.Ctx) error {
	return c.JSON(userFrom(c))
}

func (s *Server) ListUsers(c *fiber.Ctx) error {
	page, err := s.store.ListUsers(c.UserContext(), pageRequest(c))
	if err != nil {
		return err
	}
	return c.JSON(page)
}

func (s *Server) ToggleUser(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	user, err := s.store.ToggleUserActive(c.UserContext(), id, userFrom(c).ID)
	if err != nil {
		return err
	}

	s.logger.Info("User status toggled", "user_id", id, "active", user.Lifecycle.IsActive())
	return c.JSON(user)
}

func (s *Server) Stats(c *fiber.Ctx) error {
	stats, err := s.store.DashboardStats(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(stats)
}
