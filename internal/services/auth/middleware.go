package auth

import (
	"strings"

	"github.com/mfcastro/aihub/internal/models"

	"github.com/gofiber/fiber/v2"
)

const userLocalKey = "aihub_user"

// Middleware extracts and verifies the bearer token, loading the user
// into request locals for the handlers.
func (s *Service) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(header, "Bearer ") {
			appErr := models.NewAuthenticationError("missing bearer token")
			return c.Status(appErr.GetStatusCode()).JSON(appErr)
		}

		user, err := s.VerifyToken(c.Context(), strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			appErr := models.SanitizeError(err)
			return c.Status(appErr.GetStatusCode()).JSON(appErr)
		}

		c.Locals(userLocalKey, user)
		return c.Next()
	}
}

// RequireAdmin gates a route to admin users. Must run after Middleware.
func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user := CurrentUser(c)
		if user == nil || user.Role != models.RoleAdmin {
			appErr := models.NewAccessDeniedError("admin")
			appErr.Message = "admin role required"
			return c.Status(appErr.GetStatusCode()).JSON(appErr)
		}
		return c.Next()
	}
}

// CurrentUser returns the authenticated user, or nil outside the
// middleware chain.
func CurrentUser(c *fiber.Ctx) *models.User {
	user, _ := c.Locals(userLocalKey).(*models.User)
	return user
}
