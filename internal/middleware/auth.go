package middleware

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"

	"github.com/marba/synapse/internal/logger"
)

// AdminOnly is a middleware that checks if the request is from an admin.
// An empty adminKey disables the guarded routes entirely.
func AdminOnly(adminKey string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if adminKey == "" {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error": "Admin endpoints are disabled",
			})
		}

		// Get API key from header
		apiKey := c.Get("X-API-Key")
		if apiKey == "" {
			logger.Get().Warn().
				Str("method", c.Method()).
				Str("path", c.Path()).
				Str("ip", c.IP()).
				Msg("Admin access attempt without API key")

			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "API key is required",
			})
		}

		// Check if the API key matches the admin key
		if subtle.ConstantTimeCompare([]byte(apiKey), []byte(adminKey)) != 1 {
			logger.Get().Warn().
				Str("method", c.Method()).
				Str("path", c.Path()).
				Str("ip", c.IP()).
				Msg("Unauthorized admin access attempt")

			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Admin access required",
			})
		}

		return c.Next()
	}
}
