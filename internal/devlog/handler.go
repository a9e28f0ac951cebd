package devlog

import (
	"io"

	"github.com/gofiber/fiber/v2"

	"github.com/marba/synapse/internal/logger"
)

// Route is where the browser logger posts batches.
const Route = "/__br_logger"

// Handler accepts text/plain batches of pre-formatted lines and appends them
// to w. Register it for all methods; only POST is accepted.
func Handler(w io.Writer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Method() != fiber.MethodPost {
			c.Set(fiber.HeaderAllow, fiber.MethodPost)
			return c.Status(fiber.StatusMethodNotAllowed).SendString("Method Not Allowed")
		}

		body := c.Body()
		if len(body) == 0 {
			return c.Status(fiber.StatusOK).SendString("ok")
		}

		batch := make([]byte, len(body), len(body)+1)
		copy(batch, body)
		if batch[len(batch)-1] != '\n' {
			batch = append(batch, '\n')
		}

		if _, err := w.Write(batch); err != nil {
			logger.Get().Error().Err(err).Msg("Failed to write browser log batch")
			return c.Status(fiber.StatusInternalServerError).SendString("error")
		}
		return c.Status(fiber.StatusOK).SendString("ok")
	}
}
