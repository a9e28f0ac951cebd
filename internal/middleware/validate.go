package middleware

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/marba/synapse/internal/logger"
)

// Locals key under which ValidateQuery stores the parsed query struct.
const QueryParamsKey = "queryParams"

var validate = validator.New()

// ValidateQuery parses query parameters into a fresh T per request and
// validates it. The result is stored under QueryParamsKey.
func ValidateQuery[T any]() fiber.Handler {
	return func(c *fiber.Ctx) error {
		params := new(T)
		if err := c.QueryParser(params); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid query parameters",
			})
		}

		if err := validate.Struct(params); err != nil {
			var verrs validator.ValidationErrors
			if !errors.As(err, &verrs) {
				return err
			}
			fields := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				fields[fe.Field()] = fe.Tag()
			}

			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error":  "Invalid query parameters",
				"fields": fields,
			})
		}

		c.Locals(QueryParamsKey, params)
		return c.Next()
	}
}

// ErrorHandler is the fiber error handler: it logs the error and answers with
// a generic JSON message for the status.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}

	event := logger.Get().Error()
	if code < fiber.StatusInternalServerError {
		event = logger.Get().Warn()
	}
	event.
		Err(err).
		Str("method", c.Method()).
		Str("path", c.Path()).
		Int("status", code).
		Msg("HTTP error")

	return c.Status(code).JSON(fiber.Map{
		"error": http.StatusText(code),
	})
}
