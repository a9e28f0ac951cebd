package middleware

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/marba/synapse/internal/metrics"
)

// Prometheus records request count and latency per matched route.
func Prometheus() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			status = fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				status = e.Code
			}
		}

		// Route templates keep label cardinality bounded.
		route := c.Route().Path
		method := c.Method()

		metrics.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())

		return err
	}
}
