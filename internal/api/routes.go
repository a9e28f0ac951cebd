package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/marba/synapse/internal/devlog"
	"github.com/marba/synapse/internal/middleware"
)

// SetupRoutes configures all the routes for the application
func SetupRoutes(app *fiber.App, deps Dependencies) {
	handlers := NewHandlers(deps)

	// Middleware
	app.Use(recover.New())
	// The browser logger answers only POST and keeps its own file.
	app.Use(middleware.CORS(devlog.Route))
	app.Use(middleware.Prometheus())
	app.Use(middleware.RequestLogger(devlog.Route))

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// Browser logger (development only)
	if deps.BrowserLog != nil {
		app.All(devlog.Route, devlog.Handler(deps.BrowserLog))
	}

	// Vendor proxy functions
	if deps.Proxies != nil {
		deps.Proxies.Register(app.Group("/functions/v1"))
	}

	// API group with versioning
	api := app.Group("/api/v1")

	api.Get("/health", handlers.HealthCheck)

	brands := api.Group("/brands/:brandId")
	{
		if deps.Enrichment != nil {
			brands.Get("/enrichment/:section", handlers.GetEnrichment)
			brands.Post("/enrichment/:section/refresh", handlers.RefreshEnrichment)
		}
		if deps.Opportunities != nil {
			brands.Get("/opportunities", handlers.ListOpportunities)
		}
	}

	content := api.Group("/content")
	{
		if deps.Content != nil {
			content.Post("/generate", handlers.GenerateContent)
		}
		if deps.Archive != nil {
			content.Get("", middleware.ValidateQuery[listContentQuery](), handlers.ListContent)
			content.Get("/:id", handlers.GetContent)
		}
	}

	// Admin endpoints
	admin := api.Group("/admin", middleware.AdminOnly(deps.AdminAPIKey))
	{
		if deps.Detector != nil {
			admin.Post("/opportunities/detect", handlers.DetectOpportunities)
		}
		if deps.Enrichment != nil {
			admin.Post("/enrichment/refresh", handlers.RefreshAllEnrichment)
		}
		if deps.Archive != nil {
			admin.Delete("/content/:id", handlers.DeleteContent)
		}
	}

	// 404 Handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Endpoint not found",
		})
	})
}
