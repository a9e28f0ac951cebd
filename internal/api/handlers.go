package api

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/marba/synapse/internal/ai"
	"github.com/marba/synapse/internal/cache"
	"github.com/marba/synapse/internal/enrichment"
	"github.com/marba/synapse/internal/logger"
	"github.com/marba/synapse/internal/middleware"
	"github.com/marba/synapse/internal/models"
	"github.com/marba/synapse/internal/opportunity"
	"github.com/marba/synapse/internal/proxy"
	"github.com/marba/synapse/internal/storage"
	"github.com/marba/synapse/internal/vendor"
)

const version = "1.0.0"

type (
	EnrichmentService interface {
		Lookup(ctx context.Context, brandID, section string) (*enrichment.Lookup, error)
		Refresh(ctx context.Context, brandID, section string) (*models.EnrichmentRecord, error)
		RefreshStale(ctx context.Context) (*enrichment.RefreshResult, error)
	}

	DetectorRunner interface {
		Run(ctx context.Context) (*opportunity.Result, error)
		Start(timeout time.Duration) error
	}

	OpportunityReader interface {
		ListOpportunities(ctx context.Context, brandID string, now time.Time) ([]models.Opportunity, error)
	}

	ContentGenerator interface {
		Generate(ctx context.Context, req models.GenerateRequest) (*models.GeneratedContent, error)
	}

	ContentArchive interface {
		Get(ctx context.Context, id string) (*models.GeneratedContent, error)
		List(ctx context.Context, page, pageSize int) ([]*models.GeneratedContent, int, error)
		Delete(ctx context.Context, id string) error
	}

	// HealthCheck reports whether a dependency is reachable.
	HealthCheck func(ctx context.Context) error
)

// Dependencies is everything the HTTP surface needs, built once in main.
// Nil members disable their routes.
type Dependencies struct {
	AdminAPIKey   string
	Proxies       *proxy.Set
	Enrichment    EnrichmentService
	Detector      DetectorRunner
	Opportunities OpportunityReader
	Content       ContentGenerator
	Archive       ContentArchive
	BrowserLog    io.Writer
	Checks        map[string]HealthCheck
	Now           func() time.Time
}

type Handlers struct {
	deps Dependencies
}

func NewHandlers(deps Dependencies) *Handlers {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Handlers{deps: deps}
}

// HealthCheck handles the /health endpoint
func (h *Handlers) HealthCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	status := "ok"
	checks := make(map[string]string, len(h.deps.Checks))
	for name, check := range h.deps.Checks {
		if err := check(ctx); err != nil {
			logger.Get().Warn().Err(err).Str("check", name).Msg("Health check failed")
			checks[name] = "unavailable"
			status = "degraded"
			continue
		}
		checks[name] = "ok"
	}

	code := fiber.StatusOK
	if status != "ok" {
		code = fiber.StatusServiceUnavailable
	}
	return c.Status(code).JSON(fiber.Map{
		"status":  status,
		"version": version,
		"checks":  checks,
		"time":    h.deps.Now().UTC().Format(time.RFC3339),
	})
}

// GetEnrichment handles GET /api/v1/brands/:brandId/enrichment/:section
func (h *Handlers) GetEnrichment(c *fiber.Ctx) error {
	brandID, section := c.Params("brandId"), c.Params("section")

	res, err := h.deps.Enrichment.Lookup(c.UserContext(), brandID, section)
	switch {
	case errors.Is(err, cache.ErrUnknownSection):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":    "Unknown section",
			"sections": cache.Sections(),
		})
	case errors.Is(err, cache.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Enrichment not found",
		})
	case err != nil:
		logger.Get().Error().Err(err).Str("brand_id", brandID).Str("section", section).Msg("Error reading enrichment")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to read enrichment",
		})
	}

	return c.JSON(fiber.Map{
		"brand_id":   res.Record.BrandID,
		"section":    res.Record.Section,
		"data":       res.Record.Data,
		"expires_at": res.Record.ExpiresAt,
		"updated_at": res.Record.UpdatedAt,
		"stale":      res.Stale,
	})
}

// RefreshEnrichment handles POST /api/v1/brands/:brandId/enrichment/:section/refresh
func (h *Handlers) RefreshEnrichment(c *fiber.Ctx) error {
	brandID, section := c.Params("brandId"), c.Params("section")

	rec, err := h.deps.Enrichment.Refresh(c.UserContext(), brandID, section)
	if err != nil {
		return h.enrichmentError(c, err, brandID, section)
	}

	return c.JSON(fiber.Map{
		"brand_id":   rec.BrandID,
		"section":    rec.Section,
		"data":       rec.Data,
		"expires_at": rec.ExpiresAt,
		"updated_at": rec.UpdatedAt,
		"stale":      false,
	})
}

func (h *Handlers) enrichmentError(c *fiber.Ctx, err error, brandID, section string) error {
	switch {
	case errors.Is(err, cache.ErrUnknownSection):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Unknown section", "sections": cache.Sections()})
	case errors.Is(err, storage.ErrBrandNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Brand not found"})
	case errors.Is(err, enrichment.ErrMissingInput):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "Brand has no data for this section"})
	case errors.Is(err, enrichment.ErrNoClient):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "Section source is not configured"})
	}

	if _, ok := vendor.StatusCode(err); ok {
		logger.Get().Warn().Err(err).Str("brand_id", brandID).Str("section", section).Msg("Vendor failed during enrichment")
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "Upstream request failed"})
	}

	logger.Get().Error().Err(err).Str("brand_id", brandID).Str("section", section).Msg("Error refreshing enrichment")
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to refresh enrichment"})
}

// RefreshAllEnrichment handles POST /api/v1/admin/enrichment/refresh
func (h *Handlers) RefreshAllEnrichment(c *fiber.Ctx) error {
	res, err := h.deps.Enrichment.RefreshStale(c.UserContext())
	if err != nil {
		logger.Get().Error().Err(err).Msg("Error refreshing stale enrichment")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to refresh enrichment",
		})
	}
	return c.JSON(res)
}

// ListOpportunities handles GET /api/v1/brands/:brandId/opportunities
func (h *Handlers) ListOpportunities(c *fiber.Ctx) error {
	brandID := c.Params("brandId")

	opps, err := h.deps.Opportunities.ListOpportunities(c.UserContext(), brandID, h.deps.Now())
	if err != nil {
		logger.Get().Error().Err(err).Str("brand_id", brandID).Msg("Error listing opportunities")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list opportunities",
		})
	}

	return c.JSON(fiber.Map{
		"brand_id": brandID,
		"total":    len(opps),
		"items":    opps,
	})
}

// DetectOpportunities handles POST /api/v1/admin/opportunities/detect.
// With ?async=true the run continues in the background.
func (h *Handlers) DetectOpportunities(c *fiber.Ctx) error {
	log := logger.Get()
	start := time.Now()

	log.Info().
		Str("ip", c.IP()).
		Str("method", c.Method()).
		Str("path", c.Path()).
		Bool("async", c.QueryBool("async")).
		Msg("Received detect opportunities request")

	if c.QueryBool("async") {
		err := h.deps.Detector.Start(30 * time.Minute)
		if errors.Is(err, opportunity.ErrAlreadyRunning) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "Detection is already running",
			})
		}
		if err != nil {
			log.Error().Err(err).Msg("Failed to start opportunity detection")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Opportunity detection failed",
			})
		}

		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
			"status":  "started",
			"message": "Opportunity detection started in the background",
		})
	}

	res, err := h.deps.Detector.Run(c.UserContext())
	if errors.Is(err, opportunity.ErrAlreadyRunning) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Detection is already running",
		})
	}
	if err != nil {
		log.Error().Err(err).Msg("Opportunity detection failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Opportunity detection failed",
		})
	}

	log.Info().
		Dur("request_duration", time.Since(start)).
		Msg("Opportunity detection request processed")
	return c.JSON(res)
}

// GenerateContent handles POST /api/v1/content/generate
func (h *Handlers) GenerateContent(c *fiber.Ctx) error {
	var req models.GenerateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	content, err := h.deps.Content.Generate(c.UserContext(), req)
	if err != nil {
		var verr *ai.ValidationError
		if errors.As(err, &verr) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error":  "Validation failed",
				"fields": verr.Fields,
			})
		}

		logger.Get().Error().Err(err).Str("mode", req.Mode).Msg("Content generation failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Content generation failed",
		})
	}

	return c.JSON(content)
}

type listContentQuery struct {
	Page     int `query:"page" validate:"omitempty,min=1"`
	PageSize int `query:"page_size" validate:"omitempty,min=1,max=100"`
}

// ListContent handles GET /api/v1/content
func (h *Handlers) ListContent(c *fiber.Ctx) error {
	q, _ := c.Locals(middleware.QueryParamsKey).(*listContentQuery)
	page, pageSize := 1, 20
	if q != nil {
		if q.Page > 0 {
			page = q.Page
		}
		if q.PageSize > 0 {
			pageSize = q.PageSize
		}
	}

	items, total, err := h.deps.Archive.List(c.UserContext(), page, pageSize)
	if err != nil {
		logger.Get().Error().Err(err).Msg("Error listing content")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list content",
		})
	}

	return c.JSON(fiber.Map{
		"page":      page,
		"page_size": pageSize,
		"total":     total,
		"count":     len(items),
		"items":     items,
	})
}

// GetContent handles GET /api/v1/content/:id
func (h *Handlers) GetContent(c *fiber.Ctx) error {
	id := c.Params("id")

	item, err := h.deps.Archive.Get(c.UserContext(), id)
	if errors.Is(err, storage.ErrContentNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Content not found",
		})
	}
	if err != nil {
		logger.Get().Error().Err(err).Str("id", id).Msg("Error getting content")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get content",
		})
	}

	return c.JSON(item)
}

// DeleteContent handles DELETE /api/v1/admin/content/:id
func (h *Handlers) DeleteContent(c *fiber.Ctx) error {
	id := c.Params("id")

	err := h.deps.Archive.Delete(c.UserContext(), id)
	if errors.Is(err, storage.ErrContentNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Content not found",
		})
	}
	if err != nil {
		logger.Get().Error().Err(err).Str("id", id).Msg("Error deleting content")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete content",
		})
	}

	return c.JSON(fiber.Map{
		"status":  "deleted",
		"message": "Content deleted successfully",
	})
}
