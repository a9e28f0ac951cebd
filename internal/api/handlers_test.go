package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marba/synapse/internal/ai"
	"github.com/marba/synapse/internal/cache"
	"github.com/marba/synapse/internal/enrichment"
	"github.com/marba/synapse/internal/middleware"
	"github.com/marba/synapse/internal/models"
	"github.com/marba/synapse/internal/opportunity"
	"github.com/marba/synapse/internal/proxy"
	"github.com/marba/synapse/internal/storage"
)

var now = time.Date(2024, 12, 15, 10, 0, 0, 0, time.UTC)

type fakeEnrichment struct {
	lookup *enrichment.Lookup
	err    error
}

func (f *fakeEnrichment) Lookup(ctx context.Context, brandID, section string) (*enrichment.Lookup, error) {
	return f.lookup, f.err
}

func (f *fakeEnrichment) Refresh(ctx context.Context, brandID, section string) (*models.EnrichmentRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.lookup.Record, nil
}

func (f *fakeEnrichment) RefreshStale(ctx context.Context) (*enrichment.RefreshResult, error) {
	return &enrichment.RefreshResult{Brands: 1, Refreshed: 2}, f.err
}

type fakeDetector struct {
	runs int
	err  error
}

func (f *fakeDetector) Run(ctx context.Context) (*opportunity.Result, error) {
	f.runs++
	if f.err != nil {
		return nil, f.err
	}
	return &opportunity.Result{
		TotalBrands:           1,
		OpportunitiesDetected: 2,
		ByType:                map[models.OpportunityType]int{models.OpportunityWeather: 1, models.OpportunitySeasonal: 1},
	}, nil
}

func (f *fakeDetector) Start(timeout time.Duration) error {
	f.runs++
	return f.err
}

type blockingBrands struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingBrands) ActiveBrands(ctx context.Context) ([]models.Brand, error) {
	b.entered <- struct{}{}
	<-b.release
	return nil, nil
}

type noopStore struct{}

func (noopStore) InsertOpportunities(ctx context.Context, opps []models.Opportunity) error {
	return nil
}

func (noopStore) DeleteExpiredOpportunities(ctx context.Context, brandID string, now time.Time) (int64, error) {
	return 0, nil
}

type fakeOpportunities struct{}

func (fakeOpportunities) ListOpportunities(ctx context.Context, brandID string, at time.Time) ([]models.Opportunity, error) {
	return []models.Opportunity{{ID: "o1", BrandID: brandID, Type: models.OpportunityWeather}}, nil
}

type fakeGenerator struct {
	err error
}

func (f fakeGenerator) Generate(ctx context.Context, req models.GenerateRequest) (*models.GeneratedContent, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.GeneratedContent{Text: "hello " + req.Topic, Variations: []string{}, Metadata: models.GenerationMetadata{ID: "c1", Mode: req.Mode}}, nil
}

func newTestApp(deps Dependencies) *fiber.App {
	if deps.Now == nil {
		deps.Now = func() time.Time { return now }
	}
	app := fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler})
	SetupRoutes(app, deps)
	return app
}

func do(t *testing.T, app *fiber.App, method, path, body string, headers ...string) (*http.Response, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	var out map[string]any
	data, _ := io.ReadAll(resp.Body)
	_ = json.Unmarshal(data, &out)
	return resp, out
}

func TestHealthCheck(t *testing.T) {
	app := newTestApp(Dependencies{Checks: map[string]HealthCheck{
		"redis": func(ctx context.Context) error { return nil },
	}})

	resp, out := do(t, app, http.MethodGet, "/api/v1/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", out["status"])

	app = newTestApp(Dependencies{Checks: map[string]HealthCheck{
		"postgres": func(ctx context.Context) error { return errors.New("down") },
	}})
	resp, out = do(t, app, http.MethodGet, "/api/v1/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "degraded", out["status"])
}

func TestGetEnrichment(t *testing.T) {
	rec := &models.EnrichmentRecord{BrandID: "b1", Section: "weather", Data: json.RawMessage(`{"temp":72}`), ExpiresAt: now}
	app := newTestApp(Dependencies{Enrichment: &fakeEnrichment{lookup: &enrichment.Lookup{Record: rec, Stale: true}}})

	resp, out := do(t, app, http.MethodGet, "/api/v1/brands/b1/enrichment/weather", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, out["stale"])
	assert.Equal(t, map[string]any{"temp": float64(72)}, out["data"])

	app = newTestApp(Dependencies{Enrichment: &fakeEnrichment{err: cache.ErrNotFound}})
	resp, _ = do(t, app, http.MethodGet, "/api/v1/brands/b1/enrichment/weather", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	app = newTestApp(Dependencies{Enrichment: &fakeEnrichment{err: cache.ErrUnknownSection}})
	resp, _ = do(t, app, http.MethodGet, "/api/v1/brands/b1/enrichment/horoscope", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRefreshEnrichment_Errors(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{storage.ErrBrandNotFound, http.StatusNotFound},
		{enrichment.ErrMissingInput, http.StatusUnprocessableEntity},
		{enrichment.ErrNoClient, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		app := newTestApp(Dependencies{Enrichment: &fakeEnrichment{err: tt.err}})
		resp, _ := do(t, app, http.MethodPost, "/api/v1/brands/b1/enrichment/weather/refresh", "")
		assert.Equal(t, tt.status, resp.StatusCode, tt.err.Error())
	}
}

func TestDetectOpportunities_RequiresAdmin(t *testing.T) {
	det := &fakeDetector{}
	app := newTestApp(Dependencies{AdminAPIKey: "admin", Detector: det})

	resp, _ := do(t, app, http.MethodPost, "/api/v1/admin/opportunities/detect", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, 0, det.runs)

	resp, out := do(t, app, http.MethodPost, "/api/v1/admin/opportunities/detect", "", "X-API-Key", "admin")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(2), out["opportunities_detected"])
	assert.Equal(t, map[string]any{"weather": float64(1), "seasonal": float64(1)}, out["by_type"])
}

func TestDetectOpportunities_AlreadyRunning(t *testing.T) {
	app := newTestApp(Dependencies{AdminAPIKey: "admin", Detector: &fakeDetector{err: opportunity.ErrAlreadyRunning}})
	resp, _ := do(t, app, http.MethodPost, "/api/v1/admin/opportunities/detect", "", "X-API-Key", "admin")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestDetectOpportunities_AsyncConflict(t *testing.T) {
	brands := &blockingBrands{entered: make(chan struct{}, 1), release: make(chan struct{})}
	defer close(brands.release)

	app := newTestApp(Dependencies{AdminAPIKey: "admin", Detector: opportunity.NewDetector(brands, noopStore{})})

	resp, out := do(t, app, http.MethodPost, "/api/v1/admin/opportunities/detect?async=true", "", "X-API-Key", "admin")
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "started", out["status"])
	<-brands.entered

	resp, _ = do(t, app, http.MethodPost, "/api/v1/admin/opportunities/detect?async=true", "", "X-API-Key", "admin")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = do(t, app, http.MethodPost, "/api/v1/admin/opportunities/detect", "", "X-API-Key", "admin")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestListOpportunities(t *testing.T) {
	app := newTestApp(Dependencies{Opportunities: fakeOpportunities{}})
	resp, out := do(t, app, http.MethodGet, "/api/v1/brands/b9/opportunities", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "b9", out["brand_id"])
	assert.Equal(t, float64(1), out["total"])
}

func TestGenerateContent(t *testing.T) {
	app := newTestApp(Dependencies{Content: fakeGenerator{}})
	resp, out := do(t, app, http.MethodPost, "/api/v1/content/generate", `{"mode":"fast","topic":"lattes"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "hello lattes", out["text"])

	resp, _ = do(t, app, http.MethodPost, "/api/v1/content/generate", `{"mode":`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	app = newTestApp(Dependencies{Content: fakeGenerator{err: &ai.ValidationError{Fields: map[string]string{"Mode": "oneof"}}}})
	resp, out = do(t, app, http.MethodPost, "/api/v1/content/generate", `{"mode":"slow"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, map[string]any{"Mode": "oneof"}, out["fields"])

	app = newTestApp(Dependencies{Content: fakeGenerator{err: errors.New("model exploded")}})
	resp, out = do(t, app, http.MethodPost, "/api/v1/content/generate", `{"mode":"enhanced","topic":"x"}`)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "Content generation failed", out["error"])
}

func TestGenerateContent_WithDispatcherAndArchive(t *testing.T) {
	archive, err := storage.NewContentArchive(t.TempDir())
	require.NoError(t, err)

	dispatcher := ai.NewDispatcher(ai.WithArchive(archive), ai.WithClock(func() time.Time { return now }))
	app := newTestApp(Dependencies{Content: dispatcher, Archive: archive, AdminAPIKey: "admin"})

	resp, out := do(t, app, http.MethodPost, "/api/v1/content/generate", `{"mode":"enhanced","topic":"gift cards","concepts":["joy","gifts"]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	meta := out["metadata"].(map[string]any)
	id := meta["id"].(string)
	assert.Contains(t, meta, "psychology_score")
	assert.Len(t, meta["connections"], 1)

	resp, out = do(t, app, http.MethodGet, "/api/v1/content?page=1&page_size=10", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), out["total"])

	resp, _ = do(t, app, http.MethodPost, "/api/v1/content/generate", `{"mode":"fast","topic":"cold brew"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, out = do(t, app, http.MethodGet, "/api/v1/content?page=2&page_size=1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(2), out["total"], "total counts the whole archive")
	assert.Equal(t, float64(1), out["count"])

	resp, _ = do(t, app, http.MethodGet, "/api/v1/content?page_size=1000", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, app, http.MethodGet, "/api/v1/content/"+id, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = do(t, app, http.MethodDelete, "/api/v1/admin/content/"+id, "", "X-API-Key", "admin")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = do(t, app, http.MethodGet, "/api/v1/content/"+id, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

type echoWeather struct{}

func (echoWeather) Current(ctx context.Context, location string) (json.RawMessage, error) {
	return json.RawMessage(`{"main":{"temp":72}}`), nil
}

func (echoWeather) Forecast(ctx context.Context, location string) (json.RawMessage, error) {
	return json.RawMessage(`{"list":[]}`), nil
}

func TestProxyRoutes(t *testing.T) {
	app := newTestApp(Dependencies{Proxies: &proxy.Set{Weather: proxy.NewWeather(echoWeather{})}})

	resp, out := do(t, app, http.MethodPost, "/functions/v1/weather", `{"action":"current","location":"Austin,TX"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	resp, _ = do(t, app, http.MethodOptions, "/functions/v1/weather", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = do(t, app, http.MethodPost, "/functions/v1/seo", `{"action":"backlinks"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "unconfigured proxies are not mounted")
}

func TestBrowserLoggerRouteOnlyWhenEnabled(t *testing.T) {
	app := newTestApp(Dependencies{})
	resp, _ := do(t, app, http.MethodPost, "/__br_logger", "line")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var sb strings.Builder
	app = newTestApp(Dependencies{BrowserLog: &sb})
	resp, _ = do(t, app, http.MethodPost, "/__br_logger", "line")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "line\n", sb.String())

	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodOptions} {
		resp, _ = do(t, app, method, "/__br_logger", "")
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode, method)
	}
	assert.Equal(t, "line\n", sb.String())
}

func TestMetricsEndpoint(t *testing.T) {
	app := newTestApp(Dependencies{})
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
