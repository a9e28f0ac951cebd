package enrichment

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marba/synapse/internal/cache"
	"github.com/marba/synapse/internal/models"
	"github.com/marba/synapse/internal/storage"
	"github.com/marba/synapse/internal/vendor"
)

type clock struct{ t time.Time }

func (c *clock) Now() time.Time { return c.t }

type brandList []models.Brand

func (b brandList) ActiveBrands(ctx context.Context) ([]models.Brand, error) { return b, nil }

func (b brandList) GetBrand(ctx context.Context, id string) (*models.Brand, error) {
	for _, br := range b {
		if br.ID == id {
			return &br, nil
		}
	}
	return nil, storage.ErrBrandNotFound
}

type stubWeather struct{ calls int }

func (s *stubWeather) Current(ctx context.Context, location string) (json.RawMessage, error) {
	s.calls++
	return json.RawMessage(`{"main":{"temp":72}}`), nil
}

type stubNews struct{ err error }

func (s *stubNews) News(ctx context.Context, query string, num int) ([]vendor.NewsArticle, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []vendor.NewsArticle{{Title: query}}, nil
}

func newService(t *testing.T, brands brandList, clients Clients) (*Service, *clock) {
	t.Helper()
	c := &clock{t: time.Date(2024, 12, 15, 10, 0, 0, 0, time.UTC)}
	store := cache.NewMemoryStore(c.Now)
	return NewService(store, brands, clients, c.Now), c
}

func TestAnalyzeAndLookup(t *testing.T) {
	ctx := context.Background()
	weather := &stubWeather{}
	svc, c := newService(t, nil, Clients{Weather: weather})

	brand := models.Brand{ID: "b1", Location: "Austin,TX"}
	rec, err := svc.Analyze(ctx, brand, cache.SectionWeather)
	require.NoError(t, err)
	assert.Equal(t, c.t.Add(6*time.Hour), rec.ExpiresAt)

	got, err := svc.Lookup(ctx, "b1", cache.SectionWeather)
	require.NoError(t, err)
	assert.False(t, got.Stale)
	assert.JSONEq(t, `{"main":{"temp":72}}`, string(got.Record.Data))

	c.t = c.t.Add(6*time.Hour + time.Second)
	got, err = svc.Lookup(ctx, "b1", cache.SectionWeather)
	require.NoError(t, err)
	assert.True(t, got.Stale)
}

func TestAnalyze_MissingInputAndClient(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, nil, Clients{Weather: &stubWeather{}})

	_, err := svc.Analyze(ctx, models.Brand{ID: "b1"}, cache.SectionWeather)
	assert.True(t, errors.Is(err, ErrMissingInput))

	_, err = svc.Analyze(ctx, models.Brand{ID: "b1", Industry: "coffee"}, cache.SectionNews)
	assert.True(t, errors.Is(err, ErrNoClient))

	_, err = svc.Analyze(ctx, models.Brand{ID: "b1"}, "horoscope")
	assert.True(t, errors.Is(err, cache.ErrUnknownSection))
}

func TestLookup_NotFound(t *testing.T) {
	svc, _ := newService(t, nil, Clients{})
	_, err := svc.Lookup(context.Background(), "b1", cache.SectionSEO)
	assert.True(t, errors.Is(err, cache.ErrNotFound))
}

func TestRefresh_UnknownBrand(t *testing.T) {
	svc, _ := newService(t, brandList{}, Clients{Weather: &stubWeather{}})
	_, err := svc.Refresh(context.Background(), "nope", cache.SectionWeather)
	assert.True(t, errors.Is(err, storage.ErrBrandNotFound))
}

func TestRefreshStale(t *testing.T) {
	ctx := context.Background()
	weather := &stubWeather{}
	brands := brandList{
		{ID: "b1", Location: "Austin,TX", Industry: "coffee"},
		{ID: "b2", Industry: "bakery"},
	}
	svc, c := newService(t, brands, Clients{Weather: weather, News: &stubNews{}})

	res, err := svc.RefreshStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Brands)
	// b1: weather + news; b2: news only.
	assert.Equal(t, 3, res.Refreshed)
	assert.Equal(t, 0, res.Failed)
	assert.Equal(t, 1, weather.calls)

	res, err = svc.RefreshStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Refreshed)
	assert.Equal(t, 3, res.Fresh)
	assert.Equal(t, 1, weather.calls, "fresh sections are not recomputed")

	c.t = c.t.Add(7 * time.Hour)
	res, err = svc.RefreshStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Refreshed)
	assert.Equal(t, 2, weather.calls)
}

func TestRefreshStale_FailuresDoNotAbort(t *testing.T) {
	brands := brandList{
		{ID: "b1", Location: "Austin,TX", Industry: "coffee"},
		{ID: "b2", Location: "Denver,CO", Industry: "bakery"},
	}
	weather := &stubWeather{}
	svc, _ := newService(t, brands, Clients{
		Weather: weather,
		News:    &stubNews{err: &vendor.StatusError{Vendor: "Serper", StatusCode: 500}},
	})

	res, err := svc.RefreshStale(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Failed)
	assert.Equal(t, 2, res.Refreshed)
	assert.Equal(t, 2, weather.calls)
}
