// Package enrichment computes per-brand analysis sections from vendor data
// and keeps them in the enrichment cache.
package enrichment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/marba/synapse/internal/cache"
	"github.com/marba/synapse/internal/logger"
	"github.com/marba/synapse/internal/metrics"
	"github.com/marba/synapse/internal/models"
	"github.com/marba/synapse/internal/vendor"
)

var (
	// ErrMissingInput is returned when a brand lacks the field a section is computed from.
	ErrMissingInput = errors.New("enrichment: brand has no input for section")
	// ErrNoClient is returned when the vendor client for a section is not configured.
	ErrNoClient = errors.New("enrichment: vendor client not configured")
)

const resultsPerSection = 10

// BrandSource loads brands from the hosted database.
type BrandSource interface {
	ActiveBrands(ctx context.Context) ([]models.Brand, error)
	GetBrand(ctx context.Context, id string) (*models.Brand, error)
}

// Clients are the vendor capabilities sections are computed from. Nil
// clients disable their sections.
type Clients struct {
	Weather interface {
		Current(ctx context.Context, location string) (json.RawMessage, error)
	}
	News interface {
		News(ctx context.Context, query string, num int) ([]vendor.NewsArticle, error)
	}
	Search interface {
		Search(ctx context.Context, query string, num int) ([]vendor.SearchResult, error)
	}
	Social interface {
		Trending(ctx context.Context, topic string, days int) ([]json.RawMessage, error)
	}
	SEO interface {
		DomainOverview(ctx context.Context, domain, database string) ([]vendor.Record, error)
	}
}

// Lookup is a cached section together with its freshness at read time.
type Lookup struct {
	Record *models.EnrichmentRecord `json:"record"`
	Stale  bool                     `json:"stale"`
}

// RefreshResult summarises one RefreshStale pass.
type RefreshResult struct {
	Brands    int `json:"brands"`
	Refreshed int `json:"refreshed"`
	Fresh     int `json:"fresh"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// Service computes and caches enrichment sections.
type Service struct {
	store   cache.Store
	brands  BrandSource
	clients Clients
	now     func() time.Time
	log     zerolog.Logger
}

func NewService(store cache.Store, brands BrandSource, clients Clients, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		store:   store,
		brands:  brands,
		clients: clients,
		now:     now,
		log:     logger.With("enrichment"),
	}
}

// Analyze computes section for brand and stores it with the section TTL.
func (s *Service) Analyze(ctx context.Context, brand models.Brand, section string) (*models.EnrichmentRecord, error) {
	ttl, err := cache.SectionTTL(section)
	if err != nil {
		return nil, err
	}

	payload, err := s.compute(ctx, brand, section)
	if err != nil {
		if !errors.Is(err, ErrMissingInput) && !errors.Is(err, ErrNoClient) {
			metrics.EnrichmentRefreshes.WithLabelValues(section, "error").Inc()
		}
		return nil, err
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s section: %w", section, err)
	}

	rec, err := s.store.Put(ctx, brand.ID, section, data, ttl)
	if err != nil {
		metrics.EnrichmentRefreshes.WithLabelValues(section, "error").Inc()
		return nil, err
	}
	metrics.EnrichmentRefreshes.WithLabelValues(section, "success").Inc()
	return rec, nil
}

// Refresh loads the brand and recomputes one section.
func (s *Service) Refresh(ctx context.Context, brandID, section string) (*models.EnrichmentRecord, error) {
	if _, err := cache.SectionTTL(section); err != nil {
		return nil, err
	}
	brand, err := s.brands.GetBrand(ctx, brandID)
	if err != nil {
		return nil, err
	}
	return s.Analyze(ctx, *brand, section)
}

// Lookup returns the cached section and whether it is stale now.
func (s *Service) Lookup(ctx context.Context, brandID, section string) (*Lookup, error) {
	if _, err := cache.SectionTTL(section); err != nil {
		return nil, err
	}
	rec, err := cache.GetFresh(ctx, s.store, s.now(), brandID, section)
	switch {
	case errors.Is(err, cache.ErrStale):
		return &Lookup{Record: rec, Stale: true}, nil
	case err != nil:
		return nil, err
	}
	return &Lookup{Record: rec}, nil
}

// RefreshStale recomputes every absent or stale section of every active brand.
// Brands and sections are processed sequentially; failures are counted.
func (s *Service) RefreshStale(ctx context.Context) (*RefreshResult, error) {
	brands, err := s.brands.ActiveBrands(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active brands: %w", err)
	}

	res := &RefreshResult{Brands: len(brands)}
	for _, brand := range brands {
		for _, section := range cache.Sections() {
			if err := ctx.Err(); err != nil {
				return res, err
			}

			_, err := cache.GetFresh(ctx, s.store, s.now(), brand.ID, section)
			if err == nil {
				res.Fresh++
				continue
			}
			if !errors.Is(err, cache.ErrStale) && !errors.Is(err, cache.ErrNotFound) {
				res.Failed++
				s.log.Error().Err(err).Str("brand_id", brand.ID).Str("section", section).Msg("Failed to read enrichment")
				continue
			}

			_, err = s.Analyze(ctx, brand, section)
			switch {
			case err == nil:
				res.Refreshed++
			case errors.Is(err, ErrMissingInput), errors.Is(err, ErrNoClient):
				res.Skipped++
			default:
				res.Failed++
				s.log.Error().Err(err).Str("brand_id", brand.ID).Str("section", section).Msg("Failed to refresh enrichment")
			}
		}
	}

	s.log.Info().
		Int("brands", res.Brands).
		Int("refreshed", res.Refreshed).
		Int("skipped", res.Skipped).
		Int("failed", res.Failed).
		Msg("Enrichment refresh finished")
	return res, nil
}

func (s *Service) compute(ctx context.Context, brand models.Brand, section string) (any, error) {
	switch section {
	case cache.SectionWeather:
		if s.clients.Weather == nil {
			return nil, ErrNoClient
		}
		if brand.Location == "" {
			return nil, ErrMissingInput
		}
		return s.clients.Weather.Current(ctx, brand.Location)

	case cache.SectionNews:
		if s.clients.News == nil {
			return nil, ErrNoClient
		}
		if brand.Industry == "" {
			return nil, ErrMissingInput
		}
		return s.clients.News.News(ctx, brand.Industry+" industry news", resultsPerSection)

	case cache.SectionSocial:
		if s.clients.Social == nil {
			return nil, ErrNoClient
		}
		if brand.Industry == "" {
			return nil, ErrMissingInput
		}
		return s.clients.Social.Trending(ctx, brand.Industry, 7)

	case cache.SectionSearch:
		if s.clients.Search == nil {
			return nil, ErrNoClient
		}
		if brand.Name == "" {
			return nil, ErrMissingInput
		}
		return s.clients.Search.Search(ctx, brand.Name, resultsPerSection)

	case cache.SectionCompetitors:
		if s.clients.Search == nil {
			return nil, ErrNoClient
		}
		if brand.Industry == "" || brand.Location == "" {
			return nil, ErrMissingInput
		}
		return s.clients.Search.Search(ctx, fmt.Sprintf("%s companies near %s", brand.Industry, brand.Location), resultsPerSection)

	case cache.SectionSEO:
		if s.clients.SEO == nil {
			return nil, ErrNoClient
		}
		if brand.Website == "" {
			return nil, ErrMissingInput
		}
		recs, err := s.clients.SEO.DomainOverview(ctx, brand.Website, "")
		if err != nil {
			return nil, err
		}
		if len(recs) == 0 {
			return vendor.Record{}, nil
		}
		return recs[0], nil
	}
	return nil, fmt.Errorf("%w: %q", cache.ErrUnknownSection, section)
}
