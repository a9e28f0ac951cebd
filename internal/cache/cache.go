package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/marba/synapse/internal/models"
)

var (
	// ErrNotFound is returned when no record exists for a (brand, section) key.
	ErrNotFound = errors.New("cache: enrichment record not found")
	// ErrStale is returned by GetFresh alongside a record past its expiry.
	ErrStale = errors.New("cache: enrichment record is stale")
	// ErrUnknownSection is returned for sections without a configured TTL.
	ErrUnknownSection = errors.New("cache: unknown enrichment section")
)

// Enrichment sections and how long a computed result stays fresh.
const (
	SectionWeather     = "weather"
	SectionNews        = "news"
	SectionSocial      = "social"
	SectionSearch      = "search"
	SectionCompetitors = "competitors"
	SectionSEO         = "seo"
)

var sectionTTLs = map[string]time.Duration{
	SectionWeather:     6 * time.Hour,
	SectionNews:        6 * time.Hour,
	SectionSocial:      6 * time.Hour,
	SectionSearch:      24 * time.Hour,
	SectionCompetitors: 24 * time.Hour,
	SectionSEO:         7 * 24 * time.Hour,
}

// SectionTTL returns the freshness window for section.
func SectionTTL(section string) (time.Duration, error) {
	ttl, ok := sectionTTLs[section]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownSection, section)
	}
	return ttl, nil
}

// Sections lists every known section in refresh order.
func Sections() []string {
	return []string{SectionWeather, SectionNews, SectionSocial, SectionSearch, SectionCompetitors, SectionSEO}
}

// Store is a keyed (brand, section) store of enrichment results. Writes upsert
// with last-write-wins semantics; staleness is judged by readers.
type Store interface {
	Get(ctx context.Context, brandID, section string) (*models.EnrichmentRecord, error)
	Put(ctx context.Context, brandID, section string, data json.RawMessage, ttl time.Duration) (*models.EnrichmentRecord, error)
	Close() error
}

// Clock returns the current time. Stores take one so tests can move time.
type Clock func() time.Time

// GetFresh returns the record only if it is still fresh. Stale records are
// returned together with ErrStale.
func GetFresh(ctx context.Context, s Store, now time.Time, brandID, section string) (*models.EnrichmentRecord, error) {
	rec, err := s.Get(ctx, brandID, section)
	if err != nil {
		return nil, err
	}
	if rec.IsStale(now) {
		return rec, ErrStale
	}
	return rec, nil
}

func newRecord(brandID, section string, data json.RawMessage, ttl time.Duration, now time.Time) (*models.EnrichmentRecord, error) {
	if brandID == "" || section == "" {
		return nil, errors.New("cache: brand id and section are required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("cache: ttl must be positive, got %v", ttl)
	}
	if !json.Valid(data) {
		return nil, errors.New("cache: data must be valid JSON")
	}
	return &models.EnrichmentRecord{
		BrandID:   brandID,
		Section:   section,
		Data:      append(json.RawMessage(nil), data...),
		ExpiresAt: now.Add(ttl),
		UpdatedAt: now,
	}, nil
}
