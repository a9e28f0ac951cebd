// Package opportunity runs the rule-based opportunity detector over all
// active brands.
package opportunity

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/marba/synapse/internal/logger"
	"github.com/marba/synapse/internal/metrics"
	"github.com/marba/synapse/internal/models"
	"github.com/marba/synapse/internal/vendor"
)

// ErrAlreadyRunning is returned when a run is requested while one is in progress.
var ErrAlreadyRunning = errors.New("opportunity: detector already running")

const (
	weatherWindow     = 4 * time.Hour
	weatherConfidence = 0.8
	seasonConfidence  = 0.9
)

// BrandSource lists the brands to scan.
type BrandSource interface {
	ActiveBrands(ctx context.Context) ([]models.Brand, error)
}

// Store persists detected opportunities.
type Store interface {
	InsertOpportunities(ctx context.Context, opps []models.Opportunity) error
	DeleteExpiredOpportunities(ctx context.Context, brandID string, now time.Time) (int64, error)
}

// WeatherLookup fetches current conditions for a location.
type WeatherLookup interface {
	CurrentConditions(ctx context.Context, location string) (*vendor.Conditions, error)
}

// Publisher announces inserted opportunities.
type Publisher interface {
	PublishOpportunity(opp models.Opportunity) error
}

// Result summarises one detector run.
type Result struct {
	TotalBrands           int                            `json:"total_brands"`
	OpportunitiesDetected int                            `json:"opportunities_detected"`
	ByType                map[models.OpportunityType]int `json:"by_type"`
	FailedBrands          int                            `json:"failed_brands"`
	ExpiredDeleted        int64                          `json:"expired_deleted"`
	StartedAt             time.Time                      `json:"started_at"`
	FinishedAt            time.Time                      `json:"finished_at"`
}

// rule yields at most one opportunity for a brand.
type rule func(ctx context.Context, brand models.Brand, now time.Time) (*models.Opportunity, error)

// Detector evaluates the ordered rule list for every active brand.
type Detector struct {
	brands    BrandSource
	store     Store
	weather   WeatherLookup
	publisher Publisher
	now       func() time.Time
	newID     func() string
	rules     []rule
	running   atomic.Bool
	log       zerolog.Logger
}

// Option customises a Detector.
type Option func(*Detector)

// WithWeather enriches weather opportunities with live conditions.
func WithWeather(w WeatherLookup) Option {
	return func(d *Detector) { d.weather = w }
}

// WithPublisher publishes every inserted opportunity.
func WithPublisher(p Publisher) Option {
	return func(d *Detector) { d.publisher = p }
}

// WithClock overrides the detection time source.
func WithClock(now func() time.Time) Option {
	return func(d *Detector) { d.now = now }
}

// WithIDGenerator overrides opportunity id generation.
func WithIDGenerator(fn func() string) Option {
	return func(d *Detector) { d.newID = fn }
}

func NewDetector(brands BrandSource, store Store, opts ...Option) *Detector {
	d := &Detector{
		brands: brands,
		store:  store,
		now:    time.Now,
		newID:  uuid.NewString,
		log:    logger.With("opportunity-detector"),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.rules = []rule{d.weatherRule, d.seasonalRule}
	return d
}

// Run processes every active brand once. Only a failure to list brands is
// returned as an error; per-brand failures are counted in the result.
func (d *Detector) Run(ctx context.Context) (*Result, error) {
	if !d.running.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRunning
	}
	defer d.running.Store(false)

	return d.run(ctx)
}

// Start claims the detector and runs it in the background with the given
// timeout. It returns ErrAlreadyRunning without starting when a run is in
// progress.
func (d *Detector) Start(timeout time.Duration) error {
	if !d.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	go func() {
		defer d.running.Store(false)

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if _, err := d.run(ctx); err != nil {
			d.log.Error().Err(err).Msg("Background opportunity detection failed")
		}
	}()
	return nil
}

func (d *Detector) run(ctx context.Context) (*Result, error) {
	res := &Result{
		ByType:    make(map[models.OpportunityType]int),
		StartedAt: d.now().UTC(),
	}

	brands, err := d.brands.ActiveBrands(ctx)
	if err != nil {
		metrics.DetectorRunsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("list active brands: %w", err)
	}
	res.TotalBrands = len(brands)

	for _, brand := range brands {
		if err := ctx.Err(); err != nil {
			metrics.DetectorRunsTotal.WithLabelValues("cancelled").Inc()
			return nil, err
		}

		inserted, deleted, err := d.processBrand(ctx, brand)
		if err != nil {
			res.FailedBrands++
			metrics.DetectorBrandFailures.Inc()
			d.log.Error().
				Err(err).
				Str("brand_id", brand.ID).
				Msg("Opportunity detection failed for brand")
			continue
		}

		res.ExpiredDeleted += deleted
		for _, opp := range inserted {
			res.OpportunitiesDetected++
			res.ByType[opp.Type]++
		}
	}

	res.FinishedAt = d.now().UTC()
	metrics.DetectorRunsTotal.WithLabelValues("success").Inc()

	d.log.Info().
		Int("total_brands", res.TotalBrands).
		Int("opportunities_detected", res.OpportunitiesDetected).
		Int("failed_brands", res.FailedBrands).
		Int64("expired_deleted", res.ExpiredDeleted).
		Dur("duration", res.FinishedAt.Sub(res.StartedAt)).
		Msg("Opportunity detection finished")

	return res, nil
}

func (d *Detector) processBrand(ctx context.Context, brand models.Brand) ([]models.Opportunity, int64, error) {
	now := d.now().UTC()

	var opps []models.Opportunity
	for _, r := range d.rules {
		opp, err := r(ctx, brand, now)
		if err != nil {
			return nil, 0, err
		}
		if opp == nil {
			continue
		}
		if err := opp.Validate(); err != nil {
			return nil, 0, fmt.Errorf("rule produced invalid opportunity: %w", err)
		}
		opps = append(opps, *opp)
	}

	if len(opps) > 0 {
		if err := d.store.InsertOpportunities(ctx, opps); err != nil {
			return nil, 0, err
		}
		for _, opp := range opps {
			metrics.OpportunitiesDetected.WithLabelValues(string(opp.Type)).Inc()
		}
		d.publish(opps)
	}

	deleted, err := d.store.DeleteExpiredOpportunities(ctx, brand.ID, now)
	if err != nil {
		return nil, 0, err
	}
	metrics.ExpiredOpportunitiesDeleted.Add(float64(deleted))

	return opps, deleted, nil
}

func (d *Detector) publish(opps []models.Opportunity) {
	if d.publisher == nil {
		return
	}
	for _, opp := range opps {
		if err := d.publisher.PublishOpportunity(opp); err != nil {
			d.log.Warn().
				Err(err).
				Str("opportunity_id", opp.ID).
				Msg("Failed to publish opportunity")
		}
	}
}

func (d *Detector) weatherRule(ctx context.Context, brand models.Brand, now time.Time) (*models.Opportunity, error) {
	if brand.Location == "" {
		return nil, nil
	}

	description := fmt.Sprintf("Local weather in %s can drive a timely promotion for %s.", brand.Location, brand.Name)
	if d.weather != nil {
		cond, err := d.weather.CurrentConditions(ctx, brand.Location)
		if err != nil {
			return nil, fmt.Errorf("weather lookup for %q: %w", brand.Location, err)
		}
		description = fmt.Sprintf("It is %.0f°F with %s in %s. Tie today's promotion for %s to the weather.",
			cond.Temperature, orDefault(cond.Summary, "current conditions"), brand.Location, brand.Name)
	}

	return &models.Opportunity{
		ID:              d.newID(),
		BrandID:         brand.ID,
		Type:            models.OpportunityWeather,
		Title:           "Weather-driven campaign in " + brand.Location,
		Description:     description,
		Urgency:         models.UrgencyHigh,
		ConfidenceScore: weatherConfidence,
		Source:          "weather_api",
		DetectedAt:      now,
		ExpiresAt:       now.Add(weatherWindow),
	}, nil
}

func (d *Detector) seasonalRule(_ context.Context, brand models.Brand, now time.Time) (*models.Opportunity, error) {
	if now.Month() != time.December {
		return nil, nil
	}

	expires := time.Date(now.Year(), time.December, 31, 23, 59, 59, 0, time.UTC)
	if !expires.After(now) {
		return nil, nil
	}

	return &models.Opportunity{
		ID:              d.newID(),
		BrandID:         brand.ID,
		Type:            models.OpportunitySeasonal,
		Title:           "Holiday season campaign",
		Description:     fmt.Sprintf("December shoppers are looking for gifts and year-end offers. Launch a holiday campaign for %s.", brand.Name),
		Urgency:         models.UrgencyMedium,
		ConfidenceScore: seasonConfidence,
		Source:          "seasonal_calendar",
		DetectedAt:      now,
		ExpiresAt:       expires,
	}, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
