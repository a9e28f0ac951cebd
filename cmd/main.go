package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/marba/synapse/internal/ai"
	"github.com/marba/synapse/internal/api"
	"github.com/marba/synapse/internal/cache"
	"github.com/marba/synapse/internal/config"
	"github.com/marba/synapse/internal/devlog"
	"github.com/marba/synapse/internal/enrichment"
	"github.com/marba/synapse/internal/events"
	"github.com/marba/synapse/internal/logger"
	"github.com/marba/synapse/internal/metrics"
	"github.com/marba/synapse/internal/middleware"
	"github.com/marba/synapse/internal/opportunity"
	"github.com/marba/synapse/internal/proxy"
	"github.com/marba/synapse/internal/scheduler"
	"github.com/marba/synapse/internal/storage"
	"github.com/marba/synapse/internal/vendor"
)

const serviceName = "synapse"

func main() {
	// Load and validate configuration
	cfg := config.Load()

	// Ship our own logs to a remote browser-logger endpoint when configured
	var shipper *devlog.Shipper
	logCfg := logger.Config{
		Level:  cfg.LogLevel,
		Output: "stdout",
		Pretty: cfg.IsDevelopment(),
	}
	if cfg.LogFile != "" {
		logCfg.Output = cfg.LogFile
	}
	if cfg.LogShipURL != "" {
		shipper = devlog.NewShipper(devlog.ShipperConfig{URL: cfg.LogShipURL})
		logCfg.Tee = shipper
	}
	if err := logger.Init(logCfg); err != nil {
		panic(err)
	}

	log := logger.Get()
	log.Info().Str("env", cfg.Env).Msg("Starting application...")

	metrics.Init(serviceName, "1.0.0", cfg.Env)

	// Enrichment cache
	var store cache.Store
	checks := map[string]api.HealthCheck{}
	if cfg.RedisURL != "" {
		redisStore, err := cache.NewRedisStore(cfg.RedisURL, cfg.RedisPrefix, cfg.StaleRetention)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize Redis store")
		}
		store = redisStore
		checks["redis"] = redisStore.Ping
	} else {
		log.Warn().Msg("REDIS_URL not set, using in-memory enrichment cache")
		store = cache.NewMemoryStore(nil)
	}
	defer func() {
		log.Info().Msg("Closing enrichment cache...")
		if err := store.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing enrichment cache")
		}
	}()

	// Hosted database
	var repo *storage.Repository
	if cfg.DatabaseURL != "" {
		db, err := storage.Open(context.Background(), cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer closeDB(log, db)
		repo = storage.NewRepository(db)
		checks["postgres"] = db.PingContext
	} else {
		log.Warn().Msg("DATABASE_URL not set, brand-backed features are disabled")
	}

	vendors := newVendors(cfg)
	deps := api.Dependencies{
		AdminAPIKey: cfg.AdminAPIKey,
		Proxies:     vendors.proxies(),
		Checks:      checks,
	}

	// Background jobs
	sched := scheduler.New()

	if repo != nil {
		svc := enrichment.NewService(store, repo, vendors.enrichmentClients(), time.Now)
		deps.Enrichment = svc
		deps.Opportunities = repo

		detectorOpts := []opportunity.Option{}
		if vendors.weather != nil {
			detectorOpts = append(detectorOpts, opportunity.WithWeather(vendors.weather))
		}
		if cfg.NATSUrl != "" {
			publisher, err := events.NewNATSPublisher(events.NATSConfig{URL: cfg.NATSUrl, Subject: cfg.NATSSubject})
			if err != nil {
				log.Error().Err(err).Msg("Failed to connect to NATS, opportunities will not be published")
			} else {
				defer publisher.Close()
				detectorOpts = append(detectorOpts, opportunity.WithPublisher(publisher))
			}
		}
		detector := opportunity.NewDetector(repo, repo, detectorOpts...)
		deps.Detector = detector

		if cfg.SchedulerEnabled {
			mustAdd(log, sched, scheduler.Job{
				Name:     "opportunity-detector",
				Interval: cfg.DetectorInterval,
				Run: func(ctx context.Context) error {
					_, err := detector.Run(ctx)
					return err
				},
			})
			mustAdd(log, sched, scheduler.Job{
				Name:     "enrichment-refresh",
				Interval: cfg.EnrichmentInterval,
				Run: func(ctx context.Context) error {
					_, err := svc.RefreshStale(ctx)
					return err
				},
			})
		}
	}

	// Content generation
	archive, err := storage.NewContentArchive(cfg.ContentArchivePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize content archive")
	}
	dispatcherOpts := []ai.Option{ai.WithArchive(archive)}
	if cfg.AIApiKey != "" {
		gemini := ai.NewGeminiClient(cfg.AIApiKey, cfg.AIModel, time.Duration(cfg.AITimeout)*time.Second)
		dispatcherOpts = append(dispatcherOpts, ai.WithGenerator(gemini))
	} else {
		log.Warn().Msg("AI_API_KEY not set, enhanced mode uses templates")
	}
	deps.Content = ai.NewDispatcher(dispatcherOpts...)
	deps.Archive = archive

	// Browser logger (development only)
	var sink *devlog.Sink
	if cfg.BrowserLoggerEnabled {
		var archiver devlog.Archiver
		if cfg.ArchiveEnabled() {
			s3Archiver, err := devlog.NewS3Archiver(context.Background(), devlog.S3Config{
				Endpoint:  cfg.R2Endpoint,
				AccessKey: cfg.R2AccessKey,
				SecretKey: cfg.R2SecretKey,
				Bucket:    cfg.R2Bucket,
				Region:    cfg.R2Region,
			})
			if err != nil {
				log.Error().Err(err).Msg("Failed to initialize log archive, rotated logs stay local")
			} else {
				archiver = s3Archiver
			}
		}

		sink, err = devlog.NewSink(cfg.BrowserLogFile, cfg.BrowserLogMaxSize, archiver)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to open browser log")
		}
		deps.BrowserLog = sink
		log.Info().Str("path", sink.Path()).Msg("Browser logger enabled")
	}

	// Create Fiber app with custom config
	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.HTTPTimeout,
		WriteTimeout: cfg.HTTPTimeout,
		IdleTimeout:  120 * time.Second,
		ErrorHandler: middleware.ErrorHandler,
	})

	// Setup API routes
	api.SetupRoutes(app, deps)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	sched.Start(ctx)

	// Start server in a goroutine
	go func() {
		log.Info().Str("port", cfg.Port).Msg("Starting server")
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Create a deadline for graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	sched.Stop()

	if sink != nil {
		if err := sink.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing browser log")
		}
	}

	log.Info().Msg("Server exited properly")

	if shipper != nil {
		_ = shipper.Close()
	}
}

// vendorSet holds the vendor clients whose API keys are configured.
type vendorSet struct {
	weather  *vendor.WeatherClient
	serper   *vendor.SerperClient
	semrush  *vendor.SemrushClient
	buzzsumo *vendor.BuzzSumoClient
}

func newVendors(cfg *config.Config) *vendorSet {
	v := &vendorSet{}
	if cfg.WeatherAPIKey != "" {
		v.weather = vendor.NewWeatherClient(cfg.WeatherBaseURL, cfg.WeatherAPIKey, cfg.VendorTimeout)
	}
	if cfg.SerperAPIKey != "" {
		v.serper = vendor.NewSerperClient(cfg.SerperBaseURL, cfg.SerperAPIKey, cfg.VendorTimeout)
	}
	if cfg.SemrushAPIKey != "" {
		v.semrush = vendor.NewSemrushClient(cfg.SemrushBaseURL, cfg.SemrushAPIKey, cfg.VendorTimeout)
	}
	if cfg.BuzzSumoAPIKey != "" {
		v.buzzsumo = vendor.NewBuzzSumoClient(cfg.BuzzSumoBaseURL, cfg.BuzzSumoAPIKey, cfg.VendorTimeout)
	}
	return v
}

// proxies always mounts every function. An unconfigured vendor answers with
// the missing-key error of its client.
func (v *vendorSet) proxies() *proxy.Set {
	weather := v.weather
	if weather == nil {
		weather = vendor.NewWeatherClient("", "", time.Second)
	}
	serper := v.serper
	if serper == nil {
		serper = vendor.NewSerperClient("", "", time.Second)
	}
	semrush := v.semrush
	if semrush == nil {
		semrush = vendor.NewSemrushClient("", "", time.Second)
	}
	buzzsumo := v.buzzsumo
	if buzzsumo == nil {
		buzzsumo = vendor.NewBuzzSumoClient("", "", time.Second)
	}

	return &proxy.Set{
		Weather: proxy.NewWeather(weather),
		News:    proxy.NewNews(serper),
		Search:  proxy.NewSearch(serper),
		SEO:     proxy.NewSEO(semrush),
		Social:  proxy.NewSocial(buzzsumo),
	}
}

// enrichmentClients leaves unconfigured clients as nil interfaces.
func (v *vendorSet) enrichmentClients() enrichment.Clients {
	var clients enrichment.Clients
	if v.weather != nil {
		clients.Weather = v.weather
	}
	if v.serper != nil {
		clients.News = v.serper
		clients.Search = v.serper
	}
	if v.buzzsumo != nil {
		clients.Social = v.buzzsumo
	}
	if v.semrush != nil {
		clients.SEO = v.semrush
	}
	return clients
}

func mustAdd(log *zerolog.Logger, sched *scheduler.Scheduler, job scheduler.Job) {
	if err := sched.Add(job); err != nil {
		log.Fatal().Err(err).Str("job", job.Name).Msg("Failed to register job")
	}
}

func closeDB(log *zerolog.Logger, db *sql.DB) {
	log.Info().Msg("Closing database...")
	if err := db.Close(); err != nil {
		log.Error().Err(err).Msg("Error closing database")
	}
}
