package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"time"

	"github.com/marba/synapse/internal/config"
	"github.com/marba/synapse/internal/events"
	"github.com/marba/synapse/internal/logger"
	"github.com/marba/synapse/internal/opportunity"
	"github.com/marba/synapse/internal/storage"
	"github.com/marba/synapse/internal/vendor"
)

// detector runs one opportunity detection pass and prints the summary as JSON.
func main() {
	timeout := flag.Duration("timeout", 10*time.Minute, "maximum duration of the run")
	flag.Parse()

	cfg := config.Load()

	if err := logger.Init(logger.Config{
		Level:  cfg.LogLevel,
		Output: "stderr",
		Pretty: cfg.IsDevelopment(),
	}); err != nil {
		panic(err)
	}
	log := logger.Get()

	if cfg.DatabaseURL == "" {
		log.Fatal().Msg("DATABASE_URL is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	db, err := storage.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()
	repo := storage.NewRepository(db)

	var opts []opportunity.Option
	if cfg.WeatherAPIKey != "" {
		opts = append(opts, opportunity.WithWeather(
			vendor.NewWeatherClient(cfg.WeatherBaseURL, cfg.WeatherAPIKey, cfg.VendorTimeout),
		))
	}
	if cfg.NATSUrl != "" {
		publisher, err := events.NewNATSPublisher(events.NATSConfig{URL: cfg.NATSUrl, Subject: cfg.NATSSubject})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to NATS")
		}
		defer publisher.Close()
		opts = append(opts, opportunity.WithPublisher(publisher))
	}

	res, err := opportunity.NewDetector(repo, repo, opts...).Run(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Opportunity detection failed")
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		log.Fatal().Err(err).Msg("Failed to write result")
	}
}
