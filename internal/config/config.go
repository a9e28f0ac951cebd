package config

import (
	"errors"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Port            string        `json:"port"`
	Env             string        `json:"env"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
	HTTPTimeout     time.Duration `json:"http_timeout"`

	// Redis configuration (enrichment cache)
	RedisURL       string        `json:"redis_url"`
	RedisPrefix    string        `json:"redis_prefix"`
	StaleRetention time.Duration `json:"stale_retention"`

	// Hosted database
	DatabaseURL            string `json:"database_url"`
	SupabaseURL            string `json:"supabase_url"`
	SupabaseAnonKey        string `json:"-"`
	SupabaseServiceRoleKey string `json:"-"`

	// Vendor APIs
	WeatherAPIKey   string        `json:"-"`
	SerperAPIKey    string        `json:"-"`
	SemrushAPIKey   string        `json:"-"`
	BuzzSumoAPIKey  string        `json:"-"`
	WeatherBaseURL  string        `json:"weather_base_url"`
	SerperBaseURL   string        `json:"serper_base_url"`
	SemrushBaseURL  string        `json:"semrush_base_url"`
	BuzzSumoBaseURL string        `json:"buzzsumo_base_url"`
	VendorTimeout   time.Duration `json:"vendor_timeout"`

	// AI Configuration
	AIApiKey  string `json:"-"`
	AIModel   string `json:"ai_model"`
	AITimeout int    `json:"ai_timeout"`

	// Generated content archive
	ContentArchivePath string `json:"content_archive_path"`

	// Background jobs
	SchedulerEnabled   bool          `json:"scheduler_enabled"`
	DetectorInterval   time.Duration `json:"detector_interval"`
	EnrichmentInterval time.Duration `json:"enrichment_interval"`

	// Events
	NATSUrl     string `json:"nats_url"`
	NATSSubject string `json:"nats_subject"`

	// Browser logger (development only)
	BrowserLoggerEnabled bool   `json:"browser_logger_enabled"`
	BrowserLogFile       string `json:"browser_log_file"`
	BrowserLogMaxSize    int64  `json:"browser_log_max_size"`

	// CloudFlare R2 archive for rotated browser logs
	R2Endpoint  string `json:"r2_endpoint"`
	R2AccessKey string `json:"-"`
	R2SecretKey string `json:"-"`
	R2Bucket    string `json:"r2_bucket"`
	R2Region    string `json:"r2_region"`

	// Logging
	LogLevel   string `json:"log_level"`
	LogFile    string `json:"log_file"`
	LogShipURL string `json:"log_ship_url"`

	// Security
	AdminAPIKey string `json:"-"`
}

// Load loads configuration from environment variables and validates it
func Load() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: Error loading .env file: %v", err)
	}

	cfg := FromEnv()

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	return cfg
}

// FromEnv builds a Config from the current environment without touching .env files.
func FromEnv() *Config {
	env := getEnv("APP_ENV", "development")

	return &Config{
		Port:            getEnv("PORT", "8080"),
		Env:             env,
		ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		HTTPTimeout:     getEnvAsDuration("HTTP_TIMEOUT", 30*time.Second),

		RedisURL:       getEnv("REDIS_URL", ""),
		RedisPrefix:    getEnv("REDIS_PREFIX", "synapse:"),
		StaleRetention: getEnvAsDuration("ENRICHMENT_STALE_RETENTION", 72*time.Hour),

		DatabaseURL:            getEnv("DATABASE_URL", getEnv("SUPABASE_DB_URL", "")),
		SupabaseURL:            getEnvWithVite("SUPABASE_URL", ""),
		SupabaseAnonKey:        getEnvWithVite("SUPABASE_ANON_KEY", ""),
		SupabaseServiceRoleKey: getEnv("SUPABASE_SERVICE_ROLE_KEY", ""),

		WeatherAPIKey:   getEnvWithVite("WEATHER_API_KEY", ""),
		SerperAPIKey:    getEnvWithVite("SERPER_API_KEY", ""),
		SemrushAPIKey:   getEnvWithVite("SEMRUSH_API_KEY", ""),
		BuzzSumoAPIKey:  getEnvWithVite("BUZZSUMO_API_KEY", ""),
		WeatherBaseURL:  getEnv("WEATHER_BASE_URL", "https://api.openweathermap.org"),
		SerperBaseURL:   getEnv("SERPER_BASE_URL", "https://google.serper.dev"),
		SemrushBaseURL:  getEnv("SEMRUSH_BASE_URL", "https://api.semrush.com"),
		BuzzSumoBaseURL: getEnv("BUZZSUMO_BASE_URL", "https://api.buzzsumo.com"),
		VendorTimeout:   getEnvAsDuration("VENDOR_TIMEOUT", 15*time.Second),

		AIApiKey:  getEnv("AI_API_KEY", ""),
		AIModel:   getEnv("AI_MODEL", "gemini-pro"),
		AITimeout: getEnvAsInt("AI_TIMEOUT", 60),

		ContentArchivePath: getEnv("CONTENT_ARCHIVE_PATH", "./data/content"),

		SchedulerEnabled:   getEnvAsBool("SCHEDULER_ENABLED", true),
		DetectorInterval:   getEnvAsDuration("DETECTOR_INTERVAL", time.Hour),
		EnrichmentInterval: getEnvAsDuration("ENRICHMENT_INTERVAL", 30*time.Minute),

		NATSUrl:     getEnv("NATS_URL", ""),
		NATSSubject: getEnv("NATS_SUBJECT", "opportunity.detected"),

		BrowserLoggerEnabled: getEnvAsBool("BROWSER_LOGGER_ENABLED", env == "development"),
		BrowserLogFile:       getEnv("BROWSER_LOG_FILE", "./logs/browser.log"),
		BrowserLogMaxSize:    getEnvAsInt64("BROWSER_LOG_MAX_SIZE", 5<<20), // 5MB

		R2Endpoint:  getEnv("R2_ENDPOINT", ""),
		R2AccessKey: getEnv("R2_ACCESS_KEY", ""),
		R2SecretKey: getEnv("R2_SECRET_ACCESS_KEY", ""),
		R2Bucket:    getEnv("R2_BUCKET", ""),
		R2Region:    getEnv("R2_REGION", "auto"),

		LogLevel:   getEnv("LOG_LEVEL", "info"),
		LogFile:    getEnv("LOG_FILE", ""),
		LogShipURL: getEnv("LOG_SHIP_URL", ""),

		AdminAPIKey: getEnv("ADMIN_API_KEY", ""),
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}
	if c.DetectorInterval <= 0 || c.EnrichmentInterval <= 0 {
		return errors.New("scheduler intervals must be positive")
	}
	if c.VendorTimeout <= 0 {
		return errors.New("vendor timeout must be positive")
	}
	if c.BrowserLogMaxSize <= 0 {
		return errors.New("browser log max size must be positive")
	}
	return nil
}

// IsDevelopment reports whether the service runs in the development environment.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// ArchiveEnabled reports whether rotated browser logs should be uploaded.
func (c *Config) ArchiveEnabled() bool {
	return c.R2Bucket != "" && c.R2Endpoint != ""
}

// Helper functions for environment variable handling
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvWithVite falls back to the client-exposed VITE_ variant of a key.
func getEnvWithVite(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return getEnv("VITE_"+key, defaultValue)
}

func getEnvAsInt(name string, defaultVal int) int {
	valueStr := getEnv(name, "")
	if valueStr == "" {
		return defaultVal
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid %s value: %v, using default: %d", name, err, defaultVal)
		return defaultVal
	}
	return value
}

func getEnvAsInt64(name string, defaultVal int64) int64 {
	valueStr := getEnv(name, "")
	if valueStr == "" {
		return defaultVal
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		log.Printf("Invalid %s value: %v, using default: %d", name, err, defaultVal)
		return defaultVal
	}
	return value
}

func getEnvAsBool(name string, defaultVal bool) bool {
	valueStr := strings.ToLower(getEnv(name, ""))
	switch valueStr {
	case "":
		return defaultVal
	case "1", "true", "yes":
		return true
	case "0", "false", "no":
		return false
	}
	log.Printf("Invalid %s value: %q, using default: %t", name, valueStr, defaultVal)
	return defaultVal
}

func getEnvAsDuration(name string, defaultVal time.Duration) time.Duration {
	valueStr := getEnv(name, "")
	if valueStr == "" {
		return defaultVal
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		log.Printf("Invalid %s value: %v, using default: %v", name, err, defaultVal)
		return defaultVal
	}
	return value
}
