package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix for service-specific environment overrides,
// e.g. SHORTLINK_GEO_API_BASE_URL.
const EnvPrefix = "SHORTLINK_"

// Config holds all runtime settings. Defaults are applied first, then
// overridden from the environment.
type Config struct {
	Port        string `koanf:"port"`
	DatabaseURL string `koanf:"database_url" validate:"required"`
	RedisURL    string `koanf:"redis_url"`
	BaseURL     string `koanf:"base_url"`     // public base URL of this service, used for short links and referrer suppression
	FrontendURL string `koanf:"frontend_url"` // dashboard origin for CORS
	JWTSecret   string `koanf:"jwt_secret" validate:"required"`

	GeoAPIBaseURL     string        `koanf:"geo_api_base_url" validate:"required,url"`
	GeoTimeout        time.Duration `koanf:"geo_timeout"`
	GeoRetries        int           `koanf:"geo_retries"`
	GeoRetryDelay     time.Duration `koanf:"geo_retry_delay"`
	GeoCacheTTL       time.Duration `koanf:"geo_cache_ttl"`
	GeoCacheMaxSize   int           `koanf:"geo_cache_max_size"`

	ReportCacheTTL      time.Duration `koanf:"report_cache_ttl"`
	ReportSweepInterval time.Duration `koanf:"report_sweep_interval"`

	VisitQueueSize     int           `koanf:"visit_queue_size"`
	VisitWorkers       int           `koanf:"visit_workers"`
	VisitBatchSize     int           `koanf:"visit_batch_size"`
	VisitFlushInterval time.Duration `koanf:"visit_flush_interval"`

	RateLimit       int           `koanf:"rate_limit"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
}

func defaultConfig() *Config {
	return &Config{
		Port:        "8080",
		RedisURL:    "localhost:6379",
		FrontendURL: "http://localhost:3000",

		GeoAPIBaseURL:   "https://ipapi.co",
		GeoTimeout:      3 * time.Second,
		GeoRetries:      2,
		GeoRetryDelay:   time.Second,
		GeoCacheTTL:     24 * time.Hour,
		GeoCacheMaxSize: 1000,

		ReportCacheTTL:      5 * time.Minute,
		ReportSweepInterval: 30 * time.Minute,

		VisitQueueSize:     10000,
		VisitWorkers:       4,
		VisitBatchSize:     100,
		VisitFlushInterval: 5 * time.Second,

		RateLimit:       100,
		RateLimitWindow: time.Minute,
	}
}

// Load builds the configuration from defaults and environment variables.
// The short forms DATABASE_URL, REDIS_URL, PORT, BASE_URL, FRONTEND_URL and
// JWT_SECRET are honored alongside the SHORTLINK_-prefixed variants.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Unprefixed fallbacks for conventional deployment variables.
	applyShortEnv(&cfg.DatabaseURL, "DATABASE_URL")
	applyShortEnv(&cfg.RedisURL, "REDIS_URL")
	applyShortEnv(&cfg.Port, "PORT")
	applyShortEnv(&cfg.BaseURL, "BASE_URL")
	applyShortEnv(&cfg.FrontendURL, "FRONTEND_URL")
	applyShortEnv(&cfg.JWTSecret, "JWT_SECRET")

	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:" + cfg.Port
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func applyShortEnv(dst *string, name string) {
	if v := os.Getenv(name); v != "" {
		*dst = v
	}
}
