// Package config loads dashboard settings from the environment (with an
// optional .env file) and the data source catalog from YAML.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/Sternrassler/indexer-dashboard/pkg/fetch"
	"github.com/Sternrassler/indexer-dashboard/pkg/logging"
)

// Config holds all app configuration
type Config struct {
	// Server
	HTTPPort string

	// Upstream indexer
	UpstreamBaseURL string
	UserAgent       string
	RequestTimeout  time.Duration
	RateLimit       float64
	Burst           int
	MaxRetries      int

	// Redis (optional, shares rate limit state between replicas)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Page cache
	CacheTTL      time.Duration
	CacheCapacity int

	// Cron spec for refreshing active sources; empty disables it
	RefreshSchedule string

	// Logging
	LogLevel  string
	LogPretty bool

	// SourcesFile is a YAML source catalog; empty uses DefaultSources
	SourcesFile string
}

// Load reads an optional .env file (path "" means ".env" in the working
// directory) and then the environment. Existing environment variables win
// over .env entries.
func Load(envFile string) (*Config, error) {
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}

	cfg := &Config{
		HTTPPort: getEnv("HTTP_PORT", "8080"),

		UpstreamBaseURL: getEnv("UPSTREAM_BASE_URL", "https://api.indexer.example/v1"),
		UserAgent:       getEnv("USER_AGENT", "indexer-dashboard/0.1.0"),
		RequestTimeout:  getEnvAsDuration("REQUEST_TIMEOUT", 15*time.Second),
		RateLimit:       getEnvAsFloat("RATE_LIMIT", 10),
		Burst:           getEnvAsInt("RATE_BURST", 5),
		MaxRetries:      getEnvAsInt("MAX_RETRIES", 0),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		CacheTTL:      getEnvAsDuration("CACHE_TTL", 5*time.Minute),
		CacheCapacity: getEnvAsInt("CACHE_CAPACITY", 256),

		RefreshSchedule: getEnv("REFRESH_SCHEDULE", "@every 1m"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogPretty: getEnvAsBool("LOG_PRETTY", false),

		SourcesFile: getEnv("SOURCES_FILE", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.HTTPPort == "" {
		return fmt.Errorf("http port is required")
	}

	base, err := url.Parse(c.UpstreamBaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return fmt.Errorf("upstream base url must be absolute (got %q)", c.UpstreamBaseURL)
	}

	if c.UserAgent == "" {
		return fmt.Errorf("user-agent is required")
	}

	if c.RequestTimeout < 0 {
		return fmt.Errorf("request timeout must be >= 0 (got %v)", c.RequestTimeout)
	}

	if c.RateLimit < 0 {
		return fmt.Errorf("rate_limit must be >= 0 (got %v)", c.RateLimit)
	}

	if c.RateLimit > 0 && c.Burst < 1 {
		return fmt.Errorf("burst must be >= 1 when rate_limit is set (got %d)", c.Burst)
	}

	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries must be >= 0 (got %d)", c.MaxRetries)
	}

	if c.CacheTTL < 0 {
		return fmt.Errorf("cache ttl must be >= 0 (got %v)", c.CacheTTL)
	}

	if c.CacheCapacity < 1 {
		return fmt.Errorf("cache capacity must be >= 1 (got %d)", c.CacheCapacity)
	}

	if c.RefreshSchedule != "" {
		if _, err := cron.ParseStandard(c.RefreshSchedule); err != nil {
			return fmt.Errorf("invalid refresh schedule %q: %w", c.RefreshSchedule, err)
		}
	}

	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}

	return nil
}

// Sources returns the configured source catalog.
func (c *Config) Sources() ([]fetch.Source, error) {
	if c.SourcesFile == "" {
		return DefaultSources(), nil
	}
	return LoadSources(c.SourcesFile)
}

// sourceCatalog is the YAML layout of a sources file.
type sourceCatalog struct {
	Sources []fetch.Source `yaml:"sources"`
}

// LoadSources reads a YAML source catalog:
//
//	sources:
//	  - name: coins
//	    endpoint: /coins
//	    page_size: 50
func LoadSources(path string) ([]fetch.Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sources: %w", err)
	}
	return ParseSources(data)
}

// ParseSources parses and validates catalog data.
func ParseSources(data []byte) ([]fetch.Source, error) {
	var catalog sourceCatalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}

	if len(catalog.Sources) == 0 {
		return nil, fmt.Errorf("sources: at least one source is required")
	}

	seen := make(map[string]bool, len(catalog.Sources))
	var errs []string
	for i, src := range catalog.Sources {
		if err := src.Validate(); err != nil {
			errs = append(errs, fmt.Sprintf("sources[%d]: %v", i, err))
			continue
		}
		if seen[src.Name] {
			errs = append(errs, fmt.Sprintf("sources[%d]: duplicate source %q", i, src.Name))
		}
		seen[src.Name] = true
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid sources: %s", strings.Join(errs, "; "))
	}

	return catalog.Sources, nil
}

// DefaultSources is the catalog used when no sources file is configured.
func DefaultSources() []fetch.Source {
	return []fetch.Source{
		{Name: "coins", Endpoint: "/coins", PageSize: 50},
		{Name: "pools", Endpoint: "/pools", PageSize: 20},
		{Name: "validators", Endpoint: "/validators", PageSize: 50},
		{Name: "accounts", Endpoint: "/walrus/accounts", PageSize: 20},
		{Name: "names", Endpoint: "/suins/names", PageSize: 20},
		{Name: "nft-events", Endpoint: "/nfts/activity", PageSize: 20},
	}
}

// Helper functions for parsing environment variables
func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return value
	}
	return defaultVal
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	if value, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return value
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return value
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return value
	}
	return defaultVal
}
