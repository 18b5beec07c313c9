// Package config defines service configuration and its loader.
package config

import (
	"fmt"
	"runtime"
	"strings"
)

// Store drivers accepted by StoreDriver.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverRedis    = "redis"
	DriverMongo    = "mongo"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects text or json output.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// StoreDriver picks the record store backend.
	StoreDriver string `koanf:"store_driver"`
	// StoreDSN is the connection string for postgres and sqlite.
	StoreDSN string `koanf:"store_dsn"`

	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`
	RedisPrefix   string `koanf:"redis_prefix"`

	MongoURI      string `koanf:"mongo_uri"`
	MongoDatabase string `koanf:"mongo_database"`

	// CreditConcurrency bounds in-flight store calls during a fan-out.
	CreditConcurrency int `koanf:"credit_concurrency"`

	// AutoRefreshBadges queues badge refreshes after each completion.
	AutoRefreshBadges bool `koanf:"auto_refresh_badges"`
	BadgeQueueSize    int  `koanf:"badge_queue_size"`
	BadgeWorkerCount  int  `koanf:"badge_worker_count"`
	BadgeDedupeSize   int  `koanf:"badge_dedupe_size"`

	// MaxRankingLimit caps GET /rankings?limit.
	MaxRankingLimit int `koanf:"max_ranking_limit"`

	// OTelEndpoint is the OTLP gRPC collector. Empty disables tracing.
	OTelEndpoint      string  `koanf:"otel_endpoint"`
	OTelSamplingRatio float64 `koanf:"otel_sampling_ratio"`
	ServiceName       string  `koanf:"service_name"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:          "info",
		LogFormat:         "text",
		Addr:              ":9080",
		StoreDriver:       DriverMemory,
		RedisAddr:         "localhost:6379",
		RedisPrefix:       "volunteer:",
		MongoURI:          "mongodb://localhost:27017",
		MongoDatabase:     "volunteer",
		CreditConcurrency: 16,
		AutoRefreshBadges: true,
		BadgeQueueSize:    10_000,
		BadgeWorkerCount:  runtime.NumCPU(),
		BadgeDedupeSize:   50_000,
		MaxRankingLimit:   100,
		OTelSamplingRatio: 1.0,
		ServiceName:       "volunteer-reputation",
	}
}

// Validate checks the fields the process cannot start without.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	switch c.StoreDriver {
	case DriverMemory:
	case DriverPostgres, DriverSQLite:
		if c.StoreDSN == "" {
			return fmt.Errorf("%w: store_dsn is required for %s", ErrInvalidConfig, c.StoreDriver)
		}
	case DriverRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("%w: redis_addr is required for redis", ErrInvalidConfig)
		}
	case DriverMongo:
		if c.MongoURI == "" || c.MongoDatabase == "" {
			return fmt.Errorf("%w: mongo_uri and mongo_database are required for mongo", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown store_driver %q", ErrInvalidConfig, c.StoreDriver)
	}
	if c.CreditConcurrency < 1 {
		return fmt.Errorf("%w: credit_concurrency must be positive", ErrInvalidConfig)
	}
	if c.MaxRankingLimit < 1 {
		return fmt.Errorf("%w: max_ranking_limit must be positive", ErrInvalidConfig)
	}
	if c.OTelSamplingRatio < 0 || c.OTelSamplingRatio > 1 {
		return fmt.Errorf("%w: otel_sampling_ratio must be within [0,1]", ErrInvalidConfig)
	}
	return nil
}
