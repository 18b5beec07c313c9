package service

import (
	"context"
	"fmt"

	"github.com/volunteerfinder/reputation/internal/adapters/repository"
	"github.com/volunteerfinder/reputation/internal/adapters/repository/mongostore"
	"github.com/volunteerfinder/reputation/internal/adapters/repository/redisstore"
	"github.com/volunteerfinder/reputation/internal/adapters/repository/sqlstore"
	"github.com/volunteerfinder/reputation/internal/config"
)

// OpenStore connects the backend named by cfg.StoreDriver and wraps it
// with per-operation metrics.
func OpenStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	var backend repository.Store
	switch cfg.StoreDriver {
	case config.DriverMemory, "":
		backend = repository.NewMemoryStore()
	case config.DriverPostgres, config.DriverSQLite:
		s, err := sqlstore.Open(ctx, cfg.StoreDriver, cfg.StoreDSN)
		if err != nil {
			return nil, fmt.Errorf("open %s store: %w", cfg.StoreDriver, err)
		}
		backend = s
	case config.DriverRedis:
		rc := redisstore.DefaultConfig(cfg.RedisAddr)
		rc.Password = cfg.RedisPassword
		rc.DB = cfg.RedisDB
		if cfg.RedisPrefix != "" {
			rc.Prefix = cfg.RedisPrefix
		}
		s, err := redisstore.New(ctx, rc)
		if err != nil {
			return nil, fmt.Errorf("open redis store: %w", err)
		}
		backend = s
	case config.DriverMongo:
		s, err := mongostore.Open(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, fmt.Errorf("open mongo store: %w", err)
		}
		backend = s
	default:
		return nil, fmt.Errorf("%w: unknown store_driver %q", config.ErrInvalidConfig, cfg.StoreDriver)
	}
	return repository.NewInstrumented(backend), nil
}
