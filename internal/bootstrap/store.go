// Package bootstrap opens the configured store backend and the optional
// Redis connection shared by the rate limiter and the event publisher.
package bootstrap

import (
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"murmur/internal/config"
	"murmur/internal/database"
	"murmur/internal/kv"
	"murmur/internal/observability"
)

// Deps holds the process-wide connections.
type Deps struct {
	Store kv.Store
	// Redis is nil when no Redis server is reachable.
	Redis *redis.Client
}

// Close releases the store and the Redis client.
func (d *Deps) Close() error {
	var errs []error
	if d.Store != nil {
		errs = append(errs, d.Store.Close())
	}
	if d.Redis != nil {
		errs = append(errs, d.Redis.Close())
	}
	return errors.Join(errs...)
}

// Open connects to every backend cfg names. The redis store requires Redis;
// every other driver treats it as optional.
func Open(cfg *config.Config) (*Deps, error) {
	observability.Config.EnableRepoLogging = cfg.LogRepoOperations

	deps := &Deps{}
	switch cfg.StoreDriver {
	case config.DriverRedis:
		rdb, err := ConnectRedis(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("redis store: %w", err)
		}
		deps.Redis = rdb
		deps.Store = kv.NewRedisStore(rdb)
	case config.DriverPostgres, config.DriverSQLite:
		db, err := database.Connect(cfg)
		if err != nil {
			return nil, err
		}
		store, err := kv.NewSQLStore(db)
		if err != nil {
			return nil, fmt.Errorf("sql store: %w", err)
		}
		deps.Store = store
		deps.Redis = ConnectOptionalRedis(cfg.RedisURL)
	case config.DriverMemory:
		deps.Store = kv.NewMemoryStore()
		deps.Redis = ConnectOptionalRedis(cfg.RedisURL)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}

	deps.Store = kv.Instrument(deps.Store, cfg.StoreDriver)
	return deps, nil
}
