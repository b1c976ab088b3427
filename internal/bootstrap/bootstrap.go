// Package bootstrap opens the configured store and cache for the commands
// under cmd/.
package bootstrap

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"stationerypos/internal/cache"
	"stationerypos/internal/config"
	"stationerypos/internal/logger"
	"stationerypos/internal/store"
	"stationerypos/internal/store/memory"
	pgstore "stationerypos/internal/store/postgres"
	sqlitestore "stationerypos/internal/store/sqlite"
)

// Closers releases resources in reverse order of acquisition.
type Closers []func() error

func (c Closers) Close() error {
	var errs error
	for i := len(c) - 1; i >= 0; i-- {
		errs = multierr.Append(errs, c[i]())
	}
	return errs
}

// OpenStore returns the repository selected by cfg.DB.Driver. A configured
// database that cannot be reached is an error; there is no silent fallback
// to memory.
func OpenStore(ctx context.Context, cfg config.DBConfig, log *logger.Logger) (store.Repository, Closers, error) {
	ctx = log.WithField(ctx, "driver", cfg.Driver)

	switch cfg.Driver {
	case config.DriverPostgres:
		pg, err := pgstore.New(ctx, cfg.URL, pgstore.Options{
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxLifetime: cfg.ConnMaxLifetime,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("postgres unavailable: %w", err)
		}
		if cfg.AutoMigrate {
			if err := pg.Migrate(ctx); err != nil {
				return nil, nil, multierr.Combine(fmt.Errorf("migrate postgres: %w", err), pg.Close())
			}
			log.Info(ctx, "store.migrated")
		}
		log.Info(ctx, "store.ready")
		return pg, Closers{pg.Close}, nil

	case config.DriverSQLite:
		lite, err := sqlitestore.Open(ctx, sqlitestore.DSNForPath(cfg.SQLitePath))
		if err != nil {
			return nil, nil, fmt.Errorf("sqlite unavailable: %w", err)
		}
		log.Info(log.WithField(ctx, "path", cfg.SQLitePath), "store.ready")
		return lite, Closers{lite.Close}, nil

	case config.DriverMemory:
		log.Info(ctx, "store.ready")
		return memory.NewSeeded(), nil, nil

	default:
		return nil, nil, fmt.Errorf("unsupported store driver %q", cfg.Driver)
	}
}

// OpenReportCache connects to Redis when an address is configured. An
// unreachable Redis degrades to the noop cache with a warning.
func OpenReportCache(ctx context.Context, cfg config.RedisConfig, log *logger.Logger) (cache.ReportCache, Closers) {
	if cfg.Addr == "" {
		log.Info(ctx, "cache.noop")
		return cache.NoopReportCache{}, nil
	}

	redisCache := cache.NewRedisReportCache(cfg.Addr, cfg.Password, cfg.DB)
	if err := redisCache.Ping(ctx); err != nil {
		_ = redisCache.Close()
		log.Warn(log.WithField(ctx, "error", err.Error()), "cache.redis_unavailable")
		return cache.NoopReportCache{}, nil
	}
	log.Info(log.WithField(ctx, "addr", cfg.Addr), "cache.redis")
	return redisCache, Closers{redisCache.Close}
}
