package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/josh-kwaku/peerpay/internal/config"
	"github.com/josh-kwaku/peerpay/internal/repository"
	"github.com/josh-kwaku/peerpay/internal/repository/memory"
	"github.com/josh-kwaku/peerpay/internal/repository/redisstore"
	"github.com/josh-kwaku/peerpay/internal/store"
)

// appStore is a store the binary owns: opened at start, closed at shutdown.
type appStore interface {
	store.Store
	Ping(ctx context.Context) error
	Close() error
}

func openStore(ctx context.Context, cfg *config.Config) (appStore, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		db, err := repository.NewPostgresDB(ctx, cfg.DatabaseURL, repository.PoolConfig{
			MaxOpenConns:     cfg.DBMaxOpenConns,
			MaxIdleConns:     cfg.DBMaxIdleConns,
			ConnMaxLifetimeS: cfg.DBConnMaxLifetimeS,
			ConnMaxIdleTimeS: cfg.DBConnMaxIdleTimeS,
			ConnectTimeout:   cfg.DBConnectTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("openStore: %w", err)
		}
		if cfg.RunMigrations {
			if err := repository.Migrate(cfg.DatabaseURL); err != nil {
				db.Close()
				return nil, fmt.Errorf("openStore: %w", err)
			}
			slog.Info("database migrations applied")
		}
		return repository.NewStore(db), nil

	case config.StoreDriverRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			rdb.Close()
			return nil, fmt.Errorf("openStore: redis ping: %w", err)
		}
		return redisstore.NewStore(rdb, cfg.RedisPrefix), nil

	case config.StoreDriverMemory:
		slog.Warn("using in-memory store, balances are lost on restart")
		return memory.NewStore(), nil
	}
	return nil, fmt.Errorf("openStore: unknown driver %q", cfg.StoreDriver)
}
