package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/sentify-hq/sentify-engine/pkg/logging"
	"github.com/sentify-hq/sentify-engine/pkg/retry"
)

// Pool sizing used when Config leaves a field zero. Ingestion holds at most
// one connection per worker during a cycle's transaction, so the default
// leaves room for the read API alongside a full worker pool.
const (
	DefaultMaxConnections  int32 = 25
	DefaultMaxConnLifetime       = time.Hour
	DefaultMaxConnIdleTime       = 30 * time.Minute
)

// DB is the application's Postgres handle. Repositories reach it through
// Querier so they join a transaction opened by WithTx.
type DB struct {
	*pgxpool.Pool
}

// Config holds database connection configuration.
type Config struct {
	URL             string
	MaxConnections  int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

func (c *Config) poolConfig() (*pgxpool.Config, error) {
	pc, err := pgxpool.ParseConfig(c.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	pc.MaxConns = orDefault(c.MaxConnections, DefaultMaxConnections)
	pc.MaxConnLifetime = orDefault(c.MaxConnLifetime, DefaultMaxConnLifetime)
	pc.MaxConnIdleTime = orDefault(c.MaxConnIdleTime, DefaultMaxConnIdleTime)
	return pc, nil
}

func orDefault[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}

// NewConnection opens the pool and waits until Postgres answers, so the
// process can start alongside a database that is still booting.
func NewConnection(ctx context.Context, cfg *Config, logger *zap.Logger) (*DB, error) {
	pc, err := cfg.poolConfig()
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := waitReachable(ctx, "postgres", pool.Ping, logger); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Debug("Database pool ready",
		zap.String("url", logging.SanitizeConnectionString(cfg.URL)),
		zap.Int32("max_connections", pc.MaxConns))
	return &DB{Pool: pool}, nil
}

// Close closes the connection pool.
func (db *DB) Close() {
	db.Pool.Close()
}

// waitReachable retries ping with the default backoff, logging each miss.
func waitReachable(ctx context.Context, store string, ping func(context.Context) error, logger *zap.Logger) error {
	attempt := 0
	return retry.Do(ctx, retry.DefaultConfig(), func() error {
		attempt++
		err := ping(ctx)
		if err != nil {
			logger.Warn("Store not reachable yet",
				zap.String("store", store),
				zap.Int("attempt", attempt),
				zap.String("error", logging.SanitizeError(err)))
		}
		return err
	})
}
