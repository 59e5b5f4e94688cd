package database

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/sentify-hq/sentify-engine/pkg/config"
)

// NewRedisClient connects to the Redis server that carries live notification
// events between instances. It returns a nil client and no error when Redis
// is not configured; callers then fall back to in-process delivery.
func NewRedisClient(ctx context.Context, cfg *config.RedisConfig, logger *zap.Logger) (*redis.Client, error) {
	if cfg.Host == "" {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:       cfg.Addr(),
		Password:   cfg.Password,
		DB:         cfg.DB,
		ClientName: "sentify-engine",
	})

	ping := func(ctx context.Context) error { return client.Ping(ctx).Err() }
	if err := waitReachable(ctx, "redis", ping, logger); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Addr(), err)
	}
	return client, nil
}
