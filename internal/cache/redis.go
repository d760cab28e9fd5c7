// Package cache implements the Redis-backed timeline cache: a sorted set
// per user, scored by the chronological order embedded in each post id.
package cache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/dtambussi/fanout/internal/config"
)

// Connect opens and verifies a Redis client connection.
func Connect(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return client, nil
}

// FlushAll clears all cached data. Used by the demo-reset CLI command.
func FlushAll(ctx context.Context, client *redis.Client) error {
	return client.FlushAll(ctx).Err()
}
