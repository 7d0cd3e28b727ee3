package cache

import (
	"context"
	"fmt"
	"time"

	"recsys/internal/config"
	"recsys/internal/infrastructure/retry"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// InitRedis connects to Redis, retrying per cfg.Retry.
func InitRedis(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	policy := retry.Policy{MaxAttempts: cfg.Retry.MaxAttempts, Delay: cfg.Retry.Delay}
	client, err := retry.Connect(ctx, "redis", policy, func(ctx context.Context) (*redis.Client, error) {
		client := redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Password: cfg.Password,
			DB:       cfg.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, err
		}
		return client, nil
	})
	if err != nil {
		return nil, err
	}

	zap.S().Named("redis").Info("redis connected")
	return client, nil
}
