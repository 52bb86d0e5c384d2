package redis

import (
	"context"
	"fmt"
	"time"

	"sendctl/pkg/retry"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// connectRetry bounds how long startup waits for Redis.
var connectRetry = retry.Config{
	MaxAttempts:  4,
	InitialDelay: 250 * time.Millisecond,
	MaxDelay:     2 * time.Second,
	Multiplier:   2,
	Jitter:       0.2,
}

// NewRedisClient creates a new Redis client with connection pooling and
// waits for the server to answer PING.
func NewRedisClient(address, password string, db, poolSize int, logger *zap.SugaredLogger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         address,
		Password:     password,
		DB:           db,
		PoolSize:     poolSize,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	err := retry.Do(ctx, connectRetry, func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}, func(attempt int, err error, delay time.Duration) {
		if logger != nil {
			logger.Warnw("Redis not reachable yet",
				"address", address,
				"attempt", attempt,
				"retry_in", delay,
				"error", err,
			)
		}
	})
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	if logger != nil {
		logger.Infow("connected to Redis",
			"address", address,
			"db", db,
			"pool_size", poolSize,
		)
	}

	return client, nil
}

// CloseRedisClient closes the Redis client connection
func CloseRedisClient(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
