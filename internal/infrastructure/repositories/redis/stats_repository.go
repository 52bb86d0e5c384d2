package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"sendctl/internal/core/domain"
	"sendctl/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

// RedisStatsRepository stores the latest snapshot per sender as JSON. Entries
// expire after ttl so that stale senders do not keep feeding trackers.
type RedisStatsRepository struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisStatsRepository(client *redis.Client, ttl time.Duration) ports.StatsRepository {
	return &RedisStatsRepository{
		client: client,
		prefix: "sendctl:stats:",
		ttl:    ttl,
	}
}

func (r *RedisStatsRepository) statsKey(id domain.SenderID) string {
	return r.prefix + string(id)
}

func (r *RedisStatsRepository) Save(ctx context.Context, senderID domain.SenderID, stats domain.OutboundStreamStats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to marshal stats: %w", err)
	}

	if err := r.client.Set(ctx, r.statsKey(senderID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set stats in Redis: %w", err)
	}
	return nil
}

func (r *RedisStatsRepository) Latest(ctx context.Context, senderID domain.SenderID) (domain.OutboundStreamStats, error) {
	data, err := r.client.Get(ctx, r.statsKey(senderID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.OutboundStreamStats{}, domain.ErrNoSnapshot
	}
	if err != nil {
		return domain.OutboundStreamStats{}, fmt.Errorf("failed to get stats from Redis: %w", err)
	}

	var stats domain.OutboundStreamStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return domain.OutboundStreamStats{}, fmt.Errorf("failed to unmarshal stats: %w", err)
	}
	return stats, nil
}

func (r *RedisStatsRepository) Delete(ctx context.Context, senderID domain.SenderID) error {
	if err := r.client.Del(ctx, r.statsKey(senderID)).Err(); err != nil {
		return fmt.Errorf("failed to delete stats from Redis: %w", err)
	}
	return nil
}
