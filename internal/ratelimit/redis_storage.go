package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	maxSortedSetScore = "+inf"
)

// RedisStorage implements the sliding window over a Redis sorted set per
// client: scores are unix milliseconds, members are random UUIDs. Selected
// when REDIS_URL is configured; useful when the service sits behind a
// process manager that restarts it and window state should survive.
type RedisStorage struct {
	client *redis.Client
	window time.Duration
}

// NewRedisStorage creates a Redis-backed sliding window storage.
func NewRedisStorage(client *redis.Client, window time.Duration) *RedisStorage {
	return &RedisStorage{client: client, window: window}
}

func (r *RedisStorage) key(clientID string) string {
	return "ratelimit:window:" + clientID
}

// Count removes expired members and returns how many remain in the window.
func (r *RedisStorage) Count(ctx context.Context, clientID string, now time.Time) (int, error) {
	key := r.key(clientID)
	minimum := now.Add(-r.window)

	p := r.client.Pipeline()
	p.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(minimum.UnixMilli(), 10))
	count := p.ZCount(ctx, key, strconv.FormatInt(minimum.UnixMilli(), 10), maxSortedSetScore)

	if _, err := p.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to execute sorted set pipeline for key %v: %w", key, err)
	}

	total, err := count.Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count items for key %v: %w", key, err)
	}

	return int(total), nil
}

// Add records one request and refreshes the key TTL to the window length.
func (r *RedisStorage) Add(ctx context.Context, clientID string, now time.Time) error {
	key := r.key(clientID)

	p := r.client.Pipeline()
	p.ZAdd(ctx, key, redis.Z{
		Score:  float64(now.UnixMilli()),
		Member: uuid.New().String(),
	})
	p.Expire(ctx, key, r.window)

	if _, err := p.Exec(ctx); err != nil {
		return fmt.Errorf("failed to add request to key %v: %w", key, err)
	}

	return nil
}
