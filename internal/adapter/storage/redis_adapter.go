package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	pendingMarker         = "pending"
	DefaultIdempotencyTTL = 24 * time.Hour
)

// RedisAdapter keeps Idempotency-Key claims. A key holds "pending" while its
// placement runs and the order id once it committed.
type RedisAdapter struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisAdapter(client *redis.Client, ttl time.Duration) *RedisAdapter {
	if ttl <= 0 {
		ttl = DefaultIdempotencyTTL
	}
	return &RedisAdapter{client: client, ttl: ttl}
}

func (r *RedisAdapter) ClaimIdempotencyKey(ctx context.Context, key string) (string, bool, error) {
	// Second attempt covers a key that expired between SETNX and GET.
	for attempt := 0; attempt < 2; attempt++ {
		ok, err := r.client.SetNX(ctx, key, pendingMarker, r.ttl).Result()
		if err != nil {
			return "", false, fmt.Errorf("claim idempotency key: %w", err)
		}
		if ok {
			return "", true, nil
		}

		val, err := r.client.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return "", false, fmt.Errorf("read idempotency key: %w", err)
		}
		if val == pendingMarker {
			return "", false, nil
		}
		return val, false, nil
	}
	return "", false, nil
}

func (r *RedisAdapter) CompleteIdempotencyKey(ctx context.Context, key, orderID string) error {
	if err := r.client.Set(ctx, key, orderID, r.ttl).Err(); err != nil {
		return fmt.Errorf("bind idempotency key: %w", err)
	}
	return nil
}

func (r *RedisAdapter) ReleaseIdempotencyKey(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}

func (r *RedisAdapter) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
