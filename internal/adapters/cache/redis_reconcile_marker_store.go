package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisReconcileMarkerStore keeps once-per-session reconcile markers.
// SETNX with TTL gives the atomicity; expiry clears markers without cleanup jobs.
type RedisReconcileMarkerStore struct {
	client *redis.Client
}

func NewRedisReconcileMarkerStore(client *redis.Client) *RedisReconcileMarkerStore {
	return &RedisReconcileMarkerStore{client: client}
}

func (s *RedisReconcileMarkerStore) MarkIfAbsent(ctx context.Context, sessionKey string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return s.client.SetNX(ctx, "usage:reconciled:"+sessionKey, 1, ttl).Result()
}

func (s *RedisReconcileMarkerStore) Clear(ctx context.Context, sessionKey string) error {
	return s.client.Del(ctx, "usage:reconciled:"+sessionKey).Err()
}
