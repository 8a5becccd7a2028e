package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisPremiumStatusCache holds short-TTL payment-provider answers.
// Only the provider's boolean is cached; tier derivation stays per-decision.
type RedisPremiumStatusCache struct {
	client *redis.Client
}

func NewRedisPremiumStatusCache(client *redis.Client) *RedisPremiumStatusCache {
	return &RedisPremiumStatusCache{client: client}
}

func (c *RedisPremiumStatusCache) Get(ctx context.Context, accountID string) (bool, bool, error) {
	raw, err := c.client.Get(ctx, "usage:premium:"+accountID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, false, nil
		}
		return false, false, err
	}
	return raw == "1", true, nil
}

func (c *RedisPremiumStatusCache) Put(ctx context.Context, accountID string, active bool, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	value := "0"
	if active {
		value = "1"
	}
	return c.client.Set(ctx, "usage:premium:"+accountID, value, ttl).Err()
}
