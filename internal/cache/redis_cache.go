package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	"storefront/backend/internal/domain"
)

// RedisPricingCache keeps resolved pricing records as JSON under the keys
// built by PricingKey. Entries expire after the resolver's TTL; cart state is
// never stored here.
type RedisPricingCache struct {
	client *redis.Client
}

func NewRedisPricingCache(addr string, password string, db int) *RedisPricingCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisPricingCache{client: client}
}

func (c *RedisPricingCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisPricingCache) Close() error {
	return c.client.Close()
}

// Get returns a cached record. An entry that no longer decodes into a
// PricingRecord is dropped and reported as a miss.
func (c *RedisPricingCache) Get(ctx context.Context, key string) (*domain.PricingRecord, bool, error) {
	payload, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var record domain.PricingRecord
	if err := json.Unmarshal(payload, &record); err != nil || record.ItemCode == "" {
		if delErr := c.client.Del(ctx, key).Err(); delErr != nil {
			return nil, false, delErr
		}
		return nil, false, nil
	}
	return &record, true, nil
}

// Set stores a record. A non-positive TTL disables caching so no entry can
// outlive a price change.
func (c *RedisPricingCache) Set(ctx context.Context, key string, value *domain.PricingRecord, ttl time.Duration) error {
	if value == nil || ttl <= 0 {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, payload, ttl).Err()
}
