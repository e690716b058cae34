package forex

import (
	"context"
	"time"

	"dotpay/internal/domain"
	"dotpay/pkg/cache"
)

// RateCache shares fetched rates between instances. Get returns nil on a miss.
type RateCache interface {
	Get(ctx context.Context, key string) (*domain.ExchangeRate, error)
	Set(ctx context.Context, key string, rate *domain.ExchangeRate, ttl time.Duration) error
}

// JSONStore is the subset of the Redis cache that stores JSON values.
type JSONStore interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
}

type RedisRateCache struct {
	store JSONStore
}

func NewRedisRateCache(store JSONStore) *RedisRateCache {
	return &RedisRateCache{store: store}
}

func (c *RedisRateCache) Get(ctx context.Context, key string) (*domain.ExchangeRate, error) {
	var rate domain.ExchangeRate
	if err := c.store.Get(ctx, key, &rate); err != nil {
		if cache.IsMiss(err) {
			return nil, nil
		}
		return nil, err
	}
	return &rate, nil
}

func (c *RedisRateCache) Set(ctx context.Context, key string, rate *domain.ExchangeRate, ttl time.Duration) error {
	return c.store.Set(ctx, key, rate, ttl)
}
