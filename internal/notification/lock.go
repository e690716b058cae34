package notification

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Cache is the subset of the Redis cache used for locking.
type Cache interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error)
	DeleteIfValue(ctx context.Context, key, value string) (bool, error)
}

// RedisLocker implements Locker on SET NX with an expiry. Each acquisition
// stores its own token and release only deletes a key still holding it.
type RedisLocker struct {
	cache Cache
}

func NewRedisLocker(cache Cache) *RedisLocker {
	return &RedisLocker{cache: cache}
}

// Acquire returns the holder token, or "" when the key is already held.
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := uuid.New().String()
	ok, err := l.cache.SetNX(ctx, key, token, ttl)
	if err != nil || !ok {
		return "", err
	}
	return token, nil
}

func (l *RedisLocker) Release(ctx context.Context, key, token string) error {
	_, err := l.cache.DeleteIfValue(ctx, key, token)
	return err
}
