package middleware

import (
	"context"
)

// KeyChecker is the subset of the Redis cache the blacklist reads.
type KeyChecker interface {
	Exists(ctx context.Context, key string) (bool, error)
}

// RedisTokenBlacklist implements TokenBlacklist over keys written by the
// identity provider's logout flow. This service only reads them.
type RedisTokenBlacklist struct {
	cache KeyChecker
}

func NewRedisTokenBlacklist(cache KeyChecker) *RedisTokenBlacklist {
	return &RedisTokenBlacklist{cache: cache}
}

func (b *RedisTokenBlacklist) IsBlacklisted(ctx context.Context, token string) (bool, error) {
	return b.cache.Exists(ctx, blacklistKey(token))
}

func blacklistKey(token string) string {
	return "blacklist:" + token
}
