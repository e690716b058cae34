package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"dotpay/pkg/logger"
)

// Counter is the subset of the Redis cache the limiter needs.
type Counter interface {
	Increment(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, expiration time.Duration) error
}

// RateLimiter applies a fixed-window rate limit backed by Redis.
type RateLimiter struct {
	cache  Counter
	limit  int
	window time.Duration
	logger logger.Logger
}

func NewRateLimiter(cache Counter, limit int, window time.Duration, log logger.Logger) *RateLimiter {
	return &RateLimiter{
		cache:  cache,
		limit:  limit,
		window: window,
		logger: log,
	}
}

// Limit enforces the rate limit keyed by client IP and, once authenticated,
// by wallet address. A Redis outage lets requests through.
func (rl *RateLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			ip = host
		}

		key := fmt.Sprintf("ratelimit:%s", ip)
		if address, ok := AddressFromContext(r.Context()); ok {
			key = fmt.Sprintf("ratelimit:%s:%s", ip, address)
		}

		count, err := rl.cache.Increment(r.Context(), key)
		if err != nil {
			rl.logger.Warn("Rate limiter unavailable", map[string]interface{}{"error": err.Error()})
			next.ServeHTTP(w, r)
			return
		}
		if count == 1 {
			if err := rl.cache.Expire(r.Context(), key, rl.window); err != nil {
				rl.logger.Warn("Failed to set rate limit window", map[string]interface{}{"error": err.Error()})
			}
		}

		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", rl.limit))
		if count > int64(rl.limit) {
			w.Header().Set("X-RateLimit-Remaining", "0")
			jsonError(w, http.StatusTooManyRequests, "Rate limit exceeded")
			return
		}
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", rl.limit-int(count)))

		next.ServeHTTP(w, r)
	})
}
