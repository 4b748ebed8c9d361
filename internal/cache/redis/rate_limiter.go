package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/openharvest/harvestd/internal/domain"
)

// RateLimiter implements domain.RateLimiter with a fixed-window counter:
// INCR on a per-window key plus an expiry set atomically in a pipeline. A
// fixed window slightly over-admits at window boundaries, which is fine here
// because the limiter only pre-throttles submissions the relay rate-limits
// authoritatively anyway.
type RateLimiter struct {
	rdb *redis.Client
}

// NewRateLimiter creates a RateLimiter backed by the given Client.
func NewRateLimiter(c *Client) *RateLimiter {
	return &RateLimiter{rdb: c.rdb}
}

func rateLimitKey(key string, window time.Duration) string {
	// The window index makes the key self-rotating; expiry only cleans up.
	bucket := time.Now().UnixNano() / int64(window)
	return fmt.Sprintf("ratelimit:%s:%d", key, bucket)
}

// Allow reports whether a request for the given key is permitted under the
// limit. The request is counted regardless, so a denied burst keeps the
// window saturated.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	rk := rateLimitKey(key, window)

	pipe := rl.rdb.TxPipeline()
	count := pipe.Incr(ctx, rk)
	pipe.Expire(ctx, rk, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("redis: rate limit allow %s: %w", key, err)
	}

	return count.Val() <= int64(limit), nil
}

// Compile-time interface check.
var _ domain.RateLimiter = (*RateLimiter)(nil)
