// internal/pkg/session/rate_limiter.go
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter counts requests per caller in fixed windows.
type RateLimiter struct {
	client redis.UniversalClient
	prefix string
}

func NewRateLimiter(client redis.UniversalClient, prefix string) *RateLimiter {
	return &RateLimiter{
		client: client,
		prefix: prefix,
	}
}

// Allow records one request by subject against bucket and reports whether
// it fits in maxRequests per window, plus how many remain.
func (r *RateLimiter) Allow(ctx context.Context, subject, bucket string, maxRequests int64, window time.Duration) (bool, int64, error) {
	key := fmt.Sprintf("%sratelimit:%s:%s", r.prefix, bucket, subject)

	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return false, 0, fmt.Errorf("failed to increment rate limit: %w", err)
	}

	// Set expiration on first request of the window
	if count == 1 {
		if err := r.client.Expire(ctx, key, window).Err(); err != nil {
			return false, 0, fmt.Errorf("failed to set rate limit window: %w", err)
		}
	}

	remaining := maxRequests - count
	if remaining < 0 {
		remaining = 0
	}
	return count <= maxRequests, remaining, nil
}

// Reset clears subject's counter for bucket
func (r *RateLimiter) Reset(ctx context.Context, subject, bucket string) error {
	return r.client.Del(ctx, fmt.Sprintf("%sratelimit:%s:%s", r.prefix, bucket, subject)).Err()
}
