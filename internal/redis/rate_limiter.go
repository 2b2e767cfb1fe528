package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Decision is the outcome of a rate limit check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	// RetryAfter is how long until the oldest counted request leaves the
	// window. Zero when allowed.
	RetryAfter time.Duration
}

// RateLimiter allows or denies requests using a sliding-window count in Redis.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

type slidingWindowLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	now    func() time.Time
}

// NewRateLimiter returns a Redis-backed sliding-window rate limiter.
// limit is the maximum number of requests allowed per window for a given key.
func NewRateLimiter(client *redis.Client, limit int, window time.Duration) RateLimiter {
	return &slidingWindowLimiter{client: client, limit: limit, window: window, now: time.Now}
}

// Allow records the request and reports whether it fits in the window. Rejected
// requests are counted too, so a client hammering the endpoint stays limited.
func (r *slidingWindowLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	now := r.now().UnixNano()
	windowStart := now - r.window.Nanoseconds()
	rkey := "ratelimit:" + key

	pipe := r.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, rkey, "0", strconv.FormatInt(windowStart, 10))
	// Members must be unique: two requests can share a nanosecond timestamp.
	pipe.ZAdd(ctx, rkey, redis.Z{Score: float64(now), Member: uuid.NewString()})
	countCmd := pipe.ZCard(ctx, rkey)
	oldestCmd := pipe.ZRangeWithScores(ctx, rkey, 0, 0)
	pipe.Expire(ctx, rkey, r.window*2)

	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{}, fmt.Errorf("rate limiter pipeline for %q: %w", key, err)
	}

	count := int(countCmd.Val())
	d := Decision{
		Allowed:   count <= r.limit,
		Limit:     r.limit,
		Remaining: max(0, r.limit-count),
	}
	if !d.Allowed {
		if oldest := oldestCmd.Val(); len(oldest) > 0 {
			d.RetryAfter = time.Duration(int64(oldest[0].Score) + r.window.Nanoseconds() - now)
		}
		if d.RetryAfter <= 0 {
			d.RetryAfter = time.Second
		}
	}
	return d, nil
}
