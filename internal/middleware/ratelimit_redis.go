// ratelimit_redis.go provides a Redis-backed Limiter for horizontally scaled
// deployments, where each process's in-memory window would otherwise multiply the
// effective quota by the replica count. It satisfies the same Limiter interface as the
// in-memory sliding window, so router wiring does not change between backends.
package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
)

// RedisLimiter enforces a sliding-window limit through redis_rate's GCRA
// implementation over a shared Redis instance.
type RedisLimiter struct {
	profile RateLimitProfile
	client  *redis.Client
	limiter *redis_rate.Limiter
	timeout time.Duration
}

// NewRedisLimiter creates a Redis-backed limiter.
func NewRedisLimiter(profile RateLimitProfile, client *redis.Client) *RedisLimiter {
	return &RedisLimiter{
		profile: profile,
		client:  client,
		limiter: redis_rate.NewLimiter(client),
		timeout: 2 * time.Second,
	}
}

func (rl *RedisLimiter) limit() redis_rate.Limit {
	return redis_rate.Limit{
		Rate:   rl.profile.MaxRequests,
		Period: rl.profile.Window,
		Burst:  rl.profile.MaxRequests,
	}
}

// Check consumes one slot for key if available. Redis outages fail open: a
// deployment should not lose its whole API because the limiter store is down.
func (rl *RedisLimiter) Check(key string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), rl.timeout)
	defer cancel()

	res, err := rl.limiter.Allow(ctx, rl.profile.Name+":"+key, rl.limit())
	if err != nil {
		slog.Warn("redis rate limiter unavailable, allowing request", "profile", rl.profile.Name, "error", err)
		return true
	}
	return res.Allowed > 0
}

// GetRemaining returns the quota left for key without consuming any.
func (rl *RedisLimiter) GetRemaining(key string) int {
	ctx, cancel := context.WithTimeout(context.Background(), rl.timeout)
	defer cancel()

	res, err := rl.limiter.AllowN(ctx, rl.profile.Name+":"+key, rl.limit(), 0)
	if err != nil {
		return rl.profile.MaxRequests
	}
	return res.Remaining
}

// RetryAfter returns how long until key frees one slot.
func (rl *RedisLimiter) RetryAfter(key string) time.Duration {
	ctx, cancel := context.WithTimeout(context.Background(), rl.timeout)
	defer cancel()

	res, err := rl.limiter.AllowN(ctx, rl.profile.Name+":"+key, rl.limit(), 0)
	if err != nil || res.RetryAfter < 0 {
		return 0
	}
	return res.RetryAfter
}

// Reset clears all recorded requests for key.
func (rl *RedisLimiter) Reset(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), rl.timeout)
	defer cancel()

	if err := rl.limiter.Reset(ctx, rl.profile.Name+":"+key); err != nil {
		slog.Warn("failed to reset redis rate limit key", "profile", rl.profile.Name, "error", err)
	}
}

// Profile returns the limiter's configuration.
func (rl *RedisLimiter) Profile() RateLimitProfile {
	return rl.profile
}

// Stop is a no-op; the Redis client is owned and closed by the caller.
func (rl *RedisLimiter) Stop() {}
