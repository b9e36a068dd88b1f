// ratelimit.go provides the sliding-window rate limiter and its Gin middleware.
// Each key owns an ordered slice of request timestamps; expired timestamps are pruned
// lazily on every check, so a burst's quota frees up exactly as its requests age past
// the window rather than all at once at a bucket boundary.
package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/medtrack/inventory-backend/internal/api/apierror"
	"github.com/medtrack/inventory-backend/internal/telemetry"
)

// RateLimitProfile holds configuration for one rate limiting profile.
type RateLimitProfile struct {
	// Name labels the profile in metrics and logs.
	Name string
	// MaxRequests is the number of requests allowed inside the window.
	MaxRequests int
	// Window is the sliding window duration.
	Window time.Duration
	// CleanupInterval is how often idle keys are swept from memory.
	CleanupInterval time.Duration
}

// APILimitProfile returns the general authenticated-API profile.
func APILimitProfile(requestsPerMinute int) RateLimitProfile {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 100
	}
	return RateLimitProfile{
		Name:            "api",
		MaxRequests:     requestsPerMinute,
		Window:          time.Minute,
		CleanupInterval: 5 * time.Minute,
	}
}

// LoginLimitProfile returns the per-IP login attempt profile.
func LoginLimitProfile(maxAttempts int, window time.Duration) RateLimitProfile {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	return RateLimitProfile{
		Name:            "login",
		MaxRequests:     maxAttempts,
		Window:          window,
		CleanupInterval: 5 * time.Minute,
	}
}

// EmailLimitProfile returns the per-email login attempt profile layered on top
// of LoginLimitProfile, so rotating source IPs does not lift the per-account cap.
func EmailLimitProfile(maxAttempts int, window time.Duration) RateLimitProfile {
	if maxAttempts <= 0 {
		maxAttempts = 10
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	return RateLimitProfile{
		Name:            "login-email",
		MaxRequests:     maxAttempts,
		Window:          window,
		CleanupInterval: 5 * time.Minute,
	}
}

// AILimitProfile returns the shared-key profile for the third-party AI
// integration: one global bucket regardless of caller.
func AILimitProfile() RateLimitProfile {
	return RateLimitProfile{
		Name:            "ai",
		MaxRequests:     60,
		Window:          time.Minute,
		CleanupInterval: 5 * time.Minute,
	}
}

// Limiter is the rate limiting contract. The in-memory sliding window is the
// default backend; a Redis-backed implementation satisfies the same interface
// for horizontally scaled deployments.
type Limiter interface {
	// Check records the request if allowed and reports whether it was.
	Check(key string) bool
	// GetRemaining returns the quota left for key without consuming any.
	GetRemaining(key string) int
	// RetryAfter returns how long until a denied key frees one slot.
	RetryAfter(key string) time.Duration
	// Reset clears all recorded requests for key.
	Reset(key string)
	// Profile returns the limiter's configuration.
	Profile() RateLimitProfile
	// Stop releases background resources.
	Stop()
}

// SlidingWindowLimiter is the in-memory Limiter. State is process-local with no
// persistence; every mutation holds the mutex since Gin dispatches requests on
// parallel goroutines.
type SlidingWindowLimiter struct {
	profile RateLimitProfile
	mu      sync.Mutex
	buckets map[string][]time.Time
	stopCh  chan struct{}
	now     func() time.Time // injectable for tests
}

// NewSlidingWindowLimiter creates an in-memory limiter and starts its cleanup
// goroutine.
func NewSlidingWindowLimiter(profile RateLimitProfile) *SlidingWindowLimiter {
	if profile.CleanupInterval <= 0 {
		profile.CleanupInterval = 5 * time.Minute
	}
	rl := &SlidingWindowLimiter{
		profile: profile,
		buckets: make(map[string][]time.Time),
		stopCh:  make(chan struct{}),
		now:     time.Now,
	}

	go rl.cleanup()

	return rl
}

// cleanup periodically removes keys whose every timestamp has expired.
func (rl *SlidingWindowLimiter) cleanup() {
	ticker := time.NewTicker(rl.profile.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.mu.Lock()
			cutoff := rl.now().Add(-rl.profile.Window)
			for key, stamps := range rl.buckets {
				if len(stamps) == 0 || !stamps[len(stamps)-1].After(cutoff) {
					delete(rl.buckets, key)
				}
			}
			rl.mu.Unlock()
		case <-rl.stopCh:
			return
		}
	}
}

// Stop stops the cleanup goroutine.
func (rl *SlidingWindowLimiter) Stop() {
	close(rl.stopCh)
}

// Profile returns the limiter's configuration.
func (rl *SlidingWindowLimiter) Profile() RateLimitProfile {
	return rl.profile
}

// prune drops timestamps older than the window. Caller must hold the mutex.
func (rl *SlidingWindowLimiter) prune(key string, now time.Time) []time.Time {
	stamps := rl.buckets[key]
	cutoff := now.Add(-rl.profile.Window)

	// Timestamps are appended in order, so find the first one still inside the
	// window and keep the tail.
	keep := 0
	for keep < len(stamps) && !stamps[keep].After(cutoff) {
		keep++
	}
	if keep > 0 {
		stamps = append([]time.Time(nil), stamps[keep:]...)
		if len(stamps) == 0 {
			delete(rl.buckets, key)
			return nil
		}
		rl.buckets[key] = stamps
	}
	return stamps
}

// Check records the request timestamp if the key is under its limit. A denied
// request is not recorded, so hammering a limited endpoint does not extend the
// lockout.
func (rl *SlidingWindowLimiter) Check(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	stamps := rl.prune(key, now)

	if len(stamps) >= rl.profile.MaxRequests {
		return false
	}

	rl.buckets[key] = append(stamps, now)
	return true
}

// GetRemaining returns how many requests the key has left in the current window.
func (rl *SlidingWindowLimiter) GetRemaining(key string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	remaining := rl.profile.MaxRequests - len(rl.prune(key, rl.now()))
	if remaining < 0 {
		return 0
	}
	return remaining
}

// RetryAfter returns the time until the key's oldest recorded request leaves
// the window, freeing one slot. Zero when the key is not currently limited.
func (rl *SlidingWindowLimiter) RetryAfter(key string) time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	stamps := rl.prune(key, now)
	if len(stamps) < rl.profile.MaxRequests {
		return 0
	}

	return stamps[0].Add(rl.profile.Window).Sub(now)
}

// Reset clears all recorded requests for a key.
func (rl *SlidingWindowLimiter) Reset(key string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.buckets, key)
}

// RateLimitMiddleware creates a Gin middleware enforcing limiter per key. On
// denial it writes the standard 429 envelope with retry metadata and never
// invokes the wrapped handler.
func RateLimitMiddleware(limiter Limiter, keyFn func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := keyFn(c)
		profile := limiter.Profile()

		if !limiter.Check(key) {
			retryAfter := limiter.RetryAfter(key)
			retrySecs := int(retryAfter.Seconds()) + 1

			telemetry.RateLimitDenialsTotal.WithLabelValues(profile.Name).Inc()

			c.Header("Retry-After", strconv.Itoa(retrySecs))
			c.Header("X-RateLimit-Limit", strconv.Itoa(profile.MaxRequests))
			c.Header("X-RateLimit-Remaining", strconv.Itoa(limiter.GetRemaining(key)))
			c.Header("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(retryAfter).Unix(), 10))
			apierror.Abort(c, http.StatusTooManyRequests, apierror.CodeRateLimitExceeded,
				"Too many requests. Retry after "+strconv.Itoa(retrySecs)+" seconds.")
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(profile.MaxRequests))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(limiter.GetRemaining(key)))

		c.Next()
	}
}

// SessionOrIPKey keys the general API limiter: authenticated requests share a
// bucket per user, anonymous requests fall back to the client IP.
func SessionOrIPKey(c *gin.Context) string {
	if userID, exists := c.Get("user_id"); exists {
		if id, ok := userID.(string); ok && id != "" {
			return "user:" + id
		}
	}
	return "ip:" + clientIP(c)
}

// IPKey keys limiters by client IP only (login protection).
func IPKey(c *gin.Context) string {
	return "ip:" + clientIP(c)
}

// SharedKey keys a limiter with one global bucket (AI integration quota).
func SharedKey(*gin.Context) string {
	return "global"
}

func clientIP(c *gin.Context) string {
	ip := c.ClientIP()
	if ip == "" {
		ip = c.Request.RemoteAddr
	}
	if ip == "" {
		ip = "unknown"
	}
	return ip
}
