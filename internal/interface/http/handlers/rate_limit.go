package handlers

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/alem-hub/gamification/pkg/timeutil"
	"github.com/gin-gonic/gin"
)

// ══════════════════════════════════════════════════════════════════════════════
// RATE LIMITER
// Per-client token bucket over the public API.
// ══════════════════════════════════════════════════════════════════════════════

// RateLimitConfig holds configuration for the rate limiter.
type RateLimitConfig struct {
	// RequestsPerMinute is the sustained refill rate per client.
	// Zero disables limiting.
	RequestsPerMinute int

	// BurstSize is the bucket capacity; defaults to RequestsPerMinute/6, at least 1.
	BurstSize int

	// IdleTTL drops buckets untouched for this long.
	IdleTTL time.Duration

	Clock timeutil.Clock
}

// DefaultRateLimitConfig returns 120 requests per minute with a burst of 20.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 120,
		BurstSize:         20,
		IdleTTL:           10 * time.Minute,
		Clock:             timeutil.SystemClock,
	}
}

// RateLimiter implements per-key rate limiting using the token bucket algorithm.
type RateLimiter struct {
	config  RateLimitConfig
	buckets sync.Map // map[string]*tokenBucket

	sweepMu   sync.Mutex
	lastSweep time.Time
}

type tokenBucket struct {
	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
}

// RateLimitResult is the outcome of one check.
type RateLimitResult struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// NewRateLimiter creates a rate limiter. Idle buckets are swept lazily on
// Check, so there is no background goroutine to stop.
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	if config.Clock == nil {
		config.Clock = timeutil.SystemClock
	}
	if config.BurstSize <= 0 {
		config.BurstSize = max(config.RequestsPerMinute/6, 1)
	}
	if config.IdleTTL <= 0 {
		config.IdleTTL = 10 * time.Minute
	}
	return &RateLimiter{config: config, lastSweep: config.Clock()}
}

// Enabled reports whether requests are limited at all.
func (rl *RateLimiter) Enabled() bool {
	return rl.config.RequestsPerMinute > 0
}

// Check consumes one token for key.
func (rl *RateLimiter) Check(key string) RateLimitResult {
	if !rl.Enabled() {
		return RateLimitResult{Allowed: true, Remaining: math.MaxInt32}
	}
	now := rl.config.Clock()
	rl.maybeSweep(now)

	b := rl.bucket(key, now)
	b.mu.Lock()
	defer b.mu.Unlock()

	rate := float64(rl.config.RequestsPerMinute) / 60.0
	b.tokens = math.Min(float64(rl.config.BurstSize), b.tokens+now.Sub(b.lastRefill).Seconds()*rate)
	b.lastRefill = now

	if b.tokens >= 1 {
		b.tokens--
		return RateLimitResult{Allowed: true, Remaining: int(b.tokens)}
	}

	deficit := 1 - b.tokens
	wait := time.Duration(math.Ceil(deficit / rate * float64(time.Second)))
	return RateLimitResult{RetryAfter: wait}
}

// Reset forgets the state for key.
func (rl *RateLimiter) Reset(key string) {
	rl.buckets.Delete(key)
}

func (rl *RateLimiter) bucket(key string, now time.Time) *tokenBucket {
	if v, ok := rl.buckets.Load(key); ok {
		return v.(*tokenBucket)
	}
	fresh := &tokenBucket{tokens: float64(rl.config.BurstSize), lastRefill: now}
	actual, _ := rl.buckets.LoadOrStore(key, fresh)
	return actual.(*tokenBucket)
}

func (rl *RateLimiter) maybeSweep(now time.Time) {
	rl.sweepMu.Lock()
	if now.Sub(rl.lastSweep) < rl.config.IdleTTL {
		rl.sweepMu.Unlock()
		return
	}
	rl.lastSweep = now
	rl.sweepMu.Unlock()

	rl.buckets.Range(func(key, value any) bool {
		b := value.(*tokenBucket)
		b.mu.Lock()
		idle := now.Sub(b.lastRefill) > rl.config.IdleTTL
		b.mu.Unlock()
		if idle {
			rl.buckets.Delete(key)
		}
		return true
	})
}

// Middleware limits by client IP and answers 429 with Retry-After.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.Enabled() {
			c.Next()
			return
		}

		res := rl.Check(c.ClientIP())
		c.Header("X-RateLimit-Limit", strconv.Itoa(rl.config.RequestsPerMinute))
		if !res.Allowed {
			secs := int(math.Ceil(res.RetryAfter.Seconds()))
			c.Header("Retry-After", strconv.Itoa(secs))
			c.Header("X-RateLimit-Remaining", "0")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, errorBody("rate_limited", "Too many requests"))
			return
		}
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		c.Next()
	}
}
