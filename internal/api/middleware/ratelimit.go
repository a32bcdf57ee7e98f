package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ──────────────────────────────────────────────────────────────────────────────
// Token Bucket Rate Limiter
// ──────────────────────────────────────────────────────────────────────────────

// bucket is a simple in-memory token bucket for one client key.
type bucket struct {
	tokens     float64
	lastRefill time.Time
	mu         sync.Mutex
}

// rateLimiter holds per-key buckets and the shared read-write lock.
type rateLimiter struct {
	mu      sync.RWMutex
	buckets map[string]*bucket
	rate    float64 // tokens per second
	burst   float64 // maximum token capacity
}

// newRateLimiter creates a rate limiter with the given requests-per-second
// allowance.  The burst capacity is set to max(10, rate) so short spikes are
// absorbed.
func newRateLimiter(rps int) *rateLimiter {
	burst := float64(rps)
	if burst < 10 {
		burst = 10
	}
	return &rateLimiter{
		buckets: make(map[string]*bucket),
		rate:    float64(rps),
		burst:   burst,
	}
}

// allow returns true when the given key is allowed to proceed and deducts one
// token from its bucket.
func (rl *rateLimiter) allow(key string) bool {
	// Fast path: bucket exists
	rl.mu.RLock()
	b, ok := rl.buckets[key]
	rl.mu.RUnlock()

	if !ok {
		// Slow path: create a new full bucket for this key
		rl.mu.Lock()
		if b, ok = rl.buckets[key]; !ok {
			b = &bucket{tokens: rl.burst, lastRefill: time.Now()}
			rl.buckets[key] = b
		}
		rl.mu.Unlock()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	b.tokens += elapsed * rl.rate
	if b.tokens > rl.burst {
		b.tokens = rl.burst
	}
	b.lastRefill = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// evictLoop drops buckets idle for 10 minutes so the map stays bounded.
func (rl *rateLimiter) evictLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		rl.mu.Lock()
		cutoff := time.Now().Add(-10 * time.Minute)
		for key, b := range rl.buckets {
			b.mu.Lock()
			if b.lastRefill.Before(cutoff) {
				delete(rl.buckets, key)
			}
			b.mu.Unlock()
		}
		rl.mu.Unlock()
	}
}

// RateLimitMiddleware enforces a per-IP token bucket rate limit of rps
// requests per second.  Clients exceeding the limit receive 429.
func RateLimitMiddleware(rps int) gin.HandlerFunc {
	rl := newRateLimiter(rps)
	go rl.evictLoop()

	return func(c *gin.Context) {
		if !rl.allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "too many requests",
			})
			return
		}
		c.Next()
	}
}

// AccountRateLimitMiddleware enforces the limit per authenticated account
// instead of per IP.  Applied to vault operations so one holder hammering the
// engine cannot starve others behind the same NAT.  Must be placed after
// JWTMiddleware; unauthenticated requests fall back to the client IP.
func AccountRateLimitMiddleware(rps int) gin.HandlerFunc {
	rl := newRateLimiter(rps)
	go rl.evictLoop()

	return func(c *gin.Context) {
		key := c.ClientIP()
		if id := GetAccountID(c); id != uuid.Nil {
			key = id.String()
		}
		if !rl.allow(key) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "too many requests",
			})
			return
		}
		c.Next()
	}
}
