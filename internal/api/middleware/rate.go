package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// idleTTL is how long a client's limiter is kept after its last request
const idleTTL = 10 * time.Minute

// RateLimitConfig defines rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int
	Burst             int
}

// DefaultRateLimitConfig returns production-ready rate limit configuration.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 100,
		Burst:             200,
	}
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// visitors holds one limiter per client IP
type visitors struct {
	cfg RateLimitConfig
	now func() time.Time

	mu      sync.Mutex
	clients map[string]*visitor
	swept   time.Time
}

func (v *visitors) get(ip string) *rate.Limiter {
	v.mu.Lock()
	defer v.mu.Unlock()

	now := v.now()
	if now.Sub(v.swept) > idleTTL {
		for key, c := range v.clients {
			if now.Sub(c.lastSeen) > idleTTL {
				delete(v.clients, key)
			}
		}
		v.swept = now
	}

	c, ok := v.clients[ip]
	if !ok {
		c = &visitor{limiter: rate.NewLimiter(rate.Limit(v.cfg.RequestsPerSecond), v.cfg.Burst)}
		v.clients[ip] = c
	}
	c.lastSeen = now
	return c.limiter
}

func (v *visitors) size() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.clients)
}

// RateLimit creates a per-IP rate limiting middleware.
func RateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	return rateLimit(&visitors{cfg: cfg, now: time.Now, clients: make(map[string]*visitor), swept: time.Now()})
}

func rateLimit(v *visitors) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !v.get(c.ClientIP()).Allow() {
			abortLimited(c)
			return
		}
		c.Next()
	}
}

// GlobalRateLimit creates a global rate limiting middleware.
func GlobalRateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	limiter := rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)

	return func(c *gin.Context) {
		if !limiter.Allow() {
			abortLimited(c)
			return
		}
		c.Next()
	}
}

func abortLimited(c *gin.Context) {
	c.Header("Retry-After", "1")
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
		"error": "rate limit exceeded",
	})
}
