package hub

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"lazkit/internal/logging"
	"lazkit/internal/metrics"
)

// RequestIDHeader carries the per-request id.
const RequestIDHeader = "X-Request-ID"

const requestIDKey = "request_id"

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

func accessLogMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start)
		status := c.Writer.Status()
		metrics.RecordHubRequest(c.FullPath(), status, duration)

		rl := logging.WithRequestID(logging.CategoryHub, c.GetString(requestIDKey)).
			WithField("method", c.Request.Method).
			WithField("path", c.Request.URL.Path).
			WithField("status", status).
			WithField("duration_ms", duration.Milliseconds()).
			WithField("ip", c.ClientIP())
		if status >= http.StatusInternalServerError {
			rl.Error("request failed")
		} else {
			rl.Info("request served")
		}
	}
}

// RateLimiter keeps one token bucket per client key.
type RateLimiter struct {
	limiters map[string]*limiterEntry
	mu       sync.Mutex
	rate     rate.Limit
	burst    int
	maxKeys  int
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a limiter allowing rps requests per second per
// client with the given burst.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*limiterEntry),
		rate:     rate.Limit(rps),
		burst:    burst,
		maxKeys:  10000,
	}
}

// Allow reports whether key may make a request now.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	e, ok := rl.limiters[key]
	if !ok {
		if len(rl.limiters) >= rl.maxKeys {
			rl.evictStale(now, 10*time.Minute)
		}
		e = &limiterEntry{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.limiters[key] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

// evictStale drops limiters idle for longer than idle; if none are that old
// it clears the table.
func (rl *RateLimiter) evictStale(now time.Time, idle time.Duration) {
	for k, e := range rl.limiters {
		if now.Sub(e.lastSeen) > idle {
			delete(rl.limiters, k)
		}
	}
	if len(rl.limiters) >= rl.maxKeys {
		rl.limiters = make(map[string]*limiterEntry)
	}
}

// RateLimitMiddleware rejects clients that exceed their bucket with 429.
func RateLimitMiddleware(limiter *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions || c.FullPath() == "/health" {
			c.Next()
			return
		}
		if !limiter.Allow(c.ClientIP()) {
			metrics.RecordRateLimit()
			logging.HubWarn("Rate limit exceeded for %s", c.ClientIP())
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "rate_limit_exceeded",
				"message": "Too many requests, please try again later",
			})
			return
		}
		c.Next()
	}
}
