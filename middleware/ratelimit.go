package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

type bucket struct {
	tokens     int
	lastRefill time.Time
}

// RateLimiter is a token bucket per caller: the token subject when auth is
// on, otherwise the client IP.
type RateLimiter struct {
	mu       sync.Mutex
	buckets  map[string]*bucket
	window   time.Duration
	capacity int
	now      func() time.Time
}

// maxIdleBuckets bounds the bucket map; full buckets are dropped past it.
const maxIdleBuckets = 10000

func NewRateLimiter(window time.Duration, capacity int) *RateLimiter {
	return &RateLimiter{
		buckets:  map[string]*bucket{},
		window:   window,
		capacity: capacity,
		now:      time.Now,
	}
}

func clientIP(c *gin.Context) string {
	ip := strings.TrimSpace(c.ClientIP())
	if ip == "" {
		host, _, _ := net.SplitHostPort(strings.TrimSpace(c.Request.RemoteAddr))
		ip = host
	}
	return ip
}

func callerKey(c *gin.Context) string {
	if sub := c.GetString(ContextSubjectKey); sub != "" {
		return "sub:" + sub
	}
	return "ip:" + clientIP(c)
}

// Allow takes one token for key.
func (rl *RateLimiter) Allow(key string) bool {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	b := rl.buckets[key]
	if b == nil {
		if len(rl.buckets) >= maxIdleBuckets {
			rl.sweepNoLock(now)
		}
		b = &bucket{tokens: rl.capacity, lastRefill: now}
		rl.buckets[key] = b
	}
	elapsed := now.Sub(b.lastRefill)
	if elapsed > 0 {
		add := int(float64(rl.capacity) * (float64(elapsed) / float64(rl.window)))
		if add > 0 {
			b.tokens += add
			if b.tokens > rl.capacity {
				b.tokens = rl.capacity
			}
			b.lastRefill = now
		}
	}
	if b.tokens <= 0 {
		return false
	}
	b.tokens--
	return true
}

// sweepNoLock drops buckets that would be full again; caller holds rl.mu.
func (rl *RateLimiter) sweepNoLock(now time.Time) {
	for k, b := range rl.buckets {
		if now.Sub(b.lastRefill) >= rl.window {
			delete(rl.buckets, k)
		}
	}
}

func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.Allow(callerKey(c)) {
			c.Header("Retry-After", strconv.Itoa(int(rl.window.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}
