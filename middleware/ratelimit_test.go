package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterRefill(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	rl := NewRateLimiter(10*time.Second, 2)
	rl.now = func() time.Time { return now }

	require.True(t, rl.Allow("a"))
	require.True(t, rl.Allow("a"))
	require.False(t, rl.Allow("a"), "bucket should be empty")
	require.True(t, rl.Allow("b"), "buckets are per key")

	// half a window refills one token
	now = now.Add(5 * time.Second)
	require.True(t, rl.Allow("a"))
	require.False(t, rl.Allow("a"))

	// refill never exceeds capacity
	now = now.Add(time.Hour)
	require.True(t, rl.Allow("a"))
	require.True(t, rl.Allow("a"))
	require.False(t, rl.Allow("a"))
}

func TestRateLimiterSweep(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	rl := NewRateLimiter(time.Second, 1)
	rl.now = func() time.Time { return now }
	rl.Allow("old")

	now = now.Add(2 * time.Second)
	rl.mu.Lock()
	rl.sweepNoLock(now)
	_, kept := rl.buckets["old"]
	rl.mu.Unlock()
	require.False(t, kept)
}

func TestRateLimitHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := NewRateLimiter(10*time.Second, 1)
	r := gin.New()
	r.POST("/messages", rl.Handler(), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/messages", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/messages", nil))
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.Equal(t, "10", w.Header().Get("Retry-After"))
	require.JSONEq(t, `{"error":"too many requests"}`, w.Body.String())
}
