package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spanmark/spanmark/pkg/errors"
)

func TestTokenBucketLimiter_AllowsBurstThenDenies(t *testing.T) {
	l := NewTokenBucketLimiter(0.001, 3, 0)

	for i := 0; i < 3; i++ {
		allowed, info := l.Allow("client")
		assert.True(t, allowed, "request %d should fit in the burst", i+1)
		assert.Equal(t, 3, info.Limit)
		assert.Equal(t, 2-i, info.Remaining)
	}

	allowed, info := l.Allow("client")
	assert.False(t, allowed)
	assert.Equal(t, 0, info.Remaining)
	assert.False(t, info.ResetAt.IsZero())
}

func TestTokenBucketLimiter_RefillsOverTime(t *testing.T) {
	l := NewTokenBucketLimiter(100, 1, 0)

	allowed, _ := l.Allow("client")
	require.True(t, allowed)
	allowed, _ = l.Allow("client")
	require.False(t, allowed)

	time.Sleep(30 * time.Millisecond)

	allowed, _ = l.Allow("client")
	assert.True(t, allowed, "tokens should refill at the sustained rate")
}

func TestTokenBucketLimiter_KeysAreIndependent(t *testing.T) {
	l := NewTokenBucketLimiter(0.001, 1, 0)

	allowed, _ := l.Allow("a")
	require.True(t, allowed)
	allowed, _ = l.Allow("a")
	require.False(t, allowed)

	allowed, _ = l.Allow("b")
	assert.True(t, allowed, "a throttled key must not affect other keys")
	assert.Equal(t, 2, l.BucketCount())
}

func TestTokenBucketLimiter_CleanupDropsIdleBuckets(t *testing.T) {
	l := NewTokenBucketLimiter(0.001, 2, 0)

	// "idle" sits near full; "busy" is drained and must survive the sweep.
	_, _ = l.Allow("idle")
	_, _ = l.Allow("busy")
	_, _ = l.Allow("busy")
	require.Equal(t, 2, l.BucketCount())

	l.cleanup()

	assert.Equal(t, 1, l.BucketCount())
	allowed, _ := l.Allow("busy")
	assert.False(t, allowed, "drained bucket should persist through cleanup")
}

func newRateLimitEngine(limiter RateLimiter, cfg RateLimitConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	r.Use(RateLimit(limiter, cfg))
	r.GET("/data", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestRateLimit_Returns429WithHeaders(t *testing.T) {
	cfg := DefaultRateLimitConfig()
	cfg.KeyFunc = func(*gin.Context) string { return "fixed" }
	limiter := NewTokenBucketLimiter(0.001, 1, 0)
	r := newRateLimitEngine(limiter, cfg)

	first := httptest.NewRecorder()
	r.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/data", nil))
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "1", first.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", first.Header().Get("X-RateLimit-Remaining"))

	second := httptest.NewRecorder()
	r.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/data", nil))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.NotEmpty(t, second.Header().Get("Retry-After"))
	assert.NotEmpty(t, second.Header().Get("X-RateLimit-Reset"))

	var body struct {
		Success bool `json:"success"`
		Error   *struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &body))
	assert.False(t, body.Success)
	require.NotNil(t, body.Error)
	assert.Equal(t, errors.ErrCodeRateLimited.String(), body.Error.Code)
}

func TestRateLimit_SkipPathsBypassLimiter(t *testing.T) {
	cfg := DefaultRateLimitConfig()
	cfg.KeyFunc = func(*gin.Context) string { return "fixed" }
	limiter := NewTokenBucketLimiter(0.001, 1, 0)
	r := newRateLimitEngine(limiter, cfg)

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
	}
}

func TestRateLimit_DefaultKeyIsClientIP(t *testing.T) {
	cfg := DefaultRateLimitConfig()
	cfg.KeyFunc = nil
	limiter := NewTokenBucketLimiter(0.001, 1, 0)
	r := newRateLimitEngine(limiter, cfg)

	reqA := httptest.NewRequest(http.MethodGet, "/data", nil)
	reqA.RemoteAddr = "198.51.100.1:4444"
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, reqA)
	require.Equal(t, http.StatusOK, rec.Code)

	reqA2 := httptest.NewRequest(http.MethodGet, "/data", nil)
	reqA2.RemoteAddr = "198.51.100.1:5555"
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, reqA2)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code, "same IP shares one bucket")

	reqB := httptest.NewRequest(http.MethodGet, "/data", nil)
	reqB.RemoteAddr = "198.51.100.2:4444"
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, reqB)
	assert.Equal(t, http.StatusOK, rec.Code, "distinct IPs get their own buckets")
}
