package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterRefillsOverTime(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(1, 2)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("1.2.3.4"))
	assert.True(t, rl.Allow("1.2.3.4"))
	assert.False(t, rl.Allow("1.2.3.4"), "burst exhausted")
	assert.True(t, rl.Allow("5.6.7.8"), "keys are independent")

	now = now.Add(time.Second)
	assert.True(t, rl.Allow("1.2.3.4"), "one token refilled")
	assert.False(t, rl.Allow("1.2.3.4"))
}

func TestRateLimiterEvictsStaleBuckets(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(1, 1)
	rl.now = func() time.Time { return now }
	rl.Allow("a")
	now = now.Add(time.Hour)
	rl.Allow("b")

	assert.Equal(t, 1, rl.evictBefore(now.Add(-time.Minute)))
	assert.Len(t, rl.buckets, 1)
}

func TestRateLimitMiddlewareRejects(t *testing.T) {
	limiter := NewRateLimiter(0, 1)
	handler := RateLimit(limiter)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/otp/send", nil)
	req.Header.Set("X-Real-Ip", "9.9.9.9")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "5", rec.Header().Get("Retry-After"))
}
