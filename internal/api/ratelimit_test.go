package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_Window(t *testing.T) {
	now := time.Unix(1000, 0)
	rl := NewRateLimiter(2, time.Minute)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("1.2.3.4"))
	assert.True(t, rl.Allow("1.2.3.4"))
	assert.False(t, rl.Allow("1.2.3.4"))
	assert.True(t, rl.Allow("5.6.7.8"), "buckets are per client")
	assert.Equal(t, 60, rl.RetryAfter("1.2.3.4"))

	now = now.Add(time.Minute)
	assert.True(t, rl.Allow("1.2.3.4"))

	now = now.Add(5 * time.Minute)
	rl.Allow("9.9.9.9")
	assert.NotContains(t, rl.buckets, "5.6.7.8", "idle buckets are swept")
}

func TestRateLimitMiddleware(t *testing.T) {
	rl := NewRateLimiter(1, time.Hour)
	h := RateLimitMiddleware(rl, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/speed", nil)
	req.Header.Set("X-Forwarded-For", "10.0.0.1, 10.0.0.2")

	rec := httptest.NewRecorder()
	h(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	h(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Contains(t, rl.buckets, "10.0.0.1")
}
