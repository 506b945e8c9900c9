package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func request(remote string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/run", nil)
	req.RemoteAddr = remote
	return req
}

func TestRateLimiter_BurstThenReject(t *testing.T) {
	rl := NewRateLimiter(1, 2, time.Minute)
	h := rl.Middleware(okHandler())

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, request("10.0.0.1:5000"))
		codes = append(codes, rec.Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestRateLimiter_PerClient(t *testing.T) {
	rl := NewRateLimiter(1, 1, time.Minute)
	h := rl.Middleware(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, request("10.0.0.1:5000"))
	assert.Equal(t, http.StatusOK, rec.Code)

	// Same host, different port: same bucket.
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, request("10.0.0.1:6000"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "rate_limited")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, request("10.0.0.2:5000"))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimiter_Disabled(t *testing.T) {
	rl := NewRateLimiter(0, 0, time.Minute)
	h := rl.Middleware(okHandler())

	for i := 0; i < 20; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, request("10.0.0.1:5000"))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestRateLimiter_Sweep(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	rl := NewRateLimiter(1, 1, time.Minute)
	rl.now = func() time.Time { return now }

	rl.Allow("a")
	now = now.Add(30 * time.Second)
	rl.Allow("b")
	now = now.Add(45 * time.Second)

	assert.Equal(t, 1, rl.Sweep())
	assert.Len(t, rl.clients, 1)
	assert.Contains(t, rl.clients, "b")
}
