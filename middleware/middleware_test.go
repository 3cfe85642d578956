package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func newEcho(mw ...echo.MiddlewareFunc) *echo.Echo {
	e := echo.New()
	e.Use(mw...)
	ok := func(c echo.Context) error { return c.String(http.StatusOK, "ok") }
	e.GET("/auth/state", ok)
	e.GET("/health", ok)
	return e
}

func get(e *echo.Echo, path, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = ip + ":1234"
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestRateLimiter_AllowsWithinBurst(t *testing.T) {
	rl := NewRateLimiter(t.Context(), rate.Limit(10), 3)
	e := newEcho(rl.Middleware())

	for range 3 {
		assert.Equal(t, http.StatusOK, get(e, "/auth/state", "10.0.0.1").Code)
	}
}

func TestRateLimiter_RejectsOverLimit(t *testing.T) {
	rl := NewRateLimiter(t.Context(), rate.Limit(1), 1)
	e := newEcho(rl.Middleware())

	assert.Equal(t, http.StatusOK, get(e, "/auth/state", "10.0.0.1").Code)

	rec := get(e, "/auth/state", "10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestRateLimiter_PerClient(t *testing.T) {
	rl := NewRateLimiter(t.Context(), rate.Limit(1), 1)
	e := newEcho(rl.Middleware())

	assert.Equal(t, http.StatusOK, get(e, "/auth/state", "10.0.0.1").Code)
	assert.Equal(t, http.StatusOK, get(e, "/auth/state", "10.0.0.2").Code)
	assert.Equal(t, 2, rl.tracked())
}

func TestRateLimiter_SkippedPath(t *testing.T) {
	rl := NewRateLimiter(t.Context(), rate.Limit(1), 1, "/health")
	e := newEcho(rl.Middleware())

	for range 5 {
		assert.Equal(t, http.StatusOK, get(e, "/health", "10.0.0.1").Code)
	}
	assert.Zero(t, rl.tracked())
}

func TestRateLimiter_SweepDropsIdleClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rl := NewRateLimiter(ctx, rate.Limit(1), 1)

	now := time.Now()
	rl.now = func() time.Time { return now }
	rl.limiterFor("10.0.0.1")

	now = now.Add(idleTimeout / 2)
	rl.limiterFor("10.0.0.2")

	now = now.Add(idleTimeout/2 + time.Second)
	rl.sweep()

	assert.Equal(t, 1, rl.tracked())
}

func TestSecurityHeaders(t *testing.T) {
	tests := []struct {
		name     string
		hsts     bool
		wantHSTS string
	}{
		{"with hsts", true, "max-age=63072000; includeSubDomains"},
		{"plain http", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(newEcho(SecurityHeaders(tt.hsts)), "/auth/state", "10.0.0.1")

			assert.Equal(t, tt.wantHSTS, rec.Header().Get("Strict-Transport-Security"))
			assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
			assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
			assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
			assert.Contains(t, rec.Header().Get("Content-Security-Policy"), "frame-ancestors 'none'")
		})
	}
}
