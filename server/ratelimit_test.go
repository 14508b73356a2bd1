package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/veracitylab/analysis-backend/ratelimit"
)

func limitedEcho(t *testing.T, limit int64) *echo.Echo {
	t.Helper()

	fallback := ratelimit.NewMemoryStore(time.Minute)
	t.Cleanup(fallback.Shutdown)

	// A disconnected manager keeps every hit on the in-memory fallback, so
	// the middleware is exercised without a live cache store.
	rlStore := ratelimit.NewStore(&stubConn{connected: false}, nil, fallback, time.Minute, testLogger())
	adapter := ratelimit.NewLimiterAdapter(rlStore, limit)

	e := echo.New()
	e.Use(RateLimit(adapter))
	e.GET("/ping", func(c echo.Context) error {
		return c.String(http.StatusOK, "pong")
	})
	return e
}

func hit(e *echo.Echo, ip string) int {
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(echo.HeaderXRealIP, ip)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec.Code
}

func TestRateLimitDeniesOverLimit(t *testing.T) {
	e := limitedEcho(t, 2)

	assert.Equal(t, http.StatusOK, hit(e, "10.0.0.1"))
	assert.Equal(t, http.StatusOK, hit(e, "10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, hit(e, "10.0.0.1"))
}

func TestRateLimitIsPerClient(t *testing.T) {
	e := limitedEcho(t, 1)

	assert.Equal(t, http.StatusOK, hit(e, "10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, hit(e, "10.0.0.1"))
	assert.Equal(t, http.StatusOK, hit(e, "10.0.0.2"))
}

func TestRateLimitDisabledWithNilAdapter(t *testing.T) {
	e := echo.New()
	e.Use(RateLimit(nil))
	e.GET("/ping", func(c echo.Context) error {
		return c.String(http.StatusOK, "pong")
	})

	for range 5 {
		assert.Equal(t, http.StatusOK, hit(e, "10.0.0.1"))
	}
}
