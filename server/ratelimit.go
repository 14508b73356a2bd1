package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/veracitylab/analysis-backend/ratelimit"
)

// RateLimit returns a per-client rate limiting middleware backed by the
// dual-mode store, so limiting keeps working when the cache store is down.
// A nil adapter or non-positive limit disables limiting.
func RateLimit(adapter *ratelimit.LimiterAdapter) echo.MiddlewareFunc {
	if adapter == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc {
			return next
		}
	}

	config := middleware.RateLimiterConfig{
		Skipper: middleware.DefaultSkipper,
		Store:   adapter,
		IdentifierExtractor: func(ctx echo.Context) (string, error) {
			return ctx.RealIP(), nil
		},
		ErrorHandler: func(context echo.Context, _ error) error {
			return context.JSON(http.StatusTooManyRequests, map[string]any{
				"error": map[string]any{
					"message": "Rate limit exceeded",
					"status":  http.StatusTooManyRequests,
				},
			})
		},
		DenyHandler: func(context echo.Context, _ string, _ error) error {
			return context.JSON(http.StatusTooManyRequests, map[string]any{
				"error": map[string]any{
					"message": "Too many requests",
					"status":  http.StatusTooManyRequests,
				},
			})
		},
	}

	return middleware.RateLimiterWithConfig(config)
}
