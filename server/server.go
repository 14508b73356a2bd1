// Package server provides the HTTP surface using the Echo framework: analysis
// routes, health endpoints, rate limiting, and store-error mapping.
package server

import (
	"context"
	goerrors "errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/veracitylab/analysis-backend/app"
	"github.com/veracitylab/analysis-backend/config"
	"github.com/veracitylab/analysis-backend/logger"
	"github.com/veracitylab/analysis-backend/ratelimit"
	"github.com/veracitylab/analysis-backend/repository"
)

// Server is the HTTP server instance.
type Server struct {
	echo   *echo.Echo
	cfg    *config.ServerConfig
	log    logger.Logger
	health *app.Health
}

// New builds the server and registers all routes.
func New(cfg *config.ServerConfig, log logger.Logger, handler *AnalysisHandler, limiter *ratelimit.LimiterAdapter, health *app.Health) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler

	e.Use(middleware.RequestID())
	e.Use(middleware.Recover())
	e.Use(RateLimit(limiter))

	s := &Server{echo: e, cfg: cfg, log: log, health: health}

	e.GET("/health", s.healthCheck)
	e.GET("/ready", s.readyCheck)

	api := e.Group("/api")
	api.POST("/analyses", handler.Create)
	api.GET("/analyses/:id", handler.GetByID)
	api.GET("/analyses", handler.ListRecent)

	return s
}

// Echo returns the underlying Echo instance, mainly for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Start begins accepting requests. It blocks until shutdown or failure.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.log.Info().Str("address", addr).Msg("Starting server")
	return s.echo.Start(addr)
}

// Shutdown drains in-flight requests within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// healthCheck is the liveness endpoint: the process is up.
func (s *Server) healthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// readyCheck reports per-dependency readiness. Degraded still serves traffic,
// so only unhealthy returns a non-2xx status.
func (s *Server) readyCheck(c echo.Context) error {
	report := s.health.Check(c.Request().Context())

	status := http.StatusOK
	if report.Status == app.Unhealthy {
		status = http.StatusServiceUnavailable
	}
	return c.JSON(status, report)
}

// errorHandler maps typed store errors onto their HTTP status and wraps
// everything else in a uniform envelope.
func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := "Internal server error"
	code := ""

	var storeErr *repository.StoreError
	var httpErr *echo.HTTPError
	switch {
	case goerrors.As(err, &storeErr):
		status = storeErr.Status
		code = storeErr.Code
		message = "Document store request failed"
	case goerrors.As(err, &httpErr):
		status = httpErr.Code
		if m, ok := httpErr.Message.(string); ok {
			message = m
		}
	}

	body := map[string]any{
		"error": map[string]any{
			"message": message,
			"status":  status,
		},
	}
	if code != "" {
		body["error"].(map[string]any)["code"] = code
	}

	if jsonErr := c.JSON(status, body); jsonErr != nil {
		c.Logger().Error(jsonErr)
	}
}
