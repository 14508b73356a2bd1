// The server command runs the analysis backend: it loads configuration,
// connects the document and cache stores (tolerating either being absent),
// and serves the HTTP API until interrupted.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/veracitylab/analysis-backend/app"
	"github.com/veracitylab/analysis-backend/cache"
	"github.com/veracitylab/analysis-backend/config"
	"github.com/veracitylab/analysis-backend/logger"
	"github.com/veracitylab/analysis-backend/mlclient"
	"github.com/veracitylab/analysis-backend/ratelimit"
	"github.com/veracitylab/analysis-backend/repository"
	"github.com/veracitylab/analysis-backend/server"
	"github.com/veracitylab/analysis-backend/store/mongodb"
	storeredis "github.com/veracitylab/analysis-backend/store/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New("info", false).Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)
	ctx := context.Background()

	mongoMgr := connectMongo(ctx, cfg, log)
	redisMgr := connectRedis(ctx, cfg, log)

	fallback := ratelimit.NewMemoryStore(0)
	defer fallback.Shutdown()
	rlStore := ratelimit.NewStore(redisMgr, redisMgr, fallback, cfg.Server.RateWindow(), log)
	limiter := ratelimit.NewLimiterAdapter(rlStore, cfg.Server.RateLimit)

	cacheSvc := cache.NewService(redisMgr, cfg.Cache.DefaultTTL(), log)
	repo := repository.New(mongoMgr, log)
	scorer := mlclient.New(cfg.ML.URL, cfg.ML.Timeout(), log)

	handler := server.NewAnalysisHandler(scorer, repo, cacheSvc, log)
	health := app.NewHealth(
		app.StoreProbe("mongodb", mongoMgr, true),
		app.StoreProbe("redis", redisMgr, false),
	)

	srv := server.New(&cfg.Server, log, handler, limiter, health)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout())
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}
	if err := redisMgr.Disconnect(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Cache store disconnect failed")
	}
	if err := mongoMgr.Disconnect(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Document store disconnect failed")
	}
}

// connectMongo builds the document-store manager. A missing URI or failed
// connect leaves the manager disconnected: the process starts degraded
// instead of crashing.
func connectMongo(ctx context.Context, cfg *config.Config, log logger.Logger) *mongodb.Manager {
	mgr := mongodb.NewManager(cfg.Mongo.Connection(), cfg.Mongo.Database, log)

	if cfg.Mongo.URI == "" {
		log.Warn().Msg("MONGODB_URI not set, document store disabled")
		return mgr
	}
	if err := mgr.Connect(ctx); err != nil {
		log.Warn().Err(err).Msg("Document store unavailable at startup, continuing degraded")
	}
	return mgr
}

// connectRedis builds the cache-store manager with the same degraded-start
// behavior as the document store.
func connectRedis(ctx context.Context, cfg *config.Config, log logger.Logger) *storeredis.Manager {
	mgr := storeredis.NewManager(cfg.Redis.Connection(), log)

	if cfg.Redis.URL == "" {
		log.Warn().Msg("REDIS_URL not set, cache store disabled")
		return mgr
	}
	if err := mgr.Connect(ctx); err != nil {
		log.Warn().Err(err).Msg("Cache store unavailable at startup, continuing degraded")
	}
	return mgr
}
