package server

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/sync/singleflight"

	"github.com/veracitylab/analysis-backend/cache"
	"github.com/veracitylab/analysis-backend/logger"
	"github.com/veracitylab/analysis-backend/mlclient"
	"github.com/veracitylab/analysis-backend/repository"
)

const (
	cacheKeyPrefix     = "analysis:"
	defaultRecentLimit = 20
	maxRecentLimit     = 100
)

// Scorer is the ML-client surface the handler needs. sourceURL is empty for
// direct text submissions.
type Scorer interface {
	Analyze(ctx context.Context, text, sourceURL string) (*mlclient.AnalyzeResult, error)
}

// AnalysisStore is the repository surface the handler needs.
type AnalysisStore interface {
	Save(ctx context.Context, analysis *repository.Analysis) error
	FindByID(ctx context.Context, id string) (*repository.Analysis, error)
	FindRecent(ctx context.Context, limit int64) ([]repository.Analysis, error)
}

// Cache is the byte-level cache surface the handler needs.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
}

// AnalyzeRequest is the submission payload.
type AnalyzeRequest struct {
	Kind    string `json:"kind"`
	Content string `json:"content"`
}

// AnalysisResponse is the API view of a scored submission.
type AnalysisResponse struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Content   string    `json:"content"`
	Verdict   string    `json:"verdict"`
	Score     float64   `json:"score"`
	CreatedAt time.Time `json:"created_at"`
	Cached    bool      `json:"cached"`
}

// cachedVerdict is the CBOR shape stored in the cache.
type cachedVerdict struct {
	ID        string    `cbor:"1,keyasint"`
	Verdict   string    `cbor:"2,keyasint"`
	Score     float64   `cbor:"3,keyasint"`
	CreatedAt time.Time `cbor:"4,keyasint"`
}

// AnalysisHandler serves the analysis routes. Concurrent submissions of the
// same content share one scorer call through the singleflight group.
type AnalysisHandler struct {
	scorer Scorer
	repo   AnalysisStore
	cache  Cache
	log    logger.Logger
	group  singleflight.Group
}

// NewAnalysisHandler wires the handler's collaborators.
func NewAnalysisHandler(scorer Scorer, repo AnalysisStore, c Cache, log logger.Logger) *AnalysisHandler {
	return &AnalysisHandler{scorer: scorer, repo: repo, cache: c, log: log}
}

// Create handles POST /api/analyses.
func (h *AnalysisHandler) Create(c echo.Context) error {
	var req AnalyzeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	if req.Kind != "url" && req.Kind != "text" {
		return echo.NewHTTPError(http.StatusBadRequest, "kind must be \"url\" or \"text\"")
	}
	if req.Content == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "content is required")
	}

	ctx := c.Request().Context()
	key := cacheKey(req.Kind, req.Content)

	if data, ok := h.cache.Get(ctx, key); ok {
		if cached, err := cache.Unmarshal[cachedVerdict](data); err == nil {
			return c.JSON(http.StatusOK, AnalysisResponse{
				ID:        cached.ID,
				Kind:      req.Kind,
				Content:   req.Content,
				Verdict:   cached.Verdict,
				Score:     cached.Score,
				CreatedAt: cached.CreatedAt,
				Cached:    true,
			})
		}
		h.log.Warn().Str("key", key).Msg("Discarding undecodable cache entry")
	}

	value, err, _ := h.group.Do(key, func() (any, error) {
		return h.analyze(ctx, req)
	})
	if err != nil {
		return err
	}

	analysis := value.(*repository.Analysis)
	return c.JSON(http.StatusCreated, AnalysisResponse{
		ID:        analysis.ID,
		Kind:      analysis.Kind,
		Content:   analysis.Content,
		Verdict:   analysis.Verdict,
		Score:     analysis.Score,
		CreatedAt: analysis.CreatedAt,
	})
}

// analyze scores, persists, and caches one submission.
func (h *AnalysisHandler) analyze(ctx context.Context, req AnalyzeRequest) (*repository.Analysis, error) {
	sourceURL := ""
	if req.Kind == "url" {
		sourceURL = req.Content
	}

	result, err := h.scorer.Analyze(ctx, req.Content, sourceURL)
	if err != nil {
		h.log.Error().Err(err).Str("kind", req.Kind).Msg("Scoring failed")
		return nil, echo.NewHTTPError(http.StatusBadGateway, "scoring service unavailable")
	}

	analysis := &repository.Analysis{
		Kind:    req.Kind,
		Content: req.Content,
		Verdict: verdictForScore(result.Score),
		Score:   result.Score,
	}
	if err := h.repo.Save(ctx, analysis); err != nil {
		return nil, err
	}

	data, err := cache.Marshal(cachedVerdict{
		ID:        analysis.ID,
		Verdict:   analysis.Verdict,
		Score:     analysis.Score,
		CreatedAt: analysis.CreatedAt,
	})
	if err == nil {
		h.cache.Set(ctx, cacheKey(req.Kind, req.Content), data, 0)
	}

	return analysis, nil
}

// GetByID handles GET /api/analyses/:id.
func (h *AnalysisHandler) GetByID(c echo.Context) error {
	analysis, err := h.repo.FindByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "analysis not found")
		}
		return err
	}

	return c.JSON(http.StatusOK, AnalysisResponse{
		ID:        analysis.ID,
		Kind:      analysis.Kind,
		Content:   analysis.Content,
		Verdict:   analysis.Verdict,
		Score:     analysis.Score,
		CreatedAt: analysis.CreatedAt,
	})
}

// ListRecent handles GET /api/analyses.
func (h *AnalysisHandler) ListRecent(c echo.Context) error {
	limit := int64(defaultRecentLimit)
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = min(parsed, maxRecentLimit)
	}

	analyses, err := h.repo.FindRecent(c.Request().Context(), limit)
	if err != nil {
		return err
	}

	responses := make([]AnalysisResponse, 0, len(analyses))
	for _, a := range analyses {
		responses = append(responses, AnalysisResponse{
			ID:        a.ID,
			Kind:      a.Kind,
			Content:   a.Content,
			Verdict:   a.Verdict,
			Score:     a.Score,
			CreatedAt: a.CreatedAt,
		})
	}
	return c.JSON(http.StatusOK, responses)
}

// verdictForScore maps the scorer's 0-100 credibility score onto the stored
// verdict, using the same tiers the scorer uses for its overview text.
func verdictForScore(score float64) string {
	switch {
	case score >= 80:
		return "high"
	case score >= 60:
		return "moderate"
	case score >= 40:
		return "mixed"
	case score >= 20:
		return "low"
	default:
		return "very-low"
	}
}

// cacheKey derives a stable cache key from the submission identity.
func cacheKey(kind, content string) string {
	sum := sha256.Sum256([]byte(kind + ":" + content))
	return cacheKeyPrefix + hex.EncodeToString(sum[:])
}
