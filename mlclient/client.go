// Package mlclient is a thin HTTP client for the external ML scoring service.
// The scorer is an opaque collaborator: this client only frames requests,
// enforces a timeout, and decodes the assessment.
package mlclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/veracitylab/analysis-backend/logger"
)

// DefaultTimeout bounds a scoring call when no timeout is configured.
const DefaultTimeout = 5 * time.Second

// maxResponseBytes caps how much of a scorer response is read.
const maxResponseBytes = 1 << 20

// AnalyzeRequest is the payload sent to the scorer. SourceURL is null for
// direct text submissions; the scorer derives the input type from its
// presence.
type AnalyzeRequest struct {
	Text      string  `json:"text"`
	SourceURL *string `json:"source_url"`
}

// RedFlag is one credibility problem the scorer found.
type RedFlag struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Severity    string `json:"severity"` // "low", "medium" or "high"
}

// PositiveIndicator is one credibility signal the scorer found.
type PositiveIndicator struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

// Keyword is a significant term with its impact on the score.
type Keyword struct {
	Term   string  `json:"term"`
	Impact string  `json:"impact"` // "positive" or "negative"
	Weight float64 `json:"weight"` // 0-1
}

// AnalyzeResult is the scorer's credibility assessment for one submission.
// Score runs from 0 (not credible) to 100 (highly credible).
type AnalyzeResult struct {
	Score              float64             `json:"score"`
	Overview           string              `json:"overview"`
	RedFlags           []RedFlag           `json:"red_flags"`
	PositiveIndicators []PositiveIndicator `json:"positive_indicators"`
	Keywords           []Keyword           `json:"keywords"`
}

// Client calls the scoring service over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
	log     logger.Logger
}

// New creates a client for the scorer at baseURL. A non-positive timeout
// falls back to DefaultTimeout.
func New(baseURL string, timeout time.Duration, log logger.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}
}

// Analyze submits text for scoring and returns the assessment. sourceURL is
// empty for direct text submissions.
func (c *Client) Analyze(ctx context.Context, text, sourceURL string) (*AnalyzeResult, error) {
	payload := AnalyzeRequest{Text: text}
	input := "text"
	if sourceURL != "" {
		payload.SourceURL = &sourceURL
		input = "url"
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("ml client: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyze", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ml client: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ml client: call scorer: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("ml client: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.log.Warn().
			Int("status", resp.StatusCode).
			Str("input", input).
			Msg("Scorer returned non-OK status")
		return nil, fmt.Errorf("ml client: scorer returned status %d", resp.StatusCode)
	}

	var result AnalyzeResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("ml client: decode response: %w", err)
	}
	return &result, nil
}
