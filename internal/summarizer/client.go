// Package summarizer is a thin client for the external note-summarization
// service. The contract is a single POST of {"text"} answered with
// {"summary"}.
package summarizer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bissquit/submanage/internal/domain"
	"golang.org/x/time/rate"
)

// Errors returned by the client.
var (
	ErrNotConfigured = fmt.Errorf("summarizer is not configured: %w", domain.ErrInvalidOperation)
	ErrEmptyText     = fmt.Errorf("nothing to summarize: %w", domain.ErrValidation)
	ErrUnavailable   = errors.New("summarizer unavailable")
)

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 1 << 20

// Config holds client settings.
type Config struct {
	URL     string
	APIKey  string
	Timeout time.Duration
	RPS     float64
}

// Client calls the summarization service.
type Client struct {
	url     string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a client. An empty URL yields a client whose
// Summarize always returns ErrNotConfigured.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}

	limit := rate.Inf
	burst := 1
	if cfg.RPS > 0 {
		limit = rate.Limit(cfg.RPS)
		burst = max(1, int(cfg.RPS))
	}

	return &Client{
		url:     strings.TrimRight(cfg.URL, "/"),
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(limit, burst),
	}
}

// Enabled reports whether a service URL is configured.
func (c *Client) Enabled() bool {
	return c.url != ""
}

type summarizeRequest struct {
	Text string `json:"text"`
}

type summarizeResponse struct {
	Summary string `json:"summary"`
}

// Summarize returns a summary of text. Calls wait for the rate limiter and
// abort when ctx is done.
func (c *Client) Summarize(ctx context.Context, text string) (string, error) {
	if !c.Enabled() {
		return "", ErrNotConfigured
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyText
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("wait for rate limiter: %w", err)
	}

	body, err := json.Marshal(summarizeRequest{Text: text})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("%w: read response: %w", ErrUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var out summarizeResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("%w: decode response: %w", ErrUnavailable, err)
	}
	if strings.TrimSpace(out.Summary) == "" {
		return "", fmt.Errorf("%w: empty summary", ErrUnavailable)
	}

	return out.Summary, nil
}
