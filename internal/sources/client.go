// Package sources holds the shared HTTP plumbing of the remote content
// plugins. Each remote service lives in its own sub-package.
package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	ferrors "git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/retry"
	"git.home.luguber.info/inful/sitebuilder/internal/version"
)

// DefaultTimeout bounds a single request.
const DefaultTimeout = 30 * time.Second

// maxBody caps how much of an error response is kept for the message.
const maxBody = 512

// Client performs authenticated JSON GET requests with retry on transient failures.
type Client struct {
	http    *http.Client
	retrier *retry.Retrier
	logger  *slog.Logger
}

// NewClient creates a client. A nil httpClient uses one with DefaultTimeout.
func NewClient(httpClient *http.Client, policy retry.Policy) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{http: httpClient, retrier: retry.New(policy), logger: slog.Default()}
}

// WithLogger sets a custom logger.
func (c *Client) WithLogger(logger *slog.Logger) *Client {
	if logger != nil {
		c.logger = logger
		c.retrier.WithLogger(logger)
	}
	return c
}

// Retrier exposes the retry runner, mostly so tests can inject a clock.
func (c *Client) Retrier() *retry.Retrier { return c.retrier }

// GetJSON fetches url and decodes the JSON response into out.
func (c *Client) GetJSON(ctx context.Context, url string, headers map[string]string, out any) error {
	return c.retrier.Do(ctx, url, func(ctx context.Context) error {
		return c.getOnce(ctx, url, headers, out)
	})
}

func (c *Client) getOnce(ctx context.Context, url string, headers map[string]string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryConfig, "build request").WithContext("url", url).Build()
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "sitebuilder/"+version.Version)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	t0 := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryNetwork, "request failed").
			Retryable().
			WithContext("url", url).
			Build()
	}
	defer func() { _ = resp.Body.Close() }()

	c.logger.Debug("Fetched", slog.String("url", url), slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(t0)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxBody))
		b := ferrors.NewError(ferrors.CategoryNetwork, fmt.Sprintf("unexpected status %d", resp.StatusCode)).
			WithContext("url", url).
			WithContext("status", resp.StatusCode).
			WithContext("body", string(snippet))
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			b = b.RateLimit()
		case resp.StatusCode >= 500:
			b = b.Retryable()
		}
		return b.Build()
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryNetwork, "decode response").
			WithContext("url", url).
			Build()
	}
	return nil
}
