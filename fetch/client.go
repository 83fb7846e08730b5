package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultTimeout bounds one retrieval end to end.
	DefaultTimeout = 30 * time.Second
	// DefaultMaxBytes caps how much of a deliverable is read. Submissions
	// larger than this are truncated, not rejected; the evaluation prompt
	// applies its own, tighter content limit afterwards.
	DefaultMaxBytes = 1 << 20

	userAgent = "jobescrow/1.0"
)

// Client retrieves submission content over HTTP. It performs exactly one
// attempt per call: the evaluation protocol treats any failure as
// non-delivery, so retrying here would change refund semantics.
type Client struct {
	httpClient *http.Client
	maxBytes   int64
}

// NewClient builds a fetcher with the given per-request timeout and read
// cap. Non-positive values fall back to the defaults.
func NewClient(timeout time.Duration, maxBytes int64) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		maxBytes:   maxBytes,
	}
}

// Fetch retrieves the textual content at url. Any transport error or
// non-2xx response is returned as an error with enough detail for the
// recorded rejection message.
func (c *Client) Fetch(ctx context.Context, url string) (string, error) {
	trimmed := strings.TrimSpace(url)
	if trimmed == "" {
		return "", fmt.Errorf("empty url")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, trimmed, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("unexpected status %d from %s", resp.StatusCode, trimmed)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	return string(body), nil
}
