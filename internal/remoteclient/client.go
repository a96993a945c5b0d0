// Package remoteclient is an HTTP client for Sagitta's Remote Server,
// grounded on the teacher's internal/graph.Client: request construction,
// retry with exponential backoff on transient failures, and error
// classification — reshaped from an OAuth2-authenticated Graph API client
// into an unauthenticated loopback/LAN client speaking the wire shapes
// defined in internal/remoteserver.
package remoteclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
)

const (
	maxRetries    = 5
	baseBackoff   = 200 * time.Millisecond
	maxBackoff    = 10 * time.Second
	backoffFactor = 2.0
	jitterFrac    = 0.25
	userAgent     = "sagitta-remoteclient/0.1"
)

// Client is an HTTP client for the Remote Server.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger

	// sleepFunc waits between retries. Tests override it to skip delays.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// NewClient creates a remoteclient.Client pointed at baseURL (e.g.
// "http://127.0.0.1:7420").
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
		sleepFunc:  timeSleep,
	}
}

// postJSON sends req as a JSON body to path and decodes the JSON response
// into resp, retrying transient network errors and 429/500/502/503/504
// responses with exponential backoff.
func (c *Client) postJSON(ctx context.Context, path string, req, resp any) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("remoteclient: marshal request: %w", err)
	}

	var attempt int

	for {
		httpResp, err := c.doOnce(ctx, path, payload)
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("remoteclient: request canceled: %w", ctx.Err())
			}

			if attempt >= maxRetries {
				return fmt.Errorf("remoteclient: %s failed after %d retries: %w", path, maxRetries, err)
			}

			if sleepErr := c.sleepFunc(ctx, c.calcBackoff(attempt)); sleepErr != nil {
				return fmt.Errorf("remoteclient: request canceled: %w", sleepErr)
			}

			attempt++

			continue
		}

		if httpResp.StatusCode == http.StatusOK {
			defer httpResp.Body.Close()

			if err := json.NewDecoder(httpResp.Body).Decode(resp); err != nil {
				return fmt.Errorf("remoteclient: decode response from %s: %w", path, err)
			}

			return nil
		}

		body, _ := io.ReadAll(httpResp.Body)
		httpResp.Body.Close()

		if isRetryable(httpResp.StatusCode) && attempt < maxRetries {
			c.logger.Warn("retrying after remote server error",
				slog.String("path", path),
				slog.Int("status", httpResp.StatusCode),
				slog.Int("attempt", attempt+1))

			if sleepErr := c.sleepFunc(ctx, c.calcBackoff(attempt)); sleepErr != nil {
				return fmt.Errorf("remoteclient: request canceled: %w", sleepErr)
			}

			attempt++

			continue
		}

		return fmt.Errorf("remoteclient: %s: HTTP %d: %s", path, httpResp.StatusCode, string(body))
	}
}

func (c *Client) doOnce(ctx context.Context, path string, payload []byte) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("remoteclient: build request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", userAgent)

	return c.httpClient.Do(httpReq)
}

func (c *Client) calcBackoff(attempt int) time.Duration {
	backoff := float64(baseBackoff) * math.Pow(backoffFactor, float64(attempt))
	if backoff > float64(maxBackoff) {
		backoff = float64(maxBackoff)
	}

	jitter := backoff * jitterFrac * (rand.Float64()*2 - 1)
	backoff += jitter

	return time.Duration(backoff)
}

func isRetryable(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
