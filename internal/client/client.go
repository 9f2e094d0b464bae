// Package client talks to the Picky REST API and keeps a local mirror of
// each item collection.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
)

// Config holds API client settings.
type Config struct {
	BaseURL string
	Timeout time.Duration
	// Retries bounds retries of idempotent requests. Zero disables them.
	Retries uint64
	// Backoff is the first retry delay; it doubles on each attempt.
	Backoff time.Duration
}

// DefaultConfig returns the settings used by the CLI.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
		Retries: 3,
		Backoff: 100 * time.Millisecond,
	}
}

// Client sends JSON requests to the API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	retries    uint64
	backoff    time.Duration
}

func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Backoff == 0 {
		cfg.Backoff = 100 * time.Millisecond
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		retries:    cfg.Retries,
		backoff:    cfg.Backoff,
	}
}

// Health is the API health report.
type Health struct {
	Status      string    `json:"status"`
	Environment string    `json:"environment"`
	Storage     string    `json:"storage"`
	Database    string    `json:"database"`
	Error       string    `json:"error,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Health fetches the health report. An unhealthy server answers 503 with a
// report, which is returned together with the *APIError.
func (c *Client) Health(ctx context.Context) (Health, error) {
	var h Health
	err := c.send(ctx, http.MethodGet, "/api/health", nil, &h)
	if err != nil && h.Status == "" {
		return Health{}, err
	}
	return h, err
}

// do sends one request. Idempotent requests are retried on network errors
// and 5xx responses with exponential backoff.
func (c *Client) do(ctx context.Context, method, path string, in, out any, idempotent bool) error {
	var body []byte
	if in != nil {
		var err error
		body, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	if !idempotent || c.retries == 0 {
		return c.send(ctx, method, path, body, out)
	}

	b := retry.WithMaxRetries(c.retries, retry.NewExponential(c.backoff))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		err := c.send(ctx, method, path, body, out)
		if err != nil && retryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func (c *Client) send(ctx context.Context, method, path string, body []byte, out any) error {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &NetworkError{Op: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &NetworkError{Op: method + " " + path, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var e struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		if json.Unmarshal(data, &e) == nil {
			apiErr.Code = e.Code
			apiErr.Message = e.Error
		}
		// Some error responses, like an unhealthy health check, still carry
		// a useful body.
		if out != nil && len(data) > 0 {
			_ = json.Unmarshal(data, out)
		}
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
