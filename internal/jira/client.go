// Package jira reads sprint and issue data from the Jira Cloud REST APIs.
package jira

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/drewfead/sprintexport/internal/logging"
	"github.com/drewfead/sprintexport/internal/ticket"
)

const (
	// DefaultMaxResults is the result cap applied to both reads.
	DefaultMaxResults = 100

	// MaxResultsLimit is the Jira API hard limit per request.
	MaxResultsLimit = 100

	defaultUserAgent = "sprintexport/1.0"
	maxErrorBody     = 512
)

// ClientConfig configures the Jira client.
type ClientConfig struct {
	// BaseURL is the site URL, e.g. https://yoursite.atlassian.net.
	BaseURL string

	// Auth applies credentials to each request (default: NoAuth).
	Auth Auth

	// Timeout for individual requests (default: 30s).
	Timeout time.Duration

	// MaxRetries for 429 and 5xx responses (default: 0, no retries).
	MaxRetries int

	// RateLimit requests per second (default: 10) and burst (default: 5).
	RateLimit float64
	RateBurst int

	// MaxResults caps both the sprint listing and the search (1..100).
	MaxResults int

	// UserAgent string (default: "sprintexport/1.0").
	UserAgent string

	// Transport allows injecting a custom HTTP transport (for tests/stubs).
	Transport http.RoundTripper
}

// DefaultClientConfig returns a client config with sensible defaults.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		Auth:       NoAuth{},
		Timeout:    30 * time.Second,
		RateLimit:  10.0,
		RateBurst:  5,
		MaxResults: DefaultMaxResults,
		UserAgent:  defaultUserAgent,
	}
}

// Client is a rate-limited Jira REST client.
type Client struct {
	config      *ClientConfig
	httpClient  *http.Client
	rateLimiter *rate.Limiter
}

var _ ticket.SprintSource = (*Client)(nil)

// NewClient creates a new Jira client with the given configuration.
func NewClient(config *ClientConfig) (*Client, error) {
	if config == nil {
		config = DefaultClientConfig()
	}
	base := strings.TrimSpace(config.BaseURL)
	if base == "" {
		return nil, fmt.Errorf("jira base URL cannot be empty")
	}
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid jira base URL %q", config.BaseURL)
	}
	config.BaseURL = strings.TrimRight(base, "/")

	if config.Auth == nil {
		config.Auth = NoAuth{}
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.RateLimit <= 0 {
		config.RateLimit = 10.0
	}
	if config.RateBurst <= 0 {
		config.RateBurst = 5
	}
	if config.MaxResults <= 0 {
		config.MaxResults = DefaultMaxResults
	}
	if config.MaxResults > MaxResultsLimit {
		config.MaxResults = MaxResultsLimit
	}
	if config.UserAgent == "" {
		config.UserAgent = defaultUserAgent
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout:   config.Timeout,
			Transport: config.Transport,
		},
		rateLimiter: rate.NewLimiter(rate.Limit(config.RateLimit), config.RateBurst),
	}, nil
}

// Name returns "Jira".
func (c *Client) Name() string {
	return "Jira"
}

// BaseURL returns the site URL with any trailing slash removed.
func (c *Client) BaseURL() string {
	return c.config.BaseURL
}

// MaxResults returns the effective result cap.
func (c *Client) MaxResults() int {
	return c.config.MaxResults
}

func (c *Client) get(ctx context.Context, call, path string, query url.Values, out any) error {
	return c.do(ctx, call, http.MethodGet, path, query, nil, out)
}

func (c *Client) post(ctx context.Context, call, path string, body, out any) error {
	return c.do(ctx, call, http.MethodPost, path, nil, body, out)
}

// do executes a request with rate limiting and bounded retries and decodes
// the JSON response into out. Every failure is an *UpstreamError.
func (c *Client) do(ctx context.Context, call, method, path string, query url.Values, body, out any) error {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return &UpstreamError{Call: call, Err: fmt.Errorf("marshal request: %w", err)}
		}
		payload = data
	}

	var lastErr *UpstreamError
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * 100 * time.Millisecond
			select {
			case <-ctx.Done():
				return &UpstreamError{Call: call, Err: ctx.Err()}
			case <-time.After(backoff):
			}
		}

		if err := c.rateLimiter.Wait(ctx); err != nil {
			return &UpstreamError{Call: call, Err: fmt.Errorf("rate limiter: %w", err)}
		}

		respBody, uerr := c.doOnce(ctx, call, method, path, query, payload)
		if uerr == nil {
			if out == nil {
				return nil
			}
			if err := json.Unmarshal(respBody, out); err != nil {
				return malformed(call, "%v", err)
			}
			return nil
		}

		lastErr = uerr
		if !uerr.Retryable() {
			return uerr
		}
		if attempt < c.config.MaxRetries {
			logging.Warn("retrying jira request", "call", call, "attempt", attempt+1, "status", uerr.StatusCode)
		}
	}
	return lastErr
}

// doOnce executes a single request attempt.
func (c *Client) doOnce(ctx context.Context, call, method, path string, query url.Values, payload []byte) ([]byte, *UpstreamError) {
	fullURL := c.config.BaseURL + "/" + strings.TrimPrefix(path, "/")
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		return nil, &UpstreamError{Call: call, Err: fmt.Errorf("create request: %w", err)}
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.config.UserAgent)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if err := c.config.Auth.Apply(req); err != nil {
		return nil, &UpstreamError{Call: call, Err: fmt.Errorf("apply auth: %w", err)}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &UpstreamError{Call: call, Err: fmt.Errorf("http request: %w", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &UpstreamError{Call: call, StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(respBody))
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody] + "..."
		}
		return nil, &UpstreamError{Call: call, StatusCode: resp.StatusCode, Err: errors.New(msg)}
	}

	return respBody, nil
}
