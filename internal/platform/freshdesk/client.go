package freshdesk

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	// DefaultTimeout bounds a single upstream request.
	DefaultTimeout = 30 * time.Second
	// DefaultMaxRetries caps retry attempts for a single logical request.
	DefaultMaxRetries = 5
	// DefaultRequestDelay is the minimum pause between consecutive requests.
	DefaultRequestDelay = 300 * time.Millisecond
	// MaxPageSize is Freshdesk's per_page ceiling.
	MaxPageSize = 100

	maxResponseSize = 50 * 1024 * 1024
)

// Client provides authenticated, rate-limit-aware HTTP access to a Freshdesk
// instance. The zero delay between requests is never allowed: the client
// paces itself with a minimum inter-request delay that the ingestion engine
// may raise under upstream pressure.
type Client struct {
	Domain     string
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	MaxRetries int

	mu           sync.Mutex
	requestDelay time.Duration
	lastRequest  time.Time
}

// NewClient creates a client for "{domain}.freshdesk.com" style domains.
// Fully qualified domains are used as-is.
func NewClient(domain, apiKey string) *Client {
	host := domain
	if !strings.Contains(host, ".") {
		host += ".freshdesk.com"
	}
	return &Client{
		Domain:  domain,
		APIKey:  apiKey,
		BaseURL: "https://" + host + "/api/v2",
		HTTPClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		MaxRetries:   DefaultMaxRetries,
		requestDelay: DefaultRequestDelay,
	}
}

// WithBaseURL returns a copy with a custom base URL (for tests).
func (c *Client) WithBaseURL(baseURL string) *Client {
	return &Client{
		Domain:       c.Domain,
		APIKey:       c.APIKey,
		BaseURL:      strings.TrimSuffix(baseURL, "/"),
		HTTPClient:   c.HTTPClient,
		MaxRetries:   c.MaxRetries,
		requestDelay: c.requestDelay,
	}
}

// SetRequestDelay adjusts the minimum inter-request delay. Used by the
// ingestion engine for adaptive pacing after 429 responses.
func (c *Client) SetRequestDelay(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requestDelay = d
}

// RequestDelay returns the current minimum inter-request delay.
func (c *Client) RequestDelay() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requestDelay
}

// pace sleeps until the minimum inter-request delay has elapsed since the
// previous request.
func (c *Client) pace(ctx context.Context) error {
	c.mu.Lock()
	wait := c.requestDelay - time.Since(c.lastRequest)
	c.lastRequest = time.Now().Add(wait)
	c.mu.Unlock()

	if wait <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
		return nil
	}
}

// rateLimitError marks a 429 (or remaining-quota exhaustion) so the retry
// loop can honor the server-provided delay instead of its own backoff.
type rateLimitError struct {
	delay time.Duration
}

func (e *rateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.delay)
}

// transientError marks transport failures and 5xx responses as retryable.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// doRequest executes an authenticated GET with pacing, retry, and rate-limit
// handling. Transport errors and 5xx retry with exponential backoff; 429
// honors Retry-After; a near-exhausted quota sleeps until X-RateLimit-Reset.
func (c *Client) doRequest(ctx context.Context, apiURL string) ([]byte, http.Header, error) {
	var (
		respBody    []byte
		respHeaders http.Header
	)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = 30 * time.Second
	bo.MaxElapsedTime = 0 // retries are capped by count, not wall time

	attempts := 0
	var lastErr error
	operation := func() error {
		attempts++
		if attempts > c.MaxRetries+1 {
			// Keep the final failure in the chain so callers can still
			// recognize rate limiting after the retry budget is gone.
			if lastErr != nil {
				return backoff.Permanent(fmt.Errorf("max retries (%d) exceeded: %w", c.MaxRetries, lastErr))
			}
			return backoff.Permanent(fmt.Errorf("max retries (%d) exceeded", c.MaxRetries))
		}

		if err := c.pace(ctx); err != nil {
			return backoff.Permanent(err)
		}

		body, headers, err := c.doOnce(ctx, apiURL)
		if err == nil {
			respBody, respHeaders = body, headers
			return nil
		}
		lastErr = err

		var rle *rateLimitError
		if errors.As(err, &rle) {
			select {
			case <-ctx.Done():
				return backoff.Permanent(ctx.Err())
			case <-time.After(rle.delay):
			}
			return err // retry immediately after the mandated sleep
		}

		var te *transientError
		if errors.As(err, &te) {
			return err
		}
		return backoff.Permanent(err)
	}

	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return nil, nil, err
	}
	return respBody, respHeaders, nil
}

// doOnce performs a single request attempt.
func (c *Client) doOnce(ctx context.Context, apiURL string) ([]byte, http.Header, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("create request: %w", err)
	}

	auth := base64.StdEncoding.EncodeToString([]byte(c.APIKey + ":X"))
	req.Header.Set("Authorization", "Basic "+auth)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "supportd-freshdesk/1.0")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, nil, &transientError{err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, nil, &transientError{err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		delay := 5 * time.Second
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if seconds, err := strconv.Atoi(ra); err == nil && seconds > 0 {
				delay = time.Duration(seconds) * time.Second
			}
		}
		return nil, nil, &rateLimitError{delay: delay}
	}

	// When the quota is nearly exhausted, sleep until the reset instead of
	// burning the last request on a 429.
	if remaining := resp.Header.Get("X-RateLimit-Remaining"); remaining != "" {
		if n, err := strconv.Atoi(remaining); err == nil && n <= 1 {
			if reset := resp.Header.Get("X-RateLimit-Reset"); reset != "" {
				if seconds, err := strconv.Atoi(reset); err == nil && seconds > 0 {
					c.mu.Lock()
					c.lastRequest = time.Now().Add(time.Duration(seconds) * time.Second)
					c.mu.Unlock()
				}
			}
		}
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil, errNotFoundHTTP
	}
	if resp.StatusCode >= 500 {
		return nil, nil, &transientError{err: fmt.Errorf("freshdesk API returned %d: %s", resp.StatusCode, truncate(string(body), 200))}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, nil, fmt.Errorf("freshdesk API returned %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	return body, resp.Header, nil
}

// buildURL constructs a full API URL with query parameters.
func (c *Client) buildURL(path string, params url.Values) string {
	u := c.BaseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return u
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
