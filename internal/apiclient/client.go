// Package apiclient is the HTTP client shared by the sync sources. It paces
// requests with a fixed delay and retries rate-limited (429) responses a
// bounded number of times.
package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultDelay      = time.Second
	DefaultMaxRetries = 3
	DefaultBackoff    = 5 * time.Second

	// maxRetryAfter caps server-provided Retry-After hints.
	maxRetryAfter = 2 * time.Minute

	// maxBodySize bounds how much of a response is read.
	maxBodySize = 32 << 20
)

// Config holds client construction parameters. Zero values select defaults.
type Config struct {
	Delay      time.Duration // minimum gap between two requests
	MaxRetries int           // retries after a 429 response
	Backoff    time.Duration // wait unit after a 429 without Retry-After
	UserAgent  string
	HTTP       *http.Client
}

// Client issues paced requests against a single rate-limited API.
type Client struct {
	http       *http.Client
	limiter    *rate.Limiter
	maxRetries int
	backoff    time.Duration
	userAgent  string

	// sleep is replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a client from cfg, applying defaults for zero fields.
func New(cfg Config) *Client {
	delay := cfg.Delay
	if delay <= 0 {
		delay = DefaultDelay
	}
	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	} else if retries == 0 {
		retries = DefaultMaxRetries
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = DefaultBackoff
	}
	hc := cfg.HTTP
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = "shelf-sync/1.0"
	}

	return &Client{
		http:       hc,
		limiter:    rate.NewLimiter(rate.Every(delay), 1),
		maxRetries: retries,
		backoff:    backoff,
		userAgent:  ua,
		sleep:      sleepCtx,
	}
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("%s returned %d: %s", e.URL, e.StatusCode, body)
}

// IsRateLimited reports whether the server answered 429.
func (e *StatusError) IsRateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// IsUnauthorized reports whether the credentials were rejected.
func (e *StatusError) IsUnauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// Do sends req, waiting for the pacing limiter before every attempt.
// A 429 response is retried up to MaxRetries times; any other non-2xx
// response is returned as a *StatusError without retrying. On success the
// caller owns the response body.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	req = req.WithContext(ctx)
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("wait for rate limiter: %w", err)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("request %s: %w", req.URL.Redacted(), err)
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}

		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		statusErr := &StatusError{
			StatusCode: resp.StatusCode,
			URL:        req.URL.Redacted(),
			Body:       string(body),
		}
		if !statusErr.IsRateLimited() {
			return nil, statusErr
		}
		lastErr = statusErr

		if attempt == c.maxRetries {
			break
		}

		wait := c.retryDelay(resp.Header.Get("Retry-After"), attempt+1)
		slog.Warn("apiclient: rate limited, backing off",
			"url", req.URL.Redacted(), "attempt", attempt+1, "wait", wait)
		if err := c.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}

	return nil, fmt.Errorf("giving up after %d retries: %w", c.maxRetries, lastErr)
}

// retryDelay honours a Retry-After header given in seconds, otherwise it
// grows the backoff linearly with the attempt number.
func (c *Client) retryDelay(retryAfter string, attempt int) time.Duration {
	if retryAfter != "" {
		if secs, err := strconv.Atoi(retryAfter); err == nil && secs >= 0 {
			d := time.Duration(secs) * time.Second
			if d > maxRetryAfter {
				d = maxRetryAfter
			}
			return d
		}
	}
	return c.backoff * time.Duration(attempt)
}

// GetJSON performs a GET request with the given headers and decodes the
// JSON body into out. It returns the response headers.
func (c *Client) GetJSON(ctx context.Context, url string, header http.Header, out any) (http.Header, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodySize)).Decode(out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", req.URL.Redacted(), err)
	}
	return resp.Header, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
