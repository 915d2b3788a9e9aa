package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"time"

	"github.com/lucaslellis/oracle-quarter-patch-downloader/internal/session"
)

// Common errors.
var (
	ErrNotFound     = errors.New("http: resource not found")
	ErrForbidden    = errors.New("http: access forbidden")
	ErrUnauthorized = errors.New("http: unauthorized")
	ErrServerError  = errors.New("http: server error")
)

const maxRedirects = 10

// Options configures the HTTP client.
type Options struct {
	// RetryAttempts is the maximum number of retry attempts.
	// Default: 5
	RetryAttempts int

	// RetryBackoff is the initial backoff duration.
	// Default: 1s
	RetryBackoff time.Duration

	// RetryMaxBackoff is the maximum backoff duration.
	// Default: 30s
	RetryMaxBackoff time.Duration
}

// DefaultOptions returns options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		RetryAttempts:   5,
		RetryBackoff:    time.Second,
		RetryMaxBackoff: 30 * time.Second,
	}
}

// Response is a successful GET response.
type Response struct {
	Body          io.ReadCloser
	ContentLength int64
}

// Client issues authenticated requests through the shared session,
// retrying transient failures with exponential backoff. A 401 triggers a
// single session refresh that is not counted against the retry budget.
type Client struct {
	session *session.Provider
	opts    Options
}

// NewClient creates a client over the given session provider.
func NewClient(s *session.Provider, opts Options) *Client {
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = DefaultOptions().RetryAttempts
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = DefaultOptions().RetryBackoff
	}
	if opts.RetryMaxBackoff <= 0 {
		opts.RetryMaxBackoff = DefaultOptions().RetryMaxBackoff
	}
	return &Client{session: s, opts: opts}
}

// Get performs a GET request. params, if non-nil, are encoded into the
// query string. The caller owns the returned body.
func (c *Client) Get(ctx context.Context, rawURL string, params url.Values) (*Response, error) {
	var lastErr error
	refreshed := false

	for attempt := 0; attempt <= c.opts.RetryAttempts; attempt++ {
		if attempt > 0 {
			if err := Backoff(ctx, attempt, c.opts.RetryBackoff, c.opts.RetryMaxBackoff); err != nil {
				return nil, err
			}
		}

		resp, err := c.do(ctx, http.MethodGet, rawURL, params)
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode == http.StatusUnauthorized {
			drain(resp)
			if refreshed {
				return nil, ErrUnauthorized
			}
			// Session expiry: one re-logon, shared by all workers, and the
			// failed attempt does not consume the retry budget.
			gen := c.session.Generation()
			if err := c.session.Refresh(ctx, gen); err != nil {
				return nil, err
			}
			refreshed = true
			attempt--
			continue
		}

		if resp.StatusCode >= 500 {
			drain(resp)
			lastErr = fmt.Errorf("%w: %d %s", ErrServerError, resp.StatusCode, resp.Status)
			continue
		}

		if err := checkStatusCode(resp.StatusCode); err != nil {
			drain(resp)
			return nil, err
		}

		return &Response{Body: resp.Body, ContentLength: resp.ContentLength}, nil
	}

	return nil, fmt.Errorf("get %s failed after %d attempts: %w", rawURL, c.opts.RetryAttempts+1, lastErr)
}

// Head performs a HEAD request and returns the reported content length.
func (c *Client) Head(ctx context.Context, rawURL string) (int64, error) {
	var lastErr error

	for attempt := 0; attempt <= c.opts.RetryAttempts; attempt++ {
		if attempt > 0 {
			if err := Backoff(ctx, attempt, c.opts.RetryBackoff, c.opts.RetryMaxBackoff); err != nil {
				return 0, err
			}
		}

		resp, err := c.do(ctx, http.MethodHead, rawURL, nil)
		if err != nil {
			lastErr = err
			continue
		}
		length := resp.ContentLength
		drain(resp)

		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("%w: %d %s", ErrServerError, resp.StatusCode, resp.Status)
			continue
		}
		if err := checkStatusCode(resp.StatusCode); err != nil {
			return 0, err
		}

		return length, nil
	}

	return 0, fmt.Errorf("head %s failed after %d attempts: %w", rawURL, c.opts.RetryAttempts+1, lastErr)
}

// do issues a single request, walking redirects manually so the session's
// cookie jar sees every hop.
func (c *Client) do(ctx context.Context, method, rawURL string, params url.Values) (*http.Response, error) {
	u := rawURL
	if params != nil {
		u = rawURL + "?" + params.Encode()
	}

	for hop := 0; hop < maxRedirects; hop++ {
		req, err := http.NewRequestWithContext(ctx, method, u, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}

		resp, err := c.session.Client().Do(req)
		if err != nil {
			return nil, err
		}

		switch resp.StatusCode {
		case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
			http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
			loc := resp.Header.Get("Location")
			drain(resp)
			if loc == "" {
				return nil, errors.New("http: redirect without location")
			}
			next, err := resolveRef(u, loc)
			if err != nil {
				return nil, err
			}
			u = next
		default:
			return resp, nil
		}
	}

	return nil, fmt.Errorf("http: stopped after %d redirects for %s", maxRedirects, rawURL)
}

// Backoff waits for an exponentially increasing duration with jitter.
func Backoff(ctx context.Context, attempt int, base, max time.Duration) error {
	backoff := base * time.Duration(1<<uint(attempt-1))
	if backoff > max {
		backoff = max
	}

	// Add jitter: 0.5 to 1.5 of backoff
	jitter := time.Duration(float64(backoff) * (0.5 + rand.Float64()))

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(jitter):
		return nil
	}
}

// checkStatusCode returns an appropriate error for non-success status codes.
func checkStatusCode(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusForbidden:
		return ErrForbidden
	case code == http.StatusUnauthorized:
		return ErrUnauthorized
	default:
		return fmt.Errorf("unexpected status code: %d", code)
	}
}

func resolveRef(base, ref string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("http: parse url %s: %w", base, err)
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("http: parse redirect location %s: %w", ref, err)
	}
	return b.ResolveReference(r).String(), nil
}

func drain(resp *http.Response) {
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	resp.Body.Close()
}
