// Package session acquires and refreshes the authenticated session against
// the patch catalog service.
//
// The service authenticates with HTTP basic auth but hands out session
// cookies across a chain of redirects that must be walked manually:
// automatic redirect handling loses cookies set by intermediate hops.
// It also rejects clients that advertise a browser user agent without
// executing JavaScript, so every request identifies as wget.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"
	"time"
)

const (
	userAgent = "Wget/1.21"
	logonPath = "/Orion/Services/download"

	maxLogonRedirects = 20
)

// ErrAuth is returned when the service rejects the configured credentials.
var ErrAuth = errors.New("session: authentication rejected")

// Options configures a Provider.
type Options struct {
	// BaseURL is the catalog service root, e.g. "https://updates.oracle.com".
	BaseURL string

	Username string
	Password string

	// HeaderTimeout bounds how long to wait for response headers.
	// Default: 30s. Transfers themselves are bounded by context only.
	HeaderTimeout time.Duration
}

// Provider owns the authenticated HTTP client shared by all workers.
// The client and its cookie jar are safe for concurrent use; Refresh is
// single-flight so concurrent expiry reports trigger one re-logon.
type Provider struct {
	opts   Options
	client *http.Client

	mu       sync.Mutex
	gen      uint64
	loggedOn bool
}

// New creates a Provider. No network I/O happens until Logon.
func New(opts Options) (*Provider, error) {
	if opts.BaseURL == "" {
		return nil, errors.New("session: base URL is required")
	}
	if opts.HeaderTimeout <= 0 {
		opts.HeaderTimeout = 30 * time.Second
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("session: create cookie jar: %w", err)
	}

	transport := &http.Transport{
		MaxIdleConnsPerHost:   16,
		MaxIdleConns:          32,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: opts.HeaderTimeout,
		DisableCompression:    true, // raw bytes, sizes must match the catalog
	}

	return &Provider{
		opts: opts,
		client: &http.Client{
			Jar:       jar,
			Transport: &uaTransport{base: transport},
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}, nil
}

// Client returns the shared cookie-jar-backed HTTP client. Redirects are
// not followed automatically; callers that need them walk Location headers
// themselves so the jar sees every hop.
func (p *Provider) Client() *http.Client {
	return p.client
}

// BaseURL returns the catalog service root.
func (p *Provider) BaseURL() string {
	return p.opts.BaseURL
}

// Logon authenticates against the service, filling the cookie jar.
// It is a no-op if a session is already established.
func (p *Provider) Logon(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.loggedOn {
		return nil
	}
	return p.logonLocked(ctx)
}

// Generation returns the current session generation. Callers snapshot it
// before a request so Refresh can tell whether another worker already
// re-established the session.
func (p *Provider) Generation() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gen
}

// Refresh re-authenticates if the session has not changed since the caller
// observed generation seen. If another worker refreshed in the meantime,
// Refresh returns immediately.
func (p *Provider) Refresh(ctx context.Context, seen uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gen != seen {
		return nil
	}
	p.loggedOn = false
	return p.logonLocked(ctx)
}

func (p *Provider) logonLocked(ctx context.Context) error {
	u := p.opts.BaseURL + logonPath

	for hop := 0; hop < maxLogonRedirects; hop++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return fmt.Errorf("session: create logon request: %w", err)
		}
		req.SetBasicAuth(p.opts.Username, p.opts.Password)

		resp, err := p.client.Do(req)
		if err != nil {
			return fmt.Errorf("session: logon request: %w", err)
		}
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
		resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusUnauthorized:
			return ErrAuth
		case http.StatusFound, http.StatusMovedPermanently,
			http.StatusSeeOther, http.StatusTemporaryRedirect,
			http.StatusPermanentRedirect:
			loc := resp.Header.Get("Location")
			if loc == "" {
				return errors.New("session: logon redirect without location")
			}
			if strings.HasPrefix(loc, "/") {
				u = p.opts.BaseURL + loc
			} else {
				u = loc
			}
		case http.StatusOK:
			p.loggedOn = true
			p.gen++
			return nil
		default:
			return fmt.Errorf("session: unexpected logon status %d", resp.StatusCode)
		}
	}

	return errors.New("session: too many logon redirects")
}

// uaTransport stamps the wget user agent on every outgoing request.
type uaTransport struct {
	base http.RoundTripper
}

func (t *uaTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	if clone.Header.Get("User-Agent") == "" {
		clone.Header.Set("User-Agent", userAgent)
	}
	return t.base.RoundTrip(clone)
}
