// Package fetcher downloads page content for scraping origins, either over
// plain HTTP or through an external headless browser.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"
	"golang.org/x/time/rate"
)

const (
	DefaultTimeout   = 15 * time.Second
	defaultUserAgent = "Mozilla/5.0 (compatible; aeroport/1.0)"
	maxBodySize      = 20 * 1024 * 1024
)

// ErrBodyTooLarge is returned for pages above the size limit.
var ErrBodyTooLarge = errors.New("response body too large")

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Downloader returns the content of a page.
type Downloader interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// StatusError is returned for non-200 responses.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
}

// HTTP downloads pages with a per-request timeout and an optional shared
// rate limit.
type HTTP struct {
	client    HTTPClient
	timeout   time.Duration
	limiter   *rate.Limiter
	userAgent string
	maxBody   int64
}

// HTTPOption configures an HTTP downloader.
type HTTPOption func(*HTTP)

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) HTTPOption {
	return func(h *HTTP) {
		if d > 0 {
			h.timeout = d
		}
	}
}

// WithLimiter shares l between all requests of the downloader.
func WithLimiter(l *rate.Limiter) HTTPOption {
	return func(h *HTTP) { h.limiter = l }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) HTTPOption {
	return func(h *HTTP) {
		if ua != "" {
			h.userAgent = ua
		}
	}
}

// NewHTTP creates an HTTP downloader with the given client.
func NewHTTP(client HTTPClient, opts ...HTTPOption) *HTTP {
	h := &HTTP{
		client:    client,
		timeout:   DefaultTimeout,
		userAgent: defaultUserAgent,
		maxBody:   maxBodySize,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Fetch downloads url and returns the body as text.
func (h *HTTP) Fetch(ctx context.Context, url string) (string, error) {
	body, err := h.get(ctx, url)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// FetchFeed downloads and parses an RSS or Atom feed.
func (h *HTTP) FetchFeed(ctx context.Context, url string) (*gofeed.Feed, error) {
	body, err := h.get(ctx, url)
	if err != nil {
		return nil, err
	}
	feed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	return feed, nil
}

func (h *HTTP) get(ctx context.Context, url string) ([]byte, error) {
	if h.limiter != nil {
		if err := h.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", h.userAgent)

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, h.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > h.maxBody {
		return nil, fmt.Errorf("fetch %s: %w (limit %d bytes)", url, ErrBodyTooLarge, h.maxBody)
	}
	return body, nil
}
