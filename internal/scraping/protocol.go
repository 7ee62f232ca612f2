// Package scraping drives HTML origins: URL generators produce pages,
// downloaders fetch them and item adapters turn them into payloads.
package scraping

import (
	"context"
	"fmt"
	"iter"
	"maps"

	"github.com/PuerkitoBio/goquery"

	"aeroport/internal/fetcher"
	"aeroport/internal/payload"
)

// DownloaderKind selects how a scheme's pages are fetched.
type DownloaderKind string

const (
	DownloaderHTTP    DownloaderKind = "http"
	DownloaderBrowser DownloaderKind = "browser"
)

// URLInfo is a page to fetch plus read-only context for postprocessing.
type URLInfo struct {
	URL    string
	kwargs map[string]any
}

// NewURLInfo copies kwargs so later changes by the caller are not visible.
func NewURLInfo(url string, kwargs map[string]any) URLInfo {
	return URLInfo{URL: url, kwargs: maps.Clone(kwargs)}
}

// Kwargs returns a copy of the context values.
func (u URLInfo) Kwargs() map[string]any { return maps.Clone(u.kwargs) }

// Get returns a context value.
func (u URLInfo) Get(key string) (any, bool) {
	v, ok := u.kwargs[key]
	return v, ok
}

// String returns a context value formatted as a string, or "".
func (u URLInfo) String(key string) string {
	v, ok := u.kwargs[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// URLGenerator yields the pages of a scheme. Generate is single pass: the
// sequence is lazy and finite, and calling Generate again yields nothing.
type URLGenerator interface {
	Generate(ctx context.Context) iter.Seq[URLInfo]
}

// ItemAdapter splits page content into raw items and converts each into a
// payload. AdaptRawItem returning (nil, nil) skips the item.
type ItemAdapter interface {
	ExtractRawItems(content string) ([]*goquery.Selection, error)
	AdaptRawItem(raw *goquery.Selection) (*payload.Payload, error)
}

// AdapterFactory builds an adapter from init kwargs.
type AdapterFactory func(kwargs map[string]any) (ItemAdapter, error)

// AdapterSpec is an adapter factory with its init kwargs.
type AdapterSpec struct {
	New    AdapterFactory
	Kwargs map[string]any
}

// SchemeItem is one pass of an origin: a generator of pages and the adapters
// run over every page, in order.
type SchemeItem struct {
	Generator  func(d fetcher.Downloader) URLGenerator
	Adapters   []AdapterSpec
	Downloader DownloaderKind
}

// AdaptationError wraps a failure to adapt a single raw item.
type AdaptationError struct {
	Adapter string
	Err     error
}

func (e *AdaptationError) Error() string {
	return fmt.Sprintf("adapt item with %s: %v", e.Adapter, e.Err)
}

func (e *AdaptationError) Unwrap() error { return e.Err }
