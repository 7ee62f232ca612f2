package scraping

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sethvargo/go-retry"

	"aeroport/internal/fetcher"
)

// FallbackMaxPage is the page count used when discovery fails.
const FallbackMaxPage = 1

// PageCounter discovers how many pages a category listing has.
type PageCounter interface {
	PageCount(ctx context.Context, url string) (int, error)
}

// PagedGenerator yields every page of every category. The URL pattern uses
// {key} placeholders filled from the category plus {page_number} and
// {page_number_zero}. Category values are passed on as URLInfo kwargs.
type PagedGenerator struct {
	pattern    string
	categories []map[string]any
	counter    PageCounter
	fallback   int
	maxPages   int
	pageVars   func(page int) map[string]string
	log        *slog.Logger
	used       atomic.Bool
}

// PagedOption configures a PagedGenerator.
type PagedOption func(*PagedGenerator)

// WithFallbackMaxPage overrides FallbackMaxPage.
func WithFallbackMaxPage(n int) PagedOption {
	return func(g *PagedGenerator) {
		if n > 0 {
			g.fallback = n
		}
	}
}

// WithMaxPages caps the pages visited per category.
func WithMaxPages(n int) PagedOption {
	return func(g *PagedGenerator) { g.maxPages = n }
}

// WithPageVars adds placeholders computed from the page number, such as
// an item offset.
func WithPageVars(fn func(page int) map[string]string) PagedOption {
	return func(g *PagedGenerator) { g.pageVars = fn }
}

// WithLogger sets the logger for discovery failures.
func WithLogger(log *slog.Logger) PagedOption {
	return func(g *PagedGenerator) {
		if log != nil {
			g.log = log
		}
	}
}

// NewPagedGenerator returns a generator over categories.
func NewPagedGenerator(pattern string, categories []map[string]any, counter PageCounter, opts ...PagedOption) *PagedGenerator {
	g := &PagedGenerator{
		pattern:    pattern,
		categories: categories,
		counter:    counter,
		fallback:   FallbackMaxPage,
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// URL formats the pattern for a category page (1-based).
func (g *PagedGenerator) URL(category map[string]any, page int) string {
	pairs := make([]string, 0, 2*len(category)+4)
	for k, v := range category {
		pairs = append(pairs, "{"+k+"}", fmt.Sprint(v))
	}
	pairs = append(pairs,
		"{page_number}", strconv.Itoa(page),
		"{page_number_zero}", strconv.Itoa(page-1),
	)
	if g.pageVars != nil {
		for k, v := range g.pageVars(page) {
			pairs = append(pairs, "{"+k+"}", v)
		}
	}
	return strings.NewReplacer(pairs...).Replace(g.pattern)
}

func (g *PagedGenerator) Generate(ctx context.Context) iter.Seq[URLInfo] {
	return func(yield func(URLInfo) bool) {
		if !g.used.CompareAndSwap(false, true) {
			return
		}
		for _, category := range g.categories {
			pages := g.pageCount(ctx, category)
			if ctx.Err() != nil {
				return
			}
			for page := 1; page <= pages; page++ {
				if !yield(NewURLInfo(g.URL(category, page), category)) {
					return
				}
			}
		}
	}
}

func (g *PagedGenerator) pageCount(ctx context.Context, category map[string]any) int {
	n, err := g.counter.PageCount(ctx, g.URL(category, 1))
	if err != nil || n < 1 {
		g.log.Warn("can not fetch max page number",
			"category", category["category_name"], "fallback", g.fallback, "error", err)
		n = g.fallback
	}
	if g.maxPages > 0 && n > g.maxPages {
		n = g.maxPages
	}
	return n
}

// SelectorPageCounter reads the page count from the text of the last node
// matching a goquery selector on the first listing page. Download failures
// are retried with exponential backoff.
type SelectorPageCounter struct {
	Downloader fetcher.Downloader
	Selector   string
	Retries    uint64
	Backoff    time.Duration
}

func (c *SelectorPageCounter) PageCount(ctx context.Context, url string) (int, error) {
	backoff := c.Backoff
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	var pages int
	err := retry.Do(ctx, retry.WithMaxRetries(c.Retries, retry.NewExponential(backoff)), func(ctx context.Context) error {
		html, err := c.Downloader.Fetch(ctx, url)
		if err != nil {
			return retry.RetryableError(err)
		}
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
		if err != nil {
			return fmt.Errorf("parse listing: %w", err)
		}
		text := strings.TrimSpace(doc.Find(c.Selector).Last().Text())
		pages, err = strconv.Atoi(text)
		if err != nil {
			return fmt.Errorf("parse page count %q: %w", text, err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return pages, nil
}
