package scraping

import (
	"context"
	"iter"
	"log/slog"
	"maps"
	"sync/atomic"

	"github.com/mmcdole/gofeed"
)

// FeedFetcher loads and parses an RSS or Atom feed.
type FeedFetcher interface {
	FetchFeed(ctx context.Context, url string) (*gofeed.Feed, error)
}

// FeedLinkGenerator yields the item links of RSS/Atom feeds, for shops that
// publish their new arrivals as a feed. A feed that fails to load is logged
// and skipped.
type FeedLinkGenerator struct {
	fetcher FeedFetcher
	feeds   []string
	kwargs  map[string]any
	log     *slog.Logger
	used    atomic.Bool
}

// NewFeedLinkGenerator returns a generator over feeds. kwargs are merged into
// every yielded URLInfo.
func NewFeedLinkGenerator(f FeedFetcher, feeds []string, kwargs map[string]any, log *slog.Logger) *FeedLinkGenerator {
	if log == nil {
		log = slog.Default()
	}
	return &FeedLinkGenerator{fetcher: f, feeds: feeds, kwargs: kwargs, log: log}
}

func (g *FeedLinkGenerator) Generate(ctx context.Context) iter.Seq[URLInfo] {
	return func(yield func(URLInfo) bool) {
		if !g.used.CompareAndSwap(false, true) {
			return
		}
		for _, feedURL := range g.feeds {
			feed, err := g.fetcher.FetchFeed(ctx, feedURL)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				g.log.Warn("feed fetch failed", "feed", feedURL, "error", err)
				continue
			}
			for _, item := range feed.Items {
				if item.Link == "" {
					continue
				}
				kw := maps.Clone(g.kwargs)
				if kw == nil {
					kw = make(map[string]any, 3)
				}
				kw["feed_url"] = feedURL
				kw["feed_title"] = item.Title
				kw["feed_guid"] = item.GUID
				if !yield(NewURLInfo(item.Link, kw)) {
					return
				}
			}
		}
	}
}
