package scraping

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/PuerkitoBio/goquery"

	"aeroport/internal/fetcher"
	"aeroport/internal/metric"
	"aeroport/internal/payload"
)

var ErrNoDownloader = errors.New("no downloader for scheme")

// Emitter dispatches adapted payloads.
type Emitter interface {
	Emit(ctx context.Context, p *payload.Payload) (bool, error)
}

// Postprocess fills payload fields from the URL context before dispatch.
type Postprocess func(p *payload.Payload, info URLInfo)

// Config wires a scraping origin for one run.
type Config struct {
	Airline     string
	Origin      string
	Schemes     []SchemeItem
	Downloaders map[DownloaderKind]fetcher.Downloader
	Postprocess Postprocess
	Sink        Emitter
	Log         *slog.Logger
	Metrics     *metric.Metrics
}

// Origin runs scheme items in order, dispatching every adapted item.
type Origin struct {
	cfg Config
	log *slog.Logger
}

// NewOrigin checks that every scheme has its downloader.
func NewOrigin(cfg Config) (*Origin, error) {
	for i, s := range cfg.Schemes {
		if _, ok := cfg.Downloaders[s.Downloader]; !ok {
			return nil, fmt.Errorf("scheme %d: %w: %q", i, ErrNoDownloader, s.Downloader)
		}
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	log = log.With("airline", cfg.Airline, "origin", cfg.Origin)
	return &Origin{cfg: cfg, log: log}, nil
}

// Process runs the origin to completion. Fetch and adaptation failures skip
// the page or item; context cancellation and dispatch errors abort the run.
func (o *Origin) Process(ctx context.Context) error {
	for i, scheme := range o.cfg.Schemes {
		if err := o.processScheme(ctx, scheme); err != nil {
			return fmt.Errorf("scheme %d: %w", i, err)
		}
	}
	return nil
}

func (o *Origin) processScheme(ctx context.Context, scheme SchemeItem) error {
	dl := o.cfg.Downloaders[scheme.Downloader]

	adapters := make([]ItemAdapter, 0, len(scheme.Adapters))
	for _, spec := range scheme.Adapters {
		a, err := spec.New(spec.Kwargs)
		if err != nil {
			return fmt.Errorf("init adapter: %w", err)
		}
		adapters = append(adapters, a)
	}

	for info := range scheme.Generator(dl).Generate(ctx) {
		if err := ctx.Err(); err != nil {
			return err
		}
		content, err := dl.Fetch(ctx, info.URL)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			o.log.Warn("page fetch failed", "url", info.URL, "error", err)
			o.cfg.Metrics.RecordFetchError(o.cfg.Airline, o.cfg.Origin)
			continue
		}
		for _, a := range adapters {
			if err := o.processPage(ctx, a, content, info); err != nil {
				return err
			}
		}
	}
	return ctx.Err()
}

func (o *Origin) processPage(ctx context.Context, a ItemAdapter, content string, info URLInfo) error {
	raws, err := a.ExtractRawItems(content)
	if err != nil {
		o.log.Warn("extract items failed", "url", info.URL, "error", err)
		return nil
	}
	for _, raw := range raws {
		p, err := adaptSafely(a, raw)
		if err != nil {
			o.log.Warn("item skipped", "url", info.URL, "error", err)
			o.cfg.Metrics.RecordSkipped(o.cfg.Airline, o.cfg.Origin, "adaptation")
			continue
		}
		if p == nil {
			o.cfg.Metrics.RecordSkipped(o.cfg.Airline, o.cfg.Origin, "empty")
			continue
		}
		if o.cfg.Postprocess != nil {
			o.cfg.Postprocess(p, info)
		}
		if _, err := o.cfg.Sink.Emit(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

func adaptSafely(a ItemAdapter, raw *goquery.Selection) (p *payload.Payload, err error) {
	defer func() {
		if r := recover(); r != nil {
			p = nil
			err = &AdaptationError{Adapter: fmt.Sprintf("%T", a), Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	p, err = a.AdaptRawItem(raw)
	if err != nil {
		return nil, &AdaptationError{Adapter: fmt.Sprintf("%T", a), Err: err}
	}
	return p, nil
}
