package yml

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"aeroport/internal/filecache"
	"aeroport/internal/metric"
	"aeroport/internal/objstore"
	"aeroport/internal/payload"
	"aeroport/internal/scraping"
)

// ProgressEvery is the record interval between progress callbacks.
const ProgressEvery = 100

// Cache provides local copies of remote feeds.
type Cache interface {
	Get(ctx context.Context, url, asFilename string, opts filecache.Options) (string, bool)
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	Stat(ctx context.Context, name string) (objstore.ObjectInfo, error)
}

// Emitter dispatches item and summary payloads.
type Emitter interface {
	Emit(ctx context.Context, p *payload.Payload) (bool, error)
	EmitSummary(ctx context.Context, p *payload.Payload) error
}

// Postprocess fills run context fields on an adapted payload.
type Postprocess func(p *payload.Payload, origin string, info scraping.URLInfo)

// Config wires a feed origin for one run.
type Config struct {
	Airline string
	Origin  string
	// Exports yields feed URLs; each must carry a "shop_name" kwarg.
	Exports      scraping.URLGenerator
	Adapters     map[ItemType]Adapter
	Cache        Cache
	CacheOptions filecache.Options
	Postprocess  Postprocess
	Sink         Emitter
	// Progress receives the percentage of records parsed. Defaults to a log line.
	Progress func(percent, processed, total int)
	Log      *slog.Logger
	Metrics  *metric.Metrics
}

// Origin downloads feeds through the cache and dispatches their records.
type Origin struct {
	cfg Config
	log *slog.Logger
}

func NewOrigin(cfg Config) (*Origin, error) {
	switch {
	case cfg.Exports == nil:
		return nil, errors.New("feed origin: no export urls")
	case cfg.Cache == nil:
		return nil, errors.New("feed origin: no file cache")
	case cfg.Sink == nil:
		return nil, errors.New("feed origin: no sink")
	}
	if cfg.Adapters == nil {
		cfg.Adapters = map[ItemType]Adapter{TypeCategory: CategoryAdapter{}, TypeOffer: OfferAdapter{}}
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	o := &Origin{cfg: cfg, log: log.With("airline", cfg.Airline, "origin", cfg.Origin)}
	if o.cfg.Progress == nil {
		o.cfg.Progress = func(percent, processed, total int) {
			o.log.Info("feed progress", "percent", percent, "processed", processed, "total", total)
		}
	}
	return o, nil
}

// Process handles every export URL in order. A feed that cannot be
// downloaded or parsed is logged and skipped; dispatch errors and
// cancellation abort the run.
func (o *Origin) Process(ctx context.Context) error {
	for info := range o.cfg.Exports.Generate(ctx) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := o.processExport(ctx, info); err != nil {
			return err
		}
	}
	return ctx.Err()
}

func (o *Origin) processExport(ctx context.Context, info scraping.URLInfo) error {
	log := o.log.With("url", info.URL)
	shop := info.String("shop_name")
	if shop == "" {
		log.Warn("export url has no shop_name, skipping")
		return nil
	}
	name := shop + ".yml"

	if _, ok := o.cfg.Cache.Get(ctx, info.URL, name, o.cfg.CacheOptions); !ok {
		if err := ctx.Err(); err != nil {
			return err
		}
		log.Error("can not get valid feed file, aborting", "shop", shop)
		o.cfg.Metrics.RecordFetchError(o.cfg.Airline, o.cfg.Origin)
		return nil
	}

	feedInfo, counts, err := o.analyze(ctx, name, shop)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Error("analyze feed failed, aborting", "shop", shop, "error", err)
		return nil
	}
	if err := o.cfg.Sink.EmitSummary(ctx, feedInfo); err != nil {
		return err
	}

	rc, err := o.cfg.Cache.Open(ctx, name)
	if err != nil {
		log.Error("open feed failed, aborting", "shop", shop, "error", err)
		return nil
	}
	defer rc.Close()

	types := make([]ItemType, 0, len(o.cfg.Adapters))
	ids := make(map[ItemType]map[string]struct{}, 2)
	for t := range o.cfg.Adapters {
		types = append(types, t)
	}
	// Only requested sections are parsed, so progress is measured against them.
	total := counts.Of(types...)
	for _, t := range []ItemType{TypeCategory, TypeOffer} {
		ids[t] = make(map[string]struct{})
	}

	parsed := 0
	for raw, err := range NewParser(rc, WithSections(types...)).Items() {
		if err != nil {
			// A partial id list would make consumers drop live records, so no
			// parsing result is sent.
			log.Error("feed parsing failed, aborting", "shop", shop, "parsed", parsed, "error", err)
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		parsed++
		if parsed%ProgressEvery == 0 && total > 0 {
			// The tally is approximate and may undercount.
			o.cfg.Progress(min(parsed*100/total, 100), parsed, total)
		}

		p, err := adaptSafely(o.cfg.Adapters[raw.Type], raw)
		if err != nil {
			log.Warn("record skipped", "type", raw.Type, "error", err)
			o.cfg.Metrics.RecordSkipped(o.cfg.Airline, o.cfg.Origin, "adaptation")
			continue
		}
		if p == nil {
			continue
		}
		if o.cfg.Postprocess != nil {
			o.cfg.Postprocess(p, o.cfg.Origin, info)
		}
		sent, err := o.cfg.Sink.Emit(ctx, p)
		if err != nil {
			return err
		}
		if id, ok := p.Lookup("original_id"); ok && sent {
			ids[raw.Type][fmt.Sprint(id)] = struct{}{}
		}
	}

	log.Info("feed processed", "shop", shop, "records", parsed,
		"categories", len(ids[TypeCategory]), "offers", len(ids[TypeOffer]))
	return o.cfg.Sink.EmitSummary(ctx, NewFeedParsingResult(shop, ids[TypeCategory], ids[TypeOffer]))
}

func (o *Origin) analyze(ctx context.Context, name, shop string) (*payload.Payload, Counts, error) {
	stat, err := o.cfg.Cache.Stat(ctx, name)
	if err != nil {
		return nil, Counts{}, fmt.Errorf("stat feed: %w", err)
	}
	rc, err := o.cfg.Cache.Open(ctx, name)
	if err != nil {
		return nil, Counts{}, fmt.Errorf("open feed: %w", err)
	}
	defer rc.Close()
	counts, err := CountRecords(ctx, rc)
	if err != nil {
		return nil, Counts{}, err
	}
	return NewFeedInfo(shop, counts, stat), counts, nil
}

func adaptSafely(a Adapter, raw RawItem) (p *payload.Payload, err error) {
	defer func() {
		if r := recover(); r != nil {
			p, err = nil, &scraping.AdaptationError{Adapter: fmt.Sprintf("%T", a), Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	p, err = a.AdaptRawItem(raw)
	if err != nil {
		return nil, &scraping.AdaptationError{Adapter: fmt.Sprintf("%T", a), Err: err}
	}
	return p, nil
}
