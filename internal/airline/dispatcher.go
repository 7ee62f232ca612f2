package airline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"aeroport/internal/config"
	"aeroport/internal/destination"
	"aeroport/internal/fetcher"
	"aeroport/internal/filecache"
	"aeroport/internal/filter"
	"aeroport/internal/flight"
	"aeroport/internal/metric"
	"aeroport/internal/model"
	"aeroport/internal/pipeline"
	"aeroport/internal/scraping"
)

// ErrProcessing rejects a run before it starts: an unknown or disabled
// airline, origin or destination.
var ErrProcessing = errors.New("cannot process origin")

// DispatcherConfig holds the process-wide resources shared by all runs.
type DispatcherConfig struct {
	Registry     *Registry
	Settings     *config.Settings
	Destinations *destination.Registry
	Store        flight.Store
	Downloaders  map[scraping.DownloaderKind]fetcher.Downloader
	Feeds        scraping.FeedFetcher
	Cache        *filecache.Cache
	Log          *slog.Logger
	Metrics      *metric.Metrics
}

// Dispatcher starts origin runs.
type Dispatcher struct {
	cfg DispatcherConfig
	log *slog.Logger
	wg  sync.WaitGroup
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{cfg: cfg, log: log.With("component", "dispatcher")}
}

// Registry returns the airline registry.
func (d *Dispatcher) Registry() *Registry { return d.cfg.Registry }

// Run is a validated origin run that has not started yet.
type Run struct {
	d           *Dispatcher
	airline     string
	origin      OriginSpec
	settings    config.OriginSettings
	destName    string
	destination config.DestinationSettings
	rules       *filter.Rules
	flight      *flight.Flight
}

// FlightUUID identifies the run's flight.
func (r *Run) FlightUUID() string { return r.flight.UUID() }

// Destination is the name of the destination the run sends to.
func (r *Run) Destination() string { return r.destName }

// Prepare resolves and validates a run. Every failure wraps ErrProcessing.
func (d *Dispatcher) Prepare(airlineName, originName, destName string) (*Run, error) {
	a, ok := d.cfg.Registry.Get(airlineName)
	if !ok {
		return nil, fmt.Errorf("%w: unknown airline %q", ErrProcessing, airlineName)
	}
	as, ok := d.cfg.Settings.Airlines[airlineName]
	if !ok || !as.Enabled {
		return nil, fmt.Errorf("%w: airline %q is not enabled", ErrProcessing, airlineName)
	}
	spec, ok := a.Origin(originName)
	if !ok {
		return nil, fmt.Errorf("%w: unknown origin %q of airline %q", ErrProcessing, originName, airlineName)
	}
	ocfg := as.Origins[originName]
	if !ocfg.IsEnabled() {
		return nil, fmt.Errorf("%w: origin %q is disabled", ErrProcessing, originName)
	}

	name := d.cfg.Settings.DestinationFor(airlineName, destName, spec.DefaultDestination)
	ds, ok := d.cfg.Settings.Destinations[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown destination %q", ErrProcessing, name)
	}
	if !ds.IsEnabled() {
		return nil, fmt.Errorf("%w: destination %q is disabled", ErrProcessing, name)
	}

	rules, err := filter.Compile(ocfg.Filters)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProcessing, err)
	}

	return &Run{
		d:           d,
		airline:     airlineName,
		origin:      spec,
		settings:    ocfg,
		destName:    name,
		destination: ds,
		rules:       rules,
		flight: flight.New(airlineName, originName, d.cfg.Store,
			flight.WithCheckpointEvery(d.cfg.Settings.Flights.CheckpointEvery)),
	}, nil
}

// ProcessOrigin runs an origin synchronously and returns its flight.
func (d *Dispatcher) ProcessOrigin(ctx context.Context, airlineName, originName, destName string) (model.Flight, error) {
	run, err := d.Prepare(airlineName, originName, destName)
	if err != nil {
		return model.Flight{}, err
	}
	err = run.Execute(ctx)
	return run.flight.Record(), err
}

// Launch validates a run and executes it in the background under ctx, which
// must outlive the call. It returns the flight UUID.
func (d *Dispatcher) Launch(ctx context.Context, airlineName, originName, destName string) (string, error) {
	run, err := d.Prepare(airlineName, originName, destName)
	if err != nil {
		return "", err
	}
	d.wg.Go(func() {
		if err := run.Execute(ctx); err != nil {
			d.log.Error("background run failed", "flight", run.FlightUUID(), "error", err)
		}
	})
	return run.FlightUUID(), nil
}

// Wait blocks until every launched run has returned.
func (d *Dispatcher) Wait() { d.wg.Wait() }

// Execute performs the run. The destination is released even when
// processing fails. A failed run, including a failed release, leaves its
// flight in the air.
func (r *Run) Execute(ctx context.Context) (err error) {
	d := r.d
	originName := r.origin.Name
	log := d.log.With("airline", r.airline, "origin", originName, "destination", r.destName, "flight", r.flight.UUID())

	dest, err := d.cfg.Destinations.New(r.destination.Backend, r.destName, r.destination.Settings,
		destination.Deps{Log: d.log, Metrics: d.cfg.Metrics})
	if err != nil {
		return fmt.Errorf("create destination %s: %w", r.destName, err)
	}
	if err := dest.Prepare(ctx); err != nil {
		return fmt.Errorf("prepare destination %s: %w", r.destName, err)
	}
	released := false
	defer func() {
		if released {
			return
		}
		if rerr := dest.Release(context.WithoutCancel(ctx)); rerr != nil {
			log.Error("release destination", "error", rerr)
			if err == nil {
				err = fmt.Errorf("release destination %s: %w", r.destName, rerr)
			}
		}
	}()

	sink := pipeline.NewSink(dest, r.flight,
		pipeline.WithFilter(r.rules),
		pipeline.WithMetrics(d.cfg.Metrics, r.airline, originName))

	var cache *filecache.Cache
	if d.cfg.Cache != nil {
		cache = d.cfg.Cache.ForAirline(r.airline)
	}
	origin, err := r.origin.New(Env{
		Airline:     r.airline,
		Origin:      originName,
		Settings:    r.settings,
		Sink:        sink,
		Downloaders: d.cfg.Downloaders,
		Feeds:       d.cfg.Feeds,
		Cache:       cache,
		Log:         d.log,
		Metrics:     d.cfg.Metrics,
	})
	if err != nil {
		return fmt.Errorf("create origin %s: %w", originName, err)
	}

	if err := r.flight.Start(ctx); err != nil {
		return fmt.Errorf("start flight: %w", err)
	}
	d.cfg.Metrics.FlightStarted(r.airline, originName)
	started := time.Now()
	log.Info("flight started")

	if err := origin.Process(ctx); err != nil {
		d.cfg.Metrics.FlightEnded(r.airline, originName, "failed", time.Since(started))
		log.Error("flight failed", "processed", sink.Count(), "error", err)
		return fmt.Errorf("process %s/%s: %w", r.airline, originName, err)
	}

	// Buffered payloads are delivered on release, so the flight lands only
	// after it succeeds.
	released = true
	if err := dest.Release(context.WithoutCancel(ctx)); err != nil {
		d.cfg.Metrics.FlightEnded(r.airline, originName, "failed", time.Since(started))
		log.Error("release destination", "processed", sink.Count(), "error", err)
		return fmt.Errorf("release destination %s: %w", r.destName, err)
	}

	if err := r.flight.FinishWithTotal(ctx, sink.Count()); err != nil {
		d.cfg.Metrics.FlightEnded(r.airline, originName, "failed", time.Since(started))
		return fmt.Errorf("finish flight: %w", err)
	}
	d.cfg.Metrics.FlightEnded(r.airline, originName, string(model.FlightLanded), time.Since(started))
	log.Info("flight landed", "processed", sink.Count(), "duration", time.Since(started).Round(time.Millisecond))
	return nil
}
