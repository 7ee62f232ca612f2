package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"aeroport/internal/airline"
	"aeroport/internal/airlines/like"
	"aeroport/internal/config"
	"aeroport/internal/destination"
	"aeroport/internal/fetcher"
	"aeroport/internal/filecache"
	"aeroport/internal/metric"
	"aeroport/internal/objstore"
	"aeroport/internal/scraping"
	"aeroport/internal/storage"
)

// airlines returns every airline compiled into the binary.
func airlines() *airline.Registry {
	return airline.NewRegistry(like.New())
}

// runtime holds the process-wide services of a processing command.
type runtime struct {
	settings   *config.Settings
	store      *storage.SQLite
	metrics    *metric.Metrics
	pool       *objstore.IOPool
	dispatcher *airline.Dispatcher
	log        *slog.Logger
}

func openStore(path string) (*storage.SQLite, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create data directory %s: %w", dir, err)
		}
	}
	store, err := storage.NewSQLite(path)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	return store, nil
}

func newRuntime(cfg *config.Config, settings *config.Settings, log *slog.Logger) (_ *runtime, err error) {
	rt := &runtime{settings: settings, metrics: metric.New(), log: log}
	defer func() {
		if err != nil {
			rt.Close()
		}
	}()

	if rt.store, err = openStore(cfg.DatabasePath); err != nil {
		return nil, err
	}

	fc := settings.FileURLCache
	rt.pool = objstore.NewIOPool(fc.IOWorkers, 0, objstore.WithPoolMetrics(rt.metrics.Registerer()))
	if err := rt.pool.Start(); err != nil {
		return nil, fmt.Errorf("start io pool: %w", err)
	}
	objects, err := objstore.NewRegistry().New(fc.Backend, fc.Options, rt.pool)
	if err != nil {
		return nil, fmt.Errorf("create %s storage: %w", fc.Backend, err)
	}

	client := &http.Client{}
	cache := filecache.New(objects, client, filecache.Config{
		Bucket:          fc.Bucket,
		Expires:         fc.Expires.Duration,
		DownloadTimeout: fc.DownloadTimeout.Duration,
		UserAgent:       settings.HTTP.UserAgent,
	}, log)
	cache.AddHook(filecache.GunzipHook)

	limit := rate.Inf
	if settings.HTTP.Rate > 0 {
		limit = rate.Limit(settings.HTTP.Rate)
	}
	web := fetcher.NewHTTP(client,
		fetcher.WithTimeout(settings.HTTP.Timeout.Duration),
		fetcher.WithLimiter(rate.NewLimiter(limit, settings.HTTP.Burst)),
		fetcher.WithUserAgent(settings.HTTP.UserAgent),
	)

	proxies := make([]fetcher.Proxy, 0, len(settings.Browser.Proxies))
	for _, p := range settings.Browser.Proxies {
		proxies = append(proxies, fetcher.Proxy{Address: p.Address, Type: p.Type})
	}
	browser, err := fetcher.NewBrowser(fetcher.BrowserConfig{
		Command: settings.Browser.Command,
		Timeout: settings.Browser.Timeout.Duration,
		Proxies: proxies,
	}, semaphore.NewWeighted(settings.Browser.MaxBrowsers), nil, log)
	if err != nil {
		return nil, err
	}

	rt.dispatcher = airline.NewDispatcher(airline.DispatcherConfig{
		Registry:     airlines(),
		Settings:     settings,
		Destinations: destination.NewRegistry(),
		Store:        rt.store,
		Downloaders: map[scraping.DownloaderKind]fetcher.Downloader{
			scraping.DownloaderHTTP:    web,
			scraping.DownloaderBrowser: browser,
		},
		Feeds:   web,
		Cache:   cache,
		Log:     log,
		Metrics: rt.metrics,
	})
	return rt, nil
}

// Close waits for launched runs and releases storage.
func (rt *runtime) Close() {
	if rt.dispatcher != nil {
		rt.dispatcher.Wait()
	}
	var errs []error
	if rt.pool != nil {
		errs = append(errs, rt.pool.Stop(10*time.Second))
	}
	if rt.store != nil {
		errs = append(errs, rt.store.Close())
	}
	if err := errors.Join(errs...); err != nil {
		rt.log.Error("shutdown", "error", err)
	}
}
