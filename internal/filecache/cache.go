// Package filecache keeps expensive downloads (bulk feed exports) in object
// storage and refreshes them after they expire.
package filecache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"

	"aeroport/internal/objstore"
)

const (
	DefaultExpires         = 12 * time.Hour
	DefaultDownloadTimeout = 30 * time.Minute
)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Hook post-processes a freshly downloaded object and may replace it.
type Hook func(ctx context.Context, store objstore.Storage, bucket string, obj objstore.StoredObject) (objstore.StoredObject, error)

// Options controls a single Get.
// ForceDownload takes precedence over ForceCache.
type Options struct {
	ForceDownload bool
	ForceCache    bool
}

// Config holds cache parameters.
type Config struct {
	Bucket          string
	Expires         time.Duration
	DownloadTimeout time.Duration
	UserAgent       string
}

// DownloadError describes a failed download.
type DownloadError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *DownloadError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("download %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("download %s: %v", e.URL, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// Cache maps URLs to local cached files in one storage bucket.
type Cache struct {
	store   objstore.Storage
	client  HTTPClient
	cfg     Config
	hooks   []Hook
	log     *slog.Logger
	nowFunc func() time.Time
}

// New creates a Cache. Zero durations in cfg fall back to the defaults.
func New(store objstore.Storage, client HTTPClient, cfg Config, log *slog.Logger) *Cache {
	if cfg.Expires <= 0 {
		cfg.Expires = DefaultExpires
	}
	if cfg.DownloadTimeout <= 0 {
		cfg.DownloadTimeout = DefaultDownloadTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "aeroport/1.0"
	}
	return &Cache{
		store:   store,
		client:  client,
		cfg:     cfg,
		log:     log.With("component", "filecache", "bucket", cfg.Bucket),
		nowFunc: time.Now,
	}
}

// ForAirline returns a cache sharing storage, client and hooks that uses the
// bucket "<bucket>_<airline>".
func (c *Cache) ForAirline(airline string) *Cache {
	cfg := c.cfg
	cfg.Bucket = c.cfg.Bucket + "_" + airline
	return &Cache{
		store:   c.store,
		client:  c.client,
		cfg:     cfg,
		hooks:   append([]Hook(nil), c.hooks...),
		log:     c.log.With("bucket", cfg.Bucket),
		nowFunc: c.nowFunc,
	}
}

// AddHook appends a post-download hook. Hooks run in registration order.
func (c *Cache) AddHook(h Hook) {
	c.hooks = append(c.hooks, h)
}

// Bucket returns the storage bucket used by the cache.
func (c *Cache) Bucket() string { return c.cfg.Bucket }

// Get returns the path of the cached copy of url stored as asFilename,
// downloading it when missing or expired. ok is false when no file is
// available; the cause is logged.
func (c *Cache) Get(ctx context.Context, url, asFilename string, opts Options) (path string, ok bool) {
	removed := false

	if !opts.ForceDownload {
		obj, found, err := c.cached(ctx, asFilename, opts.ForceCache)
		switch {
		case err != nil:
			c.log.Error("check cached file", "filename", asFilename, "error", err)
		case found:
			return obj.Path, true
		}
		removed = err == nil && !found
	}

	if opts.ForceCache && !opts.ForceDownload {
		return "", false
	}

	obj, err := c.download(ctx, url, asFilename, removed)
	if err != nil {
		c.log.Error("problem with file downloading", "url", url, "filename", asFilename, "error", err)
		return "", false
	}
	return obj.Path, true
}

// cached returns the stored object when it exists and is fresh. A stale
// object is removed and reported as not found.
func (c *Cache) cached(ctx context.Context, name string, forceCache bool) (objstore.StoredObject, bool, error) {
	info, err := c.store.Stat(ctx, c.cfg.Bucket, name)
	if errors.Is(err, objstore.ErrObjectNotFound) {
		return objstore.StoredObject{}, false, nil
	}
	if err != nil {
		return objstore.StoredObject{}, false, err
	}

	if !forceCache && c.nowFunc().Sub(info.ModTime) >= c.cfg.Expires {
		c.log.Info("cached file expired", "filename", name, "age", humanize.Time(info.ModTime))
		if err := c.store.Remove(ctx, c.cfg.Bucket, name); err != nil {
			return objstore.StoredObject{}, false, err
		}
		return objstore.StoredObject{}, false, nil
	}

	obj, err := c.store.FGet(ctx, c.cfg.Bucket, name, "")
	if errors.Is(err, objstore.ErrObjectNotFound) {
		return objstore.StoredObject{}, false, nil
	}
	if err != nil {
		return objstore.StoredObject{}, false, err
	}
	return obj, true, nil
}

func (c *Cache) download(ctx context.Context, url, name string, alreadyRemoved bool) (objstore.StoredObject, error) {
	c.log.Info("downloading to cache", "url", url, "filename", name)

	if !alreadyRemoved {
		if err := c.store.Remove(ctx, c.cfg.Bucket, name); err != nil {
			return objstore.StoredObject{}, err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.DownloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return objstore.StoredObject{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return objstore.StoredObject{}, &DownloadError{URL: url, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return objstore.StoredObject{}, &DownloadError{URL: url, StatusCode: resp.StatusCode}
	}

	obj, err := c.store.Put(ctx, c.cfg.Bucket, name, resp.Body)
	if err != nil {
		return objstore.StoredObject{}, &DownloadError{URL: url, Err: err}
	}

	for _, hook := range c.hooks {
		next, err := hook(ctx, c.store, c.cfg.Bucket, obj)
		if err != nil {
			// The raw object must not be served as a valid cached file.
			rerr := errors.Join(
				c.store.Remove(context.WithoutCancel(ctx), c.cfg.Bucket, name),
				c.removeOther(context.WithoutCancel(ctx), name, obj.Filename),
				c.removeOther(context.WithoutCancel(ctx), name, next.Filename),
			)
			return objstore.StoredObject{}, errors.Join(fmt.Errorf("download hook: %w", err), rerr)
		}
		obj = next
	}

	if info, err := c.store.Stat(ctx, c.cfg.Bucket, obj.Filename); err == nil {
		c.log.Info("downloaded to cache", "filename", obj.Filename, "size", humanize.Bytes(uint64(info.Size)))
	}
	return obj, nil
}

func (c *Cache) removeOther(ctx context.Context, name, other string) error {
	if other == "" || other == name {
		return nil
	}
	return c.store.Remove(ctx, c.cfg.Bucket, other)
}

// Open returns a reader for a cached object.
func (c *Cache) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	return c.store.Get(ctx, c.cfg.Bucket, name)
}

// Stat returns size and modification time of a cached object.
func (c *Cache) Stat(ctx context.Context, name string) (objstore.ObjectInfo, error) {
	return c.store.Stat(ctx, c.cfg.Bucket, name)
}
