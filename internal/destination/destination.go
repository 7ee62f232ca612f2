// Package destination delivers payloads to external sinks. Backends are
// created by name through a Registry from string settings.
package destination

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"

	"aeroport/internal/metric"
	"aeroport/internal/payload"
)

// ErrUnknownBackend is returned for a backend key with no registered factory.
var ErrUnknownBackend = errors.New("unknown destination backend")

// Destination receives payloads for one run. Prepare is called once before
// the first payload and Release once after the last, even when processing fails.
type Destination interface {
	Name() string
	Prepare(ctx context.Context) error
	Release(ctx context.Context) error
	ProcessPayload(ctx context.Context, p *payload.Payload) error
}

// Deps are shared services handed to backend factories.
type Deps struct {
	Log     *slog.Logger
	Metrics *metric.Metrics
}

// Factory builds a destination instance named name from settings.
type Factory func(name string, settings map[string]string, deps Deps) (Destination, error)

// Registry maps backend keys to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns a registry with every built-in backend registered.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register("console", newConsoleFromSettings)
	r.Register("nats", newNATSFromSettings)
	r.Register("redis", newRedisFromSettings)
	r.Register("postgres", newPostgresFromSettings)
	r.Register("telegram", newTelegramFromSettings)
	return r
}

// Register adds or replaces a factory.
func (r *Registry) Register(backend string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[backend] = f
}

// Backends returns registered backend keys in sorted order.
func (r *Registry) Backends() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.factories))
	for k := range r.factories {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// New builds a destination with the named backend. The result records
// delivered payloads in deps.Metrics.
func (r *Registry) New(backend, name string, settings map[string]string, deps Deps) (Destination, error) {
	r.mu.RLock()
	f, ok := r.factories[backend]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	d, err := f(name, settings, deps)
	if err != nil {
		return nil, fmt.Errorf("create %s destination %q: %w", backend, name, err)
	}
	return Instrument(d, deps.Metrics), nil
}

// Counted wraps a destination and counts successfully sent payloads.
type Counted struct {
	Destination
	metrics *metric.Metrics
	sent    atomic.Int64
}

// Instrument wraps d so every delivered payload is counted.
func Instrument(d Destination, m *metric.Metrics) *Counted {
	if c, ok := d.(*Counted); ok {
		return c
	}
	return &Counted{Destination: d, metrics: m}
}

func (c *Counted) ProcessPayload(ctx context.Context, p *payload.Payload) error {
	if err := c.Destination.ProcessPayload(ctx, p); err != nil {
		return err
	}
	c.sent.Add(1)
	c.metrics.RecordSent(c.Name(), p.Kind())
	return nil
}

// Sent returns the number of payloads delivered through this instance.
func (c *Counted) Sent() int64 { return c.sent.Load() }

func setting(settings map[string]string, key, def string) string {
	if v, ok := settings[key]; ok && v != "" {
		return v
	}
	return def
}

func intSetting(settings map[string]string, key string, def int) (int, error) {
	v, ok := settings[key]
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}
