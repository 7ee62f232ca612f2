package objstore

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Sentinel errors for IOPool lifecycle.
var (
	ErrPoolNotStarted     = errors.New("io pool not started")
	ErrPoolStopped        = errors.New("io pool stopped")
	ErrPoolAlreadyStarted = errors.New("io pool already started")
	ErrStopTimeout        = errors.New("timeout waiting for io workers to stop")
)

// IOPool runs blocking file operations on a fixed set of goroutines so that
// disk work never competes with network-bound pipeline goroutines for more
// than workers threads.
type IOPool struct {
	workers int
	jobs    chan ioJob
	quit    chan struct{}
	wg      sync.WaitGroup

	lifecycleMu sync.RWMutex
	started     bool
	stopped     bool

	processed int64
	failed    int64

	queueDepth prometheus.Gauge
	duration   *prometheus.HistogramVec
}

type ioJob struct {
	fn   func() error
	done chan error
}

// PoolOption configures an IOPool.
type PoolOption func(*IOPool)

// WithPoolMetrics registers queue depth and duration metrics on reg.
func WithPoolMetrics(reg prometheus.Registerer) PoolOption {
	return func(p *IOPool) {
		p.queueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "aeroport",
			Subsystem: "storage_pool",
			Name:      "queue_depth",
			Help:      "Pending storage I/O operations",
		})
		p.duration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "aeroport",
			Subsystem: "storage_pool",
			Name:      "operation_duration_seconds",
			Help:      "Time spent in storage I/O operations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"})
		reg.MustRegister(p.queueDepth, p.duration)
	}
}

// NewIOPool creates a pool with the given number of workers and queue size.
func NewIOPool(workers, queueSize int, opts ...PoolOption) *IOPool {
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	p := &IOPool{
		workers: workers,
		jobs:    make(chan ioJob, queueSize),
		quit:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the workers.
func (p *IOPool) Start() error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if p.started {
		return ErrPoolAlreadyStarted
	}
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	p.started = true
	return nil
}

// Stop rejects new work, lets queued work finish and waits up to timeout.
func (p *IOPool) Stop(timeout time.Duration) error {
	p.lifecycleMu.Lock()
	if !p.started || p.stopped {
		p.lifecycleMu.Unlock()
		return nil
	}
	p.stopped = true
	close(p.quit)
	close(p.jobs)
	p.lifecycleMu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return nil
	case <-timer.C:
		return ErrStopTimeout
	}
}

// Do runs fn on a pool worker and waits for its result.
func (p *IOPool) Do(ctx context.Context, fn func() error) error {
	j := ioJob{fn: fn, done: make(chan error, 1)}

	if err := p.submit(ctx, j); err != nil {
		return err
	}

	select {
	case err := <-j.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *IOPool) submit(ctx context.Context, j ioJob) error {
	p.lifecycleMu.RLock()
	defer p.lifecycleMu.RUnlock()

	if !p.started {
		return ErrPoolNotStarted
	}
	if p.stopped {
		return ErrPoolStopped
	}

	select {
	case p.jobs <- j:
		if p.queueDepth != nil {
			p.queueDepth.Set(float64(len(p.jobs)))
		}
		return nil
	case <-p.quit:
		return ErrPoolStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns the number of processed and failed operations.
func (p *IOPool) Stats() (processed, failed int64) {
	return atomic.LoadInt64(&p.processed), atomic.LoadInt64(&p.failed)
}

func (p *IOPool) worker() {
	defer p.wg.Done()

	for j := range p.jobs {
		start := time.Now()
		err := j.fn()
		j.done <- err

		atomic.AddInt64(&p.processed, 1)
		status := "success"
		if err != nil {
			atomic.AddInt64(&p.failed, 1)
			status = "error"
		}
		if p.duration != nil {
			p.duration.WithLabelValues(status).Observe(time.Since(start).Seconds())
			p.queueDepth.Set(float64(len(p.jobs)))
		}
	}
}
