// Package flight tracks the lifecycle and progress of a single origin run and
// checkpoints it to the flight store.
package flight

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"aeroport/internal/model"
)

// DefaultCheckpointEvery is how many processed items may pass between
// persisted checkpoints.
const DefaultCheckpointEvery = 10

// Sentinel errors for flight state changes.
var (
	ErrInvalidTransition = errors.New("invalid flight status transition")
	ErrCounterRegression = errors.New("processed counter cannot decrease")
)

// Store persists flight records.
type Store interface {
	GetOrCreateFlight(ctx context.Context, f *model.Flight) error
	UpdateFlight(ctx context.Context, f *model.Flight) error
}

// Flight is the in-memory state of one run.
type Flight struct {
	mu            sync.Mutex
	rec           model.Flight
	store         Store
	every         int64
	lastPersisted int64
	created       bool
	now           func() time.Time
}

// Option configures a Flight.
type Option func(*Flight)

// WithCheckpointEvery sets the checkpoint cadence. Values below 1 are ignored.
func WithCheckpointEvery(n int) Option {
	return func(f *Flight) {
		if n >= 1 {
			f.every = int64(n)
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(f *Flight) { f.now = now }
}

// New creates a flight in the new state with a random UUID.
func New(airline, origin string, store Store, opts ...Option) *Flight {
	f := &Flight{
		rec: model.Flight{
			UUID:    uuid.NewString(),
			Airline: airline,
			Origin:  origin,
			Status:  model.FlightNew,
		},
		store: store,
		every: DefaultCheckpointEvery,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// UUID returns the flight identifier.
func (f *Flight) UUID() string { return f.rec.UUID }

// Record returns a copy of the current state.
func (f *Flight) Record() model.Flight {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rec
}

// Start moves the flight in the air and persists it.
func (f *Flight) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.rec.Status != model.FlightNew {
		return fmt.Errorf("start from %s: %w", f.rec.Status, ErrInvalidTransition)
	}
	now := f.now()
	f.rec.StartedAt = &now
	f.rec.Status = model.FlightInAir
	return f.persist(ctx)
}

// SetNumProcessed records progress. The store is updated once the counter
// has advanced by at least the checkpoint cadence since the last save.
func (f *Flight) SetNumProcessed(ctx context.Context, n int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.rec.Status != model.FlightInAir {
		return fmt.Errorf("progress while %s: %w", f.rec.Status, ErrInvalidTransition)
	}
	if n < f.rec.NumProcessed {
		return fmt.Errorf("set %d after %d: %w", n, f.rec.NumProcessed, ErrCounterRegression)
	}
	f.rec.NumProcessed = n
	if n-f.lastPersisted >= f.every {
		return f.persist(ctx)
	}
	return nil
}

// Finish lands the flight with the current counter.
func (f *Flight) Finish(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.finish(ctx)
}

// FinishWithTotal lands the flight with an explicit final counter.
func (f *Flight) FinishWithTotal(ctx context.Context, total int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.rec.Status != model.FlightInAir {
		return fmt.Errorf("finish from %s: %w", f.rec.Status, ErrInvalidTransition)
	}
	if total < f.rec.NumProcessed {
		return fmt.Errorf("finish with %d after %d: %w", total, f.rec.NumProcessed, ErrCounterRegression)
	}
	f.rec.NumProcessed = total
	return f.finish(ctx)
}

func (f *Flight) finish(ctx context.Context) error {
	if f.rec.Status != model.FlightInAir {
		return fmt.Errorf("finish from %s: %w", f.rec.Status, ErrInvalidTransition)
	}
	now := f.now()
	if f.rec.StartedAt != nil && now.Before(*f.rec.StartedAt) {
		now = *f.rec.StartedAt
	}
	f.rec.FinishedAt = &now
	f.rec.Status = model.FlightLanded
	return f.persist(ctx)
}

func (f *Flight) persist(ctx context.Context) error {
	rec := f.rec
	if !f.created {
		if err := f.store.GetOrCreateFlight(ctx, &rec); err != nil {
			return fmt.Errorf("create flight record: %w", err)
		}
		f.created = true
		rec = f.rec
	}
	if err := f.store.UpdateFlight(ctx, &rec); err != nil {
		return fmt.Errorf("update flight record: %w", err)
	}
	f.lastPersisted = f.rec.NumProcessed
	return nil
}
