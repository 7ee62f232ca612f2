// Package pipeline is the tail shared by every origin driver: filter, send to
// the destination, count and checkpoint.
package pipeline

import (
	"context"
	"fmt"

	"aeroport/internal/filter"
	"aeroport/internal/metric"
	"aeroport/internal/payload"
)

// Sender delivers a payload.
type Sender interface {
	ProcessPayload(ctx context.Context, p *payload.Payload) error
}

// Progress receives the running count of dispatched items.
type Progress interface {
	SetNumProcessed(ctx context.Context, n int64) error
}

// Sink dispatches payloads of one run in order. It is not safe for
// concurrent use; a run dispatches from a single goroutine.
type Sink struct {
	dest     Sender
	progress Progress
	rules    *filter.Rules
	metrics  *metric.Metrics
	airline  string
	origin   string
	count    int64
}

// Option configures a Sink.
type Option func(*Sink)

// WithFilter drops item payloads that do not pass rules.
func WithFilter(rules *filter.Rules) Option {
	return func(s *Sink) { s.rules = rules }
}

// WithMetrics records filtered items under the airline and origin labels.
func WithMetrics(m *metric.Metrics, airline, origin string) Option {
	return func(s *Sink) {
		s.metrics = m
		s.airline = airline
		s.origin = origin
	}
}

// NewSink returns a sink sending to dest and reporting progress.
func NewSink(dest Sender, progress Progress, opts ...Option) *Sink {
	s := &Sink{dest: dest, progress: progress}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Emit filters and dispatches an item payload. Only dispatched items are
// counted. A nil payload is ignored.
func (s *Sink) Emit(ctx context.Context, p *payload.Payload) (bool, error) {
	if p == nil {
		return false, nil
	}
	if !s.rules.MatchPayload(p) {
		s.metrics.RecordSkipped(s.airline, s.origin, "filtered")
		return false, nil
	}
	if err := s.dest.ProcessPayload(ctx, p); err != nil {
		return false, fmt.Errorf("send %s: %w", p.Kind(), err)
	}
	s.count++
	if s.progress != nil {
		if err := s.progress.SetNumProcessed(ctx, s.count); err != nil {
			return true, fmt.Errorf("checkpoint: %w", err)
		}
	}
	return true, nil
}

// EmitSummary dispatches a summary payload without filtering or counting.
func (s *Sink) EmitSummary(ctx context.Context, p *payload.Payload) error {
	if err := s.dest.ProcessPayload(ctx, p); err != nil {
		return fmt.Errorf("send %s: %w", p.Kind(), err)
	}
	return nil
}

// Count returns the number of dispatched item payloads.
func (s *Sink) Count() int64 { return s.count }
