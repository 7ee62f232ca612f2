package scheduler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"aeroport/internal/airline"
	"aeroport/internal/config"
	"aeroport/internal/model"
)

type call struct {
	Airline, Origin, Destination string
}

type mockProcessor struct {
	mu      sync.Mutex
	calls   []call
	err     error
	started chan struct{}
	release chan struct{}
}

func (m *mockProcessor) ProcessOrigin(ctx context.Context, a, o, d string) (model.Flight, error) {
	m.mu.Lock()
	m.calls = append(m.calls, call{a, o, d})
	m.mu.Unlock()
	if m.started != nil {
		select {
		case m.started <- struct{}{}:
		default:
		}
	}
	if m.release != nil {
		select {
		case <-m.release:
		case <-ctx.Done():
		}
	}
	return model.Flight{UUID: "f-1", NumProcessed: 3}, m.err
}

func (m *mockProcessor) getCalls() []call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]call(nil), m.calls...)
}

func TestJobs(t *testing.T) {
	s, err := config.ParseSettings([]byte(`
destinations:
  bus:
    backend: nats
airlines:
  like:
    enabled: true
    schedule:
      zappos:
        - crontab: "0 */6 * * *"
      ebags:
        - crontab: "30 2 * * *"
          destination: bus
        - crontab: "0 12 * * 1"
  closed:
    schedule:
      shop:
        - crontab: "@hourly"
`))
	if err != nil {
		t.Fatalf("parse settings: %v", err)
	}

	want := []Job{
		{Airline: "like", Origin: "ebags", Crontab: "0 12 * * 1"},
		{Airline: "like", Origin: "ebags", Destination: "bus", Crontab: "30 2 * * *"},
		{Airline: "like", Origin: "zappos", Crontab: "0 */6 * * *"},
	}
	if diff := cmp.Diff(want, Jobs(s)); diff != "" {
		t.Errorf("jobs mismatch (-want +got):\n%s", diff)
	}
}

func TestNewRejectsBadCrontab(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	_, err := New(&mockProcessor{}, []Job{{Airline: "like", Origin: "zappos", Crontab: "every hour"}}, log)
	if err == nil || !strings.Contains(err.Error(), "like/zappos") {
		t.Errorf("expected schedule error naming the job, got %v", err)
	}
}

func TestRunJobLogsOutcome(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantLog string
	}{
		{name: "landed", wantLog: "scheduled run done"},
		{name: "rejected", err: fmt.Errorf("%w: origin disabled", airline.ErrProcessing), wantLog: "level=WARN msg=\"scheduled run rejected\""},
		{name: "failed", err: errors.New("boom"), wantLog: "level=ERROR msg=\"scheduled run failed\""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			log := slog.New(slog.NewTextHandler(&buf, nil))
			proc := &mockProcessor{err: tt.err}
			s, err := New(proc, nil, log)
			if err != nil {
				t.Fatalf("new: %v", err)
			}

			s.RunJob(context.Background(), Job{Airline: "like", Origin: "zappos", Destination: "bus", Crontab: "@daily"})

			if diff := cmp.Diff([]call{{"like", "zappos", "bus"}}, proc.getCalls()); diff != "" {
				t.Errorf("calls mismatch (-want +got):\n%s", diff)
			}
			if !strings.Contains(buf.String(), tt.wantLog) {
				t.Errorf("log %q does not contain %q", buf.String(), tt.wantLog)
			}
		})
	}
}

func TestRunSkipsOverlappingTicks(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	proc := &mockProcessor{started: make(chan struct{}, 1), release: make(chan struct{})}
	s, err := New(proc, []Job{{Airline: "like", Origin: "zappos", Crontab: "@every 1s"}}, log)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	select {
	case <-proc.started:
	case <-time.After(3 * time.Second):
		t.Fatal("job did not fire")
	}
	// Let at least one more tick pass while the first run blocks.
	time.Sleep(1500 * time.Millisecond)
	if got := len(proc.getCalls()); got != 1 {
		t.Errorf("calls while running = %d, want 1", got)
	}

	close(proc.release)
	cancel()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
}
