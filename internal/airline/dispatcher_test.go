package airline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"aeroport/internal/config"
	"aeroport/internal/destination"
	"aeroport/internal/metric"
	"aeroport/internal/model"
	"aeroport/internal/payload"
	"aeroport/internal/storage"
)

var itemSchema = payload.NewSchema("shopitem", "original_id", "title")

type fakeDestination struct {
	name       string
	prepared   int
	released   int
	titles     []string
	releaseErr error
}

func (f *fakeDestination) Name() string { return f.name }
func (f *fakeDestination) Prepare(context.Context) error { f.prepared++; return nil }
func (f *fakeDestination) Release(context.Context) error { f.released++; return f.releaseErr }
func (f *fakeDestination) ProcessPayload(_ context.Context, p *payload.Payload) error {
	f.titles = append(f.titles, p.String("title"))
	return nil
}

type fakeOrigin struct {
	env    Env
	titles []string
	err    error
}

func (o *fakeOrigin) Process(ctx context.Context) error {
	for i, title := range o.titles {
		p := itemSchema.New()
		p.MustSet("original_id", string(rune('a'+i)))
		p.MustSet("title", title)
		if _, err := o.env.Sink.Emit(ctx, p); err != nil {
			return err
		}
	}
	return o.err
}

type fixture struct {
	dispatcher *Dispatcher
	store      *storage.SQLite
	dests      map[string]*fakeDestination
	metrics    *metric.Metrics
	releaseErr error
}

func newFixture(t *testing.T, titles []string, processErr error) *fixture {
	t.Helper()
	store, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	f := &fixture{store: store, dests: map[string]*fakeDestination{}, metrics: metric.New()}
	dreg := destination.NewRegistry()
	dreg.Register("fake", func(name string, _ map[string]string, _ destination.Deps) (destination.Destination, error) {
		d := &fakeDestination{name: name, releaseErr: f.releaseErr}
		f.dests[name] = d
		return d, nil
	})

	newOrigin := func(env Env) (Origin, error) {
		return &fakeOrigin{env: env, titles: titles, err: processErr}, nil
	}
	reg := NewRegistry(New("like", "Like That Bag",
		OriginSpec{Name: "zappos", New: newOrigin},
		OriginSpec{Name: "ebags", DefaultDestination: "stream", New: newOrigin},
		OriginSpec{Name: "6pm", New: newOrigin},
	), New("closed", "Closed"))

	disabled := false
	settings := &config.Settings{
		Destinations: map[string]config.DestinationSettings{
			"console": {Backend: "fake"},
			"stream":  {Backend: "fake"},
			"off":     {Backend: "fake", Enabled: &disabled},
		},
		Airlines: map[string]config.AirlineSettings{
			"like": {
				Enabled: true,
				Origins: map[string]config.OriginSettings{
					"zappos": {Filters: []model.Filter{{Kind: model.FilterExclude, Value: "kids"}}},
					"6pm":    {Enabled: &disabled},
				},
			},
		},
	}
	settings.SetDefaults()

	f.dispatcher = NewDispatcher(DispatcherConfig{
		Registry:     reg,
		Settings:     settings,
		Destinations: dreg,
		Store:        store,
		Log:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		Metrics:      f.metrics,
	})
	return f
}

func TestPrepareRejects(t *testing.T) {
	f := newFixture(t, nil, nil)
	tests := []struct {
		name, airline, origin, dest string
	}{
		{name: "unknown airline", airline: "nope", origin: "zappos"},
		{name: "airline not enabled", airline: "closed", origin: "zappos"},
		{name: "unknown origin", airline: "like", origin: "amazon"},
		{name: "disabled origin", airline: "like", origin: "6pm"},
		{name: "unknown destination", airline: "like", origin: "zappos", dest: "kafka"},
		{name: "disabled destination", airline: "like", origin: "zappos", dest: "off"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.dispatcher.Prepare(tt.airline, tt.origin, tt.dest)
			if !errors.Is(err, ErrProcessing) {
				t.Fatalf("expected ErrProcessing, got %v", err)
			}
		})
	}
}

func TestPrepareDestinationPrecedence(t *testing.T) {
	f := newFixture(t, nil, nil)
	tests := []struct {
		origin, explicit, want string
	}{
		{"zappos", "", "console"},
		{"ebags", "", "stream"},
		{"ebags", "console", "console"},
	}
	for _, tt := range tests {
		run, err := f.dispatcher.Prepare("like", tt.origin, tt.explicit)
		if err != nil {
			t.Fatalf("prepare %s: %v", tt.origin, err)
		}
		if got := run.Destination(); got != tt.want {
			t.Errorf("%s/%q: destination = %q, want %q", tt.origin, tt.explicit, got, tt.want)
		}
	}
}

func TestProcessOriginLands(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, []string{"Tote", "Kids backpack", "Duffel"}, nil)

	rec, err := f.dispatcher.ProcessOrigin(ctx, "like", "zappos", "")
	if err != nil {
		t.Fatalf("process: %v", err)
	}

	dest := f.dests["console"]
	if diff := cmp.Diff([]string{"Tote", "Duffel"}, dest.titles); diff != "" {
		t.Errorf("sent mismatch (-want +got):\n%s", diff)
	}
	if dest.prepared != 1 || dest.released != 1 {
		t.Errorf("prepared %d released %d, want 1/1", dest.prepared, dest.released)
	}

	stored, err := f.store.GetFlight(ctx, rec.UUID)
	if err != nil {
		t.Fatalf("get flight: %v", err)
	}
	if diff := cmp.Diff(model.FlightLanded, stored.Status); diff != "" {
		t.Errorf("status mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(int64(2), stored.NumProcessed); diff != "" {
		t.Errorf("num_processed mismatch (-want +got):\n%s", diff)
	}

	if got := testutil.ToFloat64(f.metrics.FlightsTotal.WithLabelValues("like", "zappos", "landed")); got != 1 {
		t.Errorf("flights landed = %v, want 1", got)
	}
	if got := testutil.ToFloat64(f.metrics.ItemsSkipped.WithLabelValues("like", "zappos", "filtered")); got != 1 {
		t.Errorf("items filtered = %v, want 1", got)
	}
	if got := testutil.ToFloat64(f.metrics.FlightsInAir.WithLabelValues("like", "zappos")); got != 0 {
		t.Errorf("flights in air = %v, want 0", got)
	}
}

func TestProcessOriginFailureLeavesFlightInAir(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("site changed")
	f := newFixture(t, []string{"Tote"}, boom)

	rec, err := f.dispatcher.ProcessOrigin(ctx, "like", "ebags", "")
	if !errors.Is(err, boom) {
		t.Fatalf("expected origin error, got %v", err)
	}
	if f.dests["stream"].released != 1 {
		t.Error("destination not released after failure")
	}

	stored, err := f.store.GetFlight(ctx, rec.UUID)
	if err != nil {
		t.Fatalf("get flight: %v", err)
	}
	if diff := cmp.Diff(model.FlightInAir, stored.Status); diff != "" {
		t.Errorf("status mismatch (-want +got):\n%s", diff)
	}
	if stored.FinishedAt != nil {
		t.Error("failed flight must not have finished_at")
	}
}

func TestProcessOriginReleaseFailureLeavesFlightInAir(t *testing.T) {
	ctx := context.Background()
	flushErr := errors.New("flush failed: connection reset")
	f := newFixture(t, []string{"Tote", "Duffel"}, nil)
	f.releaseErr = flushErr

	rec, err := f.dispatcher.ProcessOrigin(ctx, "like", "zappos", "")
	if !errors.Is(err, flushErr) {
		t.Fatalf("expected release error, got %v", err)
	}
	if got := f.dests["console"].released; got != 1 {
		t.Errorf("released %d times, want 1", got)
	}

	stored, err := f.store.GetFlight(ctx, rec.UUID)
	if err != nil {
		t.Fatalf("get flight: %v", err)
	}
	if diff := cmp.Diff(model.FlightInAir, stored.Status); diff != "" {
		t.Errorf("status mismatch (-want +got):\n%s", diff)
	}
	if stored.FinishedAt != nil {
		t.Error("unreleased flight must not have finished_at")
	}
	if got := testutil.ToFloat64(f.metrics.FlightsTotal.WithLabelValues("like", "zappos", "landed")); got != 0 {
		t.Errorf("flights landed = %v, want 0", got)
	}
}

func TestRegistryListing(t *testing.T) {
	f := newFixture(t, nil, nil)
	var names []string
	for _, a := range f.dispatcher.Registry().Airlines() {
		for _, o := range a.Origins() {
			names = append(names, a.Name+"/"+o.Name)
		}
	}
	if diff := cmp.Diff([]string{"like/6pm", "like/ebags", "like/zappos"}, names); diff != "" {
		t.Errorf("listing mismatch (-want +got):\n%s", diff)
	}
}
