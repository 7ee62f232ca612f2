package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"aeroport/internal/airline"
	"aeroport/internal/config"
	"aeroport/internal/model"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type mockFlights struct {
	flights []model.Flight
	limit   int
	err     error
}

func (m *mockFlights) ListFlights(_ context.Context, limit int) ([]model.Flight, error) {
	m.limit = limit
	if m.err != nil {
		return nil, m.err
	}
	return m.flights[:min(limit, len(m.flights))], nil
}

type launch struct {
	Airline, Origin, Destination string
}

type mockLauncher struct {
	got []launch
	err error
	ctx context.Context
}

func (m *mockLauncher) Launch(ctx context.Context, a, o, d string) (string, error) {
	m.ctx = ctx
	m.got = append(m.got, launch{a, o, d})
	if m.err != nil {
		return "", m.err
	}
	return "0b7c9f52-3d1e-4b55-9a51-2f0c7d1c9e01", nil
}

func newTestMux(flights *mockFlights, l *mockLauncher) *http.ServeMux {
	reg := airline.NewRegistry(airline.New("like", "Like That Bag",
		airline.OriginSpec{Name: "zappos", Title: "Zappos"},
		airline.OriginSpec{Name: "ebags", Title: "eBags", DefaultDestination: "stream"},
	))
	disabled := false
	settings := &config.Settings{
		Destinations: map[string]config.DestinationSettings{
			"stream": {Backend: "redis", Enabled: &disabled, Settings: map[string]string{"password": "secret"}},
		},
		Airlines: map[string]config.AirlineSettings{
			"like": {Enabled: true, Origins: map[string]config.OriginSettings{"ebags": {Enabled: &disabled}}},
		},
	}
	settings.SetDefaults()
	return NewMux(context.Background(), Deps{
		Flights:  flights,
		Launcher: l,
		Registry: reg,
		Settings: settings,
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprintln(w, "aeroport_flights_in_air 0")
		}),
		Log: discard,
	})
}

func TestListFlights(t *testing.T) {
	started := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)
	flights := &mockFlights{}
	for i := range 60 {
		flights.flights = append(flights.flights, model.Flight{
			UUID: fmt.Sprintf("f-%02d", i), Airline: "like", Origin: "zappos",
			Status: model.FlightLanded, StartedAt: &started, FinishedAt: &started, NumProcessed: int64(i),
		})
	}
	mux := newTestMux(flights, &mockLauncher{})

	tests := []struct {
		name      string
		query     string
		wantCode  int
		wantLimit int
		wantLen   int
	}{
		{name: "default limit", query: "", wantCode: http.StatusOK, wantLimit: 50, wantLen: 50},
		{name: "explicit limit", query: "?limit=5", wantCode: http.StatusOK, wantLimit: 5, wantLen: 5},
		{name: "capped limit", query: "?limit=10000", wantCode: http.StatusOK, wantLimit: MaxListLimit, wantLen: 60},
		{name: "bad limit", query: "?limit=abc", wantCode: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flights.limit = 0
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/flights"+tt.query, nil))

			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if tt.wantCode != http.StatusOK {
				return
			}
			if flights.limit != tt.wantLimit {
				t.Errorf("limit = %d, want %d", flights.limit, tt.wantLimit)
			}
			var got []flightView
			if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if len(got) != tt.wantLen {
				t.Errorf("len = %d, want %d", len(got), tt.wantLen)
			}
			if got[0].Status != "landed" || got[0].UUID != "f-00" {
				t.Errorf("first flight = %+v", got[0])
			}
		})
	}
}

func TestListFlightsStoreError(t *testing.T) {
	mux := newTestMux(&mockFlights{err: errors.New("db locked")}, &mockLauncher{})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/flights", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestLaunchFlight(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		launchErr   error
		wantCode    int
		wantLaunch  []launch
	}{
		{
			name:        "json body",
			contentType: "application/json",
			body:        `{"airline":"like","origin":"zappos","destination":"bus"}`,
			wantCode:    http.StatusAccepted,
			wantLaunch:  []launch{{"like", "zappos", "bus"}},
		},
		{
			name:        "form body",
			contentType: "application/x-www-form-urlencoded",
			body:        url.Values{"airline": {"like"}, "origin": {"ebags"}}.Encode(),
			wantCode:    http.StatusAccepted,
			wantLaunch:  []launch{{"like", "ebags", ""}},
		},
		{
			name:        "missing origin",
			contentType: "application/json",
			body:        `{"airline":"like"}`,
			wantCode:    http.StatusBadRequest,
		},
		{
			name:        "malformed json",
			contentType: "application/json",
			body:        `{"airline":`,
			wantCode:    http.StatusBadRequest,
		},
		{
			name:        "rejected before start",
			contentType: "application/json",
			body:        `{"airline":"like","origin":"amazon"}`,
			launchErr:   fmt.Errorf("%w: unknown origin", airline.ErrProcessing),
			wantCode:    http.StatusBadRequest,
			wantLaunch:  []launch{{"like", "amazon", ""}},
		},
		{
			name:        "store failure",
			contentType: "application/json",
			body:        `{"airline":"like","origin":"zappos"}`,
			launchErr:   errors.New("disk full"),
			wantCode:    http.StatusInternalServerError,
			wantLaunch:  []launch{{"like", "zappos", ""}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := &mockLauncher{err: tt.launchErr}
			mux := newTestMux(&mockFlights{}, l)
			req := httptest.NewRequest(http.MethodPost, "/api/flights", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", tt.contentType)
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.wantCode, rec.Body)
			}
			if diff := cmp.Diff(tt.wantLaunch, l.got); diff != "" {
				t.Errorf("launches mismatch (-want +got):\n%s", diff)
			}
			if tt.wantCode == http.StatusAccepted {
				var resp map[string]string
				if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
					t.Fatalf("decode: %v", err)
				}
				if resp["uuid"] == "" {
					t.Error("response has no flight uuid")
				}
				if l.ctx.Err() != nil {
					t.Error("run context must not end with the request")
				}
			}
		})
	}
}

func TestListAirlinesAndDestinations(t *testing.T) {
	mux := newTestMux(&mockFlights{}, &mockLauncher{})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/airlines", nil))
	var airlines []airlineView
	if err := json.NewDecoder(rec.Body).Decode(&airlines); err != nil {
		t.Fatalf("decode airlines: %v", err)
	}
	wantAirlines := []airlineView{{
		Name: "like", Title: "Like That Bag", Enabled: true,
		Origins: []originView{
			{Name: "ebags", Title: "eBags", Enabled: false, DefaultDestination: "stream"},
			{Name: "zappos", Title: "Zappos", Enabled: true},
		},
	}}
	if diff := cmp.Diff(wantAirlines, airlines); diff != "" {
		t.Errorf("airlines mismatch (-want +got):\n%s", diff)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/destinations", nil))
	if strings.Contains(rec.Body.String(), "secret") {
		t.Error("destination settings leaked")
	}
	var dests []destinationView
	if err := json.NewDecoder(rec.Body).Decode(&dests); err != nil {
		t.Fatalf("decode destinations: %v", err)
	}
	wantDests := []destinationView{
		{Name: "console", Backend: "console", Enabled: true, Default: true},
		{Name: "stream", Backend: "redis", Enabled: false},
	}
	if diff := cmp.Diff(wantDests, dests); diff != "" {
		t.Errorf("destinations mismatch (-want +got):\n%s", diff)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	mux := newTestMux(&mockFlights{}, &mockLauncher{})
	tests := []struct {
		path, want string
	}{
		{"/healthz", "ok"},
		{"/metrics", "aeroport_flights_in_air 0\n"},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("%s: status = %d", tt.path, rec.Code)
		}
		if diff := cmp.Diff(tt.want, rec.Body.String()); diff != "" {
			t.Errorf("%s body mismatch (-want +got):\n%s", tt.path, diff)
		}
	}
}
