package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"aeroport/internal/model"
)

var ignoreTimestamps = cmpopts.IgnoreFields(model.Flight{}, "StartedAt", "FinishedAt")

func newTestDB(t *testing.T) *SQLite {
	t.Helper()
	s, err := NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func ptr(t time.Time) *time.Time { return &t }

func TestGetOrCreateFlight(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	f := model.Flight{UUID: "f-1", Airline: "like", Origin: "zappos"}
	if err := s.GetOrCreateFlight(ctx, &f); err != nil {
		t.Fatalf("create: %v", err)
	}
	want := model.Flight{UUID: "f-1", Airline: "like", Origin: "zappos", Status: model.FlightNew}
	if diff := cmp.Diff(want, f); diff != "" {
		t.Errorf("created flight mismatch (-want +got):\n%s", diff)
	}

	started := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	f.Status = model.FlightInAir
	f.StartedAt = &started
	f.NumProcessed = 10
	if err := s.UpdateFlight(ctx, &f); err != nil {
		t.Fatalf("update: %v", err)
	}

	again := model.Flight{UUID: "f-1", Airline: "like", Origin: "zappos"}
	if err := s.GetOrCreateFlight(ctx, &again); err != nil {
		t.Fatalf("get existing: %v", err)
	}
	want = model.Flight{
		UUID: "f-1", Airline: "like", Origin: "zappos",
		Status: model.FlightInAir, StartedAt: &started, NumProcessed: 10,
	}
	if diff := cmp.Diff(want, again); diff != "" {
		t.Errorf("existing flight mismatch (-want +got):\n%s", diff)
	}
}

func TestUpdateFlightNotFound(t *testing.T) {
	s := newTestDB(t)
	err := s.UpdateFlight(context.Background(), &model.Flight{UUID: "missing", Status: model.FlightLanded})
	if !errors.Is(err, ErrFlightNotFound) {
		t.Fatalf("expected ErrFlightNotFound, got %v", err)
	}
	_, err = s.GetFlight(context.Background(), "missing")
	if !errors.Is(err, ErrFlightNotFound) {
		t.Fatalf("expected ErrFlightNotFound, got %v", err)
	}
}

func TestListFlights(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	flights := []model.Flight{
		{UUID: "a", Airline: "like", Origin: "zappos", Status: model.FlightLanded, StartedAt: ptr(base), FinishedAt: ptr(base.Add(time.Minute)), NumProcessed: 5},
		{UUID: "b", Airline: "like", Origin: "ebags", Status: model.FlightInAir, StartedAt: ptr(base.Add(time.Hour)), NumProcessed: 20},
		{UUID: "c", Airline: "like", Origin: "feeds", Status: model.FlightNew},
	}
	for i := range flights {
		f := flights[i]
		if err := s.GetOrCreateFlight(ctx, &f); err != nil {
			t.Fatalf("create %s: %v", f.UUID, err)
		}
	}

	got, err := s.ListFlights(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var ids []string
	for _, f := range got {
		ids = append(ids, f.UUID)
	}
	if diff := cmp.Diff([]string{"b", "a", "c"}, ids); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(flights[1], got[0], ignoreTimestamps); diff != "" {
		t.Errorf("flight mismatch (-want +got):\n%s", diff)
	}

	limited, err := s.ListFlights(ctx, 1)
	if err != nil {
		t.Fatalf("list limited: %v", err)
	}
	if diff := cmp.Diff(1, len(limited)); diff != "" {
		t.Errorf("limit mismatch (-want +got):\n%s", diff)
	}
}

func TestListStuckFlights(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)
	now := time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC)

	for _, f := range []model.Flight{
		{UUID: "old-air", Status: model.FlightInAir, StartedAt: ptr(now.Add(-5 * time.Hour))},
		{UUID: "new-air", Status: model.FlightInAir, StartedAt: ptr(now.Add(-10 * time.Minute))},
		{UUID: "old-landed", Status: model.FlightLanded, StartedAt: ptr(now.Add(-6 * time.Hour)), FinishedAt: ptr(now.Add(-5 * time.Hour))},
	} {
		f.Airline, f.Origin = "like", "feeds"
		if err := s.GetOrCreateFlight(ctx, &f); err != nil {
			t.Fatalf("create %s: %v", f.UUID, err)
		}
	}

	got, err := s.ListStuckFlights(ctx, now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("list stuck: %v", err)
	}
	var ids []string
	for _, f := range got {
		ids = append(ids, f.UUID)
	}
	if diff := cmp.Diff([]string{"old-air"}, ids); diff != "" {
		t.Errorf("stuck flights mismatch (-want +got):\n%s", diff)
	}
}
