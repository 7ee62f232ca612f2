package metric

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordSent(t *testing.T) {
	m := New()
	m.RecordSent("bus", "shopitem")
	m.RecordSent("bus", "shopitem")
	m.RecordSent("console", "feedinfo")

	if got := testutil.ToFloat64(m.PayloadsSent.WithLabelValues("bus", "shopitem")); got != 2 {
		t.Errorf("bus/shopitem = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.PayloadsSent.WithLabelValues("console", "feedinfo")); got != 1 {
		t.Errorf("console/feedinfo = %v, want 1", got)
	}
}

func TestFlightGauge(t *testing.T) {
	m := New()
	m.FlightStarted("like", "zappos")
	if got := testutil.ToFloat64(m.FlightsInAir.WithLabelValues("like", "zappos")); got != 1 {
		t.Fatalf("in_air = %v, want 1", got)
	}
	m.FlightEnded("like", "zappos", "landed", 3*time.Second)
	if got := testutil.ToFloat64(m.FlightsInAir.WithLabelValues("like", "zappos")); got != 0 {
		t.Errorf("in_air = %v, want 0", got)
	}
	if got := testutil.ToFloat64(m.FlightsTotal.WithLabelValues("like", "zappos", "landed")); got != 1 {
		t.Errorf("landed = %v, want 1", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordSent("bus", "shopitem")
	m.RecordSkipped("like", "zappos", "adapter")
	m.RecordFetchError("like", "zappos")
	m.FlightStarted("like", "zappos")
	m.FlightEnded("like", "zappos", "failed", time.Second)
}

func TestHandler(t *testing.T) {
	m := New()
	m.RecordSent("bus", "shopitem")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	if !strings.Contains(body, `aeroport_payloads_sent_total{destination="bus",kind="shopitem"} 1`) {
		t.Errorf("metrics output missing counter:\n%s", body)
	}
}
