// Package metric holds the Prometheus collectors shared by pipeline components.
package metric

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains all pipeline metrics. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	registry *prometheus.Registry

	PayloadsSent   *prometheus.CounterVec
	ItemsSkipped   *prometheus.CounterVec
	FetchErrors    *prometheus.CounterVec
	FlightsTotal   *prometheus.CounterVec
	FlightDuration *prometheus.HistogramVec
	FlightsInAir   *prometheus.GaugeVec
}

// New creates the collectors and registers them, plus Go and process
// collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		PayloadsSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "aeroport",
				Name:      "payloads_sent_total",
				Help:      "Payloads delivered to a destination",
			},
			[]string{"destination", "kind"},
		),

		ItemsSkipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "aeroport",
				Name:      "items_skipped_total",
				Help:      "Raw items that produced no payload",
			},
			[]string{"airline", "origin", "reason"}, // reason: adapter, filtered, error
		),

		FetchErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "aeroport",
				Name:      "fetch_errors_total",
				Help:      "Pages or feed files that could not be fetched",
			},
			[]string{"airline", "origin"},
		),

		FlightsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "aeroport",
				Subsystem: "flights",
				Name:      "total",
				Help:      "Finished origin runs by outcome",
			},
			[]string{"airline", "origin", "status"}, // status: landed, failed
		),

		FlightDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "aeroport",
				Subsystem: "flights",
				Name:      "duration_seconds",
				Help:      "Duration of origin runs",
				Buckets:   []float64{1, 5, 15, 60, 300, 900, 1800, 3600, 7200},
			},
			[]string{"airline", "origin"},
		),

		FlightsInAir: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "aeroport",
				Subsystem: "flights",
				Name:      "in_air",
				Help:      "Origin runs currently in progress",
			},
			[]string{"airline", "origin"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.PayloadsSent,
		m.ItemsSkipped,
		m.FetchErrors,
		m.FlightsTotal,
		m.FlightDuration,
		m.FlightsInAir,
	)
	return m
}

// Registerer exposes the registry for collectors owned by other packages.
func (m *Metrics) Registerer() prometheus.Registerer {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordSent(destination, kind string) {
	if m == nil {
		return
	}
	m.PayloadsSent.WithLabelValues(destination, kind).Inc()
}

func (m *Metrics) RecordSkipped(airline, origin, reason string) {
	if m == nil {
		return
	}
	m.ItemsSkipped.WithLabelValues(airline, origin, reason).Inc()
}

func (m *Metrics) RecordFetchError(airline, origin string) {
	if m == nil {
		return
	}
	m.FetchErrors.WithLabelValues(airline, origin).Inc()
}

// FlightStarted marks a run in progress.
func (m *Metrics) FlightStarted(airline, origin string) {
	if m == nil {
		return
	}
	m.FlightsInAir.WithLabelValues(airline, origin).Inc()
}

// FlightEnded records the outcome and duration of a run.
func (m *Metrics) FlightEnded(airline, origin, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.FlightsInAir.WithLabelValues(airline, origin).Dec()
	m.FlightsTotal.WithLabelValues(airline, origin, status).Inc()
	m.FlightDuration.WithLabelValues(airline, origin).Observe(d.Seconds())
}
