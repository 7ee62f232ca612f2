package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"aeroport/internal/airline"
	"aeroport/internal/config"
)

// Deps are the services behind the routes.
type Deps struct {
	Flights  FlightLister
	Launcher Launcher
	Registry *airline.Registry
	Settings *config.Settings
	Metrics  http.Handler
	Log      *slog.Logger
}

// NewMux registers every route. Launched runs execute under base.
func NewMux(base context.Context, d Deps) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("GET /api/flights", NewFlightsHandler(d.Flights, d.Log))
	mux.Handle("POST /api/flights", NewLaunchHandler(base, d.Launcher, d.Log))
	mux.Handle("GET /api/airlines", NewAirlinesHandler(d.Registry, d.Settings, d.Log))
	mux.Handle("GET /api/destinations", NewDestinationsHandler(d.Settings, d.Log))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok"))
	})
	if d.Metrics != nil {
		mux.Handle("GET /metrics", d.Metrics)
	}
	return mux
}

// NewServer returns a server for the admin API on addr.
func NewServer(base context.Context, addr string, d Deps) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           NewMux(base, d),
		ReadHeaderTimeout: 5 * time.Second,
	}
}
