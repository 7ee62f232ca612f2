// Package web serves the admin HTTP API: flights, airlines, destinations,
// health and metrics.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"time"

	"aeroport/internal/airline"
	"aeroport/internal/config"
	"aeroport/internal/model"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

type FlightLister interface {
	ListFlights(ctx context.Context, limit int) ([]model.Flight, error)
}

type Launcher interface {
	Launch(ctx context.Context, airline, origin, destination string) (string, error)
}

type flightView struct {
	UUID         string     `json:"uuid"`
	Airline      string     `json:"airline"`
	Origin       string     `json:"origin"`
	Status       string     `json:"status"`
	StartedAt    *time.Time `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at"`
	NumProcessed int64      `json:"num_processed"`
}

func NewFlightsHandler(store FlightLister, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "FlightsHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		limit := DefaultListLimit
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				http.Error(w, "Bad limit", http.StatusBadRequest)
				return
			}
			limit = min(n, MaxListLimit)
		}

		flights, err := store.ListFlights(r.Context(), limit)
		if err != nil {
			log.Error("list flights", "error", err)
			http.Error(w, "Cannot list flights", http.StatusInternalServerError)
			return
		}

		out := make([]flightView, 0, len(flights))
		for _, f := range flights {
			out = append(out, flightView{
				UUID:         f.UUID,
				Airline:      f.Airline,
				Origin:       f.Origin,
				Status:       string(f.Status),
				StartedAt:    f.StartedAt,
				FinishedAt:   f.FinishedAt,
				NumProcessed: f.NumProcessed,
			})
		}
		writeJSON(w, http.StatusOK, out, log)
	}
}

type launchRequest struct {
	Airline     string `json:"airline"`
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
}

// NewLaunchHandler starts an origin run. Runs execute under base, not the
// request context, so they outlive the request.
func NewLaunchHandler(base context.Context, l Launcher, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "LaunchHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		req, err := decodeLaunch(w, r)
		if err != nil || req.Airline == "" || req.Origin == "" {
			http.Error(w, "airline and origin are required", http.StatusBadRequest)
			return
		}

		uuid, err := l.Launch(base, req.Airline, req.Origin, req.Destination)
		if err != nil {
			switch {
			case errors.Is(err, airline.ErrProcessing):
				http.Error(w, err.Error(), http.StatusBadRequest)
			default:
				log.Error("launch", "airline", req.Airline, "origin", req.Origin, "error", err)
				http.Error(w, "Cannot start flight", http.StatusInternalServerError)
			}
			return
		}

		log.Info("flight launched", "airline", req.Airline, "origin", req.Origin, "flight", uuid)
		writeJSON(w, http.StatusAccepted, map[string]string{"uuid": uuid}, log)
	}
}

// decodeLaunch accepts a JSON body or form values.
func decodeLaunch(w http.ResponseWriter, r *http.Request) (launchRequest, error) {
	var req launchRequest
	if ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); ct == "application/json" {
		err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req)
		return req, err
	}
	if err := r.ParseForm(); err != nil {
		return req, err
	}
	req.Airline = r.PostFormValue("airline")
	req.Origin = r.PostFormValue("origin")
	req.Destination = r.PostFormValue("destination")
	return req, nil
}

type originView struct {
	Name               string `json:"name"`
	Title              string `json:"title"`
	Enabled            bool   `json:"enabled"`
	DefaultDestination string `json:"default_destination,omitempty"`
}

type airlineView struct {
	Name    string       `json:"name"`
	Title   string       `json:"title"`
	Enabled bool         `json:"enabled"`
	Origins []originView `json:"origins"`
}

func NewAirlinesHandler(reg *airline.Registry, settings *config.Settings, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "AirlinesHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		var out []airlineView
		for _, a := range reg.Airlines() {
			as, configured := settings.Airlines[a.Name]
			v := airlineView{Name: a.Name, Title: a.Title, Enabled: configured && as.Enabled}
			for _, o := range a.Origins() {
				v.Origins = append(v.Origins, originView{
					Name:               o.Name,
					Title:              o.Title,
					Enabled:            v.Enabled && as.Origins[o.Name].IsEnabled(),
					DefaultDestination: o.DefaultDestination,
				})
			}
			out = append(out, v)
		}
		writeJSON(w, http.StatusOK, out, log)
	}
}

type destinationView struct {
	Name    string `json:"name"`
	Backend string `json:"backend"`
	Enabled bool   `json:"enabled"`
	Default bool   `json:"default"`
}

// NewDestinationsHandler lists configured destinations without their
// backend settings.
func NewDestinationsHandler(settings *config.Settings, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "DestinationsHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		out := make([]destinationView, 0, len(settings.Destinations))
		for _, name := range settings.DestinationNames() {
			d := settings.Destinations[name]
			out = append(out, destinationView{
				Name:    name,
				Backend: d.Backend,
				Enabled: d.IsEnabled(),
				Default: name == settings.DefaultDestination,
			})
		}
		writeJSON(w, http.StatusOK, out, log)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any, log *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("encode response", "error", err)
	}
}
