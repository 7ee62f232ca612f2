// Package airline groups origins under airlines and runs them against a
// destination, tracking each run as a flight.
package airline

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"aeroport/internal/config"
	"aeroport/internal/fetcher"
	"aeroport/internal/filecache"
	"aeroport/internal/metric"
	"aeroport/internal/pipeline"
	"aeroport/internal/scraping"
)

// Origin is one run of a configured source.
type Origin interface {
	Process(ctx context.Context) error
}

// Env carries everything an origin needs for one run.
type Env struct {
	Airline     string
	Origin      string
	Settings    config.OriginSettings
	Sink        *pipeline.Sink
	Downloaders map[scraping.DownloaderKind]fetcher.Downloader
	Feeds       scraping.FeedFetcher
	Cache       *filecache.Cache
	Log         *slog.Logger
	Metrics     *metric.Metrics
}

// OriginFactory builds a fresh origin for a run.
type OriginFactory func(env Env) (Origin, error)

// OriginSpec describes an origin an airline offers.
type OriginSpec struct {
	Name  string
	Title string
	// DefaultDestination is used when neither the run nor the airline
	// settings name one.
	DefaultDestination string
	New                OriginFactory
}

// Airline is a named group of origins.
type Airline struct {
	Name    string
	Title   string
	origins map[string]OriginSpec
}

// New returns an airline offering origins.
func New(name, title string, origins ...OriginSpec) *Airline {
	a := &Airline{Name: name, Title: title, origins: make(map[string]OriginSpec, len(origins))}
	for _, o := range origins {
		a.origins[o.Name] = o
	}
	return a
}

// Origin looks up an origin by name.
func (a *Airline) Origin(name string) (OriginSpec, bool) {
	o, ok := a.origins[name]
	return o, ok
}

// Origins returns the origins sorted by name.
func (a *Airline) Origins() []OriginSpec {
	out := make([]OriginSpec, 0, len(a.origins))
	for _, o := range a.origins {
		out = append(out, o)
	}
	slices.SortFunc(out, func(x, y OriginSpec) int { return strings.Compare(x.Name, y.Name) })
	return out
}

// Registry maps airline names to airlines.
type Registry struct {
	airlines map[string]*Airline
}

func NewRegistry(airlines ...*Airline) *Registry {
	r := &Registry{airlines: make(map[string]*Airline)}
	for _, a := range airlines {
		r.Register(a)
	}
	return r
}

// Register adds an airline. Registering a name twice panics.
func (r *Registry) Register(a *Airline) {
	if _, dup := r.airlines[a.Name]; dup {
		panic(fmt.Sprintf("airline: %q registered twice", a.Name))
	}
	r.airlines[a.Name] = a
}

func (r *Registry) Get(name string) (*Airline, bool) {
	a, ok := r.airlines[name]
	return a, ok
}

// Airlines returns registered airlines sorted by name.
func (r *Registry) Airlines() []*Airline {
	out := make([]*Airline, 0, len(r.airlines))
	for _, a := range r.airlines {
		out = append(out, a)
	}
	slices.SortFunc(out, func(x, y *Airline) int { return strings.Compare(x.Name, y.Name) })
	return out
}
