// Package storage defines the flight persistence interface and its implementations.
package storage

import (
	"context"
	"errors"
	"time"

	"aeroport/internal/model"
)

// ErrFlightNotFound is returned when no flight has the requested UUID.
var ErrFlightNotFound = errors.New("flight not found")

// Storage is the interface for all persistence operations.
type Storage interface {
	// GetOrCreateFlight inserts f unless a flight with its UUID exists, then
	// loads the stored row back into f.
	GetOrCreateFlight(ctx context.Context, f *model.Flight) error
	UpdateFlight(ctx context.Context, f *model.Flight) error
	GetFlight(ctx context.Context, uuid string) (*model.Flight, error)
	ListFlights(ctx context.Context, limit int) ([]model.Flight, error)
	// ListStuckFlights returns flights still in the air that started before cutoff.
	ListStuckFlights(ctx context.Context, cutoff time.Time) ([]model.Flight, error)

	Close() error
}
