package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"aeroport/internal/model"
	"aeroport/migrations"
)

const timeLayout = "2006-01-02T15:04:05.000Z"

const flightColumns = `uuid, airline, origin, status, started_at, finished_at, num_processed`

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if dsn == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if err := migrations.Run(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// GetOrCreateFlight inserts the flight if its UUID is new and refreshes f
// from the stored row.
func (s *SQLite) GetOrCreateFlight(ctx context.Context, f *model.Flight) error {
	if f.Status == "" {
		f.Status = model.FlightNew
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO flights (`+flightColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		f.UUID, f.Airline, f.Origin, string(f.Status),
		formatTime(f.StartedAt), formatTime(f.FinishedAt), f.NumProcessed,
	)
	if err != nil {
		return fmt.Errorf("insert flight: %w", err)
	}

	stored, err := s.GetFlight(ctx, f.UUID)
	if err != nil {
		return err
	}
	*f = *stored
	return nil
}

// UpdateFlight persists status, timestamps and counter of an existing flight.
func (s *SQLite) UpdateFlight(ctx context.Context, f *model.Flight) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE flights SET status = ?, started_at = ?, finished_at = ?, num_processed = ?
		 WHERE uuid = ?`,
		string(f.Status), formatTime(f.StartedAt), formatTime(f.FinishedAt), f.NumProcessed, f.UUID,
	)
	if err != nil {
		return fmt.Errorf("update flight: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("update flight %s: %w", f.UUID, ErrFlightNotFound)
	}
	return nil
}

// GetFlight returns a single flight by its UUID.
func (s *SQLite) GetFlight(ctx context.Context, uuid string) (*model.Flight, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+flightColumns+` FROM flights WHERE uuid = ?`, uuid,
	)
	f, err := scanFlight(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get flight %s: %w", uuid, ErrFlightNotFound)
	}
	return f, err
}

// ListFlights returns the most recently started flights first.
func (s *SQLite) ListFlights(ctx context.Context, limit int) ([]model.Flight, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+flightColumns+` FROM flights
		 ORDER BY started_at IS NULL, started_at DESC
		 LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query flights: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanFlights(rows)
}

// ListStuckFlights returns in-air flights started before cutoff.
func (s *SQLite) ListStuckFlights(ctx context.Context, cutoff time.Time) ([]model.Flight, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+flightColumns+` FROM flights
		 WHERE status = ? AND started_at < ?
		 ORDER BY started_at`,
		string(model.FlightInAir), cutoff.UTC().Format(timeLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("query stuck flights: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanFlights(rows)
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	v := t.UTC().Format(timeLayout)
	return &v
}

func parseTime(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t, err := time.Parse(timeLayout, ns.String)
	if err != nil {
		return nil
	}
	return &t
}

type scannable interface {
	Scan(dest ...any) error
}

func scanFlight(row scannable) (*model.Flight, error) {
	var f model.Flight
	var status string
	var started, finished sql.NullString
	err := row.Scan(&f.UUID, &f.Airline, &f.Origin, &status, &started, &finished, &f.NumProcessed)
	if err != nil {
		return nil, fmt.Errorf("scan flight: %w", err)
	}
	f.Status = model.FlightStatus(status)
	f.StartedAt = parseTime(started)
	f.FinishedAt = parseTime(finished)
	return &f, nil
}

func scanFlights(rows *sql.Rows) ([]model.Flight, error) {
	var flights []model.Flight
	for rows.Next() {
		f, err := scanFlight(rows)
		if err != nil {
			return nil, err
		}
		flights = append(flights, *f)
	}
	return flights, rows.Err()
}
