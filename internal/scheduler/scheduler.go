// Package scheduler triggers origin runs on crontab schedules.
package scheduler

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/robfig/cron/v3"

	"aeroport/internal/airline"
	"aeroport/internal/config"
	"aeroport/internal/model"
)

// Processor runs one origin to completion.
type Processor interface {
	ProcessOrigin(ctx context.Context, airline, origin, destination string) (model.Flight, error)
}

// Job is a scheduled origin run. An empty Destination lets the dispatcher
// pick one.
type Job struct {
	Airline     string
	Origin      string
	Destination string
	Crontab     string
}

func (j Job) String() string {
	return fmt.Sprintf("%s/%s@%q", j.Airline, j.Origin, j.Crontab)
}

// Jobs lists the schedule entries of enabled airlines in a stable order.
func Jobs(s *config.Settings) []Job {
	var jobs []Job
	for name, a := range s.Airlines {
		if !a.Enabled {
			continue
		}
		for origin, entries := range a.Schedule {
			for _, e := range entries {
				jobs = append(jobs, Job{Airline: name, Origin: origin, Destination: e.Destination, Crontab: e.Crontab})
			}
		}
	}
	slices.SortFunc(jobs, func(x, y Job) int {
		return cmp.Or(
			cmp.Compare(x.Airline, y.Airline),
			cmp.Compare(x.Origin, y.Origin),
			cmp.Compare(x.Crontab, y.Crontab),
			cmp.Compare(x.Destination, y.Destination),
		)
	})
	return jobs
}

// Scheduler fires jobs on their crontabs. A job still running when its next
// tick comes is skipped for that tick.
type Scheduler struct {
	proc Processor
	log  *slog.Logger
	cron *cron.Cron
	ctx  context.Context
}

// New parses every crontab up front.
func New(proc Processor, jobs []Job, log *slog.Logger) (*Scheduler, error) {
	s := &Scheduler{proc: proc, log: log, ctx: context.Background()}
	cl := cronLogger{log: log}
	s.cron = cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	for _, j := range jobs {
		if _, err := s.cron.AddFunc(j.Crontab, func() { s.RunJob(s.ctx, j) }); err != nil {
			return nil, fmt.Errorf("schedule %s: %w", j, err)
		}
	}
	return s, nil
}

// Run fires jobs until ctx is cancelled, then waits for running jobs to
// return. Cancelling ctx also cancels the running jobs.
func (s *Scheduler) Run(ctx context.Context) {
	s.ctx = ctx
	s.log.Info("scheduler started", "jobs", len(s.cron.Entries()))
	s.cron.Start()
	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.log.Info("scheduler stopped")
}

// RunJob runs one job now. Failures are logged.
func (s *Scheduler) RunJob(ctx context.Context, j Job) {
	log := s.log.With("airline", j.Airline, "origin", j.Origin)
	log.Debug("scheduled run", "crontab", j.Crontab)

	f, err := s.proc.ProcessOrigin(ctx, j.Airline, j.Origin, j.Destination)
	switch {
	case errors.Is(err, airline.ErrProcessing):
		log.Warn("scheduled run rejected", "error", err)
	case err != nil:
		log.Error("scheduled run failed", "flight", f.UUID, "error", err)
	default:
		log.Info("scheduled run done", "flight", f.UUID, "processed", f.NumProcessed)
	}
}

// cronLogger routes cron's own messages to slog.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
