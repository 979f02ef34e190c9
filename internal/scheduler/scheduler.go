package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"

	"skylog/internal/models"
)

// Dispatch starts one round of daily collection.
type Dispatch func(ctx context.Context) error

// Scheduler runs the daily collection once a day at a fixed UTC time.
type Scheduler struct {
	scheduler *gocron.Scheduler
	at        string
	dispatch  Dispatch
	logger    *slog.Logger
	timeout   time.Duration
}

// New creates a Scheduler that dispatches every day at "HH:MM" UTC.
func New(at string, dispatch Dispatch, logger *slog.Logger) (*Scheduler, error) {
	if _, err := models.ParseTimeOfDay(at); err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", at, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		at:        at,
		dispatch:  dispatch,
		logger:    logger,
		timeout:   30 * time.Minute,
	}, nil
}

// Start schedules the daily job and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	_, err := s.scheduler.Every(1).Day().At(s.at).Do(s.run)
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	s.logger.Info("scheduler started", "at", s.at+" UTC")
	return nil
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}

// NextRun reports when the daily job fires next.
func (s *Scheduler) NextRun() time.Time {
	_, next := s.scheduler.NextRun()
	return next
}

func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	s.logger.Info("scheduler: running daily collection")
	if err := s.dispatch(ctx); err != nil {
		s.logger.Error("scheduler: daily collection failed", "error", err, "duration", time.Since(start))
		return
	}
	s.logger.Info("scheduler: completed daily collection", "duration", time.Since(start))
}

// ForEachLocation builds a Dispatch that calls fn for every location with the
// location's own calendar date. Failures are logged and do not stop the round.
func ForEachLocation(
	list func(ctx context.Context) ([]models.Location, error),
	fn func(ctx context.Context, loc models.Location, date time.Time) error,
	now func() time.Time,
	logger *slog.Logger,
) Dispatch {
	return func(ctx context.Context) error {
		locations, err := list(ctx)
		if err != nil {
			return fmt.Errorf("failed to list locations: %w", err)
		}

		failed := 0
		for _, loc := range locations {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err := fn(ctx, loc, loc.Today(now())); err != nil {
				failed++
				logger.Error("scheduler: collection failed", "location", loc.Name, "error", err)
			}
		}
		logger.Info("scheduler: dispatched", "locations", len(locations), "failed", failed)
		return nil
	}
}
