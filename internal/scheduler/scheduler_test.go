package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"skylog/internal/models"
)

func TestNew_InvalidSchedule(t *testing.T) {
	for _, at := range []string{"", "25:00", "6am"} {
		if _, err := New(at, func(context.Context) error { return nil }, nil); err == nil {
			t.Errorf("New(%q) = nil error", at)
		}
	}
}

func TestStart_SchedulesDaily(t *testing.T) {
	s, err := New("06:00", func(context.Context) error { return nil }, slog.Default())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	next := s.NextRun().UTC()
	if next.Hour() != 6 || next.Minute() != 0 {
		t.Errorf("next run = %v, want 06:00 UTC", next)
	}
	if until := time.Until(next); until <= 0 || until > 24*time.Hour {
		t.Errorf("next run in %v, want within a day", until)
	}
}

func TestRun_CallsDispatch(t *testing.T) {
	calls := 0
	s, _ := New("06:00", func(ctx context.Context) error {
		calls++
		if _, ok := ctx.Deadline(); !ok {
			t.Error("dispatch context has no deadline")
		}
		return errors.New("partial failure")
	}, slog.Default())

	s.run()
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestForEachLocation(t *testing.T) {
	locs := []models.Location{
		{ID: 1, Name: "Austin", Timezone: "America/Chicago"},
		{ID: 2, Name: "Tokyo", Timezone: "Asia/Tokyo"},
		{ID: 3, Name: "Nowhere"},
	}
	now := time.Date(2025, 6, 1, 23, 30, 0, 0, time.UTC)

	got := map[int64]string{}
	dispatch := ForEachLocation(
		func(context.Context) ([]models.Location, error) { return locs, nil },
		func(_ context.Context, loc models.Location, date time.Time) error {
			got[loc.ID] = date.Format(time.DateOnly)
			if loc.ID == 1 {
				return errors.New("boom")
			}
			return nil
		},
		func() time.Time { return now },
		slog.Default(),
	)

	if err := dispatch(context.Background()); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	want := map[int64]string{1: "2025-06-01", 2: "2025-06-02", 3: "2025-06-01"}
	for id, date := range want {
		if got[id] != date {
			t.Errorf("location %d date = %q, want %q", id, got[id], date)
		}
	}
}

func TestForEachLocation_ListError(t *testing.T) {
	dispatch := ForEachLocation(
		func(context.Context) ([]models.Location, error) { return nil, errors.New("db down") },
		func(context.Context, models.Location, time.Time) error { return nil },
		time.Now,
		slog.Default(),
	)
	if err := dispatch(context.Background()); err == nil {
		t.Error("expected error")
	}
}
