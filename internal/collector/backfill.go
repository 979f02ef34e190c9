package collector

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"skylog/internal/metrics"
	"skylog/internal/models"
)

// BackfillStore is the read side the backfill driver needs on top of Store.
type BackfillStore interface {
	GetLocation(ctx context.Context, id int64) (*models.Location, error)
	ListLocations(ctx context.Context) ([]models.Location, error)
	ExistingDates(ctx context.Context, locationID int64, start, end time.Time) ([]time.Time, error)
	DateRange(ctx context.Context) (first, last time.Time, ok bool, err error)
	InsertTide(ctx context.Context, t *models.Tide) error
}

// Runner collects a single location and date.
type Runner interface {
	Collect(ctx context.Context, locationID int64, date time.Time, force bool) models.Outcome
	CollectHistorical(ctx context.Context, locationID int64, date time.Time) models.Outcome
}

// Range selects what Backfiller.Run scans. A zero LocationID means every
// location; zero From/To default to the stored date range.
type Range struct {
	LocationID int64
	From       time.Time
	To         time.Time
}

// BackfillReport summarises a backfill run.
type BackfillReport struct {
	Locations int
	Collected int
	Failed    int
}

// Backfiller finds missing daily weather dates and collects them.
type Backfiller struct {
	store  BackfillStore
	runner Runner
	tides  TideProvider
	logger *slog.Logger
	now    func() time.Time
}

// NewBackfiller creates a Backfiller. tides may be nil.
func NewBackfiller(store BackfillStore, runner Runner, tides TideProvider, logger *slog.Logger) *Backfiller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backfiller{
		store:  store,
		runner: runner,
		tides:  tides,
		logger: logger,
		now:    time.Now,
	}
}

// FindMissingDates returns every day in [start, end] not present in existing.
func FindMissingDates(existing []time.Time, start, end time.Time) []time.Time {
	start, end = models.DateOf(start), models.DateOf(end)

	have := make(map[time.Time]struct{}, len(existing))
	for _, d := range existing {
		have[models.DateOf(d)] = struct{}{}
	}

	var missing []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if _, ok := have[d]; !ok {
			missing = append(missing, d)
		}
	}
	return missing
}

// MissingDates returns the dates in [start, end] with no daily weather for the
// location.
func (b *Backfiller) MissingDates(ctx context.Context, locationID int64, start, end time.Time) ([]time.Time, error) {
	existing, err := b.store.ExistingDates(ctx, locationID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to read existing dates: %w", err)
	}
	return FindMissingDates(existing, start, end), nil
}

// Run collects every missing date in r. Today goes through the daily pass,
// earlier dates through the history endpoint, and future dates are skipped.
func (b *Backfiller) Run(ctx context.Context, r Range) (BackfillReport, error) {
	var report BackfillReport

	from, to, ok, err := b.resolveRange(ctx, r)
	if err != nil {
		return report, err
	}
	if !ok {
		b.logger.Warn("no existing data found to determine date range")
		return report, nil
	}

	locations, err := b.locations(ctx, r.LocationID)
	if err != nil {
		return report, err
	}

	b.logger.Info("checking for missing dates",
		"from", from.Format(time.DateOnly), "to", to.Format(time.DateOnly), "locations", len(locations))

	for i := range locations {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		loc := &locations[i]
		report.Locations++

		missing, err := b.MissingDates(ctx, loc.ID, from, to)
		if err != nil {
			return report, err
		}
		if len(missing) == 0 {
			b.logger.Info("no missing dates", "location", loc.Name)
			continue
		}
		b.logger.Info("found missing dates", "location", loc.Name, "count", len(missing))

		collected, failed, err := b.fill(ctx, loc, missing)
		report.Collected += collected
		report.Failed += failed
		if err != nil {
			return report, err
		}
	}

	b.logger.Info("backfill complete",
		"locations", report.Locations, "collected", report.Collected, "failed", report.Failed)
	return report, nil
}

func (b *Backfiller) fill(ctx context.Context, loc *models.Location, missing []time.Time) (collected, failed int, err error) {
	today := loc.Today(b.now())
	var past []time.Time

	for _, d := range missing {
		if err := ctx.Err(); err != nil {
			return collected, failed, err
		}

		var out models.Outcome
		switch {
		case d.After(today):
			continue
		case d.Equal(today):
			out = b.runner.Collect(ctx, loc.ID, d, false)
		default:
			out = b.runner.CollectHistorical(ctx, loc.ID, d)
		}

		if out.Success {
			collected++
			// tides only for dates that now have a weather row
			if d.Before(today) {
				past = append(past, d)
			}
		} else {
			failed++
			b.logger.Warn("failed to collect", "location", loc.Name, "date", d.Format(time.DateOnly), "error", out.Error)
		}
	}

	if err := b.fillTides(ctx, loc, past); err != nil {
		return collected, failed, err
	}
	return collected, failed, nil
}

// fillTides fetches predictions for the past dates in one request. Only US
// locations with a cached station qualify.
func (b *Backfiller) fillTides(ctx context.Context, loc *models.Location, dates []time.Time) error {
	if b.tides == nil || len(dates) == 0 || !loc.IsUS() || loc.NOAAStationID == "" {
		return nil
	}

	days, err := b.tides.GetTideRange(ctx, loc.NOAAStationID, dates[0], dates[len(dates)-1])
	if err != nil {
		b.logger.Warn("tide range unavailable", "location", loc.Name, "station_id", loc.NOAAStationID, "error", err)
		return nil
	}

	wanted := make(map[time.Time]struct{}, len(dates))
	for _, d := range dates {
		wanted[d] = struct{}{}
	}

	for _, day := range days {
		date := models.DateOf(day.Date)
		if _, ok := wanted[date]; !ok {
			continue
		}
		for _, p := range day.Predictions {
			t := &models.Tide{
				LocationID:   loc.ID,
				Date:         date,
				Time:         models.TimeOfDayOf(p.Time),
				Type:         p.Type,
				HeightMeters: p.HeightMeters,
			}
			if err := b.store.InsertTide(ctx, t); err != nil {
				return err
			}
			metrics.TideRowsInserted.Inc()
		}
	}
	return nil
}

func (b *Backfiller) resolveRange(ctx context.Context, r Range) (from, to time.Time, ok bool, err error) {
	from, to = r.From, r.To
	if from.IsZero() || to.IsZero() {
		first, last, found, err := b.store.DateRange(ctx)
		if err != nil {
			return from, to, false, fmt.Errorf("failed to read date range: %w", err)
		}
		if !found {
			return from, to, false, nil
		}
		if from.IsZero() {
			from = first
		}
		if to.IsZero() {
			to = last
		}
	}

	from, to = models.DateOf(from), models.DateOf(to)
	if to.Before(from) {
		return from, to, false, fmt.Errorf("invalid range: %s is before %s", to.Format(time.DateOnly), from.Format(time.DateOnly))
	}
	return from, to, true, nil
}

func (b *Backfiller) locations(ctx context.Context, id int64) ([]models.Location, error) {
	if id == 0 {
		return b.store.ListLocations(ctx)
	}
	loc, err := b.store.GetLocation(ctx, id)
	if err != nil {
		return nil, err
	}
	return []models.Location{*loc}, nil
}
