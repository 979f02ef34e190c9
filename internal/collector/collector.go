package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"skylog/internal/api"
	"skylog/internal/database"
	"skylog/internal/metrics"
	"skylog/internal/models"
)

const (
	// DefaultForecastDays is how far ahead forecasts are stored on each pass.
	DefaultForecastDays = 7

	kindDaily      = "daily"
	kindHistorical = "historical"
)

// Store is the persistence the collector writes through. Each call is one
// independent statement.
type Store interface {
	GetLocation(ctx context.Context, id int64) (*models.Location, error)
	DailyWeatherExists(ctx context.Context, locationID int64, date time.Time) (bool, error)
	UpdateLocationCoordinates(ctx context.Context, id int64, lat, lon float64, timezone string) error
	UpdateNOAAStation(ctx context.Context, id int64, stationID string) error
	UpsertDailyWeather(ctx context.Context, dw *models.DailyWeather) error
	UpdateSunTimes(ctx context.Context, locationID int64, date time.Time, sunrise, sunset models.TimeOfDay) error
	UpsertMoonPhase(ctx context.Context, mp *models.MoonPhase) error
	UpsertForecast(ctx context.Context, f *models.Forecast) error
	InsertTide(ctx context.Context, t *models.Tide) error
}

// WeatherProvider serves typed weather records for a free-text query.
type WeatherProvider interface {
	Current(ctx context.Context, query string) (*models.CurrentConditions, error)
	Forecast(ctx context.Context, query string, days int) (*models.ForecastReport, error)
	Astronomy(ctx context.Context, query string, date time.Time) (*models.Astronomy, error)
	History(ctx context.Context, query string, date time.Time) (*models.HistoricalDay, error)
}

// TideProvider finds tide stations and their predictions.
type TideProvider interface {
	FindNearestStation(ctx context.Context, lat, lon float64) (*models.Station, error)
	GetTides(ctx context.Context, stationID string, date time.Time) ([]models.TidePrediction, error)
	GetTideRange(ctx context.Context, stationID string, start, end time.Time) ([]models.DayTides, error)
}

var (
	_ Store           = (*database.DB)(nil)
	_ WeatherProvider = (*api.WeatherAPIClient)(nil)
	_ TideProvider    = (*api.NOAATidesClient)(nil)
)

// Collector runs collection passes for one location and date.
type Collector struct {
	store   Store
	weather WeatherProvider
	tides   TideProvider
	logger  *slog.Logger

	forecastDays int
}

// New creates a Collector. tides may be nil to disable tide collection.
func New(store Store, weather WeatherProvider, tides TideProvider, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{
		store:   store,
		weather: weather,
		tides:   tides,
		logger:  logger,

		forecastDays: DefaultForecastDays,
	}
}

// WithForecastDays sets the forecast horizon fetched on each pass.
func (c *Collector) WithForecastDays(days int) *Collector {
	if days > 0 {
		c.forecastDays = days
	}
	return c
}

// AlreadyCollected reports whether daily weather is stored for the location
// and date.
func (c *Collector) AlreadyCollected(ctx context.Context, locationID int64, date time.Time) (bool, error) {
	return c.store.DailyWeatherExists(ctx, locationID, models.DateOf(date))
}

// Collect runs one daily collection pass. Unless force is set, a date that
// already has daily weather is skipped without any provider call. Upserts
// commit as they happen, so a failure part way leaves earlier writes in place.
func (c *Collector) Collect(ctx context.Context, locationID int64, date time.Time, force bool) (out models.Outcome) {
	date = models.DateOf(date)
	log := c.logger.With("location_id", locationID, "date", date.Format(time.DateOnly))

	defer func() {
		if r := recover(); r != nil {
			log.Error("collection panicked", "panic", r)
			out = models.Failed(fmt.Errorf("unexpected error: %v", r))
		}
		metrics.RecordCollection(kindDaily, out.Success, out.Collected)
	}()

	loc, err := c.store.GetLocation(ctx, locationID)
	if err != nil {
		if errors.Is(err, database.ErrLocationNotFound) {
			return models.Failed(database.ErrLocationNotFound)
		}
		log.Error("failed to load location", "error", err)
		return models.Failed(err)
	}

	if !force {
		exists, err := c.store.DailyWeatherExists(ctx, loc.ID, date)
		if err != nil {
			log.Error("failed to check collection state", "error", err)
			return models.Failed(err)
		}
		if exists {
			log.Debug("already collected")
			return models.Outcome{Success: true, Collected: false, Message: "Already collected"}
		}
	}

	if err := c.collect(ctx, loc, date, log); err != nil {
		log.Error("collection failed", "error", err)
		return models.Failed(err)
	}

	log.Info("weather data collected")
	return models.Outcome{Success: true, Collected: true, Message: "Weather data collected"}
}

func (c *Collector) collect(ctx context.Context, loc *models.Location, date time.Time, log *slog.Logger) error {
	query := loc.Query()

	todayForecast, err := c.weather.Forecast(ctx, query, 1)
	if err != nil {
		return fmt.Errorf("failed to fetch forecast: %w", err)
	}
	current, err := c.weather.Current(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to fetch current conditions: %w", err)
	}

	if err := c.backfillCoordinates(ctx, loc, todayForecast.Place); err != nil {
		return err
	}

	dw := mergeDailyWeather(loc.ID, date, todayForecast, current)
	if err := c.store.UpsertDailyWeather(ctx, dw); err != nil {
		return err
	}

	if err := c.collectAstronomy(ctx, loc, date, log); err != nil {
		return err
	}

	if err := c.collectForecasts(ctx, loc, date, log); err != nil {
		return err
	}

	return c.collectTides(ctx, loc, date, log)
}

// mergeDailyWeather prefers the forecast's high, low and precipitation for the
// target date and falls back to the instantaneous current reading. Every
// other field comes from current conditions.
func mergeDailyWeather(locationID int64, date time.Time, forecast *models.ForecastReport, current *models.CurrentConditions) *models.DailyWeather {
	dw := &models.DailyWeather{
		LocationID:      locationID,
		Date:            date,
		HighTemp:        current.TempC,
		LowTemp:         current.TempC,
		AvgTemp:         current.TempC,
		PrecipitationMM: current.PrecipitationMM,
		Humidity:        current.Humidity,
		WindSpeedKPH:    current.WindKPH,
		WindDirection:   current.WindDirection,
		PressureMB:      current.PressureMB,
		VisibilityKM:    current.VisibilityKM,
		UVIndex:         current.UV,
		ConditionText:   current.ConditionText,
		ConditionIcon:   current.ConditionIcon,
	}

	if day, ok := forecast.Day(date); ok {
		dw.HighTemp = day.MaxTempC
		dw.LowTemp = day.MinTempC
		dw.PrecipitationMM = day.PrecipitationMM
	}
	return dw
}

func (c *Collector) backfillCoordinates(ctx context.Context, loc *models.Location, place models.Place) error {
	if loc.HasCoordinates() || place.Latitude == nil || place.Longitude == nil {
		return nil
	}

	if err := c.store.UpdateLocationCoordinates(ctx, loc.ID, *place.Latitude, *place.Longitude, place.Timezone); err != nil {
		return err
	}
	loc.Latitude = place.Latitude
	loc.Longitude = place.Longitude
	if place.Timezone != "" {
		loc.Timezone = place.Timezone
	}
	c.logger.Info("stored location coordinates",
		"location_id", loc.ID, "lat", *loc.Latitude, "lon", *loc.Longitude)
	return nil
}

// collectAstronomy updates sun times and writes the moon row. A failed fetch
// or parse only leaves the affected fields null; storage errors propagate.
func (c *Collector) collectAstronomy(ctx context.Context, loc *models.Location, date time.Time, log *slog.Logger) error {
	astro, err := c.weather.Astronomy(ctx, loc.Query(), date)
	if err != nil {
		log.Warn("astronomy unavailable", "error", err)
		astro = nil
	}

	if astro != nil {
		sunrise, errRise := models.ParseClock12(astro.Sunrise)
		sunset, errSet := models.ParseClock12(astro.Sunset)
		if errRise != nil || errSet != nil {
			log.Warn("could not parse sunrise/sunset", "sunrise", astro.Sunrise, "sunset", astro.Sunset)
		} else if err := c.store.UpdateSunTimes(ctx, loc.ID, date, sunrise, sunset); err != nil {
			return err
		}
	}

	return c.store.UpsertMoonPhase(ctx, moonPhase(loc.ID, date, astro, log))
}

func moonPhase(locationID int64, date time.Time, astro *models.Astronomy, log *slog.Logger) *models.MoonPhase {
	mp := &models.MoonPhase{LocationID: locationID, Date: date}
	if astro == nil {
		return mp
	}

	mp.Moonrise = parseOptionalClock(astro.Moonrise, "moonrise", log)
	mp.Moonset = parseOptionalClock(astro.Moonset, "moonset", log)
	if astro.MoonPhase != "" {
		phase := astro.MoonPhase
		mp.Phase = &phase
	}
	mp.Illumination = parseIllumination(astro.Illumination)
	return mp
}

func parseOptionalClock(value, field string, log *slog.Logger) *models.TimeOfDay {
	if value == "" {
		return nil
	}
	t, err := models.ParseClock12(value)
	if err != nil {
		log.Warn("could not parse "+field, "value", value)
		return nil
	}
	return &t
}

// parseIllumination returns the percentage as given, or nil for absent or
// non-numeric input. An explicit "0" is kept as zero.
func parseIllumination(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

// collectForecasts stores every forecast day after date. A bad entry or a
// failed upsert is logged and skipped.
func (c *Collector) collectForecasts(ctx context.Context, loc *models.Location, date time.Time, log *slog.Logger) error {
	report, err := c.weather.Forecast(ctx, loc.Query(), c.forecastDays)
	if err != nil {
		return fmt.Errorf("failed to fetch %d-day forecast: %w", c.forecastDays, err)
	}

	for _, day := range report.Days {
		forecastDate, err := time.Parse(time.DateOnly, day.Date)
		if err != nil {
			log.Warn("skipping malformed forecast entry", "forecast_date", day.Date, "error", err)
			continue
		}
		if !forecastDate.After(date) {
			continue
		}

		f := &models.Forecast{
			LocationID:      loc.ID,
			ForecastDate:    forecastDate,
			HighTemp:        day.MaxTempC,
			LowTemp:         day.MinTempC,
			PrecipitationMM: day.PrecipitationMM,
			Humidity:        day.AvgHumidity,
			WindSpeedKPH:    day.MaxWindKPH,
			ConditionText:   day.ConditionText,
			ConditionIcon:   day.ConditionIcon,
			ChanceOfRain:    day.ChanceOfRain,
		}
		if err := c.store.UpsertForecast(ctx, f); err != nil {
			log.Warn("failed to store forecast", "forecast_date", day.Date, "error", err)
		}
	}
	return nil
}

// collectTides appends tide rows for US locations with known coordinates.
// Station lookup and prediction failures skip tides for this pass.
func (c *Collector) collectTides(ctx context.Context, loc *models.Location, date time.Time, log *slog.Logger) error {
	if c.tides == nil || !loc.IsUS() || !loc.HasCoordinates() {
		return nil
	}

	stationID, err := c.resolveStation(ctx, loc, log)
	if err != nil || stationID == "" {
		return err
	}

	preds, err := c.tides.GetTides(ctx, stationID, date)
	if err != nil {
		log.Warn("tide predictions unavailable", "station_id", stationID, "error", err)
		return nil
	}
	return c.storeTides(ctx, loc.ID, date, preds)
}

// resolveStation returns the cached station or looks up and caches the
// nearest one. An empty id with nil error means no station applies.
func (c *Collector) resolveStation(ctx context.Context, loc *models.Location, log *slog.Logger) (string, error) {
	if loc.NOAAStationID != "" {
		return loc.NOAAStationID, nil
	}

	station, err := c.tides.FindNearestStation(ctx, *loc.Latitude, *loc.Longitude)
	if err != nil {
		log.Warn("tide station lookup failed", "error", err)
		return "", nil
	}
	if station == nil {
		log.Debug("no tide station within range")
		return "", nil
	}

	if err := c.store.UpdateNOAAStation(ctx, loc.ID, station.ID); err != nil {
		return "", err
	}
	loc.NOAAStationID = station.ID
	log.Info("resolved tide station", "station_id", station.ID, "station", station.Name, "distance", station.Distance)
	return station.ID, nil
}

func (c *Collector) storeTides(ctx context.Context, locationID int64, date time.Time, preds []models.TidePrediction) error {
	for _, p := range preds {
		t := &models.Tide{
			LocationID:   locationID,
			Date:         date,
			Time:         models.TimeOfDayOf(p.Time),
			Type:         p.Type,
			HeightMeters: p.HeightMeters,
		}
		if err := c.store.InsertTide(ctx, t); err != nil {
			return err
		}
		metrics.TideRowsInserted.Inc()
	}
	return nil
}

// CollectHistorical stores daily weather and moon data for a past date using
// the provider's history endpoint. Fields the history record lacks are
// stored as null.
func (c *Collector) CollectHistorical(ctx context.Context, locationID int64, date time.Time) (out models.Outcome) {
	date = models.DateOf(date)
	log := c.logger.With("location_id", locationID, "date", date.Format(time.DateOnly))

	defer func() {
		if r := recover(); r != nil {
			log.Error("historical collection panicked", "panic", r)
			out = models.Failed(fmt.Errorf("unexpected error: %v", r))
		}
		metrics.RecordCollection(kindHistorical, out.Success, out.Collected)
	}()

	loc, err := c.store.GetLocation(ctx, locationID)
	if err != nil {
		if !errors.Is(err, database.ErrLocationNotFound) {
			log.Error("failed to load location", "error", err)
		}
		return models.Failed(err)
	}

	hist, err := c.weather.History(ctx, loc.Query(), date)
	if err != nil {
		log.Error("failed to fetch history", "error", err)
		return models.Failed(fmt.Errorf("failed to fetch history: %w", err))
	}

	dw := &models.DailyWeather{
		LocationID:      loc.ID,
		Date:            date,
		HighTemp:        hist.Day.MaxTempC,
		LowTemp:         hist.Day.MinTempC,
		AvgTemp:         hist.Day.AvgTempC,
		PrecipitationMM: hist.Day.PrecipitationMM,
		Humidity:        hist.Day.AvgHumidity,
		WindSpeedKPH:    hist.Day.MaxWindKPH,
		ConditionText:   hist.Day.ConditionText,
		ConditionIcon:   hist.Day.ConditionIcon,
		Sunrise:         parseOptionalClock(hist.Astronomy.Sunrise, "sunrise", log),
		Sunset:          parseOptionalClock(hist.Astronomy.Sunset, "sunset", log),
	}
	if err := c.store.UpsertDailyWeather(ctx, dw); err != nil {
		log.Error("failed to store historical weather", "error", err)
		return models.Failed(err)
	}

	astro := hist.Astronomy
	if err := c.store.UpsertMoonPhase(ctx, moonPhase(loc.ID, date, &astro, log)); err != nil {
		log.Error("failed to store moon phase", "error", err)
		return models.Failed(err)
	}

	log.Info("historical data collected")
	return models.Outcome{Success: true, Collected: true, Message: "Historical data collected"}
}
