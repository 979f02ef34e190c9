package database

import (
	"context"
	"fmt"
	"time"

	"skylog/internal/models"
)

// DailyWeatherExists reports whether a daily_weather row exists for the
// location and date.
func (db *DB) DailyWeatherExists(ctx context.Context, locationID int64, date time.Time) (bool, error) {
	var exists bool
	err := db.queryRow(ctx, "daily_weather",
		`SELECT EXISTS(SELECT 1 FROM daily_weather WHERE location_id = ? AND date = ?)`,
		locationID, dateArg(date)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check daily weather: %w", err)
	}
	return exists, nil
}

// UpsertDailyWeather inserts or fully overwrites the row for
// (LocationID, Date).
func (db *DB) UpsertDailyWeather(ctx context.Context, dw *models.DailyWeather) error {
	query := `INSERT INTO daily_weather
		(location_id, date, high_temp, low_temp, avg_temp, precipitation_mm,
		 humidity, wind_speed_kmh, wind_direction, pressure_mb, visibility_km,
		 uv_index, condition_text, condition_icon, sunrise, sunset)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			high_temp = VALUES(high_temp),
			low_temp = VALUES(low_temp),
			avg_temp = VALUES(avg_temp),
			precipitation_mm = VALUES(precipitation_mm),
			humidity = VALUES(humidity),
			wind_speed_kmh = VALUES(wind_speed_kmh),
			wind_direction = VALUES(wind_direction),
			pressure_mb = VALUES(pressure_mb),
			visibility_km = VALUES(visibility_km),
			uv_index = VALUES(uv_index),
			condition_text = VALUES(condition_text),
			condition_icon = VALUES(condition_icon),
			sunrise = VALUES(sunrise),
			sunset = VALUES(sunset)`

	_, err := db.exec(ctx, "UPSERT", "daily_weather", query,
		dw.LocationID, dateArg(dw.Date), dw.HighTemp, dw.LowTemp, dw.AvgTemp, dw.PrecipitationMM,
		dw.Humidity, dw.WindSpeedKPH, dw.WindDirection, dw.PressureMB, dw.VisibilityKM,
		dw.UVIndex, dw.ConditionText, dw.ConditionIcon, dw.Sunrise, dw.Sunset)
	if err != nil {
		return fmt.Errorf("failed to upsert daily weather for location %d on %s: %w",
			dw.LocationID, dateArg(dw.Date), err)
	}
	return nil
}

// UpdateSunTimes sets sunrise and sunset on an existing daily_weather row.
func (db *DB) UpdateSunTimes(ctx context.Context, locationID int64, date time.Time, sunrise, sunset models.TimeOfDay) error {
	_, err := db.exec(ctx, "UPDATE", "daily_weather",
		`UPDATE daily_weather SET sunrise = ?, sunset = ? WHERE location_id = ? AND date = ?`,
		sunrise, sunset, locationID, dateArg(date))
	if err != nil {
		return fmt.Errorf("failed to update sun times: %w", err)
	}
	return nil
}

// UpsertMoonPhase inserts or overwrites the moon_phases row for
// (LocationID, Date).
func (db *DB) UpsertMoonPhase(ctx context.Context, mp *models.MoonPhase) error {
	query := `INSERT INTO moon_phases
		(location_id, date, moonrise, moonset, moon_phase, moon_illumination)
		VALUES (?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			moonrise = VALUES(moonrise),
			moonset = VALUES(moonset),
			moon_phase = VALUES(moon_phase),
			moon_illumination = VALUES(moon_illumination)`

	_, err := db.exec(ctx, "UPSERT", "moon_phases", query,
		mp.LocationID, dateArg(mp.Date), mp.Moonrise, mp.Moonset, mp.Phase, mp.Illumination)
	if err != nil {
		return fmt.Errorf("failed to upsert moon phase: %w", err)
	}
	return nil
}

// UpsertForecast inserts or overwrites the forecasts row for
// (LocationID, ForecastDate).
func (db *DB) UpsertForecast(ctx context.Context, f *models.Forecast) error {
	query := `INSERT INTO forecasts
		(location_id, forecast_date, high_temp, low_temp, precipitation_mm,
		 humidity, wind_speed_kmh, condition_text, condition_icon, chance_of_rain)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			high_temp = VALUES(high_temp),
			low_temp = VALUES(low_temp),
			precipitation_mm = VALUES(precipitation_mm),
			humidity = VALUES(humidity),
			wind_speed_kmh = VALUES(wind_speed_kmh),
			condition_text = VALUES(condition_text),
			condition_icon = VALUES(condition_icon),
			chance_of_rain = VALUES(chance_of_rain)`

	_, err := db.exec(ctx, "UPSERT", "forecasts", query,
		f.LocationID, dateArg(f.ForecastDate), f.HighTemp, f.LowTemp, f.PrecipitationMM,
		f.Humidity, f.WindSpeedKPH, f.ConditionText, f.ConditionIcon, f.ChanceOfRain)
	if err != nil {
		return fmt.Errorf("failed to upsert forecast for %s: %w", dateArg(f.ForecastDate), err)
	}
	return nil
}

// InsertTide appends a tide row. Tides have no unique key.
func (db *DB) InsertTide(ctx context.Context, t *models.Tide) error {
	res, err := db.exec(ctx, "INSERT", "tides",
		`INSERT INTO tides (location_id, date, time, tide_type, height_meters) VALUES (?, ?, ?, ?, ?)`,
		t.LocationID, dateArg(t.Date), t.Time, string(t.Type), t.HeightMeters)
	if err != nil {
		return fmt.Errorf("failed to insert tide: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		t.ID = id
	}
	return nil
}

// ExistingDates returns the distinct dates in [start, end] that have a
// daily_weather row for the location.
func (db *DB) ExistingDates(ctx context.Context, locationID int64, start, end time.Time) ([]time.Time, error) {
	rows, err := db.query(ctx, "daily_weather",
		`SELECT DISTINCT date FROM daily_weather WHERE location_id = ? AND date BETWEEN ? AND ? ORDER BY date`,
		locationID, dateArg(start), dateArg(end))
	if err != nil {
		return nil, fmt.Errorf("failed to query existing dates: %w", err)
	}
	defer rows.Close()

	var dates []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("failed to scan date: %w", err)
		}
		dates = append(dates, d)
	}
	return dates, rows.Err()
}

// DateRange returns the earliest and latest daily_weather dates across all
// locations. ok is false when the table is empty.
func (db *DB) DateRange(ctx context.Context) (first, last time.Time, ok bool, err error) {
	var minDate, maxDate *time.Time
	err = db.queryRow(ctx, "daily_weather",
		`SELECT MIN(date), MAX(date) FROM daily_weather`).Scan(&minDate, &maxDate)
	if err != nil {
		return time.Time{}, time.Time{}, false, fmt.Errorf("failed to query date range: %w", err)
	}
	if minDate == nil || maxDate == nil {
		return time.Time{}, time.Time{}, false, nil
	}
	return *minDate, *maxDate, true, nil
}
