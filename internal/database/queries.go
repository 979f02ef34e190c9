package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"skylog/internal/models"
)

const dailyReportQuery = `SELECT dw.location_id, dw.date, dw.high_temp, dw.low_temp, dw.avg_temp,
		dw.precipitation_mm, dw.humidity, dw.wind_speed_kmh, dw.wind_direction, dw.pressure_mb,
		dw.visibility_km, dw.uv_index, dw.condition_text, dw.condition_icon, dw.sunrise, dw.sunset,
		mp.moonrise, mp.moonset, mp.moon_phase, mp.moon_illumination, mp.location_id IS NOT NULL
	FROM daily_weather dw
	LEFT JOIN moon_phases mp ON dw.location_id = mp.location_id AND dw.date = mp.date`

func scanDailyReport(scan func(dest ...any) error) (*models.DailyReport, error) {
	var (
		r       models.DailyReport
		precip  sql.NullFloat64
		moon    models.MoonPhase
		hasMoon bool
	)
	err := scan(&r.LocationID, &r.Date, &r.HighTemp, &r.LowTemp, &r.AvgTemp,
		&precip, &r.Humidity, &r.WindSpeedKPH, &r.WindDirection, &r.PressureMB,
		&r.VisibilityKM, &r.UVIndex, &r.ConditionText, &r.ConditionIcon, &r.Sunrise, &r.Sunset,
		&moon.Moonrise, &moon.Moonset, &moon.Phase, &moon.Illumination, &hasMoon)
	if err != nil {
		return nil, err
	}
	r.PrecipitationMM = precip.Float64
	if hasMoon {
		moon.LocationID = r.LocationID
		moon.Date = r.Date
		r.Moon = &moon
	}
	return &r, nil
}

// GetDailyReport returns the daily weather and moon data for one date, or
// nil when nothing is stored.
func (db *DB) GetDailyReport(ctx context.Context, locationID int64, date time.Time) (*models.DailyReport, error) {
	row := db.queryRow(ctx, "daily_weather",
		dailyReportQuery+` WHERE dw.location_id = ? AND dw.date = ?`, locationID, dateArg(date))

	r, err := scanDailyReport(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan daily report: %w", err)
	}
	return r, nil
}

// GetHistory returns daily reports in [from, to), newest first.
func (db *DB) GetHistory(ctx context.Context, locationID int64, from, to time.Time) ([]models.DailyReport, error) {
	rows, err := db.query(ctx, "daily_weather",
		dailyReportQuery+` WHERE dw.location_id = ? AND dw.date >= ? AND dw.date < ? ORDER BY dw.date DESC`,
		locationID, dateArg(from), dateArg(to))
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var reports []models.DailyReport
	for rows.Next() {
		r, err := scanDailyReport(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan daily report: %w", err)
		}
		reports = append(reports, *r)
	}
	return reports, rows.Err()
}

// GetForecasts returns up to limit stored forecasts dated after the given day.
func (db *DB) GetForecasts(ctx context.Context, locationID int64, after time.Time, limit int) ([]models.Forecast, error) {
	rows, err := db.query(ctx, "forecasts",
		`SELECT location_id, forecast_date, high_temp, low_temp, precipitation_mm, humidity,
			wind_speed_kmh, condition_text, condition_icon, chance_of_rain
		FROM forecasts
		WHERE location_id = ? AND forecast_date > ?
		ORDER BY forecast_date ASC
		LIMIT ?`,
		locationID, dateArg(after), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query forecasts: %w", err)
	}
	defer rows.Close()

	var forecasts []models.Forecast
	for rows.Next() {
		var (
			f      models.Forecast
			precip sql.NullFloat64
			chance sql.NullFloat64
		)
		if err := rows.Scan(&f.LocationID, &f.ForecastDate, &f.HighTemp, &f.LowTemp, &precip, &f.Humidity,
			&f.WindSpeedKPH, &f.ConditionText, &f.ConditionIcon, &chance); err != nil {
			return nil, fmt.Errorf("failed to scan forecast: %w", err)
		}
		f.PrecipitationMM = precip.Float64
		f.ChanceOfRain = chance.Float64
		forecasts = append(forecasts, f)
	}
	return forecasts, rows.Err()
}

// GetMoonPhase returns the moon row for a date, or nil when absent.
func (db *DB) GetMoonPhase(ctx context.Context, locationID int64, date time.Time) (*models.MoonPhase, error) {
	var mp models.MoonPhase
	err := db.queryRow(ctx, "moon_phases",
		`SELECT location_id, date, moonrise, moonset, moon_phase, moon_illumination
		FROM moon_phases WHERE location_id = ? AND date = ?`,
		locationID, dateArg(date)).Scan(&mp.LocationID, &mp.Date, &mp.Moonrise, &mp.Moonset, &mp.Phase, &mp.Illumination)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan moon phase: %w", err)
	}
	return &mp, nil
}

// GetTides returns the stored tide rows for a date ordered by time.
func (db *DB) GetTides(ctx context.Context, locationID int64, date time.Time) ([]models.Tide, error) {
	rows, err := db.query(ctx, "tides",
		`SELECT id, location_id, date, time, tide_type, height_meters
		FROM tides WHERE location_id = ? AND date = ? ORDER BY time ASC`,
		locationID, dateArg(date))
	if err != nil {
		return nil, fmt.Errorf("failed to query tides: %w", err)
	}
	defer rows.Close()

	var tides []models.Tide
	for rows.Next() {
		var (
			t        models.Tide
			tideType string
		)
		if err := rows.Scan(&t.ID, &t.LocationID, &t.Date, &t.Time, &tideType, &t.HeightMeters); err != nil {
			return nil, fmt.Errorf("failed to scan tide: %w", err)
		}
		t.Type = models.TideType(tideType)
		tides = append(tides, t)
	}
	return tides, rows.Err()
}

// GetWeeklyAverage averages stored highs and lows over [from, to].
func (db *DB) GetWeeklyAverage(ctx context.Context, locationID int64, from, to time.Time) (*models.WeeklyAverage, error) {
	avg := &models.WeeklyAverage{LocationID: locationID, From: from, To: to}
	err := db.queryRow(ctx, "daily_weather",
		`SELECT AVG(high_temp), AVG(low_temp), COUNT(*)
		FROM daily_weather WHERE location_id = ? AND date >= ? AND date <= ?`,
		locationID, dateArg(from), dateArg(to)).Scan(&avg.AvgHigh, &avg.AvgLow, &avg.Days)
	if err != nil {
		return nil, fmt.Errorf("failed to query weekly average: %w", err)
	}
	return avg, nil
}
