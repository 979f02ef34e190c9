package models

import (
	"fmt"
	"strings"
	"time"
)

// Location is a named place weather is collected for.
type Location struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	Region        string    `json:"region,omitempty"`
	Country       string    `json:"country,omitempty"`
	Latitude      *float64  `json:"latitude"`
	Longitude     *float64  `json:"longitude"`
	Timezone      string    `json:"timezone,omitempty"`
	NOAAStationID string    `json:"noaa_station_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Query builds the free-text provider query "name[, region][, country]".
func (l *Location) Query() string {
	parts := []string{l.Name}
	if l.Region != "" {
		parts = append(parts, l.Region)
	}
	if l.Country != "" {
		parts = append(parts, l.Country)
	}
	return strings.Join(parts, ", ")
}

// HasCoordinates reports whether both latitude and longitude are stored.
func (l *Location) HasCoordinates() bool {
	return l.Latitude != nil && l.Longitude != nil
}

// IsUS reports whether the location's country names the United States.
func (l *Location) IsUS() bool {
	switch strings.ToLower(strings.TrimSpace(l.Country)) {
	case "united states of america", "united states", "usa", "us":
		return true
	}
	return false
}

// Today returns the current calendar date at the location. Locations without a
// usable timezone fall back to the UTC date.
func (l *Location) Today(now time.Time) time.Time {
	if l.Timezone != "" {
		if tz, err := time.LoadLocation(l.Timezone); err == nil {
			now = now.In(tz)
		}
	}
	return DateOf(now)
}

// DateOf truncates t to midnight UTC of its calendar date.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return d, nil
}

// DailyWeather is the canonical record for one location and calendar date.
type DailyWeather struct {
	LocationID      int64      `json:"location_id"`
	Date            time.Time  `json:"date"`
	HighTemp        *float64   `json:"high_temp"`
	LowTemp         *float64   `json:"low_temp"`
	AvgTemp         *float64   `json:"avg_temp"`
	PrecipitationMM float64    `json:"precipitation_mm"`
	Humidity        *float64   `json:"humidity"`
	WindSpeedKPH    *float64   `json:"wind_speed_kph"`
	WindDirection   *string    `json:"wind_direction"`
	PressureMB      *float64   `json:"pressure_mb"`
	VisibilityKM    *float64   `json:"visibility_km"`
	UVIndex         *float64   `json:"uv_index"`
	ConditionText   *string    `json:"condition_text"`
	ConditionIcon   *string    `json:"condition_icon"`
	Sunrise         *TimeOfDay `json:"sunrise"`
	Sunset          *TimeOfDay `json:"sunset"`
}

// MoonPhase holds moon data for one location and calendar date.
type MoonPhase struct {
	LocationID   int64      `json:"location_id"`
	Date         time.Time  `json:"date"`
	Moonrise     *TimeOfDay `json:"moonrise"`
	Moonset      *TimeOfDay `json:"moonset"`
	Phase        *string    `json:"moon_phase"`
	// Illumination is a percentage in 0..100 as the provider reports it.
	Illumination *float64   `json:"illumination"`
}

// Icon returns the emoji for the stored phase label.
func (m *MoonPhase) Icon() string {
	if m.Phase == nil {
		return ""
	}
	return MoonPhaseIcon(*m.Phase)
}

// Forecast is a stored forecast for a date after the collection date.
type Forecast struct {
	LocationID      int64     `json:"location_id"`
	ForecastDate    time.Time `json:"forecast_date"`
	HighTemp        *float64  `json:"high_temp"`
	LowTemp         *float64  `json:"low_temp"`
	PrecipitationMM float64   `json:"precipitation_mm"`
	Humidity        *float64  `json:"humidity"`
	WindSpeedKPH    *float64  `json:"wind_speed_kph"`
	ConditionText   *string   `json:"condition_text"`
	ConditionIcon   *string   `json:"condition_icon"`
	ChanceOfRain    float64   `json:"chance_of_rain"`
}

// TideType labels a tide prediction as a high or low point.
type TideType string

const (
	TideHigh TideType = "high"
	TideLow  TideType = "low"
)

// Tide is one stored tide prediction. Rows are appended per collection pass.
type Tide struct {
	ID           int64     `json:"id"`
	LocationID   int64     `json:"location_id"`
	Date         time.Time `json:"date"`
	Time         TimeOfDay `json:"time"`
	Type         TideType  `json:"tide_type"`
	HeightMeters float64   `json:"height_meters"`
}

// DailyReport joins a DailyWeather row with the MoonPhase row for the same key.
type DailyReport struct {
	DailyWeather
	Moon *MoonPhase `json:"moon,omitempty"`
}

// WeeklyAverage summarizes stored highs and lows over a date window.
type WeeklyAverage struct {
	LocationID int64     `json:"location_id"`
	From       time.Time `json:"from"`
	To         time.Time `json:"to"`
	AvgHigh    *float64  `json:"avg_high"`
	AvgLow     *float64  `json:"avg_low"`
	Days       int       `json:"days"`
}

// Outcome is the result of one collection pass.
type Outcome struct {
	Success   bool   `json:"success"`
	Collected bool   `json:"collected"`
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Failed builds an unsuccessful outcome carrying err's message.
func Failed(err error) Outcome {
	return Outcome{Success: false, Error: err.Error()}
}
