package models

import "time"

// CurrentConditions is the live observation for a location query.
type CurrentConditions struct {
	Place           Place
	TempC           *float64
	PrecipitationMM float64
	Humidity        *float64
	WindKPH         *float64
	WindDirection   *string
	PressureMB      *float64
	VisibilityKM    *float64
	UV              *float64
	ConditionText   *string
	ConditionIcon   *string
}

// Place is the location block the weather provider echoes back.
type Place struct {
	Name      string
	Region    string
	Country   string
	Latitude  *float64
	Longitude *float64
	Timezone  string
}

// ForecastDay is one day of a provider forecast. Date is the provider's
// YYYY-MM-DD text and is validated by the consumer.
type ForecastDay struct {
	Date            string
	MaxTempC        *float64
	MinTempC        *float64
	AvgTempC        *float64
	PrecipitationMM float64
	AvgHumidity     *float64
	MaxWindKPH      *float64
	ConditionText   *string
	ConditionIcon   *string
	ChanceOfRain    float64
}

// ForecastReport is the provider's multi-day forecast for a query.
type ForecastReport struct {
	Place Place
	Days  []ForecastDay
}

// Day returns the forecast entry for date, if present.
func (r *ForecastReport) Day(date time.Time) (*ForecastDay, bool) {
	want := date.Format(time.DateOnly)
	for i := range r.Days {
		if r.Days[i].Date == want {
			return &r.Days[i], true
		}
	}
	return nil, false
}

// Astronomy holds the raw astronomy strings for a date. Times use the
// provider's 12-hour "hh:mm AM" layout and may be absent.
type Astronomy struct {
	Sunrise      string
	Sunset       string
	Moonrise     string
	Moonset      string
	MoonPhase    string
	Illumination string
}

// HistoricalDay is the provider's daily summary for a past date.
type HistoricalDay struct {
	Place     Place
	Day       ForecastDay
	Astronomy Astronomy
}

// SearchResult is one match from the provider's location search.
type SearchResult struct {
	ID        int64   `json:"id,omitempty"`
	Name      string  `json:"name"`
	Region    string  `json:"region"`
	Country   string  `json:"country"`
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
	URL       string  `json:"url,omitempty"`
}

// Station is a tide prediction station.
type Station struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	State     string  `json:"state,omitempty"`
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
	Distance  float64 `json:"distance"`
}

// TidePrediction is one water-level prediction with an inferred type.
type TidePrediction struct {
	Time         time.Time `json:"time"`
	HeightMeters float64   `json:"height_meters"`
	Type         TideType  `json:"type"`
}

// DayTides groups predictions for one UTC calendar date.
type DayTides struct {
	Date        time.Time        `json:"date"`
	Predictions []TidePrediction `json:"predictions"`
}
