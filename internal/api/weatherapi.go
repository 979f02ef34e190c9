package api

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"

	"skylog/internal/models"
)

const (
	weatherAPIProvider = "weatherapi"
	// MaxForecastDays is the longest forecast the provider serves.
	MaxForecastDays = 14
)

// WeatherAPIConfig configures a WeatherAPIClient.
type WeatherAPIConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	Breaker BreakerSettings
}

// WeatherAPIClient normalizes WeatherAPI.com responses into typed records.
type WeatherAPIClient struct {
	baseURL string
	apiKey  string
	getter  *jsonGetter
}

// NewWeatherAPIClient creates a new WeatherAPI.com client.
func NewWeatherAPIClient(cfg WeatherAPIConfig) (*WeatherAPIClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("weatherapi: API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.weatherapi.com/v1"
	}
	return &WeatherAPIClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		getter:  newJSONGetter(weatherAPIProvider, cfg.Timeout, cfg.Breaker),
	}, nil
}

type waLocation struct {
	Name    string `json:"name"`
	Region  string `json:"region"`
	Country string `json:"country"`
	Lat     number `json:"lat"`
	Lon     number `json:"lon"`
	TzID    string `json:"tz_id"`
}

type waCondition struct {
	Text string `json:"text"`
	Icon string `json:"icon"`
}

type waCurrent struct {
	TempC      number      `json:"temp_c"`
	Humidity   number      `json:"humidity"`
	WindKPH    number      `json:"wind_kph"`
	WindDir    string      `json:"wind_dir"`
	PressureMB number      `json:"pressure_mb"`
	PrecipMM   number      `json:"precip_mm"`
	VisKM      number      `json:"vis_km"`
	UV         number      `json:"uv"`
	Condition  waCondition `json:"condition"`
}

type waDay struct {
	MaxTempC          number      `json:"maxtemp_c"`
	MinTempC          number      `json:"mintemp_c"`
	AvgTempC          number      `json:"avgtemp_c"`
	TotalPrecipMM     number      `json:"totalprecip_mm"`
	AvgHumidity       number      `json:"avghumidity"`
	MaxWindKPH        number      `json:"maxwind_kph"`
	DailyChanceOfRain number      `json:"daily_chance_of_rain"`
	Condition         waCondition `json:"condition"`
}

type waAstro struct {
	Sunrise          text `json:"sunrise"`
	Sunset           text `json:"sunset"`
	Moonrise         text `json:"moonrise"`
	Moonset          text `json:"moonset"`
	MoonPhase        text `json:"moon_phase"`
	MoonIllumination text `json:"moon_illumination"`
}

type waForecastDay struct {
	Date  string  `json:"date"`
	Day   waDay   `json:"day"`
	Astro waAstro `json:"astro"`
}

type waResponse struct {
	Location waLocation `json:"location"`
	Current  waCurrent  `json:"current"`
	Forecast struct {
		ForecastDay []waForecastDay `json:"forecastday"`
	} `json:"forecast"`
	Astronomy struct {
		Astro waAstro `json:"astro"`
	} `json:"astronomy"`
}

type waSearchResult struct {
	ID      int64   `json:"id"`
	Name    string  `json:"name"`
	Region  string  `json:"region"`
	Country string  `json:"country"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	URL     string  `json:"url"`
}

func (c *WeatherAPIClient) fetch(ctx context.Context, endpoint string, params url.Values, out any) error {
	params.Set("key", c.apiKey)
	return c.getter.get(ctx, endpoint, c.baseURL+"/"+endpoint, params, out)
}

// Current returns live conditions for a location query.
func (c *WeatherAPIClient) Current(ctx context.Context, query string) (*models.CurrentConditions, error) {
	var resp waResponse
	params := url.Values{"q": {query}, "aqi": {"no"}}
	if err := c.fetch(ctx, "current.json", params, &resp); err != nil {
		return nil, err
	}

	cur := resp.Current
	return &models.CurrentConditions{
		Place:           resp.Location.place(),
		TempC:           cur.TempC.ptr(),
		PrecipitationMM: cur.PrecipMM.or(0),
		Humidity:        cur.Humidity.ptr(),
		WindKPH:         cur.WindKPH.ptr(),
		WindDirection:   optString(cur.WindDir),
		PressureMB:      cur.PressureMB.ptr(),
		VisibilityKM:    cur.VisKM.ptr(),
		UV:              cur.UV.ptr(),
		ConditionText:   optString(cur.Condition.Text),
		ConditionIcon:   optString(cur.Condition.Icon),
	}, nil
}

// Forecast returns up to days forecast days; days is clamped to 1..MaxForecastDays.
func (c *WeatherAPIClient) Forecast(ctx context.Context, query string, days int) (*models.ForecastReport, error) {
	var resp waResponse
	params := url.Values{
		"q":      {query},
		"days":   {strconv.Itoa(clampDays(days))},
		"aqi":    {"no"},
		"alerts": {"no"},
	}
	if err := c.fetch(ctx, "forecast.json", params, &resp); err != nil {
		return nil, err
	}

	report := &models.ForecastReport{Place: resp.Location.place()}
	for _, fd := range resp.Forecast.ForecastDay {
		report.Days = append(report.Days, fd.forecastDay())
	}
	return report, nil
}

// Astronomy returns sun and moon data for date.
func (c *WeatherAPIClient) Astronomy(ctx context.Context, query string, date time.Time) (*models.Astronomy, error) {
	var resp waResponse
	params := url.Values{"q": {query}, "dt": {date.Format(time.DateOnly)}}
	if err := c.fetch(ctx, "astronomy.json", params, &resp); err != nil {
		return nil, err
	}

	astro := resp.Astronomy.Astro.astronomy()
	return &astro, nil
}

// History returns the daily summary for a past date.
func (c *WeatherAPIClient) History(ctx context.Context, query string, date time.Time) (*models.HistoricalDay, error) {
	var resp waResponse
	params := url.Values{"q": {query}, "dt": {date.Format(time.DateOnly)}, "aqi": {"no"}}
	if err := c.fetch(ctx, "history.json", params, &resp); err != nil {
		return nil, err
	}

	hist := &models.HistoricalDay{
		Place: resp.Location.place(),
		Day:   models.ForecastDay{Date: date.Format(time.DateOnly)},
	}
	if len(resp.Forecast.ForecastDay) > 0 {
		fd := resp.Forecast.ForecastDay[0]
		hist.Day = fd.forecastDay()
		hist.Astronomy = fd.Astro.astronomy()
	}
	return hist, nil
}

// Search returns locations matching query. Queries shorter than two
// characters return no results without calling the provider.
func (c *WeatherAPIClient) Search(ctx context.Context, query string) ([]models.SearchResult, error) {
	query = strings.TrimSpace(query)
	if len(query) < 2 {
		return []models.SearchResult{}, nil
	}

	var resp []waSearchResult
	if err := c.fetch(ctx, "search.json", url.Values{"q": {query}}, &resp); err != nil {
		return nil, err
	}

	results := make([]models.SearchResult, 0, len(resp))
	for _, r := range resp {
		results = append(results, models.SearchResult{
			ID:        r.ID,
			Name:      r.Name,
			Region:    r.Region,
			Country:   r.Country,
			Latitude:  r.Lat,
			Longitude: r.Lon,
			URL:       r.URL,
		})
	}
	return results, nil
}

func clampDays(days int) int {
	if days < 1 {
		return 1
	}
	if days > MaxForecastDays {
		return MaxForecastDays
	}
	return days
}

func (l waLocation) place() models.Place {
	return models.Place{
		Name:      l.Name,
		Region:    l.Region,
		Country:   l.Country,
		Latitude:  l.Lat.ptr(),
		Longitude: l.Lon.ptr(),
		Timezone:  l.TzID,
	}
}

func (fd waForecastDay) forecastDay() models.ForecastDay {
	d := fd.Day
	return models.ForecastDay{
		Date:            fd.Date,
		MaxTempC:        d.MaxTempC.ptr(),
		MinTempC:        d.MinTempC.ptr(),
		AvgTempC:        d.AvgTempC.ptr(),
		PrecipitationMM: d.TotalPrecipMM.or(0),
		AvgHumidity:     d.AvgHumidity.ptr(),
		MaxWindKPH:      d.MaxWindKPH.ptr(),
		ConditionText:   optString(d.Condition.Text),
		ConditionIcon:   optString(d.Condition.Icon),
		ChanceOfRain:    d.DailyChanceOfRain.or(0),
	}
}

func (a waAstro) astronomy() models.Astronomy {
	return models.Astronomy{
		Sunrise:      string(a.Sunrise),
		Sunset:       string(a.Sunset),
		Moonrise:     string(a.Moonrise),
		Moonset:      string(a.Moonset),
		MoonPhase:    string(a.MoonPhase),
		Illumination: string(a.MoonIllumination),
	}
}

