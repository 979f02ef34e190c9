package api

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"sort"
	"strconv"
	"time"

	"skylog/internal/models"
)

const (
	noaaProvider = "noaa"
	// StationProximity is the largest distance, in degrees, a station may be
	// from the query point and still be considered nearest.
	StationProximity = 1.0

	noaaTimeLayout = "2006-01-02 15:04"
	noaaDateLayout = "20060102"
)

// NOAAConfig configures a NOAATidesClient.
type NOAAConfig struct {
	PredictionsURL string
	StationsURL    string
	Application    string
	Timeout        time.Duration
	Breaker        BreakerSettings
	Logger         *slog.Logger
}

// NOAATidesClient looks up tide stations and water-level predictions from
// NOAA CO-OPS.
type NOAATidesClient struct {
	predictionsURL string
	stationsURL    string
	application    string
	getter         *jsonGetter
	logger         *slog.Logger
}

// NewNOAATidesClient creates a new NOAA tides client.
func NewNOAATidesClient(cfg NOAAConfig) *NOAATidesClient {
	if cfg.PredictionsURL == "" {
		cfg.PredictionsURL = "https://api.tidesandcurrents.noaa.gov/api/prod/datagetter"
	}
	if cfg.StationsURL == "" {
		cfg.StationsURL = "https://api.tidesandcurrents.noaa.gov/mdapi/prod/webapi/stations.json"
	}
	if cfg.Application == "" {
		cfg.Application = "NOS.COOPS.TAC.WL"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &NOAATidesClient{
		predictionsURL: cfg.PredictionsURL,
		stationsURL:    cfg.StationsURL,
		application:    cfg.Application,
		getter:         newJSONGetter(noaaProvider, cfg.Timeout, cfg.Breaker),
		logger:         cfg.Logger,
	}
}

type stationsResponse struct {
	Stations []struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		State string `json:"state"`
		Lat   number `json:"lat"`
		Lng   number `json:"lng"`
	} `json:"stations"`
}

type predictionsResponse struct {
	Predictions []struct {
		Time   string `json:"t"`
		Height string `json:"v"`
	} `json:"predictions"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Stations returns every tide-prediction station. Records with missing or
// unparseable coordinates are dropped.
func (c *NOAATidesClient) Stations(ctx context.Context) ([]models.Station, error) {
	var resp stationsResponse
	params := url.Values{"type": {"tidepredictions"}, "units": {"metric"}}
	if err := c.getter.get(ctx, "stations", c.stationsURL, params, &resp); err != nil {
		return nil, err
	}

	stations := make([]models.Station, 0, len(resp.Stations))
	for _, s := range resp.Stations {
		if s.ID == "" || s.Lat.v == nil || s.Lng.v == nil {
			continue
		}
		stations = append(stations, models.Station{
			ID:        s.ID,
			Name:      s.Name,
			State:     s.State,
			Latitude:  *s.Lat.v,
			Longitude: *s.Lng.v,
		})
	}
	return stations, nil
}

// FindNearestStation returns the closest station within StationProximity of
// the point, or nil when there is none. An error means the directory could
// not be fetched.
func (c *NOAATidesClient) FindNearestStation(ctx context.Context, lat, lon float64) (*models.Station, error) {
	stations, err := c.Stations(ctx)
	if err != nil {
		return nil, err
	}
	return NearestStation(stations, lat, lon, StationProximity), nil
}

// NearestStation picks the station with the smallest Euclidean distance in
// degree space, provided it is strictly closer than maxDistance.
func NearestStation(stations []models.Station, lat, lon, maxDistance float64) *models.Station {
	var nearest *models.Station
	best := math.Inf(1)
	for i := range stations {
		d := math.Hypot(stations[i].Latitude-lat, stations[i].Longitude-lon)
		if d < best {
			best = d
			nearest = &stations[i]
		}
	}
	if nearest == nil || best >= maxDistance {
		return nil
	}
	found := *nearest
	found.Distance = best
	return &found
}

// GetTides returns hourly predictions for the UTC calendar date.
func (c *NOAATidesClient) GetTides(ctx context.Context, stationID string, date time.Time) ([]models.TidePrediction, error) {
	preds, err := c.fetchPredictions(ctx, stationID, date, date)
	if err != nil {
		return nil, err
	}
	return InferTideTypes(preds), nil
}

// GetTideRange returns predictions for [start, end] grouped by UTC date, with
// high/low inference applied within each day.
func (c *NOAATidesClient) GetTideRange(ctx context.Context, stationID string, start, end time.Time) ([]models.DayTides, error) {
	if end.Before(start) {
		return nil, fmt.Errorf("invalid tide range: %s is before %s",
			end.Format(time.DateOnly), start.Format(time.DateOnly))
	}
	preds, err := c.fetchPredictions(ctx, stationID, start, end)
	if err != nil {
		return nil, err
	}
	return GroupByDate(preds), nil
}

func (c *NOAATidesClient) fetchPredictions(ctx context.Context, stationID string, start, end time.Time) ([]models.TidePrediction, error) {
	params := url.Values{
		"product":     {"predictions"},
		"application": {c.application},
		"begin_date":  {start.Format(noaaDateLayout)},
		"end_date":    {end.Format(noaaDateLayout)},
		"datum":       {"MLLW"},
		"station":     {stationID},
		"time_zone":   {"gmt"},
		"units":       {"metric"},
		"interval":    {"h"},
		"format":      {"json"},
	}

	var resp predictionsResponse
	if err := c.getter.get(ctx, "predictions", c.predictionsURL, params, &resp); err != nil {
		return nil, err
	}
	if resp.Error != nil && resp.Error.Message != "" {
		return nil, fmt.Errorf("noaa predictions for station %s: %s", stationID, resp.Error.Message)
	}

	preds := make([]models.TidePrediction, 0, len(resp.Predictions))
	for _, p := range resp.Predictions {
		t, err := time.Parse(noaaTimeLayout, p.Time)
		if err != nil {
			c.logger.Warn("skipping tide prediction", "station_id", stationID, "time", p.Time, "error", err)
			continue
		}
		h, err := strconv.ParseFloat(p.Height, 64)
		if err != nil {
			c.logger.Warn("skipping tide prediction", "station_id", stationID, "time", p.Time, "height", p.Height, "error", err)
			continue
		}
		preds = append(preds, models.TidePrediction{Time: t, HeightMeters: h})
	}
	return preds, nil
}

// InferTideTypes sorts predictions by time and labels each one high or low.
// Each adjacent pair overwrites both labels: a rise marks the earlier point
// low and the later high, anything else the reverse. With fewer than two
// points a positive height is high.
func InferTideTypes(preds []models.TidePrediction) []models.TidePrediction {
	sort.SliceStable(preds, func(i, j int) bool {
		return preds[i].Time.Before(preds[j].Time)
	})

	for i := range preds {
		if preds[i].HeightMeters > 0 {
			preds[i].Type = models.TideHigh
		} else {
			preds[i].Type = models.TideLow
		}
	}

	for i := 1; i < len(preds); i++ {
		if preds[i].HeightMeters > preds[i-1].HeightMeters {
			preds[i-1].Type = models.TideLow
			preds[i].Type = models.TideHigh
		} else {
			preds[i-1].Type = models.TideHigh
			preds[i].Type = models.TideLow
		}
	}
	return preds
}

// GroupByDate splits predictions into UTC calendar days in date order and
// runs InferTideTypes on each day.
func GroupByDate(preds []models.TidePrediction) []models.DayTides {
	byDay := make(map[time.Time][]models.TidePrediction)
	for _, p := range preds {
		day := models.DateOf(p.Time.UTC())
		byDay[day] = append(byDay[day], p)
	}

	days := make([]models.DayTides, 0, len(byDay))
	for day, ps := range byDay {
		days = append(days, models.DayTides{Date: day, Predictions: InferTideTypes(ps)})
	}
	sort.Slice(days, func(i, j int) bool {
		return days[i].Date.Before(days[j].Date)
	})
	return days
}
