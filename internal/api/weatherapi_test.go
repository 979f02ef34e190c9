package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func newTestWeatherClient(t *testing.T, handler http.HandlerFunc) *WeatherAPIClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewWeatherAPIClient(WeatherAPIConfig{BaseURL: server.URL, APIKey: "test-key", Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("NewWeatherAPIClient() error = %v", err)
	}
	return client
}

func TestNewWeatherAPIClient_RequiresKey(t *testing.T) {
	if _, err := NewWeatherAPIClient(WeatherAPIConfig{}); err == nil {
		t.Error("NewWeatherAPIClient() without key should fail")
	}
}

func TestWeatherAPIClient_Current(t *testing.T) {
	client := newTestWeatherClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/current.json" {
			t.Errorf("path = %s, want /current.json", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("key") != "test-key" || q.Get("q") != "Austin, Texas" || q.Get("aqi") != "no" {
			t.Errorf("unexpected query: %s", r.URL.RawQuery)
		}
		w.Write([]byte(`{
			"location": {"name": "Austin", "region": "Texas", "country": "United States of America", "lat": 30.27, "lon": -97.74, "tz_id": "America/Chicago"},
			"current": {"temp_c": 31.5, "humidity": 48, "wind_kph": 14.4, "wind_dir": "SSE", "pressure_mb": 1012, "vis_km": 16, "uv": 8,
			            "condition": {"text": "Sunny", "icon": "//cdn.weatherapi.com/113.png"}}
		}`))
	})

	cur, err := client.Current(context.Background(), "Austin, Texas")
	if err != nil {
		t.Fatalf("Current() error = %v", err)
	}

	if cur.TempC == nil || *cur.TempC != 31.5 {
		t.Errorf("TempC = %v, want 31.5", cur.TempC)
	}
	if cur.PrecipitationMM != 0 {
		t.Errorf("PrecipitationMM = %v, want default 0", cur.PrecipitationMM)
	}
	if cur.WindDirection == nil || *cur.WindDirection != "SSE" {
		t.Errorf("WindDirection = %v, want SSE", cur.WindDirection)
	}
	if cur.ConditionText == nil || *cur.ConditionText != "Sunny" {
		t.Errorf("ConditionText = %v, want Sunny", cur.ConditionText)
	}
	if cur.Place.Timezone != "America/Chicago" || cur.Place.Latitude == nil || *cur.Place.Latitude != 30.27 {
		t.Errorf("Place = %+v", cur.Place)
	}
}

func TestWeatherAPIClient_CurrentAbsentFieldsAreNil(t *testing.T) {
	client := newTestWeatherClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"location": {"name": "Nowhere"}, "current": {"temp_c": 10}}`))
	})

	cur, err := client.Current(context.Background(), "Nowhere")
	if err != nil {
		t.Fatalf("Current() error = %v", err)
	}
	if cur.Humidity != nil || cur.UV != nil || cur.ConditionText != nil || cur.WindDirection != nil {
		t.Errorf("absent fields should be nil: %+v", cur)
	}
	if cur.Place.Latitude != nil {
		t.Errorf("Place.Latitude = %v, want nil", *cur.Place.Latitude)
	}
}

func TestWeatherAPIClient_ForecastClampsDays(t *testing.T) {
	tests := []struct {
		days int
		want string
	}{
		{7, "7"},
		{30, "14"},
		{0, "1"},
	}

	for _, tt := range tests {
		var gotDays string
		client := newTestWeatherClient(t, func(w http.ResponseWriter, r *http.Request) {
			gotDays = r.URL.Query().Get("days")
			w.Write([]byte(`{"location": {}, "forecast": {"forecastday": []}}`))
		})

		if _, err := client.Forecast(context.Background(), "Paris", tt.days); err != nil {
			t.Fatalf("Forecast() error = %v", err)
		}
		if gotDays != tt.want {
			t.Errorf("Forecast(days=%d) sent days=%s, want %s", tt.days, gotDays, tt.want)
		}
	}
}

func TestWeatherAPIClient_Forecast(t *testing.T) {
	client := newTestWeatherClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("alerts") != "no" {
			t.Errorf("alerts param missing: %s", r.URL.RawQuery)
		}
		w.Write([]byte(`{
			"location": {"name": "Paris", "country": "France", "lat": 48.87, "lon": 2.33, "tz_id": "Europe/Paris"},
			"forecast": {"forecastday": [
				{"date": "2024-06-10", "day": {"maxtemp_c": 24.1, "mintemp_c": 14.2, "totalprecip_mm": 1.2, "avghumidity": 60, "maxwind_kph": 18, "daily_chance_of_rain": 80, "condition": {"text": "Patchy rain", "icon": "i.png"}}},
				{"date": "2024-06-11", "day": {"maxtemp_c": 22, "mintemp_c": 13, "daily_chance_of_rain": "35"}}
			]}
		}`))
	})

	report, err := client.Forecast(context.Background(), "Paris, France", 2)
	if err != nil {
		t.Fatalf("Forecast() error = %v", err)
	}
	if len(report.Days) != 2 {
		t.Fatalf("len(Days) = %d, want 2", len(report.Days))
	}

	first := report.Days[0]
	if first.Date != "2024-06-10" || first.MaxTempC == nil || *first.MaxTempC != 24.1 || first.ChanceOfRain != 80 {
		t.Errorf("first day = %+v", first)
	}

	second := report.Days[1]
	if second.PrecipitationMM != 0 {
		t.Errorf("PrecipitationMM = %v, want default 0", second.PrecipitationMM)
	}
	if second.ChanceOfRain != 35 {
		t.Errorf("ChanceOfRain from string = %v, want 35", second.ChanceOfRain)
	}
	if second.AvgHumidity != nil {
		t.Errorf("AvgHumidity = %v, want nil", *second.AvgHumidity)
	}
}

func TestWeatherAPIClient_Astronomy(t *testing.T) {
	client := newTestWeatherClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("dt") != "2024-06-10" {
			t.Errorf("dt = %s, want 2024-06-10", r.URL.Query().Get("dt"))
		}
		w.Write([]byte(`{"astronomy": {"astro": {"sunrise": "06:29 AM", "sunset": "08:33 PM", "moonrise": "09:41 AM", "moonset": "No moonset", "moon_phase": "Waxing Crescent", "moon_illumination": 17}}}`))
	})

	astro, err := client.Astronomy(context.Background(), "Austin", time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Astronomy() error = %v", err)
	}
	if astro.Sunrise != "06:29 AM" || astro.Moonset != "No moonset" || astro.MoonPhase != "Waxing Crescent" {
		t.Errorf("Astronomy() = %+v", astro)
	}
	if astro.Illumination != "17" {
		t.Errorf("Illumination = %q, want 17", astro.Illumination)
	}
}

func TestWeatherAPIClient_History(t *testing.T) {
	client := newTestWeatherClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/history.json" {
			t.Errorf("path = %s, want /history.json", r.URL.Path)
		}
		w.Write([]byte(`{"location": {"name": "Austin"}, "forecast": {"forecastday": [
			{"date": "2024-06-01", "day": {"maxtemp_c": 33, "mintemp_c": 22, "avgtemp_c": 27.5}, "astro": {"sunrise": "06:30 AM", "moon_phase": "Last Quarter", "moon_illumination": "0"}}
		]}}`))
	})

	hist, err := client.History(context.Background(), "Austin", time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if hist.Day.AvgTempC == nil || *hist.Day.AvgTempC != 27.5 {
		t.Errorf("AvgTempC = %v, want 27.5", hist.Day.AvgTempC)
	}
	if hist.Astronomy.Sunrise != "06:30 AM" || hist.Astronomy.Illumination != "0" {
		t.Errorf("Astronomy = %+v", hist.Astronomy)
	}
}

func TestWeatherAPIClient_Search(t *testing.T) {
	var calls atomic.Int32
	client := newTestWeatherClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`[{"id": 1, "name": "Portland", "region": "Oregon", "country": "United States of America", "lat": 45.52, "lon": -122.68, "url": "portland-oregon"}]`))
	})

	results, err := client.Search(context.Background(), "p")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 0 || calls.Load() != 0 {
		t.Errorf("short query should not call provider: results=%v calls=%d", results, calls.Load())
	}

	results, err = client.Search(context.Background(), "Portland")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 1 || results[0].Region != "Oregon" || results[0].Latitude != 45.52 {
		t.Errorf("Search() = %+v", results)
	}
}

func TestWeatherAPIClient_ErrorStatus(t *testing.T) {
	client := newTestWeatherClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": {"code": 1006, "message": "No matching location found."}}`))
	})

	_, err := client.Current(context.Background(), "Atlantis")
	if err == nil {
		t.Fatal("Current() expected error for 400 response")
	}
	if !errors.Is(err, ErrUpstream) {
		t.Errorf("error should wrap ErrUpstream: %v", err)
	}
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusBadRequest {
		t.Errorf("error should carry status 400: %v", err)
	}
	if !strings.Contains(err.Error(), "No matching location") {
		t.Errorf("error should include body: %v", err)
	}
}

func TestWeatherAPIClient_BreakerOpensOnServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client, err := NewWeatherAPIClient(WeatherAPIConfig{
		BaseURL: server.URL,
		APIKey:  "k",
		Breaker: BreakerSettings{ConsecutiveFailures: 2, Timeout: time.Minute},
	})
	if err != nil {
		t.Fatalf("NewWeatherAPIClient() error = %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := client.Current(context.Background(), "x"); !errors.Is(err, ErrUpstream) {
			t.Fatalf("call %d: expected upstream error, got %v", i, err)
		}
	}

	_, err = client.Current(context.Background(), "x")
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen after consecutive failures, got %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("server calls = %d, want 2 (no retries, breaker short-circuits)", calls.Load())
	}
}

func TestClampDays(t *testing.T) {
	tests := []struct{ in, want int }{
		{-3, 1}, {0, 1}, {1, 1}, {7, 7}, {14, 14}, {15, 14},
	}
	for _, tt := range tests {
		if got := clampDays(tt.in); got != tt.want {
			t.Errorf("clampDays(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
