package api

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"skylog/internal/models"
)

func newTestNOAAClient(t *testing.T, handler http.HandlerFunc) *NOAATidesClient {
	t.Helper()
	return newTestNOAAClientWithLogger(t, handler, nil)
}

func newTestNOAAClientWithLogger(t *testing.T, handler http.HandlerFunc, logger *slog.Logger) *NOAATidesClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewNOAATidesClient(NOAAConfig{
		PredictionsURL: server.URL + "/datagetter",
		StationsURL:    server.URL + "/stations.json",
		Timeout:        2 * time.Second,
		Logger:         logger,
	})
}

const stationsJSON = `{"count": 4, "stations": [
	{"id": "9414290", "name": "San Francisco", "state": "CA", "lat": 37.8063, "lng": -122.4659},
	{"id": "9414750", "name": "Alameda", "state": "CA", "lat": 37.7717, "lng": -122.3},
	{"id": "broken", "name": "Bad Coords", "lat": "n/a", "lng": -122.0},
	{"id": "8443970", "name": "Boston", "state": "MA", "lat": "42.3548", "lng": "-71.0534"}
]}`

func TestNOAATidesClient_Stations(t *testing.T) {
	client := newTestNOAAClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("type") != "tidepredictions" {
			t.Errorf("type = %s, want tidepredictions", r.URL.Query().Get("type"))
		}
		w.Write([]byte(stationsJSON))
	})

	stations, err := client.Stations(context.Background())
	if err != nil {
		t.Fatalf("Stations() error = %v", err)
	}
	if len(stations) != 3 {
		t.Fatalf("len(stations) = %d, want 3 (unparseable record skipped)", len(stations))
	}
	if stations[2].ID != "8443970" || stations[2].Latitude != 42.3548 {
		t.Errorf("string coordinates not parsed: %+v", stations[2])
	}
}

func TestNOAATidesClient_FindNearestStation(t *testing.T) {
	client := newTestNOAAClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(stationsJSON))
	})

	tests := []struct {
		name     string
		lat, lon float64
		wantID   string
	}{
		{"0.1 degrees away", 37.7063, -122.4659, "9414290"},
		{"closest of two", 37.77, -122.31, "9414750"},
		{"2.0 degrees away", 39.8063, -122.4659, ""},
		{"far inland", 39.74, -104.99, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, err := client.FindNearestStation(context.Background(), tt.lat, tt.lon)
			if err != nil {
				t.Fatalf("FindNearestStation() error = %v", err)
			}
			if tt.wantID == "" {
				if st != nil {
					t.Errorf("FindNearestStation() = %+v, want nil", st)
				}
				return
			}
			if st == nil || st.ID != tt.wantID {
				t.Errorf("FindNearestStation() = %+v, want %s", st, tt.wantID)
			}
		})
	}
}

func TestNOAATidesClient_FindNearestStation_RequestFails(t *testing.T) {
	client := newTestNOAAClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	st, err := client.FindNearestStation(context.Background(), 37.8, -122.4)
	if err == nil {
		t.Error("FindNearestStation() expected error when directory request fails")
	}
	if st != nil {
		t.Errorf("FindNearestStation() = %+v, want nil", st)
	}
}

func TestNearestStation_Empty(t *testing.T) {
	if st := NearestStation(nil, 0, 0, StationProximity); st != nil {
		t.Errorf("NearestStation(nil) = %+v, want nil", st)
	}
}

func TestNOAATidesClient_GetTides(t *testing.T) {
	client := newTestNOAAClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		want := map[string]string{
			"station":    "9414290",
			"begin_date": "20240610",
			"end_date":   "20240610",
			"product":    "predictions",
			"datum":      "MLLW",
			"time_zone":  "gmt",
			"units":      "metric",
			"interval":   "h",
			"format":     "json",
		}
		for k, v := range want {
			if q.Get(k) != v {
				t.Errorf("param %s = %q, want %q", k, q.Get(k), v)
			}
		}
		// out of order, with a bad timestamp and a bad height
		w.Write([]byte(`{"predictions": [
			{"t": "2024-06-10 02:00", "v": "0.5"},
			{"t": "2024-06-10 00:00", "v": "1.0"},
			{"t": "not a time", "v": "2.0"},
			{"t": "2024-06-10 01:00", "v": "3.0"},
			{"t": "2024-06-10 03:00", "v": ""}
		]}`))
	})

	preds, err := client.GetTides(context.Background(), "9414290", time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("GetTides() error = %v", err)
	}
	if len(preds) != 3 {
		t.Fatalf("len(preds) = %d, want 3", len(preds))
	}

	wantTypes := []models.TideType{models.TideLow, models.TideHigh, models.TideLow}
	wantHeights := []float64{1.0, 3.0, 0.5}
	for i := range preds {
		if preds[i].Type != wantTypes[i] || preds[i].HeightMeters != wantHeights[i] {
			t.Errorf("preds[%d] = %+v, want %s %.1f", i, preds[i], wantTypes[i], wantHeights[i])
		}
	}
}

func TestNOAATidesClient_GetTides_LogsSkippedEntries(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	client := newTestNOAAClientWithLogger(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"predictions": [
			{"t": "2024-06-10 00:00", "v": "1.0"},
			{"t": "not a time", "v": "2.0"},
			{"t": "2024-06-10 03:00", "v": ""}
		]}`))
	}, logger)

	preds, err := client.GetTides(context.Background(), "9414290", time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("GetTides() error = %v", err)
	}
	if len(preds) != 1 {
		t.Fatalf("len(preds) = %d, want 1", len(preds))
	}

	out := buf.String()
	if n := strings.Count(out, "skipping tide prediction"); n != 2 {
		t.Errorf("skip warnings = %d, want 2\n%s", n, out)
	}
	if !strings.Contains(out, "station_id=9414290") {
		t.Errorf("log missing station_id: %s", out)
	}
}

func TestNOAATidesClient_GetTides_ErrorBody(t *testing.T) {
	client := newTestNOAAClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error": {"message": "No Predictions data was found."}}`))
	})

	if _, err := client.GetTides(context.Background(), "0000000", time.Now()); err == nil {
		t.Error("GetTides() expected error for provider error message")
	}
}

func TestNOAATidesClient_GetTideRange(t *testing.T) {
	client := newTestNOAAClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("begin_date") != "20240610" || r.URL.Query().Get("end_date") != "20240611" {
			t.Errorf("unexpected range: %s", r.URL.RawQuery)
		}
		w.Write([]byte(`{"predictions": [
			{"t": "2024-06-11 00:00", "v": "2.0"},
			{"t": "2024-06-10 00:00", "v": "1.0"},
			{"t": "2024-06-10 01:00", "v": "1.5"},
			{"t": "2024-06-11 01:00", "v": "1.0"}
		]}`))
	})

	start := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	days, err := client.GetTideRange(context.Background(), "9414290", start, start.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("GetTideRange() error = %v", err)
	}
	if len(days) != 2 {
		t.Fatalf("len(days) = %d, want 2", len(days))
	}
	if !days[0].Date.Equal(start) || len(days[0].Predictions) != 2 {
		t.Errorf("days[0] = %+v", days[0])
	}
	if days[1].Predictions[0].Type != models.TideHigh || days[1].Predictions[1].Type != models.TideLow {
		t.Errorf("day 2 types = %s, %s; want high, low", days[1].Predictions[0].Type, days[1].Predictions[1].Type)
	}

	if _, err := client.GetTideRange(context.Background(), "9414290", start, start.AddDate(0, 0, -1)); err == nil {
		t.Error("GetTideRange() expected error for inverted range")
	}
}

func TestInferTideTypes(t *testing.T) {
	base := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	at := func(h int, v float64) models.TidePrediction {
		return models.TidePrediction{Time: base.Add(time.Duration(h) * time.Hour), HeightMeters: v}
	}

	tests := []struct {
		name  string
		preds []models.TidePrediction
		want  []models.TideType
	}{
		{"rise then fall", []models.TidePrediction{at(0, 1.0), at(1, 3.0), at(2, 0.5)}, []models.TideType{models.TideLow, models.TideHigh, models.TideLow}},
		{"single positive", []models.TidePrediction{at(0, 0.4)}, []models.TideType{models.TideHigh}},
		{"single negative", []models.TidePrediction{at(0, -0.2)}, []models.TideType{models.TideLow}},
		{"single zero", []models.TidePrediction{at(0, 0)}, []models.TideType{models.TideLow}},
		{"flat pair", []models.TidePrediction{at(0, 1.0), at(1, 1.0)}, []models.TideType{models.TideHigh, models.TideLow}},
		{"monotonic rise", []models.TidePrediction{at(0, 1), at(1, 2), at(2, 3)}, []models.TideType{models.TideLow, models.TideLow, models.TideHigh}},
		{"empty", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := InferTideTypes(tt.preds)
			if len(got) != len(tt.want) {
				t.Fatalf("len = %d, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i].Type != tt.want[i] {
					t.Errorf("type[%d] = %s, want %s", i, got[i].Type, tt.want[i])
				}
			}
		})
	}
}
