package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpFile, err := os.CreateTemp(t.TempDir(), "config-*.yaml")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	if _, err := tmpFile.Write([]byte(content)); err != nil {
		t.Fatalf("Failed to write temp file: %v", err)
	}
	tmpFile.Close()
	return tmpFile.Name()
}

func clearOverrides(t *testing.T) {
	t.Helper()
	for _, key := range []string{"WEATHER_API_KEY", "WEATHER_API_BASE", "NOAA_API_BASE", "PORT", "LOG_LEVEL", "LOG_FORMAT"} {
		t.Setenv(key, "")
	}
}

func TestLoad(t *testing.T) {
	clearOverrides(t)
	path := writeConfig(t, `server:
  addr: ":8080"
weather_api:
  api_key: "secret"
  timeout: 5s
  forecast_days: 3
collection:
  schedule: "04:30"
  use_queue: true
log:
  format: text
  level: debug
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Addr != ":8080" {
		t.Errorf("Server.Addr = %q, want :8080", cfg.Server.Addr)
	}
	if cfg.WeatherAPI.APIKey != "secret" {
		t.Errorf("WeatherAPI.APIKey = %q, want secret", cfg.WeatherAPI.APIKey)
	}
	if cfg.WeatherAPI.Timeout != 5*time.Second {
		t.Errorf("WeatherAPI.Timeout = %v, want 5s", cfg.WeatherAPI.Timeout)
	}
	if cfg.WeatherAPI.ForecastDays != 3 {
		t.Errorf("WeatherAPI.ForecastDays = %d, want 3", cfg.WeatherAPI.ForecastDays)
	}
	if !cfg.Collection.UseQueue {
		t.Error("Collection.UseQueue = false, want true")
	}
	if cfg.Collection.Schedule != "04:30" {
		t.Errorf("Collection.Schedule = %q, want 04:30", cfg.Collection.Schedule)
	}

	// untouched sections keep their defaults
	if cfg.WeatherAPI.BaseURL != "https://api.weatherapi.com/v1" {
		t.Errorf("WeatherAPI.BaseURL = %q", cfg.WeatherAPI.BaseURL)
	}
	if cfg.NOAA.Application != "NOS.COOPS.TAC.WL" {
		t.Errorf("NOAA.Application = %q", cfg.NOAA.Application)
	}
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	clearOverrides(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Addr != ":5105" {
		t.Errorf("Server.Addr = %q, want :5105", cfg.Server.Addr)
	}
	if cfg.WeatherAPI.ForecastDays != 7 {
		t.Errorf("WeatherAPI.ForecastDays = %d, want 7", cfg.WeatherAPI.ForecastDays)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearOverrides(t)
	t.Setenv("WEATHER_API_KEY", "from-env")
	t.Setenv("PORT", "9000")
	t.Setenv("NOAA_API_BASE", "http://noaa.test/datagetter")

	path := writeConfig(t, "weather_api:\n  api_key: from-file\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.WeatherAPI.APIKey != "from-env" {
		t.Errorf("WeatherAPI.APIKey = %q, want from-env", cfg.WeatherAPI.APIKey)
	}
	if cfg.Server.Addr != ":9000" {
		t.Errorf("Server.Addr = %q, want :9000", cfg.Server.Addr)
	}
	if cfg.NOAA.PredictionsURL != "http://noaa.test/datagetter" {
		t.Errorf("NOAA.PredictionsURL = %q", cfg.NOAA.PredictionsURL)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "invalid: [yaml: content")

	if _, err := Load(path); err == nil {
		t.Error("Expected error for invalid YAML, got nil")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/config.yaml"); err == nil {
		t.Error("Expected error for missing file, got nil")
	}
}

func TestLoad_InvalidForecastDays(t *testing.T) {
	clearOverrides(t)
	path := writeConfig(t, "weather_api:\n  forecast_days: 30\n")

	if _, err := Load(path); err == nil {
		t.Error("Expected validation error for forecast_days=30, got nil")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"empty base url", func(c *Config) { c.WeatherAPI.BaseURL = "" }, true},
		{"zero forecast days", func(c *Config) { c.WeatherAPI.ForecastDays = 0 }, true},
		{"max forecast days", func(c *Config) { c.WeatherAPI.ForecastDays = 14 }, false},
		{"missing stations url", func(c *Config) { c.NOAA.StationsURL = "" }, true},
		{"bad schedule", func(c *Config) { c.Collection.Schedule = "6am" }, true},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	if err := os.WriteFile(envFile, []byte("SKYLOG_TEST_KEY=abc123\n"), 0o600); err != nil {
		t.Fatalf("Failed to write env file: %v", err)
	}
	t.Setenv("SKYLOG_TEST_KEY", "")
	os.Unsetenv("SKYLOG_TEST_KEY")

	if err := LoadEnv(envFile, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("LoadEnv() error = %v", err)
	}
	if got := os.Getenv("SKYLOG_TEST_KEY"); got != "abc123" {
		t.Errorf("SKYLOG_TEST_KEY = %q, want abc123", got)
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("json", "warn", &buf)

	logger.Info("dropped")
	logger.Warn("kept", "location_id", 7)

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Errorf("info record written at warn level: %s", out)
	}
	if !strings.Contains(out, `"location_id":7`) {
		t.Errorf("expected JSON attribute in output, got %s", out)
	}

	buf.Reset()
	NewLogger("text", "debug", &buf).Debug("hello", "k", "v")
	if !strings.Contains(buf.String(), "k=v") {
		t.Errorf("expected text attribute in output, got %s", buf.String())
	}
}
