package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the service configuration read from YAML and overridden by
// environment variables.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	WeatherAPI WeatherAPIConfig `yaml:"weather_api"`
	NOAA       NOAAConfig       `yaml:"noaa"`
	Collection CollectionConfig `yaml:"collection"`
	Breaker    BreakerConfig    `yaml:"breaker"`
	Log        LogConfig        `yaml:"log"`
}

type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type WeatherAPIConfig struct {
	BaseURL      string        `yaml:"base_url"`
	APIKey       string        `yaml:"api_key"`
	Timeout      time.Duration `yaml:"timeout"`
	ForecastDays int           `yaml:"forecast_days"`
}

type NOAAConfig struct {
	PredictionsURL string        `yaml:"predictions_url"`
	StationsURL    string        `yaml:"stations_url"`
	Application    string        `yaml:"application"`
	Timeout        time.Duration `yaml:"timeout"`
}

// CollectionConfig controls when and how daily collection is dispatched.
type CollectionConfig struct {
	// Schedule is the UTC "HH:MM" the daily job runs at.
	Schedule     string `yaml:"schedule"`
	UseQueue     bool   `yaml:"use_queue"`
	BackfillDays int    `yaml:"backfill_days"`
}

// BreakerConfig tunes the circuit breaker around each provider.
type BreakerConfig struct {
	MaxRequests         uint32        `yaml:"max_requests"`
	Interval            time.Duration `yaml:"interval"`
	Timeout             time.Duration `yaml:"timeout"`
	ConsecutiveFailures uint32        `yaml:"consecutive_failures"`
}

type LogConfig struct {
	Format string `yaml:"format"`
	Level  string `yaml:"level"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         ":5105",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 60 * time.Second,
		},
		WeatherAPI: WeatherAPIConfig{
			BaseURL:      "https://api.weatherapi.com/v1",
			Timeout:      10 * time.Second,
			ForecastDays: 7,
		},
		NOAA: NOAAConfig{
			PredictionsURL: "https://api.tidesandcurrents.noaa.gov/api/prod/datagetter",
			StationsURL:    "https://api.tidesandcurrents.noaa.gov/mdapi/prod/webapi/stations.json",
			Application:    "NOS.COOPS.TAC.WL",
			Timeout:        10 * time.Second,
		},
		Collection: CollectionConfig{
			Schedule:     "06:00",
			BackfillDays: 30,
		},
		Breaker: BreakerConfig{
			MaxRequests:         1,
			Interval:            time.Minute,
			Timeout:             30 * time.Second,
			ConsecutiveFailures: 5,
		},
		Log: LogConfig{
			Format: "json",
			Level:  "info",
		},
	}
}

// Load reads configPath over the defaults, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyEnv() {
	c.WeatherAPI.APIKey = getEnv("WEATHER_API_KEY", c.WeatherAPI.APIKey)
	c.WeatherAPI.BaseURL = getEnv("WEATHER_API_BASE", c.WeatherAPI.BaseURL)
	c.NOAA.PredictionsURL = getEnv("NOAA_API_BASE", c.NOAA.PredictionsURL)
	if port := os.Getenv("PORT"); port != "" {
		c.Server.Addr = ":" + port
	}
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)
}

func (c *Config) validate() error {
	if c.WeatherAPI.BaseURL == "" {
		return fmt.Errorf("weather_api.base_url cannot be empty")
	}
	if c.WeatherAPI.ForecastDays < 1 || c.WeatherAPI.ForecastDays > 14 {
		return fmt.Errorf("weather_api.forecast_days must be between 1 and 14, got %d", c.WeatherAPI.ForecastDays)
	}
	if c.NOAA.PredictionsURL == "" || c.NOAA.StationsURL == "" {
		return fmt.Errorf("noaa.predictions_url and noaa.stations_url cannot be empty")
	}
	if _, err := time.Parse("15:04", c.Collection.Schedule); err != nil {
		return fmt.Errorf("collection.schedule must be HH:MM: %w", err)
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return fmt.Errorf("log.format must be json or text, got %q", c.Log.Format)
	}
	return nil
}
