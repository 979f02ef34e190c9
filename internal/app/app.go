// Package app wires configuration, storage and providers for the binaries.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/go-redis/redis/v8"

	"skylog/internal/api"
	"skylog/internal/collector"
	"skylog/internal/config"
	"skylog/internal/database"
	"skylog/internal/metrics"
	"skylog/internal/models"
	"skylog/internal/queue"
)

type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	DB        *database.DB
	Weather   *api.WeatherAPIClient
	Tides     *api.NOAATidesClient
	Collector *collector.Collector
}

// New loads .env and the config file, opens the database and builds the
// provider clients and collector.
func New(configPath string) (*App, error) {
	if err := config.LoadEnv(); err != nil {
		return nil, err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger := config.NewLogger(cfg.Log.Format, cfg.Log.Level, os.Stderr)
	slog.SetDefault(logger)

	breaker := api.BreakerSettings{
		MaxRequests:         cfg.Breaker.MaxRequests,
		Interval:            cfg.Breaker.Interval,
		Timeout:             cfg.Breaker.Timeout,
		ConsecutiveFailures: cfg.Breaker.ConsecutiveFailures,
	}

	weather, err := api.NewWeatherAPIClient(api.WeatherAPIConfig{
		BaseURL: cfg.WeatherAPI.BaseURL,
		APIKey:  cfg.WeatherAPI.APIKey,
		Timeout: cfg.WeatherAPI.Timeout,
		Breaker: breaker,
	})
	if err != nil {
		return nil, err
	}

	tides := api.NewNOAATidesClient(api.NOAAConfig{
		PredictionsURL: cfg.NOAA.PredictionsURL,
		StationsURL:    cfg.NOAA.StationsURL,
		Application:    cfg.NOAA.Application,
		Timeout:        cfg.NOAA.Timeout,
		Breaker:        breaker,
		Logger:         logger,
	})

	db, err := database.NewDB(config.GetDatabaseDSN())
	if err != nil {
		return nil, err
	}

	metrics.AppInfo.Set(1)
	metrics.AppStartTime.Set(float64(time.Now().Unix()))

	return &App{
		Config:    cfg,
		Logger:    logger,
		DB:        db,
		Weather:   weather,
		Tides:     tides,
		Collector: collector.New(db, weather, tides, logger).WithForecastDays(cfg.WeatherAPI.ForecastDays),
	}, nil
}

func (a *App) Close() error {
	return a.DB.Close()
}

// NewRedis connects to the Redis instance described by the REDIS_* variables.
func NewRedis(ctx context.Context, rc config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     rc.Addr,
		Password: rc.Password,
		DB:       rc.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", rc.Addr, err)
	}
	return client, nil
}

// NewQueue builds the collection job queue on client.
func NewQueue(client redis.Cmdable, rc config.RedisConfig, logger *slog.Logger) *queue.Queue {
	return queue.New(client, queue.Options{
		Stream:   rc.Stream,
		Group:    rc.Group,
		Consumer: rc.Consumer,
	}, logger)
}

// JobHandler runs queued jobs through r. A job whose outcome is not
// successful is reported as an error.
func JobHandler(r collector.Runner) queue.Handler {
	return func(ctx context.Context, job queue.Job) error {
		date, err := models.ParseDate(job.Date)
		if err != nil {
			return err
		}

		var out models.Outcome
		switch job.Kind {
		case queue.KindHistorical:
			out = r.CollectHistorical(ctx, job.LocationID, date)
		case queue.KindDaily, "":
			out = r.Collect(ctx, job.LocationID, date, job.Force)
		default:
			return fmt.Errorf("unknown job kind %q", job.Kind)
		}

		if !out.Success {
			return fmt.Errorf("collection failed: %s", out.Error)
		}
		return nil
	}
}
