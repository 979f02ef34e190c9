package server

import (
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"skylog/internal/models"
	"skylog/internal/queue"
)

// Store is the read/write surface the HTTP layer needs.
type Store interface {
	Ping(ctx context.Context) error
	GetLocation(ctx context.Context, id int64) (*models.Location, error)
	ListLocations(ctx context.Context) ([]models.Location, error)
	CreateLocation(ctx context.Context, loc *models.Location) error
	GetDailyReport(ctx context.Context, locationID int64, date time.Time) (*models.DailyReport, error)
	GetHistory(ctx context.Context, locationID int64, from, to time.Time) ([]models.DailyReport, error)
	GetForecasts(ctx context.Context, locationID int64, after time.Time, limit int) ([]models.Forecast, error)
	GetMoonPhase(ctx context.Context, locationID int64, date time.Time) (*models.MoonPhase, error)
	GetTides(ctx context.Context, locationID int64, date time.Time) ([]models.Tide, error)
	GetWeeklyAverage(ctx context.Context, locationID int64, from, to time.Time) (*models.WeeklyAverage, error)
}

// Collector runs collection passes.
type Collector interface {
	Collect(ctx context.Context, locationID int64, date time.Time, force bool) models.Outcome
	CollectHistorical(ctx context.Context, locationID int64, date time.Time) models.Outcome
}

// Locator resolves free-text location queries through the weather provider.
type Locator interface {
	Search(ctx context.Context, query string) ([]models.SearchResult, error)
	Current(ctx context.Context, query string) (*models.CurrentConditions, error)
}

// Enqueuer hands collection off to background workers.
type Enqueuer interface {
	Enqueue(ctx context.Context, job queue.Job) (string, error)
}

type Options struct {
	Store     Store
	Collector Collector
	Locator   Locator
	// Queue is optional. When nil, collection runs inside the request.
	Queue        Enqueuer
	Logger       *slog.Logger
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server represents the HTTP server
type Server struct {
	store     Store
	collector Collector
	locator   Locator
	queue     Enqueuer
	logger    *slog.Logger
	validate  *validator.Validate
	pages     map[string]*template.Template
	now       func() time.Time

	handler    http.Handler
	httpServer *http.Server
}

// NewServer creates a new HTTP server with all routes registered.
func NewServer(opts Options) (*Server, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	pages, err := parsePages()
	if err != nil {
		return nil, err
	}

	s := &Server{
		store:     opts.Store,
		collector: opts.Collector,
		locator:   opts.Locator,
		queue:     opts.Queue,
		logger:    logger,
		validate:  validator.New(),
		pages:     pages,
		now:       time.Now,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /api/locations", s.handleListLocations)
	mux.HandleFunc("POST /api/locations", s.handleCreateLocation)
	mux.HandleFunc("GET /api/search", s.handleSearch)
	mux.HandleFunc("GET /api/weather/{id}", s.handleWeather)
	mux.HandleFunc("GET /api/forecast/{id}", s.handleForecast)
	mux.HandleFunc("GET /api/moon/{id}", s.handleMoon)
	mux.HandleFunc("GET /api/tides/{id}", s.handleTides)
	mux.HandleFunc("GET /api/weekly-average/{id}", s.handleWeeklyAverage)
	mux.HandleFunc("GET /api/history/{id}", s.handleHistory)
	mux.HandleFunc("POST /api/collect/{id}", s.handleCollect)

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /location/{id}", s.handleLocationPage)

	// outermost runs first
	var handler http.Handler = mux
	handler = Logger(logger)(handler)
	handler = RequestID(handler)
	handler = Recovery(logger)(handler)
	s.handler = handler

	readTimeout := opts.ReadTimeout
	if readTimeout == 0 {
		readTimeout = 15 * time.Second
	}
	writeTimeout := opts.WriteTimeout
	if writeTimeout == 0 {
		writeTimeout = 60 * time.Second
	}
	s.httpServer = &http.Server{
		Handler:      handler,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Handler returns the root handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe starts the HTTP server. Blocks until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.httpServer.Addr = addr
	s.logger.Info("http server starting", "addr", addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
