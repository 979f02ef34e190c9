package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"skylog/internal/database"
	"skylog/internal/models"
	"skylog/internal/queue"
)

const (
	forecastLimit      = 7
	defaultHistoryDays = 30
	maxHistoryDays     = 365
)

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

type createLocationRequest struct {
	Query string `json:"query" validate:"required,min=2"`
}

type collectRequest struct {
	Date  string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Force bool   `json:"force"`
}

// resolveDate returns the requested date, or today when none was given.
func (req collectRequest) resolveDate(today time.Time) (time.Time, error) {
	if req.Date == "" {
		return today, nil
	}
	return models.ParseDate(req.Date)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode JSON response", "error", err)
	}
}

func (s *Server) writeData(w http.ResponseWriter, status int, data any) {
	s.writeJSON(w, status, envelope{Success: true, Data: data})
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, envelope{Success: false, Error: msg})
}

// location resolves the {id} path value, writing the error response itself
// when it returns false.
func (s *Server) location(w http.ResponseWriter, r *http.Request) (*models.Location, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		s.writeError(w, http.StatusBadRequest, "Invalid location id")
		return nil, false
	}

	loc, err := s.store.GetLocation(r.Context(), id)
	if errors.Is(err, database.ErrLocationNotFound) {
		s.writeError(w, http.StatusNotFound, "Location not found")
		return nil, false
	}
	if err != nil {
		s.logger.Error("failed to load location", "location_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "Failed to load location")
		return nil, false
	}
	return loc, true
}

// dateParam returns the ?date= value, defaulting to the location's today.
func (s *Server) dateParam(r *http.Request, loc *models.Location) (time.Time, error) {
	if v := r.URL.Query().Get("date"); v != "" {
		return models.ParseDate(v)
	}
	return loc.Today(s.now()), nil
}

// handleHealth returns the server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, code := "healthy", http.StatusOK
	if err := s.store.Ping(r.Context()); err != nil {
		s.logger.Warn("health check failed", "error", err)
		status, code = "unhealthy", http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, map[string]string{
		"status": status,
		"time":   s.now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleListLocations(w http.ResponseWriter, r *http.Request) {
	locations, err := s.store.ListLocations(r.Context())
	if err != nil {
		s.logger.Error("failed to list locations", "error", err)
		s.writeError(w, http.StatusInternalServerError, "Failed to list locations")
		return
	}
	if locations == nil {
		locations = []models.Location{}
	}
	s.writeData(w, http.StatusOK, locations)
}

// handleCreateLocation resolves the query through the provider, stores the
// location and starts today's collection.
func (s *Server) handleCreateLocation(w http.ResponseWriter, r *http.Request) {
	var req createLocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Query must be at least 2 characters")
		return
	}

	current, err := s.locator.Current(r.Context(), req.Query)
	if err != nil {
		s.logger.Warn("location lookup failed", "query", req.Query, "error", err)
		s.writeError(w, http.StatusBadGateway, "Location lookup failed")
		return
	}

	place := current.Place
	loc := &models.Location{
		Name:      place.Name,
		Region:    place.Region,
		Country:   place.Country,
		Latitude:  place.Latitude,
		Longitude: place.Longitude,
		Timezone:  place.Timezone,
	}
	if loc.Name == "" {
		loc.Name = req.Query
	}

	if err := s.store.CreateLocation(r.Context(), loc); err != nil {
		if errors.Is(err, database.ErrDuplicateLocation) {
			s.writeError(w, http.StatusConflict, "Location already exists")
			return
		}
		s.logger.Error("failed to create location", "error", err)
		s.writeError(w, http.StatusInternalServerError, "Failed to create location")
		return
	}
	s.logger.Info("location created", "location_id", loc.ID, "name", loc.Name)

	result := map[string]any{"location": loc}
	today := loc.Today(s.now())
	if s.queue != nil {
		entryID, err := s.queue.Enqueue(r.Context(), queue.NewJob(loc.ID, today, false, queue.KindDaily))
		if err != nil {
			s.logger.Error("failed to enqueue initial collection", "location_id", loc.ID, "error", err)
		} else {
			result["entry_id"] = entryID
		}
	} else {
		result["collection"] = s.collector.Collect(r.Context(), loc.ID, today, false)
	}

	s.writeData(w, http.StatusCreated, result)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if len(q) < 2 {
		s.writeData(w, http.StatusOK, []models.SearchResult{})
		return
	}

	results, err := s.locator.Search(r.Context(), q)
	if err != nil {
		s.logger.Warn("location search failed", "query", q, "error", err)
		s.writeError(w, http.StatusBadGateway, "Location search failed")
		return
	}
	if results == nil {
		results = []models.SearchResult{}
	}
	s.writeData(w, http.StatusOK, results)
}

// handleWeather returns the daily report, collecting today's first when it
// is missing.
func (s *Server) handleWeather(w http.ResponseWriter, r *http.Request) {
	loc, ok := s.location(w, r)
	if !ok {
		return
	}
	date, err := s.dateParam(r, loc)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid date format")
		return
	}

	report, err := s.store.GetDailyReport(r.Context(), loc.ID, date)
	if err == nil && report == nil && date.Equal(loc.Today(s.now())) {
		if out := s.collector.Collect(r.Context(), loc.ID, date, false); !out.Success {
			s.logger.Warn("on-demand collection failed", "location_id", loc.ID, "error", out.Error)
		}
		report, err = s.store.GetDailyReport(r.Context(), loc.ID, date)
	}
	if err != nil {
		s.logger.Error("failed to load weather", "location_id", loc.ID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "Failed to load weather")
		return
	}
	if report == nil {
		s.writeError(w, http.StatusNotFound, "Weather data not available")
		return
	}
	s.writeData(w, http.StatusOK, report)
}

func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	loc, ok := s.location(w, r)
	if !ok {
		return
	}

	forecasts, err := s.store.GetForecasts(r.Context(), loc.ID, loc.Today(s.now()), forecastLimit)
	if err != nil {
		s.logger.Error("failed to load forecast", "location_id", loc.ID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "Failed to load forecast")
		return
	}
	if forecasts == nil {
		forecasts = []models.Forecast{}
	}
	s.writeData(w, http.StatusOK, forecasts)
}

func (s *Server) handleMoon(w http.ResponseWriter, r *http.Request) {
	loc, ok := s.location(w, r)
	if !ok {
		return
	}
	date, err := s.dateParam(r, loc)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid date format")
		return
	}

	mp, err := s.store.GetMoonPhase(r.Context(), loc.ID, date)
	if err != nil {
		s.logger.Error("failed to load moon phase", "location_id", loc.ID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "Failed to load moon phase")
		return
	}
	if mp == nil {
		s.writeError(w, http.StatusNotFound, "Moon phase data not available")
		return
	}
	s.writeData(w, http.StatusOK, struct {
		*models.MoonPhase
		Icon string `json:"icon"`
	}{mp, mp.Icon()})
}

func (s *Server) handleTides(w http.ResponseWriter, r *http.Request) {
	loc, ok := s.location(w, r)
	if !ok {
		return
	}
	if !loc.IsUS() {
		s.writeError(w, http.StatusBadRequest, "Tides only available for US locations")
		return
	}
	date, err := s.dateParam(r, loc)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid date format")
		return
	}

	tides, err := s.store.GetTides(r.Context(), loc.ID, date)
	if err != nil {
		s.logger.Error("failed to load tides", "location_id", loc.ID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "Failed to load tides")
		return
	}
	if tides == nil {
		tides = []models.Tide{}
	}
	s.writeData(w, http.StatusOK, tides)
}

// handleWeeklyAverage averages the six days before today plus today.
func (s *Server) handleWeeklyAverage(w http.ResponseWriter, r *http.Request) {
	loc, ok := s.location(w, r)
	if !ok {
		return
	}

	today := loc.Today(s.now())
	avg, err := s.store.GetWeeklyAverage(r.Context(), loc.ID, today.AddDate(0, 0, -6), today)
	if err != nil {
		s.logger.Error("failed to load weekly average", "location_id", loc.ID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "Failed to load weekly average")
		return
	}
	if avg.Days == 0 {
		s.writeError(w, http.StatusNotFound, "Insufficient data for weekly average")
		return
	}
	s.writeData(w, http.StatusOK, avg)
}

// handleHistory returns the last ?days= days before today, newest first.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	loc, ok := s.location(w, r)
	if !ok {
		return
	}

	days := defaultHistoryDays
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxHistoryDays {
			s.writeError(w, http.StatusBadRequest, "days must be between 1 and 365")
			return
		}
		days = n
	}

	today := loc.Today(s.now())
	history, err := s.store.GetHistory(r.Context(), loc.ID, today.AddDate(0, 0, -days), today)
	if err != nil {
		s.logger.Error("failed to load history", "location_id", loc.ID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "Failed to load history")
		return
	}
	if history == nil {
		history = []models.DailyReport{}
	}
	s.writeData(w, http.StatusOK, history)
}

// handleCollect runs or enqueues collection for one date. Past dates use the
// history endpoint; future dates are rejected.
func (s *Server) handleCollect(w http.ResponseWriter, r *http.Request) {
	loc, ok := s.location(w, r)
	if !ok {
		return
	}

	var req collectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid date format")
		return
	}

	today := loc.Today(s.now())
	date, err := req.resolveDate(today)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid date format")
		return
	}
	if date.After(today) {
		s.writeError(w, http.StatusBadRequest, "Cannot collect future dates")
		return
	}

	kind := queue.KindDaily
	if date.Before(today) {
		kind = queue.KindHistorical
	}

	if s.queue != nil {
		job := queue.NewJob(loc.ID, date, req.Force, kind)
		entryID, err := s.queue.Enqueue(r.Context(), job)
		if err != nil {
			s.logger.Error("failed to enqueue collection", "location_id", loc.ID, "error", err)
			s.writeError(w, http.StatusServiceUnavailable, "Failed to enqueue collection")
			return
		}
		s.writeData(w, http.StatusAccepted, map[string]string{"job_id": job.ID, "entry_id": entryID})
		return
	}

	var out models.Outcome
	if kind == queue.KindHistorical {
		out = s.collector.CollectHistorical(r.Context(), loc.ID, date)
	} else {
		out = s.collector.Collect(r.Context(), loc.ID, date, req.Force)
	}

	status := http.StatusOK
	if !out.Success {
		status = http.StatusBadGateway
	}
	s.writeJSON(w, status, out)
}
