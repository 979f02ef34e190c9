package server

import (
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"skylog/internal/models"
)

//go:embed templates/*.html
var templateFS embed.FS

var templateFuncs = template.FuncMap{
	"temp": func(v *float64) string {
		if v == nil {
			return "n/a"
		}
		return fmt.Sprintf("%.1f°C", *v)
	},
	"num": func(v *float64) string {
		if v == nil {
			return "n/a"
		}
		return fmt.Sprintf("%.0f", *v)
	},
	"str": func(v *string) string {
		if v == nil {
			return ""
		}
		return *v
	},
	"clock": func(t *models.TimeOfDay) string {
		if t == nil {
			return "n/a"
		}
		return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
	},
	"hhmm": func(t models.TimeOfDay) string {
		return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
	},
	"day": func(t time.Time) string {
		return t.Format("Mon Jan 2")
	},
}

func parsePages() (map[string]*template.Template, error) {
	pages := make(map[string]*template.Template)
	for _, name := range []string{"index.html", "location.html"} {
		t, err := template.New(name).Funcs(templateFuncs).ParseFS(templateFS, "templates/layout.html", "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", name, err)
		}
		pages[name] = t
	}
	return pages, nil
}

func (s *Server) render(w http.ResponseWriter, page string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.pages[page].ExecuteTemplate(w, "layout", data); err != nil {
		s.logger.Error("failed to render page", "page", page, "error", err)
	}
}

// locationView is the template data for one location. History and Tides are
// only loaded on the detail page.
type locationView struct {
	Location  models.Location
	Today     *models.DailyReport
	MoonIcon  string
	Forecasts []models.Forecast
	History   []models.DailyReport
	Tides     []models.Tide
}

func (s *Server) card(r *http.Request, loc models.Location) (locationView, error) {
	c := locationView{Location: loc}
	today := loc.Today(s.now())

	report, err := s.store.GetDailyReport(r.Context(), loc.ID, today)
	if err != nil {
		return c, err
	}
	c.Today = report
	if report != nil && report.Moon != nil {
		c.MoonIcon = report.Moon.Icon()
	}

	c.Forecasts, err = s.store.GetForecasts(r.Context(), loc.ID, today, forecastLimit)
	return c, err
}

// handleIndex renders today's summary for every location.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	locations, err := s.store.ListLocations(r.Context())
	if err != nil {
		s.logger.Error("failed to list locations", "error", err)
		http.Error(w, "Failed to load locations", http.StatusInternalServerError)
		return
	}

	cards := make([]locationView, 0, len(locations))
	for _, loc := range locations {
		c, err := s.card(r, loc)
		if err != nil {
			s.logger.Error("failed to load location summary", "location_id", loc.ID, "error", err)
		}
		cards = append(cards, c)
	}
	s.render(w, "index.html", cards)
}

// handleLocationPage renders one location, collecting today's data first when
// it is missing.
func (s *Server) handleLocationPage(w http.ResponseWriter, r *http.Request) {
	loc, ok := s.location(w, r)
	if !ok {
		return
	}

	today := loc.Today(s.now())
	if out := s.collector.Collect(r.Context(), loc.ID, today, false); !out.Success {
		s.logger.Warn("on-demand collection failed", "location_id", loc.ID, "error", out.Error)
	}
	if fresh, err := s.store.GetLocation(r.Context(), loc.ID); err == nil {
		loc = fresh
	}

	page, err := s.card(r, *loc)
	if err != nil {
		s.logger.Error("failed to load location summary", "location_id", loc.ID, "error", err)
		http.Error(w, "Failed to load location", http.StatusInternalServerError)
		return
	}

	page.History, err = s.store.GetHistory(r.Context(), loc.ID, today.AddDate(0, 0, -defaultHistoryDays), today)
	if err != nil {
		s.logger.Error("failed to load history", "location_id", loc.ID, "error", err)
	}
	if loc.NOAAStationID != "" {
		page.Tides, err = s.store.GetTides(r.Context(), loc.ID, today)
		if err != nil {
			s.logger.Error("failed to load tides", "location_id", loc.ID, "error", err)
		}
	}

	s.render(w, "location.html", page)
}
