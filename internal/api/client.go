package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"skylog/internal/metrics"
)

var (
	// ErrUpstream wraps every non-2xx provider response.
	ErrUpstream = errors.New("upstream error")
	// ErrCircuitOpen is returned while a provider's breaker rejects calls.
	ErrCircuitOpen = errors.New("circuit breaker open")
)

const defaultTimeout = 10 * time.Second

// StatusError is a non-2xx response from a provider.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API error: status %d, body: %s", e.Code, e.Body)
}

func (e *StatusError) Unwrap() error { return ErrUpstream }

// BreakerSettings configures the circuit breaker in front of a provider.
// Calls are never retried; an open breaker fails them immediately.
type BreakerSettings struct {
	MaxRequests         uint32
	Interval            time.Duration
	Timeout             time.Duration
	ConsecutiveFailures uint32
}

func newBreaker(name string, s BreakerSettings) *gobreaker.CircuitBreaker {
	failures := s.ConsecutiveFailures
	if failures == 0 {
		failures = 5
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: s.MaxRequests,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// client errors say nothing about provider health
		IsSuccessful: func(err error) bool {
			var se *StatusError
			if errors.As(err, &se) {
				return se.Code < 500 && se.Code != http.StatusTooManyRequests
			}
			return err == nil
		},
	})
}

// jsonGetter performs breaker-guarded GET requests and decodes JSON bodies.
type jsonGetter struct {
	provider string
	client   *http.Client
	breaker  *gobreaker.CircuitBreaker
}

func newJSONGetter(provider string, timeout time.Duration, s BreakerSettings) *jsonGetter {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &jsonGetter{
		provider: provider,
		client:   &http.Client{Timeout: timeout},
		breaker:  newBreaker(provider, s),
	}
}

func (g *jsonGetter) get(ctx context.Context, endpoint, rawURL string, params url.Values, out any) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid %s URL %q: %w", g.provider, rawURL, err)
	}
	u.RawQuery = params.Encode()

	start := time.Now()
	status := "error"
	_, err = g.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, fmt.Errorf("failed to build request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := g.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch %s: %w", endpoint, err)
		}
		defer resp.Body.Close()
		status = strconv.Itoa(resp.StatusCode)

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return nil, &StatusError{Code: resp.StatusCode, Body: string(body)}
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}
		return nil, nil
	})
	metrics.RecordProviderRequest(g.provider, endpoint, status, time.Since(start))

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%s %s: %w: %v", g.provider, endpoint, ErrCircuitOpen, err)
	}
	if err != nil {
		return fmt.Errorf("%s %s: %w", g.provider, endpoint, err)
	}
	return nil
}

// number decodes a JSON number or numeric string. Anything else leaves it unset.
type number struct {
	v *float64
}

func (n *number) UnmarshalJSON(b []byte) error {
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil
	}
	switch v := raw.(type) {
	case float64:
		n.v = &v
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			n.v = &f
		}
	}
	return nil
}

func (n number) ptr() *float64 { return n.v }

func (n number) or(def float64) float64 {
	if n.v == nil {
		return def
	}
	return *n.v
}

// text decodes a JSON string or number into its textual form.
type text string

func (t *text) UnmarshalJSON(b []byte) error {
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil
	}
	switch v := raw.(type) {
	case string:
		*t = text(v)
	case float64:
		*t = text(strconv.FormatFloat(v, 'f', -1, 64))
	}
	return nil
}

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
