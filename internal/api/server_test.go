// KNG - Road Incident Alerts and Real-Time Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Iornfire12211221/KNG-sub000

package api

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/Iornfire12211221/KNG-sub000/internal/config"
)

type fakeCounter struct {
	n atomic.Int64
}

func (f *fakeCounter) Count() int {
	return int(f.n.Load())
}

// hijackProbe answers 200 when the ResponseWriter can still be hijacked.
type hijackProbe struct {
	calls atomic.Int32
}

func (h *hijackProbe) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	h.calls.Add(1)
	if _, ok := w.(http.Hijacker); !ok {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

type fixture struct {
	server  *Server
	counter *fakeCounter
	ws      *hijackProbe
	clock   *time.Time
	handler http.Handler
}

func newFixture(t *testing.T, security config.SecurityConfig) *fixture {
	t.Helper()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := &fixture{counter: &fakeCounter{}, ws: &hijackProbe{}, clock: &now}
	f.server = NewServer(f.counter, f.ws, security, WithClock(func() time.Time { return *f.clock }))
	f.handler = f.server.Router()
	return f
}

func (f *fixture) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func openSecurity() config.SecurityConfig {
	return config.SecurityConfig{CORSOrigins: []string{"*"}, RateLimitDisabled: true}
}

func TestStats(t *testing.T) {
	f := newFixture(t, openSecurity())
	f.counter.n.Store(3)
	*f.clock = f.clock.Add(90*time.Second + 700*time.Millisecond)

	rec := f.get(t, "/stats")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var raw map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &raw); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if raw["connectedUsers"] != float64(3) {
		t.Errorf("connectedUsers = %v, want 3", raw["connectedUsers"])
	}
	if raw["uptimeSeconds"] != float64(90) {
		t.Errorf("uptimeSeconds = %v, want 90", raw["uptimeSeconds"])
	}
}

func TestHealth(t *testing.T) {
	f := newFixture(t, openSecurity())

	if rec := f.get(t, "/health/live"); rec.Code != http.StatusOK {
		t.Errorf("live = %d, want 200", rec.Code)
	}
	if rec := f.get(t, "/health/ready"); rec.Code != http.StatusOK {
		t.Errorf("ready = %d, want 200", rec.Code)
	}

	f.server.MarkDraining()

	if rec := f.get(t, "/health/live"); rec.Code != http.StatusOK {
		t.Errorf("live while draining = %d, want 200", rec.Code)
	}
	rec := f.get(t, "/health/ready")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("ready while draining = %d, want 503", rec.Code)
	}
	var body errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error != "SHUTTING_DOWN" {
		t.Errorf("error code = %q", body.Error)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, openSecurity())
	f.get(t, "/stats")

	rec := f.get(t, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "api_requests_total") {
		t.Error("api request counter missing from exposition")
	}
}

func TestUnknownRoutes(t *testing.T) {
	f := newFixture(t, openSecurity())

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/nope", http.StatusNotFound},
		{http.MethodPost, "/stats", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
		if rec.Code != tt.want {
			t.Errorf("%s %s = %d, want %d", tt.method, tt.path, rec.Code, tt.want)
		}
	}
}

func TestRequestIDHeader(t *testing.T) {
	f := newFixture(t, openSecurity())
	if id := f.get(t, "/health/live").Header().Get("X-Request-ID"); id == "" {
		t.Error("X-Request-ID missing")
	}
}

func TestCORS(t *testing.T) {
	f := newFixture(t, config.SecurityConfig{
		CORSOrigins:       []string{"https://map.example"},
		RateLimitDisabled: true,
	})

	tests := []struct {
		origin string
		want   string
	}{
		{"https://map.example", "https://map.example"},
		{"https://evil.example", ""},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/stats", nil)
		req.Header.Set("Origin", tt.origin)
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, req)
		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.want {
			t.Errorf("origin %s: allow-origin = %q, want %q", tt.origin, got, tt.want)
		}
	}
}

func wsGet(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url) //nolint:noctx // test helper
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func TestWebSocketRoute_KeepsHijacker(t *testing.T) {
	f := newFixture(t, openSecurity())
	ts := httptest.NewServer(f.handler)
	defer ts.Close()

	if code, _ := wsGet(t, ts.URL+"/ws"); code != http.StatusOK {
		t.Errorf("/ws = %d, want 200 (ResponseWriter lost http.Hijacker)", code)
	}
}

func TestWebSocketRoute_RateLimited(t *testing.T) {
	f := newFixture(t, config.SecurityConfig{
		CORSOrigins:       []string{"*"},
		WSRateLimitReqs:   2,
		WSRateLimitWindow: time.Minute,
	})
	ts := httptest.NewServer(f.handler)
	defer ts.Close()

	for i := 0; i < 2; i++ {
		if code, _ := wsGet(t, ts.URL+"/ws"); code != http.StatusOK {
			t.Fatalf("attempt %d = %d, want 200", i+1, code)
		}
	}
	code, body := wsGet(t, ts.URL+"/ws")
	if code != http.StatusTooManyRequests {
		t.Errorf("third attempt = %d, want 429", code)
	}
	if !strings.Contains(body, "RATE_LIMITED") {
		t.Errorf("body = %q", body)
	}
	if got := f.ws.calls.Load(); got != 2 {
		t.Errorf("ws handler calls = %d, want 2", got)
	}

	// Other routes share no budget with /ws.
	if code, _ := wsGet(t, ts.URL+"/stats"); code != http.StatusOK {
		t.Errorf("/stats = %d, want 200", code)
	}
}

func TestWebSocketRoute_Draining(t *testing.T) {
	f := newFixture(t, openSecurity())
	f.server.MarkDraining()

	if rec := f.get(t, "/ws"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("/ws while draining = %d, want 503", rec.Code)
	}
	if got := f.ws.calls.Load(); got != 0 {
		t.Errorf("ws handler calls = %d, want 0", got)
	}
}

func TestNewHTTPServer(t *testing.T) {
	srv := NewHTTPServer(&config.ServerConfig{
		Host:         "127.0.0.1",
		Port:         8080,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  time.Minute,
	}, http.NotFoundHandler())

	if srv.Addr != "127.0.0.1:8080" {
		t.Errorf("Addr = %q", srv.Addr)
	}
	if srv.ReadHeaderTimeout != 5*time.Second {
		t.Errorf("ReadHeaderTimeout = %v", srv.ReadHeaderTimeout)
	}
}
