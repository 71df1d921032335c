// KNG - Road Incident Alerts and Real-Time Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Iornfire12211221/KNG-sub000

package api

import (
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Iornfire12211221/KNG-sub000/internal/config"
	"github.com/Iornfire12211221/KNG-sub000/internal/middleware"
)

// ConnectionCounter is satisfied by *websocket.Registry.
type ConnectionCounter interface {
	Count() int
}

// Server owns the chi router and the readiness state.
type Server struct {
	registry  ConnectionCounter
	ws        http.Handler
	security  config.SecurityConfig
	startTime time.Time
	now       func() time.Time
	draining  atomic.Bool
}

// Option configures a Server.
type Option func(*Server)

// WithClock replaces time.Now for uptime reporting.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
	}
}

// NewServer wires the registry and the WebSocket upgrade handler.
func NewServer(registry ConnectionCounter, ws http.Handler, security config.SecurityConfig, opts ...Option) *Server {
	s := &Server{
		registry: registry,
		ws:       ws,
		security: security,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.startTime = s.now()
	return s
}

// MarkDraining flips readiness to 503 and stops accepting new WebSocket
// sessions. It is irreversible.
func (s *Server) MarkDraining() {
	s.draining.Store(true)
}

func (s *Server) uptime() time.Duration {
	return s.now().Sub(s.startTime)
}

// Router builds the HTTP handler tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(s.corsHandler())

	r.NotFound(s.notFound)
	r.MethodNotAllowed(s.methodNotAllowed)

	// The metrics wrapper hides http.Hijacker, so /ws stays outside it.
	r.With(s.handshakeLimiter()).Get("/ws", s.serveWebSocket)

	r.Group(func(r chi.Router) {
		r.Use(middleware.PrometheusMetrics)

		r.Get("/stats", s.Stats)
		r.Get("/health/live", s.HealthLive)
		r.Get("/health/ready", s.HealthReady)
		r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	})

	return r
}

func (s *Server) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.draining.Load() {
		respondError(w, http.StatusServiceUnavailable, "SHUTTING_DOWN", "server is shutting down")
		return
	}
	s.ws.ServeHTTP(w, r)
}

func (s *Server) corsHandler() func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   s.security.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", middleware.RequestIDHeader},
		ExposedHeaders:   []string{middleware.RequestIDHeader},
		AllowCredentials: false,
		MaxAge:           86400,
	})
}

// handshakeLimiter bounds upgrade attempts per client IP. Established
// sessions are not affected.
func (s *Server) handshakeLimiter() func(http.Handler) http.Handler {
	if s.security.RateLimitDisabled || s.security.WSRateLimitReqs <= 0 {
		return func(next http.Handler) http.Handler {
			return next
		}
	}
	return httprate.Limit(
		s.security.WSRateLimitReqs,
		s.security.WSRateLimitWindow,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
			respondError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many connection attempts")
		}),
	)
}

// NewHTTPServer builds the *http.Server for the API layer. Upgraded
// WebSocket connections replace the server's deadlines with their own.
func NewHTTPServer(cfg *config.ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Handler:           handler,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
}
