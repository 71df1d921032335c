// KNG - Road Incident Alerts and Real-Time Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Iornfire12211221/KNG-sub000

package api

import (
	"math"
	"net/http"
)

// StatsResponse is the body of GET /stats.
type StatsResponse struct {
	ConnectedUsers int   `json:"connectedUsers"`
	UptimeSeconds  int64 `json:"uptimeSeconds"`
}

// HealthResponse is the body of the health probes.
type HealthResponse struct {
	Status         string  `json:"status"`
	ConnectedUsers int     `json:"connectedUsers"`
	Uptime         float64 `json:"uptime"`
}

// Stats reports the live connection count and whole seconds of uptime.
func (s *Server) Stats(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, StatsResponse{
		ConnectedUsers: s.registry.Count(),
		UptimeSeconds:  int64(math.Floor(s.uptime().Seconds())),
	})
}

// HealthLive returns 200 while the process can serve HTTP at all.
func (s *Server) HealthLive(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, HealthResponse{
		Status:         "alive",
		ConnectedUsers: s.registry.Count(),
		Uptime:         s.uptime().Seconds(),
	})
}

// HealthReady returns 200 while new WebSocket sessions are accepted and
// 503 once MarkDraining has been called.
func (s *Server) HealthReady(w http.ResponseWriter, _ *http.Request) {
	if s.draining.Load() {
		respondError(w, http.StatusServiceUnavailable, "SHUTTING_DOWN", "server is shutting down")
		return
	}
	respondJSON(w, http.StatusOK, HealthResponse{
		Status:         "ready",
		ConnectedUsers: s.registry.Count(),
		Uptime:         s.uptime().Seconds(),
	})
}

func (s *Server) notFound(w http.ResponseWriter, _ *http.Request) {
	respondError(w, http.StatusNotFound, "NOT_FOUND", "route not found")
}

func (s *Server) methodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
}
