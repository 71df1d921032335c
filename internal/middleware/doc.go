// KNG - Road Incident Alerts and Real-Time Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Iornfire12211221/KNG-sub000

/*
Package middleware provides chi-compatible HTTP middleware for the KNG API.

  - RequestID: X-Request-ID propagation plus request and correlation IDs
    in the logging context
  - PrometheusMetrics: request count and latency by method, route pattern
    and status

PrometheusMetrics wraps the ResponseWriter and must not sit in front of
the WebSocket upgrade route, because the wrapper hides http.Hijacker:

	r.Use(middleware.RequestID)
	r.Group(func(r chi.Router) {
	    r.Use(middleware.PrometheusMetrics)
	    r.Get("/stats", h.Stats)
	})
	r.Get("/ws", wsHandler.ServeHTTP)
*/
package middleware
