// KNG - Road Incident Alerts and Real-Time Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Iornfire12211221/KNG-sub000

// Package metrics holds the Prometheus collectors of the delivery service.
// Collectors are registered on the default registry by promauto and exposed
// on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebSocket Metrics
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections",
			Help: "Current number of registered WebSocket connections",
		},
	)

	WSMessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_messages_sent_total",
			Help: "Total number of envelopes queued to clients",
		},
		[]string{"type"},
	)

	WSMessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_messages_received_total",
			Help: "Total number of inbound client frames",
		},
		[]string{"type"},
	)

	WSErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_errors_total",
			Help: "Total number of WebSocket errors",
		},
		[]string{"error_type"}, // auth, protocol, transport, upgrade, internal
	)

	WSDeliveryMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_delivery_misses_total",
			Help: "Messages not delivered because the user was absent or the queue was full",
		},
	)

	WSSupersessions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_supersessions_total",
			Help: "Connections replaced by a newer connection of the same user",
		},
	)

	HeartbeatEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "heartbeat_evictions_total",
			Help: "Connections closed for missing the liveness timeout",
		},
	)

	// Geofence Metrics
	GeofenceTicks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geofence_ticks_total",
			Help: "Geofence evaluation ticks by result",
		},
		[]string{"result"}, // ok, skipped
	)

	GeofenceTickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "geofence_tick_duration_seconds",
			Help:    "Duration of a geofence evaluation tick",
			Buckets: prometheus.DefBuckets,
		},
	)

	GeofenceAlerts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geofence_alerts_total",
			Help: "Geofence alerts by delivery outcome",
		},
		[]string{"outcome"}, // delivered, missed
	)

	GeofenceZones = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "geofence_zones",
			Help: "Number of zones evaluated in the last tick",
		},
	)

	GeofencePanics = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "geofence_user_panics_total",
			Help: "Recovered panics while evaluating a single user",
		},
	)

	// Post Store Metrics
	PostStoreFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "poststore_fetch_duration_seconds",
			Help:    "Duration of active post fetches",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"result"}, // success, error
	)

	PostStoreActivePosts = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "poststore_active_posts",
			Help: "Number of active posts returned by the last fetch",
		},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // success, failure, rejected
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Event Metrics
	PostEventsConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "post_events_consumed_total",
			Help: "Post lifecycle events consumed by action and result",
		},
		[]string{"action", "result"}, // result: handled, failed, malformed
	)

	// Telegram Metrics
	TelegramNotifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telegram_notifications_total",
			Help: "Telegram channel notifications by result",
		},
		[]string{"result"}, // sent, cooldown, error, disabled
	)

	// API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)
)

// RecordAPIRequest records one HTTP request.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordPostStoreFetch records an active-post fetch and, on success, the
// number of posts returned.
func RecordPostStoreFetch(duration time.Duration, posts int, err error) {
	result := "success"
	if err != nil {
		result = "error"
	} else {
		PostStoreActivePosts.Set(float64(posts))
	}
	PostStoreFetchDuration.WithLabelValues(result).Observe(duration.Seconds())
}

// RecordGeofenceTick records a completed or skipped geofence tick.
func RecordGeofenceTick(duration time.Duration, zones int, skipped bool) {
	if skipped {
		GeofenceTicks.WithLabelValues("skipped").Inc()
		return
	}
	GeofenceTicks.WithLabelValues("ok").Inc()
	GeofenceZones.Set(float64(zones))
	GeofenceTickDuration.Observe(duration.Seconds())
}

// RecordGeofenceAlert records an alert attempt.
func RecordGeofenceAlert(delivered bool) {
	if delivered {
		GeofenceAlerts.WithLabelValues("delivered").Inc()
		return
	}
	GeofenceAlerts.WithLabelValues("missed").Inc()
}
