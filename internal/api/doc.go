// KNG - Road Incident Alerts and Real-Time Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Iornfire12211221/KNG-sub000

/*
Package api is the HTTP surface of the KNG delivery service.

Routes:

	GET /ws            WebSocket upgrade (per-IP handshake rate limit)
	GET /stats         {"connectedUsers": n, "uptimeSeconds": s}
	GET /health/live   process liveness
	GET /health/ready  503 once shutdown has begun
	GET /metrics       Prometheus exposition

Every route gets request IDs, real client IPs, panic recovery and CORS.
Everything except /ws is also instrumented by middleware.PrometheusMetrics.
*/
package api
