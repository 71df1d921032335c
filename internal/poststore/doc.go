// KNG - Road Incident Alerts and Real-Time Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Iornfire12211221/KNG-sub000

/*
Package poststore reads the set of active incident posts.

Posts are owned by an external post store; this service never writes them.
Two sources implement the same read contract:

  - HTTPStore fetches GET {baseURL}/api/posts/active on every call, guarded by
    a circuit breaker. Any failure is reported as ErrUpstreamUnavailable so the
    geofence engine can skip its tick instead of treating the zone set as empty.
  - MemoryStore keeps the active set in memory and is fed from post lifecycle
    events. It is used when no HTTP base URL is configured.

Both are safe for concurrent use.
*/
package poststore
