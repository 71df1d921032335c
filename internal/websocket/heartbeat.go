// KNG - Road Incident Alerts and Real-Time Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Iornfire12211221/KNG-sub000

package websocket

import (
	"context"
	"sort"
	"time"

	"github.com/Iornfire12211221/KNG-sub000/internal/logging"
	"github.com/Iornfire12211221/KNG-sub000/internal/metrics"
	"github.com/Iornfire12211221/KNG-sub000/internal/models"
)

// Heartbeat defaults.
const (
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultHeartbeatTimeout  = 60 * time.Second
)

// ShutdownReason identifies why a loop stopped.
type ShutdownReason string

const (
	// ShutdownReasonContextCanceled is the normal graceful shutdown path.
	ShutdownReasonContextCanceled ShutdownReason = "context_canceled"

	// ShutdownReasonContextDeadline means the context deadline was exceeded.
	ShutdownReasonContextDeadline ShutdownReason = "context_deadline"
)

func shutdownReason(ctx context.Context) ShutdownReason {
	if ctx.Err() == context.DeadlineExceeded {
		return ShutdownReasonContextDeadline
	}
	return ShutdownReasonContextCanceled
}

// HeartbeatMonitor evicts connections that stopped answering and pings the
// rest. It never waits for a pong: liveness is judged on the next check from
// LastPing, which pongs and application pings refresh.
type HeartbeatMonitor struct {
	registry *Registry
	interval time.Duration
	timeout  time.Duration
	now      func() time.Time
}

// NewHeartbeatMonitor uses the defaults for non-positive durations.
func NewHeartbeatMonitor(registry *Registry, interval, timeout time.Duration) *HeartbeatMonitor {
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	if timeout <= 0 {
		timeout = DefaultHeartbeatTimeout
	}
	return &HeartbeatMonitor{
		registry: registry,
		interval: interval,
		timeout:  timeout,
		now:      time.Now,
	}
}

// Check evicts every connection whose LastPing is older than the timeout and
// pings the others after clearing IsAlive. It returns the evicted user IDs
// in sorted order.
func (m *HeartbeatMonitor) Check(now time.Time) []string {
	var evicted []string

	r := m.registry
	r.mu.Lock()
	for id, u := range r.users {
		if now.Sub(u.LastPing) > m.timeout {
			_ = u.Transport.Close(models.CloseNormal, "heartbeat timeout")
			delete(r.users, id)
			evicted = append(evicted, id)
			continue
		}
		u.IsAlive = false
		_ = u.Transport.Ping()
	}
	count := len(r.users)
	r.mu.Unlock()

	if len(evicted) == 0 {
		return nil
	}
	sort.Strings(evicted)
	metrics.WSConnections.Set(float64(count))
	metrics.HeartbeatEvictions.Add(float64(len(evicted)))
	for _, id := range evicted {
		logging.Info().Str("component", "heartbeat").Str("user_id", id).
			Dur("timeout", m.timeout).Msg("connection evicted after missed heartbeats")
	}
	return evicted
}

// RunWithContext checks every interval until ctx is canceled.
func (m *HeartbeatMonitor) RunWithContext(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	logging.Info().Str("component", "heartbeat").Dur("interval", m.interval).Dur("timeout", m.timeout).
		Msg("heartbeat monitor started")

	for {
		select {
		case <-ctx.Done():
			logging.Info().Str("component", "heartbeat").Str("reason", string(shutdownReason(ctx))).
				Msg("heartbeat monitor stopped")
			return ctx.Err()
		case <-ticker.C:
			m.Check(m.now())
		}
	}
}
