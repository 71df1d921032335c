// KNG - Road Incident Alerts and Real-Time Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Iornfire12211221/KNG-sub000

package services

import (
	"context"

	"github.com/thejerf/suture/v4"
)

// ContextRunner is satisfied by every long-lived KNG component:
//   - *websocket.HeartbeatMonitor
//   - *geofence.Engine
//   - *events.Consumer
//
// RunWithContext must block until ctx is canceled and return ctx.Err(), or
// return early with an error to request a restart.
type ContextRunner interface {
	RunWithContext(ctx context.Context) error
}

// RunnerService adapts a ContextRunner to suture.Service.
type RunnerService struct {
	runner ContextRunner
	name   string
}

var _ suture.Service = (*RunnerService)(nil)

// NewHeartbeatService supervises the stale-connection sweeper.
func NewHeartbeatService(monitor ContextRunner) *RunnerService {
	return &RunnerService{runner: monitor, name: "heartbeat-monitor"}
}

// NewGeofenceService supervises the proximity alert engine. A panic in a
// tick is recovered by suture and the engine restarts with empty
// notification history.
func NewGeofenceService(engine ContextRunner) *RunnerService {
	return &RunnerService{runner: engine, name: "geofence-engine"}
}

// NewEventConsumerService supervises the post event consumer. Losing the
// NATS subscription returns an error, so the consumer resubscribes.
func NewEventConsumerService(consumer ContextRunner) *RunnerService {
	return &RunnerService{runner: consumer, name: "post-event-consumer"}
}

// Serve implements suture.Service.
func (s *RunnerService) Serve(ctx context.Context) error {
	return s.runner.RunWithContext(ctx)
}

// String implements fmt.Stringer.
func (s *RunnerService) String() string {
	return s.name
}
