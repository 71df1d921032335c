// KNG - Road Incident Alerts and Real-Time Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Iornfire12211221/KNG-sub000

/*
Package services provides suture.Service wrappers for KNG components.

Each wrapper translates a component lifecycle into suture's Serve pattern
and names the service for supervisor logs:

	HTTPServerService    ListenAndServe/Shutdown of the API server
	RunnerService        RunWithContext of the heartbeat monitor,
	                     geofence engine and post event consumer

Serve returns ctx.Err() on shutdown. Any other return, or a panic, makes
the owning supervisor restart the service.
*/
package services
