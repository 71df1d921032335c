// KNG - Road Incident Alerts and Real-Time Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Iornfire12211221/KNG-sub000

/*
Package supervisor runs the long-lived KNG services under suture v4.

	RootSupervisor ("kng")
	├── DeliverySupervisor ("delivery-layer")
	│   ├── HeartbeatService
	│   └── GeofenceService
	├── MessagingSupervisor ("messaging-layer")
	│   └── EventConsumerService (if NATS_ENABLED)
	└── APISupervisor ("api-layer")
	    └── HTTPServerService

A service that returns an error or panics is restarted by its layer.
Repeated failures put only that layer into backoff. Supervisor events are
logged through sutureslog into the zerolog pipeline.

Usage:

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfigFrom(&cfg.Supervisor))
	tree.AddDeliveryService(services.NewHeartbeatService(monitor))
	tree.AddAPIService(services.NewHTTPServerService(srv, cfg.Server.ShutdownTimeout))
	err = tree.Serve(ctx)
*/
package supervisor
