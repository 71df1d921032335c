// KNG - Road Incident Alerts and Real-Time Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Iornfire12211221/KNG-sub000

// Package main is the entry point for the KNG real-time delivery server.
//
// The server keeps one WebSocket session per user, pushes post lifecycle
// notifications to connected drivers and raises proximity alerts when a
// driver comes within the geofence radius of an active incident.
//
// Components are built in this order:
//
//  1. Configuration (koanf: defaults, config file, environment)
//  2. Connection registry, dispatcher and handshake validator
//  3. Post source: HTTP client with circuit breaker, or the in-memory
//     mirror fed by post events when POST_STORE_URL is empty
//  4. Post event consumer over NATS (if NATS_ENABLED)
//  5. Heartbeat monitor and geofence engine
//  6. HTTP router and server
//  7. Supervisor tree
//
// SIGINT or SIGTERM cancels the tree. Readiness drops to 503, the HTTP server
// drains and every WebSocket session is closed with code 1000.
//
// Development:
//
//	export AUTH_MODE=identity
//	export NATS_ENABLED=true NATS_URL=nats://localhost:4222
//	./kng-server
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/Iornfire12211221/KNG-sub000/internal/api"
	"github.com/Iornfire12211221/KNG-sub000/internal/auth"
	"github.com/Iornfire12211221/KNG-sub000/internal/config"
	"github.com/Iornfire12211221/KNG-sub000/internal/events"
	"github.com/Iornfire12211221/KNG-sub000/internal/geofence"
	"github.com/Iornfire12211221/KNG-sub000/internal/logging"
	"github.com/Iornfire12211221/KNG-sub000/internal/models"
	"github.com/Iornfire12211221/KNG-sub000/internal/notifier"
	"github.com/Iornfire12211221/KNG-sub000/internal/poststore"
	"github.com/Iornfire12211221/KNG-sub000/internal/supervisor"
	"github.com/Iornfire12211221/KNG-sub000/internal/supervisor/services"
	ws "github.com/Iornfire12211221/KNG-sub000/internal/websocket"
)

const shutdownCloseReason = "server shutting down"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})

	logging.Info().
		Str("environment", cfg.Server.Environment).
		Str("auth_mode", cfg.Auth.Mode).
		Bool("nats_enabled", cfg.NATS.Enabled).
		Bool("post_store_http", cfg.UsesHTTPPostStore()).
		Msg("Starting KNG delivery server")

	validator, err := auth.NewValidator(&cfg.Auth)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize handshake validator")
	}
	if cfg.Auth.Mode == "identity" {
		logging.Warn().Msg("AUTH_MODE=identity accepts any token equal to the user id; do not expose this server publicly")
	}

	registry := ws.NewRegistry()
	dispatcher := ws.NewDispatcher(registry)
	wsHandler := ws.NewHandler(registry, validator, ws.HandlerOptions{
		AllowedOrigins:  cfg.Security.CORSOrigins,
		ReadBufferSize:  cfg.WebSocket.ReadBufferSize,
		WriteBufferSize: cfg.WebSocket.WriteBufferSize,
		Conn: ws.ConnOptions{
			QueueSize:      cfg.WebSocket.SendQueueSize,
			WriteWait:      cfg.WebSocket.WriteWait,
			PongWait:       cfg.WebSocket.PongWait,
			MaxMessageSize: cfg.WebSocket.MaxMessageSize,
		},
	})

	var (
		posts      geofence.PostSource
		routerOpts []events.RouterOption
	)
	if cfg.UsesHTTPPostStore() {
		posts = poststore.NewHTTPStore(&cfg.PostStore)
		logging.Info().Str("url", cfg.PostStore.BaseURL).Msg("Active posts fetched from post store API")
	} else {
		mirror := poststore.NewMemoryStore(nil)
		posts = mirror
		routerOpts = append(routerOpts, events.WithStore(mirror))
		logging.Info().Msg("Active posts mirrored from post events")
	}

	telegram := notifier.NewTelegramNotifier(&cfg.Telegram)
	if telegram.Enabled() {
		routerOpts = append(routerOpts, events.WithNotifier(telegram))
		logging.Info().Dur("cooldown", cfg.Telegram.Cooldown).Msg("Telegram channel notifier enabled")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfigFrom(&cfg.Supervisor))
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	// Delivery layer
	monitor := ws.NewHeartbeatMonitor(registry, cfg.Heartbeat.Interval, cfg.Heartbeat.Timeout)
	tree.AddDeliveryService(services.NewHeartbeatService(monitor))

	engine := geofence.NewEngine(geofence.Config{
		Interval:      cfg.Geofence.Interval,
		DefaultRadius: cfg.Geofence.DefaultRadius,
		MinRadius:     cfg.Geofence.MinRadius,
		MaxRadius:     cfg.Geofence.MaxRadius,
		Cooldown:      cfg.Geofence.Cooldown,
		Index:         cfg.Geofence.Index,
	}, posts, registry, dispatcher)
	tree.AddDeliveryService(services.NewGeofenceService(engine))
	logging.Info().
		Float64("radius_m", engine.Radius()).
		Dur("interval", cfg.Geofence.Interval).
		Dur("cooldown", cfg.Geofence.Cooldown).
		Msg("Geofence engine configured")

	// Messaging layer
	var closeEvents func()
	if cfg.NATS.Enabled {
		consumer, closeFn, err := initEventConsumer(&cfg.NATS, dispatcher, routerOpts...)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to initialize post event consumer")
		}
		closeEvents = closeFn
		tree.AddMessagingService(services.NewEventConsumerService(consumer))
	}

	// API layer
	apiServer := api.NewServer(registry, wsHandler, cfg.Security)
	httpServer := api.NewHTTPServer(&cfg.Server, apiServer.Router())
	httpServer.RegisterOnShutdown(func() {
		closed := registry.CloseAll(models.CloseNormal, shutdownCloseReason)
		logging.Info().Int("connections", closed).Msg("Closed WebSocket sessions")
	})
	tree.AddAPIService(services.NewHTTPServerService(httpServer, cfg.Server.ShutdownTimeout))
	logging.Info().Str("addr", httpServer.Addr).Msg("HTTP server service added")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		apiServer.MarkDraining()
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	// Sessions upgraded after Shutdown started are not covered by the hook.
	if n := registry.CloseAll(models.CloseNormal, shutdownCloseReason); n > 0 {
		logging.Info().Int("connections", n).Msg("Closed remaining WebSocket sessions")
	}

	if closeEvents != nil {
		closeEvents()
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Server stopped")
}
