// KNG - Road Incident Alerts and Real-Time Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Iornfire12211221/KNG-sub000

package main

import (
	"fmt"

	"github.com/Iornfire12211221/KNG-sub000/internal/config"
	"github.com/Iornfire12211221/KNG-sub000/internal/events"
	"github.com/Iornfire12211221/KNG-sub000/internal/logging"
)

// initEventConsumer connects the NATS subscriber and builds the consumer that
// routes post events to connected clients plus the optional router targets.
// The returned func closes the subscriber.
func initEventConsumer(
	cfg *config.NATSConfig,
	announcer events.Announcer,
	opts ...events.RouterOption,
) (*events.Consumer, func(), error) {
	subscriber, err := events.NewNATSSubscriber(cfg, events.NewWatermillLogger())
	if err != nil {
		return nil, nil, fmt.Errorf("create NATS subscriber: %w", err)
	}

	topic := cfg.Topic
	if topic == "" {
		topic = events.DefaultTopic
	}

	consumer := events.NewConsumer(subscriber, topic, events.NewRouter(announcer, opts...))

	logging.Info().Str("url", cfg.URL).Str("topic", topic).Msg("Post event consumer configured")

	closeFn := func() {
		if err := subscriber.Close(); err != nil {
			logging.Warn().Err(err).Msg("Failed to close NATS subscriber")
		}
	}
	return consumer, closeFn, nil
}
