// KNG - Road Incident Alerts and Real-Time Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Iornfire12211221/KNG-sub000

package events

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/Iornfire12211221/KNG-sub000/internal/logging"
	"github.com/Iornfire12211221/KNG-sub000/internal/metrics"
)

// Handler processes one decoded event. A returned error nacks the message
// unless it wraps ErrMalformedEvent.
type Handler interface {
	HandlePostEvent(ctx context.Context, event *PostEvent) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, event *PostEvent) error

// HandlePostEvent calls f.
func (f HandlerFunc) HandlePostEvent(ctx context.Context, event *PostEvent) error {
	return f(ctx, event)
}

// ConsumerStats counts processed messages.
type ConsumerStats struct {
	Received  int64
	Processed int64
	Malformed int64
	Failed    int64
}

// Consumer reads post events from a watermill subscriber.
type Consumer struct {
	subscriber message.Subscriber
	topic      string
	handler    Handler

	received  atomic.Int64
	processed atomic.Int64
	malformed atomic.Int64
	failed    atomic.Int64
}

// NewConsumer creates a consumer for topic. An empty topic uses DefaultTopic.
func NewConsumer(subscriber message.Subscriber, topic string, handler Handler) *Consumer {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Consumer{subscriber: subscriber, topic: topic, handler: handler}
}

// RunWithContext subscribes and processes messages until ctx is canceled or
// the subscription closes.
func (c *Consumer) RunWithContext(ctx context.Context) error {
	messages, err := c.subscriber.Subscribe(ctx, c.topic)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", c.topic, err)
	}

	logging.Info().Str("component", "events").Str("topic", c.topic).Msg("post event consumer started")
	for {
		select {
		case <-ctx.Done():
			logging.Info().Str("component", "events").Msg("post event consumer stopped")
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return errors.New("post event subscription closed")
			}
			c.process(ctx, msg)
		}
	}
}

func (c *Consumer) process(ctx context.Context, msg *message.Message) {
	c.received.Add(1)
	ctx = logging.ContextWithCorrelationID(ctx, msg.UUID)
	log := logging.Ctx(ctx).With().Str("component", "events").Logger()

	event, err := Decode(msg.Payload)
	if err == nil {
		err = c.handler.HandlePostEvent(ctx, event)
	}

	action := msg.Metadata.Get("action")
	if event != nil {
		action = string(event.Action)
	}
	if action == "" {
		action = "unknown"
	}

	switch {
	case err == nil:
		c.processed.Add(1)
		metrics.PostEventsConsumed.WithLabelValues(action, "ok").Inc()
		msg.Ack()
	case errors.Is(err, ErrMalformedEvent):
		c.malformed.Add(1)
		metrics.PostEventsConsumed.WithLabelValues(action, "malformed").Inc()
		log.Warn().Err(err).Msg("dropping malformed post event")
		msg.Ack()
	default:
		c.failed.Add(1)
		metrics.PostEventsConsumed.WithLabelValues(action, "error").Inc()
		log.Error().Err(err).Str("action", action).Msg("post event handler failed")
		msg.Nack()
	}
}

// Stats returns a snapshot of the consumer counters.
func (c *Consumer) Stats() ConsumerStats {
	return ConsumerStats{
		Received:  c.received.Load(),
		Processed: c.processed.Load(),
		Malformed: c.malformed.Load(),
		Failed:    c.failed.Load(),
	}
}
