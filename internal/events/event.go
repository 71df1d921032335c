// KNG - Road Incident Alerts and Real-Time Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Iornfire12211221/KNG-sub000

// Package events consumes post lifecycle events published by the post store
// and fans them out to connected clients, the in-memory post set and the
// channel notifier.
package events

import (
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/Iornfire12211221/KNG-sub000/internal/models"
	"github.com/Iornfire12211221/KNG-sub000/internal/validation"
)

// DefaultTopic is the NATS subject post lifecycle events are published on.
const DefaultTopic = "posts.events"

// Action is the lifecycle transition carried by a PostEvent.
type Action string

// Post lifecycle actions.
const (
	ActionCreated  Action = "created"
	ActionApproved Action = "approved"
	ActionRejected Action = "rejected"
	ActionUpdated  Action = "updated"
	ActionDeleted  Action = "deleted"
)

// ErrMalformedEvent marks payloads that can never be processed. Consumers
// ack and drop them.
var ErrMalformedEvent = errors.New("malformed post event")

// PostEvent is one post lifecycle transition.
type PostEvent struct {
	EventID   string       `json:"eventId"`
	Action    Action       `json:"action" validate:"required,oneof=created approved rejected updated deleted"`
	Post      *models.Post `json:"post,omitempty"`
	PostID    string       `json:"postId,omitempty"`
	AuthorID  string       `json:"authorId,omitempty"`
	Reason    string       `json:"reason,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

// NewPostEvent builds an event for post with a fresh event id.
func NewPostEvent(action Action, post *models.Post) *PostEvent {
	e := &PostEvent{
		EventID:   uuid.NewString(),
		Action:    action,
		Post:      post,
		Timestamp: time.Now().UTC(),
	}
	if post != nil {
		e.PostID = post.ID
		e.AuthorID = post.AuthorID
	}
	return e
}

// TargetID returns the id of the post the event is about.
func (e *PostEvent) TargetID() string {
	if e.PostID != "" {
		return e.PostID
	}
	if e.Post != nil {
		return e.Post.ID
	}
	return ""
}

// Author returns the author id from the event or its post.
func (e *PostEvent) Author() string {
	if e.AuthorID != "" {
		return e.AuthorID
	}
	if e.Post != nil {
		return e.Post.AuthorID
	}
	return ""
}

// Validate checks the action and that the fields it needs are present.
func (e *PostEvent) Validate() error {
	if verr := validation.ValidateStruct(e); verr != nil {
		return fmt.Errorf("%w: %s", ErrMalformedEvent, verr.Error())
	}
	switch e.Action {
	case ActionCreated, ActionApproved, ActionUpdated:
		if e.Post == nil {
			return fmt.Errorf("%w: %s event without post", ErrMalformedEvent, e.Action)
		}
	case ActionRejected, ActionDeleted:
		if e.TargetID() == "" {
			return fmt.Errorf("%w: %s event without postId", ErrMalformedEvent, e.Action)
		}
	}
	return nil
}

// Decode parses and validates an event payload.
func Decode(payload []byte) (*PostEvent, error) {
	var e PostEvent
	if err := json.Unmarshal(payload, &e); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return &e, nil
}

// ToMessage encodes the event as a watermill message keyed by its event id.
func (e *PostEvent) ToMessage() (*message.Message, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode post event: %w", err)
	}
	id := e.EventID
	if id == "" {
		id = uuid.NewString()
	}
	msg := message.NewMessage(id, payload)
	msg.Metadata.Set("action", string(e.Action))
	return msg, nil
}
