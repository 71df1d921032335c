// KNG - Road Incident Alerts and Real-Time Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Iornfire12211221/KNG-sub000

package models

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// MessageType identifies the kind of envelope exchanged over the WebSocket.
type MessageType string

// Message types recognized in both directions.
const (
	MessageTypePing               MessageType = "ping"
	MessageTypePong               MessageType = "pong"
	MessageTypeLocationUpdate     MessageType = "location_update"
	MessageTypeSubscriptionUpdate MessageType = "subscription_update"
	MessageTypeNotification       MessageType = "notification"
	MessageTypePostUpdate         MessageType = "post_update"
	MessageTypeGeofenceAlert      MessageType = "geofence_alert"
	MessageTypeSystem             MessageType = "system"
)

// Known reports whether t is one of the recognized message types.
func (t MessageType) Known() bool {
	switch t {
	case MessageTypePing, MessageTypePong, MessageTypeLocationUpdate, MessageTypeSubscriptionUpdate,
		MessageTypeNotification, MessageTypePostUpdate, MessageTypeGeofenceAlert, MessageTypeSystem:
		return true
	}
	return false
}

// WebSocket close codes used by the server.
const (
	CloseNormal          = 1000
	ClosePolicyViolation = 1008
	CloseInternalError   = 1011
)

// Message is the wire envelope. Data holds the already-encoded payload so a
// Message is never mutated after construction and can be shared between
// recipients.
type Message struct {
	Type        MessageType     `json:"type"`
	Data        json.RawMessage `json:"data"`
	Timestamp   int64           `json:"timestamp"`
	UserID      string          `json:"userId,omitempty"`
	PostID      string          `json:"postId,omitempty"`
	TargetUsers []string        `json:"targetUsers,omitempty"`
}

// NewMessage encodes data and stamps the envelope with the current time in
// milliseconds. A nil data encodes as an empty object.
func NewMessage(t MessageType, data any) (Message, error) {
	return NewMessageAt(t, data, time.Now())
}

// NewMessageAt is NewMessage with an explicit timestamp.
func NewMessageAt(t MessageType, data any, at time.Time) (Message, error) {
	raw := json.RawMessage(`{}`)
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return Message{}, fmt.Errorf("encode %s payload: %w", t, err)
		}
		raw = b
	}
	return Message{Type: t, Data: raw, Timestamp: at.UnixMilli()}, nil
}

// MustMessage is NewMessage for payloads that cannot fail to encode.
func MustMessage(t MessageType, data any) Message {
	m, err := NewMessage(t, data)
	if err != nil {
		panic(err)
	}
	return m
}

// WithUser returns a copy of m addressed to userID.
func (m Message) WithUser(userID string) Message {
	m.UserID = userID
	return m
}

// WithPost returns a copy of m referencing postID.
func (m Message) WithPost(postID string) Message {
	m.PostID = postID
	return m
}

// WithTargets returns a copy of m restricted to the given users.
func (m Message) WithTargets(userIDs ...string) Message {
	m.TargetUsers = append([]string(nil), userIDs...)
	return m
}

// DecodeData unmarshals the payload into v.
func (m Message) DecodeData(v any) error {
	if len(m.Data) == 0 {
		return fmt.Errorf("%s message has no data", m.Type)
	}
	return json.Unmarshal(m.Data, v)
}

// Priority is the urgency hint attached to a notification.
type Priority string

// Notification priorities.
const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// NotificationType classifies notification payloads for client-side filtering.
type NotificationType string

// Notification types. They double as settings categories.
const (
	NotificationNewPost      NotificationType = "new_post"
	NotificationPostApproved NotificationType = "post_approved"
	NotificationPostRejected NotificationType = "post_rejected"
	NotificationGeofence     NotificationType = "geofence"
	NotificationSystem       NotificationType = "system"
)

// NotificationData is the payload of notification and geofence_alert messages.
type NotificationData struct {
	NotificationType NotificationType `json:"notificationType"`
	Title            string           `json:"title"`
	Message          string           `json:"message"`
	Priority         Priority         `json:"priority"`
	Data             map[string]any   `json:"data,omitempty"`
}

// PostAction is the kind of change announced by a post_update message.
type PostAction string

// Post update actions.
const (
	PostActionCreate PostAction = "create"
	PostActionUpdate PostAction = "update"
	PostActionDelete PostAction = "delete"
)

// PostUpdateData is the payload of post_update messages. Post is set for
// create and update, PostID for delete.
type PostUpdateData struct {
	Action PostAction `json:"action"`
	Post   *Post      `json:"post,omitempty"`
	PostID string     `json:"postId,omitempty"`
}

// SystemData is the payload of system messages.
type SystemData struct {
	Event   string `json:"event"`
	Message string `json:"message,omitempty"`
}

// Location is the last position reported by a client.
type Location struct {
	Latitude  float64 `json:"latitude" validate:"latitude"`
	Longitude float64 `json:"longitude" validate:"longitude"`
	Accuracy  float64 `json:"accuracy,omitempty" validate:"gte=0"`
}

// Subscriptions are the independently toggled delivery channels of a connection.
type Subscriptions struct {
	Notifications bool `json:"notifications"`
	Geofencing    bool `json:"geofencing"`
	PostUpdates   bool `json:"postUpdates"`
}

// DefaultSubscriptions enables every channel.
func DefaultSubscriptions() Subscriptions {
	return Subscriptions{Notifications: true, Geofencing: true, PostUpdates: true}
}

// SubscriptionUpdate carries the toggles a client wants to change; nil fields
// are left untouched.
type SubscriptionUpdate struct {
	Notifications *bool `json:"notifications,omitempty"`
	Geofencing    *bool `json:"geofencing,omitempty"`
	PostUpdates   *bool `json:"postUpdates,omitempty"`
}

// Empty reports whether the update changes nothing.
func (u SubscriptionUpdate) Empty() bool {
	return u.Notifications == nil && u.Geofencing == nil && u.PostUpdates == nil
}

// Apply returns s with the non-nil toggles of u applied.
func (s Subscriptions) Apply(u SubscriptionUpdate) Subscriptions {
	if u.Notifications != nil {
		s.Notifications = *u.Notifications
	}
	if u.Geofencing != nil {
		s.Geofencing = *u.Geofencing
	}
	if u.PostUpdates != nil {
		s.PostUpdates = *u.PostUpdates
	}
	return s
}
