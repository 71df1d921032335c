// KNG - Road Incident Alerts and Real-Time Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Iornfire12211221/KNG-sub000

package models

import "time"

// PostType is the category of a road incident report.
type PostType string

// Post types.
const (
	PostTypeDPS      PostType = "dps"
	PostTypePatrol   PostType = "patrol"
	PostTypeAccident PostType = "accident"
	PostTypeCamera   PostType = "camera"
	PostTypeRoadwork PostType = "roadwork"
	PostTypeOther    PostType = "other"
)

// Label returns a short human-readable name for the post type.
func (t PostType) Label() string {
	switch t {
	case PostTypeDPS:
		return "Traffic police post"
	case PostTypePatrol:
		return "Patrol car"
	case PostTypeAccident:
		return "Accident"
	case PostTypeCamera:
		return "Speed camera"
	case PostTypeRoadwork:
		return "Roadworks"
	default:
		return "Road incident"
	}
}

// Severity grades how disruptive an incident is.
type Severity string

// Severities.
const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Priority maps a severity to the notification priority used for alerts.
func (s Severity) Priority() Priority {
	switch s {
	case SeverityHigh:
		return PriorityHigh
	case SeverityLow:
		return PriorityLow
	default:
		return PriorityNormal
	}
}

// ModerationStatus is the publication state decided upstream.
type ModerationStatus string

// Moderation statuses.
const (
	StatusPending  ModerationStatus = "pending"
	StatusApproved ModerationStatus = "approved"
	StatusRejected ModerationStatus = "rejected"
)

// Post is an incident report as owned by the external post store. The
// delivery service only ever reads it.
type Post struct {
	ID          string           `json:"id" validate:"required"`
	Latitude    float64          `json:"latitude" validate:"latitude"`
	Longitude   float64          `json:"longitude" validate:"longitude"`
	Type        PostType         `json:"type" validate:"omitempty,oneof=dps patrol accident camera roadwork other"`
	Severity    Severity         `json:"severity" validate:"omitempty,oneof=low medium high"`
	Description string           `json:"description,omitempty"`
	Address     string           `json:"address,omitempty"`
	Status      ModerationStatus `json:"status,omitempty" validate:"omitempty,oneof=pending approved rejected"`
	AuthorID    string           `json:"authorId,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
	ExpiresAt   *time.Time       `json:"expiresAt,omitempty"`
}

// IsActive reports whether the post is approved and not expired at now.
// An empty status is treated as approved since the store only serves
// published posts.
func (p *Post) IsActive(now time.Time) bool {
	if p.Status != "" && p.Status != StatusApproved {
		return false
	}
	if p.ExpiresAt != nil && !now.Before(*p.ExpiresAt) {
		return false
	}
	return true
}
