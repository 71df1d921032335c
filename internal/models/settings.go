// KNG - Road Incident Alerts and Real-Time Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Iornfire12211221/KNG-sub000

package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/Iornfire12211221/KNG-sub000/internal/validation"
)

// Geofence radius bounds in meters.
const (
	MinGeofenceRadius     = 500.0
	MaxGeofenceRadius     = 10000.0
	DefaultGeofenceRadius = 2000.0
)

// NotificationSettings are the per-user notification preferences. They are
// owned and persisted by the client and applied by the client package to
// inbound notifications.
type NotificationSettings struct {
	Enabled    bool               `json:"enabled"`
	Categories CategorySettings   `json:"categories"`
	QuietHours QuietHours         `json:"quietHours"`
	Geofence   GeofenceRadiusSpec `json:"geofence"`
}

// CategorySettings toggles individual notification categories.
type CategorySettings struct {
	NewPost  bool `json:"newPost"`
	Approved bool `json:"approved"`
	Rejected bool `json:"rejected"`
	Geofence bool `json:"geofence"`
	System   bool `json:"system"`
}

// QuietHours is a daily window in local "HH:MM" time during which
// notifications are suppressed. End before Start wraps past midnight.
type QuietHours struct {
	Enabled bool   `json:"enabled"`
	Start   string `json:"start" validate:"omitempty,datetime=15:04"`
	End     string `json:"end" validate:"omitempty,datetime=15:04"`
}

// GeofenceRadiusSpec bounds the user's alert radius in meters.
type GeofenceRadiusSpec struct {
	Min     float64 `json:"min" validate:"gte=500,lte=10000"`
	Max     float64 `json:"max" validate:"gte=500,lte=10000,gtefield=Min"`
	Default float64 `json:"default" validate:"gte=500,lte=10000"`
}

// DefaultNotificationSettings enables everything with a 2 km radius and
// quiet hours off.
func DefaultNotificationSettings() NotificationSettings {
	return NotificationSettings{
		Enabled: true,
		Categories: CategorySettings{
			NewPost:  true,
			Approved: true,
			Rejected: true,
			Geofence: true,
			System:   true,
		},
		QuietHours: QuietHours{Start: "23:00", End: "07:00"},
		Geofence: GeofenceRadiusSpec{
			Min:     MinGeofenceRadius,
			Max:     MaxGeofenceRadius,
			Default: DefaultGeofenceRadius,
		},
	}
}

// Validate checks field ranges and that an enabled quiet window has both bounds.
func (s *NotificationSettings) Validate() error {
	if verr := validation.ValidateStruct(s); verr != nil {
		return verr
	}
	if s.QuietHours.Enabled && (s.QuietHours.Start == "" || s.QuietHours.End == "") {
		return errors.New("quiet hours require both start and end")
	}
	if s.Geofence.Default < s.Geofence.Min || s.Geofence.Default > s.Geofence.Max {
		return fmt.Errorf("default radius %.0f outside [%.0f, %.0f]", s.Geofence.Default, s.Geofence.Min, s.Geofence.Max)
	}
	return nil
}

// Allows reports whether a notification of the given type may be shown at now.
func (s *NotificationSettings) Allows(kind NotificationType, now time.Time) bool {
	if !s.Enabled {
		return false
	}
	if !s.categoryEnabled(kind) {
		return false
	}
	return !s.InQuietHours(now)
}

func (s *NotificationSettings) categoryEnabled(kind NotificationType) bool {
	switch kind {
	case NotificationNewPost:
		return s.Categories.NewPost
	case NotificationPostApproved:
		return s.Categories.Approved
	case NotificationPostRejected:
		return s.Categories.Rejected
	case NotificationGeofence:
		return s.Categories.Geofence
	case NotificationSystem:
		return s.Categories.System
	default:
		return true
	}
}

// InQuietHours reports whether now falls in the quiet window. Malformed
// bounds disable the window.
func (s *NotificationSettings) InQuietHours(now time.Time) bool {
	if !s.QuietHours.Enabled {
		return false
	}
	start, err := minuteOfDay(s.QuietHours.Start)
	if err != nil {
		return false
	}
	end, err := minuteOfDay(s.QuietHours.End)
	if err != nil {
		return false
	}
	cur := now.Hour()*60 + now.Minute()

	if start == end {
		return false
	}
	if start < end {
		return cur >= start && cur < end
	}
	return cur >= start || cur < end
}

// EffectiveRadius returns the default radius clamped to the user's bounds and
// to the global [500, 10000] meter range.
func (s *NotificationSettings) EffectiveRadius() float64 {
	r := s.Geofence.Default
	if r == 0 {
		r = DefaultGeofenceRadius
	}
	lo, hi := s.Geofence.Min, s.Geofence.Max
	if lo < MinGeofenceRadius {
		lo = MinGeofenceRadius
	}
	if hi == 0 || hi > MaxGeofenceRadius {
		hi = MaxGeofenceRadius
	}
	if r < lo {
		r = lo
	}
	if r > hi {
		r = hi
	}
	return r
}

func minuteOfDay(hhmm string) (int, error) {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q: %w", hhmm, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}
