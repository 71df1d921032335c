// KNG - Road Incident Alerts and Real-Time Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Iornfire12211221/KNG-sub000

package poststore

import (
	"context"
	"errors"

	"github.com/Iornfire12211221/KNG-sub000/internal/models"
)

// ErrUpstreamUnavailable wraps every failure to read the active post set.
var ErrUpstreamUnavailable = errors.New("post store unavailable")

// Source returns the currently active posts.
type Source interface {
	ActivePosts(ctx context.Context) ([]models.Post, error)
}

var (
	_ Source = (*HTTPStore)(nil)
	_ Source = (*MemoryStore)(nil)
)
