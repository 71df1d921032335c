// KNG - Road Incident Alerts and Real-Time Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Iornfire12211221/KNG-sub000

// Package geofence periodically matches connected users against the active
// incident posts and pushes a geofence_alert when a user is inside a post's
// radius. Alerts for a (user, zone) pair are rate limited by a cooldown.
package geofence

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/Iornfire12211221/KNG-sub000/internal/geo"
	"github.com/Iornfire12211221/KNG-sub000/internal/logging"
	"github.com/Iornfire12211221/KNG-sub000/internal/metrics"
	"github.com/Iornfire12211221/KNG-sub000/internal/models"
	"github.com/Iornfire12211221/KNG-sub000/internal/websocket"
)

// PostSource returns the currently active posts.
type PostSource interface {
	ActivePosts(ctx context.Context) ([]models.Post, error)
}

// UserSource iterates snapshots of connected users.
type UserSource interface {
	ForEach(pred func(*websocket.ConnectedUser) bool, fn func(websocket.ConnectedUser))
}

// Sender delivers a message to one user.
type Sender interface {
	SendTo(userID string, msg models.Message) bool
}

// Config controls evaluation.
type Config struct {
	Interval      time.Duration
	DefaultRadius float64
	MinRadius     float64
	MaxRadius     float64
	Cooldown      time.Duration
	Index         string
}

// DefaultConfig evaluates every 10s with a 2 km radius and a 5 min cooldown.
func DefaultConfig() Config {
	return Config{
		Interval:      10 * time.Second,
		DefaultRadius: models.DefaultGeofenceRadius,
		MinRadius:     models.MinGeofenceRadius,
		MaxRadius:     models.MaxGeofenceRadius,
		Cooldown:      5 * time.Minute,
		Index:         IndexLinear,
	}
}

// TickResult summarizes one evaluation.
type TickResult struct {
	Skipped    bool
	Err        error
	Zones      int
	Candidates int
	Alerts     int
	Delivered  int
	Panics     int
}

// Engine runs the evaluation loop.
type Engine struct {
	cfg     Config
	radius  float64
	posts   PostSource
	users   UserSource
	sender  Sender
	matcher Matcher
	now     func() time.Time

	// mu serializes ticks; state is only touched while it is held.
	mu    sync.Mutex
	state *stateTable
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithMatcher overrides the matcher chosen by Config.Index.
func WithMatcher(m Matcher) Option {
	return func(e *Engine) {
		e.matcher = m
	}
}

// NewEngine wires an engine. Zero config fields take the defaults.
func NewEngine(cfg Config, posts PostSource, users UserSource, sender Sender, opts ...Option) *Engine {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.DefaultRadius <= 0 {
		cfg.DefaultRadius = def.DefaultRadius
	}
	if cfg.MinRadius <= 0 {
		cfg.MinRadius = def.MinRadius
	}
	if cfg.MaxRadius <= 0 {
		cfg.MaxRadius = def.MaxRadius
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}

	e := &Engine{
		cfg:     cfg,
		radius:  geo.ClampRadius(cfg.DefaultRadius, cfg.MinRadius, cfg.MaxRadius),
		posts:   posts,
		users:   users,
		sender:  sender,
		matcher: NewMatcher(cfg.Index),
		now:     time.Now,
		state:   newStateTable(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Radius returns the effective zone radius in meters.
func (e *Engine) Radius() float64 {
	return e.radius
}

// Tick runs one evaluation. A post store failure skips the tick and is
// reported in the result; it is never fatal to the loop.
func (e *Engine) Tick(ctx context.Context) TickResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	ctx = logging.ContextWithNewCorrelationID(ctx)
	log := logging.Ctx(ctx).With().Str("component", "geofence").Logger()
	started := time.Now()

	posts, err := e.posts.ActivePosts(ctx)
	if err != nil {
		metrics.RecordGeofenceTick(0, 0, true)
		log.Warn().Err(err).Msg("geofence tick skipped: post store unavailable")
		return TickResult{Skipped: true, Err: err}
	}

	now := e.now()
	zones := BuildZones(posts, e.radius, now)
	e.matcher.Reset(zones)

	res := TickResult{Zones: len(zones)}
	zoneIDs := make(map[string]struct{}, len(zones))
	for i := range zones {
		zoneIDs[zones[i].ID] = struct{}{}
	}
	evaluated := make(map[string]struct{})

	e.users.ForEach(isCandidate, func(u websocket.ConnectedUser) {
		evaluated[u.ID] = struct{}{}
		res.Candidates++
		alerts, delivered, panicked := e.evaluateUser(u, now)
		res.Alerts += alerts
		res.Delivered += delivered
		if panicked {
			res.Panics++
		}
	})

	e.state.prune(zoneIDs, evaluated, now, e.cfg.Cooldown)

	metrics.RecordGeofenceTick(time.Since(started), len(zones), false)
	if res.Alerts > 0 || res.Panics > 0 {
		log.Info().Int("zones", res.Zones).Int("candidates", res.Candidates).Int("alerts", res.Alerts).
			Int("delivered", res.Delivered).Int("panics", res.Panics).Msg("geofence tick")
	} else {
		log.Debug().Int("zones", res.Zones).Int("candidates", res.Candidates).Msg("geofence tick")
	}
	return res
}

func isCandidate(u *websocket.ConnectedUser) bool {
	return u.Subscriptions.Geofencing && u.Location != nil
}

// evaluateUser handles one user. A panic is recovered so one bad record
// never aborts the scan.
func (e *Engine) evaluateUser(u websocket.ConnectedUser, now time.Time) (alerts, delivered int, panicked bool) {
	defer func() {
		if rec := recover(); rec != nil {
			panicked = true
			metrics.GeofencePanics.Inc()
			logging.Error().Str("component", "geofence").Str("user_id", u.ID).Interface("panic", rec).
				Msg("recovered panic while evaluating user")
		}
	}()

	matches := e.matcher.Match(u.Location.Latitude, u.Location.Longitude)
	inside := make(map[string]struct{}, len(matches))
	for _, m := range matches {
		inside[m.Zone.ID] = struct{}{}
		st := e.state.get(u.ID, m.Zone.ID)
		st.entered = true
		if !st.due(now, e.cfg.Cooldown) {
			continue
		}

		msg, err := alertMessage(u.ID, m, now)
		if err != nil {
			logging.Error().Err(err).Str("component", "geofence").Str("zone_id", m.Zone.ID).Msg("failed to build alert")
			continue
		}
		alerts++
		ok := e.sender.SendTo(u.ID, msg)
		metrics.RecordGeofenceAlert(ok)
		if ok {
			delivered++
		}
		// Stamped even when the write failed.
		st.lastNotification = now
	}
	e.state.leaveExcept(u.ID, inside)
	return alerts, delivered, false
}

func alertMessage(userID string, m Match, now time.Time) (models.Message, error) {
	z := m.Zone
	p := &z.Post
	distance := math.Round(m.Distance)

	text := fmt.Sprintf("%s %.0f m from you", p.Type.Label(), distance)
	if p.Address != "" {
		text += " (" + p.Address + ")"
	}
	if p.Description != "" {
		text += ": " + p.Description
	}

	data := models.NotificationData{
		NotificationType: models.NotificationGeofence,
		Title:            p.Type.Label() + " nearby",
		Message:          text,
		Priority:         p.Severity.Priority(),
		Data: map[string]any{
			"postId":    z.PostID,
			"zoneId":    z.ID,
			"distance":  distance,
			"radius":    z.Radius,
			"postType":  string(p.Type),
			"severity":  string(p.Severity),
			"latitude":  z.Lat,
			"longitude": z.Lon,
		},
	}
	msg, err := models.NewMessageAt(models.MessageTypeGeofenceAlert, data, now)
	if err != nil {
		return models.Message{}, err
	}
	return msg.WithUser(userID).WithPost(z.PostID).WithTargets(userID), nil
}

// RunWithContext ticks every Interval until ctx is canceled.
func (e *Engine) RunWithContext(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()

	logging.Info().Str("component", "geofence").Dur("interval", e.cfg.Interval).Float64("radius_m", e.radius).
		Dur("cooldown", e.cfg.Cooldown).Msg("geofence engine started")

	for {
		select {
		case <-ctx.Done():
			logging.Info().Str("component", "geofence").Msg("geofence engine stopped")
			return ctx.Err()
		case <-ticker.C:
			e.Tick(ctx)
		}
	}
}

// TrackedPairs returns the number of (user, zone) states held.
func (e *Engine) TrackedPairs() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.pairs()
}
