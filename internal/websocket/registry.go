// KNG - Road Incident Alerts and Real-Time Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Iornfire12211221/KNG-sub000

package websocket

import (
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/Iornfire12211221/KNG-sub000/internal/logging"
	"github.com/Iornfire12211221/KNG-sub000/internal/metrics"
	"github.com/Iornfire12211221/KNG-sub000/internal/models"
)

// Transport is the write side of one client connection. Every method must
// return without blocking on the network: the registry calls them while
// holding its lock.
type Transport interface {
	// Send queues an encoded envelope. It returns ErrQueueFull or
	// ErrConnClosed instead of waiting.
	Send(frame []byte) error

	// Ping queues a protocol-level ping.
	Ping() error

	// Close starts closing with the given close code. Only the first call
	// has an effect.
	Close(code int, reason string) error
}

// ConnectedUser is the registry's view of one live connection.
type ConnectedUser struct {
	ID            string
	ConnID        string
	Transport     Transport
	ConnectedAt   time.Time
	LastPing      time.Time
	Location      *models.Location
	Subscriptions models.Subscriptions
	IsAlive       bool
}

func (u *ConnectedUser) snapshot() ConnectedUser {
	cp := *u
	if u.Location != nil {
		loc := *u.Location
		cp.Location = &loc
	}
	return cp
}

// Registry holds at most one connection per user ID. A single mutex guards
// all state, so registration, supersession and sends are linearizable.
type Registry struct {
	mu    sync.Mutex
	users map[string]*ConnectedUser
	now   func() time.Time
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithClock replaces time.Now for connection timestamps.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		r.now = now
	}
}

// NewRegistry returns an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		users: make(map[string]*ConnectedUser),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register installs transport as the connection of id. If id already had a
// connection it is closed with 1000 and replaced in the same critical
// section, and superseded is true.
func (r *Registry) Register(id string, transport Transport) (superseded bool) {
	now := r.now()
	user := &ConnectedUser{
		ID:            id,
		ConnID:        uuid.New().String(),
		Transport:     transport,
		ConnectedAt:   now,
		LastPing:      now,
		Subscriptions: models.DefaultSubscriptions(),
		IsAlive:       true,
	}

	r.mu.Lock()
	prev, ok := r.users[id]
	if ok {
		_ = prev.Transport.Close(models.CloseNormal, "superseded by a new connection")
	}
	r.users[id] = user
	count := len(r.users)
	r.mu.Unlock()

	metrics.WSConnections.Set(float64(count))
	if ok {
		metrics.WSSupersessions.Inc()
		logging.Info().Str("user_id", id).Str("conn_id", user.ConnID).Str("replaced_conn_id", prev.ConnID).
			Msg("connection superseded")
	}
	return ok
}

// Unregister removes and closes the connection of id. It reports whether
// anything was removed; repeated calls are no-ops.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	user, ok := r.users[id]
	if ok {
		delete(r.users, id)
		_ = user.Transport.Close(models.CloseNormal, "")
	}
	count := len(r.users)
	r.mu.Unlock()

	if ok {
		metrics.WSConnections.Set(float64(count))
	}
	return ok
}

// Release removes id only if its current transport is transport. A
// connection uses it on its own close path so that a superseded connection
// closing late never removes its successor.
func (r *Registry) Release(id string, transport Transport) bool {
	r.mu.Lock()
	user, ok := r.users[id]
	if ok && user.Transport == transport {
		delete(r.users, id)
	} else {
		ok = false
	}
	count := len(r.users)
	r.mu.Unlock()

	if ok {
		metrics.WSConnections.Set(float64(count))
	}
	return ok
}

// Get returns a copy of the user's state.
func (r *Registry) Get(id string) (ConnectedUser, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return ConnectedUser{}, false
	}
	return user.snapshot(), true
}

// Count returns the number of registered connections.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users)
}

// ForEach calls fn with a snapshot of every user accepted by pred (nil
// accepts all). Snapshots are taken under the lock and fn runs after it is
// released, ordered by user ID, so fn may call back into the registry.
func (r *Registry) ForEach(pred func(*ConnectedUser) bool, fn func(ConnectedUser)) {
	r.mu.Lock()
	users := make([]ConnectedUser, 0, len(r.users))
	for _, u := range r.users {
		if pred == nil || pred(u) {
			users = append(users, u.snapshot())
		}
	}
	r.mu.Unlock()

	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	for _, u := range users {
		fn(u)
	}
}

// Touch records liveness for id if transport is still its connection.
// LastPing never moves backwards.
func (r *Registry) Touch(id string, transport Transport, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok || user.Transport != transport {
		return false
	}
	if now.After(user.LastPing) {
		user.LastPing = now
	}
	user.IsAlive = true
	return true
}

// SetLocation overwrites the last known location of id.
func (r *Registry) SetLocation(id string, transport Transport, loc models.Location) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok || user.Transport != transport {
		return false
	}
	user.Location = &loc
	return true
}

// ApplySubscriptions applies the non-nil toggles of update and returns the
// resulting subscriptions.
func (r *Registry) ApplySubscriptions(id string, transport Transport, update models.SubscriptionUpdate) (models.Subscriptions, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok || user.Transport != transport {
		return models.Subscriptions{}, false
	}
	user.Subscriptions = user.Subscriptions.Apply(update)
	return user.Subscriptions, true
}

// Send writes msg to the connection of id without blocking. It returns false
// when the user is absent or the transport refused the frame.
func (r *Registry) Send(id string, msg models.Message) bool {
	frame, err := json.Marshal(msg)
	if err != nil {
		logging.Error().Err(err).Str("type", string(msg.Type)).Msg("failed to encode message")
		return false
	}

	r.mu.Lock()
	user, ok := r.users[id]
	if ok {
		ok = user.Transport.Send(frame) == nil
	}
	r.mu.Unlock()

	recordSend(msg.Type, ok)
	return ok
}

// SendEach writes msg to every connection accepted by filter in a single
// pass and returns how many transports accepted it.
func (r *Registry) SendEach(filter func(*ConnectedUser) bool, msg models.Message) int {
	frame, err := json.Marshal(msg)
	if err != nil {
		logging.Error().Err(err).Str("type", string(msg.Type)).Msg("failed to encode message")
		return 0
	}

	sent, missed := 0, 0
	r.mu.Lock()
	for _, u := range r.users {
		if filter != nil && !filter(u) {
			continue
		}
		if u.Transport.Send(frame) == nil {
			sent++
		} else {
			missed++
		}
	}
	r.mu.Unlock()

	metrics.WSMessagesSent.WithLabelValues(string(msg.Type)).Add(float64(sent))
	metrics.WSDeliveryMisses.Add(float64(missed))
	return sent
}

// CloseAll closes and removes every connection. Used on shutdown.
func (r *Registry) CloseAll(code int, reason string) int {
	r.mu.Lock()
	n := len(r.users)
	for id, u := range r.users {
		_ = u.Transport.Close(code, reason)
		delete(r.users, id)
	}
	r.mu.Unlock()

	metrics.WSConnections.Set(0)
	return n
}

func recordSend(t models.MessageType, ok bool) {
	if ok {
		metrics.WSMessagesSent.WithLabelValues(string(t)).Inc()
		return
	}
	metrics.WSDeliveryMisses.Inc()
}
