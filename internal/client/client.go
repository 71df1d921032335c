// KNG - Road Incident Alerts and Real-Time Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Iornfire12211221/KNG-sub000

// Package client is a reconnecting WebSocket client for the delivery
// service. It keeps one logical session across physical reconnects:
// outbound messages sent while offline are queued and replayed in order on
// the next successful connection. When notification settings are given,
// inbound notifications are filtered through them and the server channels
// are synced from them on every connection.
//
//	c, err := client.New(client.Options{URL: "wss://example.org/ws", UserID: id, Token: token})
//	c.Start(ctx)
//	defer c.Stop()
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/Iornfire12211221/KNG-sub000/internal/logging"
	"github.com/Iornfire12211221/KNG-sub000/internal/models"
)

// Defaults.
const (
	DefaultBaseDelay    = time.Second
	DefaultMaxDelay     = 30 * time.Second
	DefaultPingInterval = 30 * time.Second
	DefaultQueueSize    = 100
	DefaultWriteWait    = 10 * time.Second
)

var (
	// ErrStopped is returned by Start and Send after Stop.
	ErrStopped = errors.New("client stopped")

	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("client already started")
)

// Conn is the subset of *websocket.Conn the client uses.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Dialer opens a connection to urlStr.
type Dialer interface {
	Dial(ctx context.Context, urlStr string) (Conn, error)
}

// GorillaDialer dials with a gorilla websocket.Dialer.
type GorillaDialer struct {
	Dialer *websocket.Dialer
	Header http.Header
}

// Dial implements Dialer.
func (d GorillaDialer) Dial(ctx context.Context, urlStr string) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, resp, err := dialer.DialContext(ctx, urlStr, d.Header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Options configures a Client.
type Options struct {
	// URL is the WebSocket endpoint, e.g. wss://host/ws.
	URL    string
	UserID string
	Token  string

	BaseDelay    time.Duration
	MaxDelay     time.Duration
	MaxAttempts  int // consecutive reconnect attempts; 0 means unlimited
	PingInterval time.Duration
	QueueSize    int
	WriteWait    time.Duration

	Dialer Dialer

	// OnStateChange is called from the client goroutine on every transition.
	OnStateChange func(State)

	// OnMessage receives every inbound message except pong and the
	// notifications suppressed by Settings.
	OnMessage func(models.Message)

	// Settings are the user's notification preferences. Nil delivers
	// everything.
	Settings *models.NotificationSettings

	// Now is the clock for quiet hours; defaults to time.Now.
	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.BaseDelay <= 0 {
		o.BaseDelay = DefaultBaseDelay
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = DefaultMaxDelay
	}
	if o.MaxDelay < o.BaseDelay {
		o.MaxDelay = o.BaseDelay
	}
	if o.PingInterval <= 0 {
		o.PingInterval = DefaultPingInterval
	}
	if o.QueueSize <= 0 {
		o.QueueSize = DefaultQueueSize
	}
	if o.WriteWait <= 0 {
		o.WriteWait = DefaultWriteWait
	}
	if o.Dialer == nil {
		o.Dialer = GorillaDialer{}
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Client is a reconnecting session. Create with New.
type Client struct {
	opts    Options
	dialURL string

	// mu guards the fields below and serializes writes to conn.
	mu       sync.Mutex
	state    State
	conn     Conn
	queue    []models.Message
	dropped  int
	attempt  int // failed connects since the last session that produced a frame
	settings *models.NotificationSettings
	muted    int
	started  bool
	stopped  bool
	lastPong time.Time
	cancel   context.CancelFunc
	done     chan struct{}
}

// New validates opts and returns a disconnected client.
func New(opts Options) (*Client, error) {
	if opts.UserID == "" {
		return nil, errors.New("client: UserID is required")
	}
	u, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("client: invalid URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("client: URL scheme must be ws or wss, got %q", u.Scheme)
	}
	q := u.Query()
	q.Set("userId", opts.UserID)
	q.Set("token", opts.Token)
	u.RawQuery = q.Encode()

	var settings *models.NotificationSettings
	if opts.Settings != nil {
		s := *opts.Settings
		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("client: invalid notification settings: %w", err)
		}
		settings = &s
	}

	return &Client{
		opts:     opts.withDefaults(),
		dialURL:  u.String(),
		settings: settings,
		done:     make(chan struct{}),
	}, nil
}

// State returns the current state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// QueueLen returns the number of queued outbound messages.
func (c *Client) QueueLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Dropped returns how many queued messages were discarded because the queue
// was full.
func (c *Client) Dropped() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

// Suppressed returns how many inbound notifications the settings filtered out.
func (c *Client) Suppressed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.muted
}

// LastPong returns when the last application pong arrived.
func (c *Client) LastPong() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastPong
}

// Done is closed when the client goroutine exits, either after Stop or
// after MaxAttempts consecutive failed reconnects.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Start connects in the background. Canceling ctx has the same effect as
// Stop.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return ErrStopped
	}
	if c.started {
		return ErrAlreadyStarted
	}
	c.started = true

	ctx, c.cancel = context.WithCancel(ctx)
	go c.run(ctx)
	return nil
}

// Stop cancels any pending reconnect, closes the connection with 1000 and
// waits for the client goroutine. A stopped client cannot be restarted.
func (c *Client) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		<-c.done
		return
	}
	c.stopped = true
	cancel := c.cancel
	c.mu.Unlock()

	if cancel == nil {
		close(c.done)
		return
	}
	cancel()
	<-c.done
}

// Send writes msg now when connected, otherwise queues it. The oldest queued
// message is dropped when the queue is full.
func (c *Client) Send(msg models.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return ErrStopped
	}
	if c.state == StateConnected && c.conn != nil {
		if err := c.writeLocked(msg); err == nil {
			return nil
		}
		// The read loop notices the closed conn and reconnects.
		_ = c.conn.Close()
	}
	c.enqueueLocked(msg)
	return nil
}

// SendLocation reports the client position.
func (c *Client) SendLocation(loc models.Location) error {
	msg, err := models.NewMessage(models.MessageTypeLocationUpdate, loc)
	if err != nil {
		return err
	}
	return c.Send(msg.WithUser(c.opts.UserID))
}

// UpdateSubscriptions toggles delivery channels on the server.
func (c *Client) UpdateSubscriptions(update models.SubscriptionUpdate) error {
	msg, err := models.NewMessage(models.MessageTypeSubscriptionUpdate, update)
	if err != nil {
		return err
	}
	return c.Send(msg.WithUser(c.opts.UserID))
}

// ApplySettings replaces the notification settings and pushes the matching
// channel toggles to the server.
func (c *Client) ApplySettings(settings models.NotificationSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	c.settings = &settings
	c.mu.Unlock()
	return c.UpdateSubscriptions(channelsFor(&settings))
}

// channelsFor maps settings onto server channels. Post updates feed the map
// and are never turned off here.
func channelsFor(s *models.NotificationSettings) models.SubscriptionUpdate {
	c := s.Categories
	notifications := s.Enabled && (c.NewPost || c.Approved || c.Rejected || c.System)
	geofencing := s.Enabled && c.Geofence
	return models.SubscriptionUpdate{Notifications: &notifications, Geofencing: &geofencing}
}

func (c *Client) enqueueLocked(msg models.Message) {
	if len(c.queue) >= c.opts.QueueSize {
		c.queue = c.queue[1:]
		c.dropped++
	}
	c.queue = append(c.queue, msg)
}

func (c *Client) writeLocked(msg models.Message) error {
	frame, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode %s: %w", msg.Type, err)
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	changed := c.state != s
	c.state = s
	c.mu.Unlock()

	if changed && c.opts.OnStateChange != nil {
		c.opts.OnStateChange(s)
	}
}

func (c *Client) run(ctx context.Context) {
	log := logging.WithComponent("client").With().Str("user_id", c.opts.UserID).Logger()
	defer close(c.done)
	defer c.setState(StateDisconnected)

	for {
		c.setState(StateConnecting)
		conn, err := c.opts.Dialer.Dial(ctx, c.dialURL)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Debug().Err(err).Msg("dial failed")
		} else {
			c.session(ctx, conn)
			if ctx.Err() != nil {
				return
			}
			log.Debug().Msg("connection lost")
		}

		if !c.waitRetry(ctx) {
			if ctx.Err() == nil {
				log.Warn().Int("max_attempts", c.opts.MaxAttempts).Msg("giving up after repeated reconnect failures")
			}
			return
		}
	}
}

// waitRetry sleeps for the next backoff delay. It returns false when the
// attempt budget is spent or ctx is done.
func (c *Client) waitRetry(ctx context.Context) bool {
	c.mu.Lock()
	attempt := c.attempt
	if c.opts.MaxAttempts > 0 && attempt >= c.opts.MaxAttempts {
		c.mu.Unlock()
		return false
	}
	c.attempt++
	c.mu.Unlock()

	c.setState(StateReconnecting)
	timer := time.NewTimer(Backoff(attempt, c.opts.BaseDelay, c.opts.MaxDelay))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// session runs one physical connection until it fails or ctx is done.
func (c *Client) session(ctx context.Context, conn Conn) {
	if !c.open(conn) {
		_ = conn.Close()
		return
	}
	if c.opts.OnStateChange != nil {
		c.opts.OnStateChange(StateConnected)
	}

	sessionDone := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.pingLoop(conn, sessionDone)
	}()
	go func() {
		defer wg.Done()
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client stopped"),
				time.Now().Add(time.Second))
			_ = conn.Close()
		case <-sessionDone:
		}
	}()

	c.readLoop(conn)

	c.mu.Lock()
	c.conn = nil
	c.mu.Unlock()
	close(sessionDone)
	_ = conn.Close()
	wg.Wait()
}

// open installs conn, syncs channels from the settings and replays the queue
// in order. Messages that fail to write stay queued and the connection is
// abandoned.
func (c *Client) open(conn Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn = conn
	if c.settings != nil {
		channels, err := models.NewMessage(models.MessageTypeSubscriptionUpdate, channelsFor(c.settings))
		if err == nil {
			if err := c.writeLocked(channels.WithUser(c.opts.UserID)); err != nil {
				c.conn = nil
				return false
			}
		}
	}
	for len(c.queue) > 0 {
		if err := c.writeLocked(c.queue[0]); err != nil {
			c.conn = nil
			return false
		}
		c.queue = c.queue[1:]
	}
	// Connected is published after the replay, so Send cannot overtake it.
	c.state = StateConnected
	return true
}

// readLoop resets the reconnect budget on the first frame, so a server that
// accepts and immediately closes still counts as a failed attempt.
func (c *Client) readLoop(conn Conn) {
	established := false
	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if !established {
			established = true
			c.mu.Lock()
			c.attempt = 0
			c.mu.Unlock()
		}
		var msg models.Message
		if err := json.Unmarshal(frame, &msg); err != nil {
			logging.Debug().Str("component", "client").Err(err).Msg("dropping undecodable frame")
			continue
		}
		if msg.Type == models.MessageTypePong {
			c.mu.Lock()
			c.lastPong = time.Now()
			c.mu.Unlock()
			continue
		}
		if !c.allowed(msg) {
			c.mu.Lock()
			c.muted++
			c.mu.Unlock()
			continue
		}
		if c.opts.OnMessage != nil {
			c.opts.OnMessage(msg)
		}
	}
}

// allowed applies the notification settings to notification and
// geofence_alert messages. Geofence alerts farther than the user's radius
// are dropped as well.
func (c *Client) allowed(msg models.Message) bool {
	if msg.Type != models.MessageTypeNotification && msg.Type != models.MessageTypeGeofenceAlert {
		return true
	}
	c.mu.Lock()
	settings := c.settings
	c.mu.Unlock()
	if settings == nil {
		return true
	}

	var n models.NotificationData
	if err := msg.DecodeData(&n); err != nil {
		return true
	}
	kind := n.NotificationType
	if msg.Type == models.MessageTypeGeofenceAlert {
		kind = models.NotificationGeofence
		if d, ok := n.Data["distance"].(float64); ok && d > settings.EffectiveRadius() {
			return false
		}
	}
	return settings.Allows(kind, c.opts.Now())
}

func (c *Client) pingLoop(conn Conn, done <-chan struct{}) {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			ping, err := models.NewMessage(models.MessageTypePing, nil)
			if err != nil {
				continue
			}
			c.mu.Lock()
			if c.conn == conn {
				if err := c.writeLocked(ping.WithUser(c.opts.UserID)); err != nil {
					_ = conn.Close()
				}
			}
			c.mu.Unlock()
		}
	}
}
