// KNG - Road Incident Alerts and Real-Time Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Iornfire12211221/KNG-sub000

package websocket

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Iornfire12211221/KNG-sub000/internal/auth"
	"github.com/Iornfire12211221/KNG-sub000/internal/logging"
	"github.com/Iornfire12211221/KNG-sub000/internal/metrics"
	"github.com/Iornfire12211221/KNG-sub000/internal/models"
	"github.com/Iornfire12211221/KNG-sub000/internal/validation"
)

// HandlerOptions configures the upgrade endpoint.
type HandlerOptions struct {
	// AllowedOrigins lists accepted Origin headers; "*" or an empty list
	// accepts any origin.
	AllowedOrigins  []string
	ReadBufferSize  int
	WriteBufferSize int
	Conn            ConnOptions
}

// Handler upgrades HTTP requests to client connections and owns each
// connection's lifecycle: authenticate, register, serve frames, release.
type Handler struct {
	registry  *Registry
	validator auth.TokenValidator
	upgrader  websocket.Upgrader
	connOpts  ConnOptions
	now       func() time.Time
}

// NewHandler builds the /ws handler.
func NewHandler(registry *Registry, validator auth.TokenValidator, opts HandlerOptions) *Handler {
	h := &Handler{
		registry:  registry,
		validator: validator,
		connOpts:  opts.Conn.withDefaults(),
		now:       time.Now,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  opts.ReadBufferSize,
		WriteBufferSize: opts.WriteBufferSize,
		CheckOrigin:     originChecker(opts.AllowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[strings.TrimRight(o, "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		_, ok := set[u.Scheme+"://"+u.Host]
		return ok
	}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	userID := query.Get("userId")
	token := query.Get("token")

	authErr := h.validator.Validate(userID, token)

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error response.
		metrics.WSErrors.WithLabelValues("upgrade").Inc()
		logging.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}

	if authErr != nil {
		h.reject(ws, userID, token, authErr)
		return
	}

	log := logging.WithComponent("websocket").With().Str("user_id", userID).Logger()
	conn := NewConn(ws, h.connOpts, log)
	h.serve(conn, userID, log)
}

// reject closes an unauthenticated socket with 1008 before it is ever
// registered.
func (h *Handler) reject(ws *websocket.Conn, userID, token string, authErr error) {
	metrics.WSErrors.WithLabelValues("auth").Inc()

	reason := "authentication failed"
	var ae *auth.AuthError
	if errors.As(authErr, &ae) {
		reason = ae.Reason
	}
	logging.Warn().Str("component", "websocket").Str("user_id", userID).
		Str("token", logging.SanitizeToken(token)).Str("reason", reason).Msg("handshake rejected")

	payload := websocket.FormatCloseMessage(models.ClosePolicyViolation, reason)
	_ = ws.WriteControl(websocket.CloseMessage, payload, time.Now().Add(h.connOpts.WriteWait))
	_ = ws.Close()
}

// session is the per-connection state of serve.
type session struct {
	userID string
	conn   *Conn
	log    zerolog.Logger
}

func (h *Handler) serve(conn *Conn, userID string, log zerolog.Logger) {
	superseded := h.registry.Register(userID, conn)
	defer h.registry.Release(userID, conn)

	welcome, err := models.NewMessage(models.MessageTypeSystem, models.SystemData{
		Event:   "connected",
		Message: "Connected to real-time notifications",
	})
	if err == nil {
		err = h.sendFrame(conn, welcome.WithUser(userID))
	}
	if err != nil {
		metrics.WSErrors.WithLabelValues("internal").Inc()
		log.Error().Err(err).Msg("failed to open connection")
		_ = conn.Close(models.CloseInternalError, "internal error")
		conn.Wait()
		return
	}
	log.Info().Bool("superseded", superseded).Int("connections", h.registry.Count()).Msg("client connected")

	s := &session{userID: userID, conn: conn, log: log}
	readErr := conn.ReadLoop(
		func(frame []byte) { h.handleFrame(s, frame) },
		func() { h.registry.Touch(userID, conn, h.now()) },
	)
	_ = conn.Close(models.CloseNormal, "")
	conn.Wait()

	if readErr != nil {
		metrics.WSErrors.WithLabelValues("transport").Inc()
		log.Debug().Err(readErr).Msg("connection lost")
	}
	log.Info().Msg("client disconnected")
}

func (h *Handler) handleFrame(s *session, frame []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			metrics.WSErrors.WithLabelValues("internal").Inc()
			s.log.Error().Interface("panic", rec).Msg("panic while handling frame")
			_ = s.conn.Close(models.CloseInternalError, "internal error")
		}
	}()

	if err := h.dispatchFrame(s, frame); err != nil {
		var perr *ProtocolError
		if errors.As(err, &perr) {
			metrics.WSErrors.WithLabelValues("protocol").Inc()
			s.log.Warn().Err(err).Msg("dropping client frame")
			return
		}
		s.log.Error().Err(err).Msg("failed to handle client frame")
	}
}

func (h *Handler) dispatchFrame(s *session, frame []byte) error {
	var msg models.Message
	if err := json.Unmarshal(frame, &msg); err != nil {
		return &ProtocolError{Reason: "malformed envelope", Err: err}
	}

	label := string(msg.Type)
	if !msg.Type.Known() {
		label = "unknown"
	}
	metrics.WSMessagesReceived.WithLabelValues(label).Inc()

	switch msg.Type {
	case models.MessageTypePing:
		h.registry.Touch(s.userID, s.conn, h.now())
		pong, err := models.NewMessage(models.MessageTypePong, nil)
		if err != nil {
			return err
		}
		if err := h.sendFrame(s.conn, pong); err != nil {
			s.log.Debug().Err(err).Msg("pong not queued")
		}
		return nil

	case models.MessageTypeLocationUpdate:
		var loc models.Location
		if err := decodePayload(msg, &loc); err != nil {
			return err
		}
		h.registry.SetLocation(s.userID, s.conn, loc)
		s.log.Debug().Float64("lat", loc.Latitude).Float64("lon", loc.Longitude).Msg("location updated")
		return nil

	case models.MessageTypeSubscriptionUpdate:
		var update models.SubscriptionUpdate
		if err := decodePayload(msg, &update); err != nil {
			return err
		}
		subs, _ := h.registry.ApplySubscriptions(s.userID, s.conn, update)
		s.log.Debug().Bool("notifications", subs.Notifications).Bool("geofencing", subs.Geofencing).
			Bool("post_updates", subs.PostUpdates).Msg("subscriptions updated")
		return nil

	default:
		return &ProtocolError{Type: string(msg.Type), Reason: "unsupported message type"}
	}
}

// decodePayload decodes and validates msg.Data into v.
func decodePayload(msg models.Message, v any) error {
	if err := msg.DecodeData(v); err != nil {
		return &ProtocolError{Type: string(msg.Type), Reason: "malformed payload", Err: err}
	}
	if verr := validation.ValidateStruct(v); verr != nil {
		return &ProtocolError{Type: string(msg.Type), Reason: "invalid payload", Err: verr}
	}
	return nil
}

func (h *Handler) sendFrame(conn *Conn, msg models.Message) error {
	frame, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode %s: %w", msg.Type, err)
	}
	if err := conn.Send(frame); err != nil {
		return err
	}
	metrics.WSMessagesSent.WithLabelValues(string(msg.Type)).Inc()
	return nil
}
