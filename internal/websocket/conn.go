// KNG - Road Incident Alerts and Real-Time Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Iornfire12211221/KNG-sub000

package websocket

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	maxMessageSize = 512 * 1024 // 512 KB
	sendQueueSize  = 256
)

// ConnOptions tunes a Conn. Zero values take the package defaults.
type ConnOptions struct {
	QueueSize      int
	WriteWait      time.Duration
	PongWait       time.Duration
	MaxMessageSize int64
}

func (o ConnOptions) withDefaults() ConnOptions {
	if o.QueueSize <= 0 {
		o.QueueSize = sendQueueSize
	}
	if o.WriteWait <= 0 {
		o.WriteWait = writeWait
	}
	if o.PongWait <= 0 {
		o.PongWait = pongWait
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = maxMessageSize
	}
	return o
}

// Conn is a gorilla connection with a bounded outbound queue drained by a
// single write pump. Send, Ping and Close never block, which makes Conn a
// Transport the registry can use under its lock.
type Conn struct {
	ws   *websocket.Conn
	opts ConnOptions
	log  zerolog.Logger

	send chan []byte
	ping chan struct{}

	// done is closed exactly once by Close; closeCode and closeReason are
	// written before that and read by the write pump after it.
	done        chan struct{}
	closeOnce   sync.Once
	closeCode   int
	closeReason string

	pumpDone chan struct{}
}

// NewConn wraps ws and starts its write pump.
func NewConn(ws *websocket.Conn, opts ConnOptions, log zerolog.Logger) *Conn {
	opts = opts.withDefaults()
	c := &Conn{
		ws:       ws,
		opts:     opts,
		log:      log,
		send:     make(chan []byte, opts.QueueSize),
		ping:     make(chan struct{}, 1),
		done:     make(chan struct{}),
		pumpDone: make(chan struct{}),
	}
	go c.writePump()
	return c
}

// Send queues an encoded frame.
func (c *Conn) Send(frame []byte) error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return ErrQueueFull
	}
}

// Ping asks the write pump to send a protocol ping. A ping already pending
// absorbs this one.
func (c *Conn) Ping() error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}
	select {
	case c.ping <- struct{}{}:
	default:
	}
	return nil
}

// Close makes the write pump send a close frame with code and shut the
// socket. Later calls are no-ops.
func (c *Conn) Close(code int, reason string) error {
	c.closeOnce.Do(func() {
		c.closeCode = code
		c.closeReason = reason
		close(c.done)
	})
	return nil
}

// Done is closed once Close has been called.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// ReadLoop reads frames until the socket fails or is closed, calling
// onFrame for each text frame and onPong for each pong. It returns a
// *TransportError, or nil on a normal close.
func (c *Conn) ReadLoop(onFrame func([]byte), onPong func()) error {
	c.ws.SetReadLimit(c.opts.MaxMessageSize)
	if err := c.ws.SetReadDeadline(time.Now().Add(c.opts.PongWait)); err != nil {
		return &TransportError{Op: "set read deadline", Err: err}
	}
	c.ws.SetPongHandler(func(string) error {
		if onPong != nil {
			onPong()
		}
		return c.ws.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	})

	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			select {
			case <-c.done:
				// We closed the socket ourselves.
				return nil
			default:
			}
			return &TransportError{Op: "read", Err: err}
		}
		if kind != websocket.TextMessage {
			continue
		}
		if err := c.ws.SetReadDeadline(time.Now().Add(c.opts.PongWait)); err != nil {
			return &TransportError{Op: "set read deadline", Err: err}
		}
		onFrame(data)
	}
}

// Wait blocks until the write pump has closed the socket.
func (c *Conn) Wait() {
	<-c.pumpDone
}

func (c *Conn) writePump() {
	defer func() {
		_ = c.ws.Close()
		close(c.pumpDone)
	}()

	for {
		select {
		case <-c.done:
			c.writeClose()
			return

		case frame := <-c.send:
			if err := c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteWait)); err != nil {
				c.fail("set write deadline", err)
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.fail("write", err)
				return
			}

		case <-c.ping:
			deadline := time.Now().Add(c.opts.WriteWait)
			if err := c.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.fail("ping", err)
				return
			}
		}
	}
}

func (c *Conn) writeClose() {
	payload := websocket.FormatCloseMessage(c.closeCode, c.closeReason)
	err := c.ws.WriteControl(websocket.CloseMessage, payload, time.Now().Add(c.opts.WriteWait))
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		c.log.Debug().Err(err).Int("code", c.closeCode).Msg("close frame not delivered")
	}
}

// fail marks the connection closed after a write error so further sends are
// refused; the deferred socket close then ends the read loop.
func (c *Conn) fail(op string, err error) {
	c.log.Debug().Err(&TransportError{Op: op, Err: err}).Msg("write pump stopped")
	_ = c.Close(websocket.CloseAbnormalClosure, "")
}
