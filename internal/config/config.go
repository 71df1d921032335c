// KNG - Road Incident Alerts and Real-Time Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Iornfire12211221/KNG-sub000

// Package config loads the service configuration.
//
// Values are layered with koanf, lowest priority first:
//
//  1. built-in defaults (defaultConfig)
//  2. an optional YAML file (CONFIG_PATH or the DefaultConfigPaths search list)
//  3. environment variables, mapped explicitly by envTransformFunc
//
// The result is validated before it is returned; validation errors name the
// environment variable to fix.
package config

import "time"

// Config is the complete service configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Logging    LoggingConfig    `koanf:"logging"`
	WebSocket  WebSocketConfig  `koanf:"websocket"`
	Heartbeat  HeartbeatConfig  `koanf:"heartbeat"`
	Geofence   GeofenceConfig   `koanf:"geofence"`
	PostStore  PostStoreConfig  `koanf:"poststore"`
	NATS       NATSConfig       `koanf:"nats"`
	Telegram   TelegramConfig   `koanf:"telegram"`
	Auth       AuthConfig       `koanf:"auth"`
	Security   SecurityConfig   `koanf:"security"`
	Supervisor SupervisorConfig `koanf:"supervisor"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	Environment     string        `koanf:"environment"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// WebSocketConfig holds per-connection transport limits.
type WebSocketConfig struct {
	ReadBufferSize  int           `koanf:"read_buffer_size"`
	WriteBufferSize int           `koanf:"write_buffer_size"`
	SendQueueSize   int           `koanf:"send_queue_size"`
	MaxMessageSize  int64         `koanf:"max_message_size"`
	WriteWait       time.Duration `koanf:"write_wait"`
	PongWait        time.Duration `koanf:"pong_wait"`
}

// HeartbeatConfig controls liveness probing.
type HeartbeatConfig struct {
	Interval time.Duration `koanf:"interval"`
	Timeout  time.Duration `koanf:"timeout"`
}

// GeofenceConfig controls the proximity alert engine.
type GeofenceConfig struct {
	Interval      time.Duration `koanf:"interval"`
	DefaultRadius float64       `koanf:"default_radius"`
	MinRadius     float64       `koanf:"min_radius"`
	MaxRadius     float64       `koanf:"max_radius"`
	Cooldown      time.Duration `koanf:"cooldown"`
	Index         string        `koanf:"index"`
}

// PostStoreConfig points at the external post store. An empty BaseURL
// selects the in-memory store fed by post events.
type PostStoreConfig struct {
	BaseURL string        `koanf:"base_url"`
	APIKey  string        `koanf:"api_key"`
	Timeout time.Duration `koanf:"timeout"`
}

// NATSConfig configures the post event subscriber.
type NATSConfig struct {
	Enabled          bool          `koanf:"enabled"`
	URL              string        `koanf:"url"`
	Topic            string        `koanf:"topic"`
	SubscribersCount int           `koanf:"subscribers_count"`
	AckWaitTimeout   time.Duration `koanf:"ack_wait_timeout"`
	CloseTimeout     time.Duration `koanf:"close_timeout"`
	MaxReconnects    int           `koanf:"max_reconnects"`
	ReconnectWait    time.Duration `koanf:"reconnect_wait"`
}

// TelegramConfig configures the channel notifier.
type TelegramConfig struct {
	Enabled   bool          `koanf:"enabled"`
	BotToken  string        `koanf:"bot_token"`
	ChatID    string        `koanf:"chat_id"`
	APIURL    string        `koanf:"api_url"`
	Cooldown  time.Duration `koanf:"cooldown"`
	RateLimit float64       `koanf:"rate_limit"` // messages per second
	RateBurst int           `koanf:"rate_burst"`
	Timeout   time.Duration `koanf:"timeout"`
}

// AuthConfig selects the handshake token validator.
type AuthConfig struct {
	Mode      string        `koanf:"mode"` // identity or jwt
	JWTSecret string        `koanf:"jwt_secret"`
	JWTLeeway time.Duration `koanf:"jwt_leeway"`
}

// SecurityConfig holds CORS and handshake rate limiting.
type SecurityConfig struct {
	CORSOrigins       []string      `koanf:"cors_origins"`
	WSRateLimitReqs   int           `koanf:"ws_rate_limit_reqs"`
	WSRateLimitWindow time.Duration `koanf:"ws_rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// SupervisorConfig tunes the suture tree.
type SupervisorConfig struct {
	FailureThreshold float64       `koanf:"failure_threshold"`
	FailureDecay     float64       `koanf:"failure_decay"`
	FailureBackoff   time.Duration `koanf:"failure_backoff"`
	ShutdownTimeout  time.Duration `koanf:"shutdown_timeout"`
}

// IsProduction reports whether ENVIRONMENT is production.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

// UsesHTTPPostStore reports whether active posts come from the external store.
func (c *Config) UsesHTTPPostStore() bool {
	return c.PostStore.BaseURL != ""
}

func (c *Config) hasWildcardCORS() bool {
	for _, origin := range c.Security.CORSOrigins {
		if origin == "*" {
			return true
		}
	}
	return false
}
