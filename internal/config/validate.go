// KNG - Road Incident Alerts and Real-Time Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Iornfire12211221/KNG-sub000

package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Geofence radius bounds accepted from configuration, in meters.
const (
	minGeofenceRadius = 500.0
	maxGeofenceRadius = 10000.0
)

var validLogLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "error": true,
}

var validLogFormats = map[string]bool{
	"json": true, "console": true,
}

// Validate checks every section and returns the first problem found.
func (c *Config) Validate() error {
	validators := []func() error{
		c.validateServer,
		c.validateLogging,
		c.validateWebSocket,
		c.validateHeartbeat,
		c.validateGeofence,
		c.validatePostStore,
		c.validateNATS,
		c.validateTelegram,
		c.validateAuth,
		c.validateSecurity,
	}
	for _, validate := range validators {
		if err := validate(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535")
	}
	return nil
}

func (c *Config) validateLogging() error {
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("LOG_LEVEL must be one of: trace, debug, info, warn, error")
	}
	if c.Logging.Format != "" && !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("LOG_FORMAT must be json or console")
	}
	return nil
}

func (c *Config) validateWebSocket() error {
	ws := c.WebSocket
	if ws.SendQueueSize < 1 {
		return fmt.Errorf("WS_SEND_QUEUE_SIZE must be at least 1")
	}
	if ws.MaxMessageSize < 1024 {
		return fmt.Errorf("WS_MAX_MESSAGE_SIZE must be at least 1024 bytes")
	}
	if ws.WriteWait <= 0 || ws.PongWait <= 0 {
		return fmt.Errorf("WS_WRITE_WAIT and WS_PONG_WAIT must be positive")
	}
	return nil
}

func (c *Config) validateHeartbeat() error {
	if c.Heartbeat.Interval < time.Second {
		return fmt.Errorf("HEARTBEAT_INTERVAL must be at least 1s")
	}
	if c.Heartbeat.Timeout <= c.Heartbeat.Interval {
		return fmt.Errorf("HEARTBEAT_TIMEOUT (%s) must be greater than HEARTBEAT_INTERVAL (%s)",
			c.Heartbeat.Timeout, c.Heartbeat.Interval)
	}
	return nil
}

func (c *Config) validateGeofence() error {
	g := c.Geofence
	if g.Interval < time.Second {
		return fmt.Errorf("GEOFENCE_INTERVAL must be at least 1s")
	}
	if g.MinRadius < minGeofenceRadius || g.MaxRadius > maxGeofenceRadius || g.MinRadius > g.MaxRadius {
		return fmt.Errorf("GEOFENCE_MIN_RADIUS and GEOFENCE_MAX_RADIUS must satisfy 500 <= min <= max <= 10000")
	}
	if g.DefaultRadius < g.MinRadius || g.DefaultRadius > g.MaxRadius {
		return fmt.Errorf("GEOFENCE_DEFAULT_RADIUS must be between %.0f and %.0f", g.MinRadius, g.MaxRadius)
	}
	if g.Cooldown <= 0 {
		return fmt.Errorf("GEOFENCE_COOLDOWN must be positive")
	}
	if g.Index != "linear" && g.Index != "grid" {
		return fmt.Errorf("GEOFENCE_INDEX must be linear or grid")
	}
	return nil
}

func (c *Config) validatePostStore() error {
	if c.PostStore.BaseURL == "" {
		if !c.NATS.Enabled {
			return errors.New("POST_STORE_URL is required unless NATS_ENABLED=true feeds the in-memory post store")
		}
		return nil
	}
	if err := validateHTTPURL(c.PostStore.BaseURL, "POST_STORE_URL"); err != nil {
		return err
	}
	if c.PostStore.Timeout <= 0 {
		return fmt.Errorf("POST_STORE_TIMEOUT must be positive")
	}
	return nil
}

func (c *Config) validateNATS() error {
	if !c.NATS.Enabled {
		return nil
	}
	if err := validateNATSURL(c.NATS.URL); err != nil {
		return fmt.Errorf("NATS_URL is invalid: %w", err)
	}
	if c.NATS.Topic == "" {
		return fmt.Errorf("NATS_TOPIC is required when NATS_ENABLED=true")
	}
	if c.NATS.SubscribersCount < 1 || c.NATS.SubscribersCount > 32 {
		return fmt.Errorf("NATS_SUBSCRIBERS must be between 1 and 32")
	}
	return nil
}

func (c *Config) validateTelegram() error {
	t := c.Telegram
	if !t.Enabled {
		return nil
	}
	if t.BotToken == "" || t.ChatID == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID are required when TELEGRAM_ENABLED=true")
	}
	if err := validateHTTPURL(t.APIURL, "TELEGRAM_API_URL"); err != nil {
		return err
	}
	if t.RateLimit <= 0 || t.RateBurst < 1 {
		return fmt.Errorf("TELEGRAM_RATE_LIMIT must be positive and TELEGRAM_RATE_BURST at least 1")
	}
	return nil
}

func (c *Config) validateAuth() error {
	switch c.Auth.Mode {
	case "identity":
		if c.IsProduction() {
			return fmt.Errorf("AUTH_MODE=identity is not allowed with ENVIRONMENT=production; use AUTH_MODE=jwt")
		}
		return nil
	case "jwt":
		if len(c.Auth.JWTSecret) < 32 {
			return fmt.Errorf("AUTH_JWT_SECRET must be at least 32 characters when AUTH_MODE=jwt")
		}
		return nil
	default:
		return fmt.Errorf("AUTH_MODE must be identity or jwt, got %q", c.Auth.Mode)
	}
}

func (c *Config) validateSecurity() error {
	if c.hasWildcardCORS() && c.IsProduction() {
		return fmt.Errorf("CORS_ORIGINS=* (wildcard) is not allowed in production. " +
			"Set specific origins: CORS_ORIGINS=https://yourdomain.com,https://app.yourdomain.com")
	}
	if c.Security.RateLimitDisabled {
		return nil
	}
	if c.Security.WSRateLimitReqs < 1 {
		return fmt.Errorf("WS_RATE_LIMIT must be at least 1 (or set DISABLE_RATE_LIMIT=true)")
	}
	if c.Security.WSRateLimitWindow < time.Second {
		return fmt.Errorf("WS_RATE_LIMIT_WINDOW must be at least 1s")
	}
	return nil
}

// validateHTTPURL requires an http(s) base URL without query parameters.
func validateHTTPURL(rawURL, fieldName string) error {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%s failed to parse URL: %w", fieldName, err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("%s scheme must be http or https, got: %s", fieldName, parsedURL.Scheme)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("%s host is required", fieldName)
	}
	if parsedURL.RawQuery != "" {
		return fmt.Errorf("%s should not contain query parameters, remove: ?%s", fieldName, parsedURL.RawQuery)
	}
	return nil
}

func validateNATSURL(rawURL string) error {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("failed to parse URL: %w", err)
	}
	validSchemes := map[string]bool{"nats": true, "tls": true, "ws": true, "wss": true}
	if !validSchemes[parsedURL.Scheme] {
		return fmt.Errorf("scheme must be nats, tls, ws, or wss, got: %s", parsedURL.Scheme)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("host is required (e.g., localhost:4222, nats.example.com)")
	}
	return nil
}
