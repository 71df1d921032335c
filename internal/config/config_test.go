// KNG - Road Incident Alerts and Real-Time Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Iornfire12211221/KNG-sub000

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	cfg := defaultConfig()
	cfg.PostStore.BaseURL = "http://posts.internal:8000"
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Heartbeat.Interval != 30*time.Second || cfg.Heartbeat.Timeout != 60*time.Second {
		t.Errorf("Heartbeat = %+v", cfg.Heartbeat)
	}
	if cfg.Geofence.Interval != 10*time.Second || cfg.Geofence.Cooldown != 5*time.Minute {
		t.Errorf("Geofence = %+v", cfg.Geofence)
	}
	if cfg.Geofence.DefaultRadius != 2000 || cfg.Geofence.MinRadius != 500 || cfg.Geofence.MaxRadius != 10000 {
		t.Errorf("Geofence radius = %+v", cfg.Geofence)
	}
	if cfg.Auth.Mode != "identity" {
		t.Errorf("Auth.Mode = %q", cfg.Auth.Mode)
	}
	if cfg.NATS.Enabled || cfg.Telegram.Enabled {
		t.Error("optional integrations should be disabled by default")
	}
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("POST_STORE_URL", "https://posts.example.org")
	t.Setenv("POST_STORE_API_KEY", "k3y")
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("GEOFENCE_COOLDOWN", "2m")
	t.Setenv("GEOFENCE_DEFAULT_RADIUS", "1500")
	t.Setenv("GEOFENCE_INDEX", "grid")
	t.Setenv("HEARTBEAT_TIMEOUT", "90s")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example ,")
	t.Setenv("TELEGRAM_RATE_LIMIT", "0.5")
	t.Setenv("UNRELATED_VARIABLE", "ignored")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.PostStore.BaseURL != "https://posts.example.org" || cfg.PostStore.APIKey != "k3y" {
		t.Errorf("PostStore = %+v", cfg.PostStore)
	}
	if cfg.Server.Port != 9090 || cfg.Logging.Level != "debug" {
		t.Errorf("Server.Port = %d, Logging.Level = %q", cfg.Server.Port, cfg.Logging.Level)
	}
	if cfg.Geofence.Cooldown != 2*time.Minute || cfg.Geofence.DefaultRadius != 1500 || cfg.Geofence.Index != "grid" {
		t.Errorf("Geofence = %+v", cfg.Geofence)
	}
	if cfg.Heartbeat.Timeout != 90*time.Second || cfg.Heartbeat.Interval != 30*time.Second {
		t.Errorf("Heartbeat = %+v", cfg.Heartbeat)
	}
	if len(cfg.Security.CORSOrigins) != 2 || cfg.Security.CORSOrigins[1] != "https://b.example" {
		t.Errorf("CORSOrigins = %v", cfg.Security.CORSOrigins)
	}
	if cfg.Telegram.RateLimit != 0.5 {
		t.Errorf("Telegram.RateLimit = %v", cfg.Telegram.RateLimit)
	}
	if !cfg.UsesHTTPPostStore() {
		t.Error("UsesHTTPPostStore = false")
	}
}

func TestLoad_FileThenEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
server:
  port: 7000
nats:
  enabled: true
  url: nats://broker:4222
geofence:
  cooldown: 10m
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("HTTP_PORT", "7001")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 7001 {
		t.Errorf("environment should override file: port = %d", cfg.Server.Port)
	}
	if !cfg.NATS.Enabled || cfg.NATS.URL != "nats://broker:4222" {
		t.Errorf("NATS = %+v", cfg.NATS)
	}
	if cfg.Geofence.Cooldown != 10*time.Minute {
		t.Errorf("Geofence.Cooldown = %v", cfg.Geofence.Cooldown)
	}
	if cfg.UsesHTTPPostStore() {
		t.Error("no POST_STORE_URL should select the in-memory store")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	t.Setenv("POST_STORE_URL", "https://posts.example.org")
	t.Setenv("AUTH_MODE", "magic")

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "AUTH_MODE") {
		t.Errorf("err = %v, want AUTH_MODE validation error", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid defaults with store", func(*Config) {}, ""},
		{"no post source", func(c *Config) { c.PostStore.BaseURL = "" }, "POST_STORE_URL"},
		{"events feed memory store", func(c *Config) { c.PostStore.BaseURL = ""; c.NATS.Enabled = true }, ""},
		{"store url scheme", func(c *Config) { c.PostStore.BaseURL = "ftp://x" }, "POST_STORE_URL"},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "HTTP_PORT"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "LOG_LEVEL"},
		{"timeout not above interval", func(c *Config) { c.Heartbeat.Timeout = 30 * time.Second }, "HEARTBEAT_TIMEOUT"},
		{"radius below floor", func(c *Config) { c.Geofence.MinRadius = 100 }, "GEOFENCE_MIN_RADIUS"},
		{"default outside bounds", func(c *Config) { c.Geofence.DefaultRadius = 20000 }, "GEOFENCE_DEFAULT_RADIUS"},
		{"unknown index", func(c *Config) { c.Geofence.Index = "rtree" }, "GEOFENCE_INDEX"},
		{"nats url", func(c *Config) { c.NATS.Enabled = true; c.NATS.URL = "http://broker" }, "NATS_URL"},
		{"telegram without token", func(c *Config) { c.Telegram.Enabled = true; c.Telegram.ChatID = "1" }, "TELEGRAM_BOT_TOKEN"},
		{"jwt short secret", func(c *Config) { c.Auth.Mode = "jwt"; c.Auth.JWTSecret = "short" }, "AUTH_JWT_SECRET"},
		{"jwt ok", func(c *Config) {
			c.Auth.Mode = "jwt"
			c.Auth.JWTSecret = strings.Repeat("s", 32)
		}, ""},
		{"identity in production", func(c *Config) {
			c.Server.Environment = "production"
			c.Security.CORSOrigins = []string{"https://app.example"}
		}, "AUTH_MODE=identity"},
		{"wildcard cors in production", func(c *Config) {
			c.Server.Environment = "production"
			c.Auth.Mode = "jwt"
			c.Auth.JWTSecret = strings.Repeat("s", 32)
		}, "CORS_ORIGINS"},
		{"rate limit zero", func(c *Config) { c.Security.WSRateLimitReqs = 0 }, "WS_RATE_LIMIT"},
		{"rate limit disabled", func(c *Config) {
			c.Security.WSRateLimitReqs = 0
			c.Security.RateLimitDisabled = true
		}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want mention of %s", err, tt.wantErr)
			}
		})
	}
}

func TestEnvTransformFunc(t *testing.T) {
	tests := map[string]string{
		"HTTP_PORT":          "server.port",
		"POST_STORE_URL":     "poststore.base_url",
		"TELEGRAM_BOT_TOKEN": "telegram.bot_token",
		"auth_jwt_secret":    "auth.jwt_secret",
		"PATH":               "",
	}
	for in, want := range tests {
		if got := envTransformFunc(in); got != want {
			t.Errorf("envTransformFunc(%q) = %q, want %q", in, got, want)
		}
	}
}
