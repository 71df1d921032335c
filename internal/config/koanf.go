// KNG - Road Incident Alerts and Real-Time Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Iornfire12211221/KNG-sub000

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths are searched in order when CONFIG_PATH is unset.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/kng/config.yaml",
	"/etc/kng/config.yml",
}

// ConfigPathEnvVar names an explicit config file.
const ConfigPathEnvVar = "CONFIG_PATH"

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			Environment:     "development",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			SendQueueSize:   256,
			MaxMessageSize:  512 * 1024,
			WriteWait:       10 * time.Second,
			PongWait:        60 * time.Second,
		},
		Heartbeat: HeartbeatConfig{
			Interval: 30 * time.Second,
			Timeout:  60 * time.Second,
		},
		Geofence: GeofenceConfig{
			Interval:      10 * time.Second,
			DefaultRadius: 2000,
			MinRadius:     500,
			MaxRadius:     10000,
			Cooldown:      5 * time.Minute,
			Index:         "linear",
		},
		PostStore: PostStoreConfig{
			Timeout: 5 * time.Second,
		},
		NATS: NATSConfig{
			Enabled:          false,
			URL:              "nats://127.0.0.1:4222",
			Topic:            "posts.events",
			SubscribersCount: 1,
			AckWaitTimeout:   30 * time.Second,
			CloseTimeout:     30 * time.Second,
			MaxReconnects:    -1, // forever
			ReconnectWait:    2 * time.Second,
		},
		Telegram: TelegramConfig{
			APIURL:    "https://api.telegram.org",
			Cooldown:  5 * time.Minute,
			RateLimit: 1,
			RateBurst: 1,
			Timeout:   10 * time.Second,
		},
		Auth: AuthConfig{
			Mode:      "identity",
			JWTLeeway: 30 * time.Second,
		},
		Security: SecurityConfig{
			CORSOrigins:       []string{"*"},
			WSRateLimitReqs:   60,
			WSRateLimitWindow: time.Minute,
		},
		Supervisor: SupervisorConfig{
			FailureThreshold: 5.0,
			FailureDecay:     30.0,
			FailureBackoff:   15 * time.Second,
			ShutdownTimeout:  10 * time.Second,
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file and the
// environment, then validates it.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths are parsed from comma-separated env values.
var sliceConfigPaths = []string{
	"security.cors_origins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envMappings maps environment variables (lowercased) to koanf paths.
// Unmapped variables are ignored.
var envMappings = map[string]string{
	"http_host":             "server.host",
	"http_port":             "server.port",
	"environment":           "server.environment",
	"http_read_timeout":     "server.read_timeout",
	"http_write_timeout":    "server.write_timeout",
	"http_idle_timeout":     "server.idle_timeout",
	"http_shutdown_timeout": "server.shutdown_timeout",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",

	"ws_read_buffer_size":  "websocket.read_buffer_size",
	"ws_write_buffer_size": "websocket.write_buffer_size",
	"ws_send_queue_size":   "websocket.send_queue_size",
	"ws_max_message_size":  "websocket.max_message_size",
	"ws_write_wait":        "websocket.write_wait",
	"ws_pong_wait":         "websocket.pong_wait",

	"heartbeat_interval": "heartbeat.interval",
	"heartbeat_timeout":  "heartbeat.timeout",

	"geofence_interval":       "geofence.interval",
	"geofence_default_radius": "geofence.default_radius",
	"geofence_min_radius":     "geofence.min_radius",
	"geofence_max_radius":     "geofence.max_radius",
	"geofence_cooldown":       "geofence.cooldown",
	"geofence_index":          "geofence.index",

	"post_store_url":     "poststore.base_url",
	"post_store_api_key": "poststore.api_key",
	"post_store_timeout": "poststore.timeout",

	"nats_enabled":        "nats.enabled",
	"nats_url":            "nats.url",
	"nats_topic":          "nats.topic",
	"nats_subscribers":    "nats.subscribers_count",
	"nats_ack_wait":       "nats.ack_wait_timeout",
	"nats_close_timeout":  "nats.close_timeout",
	"nats_max_reconnects": "nats.max_reconnects",
	"nats_reconnect_wait": "nats.reconnect_wait",

	"telegram_enabled":    "telegram.enabled",
	"telegram_bot_token":  "telegram.bot_token",
	"telegram_chat_id":    "telegram.chat_id",
	"telegram_api_url":    "telegram.api_url",
	"telegram_cooldown":   "telegram.cooldown",
	"telegram_rate_limit": "telegram.rate_limit",
	"telegram_rate_burst": "telegram.rate_burst",
	"telegram_timeout":    "telegram.timeout",

	"auth_mode":       "auth.mode",
	"auth_jwt_secret": "auth.jwt_secret",
	"auth_jwt_leeway": "auth.jwt_leeway",

	"cors_origins":         "security.cors_origins",
	"ws_rate_limit":        "security.ws_rate_limit_reqs",
	"ws_rate_limit_window": "security.ws_rate_limit_window",
	"disable_rate_limit":   "security.rate_limit_disabled",

	"supervisor_failure_threshold": "supervisor.failure_threshold",
	"supervisor_failure_decay":     "supervisor.failure_decay",
	"supervisor_failure_backoff":   "supervisor.failure_backoff",
	"supervisor_shutdown_timeout":  "supervisor.shutdown_timeout",
}

func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
