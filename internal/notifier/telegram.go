// KNG - Road Incident Alerts and Real-Time Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Iornfire12211221/KNG-sub000

// Package notifier publishes approved posts to an external chat channel.
package notifier

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/Iornfire12211221/KNG-sub000/internal/config"
	"github.com/Iornfire12211221/KNG-sub000/internal/metrics"
	"github.com/Iornfire12211221/KNG-sub000/internal/models"
)

// DefaultAPIURL is the Telegram Bot API base URL.
const DefaultAPIURL = "https://api.telegram.org"

// TelegramNotifier posts HTML messages to one Telegram chat.
type TelegramNotifier struct {
	apiURL   string
	token    string
	chatID   string
	enabled  bool
	cooldown time.Duration
	client   *http.Client
	limiter  *rate.Limiter
	now      func() time.Time

	mu       sync.Mutex
	lastSent map[cooldownKey]time.Time
}

type cooldownKey struct {
	postType models.PostType
	severity models.Severity
}

type sendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type botResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code,omitempty"`
	Description string `json:"description,omitempty"`
}

// NewTelegramNotifier creates a notifier. It is disabled unless cfg enables
// it and names both a bot token and a chat.
func NewTelegramNotifier(cfg *config.TelegramConfig) *TelegramNotifier {
	apiURL := strings.TrimRight(cfg.APIURL, "/")
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	limit := rate.Limit(cfg.RateLimit)
	if cfg.RateLimit <= 0 {
		limit = 1
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}

	return &TelegramNotifier{
		apiURL:   apiURL,
		token:    cfg.BotToken,
		chatID:   cfg.ChatID,
		enabled:  cfg.Enabled && cfg.BotToken != "" && cfg.ChatID != "",
		cooldown: cfg.Cooldown,
		client:   &http.Client{Timeout: timeout},
		limiter:  rate.NewLimiter(limit, burst),
		now:      time.Now,
		lastSent: make(map[cooldownKey]time.Time),
	}
}

// Name returns the notifier name.
func (n *TelegramNotifier) Name() string {
	return "telegram"
}

// Enabled reports whether NotifyPost sends anything.
func (n *TelegramNotifier) Enabled() bool {
	return n.enabled
}

// NotifyPost sends post to the chat. It returns false without error when the
// notifier is disabled or the (type, severity) pair is cooling down.
func (n *TelegramNotifier) NotifyPost(ctx context.Context, post *models.Post) (bool, error) {
	if !n.enabled {
		return false, nil
	}

	key := cooldownKey{postType: post.Type, severity: post.Severity}
	if !n.reserve(key) {
		metrics.TelegramNotifications.WithLabelValues("cooldown").Inc()
		return false, nil
	}

	if err := n.limiter.Wait(ctx); err != nil {
		n.release(key)
		metrics.TelegramNotifications.WithLabelValues("error").Inc()
		return false, fmt.Errorf("telegram rate limit wait: %w", err)
	}

	if err := n.send(ctx, FormatPost(post)); err != nil {
		n.release(key)
		metrics.TelegramNotifications.WithLabelValues("error").Inc()
		return false, err
	}
	metrics.TelegramNotifications.WithLabelValues("sent").Inc()
	return true, nil
}

// reserve stamps key if it is not cooling down.
func (n *TelegramNotifier) reserve(key cooldownKey) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	now := n.now()
	if last, ok := n.lastSent[key]; ok && now.Sub(last) < n.cooldown {
		return false
	}
	n.lastSent[key] = now
	return true
}

func (n *TelegramNotifier) release(key cooldownKey) {
	n.mu.Lock()
	delete(n.lastSent, key)
	n.mu.Unlock()
}

func (n *TelegramNotifier) send(ctx context.Context, text string) error {
	body, err := json.Marshal(sendMessageRequest{
		ChatID:                n.chatID,
		Text:                  text,
		ParseMode:             "HTML",
		DisableWebPagePreview: true,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal Telegram payload: %w", err)
	}

	endpoint := n.apiURL + "/bot" + n.token + "/sendMessage"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create Telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send Telegram message: %w", stripURL(err))
	}
	defer resp.Body.Close()

	var result botResponse
	_ = json.NewDecoder(resp.Body).Decode(&result)
	if resp.StatusCode != http.StatusOK || !result.OK {
		if result.Description != "" {
			return fmt.Errorf("telegram returned status %d: %s", resp.StatusCode, result.Description)
		}
		return fmt.Errorf("telegram returned status %d", resp.StatusCode)
	}
	return nil
}

// stripURL drops the request URL, which carries the bot token.
func stripURL(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err
	}
	return err
}

// FormatPost renders post as Telegram HTML.
func FormatPost(post *models.Post) string {
	var b strings.Builder
	b.WriteString("<b>")
	b.WriteString(html.EscapeString(post.Type.Label()))
	b.WriteString("</b>")
	if post.Severity != "" {
		b.WriteString(" (" + html.EscapeString(string(post.Severity)) + ")")
	}
	if post.Address != "" {
		b.WriteString("\n📍 " + html.EscapeString(post.Address))
	}
	if post.Description != "" {
		b.WriteString("\n" + html.EscapeString(post.Description))
	}
	fmt.Fprintf(&b, "\n<a href=\"https://maps.google.com/?q=%.6f,%.6f\">Open map</a>", post.Latitude, post.Longitude)
	return b.String()
}
