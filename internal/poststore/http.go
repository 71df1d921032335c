// KNG - Road Incident Alerts and Real-Time Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Iornfire12211221/KNG-sub000

package poststore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/Iornfire12211221/KNG-sub000/internal/config"
	"github.com/Iornfire12211221/KNG-sub000/internal/logging"
	"github.com/Iornfire12211221/KNG-sub000/internal/metrics"
	"github.com/Iornfire12211221/KNG-sub000/internal/models"
	"github.com/Iornfire12211221/KNG-sub000/internal/validation"
)

const (
	activePostsPath = "/api/posts/active"
	breakerName     = "poststore-api"

	// maxResponseBytes bounds the decoded body of one active-posts response.
	maxResponseBytes = 16 << 20
)

type activePostsResponse struct {
	Posts []models.Post `json:"posts"`
}

// HTTPStore reads active posts from the external post store.
type HTTPStore struct {
	baseURL string
	apiKey  string
	client  *http.Client
	cb      *gobreaker.CircuitBreaker[[]models.Post]
}

// NewHTTPStore creates a store client for cfg.BaseURL.
func NewHTTPStore(cfg *config.PostStoreConfig) *HTTPStore {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPStore{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
		cb:      newBreaker(breakerName),
	}
}

// ActivePosts fetches the active post set. Every failure, including an open
// circuit, wraps ErrUpstreamUnavailable.
func (s *HTTPStore) ActivePosts(ctx context.Context) ([]models.Post, error) {
	started := time.Now()
	posts, err := s.cb.Execute(func() ([]models.Post, error) {
		return s.fetch(ctx)
	})
	metrics.RecordPostStoreFetch(time.Since(started), len(posts), err)

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerRequests.WithLabelValues(breakerName, "rejected").Inc()
		} else {
			metrics.CircuitBreakerRequests.WithLabelValues(breakerName, "failure").Inc()
		}
		return nil, fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
	}
	metrics.CircuitBreakerRequests.WithLabelValues(breakerName, "success").Inc()
	return posts, nil
}

func (s *HTTPStore) fetch(ctx context.Context) ([]models.Post, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+activePostsPath, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("post store returned status %d", resp.StatusCode)
	}

	var body activePostsResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	posts := body.Posts[:0]
	dropped := 0
	for i := range body.Posts {
		if verr := validation.ValidateStruct(&body.Posts[i]); verr != nil {
			dropped++
			logging.Debug().Str("component", "poststore").Str("post_id", body.Posts[i].ID).
				Str("reason", verr.Error()).Msg("skipping invalid post")
			continue
		}
		posts = append(posts, body.Posts[i])
	}
	if dropped > 0 {
		logging.Warn().Str("component", "poststore").Int("dropped", dropped).Msg("post store returned invalid posts")
	}
	return posts, nil
}
