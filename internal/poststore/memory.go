// KNG - Road Incident Alerts and Real-Time Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Iornfire12211221/KNG-sub000

package poststore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Iornfire12211221/KNG-sub000/internal/metrics"
	"github.com/Iornfire12211221/KNG-sub000/internal/models"
)

// MemoryStore is an in-memory post set maintained from lifecycle events.
type MemoryStore struct {
	mu    sync.RWMutex
	posts map[string]models.Post
	now   func() time.Time
}

// NewMemoryStore creates an empty store. A nil now uses time.Now.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{posts: make(map[string]models.Post), now: now}
}

// Upsert stores or replaces a post. Posts without an id are ignored.
func (s *MemoryStore) Upsert(post models.Post) {
	if post.ID == "" {
		return
	}
	s.mu.Lock()
	s.posts[post.ID] = post
	s.mu.Unlock()
}

// Remove deletes a post and reports whether it was present.
func (s *MemoryStore) Remove(postID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.posts[postID]; !ok {
		return false
	}
	delete(s.posts, postID)
	return true
}

// Len returns the number of stored posts, active or not.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.posts)
}

// ActivePosts returns the approved, unexpired posts sorted by id. Expired
// posts are evicted as a side effect.
func (s *MemoryStore) ActivePosts(_ context.Context) ([]models.Post, error) {
	now := s.now()

	s.mu.Lock()
	out := make([]models.Post, 0, len(s.posts))
	for id, p := range s.posts {
		if p.ExpiresAt != nil && !now.Before(*p.ExpiresAt) {
			delete(s.posts, id)
			continue
		}
		if p.IsActive(now) {
			out = append(out, p)
		}
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	metrics.PostStoreActivePosts.Set(float64(len(out)))
	return out, nil
}
