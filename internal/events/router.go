// KNG - Road Incident Alerts and Real-Time Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Iornfire12211221/KNG-sub000

package events

import (
	"context"
	"fmt"
	"time"

	"github.com/Iornfire12211221/KNG-sub000/internal/logging"
	"github.com/Iornfire12211221/KNG-sub000/internal/models"
)

// Announcer pushes post changes to connected clients.
type Announcer interface {
	AnnouncePostCreated(post *models.Post) int
	AnnouncePostApproved(post *models.Post) int
	AnnouncePostRejected(postID, authorID, reason string) bool
	AnnouncePostUpdated(post *models.Post) int
	AnnouncePostDeleted(postID string) int
}

// PostSink mirrors the active post set locally.
type PostSink interface {
	Upsert(post models.Post)
	Remove(postID string) bool
}

// DefaultNotifyTimeout bounds one channel notification, including the wait
// for the notifier's rate limiter.
const DefaultNotifyTimeout = 3 * time.Second

// ChannelNotifier publishes approved posts to an external channel.
type ChannelNotifier interface {
	NotifyPost(ctx context.Context, post *models.Post) (bool, error)
}

// Router fans post events out to its targets.
type Router struct {
	announcer     Announcer
	store         PostSink
	notifier      ChannelNotifier
	notifyTimeout time.Duration
}

// RouterOption configures optional router targets.
type RouterOption func(*Router)

// WithStore mirrors events into store.
func WithStore(store PostSink) RouterOption {
	return func(r *Router) {
		r.store = store
	}
}

// WithNotifier sends approved posts to notifier.
func WithNotifier(notifier ChannelNotifier) RouterOption {
	return func(r *Router) {
		r.notifier = notifier
	}
}

// WithNotifyTimeout overrides DefaultNotifyTimeout.
func WithNotifyTimeout(d time.Duration) RouterOption {
	return func(r *Router) {
		if d > 0 {
			r.notifyTimeout = d
		}
	}
}

// NewRouter creates a router announcing through announcer.
func NewRouter(announcer Announcer, opts ...RouterOption) *Router {
	r := &Router{announcer: announcer, notifyTimeout: DefaultNotifyTimeout}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// HandlePostEvent implements Handler.
func (r *Router) HandlePostEvent(ctx context.Context, e *PostEvent) error {
	log := logging.Ctx(ctx).With().Str("component", "events").Str("action", string(e.Action)).
		Str("post_id", e.TargetID()).Logger()

	switch e.Action {
	case ActionCreated:
		post := *e.Post
		// A new post has not been moderated yet.
		if post.Status == "" {
			post.Status = models.StatusPending
		}
		if post.AuthorID == "" {
			post.AuthorID = e.AuthorID
		}
		if r.store != nil {
			r.store.Upsert(post)
		}
		n := r.announcer.AnnouncePostCreated(&post)
		log.Debug().Int("recipients", n).Msg("announced new post")

	case ActionApproved:
		post := *e.Post
		post.Status = models.StatusApproved
		if post.AuthorID == "" {
			post.AuthorID = e.AuthorID
		}
		if r.store != nil {
			r.store.Upsert(post)
		}
		n := r.announcer.AnnouncePostApproved(&post)
		log.Debug().Int("recipients", n).Msg("announced approved post")
		r.notifyChannel(ctx, &post)

	case ActionRejected:
		if r.store != nil {
			r.store.Remove(e.TargetID())
		}
		if !r.announcer.AnnouncePostRejected(e.TargetID(), e.Author(), e.Reason) {
			log.Debug().Str("author_id", e.Author()).Msg("rejection not delivered, author offline")
		}

	case ActionUpdated:
		post := *e.Post
		if r.store != nil {
			r.store.Upsert(post)
		}
		r.announcer.AnnouncePostUpdated(&post)

	case ActionDeleted:
		if r.store != nil {
			r.store.Remove(e.TargetID())
		}
		r.announcer.AnnouncePostDeleted(e.TargetID())

	default:
		return fmt.Errorf("%w: unsupported action %q", ErrMalformedEvent, e.Action)
	}
	return nil
}

// notifyChannel logs failures only; the event is acked regardless. The call
// is bounded by notifyTimeout so a slow channel cannot stall later events.
func (r *Router) notifyChannel(ctx context.Context, post *models.Post) {
	if r.notifier == nil {
		return
	}
	nctx, cancel := context.WithTimeout(ctx, r.notifyTimeout)
	defer cancel()
	sent, err := r.notifier.NotifyPost(nctx, post)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("component", "events").Str("post_id", post.ID).
			Msg("channel notification failed")
		return
	}
	if sent {
		logging.Ctx(ctx).Debug().Str("component", "events").Str("post_id", post.ID).Msg("channel notified")
	}
}
