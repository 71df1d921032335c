// KNG - Road Incident Alerts and Real-Time Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Iornfire12211221/KNG-sub000

package events

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/Iornfire12211221/KNG-sub000/internal/logging"
	"github.com/Iornfire12211221/KNG-sub000/internal/models"
	"github.com/Iornfire12211221/KNG-sub000/internal/poststore"
)

//nolint:gochecknoinits // keep test output quiet
func init() {
	logging.Init(logging.Config{Level: "error", Output: io.Discard})
}

type announcement struct {
	kind     string
	postID   string
	authorID string
	reason   string
	status   models.ModerationStatus
}

type fakeAnnouncer struct {
	mu    sync.Mutex
	calls []announcement
}

func (f *fakeAnnouncer) record(a announcement) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, a)
}

func (f *fakeAnnouncer) AnnouncePostCreated(p *models.Post) int {
	f.record(announcement{kind: "created", postID: p.ID, authorID: p.AuthorID, status: p.Status})
	return 1
}

func (f *fakeAnnouncer) AnnouncePostApproved(p *models.Post) int {
	f.record(announcement{kind: "approved", postID: p.ID, authorID: p.AuthorID, status: p.Status})
	return 1
}

func (f *fakeAnnouncer) AnnouncePostRejected(postID, authorID, reason string) bool {
	f.record(announcement{kind: "rejected", postID: postID, authorID: authorID, reason: reason})
	return true
}

func (f *fakeAnnouncer) AnnouncePostUpdated(p *models.Post) int {
	f.record(announcement{kind: "updated", postID: p.ID})
	return 1
}

func (f *fakeAnnouncer) AnnouncePostDeleted(postID string) int {
	f.record(announcement{kind: "deleted", postID: postID})
	return 1
}

func (f *fakeAnnouncer) last(t *testing.T) announcement {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		t.Fatal("no announcement recorded")
	}
	return f.calls[len(f.calls)-1]
}

type fakeNotifier struct {
	posts []string
	err   error
}

func (f *fakeNotifier) NotifyPost(_ context.Context, p *models.Post) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	f.posts = append(f.posts, p.ID)
	return true, nil
}

func TestRouter_Lifecycle(t *testing.T) {
	announcer := &fakeAnnouncer{}
	store := poststore.NewMemoryStore(nil)
	notifier := &fakeNotifier{}
	r := NewRouter(announcer, WithStore(store), WithNotifier(notifier))
	ctx := context.Background()

	post := &models.Post{ID: "p1", Latitude: 59.37, Longitude: 28.61, Status: models.StatusPending}
	created := NewPostEvent(ActionCreated, post)
	created.AuthorID = "u1"
	if err := r.HandlePostEvent(ctx, created); err != nil {
		t.Fatalf("created: %v", err)
	}
	if got := announcer.last(t); got.kind != "created" || got.authorID != "u1" {
		t.Errorf("created announcement = %+v", got)
	}
	if active, _ := store.ActivePosts(ctx); len(active) != 0 {
		t.Errorf("pending post is active: %+v", active)
	}
	if len(notifier.posts) != 0 {
		t.Error("channel notified for an unmoderated post")
	}

	if err := r.HandlePostEvent(ctx, NewPostEvent(ActionApproved, post)); err != nil {
		t.Fatalf("approved: %v", err)
	}
	if got := announcer.last(t); got.kind != "approved" || got.status != models.StatusApproved {
		t.Errorf("approved announcement = %+v", got)
	}
	if active, _ := store.ActivePosts(ctx); len(active) != 1 {
		t.Errorf("approved post not active: %+v", active)
	}
	if len(notifier.posts) != 1 || notifier.posts[0] != "p1" {
		t.Errorf("notified = %v", notifier.posts)
	}

	updated := *post
	updated.Status = models.StatusApproved
	updated.Description = "moved"
	if err := r.HandlePostEvent(ctx, NewPostEvent(ActionUpdated, &updated)); err != nil {
		t.Fatalf("updated: %v", err)
	}
	if got := announcer.last(t); got.kind != "updated" {
		t.Errorf("updated announcement = %+v", got)
	}

	if err := r.HandlePostEvent(ctx, &PostEvent{Action: ActionDeleted, PostID: "p1"}); err != nil {
		t.Fatalf("deleted: %v", err)
	}
	if got := announcer.last(t); got.kind != "deleted" || got.postID != "p1" {
		t.Errorf("deleted announcement = %+v", got)
	}
	if store.Len() != 0 {
		t.Errorf("store Len = %d after delete", store.Len())
	}
}

func TestRouter_Rejected(t *testing.T) {
	announcer := &fakeAnnouncer{}
	store := poststore.NewMemoryStore(nil)
	store.Upsert(models.Post{ID: "p1"})
	r := NewRouter(announcer, WithStore(store))

	err := r.HandlePostEvent(context.Background(), &PostEvent{
		Action: ActionRejected, PostID: "p1", AuthorID: "u1", Reason: "duplicate",
	})
	if err != nil {
		t.Fatalf("rejected: %v", err)
	}
	got := announcer.last(t)
	if got.kind != "rejected" || got.postID != "p1" || got.authorID != "u1" || got.reason != "duplicate" {
		t.Errorf("rejected announcement = %+v", got)
	}
	if store.Len() != 0 {
		t.Error("rejected post kept in store")
	}
}

func TestRouter_NotifierErrorDoesNotFailEvent(t *testing.T) {
	r := NewRouter(&fakeAnnouncer{}, WithNotifier(&fakeNotifier{err: errors.New("telegram down")}))
	post := &models.Post{ID: "p1"}
	if err := r.HandlePostEvent(context.Background(), NewPostEvent(ActionApproved, post)); err != nil {
		t.Errorf("err = %v, want nil", err)
	}
}

func TestRouter_UnsupportedAction(t *testing.T) {
	r := NewRouter(&fakeAnnouncer{})
	err := r.HandlePostEvent(context.Background(), &PostEvent{Action: "archived", PostID: "p1"})
	if !errors.Is(err, ErrMalformedEvent) {
		t.Errorf("err = %v, want ErrMalformedEvent", err)
	}
}

func TestRouter_CreatedWithoutStatusIsPending(t *testing.T) {
	announcer := &fakeAnnouncer{}
	store := poststore.NewMemoryStore(nil)
	r := NewRouter(announcer, WithStore(store))
	ctx := context.Background()

	post := &models.Post{ID: "p1", Latitude: 59.37, Longitude: 28.61}
	if err := r.HandlePostEvent(ctx, NewPostEvent(ActionCreated, post)); err != nil {
		t.Fatalf("created: %v", err)
	}
	if store.Len() != 1 {
		t.Fatalf("store Len = %d, want 1", store.Len())
	}
	if active, _ := store.ActivePosts(ctx); len(active) != 0 {
		t.Errorf("unmoderated post is active: %+v", active)
	}
	if got := announcer.last(t); got.status != models.StatusPending {
		t.Errorf("announced status = %q, want pending", got.status)
	}

	if err := r.HandlePostEvent(ctx, NewPostEvent(ActionApproved, post)); err != nil {
		t.Fatalf("approved: %v", err)
	}
	if active, _ := store.ActivePosts(ctx); len(active) != 1 {
		t.Errorf("approved post not active: %+v", active)
	}
}

// blockingNotifier waits for its context like a stalled HTTP call.
type blockingNotifier struct{}

func (blockingNotifier) NotifyPost(ctx context.Context, _ *models.Post) (bool, error) {
	<-ctx.Done()
	return false, ctx.Err()
}

func TestRouter_SlowNotifierIsBounded(t *testing.T) {
	announcer := &fakeAnnouncer{}
	r := NewRouter(announcer, WithNotifier(blockingNotifier{}), WithNotifyTimeout(20*time.Millisecond))

	done := make(chan error, 1)
	go func() {
		done <- r.HandlePostEvent(context.Background(), NewPostEvent(ActionApproved, &models.Post{ID: "p1"}))
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("err = %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("HandlePostEvent blocked on the channel notifier")
	}
	if got := announcer.last(t); got.kind != "approved" {
		t.Errorf("announcement = %+v", got)
	}
}

func TestNewRouter_NotifyTimeout(t *testing.T) {
	if r := NewRouter(&fakeAnnouncer{}); r.notifyTimeout != DefaultNotifyTimeout {
		t.Errorf("default timeout = %v", r.notifyTimeout)
	}
	if r := NewRouter(&fakeAnnouncer{}, WithNotifyTimeout(-1)); r.notifyTimeout != DefaultNotifyTimeout {
		t.Errorf("negative override applied: %v", r.notifyTimeout)
	}
}
