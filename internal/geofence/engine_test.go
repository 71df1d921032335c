// KNG - Road Incident Alerts and Real-Time Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Iornfire12211221/KNG-sub000

package geofence

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/Iornfire12211221/KNG-sub000/internal/logging"
	"github.com/Iornfire12211221/KNG-sub000/internal/models"
	"github.com/Iornfire12211221/KNG-sub000/internal/websocket"
)

//nolint:gochecknoinits // keep test output quiet
func init() {
	logging.Init(logging.Config{Level: "error", Output: io.Discard})
}

type fakePosts struct {
	mu    sync.Mutex
	posts []models.Post
	err   error
	calls int
}

func (f *fakePosts) ActivePosts(context.Context) ([]models.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return append([]models.Post(nil), f.posts...), nil
}

type fakeUsers struct {
	users []websocket.ConnectedUser
}

func (f *fakeUsers) ForEach(pred func(*websocket.ConnectedUser) bool, fn func(websocket.ConnectedUser)) {
	for i := range f.users {
		if pred == nil || pred(&f.users[i]) {
			fn(f.users[i])
		}
	}
}

func (f *fakeUsers) moveTo(id string, lat, lon float64) {
	for i := range f.users {
		if f.users[i].ID == id {
			f.users[i].Location = &models.Location{Latitude: lat, Longitude: lon}
		}
	}
}

type sent struct {
	userID string
	msg    models.Message
}

type fakeSender struct {
	mu     sync.Mutex
	sent   []sent
	refuse map[string]bool
}

func (f *fakeSender) SendTo(userID string, msg models.Message) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refuse[userID] {
		return false
	}
	f.sent = append(f.sent, sent{userID: userID, msg: msg})
	return true
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type clock struct{ now time.Time }

func (c *clock) Now() time.Time          { return c.now }
func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func user(id string, lat, lon float64) websocket.ConnectedUser {
	return websocket.ConnectedUser{
		ID:            id,
		Location:      &models.Location{Latitude: lat, Longitude: lon},
		Subscriptions: models.DefaultSubscriptions(),
		IsAlive:       true,
	}
}

func post(id string, lat, lon float64) models.Post {
	return models.Post{
		ID:        id,
		Latitude:  lat,
		Longitude: lon,
		Type:      models.PostTypeDPS,
		Severity:  models.SeverityMedium,
		Status:    models.StatusApproved,
		CreatedAt: time.Date(2026, 4, 1, 7, 0, 0, 0, time.UTC),
	}
}

func newTestEngine(t *testing.T, posts *fakePosts, users *fakeUsers, sender *fakeSender, opts ...Option) (*Engine, *clock) {
	t.Helper()
	c := &clock{now: time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)}
	opts = append([]Option{WithClock(c.Now)}, opts...)
	return NewEngine(DefaultConfig(), posts, users, sender, opts...), c
}

func TestEngine_EndToEndScenario(t *testing.T) {
	posts := &fakePosts{posts: []models.Post{post("p1", 59.3733, 28.6134)}}
	users := &fakeUsers{users: []websocket.ConnectedUser{user("u1", 59.3730, 28.6130)}}
	sender := &fakeSender{}
	e, _ := newTestEngine(t, posts, users, sender)

	res := e.Tick(context.Background())
	if res.Skipped || res.Zones != 1 || res.Candidates != 1 || res.Alerts != 1 || res.Delivered != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if sender.count() != 1 {
		t.Fatalf("sent %d alerts, want 1", sender.count())
	}

	got := sender.sent[0]
	if got.userID != "u1" || got.msg.Type != models.MessageTypeGeofenceAlert || got.msg.PostID != "p1" {
		t.Errorf("alert = %+v", got)
	}
	if len(got.msg.TargetUsers) != 1 || got.msg.TargetUsers[0] != "u1" {
		t.Errorf("targetUsers = %v", got.msg.TargetUsers)
	}

	var data models.NotificationData
	if err := got.msg.DecodeData(&data); err != nil {
		t.Fatalf("decode alert: %v", err)
	}
	if data.NotificationType != models.NotificationGeofence {
		t.Errorf("notificationType = %q", data.NotificationType)
	}
	dist, ok := data.Data["distance"].(float64)
	if !ok || dist >= 2000 || dist <= 0 {
		t.Errorf("distance = %v, want (0, 2000)", data.Data["distance"])
	}
	if data.Data["zoneId"] != "zone_p1" || data.Data["postId"] != "p1" || data.Data["radius"] != float64(2000) {
		t.Errorf("alert data = %v", data.Data)
	}
}

func TestEngine_CooldownOneAlertPerWindow(t *testing.T) {
	posts := &fakePosts{posts: []models.Post{post("p1", 59.3733, 28.6134)}}
	users := &fakeUsers{users: []websocket.ConnectedUser{user("u1", 59.3730, 28.6130)}}
	sender := &fakeSender{}
	e, c := newTestEngine(t, posts, users, sender)

	// 10 s ticks across a 300 s window: 31 ticks at t=0..300.
	for i := 0; i <= 30; i++ {
		e.Tick(context.Background())
		c.Advance(10 * time.Second)
	}
	if sender.count() != 1 {
		t.Fatalf("sent %d alerts within the cooldown window, want 1", sender.count())
	}

	// t=310 is strictly past the cooldown.
	e.Tick(context.Background())
	if sender.count() != 2 {
		t.Fatalf("sent %d alerts after the cooldown, want 2", sender.count())
	}
}

func TestEngine_CooldownBoundaryIsStrict(t *testing.T) {
	posts := &fakePosts{posts: []models.Post{post("p1", 59.3733, 28.6134)}}
	users := &fakeUsers{users: []websocket.ConnectedUser{user("u1", 59.3730, 28.6130)}}
	sender := &fakeSender{}
	e, c := newTestEngine(t, posts, users, sender)

	e.Tick(context.Background())
	c.Advance(5 * time.Minute)
	e.Tick(context.Background())
	if sender.count() != 1 {
		t.Fatalf("alert repeated at exactly the cooldown")
	}
	c.Advance(time.Millisecond)
	e.Tick(context.Background())
	if sender.count() != 2 {
		t.Fatalf("alert not repeated just after the cooldown")
	}
}

func TestEngine_ReEntry(t *testing.T) {
	posts := &fakePosts{posts: []models.Post{post("p1", 59.3733, 28.6134)}}
	users := &fakeUsers{users: []websocket.ConnectedUser{user("u1", 59.3730, 28.6130)}}
	sender := &fakeSender{}
	e, c := newTestEngine(t, posts, users, sender)

	e.Tick(context.Background()) // enter, alert 1

	users.moveTo("u1", 59.50, 28.90) // ~20 km away
	c.Advance(time.Minute)
	e.Tick(context.Background())

	users.moveTo("u1", 59.3730, 28.6130)
	c.Advance(time.Minute)
	e.Tick(context.Background()) // re-entry before cooldown: no alert
	if sender.count() != 1 {
		t.Fatalf("re-entry within cooldown alerted: %d", sender.count())
	}

	users.moveTo("u1", 59.50, 28.90)
	c.Advance(time.Minute)
	e.Tick(context.Background())

	users.moveTo("u1", 59.3730, 28.6130)
	c.Advance(3 * time.Minute) // 6 min since the first alert
	e.Tick(context.Background())
	if sender.count() != 2 {
		t.Fatalf("re-entry after cooldown did not alert: %d", sender.count())
	}
}

func TestEngine_PerUserState(t *testing.T) {
	posts := &fakePosts{posts: []models.Post{post("p1", 59.3733, 28.6134)}}
	users := &fakeUsers{users: []websocket.ConnectedUser{
		user("u1", 59.3730, 28.6130),
		user("u2", 59.50, 28.90),
	}}
	sender := &fakeSender{}
	e, c := newTestEngine(t, posts, users, sender)

	e.Tick(context.Background())
	users.moveTo("u2", 59.3731, 28.6131)
	c.Advance(10 * time.Second)
	e.Tick(context.Background())

	// u1's alert must not suppress u2's first alert for the same zone.
	if sender.count() != 2 {
		t.Fatalf("sent %d alerts, want one per user", sender.count())
	}
	if sender.sent[0].userID != "u1" || sender.sent[1].userID != "u2" {
		t.Errorf("recipients = %s, %s", sender.sent[0].userID, sender.sent[1].userID)
	}
}

func TestEngine_CandidateFiltering(t *testing.T) {
	noGeo := user("nogeo", 59.3730, 28.6130)
	noGeo.Subscriptions.Geofencing = false
	noLoc := user("noloc", 0, 0)
	noLoc.Location = nil

	posts := &fakePosts{posts: []models.Post{post("p1", 59.3733, 28.6134)}}
	users := &fakeUsers{users: []websocket.ConnectedUser{noGeo, noLoc}}
	sender := &fakeSender{}
	e, _ := newTestEngine(t, posts, users, sender)

	res := e.Tick(context.Background())
	if res.Candidates != 0 || sender.count() != 0 {
		t.Errorf("non-candidates evaluated: %+v", res)
	}
}

func TestEngine_SkipsTickWhenUpstreamFails(t *testing.T) {
	upstream := errors.New("post store unavailable")
	posts := &fakePosts{err: upstream}
	users := &fakeUsers{users: []websocket.ConnectedUser{user("u1", 59.3730, 28.6130)}}
	sender := &fakeSender{}
	e, _ := newTestEngine(t, posts, users, sender)

	res := e.Tick(context.Background())
	if !res.Skipped || !errors.Is(res.Err, upstream) {
		t.Fatalf("result = %+v, want skipped with upstream error", res)
	}
	if sender.count() != 0 {
		t.Error("alerts sent during a skipped tick")
	}

	posts.mu.Lock()
	posts.err = nil
	posts.posts = []models.Post{post("p1", 59.3733, 28.6134)}
	posts.mu.Unlock()

	if res := e.Tick(context.Background()); res.Skipped || res.Alerts != 1 {
		t.Errorf("recovery tick = %+v", res)
	}
}

func TestEngine_FailedDeliveryStillStamped(t *testing.T) {
	posts := &fakePosts{posts: []models.Post{post("p1", 59.3733, 28.6134)}}
	users := &fakeUsers{users: []websocket.ConnectedUser{user("u1", 59.3730, 28.6130)}}
	sender := &fakeSender{refuse: map[string]bool{"u1": true}}
	e, c := newTestEngine(t, posts, users, sender)

	res := e.Tick(context.Background())
	if res.Alerts != 1 || res.Delivered != 0 {
		t.Fatalf("result = %+v", res)
	}
	sender.mu.Lock()
	sender.refuse = nil
	sender.mu.Unlock()

	c.Advance(10 * time.Second)
	if res := e.Tick(context.Background()); res.Alerts != 0 {
		t.Errorf("alert retried within cooldown: %+v", res)
	}
}

func TestEngine_PrunesVanishedZones(t *testing.T) {
	posts := &fakePosts{posts: []models.Post{post("p1", 59.3733, 28.6134), post("p2", 59.3740, 28.6140)}}
	users := &fakeUsers{users: []websocket.ConnectedUser{user("u1", 59.3730, 28.6130)}}
	sender := &fakeSender{}
	e, c := newTestEngine(t, posts, users, sender)

	e.Tick(context.Background())
	if e.TrackedPairs() != 2 {
		t.Fatalf("TrackedPairs = %d, want 2", e.TrackedPairs())
	}

	posts.mu.Lock()
	posts.posts = posts.posts[:1]
	posts.mu.Unlock()
	c.Advance(10 * time.Second)
	e.Tick(context.Background())
	if e.TrackedPairs() != 1 {
		t.Errorf("TrackedPairs = %d after p2 vanished, want 1", e.TrackedPairs())
	}

	users.users = nil
	c.Advance(6 * time.Minute)
	e.Tick(context.Background())
	if e.TrackedPairs() != 0 {
		t.Errorf("TrackedPairs = %d after user left and cooldown passed, want 0", e.TrackedPairs())
	}
}

// panicMatcher panics for one coordinate to exercise per-user recovery.
type panicMatcher struct {
	LinearMatcher
	badLat float64
}

func (m *panicMatcher) Match(lat, lon float64) []Match {
	if lat == m.badLat {
		panic("corrupt record")
	}
	return m.LinearMatcher.Match(lat, lon)
}

func TestEngine_RecoversPerUserPanics(t *testing.T) {
	posts := &fakePosts{posts: []models.Post{post("p1", 59.3733, 28.6134)}}
	users := &fakeUsers{users: []websocket.ConnectedUser{
		user("bad", 10, 10),
		user("good", 59.3730, 28.6130),
	}}
	sender := &fakeSender{}
	e, _ := newTestEngine(t, posts, users, sender, WithMatcher(&panicMatcher{badLat: 10}))

	res := e.Tick(context.Background())
	if res.Panics != 1 || res.Alerts != 1 {
		t.Errorf("result = %+v, want one panic and one alert", res)
	}
}

func TestEngine_RadiusClamped(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DefaultRadius = 50000
	e := NewEngine(cfg, &fakePosts{}, &fakeUsers{}, &fakeSender{})
	if e.Radius() != 10000 {
		t.Errorf("Radius = %v, want 10000", e.Radius())
	}
	cfg.DefaultRadius = 100
	e = NewEngine(cfg, &fakePosts{}, &fakeUsers{}, &fakeSender{})
	if e.Radius() != 500 {
		t.Errorf("Radius = %v, want 500", e.Radius())
	}
}

func TestEngine_RunWithContext(t *testing.T) {
	posts := &fakePosts{}
	cfg := DefaultConfig()
	cfg.Interval = 5 * time.Millisecond
	e := NewEngine(cfg, posts, &fakeUsers{}, &fakeSender{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.RunWithContext(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("engine did not stop")
	}

	posts.mu.Lock()
	calls := posts.calls
	posts.mu.Unlock()
	if calls == 0 {
		t.Error("engine never ticked")
	}
}

func TestMatchers_Agree(t *testing.T) {
	now := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	zones := BuildZones([]models.Post{
		post("a", 59.3733, 28.6134),
		post("b", 59.3800, 28.6200),
		post("c", 59.4500, 28.7000),
		post("d", 59.3000, 28.5000),
	}, 2000, now)

	linear := &LinearMatcher{}
	grid := NewGridMatcher(1000)
	linear.Reset(zones)
	grid.Reset(zones)

	queries := [][2]float64{{59.3730, 28.6130}, {59.3770, 28.6170}, {59.45, 28.70}, {60, 30}}
	for _, q := range queries {
		l := ids(linear.Match(q[0], q[1]))
		g := ids(grid.Match(q[0], q[1]))
		if len(l) != len(g) {
			t.Fatalf("query %v: linear %v, grid %v", q, l, g)
		}
		for i := range l {
			if l[i] != g[i] {
				t.Errorf("query %v: linear %v, grid %v", q, l, g)
			}
		}
	}
}

func ids(ms []Match) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.Zone.ID
	}
	sort.Strings(out)
	return out
}
