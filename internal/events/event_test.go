// KNG - Road Incident Alerts and Real-Time Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Iornfire12211221/KNG-sub000

package events

import (
	"errors"
	"testing"

	"github.com/Iornfire12211221/KNG-sub000/internal/models"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name      string
		payload   string
		malformed bool
		check     func(t *testing.T, e *PostEvent)
	}{
		{
			name:    "approved with post",
			payload: `{"eventId":"e1","action":"approved","post":{"id":"p1","latitude":59.37,"longitude":28.61,"authorId":"u9"},"timestamp":"2026-04-01T08:00:00Z"}`,
			check: func(t *testing.T, e *PostEvent) {
				if e.TargetID() != "p1" || e.Author() != "u9" || e.Action != ActionApproved {
					t.Errorf("event = %+v", e)
				}
			},
		},
		{
			name:    "deleted by id",
			payload: `{"eventId":"e2","action":"deleted","postId":"p2"}`,
			check: func(t *testing.T, e *PostEvent) {
				if e.TargetID() != "p2" || e.Post != nil {
					t.Errorf("event = %+v", e)
				}
			},
		},
		{
			name:    "rejected with author and reason",
			payload: `{"action":"rejected","postId":"p3","authorId":"u1","reason":"duplicate"}`,
			check: func(t *testing.T, e *PostEvent) {
				if e.Author() != "u1" || e.Reason != "duplicate" {
					t.Errorf("event = %+v", e)
				}
			},
		},
		{name: "not json", payload: `{"action":`, malformed: true},
		{name: "missing action", payload: `{"postId":"p1"}`, malformed: true},
		{name: "unknown action", payload: `{"action":"archived","postId":"p1"}`, malformed: true},
		{name: "created without post", payload: `{"action":"created","postId":"p1"}`, malformed: true},
		{name: "deleted without id", payload: `{"action":"deleted"}`, malformed: true},
		{name: "invalid post coordinates", payload: `{"action":"updated","post":{"id":"p1","latitude":91,"longitude":0}}`, malformed: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := Decode([]byte(tt.payload))
			if tt.malformed {
				if !errors.Is(err, ErrMalformedEvent) {
					t.Errorf("err = %v, want ErrMalformedEvent", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			tt.check(t, e)
		})
	}
}

func TestPostEvent_ToMessageRoundTrip(t *testing.T) {
	post := &models.Post{ID: "p1", Latitude: 59.3733, Longitude: 28.6134, AuthorID: "u1"}
	e := NewPostEvent(ActionCreated, post)
	if e.EventID == "" || e.PostID != "p1" || e.AuthorID != "u1" {
		t.Fatalf("NewPostEvent = %+v", e)
	}

	msg, err := e.ToMessage()
	if err != nil {
		t.Fatalf("ToMessage: %v", err)
	}
	if msg.UUID != e.EventID || msg.Metadata.Get("action") != "created" {
		t.Errorf("message uuid=%q action=%q", msg.UUID, msg.Metadata.Get("action"))
	}

	decoded, err := Decode(msg.Payload)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.Post == nil || decoded.Post.Latitude != 59.3733 {
		t.Errorf("decoded = %+v", decoded)
	}
}
