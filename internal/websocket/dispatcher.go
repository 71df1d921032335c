// KNG - Road Incident Alerts and Real-Time Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Iornfire12211221/KNG-sub000

package websocket

import (
	"fmt"

	"github.com/Iornfire12211221/KNG-sub000/internal/logging"
	"github.com/Iornfire12211221/KNG-sub000/internal/models"
)

// Dispatcher formats and delivers typed messages over the registry. Delivery
// is best effort: a false or zero result means "not reachable right now" and
// is never retried.
type Dispatcher struct {
	registry *Registry
}

// NewDispatcher returns a dispatcher writing through registry.
func NewDispatcher(registry *Registry) *Dispatcher {
	return &Dispatcher{registry: registry}
}

// SendTo delivers msg to one user.
func (d *Dispatcher) SendTo(userID string, msg models.Message) bool {
	return d.registry.Send(userID, msg)
}

// Broadcast delivers msg to every user subscribed to the channel implied by
// its type, limited to msg.TargetUsers when set, skipping exclude. It returns
// the number of connections actually written.
func (d *Dispatcher) Broadcast(msg models.Message, exclude ...string) int {
	var skip map[string]struct{}
	if len(exclude) > 0 {
		skip = make(map[string]struct{}, len(exclude))
		for _, id := range exclude {
			skip[id] = struct{}{}
		}
	}
	var targets map[string]struct{}
	if len(msg.TargetUsers) > 0 {
		targets = make(map[string]struct{}, len(msg.TargetUsers))
		for _, id := range msg.TargetUsers {
			targets[id] = struct{}{}
		}
	}

	return d.registry.SendEach(func(u *ConnectedUser) bool {
		if _, ok := skip[u.ID]; ok {
			return false
		}
		if targets != nil {
			if _, ok := targets[u.ID]; !ok {
				return false
			}
		}
		return Subscribed(u.Subscriptions, msg.Type)
	}, msg)
}

// Subscribed reports whether subs accept messages of type t. System
// messages and replies that are not channel-bound always pass.
func Subscribed(subs models.Subscriptions, t models.MessageType) bool {
	switch t {
	case models.MessageTypeNotification:
		return subs.Notifications
	case models.MessageTypePostUpdate:
		return subs.PostUpdates
	case models.MessageTypeGeofenceAlert:
		return subs.Geofencing
	default:
		return true
	}
}

// Notify sends a notification to a single user.
func (d *Dispatcher) Notify(userID string, n models.NotificationData) bool {
	msg, err := models.NewMessage(models.MessageTypeNotification, n)
	if err != nil {
		logging.Err(err).Msg("failed to build notification")
		return false
	}
	return d.SendTo(userID, msg.WithUser(userID))
}

// System broadcasts an informational message to every connection.
func (d *Dispatcher) System(text string) int {
	msg, err := models.NewMessage(models.MessageTypeSystem, models.SystemData{Event: "announcement", Message: text})
	if err != nil {
		logging.Err(err).Msg("failed to build system message")
		return 0
	}
	return d.Broadcast(msg)
}

// AnnouncePostCreated tells everyone but the author about a new post: a
// post_update for map state and a new_post notification.
func (d *Dispatcher) AnnouncePostCreated(post *models.Post) int {
	n := d.broadcastPostUpdate(models.PostActionCreate, post, "", post.AuthorID)
	d.broadcastNotification(models.NotificationData{
		NotificationType: models.NotificationNewPost,
		Title:            "New report: " + post.Type.Label(),
		Message:          describePost(post),
		Priority:         post.Severity.Priority(),
		Data:             postData(post),
	}, post.ID, post.AuthorID)
	return n
}

// AnnouncePostApproved notifies the author and publishes the post to the
// map of every client.
func (d *Dispatcher) AnnouncePostApproved(post *models.Post) int {
	if post.AuthorID != "" {
		d.notifyAbout(post.AuthorID, post.ID, models.NotificationData{
			NotificationType: models.NotificationPostApproved,
			Title:            "Your report was published",
			Message:          describePost(post),
			Priority:         models.PriorityNormal,
			Data:             postData(post),
		})
	}
	return d.broadcastPostUpdate(models.PostActionCreate, post, "")
}

// AnnouncePostRejected notifies only the author.
func (d *Dispatcher) AnnouncePostRejected(postID, authorID, reason string) bool {
	if authorID == "" {
		return false
	}
	text := "Your report was not published."
	if reason != "" {
		text = "Your report was not published: " + reason
	}
	return d.notifyAbout(authorID, postID, models.NotificationData{
		NotificationType: models.NotificationPostRejected,
		Title:            "Report rejected",
		Message:          text,
		Priority:         models.PriorityLow,
		Data:             map[string]any{"postId": postID, "reason": reason},
	})
}

// AnnouncePostUpdated publishes new post contents.
func (d *Dispatcher) AnnouncePostUpdated(post *models.Post) int {
	return d.broadcastPostUpdate(models.PostActionUpdate, post, "")
}

// AnnouncePostDeleted removes a post from every client map.
func (d *Dispatcher) AnnouncePostDeleted(postID string) int {
	return d.broadcastPostUpdate(models.PostActionDelete, nil, postID)
}

func (d *Dispatcher) broadcastPostUpdate(action models.PostAction, post *models.Post, postID string, exclude ...string) int {
	data := models.PostUpdateData{Action: action, Post: post, PostID: postID}
	if post != nil {
		postID = post.ID
	}
	msg, err := models.NewMessage(models.MessageTypePostUpdate, data)
	if err != nil {
		logging.Err(err).Str("post_id", postID).Msg("failed to build post update")
		return 0
	}
	n := d.Broadcast(msg.WithPost(postID), exclude...)
	logging.Debug().Str("post_id", postID).Str("action", string(action)).Int("recipients", n).Msg("post update broadcast")
	return n
}

func (d *Dispatcher) broadcastNotification(n models.NotificationData, postID string, exclude ...string) int {
	msg, err := models.NewMessage(models.MessageTypeNotification, n)
	if err != nil {
		logging.Err(err).Str("post_id", postID).Msg("failed to build notification")
		return 0
	}
	return d.Broadcast(msg.WithPost(postID), exclude...)
}

// notifyAbout sends a personal notification unless the user turned the
// notifications channel off.
func (d *Dispatcher) notifyAbout(userID, postID string, n models.NotificationData) bool {
	u, ok := d.registry.Get(userID)
	if !ok || !Subscribed(u.Subscriptions, models.MessageTypeNotification) {
		return false
	}
	msg, err := models.NewMessage(models.MessageTypeNotification, n)
	if err != nil {
		logging.Err(err).Str("post_id", postID).Msg("failed to build notification")
		return false
	}
	return d.SendTo(userID, msg.WithUser(userID).WithPost(postID))
}

func describePost(post *models.Post) string {
	switch {
	case post.Address != "" && post.Description != "":
		return fmt.Sprintf("%s: %s", post.Address, post.Description)
	case post.Address != "":
		return post.Address
	case post.Description != "":
		return post.Description
	default:
		return post.Type.Label()
	}
}

func postData(post *models.Post) map[string]any {
	return map[string]any{
		"postId":    post.ID,
		"postType":  string(post.Type),
		"severity":  string(post.Severity),
		"latitude":  post.Latitude,
		"longitude": post.Longitude,
	}
}
