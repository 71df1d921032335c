// KNG - Road Incident Alerts and Real-Time Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Iornfire12211221/KNG-sub000

package geofence

import (
	"sort"
	"time"

	"github.com/Iornfire12211221/KNG-sub000/internal/models"
)

// Zone is the circular alert area around one active post.
type Zone struct {
	ID     string
	PostID string
	Lat    float64
	Lon    float64
	Radius float64
	Post   models.Post
}

// ZoneID returns the zone identifier derived from a post ID.
func ZoneID(postID string) string {
	return "zone_" + postID
}

// BuildZones derives one zone per active post. Posts that are expired,
// not approved, or repeat an earlier ID are skipped. The result is ordered
// by zone ID.
func BuildZones(posts []models.Post, radius float64, now time.Time) []Zone {
	zones := make([]Zone, 0, len(posts))
	seen := make(map[string]struct{}, len(posts))
	for i := range posts {
		p := &posts[i]
		if p.ID == "" || !p.IsActive(now) {
			continue
		}
		if _, dup := seen[p.ID]; dup {
			continue
		}
		seen[p.ID] = struct{}{}
		zones = append(zones, Zone{
			ID:     ZoneID(p.ID),
			PostID: p.ID,
			Lat:    p.Latitude,
			Lon:    p.Longitude,
			Radius: radius,
			Post:   *p,
		})
	}
	sort.Slice(zones, func(i, j int) bool { return zones[i].ID < zones[j].ID })
	return zones
}
