// KNG - Road Incident Alerts and Real-Time Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Iornfire12211221/KNG-sub000

package geofence

import "time"

// zoneState tracks one (user, zone) pair.
type zoneState struct {
	entered          bool
	lastNotification time.Time
}

// stateTable holds zone states per user. Keying by user first keeps
// "which zones did this user leave" a single map lookup.
type stateTable struct {
	users map[string]map[string]*zoneState
}

func newStateTable() *stateTable {
	return &stateTable{users: make(map[string]map[string]*zoneState)}
}

func (t *stateTable) get(userID, zoneID string) *zoneState {
	zones, ok := t.users[userID]
	if !ok {
		zones = make(map[string]*zoneState)
		t.users[userID] = zones
	}
	st, ok := zones[zoneID]
	if !ok {
		st = &zoneState{}
		zones[zoneID] = st
	}
	return st
}

// due reports whether an alert may be sent: never notified, or the last
// notification is strictly older than cooldown.
func (s *zoneState) due(now time.Time, cooldown time.Duration) bool {
	return s.lastNotification.IsZero() || now.Sub(s.lastNotification) > cooldown
}

// leaveExcept clears entered for every zone of userID not in inside.
func (t *stateTable) leaveExcept(userID string, inside map[string]struct{}) {
	for zoneID, st := range t.users[userID] {
		if _, ok := inside[zoneID]; !ok {
			st.entered = false
		}
	}
}

// prune drops state for vanished zones, marks users that were not
// evaluated as outside every zone, and forgets pairs that are outside and
// past their cooldown.
func (t *stateTable) prune(zones map[string]struct{}, evaluated map[string]struct{}, now time.Time, cooldown time.Duration) {
	for userID, states := range t.users {
		_, seen := evaluated[userID]
		for zoneID, st := range states {
			if _, ok := zones[zoneID]; !ok {
				delete(states, zoneID)
				continue
			}
			if !seen {
				st.entered = false
			}
			if !st.entered && st.due(now, cooldown) {
				delete(states, zoneID)
			}
		}
		if len(states) == 0 {
			delete(t.users, userID)
		}
	}
}

func (t *stateTable) pairs() int {
	n := 0
	for _, states := range t.users {
		n += len(states)
	}
	return n
}
