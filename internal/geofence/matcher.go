// KNG - Road Incident Alerts and Real-Time Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Iornfire12211221/KNG-sub000

package geofence

import (
	"sort"

	"github.com/Iornfire12211221/KNG-sub000/internal/geo"
)

// Index names accepted in configuration.
const (
	IndexLinear = "linear"
	IndexGrid   = "grid"
)

// Match is a zone containing the queried point.
type Match struct {
	Zone     *Zone
	Distance float64
}

// Matcher finds the zones containing a point. Reset replaces the zone set;
// both methods are called from a single goroutine.
type Matcher interface {
	Reset(zones []Zone)
	Match(lat, lon float64) []Match
}

// NewMatcher returns the matcher for an index name; unknown names fall back
// to the linear scan.
func NewMatcher(index string) Matcher {
	if index == IndexGrid {
		return NewGridMatcher(geo.DefaultCellSizeMeters)
	}
	return &LinearMatcher{}
}

// LinearMatcher checks every zone. Fine for the few hundred active posts of
// a town.
type LinearMatcher struct {
	zones []Zone
}

// Reset implements Matcher.
func (m *LinearMatcher) Reset(zones []Zone) {
	m.zones = zones
}

// Match implements Matcher.
func (m *LinearMatcher) Match(lat, lon float64) []Match {
	var out []Match
	for i := range m.zones {
		z := &m.zones[i]
		if d := geo.Distance(lat, lon, z.Lat, z.Lon); d <= z.Radius {
			out = append(out, Match{Zone: z, Distance: d})
		}
	}
	sortMatches(out)
	return out
}

// GridMatcher looks zones up in a spatial hash, inspecting only the cells
// within the largest zone radius.
type GridMatcher struct {
	grid      *geo.Grid
	zones     []Zone
	maxRadius float64
}

// NewGridMatcher builds an empty grid-backed matcher.
func NewGridMatcher(cellSizeMeters float64) *GridMatcher {
	return &GridMatcher{grid: geo.NewGrid(cellSizeMeters)}
}

// Reset implements Matcher.
func (m *GridMatcher) Reset(zones []Zone) {
	m.grid.Reset()
	m.zones = zones
	m.maxRadius = 0
	for i := range m.zones {
		z := &m.zones[i]
		m.grid.Insert(z.ID, z.Lat, z.Lon, z)
		if z.Radius > m.maxRadius {
			m.maxRadius = z.Radius
		}
	}
}

// Match implements Matcher.
func (m *GridMatcher) Match(lat, lon float64) []Match {
	if len(m.zones) == 0 {
		return nil
	}
	var out []Match
	for _, e := range m.grid.Nearby(lat, lon, m.maxRadius) {
		z, ok := e.Data.(*Zone)
		if !ok || e.Distance > z.Radius {
			continue
		}
		out = append(out, Match{Zone: z, Distance: e.Distance})
	}
	sortMatches(out)
	return out
}

// sortMatches orders nearest first, ties by zone ID.
func sortMatches(ms []Match) {
	sort.Slice(ms, func(i, j int) bool {
		if ms[i].Distance != ms[j].Distance {
			return ms[i].Distance < ms[j].Distance
		}
		return ms[i].Zone.ID < ms[j].Zone.ID
	})
}
