// KNG - Road Incident Alerts and Real-Time Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Iornfire12211221/KNG-sub000

package geo

import (
	"math"
	"sync"
)

// DefaultCellSizeMeters suits town-scale geofences of a few kilometers.
const DefaultCellSizeMeters = 2000.0

// Grid divides geographic space into square cells so a proximity query only
// inspects the cells overlapping the search radius instead of every entry.
//
// Time Complexity:
//   - Insert: O(1)
//   - Remove: O(1) amortized
//   - Nearby: O(k) where k = entries in the inspected cells
type Grid struct {
	mu       sync.RWMutex
	cells    map[cellKey][]*Entry
	entries  map[string]*Entry
	cellSize float64 // degrees
}

type cellKey struct {
	X, Y int
}

// Entry is a point stored in the grid with an arbitrary payload.
type Entry struct {
	ID   string
	Lat  float64
	Lon  float64
	Data any

	// Distance is filled in by Nearby with the distance in meters to the query point.
	Distance float64

	key cellKey
}

// NewGrid creates a grid whose cells are roughly cellSizeMeters wide.
func NewGrid(cellSizeMeters float64) *Grid {
	if cellSizeMeters <= 0 {
		cellSizeMeters = DefaultCellSizeMeters
	}
	return &Grid{
		cells:    make(map[cellKey][]*Entry),
		entries:  make(map[string]*Entry),
		cellSize: cellSizeMeters / metersPerDegree,
	}
}

func (g *Grid) keyFor(lat, lon float64) cellKey {
	for lon > 180 {
		lon -= 360
	}
	for lon < -180 {
		lon += 360
	}
	return cellKey{
		X: int(math.Floor(lon / g.cellSize)),
		Y: int(math.Floor(lat / g.cellSize)),
	}
}

// Insert adds or replaces the entry with the given ID.
func (g *Grid) Insert(id string, lat, lon float64, data any) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if existing, ok := g.entries[id]; ok {
		g.removeFromCellLocked(existing)
	}

	e := &Entry{ID: id, Lat: lat, Lon: lon, Data: data, key: g.keyFor(lat, lon)}
	g.cells[e.key] = append(g.cells[e.key], e)
	g.entries[id] = e
}

// Remove deletes an entry by ID and reports whether it existed.
func (g *Grid) Remove(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	e, ok := g.entries[id]
	if !ok {
		return false
	}
	g.removeFromCellLocked(e)
	delete(g.entries, id)
	return true
}

// removeFromCellLocked removes e from its cell (caller must hold lock).
func (g *Grid) removeFromCellLocked(e *Entry) {
	cell := g.cells[e.key]
	for i, c := range cell {
		if c.ID == e.ID {
			cell[i] = cell[len(cell)-1]
			cell = cell[:len(cell)-1]
			break
		}
	}
	if len(cell) == 0 {
		delete(g.cells, e.key)
		return
	}
	g.cells[e.key] = cell
}

// Nearby returns copies of all entries within radiusMeters of the point,
// with Distance populated. Cells are scanned conservatively and every
// candidate is filtered by exact haversine distance.
func (g *Grid) Nearby(lat, lon, radiusMeters float64) []Entry {
	g.mu.RLock()
	defer g.mu.RUnlock()

	span := int(math.Ceil(radiusMeters/metersPerDegree/g.cellSize)) + 1

	// Longitude degrees shrink with latitude; widen the X span accordingly.
	spanX := span
	if c := math.Cos(lat * math.Pi / 180); c > 0.01 {
		spanX = int(math.Ceil(float64(span)/c)) + 1
	}

	center := g.keyFor(lat, lon)
	var out []Entry
	for dx := -spanX; dx <= spanX; dx++ {
		for dy := -span; dy <= span; dy++ {
			for _, e := range g.cells[cellKey{X: center.X + dx, Y: center.Y + dy}] {
				d := Distance(lat, lon, e.Lat, e.Lon)
				if d <= radiusMeters {
					cp := *e
					cp.Distance = d
					out = append(out, cp)
				}
			}
		}
	}
	return out
}

// Len returns the number of entries.
func (g *Grid) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.entries)
}

// Reset removes all entries.
func (g *Grid) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cells = make(map[cellKey][]*Entry)
	g.entries = make(map[string]*Entry)
}
