// Package positions keeps a local, possibly stale mirror of panel placements
// and reconciles it with the server-authoritative layout.
package positions

import (
	"math"

	"github.com/dtaplin21/DellSystemManager-sub008/internal/store"
)

// CachedPosition mirrors the placement of one panel. Timestamp is the time of
// the last local edit in milliseconds since the epoch.
type CachedPosition struct {
	X             float64 `json:"x"`
	Y             float64 `json:"y"`
	Rotation      float64 `json:"rotation"`
	Timestamp     int64   `json:"timestamp"`
	BackendSynced bool    `json:"backendSynced"`
}

func (p CachedPosition) finite() bool {
	for _, v := range []float64{p.X, p.Y, p.Rotation} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// PositionMap is keyed by panel id.
type PositionMap map[string]CachedPosition

func (m PositionMap) clone() PositionMap {
	out := make(PositionMap, len(m))
	for id, p := range m {
		out[id] = p
	}
	return out
}

// DefaultTolerance is the distance within which a server position counts as
// one of the placeholder positions new panels are created at.
const DefaultTolerance = 1.0

var placeholderPositions = [][2]float64{{0, 0}, {50, 50}}

// IsDefaultPosition reports whether (x, y) is a placeholder position.
func IsDefaultPosition(x, y float64) bool {
	for _, p := range placeholderPositions {
		if math.Abs(x-p[0]) <= DefaultTolerance && math.Abs(y-p[1]) <= DefaultTolerance {
			return true
		}
	}
	return false
}

// ServerPosition is the authoritative position of a server panel.
func ServerPosition(p store.Panel) CachedPosition {
	var ts int64
	if !p.UpdatedAt.IsZero() {
		ts = p.UpdatedAt.UnixMilli()
	}
	return CachedPosition{X: p.X, Y: p.Y, Rotation: p.Rotation, Timestamp: ts, BackendSynced: true}
}

// MergePositions reconciles server panels with cached positions:
//
//   - the server position wins by default;
//   - cache entries with non-finite coordinates never win;
//   - an unsynced cache entry newer than the server wins;
//   - a valid cache entry wins over a server placeholder position;
//   - unsynced cache-only entries are carried through, synced ones are
//     dropped because the server no longer has the panel.
func MergePositions(serverPanels []store.Panel, cached PositionMap) PositionMap {
	merged := make(PositionMap, len(serverPanels)+len(cached))
	known := make(map[string]struct{}, len(serverPanels))

	for _, p := range serverPanels {
		known[p.ID] = struct{}{}
		server := ServerPosition(p)
		c, ok := cached[p.ID]
		switch {
		case ok && !c.BackendSynced && c.Timestamp > server.Timestamp && c.finite():
			merged[p.ID] = c
		case ok && IsDefaultPosition(server.X, server.Y) && !IsDefaultPosition(c.X, c.Y) && c.finite():
			merged[p.ID] = c
		default:
			merged[p.ID] = server
		}
	}

	for id, c := range cached {
		if _, ok := known[id]; ok {
			continue
		}
		if !c.BackendSynced && c.finite() {
			merged[id] = c
		}
	}
	return merged
}
