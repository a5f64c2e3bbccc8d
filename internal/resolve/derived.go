package resolve

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/dtaplin21/DellSystemManager-sub008/internal/panelid"
	"github.com/dtaplin21/DellSystemManager-sub008/internal/store"
)

// DerivedPrefix marks ids synthesized from geometry rather than assigned by
// the backend.
const DerivedPrefix = "geo-"

var derivedNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:panel-layout:derived-panel-id"))

// DerivedID returns a deterministic id for a panel that arrived without one.
// Geometry is rounded to two decimals, so the same panel yields the same id
// across reloads. The id is not the server's id and must be reconciled once
// that is known.
func DerivedID(projectID string, x, y, width, height float64) string {
	key := strings.Join([]string{
		projectID,
		fixed(x),
		fixed(y),
		fixed(width),
		fixed(height),
	}, "|")
	return DerivedPrefix + uuid.NewSHA1(derivedNamespace, []byte(key)).String()
}

// PanelDerivedID derives the id from the panel's bounding box.
func PanelDerivedID(projectID string, p store.Panel) string {
	b := p.Bounds()
	return DerivedID(projectID, b.X, b.Y, b.Width, b.Height)
}

func fixed(v float64) string {
	r := math.Round(v*100) / 100
	if r == 0 {
		r = 0 // drop negative zero
	}
	return strconv.FormatFloat(r, 'f', 2, 64)
}

// AssignDerivedIDs returns a copy of panels in which every empty id is replaced
// by its derived id. Panels with identical geometry get a numeric suffix.
func AssignDerivedIDs(projectID string, panels []store.Panel) []store.Panel {
	out := make([]store.Panel, len(panels))
	used := make(map[string]struct{}, len(panels))
	for _, p := range panels {
		if p.ID != "" {
			used[p.ID] = struct{}{}
		}
	}
	for i, p := range panels {
		if p.ID == "" {
			base := PanelDerivedID(projectID, p)
			id := base
			for n := 2; ; n++ {
				if _, taken := used[id]; !taken {
					break
				}
				id = fmt.Sprintf("%s-%d", base, n)
			}
			p.ID = id
			used[id] = struct{}{}
		}
		out[i] = p
	}
	return out
}

// ReconcileDerivedIDs maps each derived id in local to the authoritative id of
// the server panel it corresponds to. Panels are matched by geometry first,
// then by a canonical label that identifies exactly one server panel.
func ReconcileDerivedIDs(projectID string, local, server []store.Panel) map[string]string {
	byGeometry := make(map[string]string, len(server))
	for _, p := range server {
		if p.ID == "" || strings.HasPrefix(p.ID, DerivedPrefix) {
			continue
		}
		key := PanelDerivedID(projectID, p)
		if _, exists := byGeometry[key]; !exists {
			byGeometry[key] = p.ID
		}
	}

	mapping := make(map[string]string)
	for _, p := range local {
		if !strings.HasPrefix(p.ID, DerivedPrefix) {
			continue
		}
		if serverID, ok := byGeometry[PanelDerivedID(projectID, p)]; ok {
			mapping[p.ID] = serverID
			continue
		}
		for _, label := range []*string{p.PanelNumber, p.RollNumber} {
			canonical, ok := panelid.Canonical(label)
			if !ok {
				continue
			}
			if matches := matchLabel(canonical, server); len(matches) == 1 {
				mapping[p.ID] = matches[0]
				break
			}
		}
	}
	return mapping
}
