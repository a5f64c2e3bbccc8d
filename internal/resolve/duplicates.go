package resolve

import (
	"sort"

	"github.com/dtaplin21/DellSystemManager-sub008/internal/panelid"
	"github.com/dtaplin21/DellSystemManager-sub008/internal/store"
)

// DuplicateLabel is a canonical label shared by more than one panel.
type DuplicateLabel struct {
	Canonical string   `json:"canonical"`
	PanelIDs  []string `json:"panelIds"`
}

// FindDuplicateLabels reports every canonical label carried by two or more
// panels, sorted by label. A panel whose panel and roll numbers normalize to
// the same value counts once.
func FindDuplicateLabels(panels []store.Panel) []DuplicateLabel {
	owners := make(map[string][]string)
	for _, p := range panels {
		seen := make(map[string]struct{}, 2)
		for _, label := range []*string{p.PanelNumber, p.RollNumber} {
			canonical, ok := panelid.Canonical(label)
			if !ok {
				continue
			}
			if _, dup := seen[canonical]; dup {
				continue
			}
			seen[canonical] = struct{}{}
			owners[canonical] = append(owners[canonical], p.ID)
		}
	}

	var out []DuplicateLabel
	for canonical, ids := range owners {
		if len(ids) > 1 {
			out = append(out, DuplicateLabel{Canonical: canonical, PanelIDs: ids})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Canonical < out[j].Canonical })
	return out
}
