// Package resolve maps the identifier stated on an as-built record to the id
// of a panel in the project's layout.
package resolve

import (
	"strings"

	"github.com/dtaplin21/DellSystemManager-sub008/internal/panelid"
	"github.com/dtaplin21/DellSystemManager-sub008/internal/store"
)

type Method string

const (
	MethodNone      Method = ""
	MethodExactID   Method = "exact-id"
	MethodLabel     Method = "label"
	MethodGeometric Method = "geometric"
)

// Resolution is the outcome of one lookup. Duplicates lists every panel that
// matched the canonical label when more than one did; PanelID is then the
// first of them in layout order and the match needs review.
type Resolution struct {
	PanelID    string   `json:"panelId,omitempty"`
	Method     Method   `json:"method,omitempty"`
	Canonical  string   `json:"canonical,omitempty"`
	Duplicates []string `json:"duplicates,omitempty"`
}

func (r Resolution) Found() bool { return r.PanelID != "" }

func (r Resolution) Ambiguous() bool { return len(r.Duplicates) > 1 }

// Resolve runs the lookup tiers in order: exact id, canonical panel or roll
// label, derived geometric id. It never fails; a miss is a zero PanelID.
// Identifiers carrying DerivedPrefix only take part in the geometric tier.
func Resolve(projectID, identifier string, panels []store.Panel) Resolution {
	id := strings.TrimSpace(identifier)
	if id == "" {
		return Resolution{}
	}

	for _, p := range panels {
		if p.ID == id {
			return Resolution{PanelID: p.ID, Method: MethodExactID}
		}
	}

	// Derived ids are hex and would normalize to an arbitrary digit run.
	if strings.HasPrefix(id, DerivedPrefix) {
		for _, p := range panels {
			if PanelDerivedID(projectID, p) == id {
				return Resolution{PanelID: p.ID, Method: MethodGeometric}
			}
		}
		return Resolution{}
	}

	canonical, ok := panelid.Normalize(id)
	if !ok {
		return Resolution{}
	}
	matches := matchLabel(canonical, panels)
	if len(matches) == 0 {
		return Resolution{Canonical: canonical}
	}
	res := Resolution{PanelID: matches[0], Method: MethodLabel, Canonical: canonical}
	if len(matches) > 1 {
		res.Duplicates = matches
	}
	return res
}

func matchLabel(canonical string, panels []store.Panel) []string {
	var ids []string
	for _, p := range panels {
		if labelMatches(canonical, p) {
			ids = append(ids, p.ID)
		}
	}
	return ids
}

func labelMatches(canonical string, p store.Panel) bool {
	if c, ok := panelid.Canonical(p.PanelNumber); ok && c == canonical {
		return true
	}
	if c, ok := panelid.Canonical(p.RollNumber); ok && c == canonical {
		return true
	}
	return false
}
