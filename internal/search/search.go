package search

import (
	"github.com/google/uuid"

	"github.com/dtaplin21/DellSystemManager-sub008/internal/panelid"
	"github.com/dtaplin21/DellSystemManager-sub008/internal/store"
)

// Result is a single panel label hit.
type Result struct {
	PanelID     string `json:"panelId"`
	ProjectID   string `json:"projectId"`
	PanelNumber string `json:"panelNumber,omitempty"`
	RollNumber  string `json:"rollNumber,omitempty"`
	Canonical   string `json:"canonical,omitempty"`
}

// Query describes a label search within one project. Canonical is the
// normalized form of Text, filled by Service.Search.
type Query struct {
	ProjectID string
	Text      string
	Canonical string
	Limit     int
	Offset    int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results   []Result `json:"results"`
	Total     int      `json:"total"`
	Query     string   `json:"query"`
	Canonical string   `json:"canonical,omitempty"`
}

// PanelRecord is the data we index for a panel.
type PanelRecord struct {
	ID             string `json:"id"`
	PanelID        string `json:"panelId"`
	ProjectID      string `json:"projectId"`
	Shape          string `json:"shape"`
	PanelNumber    string `json:"panelNumber"`
	RollNumber     string `json:"rollNumber"`
	CanonicalPanel string `json:"canonicalPanel"`
	CanonicalRoll  string `json:"canonicalRoll"`
}

// DocID is the index document id of a panel. Meilisearch restricts id
// characters, so the pair is hashed.
func DocID(projectID, panelID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(projectID+"/"+panelID)).String()
}

func NewPanelRecord(projectID string, p store.Panel) PanelRecord {
	rec := PanelRecord{
		ID:        DocID(projectID, p.ID),
		PanelID:   p.ID,
		ProjectID: projectID,
		Shape:     string(p.Shape),
	}
	if p.PanelNumber != nil {
		rec.PanelNumber = *p.PanelNumber
	}
	if p.RollNumber != nil {
		rec.RollNumber = *p.RollNumber
	}
	rec.CanonicalPanel, _ = panelid.Canonical(p.PanelNumber)
	rec.CanonicalRoll, _ = panelid.Canonical(p.RollNumber)
	return rec
}

func resultFromRecord(rec PanelRecord, canonical string) Result {
	r := Result{
		PanelID:     rec.PanelID,
		ProjectID:   rec.ProjectID,
		PanelNumber: rec.PanelNumber,
		RollNumber:  rec.RollNumber,
		Canonical:   rec.CanonicalPanel,
	}
	if canonical != "" && rec.CanonicalRoll == canonical {
		r.Canonical = rec.CanonicalRoll
	}
	if r.Canonical == "" {
		r.Canonical = rec.CanonicalRoll
	}
	return r
}
