package store

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/dtaplin21/DellSystemManager-sub008/internal/geometry"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidPanel = errors.New("invalid panel")
)

type Shape string

const (
	ShapeRectangle     Shape = "rectangle"
	ShapeRightTriangle Shape = "right-triangle"
	ShapeCircle        Shape = "circle"
	// ShapeLegacyPatch is accepted on input only; MigrateLegacyPatches turns
	// such panels into Patch records.
	ShapeLegacyPatch Shape = "patch"
)

// Panel is a placed geosynthetic liner unit. Rectangles and triangles use
// (X, Y) as the top-left corner; circles use it as the center.
type Panel struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"projectId,omitempty"`
	Shape       Shape     `json:"shape"`
	X           float64   `json:"x"`
	Y           float64   `json:"y"`
	Width       float64   `json:"width,omitempty"`
	Height      float64   `json:"height,omitempty"`
	Radius      float64   `json:"radius,omitempty"`
	Rotation    float64   `json:"rotation"`
	PanelNumber *string   `json:"panelNumber"`
	RollNumber  *string   `json:"rollNumber"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Bounds returns the world-space bounding box of the panel.
func (p Panel) Bounds() geometry.Bounds {
	if p.Shape == ShapeCircle {
		return geometry.Bounds{X: p.X - p.Radius, Y: p.Y - p.Radius, Width: 2 * p.Radius, Height: 2 * p.Radius}
	}
	return geometry.Bounds{X: p.X, Y: p.Y, Width: p.Width, Height: p.Height}
}

// SetBounds moves and sizes the panel so that its bounding box is b. Circles
// take the box center and half of its width.
func (p *Panel) SetBounds(b geometry.Bounds) {
	if p.Shape == ShapeCircle {
		p.Radius = geometry.Round(b.Width / 2)
		p.X = geometry.Round(b.X + p.Radius)
		p.Y = geometry.Round(b.Y + p.Radius)
		return
	}
	p.X, p.Y, p.Width, p.Height = b.X, b.Y, b.Width, b.Height
}

// Normalize fills the default shape and maps rotation into [0, 360).
func (p *Panel) Normalize() {
	if p.Shape == "" {
		p.Shape = ShapeRectangle
	}
	p.Rotation = geometry.NormalizeRotation(p.Rotation)
}

func (p Panel) Validate() error {
	switch p.Shape {
	case ShapeRectangle, ShapeRightTriangle:
		if !(p.Width > 0) || !(p.Height > 0) || math.IsInf(p.Width, 0) || math.IsInf(p.Height, 0) {
			return fmt.Errorf("%w: width and height must be positive", ErrInvalidPanel)
		}
	case ShapeCircle:
		if !(p.Radius > 0) || math.IsInf(p.Radius, 0) {
			return fmt.Errorf("%w: radius must be positive", ErrInvalidPanel)
		}
	default:
		return fmt.Errorf("%w: unsupported shape %q", ErrInvalidPanel, p.Shape)
	}
	if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsInf(p.X, 0) || math.IsInf(p.Y, 0) {
		return fmt.Errorf("%w: position must be finite", ErrInvalidPanel)
	}
	if p.Rotation < 0 || p.Rotation >= 360 || math.IsNaN(p.Rotation) {
		return fmt.Errorf("%w: rotation %.2f outside [0, 360)", ErrInvalidPanel, p.Rotation)
	}
	if p.ID == "" && p.PanelNumber == nil && p.RollNumber == nil {
		return fmt.Errorf("%w: panel needs an id or a label", ErrInvalidPanel)
	}
	return nil
}

// Patch is a circular repair overlay. X and Y are the center.
type Patch struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"projectId,omitempty"`
	X           float64   `json:"x"`
	Y           float64   `json:"y"`
	Radius      float64   `json:"radius"`
	Rotation    float64   `json:"rotation"`
	PatchNumber string    `json:"patchNumber"`
	Date        string    `json:"date,omitempty"`
	Location    string    `json:"location,omitempty"`
	Material    string    `json:"material,omitempty"`
	Thickness   float64   `json:"thickness,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// MigrateLegacyPatches splits panels carrying the legacy "patch" shape out
// into Patch records. Legacy patches with a radius are centered on (X, Y);
// ones stored as boxes are centered on the box.
func MigrateLegacyPatches(panels []Panel) ([]Panel, []Patch) {
	kept := make([]Panel, 0, len(panels))
	var patches []Patch
	for _, p := range panels {
		if p.Shape != ShapeLegacyPatch {
			kept = append(kept, p)
			continue
		}
		patch := Patch{
			ID:        p.ID,
			ProjectID: p.ProjectID,
			X:         p.X,
			Y:         p.Y,
			Radius:    p.Radius,
			Rotation:  geometry.NormalizeRotation(p.Rotation),
			UpdatedAt: p.UpdatedAt,
		}
		if patch.Radius <= 0 {
			patch.Radius = math.Min(p.Width, p.Height) / 2
			patch.X = p.X + p.Width/2
			patch.Y = p.Y + p.Height/2
		}
		if p.PanelNumber != nil {
			patch.PatchNumber = *p.PanelNumber
		} else if p.RollNumber != nil {
			patch.PatchNumber = *p.RollNumber
		}
		patches = append(patches, patch)
	}
	return kept, patches
}

type Domain string

const (
	DomainPanelPlacement Domain = "panel_placement"
	DomainPanelSeaming   Domain = "panel_seaming"
	DomainNonDestructive Domain = "non_destructive"
	DomainTrialWeld      Domain = "trial_weld"
	DomainDestructive    Domain = "destructive"
	DomainRepairs        Domain = "repairs"
)

func (d Domain) Valid() bool {
	switch d {
	case DomainPanelPlacement, DomainPanelSeaming, DomainNonDestructive, DomainTrialWeld, DomainDestructive, DomainRepairs:
		return true
	}
	return false
}

// AsbuiltRecord is a field-collected datum linked to at most one panel. A nil
// PanelID means resolution failed and the record waits for review.
type AsbuiltRecord struct {
	ID             string         `json:"id"`
	ProjectID      string         `json:"projectId"`
	PanelID        *string        `json:"panelId"`
	Domain         Domain         `json:"domain"`
	RawData        map[string]any `json:"rawData"`
	MappedData     map[string]any `json:"mappedData"`
	AIConfidence   float64        `json:"aiConfidence"`
	RequiresReview bool           `json:"requiresReview"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

// Layout is the backend exchange shape for one project's panel layout.
type Layout struct {
	ProjectID   string    `json:"projectId"`
	Panels      []Panel   `json:"panels"`
	Patches     []Patch   `json:"patches"`
	Width       float64   `json:"width"`
	Height      float64   `json:"height"`
	Scale       float64   `json:"scale"`
	LastUpdated time.Time `json:"lastUpdated"`
}

type DomainCount struct {
	Domain         Domain `json:"domain"`
	Total          int    `json:"total"`
	Linked         int    `json:"linked"`
	RequiresReview int    `json:"requiresReview"`
}

type ProjectSummary struct {
	ProjectID      string        `json:"projectId"`
	TotalRecords   int           `json:"totalRecords"`
	LinkedRecords  int           `json:"linkedRecords"`
	RequiresReview int           `json:"requiresReview"`
	Domains        []DomainCount `json:"domains"`
}
