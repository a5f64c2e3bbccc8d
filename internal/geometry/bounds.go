// Package geometry computes panel bounds for resize, move and placement
// gestures and converts between world units (feet) and pixels.
package geometry

import (
	"math"

	"github.com/paulmach/orb"
)

// precision is the number of fractional steps kept after every computation.
// Coordinates round-trip through pixel conversions and grid snapping, so
// values are pinned to 1e-6 to keep comparisons stable.
const precision = 1e6

// MinExtent is the smallest width or height a panel may have.
const MinExtent = 1e-3

// Point is a world-space position.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Bounds is an axis-aligned rectangle with its origin at the top-left corner.
type Bounds struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (b Bounds) Right() float64  { return b.X + b.Width }
func (b Bounds) Bottom() float64 { return b.Y + b.Height }

// Orb returns the bounds as an orb.Bound.
func (b Bounds) Orb() orb.Bound {
	return orb.MultiPoint{{b.X, b.Y}, {b.Right(), b.Bottom()}}.Bound()
}

// Overlaps reports whether the two rectangles share a region of positive
// area. Rectangles that only touch along an edge do not overlap.
func (b Bounds) Overlaps(o Bounds) bool {
	a, c := b.Orb(), o.Orb()
	return a.Min.X() < c.Max.X() && c.Min.X() < a.Max.X() &&
		a.Min.Y() < c.Max.Y() && c.Min.Y() < a.Max.Y()
}

// Contains reports whether o lies entirely inside b, edges included.
func (b Bounds) Contains(o Bounds) bool {
	outer, inner := b.Orb(), o.Orb()
	return outer.Contains(inner.Min) && outer.Contains(inner.Max)
}

// Valid reports whether the bounds are finite with a positive extent.
func (b Bounds) Valid() bool {
	for _, v := range []float64{b.X, b.Y, b.Width, b.Height} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return b.Width > 0 && b.Height > 0
}

// Round pins v to the package precision.
func Round(v float64) float64 {
	return math.Round(v*precision) / precision
}

// RoundBounds rounds every component of b.
func RoundBounds(b Bounds) Bounds {
	return Bounds{X: Round(b.X), Y: Round(b.Y), Width: Round(b.Width), Height: Round(b.Height)}
}

// FeetToPixels converts a world length to pixels at the given scale
// (pixels per foot).
func FeetToPixels(feet, scale float64) float64 {
	if scale <= 0 {
		return Round(feet)
	}
	return Round(feet * scale)
}

// PixelsToFeet converts a pixel length back to world units.
func PixelsToFeet(px, scale float64) float64 {
	if scale <= 0 {
		return Round(px)
	}
	return Round(px / scale)
}

func BoundsToPixels(b Bounds, scale float64) Bounds {
	return Bounds{
		X:      FeetToPixels(b.X, scale),
		Y:      FeetToPixels(b.Y, scale),
		Width:  FeetToPixels(b.Width, scale),
		Height: FeetToPixels(b.Height, scale),
	}
}

func BoundsToFeet(b Bounds, scale float64) Bounds {
	return Bounds{
		X:      PixelsToFeet(b.X, scale),
		Y:      PixelsToFeet(b.Y, scale),
		Width:  PixelsToFeet(b.Width, scale),
		Height: PixelsToFeet(b.Height, scale),
	}
}

// NormalizeRotation maps any angle in degrees into [0, 360).
func NormalizeRotation(deg float64) float64 {
	if math.IsNaN(deg) || math.IsInf(deg, 0) {
		return 0
	}
	r := Round(math.Mod(deg, 360))
	if r < 0 {
		r = Round(r + 360)
	}
	if r >= 360 {
		r = 0
	}
	return r
}

// SnapToGrid rounds v to the nearest multiple of grid. A non-positive grid
// leaves v unchanged. The operation is idempotent.
func SnapToGrid(v, grid float64) float64 {
	if grid <= 0 {
		return v
	}
	return Round(math.Round(v/grid) * grid)
}

func ceilToGrid(v, grid float64) float64 {
	if grid <= 0 {
		return v
	}
	return Round(math.Ceil(v/grid-1e-9) * grid)
}
