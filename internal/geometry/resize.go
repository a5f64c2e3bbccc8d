package geometry

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrInvalidConstraints = errors.New("invalid resize constraints")
	ErrUnknownHandle      = errors.New("unknown resize handle")
	ErrInvalidBounds      = errors.New("invalid initial bounds")
)

// Handle names one of the eight resize grips.
type Handle string

const (
	HandleTopLeft     Handle = "top-left"
	HandleTop         Handle = "top"
	HandleTopRight    Handle = "top-right"
	HandleRight       Handle = "right"
	HandleBottomRight Handle = "bottom-right"
	HandleBottom      Handle = "bottom"
	HandleBottomLeft  Handle = "bottom-left"
	HandleLeft        Handle = "left"
)

// edges records which sides of the rectangle a gesture moves.
type edges struct {
	left, right, top, bottom bool
}

func (e edges) horizontalOnly() bool { return (e.left || e.right) && !e.top && !e.bottom }

var handleEdges = map[Handle]edges{
	HandleTopLeft:     {left: true, top: true},
	HandleTop:         {top: true},
	HandleTopRight:    {right: true, top: true},
	HandleRight:       {right: true},
	HandleBottomRight: {right: true, bottom: true},
	HandleBottom:      {bottom: true},
	HandleBottomLeft:  {left: true, bottom: true},
	HandleLeft:        {left: true},
}

var translateEdges = edges{left: true, right: true, top: true, bottom: true}

// Limit names the constraint that altered a gesture's raw result.
type Limit string

const (
	LimitNone      Limit = ""
	LimitMinWidth  Limit = "min-width"
	LimitMinHeight Limit = "min-height"
	LimitMaxWidth  Limit = "max-width"
	LimitMaxHeight Limit = "max-height"
	LimitAspect    Limit = "aspect-ratio"
	LimitGrid      Limit = "grid"
	LimitNeighbor  Limit = "neighbor-snap"
)

// NeighborIndex answers proximity queries; *spatial.Index satisfies it.
type NeighborIndex interface {
	Query(x, y, w, h float64) []string
}

// BoundsLookup returns the current bounds of a neighbor id.
type BoundsLookup func(id string) (Bounds, bool)

// Constraints configures a resize or move gesture. Zero values disable the
// corresponding constraint.
type Constraints struct {
	MinWidth  float64
	MinHeight float64
	MaxWidth  float64
	MaxHeight float64

	LockAspect  bool
	AspectRatio float64 // width / height; 0 keeps the initial ratio

	GridSize float64

	SnapToNeighbors bool
	SnapThreshold   float64
	Neighbors       NeighborIndex
	Lookup          BoundsLookup
	ExcludeID       string

	Container *Bounds
}

func (c Constraints) validate() error {
	values := []float64{c.MinWidth, c.MinHeight, c.MaxWidth, c.MaxHeight, c.AspectRatio, c.GridSize, c.SnapThreshold}
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("%w: values must be finite and non-negative", ErrInvalidConstraints)
		}
	}
	if c.MaxWidth > 0 && c.MaxWidth < c.MinWidth {
		return fmt.Errorf("%w: max width %.3f below min width %.3f", ErrInvalidConstraints, c.MaxWidth, c.MinWidth)
	}
	if c.MaxHeight > 0 && c.MaxHeight < c.MinHeight {
		return fmt.Errorf("%w: max height %.3f below min height %.3f", ErrInvalidConstraints, c.MaxHeight, c.MinHeight)
	}
	if c.SnapToNeighbors && (c.Neighbors == nil || c.Lookup == nil) {
		return fmt.Errorf("%w: neighbor snapping needs an index and a lookup", ErrInvalidConstraints)
	}
	return nil
}

func (c Constraints) minWidth() float64  { return math.Max(c.MinWidth, MinExtent) }
func (c Constraints) minHeight() float64 { return math.Max(c.MinHeight, MinExtent) }

// Result is the outcome of a gesture. Limit is the first constraint that
// changed the raw bounds; Applied lists every one in application order.
type Result struct {
	Bounds    Bounds  `json:"bounds"`
	Limit     Limit   `json:"limit,omitempty"`
	Applied   []Limit `json:"applied,omitempty"`
	SnappedTo string  `json:"snappedTo,omitempty"`
}

func (r *Result) note(limit Limit) {
	for _, l := range r.Applied {
		if l == limit {
			return
		}
	}
	if r.Limit == LimitNone {
		r.Limit = limit
	}
	r.Applied = append(r.Applied, limit)
}

// ComputeResize derives new bounds from a drag on one of the resize handles.
// Constraints apply in a fixed order: size clamp, aspect lock, grid snap and
// finally a single nearest neighbor-edge snap. The edges the handle does not
// move stay anchored.
func ComputeResize(handle Handle, dragStart, dragCurrent Point, initial Bounds, c Constraints) (Result, error) {
	moving, ok := handleEdges[handle]
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownHandle, handle)
	}
	if !initial.Valid() {
		return Result{}, ErrInvalidBounds
	}
	if err := c.validate(); err != nil {
		return Result{}, err
	}

	dx := dragCurrent.X - dragStart.X
	dy := dragCurrent.Y - dragStart.Y

	b := initial
	if moving.left {
		b.Width = initial.Width - dx
	}
	if moving.right {
		b.Width = initial.Width + dx
	}
	if moving.top {
		b.Height = initial.Height - dy
	}
	if moving.bottom {
		b.Height = initial.Height + dy
	}

	var res Result
	b.Width, b.Height = clampSize(b.Width, b.Height, c, &res)
	b = anchor(b, initial, moving)

	if c.LockAspect {
		ratio := c.AspectRatio
		if ratio == 0 {
			ratio = initial.Width / initial.Height
		}
		before := b
		if moving.horizontalOnly() {
			b.Height = b.Width / ratio
		} else {
			b.Width = b.Height * ratio
		}
		b = anchor(b, initial, moving)
		if b != before {
			res.note(LimitAspect)
		}
	}

	if c.GridSize > 0 {
		snapped := Bounds{
			X:      SnapToGrid(b.X, c.GridSize),
			Y:      SnapToGrid(b.Y, c.GridSize),
			Width:  SnapToGrid(b.Width, c.GridSize),
			Height: SnapToGrid(b.Height, c.GridSize),
		}
		if snapped.Width < c.minWidth() {
			snapped.Width = ceilToGrid(c.minWidth(), c.GridSize)
		}
		if snapped.Height < c.minHeight() {
			snapped.Height = ceilToGrid(c.minHeight(), c.GridSize)
		}
		if RoundBounds(snapped) != RoundBounds(b) {
			res.note(LimitGrid)
		}
		b = snapped
	}

	if c.SnapToNeighbors && c.SnapThreshold > 0 {
		if snapped, id, ok := snapEdges(b, moving, false, c); ok {
			b = snapped
			res.SnappedTo = id
			res.note(LimitNeighbor)
		}
	}

	b.Width, b.Height = floorSize(b.Width, b.Height, c)
	res.Bounds = RoundBounds(b)
	return res, nil
}

// ComputeMove translates bounds by delta, then applies grid and neighbor
// snapping to the origin. Size is never changed.
func ComputeMove(initial Bounds, delta Point, c Constraints) (Result, error) {
	if !initial.Valid() {
		return Result{}, ErrInvalidBounds
	}
	if err := c.validate(); err != nil {
		return Result{}, err
	}

	b := initial
	b.X += delta.X
	b.Y += delta.Y

	var res Result
	if c.GridSize > 0 {
		x, y := SnapToGrid(b.X, c.GridSize), SnapToGrid(b.Y, c.GridSize)
		if Round(x) != Round(b.X) || Round(y) != Round(b.Y) {
			res.note(LimitGrid)
		}
		b.X, b.Y = x, y
	}
	if c.SnapToNeighbors && c.SnapThreshold > 0 {
		if snapped, id, ok := snapEdges(b, translateEdges, true, c); ok {
			b = snapped
			res.SnappedTo = id
			res.note(LimitNeighbor)
		}
	}
	res.Bounds = RoundBounds(b)
	return res, nil
}

// ValidateResizeResult lists every reason the bounds may not be committed.
// An empty result means the bounds are acceptable.
func ValidateResizeResult(b Bounds, c Constraints) []string {
	var violations []string
	const eps = 1e-6
	if !b.Valid() {
		violations = append(violations, "bounds must be finite with positive width and height")
	}
	if c.MinWidth > 0 && b.Width < c.MinWidth-eps {
		violations = append(violations, fmt.Sprintf("width %.2f is below the minimum of %.2f", b.Width, c.MinWidth))
	}
	if c.MinHeight > 0 && b.Height < c.MinHeight-eps {
		violations = append(violations, fmt.Sprintf("height %.2f is below the minimum of %.2f", b.Height, c.MinHeight))
	}
	if c.MaxWidth > 0 && b.Width > c.MaxWidth+eps {
		violations = append(violations, fmt.Sprintf("width %.2f exceeds the maximum of %.2f", b.Width, c.MaxWidth))
	}
	if c.MaxHeight > 0 && b.Height > c.MaxHeight+eps {
		violations = append(violations, fmt.Sprintf("height %.2f exceeds the maximum of %.2f", b.Height, c.MaxHeight))
	}
	if c.Container != nil && !c.Container.Contains(b) {
		violations = append(violations, "bounds extend outside the layout area")
	}
	return violations
}

func clampSize(w, h float64, c Constraints, res *Result) (float64, float64) {
	if w < c.minWidth() {
		w = c.minWidth()
		res.note(LimitMinWidth)
	}
	if h < c.minHeight() {
		h = c.minHeight()
		res.note(LimitMinHeight)
	}
	if c.MaxWidth > 0 && w > c.MaxWidth {
		w = c.MaxWidth
		res.note(LimitMaxWidth)
	}
	if c.MaxHeight > 0 && h > c.MaxHeight {
		h = c.MaxHeight
		res.note(LimitMaxHeight)
	}
	return w, h
}

func floorSize(w, h float64, c Constraints) (float64, float64) {
	return math.Max(w, c.minWidth()), math.Max(h, c.minHeight())
}

// anchor keeps the edges opposite to the moving ones fixed at their initial
// positions.
func anchor(b, initial Bounds, moving edges) Bounds {
	if moving.left {
		b.X = initial.Right() - b.Width
	} else {
		b.X = initial.X
	}
	if moving.top {
		b.Y = initial.Bottom() - b.Height
	} else {
		b.Y = initial.Y
	}
	return b
}

type snapCandidate struct {
	id       string
	distance float64
	apply    func(Bounds) Bounds
}

// snapEdges aligns the single closest moving edge with the facing edge of a
// neighbor within the threshold. When translate is true the whole rectangle
// moves; otherwise only the snapped edge moves.
func snapEdges(b Bounds, moving edges, translate bool, c Constraints) (Bounds, string, bool) {
	th := c.SnapThreshold
	ids := c.Neighbors.Query(b.X-th, b.Y-th, b.Width+2*th, b.Height+2*th)

	var best *snapCandidate
	consider := func(id string, distance float64, apply func(Bounds) Bounds) {
		if distance > th {
			return
		}
		if best == nil || distance < best.distance {
			best = &snapCandidate{id: id, distance: distance, apply: apply}
		}
	}

	for _, id := range ids {
		if id == c.ExcludeID {
			continue
		}
		n, ok := c.Lookup(id)
		if !ok {
			continue
		}
		verticalSpan := b.Y < n.Bottom()+th && n.Y < b.Bottom()+th
		horizontalSpan := b.X < n.Right()+th && n.X < b.Right()+th

		if moving.left && verticalSpan {
			target := n.Right()
			consider(id, math.Abs(b.X-target), func(r Bounds) Bounds {
				if !translate {
					r.Width = r.Right() - target
				}
				r.X = target
				return r
			})
		}
		if moving.right && verticalSpan {
			target := n.X
			consider(id, math.Abs(b.Right()-target), func(r Bounds) Bounds {
				if translate {
					r.X = target - r.Width
				} else {
					r.Width = target - r.X
				}
				return r
			})
		}
		if moving.top && horizontalSpan {
			target := n.Bottom()
			consider(id, math.Abs(b.Y-target), func(r Bounds) Bounds {
				if !translate {
					r.Height = r.Bottom() - target
				}
				r.Y = target
				return r
			})
		}
		if moving.bottom && horizontalSpan {
			target := n.Y
			consider(id, math.Abs(b.Bottom()-target), func(r Bounds) Bounds {
				if translate {
					r.Y = target - r.Height
				} else {
					r.Height = target - r.Y
				}
				return r
			})
		}
	}

	if best == nil {
		return b, "", false
	}
	snapped := best.apply(b)
	if snapped.Width < c.minWidth() || snapped.Height < c.minHeight() {
		return b, "", false
	}
	if (c.MaxWidth > 0 && snapped.Width > c.MaxWidth) || (c.MaxHeight > 0 && snapped.Height > c.MaxHeight) {
		return b, "", false
	}
	return snapped, best.id, true
}
