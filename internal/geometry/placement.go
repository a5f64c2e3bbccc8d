package geometry

import "math"

const defaultPlacementAttempts = 1000

// Placement tunes PlaceWithoutOverlap. A nil Container leaves the plane
// unbounded.
type Placement struct {
	Container   *Bounds
	Gap         float64
	MaxAttempts int
}

// PlaceWithoutOverlap finds the first position at or after b (scanning right,
// then down in rows of b's height) where b overlaps none of occupied. It
// returns b unchanged and false when no slot is found.
func PlaceWithoutOverlap(b Bounds, occupied []Bounds, opts Placement) (Bounds, bool) {
	if !b.Valid() {
		return b, false
	}
	attempts := opts.MaxAttempts
	if attempts <= 0 {
		attempts = defaultPlacementAttempts
	}
	gap := math.Max(opts.Gap, 0)

	pos := b
	row := 0
	for i := 0; i < attempts; i++ {
		if opts.Container != nil && pos.Bottom() > opts.Container.Bottom() {
			return b, false
		}
		if opts.Container != nil && pos.Right() > opts.Container.Right() {
			row++
			pos.X = b.X
			pos.Y = b.Y + float64(row)*(b.Height+gap)
			continue
		}

		blocked := false
		shift := pos.X
		for _, o := range occupied {
			inflated := Bounds{X: o.X - gap, Y: o.Y - gap, Width: o.Width + 2*gap, Height: o.Height + 2*gap}
			if pos.Overlaps(inflated) {
				blocked = true
				shift = math.Max(shift, o.Right()+gap)
			}
		}
		if !blocked {
			if opts.Container != nil && !opts.Container.Contains(pos) {
				return b, false
			}
			return RoundBounds(pos), true
		}
		pos.X = shift
	}
	return b, false
}
