package geometry

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtaplin21/DellSystemManager-sub008/internal/spatial"
)

func TestComputeResizeBottomRightGrid(t *testing.T) {
	initial := Bounds{X: 0, Y: 0, Width: 100, Height: 100}
	res, err := ComputeResize(HandleBottomRight, Point{X: 100, Y: 100}, Point{X: 137, Y: 112}, initial, Constraints{GridSize: 10})
	require.NoError(t, err)
	assert.Equal(t, Bounds{X: 0, Y: 0, Width: 140, Height: 110}, res.Bounds)
	assert.Equal(t, LimitGrid, res.Limit)
}

func TestComputeResizeAnchorsOppositeEdges(t *testing.T) {
	initial := Bounds{X: 10, Y: 20, Width: 100, Height: 80}
	res, err := ComputeResize(HandleTopLeft, Point{}, Point{X: 30, Y: -10}, initial, Constraints{})
	require.NoError(t, err)
	assert.Equal(t, Bounds{X: 40, Y: 10, Width: 70, Height: 90}, res.Bounds)
	assert.Equal(t, initial.Right(), res.Bounds.Right())
	assert.Equal(t, initial.Bottom(), res.Bounds.Bottom())
	assert.Equal(t, LimitNone, res.Limit)

	res, err = ComputeResize(HandleTop, Point{}, Point{X: 500, Y: 30}, initial, Constraints{})
	require.NoError(t, err)
	assert.Equal(t, Bounds{X: 10, Y: 50, Width: 100, Height: 50}, res.Bounds)
}

func TestComputeResizeMinFloor(t *testing.T) {
	initial := Bounds{X: 0, Y: 0, Width: 100, Height: 100}
	handles := []Handle{HandleTopLeft, HandleTop, HandleTopRight, HandleRight, HandleBottomRight, HandleBottom, HandleBottomLeft, HandleLeft}
	deltas := []Point{{X: 500, Y: 500}, {X: -500, Y: -500}, {X: 99.9, Y: -99.9}, {X: -3, Y: 7}}
	grids := []float64{0, 7, 15}

	for _, h := range handles {
		for _, d := range deltas {
			for _, g := range grids {
				c := Constraints{MinWidth: 20, MinHeight: 30, GridSize: g}
				res, err := ComputeResize(h, Point{}, d, initial, c)
				require.NoError(t, err)
				assert.GreaterOrEqual(t, res.Bounds.Width, c.MinWidth, "handle %s delta %v grid %v", h, d, g)
				assert.GreaterOrEqual(t, res.Bounds.Height, c.MinHeight, "handle %s delta %v grid %v", h, d, g)
			}
		}
	}
}

func TestComputeResizeClampReportsLimit(t *testing.T) {
	initial := Bounds{X: 0, Y: 0, Width: 100, Height: 100}
	res, err := ComputeResize(HandleRight, Point{}, Point{X: 400}, initial, Constraints{MaxWidth: 250})
	require.NoError(t, err)
	assert.Equal(t, 250.0, res.Bounds.Width)
	assert.Equal(t, LimitMaxWidth, res.Limit)

	res, err = ComputeResize(HandleLeft, Point{}, Point{X: 95}, initial, Constraints{MinWidth: 10, GridSize: 4})
	require.NoError(t, err)
	assert.Equal(t, LimitMinWidth, res.Limit)
	assert.Contains(t, res.Applied, LimitGrid)
	assert.GreaterOrEqual(t, res.Bounds.Width, 10.0)
}

func TestComputeResizeAspectLock(t *testing.T) {
	initial := Bounds{X: 0, Y: 0, Width: 100, Height: 50}

	res, err := ComputeResize(HandleBottomRight, Point{}, Point{X: 10, Y: 50}, initial, Constraints{LockAspect: true})
	require.NoError(t, err)
	assert.Equal(t, Bounds{X: 0, Y: 0, Width: 200, Height: 100}, res.Bounds)
	assert.Equal(t, LimitAspect, res.Limit)

	res, err = ComputeResize(HandleRight, Point{}, Point{X: 100}, initial, Constraints{LockAspect: true, AspectRatio: 2})
	require.NoError(t, err)
	assert.Equal(t, Bounds{X: 0, Y: 0, Width: 200, Height: 100}, res.Bounds)
}

func TestComputeResizeNeighborSnap(t *testing.T) {
	idx := spatial.New(200)
	neighbors := map[string]Bounds{
		"east": {X: 105, Y: 0, Width: 50, Height: 100},
		"west": {X: -60, Y: 0, Width: 50, Height: 100},
		"far":  {X: 400, Y: 400, Width: 50, Height: 50},
	}
	for id, b := range neighbors {
		idx.Insert(id, b.X, b.Y, b.Width, b.Height)
	}
	lookup := func(id string) (Bounds, bool) {
		b, ok := neighbors[id]
		return b, ok
	}
	c := Constraints{SnapToNeighbors: true, SnapThreshold: 5, Neighbors: idx, Lookup: lookup}
	initial := Bounds{X: 0, Y: 0, Width: 100, Height: 100}

	res, err := ComputeResize(HandleRight, Point{}, Point{X: 2}, initial, c)
	require.NoError(t, err)
	assert.Equal(t, 105.0, res.Bounds.Width)
	assert.Equal(t, "east", res.SnappedTo)
	assert.Equal(t, LimitNeighbor, res.Limit)

	res, err = ComputeResize(HandleLeft, Point{}, Point{X: -8}, initial, c)
	require.NoError(t, err)
	assert.Equal(t, Bounds{X: -10, Y: 0, Width: 110, Height: 100}, res.Bounds)
	assert.Equal(t, "west", res.SnappedTo)

	// a snap that would exceed the max size is skipped
	c.MaxWidth = 103
	res, err = ComputeResize(HandleRight, Point{}, Point{X: 2}, initial, c)
	require.NoError(t, err)
	assert.Equal(t, 102.0, res.Bounds.Width)
	assert.Empty(t, res.SnappedTo)
}

func TestComputeResizeRejectsMalformedInput(t *testing.T) {
	initial := Bounds{X: 0, Y: 0, Width: 10, Height: 10}

	_, err := ComputeResize("middle", Point{}, Point{}, initial, Constraints{})
	assert.True(t, errors.Is(err, ErrUnknownHandle))

	_, err = ComputeResize(HandleRight, Point{}, Point{}, initial, Constraints{MinWidth: 50, MaxWidth: 10})
	assert.True(t, errors.Is(err, ErrInvalidConstraints))

	_, err = ComputeResize(HandleRight, Point{}, Point{}, initial, Constraints{GridSize: math.NaN()})
	assert.True(t, errors.Is(err, ErrInvalidConstraints))

	_, err = ComputeResize(HandleRight, Point{}, Point{}, initial, Constraints{SnapToNeighbors: true})
	assert.True(t, errors.Is(err, ErrInvalidConstraints))

	_, err = ComputeResize(HandleRight, Point{}, Point{}, Bounds{Width: 0, Height: 10}, Constraints{})
	assert.True(t, errors.Is(err, ErrInvalidBounds))
}

func TestComputeMove(t *testing.T) {
	initial := Bounds{X: 0, Y: 0, Width: 50, Height: 50}
	res, err := ComputeMove(initial, Point{X: 23, Y: 7}, Constraints{GridSize: 10})
	require.NoError(t, err)
	assert.Equal(t, Bounds{X: 20, Y: 10, Width: 50, Height: 50}, res.Bounds)

	idx := spatial.New(200)
	idx.Insert("self", 0, 0, 50, 50)
	idx.Insert("wall", 100, 0, 50, 50)
	lookup := func(id string) (Bounds, bool) {
		switch id {
		case "self":
			return initial, true
		case "wall":
			return Bounds{X: 100, Y: 0, Width: 50, Height: 50}, true
		}
		return Bounds{}, false
	}
	res, err = ComputeMove(initial, Point{X: 47}, Constraints{
		SnapToNeighbors: true, SnapThreshold: 5, Neighbors: idx, Lookup: lookup, ExcludeID: "self",
	})
	require.NoError(t, err)
	assert.Equal(t, Bounds{X: 50, Y: 0, Width: 50, Height: 50}, res.Bounds)
	assert.Equal(t, "wall", res.SnappedTo)
}

func TestSnapToGridIdempotent(t *testing.T) {
	values := []float64{0, 1, -1, 4.99, 5, 5.01, 137, 112.4999, -37.5, 1e6 + 0.3, 0.1 + 0.2}
	grids := []float64{0.1, 0.25, 1, 3, 10, 12.5}
	for _, g := range grids {
		for _, v := range values {
			once := SnapToGrid(v, g)
			assert.Equal(t, once, SnapToGrid(once, g), "v=%v g=%v", v, g)
		}
	}
	assert.Equal(t, 3.3, SnapToGrid(3.3, 0))
}

func TestValidateResizeResult(t *testing.T) {
	container := Bounds{X: 0, Y: 0, Width: 500, Height: 500}
	c := Constraints{MinWidth: 10, MinHeight: 10, MaxWidth: 200, MaxHeight: 200, Container: &container}

	assert.Empty(t, ValidateResizeResult(Bounds{X: 0, Y: 0, Width: 100, Height: 100}, c))
	assert.Empty(t, ValidateResizeResult(Bounds{X: 300, Y: 300, Width: 200, Height: 200}, c))

	violations := ValidateResizeResult(Bounds{X: 498, Y: 0, Width: 5, Height: 300}, c)
	require.Len(t, violations, 3)
	assert.Contains(t, violations[0], "width")
	assert.Contains(t, violations[1], "height")
	assert.Contains(t, violations[2], "outside")

	assert.NotEmpty(t, ValidateResizeResult(Bounds{Width: -1, Height: 10}, Constraints{}))
}

func TestUnitConversion(t *testing.T) {
	assert.Equal(t, 50.0, FeetToPixels(12.5, 4))
	assert.Equal(t, 12.5, PixelsToFeet(50, 4))

	b := Bounds{X: 0.1, Y: 12.3, Width: 40.7, Height: 0.3}
	for _, scale := range []float64{1, 3, 7, 0.5} {
		assert.Equal(t, b, BoundsToFeet(BoundsToPixels(b, scale), scale), "scale %v", scale)
	}
}

func TestNormalizeRotation(t *testing.T) {
	assert.Equal(t, 270.0, NormalizeRotation(-90))
	assert.Equal(t, 0.0, NormalizeRotation(720))
	assert.Equal(t, 0.5, NormalizeRotation(360.5))
	assert.Equal(t, 0.0, NormalizeRotation(math.Inf(1)))
}

func TestOverlapsAndContains(t *testing.T) {
	a := Bounds{X: 0, Y: 0, Width: 10, Height: 10}
	assert.True(t, a.Overlaps(Bounds{X: 5, Y: 5, Width: 10, Height: 10}))
	assert.False(t, a.Overlaps(Bounds{X: 10, Y: 0, Width: 10, Height: 10}))
	assert.True(t, a.Contains(Bounds{X: 0, Y: 0, Width: 10, Height: 10}))
	assert.False(t, a.Contains(Bounds{X: 1, Y: 1, Width: 10, Height: 1}))
}

func TestPlaceWithoutOverlap(t *testing.T) {
	occupied := []Bounds{{X: 0, Y: 0, Width: 100, Height: 100}}
	got, ok := PlaceWithoutOverlap(Bounds{X: 50, Y: 0, Width: 100, Height: 100}, occupied, Placement{})
	require.True(t, ok)
	assert.Equal(t, Bounds{X: 100, Y: 0, Width: 100, Height: 100}, got)

	container := Bounds{X: 0, Y: 0, Width: 250, Height: 500}
	occupied = append(occupied, Bounds{X: 100, Y: 0, Width: 100, Height: 100})
	got, ok = PlaceWithoutOverlap(Bounds{X: 0, Y: 0, Width: 100, Height: 100}, occupied, Placement{Container: &container})
	require.True(t, ok)
	assert.Equal(t, Bounds{X: 0, Y: 100, Width: 100, Height: 100}, got)

	tiny := Bounds{X: 0, Y: 0, Width: 150, Height: 100}
	_, ok = PlaceWithoutOverlap(Bounds{X: 0, Y: 0, Width: 100, Height: 100}, occupied, Placement{Container: &tiny})
	assert.False(t, ok)
}
