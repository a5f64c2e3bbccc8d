package store

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtaplin21/DellSystemManager-sub008/internal/geometry"
)

func TestPanelBoundsByShape(t *testing.T) {
	rect := Panel{Shape: ShapeRectangle, X: 10, Y: 20, Width: 30, Height: 40}
	assert.Equal(t, geometry.Bounds{X: 10, Y: 20, Width: 30, Height: 40}, rect.Bounds())

	circle := Panel{Shape: ShapeCircle, X: 50, Y: 50, Radius: 5}
	assert.Equal(t, geometry.Bounds{X: 45, Y: 45, Width: 10, Height: 10}, circle.Bounds())

	circle.SetBounds(geometry.Bounds{X: 0, Y: 0, Width: 20, Height: 20})
	assert.Equal(t, 10.0, circle.Radius)
	assert.Equal(t, 10.0, circle.X)
	assert.Equal(t, 10.0, circle.Y)
}

func TestPanelValidate(t *testing.T) {
	label := "21"
	valid := Panel{ID: "u1", Shape: ShapeRectangle, Width: 1, Height: 1}
	require.NoError(t, valid.Validate())

	cases := map[string]Panel{
		"zero width":     {ID: "u1", Shape: ShapeRectangle, Width: 0, Height: 1},
		"circle radius":  {ID: "u1", Shape: ShapeCircle},
		"legacy patch":   {ID: "u1", Shape: ShapeLegacyPatch, Width: 1, Height: 1},
		"rotation range": {ID: "u1", Shape: ShapeRectangle, Width: 1, Height: 1, Rotation: 360},
		"no identity":    {Shape: ShapeRectangle, Width: 1, Height: 1},
	}
	for name, p := range cases {
		err := p.Validate()
		assert.True(t, errors.Is(err, ErrInvalidPanel), name)
	}

	labelled := Panel{Shape: ShapeRightTriangle, Width: 2, Height: 3, RollNumber: &label}
	assert.NoError(t, labelled.Validate())
}

func TestPanelNormalize(t *testing.T) {
	p := Panel{Rotation: -45}
	p.Normalize()
	assert.Equal(t, ShapeRectangle, p.Shape)
	assert.Equal(t, 315.0, p.Rotation)
}

func TestMigrateLegacyPatches(t *testing.T) {
	number := "PT-4"
	panels := []Panel{
		{ID: "u1", Shape: ShapeRectangle, Width: 10, Height: 10},
		{ID: "p1", Shape: ShapeLegacyPatch, X: 100, Y: 100, Width: 6, Height: 8, PanelNumber: &number},
		{ID: "p2", Shape: ShapeLegacyPatch, X: 5, Y: 5, Radius: 2, Rotation: 370},
	}

	kept, patches := MigrateLegacyPatches(panels)
	require.Len(t, kept, 1)
	assert.Equal(t, "u1", kept[0].ID)
	require.Len(t, patches, 2)

	assert.Equal(t, Patch{ID: "p1", X: 103, Y: 104, Radius: 3, PatchNumber: "PT-4"}, patches[0])
	assert.Equal(t, 2.0, patches[1].Radius)
	assert.Equal(t, 10.0, patches[1].Rotation)
}
