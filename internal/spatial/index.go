// Package spatial provides a grid-bucketed index from world-space regions to
// panel ids, used to bound proximity and neighbor-snap searches.
package spatial

import (
	"math"
	"sort"

	"github.com/paulmach/orb"
)

// DefaultCellSize is the bucket edge length in world units.
const DefaultCellSize = 200.0

// MaxCellsPerEntry caps how many buckets one rectangle is spread over.
// Larger rectangles are kept on an oversized list that every query returns.
const MaxCellsPerEntry = 4096

type cell struct {
	col int
	row int
}

// Index is a multimap from grid cells to ids. It is not safe for concurrent
// use; the owning layout session serializes access.
type Index struct {
	cellSize  float64
	cells     map[cell]map[string]struct{}
	oversized map[string]struct{}
}

// New creates an index with the given cell size. Non-positive sizes fall back
// to DefaultCellSize.
func New(cellSize float64) *Index {
	if cellSize <= 0 || math.IsNaN(cellSize) || math.IsInf(cellSize, 0) {
		cellSize = DefaultCellSize
	}
	return &Index{
		cellSize:  cellSize,
		cells:     make(map[cell]map[string]struct{}),
		oversized: make(map[string]struct{}),
	}
}

// CellSize returns the bucket edge length.
func (i *Index) CellSize() float64 {
	return i.cellSize
}

// Insert registers id in every cell touched by the rectangle.
func (i *Index) Insert(id string, x, y, w, h float64) {
	r, ok := i.span(region(x, y, w, h))
	if !ok {
		if r.oversized {
			i.oversized[id] = struct{}{}
		}
		return
	}
	r.each(func(c cell) {
		bucket, ok := i.cells[c]
		if !ok {
			bucket = make(map[string]struct{})
			i.cells[c] = bucket
		}
		bucket[id] = struct{}{}
	})
}

// Remove drops id from every cell touched by the rectangle. The rectangle
// must be the one the id was inserted with.
func (i *Index) Remove(id string, x, y, w, h float64) {
	r, ok := i.span(region(x, y, w, h))
	if !ok {
		if r.oversized {
			delete(i.oversized, id)
		}
		return
	}
	r.each(func(c cell) {
		bucket, ok := i.cells[c]
		if !ok {
			return
		}
		delete(bucket, id)
		if len(bucket) == 0 {
			delete(i.cells, c)
		}
	})
}

// Query returns every id whose cells intersect the rectangle, sorted. The
// result may over-approximate; callers verify true overlap when it matters.
func (i *Index) Query(x, y, w, h float64) []string {
	seen := make(map[string]struct{}, len(i.oversized))
	for id := range i.oversized {
		seen[id] = struct{}{}
	}
	r, ok := i.span(region(x, y, w, h))
	switch {
	case ok:
		r.each(func(c cell) {
			for id := range i.cells[c] {
				seen[id] = struct{}{}
			}
		})
	case r.oversized:
		for _, bucket := range i.cells {
			for id := range bucket {
				seen[id] = struct{}{}
			}
		}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Clear empties the index.
func (i *Index) Clear() {
	i.cells = make(map[cell]map[string]struct{})
	i.oversized = make(map[string]struct{})
}

// CellCount returns the number of non-empty cells.
func (i *Index) CellCount() int {
	return len(i.cells)
}

// OversizedCount returns the number of ids kept outside the grid.
func (i *Index) OversizedCount() int {
	return len(i.oversized)
}

func region(x, y, w, h float64) orb.Bound {
	return orb.MultiPoint{{x, y}, {x + w, y + h}}.Bound()
}

type cellRange struct {
	minCol, maxCol int
	minRow, maxRow int
	oversized      bool
}

// span maps a bound to its cell range. It reports false for non-finite
// bounds and for bounds covering more than MaxCellsPerEntry cells; the
// latter are flagged oversized.
func (i *Index) span(b orb.Bound) (cellRange, bool) {
	if !finite(b.Min) || !finite(b.Max) {
		return cellRange{}, false
	}
	minCol := math.Floor(b.Min.X() / i.cellSize)
	maxCol := math.Floor(b.Max.X() / i.cellSize)
	minRow := math.Floor(b.Min.Y() / i.cellSize)
	maxRow := math.Floor(b.Max.Y() / i.cellSize)
	if (maxCol-minCol+1)*(maxRow-minRow+1) > MaxCellsPerEntry {
		return cellRange{oversized: true}, false
	}
	return cellRange{
		minCol: int(minCol), maxCol: int(maxCol),
		minRow: int(minRow), maxRow: int(maxRow),
	}, true
}

func (r cellRange) each(fn func(cell)) {
	for col := r.minCol; col <= r.maxCol; col++ {
		for row := r.minRow; row <= r.maxRow; row++ {
			fn(cell{col: col, row: row})
		}
	}
}

func finite(p orb.Point) bool {
	for _, v := range p {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
