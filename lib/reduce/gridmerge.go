package reduce

import (
	"math"
	"sort"
)

// GridMerge is a simplified VoronoiMerge: instead of adapting clusters to
// the data it lays a regular sub-grid over the cell's position range and
// collapses each occupied sub-cell to its weight-weighted centroid. It is
// cheaper than VoronoiMerge but less accurate for skewed distributions, and
// its output count only approximates the target.
type GridMerge struct{}

func (g *GridMerge) Name() string { return "grid" }

func (g *GridMerge) Reduce(
	cell CellParticles, k float64, rng *RNG,
) (*Result, error) {
	n := cell.Len()
	if n == 0 { return &Result{WeightConserved: true}, nil }

	total := cell.TotalWeight()
	m := targetCount(n, k)
	if m >= n {
		return finish(g.Name(), total, identity(cell))
	}
	if m == 1 {
		res := &Result{}
		appendCentroid(res, cell, cell.Indices)
		return finish(g.Name(), total, res)
	}

	// Sub-grid over the non-degenerate position axes, sized so the number
	// of sub-cells is at least the target count.
	cols := phaseCoords(cell)[:3]
	axes, lo, hi := []int{}, []float64{}, []float64{}
	for a := range cols {
		alo, ahi := colRange(cols[a], cell.Indices)
		if ahi > alo {
			axes = append(axes, a)
			lo, hi = append(lo, alo), append(hi, ahi)
		}
	}
	if len(axes) == 0 {
		// All particles share one position; nothing to spread over.
		res := &Result{}
		appendCentroid(res, cell, cell.Indices)
		return finish(g.Name(), total, res)
	}

	r := int(math.Ceil(math.Pow(float64(m), 1/float64(len(axes)))))
	if r < 1 { r = 1 }

	// Group particles by flat sub-cell index.
	groups := map[int][]int{}
	for _, j := range cell.Indices {
		flat, stride := 0, 1
		for i, a := range axes {
			width := (hi[i] - lo[i]) / float64(r)
			b := int((cols[a][j] - lo[i]) / width)
			if b >= r { b = r - 1 }
			flat += b * stride
			stride *= r
		}
		groups[flat] = append(groups[flat], j)
	}

	flats := make([]int, 0, len(groups))
	for flat := range groups { flats = append(flats, flat) }
	sort.Ints(flats)

	res := &Result{}
	for _, flat := range flats {
		appendCentroid(res, cell, groups[flat])
	}
	return finish(g.Name(), total, res)
}
