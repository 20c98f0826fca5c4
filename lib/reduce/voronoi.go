package reduce

import (
	"sort"
)

// VoronoiMerge reduces a cell by recursively median-splitting its particles
// into the target number of sub-clusters over all six phase-space
// coordinates, then collapsing each sub-cluster to its weight-weighted
// centroid. The zeroth and first weighted moments of every sub-cluster are
// preserved exactly; higher moments are only approximate, which the
// validator reports.
type VoronoiMerge struct{}

func (v *VoronoiMerge) Name() string { return "voronoi" }

func (v *VoronoiMerge) Reduce(
	cell CellParticles, k float64, rng *RNG,
) (*Result, error) {
	n := cell.Len()
	if n == 0 { return &Result{WeightConserved: true}, nil }

	total := cell.TotalWeight()
	m := targetCount(n, k)
	if m >= n {
		return finish(v.Name(), total, identity(cell))
	}

	cols := phaseCoords(cell)
	clusters := splitClusters(cols, cell.Indices, m)

	res := &Result{}
	for _, rows := range clusters {
		appendCentroid(res, cell, rows)
	}
	return finish(v.Name(), total, res)
}

// phaseCoords gathers the six coordinate columns of the cell's source
// ensemble in a fixed order.
func phaseCoords(cell CellParticles) [][]float64 {
	cols := make([][]float64, 0, 6)
	for _, name := range []string{
		"position_x_um", "position_y_um", "position_z_um",
		"momentum_x_mev_c", "momentum_y_mev_c", "momentum_z_mev_c",
	} {
		col, _ := cell.Src.Field(name)
		cols = append(cols, col)
	}
	return cols
}

// splitClusters partitions rows into exactly m non-empty clusters by
// repeated median splits. At each step the widest remaining cluster is cut
// in half along its widest axis, with axis widths measured relative to the
// cell's own span so positions and momenta compete on equal footing. The
// procedure is deterministic.
func splitClusters(cols [][]float64, rows []int, m int) [][]int {
	// Cell-wide spans normalize the per-axis spreads.
	spans := make([]float64, len(cols))
	for a := range cols {
		lo, hi := colRange(cols[a], rows)
		spans[a] = hi - lo
	}

	clusters := make([][]int, 1, m)
	clusters[0] = rows
	for len(clusters) < m {
		best, bestAxis, bestSpread := -1, 0, -1.0
		for i, c := range clusters {
			if len(c) < 2 { continue }
			for a := range cols {
				if spans[a] == 0 { continue }
				lo, hi := colRange(cols[a], c)
				spread := (hi - lo) / spans[a]
				if spread > bestSpread {
					best, bestAxis, bestSpread = i, a, spread
				}
			}
			if bestSpread < 0 && best == -1 {
				// Every axis is degenerate for this cluster; it can still
				// be cut by count to honor the target.
				best, bestAxis, bestSpread = i, 0, 0
			}
		}
		if best == -1 { break } // only singletons left; m <= n rules this out

		c := clusters[best]
		sorted := make([]int, len(c))
		copy(sorted, c)
		axis := cols[bestAxis]
		sort.SliceStable(sorted, func(i, j int) bool {
			return axis[sorted[i]] < axis[sorted[j]]
		})
		half := len(sorted) / 2

		clusters[best] = sorted[:half]
		clusters = append(clusters, nil)
		copy(clusters[best+2:], clusters[best+1:])
		clusters[best+1] = sorted[half:]
	}

	return clusters
}

// colRange returns the min and max of a column over the given rows.
func colRange(col []float64, rows []int) (lo, hi float64) {
	lo, hi = col[rows[0]], col[rows[0]]
	for _, j := range rows {
		if col[j] < lo { lo = col[j] }
		if col[j] > hi { hi = col[j] }
	}
	return lo, hi
}
