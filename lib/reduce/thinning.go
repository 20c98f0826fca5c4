package reduce

import (
	"sort"
)

// Thinning reduces a cell by uniformly selecting a subset of its particles
// without replacement and rescaling the survivors' weights so the cell's
// total weight is unchanged. It is the only strategy that consumes random
// numbers, so it is the only one whose output depends on the run seed.
type Thinning struct{}

func (t *Thinning) Name() string { return "thinning" }

func (t *Thinning) Reduce(
	cell CellParticles, k float64, rng *RNG,
) (*Result, error) {
	n := cell.Len()
	if n == 0 { return &Result{WeightConserved: true}, nil }

	total := cell.TotalWeight()
	m := targetCount(n, k)
	if m >= n {
		// Identity reduction: every particle survives with scale 1.
		return finish(t.Name(), total, identity(cell))
	}
	if m == 1 {
		// A cell reduced to a single particle keeps its centroid rather
		// than a randomly chosen survivor.
		res := &Result{}
		appendCentroid(res, cell, cell.Indices)
		return finish(t.Name(), total, res)
	}

	rows := sample(rng, cell.Indices, m)

	// Rescale the survivors so their summed weight matches the input total.
	// For uniform input weights this is the familiar n/m factor.
	w := cell.Src.Weights()
	kept := 0.0
	for _, j := range rows { kept += w[j] }
	scale := total / kept

	res := &Result{
		X: make([]float64, m), Y: make([]float64, m), Z: make([]float64, m),
		Px: make([]float64, m), Py: make([]float64, m), Pz: make([]float64, m),
		W: make([]float64, m),
	}
	copyRows(res, cell, rows)
	for i := range res.W { res.W[i] *= scale }

	return finish(t.Name(), total, res)
}

// sample draws m distinct entries of rows uniformly without replacement
// using a partial Fisher-Yates shuffle. The selection is returned in the
// original row order so output ordering is stable.
func sample(rng *RNG, rows []int, m int) []int {
	perm := make([]int, len(rows))
	copy(perm, rows)
	for i := 0; i < m; i++ {
		j := i + rng.Intn(len(perm)-i)
		perm[i], perm[j] = perm[j], perm[i]
	}
	out := perm[:m]
	sort.Ints(out)
	return out
}
