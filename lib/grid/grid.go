/*package grid splits an ensemble into phase-space cells so that resampling
can conserve weight locally. Bin widths are either chosen adaptively with the
Shimazaki-Shinomoto cost rule or fixed to a requested count per axis. Bins
follow the lower-edge-inclusive, upper-edge-exclusive convention, except the
last bin of each axis, which is closed on both ends.*/
package grid

import (
	"fmt"
	"math"

	"github.com/pmdtools/winnow/lib/ensemble"
)

// Policy selects how bin widths are chosen.
type Policy int

const (
	// AdaptiveWidth minimizes the Shimazaki-Shinomoto cost over a candidate
	// scan of widths, evaluated on the weighted density of each axis.
	AdaptiveWidth Policy = iota
	// FixedCount uses the same requested bin count on every axis.
	FixedCount
)

// spreadTol is the relative spread below which an axis is treated as
// degenerate and collapses to a single bin.
const spreadTol = 1e-12

// maxBinsPerAxis caps the candidate scan so pathological inputs can't
// produce an unbounded number of cells.
const maxBinsPerAxis = 100

// DegenerateError is returned when every partitioned axis collapses to a
// single bin even though the caller explicitly requested more than one cell.
// A degenerate axis on its own is not an error.
type DegenerateError struct {
	Axes []string
}

func (err *DegenerateError) Error() string {
	return fmt.Sprintf("Every partitioned axis %v has near-zero spread, so the requested multi-cell partition cannot be built.",
		err.Axes)
}

// Cell is one bounded region of phase space together with the indices of the
// particles assigned to it. The index slice points back into the partitioned
// ensemble and is not owned by the cell.
type Cell struct {
	// ID is the flat index of the cell in the full grid. Cell IDs are unique
	// and strictly increasing within a Partition.
	ID int
	// Lo and Hi give the bounds of the cell along each partitioned axis.
	Lo, Hi []float64
	// Indices lists the particles assigned to the cell.
	Indices []int
}

// Partition is the result of splitting an ensemble: the bin edges used on
// each axis and the non-empty cells in deterministic (flat-index) order.
type Partition struct {
	Axes  []string
	Edges [][]float64
	Cells []Cell
}

// Partitioner splits ensembles along the configured axes. The zero value is
// not usable; construct one with New.
type Partitioner struct {
	axes   []string
	policy Policy
	bins   int // requested per-axis count under FixedCount

	// scale > 1 shrinks the chosen widths. Used by the pipeline to retry
	// with a finer grid after a tolerance failure.
	scale float64
}

// New creates a Partitioner over the given ensemble columns. Valid axis
// names are the entries of ensemble.FieldNames; typically the three position
// columns, optionally plus one momentum column. bins is only consulted under
// the FixedCount policy.
func New(axes []string, policy Policy, bins int) (*Partitioner, error) {
	if len(axes) == 0 {
		return nil, fmt.Errorf("At least one axis must be partitioned.")
	}
	seen := map[string]bool{}
	for _, name := range axes {
		ok := false
		for _, known := range ensemble.FieldNames {
			if name == known { ok = true; break }
		}
		if !ok {
			return nil, fmt.Errorf("'%s' is not a recognized column name.", name)
		}
		if seen[name] {
			return nil, fmt.Errorf("The axis '%s' is listed more than once.", name)
		}
		seen[name] = true
	}
	if policy == FixedCount && bins < 1 {
		return nil, fmt.Errorf("%d bins per axis were requested, but the count must be at least 1.", bins)
	}

	return &Partitioner{axes: axes, policy: policy, bins: bins, scale: 1}, nil
}

// Refine returns a Partitioner identical to p but with roughly twice the
// resolution on every axis.
func (p *Partitioner) Refine() *Partitioner {
	next := *p
	next.scale = p.scale * 2
	return &next
}

// Partition assigns every particle of e to exactly one cell. Repeated calls
// with the same inputs produce the same assignment.
func (p *Partitioner) Partition(e *ensemble.Ensemble) (*Partition, error) {
	cols := make([][]float64, len(p.axes))
	edges := make([][]float64, len(p.axes))
	counts := make([]int, len(p.axes))

	allDegenerate := true
	for i, name := range p.axes {
		col, err := e.Field(name)
		if err != nil { return nil, err }
		cols[i] = col

		edges[i] = p.axisEdges(col, e.Weights())
		counts[i] = len(edges[i]) - 1
		if counts[i] > 1 { allDegenerate = false }
	}

	if allDegenerate && p.policy == FixedCount && p.bins > 1 {
		return nil, &DegenerateError{Axes: p.axes}
	}

	// Flat cell index: i0 + i1*n0 + i2*n0*n1 + ...
	nCells := 1
	for _, n := range counts { nCells *= n }

	members := map[int][]int{}
	for j := 0; j < e.Len(); j++ {
		flat, stride := 0, 1
		for i := range cols {
			flat += binOf(cols[i][j], edges[i]) * stride
			stride *= counts[i]
		}
		members[flat] = append(members[flat], j)
	}

	cells := make([]Cell, 0, len(members))
	for flat := 0; flat < nCells; flat++ {
		idx, ok := members[flat]
		if !ok { continue }

		lo, hi := make([]float64, len(p.axes)), make([]float64, len(p.axes))
		rem := flat
		for i := range p.axes {
			b := rem % counts[i]
			rem /= counts[i]
			lo[i], hi[i] = edges[i][b], edges[i][b+1]
		}
		cells = append(cells, Cell{ID: flat, Lo: lo, Hi: hi, Indices: idx})
	}

	return &Partition{Axes: p.axes, Edges: edges, Cells: cells}, nil
}

// axisEdges chooses the bin edges for one axis.
func (p *Partitioner) axisEdges(x, w []float64) []float64 {
	lo, hi := minMax(x)
	span := hi - lo
	if span <= spreadTol*math.Max(math.Abs(lo), math.Abs(hi)) || span == 0 {
		// Degenerate axis: a single bin covering the (empty) range.
		return []float64{lo, hi}
	}

	var n int
	switch p.policy {
	case FixedCount:
		n = p.bins
	default:
		n = optimalBinCount(x, w, lo, hi)
	}
	n = int(math.Round(float64(n) * p.scale))
	if n < 1 { n = 1 }
	if n > maxBinsPerAxis { n = maxBinsPerAxis }

	edges := make([]float64, n+1)
	for i := range edges {
		edges[i] = lo + span*float64(i)/float64(n)
	}
	edges[n] = hi
	return edges
}

// binOf returns the bin a value falls into. Values on the upper edge of the
// last bin belong to it.
func binOf(v float64, edges []float64) int {
	n := len(edges) - 1
	if n <= 1 { return 0 }
	width := (edges[n] - edges[0]) / float64(n)
	b := int((v - edges[0]) / width)
	if b >= n { b = n - 1 }
	if b < 0 { b = 0 }
	return b
}

// optimalBinCount scans candidate bin counts and picks the one minimizing
// the Shimazaki-Shinomoto cost C(d) = (2*mean - var) / d^2, where mean and
// var are the mean and biased variance of the weighted histogram counts and
// d is the bin width. The scan is a pure function of its inputs.
func optimalBinCount(x, w []float64, lo, hi float64) int {
	span := hi - lo

	best, bestCost := 1, math.Inf(1)
	counts := make([]float64, maxBinsPerAxis)
	for n := 2; n <= maxBinsPerAxis; n++ {
		k := counts[:n]
		for i := range k { k[i] = 0 }

		width := span / float64(n)
		for i := range x {
			b := int((x[i] - lo) / width)
			if b >= n { b = n - 1 }
			k[b] += w[i]
		}

		mean := 0.0
		for i := range k { mean += k[i] }
		mean /= float64(n)
		variance := 0.0
		for i := range k {
			d := k[i] - mean
			variance += d * d
		}
		variance /= float64(n)

		cost := (2*mean - variance) / (width * width)
		if cost < bestCost {
			best, bestCost = n, cost
		}
	}

	return best
}

func minMax(x []float64) (lo, hi float64) {
	if len(x) == 0 { return 0, 0 }
	lo, hi = x[0], x[0]
	for _, v := range x {
		if v < lo { lo = v }
		if v > hi { hi = v }
	}
	return lo, hi
}
