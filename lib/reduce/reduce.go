/*package reduce contains the interchangeable strategies that shrink the
particle population of a single phase-space cell. Every strategy obeys the
same contract: given a cell's particles and a reduction factor k >= 1, it
produces roughly ceil(n/k) output particles whose summed weight equals the
cell's input weight exactly. Violating that postcondition is a programming
defect, not a recoverable condition.*/
package reduce

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/pmdtools/winnow/lib/ensemble"
)

// internalTol is the relative weight drift past which a strategy's own
// output is considered corrupt. It only needs to absorb floating-point
// summation error, never algorithmic loss.
const internalTol = 1e-9

// InternalError reports that a strategy violated its weight-conservation
// postcondition. It is always fatal and is never silently corrected.
type InternalError struct {
	Strategy string
	Want, Got float64
}

func (err *InternalError) Error() string {
	return fmt.Sprintf("The '%s' strategy produced a cell weight of %g instead of %g. This is a bug in the strategy, not a data problem.",
		err.Strategy, err.Got, err.Want)
}

// CellParticles is a read-only view of the particles assigned to one cell.
// The strategy reads only this subset and writes only to its own Result.
type CellParticles struct {
	Src     *ensemble.Ensemble
	Indices []int
}

// Len returns the number of particles in the cell.
func (c CellParticles) Len() int { return len(c.Indices) }

// TotalWeight returns the summed weight of the cell's particles.
func (c CellParticles) TotalWeight() float64 {
	w := c.Src.Weights()
	total := 0.0
	for _, i := range c.Indices { total += w[i] }
	return total
}

// Result is the output of reducing one cell: freshly built column arrays
// plus the bookkeeping the validator needs.
type Result struct {
	X, Y, Z    []float64
	Px, Py, Pz []float64
	W          []float64

	// WeightConserved reports whether the output total matched the input
	// total within internalTol.
	WeightConserved bool
	// ResidualWeightError is the achieved relative weight error, recorded
	// even when it is within tolerance.
	ResidualWeightError float64
}

// Len returns the number of output particles.
func (r *Result) Len() int { return len(r.W) }

// Strategy reduces the particle count of a single cell. Implementations must
// be deterministic for a fixed RNG state and must not retain or mutate the
// cell's source ensemble.
type Strategy interface {
	// Name returns the configuration name of the strategy.
	Name() string
	// Reduce produces the cell's output particles for a reduction factor
	// k >= 1. rng is the cell's private generator; strategies that don't
	// need randomness ignore it.
	Reduce(cell CellParticles, k float64, rng *RNG) (*Result, error)
}

// Type assertions
var (
	_ Strategy = &Thinning{}
	_ Strategy = &VoronoiMerge{}
	_ Strategy = &GridMerge{}
)

// FromName maps a configuration string to a strategy.
func FromName(name string) (Strategy, error) {
	switch name {
	case "thinning": return &Thinning{}, nil
	case "voronoi": return &VoronoiMerge{}, nil
	case "grid": return &GridMerge{}, nil
	}
	return nil, fmt.Errorf("'%s' is not a valid strategy. Only 'thinning', 'voronoi', and 'grid' are valid.", name)
}

// targetCount returns the output size for a cell of n particles at reduction
// factor k: ceil(n/k), with a floor of one particle for non-empty cells.
func targetCount(n int, k float64) int {
	if n == 0 { return 0 }
	m := int(math.Ceil(float64(n) / k))
	if m < 1 { m = 1 }
	if m > n { m = n }
	return m
}

// finish computes the conservation bookkeeping for a freshly built Result
// and converts postcondition violations into an *InternalError.
func finish(name string, want float64, res *Result) (*Result, error) {
	got := floats.Sum(res.W)
	relErr := 0.0
	if want != 0 {
		relErr = math.Abs(got-want) / want
	}
	res.ResidualWeightError = relErr
	res.WeightConserved = relErr <= internalTol
	if !res.WeightConserved {
		return nil, &InternalError{Strategy: name, Want: want, Got: got}
	}
	return res, nil
}

// identity copies the cell through unchanged. Used by every strategy when
// the target count is not below the current count.
func identity(cell CellParticles) *Result {
	n := cell.Len()
	res := &Result{
		X: make([]float64, n), Y: make([]float64, n), Z: make([]float64, n),
		Px: make([]float64, n), Py: make([]float64, n), Pz: make([]float64, n),
		W: make([]float64, n),
	}
	copyRows(res, cell, cell.Indices)
	return res
}

// copyRows transfers the given source rows into res in order.
func copyRows(res *Result, cell CellParticles, rows []int) {
	x, _ := cell.Src.Field("position_x_um")
	y, _ := cell.Src.Field("position_y_um")
	z, _ := cell.Src.Field("position_z_um")
	px, _ := cell.Src.Field("momentum_x_mev_c")
	py, _ := cell.Src.Field("momentum_y_mev_c")
	pz, _ := cell.Src.Field("momentum_z_mev_c")
	w := cell.Src.Weights()

	for i, j := range rows {
		res.X[i], res.Y[i], res.Z[i] = x[j], y[j], z[j]
		res.Px[i], res.Py[i], res.Pz[i] = px[j], py[j], pz[j]
		res.W[i] = w[j]
	}
}

// centroid collapses the given source rows into a single particle at their
// weight-weighted centroid, carrying their summed weight. This preserves the
// zeroth and first weighted moments of the group exactly.
func centroid(cell CellParticles, rows []int) (x, y, z, px, py, pz, w float64) {
	sx, _ := cell.Src.Field("position_x_um")
	sy, _ := cell.Src.Field("position_y_um")
	sz, _ := cell.Src.Field("position_z_um")
	spx, _ := cell.Src.Field("momentum_x_mev_c")
	spy, _ := cell.Src.Field("momentum_y_mev_c")
	spz, _ := cell.Src.Field("momentum_z_mev_c")
	sw := cell.Src.Weights()

	for _, j := range rows {
		wj := sw[j]
		x += wj * sx[j]
		y += wj * sy[j]
		z += wj * sz[j]
		px += wj * spx[j]
		py += wj * spy[j]
		pz += wj * spz[j]
		w += wj
	}
	x, y, z = x/w, y/w, z/w
	px, py, pz = px/w, py/w, pz/w
	return x, y, z, px, py, pz, w
}

// appendCentroid appends the centroid of the given rows to res.
func appendCentroid(res *Result, cell CellParticles, rows []int) {
	x, y, z, px, py, pz, w := centroid(cell, rows)
	res.X = append(res.X, x)
	res.Y = append(res.Y, y)
	res.Z = append(res.Z, z)
	res.Px = append(res.Px, px)
	res.Py = append(res.Py, py)
	res.Pz = append(res.Pz, pz)
	res.W = append(res.W, w)
}
