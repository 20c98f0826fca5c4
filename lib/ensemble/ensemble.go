/*package ensemble contains the in-memory table of macroparticles that the
resampling engine operates on. Each row is one macroparticle: a position in
micrometers, a momentum in MeV/c, and a statistical weight giving the number
of real particles the row represents. An Ensemble is never mutated after
construction; every resampling operation builds a new one.*/
package ensemble

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/pmdtools/winnow/lib/units"
)

// Canonical column names, in the order they appear in particle tables.
var FieldNames = []string{
	"position_x_um", "position_y_um", "position_z_um",
	"momentum_x_mev_c", "momentum_y_mev_c", "momentum_z_mev_c",
}

// InvalidEnsembleError is returned when an input table is malformed or
// physically invalid: mismatched column lengths, a non-positive weight, or a
// non-positive mass. It is always fatal and is raised before any
// partitioning happens.
type InvalidEnsembleError struct {
	Reason string
}

func (err *InvalidEnsembleError) Error() string {
	return fmt.Sprintf("Invalid ensemble: %s", err.Reason)
}

// Ensemble is an ordered collection of macroparticles sharing one species
// identity and one rest mass. The mass is given relative to the electron
// mass, so Mass = 1 for electrons.
type Ensemble struct {
	Species string
	Mass    float64

	x, y, z    []float64
	px, py, pz []float64
	w          []float64
}

// New validates the given column arrays and wraps them in an Ensemble. The
// arrays are owned by the returned Ensemble and must not be modified by the
// caller afterwards. New returns an *InvalidEnsembleError if any column has
// a different length than the others, if any weight is <= 0, or if
// mass <= 0.
func New(
	species string, mass float64, x, y, z, px, py, pz, w []float64,
) (*Ensemble, error) {
	if mass <= 0 {
		return nil, &InvalidEnsembleError{
			fmt.Sprintf("The species '%s' has mass %g, but masses must be positive.",
				species, mass),
		}
	}

	n := len(x)
	cols := [][]float64{x, y, z, px, py, pz, w}
	names := append(append([]string{}, FieldNames...), "weights")
	for i := range cols {
		if len(cols[i]) != n {
			return nil, &InvalidEnsembleError{
				fmt.Sprintf("The column '%s' has length %d, but '%s' has length %d.",
					names[i], len(cols[i]), names[0], n),
			}
		}
	}

	for i := range w {
		if w[i] <= 0 || math.IsNaN(w[i]) {
			return nil, &InvalidEnsembleError{
				fmt.Sprintf("The weight of particle %d is %g, but weights must be positive.",
					i, w[i]),
			}
		}
	}

	return &Ensemble{species, mass, x, y, z, px, py, pz, w}, nil
}

// Len returns the number of macroparticles in the ensemble.
func (e *Ensemble) Len() int { return len(e.w) }

// TotalWeight returns the summed weight of the ensemble, i.e. the number of
// real particles it represents.
func (e *Ensemble) TotalWeight() float64 { return floats.Sum(e.w) }

// Weights returns the per-particle weight column. The returned slice is the
// ensemble's backing array and must not be modified.
func (e *Ensemble) Weights() []float64 { return e.w }

// Field returns the backing array of the named column. The returned slice
// must not be modified. Valid names are the entries of FieldNames.
func (e *Ensemble) Field(name string) ([]float64, error) {
	switch name {
	case "position_x_um": return e.x, nil
	case "position_y_um": return e.y, nil
	case "position_z_um": return e.z, nil
	case "momentum_x_mev_c": return e.px, nil
	case "momentum_y_mev_c": return e.py, nil
	case "momentum_z_mev_c": return e.pz, nil
	}
	return nil, fmt.Errorf("'%s' is not a recognized column name.", name)
}

// Energy computes the relativistic energy of every particle in MeV,
// E = sqrt(p^2 + (m c^2)^2), using the ensemble's rest mass. A new slice is
// allocated on every call.
func (e *Ensemble) Energy() []float64 {
	m := e.Mass * units.ElectronMassMeV
	m2 := m * m
	out := make([]float64, len(e.w))
	for i := range out {
		p2 := e.px[i]*e.px[i] + e.py[i]*e.py[i] + e.pz[i]*e.pz[i]
		out[i] = math.Sqrt(p2 + m2)
	}
	return out
}

// WeightedMean returns the weight-weighted mean of a column array,
// sum(w_i x_i) / sum(w_i).
func (e *Ensemble) WeightedMean(x []float64) float64 {
	return stat.Mean(x, e.w)
}

// WeightedStd returns the weight-weighted standard deviation of a column
// array. For a single-particle ensemble the spread is zero by convention.
func (e *Ensemble) WeightedStd(x []float64) float64 {
	if len(x) < 2 { return 0 }
	return stat.StdDev(x, e.w)
}

// Select builds a new Ensemble containing the rows at the given indices with
// the given replacement weights. The source ensemble is not modified. The
// new weights must satisfy the same validity conditions as in New.
func (e *Ensemble) Select(idx []int, w []float64) (*Ensemble, error) {
	if len(idx) != len(w) {
		return nil, fmt.Errorf("The index array has length %d, but the weight array has length %d.",
			len(idx), len(w))
	}

	x, y, z := make([]float64, len(idx)), make([]float64, len(idx)),
		make([]float64, len(idx))
	px, py, pz := make([]float64, len(idx)), make([]float64, len(idx)),
		make([]float64, len(idx))
	for i, j := range idx {
		if j < 0 || j >= e.Len() {
			return nil, fmt.Errorf("Index %d is out of range for an ensemble with %d particles.",
				j, e.Len())
		}
		x[i], y[i], z[i] = e.x[j], e.y[j], e.z[j]
		px[i], py[i], pz[i] = e.px[j], e.py[j], e.pz[j]
	}

	return New(e.Species, e.Mass, x, y, z, px, py, pz, w)
}
