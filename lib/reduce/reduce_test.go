package reduce

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/floats"

	"github.com/pmdtools/winnow/lib/ensemble"
	"github.com/pmdtools/winnow/lib/eq"
)

// cellOf wraps all particles of an ensemble into a single cell view.
func cellOf(t *testing.T, x, w []float64) CellParticles {
	n := len(x)
	zero := make([]float64, n)
	pz := make([]float64, n)
	for i := range pz { pz[i] = 1.0 }

	e, err := ensemble.New("electron", 1.0, x, zero, zero, zero, zero, pz, w)
	if err != nil {
		t.Fatalf("Expected ensemble.New to succeed, got error '%s'.",
			err.Error())
	}

	idx := make([]int, n)
	for i := range idx { idx[i] = i }
	return CellParticles{Src: e, Indices: idx}
}

func uniform(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out { out[i] = v }
	return out
}

func TestThinningScenario(t *testing.T) {
	// 10 particles of weight 5 spread over [0, 10), k=2: five survivors of
	// weight 10 each, total weight unchanged at 50.
	x := []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	cell := cellOf(t, x, uniform(10, 5.0))

	res, err := (&Thinning{}).Reduce(cell, 2.0, NewRNG(42))
	if err != nil {
		t.Fatalf("Expected Reduce to succeed, got error '%s'.", err.Error())
	}

	if res.Len() != 5 {
		t.Errorf("Expected 5 output particles, got %d.", res.Len())
	}
	if !eq.Float64s(res.W, uniform(res.Len(), 10.0)) {
		t.Errorf("Expected all output weights to be 10, got %v.", res.W)
	}
	if total := floats.Sum(res.W); total != 50.0 {
		t.Errorf("Expected total output weight 50, got %g.", total)
	}
	if !res.WeightConserved {
		t.Errorf("Expected the weight-conserved flag to be set, got residual %g.",
			res.ResidualWeightError)
	}
}

func TestSingleParticleIsUnchanged(t *testing.T) {
	for _, name := range []string{"thinning", "voronoi", "grid"} {
		strat, err := FromName(name)
		if err != nil {
			t.Fatalf("Expected FromName('%s') to succeed, got error '%s'.",
				name, err.Error())
		}

		cell := cellOf(t, []float64{2.5}, []float64{3.7})
		for _, k := range []float64{1, 2, 100} {
			res, err := strat.Reduce(cell, k, NewRNG(1))
			if err != nil {
				t.Fatalf("%s, k=%g: expected Reduce to succeed, got error '%s'.",
					name, k, err.Error())
			}
			if res.Len() != 1 {
				t.Errorf("%s, k=%g: expected 1 output particle, got %d.",
					name, k, res.Len())
			}
			if res.W[0] != 3.7 {
				t.Errorf("%s, k=%g: expected the weight 3.7 to be unchanged, got %g.",
					name, k, res.W[0])
			}
			if res.X[0] != 2.5 {
				t.Errorf("%s, k=%g: expected the position to be unchanged, got %g.",
					name, k, res.X[0])
			}
		}
	}
}

func TestVoronoiScenario(t *testing.T) {
	// Four unit-weight particles at x = {0, 0, 10, 10}, k=2: two centroids
	// at 0 and 10 carrying weight 2 each.
	cell := cellOf(t, []float64{0, 0, 10, 10}, uniform(4, 1.0))

	res, err := (&VoronoiMerge{}).Reduce(cell, 2.0, nil)
	if err != nil {
		t.Fatalf("Expected Reduce to succeed, got error '%s'.", err.Error())
	}

	if res.Len() != 2 {
		t.Fatalf("Expected 2 output particles, got %d.", res.Len())
	}
	if !eq.Float64s(res.X, []float64{0, 10}) {
		t.Errorf("Expected centroids at x = [0 10], got %v.", res.X)
	}
	if !eq.Float64s(res.W, []float64{2, 2}) {
		t.Errorf("Expected centroid weights [2 2], got %v.", res.W)
	}
	if total := floats.Sum(res.W); total != 4.0 {
		t.Errorf("Expected total output weight 4, got %g.", total)
	}
}

func TestWeightConservationAcrossStrategies(t *testing.T) {
	// Uneven weights and irregular positions.
	n := 137
	x, w := make([]float64, n), make([]float64, n)
	rng := NewRNG(7)
	for i := range x {
		x[i] = 20 * rng.Uniform()
		w[i] = 0.5 + 10*rng.Uniform()
	}
	want := floats.Sum(w)

	for _, name := range []string{"thinning", "voronoi", "grid"} {
		strat, _ := FromName(name)
		for _, k := range []float64{1, 1.5, 3, 10, 200} {
			cell := cellOf(t, x, w)
			res, err := strat.Reduce(cell, k, NewRNG(11))
			if err != nil {
				t.Fatalf("%s, k=%g: expected Reduce to succeed, got error '%s'.",
					name, k, err.Error())
			}

			got := floats.Sum(res.W)
			if math.Abs(got-want)/want > 1e-9 {
				t.Errorf("%s, k=%g: expected total weight %g, got %g.",
					name, k, want, got)
			}
			if !res.WeightConserved {
				t.Errorf("%s, k=%g: expected the weight-conserved flag to be set.",
					name, k)
			}
			if res.Len() > n {
				t.Errorf("%s, k=%g: expected at most %d output particles, got %d.",
					name, k, n, res.Len())
			}
		}
	}
}

func TestCountReduction(t *testing.T) {
	n := 100
	x := make([]float64, n)
	for i := range x { x[i] = float64(i) }

	for _, k := range []float64{1, 2, 3, 7.5} {
		want := int(math.Ceil(float64(n) / k))

		cell := cellOf(t, x, uniform(n, 1.0))
		res, err := (&Thinning{}).Reduce(cell, k, NewRNG(3))
		if err != nil {
			t.Fatalf("k=%g: expected Reduce to succeed, got error '%s'.",
				k, err.Error())
		}
		if res.Len() != want {
			t.Errorf("thinning, k=%g: expected %d output particles, got %d.",
				k, want, res.Len())
		}

		res, err = (&VoronoiMerge{}).Reduce(cell, k, nil)
		if err != nil {
			t.Fatalf("k=%g: expected Reduce to succeed, got error '%s'.",
				k, err.Error())
		}
		if res.Len() != want {
			t.Errorf("voronoi, k=%g: expected %d output particles, got %d.",
				k, want, res.Len())
		}
	}
}

func TestIdentityReductionKeepsInput(t *testing.T) {
	x := []float64{5, 1, 3, 2}
	w := []float64{1, 2, 3, 4}
	cell := cellOf(t, x, w)

	for _, name := range []string{"thinning", "voronoi", "grid"} {
		strat, _ := FromName(name)
		res, err := strat.Reduce(cell, 1.0, NewRNG(9))
		if err != nil {
			t.Fatalf("%s: expected Reduce to succeed, got error '%s'.",
				name, err.Error())
		}
		if !eq.Float64s(res.X, x) || !eq.Float64s(res.W, w) {
			t.Errorf("%s: expected k=1 to be the identity, got x=%v w=%v.",
				name, res.X, res.W)
		}
	}
}

func TestSmallCellCollapsesToCentroid(t *testing.T) {
	// count <= k: exactly one output particle holding the cell's total
	// weight at the weighted centroid.
	x := []float64{0, 10}
	w := []float64{1, 3}
	cell := cellOf(t, x, w)

	for _, name := range []string{"thinning", "voronoi", "grid"} {
		strat, _ := FromName(name)
		res, err := strat.Reduce(cell, 4.0, NewRNG(5))
		if err != nil {
			t.Fatalf("%s: expected Reduce to succeed, got error '%s'.",
				name, err.Error())
		}
		if res.Len() != 1 {
			t.Fatalf("%s: expected 1 output particle, got %d.", name, res.Len())
		}
		if res.W[0] != 4.0 {
			t.Errorf("%s: expected the collapsed weight 4, got %g.",
				name, res.W[0])
		}
		if math.Abs(res.X[0]-7.5) > 1e-12 {
			t.Errorf("%s: expected the weighted centroid at x=7.5, got %g.",
				name, res.X[0])
		}
	}
}

func TestThinningIsDeterministicUnderFixedSeed(t *testing.T) {
	n := 64
	x := make([]float64, n)
	for i := range x { x[i] = float64(i) }
	cell := cellOf(t, x, uniform(n, 2.0))

	first, err := (&Thinning{}).Reduce(cell, 4.0, NewRNG(1234))
	if err != nil {
		t.Fatalf("Expected Reduce to succeed, got error '%s'.", err.Error())
	}
	second, err := (&Thinning{}).Reduce(cell, 4.0, NewRNG(1234))
	if err != nil {
		t.Fatalf("Expected Reduce to succeed, got error '%s'.", err.Error())
	}
	if !eq.Float64s(first.X, second.X) || !eq.Float64s(first.W, second.W) {
		t.Errorf("Expected identical output under a fixed seed, got %v vs %v.",
			first.X, second.X)
	}

	third, err := (&Thinning{}).Reduce(cell, 4.0, NewRNG(4321))
	if err != nil {
		t.Fatalf("Expected Reduce to succeed, got error '%s'.", err.Error())
	}
	if eq.Float64s(first.X, third.X) {
		t.Errorf("Expected different seeds to select different survivors.")
	}
}

func TestSampleIsDistinctAndOrdered(t *testing.T) {
	rows := []int{10, 11, 12, 13, 14, 15, 16, 17}
	out := sample(NewRNG(2), rows, 4)

	if len(out) != 4 {
		t.Fatalf("Expected 4 samples, got %d.", len(out))
	}
	for i := 1; i < len(out); i++ {
		if out[i] <= out[i-1] {
			t.Errorf("Expected strictly increasing samples, got %v.", out)
		}
	}
	for _, v := range out {
		if v < 10 || v > 17 {
			t.Errorf("Expected samples drawn from rows, got %v.", out)
		}
	}
}

func TestCellSeed(t *testing.T) {
	a, b := CellSeed(42, 0), CellSeed(42, 1)
	if a == b {
		t.Errorf("Expected different cells to derive different seeds, got %d twice.", a)
	}
	if CellSeed(42, 0) != a {
		t.Errorf("Expected the derivation to be deterministic.")
	}
	if CellSeed(43, 0) == a {
		t.Errorf("Expected different run seeds to derive different cell seeds.")
	}
}

func TestFinishRejectsDriftedWeight(t *testing.T) {
	// A result whose weight sum drifted by 10%: far beyond summation error,
	// so this is a corrupt strategy output.
	res := &Result{W: []float64{5, 6}}
	out, err := finish("thinning", 10.0, res)
	if err == nil {
		t.Fatalf("Expected finish to reject a drifted weight sum.")
	}
	if out != nil {
		t.Errorf("Expected a nil result on a postcondition violation, got %v.",
			out)
	}

	ierr, ok := err.(*InternalError)
	if !ok {
		t.Fatalf("Expected *InternalError, got %T.", err)
	}
	if ierr.Strategy != "thinning" {
		t.Errorf("Expected the strategy name 'thinning', got '%s'.",
			ierr.Strategy)
	}
	if ierr.Want != 10.0 || ierr.Got != 11.0 {
		t.Errorf("Expected Want=10 and Got=11, got Want=%g Got=%g.",
			ierr.Want, ierr.Got)
	}
}

func TestFinishAcceptsExactWeight(t *testing.T) {
	res, err := finish("grid", 10.0, &Result{W: []float64{5, 5}})
	if err != nil {
		t.Fatalf("Expected finish to accept an exact weight sum, got error '%s'.",
			err.Error())
	}
	if !res.WeightConserved {
		t.Errorf("Expected the weight-conserved flag to be set, got residual %g.",
			res.ResidualWeightError)
	}
	if res.ResidualWeightError != 0 {
		t.Errorf("Expected a zero residual, got %g.", res.ResidualWeightError)
	}
}

func TestFromNameRejectsUnknownStrategy(t *testing.T) {
	if _, err := FromName("best-effort"); err == nil {
		t.Errorf("Expected FromName to reject an unknown strategy name.")
	}
}
