/*package validate computes the before/after conservation diagnostics for a
resampling run: total weight, total charge, and the weighted moments of every
position, momentum, and energy column. Exact weight conservation is an
algorithmic invariant of the strategies, so the tolerance here only needs to
absorb floating-point summation error.*/
package validate

import (
	"io"
	"log/slog"
	"math"

	"github.com/gocarina/gocsv"

	"github.com/pmdtools/winnow/lib/ensemble"
	"github.com/pmdtools/winnow/lib/units"
)

// DefaultTolerance is the relative weight drift accepted by default.
const DefaultTolerance = 1e-6

// FieldStats holds the weighted mean and standard deviation of one column
// before and after resampling.
type FieldStats struct {
	Field      string  `csv:"field"`
	MeanBefore float64 `csv:"mean_before"`
	StdBefore  float64 `csv:"std_before"`
	MeanAfter  float64 `csv:"mean_after"`
	StdAfter   float64 `csv:"std_after"`
}

// Report is the structured result of comparing an input ensemble against its
// resampled output.
type Report struct {
	Species string

	CountBefore, CountAfter   int
	WeightBefore, WeightAfter float64
	// RelWeightError is |after - before| / before. It is recorded even when
	// it is within tolerance.
	RelWeightError float64
	// ChargeBeforePC and ChargeAfterPC are the total physical charges in
	// picocoulombs, weight times the elementary charge.
	ChargeBeforePC, ChargeAfterPC float64
	// MultiplicativeFactor converts the output macroparticle count back
	// into an estimate of real particles per macroparticle,
	// WeightBefore / CountAfter. Diagnostic only; nothing feeds it back
	// into the resampling itself.
	MultiplicativeFactor float64

	Tolerance         float64
	ToleranceExceeded bool

	Fields []FieldStats
}

// Compare builds the conservation report for a before/after ensemble pair.
// tol <= 0 selects DefaultTolerance.
func Compare(before, after *ensemble.Ensemble, tol float64) *Report {
	if tol <= 0 { tol = DefaultTolerance }

	wb, wa := before.TotalWeight(), after.TotalWeight()
	relErr := math.Abs(wa-wb) / wb

	rep := &Report{
		Species:        before.Species,
		CountBefore:    before.Len(),
		CountAfter:     after.Len(),
		WeightBefore:   wb,
		WeightAfter:    wa,
		RelWeightError: relErr,
		ChargeBeforePC: wb * units.ChargePicocoulombs,
		ChargeAfterPC:  wa * units.ChargePicocoulombs,

		Tolerance:         tol,
		ToleranceExceeded: relErr > tol,
	}
	if after.Len() > 0 {
		rep.MultiplicativeFactor = wb / float64(after.Len())
	}

	for _, name := range ensemble.FieldNames {
		xb, _ := before.Field(name)
		xa, _ := after.Field(name)
		rep.Fields = append(rep.Fields, fieldStats(name, before, xb, after, xa))
	}
	rep.Fields = append(rep.Fields,
		fieldStats("energy_mev", before, before.Energy(), after, after.Energy()))

	return rep
}

func fieldStats(
	name string, before *ensemble.Ensemble, xb []float64,
	after *ensemble.Ensemble, xa []float64,
) FieldStats {
	return FieldStats{
		Field:      name,
		MeanBefore: before.WeightedMean(xb),
		StdBefore:  before.WeightedStd(xb),
		MeanAfter:  after.WeightedMean(xa),
		StdAfter:   after.WeightedStd(xa),
	}
}

// WriteFieldStats writes the per-column statistics as CSV.
func (rep *Report) WriteFieldStats(w io.Writer) error {
	return gocsv.Marshal(rep.Fields, w)
}

// LogValue implements slog.LogValuer so the summary can be logged
// structured.
func (rep *Report) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("species", rep.Species),
		slog.Int("count_before", rep.CountBefore),
		slog.Int("count_after", rep.CountAfter),
		slog.Float64("weight_before", rep.WeightBefore),
		slog.Float64("weight_after", rep.WeightAfter),
		slog.Float64("rel_weight_error", rep.RelWeightError),
		slog.Float64("charge_before_pc", rep.ChargeBeforePC),
		slog.Float64("charge_after_pc", rep.ChargeAfterPC),
		slog.Float64("multiplicative_factor", rep.MultiplicativeFactor),
		slog.Bool("tolerance_exceeded", rep.ToleranceExceeded),
	)
}

// Log writes the dataset summary the way the rest of the tooling expects to
// read it: macroparticle count, real-particle count, and total charge.
func (rep *Report) Log(log *slog.Logger) {
	log.Info("resampled ensemble", "report", rep)
	for _, f := range rep.Fields {
		log.Debug("field stats",
			"field", f.Field,
			"mean_before", f.MeanBefore, "std_before", f.StdBefore,
			"mean_after", f.MeanAfter, "std_after", f.StdAfter,
		)
	}
}
