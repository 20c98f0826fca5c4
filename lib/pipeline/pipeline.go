/*package pipeline orchestrates a resampling run: partition the ensemble into
phase-space cells, reduce every cell with the configured strategy, validate
conservation, and renormalize the output weights. A Pipeline moves through
the states Initialized -> Partitioned -> Resampled -> Validated -> Finalized
exactly once; a new configuration requires a new instance.

Cells are independent, so the reduction step fans out over a worker pool.
Each cell derives its own random generator from the run seed and the cell
identifier, and results are concatenated in cell order, so a run is
bit-reproducible no matter how the cells were scheduled.*/
package pipeline

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/pmdtools/winnow/lib/ensemble"
	"github.com/pmdtools/winnow/lib/grid"
	"github.com/pmdtools/winnow/lib/reduce"
	"github.com/pmdtools/winnow/lib/validate"
)

// State is the phase a Pipeline is in. States only ever advance.
type State int

const (
	Initialized State = iota
	Partitioned
	Resampled
	Validated
	Finalized
)

func (s State) String() string {
	switch s {
	case Initialized: return "initialized"
	case Partitioned: return "partitioned"
	case Resampled: return "resampled"
	case Validated: return "validated"
	case Finalized: return "finalized"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// DefaultRetries is the number of times validation may re-run the reduction
// with a finer partition before surfacing a tolerance failure.
const DefaultRetries = 2

// Config collects the knobs of one resampling run.
type Config struct {
	// K is the reduction factor: the target output count is ceil(N/K) per
	// cell. It may be fractional and must be at least 1.
	K float64
	// Strategy is one of "thinning", "voronoi", or "grid".
	Strategy string
	// Seed fixes the random source. A nil seed draws one from the clock,
	// making the run nondeterministic.
	Seed *uint64
	// Axes are the ensemble columns to partition over. Empty means the
	// three position columns.
	Axes []string
	// Policy and Bins select the binning rule (Bins is only consulted
	// under grid.FixedCount).
	Policy grid.Policy
	Bins   int
	// Tolerance is the accepted relative weight drift; <= 0 selects
	// validate.DefaultTolerance.
	Tolerance float64
	// Retries bounds how often validation may refine and re-run; < 0
	// selects DefaultRetries.
	Retries int
	// Workers bounds the cell worker pool; <= 0 selects GOMAXPROCS.
	Workers int

	// Log receives progress and the final report. nil selects
	// slog.Default().
	Log *slog.Logger
}

// ToleranceError reports that the total weight drifted beyond the configured
// tolerance even after the retry budget. It is recoverable: the report (and,
// through Finalize, the output itself) is still available, so a caller may
// accept the result with the reported error bound instead of aborting.
type ToleranceError struct {
	Report *validate.Report
}

func (err *ToleranceError) Error() string {
	return fmt.Sprintf("The total weight drifted by a relative %g, which exceeds the configured tolerance %g.",
		err.Report.RelWeightError, err.Report.Tolerance)
}

// Pipeline is a single-use resampling run.
type Pipeline struct {
	cfg   Config
	state State
	seed  uint64
	log   *slog.Logger

	input       *ensemble.Ensemble
	partitioner *grid.Partitioner
	strategy    reduce.Strategy

	part      *grid.Partition
	candidate *ensemble.Ensemble
	report    *validate.Report
	retries   int
}

// New validates the configuration and binds it to an input ensemble.
func New(input *ensemble.Ensemble, cfg Config) (*Pipeline, error) {
	if input.Len() == 0 {
		return nil, fmt.Errorf("The input ensemble contains no particles.")
	}
	if cfg.K < 1 {
		return nil, fmt.Errorf("The reduction factor is %g, but it must be at least 1.", cfg.K)
	}

	strategy, err := reduce.FromName(cfg.Strategy)
	if err != nil { return nil, err }

	axes := cfg.Axes
	if len(axes) == 0 {
		axes = []string{"position_x_um", "position_y_um", "position_z_um"}
	}
	partitioner, err := grid.New(axes, cfg.Policy, cfg.Bins)
	if err != nil { return nil, err }

	seed := uint64(time.Now().UnixNano())
	if cfg.Seed != nil { seed = *cfg.Seed }

	log := cfg.Log
	if log == nil { log = slog.Default() }

	if cfg.Retries < 0 { cfg.Retries = DefaultRetries }

	return &Pipeline{
		cfg: cfg, state: Initialized, seed: seed, log: log,
		input: input, partitioner: partitioner, strategy: strategy,
	}, nil
}

// State returns the pipeline's current phase.
func (p *Pipeline) State() State { return p.state }

// Run executes every remaining phase and returns the reduced ensemble and
// the validation report. A *ToleranceError is returned alongside the result
// when conservation failed beyond tolerance after the retry budget.
func (p *Pipeline) Run() (*ensemble.Ensemble, *validate.Report, error) {
	if err := p.PartitionStep(); err != nil { return nil, nil, err }
	if err := p.ResampleStep(); err != nil { return nil, nil, err }

	tolErr := p.ValidateStep()
	if tolErr != nil {
		if _, ok := tolErr.(*ToleranceError); !ok {
			return nil, nil, tolErr
		}
	}

	out, rep, err := p.Finalize()
	if err != nil { return nil, nil, err }
	return out, rep, tolErr
}

// PartitionStep assigns every particle to a cell.
func (p *Pipeline) PartitionStep() error {
	if err := p.advance(Initialized, Partitioned); err != nil { return err }

	part, err := p.partitioner.Partition(p.input)
	if err != nil { return err }
	p.part = part

	p.log.Debug("partitioned ensemble",
		"particles", p.input.Len(), "cells", len(part.Cells))
	return nil
}

// ResampleStep reduces every cell and concatenates the results into the
// candidate output ensemble.
func (p *Pipeline) ResampleStep() error {
	if err := p.advance(Partitioned, Resampled); err != nil { return err }
	return p.resample()
}

// resample runs the per-cell reduction over a worker pool. It is shared by
// ResampleStep and the validation retry path.
func (p *Pipeline) resample() error {
	cells := p.part.Cells
	results := make([]*reduce.Result, len(cells))
	errs := make([]error, len(cells))

	workers := p.cfg.Workers
	if workers <= 0 { workers = runtime.GOMAXPROCS(0) }
	if workers > len(cells) { workers = len(cells) }

	work := make(chan int)
	wg := sync.WaitGroup{}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ci := range work {
				cell := reduce.CellParticles{
					Src: p.input, Indices: cells[ci].Indices,
				}
				rng := reduce.NewRNG(reduce.CellSeed(p.seed, cells[ci].ID))
				results[ci], errs[ci] = p.strategy.Reduce(cell, p.cfg.K, rng)
			}
		}()
	}
	for ci := range cells { work <- ci }
	close(work)
	wg.Wait()

	for _, err := range errs {
		if err != nil { return err }
	}

	// Concatenate in cell order, never completion order.
	n := 0
	for _, res := range results { n += res.Len() }
	x, y, z := make([]float64, 0, n), make([]float64, 0, n), make([]float64, 0, n)
	px, py, pz := make([]float64, 0, n), make([]float64, 0, n), make([]float64, 0, n)
	w := make([]float64, 0, n)
	for _, res := range results {
		x, y, z = append(x, res.X...), append(y, res.Y...), append(z, res.Z...)
		px, py, pz = append(px, res.Px...), append(py, res.Py...), append(pz, res.Pz...)
		w = append(w, res.W...)
	}

	candidate, err := ensemble.New(
		p.input.Species, p.input.Mass, x, y, z, px, py, pz, w)
	if err != nil { return err }
	p.candidate = candidate

	p.log.Debug("resampled cells",
		"strategy", p.strategy.Name(), "cells", len(cells),
		"particles_out", candidate.Len())
	return nil
}

// ValidateStep compares the candidate against the input. If the total weight
// drifted beyond tolerance it re-runs the reduction with a finer partition,
// at most Retries times, before surfacing a *ToleranceError. The validator
// always sees the complete candidate output; no renormalization decision is
// made before this step has finished.
func (p *Pipeline) ValidateStep() error {
	if err := p.advance(Resampled, Validated); err != nil { return err }

	for {
		p.report = validate.Compare(p.input, p.candidate, p.cfg.Tolerance)
		if !p.report.ToleranceExceeded { return nil }

		if p.retries >= p.cfg.Retries {
			return &ToleranceError{Report: p.report}
		}
		p.retries++

		p.log.Warn("weight tolerance exceeded, retrying with finer partition",
			"rel_weight_error", p.report.RelWeightError,
			"retry", p.retries)

		p.partitioner = p.partitioner.Refine()
		part, err := p.partitioner.Partition(p.input)
		if err != nil { return err }
		p.part = part
		if err := p.resample(); err != nil { return err }
	}
}

// Finalize renormalizes the candidate's weights so the output total matches
// the input total exactly and hands back the result with the report. The
// pipeline cannot be reused afterwards.
func (p *Pipeline) Finalize() (*ensemble.Ensemble, *validate.Report, error) {
	if err := p.advance(Validated, Finalized); err != nil {
		return nil, nil, err
	}

	out := p.candidate
	if p.report.WeightAfter != p.report.WeightBefore {
		scale := p.report.WeightBefore / p.report.WeightAfter
		idx := make([]int, out.Len())
		w := make([]float64, out.Len())
		for i := range idx {
			idx[i] = i
			w[i] = out.Weights()[i] * scale
		}
		renorm, err := out.Select(idx, w)
		if err != nil { return nil, nil, err }
		out = renorm
	}

	p.report.Log(p.log)
	return out, p.report, nil
}

// advance checks a state transition.
func (p *Pipeline) advance(from, to State) error {
	if p.state != from {
		return fmt.Errorf("The pipeline is in the '%s' state, but this step requires '%s'. Pipelines are single-use; create a new one to re-run.",
			p.state, from)
	}
	p.state = to
	return nil
}
