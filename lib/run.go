package lib

import (
	"errors"
	"fmt"
	"os"

	"log/slog"

	"github.com/pmdtools/winnow/lib/pipeline"
	"github.com/pmdtools/winnow/lib/tableio"
	"github.com/pmdtools/winnow/lib/units"
)

// Run executes one full resampling run: read the input table, reduce it,
// and write the output table plus the optional statistics report. A
// tolerance failure is logged and reported but does not abort the run; the
// output is written together with its achieved error bound.
func Run(cfg *Config, log *slog.Logger) error {
	if err := cfg.Check(); err != nil { return err }

	in, err := tableio.ReadFile(cfg.Input, cfg.Species, cfg.Mass)
	if err != nil { return err }

	log.Info("read input table",
		"file", cfg.Input,
		"macroparticles", in.Len(),
		"real_particles", in.TotalWeight(),
		"charge_pc", in.TotalWeight()*units.ChargePicocoulombs,
	)

	pcfg, err := cfg.PipelineConfig(log)
	if err != nil { return err }
	p, err := pipeline.New(in, pcfg)
	if err != nil { return err }

	out, rep, err := p.Run()
	tolErr := &pipeline.ToleranceError{}
	switch {
	case err == nil:
	case errors.As(err, &tolErr):
		// Recoverable: surface the bound, keep the result.
		log.Warn("accepting result beyond the weight tolerance",
			"rel_weight_error", tolErr.Report.RelWeightError,
			"tolerance", tolErr.Report.Tolerance)
	default:
		return err
	}

	opts := tableio.Options{
		IncludeWeights: cfg.Columns.Weights,
		IncludeEnergy:  cfg.Columns.Energy,
	}
	if err := tableio.WriteFile(cfg.Output, out, opts); err != nil {
		return err
	}
	log.Info("wrote output table",
		"file", cfg.Output,
		"macroparticles", out.Len(),
		"multiplicative_factor", rep.MultiplicativeFactor,
	)

	if cfg.Report != "" {
		f, err := os.Create(cfg.Report)
		if err != nil { return err }
		if err := rep.WriteFieldStats(f); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil { return err }
		log.Info("wrote statistics report", "file", cfg.Report)
	}

	return nil
}

// PrintHelp writes the usage summary for the command line tool.
func PrintHelp() {
	fmt.Println(`winnow reduces the macroparticle count of a particle-in-cell
ensemble while conserving its total weight and physical moments.

Usage:
    winnow <mode> <config file> [name=value ...]

The valid modes are:
    help   - print this message
    check  - test the configuration file for errors
    run    - resample the input table and write the output table

The config file is YAML; every omitted value keeps its default, and trailing
'name=value' arguments overwrite scalar fields (e.g. reduction.seed=42). See
lib/defaults.yaml for the full set of options.`)
}
