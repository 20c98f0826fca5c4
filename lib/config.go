package lib

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pmdtools/winnow/lib/grid"
	"github.com/pmdtools/winnow/lib/pipeline"
	"github.com/pmdtools/winnow/lib/reduce"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds one run's configuration. Fields left out of the user's file
// keep the embedded defaults.
type Config struct {
	// Input and Output are particle tables; names ending in .zst are
	// compressed. Report optionally receives the per-column statistics.
	Input  string `yaml:"input"`
	Output string `yaml:"output"`
	Report string `yaml:"report"`

	Species string  `yaml:"species"`
	Mass    float64 `yaml:"mass"`

	Reduction ReductionConfig `yaml:"reduction"`
	Binning   BinningConfig   `yaml:"binning"`
	Columns   ColumnsConfig   `yaml:"columns"`

	LogLevel string `yaml:"log_level"`
}

// ReductionConfig holds the strategy parameters.
type ReductionConfig struct {
	Factor    float64 `yaml:"factor"`
	Strategy  string  `yaml:"strategy"`
	Seed      int64   `yaml:"seed"`
	Tolerance float64 `yaml:"tolerance"`
	Retries   int     `yaml:"retries"`
	Workers   int     `yaml:"workers"`
}

// BinningConfig holds the partitioning parameters.
type BinningConfig struct {
	Policy string   `yaml:"policy"`
	Bins   int      `yaml:"bins"`
	Axes   []string `yaml:"axes"`
}

// ColumnsConfig selects the optional output columns.
type ColumnsConfig struct {
	Weights bool `yaml:"weights"`
	Energy  bool `yaml:"energy"`
}

// Load parses the embedded defaults and then overlays the user's YAML file
// on top of them. An empty path keeps the defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	return cfg, nil
}

// Overwrite applies "name=value" command line arguments on top of the loaded
// configuration. Only scalar fields can be overwritten this way.
func (cfg *Config) Overwrite(args []string) error {
	for _, arg := range args {
		name, value, ok := strings.Cut(arg, "=")
		if !ok {
			return fmt.Errorf("The argument '%s' is not of the form 'name=value'.", arg)
		}

		var err error
		switch name {
		case "input": cfg.Input = value
		case "output": cfg.Output = value
		case "report": cfg.Report = value
		case "species": cfg.Species = value
		case "mass":
			cfg.Mass, err = strconv.ParseFloat(value, 64)
		case "reduction.factor":
			cfg.Reduction.Factor, err = strconv.ParseFloat(value, 64)
		case "reduction.strategy": cfg.Reduction.Strategy = value
		case "reduction.seed":
			cfg.Reduction.Seed, err = strconv.ParseInt(value, 10, 64)
		case "reduction.tolerance":
			cfg.Reduction.Tolerance, err = strconv.ParseFloat(value, 64)
		case "reduction.retries":
			cfg.Reduction.Retries, err = strconv.Atoi(value)
		case "reduction.workers":
			cfg.Reduction.Workers, err = strconv.Atoi(value)
		case "binning.policy": cfg.Binning.Policy = value
		case "binning.bins":
			cfg.Binning.Bins, err = strconv.Atoi(value)
		case "log_level": cfg.LogLevel = value
		default:
			return fmt.Errorf("'%s' is not a variable that can be set from the command line.", name)
		}
		if err != nil {
			return fmt.Errorf("The value '%s' given for '%s' cannot be parsed: %s",
				value, name, err.Error())
		}
	}
	return nil
}

// Check validates everything that can be validated without touching the
// input file and returns a description of the first problem found.
func (cfg *Config) Check() error {
	if cfg.Input == "" {
		return fmt.Errorf("No input table was specified.")
	}
	if cfg.Output == "" {
		return fmt.Errorf("No output table was specified.")
	}
	if cfg.Mass <= 0 {
		return fmt.Errorf("The species mass is %g, but it must be positive.",
			cfg.Mass)
	}
	if cfg.Reduction.Factor < 1 {
		return fmt.Errorf("The reduction factor is %g, but it must be at least 1.",
			cfg.Reduction.Factor)
	}
	if _, err := reduce.FromName(cfg.Reduction.Strategy); err != nil {
		return err
	}
	if _, err := cfg.policy(); err != nil {
		return err
	}
	if _, err := grid.New(cfg.axes(), grid.FixedCount, max(cfg.Binning.Bins, 1)); err != nil {
		return err
	}
	if _, err := cfg.LevelVar(); err != nil {
		return err
	}
	return nil
}

func (cfg *Config) policy() (grid.Policy, error) {
	switch cfg.Binning.Policy {
	case "adaptive": return grid.AdaptiveWidth, nil
	case "fixed": return grid.FixedCount, nil
	}
	return 0, fmt.Errorf("'%s' is not a valid binning policy. Only 'adaptive' and 'fixed' are valid.",
		cfg.Binning.Policy)
}

func (cfg *Config) axes() []string {
	if len(cfg.Binning.Axes) == 0 {
		return []string{"position_x_um", "position_y_um", "position_z_um"}
	}
	return cfg.Binning.Axes
}

// LevelVar converts the configured log level to a slog level.
func (cfg *Config) LevelVar() (slog.Level, error) {
	switch cfg.LogLevel {
	case "debug": return slog.LevelDebug, nil
	case "info", "": return slog.LevelInfo, nil
	case "warn": return slog.LevelWarn, nil
	case "error": return slog.LevelError, nil
	}
	return 0, fmt.Errorf("'%s' is not a valid log level. Only 'debug', 'info', 'warn', and 'error' are valid.",
		cfg.LogLevel)
}

// PipelineConfig converts the run configuration into the engine's form.
func (cfg *Config) PipelineConfig(log *slog.Logger) (pipeline.Config, error) {
	policy, err := cfg.policy()
	if err != nil { return pipeline.Config{}, err }

	pcfg := pipeline.Config{
		K:         cfg.Reduction.Factor,
		Strategy:  cfg.Reduction.Strategy,
		Axes:      cfg.axes(),
		Policy:    policy,
		Bins:      cfg.Binning.Bins,
		Tolerance: cfg.Reduction.Tolerance,
		Retries:   cfg.Reduction.Retries,
		Workers:   cfg.Reduction.Workers,
		Log:       log,
	}
	if cfg.Reduction.Seed >= 0 {
		seed := uint64(cfg.Reduction.Seed)
		pcfg.Seed = &seed
	}
	return pcfg, nil
}
