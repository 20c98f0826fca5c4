package main

import (
	"fmt"
	"os"

	"log/slog"

	"github.com/pmdtools/winnow/lib"
)

func main() {
	// Parse arguments.
	mode, configFile, overrides := parseCommandLine()

	cfg, err := lib.Load(configFile)
	if err != nil {
		lib.External("%s", err.Error())
	}
	if err := cfg.Overwrite(overrides); err != nil {
		lib.External("%s", err.Error())
	}

	// Run the chosen mode.
	switch mode {
	case "help":
		lib.PrintHelp()
	case "check":
		Check(cfg)
	case "run":
		Run(cfg)
	default:
		lib.External(
			"You attempted to run winnow in the mode '%s', but the only valid "+
				"modes are 'help', 'check', and 'run'.", mode,
		)
	}
}

func parseCommandLine() (mode, configFile string, overrides []string) {
	if len(os.Args) < 2 {
		lib.External(
			"winnow must be run as 'winnow <mode> <config file> " +
				"[name=value ...]', where <mode> is one of 'help', 'check', " +
				"and 'run'.",
		)
	}
	if len(os.Args) == 2 {
		return os.Args[1], "", nil
	}
	return os.Args[1], os.Args[2], os.Args[3:]
}

// Check runs winnow's "check" mode which tests for errors in the
// configuration file.
func Check(cfg *lib.Config) {
	if err := cfg.Check(); err != nil {
		lib.External("%s", err.Error())
	}
	fmt.Println("No errors detected.")
}

// Run runs winnow's "run" mode, which resamples the input table down to a
// smaller ensemble and writes it back out.
func Run(cfg *lib.Config) {
	level, err := cfg.LevelVar()
	if err != nil {
		lib.External("%s", err.Error())
	}
	log := slog.New(slog.NewTextHandler(os.Stderr,
		&slog.HandlerOptions{Level: level}))

	if err := lib.Run(cfg, log); err != nil {
		lib.External("%s", err.Error())
	}
}
