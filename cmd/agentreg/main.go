// Command agentreg is the regression-harness entrypoint: it drives a
// case catalogue through a Gateway and/or evaluates a
// current-vs-baseline gate check against the resulting audit trail.
//
// Subcommands:
//
//	agentreg run -catalogue cases.csv | -catalogue-dir ./cases   (audit trail written under LOG_DIR)
//	agentreg gate-check -log-dir ./audit [-current-days 1] [-baseline-days 7] [-baseline-dir ...]
//	                     [-s1-threshold 100] [-overall-threshold 80] [-top-n 5]
//	                     [-config agentreg-gate.yaml] [-labels a,b] [-catalogue cases.csv]
//	                     [-summary-out path] [-report]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/nulpointcorp/agentreg/internal/app"
	"github.com/nulpointcorp/agentreg/internal/auditlog"
	"github.com/nulpointcorp/agentreg/internal/config"
	"github.com/nulpointcorp/agentreg/internal/gatecheck"
	"github.com/nulpointcorp/agentreg/internal/harness/catalogue"
	"github.com/nulpointcorp/agentreg/internal/harness/runner"
	"github.com/nulpointcorp/agentreg/internal/report"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: agentreg <run|gate-check> [flags]")
		os.Exit(2)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	var err error
	switch os.Args[1] {
	case "run":
		err = runCommand(os.Args[2:], logger)
	case "gate-check":
		err = gateCheckCommand(os.Args[2:], logger)
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q: want run or gate-check\n", os.Args[1])
		os.Exit(2)
	}

	if err != nil {
		logger.Error("agentreg failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// runCommand drives a catalogue through an in-process Gateway (built
// from the same internal/config the gateway binary uses) and writes
// one RunRecord per case to the configured audit log directory.
func runCommand(args []string, logger *slog.Logger) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	catPath := fs.String("catalogue", "", "path to a catalogue CSV file")
	catDir := fs.String("catalogue-dir", "", "directory of catalogue CSV files (alternative to -catalogue)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *catPath == "" && *catDir == "" {
		return fmt.Errorf("run: -catalogue or -catalogue-dir is required")
	}

	var cases []catalogue.TestCase
	var err error
	if *catPath != "" {
		cases, err = catalogue.LoadCSV(*catPath)
	} else {
		cases, err = catalogue.LoadDir(*catDir, "")
	}
	if err != nil {
		return fmt.Errorf("run: load catalogue: %w", err)
	}
	if len(cases) == 0 {
		return fmt.Errorf("run: catalogue is empty")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("run: config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	a, err := app.New(ctx, cfg, logger, "harness")
	if err != nil {
		return fmt.Errorf("run: app init: %w", err)
	}
	defer a.Close()

	gw, audit, metricsReg := a.Harness()
	r := runner.New(gw, audit, metricsReg)

	logger.Info("starting harness run", slog.String("run_id", r.RunID()), slog.Int("cases", len(cases)))

	records := r.Run(ctx, cases)

	passed := 0
	for _, rec := range records {
		if rec.Passed {
			passed++
		}
	}
	logger.Info("harness run complete",
		slog.String("run_id", r.RunID()),
		slog.Int("total", len(records)),
		slog.Int("passed", passed),
	)

	return nil
}

// gateCheckCommand reads runs over a current window (and a baseline
// window or directory), resolves thresholds, evaluates the gate, and
// prints/writes the Markdown summary. main handles the returned error
// only for hard failures (I/O, parse errors); the verdict itself is
// surfaced by os.Exit(1) below — exit 1 means gate fail or no data
// found.
func gateCheckCommand(args []string, logger *slog.Logger) error {
	fs := flag.NewFlagSet("gate-check", flag.ExitOnError)
	logDir := fs.String("log-dir", "", "audit log directory (required)")
	currentDays := fs.Int("current-days", 1, "trailing window size, in days, for the current period")
	baselineDays := fs.Int("baseline-days", 7, "trailing window size, in days, for the baseline period")
	baselineDir := fs.String("baseline-dir", "", "dedicated baseline directory (takes precedence over -baseline-days)")
	s1Threshold := fs.Float64("s1-threshold", 0, "override S1 pass rate threshold (0 = use config/defaults)")
	overallThreshold := fs.Float64("overall-threshold", 0, "override overall pass rate threshold (0 = use config/defaults)")
	topN := fs.Int("top-n", 0, "override top-regressions count (0 = use config/defaults)")
	configPath := fs.String("config", "", "gate-check config file (default: auto-detect in cwd)")
	labelsCSV := fs.String("labels", "", "comma-separated PR labels for rule matching")
	catPath := fs.String("catalogue", "", "optional catalogue CSV for per-case min-pass-rate thresholds")
	summaryOut := fs.String("summary-out", "", "optional path to also write the Markdown summary")
	writeReport := fs.Bool("report", false, "also render the full report.Render output alongside the summary")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *logDir == "" {
		return fmt.Errorf("gate-check: -log-dir is required")
	}

	now := time.Now().UTC()
	currentFrom := now.AddDate(0, 0, -(*currentDays - 1))
	current, err := auditlog.ReadRuns(*logDir, currentFrom, now, logger)
	if err != nil {
		return fmt.Errorf("gate-check: read current runs: %w", err)
	}

	var baseline []auditlog.RunRecord
	if *baselineDir != "" {
		// A dedicated baseline directory is its own system of record:
		// read everything in the trailing window up to today, since a
		// baseline snapshot's day partitions may overlap the current
		// period's dates.
		baseline, err = auditlog.ReadRuns(*baselineDir, now.AddDate(0, 0, -*baselineDays), now, logger)
	} else {
		baselineFrom := currentFrom.AddDate(0, 0, -*baselineDays)
		baselineTo := currentFrom.AddDate(0, 0, -1)
		baseline, err = auditlog.ReadRuns(*logDir, baselineFrom, baselineTo, logger)
	}
	if err != nil {
		return fmt.Errorf("gate-check: read baseline runs: %w", err)
	}

	if len(current) == 0 {
		fmt.Fprintln(os.Stderr, "gate-check: no current-period data found")
		os.Exit(1)
	}

	var cfg *gatecheck.Config
	if *configPath != "" {
		cfg, err = gatecheck.LoadConfig(*configPath)
	} else {
		cfg, err = gatecheck.LoadConfigAuto(".")
	}
	if err != nil {
		return fmt.Errorf("gate-check: load config: %w", err)
	}

	var labels []string
	if *labelsCSV != "" {
		for _, l := range strings.Split(*labelsCSV, ",") {
			if l = strings.TrimSpace(l); l != "" {
				labels = append(labels, l)
			}
		}
	}

	overrides := &gatecheck.Thresholds{
		S1PassRate:      *s1Threshold,
		OverallPassRate: *overallThreshold,
		TopN:            *topN,
	}
	thresholds := cfg.Resolve(labels, nil, overrides)

	var cat []catalogue.TestCase
	if *catPath != "" {
		cat, err = catalogue.LoadCSV(*catPath)
		if err != nil {
			return fmt.Errorf("gate-check: load catalogue: %w", err)
		}
	}

	result := gatecheck.RunCheck(current, baseline, thresholds, cat)
	summary := gatecheck.RenderSummary(result)

	fmt.Println(summary)

	if *writeReport {
		fmt.Println()
		fmt.Println(report.Render(current, baseline, report.Options{}))
	}

	if *summaryOut != "" {
		if err := os.WriteFile(*summaryOut, []byte(summary), 0o644); err != nil {
			return fmt.Errorf("gate-check: write summary: %w", err)
		}
	}

	if !result.GatePassed() {
		os.Exit(1)
	}
	return nil
}
