package cmd

import (
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/abdul-hamid-achik/statusprobe/packages/core/runner"
	"github.com/abdul-hamid-achik/statusprobe/packages/export/metrics"
	"github.com/abdul-hamid-achik/statusprobe/packages/stress"
	"github.com/spf13/cobra"
)

var stressCmd = &cobra.Command{
	Use:   "stress",
	Short: "Repeat the probes under load",
	Long: `Start full probe runs at a fixed rate for a fixed duration and report run
latency percentiles, failures by kind and threshold checks.

Thresholds are comma separated: p50, p95, p99 and max take a duration with
< or <=, errors takes a rate or percentage with <, rps takes a number with >.

Examples:
  statusprobe stress --base-url http://localhost:8001
  statusprobe stress -d 1m -r 10 --max-concurrent 20
  statusprobe stress --threshold "p95<500ms,errors<1%"
  statusprobe stress --json > stress.json`,
	Args: usageArgs(cobra.NoArgs),
	RunE: stressCommand,
}

var (
	stressDuration      time.Duration
	stressRate          float64
	stressMaxConcurrent int
	stressThreshold     string
	stressNoProgress    bool
	stressJSON          bool
)

func init() {
	defaults := stress.DefaultConfig()

	addRequestFlags(stressCmd)
	addMetricsFlags(stressCmd)
	stressCmd.Flags().DurationVarP(&stressDuration, "duration", "d", defaults.Duration, "How long to keep starting runs")
	stressCmd.Flags().Float64VarP(&stressRate, "rate", "r", defaults.Rate, "Runs started per second")
	stressCmd.Flags().IntVar(&stressMaxConcurrent, "max-concurrent", defaults.MaxConcurrent, "Most runs in flight at once")
	stressCmd.Flags().StringVar(&stressThreshold, "threshold", "", `Pass/fail thresholds (e.g., "p95<500ms,errors<1%")`)
	stressCmd.Flags().BoolVar(&stressNoProgress, "no-progress", false, "Hide the live progress display")
	stressCmd.Flags().BoolVar(&stressJSON, "json", false, "Write the summary as JSON")
}

func stressCommand(cmd *cobra.Command, args []string) error {
	settings, _, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	log := newLogger(cmd, settings)

	thresholds, err := stress.ParseThresholds(stressThreshold)
	if err != nil {
		return &exitError{code: ExitUsageError, err: err}
	}
	cfg := &stress.Config{
		Duration:      stressDuration,
		Rate:          stressRate,
		MaxConcurrent: stressMaxConcurrent,
		Thresholds:    thresholds,
	}
	if err := cfg.Validate(); err != nil {
		return &exitError{code: ExitUsageError, err: err}
	}

	tokens, err := newTokenSource(settings, log)
	if err != nil {
		return &exitError{code: ExitUsageError, err: err}
	}
	rc := runnerConfig(settings)
	rc.Auth = tokens

	collector, err := newMetricsCollector(cmd, settings, log, stressJSON)
	if err != nil {
		return &exitError{code: ExitUsageError, err: err}
	}
	if collector != nil {
		defer collector.Close()
	}

	reporter := stress.NewReporter(
		stress.WithWriter(cmd.OutOrStdout()),
		stress.WithNoColor(settings.GetNoColor()),
		stress.WithNoProgress(stressNoProgress),
		stress.WithVerbose(settings.GetVerbose()),
		stress.WithJSON(stressJSON),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r := stress.NewRunner(cfg, rc,
		stress.WithReporter(reporter),
		stress.WithLogger(log),
	)
	result, err := r.Run(ctx)
	if err != nil {
		var serr *runner.StepError
		if errors.As(err, &serr) && serr.Kind == runner.KindConfig {
			return &exitError{code: ExitConfigError, err: err}
		}
		return fmt.Errorf("stress test failed: %w", err)
	}

	if collector != nil {
		if err := collector.Export(metrics.FromStress(result)); err != nil {
			log.WithError(err).Warn("metrics export failed")
		}
	}

	if !result.Passed {
		return &exitError{code: ExitTestFailure}
	}
	return nil
}
