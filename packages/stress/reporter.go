package stress

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
)

// Reporter handles output for stress tests
type Reporter struct {
	writer     io.Writer
	noColor    bool
	noProgress bool
	verbose    bool
	json       bool

	green  *color.Color
	red    *color.Color
	yellow *color.Color
	cyan   *color.Color
	bold   *color.Color
}

type ReporterOption func(*Reporter)

func WithWriter(w io.Writer) ReporterOption {
	return func(r *Reporter) {
		r.writer = w
	}
}

func WithNoColor(noColor bool) ReporterOption {
	return func(r *Reporter) {
		r.noColor = noColor
	}
}

// WithNoProgress disables real-time progress display
func WithNoProgress(noProgress bool) ReporterOption {
	return func(r *Reporter) {
		r.noProgress = noProgress
	}
}

// WithVerbose adds the per-step breakdown to the summary.
func WithVerbose(verbose bool) ReporterOption {
	return func(r *Reporter) {
		r.verbose = verbose
	}
}

// WithJSON replaces the console output with a single JSON document.
func WithJSON(j bool) ReporterOption {
	return func(r *Reporter) {
		r.json = j
		if j {
			r.noProgress = true
		}
	}
}

func NewReporter(opts ...ReporterOption) *Reporter {
	r := &Reporter{
		writer: os.Stdout,
	}
	for _, opt := range opts {
		opt(r)
	}

	newColor := func(attrs ...color.Attribute) *color.Color {
		c := color.New(attrs...)
		if r.noColor {
			c.DisableColor()
		}
		return c
	}
	r.green = newColor(color.FgGreen)
	r.red = newColor(color.FgRed)
	r.yellow = newColor(color.FgYellow)
	r.cyan = newColor(color.FgCyan)
	r.bold = newColor(color.Bold)
	return r
}

// Header prints the test header
func (r *Reporter) Header(apiBase string, config *Config) {
	if r.json {
		return
	}
	fmt.Fprintln(r.writer)
	r.cyan.Fprintf(r.writer, "Stress testing backend APIs at: %s\n", apiBase)
	fmt.Fprintf(r.writer, "Target: %s runs/s | Duration: %s | Max concurrent: %d\n",
		formatFloat(config.Rate), config.Duration, config.MaxConcurrent)
	fmt.Fprintln(r.writer)
}

// Progress redraws the live progress block in place.
func (r *Reporter) Progress(stats CurrentStats, duration time.Duration) {
	if r.noProgress {
		return
	}

	fmt.Fprint(r.writer, "\r\033[K")

	progress := float64(stats.Elapsed) / float64(duration)
	if progress > 1 {
		progress = 1
	}
	barWidth := 30
	filled := int(progress * float64(barWidth))
	bar := strings.Repeat("━", filled) + strings.Repeat("─", barWidth-filled)
	fmt.Fprintf(r.writer, "Progress %s %s / %s\n", bar, formatDuration(stats.Elapsed), formatDuration(duration))

	fmt.Fprintf(r.writer, "Runs: ")
	r.bold.Fprintf(r.writer, "%s", formatNumber(stats.Runs))
	fmt.Fprintf(r.writer, " total | ")
	r.green.Fprintf(r.writer, "%s", formatNumber(stats.Passed))
	fmt.Fprintf(r.writer, " passed | ")
	if stats.Failed > 0 {
		r.red.Fprintf(r.writer, "%s", formatNumber(stats.Failed))
	} else {
		fmt.Fprintf(r.writer, "%s", formatNumber(stats.Failed))
	}
	fmt.Fprintf(r.writer, " failed (%.2f%%) | in flight: %d\n", stats.ErrorRate*100, stats.InFlight)

	fmt.Fprintf(r.writer, "Latency: p50: %s | p95: %s | max: %s\n",
		formatLatency(stats.P50), formatLatency(stats.P95), formatLatency(stats.Max))

	fmt.Fprint(r.writer, "\033[3A")
}

// ClearProgress clears the progress display
func (r *Reporter) ClearProgress() {
	if r.noProgress {
		return
	}
	fmt.Fprint(r.writer, "\033[3B\r\033[K\033[A\r\033[K\033[A\r\033[K\033[A\r\033[K")
}

// Report writes the final result in the configured format.
func (r *Reporter) Report(result *Result) error {
	if r.json {
		return r.JSONSummary(result)
	}
	r.Summary(result)
	return nil
}

// Summary prints the final summary
func (r *Reporter) Summary(result *Result) {
	summary := result.Summary

	fmt.Fprintln(r.writer)
	r.bold.Fprintln(r.writer, "STRESS TEST SUMMARY")
	fmt.Fprintln(r.writer, strings.Repeat("─", 40))

	fmt.Fprintf(r.writer, "Duration:   %s\n", formatDuration(summary.Duration))
	fmt.Fprintf(r.writer, "Total:      ")
	r.bold.Fprintf(r.writer, "%s", formatNumber(summary.Runs))
	fmt.Fprintf(r.writer, " runs (%.1f runs/s)\n", summary.RPS)

	fmt.Fprintf(r.writer, "Passed:     ")
	r.green.Fprintf(r.writer, "%s", formatNumber(summary.Passed))
	fmt.Fprintf(r.writer, " (%.1f%%)\n", summary.SuccessRate*100)

	if summary.Warnings > 0 {
		fmt.Fprintf(r.writer, "Warnings:   ")
		r.yellow.Fprintf(r.writer, "%s\n", formatNumber(summary.Warnings))
	}

	fmt.Fprintf(r.writer, "Failed:     ")
	if summary.Failed > 0 {
		r.red.Fprintf(r.writer, "%s", formatNumber(summary.Failed))
	} else {
		fmt.Fprintf(r.writer, "%s", formatNumber(summary.Failed))
	}
	fmt.Fprintf(r.writer, " (%.1f%%)\n", summary.ErrorRate*100)

	if summary.Interrupted > 0 {
		fmt.Fprintf(r.writer, "Cut short:  %s\n", formatNumber(summary.Interrupted))
	}

	if len(summary.Failures) > 0 {
		kinds := make([]string, 0, len(summary.Failures))
		for kind := range summary.Failures {
			kinds = append(kinds, kind)
		}
		sort.Strings(kinds)
		for _, kind := range kinds {
			fmt.Fprintf(r.writer, "  %s: %s\n", kind, formatNumber(summary.Failures[kind]))
		}
	}

	fmt.Fprintln(r.writer)
	r.bold.Fprintln(r.writer, "RUN LATENCY (ms)")
	fmt.Fprintf(r.writer, "  p50: %-6s | p95: %-6s | p99: %-6s | max: %s\n",
		formatLatencyMs(summary.P50),
		formatLatencyMs(summary.P95),
		formatLatencyMs(summary.P99),
		formatLatencyMs(summary.Max))
	fmt.Fprintf(r.writer, "  min: %-6s | mean: %-5s | stddev: %s\n",
		formatLatencyMs(summary.Min),
		formatLatencyMs(summary.Mean),
		formatLatencyMs(summary.StdDev))

	if r.verbose && len(summary.Steps) > 0 {
		fmt.Fprintln(r.writer)
		r.bold.Fprintln(r.writer, "PER-STEP BREAKDOWN")
		for _, step := range summary.Steps {
			fmt.Fprintf(r.writer, "  %s:\n", step.Name)
			fmt.Fprintf(r.writer, "    Total: %s | Failed: %s\n", formatNumber(step.Total), formatNumber(step.Failed))
			fmt.Fprintf(r.writer, "    p50: %s | p95: %s | p99: %s\n",
				formatLatency(step.P50), formatLatency(step.P95), formatLatency(step.P99))
		}
	}

	if len(result.Thresholds) > 0 {
		fmt.Fprintln(r.writer)
		r.bold.Fprintln(r.writer, "THRESHOLDS")
		for _, tr := range result.Thresholds {
			if tr.Passed {
				r.green.Fprintf(r.writer, "  ✓ ")
			} else {
				r.red.Fprintf(r.writer, "  ✗ ")
			}
			fmt.Fprintf(r.writer, "%s %s    (actual: %s)\n", tr.Name, tr.Expected, tr.Actual)
		}

		fmt.Fprintln(r.writer)
		if result.Passed {
			r.green.Fprintln(r.writer, "All thresholds passed!")
		} else {
			r.red.Fprintln(r.writer, "Some thresholds failed!")
		}
	}

	fmt.Fprintln(r.writer)
}

// JSONSummary writes the result as indented JSON with latencies in
// milliseconds.
func (r *Reporter) JSONSummary(result *Result) error {
	summary := result.Summary
	ms := func(d time.Duration) float64 {
		return float64(d.Microseconds()) / 1000
	}

	steps := make([]map[string]any, 0, len(summary.Steps))
	for _, s := range summary.Steps {
		steps = append(steps, map[string]any{
			"name":   s.Name,
			"total":  s.Total,
			"failed": s.Failed,
			"p50":    ms(s.P50),
			"p95":    ms(s.P95),
			"p99":    ms(s.P99),
			"mean":   ms(s.Mean),
		})
	}

	output := map[string]any{
		"apiBase":  result.APIBase,
		"passed":   result.Passed,
		"duration": summary.Duration.String(),
		"runs": map[string]any{
			"total":       summary.Runs,
			"passed":      summary.Passed,
			"warnings":    summary.Warnings,
			"failed":      summary.Failed,
			"interrupted": summary.Interrupted,
		},
		"rates": map[string]any{
			"rps":         summary.RPS,
			"successRate": summary.SuccessRate,
			"errorRate":   summary.ErrorRate,
		},
		"latency": map[string]any{
			"p50":    ms(summary.P50),
			"p95":    ms(summary.P95),
			"p99":    ms(summary.P99),
			"min":    ms(summary.Min),
			"max":    ms(summary.Max),
			"mean":   ms(summary.Mean),
			"stddev": ms(summary.StdDev),
		},
		"steps": steps,
	}
	if len(summary.Failures) > 0 {
		output["failures"] = summary.Failures
	}
	if len(result.Thresholds) > 0 {
		output["thresholds"] = result.Thresholds
	}

	encoder := json.NewEncoder(r.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60
	if seconds == 0 {
		return fmt.Sprintf("%dm", minutes)
	}
	return fmt.Sprintf("%dm %02ds", minutes, seconds)
}

func formatLatency(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%dμs", d.Microseconds())
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func formatLatencyMs(d time.Duration) string {
	ms := float64(d.Microseconds()) / 1000
	if ms < 1 {
		return fmt.Sprintf("%.2f", ms)
	}
	if ms < 10 {
		return fmt.Sprintf("%.1f", ms)
	}
	return fmt.Sprintf("%.0f", ms)
}

// formatNumber formats a number with commas
func formatNumber(n int64) string {
	s := fmt.Sprintf("%d", n)
	if n < 1000 {
		return s
	}

	result := make([]byte, 0, len(s)+(len(s)-1)/3)
	start := len(s) % 3
	if start == 0 {
		start = 3
	}
	result = append(result, s[:start]...)
	for i := start; i < len(s); i += 3 {
		result = append(result, ',')
		result = append(result, s[i:i+3]...)
	}
	return string(result)
}
