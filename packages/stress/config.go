// Package stress repeats the smoke test under load. Full probe runs are
// started at a fixed rate for a fixed duration with a cap on the runs in
// flight, and run and per-step latencies are collected for threshold checks.
package stress

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for a stress test
type Config struct {
	Duration      time.Duration
	Rate          float64 // runs started per second
	MaxConcurrent int     // runs in flight at once
	Thresholds    Thresholds
}

// Thresholds defines pass/fail criteria. Latencies apply to whole runs.
type Thresholds struct {
	P50        time.Duration
	P95        time.Duration
	P99        time.Duration
	MaxLatency time.Duration
	ErrorRate  float64 // 0.0 - 1.0
	MinRPS     float64 // runs per second
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Duration:      30 * time.Second,
		Rate:          2,
		MaxConcurrent: 10,
	}
}

func (c *Config) Validate() error {
	if c.Duration <= 0 {
		return fmt.Errorf("duration must be positive")
	}
	if c.Rate <= 0 {
		return fmt.Errorf("rate must be positive")
	}
	if c.MaxConcurrent < 1 {
		return fmt.Errorf("max concurrent runs must be at least 1")
	}
	return nil
}

var thresholdPattern = regexp.MustCompile(`^(\w+)\s*([<>]=?)\s*(.+)$`)

// ParseThresholds parses a threshold string like "p95<200ms,errors<0.1%"
func ParseThresholds(s string) (Thresholds, error) {
	var t Thresholds
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if err := parseThresholdPart(part, &t); err != nil {
			return t, err
		}
	}
	return t, nil
}

func parseThresholdPart(part string, t *Thresholds) error {
	matches := thresholdPattern.FindStringSubmatch(part)
	if len(matches) != 4 {
		return fmt.Errorf("invalid threshold format: %s", part)
	}
	metric := strings.ToLower(matches[1])
	op := matches[2]
	value := strings.TrimSpace(matches[3])

	upper := func(name string, target *time.Duration) error {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for %s: %s", name, value)
		}
		if op != "<" && op != "<=" {
			return fmt.Errorf("%s threshold must use < or <=", name)
		}
		*target = d
		return nil
	}

	switch metric {
	case "p50":
		return upper("p50", &t.P50)
	case "p95":
		return upper("p95", &t.P95)
	case "p99":
		return upper("p99", &t.P99)
	case "max", "maxlatency":
		return upper("max latency", &t.MaxLatency)

	case "errors", "error", "errorrate":
		percent := strings.HasSuffix(value, "%")
		f, err := strconv.ParseFloat(strings.TrimSuffix(value, "%"), 64)
		if err != nil {
			return fmt.Errorf("invalid error rate: %s", value)
		}
		if percent {
			f /= 100
		}
		if op != "<" && op != "<=" {
			return fmt.Errorf("error rate threshold must use < or <=")
		}
		t.ErrorRate = f

	case "rps", "rate":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid RPS: %s", value)
		}
		if op != ">" && op != ">=" {
			return fmt.Errorf("RPS threshold must use > or >=")
		}
		t.MinRPS = f

	default:
		return fmt.Errorf("unknown threshold metric: %s", metric)
	}
	return nil
}

// HasThresholds returns true if any thresholds are configured
func (t *Thresholds) HasThresholds() bool {
	return t.P50 > 0 || t.P95 > 0 || t.P99 > 0 || t.MaxLatency > 0 || t.ErrorRate > 0 || t.MinRPS > 0
}

// ThresholdResult holds the result of evaluating a threshold
type ThresholdResult struct {
	Name     string `json:"name"`
	Passed   bool   `json:"passed"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
}
