package stress

import (
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/abdul-hamid-achik/statusprobe/packages/core/runner"
)

// Latencies are recorded in microseconds, from 1us to 60s.
const (
	minLatencyUs = 1
	maxLatencyUs = 60_000_000
	sigFigs      = 3
)

// Metrics collects and aggregates stress test metrics
type Metrics struct {
	mu sync.RWMutex

	runs        atomic.Int64
	passed      atomic.Int64
	warned      atomic.Int64
	failed      atomic.Int64
	interrupted atomic.Int64
	inFlight    atomic.Int32

	histogram *hdrhistogram.Histogram
	steps     map[string]*stepMetrics
	failures  map[string]int64

	startTime time.Time
	endTime   time.Time
}

type stepMetrics struct {
	total     int64
	failed    int64
	histogram *hdrhistogram.Histogram
}

func NewMetrics() *Metrics {
	return &Metrics{
		histogram: newHistogram(),
		steps:     make(map[string]*stepMetrics),
		failures:  make(map[string]int64),
	}
}

func newHistogram() *hdrhistogram.Histogram {
	return hdrhistogram.New(minLatencyUs, maxLatencyUs, sigFigs)
}

func clampUs(d time.Duration) int64 {
	us := d.Microseconds()
	if us < minLatencyUs {
		return minLatencyUs
	}
	if us > maxLatencyUs {
		return maxLatencyUs
	}
	return us
}

func usToDuration(us int64) time.Duration {
	return time.Duration(us) * time.Microsecond
}

func (m *Metrics) Start() {
	m.mu.Lock()
	m.startTime = time.Now()
	m.mu.Unlock()
}

func (m *Metrics) Stop() {
	m.mu.Lock()
	m.endTime = time.Now()
	m.mu.Unlock()
}

// RecordRun adds a finished run. A run that passed with warnings counts as
// passed and is also counted in Warnings.
func (m *Metrics) RecordRun(run *runner.RunResult) {
	m.runs.Add(1)
	switch {
	case !run.Passed:
		m.failed.Add(1)
	case run.Warnings() > 0:
		m.passed.Add(1)
		m.warned.Add(1)
	default:
		m.passed.Add(1)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	_ = m.histogram.RecordValue(clampUs(run.Duration))
	for _, step := range run.Steps {
		sm, ok := m.steps[step.Name]
		if !ok {
			sm = &stepMetrics{histogram: newHistogram()}
			m.steps[step.Name] = sm
		}
		sm.total++
		if step.Status == runner.StatusFailed {
			sm.failed++
			m.failures[step.Kind.String()]++
		}
		if step.Duration > 0 {
			_ = sm.histogram.RecordValue(clampUs(step.Duration))
		}
	}
}

// RecordInterrupted counts a run cut short by the end of the test. Such runs
// are left out of the error rate.
func (m *Metrics) RecordInterrupted() {
	m.interrupted.Add(1)
}

func (m *Metrics) IncrementInFlight() {
	m.inFlight.Add(1)
}

func (m *Metrics) DecrementInFlight() {
	m.inFlight.Add(-1)
}

// Summary is the final metrics summary
type Summary struct {
	Duration    time.Duration `json:"duration"`
	Runs        int64         `json:"runs"`
	Passed      int64         `json:"passed"`
	Warnings    int64         `json:"warnings"`
	Failed      int64         `json:"failed"`
	Interrupted int64         `json:"interrupted"`

	RPS         float64 `json:"rps"`
	SuccessRate float64 `json:"successRate"`
	ErrorRate   float64 `json:"errorRate"`

	P50    time.Duration `json:"p50"`
	P95    time.Duration `json:"p95"`
	P99    time.Duration `json:"p99"`
	Min    time.Duration `json:"min"`
	Max    time.Duration `json:"max"`
	Mean   time.Duration `json:"mean"`
	StdDev time.Duration `json:"stddev"`

	// Steps lists the probe steps in run order.
	Steps []StepSummary `json:"steps"`
	// Failures counts failed runs by error kind.
	Failures map[string]int64 `json:"failures,omitempty"`
}

type StepSummary struct {
	Name   string        `json:"name"`
	Total  int64         `json:"total"`
	Failed int64         `json:"failed"`
	P50    time.Duration `json:"p50"`
	P95    time.Duration `json:"p95"`
	P99    time.Duration `json:"p99"`
	Mean   time.Duration `json:"mean"`
}

func (m *Metrics) elapsed() time.Duration {
	if m.endTime.IsZero() {
		return time.Since(m.startTime)
	}
	return m.endTime.Sub(m.startTime)
}

func (m *Metrics) GetSummary() *Summary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	duration := m.elapsed()
	runs := m.runs.Load()
	passed := m.passed.Load()
	failed := m.failed.Load()

	s := &Summary{
		Duration:    duration,
		Runs:        runs,
		Passed:      passed,
		Warnings:    m.warned.Load(),
		Failed:      failed,
		Interrupted: m.interrupted.Load(),
		P50:         usToDuration(m.histogram.ValueAtQuantile(50)),
		P95:         usToDuration(m.histogram.ValueAtQuantile(95)),
		P99:         usToDuration(m.histogram.ValueAtQuantile(99)),
		Min:         usToDuration(m.histogram.Min()),
		Max:         usToDuration(m.histogram.Max()),
		Mean:        usToDuration(int64(m.histogram.Mean())),
		StdDev:      usToDuration(int64(m.histogram.StdDev())),
	}
	if duration.Seconds() > 0 {
		s.RPS = float64(runs) / duration.Seconds()
	}
	if runs > 0 {
		s.SuccessRate = float64(passed) / float64(runs)
		s.ErrorRate = float64(failed) / float64(runs)
	}

	order := []string{runner.StepConfig, runner.StepAuth}
	for _, step := range runner.Steps() {
		order = append(order, step.Name)
	}
	for _, name := range order {
		sm, ok := m.steps[name]
		if !ok {
			continue
		}
		s.Steps = append(s.Steps, StepSummary{
			Name:   name,
			Total:  sm.total,
			Failed: sm.failed,
			P50:    usToDuration(sm.histogram.ValueAtQuantile(50)),
			P95:    usToDuration(sm.histogram.ValueAtQuantile(95)),
			P99:    usToDuration(sm.histogram.ValueAtQuantile(99)),
			Mean:   usToDuration(int64(sm.histogram.Mean())),
		})
	}

	if len(m.failures) > 0 {
		s.Failures = make(map[string]int64, len(m.failures))
		for kind, n := range m.failures {
			s.Failures[kind] = n
		}
	}
	return s
}

// CurrentStats is a point-in-time view for the progress display.
type CurrentStats struct {
	Elapsed   time.Duration
	Runs      int64
	Passed    int64
	Failed    int64
	RPS       float64
	P50       time.Duration
	P95       time.Duration
	Max       time.Duration
	InFlight  int32
	ErrorRate float64
}

func (m *Metrics) GetCurrentStats() CurrentStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	elapsed := time.Since(m.startTime)
	runs := m.runs.Load()
	failed := m.failed.Load()

	stats := CurrentStats{
		Elapsed:  elapsed,
		Runs:     runs,
		Passed:   m.passed.Load(),
		Failed:   failed,
		P50:      usToDuration(m.histogram.ValueAtQuantile(50)),
		P95:      usToDuration(m.histogram.ValueAtQuantile(95)),
		Max:      usToDuration(m.histogram.Max()),
		InFlight: m.inFlight.Load(),
	}
	if elapsed.Seconds() > 0 {
		stats.RPS = float64(runs) / elapsed.Seconds()
	}
	if runs > 0 {
		stats.ErrorRate = float64(failed) / float64(runs)
	}
	return stats
}

// EvaluateThresholds evaluates the thresholds against the summary
func (m *Metrics) EvaluateThresholds(t Thresholds) []ThresholdResult {
	summary := m.GetSummary()
	var results []ThresholdResult

	latency := func(name string, limit, actual time.Duration) {
		if limit <= 0 {
			return
		}
		results = append(results, ThresholdResult{
			Name:     name,
			Passed:   actual <= limit,
			Expected: "< " + limit.String(),
			Actual:   actual.String(),
		})
	}
	latency("p50", t.P50, summary.P50)
	latency("p95", t.P95, summary.P95)
	latency("p99", t.P99, summary.P99)
	latency("max latency", t.MaxLatency, summary.Max)

	if t.ErrorRate > 0 {
		results = append(results, ThresholdResult{
			Name:     "error rate",
			Passed:   summary.ErrorRate <= t.ErrorRate,
			Expected: "< " + formatPercent(t.ErrorRate),
			Actual:   formatPercent(summary.ErrorRate),
		})
	}

	if t.MinRPS > 0 {
		results = append(results, ThresholdResult{
			Name:     "min RPS",
			Passed:   summary.RPS >= t.MinRPS,
			Expected: "> " + formatFloat(t.MinRPS),
			Actual:   formatFloat(summary.RPS),
		})
	}

	return results
}

func formatPercent(f float64) string {
	return formatFloat(f*100) + "%"
}

func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'f', 2, 64)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}
