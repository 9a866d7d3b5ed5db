// Package metrics exports probe results to monitoring systems: Prometheus
// text format, JSON and DataDog.
package metrics

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/abdul-hamid-achik/statusprobe/packages/core/runner"
	"github.com/abdul-hamid-achik/statusprobe/packages/stress"
)

// RunMetrics is the metric view of one probe run.
type RunMetrics struct {
	RunID      string        `json:"run_id"`
	APIBase    string        `json:"api_base"`
	Passed     bool          `json:"passed"`
	State      string        `json:"state"`
	Kind       string        `json:"kind,omitempty"`
	DurationMs float64       `json:"duration_ms"`
	Steps      []StepMetrics `json:"steps"`
	Timestamp  time.Time     `json:"timestamp"`
}

type StepMetrics struct {
	Name       string  `json:"name"`
	Status     string  `json:"status"`
	StatusCode int     `json:"status_code,omitempty"`
	DurationMs float64 `json:"duration_ms"`
}

// Aggregate sums up every run recorded so far.
type Aggregate struct {
	APIBase         string                    `json:"api_base"`
	Runs            int64                     `json:"runs"`
	Passed          int64                     `json:"passed"`
	Failed          int64                     `json:"failed"`
	Warnings        int64                     `json:"warnings"`
	LastPassed      bool                      `json:"last_passed"`
	LastRunAt       time.Time                 `json:"last_run_at"`
	TotalDurationMs float64                   `json:"total_duration_ms"`
	MinDurationMs   float64                   `json:"min_duration_ms"`
	MaxDurationMs   float64                   `json:"max_duration_ms"`
	AvgDurationMs   float64                   `json:"avg_duration_ms"`
	P50DurationMs   float64                   `json:"p50_duration_ms,omitempty"`
	P95DurationMs   float64                   `json:"p95_duration_ms,omitempty"`
	P99DurationMs   float64                   `json:"p99_duration_ms,omitempty"`
	Failures        map[string]int64          `json:"failures"`
	ByStep          map[string]*StepAggregate `json:"by_step"`
}

type StepAggregate struct {
	Name          string  `json:"name"`
	Total         int64   `json:"total"`
	Failed        int64   `json:"failed"`
	AvgDurationMs float64 `json:"avg_duration_ms"`
	MinDurationMs float64 `json:"min_duration_ms"`
	MaxDurationMs float64 `json:"max_duration_ms"`
}

func newAggregate() *Aggregate {
	return &Aggregate{
		Failures: make(map[string]int64),
		ByStep:   make(map[string]*StepAggregate),
	}
}

// Exporter sends an aggregate to its destination.
type Exporter interface {
	Export(agg *Aggregate) error
	Close() error
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

// FromRun converts a finished run.
func FromRun(run *runner.RunResult) *RunMetrics {
	m := &RunMetrics{
		RunID:      run.RunID,
		APIBase:    run.APIBase,
		Passed:     run.Passed,
		State:      run.State.String(),
		DurationMs: ms(run.Duration),
		Timestamp:  time.Now(),
	}
	if !run.Passed {
		m.Kind = runner.KindOf(run.Err).String()
	}
	for _, s := range run.Steps {
		m.Steps = append(m.Steps, StepMetrics{
			Name:       s.Name,
			Status:     string(s.Status),
			StatusCode: s.StatusCode,
			DurationMs: ms(s.Duration),
		})
	}
	return m
}

// FromStress converts a stress test summary. The percentiles are only
// known for stress results.
func FromStress(result *stress.Result) *Aggregate {
	s := result.Summary
	agg := newAggregate()
	agg.APIBase = result.APIBase
	agg.Runs = s.Runs
	agg.Passed = s.Passed
	agg.Failed = s.Failed
	agg.Warnings = s.Warnings
	agg.LastPassed = result.Passed
	agg.LastRunAt = time.Now()
	agg.TotalDurationMs = ms(s.Mean) * float64(s.Runs)
	agg.MinDurationMs = ms(s.Min)
	agg.MaxDurationMs = ms(s.Max)
	agg.AvgDurationMs = ms(s.Mean)
	agg.P50DurationMs = ms(s.P50)
	agg.P95DurationMs = ms(s.P95)
	agg.P99DurationMs = ms(s.P99)
	for kind, n := range s.Failures {
		agg.Failures[kind] = n
	}
	for _, step := range s.Steps {
		agg.ByStep[step.Name] = &StepAggregate{
			Name:          step.Name,
			Total:         step.Total,
			Failed:        step.Failed,
			AvgDurationMs: ms(step.Mean),
		}
	}
	return agg
}

// Collector records runs and hands the aggregate to its exporters.
type Collector struct {
	mu        sync.Mutex
	runs      []*RunMetrics
	aggregate *Aggregate
	exporters []Exporter
}

func NewCollector(exporters ...Exporter) *Collector {
	return &Collector{
		aggregate: newAggregate(),
		exporters: exporters,
	}
}

func (c *Collector) AddExporter(exp Exporter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.exporters = append(c.exporters, exp)
}

// Record adds a finished run to the aggregate.
func (c *Collector) Record(run *runner.RunResult) *RunMetrics {
	m := FromRun(run)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.runs = append(c.runs, m)
	c.update(m, run.Warnings() > 0)
	return m
}

func (c *Collector) update(m *RunMetrics, warned bool) {
	a := c.aggregate
	a.APIBase = m.APIBase
	a.Runs++
	a.LastPassed = m.Passed
	a.LastRunAt = m.Timestamp
	if m.Passed {
		a.Passed++
		if warned {
			a.Warnings++
		}
	} else {
		a.Failed++
		a.Failures[m.Kind]++
	}

	a.TotalDurationMs += m.DurationMs
	if a.Runs == 1 || m.DurationMs < a.MinDurationMs {
		a.MinDurationMs = m.DurationMs
	}
	if m.DurationMs > a.MaxDurationMs {
		a.MaxDurationMs = m.DurationMs
	}
	a.AvgDurationMs = a.TotalDurationMs / float64(a.Runs)

	for _, s := range m.Steps {
		sa, ok := a.ByStep[s.Name]
		if !ok {
			sa = &StepAggregate{Name: s.Name, MinDurationMs: s.DurationMs}
			a.ByStep[s.Name] = sa
		}
		sa.Total++
		if s.Status == string(runner.StatusFailed) {
			sa.Failed++
		}
		if s.DurationMs < sa.MinDurationMs {
			sa.MinDurationMs = s.DurationMs
		}
		if s.DurationMs > sa.MaxDurationMs {
			sa.MaxDurationMs = s.DurationMs
		}
		sa.AvgDurationMs = (sa.AvgDurationMs*float64(sa.Total-1) + s.DurationMs) / float64(sa.Total)
	}
}

// Runs returns the recorded runs, oldest first.
func (c *Collector) Runs() []*RunMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*RunMetrics(nil), c.runs...)
}

// GetAggregate returns a copy of the aggregate.
func (c *Collector) GetAggregate() *Aggregate {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.aggregate.clone()
}

func (a *Aggregate) clone() *Aggregate {
	out := *a
	out.Failures = make(map[string]int64, len(a.Failures))
	for k, v := range a.Failures {
		out.Failures[k] = v
	}
	out.ByStep = make(map[string]*StepAggregate, len(a.ByStep))
	for k, v := range a.ByStep {
		step := *v
		out.ByStep[k] = &step
	}
	return &out
}

// Flush exports the current aggregate to every exporter.
func (c *Collector) Flush() error {
	return c.Export(c.GetAggregate())
}

// Export sends agg to every exporter, collecting their errors.
func (c *Collector) Export(agg *Aggregate) error {
	var errs []error
	for _, exp := range c.list() {
		if err := exp.Export(agg); err != nil {
			errs = append(errs, fmt.Errorf("%T: %w", exp, err))
		}
	}
	return errors.Join(errs...)
}

func (c *Collector) list() []Exporter {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Exporter(nil), c.exporters...)
}

func (c *Collector) Close() error {
	var errs []error
	for _, exp := range c.list() {
		if err := exp.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
