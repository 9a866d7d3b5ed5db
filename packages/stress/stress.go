package stress

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/abdul-hamid-achik/statusprobe/packages/core/runner"
	"github.com/abdul-hamid-achik/statusprobe/packages/http"
	"github.com/sirupsen/logrus"
)

const progressInterval = 500 * time.Millisecond

// Runner starts smoke-test runs under load.
type Runner struct {
	config    *Config
	runConfig *runner.Config
	client    *http.Client
	reporter  *Reporter
	log       logrus.FieldLogger
	scheduler *Scheduler
	metrics   *Metrics
}

type RunnerOption func(*Runner)

// WithHTTPClient shares one client, and its connection pool, across runs.
func WithHTTPClient(client *http.Client) RunnerOption {
	return func(r *Runner) {
		r.client = client
	}
}

func WithReporter(reporter *Reporter) RunnerOption {
	return func(r *Runner) {
		r.reporter = reporter
	}
}

func WithLogger(log logrus.FieldLogger) RunnerOption {
	return func(r *Runner) {
		if log != nil {
			r.log = log
		}
	}
}

func NewRunner(config *Config, runConfig *runner.Config, opts ...RunnerOption) *Runner {
	if config == nil {
		config = DefaultConfig()
	}
	if runConfig == nil {
		runConfig = &runner.Config{}
	}
	r := &Runner{
		config:    config,
		runConfig: runConfig,
		log:       logrus.StandardLogger(),
		scheduler: NewScheduler(config),
		metrics:   NewMetrics(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.reporter == nil {
		r.reporter = NewReporter(WithNoProgress(true))
	}
	if r.client == nil {
		timeout := runConfig.Timeout
		if timeout <= 0 {
			timeout = http.DefaultTimeout
		}
		r.client = http.NewClient(
			http.WithTimeout(timeout),
			http.WithValidateSSL(!runConfig.Insecure),
			http.WithProxy(runConfig.Proxy),
			http.WithLogger(r.log),
		)
	}
	return r
}

// Result holds the final result of a stress test
type Result struct {
	APIBase    string            `json:"apiBase"`
	Summary    *Summary          `json:"summary"`
	Thresholds []ThresholdResult `json:"thresholds,omitempty"`
	Passed     bool              `json:"passed"`
}

// HasThresholdFailures returns true if any thresholds failed
func (r *Result) HasThresholdFailures() bool {
	for _, tr := range r.Thresholds {
		if !tr.Passed {
			return true
		}
	}
	return false
}

// Run resolves the backend URL once, failing fast on a config error, then
// starts runs until the configured duration elapses or ctx is done.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	if err := r.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	probe := runner.NewRunner(r.runConfig, runner.WithHTTPClient(r.client), runner.WithLogger(r.log))
	apiBase, err := probe.Resolve()
	if err != nil {
		return nil, &runner.StepError{
			Kind:    runner.KindConfig,
			Step:    runner.StepConfig,
			Message: fmt.Sprintf("Could not get backend URL: %v", err),
			Err:     err,
		}
	}

	r.reporter.Header(apiBase, r.config)
	r.metrics.Start()

	loadCtx, cancel := context.WithTimeout(ctx, r.config.Duration)
	defer cancel()

	progressDone := make(chan struct{})
	var progressWG sync.WaitGroup
	progressWG.Add(1)
	go func() {
		defer progressWG.Done()
		r.progressLoop(progressDone)
	}()

	r.load(loadCtx)

	r.metrics.Stop()
	close(progressDone)
	progressWG.Wait()
	r.reporter.ClearProgress()

	summary := r.metrics.GetSummary()
	var thresholds []ThresholdResult
	if r.config.Thresholds.HasThresholds() {
		thresholds = r.metrics.EvaluateThresholds(r.config.Thresholds)
	}

	result := &Result{
		APIBase:    apiBase,
		Summary:    summary,
		Thresholds: thresholds,
	}
	result.Passed = !result.HasThresholdFailures()

	if err := r.reporter.Report(result); err != nil {
		r.log.WithError(err).Error("error writing stress report")
	}

	r.log.WithFields(logrus.Fields{
		"runs":   summary.Runs,
		"failed": summary.Failed,
		"passed": result.Passed,
	}).Debug("stress test finished")
	return result, nil
}

func (r *Runner) load(ctx context.Context) {
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		if err := r.scheduler.Wait(ctx); err != nil {
			return
		}
		if err := r.scheduler.Acquire(ctx); err != nil {
			return
		}

		wg.Add(1)
		r.metrics.IncrementInFlight()
		go func() {
			defer wg.Done()
			defer r.scheduler.Release()
			defer r.metrics.DecrementInFlight()
			r.runOnce(ctx)
		}()
	}
}

func (r *Runner) runOnce(ctx context.Context) {
	probe := runner.NewRunner(r.runConfig, runner.WithHTTPClient(r.client), runner.WithLogger(r.log))
	result := probe.Run(ctx)

	if !result.Passed && ctx.Err() != nil {
		r.metrics.RecordInterrupted()
		return
	}
	r.metrics.RecordRun(result)
	if !result.Passed {
		r.log.WithFields(logrus.Fields{
			"run_id": result.RunID,
			"state":  result.State.String(),
		}).WithError(result.Err).Debug("run failed")
	}
}

func (r *Runner) progressLoop(done chan struct{}) {
	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			r.reporter.Progress(r.metrics.GetCurrentStats(), r.config.Duration)
		}
	}
}
