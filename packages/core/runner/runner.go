package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/abdul-hamid-achik/statusprobe/packages/core/env"
	"github.com/abdul-hamid-achik/statusprobe/packages/http"
	"github.com/abdul-hamid-achik/statusprobe/packages/probe"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultAPIPrefix is appended to the resolved backend URL
	DefaultAPIPrefix = "/api"
)

type Config struct {
	EnvFile string
	URLKey  string
	// BaseURL skips the env file when set.
	BaseURL    string
	APIPrefix  string
	ClientName string
	Timeout    time.Duration
	Insecure   bool
	Proxy      string
	Headers    map[string]string
	// Auth, when set, supplies a bearer token sent with every probe.
	Auth TokenSource
}

// TokenSource hands out access tokens. Implementations cache tokens so
// that runs sharing a source do not fetch one each.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

func (c *Config) withDefaults() *Config {
	out := *c
	if out.EnvFile == "" {
		out.EnvFile = env.DefaultEnvFile
	}
	if out.URLKey == "" {
		out.URLKey = env.DefaultURLKey
	}
	if out.APIPrefix == "" {
		out.APIPrefix = DefaultAPIPrefix
	}
	if out.ClientName == "" {
		out.ClientName = probe.DefaultClientName
	}
	if out.Timeout <= 0 {
		out.Timeout = http.DefaultTimeout
	}
	return &out
}

type Runner struct {
	client   *http.Client
	config   *Config
	reporter Reporter
	log      logrus.FieldLogger
}

type Option func(*Runner)

func WithReporter(rep Reporter) Option {
	return func(r *Runner) {
		if rep != nil {
			r.reporter = rep
		}
	}
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(r *Runner) {
		if log != nil {
			r.log = log
		}
	}
}

// WithHTTPClient replaces the client built from Config.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Runner) {
		r.client = c
	}
}

func NewRunner(cfg *Config, opts ...Option) *Runner {
	if cfg == nil {
		cfg = &Config{}
	}

	r := &Runner{
		config:   cfg.withDefaults(),
		reporter: nopReporter{},
		log:      logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.client == nil {
		r.client = http.NewClient(
			http.WithTimeout(r.config.Timeout),
			http.WithValidateSSL(!r.config.Insecure),
			http.WithProxy(r.config.Proxy),
			http.WithLogger(r.log),
		)
	}
	return r
}

// Run resolves the backend URL and runs the probes in order, stopping at the
// first failure. It never returns nil.
func (r *Runner) Run(ctx context.Context) *RunResult {
	start := time.Now()
	result := &RunResult{
		RunID:   uuid.NewString(),
		EnvFile: r.config.EnvFile,
		URLKey:  r.config.URLKey,
		State:   StateStart,
	}
	log := r.log.WithField("run_id", result.RunID)

	apiBase, err := r.resolve()
	if err != nil {
		log.WithError(err).Debug("backend URL not resolved")
		r.reporter.OnStart(result)
		step := r.configFailure(err)
		r.reporter.OnStepResult(step)
		return r.finish(result, step, start)
	}
	result.APIBase = apiBase
	log.WithField("api_base", apiBase).Debug("backend URL resolved")
	r.reporter.OnStart(result)

	opts := []probe.Option{
		probe.WithClientName(r.config.ClientName),
		probe.WithHeader(probe.RequestIDHeader, result.RunID),
	}
	for k, v := range r.config.Headers {
		opts = append(opts, probe.WithHeader(k, v))
	}
	if r.config.Auth != nil {
		token, err := r.config.Auth.Token(ctx)
		if err != nil {
			log.WithError(err).Debug("access token not obtained")
			step := r.authFailure(err)
			r.reporter.OnStepResult(step)
			return r.finish(result, step, start)
		}
		opts = append(opts, probe.WithHeader("Authorization", "Bearer "+token))
	}
	prober := probe.New(r.client, apiBase, opts...)

	var createdID any
	actions := map[string]func(context.Context) (*probe.Outcome, error){
		StepRoot: prober.Root,
		StepCreate: func(ctx context.Context) (*probe.Outcome, error) {
			out, id, err := prober.CreateStatus(ctx)
			createdID = id
			return out, err
		},
		StepList: func(ctx context.Context) (*probe.Outcome, error) {
			return prober.ListStatus(ctx, createdID)
		},
	}
	next := map[string]State{
		StepRoot:   StateRootOK,
		StepCreate: StateCreateOK,
		StepList:   StateListChecked,
	}

	for _, step := range Steps() {
		sr := r.runStep(ctx, step, actions[step.Name])
		result.Steps = append(result.Steps, sr)
		if !sr.Passed() {
			return r.finish(result, sr, start)
		}
		result.State = next[step.Name]
		log.WithFields(logrus.Fields{
			"step":  step.Name,
			"state": result.State.String(),
		}).Debug("step passed")
	}

	result.State = StateDone
	return r.finish(result, nil, start)
}

// Resolve returns the API base a run would probe, without sending requests.
func (r *Runner) Resolve() (string, error) {
	return r.resolve()
}

func (r *Runner) resolve() (string, error) {
	var (
		apiBase string
		err     error
	)
	if r.config.BaseURL != "" {
		apiBase = r.config.BaseURL + r.config.APIPrefix
	} else {
		apiBase, err = env.BackendURL(r.config.EnvFile, r.config.URLKey, r.config.APIPrefix)
		if err != nil {
			return "", err
		}
	}
	if err := http.ValidateURL(apiBase); err != nil {
		return "", err
	}
	return apiBase, nil
}

func (r *Runner) configFailure(err error) *StepResult {
	source := r.config.EnvFile
	if r.config.BaseURL != "" {
		source = "--base-url"
	}

	step := &StepResult{
		Number:  0,
		Name:    StepConfig,
		Title:   "Resolving backend URL",
		Status:  StatusFailed,
		Kind:    KindConfig,
		Message: fmt.Sprintf("Could not get backend URL from %s", source),
	}
	switch {
	case errors.Is(err, http.ErrInvalidURL):
		step.Detail = fmt.Sprintf("Invalid backend URL: %v", err)
	case !errors.Is(err, env.ErrKeyNotFound):
		step.Detail = fmt.Sprintf("Error reading %s: %v", r.config.EnvFile, err)
	}
	step.Err = &StepError{Kind: KindConfig, Step: StepConfig, Message: step.Message, Err: err}
	return step
}

// authFailure reports a token that could not be fetched. An unreachable
// token endpoint is a network error, anything else a config error.
func (r *Runner) authFailure(err error) *StepResult {
	kind := KindConfig
	if http.IsNetworkError(err) {
		kind = KindNetwork
	}
	step := &StepResult{
		Number:  0,
		Name:    StepAuth,
		Title:   "Fetching access token",
		Status:  StatusFailed,
		Kind:    kind,
		Message: fmt.Sprintf("Could not get access token: %v", err),
	}
	step.Err = &StepError{Kind: kind, Step: StepAuth, Message: step.Message, Err: err}
	return step
}

// runStep executes one probe. A panic inside the probe is reported as an
// unexpected error rather than crashing the run.
func (r *Runner) runStep(ctx context.Context, step Step, action func(context.Context) (*probe.Outcome, error)) (sr *StepResult) {
	r.reporter.OnStepStart(step)

	start := time.Now()
	sr = &StepResult{
		Number: step.Number,
		Name:   step.Name,
		Title:  step.Title,
	}

	defer func() {
		if p := recover(); p != nil {
			r.fail(sr, fmt.Errorf("panic: %v", p))
		}
		sr.Duration = time.Since(start)
		r.reporter.OnStepResult(sr)
	}()

	out, err := action(ctx)
	sr.record(out)
	if err != nil {
		r.fail(sr, err)
		return sr
	}

	sr.Status = StatusPassed
	sr.Message = out.Message
	if out.Warning {
		sr.Status = StatusWarning
		sr.Kind = KindValidationWarning
	}
	return sr
}

func (r *Runner) fail(sr *StepResult, err error) {
	kind := KindOf(err)
	if kind == KindConfig {
		kind = KindUnexpected
	}

	sr.Status = StatusFailed
	sr.Kind = kind
	switch kind {
	case KindProtocol:
		sr.Message = err.Error()
		var rerr *probe.ResponseError
		if errors.As(err, &rerr) && rerr.EchoBody {
			sr.Detail = "Response: " + rerr.Body
		}
	case KindNetwork:
		sr.Message = fmt.Sprintf("Network error during API testing: %v", err)
	default:
		sr.Message = fmt.Sprintf("Unexpected error during API testing: %v", err)
	}
	sr.Err = &StepError{Kind: kind, Step: sr.Name, Message: sr.Message, Err: err}

	r.log.WithFields(logrus.Fields{
		"step": sr.Name,
		"kind": kind.String(),
	}).WithError(err).Debug("step failed")
}

func (sr *StepResult) record(out *probe.Outcome) {
	if out == nil {
		return
	}
	sr.Request = out.Request
	sr.Assertions = out.Assertions
	sr.Captures = out.Captures
	if out.Request != nil {
		sr.Method = out.Request.Method
		sr.URL = out.Request.URL
	}
	if out.Response != nil {
		sr.Response = out.Response
		sr.StatusCode = out.Response.StatusCode
	}
}

func (r *Runner) finish(result *RunResult, failed *StepResult, start time.Time) *RunResult {
	if failed != nil {
		result.State = StateFailed
		result.Err = failed.Err
		if len(result.Steps) == 0 || result.Steps[len(result.Steps)-1] != failed {
			result.Steps = append(result.Steps, failed)
		}
	}
	result.Passed = result.State == StateDone
	result.Duration = time.Since(start)
	r.reporter.OnFinish(result)
	return result
}
