package output

import (
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/abdul-hamid-achik/statusprobe/packages/core/runner"
)

// JSONOutput represents the complete JSON output structure
type JSONOutput struct {
	RunID    string      `json:"runId"`
	APIBase  string      `json:"apiBase,omitempty"`
	EnvFile  string      `json:"envFile,omitempty"`
	Passed   bool        `json:"passed"`
	State    string      `json:"state"`
	Summary  JSONSummary `json:"summary"`
	Steps    []JSONStep  `json:"steps"`
	Duration float64     `json:"duration"`
	Time     string      `json:"time"`
}

// JSONSummary represents the step summary
type JSONSummary struct {
	Total    int `json:"total"`
	Passed   int `json:"passed"`
	Warnings int `json:"warnings"`
	Failed   int `json:"failed"`
	Skipped  int `json:"skipped"`
}

// JSONStep represents a single step result
type JSONStep struct {
	Number     int             `json:"number"`
	Name       string          `json:"name"`
	Title      string          `json:"title,omitempty"`
	Status     string          `json:"status"`
	Kind       string          `json:"kind,omitempty"`
	Message    string          `json:"message,omitempty"`
	Detail     string          `json:"detail,omitempty"`
	Duration   float64         `json:"duration"`
	Request    *JSONRequest    `json:"request,omitempty"`
	Response   *JSONResponse   `json:"response,omitempty"`
	Assertions []JSONAssertion `json:"assertions,omitempty"`
	Captures   map[string]any  `json:"captures,omitempty"`
}

// JSONRequest represents request details
type JSONRequest struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`
}

// JSONResponse represents response details
type JSONResponse struct {
	StatusCode int               `json:"statusCode"`
	Status     string            `json:"status"`
	Headers    map[string]string `json:"headers,omitempty"`
	Body       string            `json:"body,omitempty"`
	Duration   float64           `json:"duration"`
}

// JSONAssertion represents an assertion result
type JSONAssertion struct {
	Subject  string `json:"subject"`
	Operator string `json:"operator"`
	Expected any    `json:"expected"`
	Actual   any    `json:"actual"`
	Passed   bool   `json:"passed"`
	Message  string `json:"message,omitempty"`
}

const statusSkipped = "skipped"

// JSONFormatter collects the run and writes it as one JSON document on Flush
type JSONFormatter struct {
	writer io.Writer
	run    *runner.RunResult
}

type JSONOption func(*JSONFormatter)

func NewJSONFormatter(opts ...JSONOption) *JSONFormatter {
	f := &JSONFormatter{
		writer: os.Stdout,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func JSONWithWriter(w io.Writer) JSONOption {
	return func(f *JSONFormatter) {
		f.writer = w
	}
}

func (f *JSONFormatter) OnStart(*runner.RunResult)       {}
func (f *JSONFormatter) OnStepStart(runner.Step)         {}
func (f *JSONFormatter) OnStepResult(*runner.StepResult) {}

func (f *JSONFormatter) OnFinish(run *runner.RunResult) {
	f.run = run
}

func jsonStep(s *runner.StepResult) JSONStep {
	step := JSONStep{
		Number:   s.Number,
		Name:     s.Name,
		Title:    s.Title,
		Status:   string(s.Status),
		Message:  s.Message,
		Detail:   s.Detail,
		Duration: float64(s.Duration.Milliseconds()),
	}
	if s.Kind != runner.KindNone {
		step.Kind = s.Kind.String()
	}

	if s.Request != nil {
		step.Request = &JSONRequest{
			Method:  s.Request.Method,
			URL:     s.Request.URL,
			Headers: s.Request.Headers,
			Body:    s.Request.Body,
		}
	}

	if s.Response != nil {
		step.Response = &JSONResponse{
			StatusCode: s.Response.StatusCode,
			Status:     s.Response.Status,
			Headers:    s.Response.Headers,
			Body:       s.Response.Excerpt(1024),
			Duration:   float64(s.Response.Duration.Milliseconds()),
		}
	}

	if len(s.Assertions) > 0 {
		step.Assertions = make([]JSONAssertion, len(s.Assertions))
		for i, a := range s.Assertions {
			step.Assertions[i] = JSONAssertion{
				Subject:  a.Subject,
				Operator: a.Operator,
				Expected: a.Expected,
				Actual:   a.Actual,
				Passed:   a.Passed,
				Message:  a.Message,
			}
		}
	}

	if len(s.Captures) > 0 {
		step.Captures = s.Captures
	}
	return step
}

// Flush writes the accumulated JSON output
func (f *JSONFormatter) Flush(totalDuration time.Duration) error {
	output := JSONOutput{
		Steps:    make([]JSONStep, 0, len(runner.Steps())),
		Duration: float64(totalDuration.Milliseconds()),
		Time:     time.Now().Format(time.RFC3339),
	}

	if run := f.run; run != nil {
		output.RunID = run.RunID
		output.APIBase = run.APIBase
		output.EnvFile = run.EnvFile
		output.Passed = run.Passed
		output.State = run.State.String()

		for _, s := range run.Steps {
			output.Steps = append(output.Steps, jsonStep(s))
			switch s.Status {
			case runner.StatusPassed:
				output.Summary.Passed++
			case runner.StatusWarning:
				output.Summary.Warnings++
			default:
				output.Summary.Failed++
			}
		}
		for _, step := range notRun(run) {
			output.Steps = append(output.Steps, JSONStep{
				Number: step.Number,
				Name:   step.Name,
				Title:  step.Title,
				Status: statusSkipped,
			})
			output.Summary.Skipped++
		}
	}
	output.Summary.Total = len(output.Steps)

	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}

// notRun returns the probe steps a run stopped before reaching.
func notRun(run *runner.RunResult) []runner.Step {
	done := make(map[string]bool, len(run.Steps))
	for _, s := range run.Steps {
		done[s.Name] = true
	}

	var steps []runner.Step
	for _, step := range runner.Steps() {
		if !done[step.Name] {
			steps = append(steps, step)
		}
	}
	return steps
}
