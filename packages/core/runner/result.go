package runner

import (
	"time"

	"github.com/abdul-hamid-achik/statusprobe/packages/assertions"
	"github.com/abdul-hamid-achik/statusprobe/packages/http"
)

// State is the position of a run in the probe sequence.
type State int

const (
	StateStart State = iota
	StateRootOK
	StateCreateOK
	StateListChecked
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateRootOK:
		return "root_ok"
	case StateCreateOK:
		return "create_ok"
	case StateListChecked:
		return "list_checked"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

type StepStatus string

const (
	StatusPassed  StepStatus = "passed"
	StatusWarning StepStatus = "warning"
	StatusFailed  StepStatus = "failed"
)

// Step names.
const (
	StepConfig = "config"
	StepAuth   = "auth"
	StepRoot   = "root"
	StepCreate = "create_status"
	StepList   = "list_status"
)

type Step struct {
	Number int
	Name   string
	Title  string
}

// Steps returns the probe sequence in execution order.
func Steps() []Step {
	return []Step{
		{Number: 1, Name: StepRoot, Title: "Testing root endpoint"},
		{Number: 2, Name: StepCreate, Title: "Testing POST /status endpoint"},
		{Number: 3, Name: StepList, Title: "Testing GET /status endpoint"},
	}
}

type StepResult struct {
	Number int
	Name   string
	Title  string
	Status StepStatus
	Kind   ErrorKind
	// Message is the one-line outcome, e.g. "Root endpoint working correctly".
	Message string
	// Detail is an extra line printed after Message, e.g. the echoed body.
	Detail     string
	Method     string
	URL        string
	StatusCode int
	Duration   time.Duration
	Request    *http.Request
	Response   *http.Response
	Assertions []*assertions.Result
	Captures   map[string]any
	Err        error
}

func (s *StepResult) Passed() bool {
	return s.Status == StatusPassed || s.Status == StatusWarning
}

type RunResult struct {
	RunID    string
	APIBase  string
	EnvFile  string
	URLKey   string
	State    State
	Passed   bool
	Steps    []*StepResult
	Duration time.Duration
	Err      error
}

// Failed returns the step that stopped the run, or nil.
func (r *RunResult) Failed() *StepResult {
	for _, s := range r.Steps {
		if s.Status == StatusFailed {
			return s
		}
	}
	return nil
}

// Warnings counts steps that passed with a warning.
func (r *RunResult) Warnings() int {
	n := 0
	for _, s := range r.Steps {
		if s.Status == StatusWarning {
			n++
		}
	}
	return n
}
