package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/statusprobe/packages/core/runner"
)

// TAPFormatter formats the run in TAP (Test Anything Protocol) format
type TAPFormatter struct {
	writer    io.Writer
	testCount int
	results   []tapResult
}

type tapResult struct {
	number     int
	name       string
	passed     bool
	skipped    bool
	skipReason string
	severity   string
	message    string
	detail     string
	assertions []string
}

type TAPOption func(*TAPFormatter)

func NewTAPFormatter(opts ...TAPOption) *TAPFormatter {
	f := &TAPFormatter{
		writer:  os.Stdout,
		results: make([]tapResult, 0),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func TAPWithWriter(w io.Writer) TAPOption {
	return func(f *TAPFormatter) {
		f.writer = w
	}
}

func (f *TAPFormatter) OnStart(*runner.RunResult) {}
func (f *TAPFormatter) OnStepStart(runner.Step)   {}

func (f *TAPFormatter) OnStepResult(s *runner.StepResult) {
	f.testCount++
	tr := tapResult{
		number: f.testCount,
		name:   s.Name,
		passed: s.Passed(),
	}

	switch s.Status {
	case runner.StatusWarning:
		tr.severity = "warning"
		tr.message = s.Message
	case runner.StatusFailed:
		tr.severity = "fail"
		if s.Kind != runner.KindProtocol {
			tr.severity = "error"
		}
		tr.message = fmt.Sprintf("%s: %s", s.Kind, s.Message)
		tr.detail = s.Detail
		for _, a := range s.Assertions {
			if !a.Passed {
				tr.assertions = append(tr.assertions, fmt.Sprintf(
					"%s %s: expected %v, got %v",
					a.Subject, a.Operator, a.Expected, formatValue(a.Actual, 200)))
			}
		}
	}

	f.results = append(f.results, tr)
}

func (f *TAPFormatter) OnFinish(run *runner.RunResult) {
	for _, step := range notRun(run) {
		f.testCount++
		f.results = append(f.results, tapResult{
			number:     f.testCount,
			name:       step.Name,
			skipped:    true,
			skipReason: "not run",
		})
	}
}

// Flush writes the accumulated TAP output
func (f *TAPFormatter) Flush(totalDuration time.Duration) error {
	fmt.Fprintf(f.writer, "TAP version 13\n")
	fmt.Fprintf(f.writer, "1..%d\n", f.testCount)

	for _, r := range f.results {
		if r.skipped {
			fmt.Fprintf(f.writer, "ok %d - %s # SKIP %s\n", r.number, r.name, r.skipReason)
			continue
		}

		status := "ok"
		if !r.passed {
			status = "not ok"
		}
		fmt.Fprintf(f.writer, "%s %d - %s\n", status, r.number, r.name)

		if r.severity == "" {
			continue
		}
		fmt.Fprintf(f.writer, "  ---\n")
		fmt.Fprintf(f.writer, "  message: %s\n", escapeYAML(r.message))
		fmt.Fprintf(f.writer, "  severity: %s\n", r.severity)
		if r.detail != "" {
			fmt.Fprintf(f.writer, "  detail: %s\n", escapeYAML(r.detail))
		}
		if len(r.assertions) > 0 {
			fmt.Fprintf(f.writer, "  failures:\n")
			for _, a := range r.assertions {
				fmt.Fprintf(f.writer, "    - %s\n", escapeYAML(a))
			}
		}
		fmt.Fprintf(f.writer, "  ...\n")
	}

	fmt.Fprintf(f.writer, "# duration %dms\n", totalDuration.Milliseconds())
	return nil
}

func escapeYAML(s string) string {
	// Quote anything YAML would read as structure
	if strings.ContainsAny(s, ":\n\"'[]{}#&*!|>%@`\\") {
		s = strings.ReplaceAll(s, "\\", "\\\\")
		s = strings.ReplaceAll(s, "\"", "\\\"")
		s = strings.ReplaceAll(s, "\n", "\\n")
		return "\"" + s + "\""
	}
	return s
}
