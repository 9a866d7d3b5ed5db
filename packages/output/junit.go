package output

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/statusprobe/packages/core/runner"
)

// JUnit XML structures

// JUnitTestSuites is the root element
type JUnitTestSuites struct {
	XMLName    xml.Name         `xml:"testsuites"`
	Name       string           `xml:"name,attr,omitempty"`
	Tests      int              `xml:"tests,attr"`
	Failures   int              `xml:"failures,attr"`
	Errors     int              `xml:"errors,attr"`
	Skipped    int              `xml:"skipped,attr"`
	Time       float64          `xml:"time,attr"`
	Timestamp  string           `xml:"timestamp,attr,omitempty"`
	TestSuites []JUnitTestSuite `xml:"testsuite"`
}

// JUnitTestSuite represents one run against one API base
type JUnitTestSuite struct {
	XMLName    xml.Name        `xml:"testsuite"`
	Name       string          `xml:"name,attr"`
	Tests      int             `xml:"tests,attr"`
	Failures   int             `xml:"failures,attr"`
	Errors     int             `xml:"errors,attr"`
	Skipped    int             `xml:"skipped,attr"`
	Time       float64         `xml:"time,attr"`
	Timestamp  string          `xml:"timestamp,attr,omitempty"`
	Properties []JUnitProperty `xml:"properties>property,omitempty"`
	TestCases  []JUnitTestCase `xml:"testcase"`
}

type JUnitProperty struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// JUnitTestCase represents a single step
type JUnitTestCase struct {
	XMLName   xml.Name      `xml:"testcase"`
	Name      string        `xml:"name,attr"`
	ClassName string        `xml:"classname,attr"`
	Time      float64       `xml:"time,attr"`
	Failure   *JUnitFailure `xml:"failure,omitempty"`
	Error     *JUnitError   `xml:"error,omitempty"`
	Skipped   *JUnitSkipped `xml:"skipped,omitempty"`
	SystemOut string        `xml:"system-out,omitempty"`
}

// JUnitFailure represents a test failure
type JUnitFailure struct {
	Message string `xml:"message,attr,omitempty"`
	Type    string `xml:"type,attr,omitempty"`
	Content string `xml:",chardata"`
}

// JUnitError represents a test error
type JUnitError struct {
	Message string `xml:"message,attr,omitempty"`
	Type    string `xml:"type,attr,omitempty"`
	Content string `xml:",chardata"`
}

// JUnitSkipped represents a skipped test
type JUnitSkipped struct {
	Message string `xml:"message,attr,omitempty"`
}

// JUnitFormatter formats the run as JUnit XML
type JUnitFormatter struct {
	writer     io.Writer
	testSuites []JUnitTestSuite
}

type JUnitOption func(*JUnitFormatter)

func NewJUnitFormatter(opts ...JUnitOption) *JUnitFormatter {
	f := &JUnitFormatter{
		writer:     os.Stdout,
		testSuites: make([]JUnitTestSuite, 0),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func JUnitWithWriter(w io.Writer) JUnitOption {
	return func(f *JUnitFormatter) {
		f.writer = w
	}
}

func (f *JUnitFormatter) OnStart(*runner.RunResult)       {}
func (f *JUnitFormatter) OnStepStart(runner.Step)         {}
func (f *JUnitFormatter) OnStepResult(*runner.StepResult) {}

func (f *JUnitFormatter) OnFinish(run *runner.RunResult) {
	name := run.APIBase
	if name == "" {
		name = run.EnvFile
	}

	suite := JUnitTestSuite{
		Name:      name,
		Time:      run.Duration.Seconds(),
		Timestamp: time.Now().Format(time.RFC3339),
		Properties: []JUnitProperty{
			{Name: "runId", Value: run.RunID},
			{Name: "state", Value: run.State.String()},
		},
		TestCases: make([]JUnitTestCase, 0, len(runner.Steps())),
	}

	for _, s := range run.Steps {
		tc := JUnitTestCase{
			Name:      s.Name,
			ClassName: "statusprobe",
			Time:      s.Duration.Seconds(),
		}

		switch {
		case s.Status == runner.StatusWarning:
			tc.SystemOut = fmt.Sprintf("%s: %s", s.Kind, s.Message)
		case s.Status != runner.StatusFailed:
		case s.Kind == runner.KindProtocol:
			suite.Failures++
			tc.Failure = &JUnitFailure{
				Message: s.Message,
				Type:    s.Kind.String(),
				Content: failureContent(s),
			}
		default:
			suite.Errors++
			tc.Error = &JUnitError{
				Message: s.Message,
				Type:    s.Kind.String(),
				Content: s.Detail,
			}
		}

		suite.TestCases = append(suite.TestCases, tc)
	}

	for _, step := range notRun(run) {
		suite.Skipped++
		suite.TestCases = append(suite.TestCases, JUnitTestCase{
			Name:      step.Name,
			ClassName: "statusprobe",
			Skipped:   &JUnitSkipped{Message: "not run"},
		})
	}

	suite.Tests = len(suite.TestCases)
	f.testSuites = append(f.testSuites, suite)
}

func failureContent(s *runner.StepResult) string {
	var b strings.Builder
	for _, a := range s.Assertions {
		if !a.Passed {
			fmt.Fprintf(&b, "%s %s: expected %v, got %v. %s\n",
				a.Subject, a.Operator, a.Expected, formatValue(a.Actual, 200), a.Message)
		}
	}
	if s.Detail != "" {
		b.WriteString(s.Detail)
		b.WriteString("\n")
	}
	return b.String()
}

// Flush writes the accumulated JUnit XML output
func (f *JUnitFormatter) Flush(totalDuration time.Duration) error {
	var totalTests, totalFailures, totalErrors, totalSkipped int
	for _, suite := range f.testSuites {
		totalTests += suite.Tests
		totalFailures += suite.Failures
		totalErrors += suite.Errors
		totalSkipped += suite.Skipped
	}

	suites := JUnitTestSuites{
		Name:       "statusprobe",
		Tests:      totalTests,
		Failures:   totalFailures,
		Errors:     totalErrors,
		Skipped:    totalSkipped,
		Time:       totalDuration.Seconds(),
		Timestamp:  time.Now().Format(time.RFC3339),
		TestSuites: f.testSuites,
	}

	fmt.Fprintf(f.writer, "<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n")
	encoder := xml.NewEncoder(f.writer)
	encoder.Indent("", "  ")
	return encoder.Encode(suites)
}
