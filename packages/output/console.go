package output

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/abdul-hamid-achik/statusprobe/packages/core/runner"
	"github.com/fatih/color"
)

const bannerWidth = 60

// formatValue formats a value for display, truncating or summarizing large values
func formatValue(v any, maxLen int) string {
	switch val := v.(type) {
	case []any:
		return fmt.Sprintf("[array with %d items]", len(val))
	case map[string]any:
		return fmt.Sprintf("{object with %d keys}", len(val))
	case []string:
		v = strings.Join(val, "; ")
	}
	str := fmt.Sprintf("%v", v)
	if len(str) > maxLen {
		return str[:maxLen] + "..."
	}
	return str
}

// ConsoleFormatter prints progress as the run executes.
type ConsoleFormatter struct {
	writer  io.Writer
	verbose bool
	noColor bool

	green  func(a ...any) string
	red    func(a ...any) string
	yellow func(a ...any) string
	cyan   func(a ...any) string
	bold   func(a ...any) string
}

type ConsoleOption func(*ConsoleFormatter)

func NewConsoleFormatter(opts ...ConsoleOption) *ConsoleFormatter {
	f := &ConsoleFormatter{
		writer: os.Stdout,
	}
	for _, opt := range opts {
		opt(f)
	}

	colorize := func(attrs ...color.Attribute) func(a ...any) string {
		c := color.New(attrs...)
		if f.noColor {
			c.DisableColor()
		}
		return c.SprintFunc()
	}
	f.green = colorize(color.FgGreen)
	f.red = colorize(color.FgRed)
	f.yellow = colorize(color.FgYellow)
	f.cyan = colorize(color.FgCyan)
	f.bold = colorize(color.Bold)
	return f
}

func WithWriter(w io.Writer) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.writer = w
	}
}

func WithVerbose(v bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.verbose = v
	}
}

func WithNoColor(nc bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.noColor = nc
	}
}

func (f *ConsoleFormatter) banner() {
	fmt.Fprintln(f.writer, strings.Repeat("=", bannerWidth))
}

func (f *ConsoleFormatter) OnStart(run *runner.RunResult) {
	f.banner()
	fmt.Fprintln(f.writer, f.bold("BACKEND API TESTING"))
	f.banner()

	if f.verbose {
		fmt.Fprintf(f.writer, "Run ID: %s\n", run.RunID)
	}
	if run.APIBase != "" {
		fmt.Fprintf(f.writer, "Testing backend APIs at: %s\n", run.APIBase)
	}
}

func (f *ConsoleFormatter) OnStepStart(step runner.Step) {
	fmt.Fprintf(f.writer, "\n%d. %s...\n", step.Number, step.Title)
}

func (f *ConsoleFormatter) OnStepResult(step *runner.StepResult) {
	// A config failure shows the read error before the verdict.
	if step.Name == runner.StepConfig && step.Detail != "" {
		fmt.Fprintln(f.writer, step.Detail)
	}

	switch step.Status {
	case runner.StatusPassed:
		fmt.Fprintf(f.writer, "%s\n", f.green("✅ "+step.Message))
	case runner.StatusWarning:
		fmt.Fprintf(f.writer, "%s\n", f.yellow("⚠️ "+step.Message))
	default:
		fmt.Fprintf(f.writer, "%s\n", f.red("❌ "+step.Message))
		if step.Name != runner.StepConfig && step.Detail != "" {
			fmt.Fprintln(f.writer, step.Detail)
		}
	}

	if f.verbose {
		f.details(step)
	}
}

func (f *ConsoleFormatter) details(step *runner.StepResult) {
	if step.Method != "" {
		fmt.Fprintf(f.writer, "    %s %s\n", step.Method, step.URL)
	}
	if step.StatusCode != 0 {
		fmt.Fprintf(f.writer, "    Status: %d %s\n", step.StatusCode,
			f.cyan(fmt.Sprintf("(%dms)", step.Duration.Milliseconds())))
	}
	if step.Kind != runner.KindNone {
		fmt.Fprintf(f.writer, "    Kind: %s\n", step.Kind)
	}

	for _, a := range step.Assertions {
		if a.Passed {
			continue
		}
		fmt.Fprintf(f.writer, "    %s %s %s\n", f.red("→"), a.Subject, a.Operator)
		fmt.Fprintf(f.writer, "      Expected: %s\n", formatValue(a.Expected, 100))
		fmt.Fprintf(f.writer, "      Actual:   %s\n", formatValue(a.Actual, 100))
		if a.Message != "" {
			fmt.Fprintf(f.writer, "      %s\n", a.Message)
		}
	}

	if len(step.Captures) > 0 {
		names := make([]string, 0, len(step.Captures))
		for name := range step.Captures {
			names = append(names, name)
		}
		sort.Strings(names)

		fmt.Fprintf(f.writer, "    Captures:\n")
		for _, name := range names {
			fmt.Fprintf(f.writer, "      %s = %s\n", name, formatValue(step.Captures[name], 100))
		}
	}
}

func (f *ConsoleFormatter) OnFinish(run *runner.RunResult) {
	if run.Passed {
		fmt.Fprintf(f.writer, "\n%s\n", f.green("🎉 All backend API tests passed successfully!"))
	}

	fmt.Fprintln(f.writer)
	f.banner()
	if run.Passed {
		fmt.Fprintf(f.writer, "RESULT: %s\n", f.green("✅ All backend tests PASSED"))
	} else {
		fmt.Fprintf(f.writer, "RESULT: %s\n", f.red("❌ Some backend tests FAILED"))
	}
	f.banner()

	if f.verbose {
		fmt.Fprintf(f.writer, "Time:  %dms\n", run.Duration.Milliseconds())
	}
}

// FormatError prints an error that happened outside a run.
func (f *ConsoleFormatter) FormatError(err error) {
	fmt.Fprintf(f.writer, "%s %v\n", f.red("Error:"), err)
}
