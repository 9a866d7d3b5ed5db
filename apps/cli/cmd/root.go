package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "statusprobe",
	Short: "Smoke test a status-check API.",
	Long: `statusprobe resolves a backend URL from an env file and checks that the
API behind it answers: the root greeting, creating a status check and listing
status checks.

Running statusprobe with no subcommand is the same as 'statusprobe run'.`,
	Args:          usageArgs(cobra.NoArgs),
	RunE:          runCommand,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// exitError carries a process exit code out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

// usageError marks bad flags or arguments so they exit with ExitUsageError.
func usageError(_ *cobra.Command, err error) error {
	return &exitError{code: ExitUsageError, err: err}
}

func usageArgs(validate cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := validate(cmd, args); err != nil {
			return usageError(cmd, err)
		}
		return nil
	}
}

func Execute(v, bt string) {
	version = v
	buildTime = bt
	os.Exit(execute(os.Args[1:]))
}

func execute(args []string) int {
	return executeContext(context.Background(), args)
}

func executeContext(ctx context.Context, args []string) int {
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}

	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintf(rootCmd.ErrOrStderr(), "Error: %v\n", ee.err)
		}
		return ee.code
	}
	fmt.Fprintf(rootCmd.ErrOrStderr(), "Error: %v\n", err)
	return ExitTestFailure
}

func init() {
	// Subcommands without their own handler use the root's.
	rootCmd.SetFlagErrorFunc(usageError)

	addCommonFlags(rootCmd)
	addRunFlags(rootCmd)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(mockCmd)
	rootCmd.AddCommand(stressCmd)
}
