package cmd

import (
	"errors"
	"fmt"

	"github.com/abdul-hamid-achik/statusprobe/packages/core/env"
	"github.com/abdul-hamid-achik/statusprobe/packages/core/runner"
	"github.com/spf13/cobra"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Print the API base the probes would use",
	Long: `Resolve the backend URL the same way 'run' does and print the API base,
without sending any request.

Examples:
  statusprobe resolve
  statusprobe resolve --env-file ./frontend/.env --key VITE_BACKEND_URL`,
	Args: usageArgs(cobra.NoArgs),
	RunE: resolveCommand,
}

func resolveCommand(cmd *cobra.Command, args []string) error {
	settings, _, err := loadSettings(cmd)
	if err != nil {
		return err
	}

	log := newLogger(cmd, settings)
	r := runner.NewRunner(runnerConfig(settings), runner.WithLogger(log))

	apiBase, err := r.Resolve()
	if err == nil {
		fmt.Fprintln(cmd.OutOrStdout(), apiBase)
		return nil
	}

	if errors.Is(err, env.ErrKeyNotFound) && settings.BaseURL == "" {
		if keys, kerr := env.Keys(settings.EnvFile); kerr == nil && len(keys) > 0 {
			fmt.Fprintf(cmd.ErrOrStderr(), "Keys in %s:\n", settings.EnvFile)
			for _, k := range keys {
				fmt.Fprintf(cmd.ErrOrStderr(), "  %s\n", k)
			}
		}
	}
	return &exitError{code: ExitConfigError, err: err}
}
