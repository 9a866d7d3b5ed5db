package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/abdul-hamid-achik/statusprobe/packages/core/config"
	"github.com/spf13/cobra"
)

var forceInit bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter statusprobe.yaml",
	Long: `Write statusprobe.yaml in the current directory with the default settings,
taking --env-file, --key and --api-prefix into account.

Examples:
  statusprobe init
  statusprobe init --env-file ./frontend/.env --force`,
	Args: usageArgs(cobra.NoArgs),
	RunE: initCommand,
}

func init() {
	initCmd.Flags().BoolVarP(&forceInit, "force", "f", false, "Overwrite an existing file")
}

func initCommand(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}

	configFile := filepath.Join(cwd, "statusprobe.yaml")
	if !forceInit {
		if _, err := os.Stat(configFile); err == nil {
			return fmt.Errorf("file already exists: %s (use --force to overwrite)", configFile)
		}
	}

	cfg := config.DefaultConfig()
	cfg.EnvFile = envFileFlag
	cfg.Key = keyFlag
	cfg.APIPrefix = apiPrefixFlag

	if err := cfg.SaveConfig(configFile); err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created: %s\n", configFile)
	fmt.Fprintf(cmd.OutOrStdout(), "Run 'statusprobe run' to probe the backend.\n")

	return nil
}
