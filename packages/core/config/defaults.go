package config

import (
	"time"

	"github.com/abdul-hamid-achik/statusprobe/packages/core/env"
)

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		EnvFile:     env.DefaultEnvFile,
		Key:         env.DefaultURLKey,
		APIPrefix:   "/api",
		ClientName:  "Test Client for Backend Verification",
		Timeout:     Duration(10 * time.Second),
		ValidateSSL: BoolPtr(true),
		Output:      "console",
		Verbose:     BoolPtr(false),
		NoColor:     BoolPtr(false),
		ExitCode:    BoolPtr(false),
	}
}

// IsDefault returns true if the config matches defaults
func (c *Config) IsDefault() bool {
	defaults := DefaultConfig()
	return c.EnvFile == defaults.EnvFile &&
		c.Key == defaults.Key &&
		c.BaseURL == defaults.BaseURL &&
		c.APIPrefix == defaults.APIPrefix &&
		c.ClientName == defaults.ClientName &&
		c.Timeout == defaults.Timeout &&
		c.GetValidateSSL() == defaults.GetValidateSSL() &&
		c.Proxy == defaults.Proxy &&
		len(c.Headers) == 0 &&
		c.Output == defaults.Output &&
		c.OutputFile == defaults.OutputFile &&
		c.GetVerbose() == defaults.GetVerbose() &&
		c.GetNoColor() == defaults.GetNoColor() &&
		c.GetExitCode() == defaults.GetExitCode()
}
