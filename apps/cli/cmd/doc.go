// Package cmd implements the statusprobe CLI commands using Cobra.
//
// Available commands:
//   - run: Resolve the backend URL and probe the API (the default)
//   - resolve: Print the API base the probes would use
//   - init: Write a starter statusprobe.yaml
//   - mock: Serve a fake backend that answers the probes
//   - stress: Repeat the probes at a fixed rate and check latency thresholds
//   - version: Show statusprobe version information
//   - completion: Generate shell completion scripts
//
// Every flag can also be set through a STATUSPROBE_* environment variable
// or the config file; an explicit flag wins over both.
package cmd
