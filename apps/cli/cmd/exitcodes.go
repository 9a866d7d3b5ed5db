package cmd

// Exit codes used when --exit-code is set. Without it a finished run always
// exits with ExitSuccess.
const (
	// ExitSuccess indicates all probes passed
	ExitSuccess = 0

	// ExitTestFailure indicates a probe failed
	ExitTestFailure = 1

	// ExitConfigError indicates the backend URL could not be resolved
	ExitConfigError = 3

	// ExitNetworkError indicates a network/connection error
	ExitNetworkError = 4

	// ExitUsageError indicates invalid CLI usage
	ExitUsageError = 64
)
