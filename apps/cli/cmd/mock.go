package cmd

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/abdul-hamid-achik/statusprobe/packages/core/runner"
	"github.com/abdul-hamid-achik/statusprobe/packages/mock"
	"github.com/spf13/cobra"
)

var mockCmd = &cobra.Command{
	Use:   "mock",
	Short: "Serve a fake status-check backend",
	Long: `Start an in-memory backend that answers the endpoints the probes call.
Endpoints can be made to fail to see how a run reports them.

Examples:
  statusprobe mock
  statusprobe mock --port 9000 --fail create_status
  statusprobe mock --greeting Goodbye
  statusprobe mock --delay 2s`,
	Args: usageArgs(cobra.NoArgs),
	RunE: mockCommand,
}

var (
	mockHost     string
	mockPort     int
	mockGreeting string
	mockDelay    time.Duration
	mockFail     []string
	mockHide     bool
)

func init() {
	mockCmd.Flags().StringVar(&mockHost, "host", mock.DefaultHost, "Interface to listen on")
	mockCmd.Flags().IntVarP(&mockPort, "port", "p", mock.DefaultPort, "Port to listen on (0 picks a free port)")
	mockCmd.Flags().StringVar(&mockGreeting, "greeting", mock.DefaultGreeting, "Message returned by the root endpoint")
	mockCmd.Flags().DurationVar(&mockDelay, "delay", 0, "Delay added to every response")
	mockCmd.Flags().StringSliceVar(&mockFail, "fail", nil, "Steps whose endpoint answers 500: root, create_status, list_status")
	mockCmd.Flags().BoolVar(&mockHide, "hide-created", false, "Leave created checks out of GET /status")
}

func mockCommand(cmd *cobra.Command, args []string) error {
	settings, _, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	log := newLogger(cmd, settings)

	valid := make(map[string]bool)
	for _, step := range runner.Steps() {
		valid[step.Name] = true
	}
	for _, step := range mockFail {
		if !valid[step] {
			return &exitError{
				code: ExitUsageError,
				err:  fmt.Errorf("unknown step %q for --fail (use root, create_status or list_status)", step),
			}
		}
	}

	opts := []mock.Option{
		mock.WithHost(mockHost),
		mock.WithPort(mockPort),
		mock.WithAPIPrefix(settings.APIPrefix),
		mock.WithGreeting(mockGreeting),
		mock.WithDelay(mockDelay),
		mock.WithFailure(mockFail...),
		mock.WithLogger(log),
	}
	if mockHide {
		opts = append(opts, mock.WithHiddenChecks())
	}
	server := mock.NewServer(opts...)
	if err := server.Listen(); err != nil {
		return fmt.Errorf("cannot start mock backend: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Mock backend listening on %s\n", server.URL())
	for _, route := range server.Routes() {
		fmt.Fprintf(out, "  %-4s %s\n", route.Method, route.Path)
	}
	if failing := server.Failing(); len(failing) > 0 {
		fmt.Fprintf(out, "Failing: %v\n", failing)
	}
	fmt.Fprintf(out, "\nProbe it with: statusprobe run --base-url %s\n", server.URL())

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return server.Serve(ctx)
}
