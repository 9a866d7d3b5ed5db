package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/abdul-hamid-achik/statusprobe/packages/core/config"
	"github.com/abdul-hamid-achik/statusprobe/packages/core/logging"
	"github.com/abdul-hamid-achik/statusprobe/packages/core/runner"
	httpclient "github.com/abdul-hamid-achik/statusprobe/packages/http"
	"github.com/abdul-hamid-achik/statusprobe/packages/notify"
	"github.com/abdul-hamid-achik/statusprobe/packages/output"
	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Probe the backend API",
	Long: `Resolve the backend URL and run the three probes in order:

  1. GET  {base}/api/        expects {"message": "Hello World"}
  2. POST {base}/api/status  expects the created status check
  3. GET  {base}/api/status  expects a list holding the created check

The run stops at the first failing probe.

Examples:
  statusprobe run
  statusprobe run --env-file ./frontend/.env
  statusprobe run --base-url http://localhost:8001 --exit-code
  statusprobe run -o junit --output-file report.xml
  statusprobe run --watch`,
	Args: usageArgs(cobra.NoArgs),
	RunE: runCommand,
}

const (
	// WatchDebounceDelay is the debounce delay for file watch events
	WatchDebounceDelay = 300 * time.Millisecond
)

var (
	envFileFlag    string
	keyFlag        string
	baseURLFlag    string
	apiPrefixFlag  string
	configFlag     string
	verboseFlag    bool
	noColorFlag    bool
	logJSONFlag    bool
	clientNameFlag string
	timeoutFlag    string
	outputFlag     string
	outputFileFlag string
	insecureFlag   bool
	proxyFlag      string
	headerFlags    []string
	exitCodeFlag   bool
	watchFlag      bool
	notifySlack    string
	notifyTeams    string
	notifyOn       string
)

// flagEnv maps flag names to their environment variable fallbacks.
var flagEnv = map[string]string{
	"env-file":     "STATUSPROBE_ENV_FILE",
	"key":          "STATUSPROBE_KEY",
	"base-url":     "STATUSPROBE_BASE_URL",
	"api-prefix":   "STATUSPROBE_API_PREFIX",
	"config":       "STATUSPROBE_CONFIG",
	"verbose":      "STATUSPROBE_VERBOSE",
	"no-color":     "STATUSPROBE_NO_COLOR",
	"log-json":     "STATUSPROBE_LOG_JSON",
	"client-name":  "STATUSPROBE_CLIENT_NAME",
	"timeout":      "STATUSPROBE_TIMEOUT",
	"output":       "STATUSPROBE_OUTPUT",
	"output-file":  "STATUSPROBE_OUTPUT_FILE",
	"insecure":     "STATUSPROBE_INSECURE",
	"proxy":        "STATUSPROBE_PROXY",
	"exit-code":    "STATUSPROBE_EXIT_CODE",
	"notify-slack": "STATUSPROBE_NOTIFY_SLACK",
	"notify-teams": "STATUSPROBE_NOTIFY_TEAMS",
	"notify-on":    "STATUSPROBE_NOTIFY_ON",

	"oauth2-token-url":     "STATUSPROBE_OAUTH2_TOKEN_URL",
	"oauth2-client-id":     "STATUSPROBE_OAUTH2_CLIENT_ID",
	"oauth2-client-secret": "STATUSPROBE_OAUTH2_CLIENT_SECRET",
	"oauth2-scope":         "STATUSPROBE_OAUTH2_SCOPE",
	"oauth2-grant":         "STATUSPROBE_OAUTH2_GRANT",
	"oauth2-username":      "STATUSPROBE_OAUTH2_USERNAME",
	"oauth2-password":      "STATUSPROBE_OAUTH2_PASSWORD",
}

// addCommonFlags registers the flags every command shares.
func addCommonFlags(cmd *cobra.Command) {
	defaults := config.DefaultConfig()
	flags := cmd.PersistentFlags()

	flags.StringVar(&envFileFlag, "env-file", getEnvString("STATUSPROBE_ENV_FILE", defaults.EnvFile), "Env file holding the backend URL (env: STATUSPROBE_ENV_FILE)")
	flags.StringVar(&keyFlag, "key", getEnvString("STATUSPROBE_KEY", defaults.Key), "Env file key holding the backend URL (env: STATUSPROBE_KEY)")
	flags.StringVar(&baseURLFlag, "base-url", getEnvString("STATUSPROBE_BASE_URL", ""), "Backend URL; skips the env file (env: STATUSPROBE_BASE_URL)")
	flags.StringVar(&apiPrefixFlag, "api-prefix", getEnvString("STATUSPROBE_API_PREFIX", defaults.APIPrefix), "Path appended to the backend URL (env: STATUSPROBE_API_PREFIX)")
	flags.StringVar(&configFlag, "config", getEnvString("STATUSPROBE_CONFIG", ""), "Path to config file (env: STATUSPROBE_CONFIG)")
	flags.BoolVarP(&verboseFlag, "verbose", "v", getEnvBool("STATUSPROBE_VERBOSE", false), "Verbose output and debug logs (env: STATUSPROBE_VERBOSE)")
	flags.BoolVar(&noColorFlag, "no-color", getEnvBool("STATUSPROBE_NO_COLOR", false), "Disable colored output (env: STATUSPROBE_NO_COLOR)")
	flags.BoolVar(&logJSONFlag, "log-json", getEnvBool("STATUSPROBE_LOG_JSON", false), "Write diagnostic logs as JSON (env: STATUSPROBE_LOG_JSON)")
}

// addRequestFlags registers the flags that shape the probe requests.
func addRequestFlags(cmd *cobra.Command) {
	defaults := config.DefaultConfig()
	flags := cmd.Flags()

	flags.StringVar(&clientNameFlag, "client-name", getEnvString("STATUSPROBE_CLIENT_NAME", defaults.ClientName), "client_name sent when creating a status check (env: STATUSPROBE_CLIENT_NAME)")
	flags.StringVar(&timeoutFlag, "timeout", getEnvString("STATUSPROBE_TIMEOUT", defaults.Timeout.Std().String()), "Per-request timeout (e.g., 10s, 500ms) (env: STATUSPROBE_TIMEOUT)")
	flags.BoolVarP(&insecureFlag, "insecure", "k", getEnvBool("STATUSPROBE_INSECURE", false), "Disable SSL certificate validation (env: STATUSPROBE_INSECURE)")
	flags.StringVar(&proxyFlag, "proxy", getEnvString("STATUSPROBE_PROXY", ""), "Proxy URL for HTTP requests (env: STATUSPROBE_PROXY)")
	flags.StringArrayVarP(&headerFlags, "header", "H", nil, "Extra request header as 'Name: value' (repeatable)")

	addAuthFlags(cmd)
}

// addRunFlags registers the flags of the run command. The root command gets
// them too since it runs the probes by default.
func addRunFlags(cmd *cobra.Command) {
	addRequestFlags(cmd)

	defaults := config.DefaultConfig()
	flags := cmd.Flags()

	flags.StringVarP(&outputFlag, "output", "o", getEnvString("STATUSPROBE_OUTPUT", defaults.Output), "Output format: console, json, junit, tap (env: STATUSPROBE_OUTPUT)")
	flags.StringVar(&outputFileFlag, "output-file", getEnvString("STATUSPROBE_OUTPUT_FILE", ""), "Write output to file (default: stdout) (env: STATUSPROBE_OUTPUT_FILE)")
	flags.BoolVar(&exitCodeFlag, "exit-code", getEnvBool("STATUSPROBE_EXIT_CODE", false), "Exit non-zero when the run fails (env: STATUSPROBE_EXIT_CODE)")
	flags.BoolVarP(&watchFlag, "watch", "w", false, "Watch the env and config files and re-run on change")
	flags.StringVar(&notifySlack, "notify-slack", getEnvString("STATUSPROBE_NOTIFY_SLACK", ""), "Slack webhook URL to post results to (env: STATUSPROBE_NOTIFY_SLACK)")
	flags.StringVar(&notifyTeams, "notify-teams", getEnvString("STATUSPROBE_NOTIFY_TEAMS", ""), "Microsoft Teams webhook URL to post results to (env: STATUSPROBE_NOTIFY_TEAMS)")
	flags.StringVar(&notifyOn, "notify-on", getEnvString("STATUSPROBE_NOTIFY_ON", string(notify.NotifyFailure)), "When to notify: always, failure, success, recovery (env: STATUSPROBE_NOTIFY_ON)")

	addMetricsFlags(cmd)
}

func init() {
	addRunFlags(runCmd)
}

// Environment variable helpers
func getEnvString(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
		return val == "yes"
	}
	return defaultVal
}

// override returns the value of a flag given on the command line or through
// its environment variable. Such values win over the config file.
func override(cmd *cobra.Command, name string) (string, bool) {
	if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
		return f.Value.String(), true
	}
	if key, ok := flagEnv[name]; ok {
		if val := os.Getenv(key); val != "" {
			return val, true
		}
	}
	return "", false
}

func overrideBool(cmd *cobra.Command, name string) *bool {
	val, ok := override(cmd, name)
	if !ok {
		return nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		b = val == "yes"
	}
	return config.BoolPtr(b)
}

// loadSettings merges defaults, the config file and explicit flags, in that
// order of precedence from lowest to highest.
func loadSettings(cmd *cobra.Command) (*config.Config, string, error) {
	path, _ := override(cmd, "config")
	fileConfig, source, err := config.LoadConfig(path)
	if err != nil {
		return nil, "", &exitError{code: ExitConfigError, err: err}
	}

	overrides := &config.Config{
		Verbose:  overrideBool(cmd, "verbose"),
		NoColor:  overrideBool(cmd, "no-color"),
		ExitCode: overrideBool(cmd, "exit-code"),
	}
	overrides.EnvFile, _ = override(cmd, "env-file")
	overrides.Key, _ = override(cmd, "key")
	overrides.BaseURL, _ = override(cmd, "base-url")
	overrides.APIPrefix, _ = override(cmd, "api-prefix")
	overrides.ClientName, _ = override(cmd, "client-name")
	overrides.Output, _ = override(cmd, "output")
	overrides.OutputFile, _ = override(cmd, "output-file")
	overrides.Proxy, _ = override(cmd, "proxy")

	if insecure := overrideBool(cmd, "insecure"); insecure != nil {
		overrides.ValidateSSL = config.BoolPtr(!*insecure)
	}

	if val, ok := override(cmd, "timeout"); ok {
		timeout, err := time.ParseDuration(val)
		if err != nil || timeout <= 0 {
			return nil, source, &exitError{
				code: ExitUsageError,
				err:  fmt.Errorf("invalid timeout value %q (use format like 10s, 1m, 500ms)", val),
			}
		}
		overrides.Timeout = config.Duration(timeout)
	}

	slack, hasSlack := override(cmd, "notify-slack")
	teams, hasTeams := override(cmd, "notify-teams")
	on, hasOn := override(cmd, "notify-on")
	if hasSlack || hasTeams || hasOn {
		overrides.Notify = &config.NotifyConfig{Slack: slack, Teams: teams, On: on}
	}

	overrides.Auth = authOverrides(cmd)

	if f := cmd.Flags().Lookup("header"); f != nil && f.Changed {
		headers, err := parseHeaders(headerFlags)
		if err != nil {
			return nil, source, &exitError{code: ExitUsageError, err: err}
		}
		overrides.Headers = headers
	}

	return fileConfig.Merge(overrides), source, nil
}

func parseHeaders(values []string) (map[string]string, error) {
	headers := make(map[string]string, len(values))
	for _, v := range values {
		name, value, ok := strings.Cut(v, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid header %q (use 'Name: value')", v)
		}
		headers[name] = strings.TrimSpace(value)
	}
	return headers, nil
}

func runnerConfig(s *config.Config) *runner.Config {
	return &runner.Config{
		EnvFile:    s.EnvFile,
		URLKey:     s.Key,
		BaseURL:    s.BaseURL,
		APIPrefix:  s.APIPrefix,
		ClientName: s.ClientName,
		Timeout:    s.Timeout.Std(),
		Insecure:   !s.GetValidateSSL(),
		Proxy:      s.Proxy,
		Headers:    s.Headers,
	}
}

func newLogger(cmd *cobra.Command, s *config.Config) *logrus.Logger {
	jsonLogs := overrideBool(cmd, "log-json")
	return logging.New(logging.Options{
		Output:  cmd.ErrOrStderr(),
		Verbose: s.GetVerbose(),
		JSON:    jsonLogs != nil && *jsonLogs,
	})
}

// newNotifier returns nil when no webhook is configured.
func newNotifier(s *config.Config, log logrus.FieldLogger) (*notify.Manager, error) {
	if s.Notify == nil || (s.Notify.Slack == "" && s.Notify.Teams == "") {
		return nil, nil
	}
	on, err := notify.ParseNotifyOn(s.Notify.On)
	if err != nil {
		return nil, err
	}

	client := httpclient.NewClient(
		httpclient.WithValidateSSL(s.GetValidateSSL()),
		httpclient.WithProxy(s.Proxy),
		httpclient.WithLogger(log),
	)
	m := notify.NewManager(on)
	if s.Notify.Slack != "" {
		opts := []notify.SlackOption{notify.WithSlackClient(client)}
		if s.Notify.SlackChannel != "" {
			opts = append(opts, notify.WithSlackChannel(s.Notify.SlackChannel))
		}
		m.AddNotifier(notify.NewSlackNotifier(s.Notify.Slack, opts...))
	}
	if s.Notify.Teams != "" {
		m.AddNotifier(notify.NewTeamsNotifier(s.Notify.Teams, notify.WithTeamsClient(client)))
	}
	return m, nil
}

// Flushable interface for formatters that need to flush output
type Flushable interface {
	Flush(totalDuration time.Duration) error
}

func newFormatter(format string, w io.Writer, s *config.Config) (runner.Reporter, error) {
	switch strings.ToLower(format) {
	case "json":
		return output.NewJSONFormatter(output.JSONWithWriter(w)), nil
	case "junit":
		return output.NewJUnitFormatter(output.JUnitWithWriter(w)), nil
	case "tap":
		return output.NewTAPFormatter(output.TAPWithWriter(w)), nil
	case "console", "":
		return output.NewConsoleFormatter(
			output.WithWriter(w),
			output.WithVerbose(s.GetVerbose()),
			output.WithNoColor(s.GetNoColor()),
		), nil
	}
	return nil, fmt.Errorf("unknown output format %q (use console, json, junit or tap)", format)
}

// exitCodeFor maps a finished run to a process exit code.
func exitCodeFor(result *runner.RunResult) int {
	if result.Passed {
		return ExitSuccess
	}
	switch runner.KindOf(result.Err) {
	case runner.KindConfig:
		return ExitConfigError
	case runner.KindNetwork:
		return ExitNetworkError
	}
	return ExitTestFailure
}

// session is what a run builds from the settings. Watch mode rebuilds it
// when the config file changes.
type session struct {
	settings *config.Config
	notifier *notify.Manager
	tokens   runner.TokenSource
}

func newSession(s *config.Config, log logrus.FieldLogger) (*session, error) {
	if _, err := newFormatter(s.Output, io.Discard, s); err != nil {
		return nil, &exitError{code: ExitUsageError, err: err}
	}

	notifier, err := newNotifier(s, log)
	if err != nil {
		return nil, &exitError{code: ExitUsageError, err: err}
	}

	tokens, err := newTokenSource(s, log)
	if err != nil {
		return nil, &exitError{code: ExitUsageError, err: err}
	}
	return &session{settings: s, notifier: notifier, tokens: tokens}, nil
}

// reloadSession reads the config file again. The notifier is kept when its
// settings did not change so recovery notifications still see the last run.
func reloadSession(cmd *cobra.Command, prev *session, log logrus.FieldLogger) (*session, error) {
	s, source, err := loadSettings(cmd)
	if err != nil {
		return nil, err
	}
	next, err := newSession(s, log)
	if err != nil {
		return nil, err
	}
	if reflect.DeepEqual(prev.settings.Notify, s.Notify) {
		next.notifier = prev.notifier
	}
	log.WithField("file", source).Debug("reloaded config file")
	return next, nil
}

func runCommand(cmd *cobra.Command, args []string) error {
	settings, source, err := loadSettings(cmd)
	if err != nil {
		return err
	}

	log := newLogger(cmd, settings)
	if source != "" {
		log.WithField("file", source).Debug("loaded config file")
	}

	sess, err := newSession(settings, log)
	if err != nil {
		return err
	}

	reportOnStdout := settings.OutputFile == "" && !isConsole(settings.Output)
	collector, err := newMetricsCollector(cmd, settings, log, reportOnStdout)
	if err != nil {
		return &exitError{code: ExitUsageError, err: err}
	}
	if collector != nil {
		defer collector.Close()
	}

	// The output destination and metrics stay as set at startup, even in
	// watch mode.
	outWriter := cmd.OutOrStdout()
	if settings.OutputFile != "" {
		f, err := os.Create(settings.OutputFile)
		if err != nil {
			return fmt.Errorf("cannot create output file: %w", err)
		}
		defer f.Close()
		outWriter = f
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runOnce := func(sess *session) *runner.RunResult {
		formatter, _ := newFormatter(sess.settings.Output, outWriter, sess.settings)
		rc := runnerConfig(sess.settings)
		rc.Auth = sess.tokens
		r := runner.NewRunner(rc,
			runner.WithReporter(formatter),
			runner.WithLogger(log),
		)

		result := r.Run(ctx)

		if flushable, ok := formatter.(Flushable); ok {
			if err := flushable.Flush(result.Duration); err != nil {
				log.WithError(err).Error("error writing output")
			}
		}
		if sess.notifier != nil {
			if err := sess.notifier.Notify(ctx, result); err != nil {
				log.WithError(err).Warn("notification failed")
			}
		}
		if collector != nil {
			collector.Record(result)
			if err := collector.Flush(); err != nil {
				log.WithError(err).Warn("metrics export failed")
			}
		}
		log.WithFields(logrus.Fields{
			"run_id": result.RunID,
			"passed": result.Passed,
			"state":  result.State.String(),
		}).Debug("run finished")
		return result
	}

	result := runOnce(sess)

	if watchFlag {
		watched := []string{settings.EnvFile}
		if source != "" {
			watched = append(watched, source)
		}
		return watch(ctx, cmd, log, watched, func() {
			next, err := reloadSession(cmd, sess, log)
			if err != nil {
				log.WithError(err).Warn("config reload failed, keeping previous settings")
			} else {
				sess = next
			}
			runOnce(sess)
		})
	}

	if settings.GetExitCode() {
		if code := exitCodeFor(result); code != ExitSuccess {
			return &exitError{code: code}
		}
	}
	return nil
}

func isConsole(format string) bool {
	f := strings.ToLower(format)
	return f == "" || f == "console"
}

// watch re-runs fn whenever one of files is written, until ctx is done.
func watch(ctx context.Context, cmd *cobra.Command, log logrus.FieldLogger, files []string, fn func()) error {
	w, err := newFileWatcher(files, log)
	if err != nil {
		return err
	}
	defer w.Close()
	return w.Run(ctx, cmd.OutOrStdout(), fn)
}

// fileWatcher watches the directories of a set of files rather than the files
// themselves, so editors that replace files on save are still seen. Files
// are fixed when the watcher is made.
type fileWatcher struct {
	watcher *fsnotify.Watcher
	targets map[string]bool
	log     logrus.FieldLogger
}

func newFileWatcher(files []string, log logrus.FieldLogger) (*fileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	w := &fileWatcher{
		watcher: watcher,
		targets: make(map[string]bool),
		log:     log,
	}
	watchedDirs := make(map[string]bool)
	for _, file := range files {
		abs, err := filepath.Abs(file)
		if err != nil {
			abs = file
		}
		w.targets[abs] = true

		dir := filepath.Dir(abs)
		if watchedDirs[dir] {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			log.WithError(err).WithField("dir", dir).Warn("cannot watch directory")
			continue
		}
		watchedDirs[dir] = true
	}
	if len(watchedDirs) == 0 {
		watcher.Close()
		return nil, fmt.Errorf("nothing to watch")
	}
	return w, nil
}

func (w *fileWatcher) Close() error {
	return w.watcher.Close()
}

// Run calls fn once per burst of writes to a watched file, after
// WatchDebounceDelay of quiet. It returns when ctx is done.
func (w *fileWatcher) Run(ctx context.Context, out io.Writer, fn func()) error {
	fmt.Fprintf(out, "\nWatching for changes... (press Ctrl+C to stop)\n")

	// Debounce timer for rapid file changes
	var debounceTimer *time.Timer
	rerun := make(chan string, 1)

	for {
		select {
		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !w.targets[event.Name] || !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
				continue
			}
			w.log.WithField("file", event.Name).Debug("watched file changed")

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			name := event.Name
			debounceTimer = time.AfterFunc(WatchDebounceDelay, func() {
				select {
				case rerun <- name:
				default:
				}
			})

		case name := <-rerun:
			fmt.Fprintf(out, "\n\nFile changed: %s\nRe-running probes...\n\n", name)
			fn()
			fmt.Fprintf(out, "\nWatching for changes... (press Ctrl+C to stop)\n")

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.log.WithError(err).Warn("watcher error")
		}
	}
}
