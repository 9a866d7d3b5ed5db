package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/abdul-hamid-achik/statusprobe/packages/core/config"
	"github.com/abdul-hamid-achik/statusprobe/packages/mock"
	"github.com/abdul-hamid-achik/statusprobe/packages/output"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resetFlags restores every flag to its default between executions of the
// shared command tree.
func resetFlags(t *testing.T) {
	t.Helper()
	reset := func(fs *pflag.FlagSet) {
		fs.VisitAll(func(f *pflag.Flag) {
			// Slice values append on Set.
			if sv, ok := f.Value.(pflag.SliceValue); ok {
				require.NoError(t, sv.Replace(nil))
			} else {
				require.NoError(t, f.Value.Set(f.DefValue))
			}
			f.Changed = false
		})
	}
	for _, c := range append([]*cobra.Command{rootCmd}, rootCmd.Commands()...) {
		reset(c.Flags())
		reset(c.PersistentFlags())
	}
}

func run(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	resetFlags(t)
	t.Cleanup(func() { resetFlags(t) })

	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	})

	code := execute(args)
	return code, stdout.String(), stderr.String()
}

func fakeBackend(t *testing.T, opts ...mock.Option) *httptest.Server {
	t.Helper()
	logger, _ := logtest.NewNullLogger()
	backend := mock.NewServer(append([]mock.Option{mock.WithLogger(logger)}, opts...)...)
	server := httptest.NewServer(backend.Handler())
	t.Cleanup(server.Close)
	return server
}

func writeEnv(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestVersionCommand(t *testing.T) {
	code, out, _ := run(t, "version")

	assert.Equal(t, ExitSuccess, code)
	assert.Contains(t, out, "statusprobe version dev")
	assert.Contains(t, out, "Built: unknown")
}

func TestRun_Passing(t *testing.T) {
	server := fakeBackend(t)
	envFile := writeEnv(t, "REACT_APP_BACKEND_URL="+server.URL+"\n")

	code, out, _ := run(t, "run", "--env-file", envFile, "--no-color")

	assert.Equal(t, ExitSuccess, code)
	assert.Contains(t, out, "Testing backend APIs at: "+server.URL+"/api\n")
	assert.Contains(t, out, "✅ Root endpoint working correctly")
	assert.Contains(t, out, "🎉 All backend API tests passed successfully!")
	assert.Contains(t, out, "RESULT: ✅ All backend tests PASSED")
}

func TestRun_DefaultCommand(t *testing.T) {
	server := fakeBackend(t)

	code, out, _ := run(t, "--base-url", server.URL, "--no-color")

	assert.Equal(t, ExitSuccess, code)
	assert.Contains(t, out, "RESULT: ✅ All backend tests PASSED")
}

func TestRun_FailureExitCodes(t *testing.T) {
	server := fakeBackend(t, mock.WithGreeting("Goodbye"))
	closed := httptest.NewServer(http.NotFoundHandler())
	closedURL := closed.URL
	closed.Close()

	tests := []struct {
		name string
		args []string
		code int
	}{
		{"failure without --exit-code", []string{"--base-url", server.URL}, ExitSuccess},
		{"protocol failure", []string{"--base-url", server.URL, "--exit-code"}, ExitTestFailure},
		{"config failure", []string{"--env-file", filepath.Join(t.TempDir(), "missing.env"), "--exit-code"}, ExitConfigError},
		{"network failure", []string{"--base-url", closedURL, "--exit-code"}, ExitNetworkError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, out, _ := run(t, append([]string{"run", "--no-color"}, tt.args...)...)

			assert.Equal(t, tt.code, code)
			assert.Contains(t, out, "RESULT: ❌ Some backend tests FAILED")
		})
	}
}

func TestRun_ConfigFailureMessage(t *testing.T) {
	envFile := writeEnv(t, "OTHER=1\n")

	_, out, _ := run(t, "run", "--env-file", envFile, "--no-color")

	assert.Contains(t, out, "❌ Could not get backend URL from "+envFile)
	assert.NotContains(t, out, "1. Testing root endpoint")
}

func TestRun_JSONOutputFile(t *testing.T) {
	server := fakeBackend(t)
	outFile := filepath.Join(t.TempDir(), "report.json")

	code, stdout, _ := run(t, "run", "--base-url", server.URL, "-o", "json", "--output-file", outFile)

	require.Equal(t, ExitSuccess, code)
	assert.Empty(t, stdout)

	data, err := os.ReadFile(outFile)
	require.NoError(t, err)
	var report output.JSONOutput
	require.NoError(t, json.Unmarshal(data, &report))
	assert.True(t, report.Passed)
	assert.Equal(t, "done", report.State)
	assert.NotEmpty(t, report.RunID)
	assert.Len(t, report.Steps, 3)
}

func TestRun_UsageErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"bad output format", []string{"run", "-o", "xml"}, "unknown output format"},
		{"bad timeout", []string{"run", "--timeout", "soon"}, "invalid timeout value"},
		{"bad header", []string{"run", "-H", "no-colon"}, "invalid header"},
		{"unknown flag", []string{"run", "--bogus"}, "unknown flag: --bogus"},
		{"unknown flag on root", []string{"--bogus"}, "unknown flag: --bogus"},
		{"bad bool", []string{"run", "--exit-code=maybe"}, "invalid argument"},
		{"unknown flag on stress", []string{"stress", "--bogus"}, "unknown flag: --bogus"},
		{"extra argument", []string{"run", "extra"}, `unknown command "extra"`},
		{"unknown command", []string{"bogus"}, `unknown command "bogus"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, stderr := run(t, tt.args...)
			assert.Equal(t, ExitUsageError, code)
			assert.Contains(t, stderr, tt.want)
		})
	}
}

func TestRun_EnvFallback(t *testing.T) {
	server := fakeBackend(t)
	t.Setenv("STATUSPROBE_BASE_URL", server.URL)
	t.Setenv("STATUSPROBE_OUTPUT", "tap")

	code, out, _ := run(t, "run")

	assert.Equal(t, ExitSuccess, code)
	assert.True(t, strings.HasPrefix(out, "TAP version 13\n1..3\n"), out)
}

func TestRun_ConfigFile(t *testing.T) {
	server := fakeBackend(t)
	envFile := writeEnv(t, "VITE_BACKEND_URL="+server.URL+"\n")
	cfgFile := filepath.Join(t.TempDir(), "statusprobe.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte("envFile: "+envFile+"\nkey: VITE_BACKEND_URL\noutput: json\n"), 0644))

	code, out, _ := run(t, "run", "--config", cfgFile, "-o", "console", "--no-color")

	assert.Equal(t, ExitSuccess, code)
	assert.Contains(t, out, "RESULT: ✅ All backend tests PASSED", "flag overrides the file's output format")
}

func TestRun_BadConfigFile(t *testing.T) {
	dir := t.TempDir()
	broken := filepath.Join(dir, "statusprobe.yaml")
	require.NoError(t, os.WriteFile(broken, []byte("timeout: [oops\n"), 0644))

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"unparsable yaml", []string{"run", "--config", broken, "--exit-code"}, "parsing " + broken},
		{"unparsable without exit-code", []string{"run", "--config", broken}, "parsing " + broken},
		{"missing file", []string{"run", "--config", filepath.Join(dir, "absent.yaml")}, "absent.yaml"},
		{"resolve", []string{"resolve", "--config", broken}, "parsing " + broken},
		{"stress", []string{"stress", "--config", broken}, "parsing " + broken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, out, stderr := run(t, tt.args...)

			assert.Equal(t, ExitConfigError, code)
			assert.Contains(t, stderr, tt.want)
			assert.Empty(t, out)
		})
	}
}

func TestRun_NotifiesSlack(t *testing.T) {
	server := fakeBackend(t, mock.WithFailure("create_status"))

	var (
		mu       sync.Mutex
		received []map[string]any
	)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		if json.NewDecoder(r.Body).Decode(&payload) == nil {
			mu.Lock()
			received = append(received, payload)
			mu.Unlock()
		}
		_, _ = io.WriteString(w, "ok")
	}))
	t.Cleanup(hook.Close)

	code, _, _ := run(t, "run", "--base-url", server.URL, "--notify-slack", hook.URL, "--exit-code", "--no-color")

	assert.Equal(t, ExitTestFailure, code)
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
	att := received[0]["attachments"].([]any)[0].(map[string]any)
	assert.Contains(t, att["title"], "Backend tests FAILED at create_status")
}

func TestRun_NotifyOnFailureSkipsPassingRun(t *testing.T) {
	server := fakeBackend(t)
	calls := 0
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	t.Cleanup(hook.Close)

	code, _, _ := run(t, "run", "--base-url", server.URL, "--notify-slack", hook.URL)

	assert.Equal(t, ExitSuccess, code)
	assert.Zero(t, calls)
}

func TestRun_BadNotifyPolicy(t *testing.T) {
	code, _, stderr := run(t, "run", "--notify-slack", "http://127.0.0.1:1", "--notify-on", "sometimes")

	assert.Equal(t, ExitUsageError, code)
	assert.Contains(t, stderr, "unknown notify policy")
}

func TestMockCommand_UnknownStep(t *testing.T) {
	code, _, stderr := run(t, "mock", "--fail", "delete_status")

	assert.Equal(t, ExitUsageError, code)
	assert.Contains(t, stderr, `unknown step "delete_status"`)
}

func TestResolveCommand(t *testing.T) {
	t.Run("resolved", func(t *testing.T) {
		envFile := writeEnv(t, "REACT_APP_BACKEND_URL=https://demo.example.com\n")

		code, out, _ := run(t, "resolve", "--env-file", envFile)

		assert.Equal(t, ExitSuccess, code)
		assert.Equal(t, "https://demo.example.com/api\n", out)
	})

	t.Run("custom prefix", func(t *testing.T) {
		code, out, _ := run(t, "resolve", "--base-url", "http://localhost:8001", "--api-prefix", "/v2")

		assert.Equal(t, ExitSuccess, code)
		assert.Equal(t, "http://localhost:8001/v2\n", out)
	})

	t.Run("key missing lists keys", func(t *testing.T) {
		envFile := writeEnv(t, "VITE_BACKEND_URL=http://x\nPORT=3000\n")

		code, _, stderr := run(t, "resolve", "--env-file", envFile)

		assert.Equal(t, ExitConfigError, code)
		assert.Contains(t, stderr, "Keys in "+envFile+":\n  VITE_BACKEND_URL\n  PORT\n")
	})
}

func TestInitCommand(t *testing.T) {
	oldWd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(oldWd) })

	code, out, _ := run(t, "init", "--env-file", "./frontend/.env")
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, out, "statusprobe.yaml")

	cfg, _, err := config.LoadConfig("statusprobe.yaml")
	require.NoError(t, err)
	assert.Equal(t, "./frontend/.env", cfg.EnvFile)
	assert.Equal(t, "REACT_APP_BACKEND_URL", cfg.Key)

	code, _, stderr := run(t, "init")
	assert.Equal(t, ExitTestFailure, code)
	assert.Contains(t, stderr, "file already exists")

	code, _, _ = run(t, "init", "--force")
	assert.Equal(t, ExitSuccess, code)
}

func TestParseHeaders(t *testing.T) {
	headers, err := parseHeaders([]string{"Authorization: Bearer abc", "X-Env:staging"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Authorization": "Bearer abc", "X-Env": "staging"}, headers)

	_, err = parseHeaders([]string{": value"})
	assert.Error(t, err)
}

func TestGetEnvBool(t *testing.T) {
	t.Setenv("STATUSPROBE_TEST_BOOL", "yes")
	assert.True(t, getEnvBool("STATUSPROBE_TEST_BOOL", false))

	t.Setenv("STATUSPROBE_TEST_BOOL", "0")
	assert.False(t, getEnvBool("STATUSPROBE_TEST_BOOL", true))

	assert.True(t, getEnvBool("STATUSPROBE_TEST_UNSET", true))
}

func TestStressCommand(t *testing.T) {
	server := fakeBackend(t)

	code, out, _ := run(t, "stress", "--base-url", server.URL, "-d", "300ms", "-r", "20",
		"--threshold", "max<30s", "--no-progress", "--no-color")

	assert.Equal(t, ExitSuccess, code)
	assert.Contains(t, out, "Stress testing backend APIs at: "+server.URL+"/api")
	assert.Contains(t, out, "All thresholds passed!")
}

func TestStressCommand_ThresholdFailure(t *testing.T) {
	server := fakeBackend(t, mock.WithFailure("root"))

	code, out, _ := run(t, "stress", "--base-url", server.URL, "-d", "200ms", "-r", "20",
		"--threshold", "errors<1%", "--json")

	assert.Equal(t, ExitTestFailure, code)
	var report map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &report), out)
	assert.Equal(t, false, report["passed"])
}

func TestStressCommand_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		code int
		want string
	}{
		{"bad threshold", []string{"stress", "--threshold", "p95>1s"}, ExitUsageError, "must use <"},
		{"bad rate", []string{"stress", "-r", "0"}, ExitUsageError, "rate must be positive"},
		{"missing env file", []string{"stress", "--env-file", filepath.Join(t.TempDir(), "missing.env")}, ExitConfigError, "Could not get backend URL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, stderr := run(t, tt.args...)
			assert.Equal(t, tt.code, code)
			assert.Contains(t, stderr, tt.want)
		})
	}
}

func TestRun_PrometheusMetricsFile(t *testing.T) {
	server := fakeBackend(t)
	promFile := filepath.Join(t.TempDir(), "statusprobe.prom")

	code, _, _ := run(t, "run", "--base-url", server.URL, "--metrics", "prometheus", "--metrics-file", promFile)

	require.Equal(t, ExitSuccess, code)
	data, err := os.ReadFile(promFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `statusprobe_up{target="`+server.URL+`/api"} 1`)
	assert.Contains(t, string(data), `statusprobe_runs_total{target="`+server.URL+`/api",result="passed"} 1`)
}

func TestStress_JSONMetricsFile(t *testing.T) {
	server := fakeBackend(t)
	metricsFile := filepath.Join(t.TempDir(), "metrics.json")

	code, _, _ := run(t, "stress", "--base-url", server.URL, "-d", "200ms", "-r", "10",
		"--no-progress", "--metrics", "json", "--metrics-file", metricsFile)

	require.Equal(t, ExitSuccess, code)
	data, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	var out struct {
		Summary struct {
			Runs int64 `json:"runs"`
		} `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Positive(t, out.Summary.Runs)
}

func TestRun_MetricsUsageErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"unknown format", []string{"run", "--metrics", "statsd"}, "unknown metrics format"},
		{"prometheus without target", []string{"run", "--metrics", "prometheus"}, "need --metrics-file or --metrics-addr"},
		{"shared file", []string{"run", "--metrics", "json,prometheus", "--metrics-file", "m.out"}, "already used by json metrics"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, stderr := run(t, tt.args...)
			assert.Equal(t, ExitUsageError, code)
			assert.Contains(t, stderr, tt.want)
		})
	}
}

func TestRun_OAuth2(t *testing.T) {
	server := fakeBackend(t)
	var (
		mu     sync.Mutex
		grants []string
	)
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		mu.Lock()
		grants = append(grants, r.PostForm.Get("grant_type"))
		mu.Unlock()
		if r.PostForm.Get("client_id") == "" && r.Header.Get("Authorization") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"error":"invalid_client","error_description":"no credentials"}`)
			return
		}
		_, _ = io.WriteString(w, `{"access_token":"abc","expires_in":3600}`)
	}))
	t.Cleanup(tokenServer.Close)

	t.Run("token fetched once", func(t *testing.T) {
		code, out, _ := run(t, "run", "--base-url", server.URL, "--no-color", "--exit-code",
			"--oauth2-token-url", tokenServer.URL, "--oauth2-client-id", "probe", "--oauth2-client-secret", "s3cret")

		assert.Equal(t, ExitSuccess, code)
		assert.Contains(t, out, "RESULT: ✅ All backend tests PASSED")
		mu.Lock()
		assert.Equal(t, []string{"client_credentials"}, grants)
		mu.Unlock()
	})

	t.Run("rejected credentials", func(t *testing.T) {
		code, out, _ := run(t, "run", "--base-url", server.URL, "--no-color", "--exit-code",
			"--oauth2-token-url", tokenServer.URL, "--oauth2-client-id", "probe")

		assert.Equal(t, ExitConfigError, code)
		assert.Contains(t, out, "❌ Could not get access token: token request failed: invalid_client - no credentials")
		assert.NotContains(t, out, "1. Testing root endpoint")
	})

	t.Run("bad grant", func(t *testing.T) {
		code, _, stderr := run(t, "run", "--base-url", server.URL,
			"--oauth2-token-url", tokenServer.URL, "--oauth2-client-id", "probe", "--oauth2-grant", "implicit")

		assert.Equal(t, ExitUsageError, code)
		assert.Contains(t, stderr, "unsupported OAuth2 grant type")
	})
}

func countingBackend(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	logger, _ := logtest.NewNullLogger()
	handler := mock.NewServer(mock.WithLogger(logger)).Handler()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestFileWatcher_Run(t *testing.T) {
	envFile := writeEnv(t, "VITE_BACKEND_URL=http://a\n")
	missing := filepath.Join(t.TempDir(), "gone", "statusprobe.yaml")
	logger, _ := logtest.NewNullLogger()

	w, err := newFileWatcher([]string{envFile, missing}, logger)
	require.NoError(t, err)
	defer w.Close()

	var runs atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := new(bytes.Buffer)
	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx, out, func() { runs.Add(1) })
	}()

	for _, url := range []string{"http://b", "http://c", "http://d"} {
		require.NoError(t, os.WriteFile(envFile, []byte("VITE_BACKEND_URL="+url+"\n"), 0644))
	}
	require.Eventually(t, func() bool { return runs.Load() >= 1 }, 5*time.Second, 20*time.Millisecond)
	time.Sleep(3 * WatchDebounceDelay)
	assert.Equal(t, int32(1), runs.Load(), "a burst of writes reruns once")

	other := filepath.Join(filepath.Dir(envFile), "notes.txt")
	require.NoError(t, os.WriteFile(other, []byte("x"), 0644))
	time.Sleep(3 * WatchDebounceDelay)
	assert.Equal(t, int32(1), runs.Load(), "unwatched files in the same directory are ignored")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after the context was cancelled")
	}
	assert.Contains(t, out.String(), "File changed: "+envFile)
}

func TestNewFileWatcher_NothingToWatch(t *testing.T) {
	logger, _ := logtest.NewNullLogger()

	_, err := newFileWatcher([]string{filepath.Join(t.TempDir(), "gone", ".env")}, logger)

	assert.EqualError(t, err, "nothing to watch")
}

func TestRun_WatchReloadsConfig(t *testing.T) {
	var hitsA, hitsB atomic.Int32
	serverA := countingBackend(t, &hitsA)
	serverB := countingBackend(t, &hitsB)

	cfgFile := filepath.Join(t.TempDir(), "statusprobe.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte("baseURL: "+serverA.URL+"\n"), 0644))

	resetFlags(t)
	rootCmd.SetOut(io.Discard)
	rootCmd.SetErr(io.Discard)
	t.Cleanup(func() {
		resetFlags(t)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan int, 1)
	go func() {
		done <- executeContext(ctx, []string{"--config", cfgFile, "--watch", "--no-color"})
	}()

	require.Eventually(t, func() bool { return hitsA.Load() >= 3 }, 5*time.Second, 20*time.Millisecond)

	// The watcher starts after the first run, so keep writing until a rerun
	// picks the new file up.
	require.Eventually(t, func() bool {
		_ = os.WriteFile(cfgFile, []byte("baseURL: "+serverB.URL+"\n"), 0644)
		return hitsB.Load() >= 3
	}, 10*time.Second, 2*WatchDebounceDelay)
	seenA := hitsA.Load()

	cancel()
	select {
	case code := <-done:
		assert.Equal(t, ExitSuccess, code)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop after the context was cancelled")
	}
	assert.Equal(t, seenA, hitsA.Load(), "reruns after the reload go to the new backend")
}

func TestReloadSession(t *testing.T) {
	resetFlags(t)
	t.Cleanup(func() { resetFlags(t) })
	logger, _ := logtest.NewNullLogger()

	cfgFile := filepath.Join(t.TempDir(), "statusprobe.yaml")
	require.NoError(t, os.WriteFile(cfgFile,
		[]byte("baseURL: http://a\nnotify:\n  slack: http://hooks/a\n"), 0644))
	require.NoError(t, rootCmd.ParseFlags([]string{"--config", cfgFile}))

	settings, _, err := loadSettings(rootCmd)
	require.NoError(t, err)
	first, err := newSession(settings, logger)
	require.NoError(t, err)
	require.NotNil(t, first.notifier)

	t.Run("picks up the new file", func(t *testing.T) {
		require.NoError(t, os.WriteFile(cfgFile,
			[]byte("baseURL: http://b\nnotify:\n  slack: http://hooks/a\n"), 0644))

		next, err := reloadSession(rootCmd, first, logger)

		require.NoError(t, err)
		assert.Equal(t, "http://b", next.settings.BaseURL)
		assert.Same(t, first.notifier, next.notifier, "unchanged notify settings keep the notifier")
	})

	t.Run("new notify settings rebuild the notifier", func(t *testing.T) {
		require.NoError(t, os.WriteFile(cfgFile,
			[]byte("baseURL: http://b\nnotify:\n  slack: http://hooks/b\n"), 0644))

		next, err := reloadSession(rootCmd, first, logger)

		require.NoError(t, err)
		assert.NotSame(t, first.notifier, next.notifier)
	})

	t.Run("broken file is an error", func(t *testing.T) {
		require.NoError(t, os.WriteFile(cfgFile, []byte("timeout: [oops\n"), 0644))

		_, err := reloadSession(rootCmd, first, logger)

		var ee *exitError
		require.ErrorAs(t, err, &ee)
		assert.Equal(t, ExitConfigError, ee.code)
	})
}

func TestRun_JSONReportAndJSONMetrics(t *testing.T) {
	server := fakeBackend(t)

	code, out, stderr := run(t, "run", "--base-url", server.URL, "-o", "json", "--metrics", "json")

	require.Equal(t, ExitSuccess, code)
	var report output.JSONOutput
	require.NoError(t, json.Unmarshal([]byte(out), &report), "stdout holds only the report")

	var metricsOut struct {
		Summary struct {
			Runs int64 `json:"runs"`
		} `json:"summary"`
	}
	require.NoError(t, json.NewDecoder(strings.NewReader(stderr)).Decode(&metricsOut))
	assert.Equal(t, int64(1), metricsOut.Summary.Runs)
}
