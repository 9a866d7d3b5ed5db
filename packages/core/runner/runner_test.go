package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/abdul-hamid-achik/statusprobe/packages/core/env"
	httpclient "github.com/abdul-hamid-achik/statusprobe/packages/http"
	"github.com/abdul-hamid-achik/statusprobe/packages/probe"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// backend is a scripted stand-in for the API under test.
type backend struct {
	mu         sync.Mutex
	calls      []string
	requestIDs []string

	root   func(w http.ResponseWriter)
	create func(w http.ResponseWriter)
	list   func(w http.ResponseWriter)
}

func reply(status int, body string) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}
}

func healthyBackend() *backend {
	return &backend{
		root:   reply(200, `{"message": "Hello World"}`),
		create: reply(200, `{"id": "abc123", "client_name": "Test Client for Backend Verification", "timestamp": "2024-01-01T00:00:00Z"}`),
		list:   reply(200, `[{"id": "abc123", "client_name": "Test Client for Backend Verification", "timestamp": "2024-01-01T00:00:00Z"}]`),
	}
}

func (b *backend) serve(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.calls = append(b.calls, r.Method+" "+r.URL.Path)
		b.requestIDs = append(b.requestIDs, r.Header.Get(probe.RequestIDHeader))
		b.mu.Unlock()

		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/":
			b.root(w)
		case r.Method == http.MethodPost && r.URL.Path == "/api/status":
			b.create(w)
		case r.Method == http.MethodGet && r.URL.Path == "/api/status":
			b.list(w)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func (b *backend) Calls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.calls...)
}

func writeEnvFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// recorder captures reporter callbacks in order.
type recorder struct {
	events []string
	steps  []*StepResult
}

func (r *recorder) OnStart(run *RunResult) {
	r.events = append(r.events, "start:"+run.APIBase)
}

func (r *recorder) OnStepStart(step Step) {
	r.events = append(r.events, fmt.Sprintf("step:%d", step.Number))
}

func (r *recorder) OnStepResult(step *StepResult) {
	r.events = append(r.events, fmt.Sprintf("result:%d:%s", step.Number, step.Status))
	r.steps = append(r.steps, step)
}

func (r *recorder) OnFinish(run *RunResult) {
	r.events = append(r.events, fmt.Sprintf("finish:%t", run.Passed))
}

func newTestRunner(t *testing.T, envFile string, rec *recorder) *Runner {
	t.Helper()
	logger, _ := test.NewNullLogger()
	opts := []Option{WithLogger(logger)}
	if rec != nil {
		opts = append(opts, WithReporter(rec))
	}
	return NewRunner(&Config{EnvFile: envFile, Timeout: 2 * time.Second}, opts...)
}

func TestNewRunner(t *testing.T) {
	t.Run("with nil config", func(t *testing.T) {
		r := NewRunner(nil)
		require.NotNil(t, r)
		assert.NotNil(t, r.client)
		assert.Equal(t, env.DefaultEnvFile, r.config.EnvFile)
		assert.Equal(t, env.DefaultURLKey, r.config.URLKey)
		assert.Equal(t, DefaultAPIPrefix, r.config.APIPrefix)
		assert.Equal(t, probe.DefaultClientName, r.config.ClientName)
		assert.Equal(t, httpclient.DefaultTimeout, r.client.Timeout())
	})

	t.Run("with custom config", func(t *testing.T) {
		cfg := &Config{EnvFile: "custom.env", Timeout: 3 * time.Second}
		r := NewRunner(cfg)
		assert.Equal(t, "custom.env", r.config.EnvFile)
		assert.Equal(t, 3*time.Second, r.client.Timeout())
		assert.Equal(t, "", cfg.URLKey, "caller config must not be modified")
	})
}

func TestRunner_Run_AllPass(t *testing.T) {
	b := healthyBackend()
	server := b.serve(t)
	envFile := writeEnvFile(t, "REACT_APP_BACKEND_URL="+server.URL+"\n")
	rec := &recorder{}

	result := newTestRunner(t, envFile, rec).Run(context.Background())

	assert.True(t, result.Passed)
	assert.Equal(t, StateDone, result.State)
	assert.NoError(t, result.Err)
	assert.Equal(t, server.URL+"/api", result.APIBase)
	assert.Equal(t, []string{"GET /api/", "POST /api/status", "GET /api/status"}, b.Calls())
	require.Len(t, result.Steps, 3)
	assert.Equal(t, "Root endpoint working correctly", result.Steps[0].Message)
	assert.Equal(t, "POST /status endpoint working correctly", result.Steps[1].Message)
	assert.Equal(t, "abc123", result.Steps[1].Captures["id"])
	assert.Equal(t, "GET /status endpoint working correctly", result.Steps[2].Message)
	assert.Zero(t, result.Warnings())

	assert.Equal(t, []string{
		"start:" + server.URL + "/api",
		"step:1", "result:1:passed",
		"step:2", "result:2:passed",
		"step:3", "result:3:passed",
		"finish:true",
	}, rec.events)
}

func TestRunner_Run_SendsRunID(t *testing.T) {
	b := healthyBackend()
	server := b.serve(t)
	envFile := writeEnvFile(t, "REACT_APP_BACKEND_URL="+server.URL+"\n")

	result := newTestRunner(t, envFile, nil).Run(context.Background())

	require.NotEmpty(t, result.RunID)
	require.Len(t, b.requestIDs, 3)
	for _, id := range b.requestIDs {
		assert.Equal(t, result.RunID, id)
	}
}

func TestRunner_Run_ConfigError(t *testing.T) {
	tests := []struct {
		name   string
		env    *string
		detail string
	}{
		{name: "missing file", env: nil, detail: "Error reading"},
		{name: "key absent", env: strPtr("OTHER=1\n")},
		{name: "indented key", env: strPtr("  REACT_APP_BACKEND_URL=http://x\n")},
		{name: "empty value", env: strPtr("REACT_APP_BACKEND_URL=\n")},
		{name: "not a URL", env: strPtr("REACT_APP_BACKEND_URL=localhost:8001\n"), detail: "Invalid backend URL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := healthyBackend()
			b.serve(t)

			envFile := filepath.Join(t.TempDir(), "missing.env")
			if tt.env != nil {
				envFile = writeEnvFile(t, *tt.env)
			}
			rec := &recorder{}

			result := newTestRunner(t, envFile, rec).Run(context.Background())

			assert.False(t, result.Passed)
			assert.Equal(t, StateFailed, result.State)
			assert.Empty(t, result.APIBase)
			assert.Empty(t, b.Calls())
			assert.Equal(t, KindConfig, KindOf(result.Err))

			require.Len(t, result.Steps, 1)
			step := result.Steps[0]
			assert.Equal(t, StepConfig, step.Name)
			assert.Equal(t, "Could not get backend URL from "+envFile, step.Message)
			if tt.detail != "" {
				assert.Contains(t, step.Detail, tt.detail)
			} else {
				assert.Empty(t, step.Detail)
			}

			assert.Equal(t, []string{"start:", "result:0:failed", "finish:false"}, rec.events)
		})
	}
}

func strPtr(s string) *string { return &s }

func TestRunner_Run_BaseURLSkipsEnvFile(t *testing.T) {
	b := healthyBackend()
	server := b.serve(t)
	logger, _ := test.NewNullLogger()

	r := NewRunner(&Config{
		EnvFile: filepath.Join(t.TempDir(), "missing.env"),
		BaseURL: server.URL,
	}, WithLogger(logger))
	result := r.Run(context.Background())

	assert.True(t, result.Passed)
	assert.Len(t, b.Calls(), 3)
}

func TestRunner_Run_RootUnexpectedData(t *testing.T) {
	b := healthyBackend()
	b.root = reply(200, `{"message": "Goodbye"}`)
	server := b.serve(t)
	envFile := writeEnvFile(t, "REACT_APP_BACKEND_URL="+server.URL+"\n")

	result := newTestRunner(t, envFile, nil).Run(context.Background())

	assert.False(t, result.Passed)
	assert.Equal(t, StateFailed, result.State)
	assert.Equal(t, []string{"GET /api/"}, b.Calls())
	require.Len(t, result.Steps, 1)
	assert.Equal(t, KindProtocol, result.Steps[0].Kind)
	assert.Equal(t, `Root endpoint returned unexpected data: {"message": "Goodbye"}`, result.Steps[0].Message)
	assert.Equal(t, KindProtocol, KindOf(result.Err))
}

func TestRunner_Run_CreateServerError(t *testing.T) {
	b := healthyBackend()
	b.create = reply(500, `Internal Server Error`)
	server := b.serve(t)
	envFile := writeEnvFile(t, "REACT_APP_BACKEND_URL="+server.URL+"\n")

	result := newTestRunner(t, envFile, nil).Run(context.Background())

	assert.False(t, result.Passed)
	assert.Equal(t, []string{"GET /api/", "POST /api/status"}, b.Calls())
	require.Len(t, result.Steps, 2)
	step := result.Steps[1]
	assert.Equal(t, StatusFailed, step.Status)
	assert.Equal(t, "POST /status failed with status 500", step.Message)
	assert.Equal(t, "Response: Internal Server Error", step.Detail)
	assert.Equal(t, 500, step.StatusCode)
}

func TestRunner_Run_ListOutcomes(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		status  StepStatus
		message string
	}{
		{
			name:    "created item found",
			body:    `[{"id": "abc123"}]`,
			status:  StatusPassed,
			message: "GET /status endpoint working correctly",
		},
		{
			name:    "created item missing",
			body:    `[{"id": "zzz999", "client_name": "x", "timestamp": "t"}]`,
			status:  StatusWarning,
			message: "GET /status working but created item not found",
		},
		{
			name:    "empty list",
			body:    `[]`,
			status:  StatusPassed,
			message: "GET /status endpoint working (empty list)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := healthyBackend()
			b.list = reply(200, tt.body)
			server := b.serve(t)
			envFile := writeEnvFile(t, "REACT_APP_BACKEND_URL="+server.URL+"\n")

			result := newTestRunner(t, envFile, nil).Run(context.Background())

			assert.True(t, result.Passed)
			require.Len(t, result.Steps, 3)
			assert.Equal(t, tt.status, result.Steps[2].Status)
			assert.Equal(t, tt.message, result.Steps[2].Message)
		})
	}
}

func TestRunner_Run_ListWarningKind(t *testing.T) {
	b := healthyBackend()
	b.list = reply(200, `[{"id": "zzz999"}]`)
	server := b.serve(t)
	envFile := writeEnvFile(t, "REACT_APP_BACKEND_URL="+server.URL+"\n")

	result := newTestRunner(t, envFile, nil).Run(context.Background())

	assert.True(t, result.Passed)
	assert.Equal(t, 1, result.Warnings())
	assert.Equal(t, KindValidationWarning, result.Steps[2].Kind)
	assert.Nil(t, result.Failed())
}

func TestRunner_Run_ListNotAnArray(t *testing.T) {
	b := healthyBackend()
	b.list = reply(200, `{"items": []}`)
	server := b.serve(t)
	envFile := writeEnvFile(t, "REACT_APP_BACKEND_URL="+server.URL+"\n")

	result := newTestRunner(t, envFile, nil).Run(context.Background())

	assert.False(t, result.Passed)
	require.NotNil(t, result.Failed())
	assert.Equal(t, StepList, result.Failed().Name)
	assert.Equal(t, KindProtocol, result.Failed().Kind)
}

func TestRunner_Run_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()
	envFile := writeEnvFile(t, "REACT_APP_BACKEND_URL="+url+"\n")

	result := newTestRunner(t, envFile, nil).Run(context.Background())

	assert.False(t, result.Passed)
	require.Len(t, result.Steps, 1)
	assert.Equal(t, KindNetwork, result.Steps[0].Kind)
	assert.Contains(t, result.Steps[0].Message, "Network error during API testing: ")
	assert.Equal(t, KindNetwork, KindOf(result.Err))
}

func TestRunner_Run_Timeout(t *testing.T) {
	b := healthyBackend()
	b.create = func(w http.ResponseWriter) {
		time.Sleep(300 * time.Millisecond)
		reply(200, `{}`)(w)
	}
	server := b.serve(t)
	envFile := writeEnvFile(t, "REACT_APP_BACKEND_URL="+server.URL+"\n")
	logger, _ := test.NewNullLogger()

	r := NewRunner(&Config{EnvFile: envFile, Timeout: 50 * time.Millisecond}, WithLogger(logger))
	result := r.Run(context.Background())

	assert.False(t, result.Passed)
	require.Len(t, result.Steps, 2)
	assert.Equal(t, KindNetwork, result.Steps[1].Kind)
}

func TestRunner_Run_Canceled(t *testing.T) {
	b := healthyBackend()
	server := b.serve(t)
	envFile := writeEnvFile(t, "REACT_APP_BACKEND_URL="+server.URL+"\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := newTestRunner(t, envFile, nil).Run(ctx)

	assert.False(t, result.Passed)
	require.Len(t, result.Steps, 1)
	assert.Equal(t, KindUnexpected, result.Steps[0].Kind)
	assert.Contains(t, result.Steps[0].Message, "Unexpected error during API testing: ")
}

func TestRunner_RunStep_RecoversPanic(t *testing.T) {
	rec := &recorder{}
	logger, _ := test.NewNullLogger()
	r := NewRunner(nil, WithReporter(rec), WithLogger(logger))

	sr := r.runStep(context.Background(), Steps()[0], func(context.Context) (*probe.Outcome, error) {
		panic("boom")
	})

	assert.Equal(t, StatusFailed, sr.Status)
	assert.Equal(t, KindUnexpected, sr.Kind)
	assert.Equal(t, "Unexpected error during API testing: panic: boom", sr.Message)
	assert.Equal(t, []string{"step:1", "result:1:failed"}, rec.events)
}

func TestRunner_Run_LogsRunID(t *testing.T) {
	b := healthyBackend()
	server := b.serve(t)
	envFile := writeEnvFile(t, "REACT_APP_BACKEND_URL="+server.URL+"\n")

	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	result := NewRunner(&Config{EnvFile: envFile}, WithLogger(logger)).Run(context.Background())

	require.NotEmpty(t, hook.AllEntries())
	found := false
	for _, entry := range hook.AllEntries() {
		if entry.Data["run_id"] == result.RunID {
			found = true
			break
		}
	}
	assert.True(t, found, "expected a log entry tagged with the run ID")
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, KindNone},
		{"step error", &StepError{Kind: KindNetwork}, KindNetwork},
		{"wrapped step error", fmt.Errorf("x: %w", &StepError{Kind: KindConfig}), KindConfig},
		{"protocol", &probe.ResponseError{Reason: probe.ErrUnexpectedStatus}, KindProtocol},
		{"key not found", fmt.Errorf("%w: KEY", env.ErrKeyNotFound), KindConfig},
		{"invalid url", fmt.Errorf("%w: no host", httpclient.ErrInvalidURL), KindConfig},
		{"deadline", context.DeadlineExceeded, KindNetwork},
		{"canceled", context.Canceled, KindUnexpected},
		{"other", errors.New("boom"), KindUnexpected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestErrorKind_String(t *testing.T) {
	assert.Equal(t, "ConfigError", KindConfig.String())
	assert.Equal(t, "NetworkError", KindNetwork.String())
	assert.Equal(t, "ProtocolError", KindProtocol.String())
	assert.Equal(t, "ValidationWarning", KindValidationWarning.String())
	assert.Equal(t, "UnexpectedError", KindUnexpected.String())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "start", StateStart.String())
	assert.Equal(t, "done", StateDone.String())
	assert.Equal(t, "failed", StateFailed.String())
}

type staticToken struct {
	token string
	err   error
	calls int
}

func (s *staticToken) Token(context.Context) (string, error) {
	s.calls++
	return s.token, s.err
}

func TestRunner_Run_SendsBearerToken(t *testing.T) {
	var (
		mu   sync.Mutex
		auth []string
	)
	b := healthyBackend()
	inner := b.serve(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		auth = append(auth, r.Header.Get("Authorization"))
		mu.Unlock()
		inner.Config.Handler.ServeHTTP(w, r)
	}))
	t.Cleanup(server.Close)

	logger, _ := test.NewNullLogger()
	tokens := &staticToken{token: "abc"}
	result := NewRunner(&Config{BaseURL: server.URL, Auth: tokens}, WithLogger(logger)).Run(context.Background())

	require.True(t, result.Passed)
	assert.Equal(t, 1, tokens.calls)
	assert.Equal(t, []string{"Bearer abc", "Bearer abc", "Bearer abc"}, auth)
}

func TestRunner_Run_AuthFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind ErrorKind
	}{
		{"rejected credentials", errors.New("token request failed: invalid_client - bad secret"), KindConfig},
		{"unreachable token endpoint", fmt.Errorf("token request failed: %w", context.DeadlineExceeded), KindNetwork},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := healthyBackend()
			server := b.serve(t)
			rec := &recorder{}
			logger, _ := test.NewNullLogger()

			result := NewRunner(&Config{BaseURL: server.URL, Auth: &staticToken{err: tt.err}},
				WithLogger(logger), WithReporter(rec)).Run(context.Background())

			assert.False(t, result.Passed)
			assert.Equal(t, StateFailed, result.State)
			assert.Equal(t, tt.kind, KindOf(result.Err))
			assert.Empty(t, b.Calls())
			require.Len(t, result.Steps, 1)
			assert.Equal(t, StepAuth, result.Steps[0].Name)
			assert.Contains(t, result.Steps[0].Message, "Could not get access token")
			assert.Equal(t, []string{"start:" + server.URL + "/api", "result:0:failed", "finish:false"}, rec.events)
		})
	}
}
