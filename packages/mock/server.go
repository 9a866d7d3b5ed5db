// Package mock serves an in-memory status-check backend. It answers the same
// three endpoints the probes call and can be told to fail any of them, which
// makes it a target for trying the CLI and for tests.
package mock

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/abdul-hamid-achik/statusprobe/packages/core/runner"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	DefaultHost     = "127.0.0.1"
	DefaultPort     = 8001
	DefaultGreeting = "Hello World"

	shutdownTimeout = 5 * time.Second
)

// StatusCheck is a record created through POST /status.
type StatusCheck struct {
	ID         string    `json:"id"`
	ClientName string    `json:"client_name"`
	Timestamp  time.Time `json:"timestamp"`
}

// Server is a fake backend holding status checks in memory.
type Server struct {
	host      string
	port      int
	apiPrefix string
	greeting  string
	delay     time.Duration
	failing   map[string]bool
	hideNew   bool
	log       logrus.FieldLogger

	mu     sync.Mutex
	checks []StatusCheck

	listener net.Listener
	handler  http.Handler
}

// Option is a functional option for Server
type Option func(*Server)

func WithHost(host string) Option {
	return func(s *Server) {
		s.host = host
	}
}

// WithPort sets the listening port. Zero picks a free one.
func WithPort(port int) Option {
	return func(s *Server) {
		s.port = port
	}
}

func WithAPIPrefix(prefix string) Option {
	return func(s *Server) {
		s.apiPrefix = prefix
	}
}

// WithGreeting changes the message returned by the root endpoint.
func WithGreeting(msg string) Option {
	return func(s *Server) {
		s.greeting = msg
	}
}

// WithDelay adds a delay to all responses
func WithDelay(delay time.Duration) Option {
	return func(s *Server) {
		s.delay = delay
	}
}

// WithFailure makes the endpoints behind the given probe steps answer 500.
func WithFailure(steps ...string) Option {
	return func(s *Server) {
		for _, step := range steps {
			s.failing[step] = true
		}
	}
}

// WithHiddenChecks leaves created checks out of the list, so the list probe
// passes with a warning once the store is non-empty.
func WithHiddenChecks() Option {
	return func(s *Server) {
		s.hideNew = true
	}
}

// WithSeed preloads the store.
func WithSeed(checks ...StatusCheck) Option {
	return func(s *Server) {
		s.checks = append(s.checks, checks...)
	}
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// NewServer returns a server; nothing listens until Listen is called.
func NewServer(opts ...Option) *Server {
	s := &Server{
		host:      DefaultHost,
		port:      DefaultPort,
		apiPrefix: runner.DefaultAPIPrefix,
		greeting:  DefaultGreeting,
		failing:   make(map[string]bool),
		log:       logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.handler = s.routes()
	return s
}

// Handler returns the backend as an http.Handler, for use with httptest.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Checks returns a copy of the stored status checks in creation order.
func (s *Server) Checks() []StatusCheck {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]StatusCheck, len(s.checks))
	copy(out, s.checks)
	return out
}

// Failing returns the probe steps configured to fail, sorted.
func (s *Server) Failing() []string {
	steps := make([]string, 0, len(s.failing))
	for step := range s.failing {
		steps = append(steps, step)
	}
	sort.Strings(steps)
	return steps
}

// Listen binds the listening socket. When the port is 0 the chosen port is
// available from URL afterwards.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", net.JoinHostPort(s.host, fmt.Sprint(s.port)))
	if err != nil {
		return err
	}
	s.listener = ln
	s.port = ln.Addr().(*net.TCPAddr).Port
	return nil
}

// URL returns the backend URL without the API prefix.
func (s *Server) URL() string {
	return fmt.Sprintf("http://%s", net.JoinHostPort(s.host, fmt.Sprint(s.port)))
}

// Serve answers requests until ctx is done, then shuts down gracefully.
// Listen is called first if it has not been.
func (s *Server) Serve(ctx context.Context) error {
	if s.listener == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	server := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			s.log.WithError(err).Warn("mock backend shutdown")
		}
	}()

	s.log.WithField("url", s.URL()+s.apiPrefix).Info("mock backend listening")
	err := server.Serve(s.listener)
	if errors.Is(err, http.ErrServerClosed) {
		<-done
		return nil
	}
	return err
}

func (s *Server) create(clientName string) StatusCheck {
	check := StatusCheck{
		ID:         uuid.NewString(),
		ClientName: clientName,
		Timestamp:  time.Now().UTC(),
	}
	if s.hideNew {
		return check
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks = append(s.checks, check)
	return check
}
