package mock

import (
	"net/http"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/statusprobe/packages/core/runner"
	"github.com/abdul-hamid-achik/statusprobe/packages/probe"
	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"
)

// Route describes one endpoint of the backend.
type Route struct {
	Method string
	Path   string
	Step   string
}

// Routes lists the endpoints in the order the probes call them.
func (s *Server) Routes() []Route {
	prefix := strings.TrimSuffix(s.apiPrefix, "/")
	return []Route{
		{Method: http.MethodGet, Path: prefix + "/", Step: runner.StepRoot},
		{Method: http.MethodPost, Path: prefix + "/status", Step: runner.StepCreate},
		{Method: http.MethodGet, Path: prefix + "/status", Step: runner.StepList},
	}
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func (s *Server) routes() http.Handler {
	api := chi.NewRouter()
	api.Get("/", s.guard(runner.StepRoot, s.handleRoot))
	api.Post("/status", s.guard(runner.StepCreate, s.handleCreate))
	api.Get("/status", s.guard(runner.StepList, s.handleList))

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Use(s.accessLog)
	router.Use(s.slowdown)

	prefix := strings.TrimSuffix(s.apiPrefix, "/")
	if prefix == "" {
		router.Mount("/", api)
	} else {
		router.Mount(prefix, api)
	}
	return router
}

// guard answers 500 for steps configured to fail.
func (s *Server) guard(step string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.failing[step] {
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{"message": s.greeting})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var body probe.StatusCheckRequest
	if err := render.DecodeJSON(r.Body, &body); err != nil {
		render.Status(r, http.StatusUnprocessableEntity)
		render.JSON(w, r, errorResponse{Detail: "request body must be JSON: " + err.Error()})
		return
	}
	if body.ClientName == "" {
		render.Status(r, http.StatusUnprocessableEntity)
		render.JSON(w, r, errorResponse{Detail: "client_name is required"})
		return
	}

	render.JSON(w, r, s.create(body.ClientName))
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, s.Checks())
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"request_id": r.Header.Get(probe.RequestIDHeader),
			"duration":   time.Since(start),
		}).Debug("mock request")
	})
}

// slowdown holds every response for the configured delay, giving up early
// when the client goes away.
func (s *Server) slowdown(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.delay > 0 {
			timer := time.NewTimer(s.delay)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-r.Context().Done():
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
