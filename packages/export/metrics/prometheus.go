package metrics

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
)

const prometheusContentType = "text/plain; version=0.0.4; charset=utf-8"

// PrometheusExporter writes the aggregate in Prometheus text format. A file
// target suits the node_exporter textfile collector; the HTTP endpoint
// serves the latest aggregate while watching.
type PrometheusExporter struct {
	mu        sync.RWMutex
	aggregate *Aggregate
	writer    io.Writer
	filePath  string
	server    *http.Server
}

type PrometheusOption func(*PrometheusExporter)

func WithPrometheusWriter(w io.Writer) PrometheusOption {
	return func(p *PrometheusExporter) {
		p.writer = w
	}
}

// WithPrometheusFile writes each export to path, replacing it atomically.
func WithPrometheusFile(path string) PrometheusOption {
	return func(p *PrometheusExporter) {
		p.filePath = path
	}
}

func NewPrometheusExporter(opts ...PrometheusOption) *PrometheusExporter {
	p := &PrometheusExporter{aggregate: newAggregate()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Handler serves the latest aggregate on /metrics.
func (p *PrometheusExporter) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		p.mu.RLock()
		defer p.mu.RUnlock()
		w.Header().Set("Content-Type", prometheusContentType)
		p.writeMetrics(w)
	})
	return r
}

// Listen starts serving Handler on addr and returns the bound address.
func (p *PrometheusExporter) Listen(addr string) (net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("cannot listen for metrics: %w", err)
	}
	p.server = &http.Server{Handler: p.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		_ = p.server.Serve(ln)
	}()
	return ln.Addr(), nil
}

func (p *PrometheusExporter) Export(agg *Aggregate) error {
	p.mu.Lock()
	p.aggregate = agg
	p.mu.Unlock()

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.writer != nil {
		p.writeMetrics(p.writer)
	}
	if p.filePath != "" {
		var buf bytes.Buffer
		p.writeMetrics(&buf)
		if err := writeFileAtomic(p.filePath, buf.Bytes()); err != nil {
			return fmt.Errorf("failed to write metrics file: %w", err)
		}
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func (p *PrometheusExporter) writeMetrics(w io.Writer) {
	a := p.aggregate
	target := fmt.Sprintf(`target="%s"`, sanitizeLabel(a.APIBase))

	family := func(name, kind, help string) {
		fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		fmt.Fprintf(w, "# TYPE %s %s\n", name, kind)
	}

	family("statusprobe_up", "gauge", "Whether the last run passed")
	fmt.Fprintf(w, "statusprobe_up{%s} %d\n", target, boolValue(a.LastPassed))
	fmt.Fprintln(w)

	if !a.LastRunAt.IsZero() {
		family("statusprobe_last_run_timestamp_seconds", "gauge", "Unix time of the last run")
		fmt.Fprintf(w, "statusprobe_last_run_timestamp_seconds{%s} %d\n", target, a.LastRunAt.Unix())
		fmt.Fprintln(w)
	}

	family("statusprobe_runs_total", "counter", "Probe runs by result")
	fmt.Fprintf(w, "statusprobe_runs_total{%s,result=\"passed\"} %d\n", target, a.Passed)
	fmt.Fprintf(w, "statusprobe_runs_total{%s,result=\"failed\"} %d\n", target, a.Failed)
	fmt.Fprintln(w)

	family("statusprobe_runs_warned_total", "counter", "Passing runs that raised a validation warning")
	fmt.Fprintf(w, "statusprobe_runs_warned_total{%s} %d\n", target, a.Warnings)
	fmt.Fprintln(w)

	if len(a.Failures) > 0 {
		family("statusprobe_failures_total", "counter", "Failed runs by error kind")
		kinds := make([]string, 0, len(a.Failures))
		for kind := range a.Failures {
			kinds = append(kinds, kind)
		}
		sort.Strings(kinds)
		for _, kind := range kinds {
			fmt.Fprintf(w, "statusprobe_failures_total{%s,kind=\"%s\"} %d\n", target, sanitizeLabel(kind), a.Failures[kind])
		}
		fmt.Fprintln(w)
	}

	family("statusprobe_run_duration_ms", "gauge", "Run duration in milliseconds")
	quantiles := []struct {
		label string
		value float64
	}{
		{"min", a.MinDurationMs},
		{"max", a.MaxDurationMs},
		{"avg", a.AvgDurationMs},
		{"0.5", a.P50DurationMs},
		{"0.95", a.P95DurationMs},
		{"0.99", a.P99DurationMs},
	}
	for i, q := range quantiles {
		// percentiles are only known for stress results
		if i > 2 && q.value == 0 {
			continue
		}
		fmt.Fprintf(w, "statusprobe_run_duration_ms{%s,quantile=\"%s\"} %.2f\n", target, q.label, q.value)
	}
	fmt.Fprintln(w)

	if len(a.ByStep) == 0 {
		return
	}
	names := make([]string, 0, len(a.ByStep))
	for name := range a.ByStep {
		names = append(names, name)
	}
	sort.Strings(names)

	family("statusprobe_step_total", "counter", "Executions per step by result")
	for _, name := range names {
		s := a.ByStep[name]
		fmt.Fprintf(w, "statusprobe_step_total{%s,step=\"%s\",result=\"passed\"} %d\n", target, sanitizeLabel(name), s.Total-s.Failed)
		fmt.Fprintf(w, "statusprobe_step_total{%s,step=\"%s\",result=\"failed\"} %d\n", target, sanitizeLabel(name), s.Failed)
	}
	fmt.Fprintln(w)

	family("statusprobe_step_duration_avg_ms", "gauge", "Average step duration in milliseconds")
	for _, name := range names {
		fmt.Fprintf(w, "statusprobe_step_duration_avg_ms{%s,step=\"%s\"} %.2f\n", target, sanitizeLabel(name), a.ByStep[name].AvgDurationMs)
	}
}

func boolValue(b bool) int {
	if b {
		return 1
	}
	return 0
}

// sanitizeLabel escapes a Prometheus label value.
func sanitizeLabel(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}

// Close stops the HTTP endpoint, if any.
func (p *PrometheusExporter) Close() error {
	if p.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := p.server.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
