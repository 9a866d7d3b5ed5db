package metrics

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

// JSONExporter writes the aggregate, and the runs behind it, as JSON.
type JSONExporter struct {
	writer    io.Writer
	filePath  string
	pretty    bool
	runs      func() []*RunMetrics
	startTime time.Time
}

type JSONOption func(*JSONExporter)

func WithJSONWriter(w io.Writer) JSONOption {
	return func(j *JSONExporter) {
		j.writer = w
	}
}

func WithJSONFile(path string) JSONOption {
	return func(j *JSONExporter) {
		j.filePath = path
	}
}

func WithJSONPretty(pretty bool) JSONOption {
	return func(j *JSONExporter) {
		j.pretty = pretty
	}
}

// WithJSONRuns includes the individual runs from c in each export.
func WithJSONRuns(c *Collector) JSONOption {
	return func(j *JSONExporter) {
		j.runs = c.Runs
	}
}

func NewJSONExporter(opts ...JSONOption) *JSONExporter {
	j := &JSONExporter{
		startTime: time.Now(),
		pretty:    true,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

type JSONMetricsOutput struct {
	Metadata JSONMetadata  `json:"metadata"`
	Summary  *Aggregate    `json:"summary"`
	Runs     []*RunMetrics `json:"runs,omitempty"`
}

type JSONMetadata struct {
	GeneratedAt string `json:"generated_at"`
	StartTime   string `json:"start_time"`
	Duration    string `json:"duration"`
	Version     string `json:"version"`
}

func (j *JSONExporter) Export(agg *Aggregate) error {
	now := time.Now()
	out := JSONMetricsOutput{
		Metadata: JSONMetadata{
			GeneratedAt: now.Format(time.RFC3339),
			StartTime:   j.startTime.Format(time.RFC3339),
			Duration:    now.Sub(j.startTime).String(),
			Version:     "1.0",
		},
		Summary: agg,
	}
	if j.runs != nil {
		out.Runs = j.runs()
	}

	var (
		data []byte
		err  error
	)
	if j.pretty {
		data, err = json.MarshalIndent(out, "", "  ")
	} else {
		data, err = json.Marshal(out)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}

	if j.filePath != "" {
		if err := os.WriteFile(j.filePath, data, 0644); err != nil {
			return fmt.Errorf("failed to write metrics file: %w", err)
		}
	}
	if j.writer != nil {
		if _, err := j.writer.Write(append(data, '\n')); err != nil {
			return fmt.Errorf("failed to write metrics: %w", err)
		}
	}
	return nil
}

func (j *JSONExporter) Close() error {
	return nil
}
