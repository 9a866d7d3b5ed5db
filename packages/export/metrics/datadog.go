package metrics

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/abdul-hamid-achik/statusprobe/packages/http"
)

// DataDogExporter posts the aggregate to the DataDog series API.
type DataDogExporter struct {
	apiKey   string
	site     string
	endpoint string
	tags     []string
	prefix   string
	client   *http.Client
}

type DataDogOption func(*DataDogExporter)

func WithDataDogAPIKey(apiKey string) DataDogOption {
	return func(d *DataDogExporter) {
		d.apiKey = apiKey
	}
}

// WithDataDogSite sets the site, e.g. "datadoghq.com" or "datadoghq.eu".
func WithDataDogSite(site string) DataDogOption {
	return func(d *DataDogExporter) {
		d.site = site
	}
}

// WithDataDogEndpoint overrides the series URL built from the site.
func WithDataDogEndpoint(url string) DataDogOption {
	return func(d *DataDogExporter) {
		d.endpoint = url
	}
}

func WithDataDogTags(tags []string) DataDogOption {
	return func(d *DataDogExporter) {
		d.tags = tags
	}
}

func WithDataDogPrefix(prefix string) DataDogOption {
	return func(d *DataDogExporter) {
		d.prefix = prefix
	}
}

func WithDataDogClient(client *http.Client) DataDogOption {
	return func(d *DataDogExporter) {
		d.client = client
	}
}

func NewDataDogExporter(opts ...DataDogOption) *DataDogExporter {
	d := &DataDogExporter{
		site:   "datadoghq.com",
		prefix: "statusprobe",
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.apiKey == "" {
		d.apiKey = os.Getenv("DD_API_KEY")
	}
	if d.endpoint == "" {
		d.endpoint = fmt.Sprintf("https://api.%s/api/v1/series", d.site)
	}
	if d.client == nil {
		d.client = http.NewClient(http.WithTimeout(10 * time.Second))
	}
	return d
}

type datadogMetric struct {
	Metric string   `json:"metric"`
	Type   string   `json:"type"`
	Points [][]any  `json:"points"`
	Tags   []string `json:"tags,omitempty"`
}

type datadogPayload struct {
	Series []datadogMetric `json:"series"`
}

func (d *DataDogExporter) Export(agg *Aggregate) error {
	if d.apiKey == "" {
		return fmt.Errorf("DataDog API key not configured")
	}
	return d.send(d.series(agg, time.Now()))
}

func (d *DataDogExporter) series(agg *Aggregate, at time.Time) []datadogMetric {
	now := float64(at.Unix())
	base := append([]string{"target:" + agg.APIBase}, d.tags...)

	point := func(name, kind string, value float64, extra ...string) datadogMetric {
		return datadogMetric{
			Metric: d.prefix + "." + name,
			Type:   kind,
			Points: [][]any{{now, value}},
			Tags:   append(append([]string{}, extra...), base...),
		}
	}

	series := []datadogMetric{
		point("up", "gauge", float64(boolValue(agg.LastPassed))),
		point("runs.total", "count", float64(agg.Runs)),
		point("runs.passed", "count", float64(agg.Passed)),
		point("runs.failed", "count", float64(agg.Failed)),
		point("runs.warned", "count", float64(agg.Warnings)),
		point("duration.avg", "gauge", agg.AvgDurationMs),
		point("duration.min", "gauge", agg.MinDurationMs),
		point("duration.max", "gauge", agg.MaxDurationMs),
	}
	if agg.P50DurationMs > 0 {
		series = append(series,
			point("duration.p50", "gauge", agg.P50DurationMs),
			point("duration.p95", "gauge", agg.P95DurationMs),
			point("duration.p99", "gauge", agg.P99DurationMs),
		)
	}

	kinds := make([]string, 0, len(agg.Failures))
	for kind := range agg.Failures {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	for _, kind := range kinds {
		series = append(series, point("failures", "count", float64(agg.Failures[kind]), "kind:"+kind))
	}

	steps := make([]string, 0, len(agg.ByStep))
	for name := range agg.ByStep {
		steps = append(steps, name)
	}
	sort.Strings(steps)
	for _, name := range steps {
		s := agg.ByStep[name]
		series = append(series,
			point("step.total", "count", float64(s.Total), "step:"+name),
			point("step.failed", "count", float64(s.Failed), "step:"+name),
			point("step.duration.avg", "gauge", s.AvgDurationMs, "step:"+name),
		)
	}
	return series
}

func (d *DataDogExporter) send(series []datadogMetric) error {
	req, err := http.NewRequest("POST", d.endpoint).SetJSON(datadogPayload{Series: series})
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}
	req.SetHeader("DD-API-KEY", d.apiKey)

	resp, err := d.client.Do(context.Background(), req)
	if err != nil {
		return fmt.Errorf("failed to send metrics: %w", err)
	}
	if resp.StatusCode != 200 && resp.StatusCode != 202 {
		return fmt.Errorf("DataDog API returned status %d: %s", resp.StatusCode, resp.Excerpt(200))
	}
	return nil
}

func (d *DataDogExporter) Close() error {
	return nil
}
