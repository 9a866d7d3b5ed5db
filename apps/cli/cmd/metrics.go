package cmd

import (
	"fmt"
	"strings"

	"github.com/abdul-hamid-achik/statusprobe/packages/core/config"
	"github.com/abdul-hamid-achik/statusprobe/packages/export/metrics"
	httpclient "github.com/abdul-hamid-achik/statusprobe/packages/http"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	metricsFlag       string
	metricsFileFlag   string
	metricsAddrFlag   string
	datadogAPIKeyFlag string
	datadogSiteFlag   string
	datadogTagsFlag   string
)

func addMetricsFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&metricsFlag, "metrics", getEnvString("STATUSPROBE_METRICS", ""), "Metrics export formats, comma separated: prometheus, json, datadog (env: STATUSPROBE_METRICS)")
	flags.StringVar(&metricsFileFlag, "metrics-file", getEnvString("STATUSPROBE_METRICS_FILE", ""), "File for prometheus or json metrics (env: STATUSPROBE_METRICS_FILE)")
	flags.StringVar(&metricsAddrFlag, "metrics-addr", getEnvString("STATUSPROBE_METRICS_ADDR", ""), "Serve prometheus metrics on this address, e.g. :9090 (env: STATUSPROBE_METRICS_ADDR)")
	flags.StringVar(&datadogAPIKeyFlag, "datadog-api-key", getEnvString("DD_API_KEY", ""), "DataDog API key (env: DD_API_KEY)")
	flags.StringVar(&datadogSiteFlag, "datadog-site", getEnvString("DD_SITE", "datadoghq.com"), "DataDog site (env: DD_SITE)")
	flags.StringVar(&datadogTagsFlag, "datadog-tags", getEnvString("DD_TAGS", ""), "Comma-separated DataDog tags (env: DD_TAGS)")
}

// newMetricsCollector returns nil when no format is requested. JSON metrics
// without --metrics-file go to stdout, or to stderr when reportOnStdout says
// stdout already carries a machine-readable report.
func newMetricsCollector(cmd *cobra.Command, s *config.Config, log logrus.FieldLogger, reportOnStdout bool) (*metrics.Collector, error) {
	if strings.TrimSpace(metricsFlag) == "" {
		return nil, nil
	}

	collector := metrics.NewCollector()
	fileTaken := ""
	fail := func(err error) (*metrics.Collector, error) {
		_ = collector.Close()
		return nil, err
	}

	for _, format := range strings.Split(metricsFlag, ",") {
		format = strings.ToLower(strings.TrimSpace(format))
		switch format {
		case "":
			continue

		case "prometheus":
			var opts []metrics.PrometheusOption
			if metricsFileFlag != "" {
				if fileTaken != "" {
					return fail(fmt.Errorf("--metrics-file is already used by %s metrics", fileTaken))
				}
				fileTaken = format
				opts = append(opts, metrics.WithPrometheusFile(metricsFileFlag))
			} else if metricsAddrFlag == "" {
				return fail(fmt.Errorf("prometheus metrics need --metrics-file or --metrics-addr"))
			}
			exp := metrics.NewPrometheusExporter(opts...)
			if metricsAddrFlag != "" {
				addr, err := exp.Listen(metricsAddrFlag)
				if err != nil {
					return fail(err)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Prometheus metrics available at http://%s/metrics\n", addr)
			}
			collector.AddExporter(exp)

		case "json":
			opts := []metrics.JSONOption{metrics.WithJSONRuns(collector)}
			if metricsFileFlag != "" {
				if fileTaken != "" {
					return fail(fmt.Errorf("--metrics-file is already used by %s metrics", fileTaken))
				}
				fileTaken = format
				opts = append(opts, metrics.WithJSONFile(metricsFileFlag))
			} else if reportOnStdout {
				opts = append(opts, metrics.WithJSONWriter(cmd.ErrOrStderr()))
			} else {
				opts = append(opts, metrics.WithJSONWriter(cmd.OutOrStdout()))
			}
			collector.AddExporter(metrics.NewJSONExporter(opts...))

		case "datadog":
			opts := []metrics.DataDogOption{
				metrics.WithDataDogSite(datadogSiteFlag),
				metrics.WithDataDogClient(httpclient.NewClient(
					httpclient.WithValidateSSL(s.GetValidateSSL()),
					httpclient.WithProxy(s.Proxy),
					httpclient.WithLogger(log),
				)),
			}
			if datadogAPIKeyFlag != "" {
				opts = append(opts, metrics.WithDataDogAPIKey(datadogAPIKeyFlag))
			}
			if datadogTagsFlag != "" {
				opts = append(opts, metrics.WithDataDogTags(strings.Split(datadogTagsFlag, ",")))
			}
			collector.AddExporter(metrics.NewDataDogExporter(opts...))

		default:
			return fail(fmt.Errorf("unknown metrics format %q (use prometheus, json or datadog)", format))
		}
	}

	return collector, nil
}
