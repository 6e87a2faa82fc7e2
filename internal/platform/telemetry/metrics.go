package telemetry

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus instruments for the console.
type Metrics struct {
	SubmissionsTotal      prometheus.Counter
	PredictionFailures    prometheus.Counter
	RefreshesTotal        prometheus.Counter
	RefreshesSuppressed   prometheus.Counter
	RefreshFailures       prometheus.Counter
	MetricsLogFailures    prometheus.Counter
	PredictorLatency      prometheus.Histogram
	registry              *prometheus.Registry
}

// New creates and registers all Prometheus metrics on a private registry so
// repeated construction in tests does not collide.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		SubmissionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clinsight_submissions_total",
			Help: "Total number of diagnostic submissions accepted",
		}),
		PredictionFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clinsight_prediction_failures_total",
			Help: "Total number of submissions aborted because inference was unavailable",
		}),
		RefreshesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clinsight_refreshes_total",
			Help: "Total number of completed analytics refresh cycles",
		}),
		RefreshesSuppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clinsight_refreshes_suppressed_total",
			Help: "Total number of refresh triggers suppressed by an in-flight cycle",
		}),
		RefreshFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clinsight_refresh_failures_total",
			Help: "Total number of refresh cycles that failed and retained the prior view",
		}),
		MetricsLogFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clinsight_metrics_log_failures_total",
			Help: "Total number of failed metrics-log emissions (non-fatal)",
		}),
		PredictorLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "clinsight_predictor_latency_seconds",
			Help:    "Latency of inference service calls",
			Buckets: prometheus.DefBuckets,
		}),
		registry: reg,
	}
	reg.MustRegister(
		m.SubmissionsTotal,
		m.PredictionFailures,
		m.RefreshesTotal,
		m.RefreshesSuppressed,
		m.RefreshFailures,
		m.MetricsLogFailures,
		m.PredictorLatency,
	)
	return m
}

// Handler exposes the registry in Prometheus text format.
func (m *Metrics) Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}
