package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the instrumentation the service exposes on /metrics.
type Metrics struct {
	registry *prometheus.Registry

	ExperimentsRequested  prometheus.Counter
	ExperimentsDispatched prometheus.Counter
	TrialsPublished       prometheus.Counter
	ValidationErrors      prometheus.Counter
	CoverageBuilds        *prometheus.CounterVec
	ServicePaused         prometheus.Gauge
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		ExperimentsRequested: factory.NewCounter(prometheus.CounterOpts{
			Name: "fuzzbench_experiments_requested_total",
			Help: "Experiments accepted from the requests file.",
		}),
		ExperimentsDispatched: factory.NewCounter(prometheus.CounterOpts{
			Name: "fuzzbench_experiments_dispatched_total",
			Help: "Experiments handed to runners.",
		}),
		TrialsPublished: factory.NewCounter(prometheus.CounterOpts{
			Name: "fuzzbench_trials_published_total",
			Help: "Trial messages published to the trial queue.",
		}),
		ValidationErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "fuzzbench_validation_errors_total",
			Help: "Requests file validation failures.",
		}),
		CoverageBuilds: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fuzzbench_coverage_builds_total",
			Help: "Coverage build plans by outcome.",
		}, []string{"status"}),
		ServicePaused: factory.NewGauge(prometheus.GaugeOpts{
			Name: "fuzzbench_service_paused",
			Help: "1 while the requests file carries the pause sentinel.",
		}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
