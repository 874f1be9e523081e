package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "dashsync"

const (
	LabelVersion   = "version"
	LabelKind      = "kind"
	LabelReason    = "reason"
	LabelOperation = "operation"
	LabelResult    = "result"
)

// ResultSuccess is the result label of a successful backend request. Failed
// requests are labeled with the grafana error kind.
const ResultSuccess = "success"

// Registry holds every dashsync collector plus the Go and process collectors.
// It is served by Server instead of the global default registry.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

var factory = promauto.With(Registry)

var (
	BuildInfo = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "build_info",
		Help:      "A metric with a constant value '1', labeled by the dashsync version",
	}, []string{LabelVersion})
)

// Watcher and reconciler metrics
var (
	// EventsTotal counts source events processed by the controller.
	EventsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "controller",
		Name:      "events_total",
		Help:      "Total number of source events processed, by event kind",
	}, []string{LabelKind})

	// ResyncsTotal counts full reconciliations.
	ResyncsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "controller",
		Name:      "resyncs_total",
		Help:      "Total number of full resyncs, by reason",
	}, []string{LabelReason})

	ParseErrorsTotal = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "controller",
		Name:      "parse_errors_total",
		Help:      "Total number of dashboard payloads that could not be parsed",
	})

	RetriesTotal = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "controller",
		Name:      "retries_total",
		Help:      "Total number of scheduled retries of failed backend operations",
	})

	TrackedDashboards = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "controller",
		Name:      "tracked_dashboards",
		Help:      "Number of dashboards the controller believes exist in Grafana",
	})

	FailedDashboards = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "controller",
		Name:      "failed_dashboards",
		Help:      "Number of dashboards whose last sync failed",
	})
)

// Backend metrics
var (
	BackendRequestsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "grafana",
		Name:      "requests_total",
		Help:      "Total number of Grafana API requests, by operation and result",
	}, []string{LabelOperation, LabelResult})

	BackendRequestDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "grafana",
		Name:      "request_duration_seconds",
		Help:      "Latency of Grafana API requests",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
	}, []string{LabelOperation})
)

// ObserveBackendRequest records one Grafana API request.
func ObserveBackendRequest(operation, result string, elapsed time.Duration) {
	BackendRequestsTotal.WithLabelValues(operation, result).Inc()
	BackendRequestDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}
