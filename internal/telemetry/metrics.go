package telemetry

import "github.com/prometheus/client_golang/prometheus"

// Orchestrator metrics.

var JobsProcessedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "openclaw",
		Subsystem: "orchestrator",
		Name:      "jobs_processed_total",
		Help:      "Total number of operator jobs processed, by type and outcome.",
	},
	[]string{"job_type", "outcome"},
)

var JobProcessingDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "openclaw",
		Subsystem: "orchestrator",
		Name:      "job_duration_seconds",
		Help:      "Operator job processing duration in seconds.",
		Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	},
	[]string{"job_type"},
)

var BoxesHealthFailures = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "openclaw",
		Subsystem: "orchestrator",
		Name:      "box_health_failures_total",
		Help:      "Total number of failed health check polls across all boxes.",
	},
)

// Billing reducer metrics.

var BillingEventsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "openclaw",
		Subsystem: "billing",
		Name:      "events_total",
		Help:      "Total number of billing webhook events received, by type and outcome.",
	},
	[]string{"event_type", "outcome"},
)

// Proxy metrics.

var ProxyRequestsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "openclaw",
		Subsystem: "proxy",
		Name:      "requests_total",
		Help:      "Total number of metered proxy requests, by outcome.",
	},
	[]string{"outcome"},
)

var ProxyTokensMetered = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "openclaw",
		Subsystem: "proxy",
		Name:      "tokens_total",
		Help:      "Total number of LLM tokens metered, by kind (prompt/completion).",
	},
	[]string{"kind"},
)

// OrchestratorCollectors returns the metrics registered for cmd/orchestrator.
func OrchestratorCollectors() []prometheus.Collector {
	return []prometheus.Collector{JobsProcessedTotal, JobProcessingDuration, BoxesHealthFailures}
}

// BillingCollectors returns the metrics registered for cmd/billing-reducer.
func BillingCollectors() []prometheus.Collector {
	return []prometheus.Collector{BillingEventsTotal}
}

// ProxyCollectors returns the metrics registered for cmd/proxy.
func ProxyCollectors() []prometheus.Collector {
	return []prometheus.Collector{ProxyRequestsTotal, ProxyTokensMetered}
}
