package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Order, phase, task and governance metrics exposed on the adminserver's
// /metrics endpoint.
var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"service", "method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)

	// Order metrics
	OrdersOpenTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tm2pc_orders_open_total",
			Help: "Number of orders currently open, by status",
		},
		[]string{"status"},
	)

	OrderTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tm2pc_order_transitions_total",
			Help: "Total number of order status transitions",
		},
		[]string{"status"},
	)

	OrderDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tm2pc_order_duration_seconds",
			Help:    "Time from order open to a terminal status",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"status"},
	)

	// Phase aggregation metrics
	PhaseResultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tm2pc_phase_results_total",
			Help: "Total number of phase-aggregation results computed",
		},
		[]string{"result"},
	)

	// Task metrics
	TasksDispatchedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tm2pc_tasks_dispatched_total",
			Help: "Total number of tasks dispatched to a callee",
		},
		[]string{"callee", "phase"},
	)

	TaskAttemptDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tm2pc_task_attempt_duration_seconds",
			Help:    "Task attempt round-trip duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"callee"},
	)

	// Governance metrics
	GovernanceCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tm2pc_governance_calls_total",
			Help: "Total number of governance calls, by operation and actor role",
		},
		[]string{"operation", "role"},
	)

	// Database metrics
	DatabaseConnectionsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "database_connections_active",
			Help: "Number of active database connections",
		},
		[]string{"service"},
	)

	DatabaseQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "database_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"service", "operation"},
	)

	// Event bus metrics
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_published_total",
			Help: "Total number of events published",
		},
		[]string{"event_type"},
	)

	EventsConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_consumed_total",
			Help: "Total number of events consumed",
		},
		[]string{"event_type", "consumer"},
	)

	// Cache metrics
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache"},
	)

	// Capacity metrics, fed by the gopsutil-based host sampler
	HostCPUPercent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tm2pc_host_cpu_percent",
			Help: "Most recent host CPU utilization sample",
		},
	)

	HostMemPercent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tm2pc_host_mem_percent",
			Help: "Most recent host memory utilization sample",
		},
	)
)

// RecordHTTPRequest records an HTTP request metric
func RecordHTTPRequest(service, method, path, status string) {
	HTTPRequestsTotal.WithLabelValues(service, method, path, status).Inc()
}

// RecordHTTPDuration records HTTP request duration
func RecordHTTPDuration(service, method, path string, duration float64) {
	HTTPRequestDuration.WithLabelValues(service, method, path).Observe(duration)
}

// RecordOrderTransition records an order reaching a new status.
func RecordOrderTransition(status string) {
	OrderTransitionsTotal.WithLabelValues(status).Inc()
}

// RecordOrderDuration records the time an order spent reaching a terminal status.
func RecordOrderDuration(status string, duration float64) {
	OrderDuration.WithLabelValues(status).Observe(duration)
}

// RecordPhaseResult records a phase-aggregation outcome.
func RecordPhaseResult(result string) {
	PhaseResultsTotal.WithLabelValues(result).Inc()
}

// RecordTaskDispatch records a task being pushed to a callee for a phase.
func RecordTaskDispatch(callee, phase string) {
	TasksDispatchedTotal.WithLabelValues(callee, phase).Inc()
}

// RecordTaskAttemptDuration records how long a single task attempt took.
func RecordTaskAttemptDuration(callee string, duration float64) {
	TaskAttemptDuration.WithLabelValues(callee).Observe(duration)
}

// RecordGovernanceCall records a governance operation invocation by role.
func RecordGovernanceCall(operation, role string) {
	GovernanceCallsTotal.WithLabelValues(operation, role).Inc()
}
