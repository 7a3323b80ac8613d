// Package metrics provides Prometheus metrics for the favedex ranking service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager holds all Prometheus instruments for the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Sync cycle metrics
	syncCycles        prometheus.Counter
	syncOwnersTotal   *prometheus.CounterVec
	syncCycleDuration prometheus.Histogram
	forceClears       prometheus.Counter

	// Reconciliation metrics
	eventsAppended   prometheus.Counter
	eventsRetracted  prometheus.Counter
	reconcileLatency prometheus.Histogram
	conflictRetries  prometheus.Counter

	// Aggregation metrics
	rankingUpserts    prometheus.Counter
	rankingRebuilds   prometheus.Counter
	aggregateLatency  prometheus.Histogram
	rankingSize       prometheus.Gauge
	activeEvents      prometheus.Gauge
	inconsistencyFlag prometheus.Gauge

	// HTTP metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Error metrics
	errorsByComponent *prometheus.CounterVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "favedex",
		subsystem:        "ranking",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

// initializeMetrics creates all the Prometheus instruments.
func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.syncCycles = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "sync_cycles_total",
		Help:      "Total number of sync cycles executed",
	})

	m.syncOwnersTotal = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "sync_owners_total",
		Help:      "Owners reconciled per sync cycle, by outcome",
	}, []string{"outcome"})

	m.syncCycleDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "sync_cycle_duration_ms",
		Help:      "Duration of full sync cycles in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.forceClears = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "force_clears_total",
		Help:      "Total number of destructive storage clears",
	})

	m.eventsAppended = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "favorite_events_appended_total",
		Help:      "Total number of favorite events appended by reconciliation",
	})

	m.eventsRetracted = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "favorite_events_retracted_total",
		Help:      "Total number of favorite events deactivated by reconciliation",
	})

	m.reconcileLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "reconcile_latency_ms",
		Help:      "Per-owner reconciliation latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.conflictRetries = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "conflict_retries_total",
		Help:      "Total number of per-owner conflict retries",
	})

	m.rankingUpserts = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "ranking_upserts_total",
		Help:      "Total number of ranking entries inserted or updated",
	})

	m.rankingRebuilds = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "ranking_rebuilds_total",
		Help:      "Total number of full ranking rebuilds",
	})

	m.aggregateLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "aggregate_latency_ms",
		Help:      "Ranking aggregation latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.rankingSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "ranking_entries",
		Help:      "Current number of materialized ranking entries",
	})

	m.activeEvents = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "active_favorite_events",
		Help:      "Current number of active favorite events",
	})

	m.inconsistencyFlag = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "inconsistency_flagged",
		Help:      "1 when drift between ranking table and event store needs repair",
	})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by endpoint, method and status code",
	}, []string{"endpoint", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_request_duration_ms",
		Help:      "HTTP request duration in milliseconds",
		Buckets:   m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})

	m.errorsByComponent = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "errors_total",
		Help:      "Errors by component and kind",
	}, []string{"component", "kind"})
}

// Package-level helpers operating on the global manager.

// RecordSyncCycle increments the sync cycle counter and records its duration.
func RecordSyncCycle(durationMs float64) {
	globalManager.syncCycles.Inc()
	globalManager.syncCycleDuration.Observe(durationMs)
}

// RecordOwnerOutcome records one reconciled owner by outcome ("ok"/"failed").
func RecordOwnerOutcome(outcome string) {
	globalManager.syncOwnersTotal.WithLabelValues(outcome).Inc()
}

// RecordForceClear increments the force clear counter.
func RecordForceClear() {
	globalManager.forceClears.Inc()
}

// RecordEventsAppended adds to the appended events counter.
func RecordEventsAppended(n int) {
	globalManager.eventsAppended.Add(float64(n))
}

// RecordEventsRetracted adds to the retracted events counter.
func RecordEventsRetracted(n int) {
	globalManager.eventsRetracted.Add(float64(n))
}

// RecordReconcileLatency records one owner's reconciliation latency.
func RecordReconcileLatency(latencyMs float64) {
	globalManager.reconcileLatency.Observe(latencyMs)
}

// RecordConflictRetry increments the conflict retry counter.
func RecordConflictRetry() {
	globalManager.conflictRetries.Inc()
}

// RecordRankingUpserts adds to the ranking upsert counter.
func RecordRankingUpserts(n int) {
	globalManager.rankingUpserts.Add(float64(n))
}

// RecordRankingRebuild increments the full rebuild counter.
func RecordRankingRebuild() {
	globalManager.rankingRebuilds.Inc()
}

// RecordAggregateLatency records one aggregation pass latency.
func RecordAggregateLatency(latencyMs float64) {
	globalManager.aggregateLatency.Observe(latencyMs)
}

// UpdateRankingSize sets the materialized ranking entry gauge.
func UpdateRankingSize(n int) {
	globalManager.rankingSize.Set(float64(n))
}

// UpdateActiveEvents sets the active favorite event gauge.
func UpdateActiveEvents(n int) {
	globalManager.activeEvents.Set(float64(n))
}

// SetInconsistencyFlagged sets or clears the drift gauge.
func SetInconsistencyFlagged(flagged bool) {
	if flagged {
		globalManager.inconsistencyFlag.Set(1)
		return
	}
	globalManager.inconsistencyFlag.Set(0)
}

// RecordHTTPRequest records one HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records one HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, durationMs float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// RecordErrorByComponent records an error by component and kind.
func RecordErrorByComponent(component, kind string) {
	globalManager.errorsByComponent.WithLabelValues(component, kind).Inc()
}

// GetRegistry returns the custom Prometheus registry for serving /healthz.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
