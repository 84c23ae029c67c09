package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StoreOperationLatency records key-value store latency by backend and operation.
	StoreOperationLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "murmur_store_operation_seconds",
		Help:    "Key-value store operation latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"backend", "operation"})

	// StoreErrors counts failed key-value store operations.
	StoreErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "murmur_store_errors_total",
		Help: "Total number of key-value store errors by backend and operation",
	}, []string{"backend", "operation"})

	// StoreCommitRejections counts atomic commits whose checks failed.
	StoreCommitRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "murmur_store_commit_rejections_total",
		Help: "Total number of atomic commits rejected by a failed check",
	}, []string{"backend"})

	// ViewIncrementConflicts counts view increments that lost a race and
	// were retried or given up.
	ViewIncrementConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "murmur_view_increment_conflicts_total",
		Help: "Total number of view increment conflicts by outcome",
	}, []string{"outcome"})

	// RedisErrorRate counts Redis errors outside the store, by operation type.
	RedisErrorRate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "murmur_redis_error_rate_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// ActiveEventStreams tracks open change-event websocket streams.
	ActiveEventStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "murmur_active_event_streams",
		Help: "Number of open change-event streams",
	})

	// EventsPublished counts change events by type and result.
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "murmur_events_published_total",
		Help: "Total change events published by type and result",
	}, []string{"event_type", "result"})
)

// StoreMetrics records store metrics for one backend.
type StoreMetrics struct {
	backend string
}

// NewStoreMetrics returns a StoreMetrics for the named backend.
func NewStoreMetrics(backend string) *StoreMetrics {
	return &StoreMetrics{backend: backend}
}

// Track returns a function that records latency, and the error if any,
// when called (e.g. defer).
func (m *StoreMetrics) Track(operation string) func(err error) {
	start := time.Now()
	return func(err error) {
		StoreOperationLatency.WithLabelValues(m.backend, operation).Observe(time.Since(start).Seconds())
		if err != nil {
			StoreErrors.WithLabelValues(m.backend, operation).Inc()
		}
	}
}

// RecordRejection counts a commit rejected by its checks.
func (m *StoreMetrics) RecordRejection() {
	StoreCommitRejections.WithLabelValues(m.backend).Inc()
}
