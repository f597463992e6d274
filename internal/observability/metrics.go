package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type storeMetrics struct {
	storeTotal    *prometheus.CounterVec
	storeDuration *prometheus.HistogramVec

	retrieveTotal    *prometheus.CounterVec
	retrieveDuration *prometheus.HistogramVec

	searchDuration         *prometheus.HistogramVec
	semanticSearchDuration prometheus.Histogram

	deleteTotal *prometheus.CounterVec

	permissionDeniedTotal *prometheus.CounterVec

	tierEntries      *prometheus.GaugeVec
	auditEntriesTotal prometheus.Counter
	auditUtilization  prometheus.Gauge
}

var (
	metricsOnce sync.Once
	metricsInst *storeMetrics
)

func getMetrics() *storeMetrics {
	metricsOnce.Do(func() {
		m := &storeMetrics{
			storeTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "memory_store_total",
					Help: "Total store operations by tier and status.",
				},
				[]string{"tier", "status"},
			),
			storeDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "memory_store_duration_seconds",
					Help:    "Store operation duration in seconds by tier.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"tier"},
			),
			retrieveTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "memory_retrieve_total",
					Help: "Total retrieve operations by tier and outcome.",
				},
				[]string{"tier", "outcome"},
			),
			retrieveDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "memory_retrieve_duration_seconds",
					Help:    "Retrieve operation duration in seconds by tier.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"tier"},
			),
			searchDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "memory_search_duration_seconds",
					Help:    "Search duration in seconds by tier.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"tier"},
			),
			semanticSearchDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "memory_semantic_search_duration_seconds",
					Help:    "Semantic search duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			deleteTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "memory_delete_total",
					Help: "Total delete operations by tier and outcome.",
				},
				[]string{"tier", "outcome"},
			),
			permissionDeniedTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "memory_permission_denied_total",
					Help: "Total denied access checks by operation.",
				},
				[]string{"operation"},
			),
			tierEntries: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "memory_tier_entries",
					Help: "Current entity count by tier.",
				},
				[]string{"tier"},
			),
			auditEntriesTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "memory_audit_entries_total",
					Help: "Total audit entries appended.",
				},
			),
			auditUtilization: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "memory_audit_ring_utilization",
					Help: "Audit ring fill ratio (0-1).",
				},
			),
		}

		prometheus.MustRegister(
			m.storeTotal,
			m.storeDuration,
			m.retrieveTotal,
			m.retrieveDuration,
			m.searchDuration,
			m.semanticSearchDuration,
			m.deleteTotal,
			m.permissionDeniedTotal,
			m.tierEntries,
			m.auditEntriesTotal,
			m.auditUtilization,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func RecordStore(tier, status string, duration time.Duration) {
	m := getMetrics()
	m.storeTotal.WithLabelValues(tier, status).Inc()
	m.storeDuration.WithLabelValues(tier).Observe(duration.Seconds())
}

func RecordRetrieve(tier, outcome string, duration time.Duration) {
	m := getMetrics()
	m.retrieveTotal.WithLabelValues(tier, outcome).Inc()
	m.retrieveDuration.WithLabelValues(tier).Observe(duration.Seconds())
}

func RecordSearch(tier string, duration time.Duration) {
	getMetrics().searchDuration.WithLabelValues(tier).Observe(duration.Seconds())
}

func RecordSemanticSearch(duration time.Duration) {
	getMetrics().semanticSearchDuration.Observe(duration.Seconds())
}

func RecordDelete(tier, outcome string) {
	getMetrics().deleteTotal.WithLabelValues(tier, outcome).Inc()
}

func RecordPermissionDenied(operation string) {
	getMetrics().permissionDeniedTotal.WithLabelValues(operation).Inc()
}

func SetTierEntries(tier string, count int) {
	getMetrics().tierEntries.WithLabelValues(tier).Set(float64(count))
}

func RecordAuditAppend(utilization float64) {
	m := getMetrics()
	m.auditEntriesTotal.Inc()
	m.auditUtilization.Set(utilization)
}
