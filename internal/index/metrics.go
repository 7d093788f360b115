package index

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// usageMetrics exports the same per-index access_count/avg_query_time
// numbers the in-process statistics track, as real Prometheus series,
// grounded on cuemby-warren's pkg/metrics package-level CounterVec /
// HistogramVec pattern. Each Manager owns its own registry rather than
// reaching for the global default, so more than one Manager can coexist
// in a process (e.g. in tests) without a metric name collision panic.
type usageMetrics struct {
	enabled  bool
	registry *prometheus.Registry
	queries  *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

func newUsageMetrics(enabled bool) *usageMetrics {
	if !enabled {
		return &usageMetrics{enabled: false}
	}
	registry := prometheus.NewRegistry()
	queries := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "doxstorr_index_queries_total",
			Help: "Total number of index lookups, by index name.",
		},
		[]string{"index"},
	)
	latency := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "doxstorr_index_query_duration_seconds",
			Help:    "Index lookup latency in seconds, by index name.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"index"},
	)
	registry.MustRegister(queries, latency)
	return &usageMetrics{enabled: true, registry: registry, queries: queries, latency: latency}
}

func (u *usageMetrics) observe(indexName string, dur time.Duration) {
	if !u.enabled {
		return
	}
	u.queries.WithLabelValues(indexName).Inc()
	u.latency.WithLabelValues(indexName).Observe(dur.Seconds())
}

// Registry exposes the Prometheus registry backing this Manager's
// metrics, for wiring into an HTTP /metrics handler. Returns nil if
// usage statistics are disabled.
func (m *Manager) Registry() *prometheus.Registry {
	if !m.metrics.enabled {
		return nil
	}
	return m.metrics.registry
}
