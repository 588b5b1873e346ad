package observability

import (
	"database/sql"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the aggregator
type Metrics struct {
	// Aggregation run metrics
	AggregationRunsTotal   *prometheus.CounterVec
	AggregationRunDuration prometheus.Histogram
	LastRunTimestamp       prometheus.Gauge

	// Page-level metrics
	PagesTotal            prometheus.Counter
	RowsReconciledTotal   prometheus.Counter
	DownloadsCountedTotal prometheus.Counter
	RowsFrozenTotal       prometheus.Counter

	// Crate resolution cache
	CrateCacheHitsTotal   prometheus.Counter
	CrateCacheMissesTotal prometheus.Counter

	// Database pool metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		AggregationRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "registry_downloads_runs_total",
				Help: "Total number of aggregation runs",
			},
			[]string{"status"},
		),
		AggregationRunDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "registry_downloads_run_duration_seconds",
				Help:    "Aggregation run duration in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
			},
		),
		LastRunTimestamp: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "registry_downloads_last_run_timestamp_seconds",
				Help: "Unix timestamp of the last successful aggregation run",
			},
		),
		PagesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "registry_downloads_pages_total",
				Help: "Total number of non-empty pages committed",
			},
		),
		RowsReconciledTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "registry_downloads_rows_reconciled_total",
				Help: "Total number of raw counter rows examined",
			},
		),
		DownloadsCountedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "registry_downloads_counted_total",
				Help: "Total download delta folded into aggregates",
			},
		),
		RowsFrozenTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "registry_downloads_rows_frozen_total",
				Help: "Total number of rows past the freeze cutoff",
			},
		),
		CrateCacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "registry_downloads_crate_cache_hits_total",
				Help: "Version-to-crate cache hits",
			},
		),
		CrateCacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "registry_downloads_crate_cache_misses_total",
				Help: "Version-to-crate cache misses",
			},
		),
		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "registry_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "registry_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
	}

	registry.MustRegister(
		m.AggregationRunsTotal,
		m.AggregationRunDuration,
		m.LastRunTimestamp,
		m.PagesTotal,
		m.RowsReconciledTotal,
		m.DownloadsCountedTotal,
		m.RowsFrozenTotal,
		m.CrateCacheHitsTotal,
		m.CrateCacheMissesTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
	)

	return m
}

// UpdateDBStats copies connection pool stats into the gauges
func (m *Metrics) UpdateDBStats(db *sql.DB) {
	stats := db.Stats()
	m.DBConnectionsActive.Set(float64(stats.InUse))
	m.DBConnectionsIdle.Set(float64(stats.Idle))
}
