// Package observability provides the aggregator's logging, metrics, health,
// tracing, and shutdown plumbing.
//
// # Components
//
//   - Logger: structured JSON logging over log/slog with field chaining
//   - Metrics: Prometheus counters/gauges/histograms for runs, pages,
//     reconciled rows, cache behavior, and DB pool state
//   - HealthChecker: liveness/readiness probes with database and Redis
//     dependency checks
//   - InitOTel/ShutdownOTel: OTLP/gRPC tracer and meter providers
//   - ShutdownManager: signal-driven graceful shutdown
//
// # Usage
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//
//	checker := observability.NewHealthChecker(db, redisClient)
//	observability.RegisterHealthRoutes(router, checker)
package observability
