// Package downloads implements the registry's download-count aggregation
// engine.
//
// # Overview
//
// The registry's download endpoint records raw activity by incrementing
// version_downloads.downloads, one row per version per day. This package
// owns folding those raw counters into the durable aggregates the rest of
// the system reads:
//
//   - versions.downloads (per-version lifetime total)
//   - crates.downloads (per-crate lifetime total)
//   - crate_downloads (per-crate, per-day totals)
//   - registry_metadata.total_downloads (registry-wide total)
//
// Each unit is counted exactly once: a row's counted column tracks how much
// of its downloads value has already been folded in, and the engine only
// applies the difference. Rows whose date falls behind the freeze window
// are marked processed once fully counted and are never read again.
//
// # Batching
//
// The backlog is drained in bounded pages (default 10000 rows), each page
// inside its own transaction. A committed page is durable immediately, so a
// crash mid-run loses at most the in-flight page; the next run resumes from
// the rows that remain unprocessed. The page cursor is a strictly
// increasing id bound, guaranteeing forward progress against a live,
// externally-incremented table.
//
// # Usage
//
// One-shot:
//
//	engine := downloads.NewEngine(downloads.NewSQLStore(db), downloads.Config{})
//	stats, err := engine.Run(ctx)
//
// Daemon:
//
//	runner := downloads.NewRunner(engine, 60*time.Second, logger)
//	runner.Start(ctx)
//	defer runner.Stop()
//
// # Related Packages
//
//   - pkg/storage/postgres: connection pooling for the backing database
//   - pkg/observability: metrics and logging used by the engine
package downloads
