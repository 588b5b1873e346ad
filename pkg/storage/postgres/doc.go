// Package postgres opens and pools the registry's PostgreSQL connection
// used by the download-count aggregator.
package postgres
