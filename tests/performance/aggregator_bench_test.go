package performance

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/cratehub/registry/pkg/downloads"
)

func setupBenchDB(b *testing.B, backlog int) *sql.DB {
	b.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		b.Fatalf("Failed to open database: %v", err)
	}
	db.SetMaxOpenConns(1)
	b.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE crates (id INTEGER PRIMARY KEY, name TEXT, downloads INTEGER NOT NULL DEFAULT 0);
		CREATE TABLE versions (id INTEGER PRIMARY KEY, crate_id INTEGER NOT NULL, num TEXT, downloads INTEGER NOT NULL DEFAULT 0);
		CREATE TABLE version_downloads (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			version_id INTEGER NOT NULL,
			downloads INTEGER NOT NULL DEFAULT 1,
			counted INTEGER NOT NULL DEFAULT 0,
			date DATE NOT NULL,
			processed BOOLEAN NOT NULL DEFAULT FALSE
		);
		CREATE TABLE crate_downloads (crate_id INTEGER NOT NULL, date DATE NOT NULL, downloads INTEGER NOT NULL DEFAULT 0, PRIMARY KEY (crate_id, date));
		CREATE TABLE registry_metadata (total_downloads INTEGER NOT NULL DEFAULT 0);
		INSERT INTO registry_metadata (total_downloads) VALUES (0);
	`)
	if err != nil {
		b.Fatalf("Failed to create schema: %v", err)
	}

	seedBacklog(b, db, backlog)
	return db
}

func seedBacklog(b *testing.B, db *sql.DB, backlog int) {
	b.Helper()
	today := time.Now().UTC().Format("2006-01-02")

	tx, err := db.Begin()
	if err != nil {
		b.Fatalf("Failed to begin seed transaction: %v", err)
	}
	for i := 0; i < backlog; i++ {
		crateID := i%100 + 1
		if i < 100 {
			if _, err := tx.Exec(`INSERT INTO crates (id, name) VALUES ($1, $2)`, crateID, fmt.Sprintf("crate-%d", crateID)); err != nil {
				b.Fatalf("Failed to seed crate: %v", err)
			}
		}
		if _, err := tx.Exec(`INSERT INTO versions (id, crate_id, num) VALUES ($1, $2, '1.0.0')`, i+1, crateID); err != nil {
			b.Fatalf("Failed to seed version: %v", err)
		}
		if _, err := tx.Exec(`INSERT INTO version_downloads (version_id, downloads, date) VALUES ($1, 25, $2)`, i+1, today); err != nil {
			b.Fatalf("Failed to seed download row: %v", err)
		}
	}
	if err := tx.Commit(); err != nil {
		b.Fatalf("Failed to commit seed transaction: %v", err)
	}
}

// BenchmarkAggregationRun measures draining a 1000-row backlog.
func BenchmarkAggregationRun(b *testing.B) {
	if testing.Short() {
		b.Skip("Skipping benchmark in short mode")
	}

	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		b.StopTimer()
		db := setupBenchDB(b, 1000)
		engine := downloads.NewEngine(downloads.NewSQLStore(db), downloads.Config{PageSize: 100})
		b.StartTimer()

		if _, err := engine.Run(ctx); err != nil {
			b.Fatalf("Run failed: %v", err)
		}
	}
}

// BenchmarkAggregationRunDrained measures the no-op case: a run against an
// already-drained backlog, which is what most daemon ticks see.
func BenchmarkAggregationRunDrained(b *testing.B) {
	if testing.Short() {
		b.Skip("Skipping benchmark in short mode")
	}

	ctx := context.Background()
	db := setupBenchDB(b, 1000)
	engine := downloads.NewEngine(downloads.NewSQLStore(db), downloads.Config{})
	if _, err := engine.Run(ctx); err != nil {
		b.Fatalf("Initial run failed: %v", err)
	}
	// Freeze everything so the drained runs fetch nothing.
	if _, err := db.Exec(`UPDATE version_downloads SET processed = TRUE`); err != nil {
		b.Fatalf("Failed to freeze backlog: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.Run(ctx); err != nil {
			b.Fatalf("Run failed: %v", err)
		}
	}
}
