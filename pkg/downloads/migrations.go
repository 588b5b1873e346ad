package downloads

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/cratehub/registry/pkg/observability"
)

// Migration is one schema change applied exactly once, in version order.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// Migrations returns the download-count schema in version order.
func Migrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create crates and versions aggregate tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS crates (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(255) NOT NULL UNIQUE,
					downloads BIGINT NOT NULL DEFAULT 0,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE TABLE IF NOT EXISTS versions (
					id BIGSERIAL PRIMARY KEY,
					crate_id BIGINT NOT NULL REFERENCES crates(id) ON DELETE CASCADE,
					num VARCHAR(255) NOT NULL,
					downloads BIGINT NOT NULL DEFAULT 0,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
					UNIQUE(crate_id, num)
				);

				CREATE INDEX idx_versions_crate_id ON versions(crate_id);
			`,
		},
		{
			Version:     2,
			Description: "Create version_downloads raw counter table",
			SQL: `
				CREATE TABLE IF NOT EXISTS version_downloads (
					id BIGSERIAL PRIMARY KEY,
					version_id BIGINT NOT NULL REFERENCES versions(id) ON DELETE CASCADE,
					downloads BIGINT NOT NULL DEFAULT 1,
					counted BIGINT NOT NULL DEFAULT 0,
					date DATE NOT NULL DEFAULT CURRENT_DATE,
					processed BOOLEAN NOT NULL DEFAULT FALSE,
					UNIQUE(version_id, date)
				);

				CREATE INDEX idx_version_downloads_unprocessed
					ON version_downloads(id) WHERE processed = FALSE;
			`,
		},
		{
			Version:     3,
			Description: "Create crate_downloads daily aggregate table",
			SQL: `
				CREATE TABLE IF NOT EXISTS crate_downloads (
					crate_id BIGINT NOT NULL REFERENCES crates(id) ON DELETE CASCADE,
					date DATE NOT NULL,
					downloads BIGINT NOT NULL DEFAULT 0,
					PRIMARY KEY (crate_id, date)
				);
			`,
		},
		{
			Version:     4,
			Description: "Create registry_metadata global counter row",
			SQL: `
				CREATE TABLE IF NOT EXISTS registry_metadata (
					total_downloads BIGINT NOT NULL DEFAULT 0
				);

				INSERT INTO registry_metadata (total_downloads)
				SELECT 0 WHERE NOT EXISTS (SELECT 1 FROM registry_metadata);
			`,
		},
	}
}

// RunMigrations applies pending migrations, each in its own transaction,
// tracked in downloads_migrations.
func RunMigrations(ctx context.Context, db *sql.DB, logger *observability.Logger) error {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}

	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS downloads_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT NOW()
		)`,
	); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied := make(map[int]bool)
	rows, err := db.QueryContext(ctx, `SELECT version FROM downloads_migrations`)
	if err != nil {
		return fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read applied migrations: %w", err)
	}

	for _, migration := range Migrations() {
		if applied[migration.Version] {
			continue
		}

		logger.WithField("version", migration.Version).Infof("Applying migration: %s", migration.Description)

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction for migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO downloads_migrations (version, description) VALUES ($1, $2)`,
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}
