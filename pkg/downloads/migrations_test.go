package downloads

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestMigrationsAreOrdered(t *testing.T) {
	migrations := Migrations()
	if len(migrations) == 0 {
		t.Fatal("Expected at least one migration")
	}
	for i, m := range migrations {
		if m.Version != i+1 {
			t.Errorf("Expected migration %d at position %d, got version %d", i+1, i, m.Version)
		}
		if m.Description == "" {
			t.Errorf("Migration %d has no description", m.Version)
		}
		if m.SQL == "" {
			t.Errorf("Migration %d has no SQL", m.Version)
		}
	}
}

func TestRunMigrationsAppliesAllPending(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock database: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS downloads_migrations").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT version FROM downloads_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"version"}))

	for _, migration := range Migrations() {
		mock.ExpectBegin()
		mock.ExpectExec("CREATE TABLE IF NOT EXISTS").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec("INSERT INTO downloads_migrations").
			WithArgs(migration.Version, migration.Description).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()
	}

	if err := RunMigrations(context.Background(), db, nil); err != nil {
		t.Fatalf("RunMigrations failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}

func TestRunMigrationsSkipsApplied(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock database: %v", err)
	}
	defer db.Close()

	applied := sqlmock.NewRows([]string{"version"})
	for _, migration := range Migrations() {
		applied.AddRow(migration.Version)
	}

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS downloads_migrations").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT version FROM downloads_migrations").
		WillReturnRows(applied)

	if err := RunMigrations(context.Background(), db, nil); err != nil {
		t.Fatalf("RunMigrations failed: %v", err)
	}

	// No Begin expected: everything was already applied.
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}

func TestRunMigrationsRollsBackOnFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock database: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS downloads_migrations").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT version FROM downloads_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"version"}))
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS").
		WillReturnError(sqlmock.ErrCancelled)
	mock.ExpectRollback()

	if err := RunMigrations(context.Background(), db, nil); err == nil {
		t.Fatal("Expected migration failure")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}
