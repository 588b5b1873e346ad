package downloads

import (
	"context"
	"database/sql"
)

// Querier is the subset of database/sql the engine issues statements
// through. Both *sql.DB and *sql.Tx satisfy it.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Tx is one page transaction. Every page of the backlog is fetched,
// reconciled, and committed through a single Tx; a failure anywhere in the
// page rolls the whole page back.
type Tx interface {
	Querier
	Commit() error
	Rollback() error
}

// Store hands out page transactions. It is the engine's only capability
// against the backing database, which keeps the run loop testable against
// any database/sql driver.
type Store interface {
	Begin(ctx context.Context) (Tx, error)
}

// SQLStore adapts *sql.DB to Store.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore wraps an open database handle.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Begin opens a page transaction with the connection's default isolation.
func (s *SQLStore) Begin(ctx context.Context) (Tx, error) {
	return s.db.BeginTx(ctx, nil)
}
