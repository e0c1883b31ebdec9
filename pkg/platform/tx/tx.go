// Package tx holds the executor seam shared by the SQL stores.
package tx

import (
	"context"
	"database/sql"
)

// Executor is the subset of *sql.DB and *sql.Tx the stores need.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Bound returns tx when the store is bound to a transaction, falling back to db.
func Bound(tx *sql.Tx, db *sql.DB) Executor {
	if tx != nil {
		return tx
	}
	return db
}
