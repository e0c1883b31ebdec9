package store

import (
	"context"
	"database/sql"
	"fmt"

	"licensewatch/internal/license/ports"
	"licensewatch/internal/license/store/alert"
	"licensewatch/internal/license/store/run"
)

// PostgresTx runs each scope in one database transaction. Any error returned
// by fn rolls the whole scope back.
type PostgresTx struct {
	scope
	db *sql.DB
}

func NewPostgresTx(db *sql.DB, opts ...Option) *PostgresTx {
	return &PostgresTx{scope: newScope(opts), db: db}
}

func (t *PostgresTx) RunInTx(ctx context.Context, fn func(stores ports.Stores) error) error {
	if err := cancelled(ctx); err != nil {
		return err
	}
	ctx, cancel := withTxTimeout(ctx, t.timeout)
	defer cancel()

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(ports.Stores{
		Alerts: alert.NewPostgresTx(tx),
		Runs:   run.NewPostgresTx(tx),
	}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
