package run

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"licensewatch/internal/license/models"
	"licensewatch/pkg/platform/sentinel"
	txcontext "licensewatch/pkg/platform/tx"
)

// PostgresStore persists the run log in the run_history table.
type PostgresStore struct {
	db *sql.DB
	tx *sql.Tx
}

// NewPostgres constructs a PostgreSQL-backed run log.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// NewPostgresTx binds the run log to an open transaction.
func NewPostgresTx(tx *sql.Tx) *PostgresStore {
	return &PostgresStore{tx: tx}
}

func (s *PostgresStore) exec() txcontext.Executor {
	return txcontext.Bound(s.tx, s.db)
}

const selectRun = `
	SELECT id, run_at, status, message, summary, flagged_count, processed_members
	FROM run_history`

func (s *PostgresStore) Append(ctx context.Context, run *models.RunRecord) error {
	summary, err := json.Marshal(run.Summary)
	if err != nil {
		return fmt.Errorf("encode run summary: %w", err)
	}
	processed, err := json.Marshal(run.ProcessedMembers)
	if err != nil {
		return fmt.Errorf("encode processed members: %w", err)
	}
	_, err = s.exec().ExecContext(ctx, `
		INSERT INTO run_history (id, run_at, status, message, summary, flagged_count, processed_members)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, run.ID, run.RunAt, string(run.Status), run.Message, summary, run.FlaggedCount, processed)
	if err != nil {
		return fmt.Errorf("append run: %w", err)
	}
	return nil
}

func (s *PostgresStore) Latest(ctx context.Context) (*models.RunRecord, error) {
	row := s.exec().QueryRowContext(ctx, selectRun+` ORDER BY run_at DESC, seq DESC LIMIT 1`)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find latest run: %w", err)
	}
	return run, nil
}

func (s *PostgresStore) List(ctx context.Context, limit int) ([]*models.RunRecord, error) {
	query := selectRun + ` ORDER BY run_at DESC, seq DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := s.exec().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []*models.RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*models.RunRecord, error) {
	var (
		run       models.RunRecord
		status    string
		summary   []byte
		processed []byte
	)
	if err := row.Scan(&run.ID, &run.RunAt, &status, &run.Message, &summary, &run.FlaggedCount, &processed); err != nil {
		return nil, err
	}
	run.Status = models.RunStatus(status)
	if err := json.Unmarshal(summary, &run.Summary); err != nil {
		return nil, fmt.Errorf("decode run summary: %w", err)
	}
	if len(processed) > 0 {
		if err := json.Unmarshal(processed, &run.ProcessedMembers); err != nil {
			return nil, fmt.Errorf("decode processed members: %w", err)
		}
	}
	return &run, nil
}
