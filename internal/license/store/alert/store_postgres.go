package alert

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"licensewatch/internal/license/models"
	"licensewatch/pkg/platform/sentinel"
	txcontext "licensewatch/pkg/platform/tx"
)

const uniqueViolation = "23505"

// PostgresStore persists open alerts in the alerts table.
type PostgresStore struct {
	db *sql.DB
	tx *sql.Tx
}

// NewPostgres constructs a PostgreSQL-backed alert store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// NewPostgresTx binds the alert store to an open transaction.
func NewPostgresTx(tx *sql.Tx) *PostgresStore {
	return &PostgresStore{tx: tx}
}

func (s *PostgresStore) exec() txcontext.Executor {
	return txcontext.Bound(s.tx, s.db)
}

const selectAlert = `
	SELECT license_id, name, reported_status, last_checked, first_flagged_at,
		last_flagged_at, notified_at, notification_meta
	FROM alerts`

// Find locks the row when called inside a transaction so the caller's
// read-modify-write is serialized with other writers.
func (s *PostgresStore) Find(ctx context.Context, licenseID string) (*models.Alert, error) {
	query := selectAlert + ` WHERE license_id = $1`
	if s.tx != nil {
		query += ` FOR UPDATE`
	}
	row := s.exec().QueryRowContext(ctx, query, licenseID)
	a, err := scanAlert(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find alert: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) Insert(ctx context.Context, a *models.Alert) error {
	meta, err := marshalMeta(a.NotificationMeta)
	if err != nil {
		return err
	}
	_, err = s.exec().ExecContext(ctx, `
		INSERT INTO alerts (license_id, name, reported_status, last_checked,
			first_flagged_at, last_flagged_at, notified_at, notification_meta)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, a.LicenseID, a.Name, string(a.ReportedStatus), a.LastChecked,
		a.FirstFlaggedAt, a.LastFlaggedAt, nullTime(a.NotifiedAt), meta)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return fmt.Errorf("alert %s: %w", a.LicenseID, sentinel.ErrConflict)
		}
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

func (s *PostgresStore) Reflag(ctx context.Context, a *models.Alert, reopen bool) error {
	query := `
		UPDATE alerts SET
			name = $2,
			reported_status = $3,
			last_checked = $4,
			last_flagged_at = $5`
	if reopen {
		query += `,
			notified_at = NULL,
			notification_meta = NULL`
	}
	query += `
		WHERE license_id = $1`
	res, err := s.exec().ExecContext(ctx, query,
		a.LicenseID, a.Name, string(a.ReportedStatus), a.LastChecked, a.LastFlaggedAt)
	if err != nil {
		return fmt.Errorf("reflag alert: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reflag alert rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, licenseID string) (bool, error) {
	res, err := s.exec().ExecContext(ctx, `DELETE FROM alerts WHERE license_id = $1`, licenseID)
	if err != nil {
		return false, fmt.Errorf("delete alert: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete alert rows affected: %w", err)
	}
	return n > 0, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*models.Alert, error) {
	rows, err := s.exec().QueryContext(ctx, selectAlert+` ORDER BY last_flagged_at DESC, license_id`)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	var out []*models.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alerts: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.exec().QueryRowContext(ctx, `SELECT COUNT(*) FROM alerts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count alerts: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) MarkNotified(ctx context.Context, licenseIDs []string, at time.Time, meta models.NotificationMeta) (int, error) {
	if len(licenseIDs) == 0 {
		return 0, nil
	}
	payload, err := marshalMeta(&meta)
	if err != nil {
		return 0, err
	}
	res, err := s.exec().ExecContext(ctx, `
		UPDATE alerts SET
			notified_at = $2,
			notification_meta = $3
		WHERE license_id = ANY($1)
	`, pq.Array(licenseIDs), at, payload)
	if err != nil {
		return 0, fmt.Errorf("mark alerts notified: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark alerts notified rows affected: %w", err)
	}
	return int(n), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlert(row rowScanner) (*models.Alert, error) {
	var (
		a          models.Alert
		status     string
		notifiedAt sql.NullTime
		meta       []byte
	)
	if err := row.Scan(&a.LicenseID, &a.Name, &status, &a.LastChecked,
		&a.FirstFlaggedAt, &a.LastFlaggedAt, &notifiedAt, &meta); err != nil {
		return nil, err
	}
	a.ReportedStatus = models.Status(status)
	if notifiedAt.Valid {
		t := notifiedAt.Time
		a.NotifiedAt = &t
	}
	if len(meta) > 0 {
		var m models.NotificationMeta
		if err := json.Unmarshal(meta, &m); err != nil {
			return nil, fmt.Errorf("decode notification meta: %w", err)
		}
		a.NotificationMeta = &m
	}
	return &a, nil
}

func marshalMeta(meta *models.NotificationMeta) ([]byte, error) {
	if meta == nil {
		return nil, nil
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("encode notification meta: %w", err)
	}
	return b, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
