package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"licensewatch/internal/license/models"
	"licensewatch/pkg/platform/sentinel"
)

// PostgresStore persists cache entries in the cache_entries table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed status cache store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Find(ctx context.Context, licenseID string) (*models.CacheEntry, error) {
	var (
		entry  models.CacheEntry
		status string
		raw    []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT license_id, status, observed_at, raw
		FROM cache_entries
		WHERE license_id = $1
	`, licenseID).Scan(&entry.LicenseID, &status, &entry.ObservedAt, &raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find cache entry: %w", err)
	}
	entry.Status = models.Status(status)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &entry.Raw); err != nil {
			return nil, fmt.Errorf("decode cache entry raw: %w", err)
		}
	}
	return &entry, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, entry models.CacheEntry) error {
	raw, err := marshalRaw(entry.Raw)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO cache_entries (license_id, status, observed_at, raw)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (license_id) DO UPDATE SET
			status = EXCLUDED.status,
			observed_at = EXCLUDED.observed_at,
			raw = EXCLUDED.raw
	`, entry.LicenseID, string(entry.Status), entry.ObservedAt, raw)
	if err != nil {
		return fmt.Errorf("upsert cache entry: %w", err)
	}
	return nil
}

func marshalRaw(raw map[string]any) ([]byte, error) {
	if raw == nil {
		return nil, nil
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("encode cache entry raw: %w", err)
	}
	return b, nil
}
