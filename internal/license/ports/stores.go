package ports

import (
	"context"
	"time"

	"licensewatch/internal/license/models"
)

// CacheStore persists the last authority answer per license id.
// Find returns sentinel.ErrNotFound for unknown ids; freshness is the caller's call.
type CacheStore interface {
	Find(ctx context.Context, licenseID string) (*models.CacheEntry, error)
	Upsert(ctx context.Context, entry models.CacheEntry) error
}

// AlertStore holds the currently open alerts. Every update is per-field so a
// concurrent notification update is never overwritten by a blind row replace.
type AlertStore interface {
	Find(ctx context.Context, licenseID string) (*models.Alert, error)
	Insert(ctx context.Context, alert *models.Alert) error
	// Reflag writes name, reported_status, last_checked and last_flagged_at,
	// and clears the notification columns when reopen is set.
	Reflag(ctx context.Context, alert *models.Alert, reopen bool) error
	Delete(ctx context.Context, licenseID string) (bool, error)
	// List returns open alerts, most recently flagged first.
	List(ctx context.Context) ([]*models.Alert, error)
	Count(ctx context.Context) (int, error)
	// MarkNotified touches only notified_at and notification_meta, and only
	// for the given ids. It returns the number of rows updated.
	MarkNotified(ctx context.Context, licenseIDs []string, at time.Time, meta models.NotificationMeta) (int, error)
}

// RunStore is the append-only run log.
type RunStore interface {
	Append(ctx context.Context, run *models.RunRecord) error
	// Latest returns sentinel.ErrNotFound when no run was ever recorded.
	Latest(ctx context.Context) (*models.RunRecord, error)
	List(ctx context.Context, limit int) ([]*models.RunRecord, error)
}

// Stores is the set of stores visible inside one transactional scope.
type Stores struct {
	Alerts AlertStore
	Runs   RunStore
}

// StoreTx provides the transactional boundary shared by the sweep engine and
// the notification dispatcher. Implementations may wrap a database
// transaction or, in-memory, a coarse lock.
type StoreTx interface {
	RunInTx(ctx context.Context, fn func(stores Stores) error) error
}
