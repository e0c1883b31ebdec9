package sweep

import (
	"time"

	"licensewatch/internal/license/models"
)

// RenotifyPolicy decides whether re-flagging an existing alert reopens its
// notification obligation. A reopened alert is cleared of its notification
// state and joins the sweep's batch.
type RenotifyPolicy interface {
	Reopen(alert models.Alert, now time.Time) bool
}

// AlwaysRenotify reopens on every re-flag, so a persisting problem is
// reported on every sweep.
type AlwaysRenotify struct{}

func (AlwaysRenotify) Reopen(models.Alert, time.Time) bool { return true }

// CooldownRenotify reopens only once the last notification is at least
// Cooldown old. Alerts that were never notified are always reopened.
type CooldownRenotify struct {
	Cooldown time.Duration
}

func (p CooldownRenotify) Reopen(alert models.Alert, now time.Time) bool {
	if alert.NotifiedAt == nil {
		return true
	}
	return now.Sub(*alert.NotifiedAt) >= p.Cooldown
}
