package audit

import "time"

// Action names an alert lifecycle event.
type Action string

const (
	ActionAlertOpened        Action = "alert_opened"
	ActionAlertReflagged     Action = "alert_reflagged"
	ActionAlertCleared       Action = "alert_cleared"
	ActionNotificationSent   Action = "notification_sent"
	ActionNotificationFailed Action = "notification_failed"
	ActionSweepCompleted     Action = "sweep_completed"
	ActionSweepAborted       Action = "sweep_aborted"
	ActionSweepFailed        Action = "sweep_failed"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so sinks can fan out.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Action    Action    `json:"action"`
	LicenseID string    `json:"license_id,omitempty"`
	Name      string    `json:"name,omitempty"`
	Status    string    `json:"status,omitempty"`
	RunID     string    `json:"run_id,omitempty"`
	Detail    string    `json:"detail,omitempty"`
}
