package models

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus is the terminal status of one sweep invocation.
type RunStatus string

const (
	RunCompleted RunStatus = "completed"
	RunAborted   RunStatus = "aborted"
	RunError     RunStatus = "error"
)

// Outcome is the per-member result of a sweep.
type Outcome string

const (
	OutcomeOK            Outcome = "ok"
	OutcomeFlagged       Outcome = "flagged"
	OutcomeSkipped       Outcome = "skipped"
	OutcomeErrorChecking Outcome = "error_checking"
)

// MemberOutcome records what one sweep did for one roster member. Queued
// marks a flagged member that went into that sweep's notification batch.
type MemberOutcome struct {
	Name       string    `json:"name"`
	LicenseID  string    `json:"license_id"`
	Outcome    Outcome   `json:"outcome"`
	Status     Status    `json:"status,omitempty"`
	Source     Source    `json:"source,omitempty"`
	ObservedAt time.Time `json:"observed_at,omitzero"`
	Queued     bool      `json:"queued,omitempty"`
	Message    string    `json:"message,omitempty"`
}

// Summary aggregates one sweep's member outcomes.
type Summary struct {
	TotalMembers int `json:"total_members"`
	Ok           int `json:"ok"`
	Flagged      int `json:"flagged"`
	Skipped      int `json:"skipped"`
	Errors       int `json:"errors"`
	OpenAlerts   int `json:"open_alerts"`
}

// Summarize counts outcomes. OpenAlerts is filled by the caller from the store.
func Summarize(processed []MemberOutcome) Summary {
	s := Summary{TotalMembers: len(processed)}
	for _, p := range processed {
		switch p.Outcome {
		case OutcomeOK:
			s.Ok++
		case OutcomeFlagged:
			s.Flagged++
		case OutcomeSkipped:
			s.Skipped++
		case OutcomeErrorChecking:
			s.Errors++
		}
	}
	return s
}

// RunRecord is one append-only row of the run log.
type RunRecord struct {
	ID               uuid.UUID       `json:"id"`
	RunAt            time.Time       `json:"run_at"`
	Status           RunStatus       `json:"status"`
	Message          string          `json:"message,omitempty"`
	Summary          Summary         `json:"summary"`
	FlaggedCount     int             `json:"flagged_count"`
	ProcessedMembers []MemberOutcome `json:"processed_members"`
}

// NotificationResult reports a dispatcher call.
type NotificationResult struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Updated int               `json:"updated"`
	Meta    *NotificationMeta `json:"meta,omitempty"`
}

// RunOutcome is what a sweep returns: the recorded run plus the live batch
// flagged during this pass. The batch is never persisted on its own.
type RunOutcome struct {
	RunRecord
	FlaggedThisRun []Alert             `json:"flagged_this_run"`
	Notification   *NotificationResult `json:"notification,omitempty"`
}

// ResendResult reports a manual resend for one alert. Alert is nil when the
// alert disappeared between sending and re-reading it.
type ResendResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Alert   *Alert `json:"alert"`
}
