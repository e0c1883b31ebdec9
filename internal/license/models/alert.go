package models

import (
	"errors"
	"strings"
	"time"
)

// AlertState is the notification lifecycle position of a license id.
type AlertState string

const (
	AlertAbsent            AlertState = "absent"
	AlertFlaggedUnnotified AlertState = "flagged_unnotified"
	AlertFlaggedNotified   AlertState = "flagged_notified"
)

// NotificationMeta is the bounded transport summary kept on a notified alert.
type NotificationMeta struct {
	Recipient  string    `json:"recipient"`
	Subject    string    `json:"subject"`
	StatusCode int       `json:"status_code"`
	MessageID  string    `json:"message_id,omitempty"`
	SentAt     time.Time `json:"sent_at"`
}

// Alert is an open license problem, one per license id.
type Alert struct {
	LicenseID        string            `json:"license_id"`
	Name             string            `json:"name"`
	ReportedStatus   Status            `json:"reported_status"`
	LastChecked      time.Time         `json:"last_checked"`
	FirstFlaggedAt   time.Time         `json:"first_flagged_at"`
	LastFlaggedAt    time.Time         `json:"last_flagged_at"`
	NotifiedAt       *time.Time        `json:"notified_at"`
	NotificationMeta *NotificationMeta `json:"notification_meta"`
}

var (
	ErrAlertLicenseRequired  = errors.New("alert license id is required")
	ErrAlertStatusNotProblem = errors.New("alert status must be inactive or not_found")
)

// NewAlert opens an alert for a license id that resolved to a problem status.
// The alert starts flagged and unnotified.
func NewAlert(member Member, result StatusResult, now time.Time) (*Alert, error) {
	if strings.TrimSpace(member.LicenseID) == "" {
		return nil, ErrAlertLicenseRequired
	}
	if !result.Status.IsProblem() {
		return nil, ErrAlertStatusNotProblem
	}
	return &Alert{
		LicenseID:      member.LicenseID,
		Name:           member.Name,
		ReportedStatus: result.Status,
		LastChecked:    result.ObservedAt,
		FirstFlaggedAt: now,
		LastFlaggedAt:  now,
	}, nil
}

// State derives the lifecycle state from the row.
func (a *Alert) State() AlertState {
	if a == nil {
		return AlertAbsent
	}
	if a.NotifiedAt == nil {
		return AlertFlaggedUnnotified
	}
	return AlertFlaggedNotified
}

// Reflag records that a later sweep still finds the license problematic.
// FirstFlaggedAt is never touched. When reopen is true the notification
// obligation is reopened.
func (a *Alert) Reflag(member Member, result StatusResult, now time.Time, reopen bool) error {
	if !result.Status.IsProblem() {
		return ErrAlertStatusNotProblem
	}
	if member.Name != "" {
		a.Name = member.Name
	}
	a.ReportedStatus = result.Status
	a.LastChecked = result.ObservedAt
	a.LastFlaggedAt = now
	if reopen {
		a.ClearNotification()
	}
	return nil
}

// ClearNotification moves the alert back to flagged-unnotified.
func (a *Alert) ClearNotification() {
	a.NotifiedAt = nil
	a.NotificationMeta = nil
}

// MarkNotified moves the alert to flagged-notified.
func (a *Alert) MarkNotified(at time.Time, meta NotificationMeta) {
	sent := at
	m := meta
	a.NotifiedAt = &sent
	a.NotificationMeta = &m
}

// Clone returns a deep copy so callers never share the pointer fields.
func (a Alert) Clone() Alert {
	out := a
	if a.NotifiedAt != nil {
		t := *a.NotifiedAt
		out.NotifiedAt = &t
	}
	if a.NotificationMeta != nil {
		m := *a.NotificationMeta
		out.NotificationMeta = &m
	}
	return out
}
