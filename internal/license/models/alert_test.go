package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"licensewatch/pkg/testutil"
)

func TestAlertLifecycle(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	alice := Member{Name: "Alice", LicenseID: "R1"}
	suspended := StatusResult{LicenseID: "R1", Status: StatusInactive, ObservedAt: t0}

	testutil.Given(t, "no alert for a license id", func(t *testing.T) {
		var absent *Alert
		assert.Equal(t, AlertAbsent, absent.State())

		testutil.When(t, "a sweep resolves it to a problem status", func(t *testing.T) {
			a, err := NewAlert(alice, suspended, t0)
			require.NoError(t, err)

			testutil.Then(t, "it is flagged and not yet notified", func(t *testing.T) {
				assert.Equal(t, AlertFlaggedUnnotified, a.State())
				assert.Equal(t, t0, a.FirstFlaggedAt)
				assert.Equal(t, t0, a.LastFlaggedAt)
			})
		})

		testutil.When(t, "the status is not a problem", func(t *testing.T) {
			_, err := NewAlert(alice, StatusResult{Status: StatusActive}, t0)

			testutil.Then(t, "no alert is opened", func(t *testing.T) {
				assert.ErrorIs(t, err, ErrAlertStatusNotProblem)
			})
		})

		testutil.When(t, "the member has no license id", func(t *testing.T) {
			_, err := NewAlert(Member{Name: "Bob", LicenseID: "  "}, suspended, t0)

			testutil.Then(t, "no alert is opened", func(t *testing.T) {
				assert.ErrorIs(t, err, ErrAlertLicenseRequired)
			})
		})
	})

	testutil.Given(t, "a notified alert", func(t *testing.T) {
		newNotified := func(t *testing.T) *Alert {
			a, err := NewAlert(alice, suspended, t0)
			require.NoError(t, err)
			a.MarkNotified(t0.Add(time.Minute), NotificationMeta{Recipient: "ops@example.com", StatusCode: 202})
			require.Equal(t, AlertFlaggedNotified, a.State())
			return a
		}

		testutil.When(t, "a later sweep re-flags it with reopen", func(t *testing.T) {
			a := newNotified(t)
			later := t0.Add(24 * time.Hour)
			require.NoError(t, a.Reflag(Member{LicenseID: "R1"}, StatusResult{Status: StatusNotFound, ObservedAt: later}, later, true))

			testutil.Then(t, "the notification obligation reopens and history is kept", func(t *testing.T) {
				assert.Equal(t, AlertFlaggedUnnotified, a.State())
				assert.Nil(t, a.NotificationMeta)
				assert.Equal(t, t0, a.FirstFlaggedAt)
				assert.Equal(t, later, a.LastFlaggedAt)
				assert.Equal(t, StatusNotFound, a.ReportedStatus)
				assert.Equal(t, "Alice", a.Name, "blank roster name keeps the stored one")
			})
		})

		testutil.When(t, "it is re-flagged without reopen", func(t *testing.T) {
			a := newNotified(t)
			require.NoError(t, a.Reflag(alice, suspended, t0.Add(time.Hour), false))

			testutil.Then(t, "it stays notified", func(t *testing.T) {
				assert.Equal(t, AlertFlaggedNotified, a.State())
			})
		})

		testutil.When(t, "a lookup error is reported", func(t *testing.T) {
			a := newNotified(t)
			err := a.Reflag(alice, StatusResult{Status: StatusError}, t0.Add(time.Hour), true)

			testutil.Then(t, "the alert does not move", func(t *testing.T) {
				assert.ErrorIs(t, err, ErrAlertStatusNotProblem)
				assert.Equal(t, AlertFlaggedNotified, a.State())
				assert.Equal(t, t0, a.LastFlaggedAt)
			})
		})
	})
}

func TestAlertCloneDoesNotShare(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	a := Alert{LicenseID: "R1"}
	a.MarkNotified(at, NotificationMeta{MessageID: "m1"})

	c := a.Clone()
	*c.NotifiedAt = at.Add(time.Hour)
	c.NotificationMeta.MessageID = "m2"

	assert.Equal(t, at, *a.NotifiedAt)
	assert.Equal(t, "m1", a.NotificationMeta.MessageID)
}

func TestSummarizeAndFreshness(t *testing.T) {
	s := Summarize([]MemberOutcome{
		{Outcome: OutcomeOK}, {Outcome: OutcomeFlagged}, {Outcome: OutcomeFlagged},
		{Outcome: OutcomeSkipped}, {Outcome: OutcomeErrorChecking},
	})
	assert.Equal(t, Summary{TotalMembers: 5, Ok: 1, Flagged: 2, Skipped: 1, Errors: 1}, s)

	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	entry := CacheEntry{ObservedAt: now.Add(-24 * time.Hour)}
	assert.False(t, entry.IsFresh(now, 24*time.Hour), "an entry exactly one TTL old is stale")
	assert.True(t, entry.IsFresh(now, 25*time.Hour))
	assert.True(t, StatusNotFound.IsProblem())
	assert.False(t, StatusError.Cacheable())
}
