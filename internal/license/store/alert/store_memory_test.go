package alert

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"licensewatch/internal/license/models"
	"licensewatch/pkg/platform/sentinel"
)

type InMemoryAlertStoreSuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
	now   time.Time
}

func TestInMemoryAlertStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryAlertStoreSuite))
}

func (s *InMemoryAlertStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
	s.now = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
}

func (s *InMemoryAlertStoreSuite) newAlert(licenseID string, flaggedAt time.Time) *models.Alert {
	return &models.Alert{
		LicenseID:      licenseID,
		Name:           "Member " + licenseID,
		ReportedStatus: models.StatusInactive,
		LastChecked:    flaggedAt,
		FirstFlaggedAt: flaggedAt,
		LastFlaggedAt:  flaggedAt,
	}
}

func (s *InMemoryAlertStoreSuite) TestInsertAndFind() {
	s.Run("finds inserted alert", func() {
		s.Require().NoError(s.store.Insert(s.ctx, s.newAlert("R1", s.now)))

		found, err := s.store.Find(s.ctx, "R1")
		s.Require().NoError(err)
		s.Equal("Member R1", found.Name)
		s.Equal(models.AlertFlaggedUnnotified, found.State())
	})

	s.Run("rejects second alert for same license id", func() {
		err := s.store.Insert(s.ctx, s.newAlert("R1", s.now))
		s.ErrorIs(err, sentinel.ErrConflict)
	})

	s.Run("returns ErrNotFound for unknown id", func() {
		_, err := s.store.Find(s.ctx, "missing")
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("returned alert does not alias stored state", func() {
		found, err := s.store.Find(s.ctx, "R1")
		s.Require().NoError(err)
		found.Name = "changed"

		again, err := s.store.Find(s.ctx, "R1")
		s.Require().NoError(err)
		s.Equal("Member R1", again.Name)
	})
}

func (s *InMemoryAlertStoreSuite) TestReflag() {
	a := s.newAlert("R1", s.now)
	s.Require().NoError(s.store.Insert(s.ctx, a))
	_, err := s.store.MarkNotified(s.ctx, []string{"R1"}, s.now, models.NotificationMeta{StatusCode: 202})
	s.Require().NoError(err)

	s.Run("keeps notification when not reopened", func() {
		later := *a
		later.LastFlaggedAt = s.now.Add(time.Hour)
		s.Require().NoError(s.store.Reflag(s.ctx, &later, false))

		found, err := s.store.Find(s.ctx, "R1")
		s.Require().NoError(err)
		s.Equal(models.AlertFlaggedNotified, found.State())
		s.True(found.LastFlaggedAt.Equal(s.now.Add(time.Hour)))
		s.True(found.FirstFlaggedAt.Equal(s.now))
	})

	s.Run("clears notification when reopened", func() {
		later := *a
		later.ReportedStatus = models.StatusNotFound
		later.LastFlaggedAt = s.now.Add(2 * time.Hour)
		s.Require().NoError(s.store.Reflag(s.ctx, &later, true))

		found, err := s.store.Find(s.ctx, "R1")
		s.Require().NoError(err)
		s.Equal(models.AlertFlaggedUnnotified, found.State())
		s.Nil(found.NotificationMeta)
		s.Equal(models.StatusNotFound, found.ReportedStatus)
	})

	s.Run("returns ErrNotFound for unknown id", func() {
		err := s.store.Reflag(s.ctx, s.newAlert("missing", s.now), true)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *InMemoryAlertStoreSuite) TestDeleteAndCount() {
	s.Require().NoError(s.store.Insert(s.ctx, s.newAlert("R1", s.now)))
	s.Require().NoError(s.store.Insert(s.ctx, s.newAlert("R2", s.now)))

	n, err := s.store.Count(s.ctx)
	s.Require().NoError(err)
	s.Equal(2, n)

	deleted, err := s.store.Delete(s.ctx, "R1")
	s.Require().NoError(err)
	s.True(deleted)

	deleted, err = s.store.Delete(s.ctx, "R1")
	s.Require().NoError(err)
	s.False(deleted)

	n, err = s.store.Count(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, n)
}

func (s *InMemoryAlertStoreSuite) TestListOrdersByLastFlaggedDesc() {
	s.Require().NoError(s.store.Insert(s.ctx, s.newAlert("old", s.now)))
	s.Require().NoError(s.store.Insert(s.ctx, s.newAlert("new", s.now.Add(time.Hour))))
	s.Require().NoError(s.store.Insert(s.ctx, s.newAlert("mid", s.now.Add(30*time.Minute))))

	list, err := s.store.List(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(list, 3)
	s.Equal("new", list[0].LicenseID)
	s.Equal("mid", list[1].LicenseID)
	s.Equal("old", list[2].LicenseID)
}

func (s *InMemoryAlertStoreSuite) TestMarkNotifiedTouchesOnlyGivenIDs() {
	s.Require().NoError(s.store.Insert(s.ctx, s.newAlert("R1", s.now)))
	s.Require().NoError(s.store.Insert(s.ctx, s.newAlert("R2", s.now)))

	meta := models.NotificationMeta{Recipient: "ops@example.com", StatusCode: 202, SentAt: s.now}
	n, err := s.store.MarkNotified(s.ctx, []string{"R1", "gone"}, s.now, meta)
	s.Require().NoError(err)
	s.Equal(1, n)

	r1, err := s.store.Find(s.ctx, "R1")
	s.Require().NoError(err)
	s.Require().NotNil(r1.NotifiedAt)
	s.Equal("ops@example.com", r1.NotificationMeta.Recipient)

	r2, err := s.store.Find(s.ctx, "R2")
	s.Require().NoError(err)
	s.Nil(r2.NotifiedAt)
}
