//go:build integration

package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"licensewatch/internal/license/models"
	"licensewatch/internal/license/ports"
	"licensewatch/internal/license/store"
	"licensewatch/internal/license/store/alert"
	"licensewatch/pkg/testutil/containers"
)

type PostgresTxSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	tx       *store.PostgresTx
	alerts   *alert.PostgresStore
}

func TestPostgresTxSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresTxSuite))
}

func (s *PostgresTxSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.tx = store.NewPostgresTx(s.postgres.DB)
	s.alerts = alert.NewPostgres(s.postgres.DB)
}

func (s *PostgresTxSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "alerts", "run_history"))
}

func (s *PostgresTxSuite) TestErrorRollsBackEveryStore() {
	ctx := context.Background()
	boom := errors.New("boom")
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	err := s.tx.RunInTx(ctx, func(stores ports.Stores) error {
		if err := stores.Alerts.Insert(ctx, &models.Alert{
			LicenseID:      "R1",
			ReportedStatus: models.StatusInactive,
			FirstFlaggedAt: now,
			LastFlaggedAt:  now,
		}); err != nil {
			return err
		}
		if err := stores.Runs.Append(ctx, &models.RunRecord{ID: uuid.New(), RunAt: now, Status: models.RunCompleted}); err != nil {
			return err
		}
		return boom
	})
	s.ErrorIs(err, boom)

	n, err := s.alerts.Count(ctx)
	s.Require().NoError(err)
	s.Zero(n)
	var runs int
	s.Require().NoError(s.postgres.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM run_history`).Scan(&runs))
	s.Zero(runs)
}

func (s *PostgresTxSuite) TestCommitIsVisibleOutside() {
	ctx := context.Background()
	err := s.tx.RunInTx(ctx, func(stores ports.Stores) error {
		return stores.Alerts.Insert(ctx, &models.Alert{LicenseID: "R2", ReportedStatus: models.StatusNotFound})
	})
	s.Require().NoError(err)

	_, err = s.alerts.Find(ctx, "R2")
	s.NoError(err)
}

// Two scopes flagging the same id serialize on the row lock taken by Find.
func (s *PostgresTxSuite) TestFindLocksRowForTheScope() {
	ctx := context.Background()
	s.Require().NoError(s.alerts.Insert(ctx, &models.Alert{LicenseID: "R3", ReportedStatus: models.StatusInactive}))

	locked := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.tx.RunInTx(ctx, func(stores ports.Stores) error {
			if _, err := stores.Alerts.Find(ctx, "R3"); err != nil {
				return err
			}
			close(locked)
			<-release
			return nil
		})
	}()
	<-locked

	second := make(chan error, 1)
	go func() {
		second <- s.tx.RunInTx(ctx, func(stores ports.Stores) error {
			_, err := stores.Alerts.Find(ctx, "R3")
			return err
		})
	}()

	select {
	case err := <-second:
		s.Failf("second scope did not wait for the lock", "err=%v", err)
	case <-time.After(200 * time.Millisecond):
	}
	close(release)
	s.Require().NoError(<-done)
	s.Require().NoError(<-second)
}
