//go:build integration

package run_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"licensewatch/internal/license/models"
	"licensewatch/internal/license/store/run"
	"licensewatch/pkg/platform/sentinel"
	"licensewatch/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *run.PostgresStore
	t0       time.Time
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = run.NewPostgres(s.postgres.DB)
	s.t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "run_history"))
}

func (s *PostgresStoreSuite) append(at time.Time, status models.RunStatus) *models.RunRecord {
	r := &models.RunRecord{
		ID:     uuid.New(),
		RunAt:  at,
		Status: status,
		Summary: models.Summary{
			TotalMembers: 1,
			Flagged:      1,
			OpenAlerts:   1,
		},
		FlaggedCount: 1,
		ProcessedMembers: []models.MemberOutcome{{
			Name:      "Alice",
			LicenseID: "R1",
			Outcome:   models.OutcomeFlagged,
			Status:    models.StatusInactive,
			Source:    models.SourceAuthority,
			Queued:    true,
		}},
	}
	s.Require().NoError(s.store.Append(context.Background(), r))
	return r
}

func (s *PostgresStoreSuite) TestLatestOnEmptyLog() {
	_, err := s.store.Latest(context.Background())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestLatestRoundTripsJSONColumns() {
	s.append(s.t0, models.RunAborted)
	want := s.append(s.t0.Add(time.Hour), models.RunCompleted)

	got, err := s.store.Latest(context.Background())
	s.Require().NoError(err)
	s.Equal(want.ID, got.ID)
	s.Equal(want.Summary, got.Summary)
	s.Require().Len(got.ProcessedMembers, 1)
	s.True(got.ProcessedMembers[0].Queued)
	s.Equal(models.OutcomeFlagged, got.ProcessedMembers[0].Outcome)
}

func (s *PostgresStoreSuite) TestLatestBreaksTiesByAppendOrder() {
	s.append(s.t0, models.RunAborted)
	second := s.append(s.t0, models.RunError)

	got, err := s.store.Latest(context.Background())
	s.Require().NoError(err)
	s.Equal(second.ID, got.ID)
}

func (s *PostgresStoreSuite) TestListNewestFirstWithLimit() {
	for h := range 4 {
		s.append(s.t0.Add(time.Duration(h)*time.Hour), models.RunCompleted)
	}

	got, err := s.store.List(context.Background(), 2)
	s.Require().NoError(err)
	s.Require().Len(got, 2)
	s.True(s.t0.Add(3 * time.Hour).Equal(got[0].RunAt))
	s.True(s.t0.Add(2 * time.Hour).Equal(got[1].RunAt))

	all, err := s.store.List(context.Background(), 0)
	s.Require().NoError(err)
	s.Len(all, 4)
}
