package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"licensewatch/internal/license/models"
	"licensewatch/internal/license/ports"
	"licensewatch/internal/license/store/alert"
	"licensewatch/internal/license/store/run"
	dErrors "licensewatch/pkg/domain-errors"
)

type MemoryTxSuite struct {
	suite.Suite
	alerts *alert.InMemory
	tx     *MemoryTx
}

func TestMemoryTxSuite(t *testing.T) {
	suite.Run(t, new(MemoryTxSuite))
}

func (s *MemoryTxSuite) SetupTest() {
	s.alerts = alert.NewInMemory()
	s.tx = NewMemoryTx(s.alerts, run.NewInMemory())
}

func (s *MemoryTxSuite) TestRunsFnWithStores() {
	ctx := context.Background()
	now := time.Now()
	err := s.tx.RunInTx(ctx, func(stores ports.Stores) error {
		return stores.Alerts.Insert(ctx, &models.Alert{LicenseID: "R1", ReportedStatus: models.StatusInactive, FirstFlaggedAt: now, LastFlaggedAt: now})
	})
	s.Require().NoError(err)

	n, err := s.alerts.Count(ctx)
	s.Require().NoError(err)
	s.Equal(1, n)
}

func (s *MemoryTxSuite) TestPropagatesFnError() {
	boom := errors.New("boom")
	err := s.tx.RunInTx(context.Background(), func(ports.Stores) error { return boom })
	s.ErrorIs(err, boom)
}

func (s *MemoryTxSuite) TestRejectsCancelledContext() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := s.tx.RunInTx(ctx, func(ports.Stores) error {
		called = true
		return nil
	})
	s.True(dErrors.HasCode(err, dErrors.CodeTimeout))
	s.False(called)
}

func (s *MemoryTxSuite) TestTimeoutAbortsScopeWaitingOnLock() {
	tx := NewMemoryTx(s.alerts, run.NewInMemory(), WithTimeout(10*time.Millisecond))
	holding := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- tx.RunInTx(context.Background(), func(ports.Stores) error {
			close(holding)
			<-release
			return nil
		})
	}()
	<-holding

	go func() {
		time.Sleep(50 * time.Millisecond)
		close(release)
	}()
	called := false
	err := tx.RunInTx(context.Background(), func(ports.Stores) error {
		called = true
		return nil
	})

	s.True(dErrors.HasCode(err, dErrors.CodeTimeout))
	s.False(called)
	s.Require().NoError(<-done)
}
