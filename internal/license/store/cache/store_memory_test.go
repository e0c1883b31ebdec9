package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"licensewatch/internal/license/models"
	"licensewatch/pkg/platform/sentinel"
)

type InMemoryCacheStoreSuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
}

func TestInMemoryCacheStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryCacheStoreSuite))
}

func (s *InMemoryCacheStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
}

func (s *InMemoryCacheStoreSuite) TestUpsertOverwrites() {
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s.Require().NoError(s.store.Upsert(s.ctx, models.CacheEntry{LicenseID: "R1", Status: models.StatusActive, ObservedAt: t0}))
	s.Require().NoError(s.store.Upsert(s.ctx, models.CacheEntry{LicenseID: "R1", Status: models.StatusInactive, ObservedAt: t0.Add(time.Hour)}))

	entry, err := s.store.Find(s.ctx, "R1")
	s.Require().NoError(err)
	s.Equal(models.StatusInactive, entry.Status)
	s.True(entry.ObservedAt.Equal(t0.Add(time.Hour)))
}

func (s *InMemoryCacheStoreSuite) TestFindUnknown() {
	_, err := s.store.Find(s.ctx, "nope")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *InMemoryCacheStoreSuite) TestRawIsCopied() {
	raw := map[string]any{"statusDescription": "Active"}
	s.Require().NoError(s.store.Upsert(s.ctx, models.CacheEntry{LicenseID: "R1", Status: models.StatusActive, Raw: raw}))
	raw["statusDescription"] = "mutated"

	entry, err := s.store.Find(s.ctx, "R1")
	s.Require().NoError(err)
	s.Equal("Active", entry.Raw["statusDescription"])
}
