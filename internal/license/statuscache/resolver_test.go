package statuscache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"licensewatch/internal/license/metrics"
	"licensewatch/internal/license/models"
	"licensewatch/internal/license/ports/mocks"
	"licensewatch/internal/license/store/cache"
	dErrors "licensewatch/pkg/domain-errors"
	"licensewatch/pkg/requestcontext"
)

type ResolverSuite struct {
	suite.Suite
	ctrl      *gomock.Controller
	authority *mocks.MockAuthorityClient
	store     *cache.InMemory
	metrics   *metrics.Metrics
	resolver  *Resolver
	t0        time.Time
}

func TestResolverSuite(t *testing.T) {
	suite.Run(t, new(ResolverSuite))
}

func (s *ResolverSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.authority = mocks.NewMockAuthorityClient(s.ctrl)
	s.store = cache.NewInMemory()
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.resolver = New(s.store, s.authority, WithMetrics(s.metrics))
	s.t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
}

func (s *ResolverSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *ResolverSuite) at(t time.Time) context.Context {
	return requestcontext.WithTime(context.Background(), t)
}

func (s *ResolverSuite) TestEmptyKey() {
	_, err := s.resolver.Resolve(context.Background(), "   ")
	s.ErrorIs(err, ErrEmptyKey)
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
}

func (s *ResolverSuite) TestMissConsultsAuthorityAndCaches() {
	s.authority.EXPECT().Lookup(gomock.Any(), "R1").
		Return(&models.AuthorityResponse{StatusText: "Suspended"}, nil)

	result, err := s.resolver.Resolve(s.at(s.t0), "R1")
	s.Require().NoError(err)
	s.Equal(models.StatusInactive, result.Status)
	s.Equal(models.SourceAuthority, result.Source)
	s.True(result.ObservedAt.Equal(s.t0))

	entry, err := s.store.Find(context.Background(), "R1")
	s.Require().NoError(err)
	s.Equal(models.StatusInactive, entry.Status)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.CacheLookups.WithLabelValues(metrics.CacheMiss)))
}

func (s *ResolverSuite) TestFreshHitSkipsAuthority() {
	s.authority.EXPECT().Lookup(gomock.Any(), "R1").
		Return(&models.AuthorityResponse{StatusText: "Active"}, nil).Times(1)

	_, err := s.resolver.Resolve(s.at(s.t0), "R1")
	s.Require().NoError(err)

	result, err := s.resolver.Resolve(s.at(s.t0.Add(23*time.Hour)), "R1")
	s.Require().NoError(err)
	s.Equal(models.StatusActive, result.Status)
	s.Equal(models.SourceCache, result.Source)
	s.True(result.ObservedAt.Equal(s.t0))
}

func (s *ResolverSuite) TestStaleEntryIsRefreshed() {
	gomock.InOrder(
		s.authority.EXPECT().Lookup(gomock.Any(), "R1").
			Return(&models.AuthorityResponse{StatusText: "Active"}, nil),
		s.authority.EXPECT().Lookup(gomock.Any(), "R1").
			Return(&models.AuthorityResponse{StatusText: "Expired"}, nil),
	)

	_, err := s.resolver.Resolve(s.at(s.t0), "R1")
	s.Require().NoError(err)

	later := s.t0.Add(DefaultTTL)
	result, err := s.resolver.Resolve(s.at(later), "R1")
	s.Require().NoError(err)
	s.Equal(models.StatusInactive, result.Status)
	s.Equal(models.SourceAuthority, result.Source)

	entry, err := s.store.Find(context.Background(), "R1")
	s.Require().NoError(err)
	s.True(entry.ObservedAt.Equal(later))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.CacheLookups.WithLabelValues(metrics.CacheStale)))
}

func (s *ResolverSuite) TestNotFoundIsCached() {
	s.authority.EXPECT().Lookup(gomock.Any(), "R9").
		Return(&models.AuthorityResponse{NotFound: true}, nil).Times(1)

	first, err := s.resolver.Resolve(s.at(s.t0), "R9")
	s.Require().NoError(err)
	s.Equal(models.StatusNotFound, first.Status)

	second, err := s.resolver.Resolve(s.at(s.t0.Add(time.Hour)), "R9")
	s.Require().NoError(err)
	s.Equal(models.StatusNotFound, second.Status)
	s.Equal(models.SourceCache, second.Source)
}

func (s *ResolverSuite) TestLookupErrorIsNotCached() {
	s.Require().NoError(s.store.Upsert(context.Background(), models.CacheEntry{
		LicenseID: "R1", Status: models.StatusActive, ObservedAt: s.t0.Add(-48 * time.Hour),
	}))
	s.authority.EXPECT().Lookup(gomock.Any(), "R1").Return(nil, errors.New("connection refused"))

	result, err := s.resolver.Resolve(s.at(s.t0), "R1")
	s.Require().NoError(err)
	s.Equal(models.StatusError, result.Status)
	s.Equal(models.SourceAuthority, result.Source)
	s.Contains(result.Message, "connection refused")

	entry, err := s.store.Find(context.Background(), "R1")
	s.Require().NoError(err)
	s.Equal(models.StatusActive, entry.Status)
	s.True(entry.ObservedAt.Equal(s.t0.Add(-48 * time.Hour)))
}

func (s *ResolverSuite) TestCustomTTL() {
	r := New(s.store, s.authority, WithTTL(time.Minute))
	s.Equal(time.Minute, r.TTL())

	s.authority.EXPECT().Lookup(gomock.Any(), "R1").
		Return(&models.AuthorityResponse{StatusText: "Active"}, nil).Times(2)

	_, err := r.Resolve(s.at(s.t0), "R1")
	s.Require().NoError(err)
	_, err = r.Resolve(s.at(s.t0.Add(time.Minute)), "R1")
	s.Require().NoError(err)
}
