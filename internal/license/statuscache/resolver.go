// Package statuscache resolves license ids to a status, consulting the
// licensing authority only when no fresh answer is cached.
package statuscache

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"licensewatch/internal/license/authority"
	"licensewatch/internal/license/metrics"
	"licensewatch/internal/license/models"
	"licensewatch/internal/license/ports"
	dErrors "licensewatch/pkg/domain-errors"
	"licensewatch/pkg/platform/sentinel"
	"licensewatch/pkg/requestcontext"
)

// DefaultTTL is how long an authority answer is reused.
const DefaultTTL = 24 * time.Hour

var ErrEmptyKey = dErrors.New(dErrors.CodeBadRequest, "license id cannot be empty")

// Resolver owns the cache entries. Lookup failures are returned as a
// StatusError result and never written to the cache.
type Resolver struct {
	store     ports.CacheStore
	authority ports.AuthorityClient
	ttl       time.Duration
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
}

type Option func(*Resolver)

func WithTTL(ttl time.Duration) Option {
	return func(r *Resolver) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Resolver) {
		r.metrics = m
	}
}

func New(store ports.CacheStore, authorityClient ports.AuthorityClient, opts ...Option) *Resolver {
	r := &Resolver{
		store:     store,
		authority: authorityClient,
		ttl:       DefaultTTL,
		logger:    slog.New(slog.DiscardHandler),
		tracer:    otel.Tracer("licensewatch/statuscache"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// TTL reports the freshness window in use.
func (r *Resolver) TTL() time.Duration {
	return r.ttl
}

// Resolve returns the status of licenseID. The only error is ErrEmptyKey.
func (r *Resolver) Resolve(ctx context.Context, licenseID string) (models.StatusResult, error) {
	licenseID = strings.TrimSpace(licenseID)
	if licenseID == "" {
		return models.StatusResult{}, ErrEmptyKey
	}

	ctx, span := r.tracer.Start(ctx, "statuscache.Resolve")
	defer span.End()

	now := requestcontext.Now(ctx)
	if cached, ok := r.lookupFresh(ctx, licenseID, now); ok {
		span.SetAttributes(attribute.String("license.source", string(models.SourceCache)))
		return cached, nil
	}

	start := time.Now()
	resp, err := r.authority.Lookup(ctx, licenseID)
	if err != nil {
		r.metrics.ObserveAuthority(models.StatusError, time.Since(start))
		r.logger.WarnContext(ctx, "authority lookup failed",
			"license_id", licenseID,
			"error", err,
		)
		span.RecordError(err)
		return models.StatusResult{
			LicenseID:  licenseID,
			Status:     models.StatusError,
			ObservedAt: now,
			Source:     models.SourceAuthority,
			Message:    err.Error(),
		}, nil
	}

	status := authority.Classify(resp)
	r.metrics.ObserveAuthority(status, time.Since(start))
	span.SetAttributes(
		attribute.String("license.source", string(models.SourceAuthority)),
		attribute.String("license.status", string(status)),
	)

	result := models.StatusResult{
		LicenseID:  licenseID,
		Status:     status,
		ObservedAt: now,
		Source:     models.SourceAuthority,
		Raw:        resp.Raw,
	}
	if status.Cacheable() {
		entry := models.CacheEntry{LicenseID: licenseID, Status: status, ObservedAt: now, Raw: resp.Raw}
		if err := r.store.Upsert(ctx, entry); err != nil {
			r.logger.ErrorContext(ctx, "failed to write status cache",
				"license_id", licenseID,
				"error", err,
			)
		}
	}
	return result, nil
}

func (r *Resolver) lookupFresh(ctx context.Context, licenseID string, now time.Time) (models.StatusResult, bool) {
	entry, err := r.store.Find(ctx, licenseID)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		r.metrics.ObserveCacheLookup(metrics.CacheMiss)
		return models.StatusResult{}, false
	case err != nil:
		r.metrics.ObserveCacheLookup(metrics.CacheMiss)
		r.logger.WarnContext(ctx, "status cache read failed; consulting authority",
			"license_id", licenseID,
			"error", err,
		)
		return models.StatusResult{}, false
	case !entry.IsFresh(now, r.ttl):
		r.metrics.ObserveCacheLookup(metrics.CacheStale)
		return models.StatusResult{}, false
	}
	r.metrics.ObserveCacheLookup(metrics.CacheHit)
	return models.StatusResult{
		LicenseID:  licenseID,
		Status:     entry.Status,
		ObservedAt: entry.ObservedAt,
		Source:     models.SourceCache,
		Raw:        entry.Raw,
	}, true
}
