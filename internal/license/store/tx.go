// Package store provides the transactional scopes over the alert store and
// the run log.
package store

import (
	"context"
	"time"

	dErrors "licensewatch/pkg/domain-errors"
)

// defaultTxTimeout bounds a transaction whose context carries no deadline.
const defaultTxTimeout = 5 * time.Second

// Option configures MemoryTx and PostgresTx.
type Option func(*scope)

type scope struct {
	timeout time.Duration
}

// WithTimeout bounds scopes whose context carries no deadline.
func WithTimeout(d time.Duration) Option {
	return func(s *scope) {
		s.timeout = d
	}
}

func newScope(opts []Option) scope {
	var s scope
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

func withTxTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout == 0 {
		timeout = defaultTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

func cancelled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	return nil
}
