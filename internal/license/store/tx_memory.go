package store

import (
	"context"
	"sync"

	"licensewatch/internal/license/ports"
)

// MemoryTx serializes scopes over in-memory stores with one coarse lock.
// The in-memory stores do not roll back; every scope the engine opens
// performs at most one mutation per store.
type MemoryTx struct {
	scope
	mu     sync.Mutex
	stores ports.Stores
}

func NewMemoryTx(alerts ports.AlertStore, runs ports.RunStore, opts ...Option) *MemoryTx {
	return &MemoryTx{scope: newScope(opts), stores: ports.Stores{Alerts: alerts, Runs: runs}}
}

func (t *MemoryTx) RunInTx(ctx context.Context, fn func(stores ports.Stores) error) error {
	if err := cancelled(ctx); err != nil {
		return err
	}
	ctx, cancel := withTxTimeout(ctx, t.timeout)
	defer cancel()

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := cancelled(ctx); err != nil {
		return err
	}
	return fn(t.stores)
}
