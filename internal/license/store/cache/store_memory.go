package cache

import (
	"context"
	"sync"

	"licensewatch/internal/license/models"
	"licensewatch/pkg/platform/sentinel"
)

// InMemory keeps cache entries in a map guarded by a RWMutex.
type InMemory struct {
	mu      sync.RWMutex
	entries map[string]models.CacheEntry
}

func NewInMemory() *InMemory {
	return &InMemory{entries: make(map[string]models.CacheEntry)}
}

// Find returns the stored entry regardless of age; freshness is decided by the resolver.
func (s *InMemory) Find(_ context.Context, licenseID string) (*models.CacheEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[licenseID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	entry.Raw = cloneRaw(entry.Raw)
	return &entry, nil
}

// Upsert overwrites any previous entry for the license id.
func (s *InMemory) Upsert(_ context.Context, entry models.CacheEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry.Raw = cloneRaw(entry.Raw)
	s.entries[entry.LicenseID] = entry
	return nil
}

func cloneRaw(raw map[string]any) map[string]any {
	if raw == nil {
		return nil
	}
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		out[k] = v
	}
	return out
}
