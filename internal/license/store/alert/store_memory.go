package alert

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"licensewatch/internal/license/models"
	"licensewatch/pkg/platform/sentinel"
)

// InMemory keeps open alerts keyed by license id. Rows are copied on the way
// in and out so callers never alias stored state.
type InMemory struct {
	mu     sync.RWMutex
	alerts map[string]models.Alert
}

func NewInMemory() *InMemory {
	return &InMemory{alerts: make(map[string]models.Alert)}
}

func (s *InMemory) Find(_ context.Context, licenseID string) (*models.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.alerts[licenseID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := a.Clone()
	return &out, nil
}

// Insert adds a new alert. A second alert for the same license id is a conflict.
func (s *InMemory) Insert(_ context.Context, a *models.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.alerts[a.LicenseID]; exists {
		return fmt.Errorf("alert %s: %w", a.LicenseID, sentinel.ErrConflict)
	}
	s.alerts[a.LicenseID] = a.Clone()
	return nil
}

func (s *InMemory) Reflag(_ context.Context, a *models.Alert, reopen bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.alerts[a.LicenseID]
	if !ok {
		return sentinel.ErrNotFound
	}
	stored.Name = a.Name
	stored.ReportedStatus = a.ReportedStatus
	stored.LastChecked = a.LastChecked
	stored.LastFlaggedAt = a.LastFlaggedAt
	if reopen {
		stored.ClearNotification()
	}
	s.alerts[a.LicenseID] = stored
	return nil
}

func (s *InMemory) Delete(_ context.Context, licenseID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.alerts[licenseID]; !ok {
		return false, nil
	}
	delete(s.alerts, licenseID)
	return true, nil
}

func (s *InMemory) List(_ context.Context) ([]*models.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Alert, 0, len(s.alerts))
	for _, a := range s.alerts {
		c := a.Clone()
		out = append(out, &c)
	}
	slices.SortFunc(out, func(a, b *models.Alert) int {
		if c := b.LastFlaggedAt.Compare(a.LastFlaggedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.LicenseID, b.LicenseID)
	})
	return out, nil
}

func (s *InMemory) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.alerts), nil
}

// MarkNotified stamps only the given ids. Ids cleared in the meantime are skipped.
func (s *InMemory) MarkNotified(_ context.Context, licenseIDs []string, at time.Time, meta models.NotificationMeta) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	updated := 0
	for _, id := range licenseIDs {
		stored, ok := s.alerts[id]
		if !ok {
			continue
		}
		stored.MarkNotified(at, meta)
		s.alerts[id] = stored
		updated++
	}
	return updated, nil
}
