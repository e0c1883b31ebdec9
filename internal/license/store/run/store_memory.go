package run

import (
	"context"
	"slices"
	"sync"

	"licensewatch/internal/license/models"
	"licensewatch/pkg/platform/sentinel"
)

// InMemory is an append-only run log held in a slice.
type InMemory struct {
	mu   sync.RWMutex
	runs []models.RunRecord
}

func NewInMemory() *InMemory {
	return &InMemory{}
}

func (s *InMemory) Append(_ context.Context, run *models.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, cloneRun(*run))
	return nil
}

// Latest returns the run with the greatest RunAt; ties go to the later append.
func (s *InMemory) Latest(_ context.Context) (*models.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.runs) == 0 {
		return nil, sentinel.ErrNotFound
	}
	latest := 0
	for i := range s.runs {
		if !s.runs[i].RunAt.Before(s.runs[latest].RunAt) {
			latest = i
		}
	}
	out := cloneRun(s.runs[latest])
	return &out, nil
}

// List returns up to limit runs, newest first. A non-positive limit returns all.
func (s *InMemory) List(_ context.Context, limit int) ([]*models.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ordered := make([]*models.RunRecord, 0, len(s.runs))
	for i := len(s.runs) - 1; i >= 0; i-- {
		r := cloneRun(s.runs[i])
		ordered = append(ordered, &r)
	}
	slices.SortStableFunc(ordered, func(a, b *models.RunRecord) int {
		return b.RunAt.Compare(a.RunAt)
	})
	if limit > 0 && len(ordered) > limit {
		ordered = ordered[:limit]
	}
	return ordered, nil
}

func cloneRun(r models.RunRecord) models.RunRecord {
	r.ProcessedMembers = slices.Clone(r.ProcessedMembers)
	return r
}
