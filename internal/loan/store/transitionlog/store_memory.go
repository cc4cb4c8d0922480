package transitionlog

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"loanmanager/internal/loan/models"
	"loanmanager/pkg/domain"
	"loanmanager/pkg/platform/sentinel"
)

// InMemory is an append-only transition log keyed by application.
type InMemory struct {
	mu      sync.RWMutex
	records map[domain.ApplicationID][]models.TransitionRecord
	seen    map[domain.TransitionID]struct{}
}

func NewInMemory() *InMemory {
	return &InMemory{
		records: make(map[domain.ApplicationID][]models.TransitionRecord),
		seen:    make(map[domain.TransitionID]struct{}),
	}
}

func (s *InMemory) Append(_ context.Context, record models.TransitionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.seen[record.ID]; dup {
		return fmt.Errorf("transition %s: %w", record.ID, sentinel.ErrAlreadyUsed)
	}
	s.seen[record.ID] = struct{}{}
	s.records[record.ApplicationID] = append(s.records[record.ApplicationID], record)
	return nil
}

// ListByApplication returns the application's history oldest first.
func (s *InMemory) ListByApplication(_ context.Context, appID domain.ApplicationID) ([]models.TransitionRecord, error) {
	s.mu.RLock()
	out := slices.Clone(s.records[appID])
	s.mu.RUnlock()
	slices.SortStableFunc(out, func(a, b models.TransitionRecord) int {
		return a.OccurredAt.Compare(b.OccurredAt)
	})
	if out == nil {
		out = []models.TransitionRecord{}
	}
	return out, nil
}
