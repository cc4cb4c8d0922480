package application

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"loanmanager/internal/loan/models"
	"loanmanager/pkg/domain"
	"loanmanager/pkg/platform/sentinel"
)

// InMemory keeps applications in a map guarded by one RWMutex. UpdateIf
// holds the write lock across compare, mutate and store, so concurrent
// conditional updates on the same record serialize and at most one wins.
type InMemory struct {
	mu           sync.RWMutex
	applications map[domain.ApplicationID]*models.Application
}

func NewInMemory() *InMemory {
	return &InMemory{applications: make(map[domain.ApplicationID]*models.Application)}
}

func (s *InMemory) Create(_ context.Context, app *models.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.applications[app.ID]; exists {
		return fmt.Errorf("application %s: %w", app.ID, sentinel.ErrAlreadyUsed)
	}
	s.applications[app.ID] = app.Clone()
	return nil
}

func (s *InMemory) FindByID(_ context.Context, id domain.ApplicationID) (*models.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	app, ok := s.applications[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return app.Clone(), nil
}

// UpdateIf applies mutate to a copy of the stored application when its status
// and version still match, then stores the copy with Version bumped.
func (s *InMemory) UpdateIf(
	ctx context.Context,
	id domain.ApplicationID,
	expectedStatus models.Status,
	expectedVersion int64,
	mutate func(*models.Application) error,
) (*models.Application, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.applications[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if current.Status != expectedStatus || current.Version != expectedVersion {
		return nil, sentinel.ErrConflict
	}

	next := current.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	next.Version = current.Version + 1
	s.applications[id] = next
	return next.Clone(), nil
}

func (s *InMemory) List(_ context.Context, criteria models.ListCriteria) ([]*models.Application, int, error) {
	criteria = criteria.Normalize()
	search := strings.ToLower(strings.TrimSpace(criteria.Search))

	s.mu.RLock()
	matched := make([]*models.Application, 0, len(s.applications))
	for _, app := range s.applications {
		if criteria.OwnerID != nil && app.ApplicantID != *criteria.OwnerID {
			continue
		}
		if len(criteria.Statuses) > 0 && !slices.Contains(criteria.Statuses, app.Status) {
			continue
		}
		if search != "" && !matchesSearch(app, search) {
			continue
		}
		matched = append(matched, app)
	}
	s.mu.RUnlock()

	// Newest first; ID breaks ties so paging is stable.
	slices.SortFunc(matched, func(a, b *models.Application) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID.String(), b.ID.String())
	})

	total := len(matched)
	start := min(criteria.Offset(), total)
	end := min(start+criteria.Limit, total)

	page := make([]*models.Application, 0, end-start)
	for _, app := range matched[start:end] {
		page = append(page, app.Clone())
	}
	return page, total, nil
}

func matchesSearch(app *models.Application, needle string) bool {
	return strings.Contains(strings.ToLower(app.FirstName), needle) ||
		strings.Contains(strings.ToLower(app.LastName), needle) ||
		strings.Contains(strings.ToLower(app.ReasonForLoan), needle)
}
