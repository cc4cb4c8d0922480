package user

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"loanmanager/internal/identity/models"
	"loanmanager/pkg/domain"
	"loanmanager/pkg/platform/sentinel"
)

// InMemory stores users in a map with a secondary index on lower-cased email.
type InMemory struct {
	mu      sync.RWMutex
	users   map[domain.UserID]*models.User
	byEmail map[string]domain.UserID
}

func NewInMemory() *InMemory {
	return &InMemory{
		users:   make(map[domain.UserID]*models.User),
		byEmail: make(map[string]domain.UserID),
	}
}

func (s *InMemory) Create(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := models.NormalizeEmail(u.Email)
	if _, taken := s.byEmail[key]; taken {
		return fmt.Errorf("email %s: %w", key, sentinel.ErrAlreadyUsed)
	}
	if _, exists := s.users[u.ID]; exists {
		return fmt.Errorf("user %s: %w", u.ID, sentinel.ErrAlreadyUsed)
	}
	cp := *u
	s.users[u.ID] = &cp
	s.byEmail[key] = u.ID
	return nil
}

func (s *InMemory) FindByID(_ context.Context, id domain.UserID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *InMemory) FindByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[models.NormalizeEmail(email)]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *s.users[id]
	return &cp, nil
}

// Update replaces the mutable fields of an existing user. Email is immutable.
func (s *InMemory) Update(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.users[u.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	cp := *u
	cp.Email = existing.Email
	cp.CreatedAt = existing.CreatedAt
	s.users[u.ID] = &cp
	return nil
}

func (s *InMemory) List(_ context.Context, criteria models.ListCriteria) ([]*models.User, int, error) {
	criteria = criteria.Normalize()
	search := strings.ToLower(strings.TrimSpace(criteria.Search))

	s.mu.RLock()
	matched := make([]*models.User, 0, len(s.users))
	for _, u := range s.users {
		if criteria.Role != nil && u.Role != *criteria.Role {
			continue
		}
		if search != "" && !matchesSearch(u, search) {
			continue
		}
		cp := *u
		matched = append(matched, &cp)
	}
	s.mu.RUnlock()

	slices.SortFunc(matched, func(a, b *models.User) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID.String(), b.ID.String())
	})

	total := len(matched)
	start := min(criteria.Offset(), total)
	end := min(start+criteria.Limit, total)
	return matched[start:end], total, nil
}

func matchesSearch(u *models.User, search string) bool {
	return strings.Contains(strings.ToLower(u.FirstName), search) ||
		strings.Contains(strings.ToLower(u.LastName), search) ||
		strings.Contains(strings.ToLower(u.Email), search)
}

func (s *InMemory) Stats(_ context.Context) (models.UserStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var stats models.UserStats
	for _, u := range s.users {
		if !u.IsActive {
			stats.InactiveUsers++
			continue
		}
		stats.TotalUsers++
		switch u.Role {
		case domain.RoleAdministrator:
			stats.Administrators++
		case domain.RoleVerifier:
			stats.Verifiers++
		case domain.RoleApplicant:
			stats.Applicants++
		}
	}
	return stats, nil
}
