package service

import (
	"context"
	"errors"

	"loanmanager/internal/identity/models"
	"loanmanager/internal/policy"
	"loanmanager/pkg/domain"
	dErrors "loanmanager/pkg/domain-errors"
	"loanmanager/pkg/platform/audit"
	"loanmanager/pkg/platform/sentinel"
)

// UserUpdate carries the fields an administrator may change. Nil leaves the
// field untouched.
type UserUpdate struct {
	Role     *domain.Role
	IsActive *bool
}

func (s *Service) ListUsers(ctx context.Context, actor domain.Identity, criteria models.ListCriteria) (*models.UserPage, error) {
	if err := requireAdministrator(actor); err != nil {
		return nil, err
	}
	criteria = criteria.Normalize()
	users, total, err := s.users.List(ctx, criteria)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list users")
	}
	return models.NewUserPage(users, criteria.Page, criteria.Limit, total), nil
}

func (s *Service) Stats(ctx context.Context, actor domain.Identity) (models.UserStats, error) {
	if err := requireAdministrator(actor); err != nil {
		return models.UserStats{}, err
	}
	stats, err := s.users.Stats(ctx)
	if err != nil {
		return models.UserStats{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user statistics")
	}
	return stats, nil
}

func (s *Service) CreateVerifier(ctx context.Context, actor domain.Identity, profile models.Profile) (*models.User, error) {
	return s.createStaff(ctx, actor, profile, domain.RoleVerifier)
}

func (s *Service) CreateAdministrator(ctx context.Context, actor domain.Identity, profile models.Profile) (*models.User, error) {
	return s.createStaff(ctx, actor, profile, domain.RoleAdministrator)
}

func (s *Service) createStaff(ctx context.Context, actor domain.Identity, profile models.Profile, role domain.Role) (*models.User, error) {
	if err := requireAdministrator(actor); err != nil {
		return nil, err
	}
	u, err := s.createUser(ctx, profile, role)
	if err != nil {
		return nil, err
	}
	s.emitAudit(ctx, audit.EventUserCreated, u, actor, "")
	return u, nil
}

// UpdateUser changes another account's role or active flag. Administrators
// cannot modify their own account.
func (s *Service) UpdateUser(ctx context.Context, actor domain.Identity, target domain.UserID, update UserUpdate) (*models.User, error) {
	if err := requireAdministrator(actor); err != nil {
		return nil, err
	}
	if target == actor.UserID {
		return nil, dErrors.New(dErrors.CodeBadRequest, "cannot update your own account")
	}
	if update.Role != nil && !update.Role.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "invalid role")
	}

	u, err := s.findUser(ctx, target)
	if err != nil {
		return nil, err
	}
	u.ApplyAdminUpdate(update.Role, update.IsActive, s.clock(ctx))
	if err := s.users.Update(ctx, u); err != nil {
		return nil, translateStoreError(err, "failed to update user")
	}
	s.emitAudit(ctx, audit.EventUserUpdated, u, actor, "")
	return u, nil
}

// DeactivateUser soft-deletes an account. Its applications and audit history
// stay intact; the account can no longer authenticate.
func (s *Service) DeactivateUser(ctx context.Context, actor domain.Identity, target domain.UserID) (*models.User, error) {
	if err := requireAdministrator(actor); err != nil {
		return nil, err
	}
	if target == actor.UserID {
		return nil, dErrors.New(dErrors.CodeBadRequest, "cannot delete your own account")
	}

	u, err := s.findUser(ctx, target)
	if err != nil {
		return nil, err
	}
	u.Deactivate(s.clock(ctx))
	if err := s.users.Update(ctx, u); err != nil {
		return nil, translateStoreError(err, "failed to deactivate user")
	}
	s.emitAudit(ctx, audit.EventUserDeactivated, u, actor, "")
	return u, nil
}

// BootstrapAdmin creates the first administrator. It is a no-op when the
// email is already registered.
func (s *Service) BootstrapAdmin(ctx context.Context, profile models.Profile) (*models.User, bool, error) {
	existing, err := s.users.FindByEmail(ctx, profile.Email)
	switch {
	case err == nil:
		return existing, false, nil
	case !errors.Is(err, sentinel.ErrNotFound):
		return nil, false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to lookup bootstrap administrator")
	}

	u, err := s.createUser(ctx, profile, domain.RoleAdministrator)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeConflict) {
			existing, findErr := s.users.FindByEmail(ctx, profile.Email)
			if findErr == nil {
				return existing, false, nil
			}
		}
		return nil, false, err
	}
	s.emitAudit(ctx, audit.EventUserCreated, u, u.Identity(), "bootstrap")
	return u, true, nil
}

func requireAdministrator(actor domain.Identity) error {
	if actor.IsZero() {
		return dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	if !policy.IsAllowed(actor.Role, policy.ActionManageUsers, domain.UserID{}, actor.UserID) {
		return dErrors.New(dErrors.CodeForbidden, "administrator access required")
	}
	return nil
}
