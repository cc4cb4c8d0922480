package service

import (
	"context"
	"errors"
	"time"

	"loanmanager/internal/identity/models"
	"loanmanager/internal/identity/password"
	"loanmanager/pkg/domain"
	dErrors "loanmanager/pkg/domain-errors"
	"loanmanager/pkg/platform/audit"
	"loanmanager/pkg/platform/sentinel"
	"loanmanager/pkg/requestcontext"
)

// AuthResult is returned by Register and Login.
type AuthResult struct {
	User        *models.User
	AccessToken string
	ExpiresAt   time.Time
}

// Register creates an applicant account and signs it in. Self-registration
// never grants a staff role.
func (s *Service) Register(ctx context.Context, profile models.Profile) (*AuthResult, error) {
	u, err := s.createUser(ctx, profile, domain.RoleApplicant)
	if err != nil {
		return nil, err
	}
	s.emitAudit(ctx, audit.EventUserRegistered, u, domain.Identity{UserID: u.ID, Role: u.Role}, "")
	return s.issue(ctx, u)
}

// Login checks credentials. Unknown email and wrong password produce the
// same error; deactivated accounts are refused after the password check.
func (s *Service) Login(ctx context.Context, email, plain string) (*AuthResult, error) {
	email = models.NormalizeEmail(email)
	if email == "" || plain == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "email and password are required")
	}

	u, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			s.loginFailed(ctx, nil, "unknown_email")
			return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid credentials")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to lookup user")
	}

	if err := s.hasher.Verify(plain, u.PasswordHash); err != nil {
		if errors.Is(err, password.ErrMismatch) {
			s.loginFailed(ctx, u, "wrong_password")
			return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid credentials")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to verify password")
	}

	if !u.CanAuthenticate() {
		s.loginFailed(ctx, u, "account_deactivated")
		return nil, dErrors.New(dErrors.CodeUnauthorized, "account is deactivated")
	}

	s.emitAudit(ctx, audit.EventLoginSucceeded, u, u.Identity(), "")
	return s.issue(ctx, u)
}

// Me returns the caller's own account.
func (s *Service) Me(ctx context.Context, actor domain.Identity) (*models.User, error) {
	if actor.IsZero() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	return s.findUser(ctx, actor.UserID)
}

// UpdateProfile renames the caller's own account.
func (s *Service) UpdateProfile(ctx context.Context, actor domain.Identity, firstName, lastName string) (*models.User, error) {
	u, err := s.Me(ctx, actor)
	if err != nil {
		return nil, err
	}
	p := models.Profile{FirstName: firstName, LastName: lastName}
	p.Normalize()
	if err := models.ValidateName("first_name", p.FirstName); err != nil {
		return nil, err
	}
	if err := models.ValidateName("last_name", p.LastName); err != nil {
		return nil, err
	}

	u.Rename(p.FirstName, p.LastName, s.clock(ctx))
	if err := s.users.Update(ctx, u); err != nil {
		return nil, translateStoreError(err, "failed to update profile")
	}
	s.emitAudit(ctx, audit.EventUserUpdated, u, actor, "profile")
	return u, nil
}

// ResolveIdentity reports the current role of an active account. The auth
// middleware calls it on every request so role changes and deactivation take
// effect before the token expires.
func (s *Service) ResolveIdentity(ctx context.Context, userID domain.UserID) (domain.Identity, error) {
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return domain.Identity{}, dErrors.New(dErrors.CodeUnauthorized, "user not found")
		}
		return domain.Identity{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to lookup user")
	}
	if !u.CanAuthenticate() {
		s.emitAudit(ctx, audit.EventAuthFailed, u, u.Identity(), "account_deactivated")
		return domain.Identity{}, dErrors.New(dErrors.CodeUnauthorized, "account is deactivated")
	}
	return u.Identity(), nil
}

func (s *Service) createUser(ctx context.Context, profile models.Profile, role domain.Role) (*models.User, error) {
	profile.Normalize()
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	hash, err := s.hasher.Hash(profile.Password)
	if err != nil {
		var de *dErrors.Error
		if errors.As(err, &de) {
			return nil, err
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash password")
	}
	u, err := models.NewUser(domain.NewUserID(), profile, hash, role, s.clock(ctx))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to build user")
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, dErrors.New(dErrors.CodeConflict, "user already exists with this email")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create user")
	}
	s.metrics.IncrementUsersCreated(role.String())
	s.logger.InfoContext(ctx, "user created",
		"user_id", u.ID.String(),
		"role", role.String(),
		"request_id", requestcontext.RequestID(ctx),
	)
	return u, nil
}

func (s *Service) issue(ctx context.Context, u *models.User) (*AuthResult, error) {
	token, err := s.tokens.GenerateAccessToken(u.ID, u.Role, s.tokenTTL)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue access token")
	}
	return &AuthResult{User: u, AccessToken: token, ExpiresAt: s.clock(ctx).Add(s.tokenTTL)}, nil
}

func (s *Service) loginFailed(ctx context.Context, u *models.User, reason string) {
	s.metrics.IncrementLoginFailures()
	s.logger.WarnContext(ctx, "login failed",
		"reason", reason,
		"request_id", requestcontext.RequestID(ctx),
	)
	if u != nil {
		s.emitAudit(ctx, audit.EventAuthFailed, u, u.Identity(), reason)
	}
}

func (s *Service) findUser(ctx context.Context, id domain.UserID) (*models.User, error) {
	u, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, translateStoreError(err, "failed to lookup user")
	}
	return u, nil
}

// emitAudit records an account event. Account events are best effort: a
// failed write is logged and does not fail the operation.
func (s *Service) emitAudit(ctx context.Context, event audit.AuditEvent, subject *models.User, actor domain.Identity, reason string) {
	if s.auditPublisher == nil {
		return
	}
	err := s.auditPublisher.Emit(ctx, audit.Event{
		Category:      event.Category(),
		Timestamp:     s.clock(ctx),
		UserID:        subject.ID,
		AggregateType: "user",
		AggregateID:   subject.ID.String(),
		Action:        string(event),
		Decision:      string(subject.Role),
		Reason:        reason,
		RequestID:     requestcontext.RequestID(ctx),
		ActorID:       actor.UserID.String(),
		ActorRole:     actor.Role.String(),
		ClientIP:      requestcontext.ClientIP(ctx),
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to emit audit event",
			"action", string(event),
			"user_id", subject.ID.String(),
			"error", err,
		)
	}
}

func (s *Service) clock(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestcontext.ContextKeyRequestTime).(time.Time); ok {
		return t.UTC()
	}
	return s.now().UTC()
}

func translateStoreError(err error, internalMsg string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "user not found")
	case errors.Is(err, sentinel.ErrAlreadyUsed):
		return dErrors.New(dErrors.CodeConflict, "user already exists with this email")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, internalMsg)
}
