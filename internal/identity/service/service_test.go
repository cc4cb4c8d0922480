package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"loanmanager/internal/identity/models"
	"loanmanager/internal/identity/password"
	"loanmanager/internal/identity/service/mocks"
	"loanmanager/pkg/domain"
	dErrors "loanmanager/pkg/domain-errors"
	"loanmanager/pkg/platform/audit"
	"loanmanager/pkg/platform/sentinel"
	"loanmanager/pkg/requestcontext"
)

type ServiceSuite struct {
	suite.Suite
	ctrl      *gomock.Controller
	users     *mocks.MockUserStore
	hasher    *mocks.MockPasswordHasher
	tokens    *mocks.MockTokenIssuer
	publisher *mocks.MockAuditPublisher
	service   *Service
	ctx       context.Context
	now       time.Time
	admin     domain.Identity
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.users = mocks.NewMockUserStore(s.ctrl)
	s.hasher = mocks.NewMockPasswordHasher(s.ctrl)
	s.tokens = mocks.NewMockTokenIssuer(s.ctrl)
	s.publisher = mocks.NewMockAuditPublisher(s.ctrl)
	s.now = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithRequestID(context.Background(), "req-1")
	s.service = New(s.users, s.hasher, s.tokens,
		WithAuditPublisher(s.publisher),
		WithTokenTTL(time.Hour),
		WithClock(func() time.Time { return s.now }),
	)
	s.admin = domain.Identity{UserID: domain.NewUserID(), Role: domain.RoleAdministrator}
}

func (s *ServiceSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *ServiceSuite) profile() models.Profile {
	return models.Profile{Email: "Jane@Example.com", Password: "Secret1", FirstName: "Jane", LastName: "Doe"}
}

func (s *ServiceSuite) storedUser(role domain.Role, active bool) *models.User {
	return &models.User{
		ID:           domain.NewUserID(),
		Email:        "jane@example.com",
		PasswordHash: "hashed",
		FirstName:    "Jane",
		LastName:     "Doe",
		Role:         role,
		IsActive:     active,
		CreatedAt:    s.now.Add(-time.Hour),
		UpdatedAt:    s.now.Add(-time.Hour),
	}
}

func (s *ServiceSuite) expectAudit(action audit.AuditEvent) {
	s.publisher.EXPECT().Emit(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, e audit.Event) error {
		s.Equal(string(action), e.Action)
		s.Equal("user", e.AggregateType)
		s.Equal("req-1", e.RequestID)
		return nil
	})
}

func (s *ServiceSuite) TestRegister() {
	s.Run("creates an applicant and issues a token", func() {
		s.hasher.EXPECT().Hash("Secret1").Return("hashed", nil)
		s.users.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, u *models.User) error {
			s.Equal("jane@example.com", u.Email)
			s.Equal(domain.RoleApplicant, u.Role)
			s.Equal("hashed", u.PasswordHash)
			s.True(u.IsActive)
			return nil
		})
		s.expectAudit(audit.EventUserRegistered)
		s.tokens.EXPECT().GenerateAccessToken(gomock.Any(), domain.RoleApplicant, time.Hour).Return("tok", nil)

		res, err := s.service.Register(s.ctx, s.profile())
		s.Require().NoError(err)
		s.Equal("tok", res.AccessToken)
		s.Equal(s.now.Add(time.Hour), res.ExpiresAt)
	})

	s.Run("duplicate email is a conflict", func() {
		s.hasher.EXPECT().Hash(gomock.Any()).Return("hashed", nil)
		s.users.EXPECT().Create(gomock.Any(), gomock.Any()).Return(sentinel.ErrAlreadyUsed)

		_, err := s.service.Register(s.ctx, s.profile())
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("weak password is rejected before hashing", func() {
		p := s.profile()
		p.Password = "password"
		_, err := s.service.Register(s.ctx, p)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *ServiceSuite) TestLogin() {
	s.Run("valid credentials", func() {
		u := s.storedUser(domain.RoleVerifier, true)
		s.users.EXPECT().FindByEmail(gomock.Any(), "jane@example.com").Return(u, nil)
		s.hasher.EXPECT().Verify("Secret1", "hashed").Return(nil)
		s.expectAudit(audit.EventLoginSucceeded)
		s.tokens.EXPECT().GenerateAccessToken(u.ID, domain.RoleVerifier, time.Hour).Return("tok", nil)

		res, err := s.service.Login(s.ctx, " JANE@example.com", "Secret1")
		s.Require().NoError(err)
		s.Equal(u.ID, res.User.ID)
	})

	s.Run("unknown email", func() {
		s.users.EXPECT().FindByEmail(gomock.Any(), gomock.Any()).Return(nil, sentinel.ErrNotFound)

		_, err := s.service.Login(s.ctx, "nobody@example.com", "Secret1")
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
		s.Equal("invalid credentials", dErrors.MessageOf(err))
	})

	s.Run("wrong password", func() {
		u := s.storedUser(domain.RoleApplicant, true)
		s.users.EXPECT().FindByEmail(gomock.Any(), gomock.Any()).Return(u, nil)
		s.hasher.EXPECT().Verify(gomock.Any(), gomock.Any()).Return(password.ErrMismatch)
		s.expectAudit(audit.EventAuthFailed)

		_, err := s.service.Login(s.ctx, u.Email, "Wrong1")
		s.Equal("invalid credentials", dErrors.MessageOf(err))
	})

	s.Run("deactivated account", func() {
		u := s.storedUser(domain.RoleApplicant, false)
		s.users.EXPECT().FindByEmail(gomock.Any(), gomock.Any()).Return(u, nil)
		s.hasher.EXPECT().Verify(gomock.Any(), gomock.Any()).Return(nil)
		s.expectAudit(audit.EventAuthFailed)

		_, err := s.service.Login(s.ctx, u.Email, "Secret1")
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
		s.Equal("account is deactivated", dErrors.MessageOf(err))
	})

	s.Run("store failure is internal", func() {
		s.users.EXPECT().FindByEmail(gomock.Any(), gomock.Any()).Return(nil, errors.New("db down"))
		_, err := s.service.Login(s.ctx, "jane@example.com", "Secret1")
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})
}

func (s *ServiceSuite) TestResolveIdentity() {
	s.Run("returns stored role", func() {
		u := s.storedUser(domain.RoleVerifier, true)
		s.users.EXPECT().FindByID(gomock.Any(), u.ID).Return(u, nil)

		identity, err := s.service.ResolveIdentity(s.ctx, u.ID)
		s.Require().NoError(err)
		s.Equal(domain.Identity{UserID: u.ID, Role: domain.RoleVerifier}, identity)
	})

	s.Run("deactivated account is unauthorized", func() {
		u := s.storedUser(domain.RoleVerifier, false)
		s.users.EXPECT().FindByID(gomock.Any(), u.ID).Return(u, nil)
		s.expectAudit(audit.EventAuthFailed)

		_, err := s.service.ResolveIdentity(s.ctx, u.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("missing account is unauthorized", func() {
		s.users.EXPECT().FindByID(gomock.Any(), gomock.Any()).Return(nil, sentinel.ErrNotFound)
		_, err := s.service.ResolveIdentity(s.ctx, domain.NewUserID())
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
}

func (s *ServiceSuite) TestUpdateProfile() {
	u := s.storedUser(domain.RoleApplicant, true)
	actor := u.Identity()
	s.users.EXPECT().FindByID(gomock.Any(), u.ID).Return(u, nil)
	s.users.EXPECT().Update(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, got *models.User) error {
		s.Equal("Janet", got.FirstName)
		s.Equal(s.now, got.UpdatedAt)
		return nil
	})
	s.expectAudit(audit.EventUserUpdated)

	updated, err := s.service.UpdateProfile(s.ctx, actor, " Janet ", "Doe")
	s.Require().NoError(err)
	s.Equal("Janet", updated.FirstName)
}

func (s *ServiceSuite) TestAdminOperationsRequireAdministrator() {
	verifier := domain.Identity{UserID: domain.NewUserID(), Role: domain.RoleVerifier}

	_, err := s.service.ListUsers(s.ctx, verifier, models.ListCriteria{})
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	_, err = s.service.CreateVerifier(s.ctx, verifier, s.profile())
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	_, err = s.service.DeactivateUser(s.ctx, verifier, domain.NewUserID())
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	_, err = s.service.Stats(s.ctx, domain.Identity{})
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func (s *ServiceSuite) TestListUsers() {
	users := []*models.User{s.storedUser(domain.RoleApplicant, true)}
	s.users.EXPECT().List(gomock.Any(), models.ListCriteria{Page: 2, Limit: 1}).Return(users, 3, nil)

	page, err := s.service.ListUsers(s.ctx, s.admin, models.ListCriteria{Page: 2, Limit: 1})
	s.Require().NoError(err)
	s.Equal(3, page.Pagination.TotalPages)
	s.True(page.Pagination.HasNext)
}

func (s *ServiceSuite) TestCreateStaff() {
	s.hasher.EXPECT().Hash(gomock.Any()).Return("hashed", nil)
	s.users.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)
	s.publisher.EXPECT().Emit(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, e audit.Event) error {
		s.Equal(string(audit.EventUserCreated), e.Action)
		s.Equal(s.admin.UserID.String(), e.ActorID)
		s.Equal(string(domain.RoleVerifier), e.Decision)
		return nil
	})

	u, err := s.service.CreateVerifier(s.ctx, s.admin, s.profile())
	s.Require().NoError(err)
	s.Equal(domain.RoleVerifier, u.Role)
}

func (s *ServiceSuite) TestUpdateUser() {
	s.Run("self update is refused", func() {
		_, err := s.service.UpdateUser(s.ctx, s.admin, s.admin.UserID, UserUpdate{})
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
		s.Equal("cannot update your own account", dErrors.MessageOf(err))
	})

	s.Run("changes role and active flag", func() {
		target := s.storedUser(domain.RoleApplicant, true)
		role := domain.RoleVerifier
		active := false
		s.users.EXPECT().FindByID(gomock.Any(), target.ID).Return(target, nil)
		s.users.EXPECT().Update(gomock.Any(), gomock.Any()).Return(nil)
		s.expectAudit(audit.EventUserUpdated)

		u, err := s.service.UpdateUser(s.ctx, s.admin, target.ID, UserUpdate{Role: &role, IsActive: &active})
		s.Require().NoError(err)
		s.Equal(domain.RoleVerifier, u.Role)
		s.False(u.IsActive)
	})

	s.Run("unknown user", func() {
		s.users.EXPECT().FindByID(gomock.Any(), gomock.Any()).Return(nil, sentinel.ErrNotFound)
		_, err := s.service.UpdateUser(s.ctx, s.admin, domain.NewUserID(), UserUpdate{})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ServiceSuite) TestDeactivateUser() {
	s.Run("self delete is refused", func() {
		_, err := s.service.DeactivateUser(s.ctx, s.admin, s.admin.UserID)
		s.Equal("cannot delete your own account", dErrors.MessageOf(err))
	})

	s.Run("deactivates", func() {
		target := s.storedUser(domain.RoleApplicant, true)
		s.users.EXPECT().FindByID(gomock.Any(), target.ID).Return(target, nil)
		s.users.EXPECT().Update(gomock.Any(), gomock.Any()).Return(nil)
		s.expectAudit(audit.EventUserDeactivated)

		u, err := s.service.DeactivateUser(s.ctx, s.admin, target.ID)
		s.Require().NoError(err)
		s.False(u.IsActive)
	})
}

func (s *ServiceSuite) TestBootstrapAdmin() {
	s.Run("existing email is left alone", func() {
		existing := s.storedUser(domain.RoleAdministrator, true)
		s.users.EXPECT().FindByEmail(gomock.Any(), gomock.Any()).Return(existing, nil)

		u, created, err := s.service.BootstrapAdmin(s.ctx, s.profile())
		s.Require().NoError(err)
		s.False(created)
		s.Equal(existing.ID, u.ID)
	})

	s.Run("creates administrator", func() {
		s.users.EXPECT().FindByEmail(gomock.Any(), gomock.Any()).Return(nil, sentinel.ErrNotFound)
		s.hasher.EXPECT().Hash(gomock.Any()).Return("hashed", nil)
		s.users.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)
		s.expectAudit(audit.EventUserCreated)

		u, created, err := s.service.BootstrapAdmin(s.ctx, s.profile())
		s.Require().NoError(err)
		s.True(created)
		s.Equal(domain.RoleAdministrator, u.Role)
	})
}

func (s *ServiceSuite) TestAuditFailureDoesNotFailOperation() {
	target := s.storedUser(domain.RoleApplicant, true)
	s.users.EXPECT().FindByID(gomock.Any(), target.ID).Return(target, nil)
	s.users.EXPECT().Update(gomock.Any(), gomock.Any()).Return(nil)
	s.publisher.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(errors.New("outbox down"))

	_, err := s.service.DeactivateUser(s.ctx, s.admin, target.ID)
	s.NoError(err)
}
