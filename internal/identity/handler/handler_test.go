package handler

import (
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"loanmanager/internal/identity/handler/mocks"
	"loanmanager/internal/identity/models"
	"loanmanager/internal/identity/service"
	"loanmanager/pkg/domain"
	dErrors "loanmanager/pkg/domain-errors"
	"loanmanager/pkg/testutil"
)

type HandlerSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	service *mocks.MockService
	router  chi.Router

	applicant domain.Identity
	admin     domain.Identity
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.service = mocks.NewMockService(s.ctrl)
	s.router = chi.NewRouter()
	h := New(s.service, slog.New(slog.DiscardHandler))
	h.RegisterPublic(s.router)
	h.Register(s.router)

	s.applicant = domain.Identity{UserID: domain.NewUserID(), Role: domain.RoleApplicant}
	s.admin = domain.Identity{UserID: domain.NewUserID(), Role: domain.RoleAdministrator}
}

func (s *HandlerSuite) do(req *http.Request, who domain.Identity) (int, string) {
	if !who.IsZero() {
		req = testutil.WithIdentity(req, who.UserID, who.Role)
	}
	rr := testutil.DoRequest(s.router, req)
	return rr.Code, rr.Body.String()
}

func registerBody() map[string]any {
	return map[string]any{
		"email":      "jane@example.com",
		"password":   "Secret1",
		"first_name": "Jane",
		"last_name":  "Doe",
	}
}

func (s *HandlerSuite) TestRegister() {
	s.Run("returns token and user", func() {
		user := &models.User{ID: domain.NewUserID(), Email: "jane@example.com", Role: domain.RoleApplicant, PasswordHash: "secret-hash"}
		s.service.EXPECT().Register(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ any, p models.Profile) (*service.AuthResult, error) {
				s.Equal("jane@example.com", p.Email)
				return &service.AuthResult{User: user, AccessToken: "tok", ExpiresAt: time.Now()}, nil
			})

		code, body := s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/register", registerBody()), domain.Identity{})
		s.Equal(http.StatusCreated, code)
		s.Contains(body, `"access_token":"tok"`)
		s.Contains(body, `"role":"applicant"`)
		s.NotContains(body, "secret-hash")
	})

	s.Run("weak password never reaches the service", func() {
		b := registerBody()
		b["password"] = "abc"
		code, body := s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/register", b), domain.Identity{})
		s.Equal(http.StatusBadRequest, code)
		s.Contains(body, "validation_error")
	})

	s.Run("duplicate email", func() {
		s.service.EXPECT().Register(gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeConflict, "user already exists with this email"))
		code, _ := s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/register", registerBody()), domain.Identity{})
		s.Equal(http.StatusConflict, code)
	})
}

func (s *HandlerSuite) TestLogin() {
	s.Run("bad credentials are 401", func() {
		s.service.EXPECT().Login(gomock.Any(), "jane@example.com", "Secret1").
			Return(nil, dErrors.New(dErrors.CodeUnauthorized, "invalid credentials"))

		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/login", map[string]string{"email": "Jane@Example.com", "password": "Secret1"})
		code, body := s.do(req, domain.Identity{})
		s.Equal(http.StatusUnauthorized, code)
		s.Contains(body, "invalid credentials")
	})

	s.Run("missing password", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/login", map[string]string{"email": "jane@example.com"})
		code, _ := s.do(req, domain.Identity{})
		s.Equal(http.StatusBadRequest, code)
	})
}

func (s *HandlerSuite) TestMe() {
	s.service.EXPECT().Me(gomock.Any(), s.applicant).
		Return(&models.User{ID: s.applicant.UserID, FirstName: "Jane"}, nil)

	code, body := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/auth/me"), s.applicant)
	s.Equal(http.StatusOK, code)
	s.Contains(body, `"first_name":"Jane"`)
}

func (s *HandlerSuite) TestAdminRoutesRequireAdministrator() {
	code, _ := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/admin/users"), s.applicant)
	s.Equal(http.StatusForbidden, code)

	code, _ = s.do(testutil.NewRequest(s.T(), http.MethodGet, "/admin/users"), domain.Identity{})
	s.Equal(http.StatusUnauthorized, code)
}

func (s *HandlerSuite) TestListUsers() {
	s.Run("parses filters", func() {
		s.service.EXPECT().ListUsers(gomock.Any(), s.admin, gomock.Any()).
			DoAndReturn(func(_ any, _ domain.Identity, c models.ListCriteria) (*models.UserPage, error) {
				s.Require().NotNil(c.Role)
				s.Equal(domain.RoleVerifier, *c.Role)
				s.Equal("ann", c.Search)
				s.Equal(2, c.Page)
				return models.NewUserPage(nil, 2, 10, 0), nil
			})

		code, body := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/admin/users?role=verifier&search=ann&page=2"), s.admin)
		s.Equal(http.StatusOK, code)
		s.Contains(body, `"users":[]`)
	})

	s.Run("role all means no filter", func() {
		s.service.EXPECT().ListUsers(gomock.Any(), s.admin, gomock.Any()).
			DoAndReturn(func(_ any, _ domain.Identity, c models.ListCriteria) (*models.UserPage, error) {
				s.Nil(c.Role)
				return models.NewUserPage(nil, 1, 10, 0), nil
			})
		code, _ := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/admin/users?role=all"), s.admin)
		s.Equal(http.StatusOK, code)
	})

	s.Run("invalid limit", func() {
		code, _ := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/admin/users?limit=500"), s.admin)
		s.Equal(http.StatusBadRequest, code)
	})
}

func (s *HandlerSuite) TestCreateStaff() {
	s.service.EXPECT().CreateVerifier(gomock.Any(), s.admin, gomock.Any()).
		Return(&models.User{ID: domain.NewUserID(), Role: domain.RoleVerifier}, nil)
	code, body := s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, "/admin/verifiers", registerBody()), s.admin)
	s.Equal(http.StatusCreated, code)
	s.Contains(body, `"role":"verifier"`)

	s.service.EXPECT().CreateAdministrator(gomock.Any(), s.admin, gomock.Any()).
		Return(&models.User{ID: domain.NewUserID(), Role: domain.RoleAdministrator}, nil)
	code, _ = s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, "/admin/administrators", registerBody()), s.admin)
	s.Equal(http.StatusCreated, code)
}

func (s *HandlerSuite) TestUpdateUser() {
	target := domain.NewUserID()

	s.Run("passes optional fields", func() {
		s.service.EXPECT().UpdateUser(gomock.Any(), s.admin, target, gomock.Any()).
			DoAndReturn(func(_ any, _ domain.Identity, _ domain.UserID, u service.UserUpdate) (*models.User, error) {
				s.Nil(u.Role)
				s.Require().NotNil(u.IsActive)
				s.False(*u.IsActive)
				return &models.User{ID: target}, nil
			})
		req := testutil.NewJSONRequest(s.T(), http.MethodPut, "/admin/users/"+target.String(), map[string]any{"is_active": false})
		code, _ := s.do(req, s.admin)
		s.Equal(http.StatusOK, code)
	})

	s.Run("unknown role", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPut, "/admin/users/"+target.String(), map[string]any{"role": "root"})
		code, _ := s.do(req, s.admin)
		s.Equal(http.StatusBadRequest, code)
	})

	s.Run("self update is a bad request", func() {
		s.service.EXPECT().UpdateUser(gomock.Any(), s.admin, s.admin.UserID, gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeBadRequest, "cannot update your own account"))
		req := testutil.NewJSONRequest(s.T(), http.MethodPut, "/admin/users/"+s.admin.UserID.String(), map[string]any{"role": "verifier"})
		code, body := s.do(req, s.admin)
		s.Equal(http.StatusBadRequest, code)
		s.Contains(body, "cannot update your own account")
	})
}

func (s *HandlerSuite) TestDeactivateUser() {
	target := domain.NewUserID()
	s.service.EXPECT().DeactivateUser(gomock.Any(), s.admin, target).
		Return(&models.User{ID: target, IsActive: false}, nil)

	code, body := s.do(testutil.NewRequest(s.T(), http.MethodDelete, "/admin/users/"+target.String()), s.admin)
	s.Equal(http.StatusOK, code)
	s.Contains(body, `"is_active":false`)

	code, _ = s.do(testutil.NewRequest(s.T(), http.MethodDelete, "/admin/users/not-a-uuid"), s.admin)
	s.Equal(http.StatusBadRequest, code)
}
