package handler

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"loanmanager/internal/identity/models"
	"loanmanager/internal/identity/service"
	"loanmanager/pkg/domain"
	dErrors "loanmanager/pkg/domain-errors"
)

// RegisterRequest is the body of POST /auth/register and of the admin
// create-staff routes. The role always comes from the route.
type RegisterRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

func (r *RegisterRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	p := r.Profile()
	p.Normalize()
	return p.Validate()
}

func (r *RegisterRequest) Profile() models.Profile {
	return models.Profile{Email: r.Email, Password: r.Password, FirstName: r.FirstName, LastName: r.LastName}
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r *LoginRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Email = models.NormalizeEmail(r.Email)
	if err := models.ValidateEmail(r.Email); err != nil {
		return err
	}
	if r.Password == "" {
		return dErrors.New(dErrors.CodeValidation, "password is required")
	}
	return nil
}

// ProfileRequest is the body of PUT /auth/me.
type ProfileRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

func (r *ProfileRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.LastName = strings.TrimSpace(r.LastName)
	if err := models.ValidateName("first_name", r.FirstName); err != nil {
		return err
	}
	return models.ValidateName("last_name", r.LastName)
}

// UpdateUserRequest is the body of PUT /admin/users/{id}. Both fields are
// optional.
type UpdateUserRequest struct {
	Role     *string `json:"role"`
	IsActive *bool   `json:"is_active"`

	update service.UserUpdate
}

func (r *UpdateUserRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.update = service.UserUpdate{IsActive: r.IsActive}
	if r.Role != nil {
		role, err := domain.ParseRole(strings.TrimSpace(*r.Role))
		if err != nil {
			return dErrors.New(dErrors.CodeValidation, "role must be applicant, verifier or administrator")
		}
		r.update.Role = &role
	}
	return nil
}

func (r *UpdateUserRequest) Update() service.UserUpdate {
	return r.update
}

// AuthResponse is returned by register and login.
type AuthResponse struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	ExpiresAt   time.Time    `json:"expires_at"`
	User        *models.User `json:"user"`
}

func newAuthResponse(res *service.AuthResult) AuthResponse {
	return AuthResponse{
		AccessToken: res.AccessToken,
		TokenType:   "Bearer",
		ExpiresAt:   res.ExpiresAt,
		User:        res.User,
	}
}

// parseUserQuery reads page, limit, role and search. role "all" or empty
// lists every role.
func parseUserQuery(q url.Values) (models.ListCriteria, error) {
	var c models.ListCriteria
	if v := q.Get("page"); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil || page < 1 {
			return c, dErrors.New(dErrors.CodeValidation, "page must be a positive integer")
		}
		c.Page = page
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 || limit > 100 {
			return c, dErrors.New(dErrors.CodeValidation, "limit must be between 1 and 100")
		}
		c.Limit = limit
	}
	if v := strings.TrimSpace(q.Get("role")); v != "" && v != "all" {
		role, err := domain.ParseRole(v)
		if err != nil {
			return c, dErrors.New(dErrors.CodeValidation, "role must be applicant, verifier, administrator or all")
		}
		c.Role = &role
	}
	search := strings.TrimSpace(q.Get("search"))
	if len(search) > models.MaxSearchLength {
		return c, dErrors.New(dErrors.CodeValidation, "search must be at most 100 characters")
	}
	c.Search = search
	return c, nil
}
