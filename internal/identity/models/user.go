package models

import (
	"net/mail"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"loanmanager/pkg/domain"
	dErrors "loanmanager/pkg/domain-errors"
)

const (
	MinPasswordLength = 6
	MaxPasswordLength = 72
	MaxSearchLength   = 100
)

var namePattern = regexp.MustCompile(`^[\p{L} ]+$`)

// User is an account that can sign in. Accounts are never deleted;
// deactivation clears IsActive and blocks authentication.
type User struct {
	ID           domain.UserID `json:"id"`
	Email        string        `json:"email"`
	PasswordHash string        `json:"-"`
	FirstName    string        `json:"first_name"`
	LastName     string        `json:"last_name"`
	Role         domain.Role   `json:"role"`
	IsActive     bool          `json:"is_active"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// Profile carries the fields a new account is created from.
type Profile struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// Normalize trims names and lower-cases the email.
func (p *Profile) Normalize() {
	p.Email = NormalizeEmail(p.Email)
	p.FirstName = strings.TrimSpace(p.FirstName)
	p.LastName = strings.TrimSpace(p.LastName)
}

// Validate checks email, password strength and names. Call Normalize first.
func (p Profile) Validate() error {
	if err := ValidateEmail(p.Email); err != nil {
		return err
	}
	if err := ValidatePassword(p.Password); err != nil {
		return err
	}
	if err := ValidateName("first_name", p.FirstName); err != nil {
		return err
	}
	return ValidateName("last_name", p.LastName)
}

// NewUser builds an active account. passwordHash must already be hashed.
func NewUser(userID domain.UserID, p Profile, passwordHash string, role domain.Role, now time.Time) (*User, error) {
	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "user ID required")
	}
	if passwordHash == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "password hash required")
	}
	if !role.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "invalid role")
	}
	return &User{
		ID:           userID,
		Email:        NormalizeEmail(p.Email),
		PasswordHash: passwordHash,
		FirstName:    strings.TrimSpace(p.FirstName),
		LastName:     strings.TrimSpace(p.LastName),
		Role:         role,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

func (u *User) Identity() domain.Identity {
	return domain.Identity{UserID: u.ID, Role: u.Role}
}

// CanAuthenticate reports whether the account may sign in or use a token.
func (u *User) CanAuthenticate() bool {
	return u.IsActive
}

func (u *User) Rename(first, last string, now time.Time) {
	u.FirstName = strings.TrimSpace(first)
	u.LastName = strings.TrimSpace(last)
	u.UpdatedAt = now
}

// ApplyAdminUpdate changes role and/or active flag; nil leaves a field as is.
func (u *User) ApplyAdminUpdate(role *domain.Role, active *bool, now time.Time) {
	if role != nil {
		u.Role = *role
	}
	if active != nil {
		u.IsActive = *active
	}
	u.UpdatedAt = now
}

func (u *User) Deactivate(now time.Time) {
	u.IsActive = false
	u.UpdatedAt = now
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func ValidateEmail(email string) error {
	if email == "" {
		return dErrors.New(dErrors.CodeValidation, "email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@")+1:], ".") {
		return dErrors.New(dErrors.CodeValidation, "please provide a valid email")
	}
	return nil
}

// ValidatePassword requires at least six characters including a lower-case
// letter, an upper-case letter and a digit.
func ValidatePassword(pw string) error {
	if utf8.RuneCountInString(pw) < MinPasswordLength {
		return dErrors.New(dErrors.CodeValidation, "password must be at least 6 characters long")
	}
	if len(pw) > MaxPasswordLength {
		return dErrors.New(dErrors.CodeValidation, "password must be at most 72 bytes")
	}
	var lower, upper, digit bool
	for _, r := range pw {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !lower || !upper || !digit {
		return dErrors.New(dErrors.CodeValidation, "password must contain at least one lowercase letter, one uppercase letter, and one number")
	}
	return nil
}

func ValidateName(field, v string) error {
	if n := utf8.RuneCountInString(v); n < 2 || n > 50 {
		return dErrors.New(dErrors.CodeValidation, field+" must be between 2 and 50 characters")
	}
	if !namePattern.MatchString(v) {
		return dErrors.New(dErrors.CodeValidation, field+" may contain only letters and spaces")
	}
	return nil
}

// ListCriteria filters the user directory. A nil Role lists every role.
type ListCriteria struct {
	Role   *domain.Role
	Search string
	Page   int
	Limit  int
}

func (c ListCriteria) Normalize() ListCriteria {
	if c.Page < 1 {
		c.Page = 1
	}
	if c.Limit < 1 {
		c.Limit = 10
	}
	if c.Limit > 100 {
		c.Limit = 100
	}
	return c
}

func (c ListCriteria) Offset() int {
	return (c.Page - 1) * c.Limit
}

type Pagination struct {
	CurrentPage int  `json:"current_page"`
	TotalPages  int  `json:"total_pages"`
	TotalUsers  int  `json:"total_users"`
	HasNext     bool `json:"has_next"`
	HasPrev     bool `json:"has_prev"`
}

// UserPage is one page of the user directory.
type UserPage struct {
	Users      []*User    `json:"users"`
	Pagination Pagination `json:"pagination"`
}

func NewUserPage(users []*User, page, limit, total int) *UserPage {
	totalPages := 0
	if limit > 0 {
		totalPages = (total + limit - 1) / limit
	}
	if users == nil {
		users = []*User{}
	}
	return &UserPage{
		Users: users,
		Pagination: Pagination{
			CurrentPage: page,
			TotalPages:  totalPages,
			TotalUsers:  total,
			HasNext:     page < totalPages,
			HasPrev:     page > 1,
		},
	}
}

// UserStats counts accounts for the admin overview. Role counts include
// active accounts only.
type UserStats struct {
	TotalUsers     int `json:"total_users"`
	Administrators int `json:"total_administrators"`
	Verifiers      int `json:"total_verifiers"`
	Applicants     int `json:"total_applicants"`
	InactiveUsers  int `json:"inactive_users"`
}
