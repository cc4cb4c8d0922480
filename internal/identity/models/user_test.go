package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loanmanager/pkg/domain"
	dErrors "loanmanager/pkg/domain-errors"
)

func TestProfileValidate(t *testing.T) {
	valid := Profile{Email: " Jane.Doe@Example.com ", Password: "Secret1", FirstName: " Jane ", LastName: "Doe"}
	valid.Normalize()
	require.NoError(t, valid.Validate())
	assert.Equal(t, "jane.doe@example.com", valid.Email)
	assert.Equal(t, "Jane", valid.FirstName)

	cases := map[string]func(p *Profile){
		"bad email":         func(p *Profile) { p.Email = "not-an-email" },
		"email without tld": func(p *Profile) { p.Email = "jane@localhost" },
		"short password":    func(p *Profile) { p.Password = "Ab1" },
		"no upper case":     func(p *Profile) { p.Password = "secret1" },
		"no digit":          func(p *Profile) { p.Password = "Secrets" },
		"short name":        func(p *Profile) { p.FirstName = "J" },
		"digits in name":    func(p *Profile) { p.LastName = "D0e" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			p := valid
			mutate(&p)
			err := p.Validate()
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation), err)
		})
	}
}

func TestUserLifecycle(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	u, err := NewUser(domain.NewUserID(), Profile{Email: "A@B.io", FirstName: "Ann", LastName: "Lee"}, "hash", domain.RoleApplicant, now)
	require.NoError(t, err)
	assert.True(t, u.CanAuthenticate())
	assert.Equal(t, "a@b.io", u.Email)

	role := domain.RoleVerifier
	u.ApplyAdminUpdate(&role, nil, now.Add(time.Minute))
	assert.Equal(t, domain.RoleVerifier, u.Role)
	assert.True(t, u.IsActive)

	u.Deactivate(now.Add(2 * time.Minute))
	assert.False(t, u.CanAuthenticate())
	assert.Equal(t, now.Add(2*time.Minute), u.UpdatedAt)

	_, err = NewUser(domain.NewUserID(), Profile{}, "", domain.RoleApplicant, now)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
}

func TestNewUserPage(t *testing.T) {
	page := NewUserPage(nil, 2, 10, 25)
	assert.NotNil(t, page.Users)
	assert.Equal(t, 3, page.Pagination.TotalPages)
	assert.True(t, page.Pagination.HasNext)
	assert.True(t, page.Pagination.HasPrev)
}
