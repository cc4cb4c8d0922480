package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"loanmanager/pkg/domain"
)

var allRoles = []domain.Role{domain.RoleApplicant, domain.RoleVerifier, domain.RoleAdministrator}

// permitted is the expected capability matrix, ignoring ownership.
var permitted = map[Action][]domain.Role{
	ActionSubmit:      allRoles,
	ActionRead:        allRoles,
	ActionReadHistory: allRoles,
	ActionListAll:     {domain.RoleVerifier, domain.RoleAdministrator},
	ActionVerify:      {domain.RoleVerifier, domain.RoleAdministrator},
	ActionReject:      {domain.RoleVerifier, domain.RoleAdministrator},
	ActionApprove:     {domain.RoleAdministrator},
	ActionManageUsers: {domain.RoleAdministrator},
}

func TestIsAllowed_Completeness(t *testing.T) {
	assert.ElementsMatch(t, Actions(), keys(permitted), "every gate action has an expectation")

	for action, roles := range permitted {
		for _, role := range allRoles {
			owner := domain.NewUserID()
			want := contains(roles, role)
			got := IsAllowed(role, action, owner, owner)
			assert.Equal(t, want, got, "%s/%s", role, action)
		}
	}
}

func TestIsAllowed_Ownership(t *testing.T) {
	owner := domain.NewUserID()
	other := domain.NewUserID()

	assert.True(t, IsAllowed(domain.RoleApplicant, ActionRead, owner, owner))
	assert.False(t, IsAllowed(domain.RoleApplicant, ActionRead, owner, other))
	assert.False(t, IsAllowed(domain.RoleApplicant, ActionRead, domain.UserID{}, domain.UserID{}))
	assert.True(t, IsAllowed(domain.RoleVerifier, ActionRead, owner, other))
	assert.True(t, IsAllowed(domain.RoleAdministrator, ActionReadHistory, owner, other))
}

func TestIsAllowed_FailsClosed(t *testing.T) {
	id := domain.NewUserID()
	assert.False(t, IsAllowed(domain.Role("superuser"), ActionRead, id, id))
	assert.False(t, IsAllowed(domain.Role(""), ActionSubmit, id, id))
	assert.False(t, IsAllowed(domain.RoleAdministrator, Action("delete"), id, id))
	assert.Nil(t, RolesFor(Action("delete")))
}

func keys(m map[Action][]domain.Role) []Action {
	out := make([]Action, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
