// Package policy is the authorization gate: a declarative action → role-set
// table plus an ownership rule for reads. It is pure; callers translate a
// false result into a Forbidden error.
package policy

import (
	"loanmanager/pkg/domain"
)

// Action is a capability checked by the gate.
type Action string

const (
	ActionSubmit      Action = "submit"
	ActionRead        Action = "read"
	ActionReadHistory Action = "read_history"
	ActionListAll     Action = "list_all"
	ActionVerify      Action = "verify"
	ActionReject      Action = "reject"
	ActionApprove     Action = "approve"
	ActionManageUsers Action = "manage_users"
)

type grant struct {
	roles []domain.Role
	// ownerOnly limits these roles to resources they own.
	ownerOnly []domain.Role
}

var (
	everyone       = []domain.Role{domain.RoleApplicant, domain.RoleVerifier, domain.RoleAdministrator}
	reviewers      = []domain.Role{domain.RoleVerifier, domain.RoleAdministrator}
	administrators = []domain.Role{domain.RoleAdministrator}
)

// capabilities is the single source of truth for who may do what. Routes and
// the workflow engine both consult it.
var capabilities = map[Action]grant{
	ActionSubmit:      {roles: everyone},
	ActionRead:        {roles: everyone, ownerOnly: []domain.Role{domain.RoleApplicant}},
	ActionReadHistory: {roles: everyone, ownerOnly: []domain.Role{domain.RoleApplicant}},
	ActionListAll:     {roles: reviewers},
	ActionVerify:      {roles: reviewers},
	ActionReject:      {roles: reviewers},
	ActionApprove:     {roles: administrators},
	ActionManageUsers: {roles: administrators},
}

// IsAllowed reports whether role may perform action. For owner-scoped grants
// resourceOwnerID must equal actorID; a nil owner or actor never satisfies
// an ownership check. Unknown roles and actions are denied.
func IsAllowed(role domain.Role, action Action, resourceOwnerID, actorID domain.UserID) bool {
	if !role.IsValid() {
		return false
	}
	g, ok := capabilities[action]
	if !ok {
		return false
	}
	if !contains(g.roles, role) {
		return false
	}
	if contains(g.ownerOnly, role) {
		return !resourceOwnerID.IsNil() && !actorID.IsNil() && resourceOwnerID == actorID
	}
	return true
}

// RolesFor lists the roles granted action, ignoring ownership.
func RolesFor(action Action) []domain.Role {
	g, ok := capabilities[action]
	if !ok {
		return nil
	}
	return append([]domain.Role(nil), g.roles...)
}

// Actions lists every action the gate knows.
func Actions() []Action {
	out := make([]Action, 0, len(capabilities))
	for a := range capabilities {
		out = append(out, a)
	}
	return out
}

func contains(roles []domain.Role, role domain.Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
