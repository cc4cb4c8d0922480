package domain

import dErrors "loanmanager/pkg/domain-errors"

// Role is the access tier of an identity.
// Invariant: the value must be one of the supported roles.
//
// Construct via ParseRole at trust boundaries; direct casting bypasses
// validation and an unknown role is denied everything by the loan policy.
type Role string

const (
	RoleApplicant     Role = "applicant"
	RoleVerifier      Role = "verifier"
	RoleAdministrator Role = "administrator"
)

var validRoles = map[Role]bool{
	RoleApplicant:     true,
	RoleVerifier:      true,
	RoleAdministrator: true,
}

// ParseRole constructs a Role from external input.
//
// Errors: returns CodeInvalidInput when the value is empty or unsupported.
func ParseRole(s string) (Role, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "role cannot be empty")
	}
	r := Role(s)
	if !r.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid role: "+s)
	}
	return r, nil
}

func (r Role) IsValid() bool {
	return validRoles[r]
}

func (r Role) String() string {
	return string(r)
}

// IsReviewer reports whether the role may screen applications it does not own.
func (r Role) IsReviewer() bool {
	return r == RoleVerifier || r == RoleAdministrator
}

// Identity is the authenticated caller as seen by services: who they are and
// the role they act under for this request.
type Identity struct {
	UserID UserID
	Role   Role
}

// IsZero reports whether no identity was established.
func (i Identity) IsZero() bool {
	return i.UserID.IsNil()
}
