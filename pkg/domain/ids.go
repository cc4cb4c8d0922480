package domain

import (
	"database/sql/driver"

	"github.com/google/uuid"

	dErrors "loanmanager/pkg/domain-errors"
)

// Typed identifiers keep user and application IDs from being swapped at call
// sites. Construct them from external input via the Parse* functions, which
// reject empty, malformed, and nil UUIDs.
type (
	UserID        uuid.UUID
	ApplicationID uuid.UUID
	TransitionID  uuid.UUID
)

func NewUserID() UserID               { return UserID(uuid.New()) }
func NewApplicationID() ApplicationID { return ApplicationID(uuid.New()) }
func NewTransitionID() TransitionID   { return TransitionID(uuid.New()) }

func (id UserID) String() string        { return uuid.UUID(id).String() }
func (id ApplicationID) String() string { return uuid.UUID(id).String() }
func (id TransitionID) String() string  { return uuid.UUID(id).String() }

func (id UserID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }
func (id ApplicationID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id TransitionID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }

func (id UserID) MarshalText() ([]byte, error)        { return uuid.UUID(id).MarshalText() }
func (id ApplicationID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id TransitionID) MarshalText() ([]byte, error)  { return uuid.UUID(id).MarshalText() }

func (id *UserID) UnmarshalText(b []byte) error        { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *ApplicationID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *TransitionID) UnmarshalText(b []byte) error  { return (*uuid.UUID)(id).UnmarshalText(b) }

// Value and Scan let typed IDs travel through database/sql directly. A nil
// ID is stored as NULL.
func (id UserID) Value() (driver.Value, error)        { return nilOrString(uuid.UUID(id)), nil }
func (id ApplicationID) Value() (driver.Value, error) { return nilOrString(uuid.UUID(id)), nil }
func (id TransitionID) Value() (driver.Value, error)  { return nilOrString(uuid.UUID(id)), nil }

func (id *UserID) Scan(src any) error        { return (*uuid.UUID)(id).Scan(src) }
func (id *ApplicationID) Scan(src any) error { return (*uuid.UUID)(id).Scan(src) }
func (id *TransitionID) Scan(src any) error  { return (*uuid.UUID)(id).Scan(src) }

func nilOrString(u uuid.UUID) driver.Value {
	if u == uuid.Nil {
		return nil
	}
	return u.String()
}

// ParseUserID parses a user identifier at a trust boundary.
func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s, "user ID")
	return UserID(u), err
}

// ParseApplicationID parses a loan application identifier at a trust boundary.
func ParseApplicationID(s string) (ApplicationID, error) {
	u, err := parseUUID(s, "application ID")
	return ApplicationID(u), err
}

// ParseTransitionID parses a transition record identifier.
func ParseTransitionID(s string) (TransitionID, error) {
	u, err := parseUUID(s, "transition ID")
	return TransitionID(u), err
}

func parseUUID(s, kind string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" cannot be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" cannot be nil")
	}
	return u, nil
}
