package sentinel

import "errors"

// Sentinel errors for storage facts. Stores return these (optionally wrapped)
// and services translate them into domain-errors codes:
//   - ErrNotFound: no record with the requested key
//   - ErrConflict: a conditional write lost to a concurrent writer
//   - ErrAlreadyUsed: a unique key (e.g. email) is taken
//   - ErrUnavailable: backing service unreachable
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrAlreadyUsed = errors.New("already used")
	ErrUnavailable = errors.New("unavailable")
)
