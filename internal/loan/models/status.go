package models

import (
	dErrors "loanmanager/pkg/domain-errors"
)

// Status is the workflow state of an application.
type Status string

const (
	StatusPending  Status = "pending"
	StatusVerified Status = "verified"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// ParseStatus parses a status filter value.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.IsValid() {
		return "", dErrors.New(dErrors.CodeValidation, "status must be one of pending, verified, approved, rejected")
	}
	return st, nil
}

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusVerified, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition can leave s.
func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected
}

func (s Status) String() string {
	return string(s)
}

// rank orders statuses along the forward-only path. Approved and Rejected
// share the terminal rank.
func (s Status) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusVerified:
		return 1
	case StatusApproved, StatusRejected:
		return 2
	}
	return -1
}

// CanMoveTo reports whether next is a legal successor of s.
func (s Status) CanMoveTo(next Status) bool {
	if s.IsTerminal() || !next.IsValid() {
		return false
	}
	return next.rank() > s.rank()
}
