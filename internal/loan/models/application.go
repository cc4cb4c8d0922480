package models

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"loanmanager/pkg/domain"
	dErrors "loanmanager/pkg/domain-errors"
)

// EmploymentStatus is the applicant's self-reported employment.
type EmploymentStatus string

const (
	EmploymentEmployed     EmploymentStatus = "employed"
	EmploymentSelfEmployed EmploymentStatus = "self-employed"
	EmploymentUnemployed   EmploymentStatus = "unemployed"
	EmploymentStudent      EmploymentStatus = "student"
	EmploymentRetired      EmploymentStatus = "retired"
)

func (e EmploymentStatus) IsValid() bool {
	switch e {
	case EmploymentEmployed, EmploymentSelfEmployed, EmploymentUnemployed, EmploymentStudent, EmploymentRetired:
		return true
	}
	return false
}

const (
	MaxCommentsLength = 1000
)

var (
	MinAmount = decimal.NewFromInt(1_000)
	MaxAmount = decimal.NewFromInt(10_000_000)

	namePattern = regexp.MustCompile(`^[\p{L} ]+$`)
)

// Application is a loan application.
//
// Invariants:
//   - Status moves forward only: pending → verified|rejected → approved|rejected
//   - Each *By field is set at most once, together with its *Date field,
//     by the transition that produces the matching status
//   - ApplicantID, RequestedAmount, applicant details and CreatedAt are
//     immutable after construction
//   - Version increases by one on every persisted mutation
type Application struct {
	ID          domain.ApplicationID `json:"id"`
	ApplicantID domain.UserID        `json:"applicant_id"`

	FirstName         string           `json:"applicant_first_name"`
	LastName          string           `json:"applicant_last_name"`
	EmploymentStatus  EmploymentStatus `json:"employment_status"`
	EmploymentAddress string           `json:"employment_address"`
	ReasonForLoan     string           `json:"reason_for_loan"`
	RequestedAmount   decimal.Decimal  `json:"requested_amount"`

	Status Status `json:"status"`

	VerifiedBy       *domain.UserID `json:"verified_by,omitempty"`
	VerificationDate *time.Time     `json:"verification_date,omitempty"`
	ApprovedBy       *domain.UserID `json:"approved_by,omitempty"`
	ApprovalDate     *time.Time     `json:"approval_date,omitempty"`
	RejectedBy       *domain.UserID `json:"rejected_by,omitempty"`
	RejectionDate    *time.Time     `json:"rejection_date,omitempty"`

	Comments string `json:"comments,omitempty"`
	Version  int64  `json:"version"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Submission carries the applicant-provided fields of a new application.
type Submission struct {
	FirstName         string
	LastName          string
	EmploymentStatus  EmploymentStatus
	EmploymentAddress string
	ReasonForLoan     string
	RequestedAmount   decimal.Decimal
}

// Validate checks the submission field rules.
func (s Submission) Validate() error {
	if err := validateName("applicant_first_name", s.FirstName); err != nil {
		return err
	}
	if err := validateName("applicant_last_name", s.LastName); err != nil {
		return err
	}
	if !s.EmploymentStatus.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "employment_status must be one of employed, self-employed, unemployed, student, retired")
	}
	if n := utf8.RuneCountInString(strings.TrimSpace(s.EmploymentAddress)); n < 10 || n > 200 {
		return dErrors.New(dErrors.CodeValidation, "employment_address must be between 10 and 200 characters")
	}
	if n := utf8.RuneCountInString(strings.TrimSpace(s.ReasonForLoan)); n < 10 || n > 500 {
		return dErrors.New(dErrors.CodeValidation, "reason_for_loan must be between 10 and 500 characters")
	}
	if s.RequestedAmount.LessThan(MinAmount) || s.RequestedAmount.GreaterThan(MaxAmount) {
		return dErrors.New(dErrors.CodeValidation, "requested_amount must be between 1000 and 10000000")
	}
	if !s.RequestedAmount.Equal(s.RequestedAmount.Round(2)) {
		return dErrors.New(dErrors.CodeValidation, "requested_amount must have at most two decimal places")
	}
	return nil
}

func validateName(field, v string) error {
	v = strings.TrimSpace(v)
	if n := utf8.RuneCountInString(v); n < 2 || n > 50 {
		return dErrors.New(dErrors.CodeValidation, field+" must be between 2 and 50 characters")
	}
	if !namePattern.MatchString(v) {
		return dErrors.New(dErrors.CodeValidation, field+" may contain only letters and spaces")
	}
	return nil
}

// NewApplication creates a pending application owned by applicantID.
func NewApplication(appID domain.ApplicationID, applicantID domain.UserID, sub Submission, now time.Time) (*Application, error) {
	if appID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "application ID required")
	}
	if applicantID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "applicant ID required")
	}
	if err := sub.Validate(); err != nil {
		return nil, err
	}
	return &Application{
		ID:                appID,
		ApplicantID:       applicantID,
		FirstName:         strings.TrimSpace(sub.FirstName),
		LastName:          strings.TrimSpace(sub.LastName),
		EmploymentStatus:  sub.EmploymentStatus,
		EmploymentAddress: strings.TrimSpace(sub.EmploymentAddress),
		ReasonForLoan:     strings.TrimSpace(sub.ReasonForLoan),
		RequestedAmount:   sub.RequestedAmount,
		Status:            StatusPending,
		Version:           1,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// FullName joins the applicant's first and last name.
func (a *Application) FullName() string {
	return a.FirstName + " " + a.LastName
}

// IsOwnedBy reports whether userID submitted the application.
func (a *Application) IsOwnedBy(userID domain.UserID) bool {
	return a.ApplicantID == userID
}

// CanApply checks that rule may fire on the application's current status.
func (a *Application) CanApply(rule Rule) error {
	if !rule.Accepts(a.Status) || !a.Status.CanMoveTo(rule.To) {
		return dErrors.New(dErrors.CodeInvalidTransition, "cannot "+rule.Action.String()+" an application that is "+a.Status.String())
	}
	return nil
}

// ApplyTransition moves the application to rule.To and records the actor in
// the matching audit pair. A non-empty comment replaces the stored one.
// Call CanApply first; Version is bumped by the store, not here.
func (a *Application) ApplyTransition(rule Rule, actor domain.UserID, comment string, now time.Time) {
	by := actor
	at := now
	switch rule.To {
	case StatusVerified:
		a.VerifiedBy, a.VerificationDate = &by, &at
	case StatusApproved:
		a.ApprovedBy, a.ApprovalDate = &by, &at
	case StatusRejected:
		a.RejectedBy, a.RejectionDate = &by, &at
	}
	a.Status = rule.To
	if comment != "" {
		a.Comments = comment
	}
	a.UpdatedAt = now
}

// Clone returns a deep copy so stores never share pointers with callers.
func (a *Application) Clone() *Application {
	if a == nil {
		return nil
	}
	c := *a
	c.VerifiedBy = cloneID(a.VerifiedBy)
	c.ApprovedBy = cloneID(a.ApprovedBy)
	c.RejectedBy = cloneID(a.RejectedBy)
	c.VerificationDate = cloneTime(a.VerificationDate)
	c.ApprovalDate = cloneTime(a.ApprovalDate)
	c.RejectionDate = cloneTime(a.RejectionDate)
	return &c
}

func cloneID(id *domain.UserID) *domain.UserID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// ValidateComment enforces the comment length limit.
func ValidateComment(comment string) error {
	if utf8.RuneCountInString(comment) > MaxCommentsLength {
		return dErrors.New(dErrors.CodeValidation, "comments must be at most 1000 characters")
	}
	return nil
}
