package audit

import (
	"context"
	"time"

	id "loanmanager/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies and routing downstream.
type EventCategory string

const (
	// CategoryCompliance covers events with legal/regulatory significance:
	// loan decisions and account administration.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers events relevant to security monitoring:
	// failed logins and access to deactivated accounts.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine activity with short retention.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category  EventCategory
	Timestamp time.Time
	// UserID is the account the event is about: the applicant for loan events,
	// the managed account for user-administration events.
	UserID id.UserID
	// AggregateType and AggregateID name the entity that changed; they become
	// the Kafka record key so per-entity ordering survives partitioning.
	AggregateType string
	AggregateID   string
	Action        string
	Decision      string
	Reason        string
	RequestID     string
	// ActorID tracks who performed the action when different from UserID.
	ActorID   string
	ActorRole string
	ClientIP  string
}

type AuditEvent string

const (
	// Loan workflow events
	EventLoanSubmitted AuditEvent = "loan_submitted"
	EventLoanVerified  AuditEvent = "loan_verified"
	EventLoanApproved  AuditEvent = "loan_approved"
	EventLoanRejected  AuditEvent = "loan_rejected"

	// Account events
	EventUserRegistered  AuditEvent = "user_registered"
	EventUserCreated     AuditEvent = "user_created"
	EventUserUpdated     AuditEvent = "user_updated"
	EventUserDeactivated AuditEvent = "user_deactivated"

	// Security events
	EventAuthFailed AuditEvent = "auth_failed"

	// Operations events
	EventLoginSucceeded AuditEvent = "login_succeeded"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventLoanSubmitted: CategoryCompliance,
	EventLoanVerified:  CategoryCompliance,
	EventLoanApproved:  CategoryCompliance,
	EventLoanRejected:  CategoryCompliance,

	EventUserRegistered:  CategoryCompliance,
	EventUserCreated:     CategoryCompliance,
	EventUserUpdated:     CategoryCompliance,
	EventUserDeactivated: CategoryCompliance,

	EventAuthFailed: CategorySecurity,

	EventLoginSucceeded: CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Known reports whether e is one of the events above.
func (e AuditEvent) Known() bool {
	_, ok := eventCategories[e]
	return ok
}

// Store persists audit events. The PostgreSQL implementation writes to the
// outbox and joins any transaction carried by ctx.
type Store interface {
	Append(ctx context.Context, event Event) error
}
