package service

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"loanmanager/internal/loan/models"
	"loanmanager/internal/policy"
	"loanmanager/pkg/domain"
	dErrors "loanmanager/pkg/domain-errors"
	"loanmanager/pkg/platform/audit"
	"loanmanager/pkg/platform/sentinel"
	"loanmanager/pkg/requestcontext"
)

// Submit creates a pending application owned by actor.
func (s *Service) Submit(ctx context.Context, actor domain.Identity, sub models.Submission) (*models.Application, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "loan.Submit")
	defer span.End()
	defer s.metrics.ObserveOperation("submit", start)

	if err := requireIdentity(actor); err != nil {
		return nil, s.fail(span, err)
	}
	if !policy.IsAllowed(actor.Role, policy.ActionSubmit, actor.UserID, actor.UserID) {
		return nil, s.fail(span, dErrors.New(dErrors.CodeForbidden, "not permitted to submit applications"))
	}

	app, err := models.NewApplication(domain.NewApplicationID(), actor.UserID, sub, s.clock(ctx))
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, s.fail(span, dErrors.New(dErrors.CodeValidation, err.Error()))
		}
		return nil, s.fail(span, err)
	}
	span.SetAttributes(attribute.String("application.id", app.ID.String()))

	err = s.tx.RunInTx(ctx, app.ID.String(), func(ctx context.Context) error {
		if err := s.applications.Create(ctx, app); err != nil {
			return err
		}
		return s.emitAudit(ctx, app, audit.EventLoanSubmitted, actor, "")
	})
	if err != nil {
		return nil, s.fail(span, translateStoreError(err, "failed to submit application"))
	}

	s.metrics.IncrementSubmitted()
	s.logger.InfoContext(ctx, "loan application submitted",
		"application_id", app.ID.String(),
		"applicant_id", actor.UserID.String(),
		"request_id", requestcontext.RequestID(ctx),
	)
	return app, nil
}

// Get returns one application. Applicants may only read their own.
func (s *Service) Get(ctx context.Context, actor domain.Identity, id domain.ApplicationID) (*models.Application, error) {
	ctx, span := s.tracer.Start(ctx, "loan.Get", trace.WithAttributes(attribute.String("application.id", id.String())))
	defer span.End()

	if err := requireIdentity(actor); err != nil {
		return nil, s.fail(span, err)
	}
	app, err := s.read(ctx, id)
	if err != nil {
		return nil, s.fail(span, err)
	}
	if !policy.IsAllowed(actor.Role, policy.ActionRead, app.ApplicantID, actor.UserID) {
		return nil, s.fail(span, dErrors.New(dErrors.CodeForbidden, "not permitted to view this application"))
	}
	return app, nil
}

// List pages through every application. Reviewers only.
func (s *Service) List(ctx context.Context, actor domain.Identity, criteria models.ListCriteria) (*models.Page, error) {
	if err := requireIdentity(actor); err != nil {
		return nil, err
	}
	if !policy.IsAllowed(actor.Role, policy.ActionListAll, domain.UserID{}, actor.UserID) {
		return nil, dErrors.New(dErrors.CodeForbidden, "not permitted to list all applications")
	}
	criteria.OwnerID = nil
	return s.list(ctx, criteria)
}

// ListMine pages through the actor's own applications, newest first.
func (s *Service) ListMine(ctx context.Context, actor domain.Identity, criteria models.ListCriteria) (*models.Page, error) {
	if err := requireIdentity(actor); err != nil {
		return nil, err
	}
	owner := actor.UserID
	criteria.OwnerID = &owner
	return s.list(ctx, criteria)
}

// History returns the transition log of one application, oldest first.
func (s *Service) History(ctx context.Context, actor domain.Identity, id domain.ApplicationID) ([]models.TransitionRecord, error) {
	if err := requireIdentity(actor); err != nil {
		return nil, err
	}
	app, err := s.read(ctx, id)
	if err != nil {
		return nil, err
	}
	if !policy.IsAllowed(actor.Role, policy.ActionReadHistory, app.ApplicantID, actor.UserID) {
		return nil, dErrors.New(dErrors.CodeForbidden, "not permitted to view this application")
	}
	records, err := s.transitions.ListByApplication(ctx, id)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load application history")
	}
	return records, nil
}

func (s *Service) list(ctx context.Context, criteria models.ListCriteria) (*models.Page, error) {
	criteria = criteria.Normalize()
	apps, total, err := s.applications.List(ctx, criteria)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list applications")
	}
	return &models.Page{
		Applications: apps,
		Pagination:   models.NewPagination(criteria.Page, criteria.Limit, total),
	}, nil
}

// read goes through the cache when one is configured.
func (s *Service) read(ctx context.Context, id domain.ApplicationID) (*models.Application, error) {
	var (
		app *models.Application
		err error
	)
	if s.cache != nil {
		app, err = s.cache.FindByID(ctx, id)
	} else {
		app, err = s.applications.FindByID(ctx, id)
	}
	if err != nil {
		return nil, translateStoreError(err, "failed to load application")
	}
	return app, nil
}

func (s *Service) emitAudit(ctx context.Context, app *models.Application, event audit.AuditEvent, actor domain.Identity, reason string) error {
	if s.auditPublisher == nil {
		return nil
	}
	return s.auditPublisher.Emit(ctx, audit.Event{
		Timestamp:     app.UpdatedAt,
		UserID:        app.ApplicantID,
		AggregateType: "loan_application",
		AggregateID:   app.ID.String(),
		Action:        string(event),
		Decision:      string(app.Status),
		Reason:        reason,
		RequestID:     requestcontext.RequestID(ctx),
		ActorID:       actor.UserID.String(),
		ActorRole:     actor.Role.String(),
		ClientIP:      requestcontext.ClientIP(ctx),
	})
}

func (s *Service) clock(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestcontext.ContextKeyRequestTime).(time.Time); ok {
		return t.UTC()
	}
	return s.now().UTC()
}

// fail records err on the span and returns it unchanged.
func (s *Service) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
	return err
}

func requireIdentity(actor domain.Identity) error {
	if actor.IsZero() || !actor.Role.IsValid() {
		return dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	return nil
}

// translateStoreError maps store sentinels onto domain error codes. Errors
// that already carry a domain code pass through.
func translateStoreError(err error, internalMsg string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "application not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "application was modified concurrently; reload and retry")
	case errors.Is(err, sentinel.ErrAlreadyUsed):
		return dErrors.New(dErrors.CodeConflict, "application already exists")
	}
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, internalMsg)
}
