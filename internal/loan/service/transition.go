package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"loanmanager/internal/loan/models"
	"loanmanager/internal/policy"
	"loanmanager/pkg/domain"
	dErrors "loanmanager/pkg/domain-errors"
	"loanmanager/pkg/platform/audit"
	"loanmanager/pkg/requestcontext"
)

var transitionEvents = map[models.Status]audit.AuditEvent{
	models.StatusVerified: audit.EventLoanVerified,
	models.StatusApproved: audit.EventLoanApproved,
	models.StatusRejected: audit.EventLoanRejected,
}

// ApplyTransition moves application id forward by action on behalf of actor.
// stage pins the review or decision rule set; an empty stage lets the
// current status and the actor's role pick it.
//
// The status and version read at the start are the only ones the update
// may apply to. A concurrent writer that got there first turns this call
// into CodeConflict; nothing is retried.
func (s *Service) ApplyTransition(
	ctx context.Context,
	actor domain.Identity,
	id domain.ApplicationID,
	action models.Action,
	stage models.Stage,
	comment string,
) (*models.Application, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "loan.ApplyTransition", trace.WithAttributes(
		attribute.String("application.id", id.String()),
		attribute.String("loan.action", string(action)),
		attribute.String("actor.role", actor.Role.String()),
	))
	defer span.End()
	defer s.metrics.ObserveOperation("apply_transition", start)

	updated, err := s.applyTransition(ctx, actor, id, action, stage, comment)
	if err != nil {
		code := dErrors.CodeOf(err)
		s.metrics.RecordTransition(string(action), string(code))
		if code == dErrors.CodeConflict {
			s.metrics.IncrementConflicts(string(action))
		}
		s.logger.InfoContext(ctx, "loan transition refused",
			"application_id", id.String(),
			"action", string(action),
			"actor_id", actor.UserID.String(),
			"code", string(code),
			"request_id", requestcontext.RequestID(ctx),
		)
		return nil, s.fail(span, err)
	}

	s.metrics.RecordTransition(string(action), "ok")
	s.refreshCache(ctx, updated)
	s.logger.InfoContext(ctx, "loan transition applied",
		"application_id", id.String(),
		"action", string(action),
		"status", string(updated.Status),
		"actor_id", actor.UserID.String(),
		"request_id", requestcontext.RequestID(ctx),
	)
	return updated, nil
}

func (s *Service) applyTransition(
	ctx context.Context,
	actor domain.Identity,
	id domain.ApplicationID,
	action models.Action,
	stage models.Stage,
	comment string,
) (*models.Application, error) {
	if err := requireIdentity(actor); err != nil {
		return nil, err
	}
	if _, err := models.ParseAction(string(action)); err != nil {
		return nil, err
	}
	if err := models.ValidateComment(comment); err != nil {
		return nil, err
	}
	if !policy.IsAllowed(actor.Role, action.GateAction(), domain.UserID{}, actor.UserID) {
		return nil, dErrors.New(dErrors.CodeForbidden, "role "+actor.Role.String()+" may not "+action.String()+" applications")
	}

	// The snapshot comes from the store, never the cache.
	current, err := s.applications.FindByID(ctx, id)
	if err != nil {
		return nil, translateStoreError(err, "failed to load application")
	}

	rule, err := models.ResolveTransition(current.Status, action, actor.Role, stage)
	if err != nil {
		return nil, err
	}
	if err := current.CanApply(rule); err != nil {
		return nil, err
	}

	now := s.clock(ctx)
	var updated *models.Application
	err = s.tx.RunInTx(ctx, id.String(), func(ctx context.Context) error {
		var err error
		updated, err = s.applications.UpdateIf(ctx, id, current.Status, current.Version, func(app *models.Application) error {
			if err := app.CanApply(rule); err != nil {
				return err
			}
			app.ApplyTransition(rule, actor.UserID, comment, now)
			return nil
		})
		if err != nil {
			return err
		}

		record := models.TransitionRecord{
			ID:            domain.NewTransitionID(),
			ApplicationID: id,
			Action:        action,
			FromStatus:    current.Status,
			ToStatus:      updated.Status,
			ActorID:       actor.UserID,
			ActorRole:     actor.Role,
			Comment:       comment,
			OccurredAt:    now,
			RequestID:     requestcontext.RequestID(ctx),
			ClientIP:      requestcontext.ClientIP(ctx),
			UserAgent:     requestcontext.DeviceSummary(ctx),
		}
		if err := s.transitions.Append(ctx, record); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record transition")
		}
		return s.emitAudit(ctx, updated, transitionEvents[updated.Status], actor, comment)
	})
	if err != nil {
		return nil, translateStoreError(err, "failed to apply transition")
	}
	return updated, nil
}

// refreshCache stores the committed record so a reader that loaded the
// previous version cannot fill the cache after this write. If the put fails
// the entry is dropped instead.
func (s *Service) refreshCache(ctx context.Context, updated *models.Application) {
	if s.cache == nil {
		return
	}
	err := s.cache.Put(ctx, updated)
	if err == nil {
		return
	}
	s.logger.WarnContext(ctx, "failed to refresh application cache",
		"application_id", updated.ID.String(),
		"error", err,
	)
	if err := s.cache.Invalidate(ctx, updated.ID); err != nil {
		s.logger.WarnContext(ctx, "failed to invalidate application cache",
			"application_id", updated.ID.String(),
			"error", err,
		)
	}
}
