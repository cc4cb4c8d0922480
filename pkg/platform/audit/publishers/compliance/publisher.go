// Package compliance is the audit publisher used by the loan workflow and
// account administration.
//
// Emit blocks until the store accepts the event and returns an error
// otherwise; loan transitions abort on that error. With the PostgreSQL outbox
// store the write joins the caller's transaction, so the audit row commits or
// rolls back with the state change it describes.
package compliance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	audit "loanmanager/pkg/platform/audit"
	"loanmanager/pkg/requestcontext"
)

// Publisher validates, stamps and persists audit events.
type Publisher struct {
	store   audit.Store
	logger  *slog.Logger
	metrics *Metrics
	now     func() time.Time
}

type Option func(*Publisher)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) { p.logger = logger }
}

func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) { p.metrics = m }
}

// WithClock overrides the timestamp given to events that arrive without one.
func WithClock(now func() time.Time) Option {
	return func(p *Publisher) { p.now = now }
}

func New(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{
		store:  store,
		logger: slog.New(slog.DiscardHandler),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit persists event. Category is always derived from Action; Timestamp and
// RequestID are filled from the clock and ctx when the caller left them empty.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	start := time.Now()
	if err := validate(event); err != nil {
		return err
	}

	event.Category = audit.AuditEvent(event.Action).Category()
	if event.Timestamp.IsZero() {
		event.Timestamp = p.now()
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}

	if err := p.store.Append(ctx, event); err != nil {
		p.metrics.IncPersistFailures()
		p.logger.ErrorContext(ctx, "audit event not persisted",
			"action", event.Action,
			"aggregate_type", event.AggregateType,
			"aggregate_id", event.AggregateID,
			"user_id", event.UserID.String(),
			"request_id", event.RequestID,
			"error", err,
		)
		return fmt.Errorf("persist audit event %s: %w", event.Action, err)
	}

	p.metrics.ObservePersistDuration(time.Since(start).Seconds())
	p.metrics.IncEventsEmitted(event.Action)
	return nil
}

func validate(event audit.Event) error {
	switch {
	case event.UserID.IsNil():
		return fmt.Errorf("audit event %q requires UserID", event.Action)
	case event.Action == "":
		return fmt.Errorf("audit event requires Action")
	case !audit.AuditEvent(event.Action).Known():
		return fmt.Errorf("unknown audit action %q", event.Action)
	case event.AggregateID != "" && event.AggregateType == "":
		return fmt.Errorf("audit event %q has AggregateID without AggregateType", event.Action)
	}
	return nil
}
