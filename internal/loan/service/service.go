package service

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"loanmanager/internal/loan/metrics"
	"loanmanager/internal/loan/models"
	"loanmanager/pkg/domain"
	"loanmanager/pkg/platform/audit"
)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks ApplicationStore,TransitionLog,ApplicationCache,AuditPublisher,TxRunner

// ApplicationStore persists applications. UpdateIf must apply mutate only
// when the stored status and version still equal the expected values, and
// must report sentinel.ErrConflict otherwise.
type ApplicationStore interface {
	Create(ctx context.Context, app *models.Application) error
	FindByID(ctx context.Context, id domain.ApplicationID) (*models.Application, error)
	UpdateIf(ctx context.Context, id domain.ApplicationID, expectedStatus models.Status, expectedVersion int64, mutate func(*models.Application) error) (*models.Application, error)
	List(ctx context.Context, criteria models.ListCriteria) ([]*models.Application, int, error)
}

type TransitionLog interface {
	Append(ctx context.Context, record models.TransitionRecord) error
	ListByApplication(ctx context.Context, id domain.ApplicationID) ([]models.TransitionRecord, error)
}

// ApplicationCache serves reads. It is never consulted for the snapshot a
// transition is based on.
type ApplicationCache interface {
	FindByID(ctx context.Context, id domain.ApplicationID) (*models.Application, error)
	Put(ctx context.Context, app *models.Application) error
	Invalidate(ctx context.Context, id domain.ApplicationID) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// TxRunner groups the conditional update, the transition log append and the
// audit write into one unit. key identifies the application being changed.
type TxRunner interface {
	RunInTx(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// Service is the loan workflow engine: the only code that changes an
// application's status or its audit fields.
type Service struct {
	applications   ApplicationStore
	transitions    TransitionLog
	tx             TxRunner
	cache          ApplicationCache
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
	logger         *slog.Logger
	tracer         trace.Tracer
	now            func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithCache(cache ApplicationCache) Option {
	return func(s *Service) {
		s.cache = cache
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = tracer
	}
}

// WithClock overrides the time source used when no request time is present.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func New(applications ApplicationStore, transitions TransitionLog, tx TxRunner, opts ...Option) *Service {
	s := &Service{
		applications: applications,
		transitions:  transitions,
		tx:           tx,
		logger:       slog.New(slog.DiscardHandler),
		tracer:       otel.Tracer("loan/service"),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}
