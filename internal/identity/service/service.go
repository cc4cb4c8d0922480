// Package service owns accounts: registration, sign-in, identity
// resolution for the auth middleware and administrator user management.
package service

import (
	"context"
	"log/slog"
	"time"

	"loanmanager/internal/identity/models"
	"loanmanager/internal/platform/metrics"
	"loanmanager/pkg/domain"
	"loanmanager/pkg/platform/audit"
)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks UserStore,PasswordHasher,TokenIssuer,AuditPublisher

type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, id domain.UserID) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	Update(ctx context.Context, user *models.User) error
	List(ctx context.Context, criteria models.ListCriteria) ([]*models.User, int, error)
	Stats(ctx context.Context) (models.UserStats, error)
}

// PasswordHasher hashes passwords; Verify returns password.ErrMismatch on a
// wrong password.
type PasswordHasher interface {
	Hash(plain string) (string, error)
	Verify(plain, hash string) error
}

type TokenIssuer interface {
	GenerateAccessToken(userID domain.UserID, role domain.Role, expiresIn time.Duration) (string, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service manages user accounts.
type Service struct {
	users          UserStore
	hasher         PasswordHasher
	tokens         TokenIssuer
	tokenTTL       time.Duration
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
	logger         *slog.Logger
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

func WithTokenTTL(ttl time.Duration) Option {
	return func(s *Service) {
		s.tokenTTL = ttl
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func New(users UserStore, hasher PasswordHasher, tokens TokenIssuer, opts ...Option) *Service {
	s := &Service{
		users:    users,
		hasher:   hasher,
		tokens:   tokens,
		tokenTTL: 24 * time.Hour,
		logger:   slog.New(slog.DiscardHandler),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}
