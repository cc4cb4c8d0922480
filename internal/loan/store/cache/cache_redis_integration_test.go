//go:build integration

package cache_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"loanmanager/internal/loan/models"
	"loanmanager/internal/loan/store/application"
	"loanmanager/internal/loan/store/cache"
	"loanmanager/pkg/domain"
	"loanmanager/pkg/testutil/containers"
)

type RedisCacheSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *application.InMemory
	cache *cache.RedisCache
}

func TestRedisCacheSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisCacheSuite))
}

func (s *RedisCacheSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
}

func (s *RedisCacheSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
	s.store = application.NewInMemory()
	s.cache = cache.NewRedis(s.redis.Client, s.store, cache.WithTTL(time.Minute))
}

func (s *RedisCacheSuite) seed() *models.Application {
	app, err := models.NewApplication(domain.NewApplicationID(), domain.NewUserID(), models.Submission{
		FirstName:         "Jane",
		LastName:          "Doe",
		EmploymentStatus:  models.EmploymentRetired,
		EmploymentAddress: "1 Market Street, Springfield",
		ReasonForLoan:     "Home renovation project",
		RequestedAmount:   decimal.RequireFromString("1500.25"),
	}, time.Now().UTC())
	s.Require().NoError(err)
	s.Require().NoError(s.store.Create(context.Background(), app))
	return app
}

func (s *RedisCacheSuite) TestReadThroughAndInvalidate() {
	ctx := context.Background()
	app := s.seed()

	first, err := s.cache.FindByID(ctx, app.ID)
	s.Require().NoError(err)
	s.True(app.RequestedAmount.Equal(first.RequestedAmount))

	ttl, err := s.redis.Client.TTL(ctx, "loan:app:"+app.ID.String()).Result()
	s.Require().NoError(err)
	s.Greater(ttl, time.Duration(0))

	rule, err := models.ResolveTransition(models.StatusPending, models.ActionReject, domain.RoleVerifier, models.StageReview)
	s.Require().NoError(err)
	_, err = s.store.UpdateIf(ctx, app.ID, models.StatusPending, 1, func(a *models.Application) error {
		a.ApplyTransition(rule, domain.NewUserID(), "", time.Now().UTC())
		return nil
	})
	s.Require().NoError(err)

	stale, err := s.cache.FindByID(ctx, app.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusPending, stale.Status, "cached copy served until invalidated")

	s.Require().NoError(s.cache.Invalidate(ctx, app.ID))
	fresh, err := s.cache.FindByID(ctx, app.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusRejected, fresh.Status)
	s.Equal(int64(2), fresh.Version)
}

// pausingSource hands out a snapshot and then holds the caller until
// released, so a write can land between the read and the cache fill.
type pausingSource struct {
	store   *application.InMemory
	read    chan struct{}
	release chan struct{}
	once    sync.Once
}

func (p *pausingSource) FindByID(ctx context.Context, id domain.ApplicationID) (*models.Application, error) {
	app, err := p.store.FindByID(ctx, id)
	p.once.Do(func() {
		close(p.read)
		<-p.release
	})
	return app, err
}

func (s *RedisCacheSuite) advance(app *models.Application, fromStatus models.Status, version int64, action models.Action, role domain.Role) *models.Application {
	rule, err := models.ResolveTransition(fromStatus, action, role, "")
	s.Require().NoError(err)
	updated, err := s.store.UpdateIf(context.Background(), app.ID, fromStatus, version, func(a *models.Application) error {
		a.ApplyTransition(rule, domain.NewUserID(), "", time.Now().UTC())
		return nil
	})
	s.Require().NoError(err)
	return updated
}

func (s *RedisCacheSuite) TestSlowFillDoesNotOverwriteCommittedWrite() {
	ctx := context.Background()
	app := s.seed()
	src := &pausingSource{store: s.store, read: make(chan struct{}), release: make(chan struct{})}
	c := cache.NewRedis(s.redis.Client, src, cache.WithTTL(time.Minute))

	done := make(chan *models.Application)
	go func() {
		got, err := c.FindByID(ctx, app.ID)
		s.NoError(err)
		done <- got
	}()

	<-src.read
	verified := s.advance(app, models.StatusPending, 1, models.ActionVerify, domain.RoleVerifier)
	approved := s.advance(verified, models.StatusVerified, 2, models.ActionApprove, domain.RoleAdministrator)
	s.Require().NoError(c.Put(ctx, approved))
	close(src.release)

	slow := <-done
	s.Equal(models.StatusPending, slow.Status, "the slow reader still sees its own snapshot")

	got, err := c.FindByID(ctx, app.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusApproved, got.Status)
	s.Equal(int64(3), got.Version)
}

func (s *RedisCacheSuite) TestPutKeepsHighestVersion() {
	ctx := context.Background()
	app := s.seed()
	verified := s.advance(app, models.StatusPending, 1, models.ActionVerify, domain.RoleVerifier)
	approved := s.advance(verified, models.StatusVerified, 2, models.ActionApprove, domain.RoleAdministrator)

	s.Require().NoError(s.cache.Put(ctx, approved))
	s.Require().NoError(s.cache.Put(ctx, verified))

	got, err := s.cache.FindByID(ctx, app.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusApproved, got.Status)

	ttl, err := s.redis.Client.TTL(ctx, "loan:app:"+app.ID.String()).Result()
	s.Require().NoError(err)
	s.Greater(ttl, time.Duration(0))
}

func (s *RedisCacheSuite) TestPutOverwritesUndecodableEntry() {
	ctx := context.Background()
	app := s.seed()
	s.Require().NoError(s.redis.Client.Set(ctx, "loan:app:"+app.ID.String(), "not json", time.Minute).Err())

	s.Require().NoError(s.cache.Put(ctx, app))

	got, err := s.cache.FindByID(ctx, app.ID)
	s.Require().NoError(err)
	s.Equal(app.ID, got.ID)
}
