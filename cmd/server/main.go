package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	identityhandler "loanmanager/internal/identity/handler"
	identitymodels "loanmanager/internal/identity/models"
	"loanmanager/internal/identity/password"
	identityservice "loanmanager/internal/identity/service"
	userstore "loanmanager/internal/identity/store/user"
	jwttoken "loanmanager/internal/jwt_token"
	loanhandler "loanmanager/internal/loan/handler"
	loanmetrics "loanmanager/internal/loan/metrics"
	loanservice "loanmanager/internal/loan/service"
	"loanmanager/internal/loan/store/application"
	"loanmanager/internal/loan/store/cache"
	"loanmanager/internal/loan/store/transitionlog"
	"loanmanager/internal/platform/config"
	"loanmanager/internal/platform/httpserver"
	"loanmanager/internal/platform/kafka"
	"loanmanager/internal/platform/logger"
	"loanmanager/internal/platform/metrics"
	"loanmanager/internal/platform/postgres"
	redisclient "loanmanager/internal/platform/redis"
	"loanmanager/internal/platform/tracing"
	httptransport "loanmanager/internal/transport/http"
	"loanmanager/pkg/platform/audit"
	"loanmanager/pkg/platform/audit/outbox"
	"loanmanager/pkg/platform/audit/publishers/compliance"
	auditmemory "loanmanager/pkg/platform/audit/store/memory"
	auditpostgres "loanmanager/pkg/platform/audit/store/postgres"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "loanmanager:", err)
		os.Exit(1)
	}
}

// storage is the set of stores backing the services, either all PostgreSQL
// or all in-memory.
type storage struct {
	db           *sql.DB
	users        identityservice.UserStore
	applications loanservice.ApplicationStore
	transitions  loanservice.TransitionLog
	tx           loanservice.TxRunner
	audit        audit.Store
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	log := logger.New(cfg.Environment, cfg.LogLevel)

	shutdownTracing, err := tracing.Setup(ctx, tracing.Config{
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: cfg.Tracing.ServiceName,
		SampleRatio: cfg.Tracing.SampleRatio,
		Environment: cfg.Environment,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Warn("tracer shutdown failed", "error", err)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	platformMetrics := metrics.New(reg)

	store, err := openStorage(ctx, cfg, log)
	if err != nil {
		return err
	}
	if store.db != nil {
		defer store.db.Close()
	}
	healthChecks := map[string]httptransport.HealthCheck{}
	if store.db != nil {
		healthChecks["postgres"] = store.db.PingContext
	}

	publisher := compliance.New(store.audit,
		compliance.WithLogger(log),
		compliance.WithMetrics(compliance.NewMetrics(reg)),
	)

	rc, err := redisclient.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	loanOpts := []loanservice.Option{
		loanservice.WithLogger(log),
		loanservice.WithMetrics(loanmetrics.New(reg)),
		loanservice.WithAuditPublisher(publisher),
	}
	if rc != nil {
		defer rc.Close()
		healthChecks["redis"] = rc.Health
		loanOpts = append(loanOpts, loanservice.WithCache(cache.NewRedis(rc.Client, store.applications,
			cache.WithTTL(cfg.Redis.CacheTTL),
			cache.WithLogger(log),
		)))
		log.Info("application cache enabled")
	}

	g, gctx := errgroup.WithContext(ctx)

	if len(cfg.Kafka.Brokers) > 0 {
		relay, closeRelay, err := newOutboxRelay(ctx, cfg, log, platformMetrics)
		if err != nil {
			return err
		}
		defer closeRelay()
		g.Go(func() error { return relay.Run(gctx) })
		log.Info("audit outbox relay enabled", "topic", cfg.Kafka.Topic)
	}

	tokens := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.JWTIssuer, cfg.Auth.JWTAudience)
	identity := identityservice.New(store.users, password.NewHasher(cfg.Auth.BcryptCost), tokens,
		identityservice.WithLogger(log),
		identityservice.WithMetrics(platformMetrics),
		identityservice.WithAuditPublisher(publisher),
		identityservice.WithTokenTTL(cfg.Auth.AccessTokenTTL),
	)
	loans := loanservice.New(store.applications, store.transitions, store.tx, loanOpts...)

	if cfg.Bootstrap.Enabled() {
		admin, created, err := identity.BootstrapAdmin(ctx, identitymodels.Profile{
			Email:     cfg.Bootstrap.Email,
			Password:  cfg.Bootstrap.Password,
			FirstName: cfg.Bootstrap.FirstName,
			LastName:  cfg.Bootstrap.LastName,
		})
		if err != nil {
			return fmt.Errorf("bootstrap administrator: %w", err)
		}
		log.Info("bootstrap administrator ready", "user_id", admin.ID.String(), "created", created)
	}

	identityHTTP := identityhandler.New(identity, log)
	router := httptransport.NewRouter(httptransport.Config{
		Logger:         log,
		RequestTimeout: cfg.RequestTimeout,
		Validator:      jwttoken.NewMiddlewareValidator(tokens),
		Resolver:       identity,
		Latency:        platformMetrics,
		Gatherer:       reg,
		HealthChecks:   healthChecks,
		Public:         []httptransport.PublicRouteRegistrar{identityHTTP},
		Authenticated: []httptransport.RouteRegistrar{
			identityHTTP,
			loanhandler.New(loans, log),
		},
	})

	srv := httpserver.New(cfg.Addr, router, cfg.ReadHeaderTimeout)
	g.Go(func() error { return httpserver.Run(gctx, srv, cfg.ShutdownTimeout, log) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("shutdown complete")
	return nil
}

func openStorage(ctx context.Context, cfg config.Server, log *slog.Logger) (*storage, error) {
	if cfg.Database.URL == "" {
		log.Warn("DATABASE_URL not set; using in-memory stores")
		return &storage{
			users:        userstore.NewInMemory(),
			applications: application.NewInMemory(),
			transitions:  transitionlog.NewInMemory(),
			tx:           loanservice.NewShardedTx(cfg.Database.TxTimeout),
			audit:        auditmemory.NewInMemoryStore(),
		}, nil
	}

	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	if cfg.Database.AutoMigrate {
		if err := postgres.Migrate(db); err != nil {
			_ = db.Close()
			return nil, err
		}
		log.Info("database migrations applied")
	}
	return &storage{
		db:           db,
		users:        userstore.NewPostgres(db),
		applications: application.NewPostgres(db),
		transitions:  transitionlog.NewPostgres(db),
		tx:           postgres.NewTxRunner(db, cfg.Database.TxTimeout),
		audit:        auditpostgres.New(db),
	}, nil
}

func newOutboxRelay(ctx context.Context, cfg config.Server, log *slog.Logger, m *metrics.Metrics) (*outbox.Relay, func(), error) {
	producer, err := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	if err != nil {
		return nil, nil, err
	}
	if err := producer.EnsureTopic(ctx, cfg.Kafka.Partitions); err != nil {
		producer.Close()
		return nil, nil, fmt.Errorf("ensure audit topic: %w", err)
	}
	pool, err := outbox.NewPool(ctx, cfg.Database.URL)
	if err != nil {
		producer.Close()
		return nil, nil, err
	}
	relay, err := outbox.New(outbox.NewPgxSource(pool), producer,
		outbox.WithLogger(log),
		outbox.WithMetrics(m),
		outbox.WithInterval(cfg.Kafka.PollInterval),
		outbox.WithBatchSize(cfg.Kafka.BatchSize),
	)
	if err != nil {
		pool.Close()
		producer.Close()
		return nil, nil, err
	}
	return relay, func() {
		pool.Close()
		producer.Close()
	}, nil
}
