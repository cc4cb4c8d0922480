// Package httptransport assembles the chi router: the shared middleware
// chain, the public and authenticated route groups, and operational
// endpoints.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"loanmanager/pkg/platform/httputil"
	authmw "loanmanager/pkg/platform/middleware/auth"
	"loanmanager/pkg/platform/middleware/metadata"
	request "loanmanager/pkg/platform/middleware/request"
	"loanmanager/pkg/platform/middleware/requesttime"
)

// RouteRegistrar mounts a module's routes.
type RouteRegistrar interface {
	Register(r chi.Router)
}

// PublicRouteRegistrar mounts routes reachable without a token.
type PublicRouteRegistrar interface {
	RegisterPublic(r chi.Router)
}

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) error

type Config struct {
	Logger         *slog.Logger
	RequestTimeout time.Duration
	Validator      authmw.JWTValidator
	Resolver       authmw.IdentityResolver
	Latency        request.LatencyObserver
	Gatherer       prometheus.Gatherer
	HealthChecks   map[string]HealthCheck
	Public         []PublicRouteRegistrar
	Authenticated  []RouteRegistrar
}

func NewRouter(cfg Config) http.Handler {
	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(request.Recovery(cfg.Logger))
	r.Use(request.Logger(cfg.Logger))
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)
	r.Use(request.Latency(cfg.Latency, routePattern))

	r.Get("/healthz", healthHandler(cfg.HealthChecks, cfg.Logger))
	if cfg.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(request.Timeout(cfg.RequestTimeout))
		r.Use(request.ContentTypeJSON)

		for _, m := range cfg.Public {
			m.RegisterPublic(r)
		}

		r.Group(func(r chi.Router) {
			r.Use(authmw.RequireAuth(cfg.Validator, cfg.Resolver, cfg.Logger))
			for _, m := range cfg.Authenticated {
				m.Register(r)
			}
		})
	})

	return r
}

// routePattern labels metrics with the matched chi pattern rather than the
// raw path.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

func healthHandler(checks map[string]HealthCheck, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				logger.WarnContext(ctx, "health check failed", "dependency", name, "error", err)
				results[name] = "unavailable"
				status = http.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}
		state := "ok"
		if status != http.StatusOK {
			state = "degraded"
		}
		httputil.WriteJSON(w, status, map[string]any{"status": state, "dependencies": results})
	}
}
