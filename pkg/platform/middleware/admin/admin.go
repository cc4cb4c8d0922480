// Package admin gates routes on the caller's role. It runs after
// auth.RequireAuth has placed the identity in the context.
package admin

import (
	"log/slog"
	"net/http"
	"slices"

	"loanmanager/pkg/domain"
	request "loanmanager/pkg/platform/middleware/request"
	"loanmanager/pkg/requestcontext"
)

// RequireRole admits callers whose role is one of roles. Everyone else gets
// 403; unauthenticated requests get 401.
func RequireRole(logger *slog.Logger, roles ...domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			identity := requestcontext.Identity(ctx)
			if identity.IsZero() {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"authentication required"}`))
				return
			}
			if !slices.Contains(roles, identity.Role) {
				logger.WarnContext(ctx, "role gate rejected request",
					"user_id", identity.UserID.String(),
					"role", identity.Role.String(),
					"path", r.URL.Path,
					"request_id", request.GetRequestID(ctx),
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"error":"forbidden","error_description":"insufficient role"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdministrator is RequireRole restricted to administrators.
func RequireAdministrator(logger *slog.Logger) func(http.Handler) http.Handler {
	return RequireRole(logger, domain.RoleAdministrator)
}
