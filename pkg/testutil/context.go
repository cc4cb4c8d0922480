package testutil

import (
	"net/http"

	"loanmanager/pkg/domain"
	"loanmanager/pkg/requestcontext"
)

// WithIdentity attaches an authenticated caller to the request context.
// Handler tests use it in place of the auth middleware.
func WithIdentity(req *http.Request, userID domain.UserID, role domain.Role) *http.Request {
	ctx := requestcontext.WithIdentity(req.Context(), domain.Identity{UserID: userID, Role: role})
	return req.WithContext(ctx)
}

