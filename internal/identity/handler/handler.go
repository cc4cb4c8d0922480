package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"loanmanager/internal/identity/models"
	"loanmanager/internal/identity/service"
	"loanmanager/pkg/domain"
	dErrors "loanmanager/pkg/domain-errors"
	"loanmanager/pkg/platform/httputil"
	"loanmanager/pkg/platform/middleware/admin"
	"loanmanager/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

type Service interface {
	Register(ctx context.Context, profile models.Profile) (*service.AuthResult, error)
	Login(ctx context.Context, email, password string) (*service.AuthResult, error)
	Me(ctx context.Context, actor domain.Identity) (*models.User, error)
	UpdateProfile(ctx context.Context, actor domain.Identity, firstName, lastName string) (*models.User, error)
	ListUsers(ctx context.Context, actor domain.Identity, criteria models.ListCriteria) (*models.UserPage, error)
	Stats(ctx context.Context, actor domain.Identity) (models.UserStats, error)
	CreateVerifier(ctx context.Context, actor domain.Identity, profile models.Profile) (*models.User, error)
	CreateAdministrator(ctx context.Context, actor domain.Identity, profile models.Profile) (*models.User, error)
	UpdateUser(ctx context.Context, actor domain.Identity, target domain.UserID, update service.UserUpdate) (*models.User, error)
	DeactivateUser(ctx context.Context, actor domain.Identity, target domain.UserID) (*models.User, error)
}

// Handler serves /auth and /admin.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterPublic mounts the routes that need no token.
func (h *Handler) RegisterPublic(r chi.Router) {
	r.Post("/auth/register", h.HandleRegister)
	r.Post("/auth/login", h.HandleLogin)
}

// Register mounts the authenticated account routes and the admin user
// management routes.
func (h *Handler) Register(r chi.Router) {
	r.Get("/auth/me", h.HandleMe)
	r.Put("/auth/me", h.HandleUpdateProfile)

	r.Route("/admin", func(r chi.Router) {
		r.Use(admin.RequireAdministrator(h.logger))
		r.Get("/users", h.HandleListUsers)
		r.Get("/stats", h.HandleStats)
		r.Post("/verifiers", h.HandleCreateVerifier)
		r.Post("/administrators", h.HandleCreateAdministrator)
		r.Put("/users/{id}", h.HandleUpdateUser)
		r.Delete("/users/{id}", h.HandleDeactivateUser)
	})
}

// HandleRegister handles POST /auth/register.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[RegisterRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	res, err := h.service.Register(ctx, req.Profile())
	if err != nil {
		h.logFailure(ctx, "register failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, newAuthResponse(res))
}

// HandleLogin handles POST /auth/login.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[LoginRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	res, err := h.service.Login(ctx, req.Email, req.Password)
	if err != nil {
		h.logFailure(ctx, "login failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, newAuthResponse(res))
}

func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	u, err := h.service.Me(ctx, requestcontext.Identity(ctx))
	if err != nil {
		h.logFailure(ctx, "get profile failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"user": u})
}

func (h *Handler) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[ProfileRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	u, err := h.service.UpdateProfile(ctx, requestcontext.Identity(ctx), req.FirstName, req.LastName)
	if err != nil {
		h.logFailure(ctx, "update profile failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"user": u})
}

// HandleListUsers handles GET /admin/users.
func (h *Handler) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	criteria, err := parseUserQuery(r.URL.Query())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	page, err := h.service.ListUsers(ctx, requestcontext.Identity(ctx), criteria)
	if err != nil {
		h.logFailure(ctx, "list users failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, page)
}

func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stats, err := h.service.Stats(ctx, requestcontext.Identity(ctx))
	if err != nil {
		h.logFailure(ctx, "user stats failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"user_stats": stats})
}

func (h *Handler) HandleCreateVerifier(w http.ResponseWriter, r *http.Request) {
	h.createStaff(w, r, h.service.CreateVerifier)
}

func (h *Handler) HandleCreateAdministrator(w http.ResponseWriter, r *http.Request) {
	h.createStaff(w, r, h.service.CreateAdministrator)
}

type createFunc func(ctx context.Context, actor domain.Identity, profile models.Profile) (*models.User, error)

func (h *Handler) createStaff(w http.ResponseWriter, r *http.Request, create createFunc) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[RegisterRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	u, err := create(ctx, requestcontext.Identity(ctx), req.Profile())
	if err != nil {
		h.logFailure(ctx, "create staff account failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]any{"user": u})
}

// HandleUpdateUser handles PUT /admin/users/{id}.
func (h *Handler) HandleUpdateUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	target, ok := userID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[UpdateUserRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	u, err := h.service.UpdateUser(ctx, requestcontext.Identity(ctx), target, req.Update())
	if err != nil {
		h.logFailure(ctx, "update user failed", err, "target_user_id", target.String())
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"user": u})
}

// HandleDeactivateUser handles DELETE /admin/users/{id}. The account is
// deactivated, not removed.
func (h *Handler) HandleDeactivateUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	target, ok := userID(w, r)
	if !ok {
		return
	}
	u, err := h.service.DeactivateUser(ctx, requestcontext.Identity(ctx), target)
	if err != nil {
		h.logFailure(ctx, "deactivate user failed", err, "target_user_id", target.String())
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"user": u})
}

func userID(w http.ResponseWriter, r *http.Request) (domain.UserID, bool) {
	id, err := domain.ParseUserID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return domain.UserID{}, false
	}
	return id, true
}

func (h *Handler) logFailure(ctx context.Context, msg string, err error, attrs ...any) {
	attrs = append(attrs, "request_id", requestcontext.RequestID(ctx), "error", err)
	if httputil.StatusFor(dErrors.CodeOf(err)) < http.StatusInternalServerError {
		h.logger.WarnContext(ctx, msg, attrs...)
		return
	}
	h.logger.ErrorContext(ctx, msg, attrs...)
}
