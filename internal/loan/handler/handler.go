package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"loanmanager/internal/loan/models"
	"loanmanager/pkg/domain"
	dErrors "loanmanager/pkg/domain-errors"
	"loanmanager/pkg/platform/httputil"
	"loanmanager/pkg/platform/middleware/admin"
	"loanmanager/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

// Service is the workflow engine as seen by HTTP.
type Service interface {
	Submit(ctx context.Context, actor domain.Identity, sub models.Submission) (*models.Application, error)
	Get(ctx context.Context, actor domain.Identity, id domain.ApplicationID) (*models.Application, error)
	List(ctx context.Context, actor domain.Identity, criteria models.ListCriteria) (*models.Page, error)
	ListMine(ctx context.Context, actor domain.Identity, criteria models.ListCriteria) (*models.Page, error)
	History(ctx context.Context, actor domain.Identity, id domain.ApplicationID) ([]models.TransitionRecord, error)
	ApplyTransition(ctx context.Context, actor domain.Identity, id domain.ApplicationID, action models.Action, stage models.Stage, comment string) (*models.Application, error)
}

// Handler serves the /loans routes. Every route expects an identity placed
// in the context by the auth middleware.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts loan endpoints on r. Role checks here are coarse; the
// engine re-checks every action against the capability table.
func (h *Handler) Register(r chi.Router) {
	reviewers := admin.RequireRole(h.logger, domain.RoleVerifier, domain.RoleAdministrator)

	r.Route("/loans", func(r chi.Router) {
		r.Post("/", h.HandleSubmit)
		r.Get("/mine", h.HandleListMine)
		r.With(reviewers).Get("/", h.HandleList)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.HandleGet)
			r.Get("/history", h.HandleHistory)
			r.Post("/transitions", h.HandleTransition)
			r.With(reviewers).Put("/verify", h.HandleVerify)
			r.With(admin.RequireAdministrator(h.logger)).Put("/approve", h.HandleApprove)
		})
	})
}

// HandleSubmit handles POST /loans.
func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	actor := requestcontext.Identity(ctx)

	req, ok := httputil.DecodeAndPrepare[SubmitRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	app, err := h.service.Submit(ctx, actor, req.Submission())
	if err != nil {
		h.logFailure(ctx, "submit application failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, app)
}

// HandleListMine handles GET /loans/mine.
func (h *Handler) HandleListMine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	criteria, err := parseListQuery(r.URL.Query())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	page, err := h.service.ListMine(ctx, requestcontext.Identity(ctx), criteria)
	if err != nil {
		h.logFailure(ctx, "list own applications failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, page)
}

// HandleList handles GET /loans.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	criteria, err := parseListQuery(r.URL.Query())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	page, err := h.service.List(ctx, requestcontext.Identity(ctx), criteria)
	if err != nil {
		h.logFailure(ctx, "list applications failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, page)
}

// HandleGet handles GET /loans/{id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.applicationID(w, r)
	if !ok {
		return
	}
	app, err := h.service.Get(ctx, requestcontext.Identity(ctx), id)
	if err != nil {
		h.logFailure(ctx, "get application failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, app)
}

// HandleHistory handles GET /loans/{id}/history.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.applicationID(w, r)
	if !ok {
		return
	}
	records, err := h.service.History(ctx, requestcontext.Identity(ctx), id)
	if err != nil {
		h.logFailure(ctx, "get application history failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"transitions": records})
}

// HandleTransition handles POST /loans/{id}/transitions. The stage follows
// from the application's status and the caller's role.
func (h *Handler) HandleTransition(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "")
}

// HandleVerify handles PUT /loans/{id}/verify (verify or reject).
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, models.StageReview)
}

// HandleApprove handles PUT /loans/{id}/approve (approve or reject).
func (h *Handler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, models.StageDecision)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, stage models.Stage) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	id, ok := h.applicationID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[TransitionRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	if stage != "" && !allowedOnStage(stage, req.ParsedAction()) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "action "+req.Action+" is not available on this route"))
		return
	}

	app, err := h.service.ApplyTransition(ctx, requestcontext.Identity(ctx), id, req.ParsedAction(), stage, req.Comments)
	if err != nil {
		h.logFailure(ctx, "apply transition failed", err, "application_id", id.String(), "action", req.Action)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, app)
}

func (h *Handler) applicationID(w http.ResponseWriter, r *http.Request) (domain.ApplicationID, bool) {
	id, err := domain.ParseApplicationID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return domain.ApplicationID{}, false
	}
	return id, true
}

// logFailure logs client errors at warn and everything else at error.
func (h *Handler) logFailure(ctx context.Context, msg string, err error, attrs ...any) {
	attrs = append(attrs, "request_id", requestcontext.RequestID(ctx), "error", err)
	if httputil.StatusFor(dErrors.CodeOf(err)) < http.StatusInternalServerError {
		h.logger.WarnContext(ctx, msg, attrs...)
		return
	}
	h.logger.ErrorContext(ctx, msg, attrs...)
}
