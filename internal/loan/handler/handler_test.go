package handler

import (
	"log/slog"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"loanmanager/internal/loan/handler/mocks"
	"loanmanager/internal/loan/models"
	"loanmanager/pkg/domain"
	dErrors "loanmanager/pkg/domain-errors"
	"loanmanager/pkg/testutil"
)

type HandlerSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	service *mocks.MockService
	router  chi.Router

	applicant domain.Identity
	verifier  domain.Identity
	admin     domain.Identity
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.service = mocks.NewMockService(s.ctrl)
	s.router = chi.NewRouter()
	New(s.service, slog.New(slog.DiscardHandler)).Register(s.router)

	s.applicant = domain.Identity{UserID: domain.NewUserID(), Role: domain.RoleApplicant}
	s.verifier = domain.Identity{UserID: domain.NewUserID(), Role: domain.RoleVerifier}
	s.admin = domain.Identity{UserID: domain.NewUserID(), Role: domain.RoleAdministrator}
}

func (s *HandlerSuite) do(req *http.Request, who domain.Identity) (int, []byte) {
	if !who.IsZero() {
		req = testutil.WithIdentity(req, who.UserID, who.Role)
	}
	rr := testutil.DoRequest(s.router, req)
	return rr.Code, rr.Body.Bytes()
}

func validSubmit() map[string]any {
	return map[string]any{
		"applicant_first_name": "Jane",
		"applicant_last_name":  "Doe",
		"employment_status":    "employed",
		"employment_address":   "1 Market Street, Springfield",
		"reason_for_loan":      "Home renovation project",
		"requested_amount":     250000,
	}
}

func (s *HandlerSuite) TestSubmit() {
	s.Run("creates application", func() {
		s.service.EXPECT().Submit(gomock.Any(), s.applicant, gomock.Any()).
			DoAndReturn(func(_ any, _ domain.Identity, sub models.Submission) (*models.Application, error) {
				s.True(sub.RequestedAmount.Equal(decimal.NewFromInt(250_000)))
				return &models.Application{ID: domain.NewApplicationID(), Status: models.StatusPending}, nil
			})

		code, body := s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, "/loans", validSubmit()), s.applicant)
		s.Equal(http.StatusCreated, code)
		s.Contains(string(body), `"status":"pending"`)
	})

	s.Run("amount below minimum is rejected before the engine", func() {
		body := validSubmit()
		body["requested_amount"] = 999
		code, resp := s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, "/loans", body), s.applicant)
		s.Equal(http.StatusBadRequest, code)
		s.Contains(string(resp), string(dErrors.CodeValidation))
	})

	s.Run("missing amount is rejected", func() {
		body := validSubmit()
		delete(body, "requested_amount")
		code, _ := s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, "/loans", body), s.applicant)
		s.Equal(http.StatusBadRequest, code)
	})

	s.Run("client-set status is an unknown field", func() {
		body := validSubmit()
		body["status"] = "approved"
		code, _ := s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, "/loans", body), s.applicant)
		s.Equal(http.StatusBadRequest, code)
	})
}

func (s *HandlerSuite) TestTransitions() {
	id := domain.NewApplicationID()
	path := "/loans/" + id.String()

	s.Run("generic route leaves stage to the engine", func() {
		s.service.EXPECT().ApplyTransition(gomock.Any(), s.verifier, id, models.ActionVerify, models.Stage(""), "looks good").
			Return(&models.Application{ID: id, Status: models.StatusVerified}, nil)

		code, body := s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, path+"/transitions",
			map[string]string{"action": "verify", "comments": " looks good "}), s.verifier)
		s.Equal(http.StatusOK, code)
		s.Contains(string(body), `"status":"verified"`)
	})

	s.Run("verify route passes review stage", func() {
		s.service.EXPECT().ApplyTransition(gomock.Any(), s.verifier, id, models.ActionReject, models.StageReview, "").
			Return(&models.Application{ID: id, Status: models.StatusRejected}, nil)

		code, _ := s.do(testutil.NewJSONRequest(s.T(), http.MethodPut, path+"/verify",
			map[string]string{"action": "reject"}), s.verifier)
		s.Equal(http.StatusOK, code)
	})

	s.Run("verify route refuses approve", func() {
		code, _ := s.do(testutil.NewJSONRequest(s.T(), http.MethodPut, path+"/verify",
			map[string]string{"action": "approve"}), s.admin)
		s.Equal(http.StatusBadRequest, code)
	})

	s.Run("approve route passes decision stage", func() {
		s.service.EXPECT().ApplyTransition(gomock.Any(), s.admin, id, models.ActionApprove, models.StageDecision, "").
			Return(&models.Application{ID: id, Status: models.StatusApproved}, nil)

		code, _ := s.do(testutil.NewJSONRequest(s.T(), http.MethodPut, path+"/approve",
			map[string]string{"action": "approve"}), s.admin)
		s.Equal(http.StatusOK, code)
	})

	s.Run("approve route is administrators only", func() {
		code, _ := s.do(testutil.NewJSONRequest(s.T(), http.MethodPut, path+"/approve",
			map[string]string{"action": "approve"}), s.verifier)
		s.Equal(http.StatusForbidden, code)
	})

	s.Run("verify route is reviewers only", func() {
		code, _ := s.do(testutil.NewJSONRequest(s.T(), http.MethodPut, path+"/verify",
			map[string]string{"action": "verify"}), s.applicant)
		s.Equal(http.StatusForbidden, code)
	})

	s.Run("engine errors map to statuses", func() {
		cases := map[dErrors.Code]int{
			dErrors.CodeNotFound:          http.StatusNotFound,
			dErrors.CodeForbidden:         http.StatusForbidden,
			dErrors.CodeInvalidTransition: http.StatusBadRequest,
			dErrors.CodeConflict:          http.StatusConflict,
			dErrors.CodeInternal:          http.StatusInternalServerError,
		}
		for code, status := range cases {
			s.service.EXPECT().ApplyTransition(gomock.Any(), gomock.Any(), id, models.ActionApprove, gomock.Any(), "").
				Return(nil, dErrors.New(code, "boom"))
			got, _ := s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, path+"/transitions",
				map[string]string{"action": "approve"}), s.admin)
			s.Equal(status, got, code)
		}
	})

	s.Run("unknown action is a validation error", func() {
		code, _ := s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, path+"/transitions",
			map[string]string{"action": "escalate"}), s.admin)
		s.Equal(http.StatusBadRequest, code)
	})

	s.Run("malformed id is rejected", func() {
		code, _ := s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, "/loans/not-a-uuid/transitions",
			map[string]string{"action": "verify"}), s.admin)
		s.Equal(http.StatusBadRequest, code)
	})
}

func (s *HandlerSuite) TestReads() {
	s.Run("reviewer list parses filters", func() {
		s.service.EXPECT().List(gomock.Any(), s.verifier, gomock.Any()).
			DoAndReturn(func(_ any, _ domain.Identity, c models.ListCriteria) (*models.Page, error) {
				s.Equal([]models.Status{models.StatusVerified}, c.Statuses)
				s.Equal("doe", c.Search)
				s.Equal(2, c.Page)
				s.Equal(5, c.Limit)
				return &models.Page{Applications: []*models.Application{}, Pagination: models.NewPagination(2, 5, 6)}, nil
			})

		code, body := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/loans?status=verified&search=doe&page=2&limit=5"), s.verifier)
		s.Equal(http.StatusOK, code)
		s.Contains(string(body), `"has_prev":true`)
	})

	s.Run("status accepts a comma-separated list", func() {
		s.service.EXPECT().List(gomock.Any(), s.admin, gomock.Any()).
			DoAndReturn(func(_ any, _ domain.Identity, c models.ListCriteria) (*models.Page, error) {
				s.Equal([]models.Status{models.StatusApproved, models.StatusRejected}, c.Statuses)
				return &models.Page{}, nil
			})
		code, _ := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/loans?status=Approved,rejected,APPROVED"), s.admin)
		s.Equal(http.StatusOK, code)
	})

	s.Run("unknown status in list is rejected", func() {
		code, _ := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/loans?status=approved,bogus"), s.admin)
		s.Equal(http.StatusBadRequest, code)
	})

	s.Run("status all means no filter", func() {
		s.service.EXPECT().List(gomock.Any(), s.admin, gomock.Any()).
			DoAndReturn(func(_ any, _ domain.Identity, c models.ListCriteria) (*models.Page, error) {
				s.Empty(c.Statuses)
				return &models.Page{}, nil
			})
		code, _ := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/loans?status=all"), s.admin)
		s.Equal(http.StatusOK, code)
	})

	s.Run("applicant cannot list all", func() {
		code, _ := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/loans"), s.applicant)
		s.Equal(http.StatusForbidden, code)
	})

	s.Run("bad limit is rejected", func() {
		code, _ := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/loans/mine?limit=101"), s.applicant)
		s.Equal(http.StatusBadRequest, code)
	})

	s.Run("list mine", func() {
		s.service.EXPECT().ListMine(gomock.Any(), s.applicant, gomock.Any()).Return(&models.Page{}, nil)
		code, _ := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/loans/mine"), s.applicant)
		s.Equal(http.StatusOK, code)
	})

	s.Run("get and history", func() {
		id := domain.NewApplicationID()
		s.service.EXPECT().Get(gomock.Any(), s.applicant, id).Return(&models.Application{ID: id}, nil)
		s.service.EXPECT().History(gomock.Any(), s.applicant, id).Return([]models.TransitionRecord{}, nil)

		code, _ := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/loans/"+id.String()), s.applicant)
		s.Equal(http.StatusOK, code)
		code, body := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/loans/"+id.String()+"/history"), s.applicant)
		s.Equal(http.StatusOK, code)
		s.Contains(string(body), `"transitions":[]`)
	})
}
