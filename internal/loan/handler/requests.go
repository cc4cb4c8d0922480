package handler

import (
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"loanmanager/internal/loan/models"
	dErrors "loanmanager/pkg/domain-errors"
	pkgstrings "loanmanager/pkg/platform/strings"
)

// SubmitRequest is the body of POST /loans.
type SubmitRequest struct {
	FirstName         string           `json:"applicant_first_name"`
	LastName          string           `json:"applicant_last_name"`
	EmploymentStatus  string           `json:"employment_status"`
	EmploymentAddress string           `json:"employment_address"`
	ReasonForLoan     string           `json:"reason_for_loan"`
	RequestedAmount   *decimal.Decimal `json:"requested_amount"`

	submission models.Submission
}

func (r *SubmitRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if r.RequestedAmount == nil {
		return dErrors.New(dErrors.CodeValidation, "requested_amount is required")
	}
	sub := models.Submission{
		FirstName:         strings.TrimSpace(r.FirstName),
		LastName:          strings.TrimSpace(r.LastName),
		EmploymentStatus:  models.EmploymentStatus(strings.TrimSpace(r.EmploymentStatus)),
		EmploymentAddress: strings.TrimSpace(r.EmploymentAddress),
		ReasonForLoan:     strings.TrimSpace(r.ReasonForLoan),
		RequestedAmount:   *r.RequestedAmount,
	}
	if err := sub.Validate(); err != nil {
		return err
	}
	r.submission = sub
	return nil
}

func (r *SubmitRequest) Submission() models.Submission {
	return r.submission
}

// TransitionRequest is the body of the transition routes.
type TransitionRequest struct {
	Action   string `json:"action"`
	Comments string `json:"comments"`

	parsedAction models.Action
}

func (r *TransitionRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	action, err := models.ParseAction(strings.TrimSpace(r.Action))
	if err != nil {
		return err
	}
	r.Comments = strings.TrimSpace(r.Comments)
	if err := models.ValidateComment(r.Comments); err != nil {
		return err
	}
	r.parsedAction = action
	return nil
}

func (r *TransitionRequest) ParsedAction() models.Action {
	return r.parsedAction
}

// stageActions lists the actions each stage-specific route accepts.
var stageActions = map[models.Stage][]models.Action{
	models.StageReview:   {models.ActionVerify, models.ActionReject},
	models.StageDecision: {models.ActionApprove, models.ActionReject},
}

func allowedOnStage(stage models.Stage, action models.Action) bool {
	return slices.Contains(stageActions[stage], action)
}

// parseListQuery reads page, limit, status and search from the query string.
// status takes a comma-separated list; "all" or empty means no status filter.
func parseListQuery(q url.Values) (models.ListCriteria, error) {
	var c models.ListCriteria
	if v := q.Get("page"); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil || page < 1 {
			return c, dErrors.New(dErrors.CodeValidation, "page must be a positive integer")
		}
		c.Page = page
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 || limit > models.MaxPageLimit {
			return c, dErrors.New(dErrors.CodeValidation, "limit must be between 1 and 100")
		}
		c.Limit = limit
	}
	if v := strings.TrimSpace(q.Get("status")); v != "" && v != "all" {
		for _, raw := range pkgstrings.SplitList(v) {
			status, err := models.ParseStatus(raw)
			if err != nil {
				return c, err
			}
			c.Statuses = append(c.Statuses, status)
		}
	}
	search := strings.TrimSpace(q.Get("search"))
	if len(search) > 100 {
		return c, dErrors.New(dErrors.CodeValidation, "search must be at most 100 characters")
	}
	c.Search = search
	return c, nil
}
