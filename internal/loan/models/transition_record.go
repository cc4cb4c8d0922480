package models

import (
	"time"

	"loanmanager/pkg/domain"
)

// TransitionRecord is one entry of an application's append-only history.
type TransitionRecord struct {
	ID            domain.TransitionID  `json:"id"`
	ApplicationID domain.ApplicationID `json:"application_id"`
	Action        Action               `json:"action"`
	FromStatus    Status               `json:"from_status"`
	ToStatus      Status               `json:"to_status"`
	ActorID       domain.UserID        `json:"actor_id"`
	ActorRole     domain.Role          `json:"actor_role"`
	Comment       string               `json:"comment,omitempty"`
	OccurredAt    time.Time            `json:"occurred_at"`
	RequestID     string               `json:"request_id,omitempty"`
	ClientIP      string               `json:"client_ip,omitempty"`
	UserAgent     string               `json:"user_agent,omitempty"`
}

// ListCriteria filters and pages application listings. A nil OwnerID lists
// every applicant; empty Statuses lists every status.
type ListCriteria struct {
	OwnerID  *domain.UserID
	Statuses []Status
	Search   string
	Page     int
	Limit    int
}

const (
	DefaultPageLimit = 10
	MaxPageLimit     = 100
)

// Normalize clamps paging to valid bounds.
func (c ListCriteria) Normalize() ListCriteria {
	if c.Page < 1 {
		c.Page = 1
	}
	if c.Limit < 1 {
		c.Limit = DefaultPageLimit
	}
	if c.Limit > MaxPageLimit {
		c.Limit = MaxPageLimit
	}
	return c
}

// Offset is the zero-based index of the first row on the page.
func (c ListCriteria) Offset() int {
	return (c.Page - 1) * c.Limit
}

// Page is one page of applications plus pagination metadata.
type Page struct {
	Applications []*Application `json:"applications"`
	Pagination   Pagination     `json:"pagination"`
}

type Pagination struct {
	CurrentPage int  `json:"current_page"`
	TotalPages  int  `json:"total_pages"`
	Total       int  `json:"total"`
	HasNext     bool `json:"has_next"`
	HasPrev     bool `json:"has_prev"`
}

// NewPagination derives page metadata from a total row count.
func NewPagination(page, limit, total int) Pagination {
	totalPages := 0
	if limit > 0 {
		totalPages = (total + limit - 1) / limit
	}
	return Pagination{
		CurrentPage: page,
		TotalPages:  totalPages,
		Total:       total,
		HasNext:     page < totalPages,
		HasPrev:     page > 1,
	}
}
