package transitionlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"loanmanager/internal/loan/models"
	"loanmanager/pkg/domain"
	"loanmanager/pkg/platform/sentinel"
	txcontext "loanmanager/pkg/platform/tx"
)

// PostgresStore writes to loan_transitions. A trigger rejects UPDATE and
// DELETE on that table, so rows are immutable once committed.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, r models.TransitionRecord) error {
	query := `
		INSERT INTO loan_transitions (
			id, application_id, action, from_status, to_status, actor_id, actor_role,
			comment, occurred_at, request_id, client_ip, user_agent
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := txcontext.Executor(ctx, s.db).ExecContext(ctx, query,
		r.ID,
		r.ApplicationID,
		string(r.Action),
		string(r.FromStatus),
		string(r.ToStatus),
		r.ActorID,
		string(r.ActorRole),
		nullString(r.Comment),
		r.OccurredAt,
		nullString(r.RequestID),
		nullString(r.ClientIP),
		nullString(r.UserAgent),
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("transition %s: %w", r.ID, sentinel.ErrAlreadyUsed)
		}
		return fmt.Errorf("append transition: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByApplication(ctx context.Context, appID domain.ApplicationID) ([]models.TransitionRecord, error) {
	query := `
		SELECT id, application_id, action, from_status, to_status, actor_id, actor_role,
			comment, occurred_at, request_id, client_ip, user_agent
		FROM loan_transitions
		WHERE application_id = $1
		ORDER BY occurred_at, id
	`
	rows, err := txcontext.Executor(ctx, s.db).QueryContext(ctx, query, appID)
	if err != nil {
		return nil, fmt.Errorf("list transitions: %w", err)
	}
	defer rows.Close()

	out := []models.TransitionRecord{}
	for rows.Next() {
		var (
			r                               models.TransitionRecord
			action, from, to, role          string
			comment, reqID, clientIP, agent sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.ApplicationID, &action, &from, &to, &r.ActorID, &role,
			&comment, &r.OccurredAt, &reqID, &clientIP, &agent); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		r.Action = models.Action(action)
		r.FromStatus = models.Status(from)
		r.ToStatus = models.Status(to)
		r.ActorRole = domain.Role(role)
		r.Comment = comment.String
		r.RequestID = reqID.String
		r.ClientIP = clientIP.String
		r.UserAgent = agent.String
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transitions: %w", err)
	}
	return out, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
