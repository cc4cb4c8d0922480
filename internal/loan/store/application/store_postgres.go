package application

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"

	"loanmanager/internal/loan/models"
	"loanmanager/pkg/domain"
	"loanmanager/pkg/platform/sentinel"
	txcontext "loanmanager/pkg/platform/tx"
)

// PostgresStore persists applications in loan_applications. Every query runs
// on the transaction carried by ctx when there is one.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const applicationColumns = `
	id, applicant_id, first_name, last_name, employment_status, employment_address,
	reason_for_loan, requested_amount, status,
	verified_by, verification_date, approved_by, approval_date, rejected_by, rejection_date,
	comments, version, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, app *models.Application) error {
	query := `
		INSERT INTO loan_applications (` + applicationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`
	_, err := txcontext.Executor(ctx, s.db).ExecContext(ctx, query,
		app.ID,
		app.ApplicantID,
		app.FirstName,
		app.LastName,
		string(app.EmploymentStatus),
		app.EmploymentAddress,
		app.ReasonForLoan,
		app.RequestedAmount,
		string(app.Status),
		app.VerifiedBy,
		app.VerificationDate,
		app.ApprovedBy,
		app.ApprovalDate,
		app.RejectedBy,
		app.RejectionDate,
		nullString(app.Comments),
		app.Version,
		app.CreatedAt,
		app.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("application %s: %w", app.ID, sentinel.ErrAlreadyUsed)
		}
		return fmt.Errorf("insert application: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id domain.ApplicationID) (*models.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM loan_applications WHERE id = $1`
	app, err := scanApplication(txcontext.Executor(ctx, s.db).QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find application: %w", err)
	}
	return app, nil
}

// UpdateIf re-reads the row, applies mutate, and writes it back with a
// guarded UPDATE. The WHERE clause repeats the expected status and version, so
// a writer that committed in between makes the UPDATE match zero rows and
// the caller gets sentinel.ErrConflict.
func (s *PostgresStore) UpdateIf(
	ctx context.Context,
	id domain.ApplicationID,
	expectedStatus models.Status,
	expectedVersion int64,
	mutate func(*models.Application) error,
) (*models.Application, error) {
	current, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status != expectedStatus || current.Version != expectedVersion {
		return nil, sentinel.ErrConflict
	}
	if err := mutate(current); err != nil {
		return nil, err
	}
	current.Version = expectedVersion + 1

	query := `
		UPDATE loan_applications
		SET status = $1,
			verified_by = $2, verification_date = $3,
			approved_by = $4, approval_date = $5,
			rejected_by = $6, rejection_date = $7,
			comments = $8, version = $9, updated_at = $10
		WHERE id = $11 AND status = $12 AND version = $13
	`
	res, err := txcontext.Executor(ctx, s.db).ExecContext(ctx, query,
		string(current.Status),
		current.VerifiedBy, current.VerificationDate,
		current.ApprovedBy, current.ApprovalDate,
		current.RejectedBy, current.RejectionDate,
		nullString(current.Comments),
		current.Version,
		current.UpdatedAt,
		id,
		string(expectedStatus),
		expectedVersion,
	)
	if err != nil {
		return nil, fmt.Errorf("update application: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update application rows affected: %w", err)
	}
	if rows == 0 {
		return nil, sentinel.ErrConflict
	}
	return current, nil
}

func (s *PostgresStore) List(ctx context.Context, criteria models.ListCriteria) ([]*models.Application, int, error) {
	criteria = criteria.Normalize()

	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if criteria.OwnerID != nil {
		conds = append(conds, "applicant_id = "+arg(*criteria.OwnerID))
	}
	if len(criteria.Statuses) > 0 {
		statuses := make([]string, len(criteria.Statuses))
		for i, st := range criteria.Statuses {
			statuses[i] = string(st)
		}
		conds = append(conds, "status = ANY("+arg(pq.Array(statuses))+")")
	}
	if search := strings.TrimSpace(criteria.Search); search != "" {
		p := arg("%" + escapeLike(search) + "%")
		conds = append(conds, "(first_name ILIKE "+p+" OR last_name ILIKE "+p+" OR reason_for_loan ILIKE "+p+")")
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	exec := txcontext.Executor(ctx, s.db)

	var total int
	if err := exec.QueryRowContext(ctx, "SELECT COUNT(*) FROM loan_applications"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count applications: %w", err)
	}

	query := "SELECT " + applicationColumns + " FROM loan_applications" + where +
		" ORDER BY created_at DESC, id LIMIT " + arg(criteria.Limit) + " OFFSET " + arg(criteria.Offset())
	rows, err := exec.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list applications: %w", err)
	}
	defer rows.Close()

	apps := make([]*models.Application, 0, criteria.Limit)
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan application: %w", err)
		}
		apps = append(apps, app)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate applications: %w", err)
	}
	return apps, total, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanApplication(row rowScanner) (*models.Application, error) {
	var (
		app              models.Application
		employment       string
		status           string
		verifiedBy       domain.UserID
		approvedBy       domain.UserID
		rejectedBy       domain.UserID
		verificationDate sql.NullTime
		approvalDate     sql.NullTime
		rejectionDate    sql.NullTime
		comments         sql.NullString
	)
	err := row.Scan(
		&app.ID, &app.ApplicantID, &app.FirstName, &app.LastName, &employment, &app.EmploymentAddress,
		&app.ReasonForLoan, &app.RequestedAmount, &status,
		&verifiedBy, &verificationDate, &approvedBy, &approvalDate, &rejectedBy, &rejectionDate,
		&comments, &app.Version, &app.CreatedAt, &app.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	app.EmploymentStatus = models.EmploymentStatus(employment)
	app.Status = models.Status(status)
	app.VerifiedBy, app.VerificationDate = optionalPair(verifiedBy, verificationDate)
	app.ApprovedBy, app.ApprovalDate = optionalPair(approvedBy, approvalDate)
	app.RejectedBy, app.RejectionDate = optionalPair(rejectedBy, rejectionDate)
	app.Comments = comments.String
	return &app, nil
}

func optionalPair(by domain.UserID, at sql.NullTime) (*domain.UserID, *time.Time) {
	if by.IsNil() || !at.Valid {
		return nil, nil
	}
	t := at.Time
	return &by, &t
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// escapeLike neutralizes LIKE wildcards in user search input.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
