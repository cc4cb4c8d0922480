package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	id "loanmanager/pkg/domain"
	audit "loanmanager/pkg/platform/audit"
	txcontext "loanmanager/pkg/platform/tx"
)

func TestStore_Append(t *testing.T) {
	userID := id.NewUserID()
	event := audit.Event{
		Timestamp:     time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		UserID:        userID,
		AggregateType: "loan_application",
		AggregateID:   "app-1",
		Action:        string(audit.EventLoanVerified),
		ActorID:       "verifier-1",
	}

	t.Run("writes outbox row", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectExec(`INSERT INTO outbox`).
			WithArgs(sqlmock.AnyArg(), "loan_application", "app-1", "loan_verified", sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, New(db).Append(context.Background(), event))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("joins transaction from context", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO outbox`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectRollback()

		tx, err := db.Begin()
		require.NoError(t, err)
		ctx := txcontext.WithTx(context.Background(), tx)
		require.NoError(t, New(db).Append(ctx, event))
		require.NoError(t, tx.Rollback())
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("falls back to user aggregate", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectExec(`INSERT INTO outbox`).
			WithArgs(sqlmock.AnyArg(), "user", userID.String(), "user_registered", sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err = New(db).Append(context.Background(), audit.Event{UserID: userID, Action: string(audit.EventUserRegistered)})
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("wraps insert failure", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectExec(`INSERT INTO outbox`).WillReturnError(errors.New("conn reset"))

		err = New(db).Append(context.Background(), event)
		require.ErrorContains(t, err, "insert outbox entry")
	})
}
