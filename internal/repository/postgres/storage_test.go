package postgres

import (
	"errors"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/escrow/internal/apperrors"
	"github.com/nkiryanov/escrow/internal/models"
	"github.com/nkiryanov/escrow/internal/repository"
	"github.com/nkiryanov/escrow/internal/testutil"
)

func Test_StorageInTx(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	t.Run("commit on success", func(t *testing.T) {
		inTx(t, pg.Pool, func(_ pgx.Tx, storage repository.Storage) {
			err := storage.InTx(t.Context(), func(s repository.Storage) error {
				_, err := s.User().CreateUser(t.Context(), "committed", "hashed", models.RoleUser)
				return err
			})
			require.NoError(t, err)

			_, err = storage.User().GetUserByUsername(t.Context(), "committed")
			require.NoError(t, err, "user has to be visible after nested commit")
		})
	})

	t.Run("rollback on error", func(t *testing.T) {
		inTx(t, pg.Pool, func(_ pgx.Tx, storage repository.Storage) {
			boom := errors.New("boom")

			err := storage.InTx(t.Context(), func(s repository.Storage) error {
				_, err := s.User().CreateUser(t.Context(), "rolledback", "hashed", models.RoleUser)
				require.NoError(t, err)
				return boom
			})
			require.ErrorIs(t, err, boom)

			_, err = storage.User().GetUserByUsername(t.Context(), "rolledback")
			require.ErrorIs(t, err, apperrors.ErrUserNotFound, "savepoint has to be rolled back")
		})
	})

	t.Run("outer transaction survives failed savepoint", func(t *testing.T) {
		inTx(t, pg.Pool, func(_ pgx.Tx, storage repository.Storage) {
			user := createUserWithAccount(t, storage, "saver", "10")

			err := storage.InTx(t.Context(), func(s repository.Storage) error {
				_, err := s.Account().DebitIfSufficient(t.Context(), user.ID, testutil.D(t, "100"))
				return err
			})
			require.ErrorIs(t, err, apperrors.ErrBalanceInsufficient)

			account, err := storage.Account().GetAccount(t.Context(), user.ID)
			require.NoError(t, err, "outer transaction must stay usable")
			testutil.RequireDecimal(t, "10", account.Balance)
		})
	})
}

func Test_dbError(t *testing.T) {
	tests := []struct {
		code string
		want error
	}{
		{pgerrcode.DeadlockDetected, apperrors.ErrConflict},
		{pgerrcode.SerializationFailure, apperrors.ErrConflict},
		{pgerrcode.ConnectionFailure, apperrors.ErrPersistence},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := dbError(&pgconn.PgError{Code: tt.code})

			require.ErrorIs(t, err, tt.want)
		})
	}

	require.ErrorIs(t, dbError(errors.New("conn closed")), apperrors.ErrPersistence)
}
