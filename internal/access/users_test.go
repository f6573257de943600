package access

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func TestDeleteUserCascadesSessionAndAccountBeforeUserRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewUserRepo(db, nil)
	userID := "u1"

	mock.ExpectQuery(`SELECT count\(\*\) FROM user_role`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM session WHERE user_id = \$1`).
		WithArgs(userID).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM account WHERE user_id = \$1`).
		WithArgs(userID).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM "user" WHERE id = \$1`).
		WithArgs(userID).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = repo.DeleteUser(context.Background(), userID)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteUserRefusesInitialAdmin(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewUserRepo(db, nil)
	err = repo.DeleteUser(context.Background(), InitialAdminID)
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteUserRefusesAdminRoleHolder(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewUserRepo(db, nil)
	mock.ExpectQuery(`SELECT count\(\*\) FROM user_role`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	err = repo.DeleteUser(context.Background(), "some-admin")
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
