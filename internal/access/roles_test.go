package access

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func TestUserHasRoleReportsMembership(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRoleRepo(db)

	mock.ExpectQuery(`SELECT EXISTS\(SELECT 1 FROM user_role WHERE user_id = \$1 AND role_id = \$2\)`).
		WithArgs("u1", "r1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	holds, err := repo.UserHasRole(context.Background(), "u1", "r1")
	require.NoError(t, err)
	require.True(t, holds)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserHasRoleReportsNonMembership(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRoleRepo(db)

	mock.ExpectQuery(`SELECT EXISTS\(SELECT 1 FROM user_role WHERE user_id = \$1 AND role_id = \$2\)`).
		WithArgs("u1", "r2").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	holds, err := repo.UserHasRole(context.Background(), "u1", "r2")
	require.NoError(t, err)
	require.False(t, holds)
	require.NoError(t, mock.ExpectationsWereMet())
}
