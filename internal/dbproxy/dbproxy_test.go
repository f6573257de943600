package dbproxy

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScopedRejectsContextWithoutPlugin(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	p := New(db)
	err = p.Scoped(context.Background(), func(tx *sql.Tx) error { return nil })
	assert.Error(t, err)
}

func TestScopedSetsSearchPathBeforeQuery(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`SET LOCAL search_path = "plugin_billing", public`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`SELECT 1`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	p := New(db)
	ctx := WithPlugin(context.Background(), "billing")
	err = p.Scoped(ctx, func(tx *sql.Tx) error {
		_, execErr := tx.ExecContext(ctx, "SELECT 1")
		return execErr
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestScopedRejectsInvalidPluginID(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	p := New(db)
	ctx := WithPlugin(context.Background(), "Bad Id; DROP")
	err = p.Scoped(ctx, func(tx *sql.Tx) error { return nil })
	assert.Error(t, err)
}
