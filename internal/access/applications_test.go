package access

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestParseTokenRejectsMalformedInput(t *testing.T) {
	_, _, ok := ParseToken("not-a-token")
	assert.False(t, ok)

	_, _, ok = ParseToken("ck_not-a-uuid_secret")
	assert.False(t, ok)

	_, _, ok = ParseToken("wrong_" + uuid.NewString() + "_secret")
	assert.False(t, ok)
}

func TestParseTokenAcceptsWellFormedToken(t *testing.T) {
	id := uuid.NewString()
	appID, secret, ok := ParseToken("ck_" + id + "_s3cret")
	require.True(t, ok)
	assert.Equal(t, id, appID)
	assert.Equal(t, "s3cret", secret)
}

func TestVerifyTokenRejectsWrongSecret(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	appID := uuid.NewString()
	hash, err := bcrypt.GenerateFromPassword([]byte("correct-secret"), bcrypt.DefaultCost)
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT id, name, secret_hash, created_at FROM application`).
		WithArgs(appID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "secret_hash", "created_at"}).
			AddRow(appID, "my-app", string(hash), time.Now()))

	repo := NewApplicationRepo(db)
	_, err = repo.VerifyToken(context.Background(), "ck_"+appID+"_wrong-secret")
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVerifyTokenAcceptsMatchingSecretAndTouchesLastUsed(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	appID := uuid.NewString()
	hash, err := bcrypt.GenerateFromPassword([]byte("correct-secret"), bcrypt.DefaultCost)
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT id, name, secret_hash, created_at FROM application`).
		WithArgs(appID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "secret_hash", "created_at"}).
			AddRow(appID, "my-app", string(hash), time.Now()))
	mock.ExpectExec(`UPDATE application SET last_used_at`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewApplicationRepo(db)
	app, err := repo.VerifyToken(context.Background(), "ck_"+appID+"_correct-secret")
	require.NoError(t, err)
	assert.Equal(t, appID, app.ID)
	assert.NotNil(t, app.LastUsedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}
