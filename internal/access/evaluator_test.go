package access

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/corehost/platform/internal/cache"
)

func newEvaluatorUnderTest(t *testing.T) (*Evaluator, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	noCache, err := cache.New(cache.Config{Enabled: false})
	require.NoError(t, err)

	eval := NewEvaluator(NewRoleRepo(db), NewApplicationRepo(db), NewTeamRepo(db), noCache)
	return eval, mock
}

func TestCanAccessResourceGlobalRuleGrantsWhenNotTeamOnly(t *testing.T) {
	eval, mock := newEvaluatorUnderTest(t)

	mock.ExpectQuery(`SELECT team_only FROM resource_settings`).
		WillReturnRows(sqlmock.NewRows([]string{"team_only"}).AddRow(false))
	mock.ExpectQuery(`SELECT resource_type, resource_id, team_id, can_read, can_manage`).
		WillReturnRows(sqlmock.NewRows([]string{"resource_type", "resource_id", "team_id", "can_read", "can_manage"}).
			AddRow("widgets", "w1", "some-team", false, false))

	caller := &Caller{AccessRules: map[string]struct{}{"widgets.read": {}}, TeamIDs: map[string]struct{}{}}
	ok, err := eval.CanAccessResource(context.Background(), caller, "widgets", "w1", false)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCanAccessResourceTeamOnlyWithNoGrantsFallsBackToGlobalRule(t *testing.T) {
	eval, mock := newEvaluatorUnderTest(t)

	mock.ExpectQuery(`SELECT team_only FROM resource_settings`).
		WillReturnRows(sqlmock.NewRows([]string{"team_only"}).AddRow(true))
	mock.ExpectQuery(`SELECT resource_type, resource_id, team_id, can_read, can_manage`).
		WillReturnRows(sqlmock.NewRows([]string{"resource_type", "resource_id", "team_id", "can_read", "can_manage"}))

	caller := &Caller{AccessRules: map[string]struct{}{"widgets.read": {}}, TeamIDs: map[string]struct{}{}}
	ok, err := eval.CanAccessResource(context.Background(), caller, "widgets", "w1", false)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCanAccessResourceTeamOnlyDeniesGlobalRuleHolderOnceGrantsExist(t *testing.T) {
	eval, mock := newEvaluatorUnderTest(t)

	mock.ExpectQuery(`SELECT team_only FROM resource_settings`).
		WillReturnRows(sqlmock.NewRows([]string{"team_only"}).AddRow(true))
	mock.ExpectQuery(`SELECT resource_type, resource_id, team_id, can_read, can_manage`).
		WillReturnRows(sqlmock.NewRows([]string{"resource_type", "resource_id", "team_id", "can_read", "can_manage"}).
			AddRow("widgets", "w1", "some-other-team", true, false))

	caller := &Caller{AccessRules: map[string]struct{}{"widgets.read": {}}, TeamIDs: map[string]struct{}{}}
	ok, err := eval.CanAccessResource(context.Background(), caller, "widgets", "w1", false)
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCanAccessResourceTeamGrantReadOnlyAllowsRead(t *testing.T) {
	eval, mock := newEvaluatorUnderTest(t)

	mock.ExpectQuery(`SELECT team_only FROM resource_settings`).
		WillReturnRows(sqlmock.NewRows([]string{"team_only"}).AddRow(true))
	mock.ExpectQuery(`SELECT resource_type, resource_id, team_id, can_read, can_manage`).
		WillReturnRows(sqlmock.NewRows([]string{"resource_type", "resource_id", "team_id", "can_read", "can_manage"}).
			AddRow("widgets", "w1", "team-1", true, false))

	caller := &Caller{AccessRules: map[string]struct{}{}, TeamIDs: map[string]struct{}{"team-1": {}}}

	readOK, err := eval.CanAccessResource(context.Background(), caller, "widgets", "w1", false)
	require.NoError(t, err)
	require.True(t, readOK)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCanAccessResourceTeamGrantReadOnlyDeniesManage(t *testing.T) {
	eval, mock := newEvaluatorUnderTest(t)

	mock.ExpectQuery(`SELECT team_only FROM resource_settings`).
		WillReturnRows(sqlmock.NewRows([]string{"team_only"}).AddRow(true))
	mock.ExpectQuery(`SELECT resource_type, resource_id, team_id, can_read, can_manage`).
		WillReturnRows(sqlmock.NewRows([]string{"resource_type", "resource_id", "team_id", "can_read", "can_manage"}).
			AddRow("widgets", "w1", "team-1", true, false))

	caller := &Caller{AccessRules: map[string]struct{}{}, TeamIDs: map[string]struct{}{"team-1": {}}}

	manageOK, err := eval.CanAccessResource(context.Background(), caller, "widgets", "w1", true)
	require.NoError(t, err)
	require.False(t, manageOK)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCanAccessResourceAdminWildcardGrantsManageWhenNotTeamOnly(t *testing.T) {
	eval, mock := newEvaluatorUnderTest(t)

	mock.ExpectQuery(`SELECT team_only FROM resource_settings`).
		WillReturnRows(sqlmock.NewRows([]string{"team_only"}).AddRow(false))
	mock.ExpectQuery(`SELECT resource_type, resource_id, team_id, can_read, can_manage`).
		WillReturnRows(sqlmock.NewRows([]string{"resource_type", "resource_id", "team_id", "can_read", "can_manage"}).
			AddRow("widgets", "w1", "some-team", false, false))

	caller := &Caller{AccessRules: map[string]struct{}{WildcardRule: {}}, TeamIDs: map[string]struct{}{}}
	ok, err := eval.CanAccessResource(context.Background(), caller, "widgets", "w1", true)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInvalidateAnonymousRulesClearsCache(t *testing.T) {
	eval, _ := newEvaluatorUnderTest(t)
	eval.anonRules = map[string]struct{}{"stale.rule": {}}
	eval.InvalidateAnonymousRules()
	require.Nil(t, eval.anonRules)
}
