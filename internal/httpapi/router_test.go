package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/corehost/platform/internal/access"
	"github.com/corehost/platform/internal/auth"
	"github.com/corehost/platform/internal/cache"
)

func newTestDeps(t *testing.T) (Deps, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	users := access.NewUserRepo(db, nil)
	roles := access.NewRoleRepo(db)
	teams := access.NewTeamRepo(db)
	applications := access.NewApplicationRepo(db)
	onboarding := access.NewOnboardingRepo(db, users, roles)
	evaluator := access.NewEvaluator(roles, applications, teams, disabledCache(t))

	serviceTokens, err := auth.NewServiceTokenIssuer(5 * time.Minute)
	require.NoError(t, err)
	sessions := auth.NewSessionStore(db)
	authenticator := auth.NewAuthenticator(serviceTokens, applications, evaluator, auth.NewSessionStrategy(sessions))

	return Deps{
		Authenticator: authenticator,
		ServiceIssuer: serviceTokens,
		Sessions:      sessions,
		Users:         users,
		Roles:         roles,
		Teams:         teams,
		Applications:  applications,
		Onboarding:    onboarding,
		Evaluator:     evaluator,
	}, mock
}

func disabledCache(t *testing.T) cache.Cache {
	t.Helper()
	c, err := cache.New(cache.Config{Enabled: false})
	require.NoError(t, err)
	return c
}

// expectAnonymousCaller queues the two lookups auth.Middleware makes to
// resolve a request without credentials: the anonymous role, then its
// rule set (empty here).
func expectAnonymousCaller(mock sqlmock.Sqlmock) {
	mock.ExpectQuery(`SELECT id, name, description, is_system FROM role WHERE name`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "description", "is_system"}).AddRow("anon-role", "anonymous", "", true))
	mock.ExpectQuery(`SELECT access_rule_id FROM role_access_rule`).
		WillReturnRows(sqlmock.NewRows([]string{"access_rule_id"}))
}

func TestHealthEndpoint(t *testing.T) {
	deps, mock := newTestDeps(t)
	router := New(deps)
	expectAnonymousCaller(mock)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestJWKSEndpoint(t *testing.T) {
	deps, mock := newTestDeps(t)
	router := New(deps)
	expectAnonymousCaller(mock)

	req := httptest.NewRequest(http.MethodGet, "/.well-known/jwks.json", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestOnboardingStatusQueriesDatabase(t *testing.T) {
	deps, mock := newTestDeps(t)
	router := New(deps)

	expectAnonymousCaller(mock)
	mock.ExpectQuery(`SELECT count\(\*\) FROM user_role`).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	req := httptest.NewRequest(http.MethodGet, "/api/onboarding/status", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProtectedRouteRejectsAnonymous(t *testing.T) {
	deps, mock := newTestDeps(t)
	router := New(deps)
	expectAnonymousCaller(mock)

	req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
}
