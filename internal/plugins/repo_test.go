package plugins

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func TestPluginRepoUpsertWritesManifest(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPluginRepo(db)
	mock.ExpectExec(`INSERT INTO plugin`).
		WithArgs("billing", "/plugins/billing", "backend", true, false).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = repo.Upsert(context.Background(), PluginManifest{
		Name: "billing", Path: "/plugins/billing", Type: "backend", Enabled: true,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPluginRepoDeleteRemovesRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPluginRepo(db)
	mock.ExpectExec(`DELETE FROM plugin WHERE name = \$1`).
		WithArgs("billing").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = repo.Delete(context.Background(), "billing")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPluginRepoEnabledFrontendManifestFiltersByTypeAndEnabled(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPluginRepo(db)
	mock.ExpectQuery(`SELECT name, path, type, enabled, is_uninstallable FROM plugin`).
		WillReturnRows(sqlmock.NewRows([]string{"name", "path", "type", "enabled", "is_uninstallable"}).
			AddRow("dashboard", "/plugins/dashboard", "frontend", true, false))

	manifests, err := repo.EnabledFrontendManifest(context.Background())
	require.NoError(t, err)
	require.Len(t, manifests, 1)
	require.Equal(t, "dashboard", manifests[0].Name)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOpenAPISourcesAggregatesDeclaredRulesPerInstalledPlugin(t *testing.T) {
	m := &Manager{
		handlers: map[string]Handler{
			"billing": &stubAccessRuleHandler{stubHandler: stubHandler{id: "billing"}, rules: []AccessRuleDecl{
				{Local: "read", Description: "read billing records"},
			}},
		},
		order: []string{"billing"},
	}

	docs := m.OpenAPISources()()
	require.Len(t, docs, 1)
	require.Equal(t, "billing", docs[0].PluginID)
	require.Equal(t, "billing.read", docs[0].AccessRule)
	require.Equal(t, "/api/billing/read", docs[0].Path)
}

type stubAccessRuleHandler struct {
	stubHandler
	rules []AccessRuleDecl
}

func (s *stubAccessRuleHandler) RegisterAccessRules() []AccessRuleDecl { return s.rules }
