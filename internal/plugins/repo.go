package plugins

import (
	"context"
	"database/sql"

	"github.com/corehost/platform/internal/apierr"
)

// PluginManifest is a row in the plugin table (spec.md §3): every
// built-in plugin discovered at boot and every remotely installed
// plugin gets an entry, giving /api/plugins a single place to read
// "what's enabled" from without walking the in-memory Handler set.
type PluginManifest struct {
	Name            string
	Path            string
	Type            string
	Enabled         bool
	IsUninstallable bool
}

// PluginRepo owns the plugin table, grounded on the teacher's
// idempotent-migration idiom (db/database.go) applied here to a single
// row per plugin instead of a schema: Upsert runs once per plugin on
// every boot (and once more on a dynamic Install), always writing the
// Handler's current manifest rather than trusting a stale row left
// over from a previous boot.
type PluginRepo struct {
	db *sql.DB
}

func NewPluginRepo(db *sql.DB) *PluginRepo { return &PluginRepo{db: db} }

// Upsert records or updates a plugin's manifest row - created on first
// discovery/install, updated on every later boot in case its declared
// Path or Type changed (spec.md §3: "updated on rename").
func (r *PluginRepo) Upsert(ctx context.Context, m PluginManifest) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO plugin (name, path, type, enabled, is_uninstallable, updated_at)
		 VALUES ($1, $2, $3, $4, $5, now())
		 ON CONFLICT (name) DO UPDATE SET
		   path = $2,
		   type = $3,
		   enabled = $4,
		   is_uninstallable = $5,
		   updated_at = now()`,
		m.Name, m.Path, m.Type, m.Enabled, m.IsUninstallable)
	if err != nil {
		return apierr.Internal(err)
	}
	return nil
}

// Delete removes a plugin's manifest row. Only called for a plugin
// uninstalled via a remote Install, never for a built-in discovered
// through RegisterBuiltins (spec.md §3: "deleted only for remote
// plugins on uninstall") - a built-in is compiled into the binary and
// will simply reappear at the next boot, so its row should outlive a
// momentary absence from one boot's registration set.
func (r *PluginRepo) Delete(ctx context.Context, name string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM plugin WHERE name = $1`, name)
	if err != nil {
		return apierr.Internal(err)
	}
	return nil
}

// EnabledFrontendManifest returns the enabled frontend plugins manifest
// the core serves at GET /api/plugins (spec.md §6): [{name, path}]. It
// filters on type and enabled only; built-in and remotely installed
// plugins are listed alike.
func (r *PluginRepo) EnabledFrontendManifest(ctx context.Context) ([]PluginManifest, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT name, path, type, enabled, is_uninstallable FROM plugin
		 WHERE enabled = true AND type = 'frontend' ORDER BY name`)
	if err != nil {
		return nil, apierr.Internal(err)
	}
	defer rows.Close()

	var out []PluginManifest
	for rows.Next() {
		var m PluginManifest
		if err := rows.Scan(&m.Name, &m.Path, &m.Type, &m.Enabled, &m.IsUninstallable); err != nil {
			return nil, apierr.Internal(err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
