package access

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/corehost/platform/internal/apierr"
)

// RuleRepo owns the access_rule table and the incremental synchronization
// that reconciles it against the rules a plugin declares at register time
// (spec.md §4.6.1). There is no analogous step in the teacher, which
// hand-seeds its permission rows in migrations; this package grounds the
// "upsert now, delete what's gone" shape on the teacher's general
// CREATE-TABLE-IF-NOT-EXISTS idempotent-migration idiom (db/database.go),
// applied here to rows instead of tables.
type RuleRepo struct {
	db *sql.DB
}

func NewRuleRepo(db *sql.DB) *RuleRepo { return &RuleRepo{db: db} }

// Sync reconciles the access_rule table for one plugin against the
// rules it declares this boot. Rules present in declared but missing
// from the table are inserted; rules present in the table under this
// plugin's namespace but absent from declared are removed, and their
// role_access_rule rows go with them (ON DELETE CASCADE) - a plugin
// that stops declaring a rule stops granting it, immediately. Rows in
// the disabled-default tables for a removed rule are kept.
func (s *RuleRepo) Sync(ctx context.Context, pluginID string, declared []DeclaredRule) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apierr.Internal(err)
	}
	defer tx.Rollback()

	wanted := make(map[string]DeclaredRule, len(declared))
	for _, d := range declared {
		wanted[namespacedRuleID(pluginID, d.Local)] = d
	}

	rows, err := tx.QueryContext(ctx, `SELECT id FROM access_rule WHERE id LIKE $1`, pluginID+".%")
	if err != nil {
		return apierr.Internal(err)
	}
	existing := map[string]struct{}{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return apierr.Internal(err)
		}
		existing[id] = struct{}{}
	}
	rows.Close()

	for id, d := range wanted {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO access_rule (id, description, is_authenticated_default, is_public_default, updated_at)
			 VALUES ($1, $2, $3, $4, now())
			 ON CONFLICT (id) DO UPDATE SET
			   description = $2,
			   is_authenticated_default = $3,
			   is_public_default = $4,
			   updated_at = now()`,
			id, d.Description, d.IsAuthenticatedDefault, d.IsPublicDefault)
		if err != nil {
			return apierr.Internal(err)
		}
	}

	for id := range existing {
		if _, stillWanted := wanted[id]; stillWanted {
			continue
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM access_rule WHERE id = $1`, id); err != nil {
			return apierr.Internal(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return apierr.Internal(err)
	}
	return nil
}

func namespacedRuleID(pluginID, local string) string {
	return fmt.Sprintf("%s.%s", pluginID, local)
}

// FullSync reconciles access_rule across every currently-declared
// plugin namespace at once (spec.md §4.5.4's Phase 3 full sync): each
// namespace in declaredByPlugin is upserted/pruned the same way Sync
// does for a single plugin, and - critically - any namespace that
// still has rows in access_rule but is absent from declaredByPlugin
// entirely has every one of its rules removed too. A plugin that is
// simply left out of this boot's registration set (not explicitly
// uninstalled) still loses its granted rules this way, instead of
// leaving orphaned RoleAccessRule rows behind forever.
func (s *RuleRepo) FullSync(ctx context.Context, declaredByPlugin map[string][]DeclaredRule) error {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT split_part(id, '.', 1) FROM access_rule`)
	if err != nil {
		return apierr.Internal(err)
	}
	var known []string
	for rows.Next() {
		var pluginID string
		if err := rows.Scan(&pluginID); err != nil {
			rows.Close()
			return apierr.Internal(err)
		}
		known = append(known, pluginID)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return apierr.Internal(err)
	}
	rows.Close()

	for pluginID, declared := range declaredByPlugin {
		if err := s.Sync(ctx, pluginID, declared); err != nil {
			return err
		}
	}

	for _, pluginID := range known {
		if _, stillDeclared := declaredByPlugin[pluginID]; stillDeclared {
			continue
		}
		if err := s.DeregisterPlugin(ctx, pluginID); err != nil {
			return err
		}
	}

	return nil
}

// ApplyDefaults grants every rule declared IsAuthenticatedDefault to the
// "users" role and every rule declared IsPublicDefault to the
// "anonymous" role, skipping any rule an admin has since disabled via
// DisabledDefaultAccessRule / DisabledPublicDefaultAccessRule (spec.md
// §3, §4.6.1). Called once per plugin immediately after Sync.
func (s *RuleRepo) ApplyDefaults(ctx context.Context, pluginID string, declared []DeclaredRule, usersRoleID, anonymousRoleID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apierr.Internal(err)
	}
	defer tx.Rollback()

	for _, d := range declared {
		ruleID := namespacedRuleID(pluginID, d.Local)

		if d.IsAuthenticatedDefault {
			disabled, err := ruleDisabled(ctx, tx, "disabled_default_access_rule", ruleID)
			if err != nil {
				return err
			}
			if !disabled {
				if _, err := tx.ExecContext(ctx,
					`INSERT INTO role_access_rule (role_id, access_rule_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
					usersRoleID, ruleID); err != nil {
					return apierr.Internal(err)
				}
			}
		}

		if d.IsPublicDefault {
			disabled, err := ruleDisabled(ctx, tx, "disabled_public_default_access_rule", ruleID)
			if err != nil {
				return err
			}
			if !disabled {
				if _, err := tx.ExecContext(ctx,
					`INSERT INTO role_access_rule (role_id, access_rule_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
					anonymousRoleID, ruleID); err != nil {
					return apierr.Internal(err)
				}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return apierr.Internal(err)
	}
	return nil
}

func ruleDisabled(ctx context.Context, tx *sql.Tx, table, ruleID string) (bool, error) {
	var count int
	err := tx.QueryRowContext(ctx, fmt.Sprintf(`SELECT count(*) FROM %s WHERE access_rule_id = $1`, table), ruleID).Scan(&count)
	if err != nil {
		return false, apierr.Internal(err)
	}
	return count > 0, nil
}

// DisableDefault marks a default/public-default rule as admin-disabled,
// so future ApplyDefaults calls (including at next boot, re-discovering
// the same plugin) skip re-granting it.
func (s *RuleRepo) DisableDefault(ctx context.Context, ruleID string, public bool) error {
	table := "disabled_default_access_rule"
	if public {
		table = "disabled_public_default_access_rule"
	}
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (access_rule_id) VALUES ($1) ON CONFLICT DO NOTHING`, table), ruleID)
	if err != nil {
		return apierr.Internal(err)
	}
	return nil
}

// EnableDefault clears an admin-disabled default, restoring it to the
// auto-granted state the next time ApplyDefaults runs for its plugin.
func (s *RuleRepo) EnableDefault(ctx context.Context, ruleID string, public bool) error {
	table := "disabled_default_access_rule"
	if public {
		table = "disabled_public_default_access_rule"
	}
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE access_rule_id = $1`, table), ruleID)
	if err != nil {
		return apierr.Internal(err)
	}
	return nil
}

// DeregisterPlugin removes every access rule namespaced to pluginID,
// called when a plugin is uninstalled (spec.md §4.5.5's uninstall flow).
func (s *RuleRepo) DeregisterPlugin(ctx context.Context, pluginID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM access_rule WHERE id LIKE $1`, pluginID+".%")
	if err != nil {
		return apierr.Internal(err)
	}
	return nil
}
