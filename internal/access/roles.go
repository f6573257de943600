package access

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/corehost/platform/internal/apierr"
)

// RoleRepo manages roles, role-rule assignments, and user-role
// membership, grounded on the teacher's role/permission tables
// (middleware/team_rbac.go uses an analogous role_permissions join).
type RoleRepo struct {
	db *sql.DB
}

func NewRoleRepo(db *sql.DB) *RoleRepo { return &RoleRepo{db: db} }

// EnsureSystemRoles idempotently seeds the four system roles named in
// spec.md §3 (admin, users, anonymous, applications). Called once at
// boot, after migration and before plugin discovery.
func (r *RoleRepo) EnsureSystemRoles(ctx context.Context) error {
	roles := []struct {
		name, description string
	}{
		{RoleAdmin, "Full platform access via the implicit wildcard rule"},
		{RoleUsers, "Default role granted to every registered local user"},
		{RoleAnonymous, "Implicit role evaluated for unauthenticated callers"},
		{RoleApplications, "Default role granted to every external application"},
	}
	for _, role := range roles {
		if _, err := r.db.ExecContext(ctx,
			`INSERT INTO role (id, name, description, is_system)
			 VALUES ($1, $2, $3, true)
			 ON CONFLICT (name) DO NOTHING`,
			uuid.New().String(), role.name, role.description); err != nil {
			return apierr.Internal(err)
		}
	}
	return nil
}

func (r *RoleRepo) GetRoleByName(ctx context.Context, name string) (*Role, error) {
	var rl Role
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, description, is_system FROM role WHERE name = $1`, name).
		Scan(&rl.ID, &rl.Name, &rl.Description, &rl.IsSystem)
	if err == sql.ErrNoRows {
		return nil, apierr.NotFound("role")
	}
	if err != nil {
		return nil, apierr.Internal(err)
	}
	return &rl, nil
}

func (r *RoleRepo) ListRoles(ctx context.Context) ([]*Role, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, description, is_system FROM role ORDER BY name`)
	if err != nil {
		return nil, apierr.Internal(err)
	}
	defer rows.Close()

	var out []*Role
	for rows.Next() {
		var rl Role
		if err := rows.Scan(&rl.ID, &rl.Name, &rl.Description, &rl.IsSystem); err != nil {
			return nil, apierr.Internal(err)
		}
		out = append(out, &rl)
	}
	return out, rows.Err()
}

// CreateRole adds a non-system, admin-defined role.
func (r *RoleRepo) CreateRole(ctx context.Context, name, description string) (*Role, error) {
	role := &Role{ID: uuid.New().String(), Name: name, Description: description}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO role (id, name, description, is_system) VALUES ($1, $2, $3, false)`,
		role.ID, role.Name, role.Description)
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeConflict, "role name already exists", err)
	}
	return role, nil
}

// DeleteRole removes a non-system role. System roles (admin, users,
// anonymous, applications) are never deletable since the host depends
// on their presence for default authorization (spec.md §4.6).
func (r *RoleRepo) DeleteRole(ctx context.Context, roleID string) error {
	var isSystem bool
	if err := r.db.QueryRowContext(ctx, `SELECT is_system FROM role WHERE id = $1`, roleID).Scan(&isSystem); err != nil {
		if err == sql.ErrNoRows {
			return apierr.NotFound("role")
		}
		return apierr.Internal(err)
	}
	if isSystem {
		return apierr.Forbidden("system roles cannot be deleted")
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM role WHERE id = $1`, roleID); err != nil {
		return apierr.Internal(err)
	}
	return nil
}

// UserHasRole reports whether userID currently holds roleID. internal/httpapi
// calls this before letting a caller modify, delete, or assign a role, to
// block self-escalation (spec.md §8 scenario 6): a caller already holding a
// role cannot edit its rule set, delete it, or grant/revoke it, since any of
// those would let them change their own effective access.
func (r *RoleRepo) UserHasRole(ctx context.Context, userID, roleID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM user_role WHERE user_id = $1 AND role_id = $2)`,
		userID, roleID).Scan(&exists)
	if err != nil {
		return false, apierr.Internal(err)
	}
	return exists, nil
}

// AssignRole grants roleID to userID. Self-escalation protection (see
// UserHasRole) is enforced at the handler layer in internal/httpapi before
// this is called; this repo method performs the write unconditionally.
func (r *RoleRepo) AssignRole(ctx context.Context, userID, roleID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO user_role (user_id, role_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		userID, roleID)
	if err != nil {
		return apierr.Internal(err)
	}
	return nil
}

func (r *RoleRepo) RevokeRole(ctx context.Context, userID, roleID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM user_role WHERE user_id = $1 AND role_id = $2`, userID, roleID)
	if err != nil {
		return apierr.Internal(err)
	}
	return nil
}

// SetRoleRules replaces the full set of access rules granted to a
// non-system role. System roles are refused with FORBIDDEN; their rule
// assignments are owned by rule sync (see sync.go).
func (r *RoleRepo) SetRoleRules(ctx context.Context, roleID string, ruleIDs []string) error {
	var isSystem bool
	if err := r.db.QueryRowContext(ctx, `SELECT is_system FROM role WHERE id = $1`, roleID).Scan(&isSystem); err != nil {
		if err == sql.ErrNoRows {
			return apierr.NotFound("role")
		}
		return apierr.Internal(err)
	}
	if isSystem {
		return apierr.Forbidden("system role access rules cannot be edited")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return apierr.Internal(err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM role_access_rule WHERE role_id = $1`, roleID); err != nil {
		return apierr.Internal(err)
	}
	for _, ruleID := range ruleIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO role_access_rule (role_id, access_rule_id) VALUES ($1, $2)`,
			roleID, ruleID); err != nil {
			return apierr.Wrap(apierr.CodeUnregisteredRule, "rule id does not exist", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return apierr.Internal(err)
	}
	return nil
}

// RuleSetForRole returns the access rules granted directly to a role,
// used for the anonymous role which has no user_role membership row.
func (r *RoleRepo) RuleSetForRole(ctx context.Context, roleID string) (map[string]struct{}, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT access_rule_id FROM role_access_rule WHERE role_id = $1`, roleID)
	if err != nil {
		return nil, apierr.Internal(err)
	}
	defer rows.Close()

	rules := map[string]struct{}{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, apierr.Internal(err)
		}
		rules[id] = struct{}{}
	}
	return rules, rows.Err()
}

// ResolveUserAccessRules returns the union of every access rule granted
// to userID through all roles it holds, plus the admin wildcard if the
// admin role is among them (spec.md §4.6.3).
func (r *RoleRepo) ResolveUserAccessRules(ctx context.Context, userID string) (map[string]struct{}, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT rar.access_rule_id, rl.name
		 FROM user_role ur
		 JOIN role rl ON rl.id = ur.role_id
		 LEFT JOIN role_access_rule rar ON rar.role_id = rl.id
		 WHERE ur.user_id = $1`, userID)
	if err != nil {
		return nil, apierr.Internal(err)
	}
	defer rows.Close()

	rules := map[string]struct{}{}
	for rows.Next() {
		var ruleID sql.NullString
		var roleName string
		if err := rows.Scan(&ruleID, &roleName); err != nil {
			return nil, apierr.Internal(err)
		}
		if roleName == RoleAdmin {
			rules[WildcardRule] = struct{}{}
		}
		if ruleID.Valid {
			rules[ruleID.String] = struct{}{}
		}
	}
	return rules, rows.Err()
}
