package access

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/corehost/platform/internal/apierr"
)

// TeamRepo manages teams, their membership, and team-scoped resource
// grants, grounded on the teacher's team_rbac.go permission-checking
// shape but backed by spec.md §3's team/user_team/resource_team_access
// tables instead of the teacher's groups/team_role_permissions model.
type TeamRepo struct {
	db *sql.DB
}

func NewTeamRepo(db *sql.DB) *TeamRepo { return &TeamRepo{db: db} }

func (r *TeamRepo) CreateTeam(ctx context.Context, name, description string) (*Team, error) {
	team := &Team{ID: uuid.New().String(), Name: name, Description: description}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO team (id, name, description) VALUES ($1, $2, $3)`,
		team.ID, team.Name, team.Description)
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeConflict, "team name already exists", err)
	}
	return team, nil
}

func (r *TeamRepo) DeleteTeam(ctx context.Context, teamID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM team WHERE id = $1`, teamID)
	if err != nil {
		return apierr.Internal(err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apierr.NotFound("team")
	}
	return nil
}

func (r *TeamRepo) GetTeam(ctx context.Context, teamID string) (*Team, error) {
	var t Team
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, description FROM team WHERE id = $1`, teamID).
		Scan(&t.ID, &t.Name, &t.Description)
	if err == sql.ErrNoRows {
		return nil, apierr.NotFound("team")
	}
	if err != nil {
		return nil, apierr.Internal(err)
	}
	return &t, nil
}

func (r *TeamRepo) ListTeams(ctx context.Context) ([]*Team, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, description FROM team ORDER BY name`)
	if err != nil {
		return nil, apierr.Internal(err)
	}
	defer rows.Close()

	var out []*Team
	for rows.Next() {
		var t Team
		if err := rows.Scan(&t.ID, &t.Name, &t.Description); err != nil {
			return nil, apierr.Internal(err)
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

// AddMember adds userID to teamID.
func (r *TeamRepo) AddMember(ctx context.Context, teamID, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO user_team (team_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		teamID, userID)
	if err != nil {
		return apierr.Internal(err)
	}
	return nil
}

func (r *TeamRepo) RemoveMember(ctx context.Context, teamID, userID string) error {
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM user_team WHERE team_id = $1 AND user_id = $2`, teamID, userID); err != nil {
		return apierr.Internal(err)
	}
	return nil
}

// SetManager designates userID as a manager of teamID. Team managers
// may add and remove the team's members (internal/httpapi); resource
// access checks (Evaluator.CanAccessResource) treat them like any
// other member.
func (r *TeamRepo) SetManager(ctx context.Context, teamID, userID string, isManager bool) error {
	if isManager {
		_, err := r.db.ExecContext(ctx,
			`INSERT INTO team_manager (team_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			teamID, userID)
		if err != nil {
			return apierr.Internal(err)
		}
		return nil
	}
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM team_manager WHERE team_id = $1 AND user_id = $2`, teamID, userID); err != nil {
		return apierr.Internal(err)
	}
	return nil
}

// IsManager reports whether userID manages teamID.
func (r *TeamRepo) IsManager(ctx context.Context, teamID, userID string) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM team_manager WHERE team_id = $1 AND user_id = $2`, teamID, userID).Scan(&count)
	if err != nil {
		return false, apierr.Internal(err)
	}
	return count > 0, nil
}

// UserTeamIDs returns every team userID belongs to.
func (r *TeamRepo) UserTeamIDs(ctx context.Context, userID string) (map[string]struct{}, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT team_id FROM user_team WHERE user_id = $1`, userID)
	if err != nil {
		return nil, apierr.Internal(err)
	}
	defer rows.Close()

	teams := map[string]struct{}{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, apierr.Internal(err)
		}
		teams[id] = struct{}{}
	}
	return teams, rows.Err()
}

// GrantResourceAccess upserts a team's grant on a resource (spec.md §3).
func (r *TeamRepo) GrantResourceAccess(ctx context.Context, access ResourceTeamAccess) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO resource_team_access (resource_type, resource_id, team_id, can_read, can_manage)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (resource_type, resource_id, team_id)
		 DO UPDATE SET can_read = $4, can_manage = $5`,
		access.ResourceType, access.ResourceID, access.TeamID, access.CanRead, access.CanManage)
	if err != nil {
		return apierr.Internal(err)
	}
	return nil
}

func (r *TeamRepo) RevokeResourceAccess(ctx context.Context, resourceType, resourceID, teamID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM resource_team_access WHERE resource_type = $1 AND resource_id = $2 AND team_id = $3`,
		resourceType, resourceID, teamID)
	if err != nil {
		return apierr.Internal(err)
	}
	return nil
}

// ResourceTeamGrants returns every team grant recorded for a resource.
func (r *TeamRepo) ResourceTeamGrants(ctx context.Context, resourceType, resourceID string) ([]ResourceTeamAccess, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT resource_type, resource_id, team_id, can_read, can_manage
		 FROM resource_team_access WHERE resource_type = $1 AND resource_id = $2`,
		resourceType, resourceID)
	if err != nil {
		return nil, apierr.Internal(err)
	}
	defer rows.Close()

	var out []ResourceTeamAccess
	for rows.Next() {
		var a ResourceTeamAccess
		if err := rows.Scan(&a.ResourceType, &a.ResourceID, &a.TeamID, &a.CanRead, &a.CanManage); err != nil {
			return nil, apierr.Internal(err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// GetResourceSettings returns a resource's teamOnly flag, defaulting to
// false (global access) when no row exists.
func (r *TeamRepo) GetResourceSettings(ctx context.Context, resourceType, resourceID string) (ResourceSettings, error) {
	settings := ResourceSettings{ResourceType: resourceType, ResourceID: resourceID}
	err := r.db.QueryRowContext(ctx,
		`SELECT team_only FROM resource_settings WHERE resource_type = $1 AND resource_id = $2`,
		resourceType, resourceID).Scan(&settings.TeamOnly)
	if err == sql.ErrNoRows {
		return settings, nil
	}
	if err != nil {
		return settings, apierr.Internal(err)
	}
	return settings, nil
}

// SetResourceTeamOnly upserts a resource's teamOnly overlay flag.
func (r *TeamRepo) SetResourceTeamOnly(ctx context.Context, resourceType, resourceID string, teamOnly bool) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO resource_settings (resource_type, resource_id, team_only) VALUES ($1, $2, $3)
		 ON CONFLICT (resource_type, resource_id) DO UPDATE SET team_only = $3`,
		resourceType, resourceID, teamOnly)
	if err != nil {
		return apierr.Internal(err)
	}
	return nil
}

// AccessibleResourceIDs returns every resource id of resourceType that
// userID (with its resolved team memberships) can read: either the
// resource is not teamOnly (globally accessible), or the user's team
// holds a read grant on it (spec.md §4.6.3).
func (r *TeamRepo) AccessibleResourceIDs(ctx context.Context, resourceType string, userTeamIDs map[string]struct{}) ([]string, error) {
	teamIDs := make([]string, 0, len(userTeamIDs))
	for id := range userTeamIDs {
		teamIDs = append(teamIDs, id)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT candidate.resource_id
		FROM (
			SELECT rta.resource_id FROM resource_team_access rta
			WHERE rta.resource_type = $1 AND rta.team_id = ANY($2) AND rta.can_read
			UNION
			SELECT rs.resource_id FROM resource_settings rs
			WHERE rs.resource_type = $1 AND rs.team_only = false
		) candidate`, resourceType, pq.Array(teamIDs))
	if err != nil {
		return nil, apierr.Internal(err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, apierr.Internal(err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
