package access

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/corehost/platform/internal/apierr"
)

// ApplicationRepo manages external applications and their bearer
// tokens, grounded on the teacher's credential-hashing pattern in
// db/users.go (bcrypt for secrets-at-rest) generalized from per-agent
// mTLS certs to a bearer-token scheme per spec.md §4.6.2.
type ApplicationRepo struct {
	db *sql.DB
}

func NewApplicationRepo(db *sql.DB) *ApplicationRepo { return &ApplicationRepo{db: db} }

const tokenPrefix = "ck"

// IssuedToken is returned exactly once, at creation or regeneration
// time; only its bcrypt hash is persisted.
type IssuedToken struct {
	ApplicationID string
	Token         string // "ck_<uuid-36>_<secret>"
}

func generateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// CreateApplication registers a new application and issues its first
// token. The token is only ever returned here; callers must store it
// immediately, as only the bcrypt hash survives afterward.
func (r *ApplicationRepo) CreateApplication(ctx context.Context, name string) (*Application, *IssuedToken, error) {
	secret, err := generateSecret()
	if err != nil {
		return nil, nil, apierr.Internal(err)
	}
	appID := uuid.New().String()
	token := fmt.Sprintf("%s_%s_%s", tokenPrefix, appID, secret)

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return nil, nil, apierr.Internal(err)
	}

	app := &Application{ID: appID, Name: name, SecretHash: string(hash)}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO application (id, name, secret_hash) VALUES ($1, $2, $3)`,
		app.ID, app.Name, app.SecretHash)
	if err != nil {
		return nil, nil, apierr.Wrap(apierr.CodeConflict, "application already exists", err)
	}

	if _, err := r.db.ExecContext(ctx,
		`INSERT INTO application_role (application_id, role_id)
		 SELECT $1, id FROM role WHERE name = $2 ON CONFLICT DO NOTHING`,
		app.ID, RoleApplications); err != nil {
		return nil, nil, apierr.Internal(err)
	}

	return app, &IssuedToken{ApplicationID: app.ID, Token: token}, nil
}

// RegenerateToken issues a new secret for an existing application,
// invalidating the old one.
func (r *ApplicationRepo) RegenerateToken(ctx context.Context, appID string) (*IssuedToken, error) {
	secret, err := generateSecret()
	if err != nil {
		return nil, apierr.Internal(err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return nil, apierr.Internal(err)
	}

	res, err := r.db.ExecContext(ctx, `UPDATE application SET secret_hash = $1 WHERE id = $2`, string(hash), appID)
	if err != nil {
		return nil, apierr.Internal(err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return nil, apierr.NotFound("application")
	}

	token := fmt.Sprintf("%s_%s_%s", tokenPrefix, appID, secret)
	return &IssuedToken{ApplicationID: appID, Token: token}, nil
}

// ParseToken splits a bearer token into its application id and secret
// without touching the database, so callers can fail fast on malformed
// tokens before a lookup.
func ParseToken(token string) (appID, secret string, ok bool) {
	parts := strings.SplitN(token, "_", 3)
	if len(parts) != 3 || parts[0] != tokenPrefix {
		return "", "", false
	}
	if _, err := uuid.Parse(parts[1]); err != nil {
		return "", "", false
	}
	return parts[1], parts[2], true
}

// VerifyToken validates a bearer token and returns the application it
// names, also touching last_used_at.
func (r *ApplicationRepo) VerifyToken(ctx context.Context, token string) (*Application, error) {
	appID, secret, ok := ParseToken(token)
	if !ok {
		return nil, apierr.Unauthorized("malformed application token")
	}

	var app Application
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, secret_hash, created_at FROM application WHERE id = $1`, appID).
		Scan(&app.ID, &app.Name, &app.SecretHash, &app.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, apierr.Unauthorized("invalid application token")
	}
	if err != nil {
		return nil, apierr.Internal(err)
	}

	if bcrypt.CompareHashAndPassword([]byte(app.SecretHash), []byte(secret)) != nil {
		return nil, apierr.Unauthorized("invalid application token")
	}

	now := time.Now().UTC()
	_, _ = r.db.ExecContext(ctx, `UPDATE application SET last_used_at = $1 WHERE id = $2`, now, app.ID)
	app.LastUsedAt = &now

	return &app, nil
}

func (r *ApplicationRepo) DeleteApplication(ctx context.Context, appID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM application WHERE id = $1`, appID)
	if err != nil {
		return apierr.Internal(err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apierr.NotFound("application")
	}
	return nil
}

func (r *ApplicationRepo) ListApplications(ctx context.Context) ([]*Application, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, secret_hash, last_used_at, created_at FROM application ORDER BY created_at`)
	if err != nil {
		return nil, apierr.Internal(err)
	}
	defer rows.Close()

	var out []*Application
	for rows.Next() {
		var app Application
		if err := rows.Scan(&app.ID, &app.Name, &app.SecretHash, &app.LastUsedAt, &app.CreatedAt); err != nil {
			return nil, apierr.Internal(err)
		}
		out = append(out, &app)
	}
	return out, rows.Err()
}

// GrantTeam adds application access to a team (spec.md §3 application_team).
func (r *ApplicationRepo) GrantTeam(ctx context.Context, appID, teamID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO application_team (application_id, team_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		appID, teamID)
	if err != nil {
		return apierr.Internal(err)
	}
	return nil
}

func (r *ApplicationRepo) RevokeTeam(ctx context.Context, appID, teamID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM application_team WHERE application_id = $1 AND team_id = $2`, appID, teamID)
	if err != nil {
		return apierr.Internal(err)
	}
	return nil
}

// ApplicationTeamIDs returns every team an application belongs to.
func (r *ApplicationRepo) ApplicationTeamIDs(ctx context.Context, appID string) (map[string]struct{}, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT team_id FROM application_team WHERE application_id = $1`, appID)
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

// ResolveApplicationAccessRules mirrors RoleRepo.ResolveUserAccessRules
// for applications, unioning every rule granted through application_role.
func (r *ApplicationRepo) ResolveApplicationAccessRules(ctx context.Context, appID string) (map[string]struct{}, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT rar.access_rule_id, rl.name
		 FROM application_role ar
		 JOIN role rl ON rl.id = ar.role_id
		 LEFT JOIN role_access_rule rar ON rar.role_id = rl.id
		 WHERE ar.application_id = $1`, appID)
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
