// Package access implements the access-control subsystem:
// the users/roles/access-rules/teams data model, rule synchronization from
// code-declared plugin rules to the database, team-scoped resource
// permission evaluation, and external application tokens.
package access

import "time"

// System role names, seeded idempotently at boot (spec.md §3).
const (
	RoleAdmin        = "admin"
	RoleUsers        = "users"
	RoleAnonymous    = "anonymous"
	RoleApplications = "applications"
)

// WildcardRule is the implicit access rule the admin role always holds.
const WildcardRule = "*"

// InitialAdminID is the fixed id of the seeded first admin user. Deletion
// is refused both by id equality against this constant AND independently
// because the user holds the admin role - see SPEC_FULL.md §6 for why
// both checks are kept rather than picking one.
const InitialAdminID = "initial-admin-id"

// RuleUsersManage, RuleTeamsManage, and RuleApplicationsManage are the
// core HTTP surface's own access rules - internal/httpapi's user, team,
// and application routes gate themselves on these the same way a
// plugin gates its own routes on a rule it declares. Since they are not
// owned by any Handler, CoreDeclaredRules registers them as their own
// pseudo-plugin namespaces so RoleRepo.SetRoleRules can grant them to a
// non-admin role instead of only ever satisfying the admin wildcard.
const (
	RuleUsersManage        = "users.manage"
	RuleTeamsManage        = "teams.manage"
	RuleApplicationsManage = "applications.manage"
)

// CoreDeclaredRules returns the access rules the core HTTP surface
// itself owns, keyed by pseudo-plugin namespace, for FullSync to
// reconcile into access_rule at boot alongside every real plugin's
// declared rules.
func CoreDeclaredRules() map[string][]DeclaredRule {
	return map[string][]DeclaredRule{
		"users":        {{Local: "manage", Description: "manage platform users and their role assignments"}},
		"teams":        {{Local: "manage", Description: "manage teams, their members, and resource access grants"}},
		"applications": {{Local: "manage", Description: "manage external application API credentials"}},
	}
}

// User is a platform account (spec.md §3).
type User struct {
	ID            string
	Email         string
	Name          string
	EmailVerified bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Role is a named permission set. System roles cannot be deleted and
// their access-rule assignments are managed by sync, not by admin edits
// (except for the non-system case).
type Role struct {
	ID          string
	Name        string
	Description string
	IsSystem    bool
}

// AccessRule is a permission token declared by a plugin at register time.
// Id is always the namespaced form "<pluginId>.<local>" (spec.md §3).
type AccessRule struct {
	ID                     string
	PluginID               string
	Description            string
	IsAuthenticatedDefault bool
	IsPublicDefault        bool
}

// DeclaredRule is what a plugin's registerAccessRules call contributes
// during Phase 1 (SPEC_FULL.md §4.5 / spec.md §4.5); Sync turns these
// into AccessRule rows.
type DeclaredRule struct {
	Local                  string // unqualified id, namespaced by the caller
	Description            string
	IsAuthenticatedDefault bool
	IsPublicDefault        bool
}

// Team groups users and application grants for team-scoped resource
// access (spec.md §3, §4.6.3).
type Team struct {
	ID          string
	Name        string
	Description string
}

// Application is an external API consumer authenticated via bearer token
// (spec.md §3, §4.6.2).
type Application struct {
	ID         string
	Name       string
	SecretHash string
	LastUsedAt *time.Time
	CreatedAt  time.Time
}

// ResourceTeamAccess is a team's grant on one resource (spec.md §3, §4.6.3).
type ResourceTeamAccess struct {
	ResourceType string
	ResourceID   string
	TeamID       string
	CanRead      bool
	CanManage    bool
}

// ResourceSettings controls whether a resource ignores global access and
// restricts itself to granted teams (spec.md §3, §4.6.3).
type ResourceSettings struct {
	ResourceType string
	ResourceID   string
	TeamOnly     bool
}

// Caller is the resolved identity produced by authentication (spec.md
// §4.6.2): a RealUser, an ApplicationUser, or a service caller. AccessRules
// is always the fully-resolved set ("*" for admin).
type Caller struct {
	Type        CallerType
	UserID      string
	PluginID    string // set only for CallerTypeService
	AccessRules map[string]struct{}
	TeamIDs     map[string]struct{}
}

type CallerType string

const (
	CallerTypeAnonymous   CallerType = "anonymous"
	CallerTypeUser        CallerType = "user"
	CallerTypeApplication CallerType = "application"
	CallerTypeService     CallerType = "service"
)

// HasRule reports whether the caller's effective rule set satisfies rule,
// honoring the admin wildcard (spec.md §4.6.3).
func (c *Caller) HasRule(rule string) bool {
	if c == nil {
		return false
	}
	if _, ok := c.AccessRules[WildcardRule]; ok {
		return true
	}
	_, ok := c.AccessRules[rule]
	return ok
}

// HasAllRules reports whether the caller holds every required rule.
func (c *Caller) HasAllRules(rules []string) bool {
	if c == nil {
		return len(rules) == 0
	}
	if _, ok := c.AccessRules[WildcardRule]; ok {
		return true
	}
	for _, r := range rules {
		if _, ok := c.AccessRules[r]; !ok {
			return false
		}
	}
	return true
}

// InTeam reports whether the caller belongs to teamID.
func (c *Caller) InTeam(teamID string) bool {
	if c == nil {
		return false
	}
	_, ok := c.TeamIDs[teamID]
	return ok
}

func newAnonymousCaller() *Caller {
	return &Caller{
		Type:        CallerTypeAnonymous,
		AccessRules: map[string]struct{}{},
		TeamIDs:     map[string]struct{}{},
	}
}
