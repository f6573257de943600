// Package db owns the single Postgres connection pool shared by the
// core access-control tables (schema "public") and, through
// internal/dbproxy, every plugin's isolated "plugin_<pluginId>" schema
// (spec.md §3, §4.2).
//
// Only the core tables (user, role, access_rule, team, application, ...)
// are queried directly against *Database here; plugin code must go
// through dbproxy.Scoped so search_path isolation cannot be bypassed.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

// Config holds connection parameters. DatabaseURL, when non-empty,
// is used verbatim (spec.md §6: "DATABASE_URL (Postgres, required)");
// otherwise the discrete fields build a libpq connection string the
// way the teacher's cmd/main.go assembles one for local development.
type Config struct {
	DatabaseURL string
	Host        string
	Port        string
	User        string
	Password    string
	DBName      string
	SSLMode     string
}

var (
	hostnameRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9\-\.]{0,253}[a-zA-Z0-9])?$`)
	identRegex    = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	validSSLModes = []string{"disable", "allow", "prefer", "require", "verify-ca", "verify-full"}
)

func validateConfig(cfg Config) error {
	if cfg.Host == "" {
		return fmt.Errorf("database host cannot be empty")
	}
	if net.ParseIP(cfg.Host) == nil && !hostnameRegex.MatchString(cfg.Host) {
		return fmt.Errorf("invalid database host: %s", cfg.Host)
	}
	port, err := strconv.Atoi(cfg.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid database port: %s", cfg.Port)
	}
	if !identRegex.MatchString(cfg.User) {
		return fmt.Errorf("invalid database user: %s", cfg.User)
	}
	if !identRegex.MatchString(cfg.DBName) {
		return fmt.Errorf("invalid database name: %s", cfg.DBName)
	}
	if cfg.SSLMode != "" {
		valid := false
		for _, m := range validSSLModes {
			if cfg.SSLMode == m {
				valid = true
				break
			}
		}
		if !valid {
			return fmt.Errorf("invalid SSL mode: %s (must be one of: %s)", cfg.SSLMode, strings.Join(validSSLModes, ", "))
		}
	}
	return nil
}

// Database wraps the base connection pool.
type Database struct {
	db *sql.DB
}

// New opens the pool, validating configuration first to keep
// connection-string assembly injection-free (spec.md ownership: "the
// platform process exclusively owns the database").
func New(cfg Config) (*Database, error) {
	connStr := cfg.DatabaseURL
	if connStr == "" {
		if cfg.SSLMode == "" {
			cfg.SSLMode = "disable"
		}
		if err := validateConfig(cfg); err != nil {
			return nil, fmt.Errorf("invalid database configuration: %w", err)
		}
		connStr = fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)
		if cfg.SSLMode == "disable" {
			log.Warn().Msg("database SSL/TLS is disabled - set DB_SSL_MODE=require in production")
		}
	}

	sqlDB, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)
	sqlDB.SetConnMaxIdleTime(1 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Database{db: sqlDB}, nil
}

// NewForTesting wraps an existing *sql.DB (e.g. a go-sqlmock database)
// for dependency injection in tests. Not for production use.
func NewForTesting(sqlDB *sql.DB) *Database { return &Database{db: sqlDB} }

func (d *Database) DB() *sql.DB { return d.db }

func (d *Database) Close() error { return d.db.Close() }

// Migrate creates the core access-control schema (spec.md §3) in
// "public". Plugin schemas are created lazily by the lifecycle manager
// (internal/plugins) as each plugin is initialized.
func (d *Database) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS plugin (
			name VARCHAR(255) PRIMARY KEY,
			path VARCHAR(1024) NOT NULL,
			type VARCHAR(20) NOT NULL DEFAULT 'backend',
			enabled BOOLEAN NOT NULL DEFAULT true,
			is_uninstallable BOOLEAN NOT NULL DEFAULT false,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS "user" (
			id VARCHAR(255) PRIMARY KEY,
			email VARCHAR(320) UNIQUE NOT NULL,
			name VARCHAR(255) NOT NULL DEFAULT '',
			email_verified BOOLEAN NOT NULL DEFAULT false,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS account (
			id VARCHAR(255) PRIMARY KEY,
			account_id VARCHAR(255) NOT NULL,
			provider_id VARCHAR(100) NOT NULL,
			user_id VARCHAR(255) NOT NULL REFERENCES "user"(id),
			password_hash VARCHAR(255),
			access_token TEXT,
			refresh_token TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS session (
			id VARCHAR(255) PRIMARY KEY,
			token VARCHAR(255) UNIQUE NOT NULL,
			user_id VARCHAR(255) NOT NULL REFERENCES "user"(id),
			expires_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS role (
			id VARCHAR(255) PRIMARY KEY,
			name VARCHAR(255) UNIQUE NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			is_system BOOLEAN NOT NULL DEFAULT false
		)`,
		`CREATE TABLE IF NOT EXISTS access_rule (
			id VARCHAR(400) PRIMARY KEY,
			description TEXT NOT NULL DEFAULT '',
			is_authenticated_default BOOLEAN NOT NULL DEFAULT false,
			is_public_default BOOLEAN NOT NULL DEFAULT false,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS role_access_rule (
			role_id VARCHAR(255) NOT NULL REFERENCES role(id) ON DELETE CASCADE,
			access_rule_id VARCHAR(400) NOT NULL REFERENCES access_rule(id) ON DELETE CASCADE,
			PRIMARY KEY (role_id, access_rule_id)
		)`,
		`CREATE TABLE IF NOT EXISTS user_role (
			user_id VARCHAR(255) NOT NULL REFERENCES "user"(id) ON DELETE CASCADE,
			role_id VARCHAR(255) NOT NULL REFERENCES role(id) ON DELETE CASCADE,
			PRIMARY KEY (user_id, role_id)
		)`,
		`CREATE TABLE IF NOT EXISTS disabled_default_access_rule (
			access_rule_id VARCHAR(400) PRIMARY KEY,
			disabled_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS disabled_public_default_access_rule (
			access_rule_id VARCHAR(400) PRIMARY KEY,
			disabled_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS team (
			id VARCHAR(255) PRIMARY KEY,
			name VARCHAR(255) UNIQUE NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS user_team (
			team_id VARCHAR(255) NOT NULL REFERENCES team(id) ON DELETE CASCADE,
			user_id VARCHAR(255) NOT NULL REFERENCES "user"(id) ON DELETE CASCADE,
			PRIMARY KEY (team_id, user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS team_manager (
			team_id VARCHAR(255) NOT NULL REFERENCES team(id) ON DELETE CASCADE,
			user_id VARCHAR(255) NOT NULL REFERENCES "user"(id) ON DELETE CASCADE,
			PRIMARY KEY (team_id, user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS application (
			id VARCHAR(255) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			secret_hash VARCHAR(255) NOT NULL,
			last_used_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS application_role (
			application_id VARCHAR(255) NOT NULL REFERENCES application(id) ON DELETE CASCADE,
			role_id VARCHAR(255) NOT NULL REFERENCES role(id) ON DELETE CASCADE,
			PRIMARY KEY (application_id, role_id)
		)`,
		`CREATE TABLE IF NOT EXISTS application_team (
			application_id VARCHAR(255) NOT NULL REFERENCES application(id) ON DELETE CASCADE,
			team_id VARCHAR(255) NOT NULL REFERENCES team(id) ON DELETE CASCADE,
			PRIMARY KEY (application_id, team_id)
		)`,
		`CREATE TABLE IF NOT EXISTS resource_team_access (
			resource_type VARCHAR(255) NOT NULL,
			resource_id VARCHAR(255) NOT NULL,
			team_id VARCHAR(255) NOT NULL REFERENCES team(id) ON DELETE CASCADE,
			can_read BOOLEAN NOT NULL DEFAULT true,
			can_manage BOOLEAN NOT NULL DEFAULT false,
			PRIMARY KEY (resource_type, resource_id, team_id)
		)`,
		`CREATE TABLE IF NOT EXISTS resource_settings (
			resource_type VARCHAR(255) NOT NULL,
			resource_id VARCHAR(255) NOT NULL,
			team_only BOOLEAN NOT NULL DEFAULT false,
			PRIMARY KEY (resource_type, resource_id)
		)`,
		`CREATE TABLE IF NOT EXISTS plugin_config (
			plugin_id VARCHAR(255) NOT NULL,
			config_id VARCHAR(255) NOT NULL,
			version INT NOT NULL DEFAULT 1,
			data BYTEA NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (plugin_id, config_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_resource_team_access_team ON resource_team_access(team_id)`,
		`CREATE INDEX IF NOT EXISTS idx_user_team_user ON user_team(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_session_user ON session(user_id)`,
	}

	for _, stmt := range statements {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration failed: %w\nstatement: %s", err, stmt)
		}
	}

	return nil
}
