package access

import (
	"context"
	"database/sql"

	"github.com/corehost/platform/internal/apierr"
)

// OnboardingRepo tracks the one-time "complete onboarding" step that
// seeds the platform's initial admin account (spec.md §4.6.4): a
// fresh deployment has no users, and the first caller to hit this
// endpoint becomes InitialAdminID and is granted the admin role. Any
// call after that point is rejected with AlreadyCompleted.
type OnboardingRepo struct {
	db    *sql.DB
	users *UserRepo
	roles *RoleRepo
}

func NewOnboardingRepo(db *sql.DB, users *UserRepo, roles *RoleRepo) *OnboardingRepo {
	return &OnboardingRepo{db: db, users: users, roles: roles}
}

// IsComplete reports whether onboarding has already produced an admin.
func (o *OnboardingRepo) IsComplete(ctx context.Context) (bool, error) {
	var count int
	err := o.db.QueryRowContext(ctx,
		`SELECT count(*) FROM user_role ur
		 JOIN role rl ON rl.id = ur.role_id
		 WHERE rl.name = $1`, RoleAdmin).Scan(&count)
	if err != nil {
		return false, apierr.Internal(err)
	}
	return count > 0, nil
}

// Complete creates the initial admin user with a fixed id so
// UserRepo.DeleteUser's id-equality check can always find it, grants it
// the admin role, and refuses if onboarding already ran.
func (o *OnboardingRepo) Complete(ctx context.Context, email, name, password string) (*User, error) {
	done, err := o.IsComplete(ctx)
	if err != nil {
		return nil, err
	}
	if done {
		return nil, apierr.AlreadyCompleted("onboarding has already completed")
	}

	tx, err := o.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apierr.Internal(err)
	}
	defer tx.Rollback()

	hash, hashErr := hashPassword(password)
	if hashErr != nil {
		return nil, hashErr
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO "user" (id, email, name) VALUES ($1, $2, $3)`,
		InitialAdminID, email, name); err != nil {
		return nil, apierr.Wrap(apierr.CodeConflict, "email already registered", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO account (id, account_id, provider_id, user_id, password_hash)
		 VALUES ($1, $2, 'local', $3, $4)`,
		InitialAdminID+"-account", email, InitialAdminID, hash); err != nil {
		return nil, apierr.Internal(err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO user_role (user_id, role_id)
		 SELECT $1, id FROM role WHERE name = $2`, InitialAdminID, RoleAdmin); err != nil {
		return nil, apierr.Internal(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, apierr.Internal(err)
	}

	return o.users.GetUser(ctx, InitialAdminID)
}
