package access

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/corehost/platform/internal/apierr"
	"github.com/corehost/platform/internal/eventbus"
)

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", apierr.Internal(err)
	}
	return string(hash), nil
}

// UserRepo handles CRUD for users and their local-auth credentials,
// grounded on the teacher's UserDB (db/users.go): uuid-generated ids,
// bcrypt-hashed local passwords, best-effort side effects kept separate
// from the primary insert.
type UserRepo struct {
	db  *sql.DB
	bus *eventbus.EventBus
}

func NewUserRepo(db *sql.DB, bus *eventbus.EventBus) *UserRepo { return &UserRepo{db: db, bus: bus} }

// CreateUserRequest is the input to local-account registration.
type CreateUserRequest struct {
	Email    string
	Name     string
	Password string
}

// CreateUser inserts a new user and its local account credential in one
// transaction, the way the teacher's CreateUser wraps the quota/group
// side effects around the core insert - here the "side effect" is
// assigning the seeded "users" role, not a quota row.
func (r *UserRepo) CreateUser(ctx context.Context, req CreateUserRequest) (*User, error) {
	hash, err := hashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apierr.Internal(err)
	}
	defer tx.Rollback()

	user := &User{
		ID:    uuid.New().String(),
		Email: req.Email,
		Name:  req.Name,
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO "user" (id, email, name) VALUES ($1, $2, $3)`,
		user.ID, user.Email, user.Name)
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeConflict, "email already registered", err)
	}

	accountID := uuid.New().String()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO account (id, account_id, provider_id, user_id, password_hash)
		 VALUES ($1, $2, 'local', $3, $4)`,
		accountID, user.Email, user.ID, hash)
	if err != nil {
		return nil, apierr.Internal(err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO user_role (user_id, role_id)
		 SELECT $1, id FROM role WHERE name = $2
		 ON CONFLICT DO NOTHING`, user.ID, RoleUsers); err != nil {
		return nil, apierr.Internal(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, apierr.Internal(err)
	}

	return r.GetUser(ctx, user.ID)
}

func (r *UserRepo) GetUser(ctx context.Context, userID string) (*User, error) {
	var u User
	err := r.db.QueryRowContext(ctx,
		`SELECT id, email, name, email_verified, created_at, updated_at FROM "user" WHERE id = $1`,
		userID).Scan(&u.ID, &u.Email, &u.Name, &u.EmailVerified, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, apierr.NotFound("user")
	}
	if err != nil {
		return nil, apierr.Internal(err)
	}
	return &u, nil
}

func (r *UserRepo) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	var u User
	err := r.db.QueryRowContext(ctx,
		`SELECT id, email, name, email_verified, created_at, updated_at FROM "user" WHERE email = $1`,
		email).Scan(&u.ID, &u.Email, &u.Name, &u.EmailVerified, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, apierr.NotFound("user")
	}
	if err != nil {
		return nil, apierr.Internal(err)
	}
	return &u, nil
}

func (r *UserRepo) ListUsers(ctx context.Context) ([]*User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, email, name, email_verified, created_at, updated_at FROM "user" ORDER BY created_at`)
	if err != nil {
		return nil, apierr.Internal(err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Email, &u.Name, &u.EmailVerified, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, apierr.Internal(err)
		}
		users = append(users, &u)
	}
	return users, rows.Err()
}

// VerifyPassword checks a local password login, returning the user on
// success.
func (r *UserRepo) VerifyPassword(ctx context.Context, email, password string) (*User, error) {
	var (
		userID string
		hash   string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT u.id, a.password_hash FROM "user" u
		 JOIN account a ON a.user_id = u.id AND a.provider_id = 'local'
		 WHERE u.email = $1`, email).Scan(&userID, &hash)
	if err == sql.ErrNoRows {
		return nil, apierr.Unauthorized("invalid credentials")
	}
	if err != nil {
		return nil, apierr.Internal(err)
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return nil, apierr.Unauthorized("invalid credentials")
	}
	return r.GetUser(ctx, userID)
}

// IsAdmin reports whether userID currently holds the admin role.
func (r *UserRepo) IsAdmin(ctx context.Context, userID string) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM user_role ur
		 JOIN role rl ON rl.id = ur.role_id
		 WHERE ur.user_id = $1 AND rl.name = $2`, userID, RoleAdmin).Scan(&count)
	if err != nil {
		return false, apierr.Internal(err)
	}
	return count > 0, nil
}

// DeleteUser removes a user, refusing to delete the initial admin.
//
// Two independent checks guard this, deliberately not collapsed into
// one: id equality against InitialAdminID catches the seeded account
// even if its admin role assignment was (incorrectly) revoked, and the
// live admin-role check catches any OTHER user who was later promoted
// to admin and would otherwise leave the platform without one.
//
// account and session rows reference user_id without ON DELETE CASCADE
// (unlike user_role/user_team/team_manager), so every row CreateUser's
// own local-account insert leaves behind must be deleted first, in the
// same transaction as the "user" row, or the delete fails its foreign
// key constraint for virtually every real user.
func (r *UserRepo) DeleteUser(ctx context.Context, userID string) error {
	if userID == InitialAdminID {
		return apierr.Forbidden("the initial admin account cannot be deleted")
	}
	isAdmin, err := r.IsAdmin(ctx, userID)
	if err != nil {
		return err
	}
	if isAdmin {
		return apierr.Forbidden("users holding the admin role cannot be deleted")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return apierr.Internal(err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM session WHERE user_id = $1`, userID); err != nil {
		return apierr.Internal(err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM account WHERE user_id = $1`, userID); err != nil {
		return apierr.Internal(err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM "user" WHERE id = $1`, userID)
	if err != nil {
		return apierr.Internal(err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apierr.NotFound("user")
	}

	if err := tx.Commit(); err != nil {
		return apierr.Internal(err)
	}

	if r.bus != nil {
		_ = r.bus.EmitLocal(ctx, eventbus.Subject("core", "userDeleted"), map[string]string{"userId": userID})
	}
	return nil
}

// UpdateProfile updates mutable user fields.
func (r *UserRepo) UpdateProfile(ctx context.Context, userID, name string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE "user" SET name = $1, updated_at = $2 WHERE id = $3`,
		name, nowUTC(), userID)
	if err != nil {
		return apierr.Internal(err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apierr.NotFound("user")
	}
	return nil
}

func nowUTC() time.Time { return time.Now().UTC() }
