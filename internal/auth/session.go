package auth

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"time"

	"github.com/google/uuid"

	"github.com/corehost/platform/internal/apierr"
)

const sessionTTL = 30 * 24 * time.Hour

// SessionStore issues and validates opaque session tokens backed by
// the "session" table (internal/db's migration), the Go-native
// replacement for the teacher's JWT-plus-Redis session tracking
// (auth/jwt.go's SessionStore): an opaque token looked up against
// Postgres needs no signing key at all, and the host already has the
// database connection open.
type SessionStore struct {
	db *sql.DB
}

func NewSessionStore(db *sql.DB) *SessionStore { return &SessionStore{db: db} }

func generateSessionToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", apierr.Internal(err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// CreateSession issues a new session token for userID.
func (s *SessionStore) CreateSession(ctx context.Context, userID string) (string, error) {
	token, err := generateSessionToken()
	if err != nil {
		return "", err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO session (id, token, user_id, expires_at) VALUES ($1, $2, $3, $4)`,
		uuid.New().String(), token, userID, time.Now().UTC().Add(sessionTTL))
	if err != nil {
		return "", apierr.Internal(err)
	}
	return token, nil
}

// Validate returns the user id owning an unexpired session token.
func (s *SessionStore) Validate(ctx context.Context, token string) (string, error) {
	var (
		userID    string
		expiresAt time.Time
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, expires_at FROM session WHERE token = $1`, token).Scan(&userID, &expiresAt)
	if err == sql.ErrNoRows {
		return "", apierr.Unauthorized("invalid session")
	}
	if err != nil {
		return "", apierr.Internal(err)
	}
	if time.Now().UTC().After(expiresAt) {
		return "", apierr.Unauthorized("session expired")
	}
	return userID, nil
}

// Revoke deletes a session token (logout).
func (s *SessionStore) Revoke(ctx context.Context, token string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM session WHERE token = $1`, token); err != nil {
		return apierr.Internal(err)
	}
	return nil
}

// RevokeAllForUser deletes every session belonging to userID, used
// when an admin force-logs-out an account.
func (s *SessionStore) RevokeAllForUser(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM session WHERE user_id = $1`, userID); err != nil {
		return apierr.Internal(err)
	}
	return nil
}
