package localstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"computegate/internal/identity"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// sessionClaims is the payload of an issued session token. The jti is the
// primary key of the sessions row, which is what makes revocation stick: a
// signature-valid token whose row is revoked resolves to nothing.
type sessionClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// issueSession creates a session row and returns the signed token.
func (s *Store) issueSession(ctx context.Context, userID, email string) (string, error) {
	now := time.Now().UTC()
	expires := now.Add(s.sessionTTL)
	jti := uuid.NewString()

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, created_at, expires_at)
		VALUES (?, ?, ?, ?)`, jti, userID, now, expires); err != nil {
		return "", fmt.Errorf("creating session: %w", err)
	}

	claims := sessionClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("signing session token: %w", err)
	}
	return token, nil
}

// ResolveSession implements identity.Store. A token that fails signature or
// expiry checks is "no match", not an error; only database failures are
// reported as unavailability.
func (s *Store) ResolveSession(ctx context.Context, token string) (*identity.Principal, error) {
	claims, ok := s.parseSession(token)
	if !ok {
		return nil, nil
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT expires_at, revoked_at FROM sessions WHERE id = ?`, claims.ID)

	var expiresAt time.Time
	var revokedAt sql.NullTime
	if err := row.Scan(&expiresAt, &revokedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", identity.ErrUnavailable, err)
	}

	if revokedAt.Valid || time.Now().After(expiresAt) {
		return nil, nil
	}

	return &identity.Principal{
		ID:        claims.Subject,
		Email:     claims.Email,
		Kind:      identity.KindSession,
		ExpiresAt: expiresAt,
	}, nil
}

// parseSession verifies the token signature and standard claims.
func (s *Store) parseSession(token string) (*sessionClaims, bool) {
	claims := &sessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil || !parsed.Valid || claims.ID == "" {
		return nil, false
	}
	return claims, true
}

// revokeSession marks a session revoked by jti. Unknown sessions are a
// no-op: logout is idempotent.
func (s *Store) revokeSession(ctx context.Context, jti string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET revoked_at = ? WHERE id = ? AND revoked_at IS NULL`,
		time.Now().UTC(), jti)
	if err != nil {
		return fmt.Errorf("revoking session: %w", err)
	}
	return nil
}
