// Package localstore is a self-contained identity store: users, API keys,
// and sessions in sqlite, with an OIDC login flow serving the /auth/
// surface. It exists so the gateway can run without an external store.
package localstore

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"computegate/internal/identity"
	"computegate/internal/observability/logging"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Store is a sqlite-backed identity store.
type Store struct {
	db             *sql.DB
	logger         *logging.Logger
	jwtSecret      []byte
	sessionTTL     time.Duration
	cookieName     string
	allowedDomains []string
	oidc           *oidcFlow
}

// Config holds local store configuration.
type Config struct {
	// Path is the sqlite database path.
	Path string

	// JWTSecret signs session tokens. Required.
	JWTSecret string

	// SessionTTL is the lifetime of issued sessions.
	SessionTTL time.Duration

	// CookieName is the session cookie the auth flow sets.
	CookieName string

	// AllowedEmailDomains restricts account creation at first login.
	// Empty means allow all.
	AllowedEmailDomains []string

	// OIDC configures the upstream identity provider for the login flow.
	// An empty issuer leaves the flow unmounted (tests, key-only setups).
	OIDC OIDCConfig
}

// OIDCConfig holds the upstream identity provider settings.
type OIDCConfig struct {
	Issuer       string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
}

// Open opens the database, applies the schema, and initializes the OIDC
// flow when an issuer is configured.
func Open(config Config, logger *logging.Logger) (*Store, error) {
	if config.JWTSecret == "" {
		return nil, fmt.Errorf("local store requires a session JWT secret")
	}

	db, err := sql.Open("sqlite", config.Path)
	if err != nil {
		return nil, fmt.Errorf("opening identity database: %w", err)
	}
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing identity schema: %w", err)
	}

	domains := make([]string, len(config.AllowedEmailDomains))
	for i, d := range config.AllowedEmailDomains {
		domains[i] = strings.ToLower(d)
	}

	s := &Store{
		db:             db,
		logger:         logger.WithModule("identity.localstore"),
		jwtSecret:      []byte(config.JWTSecret),
		sessionTTL:     config.SessionTTL,
		cookieName:     config.CookieName,
		allowedDomains: domains,
	}

	if config.OIDC.Issuer != "" {
		flow, err := newOIDCFlow(config.OIDC, s)
		if err != nil {
			db.Close()
			return nil, err
		}
		s.oidc = flow
	}

	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

var _ identity.Store = (*Store)(nil)

// hashKey is the stored form of an API key. Raw secrets never touch the
// database.
func hashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// ResolveAPIKey implements identity.Store.
func (s *Store) ResolveAPIKey(ctx context.Context, key string) (*identity.Principal, error) {
	hash := hashKey(key)

	row := s.db.QueryRowContext(ctx, `
		SELECT k.key_hash, k.expires_at, u.id, u.email
		FROM api_keys k JOIN users u ON u.id = k.user_id
		WHERE k.key_hash = ? AND k.revoked_at IS NULL`, hash)

	var storedHash, userID, email string
	var expiresAt sql.NullTime
	if err := row.Scan(&storedHash, &expiresAt, &userID, &email); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", identity.ErrUnavailable, err)
	}

	// The index already matched on the hash; the constant-time compare keeps
	// the final equality check timing-independent.
	if subtle.ConstantTimeCompare([]byte(hash), []byte(storedHash)) != 1 {
		return nil, nil
	}
	if expiresAt.Valid && time.Now().After(expiresAt.Time) {
		return nil, nil
	}

	p := &identity.Principal{
		ID:    userID,
		Email: email,
		Kind:  identity.KindAPIKey,
	}
	if expiresAt.Valid {
		p.ExpiresAt = expiresAt.Time
	}
	return p, nil
}

// CreateAPIKey implements identity.Store.
func (s *Store) CreateAPIKey(ctx context.Context, p *identity.Principal, opts identity.CreateKeyOptions) (*identity.Credential, error) {
	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("generating API key: %w", err)
	}
	secret := identity.KeyPrefix + hex.EncodeToString(raw)

	now := time.Now().UTC()
	cred := &identity.Credential{
		CredentialMeta: identity.CredentialMeta{
			ID:        uuid.NewString(),
			Name:      opts.Name,
			CreatedAt: now,
		},
		Secret: secret,
	}

	var expiresAt any
	if opts.ExpiresIn != 0 {
		cred.ExpiresAt = now.Add(opts.ExpiresIn)
		expiresAt = cred.ExpiresAt
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO api_keys (id, user_id, name, key_hash, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		cred.ID, p.ID, cred.Name, hashKey(secret), now, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", identity.ErrUnavailable, err)
	}

	s.logger.Info("API key issued", "user_id", p.ID, "key_id", cred.ID)
	return cred, nil
}

// ListAPIKeys implements identity.Store.
func (s *Store) ListAPIKeys(ctx context.Context, p *identity.Principal) ([]identity.CredentialMeta, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, created_at, expires_at
		FROM api_keys
		WHERE user_id = ? AND revoked_at IS NULL
		ORDER BY created_at`, p.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", identity.ErrUnavailable, err)
	}
	defer rows.Close()

	var keys []identity.CredentialMeta
	for rows.Next() {
		var meta identity.CredentialMeta
		var expiresAt sql.NullTime
		if err := rows.Scan(&meta.ID, &meta.Name, &meta.CreatedAt, &expiresAt); err != nil {
			return nil, fmt.Errorf("%w: %v", identity.ErrUnavailable, err)
		}
		if expiresAt.Valid {
			meta.ExpiresAt = expiresAt.Time
		}
		keys = append(keys, meta)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", identity.ErrUnavailable, err)
	}
	return keys, nil
}

// RevokeAPIKey implements identity.Store. Revoking a key that is unknown,
// someone else's, or already revoked reports ErrKeyNotFound.
func (s *Store) RevokeAPIKey(ctx context.Context, p *identity.Principal, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE api_keys SET revoked_at = ?
		WHERE id = ? AND user_id = ? AND revoked_at IS NULL`,
		time.Now().UTC(), id, p.ID)
	if err != nil {
		return fmt.Errorf("%w: %v", identity.ErrUnavailable, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", identity.ErrUnavailable, err)
	}
	if affected == 0 {
		return identity.ErrKeyNotFound
	}

	s.logger.Info("API key revoked", "user_id", p.ID, "key_id", id)
	return nil
}

// upsertUser returns the user id for an email, creating the account on
// first login.
func (s *Store) upsertUser(ctx context.Context, email string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM users WHERE email = ?`, email).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return "", fmt.Errorf("looking up user: %w", err)
	}

	id = uuid.NewString()
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, created_at) VALUES (?, ?, ?)`,
		id, email, time.Now().UTC()); err != nil {
		return "", fmt.Errorf("creating user: %w", err)
	}

	s.logger.Info("Account created", "user_id", id, "email", email)
	return id, nil
}
