// Package identity defines the principal and credential model shared by the
// gateway and every identity store implementation.
package identity

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
)

// KeyPrefix tags every API key issued by the identity store. A string
// presented as an API key that does not carry this prefix is rejected
// locally, without a store lookup.
const KeyPrefix = "oc_"

// Kind is the kind of credential a principal was resolved from.
type Kind string

const (
	// KindSession marks a principal resolved from a session cookie.
	KindSession Kind = "session"

	// KindAPIKey marks a principal resolved from a long-lived API key.
	KindAPIKey Kind = "api-key"
)

// Principal is the resolved identity of a caller. It is produced only by an
// identity store and lives no longer than the request that carried it.
type Principal struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Kind      Kind      `json:"kind"`
	ExpiresAt time.Time `json:"expiresAt,omitempty"`
}

// CredentialMeta is the caller-visible description of an issued API key.
// The raw secret is never part of it.
type CredentialMeta struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt,omitempty"`
}

// Credential is an API key right after issuance. Secret is populated exactly
// once, in the response to the create call, and never re-displayed.
type Credential struct {
	CredentialMeta
	Secret string `json:"key"`
}

// CreateKeyOptions are the caller-supplied options for issuing an API key.
// ExpiresIn of zero means the key does not expire.
type CreateKeyOptions struct {
	Name      string
	ExpiresIn time.Duration
}

// ErrUnavailable marks store failures that mean "could not ask", as opposed
// to "asked and the answer was no". Callers map it to 503, never 401.
var ErrUnavailable = errors.New("identity store unavailable")

// ErrKeyNotFound is returned by RevokeAPIKey for an unknown or
// already-revoked key id.
var ErrKeyNotFound = errors.New("api key not found")

// ValidKeyFormat checks the prefix convention locally. It is the gate's
// cheap pre-check that keeps garbage away from the store.
func ValidKeyFormat(key string) bool {
	return strings.HasPrefix(key, KeyPrefix) && len(key) > len(KeyPrefix)
}

// Store is the identity store consumed by the gateway. Resolution methods
// return (nil, nil) when the store is reachable but reports no match, and a
// non-nil error (wrapping ErrUnavailable) when the store cannot answer.
type Store interface {
	// ResolveSession resolves a session token to a principal.
	ResolveSession(ctx context.Context, token string) (*Principal, error)

	// ResolveAPIKey resolves a raw API key to a principal.
	ResolveAPIKey(ctx context.Context, key string) (*Principal, error)

	// CreateAPIKey issues a new API key for the principal.
	CreateAPIKey(ctx context.Context, p *Principal, opts CreateKeyOptions) (*Credential, error)

	// ListAPIKeys lists the principal's non-revoked keys, secrets excluded.
	ListAPIKeys(ctx context.Context, p *Principal) ([]CredentialMeta, error)

	// RevokeAPIKey revokes one of the principal's keys by id.
	RevokeAPIKey(ctx context.Context, p *Principal, id string) error

	// AuthHandler serves the store's own /auth/ surface. The gateway mounts
	// it verbatim and treats it as opaque.
	AuthHandler() http.Handler
}
