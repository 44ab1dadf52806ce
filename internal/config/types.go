// internal/config/types.go
package config

import (
	"net/url"
	"time"
)

// StoreMode selects the identity store implementation.
type StoreMode string

const (
	// StoreModeLocal runs the bundled sqlite-backed identity store.
	StoreModeLocal StoreMode = "local"

	// StoreModeRemote talks to an external identity store over HTTP.
	StoreModeRemote StoreMode = "remote"
)

// Config represents the complete application configuration
type Config struct {
	// Server holds HTTP server configuration
	Server struct {
		// Address is the address to listen on
		Address string
		// ShutdownTimeout is the maximum time to wait for a graceful shutdown
		ShutdownTimeout time.Duration
	}

	// Metrics holds metrics server configuration
	Metrics struct {
		// Address is the address to listen on for the metrics server
		Address string
	}

	// Backend holds configuration for the compute backend
	Backend struct {
		// URL is the base URL of the compute backend
		URL *url.URL
		// Timeout bounds backend connect and response-header wait
		Timeout time.Duration
	}

	// IdentityStore holds identity store configuration
	IdentityStore struct {
		// Mode selects the store implementation
		Mode StoreMode
		// URL is the base URL of the remote store (remote mode)
		URL *url.URL
		// Timeout bounds remote store calls
		Timeout time.Duration
		// DBPath is the sqlite path (local mode)
		DBPath string
		// AllowedEmailDomains restricts account creation (empty = allow all)
		AllowedEmailDomains []string
	}

	// Session holds session handling configuration
	Session struct {
		// CookieName is the name of the session cookie
		CookieName string
		// TTL is the lifetime of issued sessions
		TTL time.Duration
		// CacheTTL bounds the staleness of cached session resolutions;
		// zero disables the cache
		CacheTTL time.Duration
		// JWTSecret signs session tokens (local mode)
		JWTSecret string
	}

	// OIDC holds the login flow configuration (local mode)
	OIDC struct {
		// Issuer is the OIDC issuer URL; empty disables the login flow
		Issuer string
		// ClientID is the OIDC client ID
		ClientID string
		// ClientSecret is the OIDC client secret
		ClientSecret string
		// RedirectURL is the redirect URL for the callback
		RedirectURL string
		// Scopes is the list of scopes to request
		Scopes []string
	}

	// Observability holds observability configuration
	Observability struct {
		// LogLevel is the minimum log level to emit
		LogLevel string
	}
}
