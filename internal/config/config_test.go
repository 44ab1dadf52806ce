package config

import (
	"strings"
	"testing"
	"time"
)

// baseEnv sets the minimum environment a valid local-mode configuration
// needs. t.Setenv restores everything when the test ends.
func baseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("COMPUTEGATE_BACKEND_URL", "http://backend:9099")
	t.Setenv("COMPUTEGATE_SESSION_JWT_SECRET", strings.Repeat("s", 32))
}

func TestLoadDefaults(t *testing.T) {
	baseEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Address != ":8000" {
		t.Errorf("Server.Address = %q", cfg.Server.Address)
	}
	if cfg.Metrics.Address != ":9090" {
		t.Errorf("Metrics.Address = %q", cfg.Metrics.Address)
	}
	if cfg.Server.ShutdownTimeout != 30*time.Second {
		t.Errorf("ShutdownTimeout = %v", cfg.Server.ShutdownTimeout)
	}
	if cfg.Backend.Timeout != 30*time.Second {
		t.Errorf("Backend.Timeout = %v", cfg.Backend.Timeout)
	}
	if cfg.IdentityStore.Mode != StoreModeLocal {
		t.Errorf("IdentityStore.Mode = %q", cfg.IdentityStore.Mode)
	}
	if cfg.Session.CookieName != "computegate_session" {
		t.Errorf("Session.CookieName = %q", cfg.Session.CookieName)
	}
	if cfg.Session.TTL != 24*time.Hour {
		t.Errorf("Session.TTL = %v", cfg.Session.TTL)
	}
	if cfg.Session.CacheTTL != 30*time.Second {
		t.Errorf("Session.CacheTTL = %v", cfg.Session.CacheTTL)
	}
	if cfg.Observability.LogLevel != "info" {
		t.Errorf("LogLevel = %q", cfg.Observability.LogLevel)
	}
}

func TestEnvironmentOverridesDefaults(t *testing.T) {
	baseEnv(t)
	t.Setenv("COMPUTEGATE_SERVER_ADDR", ":8080")
	t.Setenv("COMPUTEGATE_BACKEND_TIMEOUT", "90s")
	t.Setenv("COMPUTEGATE_SESSION_CACHE_TTL", "0s")
	t.Setenv("COMPUTEGATE_LOG_LEVEL", "debug")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Address != ":8080" {
		t.Errorf("Server.Address = %q", cfg.Server.Address)
	}
	if cfg.Backend.Timeout != 90*time.Second {
		t.Errorf("Backend.Timeout = %v", cfg.Backend.Timeout)
	}
	if cfg.Session.CacheTTL != 0 {
		t.Errorf("Session.CacheTTL = %v, want cache disabled", cfg.Session.CacheTTL)
	}
	if cfg.Observability.LogLevel != "debug" {
		t.Errorf("LogLevel = %q", cfg.Observability.LogLevel)
	}
}

func TestBackendURLRequired(t *testing.T) {
	t.Setenv("COMPUTEGATE_SESSION_JWT_SECRET", strings.Repeat("s", 32))

	if _, err := Load(""); err == nil {
		t.Fatal("Load accepted an empty backend URL")
	}
}

func TestBackendURLMustBeAbsolute(t *testing.T) {
	baseEnv(t)
	t.Setenv("COMPUTEGATE_BACKEND_URL", "backend:9099/path")

	if _, err := Load(""); err == nil {
		t.Fatal("Load accepted a relative backend URL")
	}
}

func TestRemoteModeRequiresStoreURL(t *testing.T) {
	baseEnv(t)
	t.Setenv("COMPUTEGATE_IDENTITY_STORE_MODE", "remote")

	if _, err := Load(""); err == nil {
		t.Fatal("Load accepted remote mode without a store URL")
	}

	t.Setenv("COMPUTEGATE_IDENTITY_STORE_URL", "http://identity:7000")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.IdentityStore.URL.Host != "identity:7000" {
		t.Errorf("IdentityStore.URL = %v", cfg.IdentityStore.URL)
	}
	if cfg.IdentityStore.Timeout != 5*time.Second {
		t.Errorf("IdentityStore.Timeout = %v", cfg.IdentityStore.Timeout)
	}
}

func TestLocalModeRequiresStrongJWTSecret(t *testing.T) {
	t.Setenv("COMPUTEGATE_BACKEND_URL", "http://backend:9099")

	if _, err := Load(""); err == nil {
		t.Fatal("Load accepted local mode without a JWT secret")
	}

	t.Setenv("COMPUTEGATE_SESSION_JWT_SECRET", "too-short")
	if _, err := Load(""); err == nil {
		t.Fatal("Load accepted a short JWT secret")
	}
}

func TestInvalidStoreModeRejected(t *testing.T) {
	baseEnv(t)
	t.Setenv("COMPUTEGATE_IDENTITY_STORE_MODE", "hybrid")

	if _, err := Load(""); err == nil {
		t.Fatal("Load accepted an unknown store mode")
	}
}

func TestOIDCRequiresFullClientConfig(t *testing.T) {
	baseEnv(t)
	t.Setenv("COMPUTEGATE_OIDC_ISSUER", "https://login.example.com")

	if _, err := Load(""); err == nil {
		t.Fatal("Load accepted an issuer without client credentials")
	}

	t.Setenv("COMPUTEGATE_OIDC_CLIENT_ID", "computegate")
	t.Setenv("COMPUTEGATE_OIDC_CLIENT_SECRET", "shhh")
	t.Setenv("COMPUTEGATE_OIDC_REDIRECT_URL", "http://localhost:8000/auth/callback")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.OIDC.Issuer != "https://login.example.com" {
		t.Errorf("OIDC.Issuer = %q", cfg.OIDC.Issuer)
	}
}

func TestNegativeCacheTTLRejected(t *testing.T) {
	baseEnv(t)
	t.Setenv("COMPUTEGATE_SESSION_CACHE_TTL", "-5s")

	if _, err := Load(""); err == nil {
		t.Fatal("Load accepted a negative session cache TTL")
	}
}
