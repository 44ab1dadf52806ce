// internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Load loads the configuration from all sources and returns the merged result
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set default values
	Settings.PopulateViperDefaults(v)

	// Set up environment variable handling
	v.SetEnvPrefix("COMPUTEGATE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	// Load from config file if specified
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			// It's okay if the config file doesn't exist, but other errors should be reported
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	config := &Config{}

	// Server configuration
	config.Server.Address = v.GetString("SERVER_ADDR")
	shutdownTimeout, err := time.ParseDuration(v.GetString("SHUTDOWN_TIMEOUT"))
	if err != nil {
		return nil, fmt.Errorf("invalid shutdown timeout: %w", err)
	}
	config.Server.ShutdownTimeout = shutdownTimeout

	// Metrics configuration
	config.Metrics.Address = v.GetString("METRICS_ADDR")

	// Backend configuration
	backendURL, err := url.Parse(v.GetString("BACKEND_URL"))
	if err != nil {
		return nil, fmt.Errorf("invalid backend URL: %w", err)
	}
	config.Backend.URL = backendURL

	backendTimeout, err := time.ParseDuration(v.GetString("BACKEND_TIMEOUT"))
	if err != nil {
		return nil, fmt.Errorf("invalid backend timeout: %w", err)
	}
	config.Backend.Timeout = backendTimeout

	// Identity store configuration
	config.IdentityStore.Mode = StoreMode(v.GetString("IDENTITY_STORE_MODE"))
	config.IdentityStore.DBPath = v.GetString("IDENTITY_DB_PATH")
	config.IdentityStore.AllowedEmailDomains = v.GetStringSlice("ALLOWED_EMAIL_DOMAINS")

	if raw := v.GetString("IDENTITY_STORE_URL"); raw != "" {
		storeURL, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid identity store URL: %w", err)
		}
		config.IdentityStore.URL = storeURL
	}

	storeTimeout, err := time.ParseDuration(v.GetString("IDENTITY_STORE_TIMEOUT"))
	if err != nil {
		return nil, fmt.Errorf("invalid identity store timeout: %w", err)
	}
	config.IdentityStore.Timeout = storeTimeout

	// Session configuration
	config.Session.CookieName = v.GetString("SESSION_COOKIE_NAME")
	config.Session.JWTSecret = v.GetString("SESSION_JWT_SECRET")

	sessionTTL, err := time.ParseDuration(v.GetString("SESSION_TTL"))
	if err != nil {
		return nil, fmt.Errorf("invalid session TTL: %w", err)
	}
	config.Session.TTL = sessionTTL

	cacheTTL, err := time.ParseDuration(v.GetString("SESSION_CACHE_TTL"))
	if err != nil {
		return nil, fmt.Errorf("invalid session cache TTL: %w", err)
	}
	config.Session.CacheTTL = cacheTTL

	// OIDC configuration
	config.OIDC.Issuer = v.GetString("OIDC_ISSUER")
	config.OIDC.ClientID = v.GetString("OIDC_CLIENT_ID")
	config.OIDC.ClientSecret = v.GetString("OIDC_CLIENT_SECRET")
	config.OIDC.RedirectURL = v.GetString("OIDC_REDIRECT_URL")
	config.OIDC.Scopes = v.GetStringSlice("OIDC_SCOPES")

	// Observability configuration
	config.Observability.LogLevel = v.GetString("LOG_LEVEL")

	if err := validateConfig(config); err != nil {
		return nil, err
	}

	return config, nil
}

// validateConfig performs validation on the loaded configuration
func validateConfig(cfg *Config) error {
	if cfg.Backend.URL == nil || cfg.Backend.URL.String() == "" {
		return fmt.Errorf("backend URL is required")
	}
	if cfg.Backend.URL.Scheme == "" || cfg.Backend.URL.Host == "" {
		return fmt.Errorf("backend URL must be absolute: %q", cfg.Backend.URL)
	}

	switch cfg.IdentityStore.Mode {
	case StoreModeLocal:
		if err := validateLocalStoreConfig(cfg); err != nil {
			return err
		}
	case StoreModeRemote:
		if cfg.IdentityStore.URL == nil {
			return fmt.Errorf("identity store URL is required in remote mode")
		}
		if cfg.IdentityStore.URL.Scheme == "" || cfg.IdentityStore.URL.Host == "" {
			return fmt.Errorf("identity store URL must be absolute: %q", cfg.IdentityStore.URL)
		}
	default:
		return fmt.Errorf("invalid identity store mode: %q", cfg.IdentityStore.Mode)
	}

	if cfg.Session.CacheTTL < 0 {
		return fmt.Errorf("session cache TTL must not be negative")
	}

	return nil
}

// validateLocalStoreConfig validates the settings the local store depends on
func validateLocalStoreConfig(cfg *Config) error {
	if cfg.IdentityStore.DBPath == "" {
		return fmt.Errorf("identity database path is required in local mode")
	}
	if cfg.Session.JWTSecret == "" {
		return fmt.Errorf("session JWT secret is required in local mode")
	}
	if len(cfg.Session.JWTSecret) < 32 {
		return fmt.Errorf("session JWT secret must be at least 32 bytes long")
	}

	// The login flow is optional, but once enabled it needs the full client
	// configuration.
	if cfg.OIDC.Issuer != "" {
		if cfg.OIDC.ClientID == "" || cfg.OIDC.ClientSecret == "" {
			return fmt.Errorf("OIDC client ID and secret are required when an issuer is configured")
		}
		if cfg.OIDC.RedirectURL == "" {
			return fmt.Errorf("OIDC redirect URL is required when an issuer is configured")
		}
	}

	return nil
}
