// internal/server/factory.go
package server

import (
	"fmt"

	"computegate/internal/config"
	"computegate/internal/gate"
	"computegate/internal/gateway"
	"computegate/internal/identity"
	"computegate/internal/identity/localstore"
	"computegate/internal/identity/remote"
	"computegate/internal/observability"
	"computegate/internal/proxy"
)

// NewFromConfig builds the whole object graph from configuration: every
// dependency is constructed here and injected explicitly, so tests can
// substitute fakes without process-wide state.
func NewFromConfig(cfg *config.Config) (*Server, error) {
	obs, err := observability.NewProvider(cfg.Observability.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize observability: %w", err)
	}
	logger := obs.Logger

	store, err := newStore(cfg, obs)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize identity store: %w", err)
	}

	authGate := gate.New(gate.Config{
		CookieName:      cfg.Session.CookieName,
		SessionCacheTTL: cfg.Session.CacheTTL,
	}, store, logger, obs.Metrics)

	forwarder := proxy.New(proxy.Config{
		BackendURL: cfg.Backend.URL,
		Timeout:    cfg.Backend.Timeout,
	}, logger, obs.Metrics)

	router := gateway.New(store, authGate, forwarder, logger, obs.Metrics)

	handler := obs.Middleware(router)

	srv := New(Config{
		Address:         cfg.Server.Address,
		MetricsAddress:  cfg.Metrics.Address,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, handler, obs.MetricsHandler(), logger)

	return srv, nil
}

// newStore selects the identity store implementation from configuration.
func newStore(cfg *config.Config, obs *observability.Provider) (identity.Store, error) {
	switch cfg.IdentityStore.Mode {
	case config.StoreModeRemote:
		obs.Logger.Info("Using remote identity store", "url", cfg.IdentityStore.URL.Redacted())
		return remote.New(remote.Config{
			URL:     cfg.IdentityStore.URL,
			Timeout: cfg.IdentityStore.Timeout,
		}, obs.Logger), nil

	case config.StoreModeLocal:
		obs.Logger.Info("Using local identity store", "path", cfg.IdentityStore.DBPath)
		return localstore.Open(localstore.Config{
			Path:                cfg.IdentityStore.DBPath,
			JWTSecret:           cfg.Session.JWTSecret,
			SessionTTL:          cfg.Session.TTL,
			CookieName:          cfg.Session.CookieName,
			AllowedEmailDomains: cfg.IdentityStore.AllowedEmailDomains,
			OIDC: localstore.OIDCConfig{
				Issuer:       cfg.OIDC.Issuer,
				ClientID:     cfg.OIDC.ClientID,
				ClientSecret: cfg.OIDC.ClientSecret,
				RedirectURL:  cfg.OIDC.RedirectURL,
				Scopes:       cfg.OIDC.Scopes,
			},
		}, obs.Logger)

	default:
		return nil, fmt.Errorf("unknown identity store mode: %q", cfg.IdentityStore.Mode)
	}
}
