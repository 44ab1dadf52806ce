// Package gate resolves caller credentials into principals and is the hard
// stop in front of the forwarding engine: on rejection nothing downstream
// runs.
package gate

import (
	"net/http"
	"time"

	"computegate/internal/httperr"
	"computegate/internal/identity"
	"computegate/internal/observability/logging"
	"computegate/internal/observability/metrics"
)

// APIKeyHeader is the designated header for API keys. When both the header
// and the path credential are present, the header wins.
const APIKeyHeader = "X-API-Key"

// Result is the tagged outcome of a resolution: exactly one of Principal or
// Reject is set. Expected failures travel as values, not panics.
type Result struct {
	Principal *identity.Principal
	Reject    *httperr.Error
}

// Authorized wraps a resolved principal.
func Authorized(p *identity.Principal) Result {
	return Result{Principal: p}
}

// Rejected wraps a classified rejection.
func Rejected(e *httperr.Error) Result {
	return Result{Reject: e}
}

// Gate performs credential resolution against the identity store.
type Gate struct {
	store      identity.Store
	cache      *sessionCache
	cookieName string
	logger     *logging.Logger
	metrics    *metrics.Collector
}

// Config holds gate configuration.
type Config struct {
	// CookieName is the name of the session cookie.
	CookieName string

	// SessionCacheTTL bounds how long a successful session resolution may be
	// reused without asking the store again. Zero disables the cache, so
	// revocation is visible at the latest once this window elapses.
	SessionCacheTTL time.Duration
}

// New creates a new gate.
func New(config Config, store identity.Store, logger *logging.Logger, metricsCollector *metrics.Collector) *Gate {
	var cache *sessionCache
	if config.SessionCacheTTL > 0 {
		cache = newSessionCache(config.SessionCacheTTL)
	}
	return &Gate{
		store:      store,
		cache:      cache,
		cookieName: config.CookieName,
		logger:     logger.WithModule("gate"),
		metrics:    metricsCollector,
	}
}

// ResolveSession resolves the session cookie. Used by the credential
// management routes, which accept sessions only.
func (g *Gate) ResolveSession(r *http.Request) Result {
	cookie, err := r.Cookie(g.cookieName)
	if err != nil || cookie.Value == "" {
		g.metrics.RecordAuthentication(string(identity.KindSession), false)
		return Rejected(httperr.AuthMissing())
	}
	return g.resolveSessionToken(r, cookie.Value)
}

// ResolveProxy resolves the credential for a forwarding request. The
// designated header takes precedence over the path credential; a caller that
// presents no well-formed API key may still pass with a session cookie.
func (g *Gate) ResolveProxy(r *http.Request, pathCredential string) Result {
	key := r.Header.Get(APIKeyHeader)
	if key == "" {
		key = pathCredential
	}

	if identity.ValidKeyFormat(key) {
		return g.resolveAPIKey(r, key)
	}

	// No usable API key. A browser session is an acceptable credential for
	// forwarding, so fall back to the cookie before rejecting.
	if cookie, err := r.Cookie(g.cookieName); err == nil && cookie.Value != "" {
		return g.resolveSessionToken(r, cookie.Value)
	}

	g.metrics.RecordAuthentication(string(identity.KindAPIKey), false)
	if key == "" {
		return Rejected(httperr.AuthMissing())
	}
	return Rejected(httperr.AuthFormat("API keys must start with \"" + identity.KeyPrefix + "\""))
}

// resolveAPIKey asks the store about a key that already passed the local
// prefix check.
func (g *Gate) resolveAPIKey(r *http.Request, key string) Result {
	logger := g.requestLogger(r)

	p, err := g.store.ResolveAPIKey(r.Context(), key)
	if err != nil {
		logger.Error("API key resolution failed", logging.Err(err), "key", logging.RedactKey(key))
		g.metrics.RecordStoreLookup("resolve_api_key", "error")
		g.metrics.RecordAuthentication(string(identity.KindAPIKey), false)
		return Rejected(httperr.StoreUnavailable(err))
	}
	if p == nil {
		logger.Info("API key not recognized", "key", logging.RedactKey(key))
		g.metrics.RecordStoreLookup("resolve_api_key", "miss")
		g.metrics.RecordAuthentication(string(identity.KindAPIKey), false)
		return Rejected(httperr.AuthInvalid())
	}

	g.metrics.RecordStoreLookup("resolve_api_key", "hit")
	g.metrics.RecordAuthentication(string(identity.KindAPIKey), true)
	return Authorized(p)
}

// resolveSessionToken resolves a session token, consulting the bounded
// staleness cache first. Only successful resolutions are cached.
func (g *Gate) resolveSessionToken(r *http.Request, token string) Result {
	logger := g.requestLogger(r)

	if g.cache != nil {
		if p, ok := g.cache.get(token); ok {
			g.metrics.RecordSessionCache(true)
			g.metrics.RecordAuthentication(string(identity.KindSession), true)
			return Authorized(p)
		}
		g.metrics.RecordSessionCache(false)
	}

	p, err := g.store.ResolveSession(r.Context(), token)
	if err != nil {
		logger.Error("Session resolution failed", logging.Err(err))
		g.metrics.RecordStoreLookup("resolve_session", "error")
		g.metrics.RecordAuthentication(string(identity.KindSession), false)
		return Rejected(httperr.StoreUnavailable(err))
	}
	if p == nil {
		logger.Info("Session not recognized")
		g.metrics.RecordStoreLookup("resolve_session", "miss")
		g.metrics.RecordAuthentication(string(identity.KindSession), false)
		return Rejected(httperr.SessionInvalid())
	}

	g.metrics.RecordStoreLookup("resolve_session", "hit")
	g.metrics.RecordAuthentication(string(identity.KindSession), true)
	if g.cache != nil {
		g.cache.put(token, p)
	}
	return Authorized(p)
}

func (g *Gate) requestLogger(r *http.Request) *logging.Logger {
	if logger := logging.LoggerFromContext(r.Context()); logger != nil {
		return logger
	}
	return g.logger
}
