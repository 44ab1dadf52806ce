package localstore

import (
	"context"
	"net/http"
	"strings"
	"time"

	"computegate/internal/httperr"
	"computegate/internal/observability/logging"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"golang.org/x/exp/slices"
	"golang.org/x/oauth2"
)

// stateCookie holds the OIDC state between the redirect and the callback.
const stateCookie = "computegate_oidc_state"

// oidcFlow serves the /auth/ surface: login redirect, callback, logout.
type oidcFlow struct {
	store    *Store
	oauth    oauth2.Config
	verifier *oidc.IDTokenVerifier
	handler  http.Handler
}

func newOIDCFlow(config OIDCConfig, store *Store) (*oidcFlow, error) {
	provider, err := oidc.NewProvider(context.Background(), config.Issuer)
	if err != nil {
		return nil, err
	}

	scopes := config.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "email", "profile"}
	}

	f := &oidcFlow{
		store: store,
		oauth: oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			RedirectURL:  config.RedirectURL,
			Endpoint:     provider.Endpoint(),
			Scopes:       scopes,
		},
		verifier: provider.Verifier(&oidc.Config{ClientID: config.ClientID}),
	}

	r := mux.NewRouter()
	r.HandleFunc("/auth/login", f.handleLogin).Methods(http.MethodGet)
	r.HandleFunc("/auth/callback", f.handleCallback).Methods(http.MethodGet)
	r.HandleFunc("/auth/logout", f.handleLogout).Methods(http.MethodPost)
	f.handler = r

	return f, nil
}

// AuthHandler implements identity.Store. Without a configured provider the
// auth surface simply does not exist.
func (s *Store) AuthHandler() http.Handler {
	if s.oidc == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			httperr.Write(w, httperr.NotFound())
		})
	}
	return s.oidc.handler
}

func (f *oidcFlow) handleLogin(w http.ResponseWriter, r *http.Request) {
	state := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/auth/",
		MaxAge:   int((5 * time.Minute).Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, f.oauth.AuthCodeURL(state), http.StatusFound)
}

func (f *oidcFlow) handleCallback(w http.ResponseWriter, r *http.Request) {
	logger := logging.LoggerFromContext(r.Context())
	if logger == nil {
		logger = f.store.logger
	}

	state, err := r.Cookie(stateCookie)
	if err != nil || state.Value == "" || state.Value != r.URL.Query().Get("state") {
		httperr.Write(w, httperr.New(http.StatusBadRequest, "Invalid login state").
			WithMessage("Restart the login flow at /auth/login"))
		return
	}

	token, err := f.oauth.Exchange(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		logger.Error("OIDC code exchange failed", logging.Err(err))
		httperr.Write(w, httperr.New(http.StatusBadGateway, "Login failed"))
		return
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		logger.Error("OIDC provider returned no id_token")
		httperr.Write(w, httperr.New(http.StatusBadGateway, "Login failed"))
		return
	}

	idToken, err := f.verifier.Verify(r.Context(), rawIDToken)
	if err != nil {
		logger.Error("OIDC token verification failed", logging.Err(err))
		httperr.Write(w, httperr.New(http.StatusBadGateway, "Login failed"))
		return
	}

	var claims struct {
		Email    string `json:"email"`
		Verified bool   `json:"email_verified"`
	}
	if err := idToken.Claims(&claims); err != nil || claims.Email == "" {
		logger.Error("OIDC token carried no usable email", logging.Err(err))
		httperr.Write(w, httperr.New(http.StatusBadGateway, "Login failed"))
		return
	}

	if !f.store.emailAllowed(claims.Email) {
		logger.Info("Account creation refused: domain not allowed", "email", claims.Email)
		httperr.Write(w, httperr.New(http.StatusForbidden, "Email domain not allowed").
			WithMessage("Your email domain is not on the allowlist for this gateway"))
		return
	}

	userID, err := f.store.upsertUser(r.Context(), claims.Email)
	if err != nil {
		logger.Error("User upsert failed", logging.Err(err))
		httperr.Write(w, httperr.Internal(err))
		return
	}

	session, err := f.store.issueSession(r.Context(), userID, claims.Email)
	if err != nil {
		logger.Error("Session issuance failed", logging.Err(err))
		httperr.Write(w, httperr.Internal(err))
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     f.store.cookieName,
		Value:    session,
		Path:     "/",
		MaxAge:   int(f.store.sessionTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Path: "/auth/", MaxAge: -1})
	http.Redirect(w, r, "/", http.StatusFound)
}

func (f *oidcFlow) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(f.store.cookieName); err == nil && cookie.Value != "" {
		if claims, ok := f.store.parseSession(cookie.Value); ok {
			if err := f.store.revokeSession(r.Context(), claims.ID); err != nil {
				httperr.Write(w, httperr.Internal(err))
				return
			}
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     f.store.cookieName,
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"success":true}` + "\n"))
}

// emailAllowed enforces the account-creation allowlist. An empty allowlist
// means allow all.
func (s *Store) emailAllowed(email string) bool {
	if len(s.allowedDomains) == 0 {
		return true
	}
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return false
	}
	return slices.Contains(s.allowedDomains, strings.ToLower(email[at+1:]))
}
