package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"computegate/internal/gate"
	"computegate/internal/identity"
	"computegate/internal/observability/logging"
	"computegate/internal/observability/metrics"
	"computegate/internal/proxy"

	"github.com/google/uuid"
)

const testCookie = "computegate_session"

// fakeStore is an in-memory identity store with enough behavior to drive
// the full route surface.
type fakeStore struct {
	mu       sync.Mutex
	sessions map[string]*identity.Principal
	keys     map[string]*identity.Principal // secret -> owner
	metaByID map[string]identity.CredentialMeta
	secrets  map[string]string // key id -> secret
	err      error
	keyCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sessions: make(map[string]*identity.Principal),
		keys:     make(map[string]*identity.Principal),
		metaByID: make(map[string]identity.CredentialMeta),
		secrets:  make(map[string]string),
	}
}

func (f *fakeStore) ResolveSession(ctx context.Context, token string) (*identity.Principal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.sessions[token], nil
}

func (f *fakeStore) ResolveAPIKey(ctx context.Context, key string) (*identity.Principal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keyCalls++
	if f.err != nil {
		return nil, f.err
	}
	return f.keys[key], nil
}

func (f *fakeStore) CreateAPIKey(ctx context.Context, p *identity.Principal, opts identity.CreateKeyOptions) (*identity.Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}

	secret := identity.KeyPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
	cred := &identity.Credential{
		CredentialMeta: identity.CredentialMeta{
			ID:        uuid.NewString(),
			Name:      opts.Name,
			CreatedAt: time.Now(),
		},
		Secret: secret,
	}
	if opts.ExpiresIn != 0 {
		cred.ExpiresAt = cred.CreatedAt.Add(opts.ExpiresIn)
	}

	owner := *p
	owner.Kind = identity.KindAPIKey
	f.keys[secret] = &owner
	f.metaByID[cred.ID] = cred.CredentialMeta
	f.secrets[cred.ID] = secret
	return cred, nil
}

func (f *fakeStore) ListAPIKeys(ctx context.Context, p *identity.Principal) ([]identity.CredentialMeta, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var metas []identity.CredentialMeta
	for _, meta := range f.metaByID {
		metas = append(metas, meta)
	}
	return metas, nil
}

func (f *fakeStore) RevokeAPIKey(ctx context.Context, p *identity.Principal, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	secret, ok := f.secrets[id]
	if !ok {
		return identity.ErrKeyNotFound
	}
	delete(f.keys, secret)
	delete(f.metaByID, id)
	delete(f.secrets, id)
	return nil
}

func (f *fakeStore) AuthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Auth-Surface", "identity-store")
		w.WriteHeader(http.StatusOK)
	})
}

func newTestRouter(t *testing.T, store identity.Store, backendURL string) *Router {
	t.Helper()
	logger, err := logging.NewLogger("error")
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	collector := metrics.NewCollector()

	u, err := url.Parse(backendURL)
	if err != nil {
		t.Fatalf("failed to parse backend URL: %v", err)
	}

	g := gate.New(gate.Config{CookieName: testCookie}, store, logger, collector)
	f := proxy.New(proxy.Config{BackendURL: u, Timeout: time.Second}, logger, collector)
	return New(store, g, f, logger, collector)
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("response is not JSON: %v (body: %s)", err, rec.Body.String())
	}
}

func sessionRequest(method, target, token string) *http.Request {
	r := httptest.NewRequest(method, target, nil)
	r.AddCookie(&http.Cookie{Name: testCookie, Value: token})
	return r
}

func TestHealthNeedsNoAuthAndNoBackend(t *testing.T) {
	// Backend URL points nowhere; health must not care.
	router := newTestRouter(t, newFakeStore(), "http://127.0.0.1:1")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]string
	decodeJSON(t, rec, &body)
	if body["status"] != "healthy" {
		t.Errorf("status field = %q, want healthy", body["status"])
	}
}

func TestAuthSurfaceIsDelegatedVerbatim(t *testing.T) {
	router := newTestRouter(t, newFakeStore(), "http://127.0.0.1:1")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/login", nil))

	if rec.Header().Get("X-Auth-Surface") != "identity-store" {
		t.Error("/auth/ request did not reach the identity store's handler")
	}
}

func TestUnknownKeyProxyRejected(t *testing.T) {
	store := newFakeStore()
	router := newTestRouter(t, store, "http://127.0.0.1:1")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/proxy/oc_unknown/ping", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	var body map[string]string
	decodeJSON(t, rec, &body)
	if body["error"] != "Invalid or expired API key" {
		t.Errorf("error = %q", body["error"])
	}
}

// TestEmptyCredentialSegmentNeverReachesStore pins the fail-closed behavior
// for "/proxy//rest": the router redirects to the cleaned path, and the
// cleaned path's credential segment fails the format check locally. At no
// point does an empty credential reach the identity store.
func TestEmptyCredentialSegmentNeverReachesStore(t *testing.T) {
	store := newFakeStore()
	router := newTestRouter(t, store, "http://127.0.0.1:1")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/proxy//ping", nil))

	if rec.Code != http.StatusMovedPermanently {
		t.Fatalf("status = %d, want 301 to the cleaned path", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/proxy/ping" {
		t.Errorf("Location = %q, want /proxy/ping", loc)
	}

	// Following the redirect: "/proxy/ping" has no remainder segment, so it
	// misses the forwarding route entirely and renders the normalized 404.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/proxy/ping", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}

	if calls := store.keyCalls; calls != 0 {
		t.Errorf("identity store consulted %d times for an empty credential", calls)
	}
}

func TestKeysRoutesRequireSession(t *testing.T) {
	router := newTestRouter(t, newFakeStore(), "http://127.0.0.1:1")

	targets := []struct {
		method, path string
	}{
		{http.MethodPost, "/keys/create"},
		{http.MethodGet, "/keys/list"},
		{http.MethodDelete, "/keys/some-id"},
	}
	for _, tt := range targets {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s: status = %d, want 401", tt.method, tt.path, rec.Code)
		}
	}
}

// TestKeyLifecycleEndToEnd walks the full loop: create a key with a session,
// use it through the proxy, revoke it, and watch the next use fail.
func TestKeyLifecycleEndToEnd(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ping" {
			w.Write([]byte("pong"))
			return
		}
		http.NotFound(w, r)
	}))
	defer backend.Close()

	store := newFakeStore()
	store.sessions["sess1"] = &identity.Principal{ID: "u1", Email: "u1@example.com", Kind: identity.KindSession}
	router := newTestRouter(t, store, backend.URL)

	// Create.
	createReq := sessionRequest(http.MethodPost, "/keys/create", "sess1")
	createReq.Body = http.NoBody
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, createReq)
	if rec.Code != http.StatusOK {
		t.Fatalf("create: status = %d (body: %s)", rec.Code, rec.Body.String())
	}

	var created struct {
		ID  string `json:"id"`
		Key string `json:"key"`
	}
	decodeJSON(t, rec, &created)
	if created.ID == "" {
		t.Fatal("create: no key id returned")
	}
	if !strings.HasPrefix(created.Key, identity.KeyPrefix) {
		t.Fatalf("create: key %q does not carry the %q prefix", created.Key, identity.KeyPrefix)
	}

	// List: metadata only, never the secret.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, sessionRequest(http.MethodGet, "/keys/list", "sess1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status = %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), created.Key) {
		t.Error("list re-displayed an issued secret")
	}
	var listed []identity.CredentialMeta
	decodeJSON(t, rec, &listed)
	if len(listed) != 1 || listed[0].ID != created.ID {
		t.Errorf("list = %+v, want the one created key", listed)
	}

	// Use through the proxy.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/proxy/"+created.Key+"/ping", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("proxy: status = %d (body: %s)", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != "pong" {
		t.Errorf("proxy body = %q, want pong", rec.Body.String())
	}

	// Revoke.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, sessionRequest(http.MethodDelete, "/keys/"+created.ID, "sess1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("revoke: status = %d", rec.Code)
	}
	var revoked map[string]bool
	decodeJSON(t, rec, &revoked)
	if !revoked["success"] {
		t.Error("revoke: success flag not set")
	}

	// The revoked key never passes the gate again.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/proxy/"+created.Key+"/ping", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("proxy after revoke: status = %d, want 401", rec.Code)
	}

	// Revoking again reports not found, without crashing.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, sessionRequest(http.MethodDelete, "/keys/"+created.ID, "sess1"))
	if rec.Code != http.StatusNotFound {
		t.Errorf("double revoke: status = %d, want 404", rec.Code)
	}
}

func TestStoreOutageIs503NotAuthFailure(t *testing.T) {
	store := newFakeStore()
	store.err = fmt.Errorf("%w: dial tcp: connection refused", identity.ErrUnavailable)
	router := newTestRouter(t, store, "http://127.0.0.1:1")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/proxy/oc_anything/ping", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("proxy during outage: status = %d, want 503", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, sessionRequest(http.MethodGet, "/keys/list", "sess1"))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("keys during outage: status = %d, want 503", rec.Code)
	}
}

func TestBackendUnreachableRendersProxyError(t *testing.T) {
	store := newFakeStore()
	store.keys["oc_good"] = &identity.Principal{ID: "u1", Kind: identity.KindAPIKey}
	router := newTestRouter(t, store, "http://127.0.0.1:1")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/proxy/oc_good/ping", nil))

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	var body map[string]string
	decodeJSON(t, rec, &body)
	if body["error"] != "Failed to proxy request" {
		t.Errorf("error = %q", body["error"])
	}
}

func TestUnmatchedRouteRendersNormalized404(t *testing.T) {
	router := newTestRouter(t, newFakeStore(), "http://127.0.0.1:1")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	var body map[string]string
	decodeJSON(t, rec, &body)
	if body["error"] == "" {
		t.Error("404 response is not the normalized envelope")
	}
}
