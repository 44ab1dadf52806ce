package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"computegate/internal/httperr"
	"computegate/internal/identity"
	"computegate/internal/observability/logging"

	"github.com/gorilla/mux"
)

// createKeyRequest is the body of POST /keys/create. ExpiresIn is in
// seconds; zero or absent means the key never expires.
type createKeyRequest struct {
	Name      string `json:"name"`
	ExpiresIn int64  `json:"expiresIn"`
}

func (r *Router) handleCreateKey(w http.ResponseWriter, req *http.Request, p *identity.Principal) {
	var body createKeyRequest
	if req.Body != nil && req.ContentLength != 0 {
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			httperr.Write(w, httperr.New(http.StatusBadRequest, "Invalid request body").WithCause(err))
			return
		}
	}

	opts := identity.CreateKeyOptions{
		Name:      body.Name,
		ExpiresIn: time.Duration(body.ExpiresIn) * time.Second,
	}

	cred, err := r.store.CreateAPIKey(req.Context(), p, opts)
	if err != nil {
		r.writeStoreError(w, req, "create API key", err)
		return
	}

	r.metrics.RecordStoreLookup("create_api_key", "hit")
	// The one and only time the raw secret leaves the store.
	writeJSON(w, http.StatusOK, cred)
}

func (r *Router) handleListKeys(w http.ResponseWriter, req *http.Request, p *identity.Principal) {
	keys, err := r.store.ListAPIKeys(req.Context(), p)
	if err != nil {
		r.writeStoreError(w, req, "list API keys", err)
		return
	}
	if keys == nil {
		keys = []identity.CredentialMeta{}
	}
	writeJSON(w, http.StatusOK, keys)
}

func (r *Router) handleRevokeKey(w http.ResponseWriter, req *http.Request, p *identity.Principal) {
	id := mux.Vars(req)["id"]

	if err := r.store.RevokeAPIKey(req.Context(), p, id); err != nil {
		if errors.Is(err, identity.ErrKeyNotFound) {
			httperr.Write(w, httperr.KeyNotFound())
			return
		}
		r.writeStoreError(w, req, "revoke API key", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// writeStoreError maps store failures for the management routes: transport
// failures are 503, anything else is the opaque 500.
func (r *Router) writeStoreError(w http.ResponseWriter, req *http.Request, op string, err error) {
	logger := logging.LoggerFromContext(req.Context())
	if logger == nil {
		logger = r.logger
	}
	logger.Error("Identity store call failed", "op", op, logging.Err(err))

	if errors.Is(err, identity.ErrUnavailable) {
		httperr.Write(w, httperr.StoreUnavailable(err))
		return
	}
	httperr.Write(w, httperr.Internal(err))
}
