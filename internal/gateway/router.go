// Package gateway wires the route classes together: health, the identity
// store's auth surface, credential management, and the gated forwarding
// catch-all.
package gateway

import (
	"encoding/json"
	"net/http"

	"computegate/internal/contextutil"
	"computegate/internal/gate"
	"computegate/internal/httperr"
	"computegate/internal/identity"
	"computegate/internal/observability/logging"
	"computegate/internal/observability/metrics"
	"computegate/internal/proxy"

	"github.com/gorilla/mux"
)

// Router classifies inbound requests and dispatches them. Literal routes are
// registered before the forwarding catch-all, so the most specific class
// wins; anything unmatched renders the normalized 404.
type Router struct {
	*mux.Router
	store     identity.Store
	gate      *gate.Gate
	forwarder *proxy.Forwarder
	logger    *logging.Logger
	metrics   *metrics.Collector
}

// New creates a new router.
func New(store identity.Store, g *gate.Gate, forwarder *proxy.Forwarder, logger *logging.Logger, metricsCollector *metrics.Collector) *Router {
	r := &Router{
		Router:    mux.NewRouter(),
		store:     store,
		gate:      g,
		forwarder: forwarder,
		logger:    logger.WithModule("gateway"),
		metrics:   metricsCollector,
	}
	r.setupRoutes()
	return r
}

func (r *Router) setupRoutes() {
	r.HandleFunc("/health", r.handleHealth).Methods(http.MethodGet)

	// The identity store owns its auth surface; the gateway mounts it
	// verbatim and stays out of the way.
	r.PathPrefix("/auth/").Handler(r.store.AuthHandler())

	r.HandleFunc("/keys/create", r.sessionGated(r.handleCreateKey)).Methods(http.MethodPost)
	r.HandleFunc("/keys/list", r.sessionGated(r.handleListKeys)).Methods(http.MethodGet)
	r.HandleFunc("/keys/{id}", r.sessionGated(r.handleRevokeKey)).Methods(http.MethodDelete)

	// Forwarding catch-all. The {credential} capture refuses an empty
	// segment: "/proxy//rest" is redirected to its cleaned form by mux, and
	// an empty credential never reaches the identity store.
	r.HandleFunc("/proxy/{credential}/{rest:.*}", r.handleProxy)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		httperr.Write(w, httperr.NotFound())
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		httperr.Write(w, httperr.NotFound())
	})
}

// handleHealth answers without touching the identity store or the backend.
func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "computegate",
	})
}

// handleProxy gates and forwards. The gate runs first and is a hard stop:
// the forwarder is never invoked on rejection.
func (r *Router) handleProxy(w http.ResponseWriter, req *http.Request) {
	vars := mux.Vars(req)

	result := r.gate.ResolveProxy(req, vars["credential"])
	if result.Reject != nil {
		httperr.Write(w, result.Reject)
		return
	}

	ctx := contextutil.WithPrincipal(req.Context(), result.Principal)
	r.forwarder.Forward(w, req.WithContext(ctx), vars["rest"])
}

// sessionGated wraps a handler that requires a session-resolved principal.
func (r *Router) sessionGated(h func(http.ResponseWriter, *http.Request, *identity.Principal)) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		result := r.gate.ResolveSession(req)
		if result.Reject != nil {
			httperr.Write(w, result.Reject)
			return
		}
		h(w, req.WithContext(contextutil.WithPrincipal(req.Context(), result.Principal)), result.Principal)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
