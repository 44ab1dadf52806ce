// Package proxy is the forwarding engine: it relays authorized requests to
// the compute backend and streams responses back with bounded memory.
package proxy

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"computegate/internal/contextutil"
	"computegate/internal/httperr"
	"computegate/internal/observability/logging"
	"computegate/internal/observability/metrics"
)

// Identity hint headers injected toward the backend. The backend trusts the
// gateway's network boundary, so these are informational, not credentials.
const (
	UserIDHeader    = "X-Gateway-User-Id"
	UserEmailHeader = "X-Gateway-User-Email"
)

// restPathKey carries the per-request remainder path into the rewrite hook.
type restPathKey struct{}

// startTimeKey carries the relay start time into ModifyResponse for metrics.
type startTimeKey struct{}

// Forwarder relays requests to a single backend target.
type Forwarder struct {
	rp      *httputil.ReverseProxy
	backend *url.URL
	logger  *logging.Logger
	metrics *metrics.Collector
}

// Config holds forwarder configuration.
type Config struct {
	// BackendURL is the base URL of the compute backend.
	BackendURL *url.URL

	// Timeout bounds backend connection establishment and the wait for
	// response headers. Streaming bodies are not subject to it.
	Timeout time.Duration
}

// New creates a new forwarder.
func New(config Config, logger *logging.Logger, metricsCollector *metrics.Collector) *Forwarder {
	f := &Forwarder{
		backend: config.BackendURL,
		logger:  logger.WithModule("proxy"),
		metrics: metricsCollector,
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: config.Timeout,
		}).DialContext,
		ResponseHeaderTimeout: config.Timeout,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	f.rp = &httputil.ReverseProxy{
		Rewrite:        f.rewrite,
		Transport:      transport,
		ModifyResponse: f.modifyResponse,
		ErrorHandler:   f.handleError,
		// Negative FlushInterval flushes every chunk immediately, which is
		// what keeps server-sent events flowing instead of sitting in a
		// buffer.
		FlushInterval: -1,
	}

	return f
}

// Forward relays the request to the backend, replacing the consumed route
// prefix with rest. The caller's context governs cancellation: if the caller
// disconnects mid-stream, the backend request is torn down with it.
func (f *Forwarder) Forward(w http.ResponseWriter, r *http.Request, rest string) {
	ctx := context.WithValue(r.Context(), restPathKey{}, rest)
	ctx = context.WithValue(ctx, startTimeKey{}, time.Now())
	f.rp.ServeHTTP(w, r.WithContext(ctx))
}

// rewrite builds the outbound request envelope: backend target plus the
// remainder path, query preserved verbatim, caller credentials removed,
// forwarding metadata set by us rather than trusted from the caller.
func (f *Forwarder) rewrite(pr *httputil.ProxyRequest) {
	rest, _ := pr.In.Context().Value(restPathKey{}).(string)

	pr.Out.URL.Scheme = f.backend.Scheme
	pr.Out.URL.Host = f.backend.Host
	pr.Out.URL.Path = joinPath(f.backend.Path, rest)
	pr.Out.URL.RawPath = ""
	pr.Out.URL.RawQuery = pr.In.URL.RawQuery
	pr.Out.Host = f.backend.Host

	// The caller's credentials stop here.
	pr.Out.Header.Del("Authorization")
	pr.Out.Header.Del("Cookie")

	// X-Forwarded-* comes from the gateway, never from the caller.
	pr.Out.Header.Del("Forwarded")
	pr.SetXForwarded()

	if p := contextutil.GetPrincipal(pr.In.Context()); p != nil {
		pr.Out.Header.Set(UserIDHeader, p.ID)
		pr.Out.Header.Set(UserEmailHeader, p.Email)
	}
}

// modifyResponse strips Set-Cookie so backend cookies never reach the
// caller, and records relay metrics. Everything else passes through.
func (f *Forwarder) modifyResponse(resp *http.Response) error {
	resp.Header.Del("Set-Cookie")

	if req := resp.Request; req != nil {
		if start, ok := req.Context().Value(startTimeKey{}).(time.Time); ok {
			f.metrics.RecordBackendRequest(req.Method, resp.StatusCode, time.Since(start))
		}
	}
	return nil
}

// handleError classifies transport failures. A caller disconnect is not an
// error to report; a timeout and an unreachable backend map to distinct
// envelopes.
func (f *Forwarder) handleError(w http.ResponseWriter, r *http.Request, err error) {
	logger := logging.LoggerFromContext(r.Context())
	if logger == nil {
		logger = f.logger
	}

	// The inbound URL carries the credential segment; log the remainder path
	// instead.
	rest, _ := r.Context().Value(restPathKey{}).(string)

	if errors.Is(err, context.Canceled) {
		logger.Debug("Caller disconnected during relay", "path", rest)
		return
	}

	var e *httperr.Error
	if isTimeout(err) {
		e = httperr.BackendTimeout(err)
	} else {
		e = httperr.BackendUnreachable(err)
	}

	logger.Error("Backend relay failed",
		logging.Err(err),
		"backend", logging.RedactURL(f.backend),
		"path", rest,
		"status", e.Status,
	)
	f.metrics.RecordBackendRequest(r.Method, e.Status, 0)
	httperr.Write(w, e)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// joinPath joins the backend base path and the remainder with exactly one
// slash between them.
func joinPath(base, rest string) string {
	base = strings.TrimSuffix(base, "/")
	if !strings.HasPrefix(rest, "/") {
		rest = "/" + rest
	}
	return base + rest
}
