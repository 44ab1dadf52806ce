// Package observability bundles the logger and metrics collector and
// provides the outermost request middleware.
package observability

import (
	"net/http"
	"strings"
	"time"

	"computegate/internal/contextutil"
	"computegate/internal/httputils"
	"computegate/internal/observability/logging"
	"computegate/internal/observability/metrics"
)

// Provider provides observability capabilities
type Provider struct {
	Logger  *logging.Logger
	Metrics *metrics.Collector
}

// NewProvider creates a new observability provider
func NewProvider(logLevel string) (*Provider, error) {
	logger, err := logging.NewLogger(logLevel)
	if err != nil {
		return nil, err
	}

	return &Provider{
		Logger:  logger,
		Metrics: metrics.NewCollector(),
	}, nil
}

// Middleware wraps the handler chain with per-request tracing, logging, and
// request metrics. The response writer wrapper forwards Flush so streamed
// backend responses are not buffered by the instrumentation.
func (p *Provider) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		ctx := r.Context()
		traceID := contextutil.GetTraceID(ctx)
		if traceID == "" {
			traceID = logging.NewTraceID()
			ctx = contextutil.WithTraceID(ctx, traceID)
		}

		spanID := logging.NewSpanID()
		ctx = contextutil.WithSpanID(ctx, spanID)

		logger := p.Logger.With(logging.TraceIDKey, traceID, logging.SpanIDKey, spanID)
		ctx = logging.ContextWithLogger(ctx, logger)

		wrapper := httputils.NewResponseWriter(w)
		wrapper.Header().Set("X-Trace-ID", traceID)

		path := telemetryPath(r.URL.Path)

		logger.Debug("Request started",
			"method", r.Method,
			"path", path,
			"remote_addr", r.RemoteAddr,
		)

		next.ServeHTTP(wrapper, r.WithContext(ctx))

		duration := time.Since(startTime)
		p.Metrics.RecordRequest(r.Method, path, wrapper.StatusCode, duration)

		logger.Info("Request completed",
			"method", r.Method,
			"path", path,
			"status", wrapper.StatusCode,
			"duration_ms", duration.Milliseconds(),
			"bytes_written", wrapper.BytesWritten,
		)
	})
}

// telemetryPath collapses caller-controlled path segments before they reach
// logs or metric labels. Forwarding paths carry the raw credential in the
// URL, and key ids are unbounded.
func telemetryPath(path string) string {
	switch {
	case strings.HasPrefix(path, "/proxy/"):
		return "/proxy"
	case strings.HasPrefix(path, "/keys/") && path != "/keys/create" && path != "/keys/list":
		return "/keys/{id}"
	}
	return path
}

// MetricsHandler returns an HTTP handler for exposing metrics
func (p *Provider) MetricsHandler() http.Handler {
	return metrics.Handler()
}
