package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Common label names for consistent metrics
const (
	LabelStatus  = "status"
	LabelMethod  = "method"
	LabelPath    = "path"
	LabelKind    = "credential_kind"
	LabelOp      = "op"
	LabelOutcome = "outcome"
	LabelSuccess = "success"
)

var (
	// RequestsTotal counts all HTTP requests
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "computegate_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{LabelMethod, LabelPath, LabelStatus},
	)

	// RequestDuration tracks the duration of HTTP requests
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "computegate_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{LabelMethod, LabelPath},
	)

	// AuthenticationTotal counts credential resolutions by kind and outcome
	AuthenticationTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "computegate_authentication_total",
			Help: "Total number of credential resolution attempts",
		},
		[]string{LabelKind, LabelSuccess},
	)

	// StoreLookupTotal counts identity store calls by operation and outcome
	StoreLookupTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "computegate_store_lookups_total",
			Help: "Total number of identity store lookups",
		},
		[]string{LabelOp, LabelOutcome},
	)

	// SessionCacheTotal counts session cache hits and misses
	SessionCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "computegate_session_cache_total",
			Help: "Total number of session cache lookups",
		},
		[]string{LabelOutcome},
	)

	// BackendRequestTotal counts requests relayed to the compute backend
	BackendRequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "computegate_backend_requests_total",
			Help: "Total number of requests relayed to the compute backend",
		},
		[]string{LabelMethod, LabelStatus},
	)

	// BackendRequestDuration tracks the duration of relayed backend requests
	BackendRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "computegate_backend_request_duration_seconds",
			Help:    "Duration of relayed backend requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{LabelMethod},
	)
)

// Collector provides methods for recording metrics
type Collector struct{}

// NewCollector creates a new metrics collector
func NewCollector() *Collector {
	return &Collector{}
}

// RecordRequest records metrics for an HTTP request
func (c *Collector) RecordRequest(method, path string, status int, duration time.Duration) {
	RequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordAuthentication records a credential resolution attempt
func (c *Collector) RecordAuthentication(kind string, success bool) {
	AuthenticationTotal.WithLabelValues(kind, strconv.FormatBool(success)).Inc()
}

// RecordStoreLookup records an identity store call.
// Outcome is one of "hit", "miss", "error".
func (c *Collector) RecordStoreLookup(op, outcome string) {
	StoreLookupTotal.WithLabelValues(op, outcome).Inc()
}

// RecordSessionCache records a session cache lookup
func (c *Collector) RecordSessionCache(hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	SessionCacheTotal.WithLabelValues(outcome).Inc()
}

// RecordBackendRequest records a request relayed to the compute backend
func (c *Collector) RecordBackendRequest(method string, status int, duration time.Duration) {
	BackendRequestTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	BackendRequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// Handler returns an HTTP handler for exposing metrics
func Handler() http.Handler {
	return promhttp.Handler()
}
