// Package httperr is the single point where failures from routing,
// authentication, and forwarding are normalized into the client-facing
// JSON error envelope.
package httperr

import (
	"encoding/json"
	"net/http"
)

// Error is a classified pipeline failure. Code is rendered as the stable
// "error" field of the envelope; Message is optional and only set for
// client-actionable cases. The cause is for logs and is never rendered.
type Error struct {
	Status  int
	Code    string
	Message string
	cause   error
}

// envelope is the wire form of every error response.
type envelope struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Code + ": " + e.cause.Error()
	}
	return e.Code
}

// Unwrap exposes the cause for errors.Is/As in logs and tests.
func (e *Error) Unwrap() error { return e.cause }

// New creates an error with the given status and stable code string.
func New(status int, code string) *Error {
	return &Error{Status: status, Code: code}
}

// WithMessage attaches a client-actionable message to the envelope.
func (e *Error) WithMessage(msg string) *Error {
	e.Message = msg
	return e
}

// WithCause attaches the underlying failure for logging purposes.
func (e *Error) WithCause(err error) *Error {
	e.cause = err
	return e
}

// AuthMissing reports a request that carried no credential at all.
func AuthMissing() *Error {
	return New(http.StatusUnauthorized, "Authentication required")
}

// AuthFormat reports a credential that is malformed before any store lookup.
func AuthFormat(msg string) *Error {
	return New(http.StatusUnauthorized, "Invalid API key format").WithMessage(msg)
}

// AuthInvalid reports a well-formed API key the identity store does not recognize.
func AuthInvalid() *Error {
	return New(http.StatusUnauthorized, "Invalid or expired API key")
}

// SessionInvalid reports a session cookie the identity store does not recognize.
func SessionInvalid() *Error {
	return New(http.StatusUnauthorized, "Invalid or expired session")
}

// StoreUnavailable reports that the identity store could not be reached.
// Deliberately distinct from AuthInvalid: an unreachable store is never a 401.
func StoreUnavailable(err error) *Error {
	return New(http.StatusServiceUnavailable, "Identity service unavailable").WithCause(err)
}

// NotFound reports a router-level mismatch.
func NotFound() *Error {
	return New(http.StatusNotFound, "Not found")
}

// KeyNotFound reports revocation of an unknown or already-revoked API key.
func KeyNotFound() *Error {
	return New(http.StatusNotFound, "API key not found")
}

// BackendUnreachable reports a failure to connect to the compute backend.
func BackendUnreachable(err error) *Error {
	return New(http.StatusBadGateway, "Failed to proxy request").WithCause(err)
}

// BackendTimeout reports a backend that accepted the connection but did not
// answer within the configured deadline.
func BackendTimeout(err error) *Error {
	return New(http.StatusGatewayTimeout, "Backend request timed out").WithCause(err)
}

// Internal is the fallback for anything unclassified. No detail leaks.
func Internal(err error) *Error {
	return New(http.StatusInternalServerError, "Internal server error").WithCause(err)
}

// From passes classified errors through untouched and wraps everything else
// as Internal. The normalizer never re-interprets a classified error.
func From(err error) *Error {
	if e, ok := err.(*Error); ok {
		return e
	}
	return Internal(err)
}

// Write renders the envelope. It is the only place error responses are
// serialized, so the shape is uniform across the pipeline.
func Write(w http.ResponseWriter, e *Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.Status)
	_ = json.NewEncoder(w).Encode(envelope{Error: e.Code, Message: e.Message})
}
