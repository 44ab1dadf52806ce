package httputils

import (
	"bufio"
	"errors"
	"net"
	"net/http"
)

// ResponseWriter is a wrapper for http.ResponseWriter that captures the
// status code and bytes written. It forwards Flush and Hijack so that
// streamed responses (server-sent events in particular) keep their
// streaming semantics through the middleware chain.
type ResponseWriter struct {
	http.ResponseWriter
	StatusCode    int
	BytesWritten  int
	HeaderWritten bool
}

// NewResponseWriter creates a new response writer wrapper
func NewResponseWriter(w http.ResponseWriter) *ResponseWriter {
	return &ResponseWriter{
		ResponseWriter: w,
		StatusCode:     http.StatusOK,
	}
}

// WriteHeader captures the status code and passes it to the underlying ResponseWriter
func (rw *ResponseWriter) WriteHeader(code int) {
	if !rw.HeaderWritten {
		rw.StatusCode = code
		rw.HeaderWritten = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

// Write captures the bytes written and passes them to the underlying ResponseWriter
func (rw *ResponseWriter) Write(b []byte) (int, error) {
	if !rw.HeaderWritten {
		rw.WriteHeader(http.StatusOK)
	}
	size, err := rw.ResponseWriter.Write(b)
	rw.BytesWritten += size
	return size, err
}

// Flush implements http.Flusher by forwarding to the underlying ResponseWriter.
func (rw *ResponseWriter) Flush() {
	if flusher, ok := rw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Hijack implements http.Hijacker by forwarding to the underlying ResponseWriter.
func (rw *ResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := rw.ResponseWriter.(http.Hijacker); ok {
		return hijacker.Hijack()
	}
	return nil, nil, errors.New("underlying ResponseWriter does not implement http.Hijacker")
}
