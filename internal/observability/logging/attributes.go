package logging

import (
	"log/slog"
	"net/url"

	"computegate/internal/identity"
)

// RedactedURL wraps a url.URL for logging without exposing sensitive information
type RedactedURL struct {
	url *url.URL
}

// LogValue implements slog.LogValuer to avoid revealing passwords
func (u RedactedURL) LogValue() slog.Value {
	return slog.StringValue(u.url.Redacted())
}

// RedactURL returns a safely loggable URL value
func RedactURL(url *url.URL) RedactedURL {
	return RedactedURL{url: url}
}

// RedactedKey is an API key reduced to its prefix and last four characters,
// enough to correlate log lines with an issued key without ever logging the
// secret itself.
type RedactedKey string

// LogValue implements slog.LogValuer.
func (k RedactedKey) LogValue() slog.Value {
	s := string(k)
	if len(s) <= len(identity.KeyPrefix)+4 {
		return slog.StringValue(identity.KeyPrefix + "****")
	}
	return slog.StringValue(identity.KeyPrefix + "****" + s[len(s)-4:])
}

// RedactKey returns a safely loggable API key value
func RedactKey(key string) RedactedKey {
	return RedactedKey(key)
}
