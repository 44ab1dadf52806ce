// Package remote is the HTTP client adapter for an external identity store.
// It speaks a small JSON protocol and keeps the two failure families apart:
// "the store said no" comes back as (nil, nil), "the store could not be
// asked" comes back wrapping identity.ErrUnavailable.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"computegate/internal/identity"
	"computegate/internal/observability/logging"
)

// Client talks to an external identity store over HTTP.
type Client struct {
	base        *url.URL
	http        *http.Client
	authHandler http.Handler
	logger      *logging.Logger
}

// Config holds remote store client configuration.
type Config struct {
	// URL is the base URL of the identity store.
	URL *url.URL

	// Timeout bounds every store call. A store that does not answer within
	// it is reported unavailable, never as a credential mismatch.
	Timeout time.Duration
}

// New creates a new remote store client.
func New(config Config, logger *logging.Logger) *Client {
	return &Client{
		base: config.URL,
		http: &http.Client{
			Timeout: config.Timeout,
		},
		authHandler: httputil.NewSingleHostReverseProxy(config.URL),
		logger:      logger.WithModule("identity.remote"),
	}
}

var _ identity.Store = (*Client)(nil)

type resolveSessionRequest struct {
	Token string `json:"token"`
}

type resolveKeyRequest struct {
	Key string `json:"key"`
}

type createKeyRequest struct {
	UserID    string `json:"userId"`
	Name      string `json:"name,omitempty"`
	ExpiresIn int64  `json:"expiresIn,omitempty"`
}

// ResolveSession implements identity.Store.
func (c *Client) ResolveSession(ctx context.Context, token string) (*identity.Principal, error) {
	var p identity.Principal
	found, err := c.post(ctx, "/v1/sessions/resolve", resolveSessionRequest{Token: token}, &p)
	if err != nil || !found {
		return nil, err
	}
	p.Kind = identity.KindSession
	return &p, nil
}

// ResolveAPIKey implements identity.Store.
func (c *Client) ResolveAPIKey(ctx context.Context, key string) (*identity.Principal, error) {
	var p identity.Principal
	found, err := c.post(ctx, "/v1/keys/resolve", resolveKeyRequest{Key: key}, &p)
	if err != nil || !found {
		return nil, err
	}
	p.Kind = identity.KindAPIKey
	return &p, nil
}

// CreateAPIKey implements identity.Store.
func (c *Client) CreateAPIKey(ctx context.Context, p *identity.Principal, opts identity.CreateKeyOptions) (*identity.Credential, error) {
	body := createKeyRequest{
		UserID:    p.ID,
		Name:      opts.Name,
		ExpiresIn: int64(opts.ExpiresIn / time.Second),
	}

	var cred identity.Credential
	found, err := c.post(ctx, "/v1/keys", body, &cred)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: store rejected key creation", identity.ErrUnavailable)
	}
	return &cred, nil
}

// ListAPIKeys implements identity.Store.
func (c *Client) ListAPIKeys(ctx context.Context, p *identity.Principal) ([]identity.CredentialMeta, error) {
	u := c.endpoint("/v1/keys")
	u.RawQuery = url.Values{"userId": {p.ID}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", identity.ErrUnavailable, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", identity.ErrUnavailable, err)
	}
	defer drain(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: store returned status %d", identity.ErrUnavailable, resp.StatusCode)
	}

	var keys []identity.CredentialMeta
	if err := json.NewDecoder(resp.Body).Decode(&keys); err != nil {
		return nil, fmt.Errorf("%w: decoding key list: %v", identity.ErrUnavailable, err)
	}
	return keys, nil
}

// RevokeAPIKey implements identity.Store.
func (c *Client) RevokeAPIKey(ctx context.Context, p *identity.Principal, id string) error {
	u := c.endpoint("/v1/keys/" + url.PathEscape(id))
	u.RawQuery = url.Values{"userId": {p.ID}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, u.String(), nil)
	if err != nil {
		return fmt.Errorf("%w: %v", identity.ErrUnavailable, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", identity.ErrUnavailable, err)
	}
	defer drain(resp.Body)

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		return nil
	case http.StatusNotFound:
		return identity.ErrKeyNotFound
	default:
		return fmt.Errorf("%w: store returned status %d", identity.ErrUnavailable, resp.StatusCode)
	}
}

// AuthHandler delegates the /auth/ surface verbatim to the store.
func (c *Client) AuthHandler() http.Handler {
	return c.authHandler
}

// post sends a JSON request and decodes the response into out. It returns
// false with no error when the store answers 401 or 404, the two statuses
// that mean "reachable, but no match".
func (c *Client) post(ctx context.Context, path string, body, out any) (bool, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return false, fmt.Errorf("%w: encoding request: %v", identity.ErrUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path).String(), bytes.NewReader(payload))
	if err != nil {
		return false, fmt.Errorf("%w: %v", identity.ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("Identity store unreachable", "path", path, logging.Err(err))
		return false, fmt.Errorf("%w: %v", identity.ErrUnavailable, err)
	}
	defer drain(resp.Body)

	switch resp.StatusCode {
	case http.StatusOK:
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return false, fmt.Errorf("%w: decoding response: %v", identity.ErrUnavailable, err)
		}
		return true, nil
	case http.StatusUnauthorized, http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("%w: store returned status %d", identity.ErrUnavailable, resp.StatusCode)
	}
}

func (c *Client) endpoint(path string) *url.URL {
	u := *c.base
	u.Path = strings.TrimSuffix(c.base.Path, "/") + path
	return &u
}

// drain empties and closes a response body so the connection can be reused.
func drain(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, body)
	_ = body.Close()
}
