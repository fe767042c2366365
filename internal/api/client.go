// Package api is the HTTP client for the chat server boundary: auth
// lifecycle and message endpoints. The server is the single source of truth;
// this client carries no caching logic of its own.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tchatapp/tchat/internal/bus"
	"github.com/tchatapp/tchat/internal/identity"
	"go.uber.org/zap"
)

// DefaultTimeout bounds every request round trip.
const DefaultTimeout = 30 * time.Second

// Client talks to the chat server REST API.
type Client struct {
	baseURL    string
	statePath  string
	httpClient *http.Client
	bus        *bus.Bus
	logger     *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// New creates a client. statePath locates the persisted auth state; the
// bearer token is re-read per request so a re-login is picked up without
// rebuilding the client.
func New(baseURL, statePath string, b *bus.Bus, logger *zap.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		statePath: statePath,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		bus:    b,
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// IsAuthError reports whether the error is, or wraps, a 401/403 APIError.
func IsAuthError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) &&
		(apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden)
}

func (c *Client) doRequest(ctx context.Context, method, path string, body, out any) error {
	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", uuid.New().String())
	if token := c.token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode, Message: errorMessage(resp.StatusCode, data)}
		if apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden {
			// The session is no longer valid; announce it so the lifecycle
			// manager tears the cache partition down. The error still
			// returns so the calling code can handle it.
			c.logger.Warn("auth rejected by server", zap.Int("status", apiErr.Status))
			if c.bus != nil {
				c.bus.Publish(bus.Event{Kind: bus.KindAuthExpired})
			}
		}
		return apiErr
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func (c *Client) token() string {
	st, err := identity.LoadState(c.statePath)
	if err != nil {
		return ""
	}
	return st.Token
}

// errorMessage prefers the server-supplied message and falls back to a
// generic one keyed on the status code.
func errorMessage(status int, data []byte) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(data, &body) == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	switch status {
	case http.StatusBadRequest:
		return "bad request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not found"
	case http.StatusInternalServerError:
		return "server error"
	default:
		return http.StatusText(status)
	}
}
