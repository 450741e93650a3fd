// Package studioapi provides a typed client for the studio backend HTTP API:
// generation job start/status, publish credential validation, OAuth flow
// initiation, publishing, and schedule lookup.
//
// The client never talks to the social network directly; every call lands on
// the studio backend, which owns tokens, callbacks, and the storage layout.
// Responses that arrive through gateways may be wrapped in HTML error shells,
// so error envelopes are decoded tolerantly (see internal/jsonutil).
package studioapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mquinn/poststudio/internal/jsonutil"
)

const (
	// defaultTimeout is the HTTP client timeout for API calls.
	defaultTimeout = 30 * time.Second
)

// Options controls how the studio API client is configured.
type Options struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// Client provides methods for calling the studio backend.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// New creates a studio API client. BaseURL should not carry a trailing slash;
// one is stripped if present. Token is the opaque web-session bearer token and
// may be empty for unauthenticated local development backends.
func New(opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		httpClient: hc,
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		token:      opts.Token,
	}
}

// APIError is a non-2xx response from the studio backend. RequiresAuth and
// RequiresReauth mirror the flags the publish endpoint sets when the social
// network rejected the backend's stored credentials.
type APIError struct {
	Status         int
	Code           string
	Message        string
	RequiresAuth   bool
	RequiresReauth bool
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("studio API error (status %d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("studio API error (status %d)", e.Status)
}

// AuthRequired reports whether the failure means stored publish credentials
// were rejected: HTTP 401/403, or an explicit reauth flag in the body.
func (e *APIError) AuthRequired() bool {
	return e.Status == http.StatusUnauthorized ||
		e.Status == http.StatusForbidden ||
		e.RequiresAuth || e.RequiresReauth
}

// errorEnvelope is the JSON error body shape used across backend endpoints.
type errorEnvelope struct {
	Error          string `json:"error"`
	Code           string `json:"code,omitempty"`
	RequiresAuth   bool   `json:"requiresAuth,omitempty"`
	RequiresReauth bool   `json:"requiresReauth,omitempty"`
}

// doJSON sends a request with an optional JSON body and decodes a JSON
// response into out (skipped when out is nil). Non-2xx responses become
// *APIError values.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	startTime := time.Now()
	httpResp, err := c.httpClient.Do(req)
	duration := time.Since(startTime)
	if err != nil {
		log.Debug().Str("method", method).Str("path", path).Dur("duration", duration).Err(err).Msg("Studio API response")
		return fmt.Errorf("request failed: %w", err)
	}
	defer httpResp.Body.Close()

	log.Debug().Str("method", method).Str("path", path).Int("statusCode", httpResp.StatusCode).Dur("duration", duration).Msg("Studio API response")

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if httpResp.StatusCode < http.StatusOK || httpResp.StatusCode >= http.StatusMultipleChoices {
		return c.decodeError(httpResp.StatusCode, raw)
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("parse response: %w (body: %s)", err, truncate(string(raw), 200))
		}
	}
	return nil
}

// decodeError builds an *APIError from a non-2xx body. The direct decode
// handles well-formed backends; the tolerant pass digs the envelope out of
// gateway-wrapped bodies so reauth flags are never lost to an HTML shell.
func (c *Client) decodeError(status int, raw []byte) error {
	var env errorEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if recovered, perr := jsonutil.ParseJSON[errorEnvelope](string(raw)); perr == nil {
			env = recovered
		}
	}

	msg := env.Error
	if msg == "" {
		msg = truncate(strings.TrimSpace(string(raw)), 200)
	}
	return &APIError{
		Status:         status,
		Code:           env.Code,
		Message:        msg,
		RequiresAuth:   env.RequiresAuth,
		RequiresReauth: env.RequiresReauth,
	}
}

// truncate returns the first n characters of s, appending "..." if truncated.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
