package studioapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// CredentialStatus is the wholesale credential report from
// GET /api/twitter/credentials. It always describes both credential kinds;
// callers replace any cached view with it rather than patching fields.
type CredentialStatus struct {
	OAuth2Valid     bool       `json:"oauth2Valid"`
	OAuth1Valid     bool       `json:"oauth1Valid"`
	NeedsOAuth2     bool       `json:"needsOauth2"`
	NeedsOAuth1     bool       `json:"needsOauth1"`
	OAuth2ExpiresAt *time.Time `json:"oauth2ExpiresAt,omitempty"`
	OAuth1ExpiresAt *time.Time `json:"oauth1ExpiresAt,omitempty"`
}

// FlowStart is the backend's answer to an OAuth begin call: the URL the
// user's browser must visit, plus a flow session identifier for flows the
// backend tracks server side (empty for OAuth2).
type FlowStart struct {
	AuthURL       string `json:"authUrl"`
	FlowSessionID string `json:"flowSessionId,omitempty"`
}

type beginFlowRequest struct {
	ReturnTo string `json:"returnTo,omitempty"`
}

// ValidateCredentials fetches the current validity of both Twitter
// credential kinds.
func (c *Client) ValidateCredentials(ctx context.Context) (*CredentialStatus, error) {
	var status CredentialStatus
	if err := c.doJSON(ctx, http.MethodGet, "/api/twitter/credentials", nil, &status); err != nil {
		return nil, fmt.Errorf("validate credentials: %w", err)
	}
	log.Debug().
		Bool("oauth2Valid", status.OAuth2Valid).
		Bool("oauth1Valid", status.OAuth1Valid).
		Msg("Fetched credential status")
	return &status, nil
}

// BeginOAuth2 starts a browser OAuth2 authorization flow. returnTo is the
// URL the backend redirects the browser to once the grant completes; leave
// it empty to use the backend default.
func (c *Client) BeginOAuth2(ctx context.Context, returnTo string) (*FlowStart, error) {
	var start FlowStart
	req := beginFlowRequest{ReturnTo: returnTo}
	if err := c.doJSON(ctx, http.MethodPost, "/api/twitter/oauth2/begin", req, &start); err != nil {
		return nil, fmt.Errorf("begin oauth2: %w", err)
	}
	if start.AuthURL == "" {
		return nil, fmt.Errorf("begin oauth2: response carried no authorization URL")
	}
	return &start, nil
}

// BeginOAuth1 starts a browser OAuth1 authorization flow. The backend
// issues a request token internally and returns the authorize URL along
// with the flow session its callback completes against; after that callback
// it redirects the browser to returnTo.
func (c *Client) BeginOAuth1(ctx context.Context, returnTo string) (*FlowStart, error) {
	var start FlowStart
	req := beginFlowRequest{ReturnTo: returnTo}
	if err := c.doJSON(ctx, http.MethodPost, "/api/twitter/oauth1/begin", req, &start); err != nil {
		return nil, fmt.Errorf("begin oauth1: %w", err)
	}
	if start.AuthURL == "" {
		return nil, fmt.Errorf("begin oauth1: response carried no authorization URL")
	}
	return &start, nil
}
