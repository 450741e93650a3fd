package studioapi

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"
)

// PublishRequest is the body for POST /api/twitter/publish. Exactly one of
// ImageURL and VideoURL may be set; a request with neither publishes a
// text-only tweet or thread.
type PublishRequest struct {
	MainText    string   `json:"mainText"`
	ThreadArray []string `json:"threadArray,omitempty"`
	ImageURL    string   `json:"imageUrl,omitempty"`
	VideoURL    string   `json:"videoUrl,omitempty"`
}

// PublishResult reports the published tweet on success.
type PublishResult struct {
	TweetID  string `json:"tweetId"`
	TweetURL string `json:"tweetUrl,omitempty"`
}

// Publish posts a slot's content to Twitter through the backend. Credential
// problems surface as an *APIError whose AuthRequired method returns true;
// callers own the decision to re-run an authorization flow, Publish never
// retries on its own.
func (c *Client) Publish(ctx context.Context, req PublishRequest) (*PublishResult, error) {
	if req.ImageURL != "" && req.VideoURL != "" {
		return nil, fmt.Errorf("publish: request carries both an image and a video URL")
	}
	var result PublishResult
	if err := c.doJSON(ctx, http.MethodPost, "/api/twitter/publish", req, &result); err != nil {
		return nil, fmt.Errorf("publish: %w", err)
	}
	log.Info().
		Str("tweetId", result.TweetID).
		Int("threadLength", len(req.ThreadArray)).
		Bool("hasVideo", req.VideoURL != "").
		Msg("Published to Twitter")
	return &result, nil
}
