package studioapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/rs/zerolog/log"
)

// Generation job lifecycle statuses reported by the status endpoint.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"

	// StatusError is emitted by older generation workers in place of
	// "failed". Both are terminal failures.
	StatusError = "error"
)

// SlotMix is the requested breakdown of a generation batch by planned
// content shape. The backend echoes it back; slot planning also consumes it.
type SlotMix struct {
	Posts   int `json:"posts"`
	Threads int `json:"threads"`
	Videos  int `json:"videos"`
}

// Total returns the number of slots the mix accounts for.
func (m SlotMix) Total() int {
	return m.Posts + m.Threads + m.Videos
}

// StartRequest is the body for POST /api/generation/start.
type StartRequest struct {
	TargetID     string  `json:"targetId"`
	SlotCount    int     `json:"slotCount"`
	Mix          SlotMix `json:"mix"`
	Topic        string  `json:"topic,omitempty"`
	Instructions string  `json:"instructions,omitempty"`
}

type startResponse struct {
	JobID string `json:"jobId"`
}

// ItemMeta is the per-slot metadata block of a progress snapshot. Fields the
// generator has not produced yet are simply absent; consumers must treat an
// empty field as "no update", never as "clear".
type ItemMeta struct {
	Text        string   `json:"text,omitempty"`
	ImageURL    string   `json:"imageUrl,omitempty"`
	ThreadArray []string `json:"threadArray,omitempty"`
	ContentType string   `json:"contentType,omitempty"`
}

// VideoMeta is the per-slot video block of a progress snapshot. The video
// URL is committed separately from the rest of the item metadata and can
// briefly be missing from a snapshot that races the commit.
type VideoMeta struct {
	VideoURL string `json:"videoUrl,omitempty"`
	Status   string `json:"status,omitempty"`
}

// WorkflowMeta describes where the generation workflow currently is, e.g.
// which slot index a video render is running for.
type WorkflowMeta struct {
	Stage            string `json:"stage,omitempty"`
	CurrentVideoSlot int    `json:"currentVideoSlot,omitempty"`
}

// Snapshot is one server-reported progress state for a running generation
// job, as returned by GET /api/generation/{jobId}/status.
//
// Per-slot maps are keyed "item_<n>" with a 1-based slot index. The key
// convention is part of the backend contract and must not change; use the
// Item and Video accessors instead of building keys by hand.
type Snapshot struct {
	Status           string               `json:"status"`
	ProgressPercent  int                  `json:"progressPercent"`
	ProgressMessage  string               `json:"progressMessage"`
	MediaURLs        []string             `json:"mediaUrls,omitempty"`
	PerItemMetadata  map[string]ItemMeta  `json:"perItemMetadata,omitempty"`
	PerVideoMetadata map[string]VideoMeta `json:"perVideoMetadata,omitempty"`
	Workflow         WorkflowMeta         `json:"workflowMetadata,omitempty"`
}

// itemKey builds the per-slot metadata map key for a 1-based slot index.
// This is the only place the "item_<n>" convention lives.
func itemKey(index int) string {
	return "item_" + strconv.Itoa(index)
}

// Item returns the item metadata for the 1-based slot index. The second
// return is false when the index is out of range or the snapshot carries no
// block for that slot.
func (s *Snapshot) Item(index int) (ItemMeta, bool) {
	if s == nil || index < 1 {
		return ItemMeta{}, false
	}
	meta, ok := s.PerItemMetadata[itemKey(index)]
	return meta, ok
}

// Video returns the video metadata for the 1-based slot index, with the
// same missing-block semantics as Item.
func (s *Snapshot) Video(index int) (VideoMeta, bool) {
	if s == nil || index < 1 {
		return VideoMeta{}, false
	}
	meta, ok := s.PerVideoMetadata[itemKey(index)]
	return meta, ok
}

// Completed reports whether the snapshot carries the terminal success status.
func (s *Snapshot) Completed() bool {
	return s != nil && s.Status == StatusCompleted
}

// Failed reports whether the snapshot carries a terminal failure status.
func (s *Snapshot) Failed() bool {
	return s != nil && (s.Status == StatusFailed || s.Status == StatusError)
}

// StartGeneration kicks off a generation job and returns its identifier.
// A 2xx response without a job identifier is a hard error: nothing can be
// polled without one.
func (c *Client) StartGeneration(ctx context.Context, req StartRequest) (string, error) {
	var resp startResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/generation/start", req, &resp); err != nil {
		return "", fmt.Errorf("start generation: %w", err)
	}
	if resp.JobID == "" {
		return "", fmt.Errorf("start generation: response carried no job id")
	}
	log.Info().Str("jobId", resp.JobID).Str("targetId", req.TargetID).Int("slotCount", req.SlotCount).Msg("Generation job started")
	return resp.JobID, nil
}

// JobStatus fetches the current progress snapshot for a generation job.
func (c *Client) JobStatus(ctx context.Context, jobID string) (*Snapshot, error) {
	var snap Snapshot
	path := "/api/generation/" + url.PathEscape(jobID) + "/status"
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &snap); err != nil {
		return nil, fmt.Errorf("job status %s: %w", jobID, err)
	}
	return &snap, nil
}
