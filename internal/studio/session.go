// Package studio exposes one open content-studio session: a generation job
// with its slot layout, the credential state machine guarding publishes,
// and the schedule cache behind the "already scheduled" indicator. Pages
// and commands stay thin consumers of a Session; none of the polling,
// merging, or authorization logic lives anywhere else.
package studio

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mquinn/poststudio/internal/config"
	"github.com/mquinn/poststudio/internal/connect"
	"github.com/mquinn/poststudio/internal/generation"
	"github.com/mquinn/poststudio/internal/mediaurl"
	"github.com/mquinn/poststudio/internal/schedule"
	"github.com/mquinn/poststudio/internal/studioapi"
)

// Generation session statuses.
const (
	StatusIdle       = "idle"
	StatusGenerating = "generating"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	// StatusStalled means the poll deadline passed with the job still not
	// terminal. The job may or may not still be running server side.
	StatusStalled = "stalled"
)

// Options configures a Session.
type Options struct {
	// Config carries the backend address, token, and timing knobs. Required.
	Config *config.Config
	// OpenURL overrides how authorization URLs reach the user's browser.
	// Defaults to the system browser.
	OpenURL func(url string) error
}

// GenerateRequest describes one batch to generate.
type GenerateRequest struct {
	TargetID     string
	Count        int
	Mix          studioapi.SlotMix
	Topic        string
	Instructions string
}

// Progress is a point-in-time view of the session's generation job.
// VideoSlot is the slot index a video render is currently running for,
// zero when the workflow is not in a video stage.
type Progress struct {
	JobID     string
	TargetID  string
	Status    string
	Percent   int
	Message   string
	VideoSlot int
	StartedAt time.Time
	Deadline  time.Time
}

// Session owns every timer and cache for one open studio session. All
// state is scoped to the Session; two sessions never share anything.
// Close stops everything the Session started.
type Session struct {
	id     string
	client *studioapi.Client
	poller *generation.Poller
	auth   *connect.Manager
	relay  *connect.Relay
	cache  *schedule.Cache

	pollTimeout time.Duration

	mu       sync.Mutex
	progress Progress
	slots    []generation.Slot
	handle   *generation.Handle

	closeOnce sync.Once
}

// New creates a Session from the given configuration. The authorization
// relay starts listening immediately so reconnects triggered at any point,
// including from inside a failing publish, have a completion channel ready.
func New(opts Options) (*Session, error) {
	cfg := opts.Config
	var httpClient *http.Client
	if cfg.HTTPTimeout > 0 {
		httpClient = &http.Client{Timeout: cfg.HTTPTimeout}
	}
	client := studioapi.New(studioapi.Options{
		BaseURL:    cfg.APIBaseURL,
		Token:      cfg.APIToken,
		HTTPClient: httpClient,
	})

	relay := connect.NewRelay(cfg.RelayAddr)
	if err := relay.Start(); err != nil {
		return nil, err
	}

	s := &Session{
		id:     uuid.NewString(),
		client: client,
		relay:  relay,
		cache:  schedule.New(client.LookupSchedule),
		poller: generation.NewPoller(client.JobStatus, generation.Options{
			Interval: cfg.PollInterval,
			Timeout:  cfg.PollTimeout,
		}),
		auth: connect.NewManager(connect.Options{
			Client:      client,
			Completions: relay,
			OpenURL:     opts.OpenURL,
			SettleDelay: cfg.SettleDelay,
			FlowTimeout: cfg.FlowTimeout,
		}),
		pollTimeout: cfg.PollTimeout,
		progress:    Progress{Status: StatusIdle},
	}
	log.Debug().Str("sessionId", s.id).Msg("Studio session created")
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Generate starts a generation job and begins polling it. The slot layout
// is fixed here, from the requested count and mix, and only ever filled in
// afterwards. A Generate while another job is polling supersedes it.
func (s *Session) Generate(ctx context.Context, req GenerateRequest) error {
	jobID, err := s.client.StartGeneration(ctx, studioapi.StartRequest{
		TargetID:     req.TargetID,
		SlotCount:    req.Count,
		Mix:          req.Mix,
		Topic:        req.Topic,
		Instructions: req.Instructions,
	})
	if err != nil {
		return err
	}

	now := time.Now()
	s.mu.Lock()
	s.slots = generation.BuildSlots(req.Count, req.Mix)
	s.progress = Progress{
		JobID:     jobID,
		TargetID:  req.TargetID,
		Status:    StatusGenerating,
		StartedAt: now,
		Deadline:  now.Add(s.pollTimeout),
	}
	s.mu.Unlock()

	handle := s.poller.Start(ctx, jobID, generation.Handlers{
		OnProgress: func(snap *studioapi.Snapshot) {
			s.applySnapshot(snap, StatusGenerating)
		},
		OnComplete: func(snap *studioapi.Snapshot) {
			s.applySnapshot(snap, StatusCompleted)
		},
		OnError: func(message string) {
			s.mu.Lock()
			s.progress.Status = StatusFailed
			s.progress.Message = message
			s.mu.Unlock()
		},
		OnTimeout: func() {
			s.mu.Lock()
			s.progress.Status = StatusStalled
			s.mu.Unlock()
		},
	})

	s.mu.Lock()
	s.handle = handle
	s.mu.Unlock()
	return nil
}

// applySnapshot folds a snapshot into the slots and progress fields.
func (s *Session) applySnapshot(snap *studioapi.Snapshot, status string) {
	s.mu.Lock()
	s.slots = generation.Merge(s.slots, snap)
	s.progress.Status = status
	s.progress.Percent = snap.ProgressPercent
	s.progress.VideoSlot = snap.Workflow.CurrentVideoSlot
	if snap.ProgressMessage != "" {
		s.progress.Message = snap.ProgressMessage
	}
	s.mu.Unlock()
}

// Progress returns the current job view.
func (s *Session) Progress() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress
}

// Slots returns a copy of the slot layout.
func (s *Session) Slots() []generation.Slot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]generation.Slot(nil), s.slots...)
}

// Slot returns the slot at the 1-based index.
func (s *Session) Slot(index int) (generation.Slot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 1 || index > len(s.slots) {
		return generation.Slot{}, false
	}
	return s.slots[index-1], true
}

// Wait blocks until the current generation stops polling, for any reason:
// terminal status, deadline, or Stop. Progress tells the outcome.
func (s *Session) Wait(ctx context.Context) error {
	s.mu.Lock()
	handle := s.handle
	s.mu.Unlock()
	if handle == nil {
		return nil
	}
	select {
	case <-handle.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Affordance reports the publish action the slot at index can offer.
func (s *Session) Affordance(index int) (connect.Affordance, bool) {
	slot, ok := s.Slot(index)
	if !ok {
		return connect.AffordanceReconnect, false
	}
	return s.auth.Affordance(slot), true
}

// RefreshCredentials re-validates both credential kinds with the backend.
func (s *Session) RefreshCredentials(ctx context.Context) (*connect.State, error) {
	return s.auth.Refresh(ctx)
}

// ActiveFlow returns the reconnect flow currently waiting on the browser,
// nil if none is running. Callers that hit ErrReauthRequired wait on this
// handle before retrying.
func (s *Session) ActiveFlow() *connect.FlowHandle {
	return s.auth.ActiveFlow()
}

// Credentials returns the last validation record, nil if none exists.
func (s *Session) Credentials() *connect.State {
	return s.auth.Current()
}

// Publish posts the slot at index. On a credential rejection the session
// starts a forced reconnect and returns connect.ErrReauthRequired; the
// caller re-invokes Publish after the reconnect finishes. On success the
// slot's schedule cache entry is invalidated, since the calendar changed.
func (s *Session) Publish(ctx context.Context, index int) (*studioapi.PublishResult, error) {
	slot, ok := s.Slot(index)
	if !ok {
		return nil, fmt.Errorf("no slot %d", index)
	}
	result, err := s.auth.Publish(ctx, slot)
	if err != nil {
		return nil, err
	}
	if locator, ok := mediaurl.Canonicalize(slotMedia(slot)); ok {
		s.cache.Invalidate(locator)
	}
	log.Info().Str("sessionId", s.id).Int("slot", index).Str("tweetId", result.TweetID).Msg("Slot published")
	return result, nil
}

// Reconnect repairs the credentials the slot at index needs. See
// connect.Manager.Reconnect for the force semantics.
func (s *Session) Reconnect(ctx context.Context, index int, force bool) (*connect.FlowHandle, error) {
	slot, ok := s.Slot(index)
	if !ok {
		return nil, fmt.Errorf("no slot %d", index)
	}
	return s.auth.Reconnect(ctx, slot, force)
}

// ScheduleFor answers whether the slot's media already sits on the posting
// calendar. Media without a stable identity (ephemeral or unrecognized
// URLs) reports no schedule without asking the backend.
func (s *Session) ScheduleFor(ctx context.Context, index int) (*studioapi.ScheduleRecord, error) {
	slot, ok := s.Slot(index)
	if !ok {
		return nil, fmt.Errorf("no slot %d", index)
	}
	locator, ok := mediaurl.Canonicalize(slotMedia(slot))
	if !ok {
		return nil, nil
	}
	return s.cache.GetOrFetch(ctx, locator)
}

// ScheduledHint reports the cached schedule answer for the slot's media
// without asking the backend: (record, true) when a lookup has resolved,
// (nil, false) when no answer is known yet. Board renders use this so a
// redraw never triggers network traffic.
func (s *Session) ScheduledHint(index int) (*studioapi.ScheduleRecord, bool) {
	slot, ok := s.Slot(index)
	if !ok {
		return nil, false
	}
	locator, ok := mediaurl.Canonicalize(slotMedia(slot))
	if !ok {
		return nil, false
	}
	return s.cache.Peek(locator)
}

// Close stops every timer the session owns: the poll loop, any reconnect
// chain, and the relay listener. Idempotent; safe to call from teardown
// paths that do not know what is running.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		handle := s.handle
		s.mu.Unlock()
		if handle != nil {
			handle.Stop()
		}
		s.auth.Close()
		s.relay.Close()
		log.Debug().Str("sessionId", s.id).Msg("Studio session closed")
	})
}

// slotMedia picks the URL that identifies the slot's media on the
// calendar: the video when one exists, else the image.
func slotMedia(slot generation.Slot) string {
	if slot.VideoURL != "" {
		return slot.VideoURL
	}
	return slot.ImageURL
}
