package connect

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/browser"
	"github.com/rs/zerolog/log"

	"github.com/mquinn/poststudio/internal/generation"
	"github.com/mquinn/poststudio/internal/studioapi"
)

const (
	defaultSettleDelay = 2 * time.Second
	defaultFlowTimeout = 5 * time.Minute
)

type flowKind int

const (
	kindOAuth2 flowKind = iota
	kindOAuth1
)

func (k flowKind) String() string {
	if k == kindOAuth1 {
		return "oauth1"
	}
	return "oauth2"
}

// Options configures a Manager.
type Options struct {
	// Client talks to the backend. Required.
	Client *studioapi.Client
	// Completions delivers browser flow results. Required.
	Completions Completions
	// OpenURL launches the user's browser at an authorization URL.
	// Defaults to the system browser.
	OpenURL func(url string) error
	// SettleDelay is the pause between a flow completing and the follow-up
	// credential re-check, giving the backend time to commit the grant.
	// Defaults to 2s.
	SettleDelay time.Duration
	// FlowTimeout bounds how long one browser flow may stay unanswered
	// before it counts as abandoned. Defaults to 5m.
	FlowTimeout time.Duration
}

// Manager runs the credential state machine for one session. It keeps the
// last validation record, answers affordance questions, and sequences the
// browser flows that repair invalid credentials. At most one reconnect
// chain runs at a time; starting a new one abandons the old one first.
type Manager struct {
	client      *studioapi.Client
	completions Completions
	openURL     func(url string) error
	settleDelay time.Duration
	flowTimeout time.Duration

	mu    sync.Mutex
	state *State
	flow  *FlowHandle
}

// NewManager creates a Manager.
func NewManager(opts Options) *Manager {
	openURL := opts.OpenURL
	if openURL == nil {
		openURL = browser.OpenURL
	}
	settle := opts.SettleDelay
	if settle <= 0 {
		settle = defaultSettleDelay
	}
	flowTimeout := opts.FlowTimeout
	if flowTimeout <= 0 {
		flowTimeout = defaultFlowTimeout
	}
	return &Manager{
		client:      opts.Client,
		completions: opts.Completions,
		openURL:     openURL,
		settleDelay: settle,
		flowTimeout: flowTimeout,
	}
}

// Current returns a copy of the last validation record, or nil when none
// has been fetched yet.
func (m *Manager) Current() *State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == nil {
		return nil
	}
	state := *m.state
	return &state
}

// Affordance decides the publish action the slot can offer under the last
// known credential state.
func (m *Manager) Affordance(slot generation.Slot) Affordance {
	return AffordanceFor(slot, m.Current())
}

// Refresh fetches the validation record from the backend and replaces the
// local state wholesale.
func (m *Manager) Refresh(ctx context.Context) (*State, error) {
	status, err := m.client.ValidateCredentials(ctx)
	if err != nil {
		return nil, err
	}
	state := fromStatus(status)
	m.mu.Lock()
	m.state = &state
	m.mu.Unlock()
	return &state, nil
}

// ActiveFlow returns the reconnect chain currently in flight, or nil.
func (m *Manager) ActiveFlow() *FlowHandle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flow
}

// Reconnect repairs the credentials the slot's media type requires.
//
// With force set (a publish just bounced off the backend), the local state
// is treated as untrustworthy: no re-validation happens first, and every
// flow the slot involves is run, primary before secondary. Without force (a
// manual reconnect), the state is refreshed first and only the credentials
// still invalid get a flow; if none do, no chain starts and the returned
// handle is nil.
//
// The chain itself runs in the background and outlives ctx; use the handle
// to stop it or wait for it. ctx only bounds the synchronous re-validation
// on the manual path.
func (m *Manager) Reconnect(ctx context.Context, slot generation.Slot, force bool) (*FlowHandle, error) {
	var kinds []flowKind
	if force {
		kinds = append(kinds, kindOAuth2)
		if slot.HasVideo() {
			kinds = append(kinds, kindOAuth1)
		}
	} else {
		state, err := m.Refresh(ctx)
		if err != nil {
			return nil, err
		}
		if !state.OAuth2Valid {
			kinds = append(kinds, kindOAuth2)
		}
		if slot.HasVideo() && !state.OAuth1Valid {
			kinds = append(kinds, kindOAuth1)
		}
		if len(kinds) == 0 {
			log.Info().Int("slot", slot.Index).Msg("Credentials already valid, no reconnect needed")
			return nil, nil
		}
	}

	chainCtx, cancel := context.WithCancel(context.Background())
	h := &FlowHandle{cancel: cancel, done: make(chan struct{})}

	m.mu.Lock()
	prev := m.flow
	m.flow = h
	m.mu.Unlock()
	if prev != nil {
		prev.Stop()
	}

	log.Info().Int("slot", slot.Index).Bool("force", force).Int("flows", len(kinds)).Msg("Starting reconnect")
	go m.runChain(chainCtx, kinds, h)
	return h, nil
}

// Publish posts the slot's content. A credential rejection (401/403 or an
// explicit reauth flag) starts a forced reconnect for the slot and returns
// ErrReauthRequired; the publish is never retried automatically. Any other
// failure is surfaced as-is.
func (m *Manager) Publish(ctx context.Context, slot generation.Slot) (*studioapi.PublishResult, error) {
	req := studioapi.PublishRequest{
		MainText:    slot.Text,
		ThreadArray: slot.ThreadArray,
	}
	if slot.VideoURL != "" {
		req.VideoURL = slot.VideoURL
	} else if slot.ImageURL != "" {
		req.ImageURL = slot.ImageURL
	}

	result, err := m.client.Publish(ctx, req)
	if err != nil {
		var apiErr *studioapi.APIError
		if errors.As(err, &apiErr) && apiErr.AuthRequired() {
			log.Warn().Int("slot", slot.Index).Int("status", apiErr.Status).Msg("Publish rejected for credentials, starting forced reconnect")
			if _, rerr := m.Reconnect(ctx, slot, true); rerr != nil {
				log.Warn().Err(rerr).Msg("Forced reconnect failed to start")
			}
			if apiErr.Message != "" {
				return nil, fmt.Errorf("%w: %s", ErrReauthRequired, apiErr.Message)
			}
			return nil, ErrReauthRequired
		}
		return nil, err
	}
	return result, nil
}

// Close abandons any reconnect chain in flight. Idempotent.
func (m *Manager) Close() {
	m.mu.Lock()
	flow := m.flow
	m.flow = nil
	m.mu.Unlock()
	if flow != nil {
		flow.Stop()
	}
}

func (m *Manager) runChain(ctx context.Context, kinds []flowKind, h *FlowHandle) {
	defer close(h.done)
	defer m.clearFlow(h)

	for i, kind := range kinds {
		if i > 0 {
			// Between flows: let the backend commit the first grant, then
			// re-check in case the next credential is already valid.
			if !m.settle(ctx) {
				h.fail(ctx.Err())
				return
			}
			if state, err := m.Refresh(ctx); err == nil && kind == kindOAuth1 && state.OAuth1Valid {
				log.Info().Str("flow", kind.String()).Msg("Credential already valid, skipping flow")
				continue
			}
		}
		if err := m.runFlow(ctx, kind); err != nil {
			h.fail(err)
			log.Warn().Err(err).Str("flow", kind.String()).Msg("Authorization flow did not complete")
			return
		}
	}

	// Final re-check so affordances reflect the new grants.
	if !m.settle(ctx) {
		h.fail(ctx.Err())
		return
	}
	if _, err := m.Refresh(ctx); err != nil {
		log.Warn().Err(err).Msg("Credential re-check after reconnect failed")
	}
	log.Info().Msg("Reconnect finished")
}

// runFlow runs one browser flow to completion: begin, open the browser,
// wait for the relay event.
func (m *Manager) runFlow(ctx context.Context, kind flowKind) error {
	flowID := newFlowID()
	returnTo := m.completions.ReturnURL(flowID)

	var start *studioapi.FlowStart
	var err error
	switch kind {
	case kindOAuth1:
		start, err = m.client.BeginOAuth1(ctx, returnTo)
	default:
		start, err = m.client.BeginOAuth2(ctx, returnTo)
	}
	if err != nil {
		return err
	}

	log.Info().Str("flow", kind.String()).Str("flowId", flowID).Msg("Opening browser for authorization")
	if err := m.openURL(start.AuthURL); err != nil {
		return fmt.Errorf("open browser: %w", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, m.flowTimeout)
	defer cancel()
	ev, err := m.completions.Await(waitCtx, flowID)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return ErrFlowTimeout
		}
		return err
	}
	if ev.Err != "" {
		return fmt.Errorf("authorization denied: %s", ev.Err)
	}
	return nil
}

// settle pauses for the configured delay; false means ctx ended first.
func (m *Manager) settle(ctx context.Context) bool {
	select {
	case <-time.After(m.settleDelay):
		return true
	case <-ctx.Done():
		return false
	}
}

func (m *Manager) clearFlow(h *FlowHandle) {
	m.mu.Lock()
	if m.flow == h {
		m.flow = nil
	}
	m.mu.Unlock()
}
