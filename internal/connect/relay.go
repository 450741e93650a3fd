package connect

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

const defaultRelayAddr = "127.0.0.1:0"

var errRelayClosed = errors.New("authorization relay closed")

// Relay turns the browser redirect at the end of an OAuth flow into a
// completion event. It listens on a loopback address; the backend is told
// to redirect the finished browser to /connected/{flow}, and the handler
// hands the event to whichever Await call registered that flow ID.
type Relay struct {
	addr string

	mu      sync.Mutex
	ln      net.Listener
	srv     *http.Server
	waiters map[string]chan Event
}

// NewRelay creates a Relay that will listen on addr. An empty addr selects
// a random loopback port.
func NewRelay(addr string) *Relay {
	if addr == "" {
		addr = defaultRelayAddr
	}
	return &Relay{addr: addr, waiters: make(map[string]chan Event)}
}

// Start begins listening. Calling it again while listening is a no-op.
func (r *Relay) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ln != nil {
		return nil
	}

	ln, err := net.Listen("tcp", r.addr)
	if err != nil {
		return fmt.Errorf("relay listen on %s: %w", r.addr, err)
	}

	router := chi.NewRouter()
	router.Get("/connected/{flow}", r.handleConnected)

	srv := &http.Server{Handler: router}
	r.ln = ln
	r.srv = srv
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn().Err(err).Msg("Authorization relay stopped unexpectedly")
		}
	}()

	log.Info().Str("addr", ln.Addr().String()).Msg("Authorization relay listening")
	return nil
}

// BaseURL returns the relay's loopback origin, or empty before Start.
func (r *Relay) BaseURL() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ln == nil {
		return ""
	}
	return "http://" + r.ln.Addr().String()
}

// ReturnURL builds the browser redirect target that completes flowID.
func (r *Relay) ReturnURL(flowID string) string {
	base := r.BaseURL()
	if base == "" {
		return ""
	}
	return base + "/connected/" + flowID
}

// Await blocks until the completion event for flowID arrives, ctx ends, or
// the relay closes.
func (r *Relay) Await(ctx context.Context, flowID string) (Event, error) {
	ch, err := r.register(flowID)
	if err != nil {
		return Event{}, err
	}
	defer r.unregister(flowID)

	select {
	case ev, ok := <-ch:
		if !ok {
			return Event{}, errRelayClosed
		}
		return ev, nil
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}

// Close stops the listener and wakes every pending Await with an error.
// Idempotent.
func (r *Relay) Close() {
	r.mu.Lock()
	srv := r.srv
	r.ln, r.srv = nil, nil
	waiters := r.waiters
	r.waiters = make(map[string]chan Event)
	r.mu.Unlock()

	for _, ch := range waiters {
		close(ch)
	}
	if srv != nil {
		srv.Close()
	}
}

func (r *Relay) register(flowID string) (chan Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ln == nil {
		return nil, errors.New("authorization relay not started")
	}
	ch := make(chan Event, 1)
	r.waiters[flowID] = ch
	return ch, nil
}

func (r *Relay) unregister(flowID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.waiters, flowID)
}

// handleConnected receives the browser at the end of a flow, delivers the
// completion event, and renders a close-this-window page.
func (r *Relay) handleConnected(w http.ResponseWriter, req *http.Request) {
	flowID := chi.URLParam(req, "flow")
	ev := Event{FlowID: flowID, Err: req.URL.Query().Get("error")}

	r.mu.Lock()
	ch, ok := r.waiters[flowID]
	if ok {
		delete(r.waiters, flowID)
	}
	r.mu.Unlock()

	if !ok {
		log.Warn().Str("flowId", flowID).Msg("Completion arrived for unknown or expired flow")
		respondHTML(w, http.StatusGone, "Nothing Waiting",
			"This authorization flow is no longer active. You can close this window.")
		return
	}

	ch <- ev
	if ev.Err != "" {
		log.Warn().Str("flowId", flowID).Str("error", ev.Err).Msg("Authorization denied in browser")
		respondHTML(w, http.StatusOK, "Authorization Denied",
			fmt.Sprintf("Twitter authorization was denied: %s.<br><br>You can close this window and try again.", ev.Err))
		return
	}

	log.Info().Str("flowId", flowID).Msg("Authorization flow completed")
	respondHTML(w, http.StatusOK, "Twitter Connected",
		"Your Twitter account has been connected.<br><br>You can close this window and return to the terminal.")
}

// respondHTML writes a minimal HTML page with the given title and message.
func respondHTML(w http.ResponseWriter, status int, title, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprintf(w, `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>%s</title>
  <style>
    body { font-family: system-ui, -apple-system, sans-serif; max-width: 600px; margin: 80px auto; padding: 0 20px; text-align: center; color: #1a1a1a; }
    h1 { font-size: 1.5rem; margin-bottom: 1rem; }
    p { font-size: 1rem; line-height: 1.6; color: #444; }
  </style>
</head>
<body>
  <h1>%s</h1>
  <p>%s</p>
</body>
</html>`, title, title, message)
}
