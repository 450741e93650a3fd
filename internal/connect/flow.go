package connect

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
)

// ErrFlowTimeout reports an abandoned browser flow: no completion event
// arrived within the configured window, typically because the user closed
// the browser tab without finishing the grant.
var ErrFlowTimeout = errors.New("authorization flow timed out")

// ErrReauthRequired reports that the backend rejected a publish for
// credential reasons. A forced reconnect has been started in the
// background; the publish is not retried automatically and must be
// re-invoked once the reconnect finishes.
var ErrReauthRequired = errors.New("publish requires reauthorization")

// Event is the structured completion message a finished browser flow
// delivers back to the waiting manager. Err is empty on success and carries
// the backend's error code when the user denied the grant.
type Event struct {
	FlowID string
	Err    string
}

// Completions delivers flow-completion events to a waiting manager. Relay
// implements it with a loopback HTTP listener the backend redirects the
// user's browser to at the end of a flow.
type Completions interface {
	// ReturnURL builds the browser redirect target that completes flowID.
	ReturnURL(flowID string) string
	// Await blocks until the event for flowID arrives or ctx ends.
	Await(ctx context.Context, flowID string) (Event, error)
}

// FlowHandle tracks one reconnect chain. Stop abandons it, Done closes when
// the chain has finished or been abandoned, and Err reports the terminal
// failure, if any, once Done is closed.
type FlowHandle struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	err error
}

// Stop abandons the chain. Idempotent; safe after the chain has already
// finished.
func (h *FlowHandle) Stop() {
	h.cancel()
}

// Done closes once the chain goroutine has exited.
func (h *FlowHandle) Done() <-chan struct{} {
	return h.done
}

// Err returns the failure that ended the chain, or nil if it completed.
// Only meaningful after Done is closed.
func (h *FlowHandle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

func (h *FlowHandle) fail(err error) {
	h.mu.Lock()
	h.err = err
	h.mu.Unlock()
}

// newFlowID creates a cryptographically random flow identifier. The ID is
// the only thing tying a browser redirect back to a waiting manager, so it
// must not be guessable.
func newFlowID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		log.Fatal().Err(err).Msg("Failed to generate random flow ID")
	}
	return "flow-" + hex.EncodeToString(b)
}
