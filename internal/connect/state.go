// Package connect owns the Twitter authorization lifecycle: it tracks the
// two credential kinds the backend manages (OAuth2 for posting, OAuth1 for
// video upload), decides what publish action a slot can offer, and runs the
// browser flows needed to repair invalid credentials.
package connect

import (
	"time"

	"github.com/mquinn/poststudio/internal/generation"
	"github.com/mquinn/poststudio/internal/studioapi"
)

// Affordance is the publish action a slot can offer its user.
type Affordance int

const (
	// AffordanceReconnect means credentials must be repaired before this
	// slot can publish. It is the zero value: a slot with no validation
	// record on file never offers a direct post.
	AffordanceReconnect Affordance = iota
	// AffordancePost means the slot can be published as-is.
	AffordancePost
)

func (a Affordance) String() string {
	if a == AffordancePost {
		return "post"
	}
	return "reconnect"
}

// State is one wholesale credential validation fetched from the backend.
// It is replaced in full on every refresh, never patched field by field;
// the server is the only authority on validity.
type State struct {
	OAuth2Valid     bool
	OAuth1Valid     bool
	OAuth2ExpiresAt *time.Time
	OAuth1ExpiresAt *time.Time
	CheckedAt       time.Time
}

func fromStatus(status *studioapi.CredentialStatus) State {
	return State{
		OAuth2Valid:     status.OAuth2Valid,
		OAuth1Valid:     status.OAuth1Valid,
		OAuth2ExpiresAt: status.OAuth2ExpiresAt,
		OAuth1ExpiresAt: status.OAuth1ExpiresAt,
		CheckedAt:       time.Now(),
	}
}

// AffordanceFor decides the publish affordance for a slot. A video-bearing
// slot needs both credentials valid; anything else needs only OAuth2. A nil
// state means no validation record exists yet, which always reads as
// reconnect.
func AffordanceFor(slot generation.Slot, state *State) Affordance {
	if state == nil {
		return AffordanceReconnect
	}
	if slot.HasVideo() {
		if state.OAuth1Valid && state.OAuth2Valid {
			return AffordancePost
		}
		return AffordanceReconnect
	}
	if state.OAuth2Valid {
		return AffordancePost
	}
	return AffordanceReconnect
}
