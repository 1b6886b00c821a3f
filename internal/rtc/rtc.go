// Package rtc wraps peer-to-peer media sessions. Session descriptions and
// ICE candidates cross this boundary as opaque JSON so the signaling layer
// never needs to understand them.
package rtc

import (
	"encoding/json"

	"github.com/pion/webrtc/v4"
)

// Session is one peer-to-peer media session with a single remote
// participant. A PeerLink owns exactly one Session.
type Session interface {
	// CreateOffer generates and installs the local session description.
	CreateOffer() (json.RawMessage, error)

	// CreateAnswer accepts the remote offer, then generates and installs
	// the local answer.
	CreateAnswer(remoteOffer json.RawMessage) (json.RawMessage, error)

	// AcceptAnswer installs the remote answer on the offering side.
	AcceptAnswer(remoteAnswer json.RawMessage) error

	// AddRemoteCandidate feeds one trickled ICE candidate to the session.
	AddRemoteCandidate(candidate json.RawMessage) error

	// OnLocalCandidate registers the callback for locally gathered ICE
	// candidates. The callback may fire on pion's goroutines.
	OnLocalCandidate(fn func(candidate json.RawMessage))

	// OnRemoteTrack registers the callback for inbound media tracks.
	OnRemoteTrack(fn func(track *webrtc.TrackRemote))

	// Close releases the session's resources.
	Close() error
}

// Factory creates sessions with the local audio tracks already attached.
type Factory interface {
	NewSession(tracks []webrtc.TrackLocal) (Session, error)
}
