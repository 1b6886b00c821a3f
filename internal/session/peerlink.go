package session

import "github.com/huddlekit/huddle/internal/rtc"

// LinkState tracks the negotiation progress of one peer link.
type LinkState int

const (
	StateIdle LinkState = iota
	StateOfferSent
	StateOfferReceived
	StateAnswering
	StateConnected
	StateClosed
)

func (s LinkState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOfferSent:
		return "offer-sent"
	case StateOfferReceived:
		return "offer-received"
	case StateAnswering:
		return "answering"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// PeerLink wraps one peer-to-peer media session with one remote
// participant. It owns its media session exclusively; at most one link
// exists per remote channel id.
type PeerLink struct {
	RemoteID   string
	RemoteName string
	State      LinkState

	session rtc.Session
}

// PeerInfo is a read-only snapshot of a link for display.
type PeerInfo struct {
	ChannelID   string
	DisplayName string
	State       LinkState
}
