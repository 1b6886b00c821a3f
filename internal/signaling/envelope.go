package signaling

import "encoding/json"

// Event names used on the relay channel. The relay routes targeted events
// to the peer named by targetSocketId and stamps the sender's channel id
// into "from" on delivery; broadcast events reach everyone in the room.
const (
	EventConnected     = "connected"
	EventJoinRoom      = "joinRoom"
	EventUserJoined    = "userJoined"
	EventOffer         = "offer"
	EventAnswer        = "answer"
	EventIceCandidate  = "iceCandidate"
	EventUserLeft      = "userLeft"
	EventTranscription = "transcription"
)

// Envelope is the wire frame for every relay message.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Connected is sent by the relay immediately after authentication and
// carries the channel id it assigned to this connection.
type Connected struct {
	SocketID string `json:"socketId"`
}

// UserJoined announces a new participant in the room.
type UserJoined struct {
	UserName string `json:"userName"`
	SocketID string `json:"socketId"`
	RoomID   string `json:"roomId"`
}

// OfferPayload carries a session description toward one peer. The offer
// itself is opaque to the signaling layer; only the media layer reads it.
type OfferPayload struct {
	Offer          json.RawMessage `json:"offer"`
	TargetSocketID string          `json:"targetSocketId,omitempty"`
	From           string          `json:"from,omitempty"`
	UserName       string          `json:"userName,omitempty"`
}

// AnswerPayload carries the response session description.
type AnswerPayload struct {
	Answer         json.RawMessage `json:"answer"`
	TargetSocketID string          `json:"targetSocketId,omitempty"`
	From           string          `json:"from,omitempty"`
}

// CandidatePayload carries one trickled ICE candidate.
type CandidatePayload struct {
	Candidate      json.RawMessage `json:"candidate"`
	TargetSocketID string          `json:"targetSocketId,omitempty"`
	From           string          `json:"from,omitempty"`
}

// UserLeft announces that a participant's channel closed.
type UserLeft struct {
	SocketID string `json:"socketId"`
}

// Transcription is broadcast to the whole room. The sender does not fill
// From; the relay stamps it on delivery so receivers can drop their own
// echo without trusting display names.
type Transcription struct {
	UserName      string `json:"userName"`
	RoomID        string `json:"roomId"`
	Transcription string `json:"transcription"`
	From          string `json:"from,omitempty"`
}
