package rtc

import (
	"encoding/json"
	"fmt"

	"github.com/pion/webrtc/v4"
)

// DefaultSTUNServers are used when no ICE servers are configured.
var DefaultSTUNServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
}

// PionFactory creates sessions backed by pion/webrtc peer connections.
type PionFactory struct {
	config webrtc.Configuration
}

// NewPionFactory builds a factory using the given STUN server URLs.
func NewPionFactory(stunServers []string) *PionFactory {
	if len(stunServers) == 0 {
		stunServers = DefaultSTUNServers
	}
	return &PionFactory{
		config: webrtc.Configuration{
			ICEServers: []webrtc.ICEServer{{URLs: stunServers}},
		},
	}
}

// NewSession creates a peer connection and attaches the local tracks.
func (f *PionFactory) NewSession(tracks []webrtc.TrackLocal) (Session, error) {
	pc, err := webrtc.NewPeerConnection(f.config)
	if err != nil {
		return nil, fmt.Errorf("rtc: create peer connection: %w", err)
	}
	for _, track := range tracks {
		if _, err := pc.AddTrack(track); err != nil {
			pc.Close()
			return nil, fmt.Errorf("rtc: add local track: %w", err)
		}
	}
	return &pionSession{pc: pc}, nil
}

type pionSession struct {
	pc *webrtc.PeerConnection
}

func (s *pionSession) CreateOffer() (json.RawMessage, error) {
	offer, err := s.pc.CreateOffer(nil)
	if err != nil {
		return nil, fmt.Errorf("rtc: create offer: %w", err)
	}
	if err := s.pc.SetLocalDescription(offer); err != nil {
		return nil, fmt.Errorf("rtc: set local offer: %w", err)
	}
	return json.Marshal(s.pc.LocalDescription())
}

func (s *pionSession) CreateAnswer(remoteOffer json.RawMessage) (json.RawMessage, error) {
	var desc webrtc.SessionDescription
	if err := json.Unmarshal(remoteOffer, &desc); err != nil {
		return nil, fmt.Errorf("rtc: decode remote offer: %w", err)
	}
	if err := s.pc.SetRemoteDescription(desc); err != nil {
		return nil, fmt.Errorf("rtc: set remote offer: %w", err)
	}
	answer, err := s.pc.CreateAnswer(nil)
	if err != nil {
		return nil, fmt.Errorf("rtc: create answer: %w", err)
	}
	if err := s.pc.SetLocalDescription(answer); err != nil {
		return nil, fmt.Errorf("rtc: set local answer: %w", err)
	}
	return json.Marshal(s.pc.LocalDescription())
}

func (s *pionSession) AcceptAnswer(remoteAnswer json.RawMessage) error {
	var desc webrtc.SessionDescription
	if err := json.Unmarshal(remoteAnswer, &desc); err != nil {
		return fmt.Errorf("rtc: decode remote answer: %w", err)
	}
	if err := s.pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("rtc: set remote answer: %w", err)
	}
	return nil
}

func (s *pionSession) AddRemoteCandidate(candidate json.RawMessage) error {
	var init webrtc.ICECandidateInit
	if err := json.Unmarshal(candidate, &init); err != nil {
		return fmt.Errorf("rtc: decode candidate: %w", err)
	}
	if err := s.pc.AddICECandidate(init); err != nil {
		return fmt.Errorf("rtc: add candidate: %w", err)
	}
	return nil
}

func (s *pionSession) OnLocalCandidate(fn func(json.RawMessage)) {
	s.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return // end of gathering
		}
		data, err := json.Marshal(c.ToJSON())
		if err != nil {
			return
		}
		fn(data)
	})
}

func (s *pionSession) OnRemoteTrack(fn func(*webrtc.TrackRemote)) {
	s.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		fn(track)
	})
}

func (s *pionSession) Close() error {
	return s.pc.Close()
}
