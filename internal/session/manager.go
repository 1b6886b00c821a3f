// Package session drives the peer-link negotiation protocol. All relay
// events, async completions, and public operations are serialized onto a
// single event-loop goroutine, so the link registry needs no locking and
// every handler sees consistent state.
package session

import (
	"context"
	"encoding/json"
	"log"

	"github.com/pion/webrtc/v4"

	"github.com/huddlekit/huddle/internal/media"
	"github.com/huddlekit/huddle/internal/rtc"
	"github.com/huddlekit/huddle/internal/signaling"
	"github.com/huddlekit/huddle/internal/transcript"
)

// Channel is the slice of the relay connection the manager needs.
type Channel interface {
	LocalID() string
	Emit(event string, payload any) error
	Events() <-chan signaling.Envelope
}

// RemoteSurface is the presentation capability for remote media. The core
// never manipulates presentation state directly.
type RemoteSurface interface {
	AttachRemoteSurface(channelID, userName string, track *webrtc.TrackRemote)
	DetachRemoteSurface(channelID string)
}

// LogSurface is the default surface for headless runs.
type LogSurface struct {
	Logger *log.Logger
}

func (s *LogSurface) AttachRemoteSurface(channelID, userName string, track *webrtc.TrackRemote) {
	s.Logger.Printf("session: remote audio from %s (%s)", userName, channelID)
}

func (s *LogSurface) DetachRemoteSurface(channelID string) {
	s.Logger.Printf("session: remote audio from %s ended", channelID)
}

// Deps are the manager's collaborators.
type Deps struct {
	Channel     Channel
	Factory     rtc.Factory
	Source      media.Source // may be nil when no device was acquired
	Transcripts *transcript.Aggregator
	Surface     RemoteSurface
	Logger      *log.Logger
}

// Manager owns the set of peer links for the local participant and relays
// negotiation envelopes through the signaling channel.
type Manager struct {
	userName string
	deps     Deps

	// Touched only on the Run goroutine.
	roomID string
	links  map[string]*PeerLink

	tasks chan func()
}

func New(userName string, deps Deps) *Manager {
	return &Manager{
		userName: userName,
		deps:     deps,
		links:    make(map[string]*PeerLink),
		tasks:    make(chan func(), 64),
	}
}

// Run is the event loop. It returns when ctx is cancelled or the relay
// connection drops. No two handlers ever run concurrently.
func (m *Manager) Run(ctx context.Context) {
	events := m.deps.Channel.Events()
	for {
		select {
		case <-ctx.Done():
			m.closeAll()
			return
		case env, ok := <-events:
			if !ok {
				m.deps.Logger.Printf("session: relay connection closed")
				m.closeAll()
				return
			}
			m.handleEnvelope(env)
		case fn := <-m.tasks:
			fn()
		}
	}
}

// post schedules fn onto the event loop.
func (m *Manager) post(fn func()) {
	m.tasks <- fn
}

// JoinRoom announces this participant to a room. It requires a live audio
// source and is idempotent per room id while connected.
func (m *Manager) JoinRoom(roomID string) {
	m.post(func() {
		if m.deps.Source == nil {
			m.deps.Logger.Printf("session: cannot join %s without an audio source", roomID)
			return
		}
		if m.roomID == roomID {
			return
		}
		if m.roomID != "" {
			m.deps.Logger.Printf("session: already in room %s, ignoring join %s", m.roomID, roomID)
			return
		}
		m.roomID = roomID
		m.emit(signaling.EventJoinRoom, roomID)
	})
}

// PublishTranscript broadcasts a transcription to the room and records the
// local transcript event. Called by the pipeline on upload success.
func (m *Manager) PublishTranscript(userName, roomID, text string) {
	m.post(func() {
		m.emit(signaling.EventTranscription, signaling.Transcription{
			UserName:      userName,
			RoomID:        roomID,
			Transcription: text,
		})
		m.deps.Transcripts.RecordLocal(text)
	})
}

// Peers returns a snapshot of the current peer links. It round-trips
// through the event loop, so it must not be called from a handler.
func (m *Manager) Peers() []PeerInfo {
	res := make(chan []PeerInfo, 1)
	m.post(func() {
		out := make([]PeerInfo, 0, len(m.links))
		for _, link := range m.links {
			out = append(out, PeerInfo{
				ChannelID:   link.RemoteID,
				DisplayName: link.RemoteName,
				State:       link.State,
			})
		}
		res <- out
	})
	return <-res
}

func (m *Manager) handleEnvelope(env signaling.Envelope) {
	switch env.Event {
	case signaling.EventUserJoined:
		var p signaling.UserJoined
		if err := json.Unmarshal(env.Data, &p); err != nil {
			m.deps.Logger.Printf("session: malformed userJoined: %v", err)
			return
		}
		m.handleUserJoined(p)
	case signaling.EventOffer:
		var p signaling.OfferPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			m.deps.Logger.Printf("session: malformed offer: %v", err)
			return
		}
		m.handleOffer(p)
	case signaling.EventAnswer:
		var p signaling.AnswerPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			m.deps.Logger.Printf("session: malformed answer: %v", err)
			return
		}
		m.handleAnswer(p)
	case signaling.EventIceCandidate:
		var p signaling.CandidatePayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			m.deps.Logger.Printf("session: malformed iceCandidate: %v", err)
			return
		}
		m.handleCandidate(p)
	case signaling.EventUserLeft:
		var p signaling.UserLeft
		if err := json.Unmarshal(env.Data, &p); err != nil {
			m.deps.Logger.Printf("session: malformed userLeft: %v", err)
			return
		}
		m.handleUserLeft(p)
	case signaling.EventTranscription:
		var p signaling.Transcription
		if err := json.Unmarshal(env.Data, &p); err != nil {
			m.deps.Logger.Printf("session: malformed transcription: %v", err)
			return
		}
		m.deps.Transcripts.RecordRemote(p.From, p.UserName, p.Transcription)
	default:
		m.deps.Logger.Printf("session: unknown event %q", env.Event)
	}
}

// handleUserJoined creates a link for the announced peer and starts offer
// generation. A repeated announcement for a known id is a no-op that
// preserves the existing link.
func (m *Manager) handleUserJoined(p signaling.UserJoined) {
	if _, ok := m.links[p.SocketID]; ok {
		m.deps.Logger.Printf("session: peer link already exists for %s", p.SocketID)
		return
	}

	link, ok := m.createLink(p.SocketID, p.UserName)
	if !ok {
		return
	}

	sess := link.session
	go func() {
		offer, err := sess.CreateOffer()
		m.post(func() { m.completeOffer(p.SocketID, sess, offer, err) })
	}()
}

// completeOffer runs on the loop after async offer generation. The link
// may have been closed or replaced while the offer was in flight.
func (m *Manager) completeOffer(remoteID string, sess rtc.Session, offer json.RawMessage, err error) {
	link, ok := m.links[remoteID]
	if !ok || link.session != sess || link.State != StateIdle {
		return
	}
	if err != nil {
		// No retry; the peer stays Idle until it leaves or re-offers.
		m.deps.Logger.Printf("session: create offer for %s: %v", remoteID, err)
		return
	}
	link.State = StateOfferSent
	m.emit(signaling.EventOffer, signaling.OfferPayload{Offer: offer, TargetSocketID: remoteID})
}

// handleOffer answers an inbound offer, creating the link if the offer
// raced ahead of the announcement.
func (m *Manager) handleOffer(p signaling.OfferPayload) {
	link, ok := m.links[p.From]
	if !ok {
		link, ok = m.createLink(p.From, p.UserName)
		if !ok {
			return
		}
	}
	link.State = StateOfferReceived

	sess := link.session
	offer := p.Offer
	link.State = StateAnswering
	go func() {
		answer, err := sess.CreateAnswer(offer)
		m.post(func() { m.completeAnswer(p.From, sess, answer, err) })
	}()
}

func (m *Manager) completeAnswer(remoteID string, sess rtc.Session, answer json.RawMessage, err error) {
	link, ok := m.links[remoteID]
	if !ok || link.session != sess || link.State != StateAnswering {
		return
	}
	if err != nil {
		m.deps.Logger.Printf("session: answer offer from %s: %v", remoteID, err)
		return
	}
	// Connected at the signaling level; ICE connectivity completes
	// underneath and surfaces through the remote track callback.
	link.State = StateConnected
	m.emit(signaling.EventAnswer, signaling.AnswerPayload{Answer: answer, TargetSocketID: remoteID})
}

// handleAnswer completes the offering side. Late or duplicate answers for
// unknown links are dropped silently.
func (m *Manager) handleAnswer(p signaling.AnswerPayload) {
	link, ok := m.links[p.From]
	if !ok {
		return
	}
	if link.State != StateOfferSent {
		m.deps.Logger.Printf("session: unexpected answer from %s in state %s", p.From, link.State)
		return
	}
	if err := link.session.AcceptAnswer(p.Answer); err != nil {
		m.deps.Logger.Printf("session: accept answer from %s: %v", p.From, err)
		return
	}
	link.State = StateConnected
}

// handleCandidate feeds a trickled candidate to its link. Candidates may
// race link creation; dropping them is acceptable because renegotiation
// only proceeds once offer/answer succeed.
func (m *Manager) handleCandidate(p signaling.CandidatePayload) {
	link, ok := m.links[p.From]
	if !ok {
		return
	}
	if err := link.session.AddRemoteCandidate(p.Candidate); err != nil {
		m.deps.Logger.Printf("session: add candidate from %s: %v", p.From, err)
	}
}

// handleUserLeft releases the departed peer's link. An unknown id is a
// strict no-op.
func (m *Manager) handleUserLeft(p signaling.UserLeft) {
	link, ok := m.links[p.SocketID]
	if !ok {
		return
	}
	m.closeLink(link)
	m.deps.Logger.Printf("session: peer %s (%s) left", link.RemoteName, link.RemoteID)
}

// createLink builds a media session with the local tracks attached and
// registers the link in Idle.
func (m *Manager) createLink(remoteID, remoteName string) (*PeerLink, bool) {
	var tracks []webrtc.TrackLocal
	if m.deps.Source != nil {
		tracks = m.deps.Source.Tracks()
	}
	sess, err := m.deps.Factory.NewSession(tracks)
	if err != nil {
		m.deps.Logger.Printf("session: create media session for %s: %v", remoteID, err)
		return nil, false
	}

	link := &PeerLink{
		RemoteID:   remoteID,
		RemoteName: remoteName,
		State:      StateIdle,
		session:    sess,
	}
	m.links[remoteID] = link

	// Callbacks fire on the media layer's goroutines and are posted back
	// onto the loop with the usual staleness re-check.
	sess.OnLocalCandidate(func(candidate json.RawMessage) {
		m.post(func() {
			current, ok := m.links[remoteID]
			if !ok || current.session != sess {
				return
			}
			m.emit(signaling.EventIceCandidate, signaling.CandidatePayload{
				Candidate:      candidate,
				TargetSocketID: remoteID,
			})
		})
	})
	sess.OnRemoteTrack(func(track *webrtc.TrackRemote) {
		m.post(func() {
			current, ok := m.links[remoteID]
			if !ok || current.session != sess {
				return
			}
			m.deps.Surface.AttachRemoteSurface(remoteID, current.RemoteName, track)
		})
	})

	return link, true
}

func (m *Manager) closeLink(link *PeerLink) {
	if err := link.session.Close(); err != nil {
		m.deps.Logger.Printf("session: close media session for %s: %v", link.RemoteID, err)
	}
	link.State = StateClosed
	delete(m.links, link.RemoteID)
	m.deps.Surface.DetachRemoteSurface(link.RemoteID)
}

func (m *Manager) closeAll() {
	for _, link := range m.links {
		m.closeLink(link)
	}
}

// emit sends one envelope; a send failure is local to that negotiation
// step and never propagates.
func (m *Manager) emit(event string, payload any) {
	if err := m.deps.Channel.Emit(event, payload); err != nil {
		m.deps.Logger.Printf("session: emit %s: %v", event, err)
	}
}
