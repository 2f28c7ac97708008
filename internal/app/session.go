package app

import (
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/dkeye/Meet/internal/metrics"
)

type SessionRole int

const (
	RoleInitiator SessionRole = iota
	RoleResponder
)

func (r SessionRole) String() string {
	if r == RoleInitiator {
		return "initiator"
	}
	return "responder"
}

type outboundKey struct {
	purpose core.TrackPurpose
	kind    core.TrackKind
}

// Session is the complete connection state toward one remote peer:
// transport, negotiation engine, outbound track senders, inbound track
// bookkeeping, and the control channel once it opens.
type Session struct {
	peer      domain.PeerID
	role      SessionRole
	transport core.MediaTransport
	engine    *Engine
	metrics   *metrics.Metrics

	mu      sync.Mutex
	control *Control
	senders map[outboundKey]core.TrackSender
	remote  map[string]core.RemoteTrack
	closed  bool
}

func newSession(peer domain.PeerID, role SessionRole, t core.MediaTransport, e *Engine, m *metrics.Metrics) *Session {
	return &Session{
		peer:      peer,
		role:      role,
		transport: t,
		engine:    e,
		metrics:   m,
		senders:   make(map[outboundKey]core.TrackSender),
		remote:    make(map[string]core.RemoteTrack),
	}
}

func (s *Session) Peer() domain.PeerID { return s.peer }
func (s *Session) Role() SessionRole   { return s.role }
func (s *Session) Engine() *Engine     { return s.engine }

// AttachLocal adds an outbound track. It does not renegotiate on its own;
// the caller batches attachments and calls Renegotiate once.
func (s *Session) AttachLocal(t core.LocalTrack, purpose core.TrackPurpose) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	sender, err := s.transport.AddTrack(t.Track())
	if err != nil {
		return err
	}
	s.senders[outboundKey{purpose: purpose, kind: t.Kind()}] = sender
	return nil
}

// ReplaceLocal swaps the outbound user track of the given kind in place.
// Replacement keeps the media-line count, so no renegotiation follows.
func (s *Session) ReplaceLocal(kind core.TrackKind, t webrtc.TrackLocal) {
	s.mu.Lock()
	sender, ok := s.senders[outboundKey{purpose: core.PurposeUser, kind: kind}]
	s.mu.Unlock()
	if !ok {
		return
	}
	if err := sender.ReplaceTrack(t); err != nil {
		log.Error().Err(err).Str("module", "app.session").Str("peer", string(s.peer)).Str("kind", kind.String()).Msg("replace track")
	}
}

// RemoveScreenTracks drops the screen senders from the outbound set.
func (s *Session) RemoveScreenTracks() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, sender := range s.senders {
		if key.purpose != core.PurposeScreen {
			continue
		}
		if err := s.transport.RemoveTrack(sender); err != nil {
			log.Error().Err(err).Str("module", "app.session").Str("peer", string(s.peer)).Msg("remove screen track")
		}
		delete(s.senders, key)
	}
}

// Renegotiate carries outbound track changes to the peer. The engine
// collapses bursts into one offer and no-ops mid-negotiation.
func (s *Session) Renegotiate() {
	s.engine.CreateOffer()
}

// AdoptControl wires the control channel. Exactly one exists per session;
// a duplicate (both sides creating, or a peer misbehaving) is closed.
func (s *Session) AdoptControl(ch core.DataChannel, h ControlHandlers) *Control {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.control != nil {
		log.Warn().Str("module", "app.session").Str("peer", string(s.peer)).Msg("duplicate control channel closed")
		_ = ch.Close()
		return s.control
	}
	s.control = newControl(s.peer, ch, h, s.metrics)
	return s.control
}

// Control returns the channel handle, nil until opened.
func (s *Session) Control() *Control {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.control
}

func (s *Session) addRemote(t core.RemoteTrack) {
	s.mu.Lock()
	s.remote[t.ID] = t
	s.mu.Unlock()
}

// RemoteTracks snapshots the inbound tracks, for removal callbacks at
// teardown time.
func (s *Session) RemoteTracks() []core.RemoteTrack {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.RemoteTrack, 0, len(s.remote))
	for _, t := range s.remote {
		out = append(out, t)
	}
	return out
}

// Close tears the session down. Every step failure is logged and
// swallowed so teardown always completes.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	control := s.control
	s.mu.Unlock()

	s.engine.Close()
	if control != nil {
		control.Close()
	}
	if err := s.transport.Close(); err != nil {
		log.Error().Err(err).Str("module", "app.session").Str("peer", string(s.peer)).Msg("close transport")
	}
	log.Info().Str("module", "app.session").Str("peer", string(s.peer)).Msg("session closed")
}
