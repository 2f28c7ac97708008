// Package app implements the peer-mesh coordination layer: who connects
// to whom, how each pair negotiates, and how mute/camera/screen/chat
// state stays synchronized across the mesh.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/dkeye/Meet/internal/metrics"
	"github.com/dkeye/Meet/internal/signal"
)

// Options fix the coordinator's identity and policies for one room-join.
type Options struct {
	Self  domain.PeerID
	Room  domain.RoomID
	Roles domain.RoleTable
	// RelayChat additionally pushes outbound chat through the relay so
	// the server can persist it.
	RelayChat bool
}

// Deps are the external collaborators. Metrics may be nil.
type Deps struct {
	Link       core.SignalConnection
	Transports core.TransportFactory
	Capture    core.CaptureProvider
	Metrics    *metrics.Metrics
}

// Coordinator wires the subsystem together and owns the two public
// lifecycle entry points, Connect and Disconnect. One value exists per
// room-join; it holds no ambient global state.
type Coordinator struct {
	opts    Options
	link    core.SignalConnection
	builder core.TransportFactory
	metrics *metrics.Metrics

	registry *Registry
	roster   *Tracker
	media    *MediaManager
	events   *Emitter

	mu         sync.Mutex
	connected  bool
	sharer     domain.PeerID
	selfStatus domain.PeerStatus
	status     map[domain.PeerID]domain.PeerStatus
	content    string
}

func NewCoordinator(opts Options, deps Deps) *Coordinator {
	c := &Coordinator{
		opts:     opts,
		link:     deps.Link,
		builder:  deps.Transports,
		metrics:  deps.Metrics,
		registry: NewRegistry(deps.Metrics),
		roster:   NewTracker(opts.Self, opts.Roles),
		media:    NewMediaManager(opts.Self, deps.Capture),
		events:   NewEmitter(),
	}
	c.status = make(map[domain.PeerID]domain.PeerStatus)
	deps.Link.OnMessage(c.dispatch)
	deps.Link.OnClosed(func() { c.events.Emit(core.LinkDown{}) })
	return c
}

func (c *Coordinator) Events() *Emitter { return c.events }

// Connect opens the signaling link and acquires local capture. A capture
// failure is returned to the caller but leaves the link open: a
// listen-only join is allowed, and any audio-only fallback is the
// caller's decision, not this layer's. The link is dialed once; a repeat
// call only retries the (idempotent) capture acquisition, which is how a
// caller applies that fallback.
func (c *Coordinator) Connect(ctx context.Context, audioWanted, videoWanted bool) error {
	c.mu.Lock()
	already := c.connected
	c.connected = true
	c.mu.Unlock()

	if !already {
		if err := c.link.Open(ctx); err != nil {
			c.mu.Lock()
			c.connected = false
			c.mu.Unlock()
			return fmt.Errorf("open signaling link: %w", err)
		}
	}
	return c.media.EnsureLocalCapture(audioWanted, videoWanted)
}

// Disconnect tears everything down: media first so sessions cannot race
// to re-acquire it, then sessions, then the link, then the roster state.
// Every step failure is swallowed so the coordinator always reaches a
// clean terminal state. A second call is a safe no-op.
func (c *Coordinator) Disconnect() {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return
	}
	c.connected = false
	c.sharer = ""
	c.content = ""
	c.status = make(map[domain.PeerID]domain.PeerStatus)
	c.selfStatus = domain.PeerStatus{}
	c.mu.Unlock()

	c.media.StopAll()
	for _, s := range c.registry.PopAll() {
		s.Close()
	}
	c.link.Close()
	c.roster.Reset()
	log.Info().Str("module", "app.coordinator").Str("self", string(c.opts.Self)).Msg("disconnected")
}

// --- relay dispatch -------------------------------------------------------

func (c *Coordinator) dispatch(env signal.Envelope) {
	c.metrics.SignalIn(string(env.Kind))
	msg, err := signal.Parse(env)
	if err != nil {
		c.metrics.EnvelopeDropped()
		log.Warn().Err(err).Str("module", "app.coordinator").Str("kind", string(env.Kind)).Msg("envelope dropped")
		return
	}
	msg.Accept(c)
}

func (c *Coordinator) VisitUserList(m signal.UserList) {
	joined, left, changed := c.roster.Apply(m.Users)
	if !changed {
		return
	}
	c.events.Emit(core.RosterChanged{Peers: m.Users})

	for _, peer := range left {
		c.teardownPeer(peer)
	}
	for _, peer := range joined {
		if !c.roster.ShouldInitiate(peer) {
			// The other side (or a passive agent) offers to us.
			continue
		}
		c.ensureSession(peer, RoleInitiator)
	}
}

func (c *Coordinator) VisitOffer(m signal.Offer) {
	s := c.ensureSession(m.From, RoleResponder)
	if s == nil {
		return
	}
	s.Engine().ReceiveOffer(m.SDP)
}

func (c *Coordinator) VisitAnswer(m signal.Answer) {
	s, ok := c.registry.Get(m.From)
	if !ok {
		log.Warn().Str("module", "app.coordinator").Str("peer", string(m.From)).Msg("answer for unknown session dropped")
		return
	}
	s.Engine().ReceiveAnswer(m.SDP)
}

func (c *Coordinator) VisitICE(m signal.ICE) {
	s, ok := c.registry.Get(m.From)
	if !ok {
		log.Warn().Str("module", "app.coordinator").Str("peer", string(m.From)).Msg("candidate for unknown session dropped")
		return
	}
	s.Engine().AddCandidate(m.Candidate)
}

func (c *Coordinator) VisitBotAudio(m signal.BotAudio) {
	c.events.Emit(core.BotAudioReceived{From: m.From, Data: m.Data, Format: m.Format})
}

func (c *Coordinator) VisitBotMessage(m signal.BotMessage) {
	c.events.Emit(core.BotMessageReceived{From: m.From, Message: m.Message})
}

func (c *Coordinator) VisitContentUpdate(m signal.ContentUpdate) {
	c.mu.Lock()
	c.content = m.Text
	c.mu.Unlock()
	c.events.Emit(core.ContentChanged{By: m.From, Text: m.Text})
}

func (c *Coordinator) VisitRecordingUpdate(m signal.RecordingUpdate) {
	c.events.Emit(core.RecordingChanged{Active: m.Active})
}

func (c *Coordinator) VisitSpeakerUpdate(m signal.SpeakerUpdate) {
	c.events.Emit(core.SpeakersChanged{Speaking: m.Speaking})
}

func (c *Coordinator) VisitProgressUpdate(m signal.ProgressUpdate) {
	c.events.Emit(core.ProgressUpdated{From: m.From, Payload: m.Payload})
}

func (c *Coordinator) VisitChatMessage(m signal.ChatMessage) {
	c.events.Emit(core.ChatReceived{Message: m.Message})
}

func (c *Coordinator) VisitEndCall(m signal.EndCall) {
	log.Info().Str("module", "app.coordinator").Str("from", string(m.From)).Str("reason", m.Reason).Msg("meeting ended remotely")
	c.events.Emit(core.MeetingEnded{Reason: m.Reason})
	c.Disconnect()
}

// --- session construction -------------------------------------------------

func (c *Coordinator) ensureSession(peer domain.PeerID, role SessionRole) *Session {
	s, created, err := c.registry.Ensure(peer, func() (*Session, error) {
		return c.buildSession(peer, role)
	})
	if err != nil {
		log.Error().Err(err).Str("module", "app.coordinator").Str("peer", string(peer)).Msg("session create")
		return nil
	}
	if created && role == RoleInitiator {
		s.Renegotiate()
	}
	return s
}

func (c *Coordinator) buildSession(peer domain.PeerID, role SessionRole) (*Session, error) {
	transport, err := c.builder.NewTransport(peer)
	if err != nil {
		return nil, fmt.Errorf("new transport: %w", err)
	}

	engine := newEngine(c.opts.Self, peer, transport, c.sendSignal, c.metrics)
	s := newSession(peer, role, transport, engine, c.metrics)

	transport.OnICECandidate(func(ci webrtc.ICECandidateInit) {
		raw, err := json.Marshal(ci)
		if err != nil {
			log.Error().Err(err).Str("module", "app.coordinator").Str("peer", string(peer)).Msg("marshal candidate")
			return
		}
		c.sendSignal(signal.NewICE(c.opts.Self, peer, raw))
	})
	transport.OnTrack(func(t core.RemoteTrack) {
		s.addRemote(t)
		c.events.Emit(core.RemoteTrackAdded{Peer: peer, Track: t, Screen: core.IsScreenStream(t.StreamID)})
	})
	transport.OnDataChannel(func(ch core.DataChannel) {
		ctrl := s.AdoptControl(ch, c.controlHandlers())
		ch.OnOpen(func() { c.introduceSelf(ctrl) })
	})
	transport.OnStateChange(func(st core.TransportState) {
		if st.Terminal() {
			log.Info().Str("module", "app.coordinator").Str("peer", string(peer)).Str("state", st.String()).Msg("transport terminal")
			c.teardownPeer(peer)
		}
	})

	for _, t := range c.media.UserTracks() {
		if err := s.AttachLocal(t, core.PurposeUser); err != nil {
			log.Error().Err(err).Str("module", "app.coordinator").Str("peer", string(peer)).Msg("attach user track")
		}
	}
	for _, t := range c.media.ScreenTracks() {
		if err := s.AttachLocal(t, core.PurposeScreen); err != nil {
			log.Error().Err(err).Str("module", "app.coordinator").Str("peer", string(peer)).Msg("attach screen track")
		}
	}

	// The initiator creates the control channel; the responder adopts it
	// through OnDataChannel. Exactly one per session either way.
	if role == RoleInitiator {
		ch, err := transport.CreateDataChannel(ControlChannelLabel)
		if err != nil {
			_ = transport.Close()
			return nil, fmt.Errorf("create control channel: %w", err)
		}
		ctrl := s.AdoptControl(ch, c.controlHandlers())
		ch.OnOpen(func() { c.introduceSelf(ctrl) })
	}
	return s, nil
}

// introduceSelf pushes the local status (and active share, if any) to a
// peer whose control channel just opened, so late joiners converge.
func (c *Coordinator) introduceSelf(ctrl *Control) {
	c.mu.Lock()
	st := c.selfStatus
	sharing := c.sharer == c.opts.Self && c.sharer != ""
	c.mu.Unlock()

	ctrl.SendStatus(st)
	if sharing {
		ctrl.SendScreen(true, c.opts.Self)
	}
}

func (c *Coordinator) sendSignal(env signal.Envelope) {
	label := string(env.Kind)
	if env.Action != "" {
		label = string(env.Action)
	}
	c.metrics.SignalOut(label)
	c.link.Send(env)
}

// --- state plumbing -------------------------------------------------------

func (c *Coordinator) controlHandlers() ControlHandlers {
	return ControlHandlers{
		OnStatus: func(peer domain.PeerID, st domain.PeerStatus) {
			c.mu.Lock()
			c.status[peer] = st
			c.mu.Unlock()
			c.events.Emit(core.PeerStatusChanged{Peer: peer, Status: st})
		},
		OnScreen: func(peer domain.PeerID, sharing bool, by domain.PeerID) {
			c.mu.Lock()
			if sharing {
				c.sharer = by
			} else if c.sharer == by {
				c.sharer = ""
			}
			current := c.sharer
			c.mu.Unlock()
			c.events.Emit(core.ScreenSharerChanged{Sharer: current})
		},
		OnContent: func(peer domain.PeerID, text string) {
			c.mu.Lock()
			c.content = text
			c.mu.Unlock()
			c.events.Emit(core.ContentChanged{By: peer, Text: text})
		},
		OnChat: func(msg domain.ChatMessage) {
			c.events.Emit(core.ChatReceived{Message: msg})
		},
	}
}

func (c *Coordinator) teardownPeer(peer domain.PeerID) {
	s := c.registry.Remove(peer)
	if s == nil {
		return
	}
	s.Close()

	c.mu.Lock()
	delete(c.status, peer)
	sharerGone := c.sharer == peer
	if sharerGone {
		c.sharer = ""
	}
	c.mu.Unlock()

	for _, t := range s.RemoteTracks() {
		c.events.Emit(core.RemoteTrackRemoved{Peer: peer, TrackID: t.ID, Screen: core.IsScreenStream(t.StreamID)})
	}
	if sharerGone {
		c.events.Emit(core.ScreenSharerChanged{Sharer: ""})
	}
}

// --- public control surface ----------------------------------------------

func (c *Coordinator) SelfStatus() domain.PeerStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selfStatus
}

func (c *Coordinator) SetMuted(muted bool) {
	c.mu.Lock()
	c.selfStatus.IsMuted = muted
	st := c.selfStatus
	c.mu.Unlock()

	c.media.SetAudioEnabled(!muted)
	c.broadcastStatus(st)
}

func (c *Coordinator) SetCameraOff(off bool) {
	c.mu.Lock()
	c.selfStatus.IsCameraOff = off
	st := c.selfStatus
	c.mu.Unlock()

	c.media.SetVideoEnabled(!off)
	c.broadcastStatus(st)
}

func (c *Coordinator) broadcastStatus(st domain.PeerStatus) {
	for _, s := range c.registry.Snapshot() {
		if ctrl := s.Control(); ctrl != nil {
			ctrl.SendStatus(st)
		}
	}
}

// SendChat broadcasts a chat message over every open control channel. To
// is advisory only; delivery is still a broadcast. Channels not yet open
// miss the message; there is no queuing or replay.
func (c *Coordinator) SendChat(text string, to domain.PeerID, attachments ...domain.Attachment) domain.ChatMessage {
	msg := domain.ChatMessage{
		ID:          uuid.NewString(),
		From:        c.opts.Self,
		To:          to,
		Text:        text,
		Attachments: attachments,
		Timestamp:   time.Now().UTC(),
	}
	for _, s := range c.registry.Snapshot() {
		if ctrl := s.Control(); ctrl != nil {
			ctrl.SendChat(msg)
		}
	}
	if c.opts.RelayChat {
		c.sendSignal(signal.NewChatToServer(msg))
	}
	return msg
}

// UpdateContent replaces the shared text content and pushes it to every
// peer over the control channels and through the relay, so participants
// without a data channel (bots, the recorder) still see it.
func (c *Coordinator) UpdateContent(text string) {
	c.mu.Lock()
	c.content = text
	c.mu.Unlock()

	for _, s := range c.registry.Snapshot() {
		if ctrl := s.Control(); ctrl != nil {
			ctrl.SendContent(text)
		}
	}
	c.sendSignal(signal.NewContentUpdate(c.opts.Self, text))
}

// StartScreenShare acquires the screen source, attaches its tracks to
// every session (renegotiating each), and announces the share. Calling it
// while already sharing is a no-op.
func (c *Coordinator) StartScreenShare(mode core.ScreenAudioMode) error {
	src, started, err := c.media.StartScreen(mode)
	if err != nil {
		return err
	}
	if !started {
		return nil
	}
	// System-side revocation takes the same stop path as an explicit call.
	src.OnEnded(func() { c.StopScreenShare() })

	tracks := c.media.ScreenTracks()
	for _, s := range c.registry.Snapshot() {
		for _, t := range tracks {
			if err := s.AttachLocal(t, core.PurposeScreen); err != nil {
				log.Error().Err(err).Str("module", "app.coordinator").Str("peer", string(s.Peer())).Msg("attach screen track")
			}
		}
		s.Renegotiate()
	}

	c.mu.Lock()
	c.sharer = c.opts.Self
	c.mu.Unlock()
	c.events.Emit(core.ScreenSharerChanged{Sharer: c.opts.Self})

	for _, s := range c.registry.Snapshot() {
		if ctrl := s.Control(); ctrl != nil {
			ctrl.SendScreen(true, c.opts.Self)
		}
	}
	return nil
}

// StopScreenShare removes the screen tracks from every session
// (renegotiating each), stops the capture, and announces the end of the
// share. A no-op when not sharing.
func (c *Coordinator) StopScreenShare() {
	if !c.media.StopScreen() {
		return
	}
	for _, s := range c.registry.Snapshot() {
		s.RemoveScreenTracks()
		s.Renegotiate()
	}

	c.mu.Lock()
	if c.sharer == c.opts.Self {
		c.sharer = ""
	}
	c.mu.Unlock()
	c.events.Emit(core.ScreenSharerChanged{Sharer: ""})

	for _, s := range c.registry.Snapshot() {
		if ctrl := s.Control(); ctrl != nil {
			ctrl.SendScreen(false, c.opts.Self)
		}
	}
}

// SelectAudioDevice swaps the outgoing audio track in place on every
// active session; no renegotiation is needed because replacement keeps
// the media-line count.
func (c *Coordinator) SelectAudioDevice(deviceID string) error {
	fresh, old, err := c.media.SwapAudioDevice(deviceID)
	if err != nil {
		return err
	}
	for _, s := range c.registry.Snapshot() {
		s.ReplaceLocal(core.TrackAudio, fresh.Track())
	}
	old.Stop()
	return nil
}

func (c *Coordinator) SelectVideoDevice(deviceID string) error {
	fresh, old, err := c.media.SwapVideoDevice(deviceID)
	if err != nil {
		return err
	}
	for _, s := range c.registry.Snapshot() {
		s.ReplaceLocal(core.TrackVideo, fresh.Track())
	}
	old.Stop()
	return nil
}

// EndCall announces the end of the meeting through the relay and
// disconnects locally.
func (c *Coordinator) EndCall(reason string) {
	c.sendSignal(signal.NewEndCall(c.opts.Self, reason))
	c.Disconnect()
}

// --- read-only views ------------------------------------------------------

func (c *Coordinator) Self() domain.PeerID { return c.opts.Self }
func (c *Coordinator) Room() domain.RoomID { return c.opts.Room }

func (c *Coordinator) Peers() []domain.PeerID { return c.registry.Peers() }

func (c *Coordinator) CurrentSharer() domain.PeerID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sharer
}

func (c *Coordinator) Content() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.content
}

func (c *Coordinator) PeerStatuses() map[domain.PeerID]domain.PeerStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[domain.PeerID]domain.PeerStatus, len(c.status))
	for peer, st := range c.status {
		out[peer] = st
	}
	return out
}
