package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/dkeye/Meet/internal/signal"
)

// --- transport ------------------------------------------------------------

type fakeSender struct {
	mu       sync.Mutex
	replaced []webrtc.TrackLocal
}

func (s *fakeSender) ReplaceTrack(t webrtc.TrackLocal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replaced = append(s.replaced, t)
	return nil
}

type fakeTransport struct {
	mu sync.Mutex

	offerErr  error
	answerErr error
	applyErr  error

	// When set, CreateOffer announces itself on offerStarted and then
	// blocks on offerGate, so tests can interleave a colliding offer.
	offerStarted chan struct{}
	offerGate    chan struct{}

	offers     int
	answers    int
	applied    int
	rollbacks  int
	candidates []webrtc.ICECandidateInit
	senders    []*fakeSender
	removed    int
	channels   []*fakeChannel
	closed     bool

	onICE     func(webrtc.ICECandidateInit)
	onTrack   func(core.RemoteTrack)
	onChannel func(core.DataChannel)
	onState   func(core.TransportState)
}

func newFakeTransport() *fakeTransport { return &fakeTransport{} }

func (t *fakeTransport) CreateOffer() (webrtc.SessionDescription, error) {
	t.mu.Lock()
	started, gate := t.offerStarted, t.offerGate
	t.mu.Unlock()
	if started != nil {
		started <- struct{}{}
	}
	if gate != nil {
		<-gate
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.offerErr != nil {
		return webrtc.SessionDescription{}, t.offerErr
	}
	t.offers++
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: fmt.Sprintf("offer-%d", t.offers)}, nil
}

func (t *fakeTransport) CreateAnswer(offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.answerErr != nil {
		return webrtc.SessionDescription{}, t.answerErr
	}
	t.answers++
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: fmt.Sprintf("answer-%d", t.answers)}, nil
}

func (t *fakeTransport) ApplyAnswer(answer webrtc.SessionDescription) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.applyErr != nil {
		return t.applyErr
	}
	t.applied++
	return nil
}

func (t *fakeTransport) Rollback() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollbacks++
	return nil
}

func (t *fakeTransport) AddICECandidate(c webrtc.ICECandidateInit) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.candidates = append(t.candidates, c)
	return nil
}

func (t *fakeTransport) AddTrack(tr webrtc.TrackLocal) (core.TrackSender, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := &fakeSender{}
	t.senders = append(t.senders, s)
	return s, nil
}

func (t *fakeTransport) RemoveTrack(s core.TrackSender) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.removed++
	return nil
}

func (t *fakeTransport) CreateDataChannel(label string) (core.DataChannel, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ch := newFakeChannel(label)
	t.channels = append(t.channels, ch)
	return ch, nil
}

func (t *fakeTransport) OnICECandidate(fn func(webrtc.ICECandidateInit)) { t.onICE = fn }
func (t *fakeTransport) OnTrack(fn func(core.RemoteTrack))              { t.onTrack = fn }
func (t *fakeTransport) OnDataChannel(fn func(core.DataChannel))        { t.onChannel = fn }
func (t *fakeTransport) OnStateChange(fn func(core.TransportState))     { t.onState = fn }

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func (t *fakeTransport) offerCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.offers
}

func (t *fakeTransport) candidateCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.candidates)
}

type fakeFactory struct {
	mu         sync.Mutex
	transports map[domain.PeerID]*fakeTransport
	err        error
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{transports: make(map[domain.PeerID]*fakeTransport)}
}

func (f *fakeFactory) NewTransport(peer domain.PeerID) (core.MediaTransport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	t := newFakeTransport()
	f.transports[peer] = t
	return t, nil
}

func (f *fakeFactory) get(peer domain.PeerID) *fakeTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.transports[peer]
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.transports)
}

// --- data channel ---------------------------------------------------------

type fakeChannel struct {
	mu        sync.Mutex
	label     string
	open      bool
	sent      [][]byte
	closed    bool
	onOpen    func()
	onMessage func([]byte)
	onClose   func()
}

func newFakeChannel(label string) *fakeChannel { return &fakeChannel{label: label} }

func (c *fakeChannel) Label() string { return c.label }

func (c *fakeChannel) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *fakeChannel) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return fmt.Errorf("channel %q not open", c.label)
	}
	c.sent = append(c.sent, data)
	return nil
}

func (c *fakeChannel) OnOpen(fn func())          { c.onOpen = fn }
func (c *fakeChannel) OnMessage(fn func([]byte)) { c.onMessage = fn }
func (c *fakeChannel) OnClose(fn func())         { c.onClose = fn }

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	c.open = false
	c.closed = true
	c.mu.Unlock()
	if c.onClose != nil {
		c.onClose()
	}
	return nil
}

// markOpen flips the channel open and fires the open callback, the way a
// real channel does once the transport connects.
func (c *fakeChannel) markOpen() {
	c.mu.Lock()
	c.open = true
	c.mu.Unlock()
	if c.onOpen != nil {
		c.onOpen()
	}
}

func (c *fakeChannel) receive(data []byte) {
	if c.onMessage != nil {
		c.onMessage(data)
	}
}

func (c *fakeChannel) sentMessages() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.sent))
	copy(out, c.sent)
	return out
}

// --- capture --------------------------------------------------------------

type fakeTrack struct {
	mu      sync.Mutex
	kind    core.TrackKind
	enabled bool
	stopped bool
}

func newFakeTrack(kind core.TrackKind) *fakeTrack {
	return &fakeTrack{kind: kind, enabled: true}
}

func (t *fakeTrack) Kind() core.TrackKind     { return t.kind }
func (t *fakeTrack) Track() webrtc.TrackLocal { return nil }

func (t *fakeTrack) SetEnabled(on bool) {
	t.mu.Lock()
	t.enabled = on
	t.mu.Unlock()
}

func (t *fakeTrack) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

func (t *fakeTrack) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}

func (t *fakeTrack) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

type fakeSource struct {
	audio   *fakeTrack
	video   *fakeTrack
	stopped bool
	onEnded func()
}

func (s *fakeSource) AudioTrack() core.LocalTrack {
	if s.audio == nil {
		return nil
	}
	return s.audio
}

func (s *fakeSource) VideoTrack() core.LocalTrack {
	if s.video == nil {
		return nil
	}
	return s.video
}

func (s *fakeSource) OnEnded(fn func()) { s.onEnded = fn }

func (s *fakeSource) Stop() {
	s.stopped = true
	if s.audio != nil {
		s.audio.Stop()
	}
	if s.video != nil {
		s.video.Stop()
	}
}

type fakeProvider struct {
	mu          sync.Mutex
	userOpens   int
	screenOpens int
	userErr     error
	screenErr   error
	lastUser    *fakeSource
	lastScreen  *fakeSource
}

func (p *fakeProvider) OpenUserMedia(audio, video bool) (core.CaptureSource, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.userErr != nil {
		return nil, p.userErr
	}
	p.userOpens++
	src := &fakeSource{}
	if audio {
		src.audio = newFakeTrack(core.TrackAudio)
	}
	if video {
		src.video = newFakeTrack(core.TrackVideo)
	}
	p.lastUser = src
	return src, nil
}

func (p *fakeProvider) OpenAudioDevice(deviceID string) (core.LocalTrack, error) {
	return newFakeTrack(core.TrackAudio), nil
}

func (p *fakeProvider) OpenVideoDevice(deviceID string) (core.LocalTrack, error) {
	return newFakeTrack(core.TrackVideo), nil
}

func (p *fakeProvider) OpenDisplayMedia(self domain.PeerID, mode core.ScreenAudioMode) (core.CaptureSource, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.screenErr != nil {
		return nil, p.screenErr
	}
	p.screenOpens++
	src := &fakeSource{video: newFakeTrack(core.TrackVideo)}
	if mode == core.ScreenAudioMic || mode == core.ScreenAudioSystem {
		src.audio = newFakeTrack(core.TrackAudio)
	}
	p.lastScreen = src
	return src, nil
}

// --- signaling link -------------------------------------------------------

type fakeLink struct {
	mu       sync.Mutex
	state    core.LinkState
	sent     []signal.Envelope
	openErr  error
	handler  func(signal.Envelope)
	onClosed func()
}

func newFakeLink() *fakeLink { return &fakeLink{state: core.LinkIdle} }

func (l *fakeLink) Open(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.openErr != nil {
		return l.openErr
	}
	l.state = core.LinkOpen
	return nil
}

func (l *fakeLink) Send(env signal.Envelope) {
	l.mu.Lock()
	l.sent = append(l.sent, env)
	l.mu.Unlock()
}

func (l *fakeLink) State() core.LinkState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *fakeLink) OnMessage(fn func(signal.Envelope)) { l.handler = fn }
func (l *fakeLink) OnClosed(fn func())                 { l.onClosed = fn }

func (l *fakeLink) Close() {
	l.mu.Lock()
	l.state = core.LinkClosed
	l.mu.Unlock()
}

// deliver pushes an inbound envelope the way the read pump would.
func (l *fakeLink) deliver(env signal.Envelope) {
	if l.handler != nil {
		l.handler(env)
	}
}

func (l *fakeLink) sentEnvelopes() []signal.Envelope {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]signal.Envelope, len(l.sent))
	copy(out, l.sent)
	return out
}

func (l *fakeLink) sentOfKind(kind signal.Kind) []signal.Envelope {
	var out []signal.Envelope
	for _, env := range l.sentEnvelopes() {
		if env.Kind == kind {
			out = append(out, env)
		}
	}
	return out
}

func (l *fakeLink) sentOfAction(action signal.Action) []signal.Envelope {
	var out []signal.Envelope
	for _, env := range l.sentEnvelopes() {
		if env.Kind == signal.KindSignal && env.Action == action {
			out = append(out, env)
		}
	}
	return out
}
