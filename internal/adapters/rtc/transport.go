// Package rtc implements core.MediaTransport on pion/webrtc.
package rtc

import (
	"errors"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
)

var ErrForeignSender = errors.New("sender does not belong to this transport")

func DefaultWebRTCConfig() webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		},
	}
}

// Factory builds one peer connection per remote peer from a shared config.
type Factory struct {
	cfg webrtc.Configuration
}

func NewFactory(cfg webrtc.Configuration) *Factory {
	return &Factory{cfg: cfg}
}

func (f *Factory) NewTransport(peer domain.PeerID) (core.MediaTransport, error) {
	pc, err := webrtc.NewPeerConnection(f.cfg)
	if err != nil {
		return nil, err
	}
	t := &Transport{pc: pc, peer: peer}
	t.bind()
	return t, nil
}

// Transport wraps one webrtc.PeerConnection. It carries no negotiation
// state; the engine above decides when each operation is legal.
type Transport struct {
	pc   *webrtc.PeerConnection
	peer domain.PeerID

	onICE     func(webrtc.ICECandidateInit)
	onTrack   func(core.RemoteTrack)
	onChannel func(core.DataChannel)
	onState   func(core.TransportState)
}

func (t *Transport) bind() {
	t.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c != nil && t.onICE != nil {
			t.onICE(c.ToJSON())
		}
	})
	t.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		kind := core.TrackVideo
		if track.Kind() == webrtc.RTPCodecTypeAudio {
			kind = core.TrackAudio
		}
		log.Info().
			Str("module", "rtc").
			Str("peer", string(t.peer)).
			Str("kind", kind.String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("remote track")
		if t.onTrack != nil {
			t.onTrack(core.RemoteTrack{ID: track.ID(), StreamID: track.StreamID(), Kind: kind})
		}
	})
	t.pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if t.onChannel != nil {
			t.onChannel(wrapChannel(dc))
		}
	})
	t.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "rtc").Str("peer", string(t.peer)).Str("state", s.String()).Msg("peer state")
		if t.onState != nil {
			t.onState(mapState(s))
		}
	})
}

func mapState(s webrtc.PeerConnectionState) core.TransportState {
	switch s {
	case webrtc.PeerConnectionStateNew:
		return core.TransportNew
	case webrtc.PeerConnectionStateConnecting:
		return core.TransportConnecting
	case webrtc.PeerConnectionStateConnected:
		return core.TransportConnected
	case webrtc.PeerConnectionStateDisconnected:
		return core.TransportDisconnected
	case webrtc.PeerConnectionStateFailed:
		return core.TransportFailed
	default:
		return core.TransportClosed
	}
}

func (t *Transport) CreateOffer() (webrtc.SessionDescription, error) {
	offer, err := t.pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := t.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return offer, nil
}

func (t *Transport) CreateAnswer(offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	if err := t.pc.SetRemoteDescription(offer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	answer, err := t.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := t.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return answer, nil
}

func (t *Transport) ApplyAnswer(answer webrtc.SessionDescription) error {
	return t.pc.SetRemoteDescription(answer)
}

func (t *Transport) Rollback() error {
	return t.pc.SetLocalDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeRollback})
}

func (t *Transport) AddICECandidate(c webrtc.ICECandidateInit) error {
	return t.pc.AddICECandidate(c)
}

type trackSender struct {
	s *webrtc.RTPSender
}

func (ts *trackSender) ReplaceTrack(t webrtc.TrackLocal) error {
	return ts.s.ReplaceTrack(t)
}

func (t *Transport) AddTrack(track webrtc.TrackLocal) (core.TrackSender, error) {
	s, err := t.pc.AddTrack(track)
	if err != nil {
		return nil, err
	}
	return &trackSender{s: s}, nil
}

func (t *Transport) RemoveTrack(s core.TrackSender) error {
	ts, ok := s.(*trackSender)
	if !ok {
		return ErrForeignSender
	}
	return t.pc.RemoveTrack(ts.s)
}

func (t *Transport) CreateDataChannel(label string) (core.DataChannel, error) {
	dc, err := t.pc.CreateDataChannel(label, nil)
	if err != nil {
		return nil, err
	}
	return wrapChannel(dc), nil
}

func (t *Transport) OnICECandidate(fn func(webrtc.ICECandidateInit)) { t.onICE = fn }
func (t *Transport) OnTrack(fn func(core.RemoteTrack))               { t.onTrack = fn }
func (t *Transport) OnDataChannel(fn func(core.DataChannel))         { t.onChannel = fn }
func (t *Transport) OnStateChange(fn func(core.TransportState))      { t.onState = fn }

func (t *Transport) Close() error {
	return t.pc.Close()
}
