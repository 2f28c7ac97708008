package core

import (
	"github.com/dkeye/Meet/internal/domain"
	"github.com/pion/webrtc/v4"
)

type TransportState int

const (
	TransportNew TransportState = iota
	TransportConnecting
	TransportConnected
	TransportDisconnected
	TransportFailed
	TransportClosed
)

func (s TransportState) String() string {
	switch s {
	case TransportNew:
		return "new"
	case TransportConnecting:
		return "connecting"
	case TransportConnected:
		return "connected"
	case TransportDisconnected:
		return "disconnected"
	case TransportFailed:
		return "failed"
	case TransportClosed:
		return "closed"
	}
	return "unknown"
}

// Terminal reports whether the session owning this transport must be torn down.
func (s TransportState) Terminal() bool {
	return s == TransportFailed || s == TransportClosed
}

// TrackSender is the handle for one outbound track on one transport. It
// allows in-place replacement (device swap) without renegotiation.
type TrackSender interface {
	ReplaceTrack(t webrtc.TrackLocal) error
}

// RemoteTrack describes an inbound track. Screen tracks are distinguished
// from camera/mic by the stream id convention (see ScreenStreamID).
type RemoteTrack struct {
	ID       string
	StreamID string
	Kind     TrackKind
}

// MediaTransport wraps the per-session peer transport. It executes
// negotiation steps but holds no negotiation state of its own; the state
// machine lives in the coordinator layer.
type MediaTransport interface {
	// CreateOffer generates and applies a local offer.
	CreateOffer() (webrtc.SessionDescription, error)
	// CreateAnswer applies the remote offer, then generates and applies
	// a local answer.
	CreateAnswer(offer webrtc.SessionDescription) (webrtc.SessionDescription, error)
	// ApplyAnswer applies the remote answer.
	ApplyAnswer(answer webrtc.SessionDescription) error
	// Rollback discards the not-yet-answered local offer (glare).
	Rollback() error
	AddICECandidate(c webrtc.ICECandidateInit) error

	AddTrack(t webrtc.TrackLocal) (TrackSender, error)
	RemoveTrack(s TrackSender) error
	CreateDataChannel(label string) (DataChannel, error)

	OnICECandidate(fn func(c webrtc.ICECandidateInit))
	OnTrack(fn func(t RemoteTrack))
	OnDataChannel(fn func(ch DataChannel))
	OnStateChange(fn func(s TransportState))

	Close() error
}

// TransportFactory builds one MediaTransport per remote peer.
type TransportFactory interface {
	NewTransport(peer domain.PeerID) (MediaTransport, error)
}

// DataChannel is a reliable, ordered sub-channel between exactly two peers.
// Sends before the channel reaches the open state fail; there is no
// queuing or replay.
type DataChannel interface {
	Label() string
	IsOpen() bool
	Send(data []byte) error
	OnOpen(fn func())
	OnMessage(fn func(data []byte))
	OnClose(fn func())
	Close() error
}
