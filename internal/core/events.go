package core

import (
	"encoding/json"

	"github.com/dkeye/Meet/internal/domain"
)

// Event is the coordinator's outbound callback surface. UI collaborators
// subscribe to the stream; the coordinator never renders anything itself.
type Event interface {
	isEvent()
}

// RosterChanged reports the room's participant set after a real change.
type RosterChanged struct {
	Peers []domain.PeerID
}

// RemoteTrackAdded reports a new inbound track, tagged camera/mic vs screen.
type RemoteTrackAdded struct {
	Peer   domain.PeerID
	Track  RemoteTrack
	Screen bool
}

// RemoteTrackRemoved reports an inbound track gone with its session.
type RemoteTrackRemoved struct {
	Peer    domain.PeerID
	TrackID string
	Screen  bool
}

// PeerStatusChanged reports a peer's self-declared mute/camera state.
type PeerStatusChanged struct {
	Peer   domain.PeerID
	Status domain.PeerStatus
}

// ScreenSharerChanged reports the current sharer; empty means nobody.
type ScreenSharerChanged struct {
	Sharer domain.PeerID
}

// ContentChanged reports the shared text content.
type ContentChanged struct {
	By   domain.PeerID
	Text string
}

// ChatReceived reports a chat message from any delivery path.
type ChatReceived struct {
	Message domain.ChatMessage
}

// BotAudioReceived carries a bot's synthesized audio payload.
type BotAudioReceived struct {
	From   domain.PeerID
	Data   []byte
	Format string
}

// BotMessageReceived carries a bot's text output.
type BotMessageReceived struct {
	From    domain.PeerID
	Message string
}

// RecordingChanged reports the relay-announced recording state.
type RecordingChanged struct {
	Active bool
}

// SpeakersChanged reports the per-peer speaking-indicator map.
type SpeakersChanged struct {
	Speaking map[domain.PeerID]bool
}

// ProgressUpdated carries an opaque meeting-progress payload from the relay.
type ProgressUpdated struct {
	From    domain.PeerID
	Payload json.RawMessage
}

// MeetingEnded reports a remote end_call; the coordinator has already
// started disconnecting when this fires.
type MeetingEnded struct {
	Reason string
}

// LinkDown reports that the relay link left the open state. No automatic
// reconnect happens; the caller decides whether to connect again.
type LinkDown struct{}

func (RosterChanged) isEvent()       {}
func (RemoteTrackAdded) isEvent()    {}
func (RemoteTrackRemoved) isEvent()  {}
func (PeerStatusChanged) isEvent()   {}
func (ScreenSharerChanged) isEvent() {}
func (ContentChanged) isEvent()      {}
func (ChatReceived) isEvent()        {}
func (BotAudioReceived) isEvent()    {}
func (BotMessageReceived) isEvent()  {}
func (RecordingChanged) isEvent()    {}
func (SpeakersChanged) isEvent()     {}
func (ProgressUpdated) isEvent()     {}
func (MeetingEnded) isEvent()        {}
func (LinkDown) isEvent()            {}
