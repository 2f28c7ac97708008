package core

import (
	"github.com/dkeye/Meet/internal/domain"
	"github.com/pion/webrtc/v4"
)

type TrackKind int

const (
	TrackAudio TrackKind = iota
	TrackVideo
)

func (k TrackKind) String() string {
	if k == TrackAudio {
		return "audio"
	}
	return "video"
}

// TrackPurpose tags an outbound track as part of the primary capture
// (camera/mic) or the secondary screen capture.
type TrackPurpose int

const (
	PurposeUser TrackPurpose = iota
	PurposeScreen
)

func (p TrackPurpose) String() string {
	if p == PurposeUser {
		return "user"
	}
	return "screen"
}

const screenStreamPrefix = "screen:"

// ScreenStreamID is the stream id a peer uses for its screen tracks, so
// the receiving side can classify them without extra signaling.
func ScreenStreamID(peer domain.PeerID) string {
	return screenStreamPrefix + string(peer)
}

// IsScreenStream classifies an inbound stream id.
func IsScreenStream(streamID string) bool {
	return len(streamID) >= len(screenStreamPrefix) && streamID[:len(screenStreamPrefix)] == screenStreamPrefix
}

// ScreenAudioMode selects what audio, if any, accompanies a screen capture.
type ScreenAudioMode string

const (
	ScreenAudioNone   ScreenAudioMode = "none"
	ScreenAudioMic    ScreenAudioMode = "mic"
	ScreenAudioSystem ScreenAudioMode = "system"
)

// LocalTrack is one locally captured track. Enable/disable toggles the
// producer without stopping it; Stop releases the underlying device.
type LocalTrack interface {
	Kind() TrackKind
	Track() webrtc.TrackLocal
	SetEnabled(on bool)
	Enabled() bool
	Stop()
}

// CaptureSource is one acquired capture (camera+mic, or a screen). Tracks
// may be missing a kind when it was not requested.
type CaptureSource interface {
	AudioTrack() LocalTrack
	VideoTrack() LocalTrack
	// OnEnded fires when the source stops on its own (e.g. the user
	// revokes a screen capture via the system UI).
	OnEnded(fn func())
	Stop()
}

// CaptureProvider acquires capture sources. Implementations decide what a
// "device" is; the headless provider synthesizes media.
type CaptureProvider interface {
	OpenUserMedia(audio, video bool) (CaptureSource, error)
	OpenAudioDevice(deviceID string) (LocalTrack, error)
	OpenVideoDevice(deviceID string) (LocalTrack, error)
	OpenDisplayMedia(self domain.PeerID, mode ScreenAudioMode) (CaptureSource, error)
}
