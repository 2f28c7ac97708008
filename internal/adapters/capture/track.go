package capture

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/core"
)

const (
	audioFrameInterval = 20 * time.Millisecond
	videoFrameInterval = 100 * time.Millisecond

	opusSamplesPerFrame = 960 // 48kHz * 20ms
	vp8TicksPerFrame    = 9000
)

// Opus DTX silence frame.
var opusSilence = []byte{0xF8, 0xFF, 0xFE}

// syntheticTrack writes a steady RTP stream so a headless participant
// occupies a real media line. Disabling keeps the clock running but stops
// the writes, which is how mute behaves on a live device.
type syntheticTrack struct {
	kind    core.TrackKind
	track   *webrtc.TrackLocalStaticRTP
	enabled atomic.Bool

	once sync.Once
	done chan struct{}
}

func newSyntheticTrack(kind core.TrackKind, id, streamID string) (*syntheticTrack, error) {
	var codec webrtc.RTPCodecCapability
	if kind == core.TrackAudio {
		codec = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}
	} else {
		codec = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}
	}

	track, err := webrtc.NewTrackLocalStaticRTP(codec, id, streamID)
	if err != nil {
		return nil, err
	}

	t := &syntheticTrack{kind: kind, track: track, done: make(chan struct{})}
	t.enabled.Store(true)
	go t.loop()
	return t, nil
}

func (t *syntheticTrack) loop() {
	interval := audioFrameInterval
	var step uint32 = opusSamplesPerFrame
	payload := opusSilence
	var payloadType uint8 = 111
	if t.kind == core.TrackVideo {
		interval = videoFrameInterval
		step = vp8TicksPerFrame
		payload = []byte{0x10, 0x00} // minimal VP8 payload descriptor
		payloadType = 96
	}

	seq := uint16(rand.Uint32())
	ts := rand.Uint32()
	ssrc := rand.Uint32()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			seq++
			ts += step
			if !t.enabled.Load() {
				continue
			}
			pkt := &rtp.Packet{
				Header: rtp.Header{
					Version:        2,
					PayloadType:    payloadType,
					SequenceNumber: seq,
					Timestamp:      ts,
					SSRC:           ssrc,
				},
				Payload: payload,
			}
			if err := t.track.WriteRTP(pkt); err != nil {
				log.Debug().Err(err).Str("module", "capture").Str("kind", t.kind.String()).Msg("write RTP")
			}
		}
	}
}

func (t *syntheticTrack) Kind() core.TrackKind     { return t.kind }
func (t *syntheticTrack) Track() webrtc.TrackLocal { return t.track }
func (t *syntheticTrack) SetEnabled(on bool)       { t.enabled.Store(on) }
func (t *syntheticTrack) Enabled() bool            { return t.enabled.Load() }

func (t *syntheticTrack) Stop() {
	t.once.Do(func() { close(t.done) })
}
