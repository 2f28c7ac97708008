// Package capture provides a synthetic core.CaptureProvider for headless
// participants: tracks carry silent opus / keepalive VP8 instead of a real
// camera, but behave like live devices (enable flags, stop, replacement).
package capture

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
)

type Provider struct{}

func NewProvider() *Provider { return &Provider{} }

func (p *Provider) OpenUserMedia(audio, video bool) (core.CaptureSource, error) {
	streamID := uuid.NewString()
	src := &source{}
	if audio {
		t, err := newSyntheticTrack(core.TrackAudio, uuid.NewString(), streamID)
		if err != nil {
			return nil, err
		}
		src.audio = t
	}
	if video {
		t, err := newSyntheticTrack(core.TrackVideo, uuid.NewString(), streamID)
		if err != nil {
			src.Stop()
			return nil, err
		}
		src.video = t
	}
	log.Info().Str("module", "capture").Bool("audio", audio).Bool("video", video).Msg("user media open")
	return src, nil
}

func (p *Provider) OpenAudioDevice(deviceID string) (core.LocalTrack, error) {
	log.Info().Str("module", "capture").Str("device", deviceID).Msg("audio device open")
	return newSyntheticTrack(core.TrackAudio, uuid.NewString(), uuid.NewString())
}

func (p *Provider) OpenVideoDevice(deviceID string) (core.LocalTrack, error) {
	log.Info().Str("module", "capture").Str("device", deviceID).Msg("video device open")
	return newSyntheticTrack(core.TrackVideo, uuid.NewString(), uuid.NewString())
}

func (p *Provider) OpenDisplayMedia(self domain.PeerID, mode core.ScreenAudioMode) (core.CaptureSource, error) {
	streamID := core.ScreenStreamID(self)
	src := &source{}
	video, err := newSyntheticTrack(core.TrackVideo, uuid.NewString(), streamID)
	if err != nil {
		return nil, err
	}
	src.video = video
	if mode == core.ScreenAudioMic || mode == core.ScreenAudioSystem {
		audio, err := newSyntheticTrack(core.TrackAudio, uuid.NewString(), streamID)
		if err != nil {
			src.Stop()
			return nil, err
		}
		src.audio = audio
	}
	log.Info().Str("module", "capture").Str("mode", string(mode)).Msg("display media open")
	return src, nil
}

type source struct {
	audio core.LocalTrack
	video core.LocalTrack

	mu      sync.Mutex
	onEnded func()
}

func (s *source) AudioTrack() core.LocalTrack { return s.audio }
func (s *source) VideoTrack() core.LocalTrack { return s.video }

func (s *source) OnEnded(fn func()) {
	s.mu.Lock()
	s.onEnded = fn
	s.mu.Unlock()
}

// Stop releases the tracks. A synthetic source never ends on its own, so
// OnEnded only matters for providers backed by real display capture.
func (s *source) Stop() {
	if s.audio != nil {
		s.audio.Stop()
	}
	if s.video != nil {
		s.video.Stop()
	}
}
