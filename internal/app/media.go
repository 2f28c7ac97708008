package app

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
)

var ErrNoCapture = errors.New("no local capture")

// MediaManager owns the local capture exclusively. Sessions only hold
// sender references; all stop/replace authority lives here. The capture
// is created on first connect and destroyed only on disconnect, never
// implicitly recreated mid-session.
type MediaManager struct {
	self     domain.PeerID
	provider core.CaptureProvider

	mu     sync.Mutex
	user   core.CaptureSource
	audio  core.LocalTrack
	video  core.LocalTrack
	screen core.CaptureSource
}

func NewMediaManager(self domain.PeerID, provider core.CaptureProvider) *MediaManager {
	return &MediaManager{self: self, provider: provider}
}

// EnsureLocalCapture is idempotent: with a capture already held it only
// toggles the enabled flags (no re-acquisition, no flicker). With nothing
// held and both flags false it acquires nothing, a listen-only join.
func (m *MediaManager) EnsureLocalCapture(audioWanted, videoWanted bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.audio != nil || m.video != nil {
		if m.audio != nil {
			m.audio.SetEnabled(audioWanted)
		}
		if m.video != nil {
			m.video.SetEnabled(videoWanted)
		}
		return nil
	}
	if !audioWanted && !videoWanted {
		return nil
	}

	src, err := m.provider.OpenUserMedia(audioWanted, videoWanted)
	if err != nil {
		return fmt.Errorf("open user media: %w", err)
	}
	m.user = src
	m.audio = src.AudioTrack()
	m.video = src.VideoTrack()
	return nil
}

// Ready reports whether local media exists, the queryable precondition
// the registry consults before attaching tracks to a new session.
func (m *MediaManager) Ready() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.audio != nil || m.video != nil
}

// UserTracks returns the current camera/mic tracks.
func (m *MediaManager) UserTracks() []core.LocalTrack {
	m.mu.Lock()
	defer m.mu.Unlock()
	return collect(m.audio, m.video)
}

func (m *MediaManager) SetAudioEnabled(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.audio != nil {
		m.audio.SetEnabled(on)
	}
}

func (m *MediaManager) SetVideoEnabled(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.video != nil {
		m.video.SetEnabled(on)
	}
}

// SwapAudioDevice acquires the named device and installs its track as the
// current one. The caller replaces the track on every session before
// stopping old; replacement keeps the media-line count, so no
// renegotiation happens.
func (m *MediaManager) SwapAudioDevice(deviceID string) (fresh, old core.LocalTrack, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.audio == nil {
		return nil, nil, ErrNoCapture
	}
	fresh, err = m.provider.OpenAudioDevice(deviceID)
	if err != nil {
		return nil, nil, fmt.Errorf("open audio device: %w", err)
	}
	fresh.SetEnabled(m.audio.Enabled())
	old = m.audio
	m.audio = fresh
	return fresh, old, nil
}

func (m *MediaManager) SwapVideoDevice(deviceID string) (fresh, old core.LocalTrack, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.video == nil {
		return nil, nil, ErrNoCapture
	}
	fresh, err = m.provider.OpenVideoDevice(deviceID)
	if err != nil {
		return nil, nil, fmt.Errorf("open video device: %w", err)
	}
	fresh.SetEnabled(m.video.Enabled())
	old = m.video
	m.video = fresh
	return fresh, old, nil
}

// StartScreen acquires the secondary screen source. started is false when
// already sharing (idempotent no-op).
func (m *MediaManager) StartScreen(mode core.ScreenAudioMode) (src core.CaptureSource, started bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.screen != nil {
		return m.screen, false, nil
	}
	src, err = m.provider.OpenDisplayMedia(m.self, mode)
	if err != nil {
		return nil, false, fmt.Errorf("open display media: %w", err)
	}
	m.screen = src
	return src, true, nil
}

// StopScreen stops and releases the screen source; false when not sharing.
func (m *MediaManager) StopScreen() bool {
	m.mu.Lock()
	src := m.screen
	m.screen = nil
	m.mu.Unlock()
	if src == nil {
		return false
	}
	src.Stop()
	return true
}

func (m *MediaManager) Sharing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.screen != nil
}

// ScreenTracks returns the live screen tracks, empty when not sharing.
func (m *MediaManager) ScreenTracks() []core.LocalTrack {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.screen == nil {
		return nil
	}
	return collect(m.screen.AudioTrack(), m.screen.VideoTrack())
}

// StopAll releases everything (disconnect path). It never fails.
func (m *MediaManager) StopAll() {
	m.mu.Lock()
	user, screen := m.user, m.screen
	audio, video := m.audio, m.video
	m.user, m.screen, m.audio, m.video = nil, nil, nil, nil
	m.mu.Unlock()

	if screen != nil {
		screen.Stop()
	}
	if user != nil {
		user.Stop()
	}
	// Swapped-in device tracks live outside the user source.
	if audio != nil {
		audio.Stop()
	}
	if video != nil {
		video.Stop()
	}
	log.Info().Str("module", "app.media").Msg("local capture stopped")
}

func collect(tracks ...core.LocalTrack) []core.LocalTrack {
	out := make([]core.LocalTrack, 0, len(tracks))
	for _, t := range tracks {
		if t != nil {
			out = append(out, t)
		}
	}
	return out
}
