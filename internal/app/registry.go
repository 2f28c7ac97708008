package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/domain"
	"github.com/dkeye/Meet/internal/metrics"
)

// Registry owns the peer-id → session map. Creation runs under a per-peer
// guard so a roster update racing an unsolicited inbound offer for the
// same new peer can never produce two sessions.
type Registry struct {
	metrics *metrics.Metrics

	mu       sync.Mutex
	sessions map[domain.PeerID]*Session
	creating map[domain.PeerID]chan struct{}
}

func NewRegistry(m *metrics.Metrics) *Registry {
	return &Registry{
		metrics:  m,
		sessions: make(map[domain.PeerID]*Session),
		creating: make(map[domain.PeerID]chan struct{}),
	}
}

// Ensure returns the session for peer, building it with build if absent.
// Concurrent callers for the same peer wait for the in-flight build and
// share its result; created reports whether this call built it.
func (r *Registry) Ensure(peer domain.PeerID, build func() (*Session, error)) (s *Session, created bool, err error) {
	for {
		r.mu.Lock()
		if s, ok := r.sessions[peer]; ok {
			r.mu.Unlock()
			return s, false, nil
		}
		inflight, busy := r.creating[peer]
		if !busy {
			done := make(chan struct{})
			r.creating[peer] = done
			r.mu.Unlock()

			s, err := build()

			r.mu.Lock()
			delete(r.creating, peer)
			close(done)
			if err != nil {
				r.mu.Unlock()
				return nil, false, err
			}
			r.sessions[peer] = s
			r.mu.Unlock()

			r.metrics.SessionOpened()
			log.Info().Str("module", "app.registry").Str("peer", string(peer)).Str("role", s.Role().String()).Msg("session created")
			return s, true, nil
		}
		r.mu.Unlock()
		<-inflight
	}
}

func (r *Registry) Get(peer domain.PeerID) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[peer]
	return s, ok
}

// Remove detaches the session without closing it; the caller owns teardown.
func (r *Registry) Remove(peer domain.PeerID) *Session {
	r.mu.Lock()
	s, ok := r.sessions[peer]
	delete(r.sessions, peer)
	r.mu.Unlock()
	if !ok {
		return nil
	}
	r.metrics.SessionClosed()
	log.Info().Str("module", "app.registry").Str("peer", string(peer)).Msg("session removed")
	return s
}

func (r *Registry) Snapshot() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

func (r *Registry) Peers() []domain.PeerID {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.PeerID, 0, len(r.sessions))
	for peer := range r.sessions {
		out = append(out, peer)
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// PopAll empties the registry and returns the detached sessions.
func (r *Registry) PopAll() []*Session {
	r.mu.Lock()
	out := make([]*Session, 0, len(r.sessions))
	for peer, s := range r.sessions {
		out = append(out, s)
		delete(r.sessions, peer)
	}
	r.mu.Unlock()
	for range out {
		r.metrics.SessionClosed()
	}
	return out
}
