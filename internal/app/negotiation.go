package app

import (
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/dkeye/Meet/internal/metrics"
	"github.com/dkeye/Meet/internal/signal"
)

type negotiationState int

const (
	negIdle negotiationState = iota
	negHaveLocalOffer
	negHaveRemoteOffer
	negStable
	negClosed
)

func (s negotiationState) String() string {
	switch s {
	case negIdle:
		return "idle"
	case negHaveLocalOffer:
		return "have_local_offer"
	case negHaveRemoteOffer:
		return "have_remote_offer"
	case negStable:
		return "stable"
	case negClosed:
		return "closed"
	}
	return "unknown"
}

// Engine is the offer/answer/candidate state machine for one peer pair.
//
// Glare is resolved without coordination: the side with the
// lexicographically larger id is polite and yields to a colliding inbound
// offer; the impolite side ignores it and waits for its own answer.
// Transport rejections are logged and leave the engine in its current
// state; nothing is retried automatically.
type Engine struct {
	local     domain.PeerID
	peer      domain.PeerID
	polite    bool
	transport core.MediaTransport
	send      func(env signal.Envelope)
	metrics   *metrics.Metrics

	mu          sync.Mutex
	state       negotiationState
	makingOffer bool
	abortOffer  bool
	remoteSet   bool
	pending     []webrtc.ICECandidateInit
}

func newEngine(local, peer domain.PeerID, t core.MediaTransport, send func(signal.Envelope), m *metrics.Metrics) *Engine {
	return &Engine{
		local:     local,
		peer:      peer,
		polite:    local > peer,
		transport: t,
		send:      send,
		metrics:   m,
		state:     negIdle,
	}
}

func (e *Engine) State() negotiationState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// CreateOffer starts a negotiation round. It only fires from Idle or
// Stable; while a round is already in flight the call is a no-op, so a
// burst of track changes produces a single offer.
func (e *Engine) CreateOffer() {
	e.mu.Lock()
	if e.state == negClosed {
		e.mu.Unlock()
		return
	}
	if e.makingOffer || (e.state != negIdle && e.state != negStable) {
		e.mu.Unlock()
		log.Debug().Str("module", "app.negotiation").Str("peer", string(e.peer)).Msg("already negotiating, offer skipped")
		return
	}
	e.makingOffer = true
	e.mu.Unlock()

	offer, err := e.transport.CreateOffer()

	e.mu.Lock()
	defer e.mu.Unlock()
	e.makingOffer = false
	if err != nil {
		// Nothing was applied, so there is nothing for a pending abort to
		// discard; a latched flag would swallow the next legitimate offer.
		e.abortOffer = false
		e.metrics.NegotiationFailure()
		log.Error().Err(err).Str("module", "app.negotiation").Str("peer", string(e.peer)).Msg("create offer")
		return
	}
	if e.state == negClosed {
		return
	}
	// The polite side may have yielded to a colliding remote offer while
	// this one was being generated; discard it instead of sending.
	if e.abortOffer {
		e.abortOffer = false
		if err := e.transport.Rollback(); err != nil {
			log.Warn().Err(err).Str("module", "app.negotiation").Str("peer", string(e.peer)).Msg("rollback of aborted offer")
		}
		return
	}
	e.state = negHaveLocalOffer
	e.send(signal.NewOffer(e.local, e.peer, offer.SDP))
}

// ReceiveOffer handles the peer's offer, including the glare case.
func (e *Engine) ReceiveOffer(sdp string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == negClosed {
		return
	}

	collision := e.makingOffer || e.state == negHaveLocalOffer
	if collision {
		if !e.polite {
			log.Info().Str("module", "app.negotiation").Str("peer", string(e.peer)).Msg("glare: impolite side ignoring inbound offer")
			return
		}
		log.Info().Str("module", "app.negotiation").Str("peer", string(e.peer)).Msg("glare: polite side yielding to inbound offer")
		if e.state == negHaveLocalOffer {
			if err := e.transport.Rollback(); err != nil {
				e.metrics.NegotiationFailure()
				log.Error().Err(err).Str("module", "app.negotiation").Str("peer", string(e.peer)).Msg("rollback")
				return
			}
			// The local offer is gone from the transport: no answer can
			// arrive for it, so a failure below must leave a state that
			// can offer again.
			if e.remoteSet {
				e.state = negStable
			} else {
				e.state = negIdle
			}
		}
		if e.makingOffer {
			// Offer generation is still in flight; tell it to discard.
			e.abortOffer = true
		}
	}

	prev := e.state
	e.state = negHaveRemoteOffer
	answer, err := e.transport.CreateAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp})
	if err != nil {
		e.metrics.NegotiationFailure()
		log.Error().Err(err).Str("module", "app.negotiation").Str("peer", string(e.peer)).Msg("apply offer")
		e.state = prev
		return
	}
	e.remoteSet = true
	e.flushCandidatesLocked()
	e.state = negStable
	e.send(signal.NewAnswer(e.local, e.peer, answer.SDP))
}

// ReceiveAnswer completes the round we initiated. A duplicate or late
// answer when already stable is ignored, not applied.
func (e *Engine) ReceiveAnswer(sdp string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != negHaveLocalOffer {
		log.Warn().Str("module", "app.negotiation").Str("peer", string(e.peer)).Str("state", e.state.String()).Msg("stale answer ignored")
		return
	}
	if err := e.transport.ApplyAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp}); err != nil {
		e.metrics.NegotiationFailure()
		log.Error().Err(err).Str("module", "app.negotiation").Str("peer", string(e.peer)).Msg("apply answer")
		return
	}
	e.remoteSet = true
	e.flushCandidatesLocked()
	e.state = negStable
}

// AddCandidate applies a remote candidate, buffering it until a remote
// description has landed. Candidates are only dropped once closed.
func (e *Engine) AddCandidate(c webrtc.ICECandidateInit) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == negClosed {
		return
	}
	if !e.remoteSet {
		e.pending = append(e.pending, c)
		return
	}
	if err := e.transport.AddICECandidate(c); err != nil {
		e.metrics.NegotiationFailure()
		log.Error().Err(err).Str("module", "app.negotiation").Str("peer", string(e.peer)).Msg("add candidate")
	}
}

func (e *Engine) flushCandidatesLocked() {
	for _, c := range e.pending {
		if err := e.transport.AddICECandidate(c); err != nil {
			e.metrics.NegotiationFailure()
			log.Error().Err(err).Str("module", "app.negotiation").Str("peer", string(e.peer)).Msg("flush candidate")
		}
	}
	e.pending = nil
}

func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = negClosed
	e.pending = nil
}
