package app

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/dkeye/Meet/internal/metrics"
)

// ControlChannelLabel names the one data channel per peer pair that
// multiplexes all control traffic. The initiator creates it; the responder
// adopts it from the inbound-channel event and never creates its own.
const ControlChannelLabel = "control"

type controlType string

const (
	ctrlContent controlType = "content_update"
	ctrlStatus  controlType = "status_update"
	ctrlScreen  controlType = "screen_update"
	ctrlChat    controlType = "chat_message"
)

type controlEnvelope struct {
	Type    controlType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type screenPayload struct {
	Sharing bool          `json:"sharing"`
	By      domain.PeerID `json:"by"`
}

type contentPayload struct {
	Text string `json:"text"`
}

// ControlHandlers receive inbound control messages, tagged with the remote
// end of the channel they arrived on.
type ControlHandlers struct {
	OnStatus  func(peer domain.PeerID, st domain.PeerStatus)
	OnScreen  func(peer domain.PeerID, sharing bool, by domain.PeerID)
	OnContent func(peer domain.PeerID, text string)
	OnChat    func(msg domain.ChatMessage)
}

// Control speaks the control protocol over one data channel. Sends are
// fire-and-forget: a message sent before the channel opens is lost for
// this peer only, with no queuing or replay, for every message type alike.
type Control struct {
	peer    domain.PeerID
	ch      core.DataChannel
	metrics *metrics.Metrics
}

func newControl(peer domain.PeerID, ch core.DataChannel, h ControlHandlers, m *metrics.Metrics) *Control {
	c := &Control{peer: peer, ch: ch, metrics: m}
	ch.OnMessage(func(data []byte) { c.dispatch(data, h) })
	return c
}

func (c *Control) IsOpen() bool { return c.ch.IsOpen() }

func (c *Control) dispatch(data []byte, h ControlHandlers) {
	var env controlEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "app.control").Str("peer", string(c.peer)).Msg("malformed control message dropped")
		return
	}
	c.metrics.ControlIn(string(env.Type))

	switch env.Type {
	case ctrlStatus:
		var st domain.PeerStatus
		if err := json.Unmarshal(env.Payload, &st); err != nil {
			log.Warn().Err(err).Str("module", "app.control").Msg("bad status payload")
			return
		}
		if h.OnStatus != nil {
			h.OnStatus(c.peer, st)
		}
	case ctrlScreen:
		var p screenPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			log.Warn().Err(err).Str("module", "app.control").Msg("bad screen payload")
			return
		}
		if h.OnScreen != nil {
			h.OnScreen(c.peer, p.Sharing, p.By)
		}
	case ctrlContent:
		var p contentPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			log.Warn().Err(err).Str("module", "app.control").Msg("bad content payload")
			return
		}
		if h.OnContent != nil {
			h.OnContent(c.peer, p.Text)
		}
	case ctrlChat:
		var msg domain.ChatMessage
		if err := json.Unmarshal(env.Payload, &msg); err != nil {
			log.Warn().Err(err).Str("module", "app.control").Msg("bad chat payload")
			return
		}
		if h.OnChat != nil {
			h.OnChat(msg)
		}
	default:
		log.Warn().Str("module", "app.control").Str("type", string(env.Type)).Msg("unknown control type dropped")
	}
}

func (c *Control) SendStatus(st domain.PeerStatus) { c.send(ctrlStatus, st) }

func (c *Control) SendScreen(sharing bool, by domain.PeerID) {
	c.send(ctrlScreen, screenPayload{Sharing: sharing, By: by})
}

func (c *Control) SendContent(text string) { c.send(ctrlContent, contentPayload{Text: text}) }

func (c *Control) SendChat(msg domain.ChatMessage) { c.send(ctrlChat, msg) }

func (c *Control) send(typ controlType, payload any) {
	if !c.ch.IsOpen() {
		log.Debug().Str("module", "app.control").Str("peer", string(c.peer)).Str("type", string(typ)).Msg("channel not open, message lost")
		return
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("module", "app.control").Msg("marshal control payload")
		return
	}
	b, err := json.Marshal(controlEnvelope{Type: typ, Payload: raw})
	if err != nil {
		log.Error().Err(err).Str("module", "app.control").Msg("marshal control envelope")
		return
	}
	if err := c.ch.Send(b); err != nil {
		log.Warn().Err(err).Str("module", "app.control").Str("peer", string(c.peer)).Msg("control send failed")
		return
	}
	c.metrics.ControlOut(string(typ))
}

func (c *Control) Close() {
	if err := c.ch.Close(); err != nil {
		log.Debug().Err(err).Str("module", "app.control").Str("peer", string(c.peer)).Msg("close control channel")
	}
}
