package signal

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/dkeye/Meet/internal/domain"
	"github.com/pion/webrtc/v4"
)

// Message is the parsed form of an Envelope. The set is sealed: adding a
// relay kind means adding a Visit method, which breaks every Visitor
// implementation until it handles the new message.
type Message interface {
	Accept(v Visitor)
}

// Visitor receives exactly one call per parsed message.
type Visitor interface {
	VisitUserList(m UserList)
	VisitOffer(m Offer)
	VisitAnswer(m Answer)
	VisitICE(m ICE)
	VisitBotAudio(m BotAudio)
	VisitBotMessage(m BotMessage)
	VisitContentUpdate(m ContentUpdate)
	VisitRecordingUpdate(m RecordingUpdate)
	VisitSpeakerUpdate(m SpeakerUpdate)
	VisitProgressUpdate(m ProgressUpdate)
	VisitChatMessage(m ChatMessage)
	VisitEndCall(m EndCall)
}

type UserList struct {
	Users []domain.PeerID
}

type Offer struct {
	From domain.PeerID
	SDP  string
}

type Answer struct {
	From domain.PeerID
	SDP  string
}

type ICE struct {
	From      domain.PeerID
	Candidate webrtc.ICECandidateInit
}

type BotAudio struct {
	From   domain.PeerID
	Data   []byte
	Format string
}

type BotMessage struct {
	From    domain.PeerID
	Message string
}

type ContentUpdate struct {
	From domain.PeerID
	Text string
}

type RecordingUpdate struct {
	From   domain.PeerID
	Active bool
}

type SpeakerUpdate struct {
	Speaking map[domain.PeerID]bool
}

type ProgressUpdate struct {
	From    domain.PeerID
	Payload json.RawMessage
}

type ChatMessage struct {
	Message domain.ChatMessage
}

type EndCall struct {
	From   domain.PeerID
	Reason string
}

func (m UserList) Accept(v Visitor)        { v.VisitUserList(m) }
func (m Offer) Accept(v Visitor)           { v.VisitOffer(m) }
func (m Answer) Accept(v Visitor)          { v.VisitAnswer(m) }
func (m ICE) Accept(v Visitor)             { v.VisitICE(m) }
func (m BotAudio) Accept(v Visitor)        { v.VisitBotAudio(m) }
func (m BotMessage) Accept(v Visitor)      { v.VisitBotMessage(m) }
func (m ContentUpdate) Accept(v Visitor)   { v.VisitContentUpdate(m) }
func (m RecordingUpdate) Accept(v Visitor) { v.VisitRecordingUpdate(m) }
func (m SpeakerUpdate) Accept(v Visitor)   { v.VisitSpeakerUpdate(m) }
func (m ProgressUpdate) Accept(v Visitor)  { v.VisitProgressUpdate(m) }
func (m ChatMessage) Accept(v Visitor)     { v.VisitChatMessage(m) }
func (m EndCall) Accept(v Visitor)         { v.VisitEndCall(m) }

// Parse turns a decoded envelope into its typed form. Malformed envelopes
// come back as errors; the dispatcher drops them with a log line.
func Parse(env Envelope) (Message, error) {
	switch env.Kind {
	case KindUserList:
		return UserList{Users: env.Users}, nil
	case KindSignal:
		return parseSignal(env)
	case KindBotAudio:
		data, err := base64.StdEncoding.DecodeString(env.Data)
		if err != nil {
			return nil, fmt.Errorf("bot_audio data: %w", err)
		}
		return BotAudio{From: env.From, Data: data, Format: env.Format}, nil
	case KindBotMessage:
		return BotMessage{From: env.From, Message: env.Message}, nil
	case KindContentUpdate:
		var p contentPayload
		if len(env.Payload) > 0 {
			if err := json.Unmarshal(env.Payload, &p); err != nil {
				return nil, fmt.Errorf("content_update payload: %w", err)
			}
		}
		return ContentUpdate{From: env.From, Text: p.Text}, nil
	case KindRecordingUpdate:
		active := env.IsRecording != nil && *env.IsRecording
		return RecordingUpdate{From: env.From, Active: active}, nil
	case KindSpeakerUpdate:
		return SpeakerUpdate{Speaking: env.Speakers}, nil
	case KindProgressUpdate:
		return ProgressUpdate{From: env.From, Payload: env.Payload}, nil
	case KindChatMessage, KindChatToServer:
		var msg domain.ChatMessage
		if err := json.Unmarshal(env.Payload, &msg); err != nil {
			return nil, fmt.Errorf("chat payload: %w", err)
		}
		return ChatMessage{Message: msg}, nil
	case KindEndCall:
		return EndCall{From: env.From, Reason: env.Reason}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, env.Kind)
	}
}

func parseSignal(env Envelope) (Message, error) {
	switch env.Action {
	case ActionOffer, ActionAnswer:
		var p sdpPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, fmt.Errorf("%s payload: %w", env.Action, err)
		}
		if p.SDP == "" {
			return nil, fmt.Errorf("%s payload: empty sdp", env.Action)
		}
		if env.Action == ActionOffer {
			return Offer{From: env.From, SDP: p.SDP}, nil
		}
		return Answer{From: env.From, SDP: p.SDP}, nil
	case ActionICE:
		var c webrtc.ICECandidateInit
		if err := json.Unmarshal(env.Payload, &c); err != nil {
			return nil, fmt.Errorf("ice payload: %w", err)
		}
		return ICE{From: env.From, Candidate: c}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, env.Action)
	}
}
