// Package signal defines the relay wire protocol: the envelope that frames
// every message and the typed forms the coordinator dispatches on.
package signal

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dkeye/Meet/internal/domain"
)

// Kind discriminates relay envelopes.
type Kind string

const (
	KindUserList        Kind = "user_list"
	KindSignal          Kind = "signal"
	KindBotAudio        Kind = "bot_audio"
	KindBotMessage      Kind = "bot_message"
	KindContentUpdate   Kind = "content_update"
	KindRecordingUpdate Kind = "recording_update"
	KindSpeakerUpdate   Kind = "speaker_update"
	KindProgressUpdate  Kind = "progress_update"
	KindChatMessage     Kind = "chat_message"
	KindChatToServer    Kind = "chat_message_to_server"
	KindEndCall         Kind = "end_call"
)

// Action discriminates kind=signal envelopes.
type Action string

const (
	ActionOffer  Action = "offer"
	ActionAnswer Action = "answer"
	ActionICE    Action = "ice"
)

var (
	ErrUnknownKind   = errors.New("unknown envelope kind")
	ErrUnknownAction = errors.New("unknown signal action")
)

// Envelope is the wire unit exchanged with the relay. Only the fields
// relevant to Kind are populated; Payload stays raw until Parse.
type Envelope struct {
	Kind        Kind                   `json:"type"`
	Action      Action                 `json:"action,omitempty"`
	From        domain.PeerID          `json:"from,omitempty"`
	To          domain.PeerID          `json:"to,omitempty"`
	Payload     json.RawMessage        `json:"payload,omitempty"`
	Users       []domain.PeerID        `json:"users,omitempty"`
	Data        string                 `json:"data,omitempty"`
	Format      string                 `json:"format,omitempty"`
	Message     string                 `json:"message,omitempty"`
	Reason      string                 `json:"reason,omitempty"`
	IsRecording *bool                  `json:"is_recording,omitempty"`
	Speakers    map[domain.PeerID]bool `json:"speakers,omitempty"`
}

func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Kind == "" {
		return Envelope{}, fmt.Errorf("decode envelope: missing type")
	}
	return env, nil
}

func Encode(env Envelope) ([]byte, error) {
	return json.Marshal(env)
}

type sdpPayload struct {
	Type string `json:"type,omitempty"`
	SDP  string `json:"sdp"`
}

type contentPayload struct {
	Text string        `json:"text"`
	By   domain.PeerID `json:"by,omitempty"`
}

// Envelope constructors used on the send path.

func NewOffer(from, to domain.PeerID, sdp string) Envelope {
	return newSDPEnvelope(ActionOffer, from, to, sdp)
}

func NewAnswer(from, to domain.PeerID, sdp string) Envelope {
	return newSDPEnvelope(ActionAnswer, from, to, sdp)
}

func newSDPEnvelope(action Action, from, to domain.PeerID, sdp string) Envelope {
	raw, _ := json.Marshal(sdpPayload{Type: string(action), SDP: sdp})
	return Envelope{Kind: KindSignal, Action: action, From: from, To: to, Payload: raw}
}

func NewICE(from, to domain.PeerID, candidate json.RawMessage) Envelope {
	return Envelope{Kind: KindSignal, Action: ActionICE, From: from, To: to, Payload: candidate}
}

func NewChatToServer(msg domain.ChatMessage) Envelope {
	raw, _ := json.Marshal(msg)
	return Envelope{Kind: KindChatToServer, From: msg.From, Payload: raw}
}

func NewContentUpdate(from domain.PeerID, text string) Envelope {
	raw, _ := json.Marshal(contentPayload{Text: text, By: from})
	return Envelope{Kind: KindContentUpdate, From: from, Payload: raw}
}

func NewEndCall(from domain.PeerID, reason string) Envelope {
	return Envelope{Kind: KindEndCall, From: from, Reason: reason}
}
