package app

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Meet/internal/domain"
)

func TestControlDispatch(t *testing.T) {
	ch := newFakeChannel(ControlChannelLabel)

	var gotStatus domain.PeerStatus
	var gotSharer domain.PeerID
	var gotContent string
	var gotChat domain.ChatMessage
	h := ControlHandlers{
		OnStatus:  func(_ domain.PeerID, st domain.PeerStatus) { gotStatus = st },
		OnScreen:  func(_ domain.PeerID, sharing bool, by domain.PeerID) { gotSharer = by },
		OnContent: func(_ domain.PeerID, text string) { gotContent = text },
		OnChat:    func(msg domain.ChatMessage) { gotChat = msg },
	}
	newControl("bob", ch, h, nil)

	ch.receive([]byte(`{"type":"status_update","payload":{"isMuted":true,"isCameraOff":false}}`))
	assert.True(t, gotStatus.IsMuted)
	assert.False(t, gotStatus.IsCameraOff)

	ch.receive([]byte(`{"type":"screen_update","payload":{"sharing":true,"by":"bob"}}`))
	assert.Equal(t, domain.PeerID("bob"), gotSharer)

	ch.receive([]byte(`{"type":"content_update","payload":{"text":"agenda"}}`))
	assert.Equal(t, "agenda", gotContent)

	ch.receive([]byte(`{"type":"chat_message","payload":{"id":"m1","from":"bob","text":"hi"}}`))
	assert.Equal(t, "hi", gotChat.Text)
}

func TestControlDropsMalformed(t *testing.T) {
	ch := newFakeChannel(ControlChannelLabel)
	called := false
	h := ControlHandlers{OnContent: func(domain.PeerID, string) { called = true }}
	newControl("bob", ch, h, nil)

	ch.receive([]byte(`not json`))
	ch.receive([]byte(`{"type":"content_update","payload":"not an object"}`))
	ch.receive([]byte(`{"type":"unknown_thing","payload":{}}`))
	assert.False(t, called)
}

func TestControlSendIsFireAndForget(t *testing.T) {
	ch := newFakeChannel(ControlChannelLabel)
	c := newControl("bob", ch, ControlHandlers{}, nil)

	// Not open yet: the message is lost for this peer, with no queue.
	c.SendContent("early")
	assert.Empty(t, ch.sentMessages())

	ch.markOpen()
	c.SendContent("late")
	msgs := ch.sentMessages()
	require.Len(t, msgs, 1, "the early message must not be replayed")

	var env controlEnvelope
	require.NoError(t, json.Unmarshal(msgs[0], &env))
	assert.Equal(t, ctrlContent, env.Type)

	var p contentPayload
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	assert.Equal(t, "late", p.Text)
}

func TestControlSendStatusWireFormat(t *testing.T) {
	ch := newFakeChannel(ControlChannelLabel)
	ch.markOpen()
	c := newControl("bob", ch, ControlHandlers{}, nil)

	c.SendStatus(domain.PeerStatus{IsMuted: true})
	msgs := ch.sentMessages()
	require.Len(t, msgs, 1)
	assert.JSONEq(t, `{"type":"status_update","payload":{"isMuted":true,"isCameraOff":false}}`, string(msgs[0]))
}
