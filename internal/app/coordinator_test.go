package app

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/dkeye/Meet/internal/signal"
)

type coordHarness struct {
	coord   *Coordinator
	link    *fakeLink
	factory *fakeFactory
	capture *fakeProvider

	events []core.Event
}

func newCoordHarness(t *testing.T, self domain.PeerID) *coordHarness {
	t.Helper()
	h := &coordHarness{
		link:    newFakeLink(),
		factory: newFakeFactory(),
		capture: &fakeProvider{},
	}
	h.coord = NewCoordinator(
		Options{Self: self, Room: "standup", Roles: domain.DefaultRoleTable(), RelayChat: true},
		Deps{Link: h.link, Transports: h.factory, Capture: h.capture},
	)
	h.coord.Events().Subscribe(func(ev core.Event) { h.events = append(h.events, ev) })
	return h
}

func (h *coordHarness) connect(t *testing.T) {
	t.Helper()
	require.NoError(t, h.coord.Connect(context.Background(), true, true))
}

func (h *coordHarness) roster(users ...domain.PeerID) {
	h.link.deliver(signal.Envelope{Kind: signal.KindUserList, Users: users})
}

func eventsOfType[E core.Event](h *coordHarness) []E {
	var out []E
	for _, ev := range h.events {
		if e, ok := ev.(E); ok {
			out = append(out, e)
		}
	}
	return out
}

func TestCoordinatorInitiatesTowardNewPeer(t *testing.T) {
	h := newCoordHarness(t, "alice")
	h.connect(t)

	h.roster("alice", "bob")

	// alice < bob, so alice offers.
	tr := h.factory.get("bob")
	require.NotNil(t, tr)
	assert.Equal(t, 1, tr.offerCount())
	assert.Len(t, h.link.sentOfAction(signal.ActionOffer), 1)

	// The initiator created the control channel and attached its tracks
	// before the offer, so one negotiation round covers everything.
	require.Len(t, tr.channels, 1)
	assert.Equal(t, ControlChannelLabel, tr.channels[0].Label())
	assert.Len(t, tr.senders, 2)

	// Answer completes the round; no further offer goes out.
	h.link.deliver(signal.Envelope{
		Kind: signal.KindSignal, Action: signal.ActionAnswer, From: "bob",
		Payload: json.RawMessage(`{"sdp":"v=0 answer"}`),
	})
	assert.Equal(t, 1, tr.applied)
	assert.Len(t, h.link.sentOfAction(signal.ActionOffer), 1)

	assert.Len(t, eventsOfType[core.RosterChanged](h), 1)
}

func TestCoordinatorMeshGrowsOneSessionPerPeer(t *testing.T) {
	h := newCoordHarness(t, "A")
	h.connect(t)

	h.roster("A")
	assert.Zero(t, h.factory.count(), "alone in the room, no sessions")

	h.roster("A", "B")
	assert.Equal(t, 1, h.factory.count())
	require.NotNil(t, h.factory.get("B"))
	assert.Equal(t, 1, h.factory.get("B").offerCount(), "A initiates toward B")

	h.roster("A", "B", "C")
	assert.Equal(t, 2, h.factory.count())
	require.NotNil(t, h.factory.get("C"))
	assert.Equal(t, 1, h.factory.get("C").offerCount(), "A initiates toward C")
	assert.Equal(t, 1, h.factory.get("B").offerCount(), "the existing pair is untouched")
	assert.Len(t, h.link.sentOfAction(signal.ActionOffer), 2)
	assert.ElementsMatch(t, []domain.PeerID{"B", "C"}, h.coord.Peers())

	// A reordered re-broadcast of the same set duplicates nothing.
	h.roster("C", "B", "A")
	assert.Equal(t, 2, h.factory.count())
	assert.Len(t, h.link.sentOfAction(signal.ActionOffer), 2)
}

func TestCoordinatorConnectRetriesCapture(t *testing.T) {
	h := newCoordHarness(t, "alice")

	h.capture.userErr = errors.New("device busy")
	err := h.coord.Connect(context.Background(), true, true)
	require.Error(t, err)
	assert.Equal(t, core.LinkOpen, h.link.State(), "capture failure leaves the link open")
	assert.False(t, h.coord.media.Ready())

	// The caller retries audio-only without tearing the join down.
	h.capture.mu.Lock()
	h.capture.userErr = nil
	h.capture.mu.Unlock()
	require.NoError(t, h.coord.Connect(context.Background(), true, false))
	assert.Equal(t, 1, h.capture.userOpens)
	assert.True(t, h.coord.media.Ready())
	assert.Len(t, h.coord.media.UserTracks(), 1)
}

func TestCoordinatorWaitsForLargerPeer(t *testing.T) {
	h := newCoordHarness(t, "bob")
	h.connect(t)

	h.roster("bob", "alice")
	assert.Zero(t, h.factory.count(), "alice offers to us, no session yet")

	// Her offer arrives and we answer as responder.
	h.link.deliver(signal.Envelope{
		Kind: signal.KindSignal, Action: signal.ActionOffer, From: "alice",
		Payload: json.RawMessage(`{"sdp":"v=0 offer"}`),
	})
	tr := h.factory.get("alice")
	require.NotNil(t, tr)
	assert.Equal(t, 1, tr.answers)
	assert.Empty(t, tr.channels, "the responder adopts the inbound channel instead of creating one")
	assert.Len(t, h.link.sentOfAction(signal.ActionAnswer), 1)
}

func TestCoordinatorIgnoresRedundantRoster(t *testing.T) {
	h := newCoordHarness(t, "alice")
	h.connect(t)

	h.roster("alice", "bob")
	h.roster("bob", "alice")
	h.roster("alice", "bob")

	assert.Equal(t, 1, h.factory.count())
	assert.Len(t, h.link.sentOfAction(signal.ActionOffer), 1)
	assert.Len(t, eventsOfType[core.RosterChanged](h), 1)
}

func TestCoordinatorTearsDownDepartedPeer(t *testing.T) {
	h := newCoordHarness(t, "alice")
	h.connect(t)
	h.roster("alice", "bob")

	tr := h.factory.get("bob")
	require.NotNil(t, tr)
	tr.onTrack(core.RemoteTrack{ID: "t1", StreamID: "s1", Kind: core.TrackVideo})
	require.Len(t, eventsOfType[core.RemoteTrackAdded](h), 1)

	h.roster("alice")
	assert.True(t, tr.closed)
	assert.Empty(t, h.coord.Peers())

	removed := eventsOfType[core.RemoteTrackRemoved](h)
	require.Len(t, removed, 1)
	assert.Equal(t, "t1", removed[0].TrackID)
}

func TestCoordinatorDropsSignalsFromUnknownPeers(t *testing.T) {
	h := newCoordHarness(t, "alice")
	h.connect(t)

	h.link.deliver(signal.Envelope{
		Kind: signal.KindSignal, Action: signal.ActionAnswer, From: "stranger",
		Payload: json.RawMessage(`{"sdp":"v=0"}`),
	})
	h.link.deliver(signal.Envelope{
		Kind: signal.KindSignal, Action: signal.ActionICE, From: "stranger",
		Payload: json.RawMessage(`{"candidate":"candidate:1"}`),
	})
	assert.Zero(t, h.factory.count())
}

func TestCoordinatorStatusBroadcast(t *testing.T) {
	h := newCoordHarness(t, "alice")
	h.connect(t)
	h.roster("alice", "bob")

	tr := h.factory.get("bob")
	require.NotNil(t, tr)
	ch := tr.channels[0]
	ch.markOpen()
	sentAtOpen := len(ch.sentMessages())
	assert.GreaterOrEqual(t, sentAtOpen, 1, "self status goes out when the channel opens")

	h.coord.SetMuted(true)
	assert.False(t, h.capture.lastUser.audio.Enabled())
	msgs := ch.sentMessages()
	require.Greater(t, len(msgs), sentAtOpen)
	assert.Contains(t, string(msgs[len(msgs)-1]), `"isMuted":true`)
	assert.True(t, h.coord.SelfStatus().IsMuted)
}

func TestCoordinatorPeerStatusUpdates(t *testing.T) {
	h := newCoordHarness(t, "alice")
	h.connect(t)
	h.roster("alice", "bob")

	ch := h.factory.get("bob").channels[0]
	ch.markOpen()
	ch.receive([]byte(`{"type":"status_update","payload":{"isMuted":true,"isCameraOff":true}}`))

	st := h.coord.PeerStatuses()["bob"]
	assert.True(t, st.IsMuted)
	assert.True(t, st.IsCameraOff)
	assert.Len(t, eventsOfType[core.PeerStatusChanged](h), 1)
}

func TestCoordinatorScreenShareLifecycle(t *testing.T) {
	h := newCoordHarness(t, "alice")
	h.connect(t)
	h.roster("alice", "bob")

	tr := h.factory.get("bob")
	tr.channels[0].markOpen()
	// Complete the join round so the next track change can renegotiate.
	h.link.deliver(signal.Envelope{
		Kind: signal.KindSignal, Action: signal.ActionAnswer, From: "bob",
		Payload: json.RawMessage(`{"sdp":"v=0 answer"}`),
	})
	offersBefore := tr.offerCount()

	require.NoError(t, h.coord.StartScreenShare(core.ScreenAudioNone))
	assert.Equal(t, domain.PeerID("alice"), h.coord.CurrentSharer())
	assert.Len(t, tr.senders, 3, "camera, mic and the screen video")

	sharerEvents := eventsOfType[core.ScreenSharerChanged](h)
	require.Len(t, sharerEvents, 1)
	assert.Equal(t, domain.PeerID("alice"), sharerEvents[0].Sharer)

	// Starting again changes nothing.
	require.NoError(t, h.coord.StartScreenShare(core.ScreenAudioNone))
	assert.Equal(t, 1, h.capture.screenOpens)

	h.coord.StopScreenShare()
	assert.Equal(t, domain.PeerID(""), h.coord.CurrentSharer())
	assert.Equal(t, 1, tr.removed)
	assert.Greater(t, tr.offerCount(), offersBefore, "track changes renegotiate")
}

func TestCoordinatorRemoteScreenShare(t *testing.T) {
	h := newCoordHarness(t, "alice")
	h.connect(t)
	h.roster("alice", "bob")

	ch := h.factory.get("bob").channels[0]
	ch.markOpen()
	ch.receive([]byte(`{"type":"screen_update","payload":{"sharing":true,"by":"bob"}}`))
	assert.Equal(t, domain.PeerID("bob"), h.coord.CurrentSharer())

	// A peer leaving mid-share releases the sharer slot.
	h.roster("alice")
	assert.Equal(t, domain.PeerID(""), h.coord.CurrentSharer())
}

func TestCoordinatorChat(t *testing.T) {
	h := newCoordHarness(t, "alice")
	h.connect(t)
	h.roster("alice", "bob")

	ch := h.factory.get("bob").channels[0]
	ch.markOpen()
	before := len(ch.sentMessages())

	msg := h.coord.SendChat("hello", "")
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, domain.PeerID("alice"), msg.From)
	assert.Greater(t, len(ch.sentMessages()), before)
	assert.Len(t, h.link.sentOfKind(signal.KindChatToServer), 1, "relay copy for persistence")

	// Inbound relay chat surfaces as an event.
	h.link.deliver(signal.Envelope{Kind: signal.KindChatMessage, From: "bob", Payload: json.RawMessage(`{"id":"m2","from":"bob","text":"hi"}`)})
	chats := eventsOfType[core.ChatReceived](h)
	require.Len(t, chats, 1)
	assert.Equal(t, "hi", chats[0].Message.Text)
}

func TestCoordinatorContentConvergence(t *testing.T) {
	h := newCoordHarness(t, "alice")
	h.connect(t)
	h.roster("alice", "bob")

	h.coord.UpdateContent("agenda v1")
	assert.Equal(t, "agenda v1", h.coord.Content())
	assert.Len(t, h.link.sentOfKind(signal.KindContentUpdate), 1)

	// A later update from a peer wins; last writer, no merging.
	ch := h.factory.get("bob").channels[0]
	ch.markOpen()
	ch.receive([]byte(`{"type":"content_update","payload":{"text":"agenda v2"}}`))
	assert.Equal(t, "agenda v2", h.coord.Content())
}

func TestCoordinatorDisconnectIsIdempotent(t *testing.T) {
	h := newCoordHarness(t, "alice")
	h.connect(t)
	h.roster("alice", "bob")
	tr := h.factory.get("bob")

	h.coord.Disconnect()
	assert.True(t, tr.closed)
	assert.True(t, h.capture.lastUser.stopped)
	assert.Equal(t, core.LinkClosed, h.link.State())
	assert.Empty(t, h.coord.Peers())

	h.coord.Disconnect()
}

func TestCoordinatorEndCall(t *testing.T) {
	h := newCoordHarness(t, "alice")
	h.connect(t)
	h.roster("alice", "bob")

	h.coord.EndCall("done")
	assert.Len(t, h.link.sentOfKind(signal.KindEndCall), 1)
	assert.Equal(t, core.LinkClosed, h.link.State())
}

func TestCoordinatorRemoteEndCall(t *testing.T) {
	h := newCoordHarness(t, "alice")
	h.connect(t)
	h.roster("alice", "bob")

	h.link.deliver(signal.Envelope{Kind: signal.KindEndCall, From: "bob", Reason: "host ended"})

	ended := eventsOfType[core.MeetingEnded](h)
	require.Len(t, ended, 1)
	assert.Equal(t, "host ended", ended[0].Reason)
	assert.Equal(t, core.LinkClosed, h.link.State())
	assert.Empty(t, h.coord.Peers())
}

func TestCoordinatorRelayBroadcasts(t *testing.T) {
	h := newCoordHarness(t, "alice")
	h.connect(t)

	active := true
	h.link.deliver(signal.Envelope{Kind: signal.KindRecordingUpdate, IsRecording: &active})
	h.link.deliver(signal.Envelope{Kind: signal.KindSpeakerUpdate, Speakers: map[domain.PeerID]bool{"bob": true}})
	h.link.deliver(signal.Envelope{Kind: signal.KindBotMessage, From: "BotTranslator", Message: "translated"})

	require.Len(t, eventsOfType[core.RecordingChanged](h), 1)
	assert.True(t, eventsOfType[core.RecordingChanged](h)[0].Active)
	require.Len(t, eventsOfType[core.SpeakersChanged](h), 1)
	require.Len(t, eventsOfType[core.BotMessageReceived](h), 1)
}

func TestCoordinatorDropsMalformedEnvelopes(t *testing.T) {
	h := newCoordHarness(t, "alice")
	h.connect(t)

	h.link.deliver(signal.Envelope{Kind: "mystery"})
	h.link.deliver(signal.Envelope{Kind: signal.KindSignal, Action: signal.ActionOffer, From: "bob", Payload: json.RawMessage(`{"sdp":""}`)})

	assert.Zero(t, h.factory.count())
	assert.Empty(t, h.events)
}

func TestCoordinatorDeviceSwap(t *testing.T) {
	h := newCoordHarness(t, "alice")
	h.connect(t)
	h.roster("alice", "bob")

	tr := h.factory.get("bob")
	offersBefore := tr.offerCount()

	require.NoError(t, h.coord.SelectAudioDevice("mic-2"))
	assert.Equal(t, offersBefore, tr.offerCount(), "replacement needs no renegotiation")

	var replaced int
	for _, s := range tr.senders {
		replaced += len(s.replaced)
	}
	assert.Equal(t, 1, replaced)
}
