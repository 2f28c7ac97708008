package rtc

import (
	"errors"

	"github.com/pion/webrtc/v4"
)

var ErrChannelNotOpen = errors.New("data channel not open")

type dataChannel struct {
	dc *webrtc.DataChannel
}

func wrapChannel(dc *webrtc.DataChannel) *dataChannel {
	return &dataChannel{dc: dc}
}

func (c *dataChannel) Label() string { return c.dc.Label() }

func (c *dataChannel) IsOpen() bool {
	return c.dc.ReadyState() == webrtc.DataChannelStateOpen
}

func (c *dataChannel) Send(data []byte) error {
	if !c.IsOpen() {
		return ErrChannelNotOpen
	}
	// Text frames so browser peers see strings.
	return c.dc.SendText(string(data))
}

func (c *dataChannel) OnOpen(fn func()) { c.dc.OnOpen(fn) }

func (c *dataChannel) OnMessage(fn func(data []byte)) {
	c.dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		fn(msg.Data)
	})
}

func (c *dataChannel) OnClose(fn func()) { c.dc.OnClose(fn) }

func (c *dataChannel) Close() error { return c.dc.Close() }
