package core

import (
	"context"

	"github.com/dkeye/Meet/internal/signal"
)

type LinkState int

const (
	LinkIdle LinkState = iota
	LinkConnecting
	LinkOpen
	LinkClosed
)

func (s LinkState) String() string {
	switch s {
	case LinkIdle:
		return "idle"
	case LinkConnecting:
		return "connecting"
	case LinkOpen:
		return "open"
	case LinkClosed:
		return "closed"
	}
	return "unknown"
}

// SignalConnection is the persistent link to the relay. One link exists per
// room/user pair and the coordinator owns it.
//
// Send never fails toward the caller: a send on a closed link is dropped
// and logged; a send while the link is still establishing is queued and
// flushed once, in order, when the link opens.
type SignalConnection interface {
	// Open establishes the connection. Calling it while already
	// connecting or open is a no-op; a closed link stays closed.
	Open(ctx context.Context) error
	Send(env signal.Envelope)
	State() LinkState
	// OnMessage sets the inbound dispatch function. Must be set before Open.
	OnMessage(fn func(env signal.Envelope))
	// OnClosed fires once when the link leaves the open state for good.
	OnClosed(fn func())
	// Close is idempotent.
	Close()
}
