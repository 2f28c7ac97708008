// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"strings"
)

const MaxPeerIDLen = 64

var (
	ErrPeerIDEmpty   = errors.New("peer id empty")
	ErrPeerIDTooLong = errors.New("peer id too long")
)

type (
	PeerID string
	RoomID string
)

func NewPeerID(raw string) (PeerID, error) {
	if raw == "" {
		return "", ErrPeerIDEmpty
	}
	if len(raw) > MaxPeerIDLen {
		return "", ErrPeerIDTooLong
	}
	return PeerID(raw), nil
}

// RoleTable classifies participants by the naming conventions the relay
// uses for automated participants. Regular users carry arbitrary ids.
type RoleTable struct {
	BotPrefix      string
	RecorderPrefix string
}

func DefaultRoleTable() RoleTable {
	return RoleTable{BotPrefix: "Bot", RecorderPrefix: "RecorderBot"}
}

// IsBot reports whether id belongs to a designated bot role. Bots always
// take the initiator side of a pair.
func (t RoleTable) IsBot(id PeerID) bool {
	return t.BotPrefix != "" && !t.IsPassiveAgent(id) &&
		strings.HasPrefix(string(id), t.BotPrefix)
}

// IsPassiveAgent reports whether id belongs to a passive agent (the
// recorder). Passive agents send their own offers; nobody offers to them.
func (t RoleTable) IsPassiveAgent(id PeerID) bool {
	return t.RecorderPrefix != "" && strings.HasPrefix(string(id), t.RecorderPrefix)
}

// Initiator picks the offering side for the pair (a, b). The result is the
// same no matter which side evaluates it: passive agents beat bots, bots
// beat id order, and otherwise the lexicographically smaller id offers.
func (t RoleTable) Initiator(a, b PeerID) PeerID {
	switch {
	case t.IsPassiveAgent(a) && !t.IsPassiveAgent(b):
		return a
	case t.IsPassiveAgent(b) && !t.IsPassiveAgent(a):
		return b
	case t.IsBot(a) && !t.IsBot(b):
		return a
	case t.IsBot(b) && !t.IsBot(a):
		return b
	case a < b:
		return a
	default:
		return b
	}
}

// Initiates reports whether local should create the offer toward remote.
func (t RoleTable) Initiates(local, remote PeerID) bool {
	return t.Initiator(local, remote) == local
}
