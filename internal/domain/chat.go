package domain

import "time"

// Attachment is a file reference carried inside a chat message. The
// coordinator never fetches it; the payload travels as-is.
type Attachment struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Type string `json:"type,omitempty"`
	Size int64  `json:"size,omitempty"`
}

// ChatMessage is the chat payload shared by the control channel and the
// relay. To is advisory addressing: delivery is still a broadcast and any
// privacy has to be enforced by the consuming layer.
type ChatMessage struct {
	ID          string       `json:"id"`
	From        PeerID       `json:"from"`
	To          PeerID       `json:"to,omitempty"`
	Text        string       `json:"text,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Timestamp   time.Time    `json:"timestamp"`
}
