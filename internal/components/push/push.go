// Package push delivers small JSON messages to a user's connected clients.
package push

import (
	"context"
	"time"
)

// Message kinds.
const (
	KindConnected = "connected"
	KindInbox     = "inbox"
	KindReminder  = "reminder"
)

// Message is one push payload.
type Message struct {
	Kind   string         `json:"kind"`
	Title  string         `json:"title,omitempty"`
	Body   string         `json:"body,omitempty"`
	Data   map[string]any `json:"data,omitempty"`
	SentAt time.Time      `json:"sentAt"`
}

// Publisher sends a message to every client of userID. Delivery is best
// effort: users without a live connection simply miss the message.
type Publisher interface {
	Publish(ctx context.Context, userID string, msg Message) error
}
