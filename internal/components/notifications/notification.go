// Package notifications implements the per-user inbox: the outbox that fans
// a share out into recipient inboxes, the processor that reconciles inbox
// items into friends or events, and the trash log of declined items.
package notifications

import (
	"errors"
	"fmt"
	"time"

	"github.com/MahdiBaghbani/calshare-go/internal/platform/store"
)

// Notification types.
const (
	TypeFriendRequest = "friend_request"
	TypeEventShare    = "event_share"
)

const statusPending = "pending"

var (
	ErrNotificationNotFound = errors.New("notification not found")
	ErrWrongType            = errors.New("notification has the wrong type for this action")
)

// MalformedNotificationError reports the first required field that is
// missing or invalid. Nothing was written when it is returned.
type MalformedNotificationError struct {
	ID    string
	Field string
}

func (e *MalformedNotificationError) Error() string {
	return fmt.Sprintf("notification %s is malformed: missing or invalid %s", e.ID, e.Field)
}

// PartialFriendshipError means the recipient's side of a friendship was
// written but the mirror on the sender's side was not. There is no rollback.
type PartialFriendshipError struct {
	RecipientID string
	SenderID    string
	Err         error
}

func (e *PartialFriendshipError) Error() string {
	return fmt.Sprintf("friendship %s -> %s committed, mirror write failed: %v", e.RecipientID, e.SenderID, e.Err)
}

func (e *PartialFriendshipError) Unwrap() error { return e.Err }

// Party identifies a user acting on their inbox.
type Party struct {
	ID       string
	FullName string
}

// Notification is an inbox item.
type Notification struct {
	ID         string     `json:"id"`
	Type       string     `json:"type"`
	SenderID   string     `json:"senderID"`
	SenderName string     `json:"senderName"`
	EventID    string     `json:"eventID,omitempty"`
	EventTitle string     `json:"eventTitle,omitempty"`
	Date       *time.Time `json:"date,omitempty"`
	Status     string     `json:"status,omitempty"`
	Read       bool       `json:"read"`

	// raw is the stored document, copied verbatim on decline.
	raw store.Document
}

// fromDocument is lenient: wrong-typed fields read as empty so a malformed
// item can still be listed and declined.
func fromDocument(id string, doc store.Document) *Notification {
	n := &Notification{
		ID:         id,
		Type:       stringField(doc, "type"),
		SenderID:   stringField(doc, "senderID"),
		SenderName: stringField(doc, "senderName"),
		EventID:    stringField(doc, "eventID"),
		EventTitle: stringField(doc, "eventTitle"),
		Status:     stringField(doc, "status"),
		raw:        doc,
	}
	n.Read, _ = doc["read"].(bool)
	if when, ok := store.TimeFrom(doc["date"]); ok {
		n.Date = &when
	}
	return n
}

func stringField(doc store.Document, key string) string {
	s, _ := doc[key].(string)
	return s
}

func eventShareDocument(eventID, title string, date time.Time, senderID, senderName string) store.Document {
	return store.Document{
		"type":       TypeEventShare,
		"eventID":    eventID,
		"eventTitle": title,
		"senderID":   senderID,
		"senderName": senderName,
		"date":       store.Timestamp(date),
		"read":       false,
	}
}

func friendRequestDocument(senderID, senderName string) store.Document {
	return store.Document{
		"type":       TypeFriendRequest,
		"senderID":   senderID,
		"senderName": senderName,
		"status":     statusPending,
		"read":       false,
	}
}
