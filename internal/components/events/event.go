// Package events owns the user's calendar: creating and sharing events,
// sweeping past events into the concluded state, and calendar export.
package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MahdiBaghbani/calshare-go/internal/platform/store"
)

// DefaultNotifyBefore is the reminder lead time in minutes when none is chosen.
const DefaultNotifyBefore = 10

var (
	ErrDuplicateEvent = errors.New("an event with the same title and date already exists")
	ErrInvalidEvent   = errors.New("invalid event")
	ErrNotFriend      = errors.New("recipient is not on the owner's friend list")
)

// Event is a calendar entry owned by one user.
type Event struct {
	ID           string    `json:"id" mapstructure:"-"`
	Title        string    `json:"title" mapstructure:"title"`
	Date         time.Time `json:"date" mapstructure:"-"`
	NotifyBefore int       `json:"notifyBefore" mapstructure:"notifyBefore"`
	SharedWith   []string  `json:"sharedWith" mapstructure:"sharedWith"`
	Concluded    bool      `json:"concluded" mapstructure:"concluded"`

	// InvitedBy is set on events copied from an accepted invitation.
	InvitedBy string `json:"invitedBy,omitempty" mapstructure:"invitedBy"`
}

// Due reports whether the sweeper should conclude the event at now.
func (e Event) Due(now time.Time) bool {
	return !e.Concluded && !e.Date.IsZero() && e.Date.Before(now)
}

// EventInput carries a create (ID empty) or update request.
type EventInput struct {
	ID           string
	OwnerID      string
	OwnerName    string
	Title        string
	Date         time.Time
	NotifyBefore int
	Recipients   []string
}

func (in EventInput) validate() error {
	switch {
	case strings.TrimSpace(in.Title) == "":
		return fmt.Errorf("%w: title is required", ErrInvalidEvent)
	case in.Date.IsZero():
		return fmt.Errorf("%w: date is required", ErrInvalidEvent)
	case in.NotifyBefore < 0:
		return fmt.Errorf("%w: notifyBefore must not be negative", ErrInvalidEvent)
	}
	return nil
}

func decodeEvent(id string, doc store.Document) (Event, error) {
	var ev Event
	if err := store.DecodeInto(doc, &ev); err != nil {
		return Event{}, err
	}
	ev.ID = id
	if when, ok := store.TimeFrom(doc["date"]); ok {
		ev.Date = when
	}
	if ev.SharedWith == nil {
		ev.SharedWith = []string{}
	}
	return ev, nil
}

// loadEvents reads every event of the owner. Unreadable documents are skipped.
func loadEvents(ctx context.Context, st store.DocumentStore, ownerID string) ([]Event, error) {
	snaps, err := st.List(ctx, ownerID, store.CollectionEvents)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	out := make([]Event, 0, len(snaps))
	for _, s := range snaps {
		ev, err := decodeEvent(s.ID, s.Data)
		if err != nil {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}
