package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/MahdiBaghbani/calshare-go/internal/components/reminders"
	"github.com/MahdiBaghbani/calshare-go/internal/platform/appctx"
	"github.com/MahdiBaghbani/calshare-go/internal/platform/logutil"
	"github.com/MahdiBaghbani/calshare-go/internal/platform/metrics"
	"github.com/MahdiBaghbani/calshare-go/internal/platform/store"
)

const (
	actionAccept  = "accept"
	actionDecline = "decline"
)

// FriendWriter writes one side of a friend relation.
type FriendWriter interface {
	Put(ctx context.Context, ownerID, friendUserID, fullName string) error
}

// Processor resolves inbox items. Every item ends either consumed into a
// friend relation or event, or copied into the trash log; in both cases it
// leaves the inbox.
type Processor struct {
	store               store.DocumentStore
	friends             FriendWriter
	reminders           reminders.Scheduler
	defaultNotifyBefore int
	log                 *slog.Logger
}

// NewProcessor creates a Processor. sched may be nil.
func NewProcessor(st store.DocumentStore, friends FriendWriter, sched reminders.Scheduler, defaultNotifyBefore int, log *slog.Logger) *Processor {
	log = logutil.NoopIfNil(log)
	return &Processor{
		store:               st,
		friends:             friends,
		reminders:           sched,
		defaultNotifyBefore: defaultNotifyBefore,
		log:                 log,
	}
}

// List returns the recipient's inbox, newest first.
func (p *Processor) List(ctx context.Context, recipientID string) ([]*Notification, error) {
	snaps, err := p.store.List(ctx, recipientID, store.CollectionNotifications)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	out := make([]*Notification, 0, len(snaps))
	for _, s := range snaps {
		out = append(out, fromDocument(s.ID, s.Data))
	}
	// ids are time-ordered
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

// MarkRead flags an inbox item as read.
func (p *Processor) MarkRead(ctx context.Context, recipientID, id string) error {
	err := p.store.Update(ctx, recipientID, store.CollectionNotifications, id, store.Document{"read": true})
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrInvalidKey) {
		return ErrNotificationNotFound
	}
	return err
}

// Accept dispatches on the notification type.
func (p *Processor) Accept(ctx context.Context, recipient Party, id string) (*Notification, error) {
	n, err := p.load(ctx, recipient.ID, id)
	if err != nil {
		return nil, err
	}
	switch n.Type {
	case TypeFriendRequest:
		return n, p.acceptFriendRequest(ctx, recipient, n)
	case TypeEventShare:
		return n, p.acceptEventInvitation(ctx, recipient.ID, n)
	default:
		return n, &MalformedNotificationError{ID: id, Field: "type"}
	}
}

// Decline moves any notification to the trash log regardless of type or
// payload validity.
func (p *Processor) Decline(ctx context.Context, recipientID, id string) error {
	return p.decline(ctx, recipientID, id, "")
}

// AcceptFriendRequest writes the friend relation on the recipient's side,
// then the mirror on the sender's side, then removes the notification.
func (p *Processor) AcceptFriendRequest(ctx context.Context, recipient Party, id string) error {
	n, err := p.load(ctx, recipient.ID, id)
	if err != nil {
		return err
	}
	if n.Type != "" && n.Type != TypeFriendRequest {
		return ErrWrongType
	}
	return p.acceptFriendRequest(ctx, recipient, n)
}

// DeclineFriendRequest copies the request into the trash log, then removes it.
func (p *Processor) DeclineFriendRequest(ctx context.Context, recipientID, id string) error {
	return p.decline(ctx, recipientID, id, TypeFriendRequest)
}

// AcceptEventInvitation copies the shared event under the recipient with
// the same event id, then removes the notification.
func (p *Processor) AcceptEventInvitation(ctx context.Context, recipientID, id string) error {
	n, err := p.load(ctx, recipientID, id)
	if err != nil {
		return err
	}
	if n.Type != "" && n.Type != TypeEventShare {
		return ErrWrongType
	}
	return p.acceptEventInvitation(ctx, recipientID, n)
}

// DeclineEventInvitation copies the invitation into the trash log, then removes it.
func (p *Processor) DeclineEventInvitation(ctx context.Context, recipientID, id string) error {
	return p.decline(ctx, recipientID, id, TypeEventShare)
}

func (p *Processor) acceptFriendRequest(ctx context.Context, recipient Party, n *Notification) (err error) {
	defer func() { p.observe(n.Type, actionAccept, err) }()

	if n.SenderID == "" {
		return &MalformedNotificationError{ID: n.ID, Field: "senderID"}
	}
	if n.SenderName == "" {
		return &MalformedNotificationError{ID: n.ID, Field: "senderName"}
	}
	if store.ValidateKey(recipient.ID, store.CollectionFriends, n.SenderID, false) != nil {
		return &MalformedNotificationError{ID: n.ID, Field: "senderID"}
	}

	if err := p.friends.Put(ctx, recipient.ID, n.SenderID, n.SenderName); err != nil {
		return fmt.Errorf("add friend: %w", err)
	}
	if err := p.friends.Put(ctx, n.SenderID, recipient.ID, recipient.FullName); err != nil {
		// The notification stays in the inbox so the accept can be retried;
		// repeating the first write is an overwrite.
		return &PartialFriendshipError{RecipientID: recipient.ID, SenderID: n.SenderID, Err: err}
	}
	if err := p.store.Delete(ctx, recipient.ID, store.CollectionNotifications, n.ID); err != nil {
		return fmt.Errorf("remove accepted notification: %w", err)
	}

	p.logger(ctx).Info("friend request accepted", "recipient_id", recipient.ID, "sender_id", n.SenderID, "notification_id", n.ID)
	return nil
}

func (p *Processor) acceptEventInvitation(ctx context.Context, recipientID string, n *Notification) (err error) {
	defer func() { p.observe(n.Type, actionAccept, err) }()

	if err := validateEventShare(recipientID, n); err != nil {
		return err
	}

	// Drop sub-second precision, matching what the sender's client displays.
	date := time.Unix(n.Date.Unix(), 0).UTC()
	event := store.Document{
		"title":        n.EventTitle,
		"date":         store.Timestamp(date),
		"notifyBefore": p.defaultNotifyBefore,
		"sharedWith":   []string{},
		"concluded":    false,
		"invitedBy":    n.SenderID,
	}
	if err := p.store.CreateWithID(ctx, recipientID, store.CollectionEvents, n.EventID, event); err != nil {
		return fmt.Errorf("copy shared event: %w", err)
	}
	if err := p.store.Delete(ctx, recipientID, store.CollectionNotifications, n.ID); err != nil {
		return fmt.Errorf("remove accepted notification: %w", err)
	}

	reminders.ForEvent(ctx, p.reminders, recipientID, n.EventTitle, date, p.defaultNotifyBefore)
	p.logger(ctx).Info("event invitation accepted", "recipient_id", recipientID, "event_id", n.EventID, "invited_by", n.SenderID)
	return nil
}

// validateEventShare checks fields in a fixed order and names the first bad one.
func validateEventShare(recipientID string, n *Notification) error {
	switch {
	case n.EventID == "" || store.ValidateKey(recipientID, store.CollectionEvents, n.EventID, false) != nil:
		return &MalformedNotificationError{ID: n.ID, Field: "eventID"}
	case n.EventTitle == "":
		return &MalformedNotificationError{ID: n.ID, Field: "eventTitle"}
	case n.SenderID == "":
		return &MalformedNotificationError{ID: n.ID, Field: "senderID"}
	case n.Date == nil || n.Date.Unix() == 0:
		return &MalformedNotificationError{ID: n.ID, Field: "date"}
	}
	return nil
}

// decline copies the stored document verbatim into trash under the same id
// and then deletes it from the inbox. Repeating it after success is a no-op.
func (p *Processor) decline(ctx context.Context, recipientID, id, wantType string) (err error) {
	doc, err := p.store.Get(ctx, recipientID, store.CollectionNotifications, id)
	if errors.Is(err, store.ErrNotFound) {
		if _, trashErr := p.store.Get(ctx, recipientID, store.CollectionTrash, id); trashErr == nil {
			return nil
		}
		return ErrNotificationNotFound
	}
	if errors.Is(err, store.ErrInvalidKey) {
		return ErrNotificationNotFound
	}
	if err != nil {
		return fmt.Errorf("load notification: %w", err)
	}

	n := fromDocument(id, doc)
	if wantType != "" && n.Type != "" && n.Type != wantType {
		return ErrWrongType
	}
	defer func() { p.observe(n.Type, actionDecline, err) }()

	if err := p.store.CreateWithID(ctx, recipientID, store.CollectionTrash, id, doc); err != nil {
		return fmt.Errorf("copy notification to trash: %w", err)
	}
	if err := p.store.Delete(ctx, recipientID, store.CollectionNotifications, id); err != nil {
		return fmt.Errorf("remove declined notification: %w", err)
	}

	p.logger(ctx).Info("notification declined", "recipient_id", recipientID, "notification_id", id, "type", n.Type)
	return nil
}

func (p *Processor) load(ctx context.Context, recipientID, id string) (*Notification, error) {
	doc, err := p.store.Get(ctx, recipientID, store.CollectionNotifications, id)
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrInvalidKey) {
		return nil, ErrNotificationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load notification: %w", err)
	}
	return fromDocument(id, doc), nil
}

func (p *Processor) observe(kind, action string, err error) {
	if kind == "" {
		kind = "unknown"
	}
	metrics.NotificationsResolved.WithLabelValues(kind, action, metrics.Outcome(err)).Inc()
}

func (p *Processor) logger(ctx context.Context) *slog.Logger {
	if l, ok := appctx.LoggerFromContext(ctx); ok {
		return l
	}
	return p.log
}
