package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/MahdiBaghbani/calshare-go/internal/components/notifications"
	"github.com/MahdiBaghbani/calshare-go/internal/components/reminders"
	"github.com/MahdiBaghbani/calshare-go/internal/platform/appctx"
	"github.com/MahdiBaghbani/calshare-go/internal/platform/logutil"
	"github.com/MahdiBaghbani/calshare-go/internal/platform/store"
)

// Sharer delivers event_share notifications.
type Sharer interface {
	ShareEvent(ctx context.Context, ev notifications.SharedEvent, senderID, senderName string, recipients []string) notifications.FanOutReport
}

// FriendChecker reports whether userID is on ownerID's friend list.
type FriendChecker interface {
	IsFriend(ctx context.Context, ownerID, userID string) (bool, error)
}

// Result is the outcome of CreateOrUpdateEvent. The event is persisted even
// when FanOut reports failures.
type Result struct {
	EventID string
	FanOut  notifications.FanOutReport
}

// Workflow implements the event operations of one user.
type Workflow struct {
	store     store.DocumentStore
	sharer    Sharer
	friends   FriendChecker
	reminders reminders.Scheduler
	sweeper   *Sweeper
	log       *slog.Logger
}

// NewWorkflow creates a Workflow. sched may be nil. A nil friends checker
// lets an owner share with any user id.
func NewWorkflow(st store.DocumentStore, sharer Sharer, friends FriendChecker, sched reminders.Scheduler, sweeper *Sweeper, log *slog.Logger) *Workflow {
	log = logutil.NoopIfNil(log)
	return &Workflow{
		store:     st,
		sharer:    sharer,
		friends:   friends,
		reminders: sched,
		sweeper:   sweeper,
		log:       log,
	}
}

// CreateOrUpdateEvent persists the event, shares it with every recipient
// other than the owner and schedules the owner's reminder. Recipients that
// are not on the owner's friend list are neither stored in sharedWith nor
// notified; they are reported in FanOut.Failed with ErrNotFriend.
//
// On the create path an existing event with the same title and date fails
// the call with ErrDuplicateEvent before anything is written. On the update
// path a missing id fails with store.ErrNotFound.
func (w *Workflow) CreateOrUpdateEvent(ctx context.Context, in EventInput) (Result, error) {
	if err := in.validate(); err != nil {
		return Result{}, err
	}
	recipients, rejected := w.permitted(ctx, in.OwnerID, otherThan(in.OwnerID, in.Recipients))

	doc := store.Document{
		"title":        in.Title,
		"date":         store.Timestamp(in.Date),
		"notifyBefore": in.NotifyBefore,
		"sharedWith":   recipients,
	}

	id := in.ID
	if id == "" {
		existing, err := loadEvents(ctx, w.store, in.OwnerID)
		if err != nil {
			return Result{}, err
		}
		for _, ev := range existing {
			if ev.Title == in.Title && ev.Date.Equal(in.Date) {
				return Result{}, ErrDuplicateEvent
			}
		}
		doc["concluded"] = false
		id, err = w.store.Create(ctx, in.OwnerID, store.CollectionEvents, doc)
		if err != nil {
			return Result{}, fmt.Errorf("create event: %w", err)
		}
	} else {
		err := w.store.Update(ctx, in.OwnerID, store.CollectionEvents, id, doc)
		if errors.Is(err, store.ErrInvalidKey) {
			return Result{}, store.ErrNotFound
		}
		if err != nil {
			return Result{}, fmt.Errorf("update event: %w", err)
		}
	}

	log := w.logger(ctx)
	res := Result{EventID: id}
	if len(recipients) > 0 && w.sharer != nil {
		res.FanOut = w.sharer.ShareEvent(ctx, notifications.SharedEvent{ID: id, Title: in.Title, Date: in.Date},
			in.OwnerID, in.OwnerName, recipients)
	}
	if len(rejected) > 0 {
		res.FanOut.Failed = append(res.FanOut.Failed, rejected...)
		sort.Slice(res.FanOut.Failed, func(i, j int) bool {
			return res.FanOut.Failed[i].RecipientID < res.FanOut.Failed[j].RecipientID
		})
	}
	if !res.FanOut.OK() {
		log.Warn("event shared partially", "event_id", id, "failed", len(res.FanOut.Failed), "sent", len(res.FanOut.Sent))
	}

	if reminders.FireTime(in.Date, in.NotifyBefore).After(w.sweeper.Now()) {
		reminders.ForEvent(ctx, w.reminders, in.OwnerID, in.Title, in.Date, in.NotifyBefore)
	}

	log.Info("event saved", "event_id", id, "owner_id", in.OwnerID, "created", in.ID == "", "recipients", len(recipients))
	return res, nil
}

// GetEvent returns one event.
func (w *Workflow) GetEvent(ctx context.Context, ownerID, id string) (*Event, error) {
	doc, err := w.store.Get(ctx, ownerID, store.CollectionEvents, id)
	if errors.Is(err, store.ErrInvalidKey) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	ev, err := decodeEvent(id, doc)
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

// DeleteEvent removes the event. Notifications already sent for it stay
// in the recipients' inboxes.
func (w *Workflow) DeleteEvent(ctx context.Context, ownerID, id string) error {
	err := w.store.Delete(ctx, ownerID, store.CollectionEvents, id)
	if errors.Is(err, store.ErrInvalidKey) {
		return nil
	}
	return err
}

// MarkConcluded sets concluded regardless of the event's date.
func (w *Workflow) MarkConcluded(ctx context.Context, ownerID, id string) error {
	err := w.store.Update(ctx, ownerID, store.CollectionEvents, id, store.Document{"concluded": true})
	if errors.Is(err, store.ErrInvalidKey) {
		return store.ErrNotFound
	}
	return err
}

// ListUpcoming sweeps the owner's events and returns the unconcluded ones,
// soonest first. Sweep failures are logged; those events are still listed.
func (w *Workflow) ListUpcoming(ctx context.Context, ownerID string) ([]Event, error) {
	all, err := w.sweep(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	out := make([]Event, 0, len(all))
	for _, ev := range all {
		if !ev.Concluded {
			out = append(out, ev)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// ListConcluded sweeps the owner's events and returns the concluded ones,
// most recent first.
func (w *Workflow) ListConcluded(ctx context.Context, ownerID string) ([]Event, error) {
	all, err := w.sweep(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	out := make([]Event, 0, len(all))
	for _, ev := range all {
		if ev.Concluded {
			out = append(out, ev)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out, nil
}

func (w *Workflow) sweep(ctx context.Context, ownerID string) ([]Event, error) {
	all, err := loadEvents(ctx, w.store, ownerID)
	if err != nil {
		return nil, err
	}
	swept, err := w.sweeper.Sweep(ctx, ownerID, all)
	if err != nil {
		w.logger(ctx).Warn("conclusion sweep failed", "owner_id", ownerID, "error", err)
	}
	return swept, nil
}

// permitted splits ids into the owner's friends and failures for everyone else.
func (w *Workflow) permitted(ctx context.Context, ownerID string, ids []string) ([]string, []notifications.RecipientFailure) {
	if w.friends == nil {
		return ids, nil
	}
	out := make([]string, 0, len(ids))
	var rejected []notifications.RecipientFailure
	for _, id := range ids {
		ok, err := w.friends.IsFriend(ctx, ownerID, id)
		switch {
		case errors.Is(err, store.ErrInvalidKey):
			rejected = append(rejected, notifications.RecipientFailure{RecipientID: id, Err: ErrNotFriend})
		case err != nil:
			rejected = append(rejected, notifications.RecipientFailure{RecipientID: id, Err: err})
		case !ok:
			rejected = append(rejected, notifications.RecipientFailure{RecipientID: id, Err: ErrNotFriend})
		default:
			out = append(out, id)
		}
	}
	return out, rejected
}

func otherThan(ownerID string, ids []string) []string {
	seen := map[string]bool{ownerID: true, "": true}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func (w *Workflow) logger(ctx context.Context) *slog.Logger {
	if l, ok := appctx.LoggerFromContext(ctx); ok {
		return l
	}
	return w.log
}
