package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/MahdiBaghbani/calshare-go/internal/platform/logutil"
	"github.com/MahdiBaghbani/calshare-go/internal/platform/metrics"
	"github.com/MahdiBaghbani/calshare-go/internal/platform/store"
)

// SharedEvent is the part of an event carried by an event_share notification.
type SharedEvent struct {
	ID    string
	Title string
	Date  time.Time
}

// RecipientFailure is one failed write of a fan-out.
type RecipientFailure struct {
	RecipientID string
	Err         error
}

// FanOutReport lists the recipients whose notification could not be written.
// Successful sends are not rolled back.
type FanOutReport struct {
	Sent   []string
	Failed []RecipientFailure
}

// OK reports whether every recipient was reached.
func (r FanOutReport) OK() bool { return len(r.Failed) == 0 }

// Outbox writes notifications into recipients' inboxes.
type Outbox struct {
	store store.DocumentStore
	log   *slog.Logger
}

func NewOutbox(st store.DocumentStore, log *slog.Logger) *Outbox {
	log = logutil.NoopIfNil(log)
	return &Outbox{store: st, log: log}
}

// ShareEvent writes one event_share notification per recipient. Writes run
// concurrently, each is attempted once, and one failure does not affect the others.
func (o *Outbox) ShareEvent(ctx context.Context, ev SharedEvent, senderID, senderName string, recipients []string) FanOutReport {
	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		report FanOutReport
	)

	for _, recipient := range dedupe(recipients) {
		wg.Add(1)
		go func(recipient string) {
			defer wg.Done()
			doc := eventShareDocument(ev.ID, ev.Title, ev.Date, senderID, senderName)
			_, err := o.store.Create(ctx, recipient, store.CollectionNotifications, doc)
			metrics.NotificationsSent.WithLabelValues(TypeEventShare, metrics.Outcome(err)).Inc()

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				o.log.Warn("event share failed", "event_id", ev.ID, "recipient_id", recipient, "error", err)
				report.Failed = append(report.Failed, RecipientFailure{RecipientID: recipient, Err: err})
				return
			}
			report.Sent = append(report.Sent, recipient)
		}(recipient)
	}
	wg.Wait()

	sort.Strings(report.Sent)
	sort.Slice(report.Failed, func(i, j int) bool {
		return report.Failed[i].RecipientID < report.Failed[j].RecipientID
	})
	return report
}

// SendFriendRequest writes a friend_request notification and returns its id.
func (o *Outbox) SendFriendRequest(ctx context.Context, senderID, senderName, recipientID string) (string, error) {
	id, err := o.store.Create(ctx, recipientID, store.CollectionNotifications, friendRequestDocument(senderID, senderName))
	metrics.NotificationsSent.WithLabelValues(TypeFriendRequest, metrics.Outcome(err)).Inc()
	if err != nil {
		return "", fmt.Errorf("send friend request: %w", err)
	}
	o.log.Debug("friend request sent", "sender_id", senderID, "recipient_id", recipientID, "notification_id", id)
	return id, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
