package notifications_test

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/MahdiBaghbani/calshare-go/internal/components/friends"
	"github.com/MahdiBaghbani/calshare-go/internal/components/notifications"
	"github.com/MahdiBaghbani/calshare-go/internal/platform/store"
	storememory "github.com/MahdiBaghbani/calshare-go/internal/platform/store/memory"
	"github.com/MahdiBaghbani/calshare-go/internal/platform/store/storetest"
)

type scheduled struct {
	userID string
	fire   time.Time
	title  string
}

type recordingScheduler struct {
	mu    sync.Mutex
	calls []scheduled
}

func (r *recordingScheduler) Schedule(_ context.Context, userID string, fireTime time.Time, title, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, scheduled{userID, fireTime, title})
}

type fixture struct {
	mem       *storememory.Driver
	store     *storetest.Faulty
	processor *notifications.Processor
	sched     *recordingScheduler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := storememory.New()
	faulty := storetest.NewFaulty(mem, nil)
	sched := &recordingScheduler{}
	return &fixture{
		mem:       mem,
		store:     faulty,
		processor: notifications.NewProcessor(faulty, friends.New(faulty, testLogger), sched, 10, testLogger),
		sched:     sched,
	}
}

func (f *fixture) seed(t *testing.T, owner, id string, doc store.Document) {
	t.Helper()
	if err := f.mem.CreateWithID(context.Background(), owner, store.CollectionNotifications, id, doc); err != nil {
		t.Fatal(err)
	}
}

func (f *fixture) exists(owner, collection, id string) bool {
	_, err := f.mem.Get(context.Background(), owner, collection, id)
	return err == nil
}

func friendRequest() store.Document {
	return store.Document{"type": "friend_request", "senderID": "u1", "senderName": "Alice", "status": "pending", "read": false}
}

func eventShare() store.Document {
	return store.Document{
		"type":       "event_share",
		"eventID":    "e1",
		"eventTitle": "Picnic",
		"senderID":   "u1",
		"senderName": "Alice",
		"date":       store.Timestamp(eventDate),
		"read":       false,
	}
}

var bob = notifications.Party{ID: "u2", FullName: "Bob"}

func TestAcceptFriendRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "u2", "n1", friendRequest())

	if err := f.processor.AcceptFriendRequest(ctx, bob, "n1"); err != nil {
		t.Fatalf("AcceptFriendRequest failed: %v", err)
	}

	mine, _ := f.mem.Get(ctx, "u2", store.CollectionFriends, "u1")
	if mine["friendID"] != "u1" || mine["fullName"] != "Alice" {
		t.Errorf("recipient side = %v", mine)
	}
	mirror, _ := f.mem.Get(ctx, "u1", store.CollectionFriends, "u2")
	if mirror["friendID"] != "u2" || mirror["fullName"] != "Bob" {
		t.Errorf("sender side = %v", mirror)
	}
	if f.exists("u2", store.CollectionNotifications, "n1") {
		t.Error("notification should be gone from the inbox")
	}
}

func TestAcceptFriendRequest_MirrorFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "u2", "n1", friendRequest())
	f.store.Fail = storetest.FailWrites("u1", store.CollectionFriends)

	err := f.processor.AcceptFriendRequest(ctx, bob, "n1")

	var partial *notifications.PartialFriendshipError
	if !errors.As(err, &partial) {
		t.Fatalf("expected PartialFriendshipError, got %v", err)
	}
	if partial.SenderID != "u1" || !errors.Is(err, store.ErrUnavailable) {
		t.Errorf("unexpected error detail %+v", partial)
	}
	if !f.exists("u2", store.CollectionFriends, "u1") {
		t.Error("recipient side must stay committed")
	}
	if !f.exists("u2", store.CollectionNotifications, "n1") {
		t.Error("notification must stay for a retry")
	}

	// Retry after the sender side recovers.
	f.store.Fail = nil
	if err := f.processor.AcceptFriendRequest(ctx, bob, "n1"); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if !f.exists("u1", store.CollectionFriends, "u2") {
		t.Error("mirror should exist after retry")
	}
}

func TestAcceptFriendRequest_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		doc   store.Document
		field string
	}{
		{"no sender id", store.Document{"type": "friend_request", "senderName": "Alice"}, "senderID"},
		{"no sender name", store.Document{"type": "friend_request", "senderID": "u1"}, "senderName"},
		{"sender id is a path", store.Document{"type": "friend_request", "senderID": "../u1", "senderName": "A"}, "senderID"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.seed(t, "u2", "n1", tt.doc)
			f.store.Reset()

			err := f.processor.AcceptFriendRequest(context.Background(), bob, "n1")
			var malformed *notifications.MalformedNotificationError
			if !errors.As(err, &malformed) || malformed.Field != tt.field {
				t.Fatalf("expected malformed %s, got %v", tt.field, err)
			}
			if w := f.store.Writes(); len(w) != 0 {
				t.Errorf("expected zero writes, got %+v", w)
			}
		})
	}
}

func TestAcceptEventInvitation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	share := eventShare()
	share["date"] = store.Timestamp(eventDate.Add(250 * time.Millisecond))
	f.seed(t, "u2", "n1", share)

	if err := f.processor.AcceptEventInvitation(ctx, "u2", "n1"); err != nil {
		t.Fatalf("AcceptEventInvitation failed: %v", err)
	}

	ev, err := f.mem.Get(ctx, "u2", store.CollectionEvents, "e1")
	if err != nil {
		t.Fatalf("event copy missing under the same id: %v", err)
	}
	if ev["title"] != "Picnic" || ev["invitedBy"] != "u1" || ev["concluded"] != false {
		t.Errorf("unexpected event copy %v", ev)
	}
	if when, _ := store.TimeFrom(ev["date"]); !when.Equal(eventDate) {
		t.Errorf("date should be truncated to seconds, got %v", when)
	}
	if f.exists("u2", store.CollectionNotifications, "n1") {
		t.Error("notification should be removed")
	}

	if len(f.sched.calls) != 1 {
		t.Fatalf("expected one reminder, got %d", len(f.sched.calls))
	}
	if c := f.sched.calls[0]; c.userID != "u2" || !c.fire.Equal(eventDate.Add(-10*time.Minute)) || c.title != "Picnic" {
		t.Errorf("unexpected reminder %+v", c)
	}
}

func TestAcceptEventInvitation_RecreatesDeletedEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.mem.CreateWithID(ctx, "u2", store.CollectionTrash, "old", eventShare())
	f.seed(t, "u2", "n1", eventShare())

	if err := f.processor.AcceptEventInvitation(ctx, "u2", "n1"); err != nil {
		t.Fatal(err)
	}
	if !f.exists("u2", store.CollectionEvents, "e1") {
		t.Error("acceptance must recreate the event regardless of earlier trashing")
	}
}

func TestAcceptEventInvitation_Malformed(t *testing.T) {
	tests := []struct {
		field  string
		mutate func(store.Document)
	}{
		{"eventID", func(d store.Document) { delete(d, "eventID") }},
		{"eventTitle", func(d store.Document) { d["eventTitle"] = "" }},
		{"senderID", func(d store.Document) { delete(d, "senderID") }},
		{"date", func(d store.Document) { d["date"] = map[string]any{"nanoseconds": 5} }},
		{"date", func(d store.Document) { d["date"] = "2026-07-04" }},
		// first missing field wins
		{"eventTitle", func(d store.Document) { delete(d, "eventTitle"); delete(d, "senderID") }},
	}
	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			f := newFixture(t)
			doc := eventShare()
			tt.mutate(doc)
			f.seed(t, "u2", "n1", doc)
			f.store.Reset()

			err := f.processor.AcceptEventInvitation(context.Background(), "u2", "n1")
			var malformed *notifications.MalformedNotificationError
			if !errors.As(err, &malformed) || malformed.Field != tt.field {
				t.Fatalf("expected malformed %s, got %v", tt.field, err)
			}
			if w := f.store.Writes(); len(w) != 0 {
				t.Errorf("expected zero writes, got %+v", w)
			}

			// A malformed item can still be declined.
			if err := f.processor.DeclineEventInvitation(context.Background(), "u2", "n1"); err != nil {
				t.Errorf("decline of malformed item failed: %v", err)
			}
		})
	}
}

func TestDecline_CopyThenDeleteIdempotent(t *testing.T) {
	for _, tc := range []struct {
		name    string
		doc     store.Document
		decline func(*notifications.Processor, context.Context, string, string) error
	}{
		{"friend request", friendRequest(), (*notifications.Processor).DeclineFriendRequest},
		{"event invitation", eventShare(), (*notifications.Processor).DeclineEventInvitation},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			f.seed(t, "u2", "n1", tc.doc)
			original, _ := f.mem.Get(ctx, "u2", store.CollectionNotifications, "n1")

			for i := 0; i < 2; i++ {
				if err := tc.decline(f.processor, ctx, "u2", "n1"); err != nil {
					t.Fatalf("decline #%d failed: %v", i+1, err)
				}
			}

			if f.exists("u2", store.CollectionNotifications, "n1") {
				t.Error("notification should be gone from the inbox")
			}
			trash, _ := f.mem.List(ctx, "u2", store.CollectionTrash)
			if len(trash) != 1 || trash[0].ID != "n1" {
				t.Fatalf("expected exactly one trash entry n1, got %+v", trash)
			}
			if !reflect.DeepEqual(trash[0].Data, original) {
				t.Errorf("trash copy differs:\n got %v\nwant %v", trash[0].Data, original)
			}
		})
	}
}

func TestDecline_DeleteFailureKeepsCopy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "u2", "n1", friendRequest())
	f.store.Fail = func(c storetest.Call) error {
		if c.Op == storetest.OpDelete {
			return store.ErrUnavailable
		}
		return nil
	}

	if err := f.processor.DeclineFriendRequest(ctx, "u2", "n1"); !errors.Is(err, store.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if !f.exists("u2", store.CollectionTrash, "n1") {
		t.Error("trash copy must exist even though the delete failed")
	}

	f.store.Fail = nil
	if err := f.processor.DeclineFriendRequest(ctx, "u2", "n1"); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	trash, _ := f.mem.List(ctx, "u2", store.CollectionTrash)
	if len(trash) != 1 {
		t.Errorf("retry must overwrite, got %d trash entries", len(trash))
	}
}

func TestProcessor_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "u2", "share", eventShare())
	f.seed(t, "u2", "request", friendRequest())

	if err := f.processor.AcceptFriendRequest(ctx, bob, "share"); !errors.Is(err, notifications.ErrWrongType) {
		t.Errorf("expected ErrWrongType, got %v", err)
	}
	if err := f.processor.DeclineEventInvitation(ctx, "u2", "request"); !errors.Is(err, notifications.ErrWrongType) {
		t.Errorf("expected ErrWrongType, got %v", err)
	}
	if err := f.processor.AcceptEventInvitation(ctx, "u2", "missing"); !errors.Is(err, notifications.ErrNotificationNotFound) {
		t.Errorf("expected ErrNotificationNotFound, got %v", err)
	}
	if err := f.processor.Decline(ctx, "u2", "missing"); !errors.Is(err, notifications.ErrNotificationNotFound) {
		t.Errorf("expected ErrNotificationNotFound, got %v", err)
	}
	if err := f.processor.MarkRead(ctx, "u2", "missing"); !errors.Is(err, notifications.ErrNotificationNotFound) {
		t.Errorf("expected ErrNotificationNotFound, got %v", err)
	}
}

func TestAcceptDispatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "u2", "a", friendRequest())
	f.seed(t, "u2", "b", eventShare())
	f.seed(t, "u2", "c", store.Document{"type": "mystery"})

	if n, err := f.processor.Accept(ctx, bob, "a"); err != nil || n.Type != notifications.TypeFriendRequest {
		t.Errorf("accept friend request: %v, %v", n, err)
	}
	if n, err := f.processor.Accept(ctx, bob, "b"); err != nil || n.EventID != "e1" {
		t.Errorf("accept event share: %v, %v", n, err)
	}
	var malformed *notifications.MalformedNotificationError
	if _, err := f.processor.Accept(ctx, bob, "c"); !errors.As(err, &malformed) || malformed.Field != "type" {
		t.Errorf("expected malformed type, got %v", err)
	}
	if err := f.processor.Decline(ctx, "u2", "c"); err != nil {
		t.Errorf("unknown types can still be declined: %v", err)
	}
}

func TestListAndMarkRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "u2", "0001", friendRequest())
	f.seed(t, "u2", "0002", eventShare())

	if err := f.processor.MarkRead(ctx, "u2", "0001"); err != nil {
		t.Fatal(err)
	}

	list, err := f.processor.List(ctx, "u2")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID != "0002" {
		t.Fatalf("expected newest first, got %+v", list)
	}
	if !list[1].Read || list[0].Read {
		t.Error("only 0001 should be read")
	}
	if list[0].Date == nil || !list[0].Date.Equal(eventDate) {
		t.Errorf("event share date not decoded: %v", list[0].Date)
	}
}
