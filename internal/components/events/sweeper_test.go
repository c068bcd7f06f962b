package events_test

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/MahdiBaghbani/calshare-go/internal/components/events"
	"github.com/MahdiBaghbani/calshare-go/internal/platform/store"
	storememory "github.com/MahdiBaghbani/calshare-go/internal/platform/store/memory"
	"github.com/MahdiBaghbani/calshare-go/internal/platform/store/storetest"
)

func seedEvents(t *testing.T, st store.DocumentStore, evs ...events.Event) {
	t.Helper()
	for _, ev := range evs {
		doc := store.Document{
			"title":        ev.Title,
			"date":         store.Timestamp(ev.Date),
			"notifyBefore": ev.NotifyBefore,
			"sharedWith":   ev.SharedWith,
			"concluded":    ev.Concluded,
		}
		if err := st.CreateWithID(context.Background(), "u1", store.CollectionEvents, ev.ID, doc); err != nil {
			t.Fatal(err)
		}
	}
}

func TestSweep(t *testing.T) {
	mem := storememory.New()
	faulty := storetest.NewFaulty(mem, nil)
	sweeper := events.NewSweeper(faulty, clock, testLogger)
	ctx := context.Background()

	in := []events.Event{
		{ID: "past", Title: "Past", Date: now.Add(-time.Hour), NotifyBefore: 10, SharedWith: []string{"u2"}},
		{ID: "future", Title: "Future", Date: now.Add(time.Hour), NotifyBefore: 10, SharedWith: []string{}},
		{ID: "done", Title: "Done", Date: now.Add(-48 * time.Hour), Concluded: true, SharedWith: []string{}},
	}
	seedEvents(t, mem, in...)

	out, err := sweeper.Sweep(ctx, "u1", in)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if !out[0].Concluded || out[1].Concluded || !out[2].Concluded {
		t.Errorf("unexpected flags %+v", out)
	}
	if in[0].Concluded {
		t.Error("Sweep must not modify its input")
	}

	// Only the concluded flag changes.
	want := in[0]
	want.Concluded = true
	if !reflect.DeepEqual(out[0], want) {
		t.Errorf("got %+v, want %+v", out[0], want)
	}
	stored, _ := mem.Get(ctx, "u1", store.CollectionEvents, "past")
	if stored["concluded"] != true || stored["title"] != "Past" {
		t.Errorf("unexpected stored doc %v", stored)
	}

	if w := faulty.Writes(); len(w) != 1 || w[0].ID != "past" {
		t.Errorf("expected a single update of past, got %+v", w)
	}

	// Idempotent.
	faulty.Reset()
	if _, err := sweeper.Sweep(ctx, "u1", out); err != nil {
		t.Fatal(err)
	}
	if w := faulty.Writes(); len(w) != 0 {
		t.Errorf("re-sweep must not write, got %+v", w)
	}
}

func TestSweep_JoinsFailures(t *testing.T) {
	mem := storememory.New()
	faulty := storetest.NewFaulty(mem, func(c storetest.Call) error {
		if c.Op == storetest.OpUpdate && c.ID == "bad" {
			return store.Unavailable("update", errors.New("connection reset"))
		}
		return nil
	})
	sweeper := events.NewSweeper(faulty, clock, testLogger)

	in := []events.Event{
		{ID: "good", Title: "Good", Date: now.Add(-time.Hour)},
		{ID: "bad", Title: "Bad", Date: now.Add(-time.Hour)},
	}
	seedEvents(t, mem, in...)

	out, err := sweeper.Sweep(context.Background(), "u1", in)
	if !errors.Is(err, store.ErrUnavailable) {
		t.Fatalf("expected joined ErrUnavailable, got %v", err)
	}
	if !out[0].Concluded {
		t.Error("good event should be concluded")
	}
	if out[1].Concluded {
		t.Error("failed event must stay unconcluded in the result")
	}
}

func TestSweep_ZeroDateNotDue(t *testing.T) {
	sweeper := events.NewSweeper(storememory.New(), clock, testLogger)
	out, err := sweeper.Sweep(context.Background(), "u1", []events.Event{{ID: "x", Title: "No date"}})
	if err != nil || out[0].Concluded {
		t.Errorf("event without date must not be swept: %+v, %v", out, err)
	}
}
