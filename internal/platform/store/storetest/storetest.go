// Package storetest provides the shared conformance suite for document store drivers.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/MahdiBaghbani/calshare-go/internal/platform/store"
)

// TestEvent returns an event-shaped document with random content.
func TestEvent() store.Document {
	return store.Document{
		"title":        gofakeit.Word() + " " + gofakeit.Word(),
		"date":         store.Timestamp(time.Unix(1767225600, 0)),
		"notifyBefore": 10,
		"sharedWith":   []string{"u2", "u3"},
		"concluded":    false,
	}
}

// RunDriverTests runs the standard suite against a freshly created driver.
func RunDriverTests(t *testing.T, driverName string, cfg *store.DriverConfig) {
	ctx := context.Background()

	driver, err := store.New(cfg)
	if err != nil {
		t.Fatalf("failed to create %s driver: %v", driverName, err)
	}
	defer driver.Close()

	if err := driver.Init(ctx); err != nil {
		t.Fatalf("failed to init %s driver: %v", driverName, err)
	}

	if driver.Name() != driverName {
		t.Errorf("expected driver name %q, got %q", driverName, driver.Name())
	}

	t.Run("CRUD", func(t *testing.T) {
		TestCRUD(t, ctx, driver)
	})
	t.Run("NotFound", func(t *testing.T) {
		TestNotFound(t, ctx, driver)
	})
	t.Run("CreateWithIDOverwrites", func(t *testing.T) {
		TestCreateWithIDOverwrites(t, ctx, driver)
	})
	t.Run("Isolation", func(t *testing.T) {
		TestIsolation(t, ctx, driver)
	})
	t.Run("InvalidKey", func(t *testing.T) {
		TestInvalidKey(t, ctx, driver)
	})
}

// TestCRUD covers create, get, merge update, list and idempotent delete.
func TestCRUD(t *testing.T, ctx context.Context, s store.DocumentStore) {
	owner := "owner-crud"
	doc := TestEvent()

	id, err := s.Create(ctx, owner, store.CollectionEvents, doc)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if id == "" {
		t.Fatal("Create returned empty id")
	}

	got, err := s.Get(ctx, owner, store.CollectionEvents, id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got["title"] != doc["title"] {
		t.Errorf("expected title %q, got %v", doc["title"], got["title"])
	}
	if got["notifyBefore"] != float64(10) {
		t.Errorf("expected notifyBefore normalized to float64(10), got %#v", got["notifyBefore"])
	}
	when, ok := store.TimeFrom(got["date"])
	if !ok || when.Unix() != 1767225600 {
		t.Errorf("expected date seconds 1767225600, got %v (ok=%v)", when, ok)
	}

	if err := s.Update(ctx, owner, store.CollectionEvents, id, store.Document{"concluded": true}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	got, _ = s.Get(ctx, owner, store.CollectionEvents, id)
	if got["concluded"] != true {
		t.Errorf("expected concluded true after update, got %v", got["concluded"])
	}
	if got["title"] != doc["title"] {
		t.Errorf("update must merge, title changed to %v", got["title"])
	}

	list, err := s.List(ctx, owner, store.CollectionEvents)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 1 || list[0].ID != id {
		t.Errorf("expected single snapshot %q, got %+v", id, list)
	}

	if err := s.Delete(ctx, owner, store.CollectionEvents, id); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := s.Delete(ctx, owner, store.CollectionEvents, id); err != nil {
		t.Errorf("second Delete must be a no-op, got %v", err)
	}
	if _, err := s.Get(ctx, owner, store.CollectionEvents, id); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

// TestNotFound checks NotFound semantics of Get and Update.
func TestNotFound(t *testing.T, ctx context.Context, s store.DocumentStore) {
	if _, err := s.Get(ctx, "owner-nf", store.CollectionEvents, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Get: expected ErrNotFound, got %v", err)
	}
	if err := s.Update(ctx, "owner-nf", store.CollectionEvents, "missing", store.Document{"x": 1}); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Update: expected ErrNotFound, got %v", err)
	}
	if err := s.Delete(ctx, "owner-nf", store.CollectionEvents, "missing"); err != nil {
		t.Errorf("Delete of absent id: expected nil, got %v", err)
	}
	list, err := s.List(ctx, "owner-nf", store.CollectionEvents)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("expected empty list, got %d", len(list))
	}
}

// TestCreateWithIDOverwrites checks that the caller-assigned id path replaces, not merges.
func TestCreateWithIDOverwrites(t *testing.T, ctx context.Context, s store.DocumentStore) {
	owner := "owner-trash"
	first := store.Document{"type": "friend_request", "senderID": "u1", "senderName": "Alice"}
	second := store.Document{"type": "friend_request", "senderID": "u1"}

	if err := s.CreateWithID(ctx, owner, store.CollectionTrash, "n1", first); err != nil {
		t.Fatalf("CreateWithID failed: %v", err)
	}
	if err := s.CreateWithID(ctx, owner, store.CollectionTrash, "n1", second); err != nil {
		t.Fatalf("CreateWithID overwrite failed: %v", err)
	}

	list, err := s.List(ctx, owner, store.CollectionTrash)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected exactly one trash entry, got %d", len(list))
	}
	if _, ok := list[0].Data["senderName"]; ok {
		t.Error("CreateWithID must overwrite the previous document, senderName survived")
	}
}

// TestIsolation checks that owners and collections do not leak into each other.
func TestIsolation(t *testing.T, ctx context.Context, s store.DocumentStore) {
	if err := s.CreateWithID(ctx, "iso-a", store.CollectionFriends, "x", store.Document{"fullName": "A"}); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateWithID(ctx, "iso-b", store.CollectionFriends, "x", store.Document{"fullName": "B"}); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateWithID(ctx, "iso-a", store.CollectionTrash, "x", store.Document{"fullName": "T"}); err != nil {
		t.Fatal(err)
	}

	got, err := s.Get(ctx, "iso-a", store.CollectionFriends, "x")
	if err != nil {
		t.Fatal(err)
	}
	if got["fullName"] != "A" {
		t.Errorf("expected A, got %v", got["fullName"])
	}
	list, err := s.List(ctx, "iso-b", store.CollectionFriends)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].Data["fullName"] != "B" {
		t.Errorf("expected only B in iso-b friends, got %+v", list)
	}
}

// TestInvalidKey checks that path-like segments are rejected.
func TestInvalidKey(t *testing.T, ctx context.Context, s store.DocumentStore) {
	if _, err := s.Get(ctx, "../etc", store.CollectionEvents, "x"); !errors.Is(err, store.ErrInvalidKey) {
		t.Errorf("expected ErrInvalidKey for traversal owner, got %v", err)
	}
	if err := s.CreateWithID(ctx, "owner", store.CollectionEvents, "", store.Document{}); !errors.Is(err, store.ErrInvalidKey) {
		t.Errorf("expected ErrInvalidKey for empty id, got %v", err)
	}
}
