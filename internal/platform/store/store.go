// Package store provides the document store contract and driver abstractions.
//
// Documents are addressed by (owner, collection, id). Every driver normalizes
// documents through a JSON round trip on write, so reads return the same
// value types regardless of backend: numbers as float64, lists as []any and
// nested objects as map[string]any.
package store

import (
	"context"
	"errors"
	"fmt"
)

// Common errors for store operations.
var (
	ErrNotFound    = errors.New("not found")
	ErrUnavailable = errors.New("store unavailable")
	ErrClosed      = fmt.Errorf("%w: store closed", ErrUnavailable)
	ErrInvalidKey  = errors.New("invalid document key")
)

// Well-known collection names.
const (
	CollectionEvents        = "events"
	CollectionFriends       = "friends"
	CollectionNotifications = "notifications"
	CollectionTrash         = "trash"
	CollectionUsers         = "users"
)

// Document is a schemaless record.
type Document map[string]any

// Snapshot is a document together with its id.
type Snapshot struct {
	ID   string
	Data Document
}

// DocumentStore is the persistence contract the domain depends on.
// Implementations must be safe for concurrent use.
type DocumentStore interface {
	// List returns every document in the collection, ordered by id.
	List(ctx context.Context, ownerID, collection string) ([]Snapshot, error)

	// Get returns ErrNotFound if the id is absent.
	Get(ctx context.Context, ownerID, collection, id string) (Document, error)

	// Create stores doc under a new server-assigned id.
	Create(ctx context.Context, ownerID, collection string, doc Document) (string, error)

	// CreateWithID stores doc under the caller's id, overwriting any existing document.
	CreateWithID(ctx context.Context, ownerID, collection, id string, doc Document) error

	// Update merges the top-level keys of partial into the document.
	// Returns ErrNotFound if the id is absent.
	Update(ctx context.Context, ownerID, collection, id string, partial Document) error

	// Delete removes the document. Deleting an absent id is not an error.
	Delete(ctx context.Context, ownerID, collection, id string) error
}

// Driver is a DocumentStore backed by a concrete persistence engine.
type Driver interface {
	DocumentStore

	// Init initializes the driver (create tables, open files, etc).
	Init(ctx context.Context) error

	// Close releases resources held by the driver.
	Close() error

	// Name returns the driver name (memory, json, sqlite, postgres, bolt).
	Name() string
}

// Unavailable wraps a backend failure so callers can match it with errors.Is(err, ErrUnavailable).
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
}

// ValidateKey checks the addressing components of a document.
// An empty id is only accepted when allowEmptyID is set (list and create calls).
func ValidateKey(ownerID, collection, id string, allowEmptyID bool) error {
	if !validSegment(ownerID) {
		return fmt.Errorf("%w: owner %q", ErrInvalidKey, ownerID)
	}
	if !validSegment(collection) {
		return fmt.Errorf("%w: collection %q", ErrInvalidKey, collection)
	}
	if id == "" && allowEmptyID {
		return nil
	}
	if !validSegment(id) {
		return fmt.Errorf("%w: id %q", ErrInvalidKey, id)
	}
	return nil
}

func validSegment(s string) bool {
	if s == "" || s == "." || s == ".." || len(s) > 128 {
		return false
	}
	for _, r := range s {
		if r == '/' || r == '\\' || r == 0 {
			return false
		}
	}
	return true
}
