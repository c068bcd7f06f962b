package storetest

import (
	"context"
	"sync"

	"github.com/MahdiBaghbani/calshare-go/internal/platform/store"
)

// Op names a DocumentStore method.
type Op string

const (
	OpList         Op = "list"
	OpGet          Op = "get"
	OpCreate       Op = "create"
	OpCreateWithID Op = "create_with_id"
	OpUpdate       Op = "update"
	OpDelete       Op = "delete"
)

// Call describes one store call.
type Call struct {
	Op         Op
	OwnerID    string
	Collection string
	ID         string
}

// IsWrite reports whether the call mutates the store.
func (c Call) IsWrite() bool {
	return c.Op == OpCreate || c.Op == OpCreateWithID || c.Op == OpUpdate || c.Op == OpDelete
}

// Faulty wraps a DocumentStore, records every call, and fails the calls
// for which Fail returns an error.
type Faulty struct {
	store.DocumentStore

	// Fail may be nil. It is called without holding any lock.
	Fail func(Call) error

	mu    sync.Mutex
	calls []Call
}

// NewFaulty wraps inner.
func NewFaulty(inner store.DocumentStore, fail func(Call) error) *Faulty {
	return &Faulty{DocumentStore: inner, Fail: fail}
}

// FailWrites returns a Fail func rejecting writes that match owner and
// collection ("" matches any) with store.ErrUnavailable.
func FailWrites(ownerID, collection string) func(Call) error {
	return func(c Call) error {
		if !c.IsWrite() {
			return nil
		}
		if (ownerID == "" || c.OwnerID == ownerID) && (collection == "" || c.Collection == collection) {
			return store.Unavailable(string(c.Op), errInjected)
		}
		return nil
	}
}

type injectedError struct{}

func (injectedError) Error() string { return "injected failure" }

var errInjected = injectedError{}

func (f *Faulty) check(c Call) error {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()
	if f.Fail == nil {
		return nil
	}
	return f.Fail(c)
}

// Calls returns the recorded calls.
func (f *Faulty) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Writes returns the recorded mutating calls.
func (f *Faulty) Writes() []Call {
	var out []Call
	for _, c := range f.Calls() {
		if c.IsWrite() {
			out = append(out, c)
		}
	}
	return out
}

// Reset clears the recorded calls.
func (f *Faulty) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

func (f *Faulty) List(ctx context.Context, ownerID, collection string) ([]store.Snapshot, error) {
	if err := f.check(Call{OpList, ownerID, collection, ""}); err != nil {
		return nil, err
	}
	return f.DocumentStore.List(ctx, ownerID, collection)
}

func (f *Faulty) Get(ctx context.Context, ownerID, collection, id string) (store.Document, error) {
	if err := f.check(Call{OpGet, ownerID, collection, id}); err != nil {
		return nil, err
	}
	return f.DocumentStore.Get(ctx, ownerID, collection, id)
}

func (f *Faulty) Create(ctx context.Context, ownerID, collection string, doc store.Document) (string, error) {
	if err := f.check(Call{OpCreate, ownerID, collection, ""}); err != nil {
		return "", err
	}
	return f.DocumentStore.Create(ctx, ownerID, collection, doc)
}

func (f *Faulty) CreateWithID(ctx context.Context, ownerID, collection, id string, doc store.Document) error {
	if err := f.check(Call{OpCreateWithID, ownerID, collection, id}); err != nil {
		return err
	}
	return f.DocumentStore.CreateWithID(ctx, ownerID, collection, id, doc)
}

func (f *Faulty) Update(ctx context.Context, ownerID, collection, id string, partial store.Document) error {
	if err := f.check(Call{OpUpdate, ownerID, collection, id}); err != nil {
		return err
	}
	return f.DocumentStore.Update(ctx, ownerID, collection, id, partial)
}

func (f *Faulty) Delete(ctx context.Context, ownerID, collection, id string) error {
	if err := f.check(Call{OpDelete, ownerID, collection, id}); err != nil {
		return err
	}
	return f.DocumentStore.Delete(ctx, ownerID, collection, id)
}

var _ store.DocumentStore = (*Faulty)(nil)
