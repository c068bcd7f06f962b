// Package memory implements an in-process document store driver.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/MahdiBaghbani/calshare-go/internal/platform/store"
)

func init() {
	store.Register("memory", func(cfg *store.DriverConfig) (store.Driver, error) {
		return New(), nil
	})
}

// Driver keeps encoded documents in maps keyed by owner/collection.
type Driver struct {
	mu     sync.RWMutex
	closed bool
	data   map[string]map[string][]byte
}

// New creates an empty memory driver. It is usable without Init.
func New() *Driver {
	return &Driver{data: make(map[string]map[string][]byte)}
}

// Name returns the driver name.
func (d *Driver) Name() string { return "memory" }

// Init is a no-op.
func (d *Driver) Init(ctx context.Context) error { return nil }

// Close marks the driver closed; later calls fail with store.ErrClosed.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func collectionKey(ownerID, collection string) string {
	return ownerID + "/" + collection
}

// List returns every document in the collection, ordered by id.
func (d *Driver) List(ctx context.Context, ownerID, collection string) ([]store.Snapshot, error) {
	if err := store.ValidateKey(ownerID, collection, "", true); err != nil {
		return nil, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, store.ErrClosed
	}

	docs := d.data[collectionKey(ownerID, collection)]
	ids := make([]string, 0, len(docs))
	for id := range docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]store.Snapshot, 0, len(ids))
	for _, id := range ids {
		doc, err := store.Decode(docs[id])
		if err != nil {
			return nil, err
		}
		out = append(out, store.Snapshot{ID: id, Data: doc})
	}
	return out, nil
}

// Get returns a copy of the document.
func (d *Driver) Get(ctx context.Context, ownerID, collection, id string) (store.Document, error) {
	if err := store.ValidateKey(ownerID, collection, id, false); err != nil {
		return nil, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, store.ErrClosed
	}

	raw, ok := d.data[collectionKey(ownerID, collection)][id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return store.Decode(raw)
}

// Create stores doc under a new id.
func (d *Driver) Create(ctx context.Context, ownerID, collection string, doc store.Document) (string, error) {
	id := store.NewID()
	if err := d.CreateWithID(ctx, ownerID, collection, id, doc); err != nil {
		return "", err
	}
	return id, nil
}

// CreateWithID stores doc under id, overwriting.
func (d *Driver) CreateWithID(ctx context.Context, ownerID, collection, id string, doc store.Document) error {
	if err := store.ValidateKey(ownerID, collection, id, false); err != nil {
		return err
	}
	raw, err := store.Encode(doc)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return store.ErrClosed
	}

	key := collectionKey(ownerID, collection)
	if d.data[key] == nil {
		d.data[key] = make(map[string][]byte)
	}
	d.data[key][id] = raw
	return nil
}

// Update merges partial into an existing document.
func (d *Driver) Update(ctx context.Context, ownerID, collection, id string, partial store.Document) error {
	if err := store.ValidateKey(ownerID, collection, id, false); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return store.ErrClosed
	}

	key := collectionKey(ownerID, collection)
	raw, ok := d.data[key][id]
	if !ok {
		return store.ErrNotFound
	}
	merged, err := store.MergeEncoded(raw, partial)
	if err != nil {
		return err
	}
	d.data[key][id] = merged
	return nil
}

// Delete removes the document if present.
func (d *Driver) Delete(ctx context.Context, ownerID, collection, id string) error {
	if err := store.ValidateKey(ownerID, collection, id, false); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return store.ErrClosed
	}

	delete(d.data[collectionKey(ownerID, collection)], id)
	return nil
}

// Compile-time interface check
var _ store.Driver = (*Driver)(nil)
