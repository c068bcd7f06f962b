// Package json implements a JSON file-based document store driver.
// Each (owner, collection) pair is one file at <data_dir>/<owner>/<collection>.json.
// Writes are atomic (temp file + fsync + rename) and serialized by an in-process lock.
package json

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/MahdiBaghbani/calshare-go/internal/platform/store"
)

func init() {
	store.Register("json", NewDriver)
}

// Driver implements store.Driver using JSON files.
type Driver struct {
	dataDir string
	mu      sync.RWMutex
	closed  bool

	// loaded collections, keyed by owner/collection
	collections map[string]map[string]json.RawMessage
}

// NewDriver creates a new JSON driver instance.
func NewDriver(cfg *store.DriverConfig) (store.Driver, error) {
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("data_dir is required for json driver")
	}

	return &Driver{
		dataDir:     cfg.DataDir,
		collections: make(map[string]map[string]json.RawMessage),
	}, nil
}

// Name returns the driver name.
func (d *Driver) Name() string {
	return "json"
}

// Init creates the data directory. Collections are loaded lazily.
func (d *Driver) Init(ctx context.Context) error {
	if err := os.MkdirAll(d.dataDir, 0700); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	return nil
}

// Close releases resources.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func (d *Driver) path(ownerID, collection string) string {
	return filepath.Join(d.dataDir, ownerID, collection+".json")
}

// collection returns the loaded collection map, reading it from disk on first use.
// Caller must hold d.mu for writing.
func (d *Driver) collection(ownerID, collection string) (map[string]json.RawMessage, error) {
	key := ownerID + "/" + collection
	if docs, ok := d.collections[key]; ok {
		return docs, nil
	}

	docs := make(map[string]json.RawMessage)
	data, err := os.ReadFile(d.path(ownerID, collection))
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, store.Unavailable("read collection", err)
	default:
		if err := json.Unmarshal(data, &docs); err != nil {
			return nil, store.Unavailable("parse collection", err)
		}
	}
	d.collections[key] = docs
	return docs, nil
}

// saveFile atomically writes a collection.
// Pattern: write to temp file, fsync, rename.
func (d *Driver) saveFile(ownerID, collection string, docs map[string]json.RawMessage) error {
	path := d.path(ownerID, collection)
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return store.Unavailable("create owner dir", err)
	}
	tempPath := path + ".tmp"

	jsonData, err := json.MarshalIndent(docs, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal collection: %w", err)
	}

	f, err := os.OpenFile(tempPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return store.Unavailable("create temp file", err)
	}

	if _, err := f.Write(jsonData); err != nil {
		f.Close()
		os.Remove(tempPath)
		return store.Unavailable("write temp file", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tempPath)
		return store.Unavailable("sync temp file", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tempPath)
		return store.Unavailable("close temp file", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return store.Unavailable("rename temp file", err)
	}

	return nil
}

// List returns every document in the collection, ordered by id.
func (d *Driver) List(ctx context.Context, ownerID, collection string) ([]store.Snapshot, error) {
	if err := store.ValidateKey(ownerID, collection, "", true); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, store.ErrClosed
	}

	docs, err := d.collection(ownerID, collection)
	if err != nil {
		return nil, err
	}

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

// Get retrieves a document.
func (d *Driver) Get(ctx context.Context, ownerID, collection, id string) (store.Document, error) {
	if err := store.ValidateKey(ownerID, collection, id, false); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, store.ErrClosed
	}

	docs, err := d.collection(ownerID, collection)
	if err != nil {
		return nil, err
	}
	raw, ok := docs[id]
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

	docs, err := d.collection(ownerID, collection)
	if err != nil {
		return err
	}
	prev, existed := docs[id]
	docs[id] = raw
	if err := d.saveFile(ownerID, collection, docs); err != nil {
		restore(docs, id, prev, existed)
		return err
	}
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

	docs, err := d.collection(ownerID, collection)
	if err != nil {
		return err
	}
	prev, ok := docs[id]
	if !ok {
		return store.ErrNotFound
	}
	merged, err := store.MergeEncoded(prev, partial)
	if err != nil {
		return err
	}
	docs[id] = merged
	if err := d.saveFile(ownerID, collection, docs); err != nil {
		docs[id] = prev
		return err
	}
	return nil
}

// Delete removes a document if present.
func (d *Driver) Delete(ctx context.Context, ownerID, collection, id string) error {
	if err := store.ValidateKey(ownerID, collection, id, false); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return store.ErrClosed
	}

	docs, err := d.collection(ownerID, collection)
	if err != nil {
		return err
	}
	prev, ok := docs[id]
	if !ok {
		return nil
	}
	delete(docs, id)
	if err := d.saveFile(ownerID, collection, docs); err != nil {
		docs[id] = prev
		return err
	}
	return nil
}

// restore undoes an in-memory write after a failed save.
func restore(docs map[string]json.RawMessage, id string, prev json.RawMessage, existed bool) {
	if existed {
		docs[id] = prev
		return
	}
	delete(docs, id)
}

// Compile-time interface check
var _ store.Driver = (*Driver)(nil)
