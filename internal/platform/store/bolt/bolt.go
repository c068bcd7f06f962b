// Package bolt implements an embedded document store driver on bbolt.
// Each owner is a top-level bucket with one nested bucket per collection.
package bolt

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/MahdiBaghbani/calshare-go/internal/platform/store"
)

func init() {
	store.Register("bolt", NewDriver)
}

// Driver implements store.Driver using a single bbolt file.
type Driver struct {
	path string

	mu sync.RWMutex
	db *bolt.DB
}

// NewDriver creates a bolt driver. The database file is <data_dir>/calshare.bolt unless dsn is set.
func NewDriver(cfg *store.DriverConfig) (store.Driver, error) {
	path := cfg.DSN
	if path == "" {
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir or dsn is required for bolt driver")
		}
		path = filepath.Join(cfg.DataDir, "calshare.bolt")
	}
	return &Driver{path: path}, nil
}

// Name returns the driver name.
func (d *Driver) Name() string { return "bolt" }

// Init opens the database file.
func (d *Driver) Init(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(d.path), 0700); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	db, err := bolt.Open(d.path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return fmt.Errorf("opening bbolt db at %s: %w", d.path, err)
	}

	d.mu.Lock()
	d.db = db
	d.mu.Unlock()
	return nil
}

// Close closes the database file.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.db == nil {
		return nil
	}
	err := d.db.Close()
	d.db = nil
	return err
}

func (d *Driver) handle() (*bolt.DB, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.db == nil {
		return nil, store.ErrClosed
	}
	return d.db, nil
}

// bucket returns the nested collection bucket, or nil if it does not exist.
func bucket(tx *bolt.Tx, ownerID, collection string) *bolt.Bucket {
	owner := tx.Bucket([]byte(ownerID))
	if owner == nil {
		return nil
	}
	return owner.Bucket([]byte(collection))
}

func createBucket(tx *bolt.Tx, ownerID, collection string) (*bolt.Bucket, error) {
	owner, err := tx.CreateBucketIfNotExists([]byte(ownerID))
	if err != nil {
		return nil, err
	}
	return owner.CreateBucketIfNotExists([]byte(collection))
}

// List returns every document in the collection, ordered by id.
func (d *Driver) List(ctx context.Context, ownerID, collection string) ([]store.Snapshot, error) {
	if err := store.ValidateKey(ownerID, collection, "", true); err != nil {
		return nil, err
	}
	db, err := d.handle()
	if err != nil {
		return nil, err
	}

	out := make([]store.Snapshot, 0)
	err = db.View(func(tx *bolt.Tx) error {
		b := bucket(tx, ownerID, collection)
		if b == nil {
			return nil
		}
		// bbolt iterates keys in byte order
		return b.ForEach(func(k, v []byte) error {
			doc, err := store.Decode(v)
			if err != nil {
				return err
			}
			out = append(out, store.Snapshot{ID: string(k), Data: doc})
			return nil
		})
	})
	if err != nil {
		return nil, store.Unavailable("list documents", err)
	}
	return out, nil
}

// Get retrieves a document.
func (d *Driver) Get(ctx context.Context, ownerID, collection, id string) (store.Document, error) {
	if err := store.ValidateKey(ownerID, collection, id, false); err != nil {
		return nil, err
	}
	db, err := d.handle()
	if err != nil {
		return nil, err
	}

	var raw []byte
	err = db.View(func(tx *bolt.Tx) error {
		b := bucket(tx, ownerID, collection)
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(id)); v != nil {
			// values are only valid for the life of the transaction
			raw = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, store.Unavailable("get document", err)
	}
	if raw == nil {
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
	db, err := d.handle()
	if err != nil {
		return err
	}

	err = db.Update(func(tx *bolt.Tx) error {
		b, err := createBucket(tx, ownerID, collection)
		if err != nil {
			return err
		}
		return b.Put([]byte(id), raw)
	})
	if err != nil {
		return store.Unavailable("write document", err)
	}
	return nil
}

// Update merges partial into an existing document.
func (d *Driver) Update(ctx context.Context, ownerID, collection, id string, partial store.Document) error {
	if err := store.ValidateKey(ownerID, collection, id, false); err != nil {
		return err
	}
	db, err := d.handle()
	if err != nil {
		return err
	}

	found := false
	err = db.Update(func(tx *bolt.Tx) error {
		b := bucket(tx, ownerID, collection)
		if b == nil {
			return nil
		}
		v := b.Get([]byte(id))
		if v == nil {
			return nil
		}
		found = true
		merged, err := store.MergeEncoded(v, partial)
		if err != nil {
			return err
		}
		return b.Put([]byte(id), merged)
	})
	if err != nil {
		return store.Unavailable("update document", err)
	}
	if !found {
		return store.ErrNotFound
	}
	return nil
}

// Delete removes a document if present.
func (d *Driver) Delete(ctx context.Context, ownerID, collection, id string) error {
	if err := store.ValidateKey(ownerID, collection, id, false); err != nil {
		return err
	}
	db, err := d.handle()
	if err != nil {
		return err
	}

	err = db.Update(func(tx *bolt.Tx) error {
		b := bucket(tx, ownerID, collection)
		if b == nil {
			return nil
		}
		return b.Delete([]byte(id))
	})
	if err != nil {
		return store.Unavailable("delete document", err)
	}
	return nil
}

// Compile-time interface check
var _ store.Driver = (*Driver)(nil)
