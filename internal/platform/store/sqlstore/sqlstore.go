// Package sqlstore implements SQL document store drivers (sqlite, postgres) using GORM.
// Documents live in a single table keyed by (owner_id, collection, id) with a JSON body.
package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/dbresolver"

	"github.com/MahdiBaghbani/calshare-go/internal/platform/store"
)

func init() {
	store.Register("sqlite", NewSQLiteDriver)
	store.Register("postgres", NewPostgresDriver)
}

// documentRow is the persisted form of a document.
type documentRow struct {
	OwnerID    string `gorm:"primaryKey;size:128"`
	Collection string `gorm:"primaryKey;size:128"`
	ID         string `gorm:"primaryKey;size:128"`
	Data       string `gorm:"type:text;not null"`
	UpdatedAt  int64
}

func (documentRow) TableName() string { return "documents" }

// Driver implements store.Driver on top of a GORM dialector.
type Driver struct {
	name     string
	dsn      string
	replicas []string
	open     func(dsn string) gorm.Dialector
	db       *gorm.DB
}

// NewSQLiteDriver creates a sqlite driver. The database file defaults to <data_dir>/calshare.db.
func NewSQLiteDriver(cfg *store.DriverConfig) (store.Driver, error) {
	dsn := cfg.DSN
	if dsn == "" {
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir or dsn is required for sqlite driver")
		}
		dsn = filepath.Join(cfg.DataDir, "calshare.db")
	}
	if len(cfg.Replicas) > 0 {
		return nil, fmt.Errorf("sqlite driver does not support replicas")
	}
	return &Driver{name: "sqlite", dsn: dsn, open: sqlite.Open}, nil
}

// NewPostgresDriver creates a postgres driver with optional read replicas.
func NewPostgresDriver(cfg *store.DriverConfig) (store.Driver, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("dsn is required for postgres driver")
	}
	return &Driver{name: "postgres", dsn: cfg.DSN, replicas: cfg.Replicas, open: postgres.Open}, nil
}

// Name returns the driver name.
func (d *Driver) Name() string {
	return d.name
}

// Init opens the database, registers replicas and runs AutoMigrate.
func (d *Driver) Init(ctx context.Context) error {
	db, err := gorm.Open(d.open(d.dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	if len(d.replicas) > 0 {
		dialectors := make([]gorm.Dialector, 0, len(d.replicas))
		for _, r := range d.replicas {
			dialectors = append(dialectors, d.open(r))
		}
		if err := db.Use(dbresolver.Register(dbresolver.Config{
			Replicas: dialectors,
			Policy:   dbresolver.RandomPolicy{},
		})); err != nil {
			return fmt.Errorf("failed to register replicas: %w", err)
		}
	}

	if err := db.WithContext(ctx).AutoMigrate(&documentRow{}); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	d.db = db
	return nil
}

// Close closes the database connection.
func (d *Driver) Close() error {
	if d.db == nil {
		return nil
	}
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (d *Driver) conn(ctx context.Context) (*gorm.DB, error) {
	if d.db == nil {
		return nil, store.ErrClosed
	}
	return d.db.WithContext(ctx), nil
}

// List returns every document in the collection, ordered by id.
func (d *Driver) List(ctx context.Context, ownerID, collection string) ([]store.Snapshot, error) {
	if err := store.ValidateKey(ownerID, collection, "", true); err != nil {
		return nil, err
	}
	db, err := d.conn(ctx)
	if err != nil {
		return nil, err
	}

	var rows []documentRow
	result := db.Clauses(dbresolver.Read).
		Where("owner_id = ? AND collection = ?", ownerID, collection).
		Order("id").
		Find(&rows)
	if result.Error != nil {
		return nil, store.Unavailable("list documents", result.Error)
	}

	out := make([]store.Snapshot, 0, len(rows))
	for _, row := range rows {
		doc, err := store.Decode([]byte(row.Data))
		if err != nil {
			return nil, err
		}
		out = append(out, store.Snapshot{ID: row.ID, Data: doc})
	}
	return out, nil
}

// Get retrieves a document.
func (d *Driver) Get(ctx context.Context, ownerID, collection, id string) (store.Document, error) {
	if err := store.ValidateKey(ownerID, collection, id, false); err != nil {
		return nil, err
	}
	db, err := d.conn(ctx)
	if err != nil {
		return nil, err
	}

	var row documentRow
	result := db.Clauses(dbresolver.Read).
		First(&row, "owner_id = ? AND collection = ? AND id = ?", ownerID, collection, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, store.Unavailable("get document", result.Error)
	}
	return store.Decode([]byte(row.Data))
}

// Create stores doc under a new id.
func (d *Driver) Create(ctx context.Context, ownerID, collection string, doc store.Document) (string, error) {
	id := store.NewID()
	if err := d.CreateWithID(ctx, ownerID, collection, id, doc); err != nil {
		return "", err
	}
	return id, nil
}

// CreateWithID upserts doc under id.
func (d *Driver) CreateWithID(ctx context.Context, ownerID, collection, id string, doc store.Document) error {
	if err := store.ValidateKey(ownerID, collection, id, false); err != nil {
		return err
	}
	raw, err := store.Encode(doc)
	if err != nil {
		return err
	}
	db, err := d.conn(ctx)
	if err != nil {
		return err
	}

	row := documentRow{
		OwnerID:    ownerID,
		Collection: collection,
		ID:         id,
		Data:       string(raw),
		UpdatedAt:  time.Now().Unix(),
	}
	result := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "owner_id"}, {Name: "collection"}, {Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
	}).Create(&row)
	if result.Error != nil {
		return store.Unavailable("write document", result.Error)
	}
	return nil
}

// Update merges partial into an existing document inside a transaction.
func (d *Driver) Update(ctx context.Context, ownerID, collection, id string, partial store.Document) error {
	if err := store.ValidateKey(ownerID, collection, id, false); err != nil {
		return err
	}
	db, err := d.conn(ctx)
	if err != nil {
		return err
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		var row documentRow
		if err := tx.First(&row, "owner_id = ? AND collection = ? AND id = ?", ownerID, collection, id).Error; err != nil {
			return err
		}
		merged, err := store.MergeEncoded([]byte(row.Data), partial)
		if err != nil {
			return err
		}
		return tx.Model(&documentRow{}).
			Where("owner_id = ? AND collection = ? AND id = ?", ownerID, collection, id).
			Updates(map[string]any{"data": string(merged), "updated_at": time.Now().Unix()}).Error
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return store.ErrNotFound
	default:
		return store.Unavailable("update document", err)
	}
}

// Delete removes a document if present.
func (d *Driver) Delete(ctx context.Context, ownerID, collection, id string) error {
	if err := store.ValidateKey(ownerID, collection, id, false); err != nil {
		return err
	}
	db, err := d.conn(ctx)
	if err != nil {
		return err
	}

	result := db.Delete(&documentRow{}, "owner_id = ? AND collection = ? AND id = ?", ownerID, collection, id)
	if result.Error != nil {
		return store.Unavailable("delete document", result.Error)
	}
	return nil
}

// Compile-time interface check
var _ store.Driver = (*Driver)(nil)
