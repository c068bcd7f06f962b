package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/MahdiBaghbani/calshare-go/internal/platform/logutil"
	"github.com/MahdiBaghbani/calshare-go/internal/platform/store"
)

// Trash is the log of declined notifications. Entries are kept until the
// user deletes them.
type Trash struct {
	store store.DocumentStore
	log   *slog.Logger
}

func NewTrash(st store.DocumentStore, log *slog.Logger) *Trash {
	log = logutil.NoopIfNil(log)
	return &Trash{store: st, log: log}
}

// List returns the trash log, newest first.
func (t *Trash) List(ctx context.Context, ownerID string) ([]*Notification, error) {
	snaps, err := t.store.List(ctx, ownerID, store.CollectionTrash)
	if err != nil {
		return nil, fmt.Errorf("list trash: %w", err)
	}
	out := make([]*Notification, 0, len(snaps))
	for _, s := range snaps {
		out = append(out, fromDocument(s.ID, s.Data))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

// Delete permanently removes one entry. Absent ids are not an error.
func (t *Trash) Delete(ctx context.Context, ownerID, id string) error {
	err := t.store.Delete(ctx, ownerID, store.CollectionTrash, id)
	if errors.Is(err, store.ErrInvalidKey) {
		return nil
	}
	return err
}

// Empty removes every entry and returns how many were removed. It stops at
// the first failure.
func (t *Trash) Empty(ctx context.Context, ownerID string) (int, error) {
	snaps, err := t.store.List(ctx, ownerID, store.CollectionTrash)
	if err != nil {
		return 0, fmt.Errorf("list trash: %w", err)
	}
	for i, s := range snaps {
		if err := t.store.Delete(ctx, ownerID, store.CollectionTrash, s.ID); err != nil {
			return i, fmt.Errorf("delete trash entry %s: %w", s.ID, err)
		}
	}
	t.log.Debug("trash emptied", "owner_id", ownerID, "count", len(snaps))
	return len(snaps), nil
}
