package bolt_test

import (
	"context"
	"errors"
	"testing"

	"github.com/MahdiBaghbani/calshare-go/internal/platform/store"
	_ "github.com/MahdiBaghbani/calshare-go/internal/platform/store/bolt"
	"github.com/MahdiBaghbani/calshare-go/internal/platform/store/storetest"
)

func TestBoltDriver(t *testing.T) {
	storetest.RunDriverTests(t, "bolt", &store.DriverConfig{Driver: "bolt", DataDir: t.TempDir()})
}

func TestBoltDriverClosed(t *testing.T) {
	ctx := context.Background()
	driver, err := store.New(&store.DriverConfig{Driver: "bolt", DataDir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	if err := driver.Init(ctx); err != nil {
		t.Fatal(err)
	}
	driver.Close()

	if _, err := driver.Get(ctx, "u1", store.CollectionEvents, "e1"); !errors.Is(err, store.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable after close, got %v", err)
	}
}
