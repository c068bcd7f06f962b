package identity_test

import (
	"context"
	"testing"

	"github.com/MahdiBaghbani/calshare-go/internal/components/identity"
)

func TestBootstrap_Idempotent(t *testing.T) {
	dir, _, _ := newDirectory(t)
	auth := identity.NewUserAuthFast()
	b := identity.NewBootstrap(dir, auth, testLogger)
	ctx := context.Background()

	seeded := []identity.SeededUser{
		{Email: "alice@example.com", Password: "alicepw", FullName: "Alice"},
		{Email: "bob@example.com", FullName: "Bob"},
	}

	created, err := b.Run(ctx, seeded)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if created != 2 {
		t.Errorf("expected 2 users created, got %d", created)
	}

	created, err = b.Run(ctx, seeded)
	if err != nil {
		t.Fatal(err)
	}
	if created != 0 {
		t.Errorf("second run must create nothing, got %d", created)
	}

	if _, err := auth.Authenticate(ctx, dir, "alice@example.com", "alicepw"); err != nil {
		t.Errorf("seeded password should work: %v", err)
	}
	bob, err := dir.ByEmail(ctx, "bob@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if bob.PasswordHash == "" {
		t.Error("generated password should be hashed and stored")
	}
}
